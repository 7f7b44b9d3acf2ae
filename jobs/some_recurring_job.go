package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blogem/otel-poc/clients/codex"
	"github.com/blogem/otel-poc/clock"
	"github.com/blogem/otel-poc/telemetry"
)

// SomeRecurringJobID is the registration id of SomeRecurringJob
const SomeRecurringJobID = "some-recurring-job"

// DefaultThemaID is the Codex thema fetched by SomeRecurringJob
const DefaultThemaID = 1000142

// SomeRecurringJob fetches a thema twice with a log line and waits in between
type SomeRecurringJob struct {
	codex  codex.API
	logger *zap.Logger

	ThemaID     int
	BeforeFirst time.Duration
	BeforeLast  time.Duration
}

// NewSomeRecurringJob creates the job with its default delays
func NewSomeRecurringJob(api codex.API, logger *zap.Logger, themaID int) *SomeRecurringJob {
	if themaID == 0 {
		themaID = DefaultThemaID
	}
	return &SomeRecurringJob{
		codex:       api,
		logger:      logger.Named("SomeRecurringJob"),
		ThemaID:     themaID,
		BeforeFirst: 123 * time.Millisecond,
		BeforeLast:  456 * time.Millisecond,
	}
}

// Run implements Job
func (j *SomeRecurringJob) Run(ctx context.Context) error {
	if err := clock.Sleep(ctx, j.BeforeFirst); err != nil {
		return err
	}
	if _, err := j.codex.GetThema(ctx, j.ThemaID); err != nil {
		return fmt.Errorf("first thema call: %w", err)
	}

	telemetry.WithTrace(ctx, j.logger).Info("Hello from SomeRecurringJob")

	if err := clock.Sleep(ctx, j.BeforeLast); err != nil {
		return err
	}
	if _, err := j.codex.GetThema(ctx, j.ThemaID); err != nil {
		return fmt.Errorf("second thema call: %w", err)
	}
	return nil
}
