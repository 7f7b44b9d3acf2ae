package messaging

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blogem/otel-poc/clock"
	"github.com/blogem/otel-poc/models"
	"github.com/blogem/otel-poc/repositories"
	"github.com/blogem/otel-poc/telemetry"
)

// SomeMessageConsumer logs consumed messages together with the current
// number of audit entries
type SomeMessageConsumer struct {
	logger *zap.Logger
	audit  repositories.AuditRepository

	// Artificial delays around the log statement
	BeforeLog   time.Duration
	BeforeCount time.Duration
}

// NewSomeMessageConsumer creates the consumer with its default delays
func NewSomeMessageConsumer(logger *zap.Logger, audit repositories.AuditRepository) *SomeMessageConsumer {
	return &SomeMessageConsumer{
		logger:      logger.Named("SomeMessageConsumer"),
		audit:       audit,
		BeforeLog:   666 * time.Millisecond,
		BeforeCount: 42 * time.Millisecond,
	}
}

// Consume implements Handler
func (c *SomeMessageConsumer) Consume(ctx context.Context, msg models.SomeMessage) error {
	logger := telemetry.WithTrace(ctx, c.logger)

	if err := clock.Sleep(ctx, c.BeforeLog); err != nil {
		return err
	}
	logger.Info("Consuming some message", zap.Any("message", msg))

	if err := clock.Sleep(ctx, c.BeforeCount); err != nil {
		return err
	}
	count, err := c.audit.Count(ctx)
	if err != nil {
		return fmt.Errorf("count audit entries: %w", err)
	}
	logger.Info(fmt.Sprintf("%d audit entries in the database at the moment", count), zap.Int64("count", count))

	return nil
}
