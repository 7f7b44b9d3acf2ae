// Package jobs runs recurring background jobs on cron schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/telemetry"
)

// ErrUnknownJob is returned for job ids that were never registered
var ErrUnknownJob = errors.New("unknown job")

// Job is a unit of recurring work
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job
type JobFunc func(ctx context.Context) error

// Run calls f(ctx)
func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// JobState is the run history of one recurring job
type JobState struct {
	ID           string        `json:"id"`
	Schedule     string        `json:"schedule"`
	Running      bool          `json:"running"`
	LastRun      time.Time     `json:"lastRun,omitempty"`
	LastDuration time.Duration `json:"lastDurationNs,omitempty"`
	LastError    string        `json:"lastError,omitempty"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	Skipped      int           `json:"skipped"`
	NextRun      time.Time     `json:"nextRun,omitempty"`
}

type registration struct {
	id      string
	spec    string
	job     Job
	entryID cron.EntryID
	running atomic.Bool
	state   JobState
}

// Scheduler keeps at most one registration per job id on top of a cron runner
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*registration
}

// NewScheduler creates a stopped scheduler. Schedules use the standard
// five-field cron syntax and are evaluated in UTC.
func NewScheduler(logger *zap.Logger, metrics *telemetry.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("jobs")

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger{logger.Sugar()}),
		),
		logger:  logger,
		metrics: metrics,
		tracer:  telemetry.Tracer(telemetry.JobsSourceName),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*registration),
	}
}

// AddOrUpdate registers job under id, replacing the schedule and job of an
// existing registration with the same id.
func (s *Scheduler) AddOrUpdate(id, spec string, job Job) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.jobs[id]
	if ok {
		s.cron.Remove(reg.entryID)
		reg.spec = spec
		reg.job = job
		reg.state.Schedule = spec
	} else {
		reg = &registration{id: id, spec: spec, job: job, state: JobState{ID: id, Schedule: spec}}
		s.jobs[id] = reg
	}
	reg.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(reg) }))

	s.logger.Info("recurring job registered", zap.String("job", id), zap.String("schedule", spec))
	return nil
}

// Trigger runs id now, in the background
func (s *Scheduler) Trigger(id string) error {
	s.mu.Lock()
	reg, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownJob)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(reg)
	}()
	return nil
}

// States returns a snapshot of all registrations ordered by id
func (s *Scheduler) States() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]JobState, 0, len(s.jobs))
	for _, reg := range s.jobs {
		state := reg.state
		state.Running = reg.running.Load()
		state.NextRun = s.cron.Entry(reg.entryID).Next
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// Start begins firing schedules
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(reg *registration) {
	if !reg.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		reg.state.Skipped++
		s.mu.Unlock()
		s.logger.Warn("job still running, skipping this run", zap.String("job", reg.id))
		return
	}
	defer reg.running.Store(false)

	s.mu.Lock()
	job := reg.job
	s.mu.Unlock()

	ctx, span := s.tracer.Start(s.ctx, "job "+reg.id,
		trace.WithAttributes(attribute.String("job.id", reg.id)),
	)
	defer span.End()
	logger := telemetry.WithTrace(ctx, s.logger).With(zap.String("job", reg.id))

	started := time.Now()
	err := safeRun(ctx, job)
	elapsed := time.Since(started)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("job failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		span.SetStatus(codes.Ok, "")
		logger.Debug("job succeeded", zap.Duration("elapsed", elapsed))
	}

	s.mu.Lock()
	reg.state.LastRun = started.UTC()
	reg.state.LastDuration = elapsed
	reg.state.Runs++
	reg.state.LastError = ""
	if err != nil {
		reg.state.Failures++
		reg.state.LastError = err.Error()
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.JobRuns.WithLabelValues(reg.id, telemetry.StatusLabel(err)).Inc()
	}
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

// cronLogger routes the cron runner's logging through zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
