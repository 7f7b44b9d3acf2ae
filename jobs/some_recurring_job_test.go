package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/blogem/otel-poc/clients/codex/mocks"
	"github.com/blogem/otel-poc/models"
)

func newTestJob(t *testing.T) (*SomeRecurringJob, *mocks.MockAPI, *observer.ObservedLogs) {
	api := mocks.NewMockAPI(t)
	core, logs := observer.New(zapcore.InfoLevel)

	job := NewSomeRecurringJob(api, zap.New(core), 0)
	job.BeforeFirst, job.BeforeLast = 0, 0
	return job, api, logs
}

func TestSomeRecurringJobCallsThemaTwice(t *testing.T) {
	job, api, logs := newTestJob(t)
	api.On("GetThema", mock.Anything, DefaultThemaID).
		Return(&models.Thema{ID: DefaultThemaID, Omschrijving: "Mobiliteit"}, nil).Twice()

	require.NoError(t, job.Run(context.Background()))

	entries := logs.FilterMessage("Hello from SomeRecurringJob").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "SomeRecurringJob", entries[0].LoggerName)
}

func TestSomeRecurringJobStopsOnFirstFailure(t *testing.T) {
	job, api, logs := newTestJob(t)
	api.On("GetThema", mock.Anything, DefaultThemaID).Return(nil, errors.New("connection refused")).Once()

	assert.Error(t, job.Run(context.Background()))
	assert.Zero(t, logs.Len())
}

func TestSomeRecurringJobHonoursCancellation(t *testing.T) {
	job, _, _ := newTestJob(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
}

func TestSomeRecurringJobConfiguredThema(t *testing.T) {
	api := mocks.NewMockAPI(t)
	job := NewSomeRecurringJob(api, zap.NewNop(), 42)
	job.BeforeFirst, job.BeforeLast = 0, 0

	api.On("GetThema", mock.Anything, 42).Return(&models.Thema{ID: 42}, nil).Twice()
	require.NoError(t, job.Run(context.Background()))
}
