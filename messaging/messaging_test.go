package messaging

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/blogem/otel-poc/models"
	"github.com/blogem/otel-poc/telemetry"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	telemetry.Install(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	return recorder
}

func testMessage() models.SomeMessage {
	return models.SomeMessage{
		MaxTemperatureDate: models.NewDate(time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC)),
		MaxTemperature:     41,
	}
}

type received struct {
	msg     models.SomeMessage
	traceID trace.TraceID
}

func collectingHandler(out chan<- received) Handler {
	return func(ctx context.Context, msg models.SomeMessage) error {
		out <- received{msg: msg, traceID: trace.SpanContextFromContext(ctx).TraceID()}
		return nil
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	installRecorder(t)
	ctx, span := telemetry.Tracer("test").Start(context.Background(), "request")
	defer span.End()

	env := NewEnvelope(ctx, testMessage())
	data, err := env.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env.MessageID, decoded.MessageID)
	assert.Equal(t, testMessage().MaxTemperature, decoded.Message.MaxTemperature)
	assert.Equal(t, "2025-07-14", decoded.Message.MaxTemperatureDate.String())
	assert.Contains(t, decoded.Headers, "traceparent")
}

func TestDecodeEnvelopeRejectsOtherTypes(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"messageType":"urn:message:Other","message":{}}`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestMemoryBusDeliversWithTraceContext(t *testing.T) {
	recorder := installRecorder(t)
	bus := NewMemoryBus(10, 2, Options{Topic: "some-message"})

	out := make(chan received, 1)
	require.NoError(t, bus.Subscribe(context.Background(), collectingHandler(out)))

	ctx, span := telemetry.Tracer("test").Start(context.Background(), "GET /weatherforecast")
	require.NoError(t, bus.Publish(ctx, testMessage()))
	span.End()

	select {
	case got := <-out:
		assert.Equal(t, testMessage(), got.msg)
		assert.Equal(t, span.SpanContext().TraceID(), got.traceID)
	case <-time.After(5 * time.Second):
		t.Fatal("message was not delivered")
	}

	require.NoError(t, bus.Close())

	kinds := map[string]trace.SpanKind{}
	for _, s := range recorder.Ended() {
		kinds[s.Name()] = s.SpanKind()
	}
	assert.Equal(t, trace.SpanKindProducer, kinds["some-message publish"])
	assert.Equal(t, trace.SpanKindConsumer, kinds["some-message process"])
}

func TestMemoryBusFullAndClosed(t *testing.T) {
	installRecorder(t)
	bus := NewMemoryBus(1, 1, Options{Topic: "some-message"})

	require.NoError(t, bus.Publish(context.Background(), testMessage()))
	assert.ErrorIs(t, bus.Publish(context.Background(), testMessage()), ErrBusFull)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), testMessage()), ErrClosed)
	assert.ErrorIs(t, bus.Subscribe(context.Background(), collectingHandler(nil)), ErrClosed)
	assert.NoError(t, bus.Close())
}

func TestMemoryBusSingleSubscriber(t *testing.T) {
	bus := NewMemoryBus(1, 1, Options{Topic: "some-message"})
	defer bus.Close()

	noop := func(context.Context, models.SomeMessage) error { return nil }
	require.NoError(t, bus.Subscribe(context.Background(), noop))
	assert.ErrorIs(t, bus.Subscribe(context.Background(), noop), ErrAlreadySubscribed)
}

func TestMemoryBusCloseDrainsQueue(t *testing.T) {
	bus := NewMemoryBus(10, 1, Options{Topic: "some-message"})

	var mu sync.Mutex
	handled := 0
	require.NoError(t, bus.Subscribe(context.Background(), func(context.Context, models.SomeMessage) error {
		mu.Lock()
		defer mu.Unlock()
		handled++
		return errors.New("handler failures are not redelivered")
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), testMessage()))
	}
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, handled)
}

func TestRedisBusIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}
	installRecorder(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bus, err := NewRedisBus(ctx, RedisConfig{Addr: addr}, Options{Topic: "some-message-test"})
	require.NoError(t, err)
	defer bus.Close()

	out := make(chan received, 1)
	require.NoError(t, bus.Subscribe(ctx, collectingHandler(out)))

	spanCtx, span := telemetry.Tracer("test").Start(ctx, "request")
	require.NoError(t, bus.Publish(spanCtx, testMessage()))
	span.End()

	select {
	case got := <-out:
		assert.Equal(t, span.SpanContext().TraceID(), got.traceID)
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
}
