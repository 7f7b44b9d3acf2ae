// Package messaging publishes and consumes SomeMessage over a pluggable bus.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/models"
	"github.com/blogem/otel-poc/telemetry"
)

// SomeMessageType is the message type URN carried in every envelope
const SomeMessageType = "urn:message:OpenTelemetryPoc:SomeMessage"

var (
	// ErrBusFull is returned when the in-memory bus buffer is full
	ErrBusFull = errors.New("message bus buffer is full")
	// ErrClosed is returned when publishing on a closed bus
	ErrClosed = errors.New("message bus is closed")
	// ErrAlreadySubscribed is returned on a second Subscribe call
	ErrAlreadySubscribed = errors.New("message bus already has a subscriber")
)

// Handler processes one consumed message
type Handler func(ctx context.Context, msg models.SomeMessage) error

// Publisher publishes SomeMessage
type Publisher interface {
	Publish(ctx context.Context, msg models.SomeMessage) error
}

// Bus is a transport that can publish and deliver messages to one handler
type Bus interface {
	Publisher
	// Subscribe starts delivering messages to handler until ctx is done or the bus closes
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// Envelope wraps a message with its metadata and trace headers
type Envelope struct {
	MessageID   string             `json:"messageId"`
	MessageType string             `json:"messageType"`
	SentTime    time.Time          `json:"sentTime"`
	Headers     map[string]string  `json:"headers,omitempty"`
	Message     models.SomeMessage `json:"message"`
}

// NewEnvelope wraps msg, injecting the trace context of ctx
func NewEnvelope(ctx context.Context, msg models.SomeMessage) Envelope {
	return Envelope{
		MessageID:   uuid.NewString(),
		MessageType: SomeMessageType,
		SentTime:    time.Now().UTC(),
		Headers:     telemetry.InjectMap(ctx),
		Message:     msg,
	}
}

// Encode marshals the envelope
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope unmarshals and validates an envelope
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.MessageType != SomeMessageType {
		return Envelope{}, fmt.Errorf("unexpected message type %q", env.MessageType)
	}
	return env, nil
}

// Options are shared by all bus implementations
type Options struct {
	Topic   string
	Logger  *zap.Logger
	Metrics *telemetry.Metrics
}

// instrumentation traces, logs and counts publish and consume operations
type instrumentation struct {
	broker  string
	topic   string
	tracer  trace.Tracer
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

func newInstrumentation(broker string, opts Options) instrumentation {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return instrumentation{
		broker:  broker,
		topic:   opts.Topic,
		tracer:  telemetry.Tracer(telemetry.MessagingSourceName),
		logger:  logger.Named("messaging").With(zap.String("broker", broker), zap.String("topic", opts.Topic)),
		metrics: opts.Metrics,
	}
}

func (in instrumentation) attributes(operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.system", in.broker),
		attribute.String("messaging.destination.name", in.topic),
		attribute.String("messaging.operation", operation),
	}
}

// publish opens a producer span, builds the envelope inside it and hands it to send
func (in instrumentation) publish(ctx context.Context, msg models.SomeMessage, send func(context.Context, Envelope) error) error {
	ctx, span := in.tracer.Start(ctx, in.topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(in.attributes("publish")...),
	)
	defer span.End()

	env := NewEnvelope(ctx, msg)
	span.SetAttributes(attribute.String("messaging.message.id", env.MessageID))

	err := send(ctx, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.WithTrace(ctx, in.logger).Warn("failed to publish message", zap.Error(err))
	}
	if in.metrics != nil {
		in.metrics.MessagesPublished.WithLabelValues(in.broker, telemetry.StatusLabel(err)).Inc()
	}
	return err
}

// deliver runs handler for env inside a consumer span parented on the producer
func (in instrumentation) deliver(ctx context.Context, env Envelope, handler Handler) error {
	ctx = telemetry.ExtractMap(ctx, env.Headers)
	ctx, span := in.tracer.Start(ctx, in.topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(in.attributes("process")...),
		trace.WithAttributes(attribute.String("messaging.message.id", env.MessageID)),
	)
	defer span.End()

	err := handler(ctx, env.Message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.WithTrace(ctx, in.logger).Error("message handler failed",
			zap.String("message_id", env.MessageID),
			zap.Error(err),
		)
	}
	if in.metrics != nil {
		in.metrics.MessagesConsumed.WithLabelValues(telemetry.StatusLabel(err)).Inc()
	}
	return err
}
