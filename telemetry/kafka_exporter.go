package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/IBM/sarama"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// KafkaExporter exports finished spans as JSON records to a Kafka topic
type KafkaExporter struct {
	producer    sarama.AsyncProducer
	topic       string
	serviceName string
	mu          sync.Mutex
	closed      bool
}

// KafkaExporterConfig holds exporter configuration
type KafkaExporterConfig struct {
	ServiceName string
	Brokers     []string
	Topic       string
}

// NewKafkaExporter creates a new Kafka span exporter
func NewKafkaExporter(cfg KafkaExporterConfig) (*KafkaExporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no Kafka brokers configured")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}

	return newKafkaExporter(producer, cfg), nil
}

func newKafkaExporter(producer sarama.AsyncProducer, cfg KafkaExporterConfig) *KafkaExporter {
	exp := &KafkaExporter{
		producer:    producer,
		topic:       cfg.Topic,
		serviceName: cfg.ServiceName,
	}
	go exp.handleErrors()
	return exp
}

// ExportSpans implements sdktrace.SpanExporter. Spans are dropped when the
// producer input channel is full.
func (e *KafkaExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}

	for _, span := range spans {
		data, err := e.spanToJSON(span)
		if err != nil {
			continue
		}

		msg := &sarama.ProducerMessage{
			Topic:     e.topic,
			Key:       sarama.StringEncoder(span.SpanContext().TraceID().String()),
			Value:     sarama.ByteEncoder(data),
			Timestamp: time.Now(),
		}

		select {
		case e.producer.Input() <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}

// Shutdown implements sdktrace.SpanExporter
func (e *KafkaExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	return e.producer.Close()
}

func (e *KafkaExporter) spanToJSON(span sdktrace.ReadOnlySpan) ([]byte, error) {
	sc := span.SpanContext()

	attrs := make(map[string]interface{})
	for _, attr := range span.Attributes() {
		attrs[string(attr.Key)] = attr.Value.AsInterface()
	}

	events := make([]map[string]interface{}, 0, len(span.Events()))
	for _, event := range span.Events() {
		eventAttrs := make(map[string]interface{})
		for _, attr := range event.Attributes {
			eventAttrs[string(attr.Key)] = attr.Value.AsInterface()
		}
		events = append(events, map[string]interface{}{
			"name":       event.Name,
			"timestamp":  event.Time.UnixNano(),
			"attributes": eventAttrs,
		})
	}

	return json.Marshal(map[string]interface{}{
		"trace_id":    sc.TraceID().String(),
		"span_id":     sc.SpanID().String(),
		"parent_id":   span.Parent().SpanID().String(),
		"name":        span.Name(),
		"kind":        span.SpanKind().String(),
		"start_time":  span.StartTime().UnixNano(),
		"end_time":    span.EndTime().UnixNano(),
		"duration_ms": span.EndTime().Sub(span.StartTime()).Milliseconds(),
		"status":      span.Status().Code.String(),
		"service":     e.serviceName,
		"attributes":  attrs,
		"events":      events,
	})
}

func (e *KafkaExporter) handleErrors() {
	for err := range e.producer.Errors() {
		os.Stderr.WriteString("Kafka trace exporter error: " + err.Error() + "\n")
	}
}
