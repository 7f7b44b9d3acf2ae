// Package telemetry bootstraps tracing, logging and metrics for the service.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/blogem/otel-poc/config"
	"github.com/blogem/otel-poc/models"
)

// Instrumentation scopes used across the service
const (
	AuditSourceName     = "audit-source"
	HTTPSourceName      = "http-server"
	MessagingSourceName = "messaging"
	JobsSourceName      = "jobs"
)

// Span attribute keys owned by this service
const (
	AuditEntryIDKey = attribute.Key("audit.entry.id")
	StartupKey      = attribute.Key("Startup")
	AppVersionKey   = attribute.Key("AppVersion")
)

// TracerProvider wraps the OpenTelemetry TracerProvider
type TracerProvider struct {
	*sdktrace.TracerProvider
}

// NewTracerProvider builds the tracer provider for the configured exporter
// and installs it, together with the W3C propagators, as the global provider.
func NewTracerProvider(ctx context.Context, cfg *config.Config) (*TracerProvider, error) {
	res, err := NewResource(cfg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SamplingRate))),
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	Install(tp)

	return &TracerProvider{tp}, nil
}

// Install sets tp and the TraceContext/Baggage propagator as process globals
func Install(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// NewResource describes the service, including startup time and app version
func NewResource(cfg *config.Config, startedAt time.Time) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.Service.Name),
			semconv.ServiceVersion(cfg.Service.Version),
			semconv.DeploymentEnvironment(cfg.Service.Environment),
			StartupKey.String(models.FormatDateTime(startedAt)),
			AppVersionKey.String(cfg.Service.Version),
		),
	)
}

func newExporter(ctx context.Context, cfg *config.Config) (sdktrace.SpanExporter, error) {
	switch cfg.Tracing.Exporter {
	case "otlp":
		var opts []otlptracehttp.Option
		if cfg.Tracing.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Tracing.OTLPEndpoint))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exp, nil
	case "kafka":
		exp, err := NewKafkaExporter(KafkaExporterConfig{
			ServiceName: cfg.Service.Name,
			Brokers:     cfg.TraceKafkaBrokers(),
			Topic:       cfg.Tracing.KafkaTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka exporter: %w", err)
		}
		return exp, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Tracing.Exporter)
	}
}

// Shutdown flushes pending spans and stops the exporters
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.TracerProvider.Shutdown(ctx)
}

// Tracer returns a tracer from the global provider
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
