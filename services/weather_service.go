package services

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/clients/solr"
	"github.com/blogem/otel-poc/messaging"
	"github.com/blogem/otel-poc/models"
	"github.com/blogem/otel-poc/repositories"
	"github.com/blogem/otel-poc/telemetry"
)

// ForecastDays is the number of days in a forecast
const ForecastDays = 5

// ForecastRequest carries the request data recorded in the audit log
type ForecastRequest struct {
	ShouldError bool
	RawURL      string
	Method      string
	IPAddress   string
}

// WeatherService interface defines the forecast operation
type WeatherService interface {
	Forecast(ctx context.Context, req ForecastRequest) ([]models.WeatherForecast, error)
}

// weatherService implements WeatherService interface
type weatherService struct {
	auditRepo repositories.AuditRepository
	publisher messaging.Publisher
	solr      solr.Pinger
	logger    *zap.Logger
	metrics   *telemetry.Metrics
	auditTr   trace.Tracer

	intN  func(n int) int
	today func() models.Date
}

// NewWeatherService creates a new weather service. pinger may be nil.
func NewWeatherService(
	auditRepo repositories.AuditRepository,
	publisher messaging.Publisher,
	pinger solr.Pinger,
	logger *zap.Logger,
	metrics *telemetry.Metrics,
) WeatherService {
	return &weatherService{
		auditRepo: auditRepo,
		publisher: publisher,
		solr:      pinger,
		logger:    logger.Named("WeatherService"),
		metrics:   metrics,
		auditTr:   telemetry.Tracer(telemetry.AuditSourceName),
		intN:      rand.Intn,
		today:     models.Today,
	}
}

// Forecast generates the forecast, records the request in the audit log and
// publishes the hottest day. With ShouldError set it panics on an integer
// division by zero before anything is written.
func (s *weatherService) Forecast(ctx context.Context, req ForecastRequest) ([]models.WeatherForecast, error) {
	span := trace.SpanFromContext(ctx)
	logger := telemetry.WithTrace(ctx, s.logger)

	forecasts := s.generate()

	logger.Info("This log line is from zap", zap.String("source", "zap"))
	span.AddEvent("Weather forecast requested (as span/activity event)")
	logger.Info(fmt.Sprintf("Weather forecast requested (as log event) should error: `%t`", req.ShouldError),
		zap.Bool("should_error", req.ShouldError),
	)

	if req.ShouldError {
		zero, _ := strconv.Atoi("0")
		_ = 1 / zero
	}

	if err := s.writeAudit(ctx, req); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, models.NewSomeMessage(forecasts)); err != nil {
		return nil, fmt.Errorf("failed to publish forecast message: %w", err)
	}

	if s.solr != nil {
		result, err := s.solr.Ping(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to ping solr: %w", err)
		}
		logger.Info(fmt.Sprintf("Got a response from Solr in %dms", result.QTime.Milliseconds()),
			zap.Int64("response_time_ms", result.QTime.Milliseconds()),
		)
	}

	span.SetStatus(codes.Ok, "")
	return forecasts, nil
}

func (s *weatherService) generate() []models.WeatherForecast {
	today := s.today()
	forecasts := make([]models.WeatherForecast, ForecastDays)
	for i := range forecasts {
		forecasts[i] = models.WeatherForecast{
			Date:         today.AddDays(i + 1),
			TemperatureC: models.MinTemperatureC + s.intN(models.MaxTemperatureC-models.MinTemperatureC),
			Summary:      models.Summaries[s.intN(len(models.Summaries))],
		}
	}
	return forecasts
}

func (s *weatherService) writeAudit(ctx context.Context, req ForecastRequest) error {
	ctx, span := s.auditTr.Start(ctx, "Audit logging")
	defer span.End()

	telemetry.WithTrace(ctx, s.logger).Info("Saving to audit log...")

	ip := req.IPAddress
	if ip == "" {
		ip = models.UnknownIPAddress
	}
	entry := &models.AuditEntry{
		RawURL:    req.RawURL,
		Method:    req.Method,
		IPAddress: ip,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	span.SetAttributes(telemetry.AuditEntryIDKey.Int64(entry.ID))
	if s.metrics != nil {
		s.metrics.AuditEntriesWritten.Inc()
	}
	return nil
}
