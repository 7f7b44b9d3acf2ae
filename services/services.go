package services

import (
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/clients/solr"
	"github.com/blogem/otel-poc/messaging"
	"github.com/blogem/otel-poc/repositories"
	"github.com/blogem/otel-poc/telemetry"
)

// Services holds all service instances
type Services struct {
	Weather WeatherService
}

// NewServices creates and initializes all service instances.
// pinger is nil when no Solr core is configured.
func NewServices(
	repos *repositories.Repositories,
	publisher messaging.Publisher,
	pinger solr.Pinger,
	logger *zap.Logger,
	metrics *telemetry.Metrics,
) *Services {
	return &Services{
		Weather: NewWeatherService(repos.Audit, publisher, pinger, logger, metrics),
	}
}
