package controllers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/blogem/otel-poc/middleware"
	"github.com/blogem/otel-poc/services"
	"github.com/blogem/otel-poc/telemetry"
)

// WeatherController handles the forecast endpoint
type WeatherController struct {
	services *services.Services
	logger   *zap.Logger
}

// NewWeatherController creates a new weather controller
func NewWeatherController(services *services.Services, logger *zap.Logger) *WeatherController {
	return &WeatherController{
		services: services,
		logger:   logger.Named("WeatherController"),
	}
}

// Get handles GET /weatherforecast?shouldError=<bool>
func (c *WeatherController) Get(w http.ResponseWriter, r *http.Request) {
	shouldError := false
	if raw := r.URL.Query().Get("shouldError"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "shouldError must be a boolean")
			return
		}
		shouldError = parsed
	}

	forecasts, err := c.services.Weather.Forecast(r.Context(), services.ForecastRequest{
		ShouldError: shouldError,
		RawURL:      r.URL.RequestURI(),
		Method:      r.Method,
		IPAddress:   middleware.ClientIP(r),
	})
	if err != nil {
		telemetry.WithTrace(r.Context(), c.logger).Error("weather forecast failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	writeJSON(w, http.StatusOK, forecasts)
}
