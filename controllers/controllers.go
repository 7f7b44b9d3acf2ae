package controllers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/blogem/otel-poc/clients/codex"
	"github.com/blogem/otel-poc/services"
)

// writeJSON encodes data as the response body with the given status code
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// errorResponse is the body of every JSON error
type errorResponse struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// writeError writes an errorResponse with the status text as title
func writeError(w http.ResponseWriter, statusCode int, detail string) {
	writeJSON(w, statusCode, errorResponse{
		Status: statusCode,
		Title:  http.StatusText(statusCode),
		Detail: detail,
	})
}

// Dependencies are the collaborators the controllers need besides the services
type Dependencies struct {
	Codex     codex.API
	DB        Pinger
	Scheduler JobScheduler
	Audit     AuditReader
	Logger    *zap.Logger
}

// Controllers holds all controller instances
type Controllers struct {
	Auth      *AuthController
	Weather   *WeatherController
	Thema     *ThemaController
	Health    *HealthController
	Dashboard *DashboardController
	OpenAPI   *OpenAPIController
}

// NewControllers creates and initializes all controller instances
func NewControllers(services *services.Services, deps Dependencies) *Controllers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controllers{
		Auth:      NewAuthController(logger),
		Weather:   NewWeatherController(services, logger),
		Thema:     NewThemaController(deps.Codex, logger),
		Health:    NewHealthController(deps.DB),
		Dashboard: NewDashboardController(deps.Scheduler, deps.Audit, logger),
		OpenAPI:   NewOpenAPIController(),
	}
}
