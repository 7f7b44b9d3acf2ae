package controllers

import (
	"context"
	"net/http"
	"time"
)

// HealthCheckTimeout bounds each dependency check
const HealthCheckTimeout = 2 * time.Second

// Pinger is a dependency that can report its liveness
type Pinger interface {
	PingContext(ctx context.Context) error
}

type checkResult struct {
	Status     string  `json:"status"`
	DurationMs float64 `json:"durationMs"`
	Error      string  `json:"error,omitempty"`
}

type healthReport struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks"`
}

// HealthController reports database reachability
type HealthController struct {
	db Pinger
}

// NewHealthController creates a new health controller
func NewHealthController(db Pinger) *HealthController {
	return &HealthController{db: db}
}

// Check handles GET /health
func (c *HealthController) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	started := time.Now()
	err := c.db.PingContext(ctx)
	result := checkResult{
		Status:     "Healthy",
		DurationMs: float64(time.Since(started).Microseconds()) / 1000,
	}
	if err != nil {
		result.Status = "Unhealthy"
		result.Error = err.Error()
	}

	report := healthReport{
		Status: result.Status,
		Checks: map[string]checkResult{"database": result},
	}

	statusCode := http.StatusOK
	if err != nil {
		statusCode = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, statusCode, report)
}
