package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/jobs"
	"github.com/blogem/otel-poc/models"
	"github.com/blogem/otel-poc/repositories"
	"github.com/blogem/otel-poc/userctx"
)

// RecentAuditEntries is the number of audit entries shown on the dashboard
const RecentAuditEntries = 10

// JobScheduler is the part of the scheduler the dashboard exposes
type JobScheduler interface {
	States() []jobs.JobState
	Trigger(id string) error
}

// AuditReader is the read side of the audit repository
type AuditReader interface {
	GetByID(ctx context.Context, id int64) (*models.AuditEntry, error)
	List(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// DashboardController serves the recurring job dashboard
type DashboardController struct {
	scheduler JobScheduler
	audit     AuditReader
	logger    *zap.Logger
}

// NewDashboardController creates a new dashboard controller
func NewDashboardController(scheduler JobScheduler, audit AuditReader, logger *zap.Logger) *DashboardController {
	return &DashboardController{
		scheduler: scheduler,
		audit:     audit,
		logger:    logger,
	}
}

// Index handles GET /hangfire
func (c *DashboardController) Index(w http.ResponseWriter, r *http.Request) {
	entries, err := c.audit.List(r.Context(), RecentAuditEntries)
	if err != nil {
		c.logger.Error("Failed to list audit entries", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		User         string              `json:"user"`
		Jobs         []jobs.JobState     `json:"recurringJobs"`
		AuditEntries []models.AuditEntry `json:"recentAuditEntries"`
	}{
		User:         userctx.Name(r.Context()),
		Jobs:         c.scheduler.States(),
		AuditEntries: entries,
	})
}

// AuditEntry handles GET /hangfire/audit/{id}
func (c *DashboardController) AuditEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	entry, err := c.audit.GetByID(r.Context(), id)
	if errors.Is(err, repositories.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		c.logger.Error("Failed to get audit entry", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get audit entry")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// Trigger handles POST /hangfire/recurring/{id}/trigger
func (c *DashboardController) Trigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := c.scheduler.Trigger(id); err != nil {
		if errors.Is(err, jobs.ErrUnknownJob) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "triggered"})
}
