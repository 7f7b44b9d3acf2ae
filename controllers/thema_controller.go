package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/clients/codex"
	"github.com/blogem/otel-poc/telemetry"
)

// ThemaController proxies the Codex thema lookup
type ThemaController struct {
	codex  codex.API
	logger *zap.Logger
}

// NewThemaController creates a new thema controller
func NewThemaController(api codex.API, logger *zap.Logger) *ThemaController {
	return &ThemaController{
		codex:  api,
		logger: logger.Named("ThemaController"),
	}
}

// Get handles GET /thema/{id}
func (c *ThemaController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	thema, err := c.codex.GetThema(r.Context(), id)
	switch {
	case errors.Is(err, codex.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		telemetry.WithTrace(r.Context(), c.logger).Warn("codex call failed", zap.Int("id", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, "the Codex API could not be reached")
		return
	}

	writeJSON(w, http.StatusOK, thema)
}
