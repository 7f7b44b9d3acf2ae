// Package codex is a client for the Codex open data API of the Flemish government.
package codex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/blogem/otel-poc/models"
)

// ErrNotFound is returned when the API has no thema for the requested id
var ErrNotFound = errors.New("thema not found")

// API describes the Codex endpoints the service uses
type API interface {
	GetThema(ctx context.Context, id int) (*models.Thema, error)
}

// Client calls the Codex API over resty. The transport is instrumented, so
// each call produces a client span and propagates the trace context.
type Client struct {
	resty *resty.Client
}

// NewClient creates a Codex client for baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	restyClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "OpenTelemetryPoc/1.0").
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))

	return &Client{resty: restyClient}
}

// GetThema performs GET /Thema/{id}
func (c *Client) GetThema(ctx context.Context, id int) (*models.Thema, error) {
	var thema models.Thema

	resp, err := c.resty.R().
		SetContext(ctx).
		SetPathParam("id", strconv.Itoa(id)).
		SetResult(&thema).
		Get("/Thema/{id}")
	if err != nil {
		return nil, fmt.Errorf("codex request failed: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("thema %d: %w", id, ErrNotFound)
	case resp.IsError():
		return nil, fmt.Errorf("codex returned %s for thema %d", resp.Status(), id)
	}

	return &thema, nil
}
