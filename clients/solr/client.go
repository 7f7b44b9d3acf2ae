// Package solr pings a Solr core.
package solr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// PingResult is the outcome of a Solr ping
type PingResult struct {
	Status string
	QTime  time.Duration
}

// Pinger checks that the search index answers
type Pinger interface {
	Ping(ctx context.Context) (*PingResult, error)
}

// Client talks to a single Solr core, e.g. http://localhost:8988/solr/gettingstarted
type Client struct {
	resty *resty.Client
}

// NewClient creates a Solr client for coreURL
func NewClient(coreURL string, timeout time.Duration) *Client {
	return &Client{
		resty: resty.New().
			SetBaseURL(coreURL).
			SetTimeout(timeout).
			SetTransport(otelhttp.NewTransport(http.DefaultTransport)),
	}
}

// Ping calls the admin ping handler and reports the server-side query time
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetQueryParam("wt", "json").
		Get("/admin/ping")
	if err != nil {
		return nil, fmt.Errorf("solr ping failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("solr ping returned %s", resp.Status())
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("solr ping returned invalid JSON")
	}

	status := gjson.GetBytes(body, "status").String()
	if status != "" && status != "OK" {
		return nil, fmt.Errorf("solr ping status %q", status)
	}

	return &PingResult{
		Status: status,
		QTime:  time.Duration(gjson.GetBytes(body, "responseHeader.QTime").Int()) * time.Millisecond,
	}, nil
}
