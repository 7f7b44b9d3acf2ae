package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/blogem/otel-poc/config"
	"github.com/blogem/otel-poc/models"
	"github.com/blogem/otel-poc/telemetry"
)

// AppTestSuite runs the wired application against an in-memory bus, a
// temporary SQLite database and a fake Codex API.
type AppTestSuite struct {
	suite.Suite
	recorder *tracetest.SpanRecorder
	logs     *observer.ObservedLogs
	upstream *httptest.Server
	themaIDs chan string
	app      *app
	server   *httptest.Server
}

func (s *AppTestSuite) SetupTest() {
	s.themaIDs = make(chan string, 10)
	s.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.themaIDs <- strings.TrimPrefix(r.URL.Path, "/api/Thema/")
		switch r.URL.Path {
		case "/api/Thema/1000142":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":1000142,"omschrijving":"Mobiliteit en Openbare Werken","extra":"ignored"}`)
		default:
			http.NotFound(w, r)
		}
	}))

	t := s.T()
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DB_DSN", filepath.Join(t.TempDir(), "audit.db"))
	t.Setenv("MESSAGE_BROKER", "memory")
	t.Setenv("TRACES_EXPORTER", "none")
	t.Setenv("JOBS_ENABLED", "false")
	t.Setenv("CODEX_BASE_URL", s.upstream.URL+"/api")
	cfg, err := config.Load()
	s.Require().NoError(err)

	s.recorder = tracetest.NewSpanRecorder()
	telemetry.Install(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.recorder)))

	core, logs := observer.New(zapcore.InfoLevel)
	s.logs = logs

	s.app, err = newApp(context.Background(), cfg, zap.New(core))
	s.Require().NoError(err)
	s.server = httptest.NewServer(s.app.router)
}

func (s *AppTestSuite) TearDownTest() {
	s.server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.app.close(ctx)
	s.upstream.Close()
}

func (s *AppTestSuite) get(path string) *http.Response {
	resp, err := s.server.Client().Get(s.server.URL + path)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *AppTestSuite) auditCount() int {
	var n int
	s.Require().NoError(s.app.db.Get(&n, `SELECT COUNT(*) FROM "AuditEntries"`))
	return n
}

func (s *AppTestSuite) TestWeatherForecastReturnsFiveDays() {
	resp := s.get("/weatherforecast?shouldError=false")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var forecasts []struct {
		Date         string `json:"date"`
		TemperatureC int    `json:"temperatureC"`
		TemperatureF int    `json:"temperatureF"`
		Summary      string `json:"summary"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&forecasts))
	s.Require().Len(forecasts, 5)

	for _, f := range forecasts {
		s.GreaterOrEqual(f.TemperatureC, models.MinTemperatureC)
		s.Less(f.TemperatureC, models.MaxTemperatureC)
		s.NotEmpty(f.Summary)
		_, err := models.ParseDate(f.Date)
		s.NoError(err)
	}
}

func (s *AppTestSuite) TestEachForecastWritesOneAuditEntry() {
	before := s.auditCount()

	s.Equal(http.StatusOK, s.get("/weatherforecast").StatusCode)
	s.Equal(before+1, s.auditCount())

	entries, err := s.app.db.QueryxContext(context.Background(), `SELECT method, raw_url FROM "AuditEntries"`)
	s.Require().NoError(err)
	defer entries.Close()
	s.Require().True(entries.Next())
	var method, rawURL string
	s.Require().NoError(entries.Scan(&method, &rawURL))
	s.Equal(http.MethodGet, method)
	s.Equal("/weatherforecast", rawURL)

	audit := s.spanNamed("Audit logging")
	s.Require().NotNil(audit)
	s.Contains(audit.Attributes(), telemetry.AuditEntryIDKey.Int64(1))
}

func (s *AppTestSuite) TestShouldErrorFails() {
	before := s.auditCount()

	resp := s.get("/weatherforecast?shouldError=true")
	s.Equal(http.StatusInternalServerError, resp.StatusCode)
	s.Equal(before, s.auditCount())

	span := s.spanNamed("GET /weatherforecast")
	s.Require().NotNil(span)
	s.Require().NotEmpty(span.Events())
	var names []string
	for _, e := range span.Events() {
		names = append(names, e.Name)
	}
	s.Contains(names, "exception")

	requests := s.logs.FilterMessage("HTTP request").All()
	s.Require().Len(requests, 1)
	s.Equal(int64(http.StatusInternalServerError), requests[0].ContextMap()["status"])
	s.Equal(1, s.logs.FilterMessage("Unhandled exception").Len())

	metrics, err := io.ReadAll(s.get("/metrics").Body)
	s.Require().NoError(err)
	s.Contains(string(metrics), `http_requests_total{method="GET",path="/weatherforecast",status="500"} 1`)
}

func (s *AppTestSuite) TestAuditIgnoresForwardedHeadersByDefault() {
	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/weatherforecast", nil)
	s.Require().NoError(err)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var ip string
	s.Require().NoError(s.app.db.Get(&ip, `SELECT ip_address FROM "AuditEntries"`))
	s.Equal("127.0.0.1", ip)
}

func (s *AppTestSuite) TestInvalidShouldError() {
	s.Equal(http.StatusBadRequest, s.get("/weatherforecast?shouldError=sometimes").StatusCode)
}

func (s *AppTestSuite) TestConsumerReceivesMessage() {
	s.Require().Equal(http.StatusOK, s.get("/weatherforecast").StatusCode)

	s.Eventually(func() bool {
		return s.logs.FilterMessage("1 audit entries in the database at the moment").Len() == 1
	}, 5*time.Second, 50*time.Millisecond)

	consumed := s.logs.FilterMessage("Consuming some message").All()
	s.Require().Len(consumed, 1)

	request := s.spanNamed("GET /weatherforecast")
	s.Require().NotNil(request)
	s.Equal(request.SpanContext().TraceID().String(), consumed[0].ContextMap()["trace_id"])
}

func (s *AppTestSuite) TestThemaPassThrough() {
	resp := s.get("/thema/1000142")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.JSONEq(`{"id":1000142,"omschrijving":"Mobiliteit en Openbare Werken"}`, string(body))

	s.Equal("1000142", <-s.themaIDs)

	s.Equal(http.StatusNotFound, s.get("/thema/1").StatusCode)
	s.Equal("1", <-s.themaIDs)

	s.Equal(http.StatusNotFound, s.get("/thema/-1").StatusCode)
	s.Equal("-1", <-s.themaIDs)

	s.Equal(http.StatusNotFound, s.get("/thema/abc").StatusCode)
	s.Empty(s.themaIDs)
}

func (s *AppTestSuite) TestHealth() {
	resp := s.get("/health")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var report struct {
		Status string `json:"status"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&report))
	s.Equal("Healthy", report.Status)
	s.Nil(s.spanNamed("GET /health"))
}

func (s *AppTestSuite) TestDashboardFromLoopback() {
	resp := s.get("/hangfire")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), `"id":"some-recurring-job"`)
	s.Contains(string(body), `"schedule":"* * * * *"`)
	s.Contains(string(body), `"recentAuditEntries":[]`)

	s.Require().Equal(http.StatusOK, s.get("/weatherforecast").StatusCode)

	body, err = io.ReadAll(s.get("/hangfire").Body)
	s.Require().NoError(err)
	s.Contains(string(body), `"recentAuditEntries":[{"id":1,"rawUrl":"/weatherforecast","method":"GET","ipAddress":"127.0.0.1"}]`)

	entry, err := io.ReadAll(s.get("/hangfire/audit/1").Body)
	s.Require().NoError(err)
	s.JSONEq(`{"id":1,"rawUrl":"/weatherforecast","method":"GET","ipAddress":"127.0.0.1"}`, string(entry))
	s.Equal(http.StatusNotFound, s.get("/hangfire/audit/2").StatusCode)
}

func (s *AppTestSuite) TestMetricsAndOpenAPI() {
	s.Require().Equal(http.StatusOK, s.get("/weatherforecast").StatusCode)

	resp := s.get("/metrics")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), `http_requests_total{method="GET",path="/weatherforecast",status="200"} 1`)
	s.Contains(string(body), "audit_entries_written_total 1")

	s.Equal(http.StatusOK, s.get("/openapi/v1.json").StatusCode)
}

func (s *AppTestSuite) spanNamed(name string) sdktrace.ReadOnlySpan {
	for _, span := range s.recorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}

func TestCloseDrainsQueuedMessages(t *testing.T) {
	t.Setenv("DB_DSN", filepath.Join(t.TempDir(), "audit.db"))
	t.Setenv("TRACES_EXPORTER", "none")
	t.Setenv("JOBS_ENABLED", "false")
	cfg, err := config.Load()
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	a, err := newApp(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)

	msg := models.SomeMessage{MaxTemperatureDate: models.NewDate(time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)), MaxTemperature: 20}
	require.NoError(t, a.bus.Publish(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.close(ctx)

	assert.Equal(t, 1, logs.FilterMessage("Consuming some message").Len())
	assert.Equal(t, 1, logs.FilterMessage("0 audit entries in the database at the moment").Len())
	assert.Zero(t, logs.FilterMessage("message handler failed").Len())
}

func TestCloseCancelsConsumersWhenDeadlinePasses(t *testing.T) {
	t.Setenv("DB_DSN", filepath.Join(t.TempDir(), "audit.db"))
	t.Setenv("TRACES_EXPORTER", "none")
	t.Setenv("JOBS_ENABLED", "false")
	cfg, err := config.Load()
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	a, err := newApp(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)

	require.NoError(t, a.bus.Publish(context.Background(), models.SomeMessage{MaxTemperature: 20}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	a.close(ctx)

	assert.Less(t, time.Since(start), 600*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("Message bus did not drain in time, cancelling consumers").Len())
	assert.Zero(t, logs.FilterMessage("Consuming some message").Len())
}

func TestOpenAPIHiddenOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_DSN", filepath.Join(t.TempDir(), "audit.db"))
	t.Setenv("TRACES_EXPORTER", "none")
	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.close(context.Background())

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi/v1.json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// httptest requests come from 192.0.2.1, which is not loopback
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hangfire", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "some-recurring-job"))
}
