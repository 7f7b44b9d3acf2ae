package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Service   ServiceConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Messaging MessagingConfig
	Jobs      JobsConfig
	Codex     CodexConfig
	Solr      SolrConfig
	Tracing   TracingConfig
	Logging   LogConfig
	Auth      AuthConfig
}

// ServiceConfig identifies the running service in traces and logs.
type ServiceConfig struct {
	Name        string `envconfig:"SERVICE_NAME" default:"OpenTelemetryPoc"`
	Version     string `envconfig:"SERVICE_VERSION" default:"1.0.0"`
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// TrustForwardedHeaders takes the client address from X-Forwarded-For
	// and X-Real-IP. Enable it only behind a reverse proxy.
	TrustForwardedHeaders bool `envconfig:"TRUST_FORWARDED_HEADERS" default:"false"`
}

// DatabaseConfig selects the audit store.
type DatabaseConfig struct {
	Driver         string `envconfig:"DB_DRIVER" default:"sqlite3"`
	DSN            string `envconfig:"DB_DSN" default:"audit.db"`
	RecreateSchema bool   `envconfig:"DB_RECREATE_SCHEMA" default:"false"`
}

// MessagingConfig selects the message bus transport.
type MessagingConfig struct {
	Broker        string   `envconfig:"MESSAGE_BROKER" default:"memory"`
	Topic         string   `envconfig:"MESSAGE_TOPIC" default:"some-message"`
	ConsumerGroup string   `envconfig:"MESSAGE_CONSUMER_GROUP" default:"OpenTelemetryPoc"`
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	RedisAddr     string   `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string   `envconfig:"REDIS_PASSWORD"`
	BufferSize    int      `envconfig:"MEMORY_BUS_BUFFER" default:"100"`
	Workers       int      `envconfig:"MEMORY_BUS_WORKERS" default:"4"`
}

// JobsConfig holds the recurring job schedules.
type JobsConfig struct {
	Enabled  bool   `envconfig:"JOBS_ENABLED" default:"true"`
	Schedule string `envconfig:"JOB_SCHEDULE" default:"* * * * *"`
	ThemaID  int    `envconfig:"JOB_THEMA_ID" default:"1000142"`
}

// CodexConfig points at the Codex open data API.
type CodexConfig struct {
	BaseURL string        `envconfig:"CODEX_BASE_URL" default:"https://codex.opendata.api.vlaanderen.be:443/api"`
	Timeout time.Duration `envconfig:"CODEX_TIMEOUT" default:"30s"`
}

// SolrConfig points at a Solr core. An empty URL disables the ping.
type SolrConfig struct {
	URL     string        `envconfig:"SOLR_URL"`
	Timeout time.Duration `envconfig:"SOLR_TIMEOUT" default:"5s"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Exporter     string   `envconfig:"TRACES_EXPORTER" default:"otlp"`
	OTLPEndpoint string   `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SamplingRate float64  `envconfig:"TRACE_SAMPLING_RATE" default:"1.0"`
	KafkaBrokers []string `envconfig:"TRACES_KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TRACES_TOPIC" default:"traces.application"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level    string `envconfig:"LOG_LEVEL" default:"info"`
	FilePath string `envconfig:"LOG_FILE_PATH"`
}

// AuthConfig enables OpenID Connect login for the job dashboard.
// The dashboard falls back to loopback-only access when Domain is empty.
type AuthConfig struct {
	Domain       string `envconfig:"OIDC_DOMAIN"`
	ClientID     string `envconfig:"OIDC_CLIENT_ID"`
	ClientSecret string `envconfig:"OIDC_CLIENT_SECRET"`
	CallbackURL  string `envconfig:"OIDC_CALLBACK_URL"`
	SecureCookie bool   `envconfig:"USE_HTTPS" default:"false"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// A missing .env file is fine, the environment alone is enough.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite3 or postgres)", c.Database.Driver)
	}

	switch c.Messaging.Broker {
	case "memory", "redis":
	case "kafka":
		if len(c.Messaging.KafkaBrokers) == 0 {
			return fmt.Errorf("MESSAGE_BROKER=kafka requires KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unsupported MESSAGE_BROKER %q (want memory, kafka or redis)", c.Messaging.Broker)
	}

	switch c.Tracing.Exporter {
	case "otlp", "stdout", "none":
	case "kafka":
		if len(c.Tracing.brokers(c.Messaging.KafkaBrokers)) == 0 {
			return fmt.Errorf("TRACES_EXPORTER=kafka requires TRACES_KAFKA_BROKERS or KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unsupported TRACES_EXPORTER %q", c.Tracing.Exporter)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("TRACE_SAMPLING_RATE must be within [0,1], got %v", c.Tracing.SamplingRate)
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Service.Environment, "development")
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// TraceKafkaBrokers returns the brokers used by the Kafka span exporter,
// falling back to the message bus brokers.
func (c *Config) TraceKafkaBrokers() []string {
	return c.Tracing.brokers(c.Messaging.KafkaBrokers)
}

func (t TracingConfig) brokers(fallback []string) []string {
	if len(t.KafkaBrokers) > 0 {
		return t.KafkaBrokers
	}
	return fallback
}

// OIDCEnabled reports whether dashboard login is configured.
func (a AuthConfig) OIDCEnabled() bool {
	return a.Domain != ""
}
