// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, Load returns an
// error and the process exits.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the notification service.
type Config struct {
	Port        string `env:"NOTIFY_PORT" envDefault:"8083"`
	GRPCPort    string `env:"NOTIFY_GRPC_PORT" envDefault:"9083"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`

	MigrateOnStart bool `env:"MIGRATE_ON_START" envDefault:"false"`

	Digest DigestConfig
	Events EventsConfig
	Email  EmailConfig
	Otel   OtelConfig
}

// DigestConfig drives the digest runner and its background scheduler.
type DigestConfig struct {
	IntervalMinutes    int  `env:"DIGEST_INTERVAL_MINUTES" envDefault:"5"`
	MinIntervalMinutes int  `env:"DIGEST_MIN_INTERVAL_MINUTES" envDefault:"60"`
	MaxContractors     int  `env:"DIGEST_MAX_CONTRACTORS" envDefault:"200"`
	MaxBatchSize       int  `env:"DIGEST_MAX_BATCH_SIZE" envDefault:"25"`
	IsolateFailures    bool `env:"DIGEST_ISOLATE_FAILURES" envDefault:"true"`
	SchedulerEnabled   bool `env:"SCHEDULER_ENABLED" envDefault:"true"`
	LockEnabled        bool `env:"SCHEDULER_LOCK_ENABLED" envDefault:"false"`
}

// EventsConfig controls the in-process bus and its optional outbound sinks.
type EventsConfig struct {
	IsolateHandlers bool   `env:"EVENTS_ISOLATE_HANDLERS" envDefault:"false"`
	RabbitURL       string `env:"RABBIT_URL"`
	Exchange        string `env:"EVENTS_EXCHANGE" envDefault:"marketplace.events"`
}

// EmailConfig holds Mailgun settings. With Enabled=false or no Mailgun
// credentials, mail is written to the log instead of being sent.
type EmailConfig struct {
	Enabled       bool   `env:"EMAIL_ENABLED" envDefault:"false"`
	MailgunDomain string `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey string `env:"MAILGUN_API_KEY"`
	FromAddress   string `env:"EMAIL_FROM_ADDRESS" envDefault:"no-reply@builderpulse.app"`
	FromName      string `env:"EMAIL_FROM_NAME" envDefault:"BuilderPulse"`
	AppBaseURL    string `env:"APP_BASE_URL" envDefault:"https://builderpulse.app"`
	// TestMode has Mailgun accept messages without delivering them.
	TestMode bool `env:"MAILGUN_TEST_MODE" envDefault:"false"`
}

// IsConfigured reports whether Mailgun credentials are present.
func (c EmailConfig) IsConfigured() bool {
	return c.MailgunDomain != "" && c.MailgunAPIKey != ""
}

// OtelConfig holds OpenTelemetry settings. Tracing is off when
// ExporterEndpoint is empty.
type OtelConfig struct {
	ExporterEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName      string `env:"OTEL_SERVICE_NAME" envDefault:"notification-service"`
}

// Enabled returns true when an OTLP endpoint is configured.
func (c OtelConfig) Enabled() bool { return c.ExporterEndpoint != "" }

// DigestInterval is the scheduler cadence, never below one minute.
func (c DigestConfig) DigestInterval() time.Duration {
	return floorMinutes(c.IntervalMinutes)
}

// MinDigestInterval is the per-contractor gating window, never below one minute.
func (c DigestConfig) MinDigestInterval() time.Duration {
	return floorMinutes(c.MinIntervalMinutes)
}

func floorMinutes(m int) time.Duration {
	if m < 1 {
		m = 1
	}
	return time.Duration(m) * time.Minute
}

// Load reads an optional .env file, then environment variables, and returns
// a validated Config.
func Load() (*Config, error) {
	if path := os.Getenv("NOTIFY_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, errors.Wrapf(err, "load env file %q", path)
		}
	} else {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Digest.LockEnabled && c.RedisURL == "" {
		return errors.New("REDIS_URL is required when SCHEDULER_LOCK_ENABLED=true")
	}
	if c.Digest.MaxContractors < 1 {
		return errors.Newf("DIGEST_MAX_CONTRACTORS must be a positive integer, got %d", c.Digest.MaxContractors)
	}
	if c.Digest.MaxBatchSize < 1 {
		return errors.Newf("DIGEST_MAX_BATCH_SIZE must be a positive integer, got %d", c.Digest.MaxBatchSize)
	}
	if c.Email.Enabled && !c.Email.IsConfigured() {
		return errors.New("MAILGUN_DOMAIN and MAILGUN_API_KEY are required when EMAIL_ENABLED=true")
	}
	return nil
}
