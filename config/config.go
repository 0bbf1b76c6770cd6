package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL    string `env:"DATABASE_URL,required" validate:"required"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" envDefault:"10" validate:"min=1,max=100"`
	RedisURL       string `env:"REDIS_URL"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret string `env:"JWT_SECRET" validate:"omitempty,min=32"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"log" validate:"oneof=log resend mailgun"`
	EmailFrom     string `env:"EMAIL_FROM"     envDefault:"birthday@localhost" validate:"required"`
	ResendAPIKey  string `env:"RESEND_API_KEY" validate:"required_if=EmailProvider resend"`
	MailgunDomain string `env:"MAILGUN_DOMAIN" validate:"required_if=EmailProvider mailgun"`
	MailgunAPIKey string `env:"MAILGUN_API_KEY" validate:"required_if=EmailProvider mailgun"`
	BrandName     string `env:"BRAND_NAME"     envDefault:"Farmers Market"`

	CampaignSchedule string        `env:"CAMPAIGN_SCHEDULE" envDefault:"0 0 * * *" validate:"required"`
	CampaignTimezone string        `env:"CAMPAIGN_TIMEZONE" envDefault:"UTC" validate:"required"`
	WindowDays       int           `env:"WINDOW_DAYS"       envDefault:"7"  validate:"min=1,max=182"`
	WorkerCount      int           `env:"WORKER_COUNT"      envDefault:"5"  validate:"min=1,max=100"`
	SendTimeoutSec   int           `env:"SEND_TIMEOUT_SEC"  envDefault:"10" validate:"min=1,max=300"`
	StoreTimeoutSec  int           `env:"STORE_TIMEOUT_SEC" envDefault:"5"  validate:"min=1,max=60"`
	RunLockTTL       time.Duration `env:"RUN_LOCK_TTL"      envDefault:"23h"`
	RunOnStart       bool          `env:"RUN_ON_START"      envDefault:"false"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if _, err := cron.ParseStandard(cfg.CampaignSchedule); err != nil {
		return nil, fmt.Errorf("invalid CAMPAIGN_SCHEDULE %q: %w", cfg.CampaignSchedule, err)
	}
	if _, err := time.LoadLocation(cfg.CampaignTimezone); err != nil {
		return nil, fmt.Errorf("invalid CAMPAIGN_TIMEZONE %q: %w", cfg.CampaignTimezone, err)
	}
	if cfg.RunLockTTL <= 0 {
		return nil, fmt.Errorf("invalid RUN_LOCK_TTL %s: must be positive", cfg.RunLockTTL)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Location is the campaign time zone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.CampaignTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSec) * time.Second
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSec) * time.Second
}
