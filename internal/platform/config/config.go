// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"certhub/pkg/platform/middleware/metadata"
	pstrings "certhub/pkg/platform/strings"
)

// devSigningKey is only accepted outside production.
const devSigningKey = "dev-secret-key-change-in-production"

// MinSigningKeyLength is the minimum HS256 key length accepted in production.
const MinSigningKeyLength = 32

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Env      string `env:"CERTHUB_ENV" envDefault:"development"`
	LogLevel string `env:"CERTHUB_LOG_LEVEL" envDefault:"info"`
	BaseURL  string `env:"CERTHUB_BASE_URL" envDefault:"http://localhost:8080"`

	Server       Server
	Database     Database
	Auth         Auth
	SMTP         SMTP
	Media        Media
	Anchor       Anchor
	Kafka        Kafka
	Redis        Redis
	RateLimit    RateLimit
	Activity     Activity
	Notification Notification
	Scheduler    Scheduler
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"CERTHUB_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"CERTHUB_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"CERTHUB_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"CERTHUB_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MaxUploadBytes  int64         `env:"CERTHUB_MAX_UPLOAD_BYTES" envDefault:"10485760"`
}

type Database struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE" envDefault:"true"`
}

type Auth struct {
	JWTSigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"certhub"`
	TokenTTL      time.Duration `env:"JWT_TOKEN_TTL" envDefault:"12h"`
}

// SMTP settings for admin notification email. Notifications are skipped when
// host or sender is missing.
type SMTP struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

func (s SMTP) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// Media is a Cloudinary-compatible upload endpoint.
type Media struct {
	CloudName    string        `env:"MEDIA_CLOUD_NAME"`
	UploadPreset string        `env:"MEDIA_UPLOAD_PRESET"`
	APIKey       string        `env:"MEDIA_API_KEY"`
	BaseURL      string        `env:"MEDIA_BASE_URL" envDefault:"https://api.cloudinary.com/v1_1"`
	Folder       string        `env:"MEDIA_FOLDER" envDefault:"certhub"`
	Timeout      time.Duration `env:"MEDIA_TIMEOUT" envDefault:"30s"`
}

func (m Media) Enabled() bool {
	return m.CloudName != "" && m.UploadPreset != ""
}

// Anchor is the optional blockchain anchoring service.
type Anchor struct {
	URL     string        `env:"ANCHOR_URL"`
	APIKey  string        `env:"ANCHOR_API_KEY"`
	Network string        `env:"ANCHOR_NETWORK" envDefault:"polygon"`
	Timeout time.Duration `env:"ANCHOR_TIMEOUT" envDefault:"20s"`
}

func (a Anchor) Enabled() bool {
	return a.URL != ""
}

type Kafka struct {
	Brokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	ActivityTopic string   `env:"KAFKA_ACTIVITY_TOPIC" envDefault:"certhub.activity"`
}

func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// Redis backs the token revocation list. Empty URL falls back to memory.
type Redis struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

func (r Redis) Enabled() bool {
	return r.URL != ""
}

// RateLimit applies to the public verification endpoints, per client IP.
type RateLimit struct {
	VerifyPerMinute int `env:"RATE_LIMIT_VERIFY_PER_MINUTE" envDefault:"30"`
	VerifyBurst     int `env:"RATE_LIMIT_VERIFY_BURST" envDefault:"10"`
	// TrustedProxies are the CIDRs or addresses allowed to set
	// X-Forwarded-For and X-Real-IP. Empty means the socket peer is the client.
	TrustedProxies []string `env:"RATE_LIMIT_TRUSTED_PROXIES" envSeparator:","`
}

type Activity struct {
	RetentionDays int `env:"ACTIVITY_RETENTION_DAYS" envDefault:"365"`
}

type Notification struct {
	SendTimeout time.Duration `env:"NOTIFICATION_SEND_TIMEOUT" envDefault:"30s"`
	Concurrency int           `env:"NOTIFICATION_CONCURRENCY" envDefault:"4"`
}

type Scheduler struct {
	Enabled         bool   `env:"SCHEDULER_ENABLED" envDefault:"true"`
	RetentionSpec   string `env:"SCHEDULER_RETENTION_SPEC" envDefault:"0 3 * * *"`
	ExpirySweepSpec string `env:"SCHEDULER_EXPIRY_SWEEP_SPEC" envDefault:"*/15 * * * *"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads an optional .env file, then parses environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IsProduction() {
		if c.Auth.JWTSigningKey == devSigningKey {
			return errors.New("JWT_SIGNING_KEY must be set in production")
		}
		if len(c.Auth.JWTSigningKey) < MinSigningKeyLength {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least %d bytes long, got %d bytes",
				MinSigningKeyLength, len(c.Auth.JWTSigningKey))
		}
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL must be set in production")
		}
	}
	if c.Activity.RetentionDays < 1 {
		return fmt.Errorf("ACTIVITY_RETENTION_DAYS must be positive, got %d", c.Activity.RetentionDays)
	}
	c.Kafka.Brokers = pstrings.Compact(c.Kafka.Brokers)
	c.RateLimit.TrustedProxies = pstrings.Compact(c.RateLimit.TrustedProxies)
	if _, err := metadata.ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		return fmt.Errorf("RATE_LIMIT_TRUSTED_PROXIES: %w", err)
	}
	if c.Notification.Concurrency < 1 {
		c.Notification.Concurrency = 1
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		slog.Warn("SMTP_HOST is set without SMTP_FROM; admin notifications are disabled")
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
