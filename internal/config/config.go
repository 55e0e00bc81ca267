package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultJWTSecret      = "change-me-jwt-secret"
	defaultDatabaseURL    = "file:agrirent.db?_pragma=busy_timeout(5000)"
	defaultDispatchSpec   = "@every 5s"
	defaultRateJoin       = "20-M"
	defaultRateWebhook    = "300-M"
	defaultPaymentTimeout = 10 * time.Second
)

type Config struct {
	AppEnv       string             `yaml:"app_env"`
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	JWT          JWTConfig          `yaml:"jwt"`
	Redis        RedisConfig        `yaml:"redis"`
	Payment      PaymentConfig      `yaml:"payment"`
	Notification NotificationConfig `yaml:"notification"`
	Log          LogConfig          `yaml:"log"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	CORS         CORSConfig         `yaml:"cors"`
	NewRelic     NewRelicConfig     `yaml:"new_relic"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// RedisConfig enables the distributed equipment lock when URL is set.
type RedisConfig struct {
	URL     string        `yaml:"url"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

type PaymentConfig struct {
	KeyID         string        `yaml:"key_id"`
	KeySecret     string        `yaml:"key_secret"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Currency      string        `yaml:"currency"`
	CheckoutURL   string        `yaml:"checkout_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

type NotificationConfig struct {
	DispatchSpec string `yaml:"dispatch_spec"`
	BatchSize    int    `yaml:"batch_size"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

type LogConfig struct {
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format     string `yaml:"format"` // "json" or "text"
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// RateLimitConfig uses the limiter format "<limit>-<period>", e.g. "20-M".
type RateLimitConfig struct {
	Join    string `yaml:"join"`
	Webhook string `yaml:"webhook"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type NewRelicConfig struct {
	AppName    string `yaml:"app_name"`
	LicenseKey string `yaml:"license_key"`
}

// Load reads .env (if present), then the YAML file at path (if present), then
// environment overrides, fills defaults and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) overrideWithEnv() error {
	setString(&c.AppEnv, "APP_ENV", "ENV")
	setString(&c.Server.Port, "PORT")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.JWT.Secret, "JWT_SECRET")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Payment.KeyID, "RAZORPAY_KEY_ID")
	setString(&c.Payment.KeySecret, "RAZORPAY_KEY_SECRET")
	setString(&c.Payment.WebhookSecret, "RAZORPAY_WEBHOOK_SECRET")
	setString(&c.Payment.Currency, "PAYMENT_CURRENCY")
	setString(&c.Payment.CheckoutURL, "PAYMENT_CHECKOUT_URL")
	setString(&c.Notification.DispatchSpec, "NOTIFY_DISPATCH_SPEC")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Log.File, "LOG_FILE")
	setString(&c.RateLimit.Join, "RATE_LIMIT_JOIN")
	setString(&c.RateLimit.Webhook, "RATE_LIMIT_WEBHOOK")
	setString(&c.NewRelic.AppName, "NEW_RELIC_APP_NAME")
	setString(&c.NewRelic.LicenseKey, "NEW_RELIC_LICENSE_KEY")

	if v := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		c.CORS.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORS.AllowedOrigins = append(c.CORS.AllowedOrigins, o)
			}
		}
	}

	for name, dst := range map[string]*time.Duration{
		"PAYMENT_TIMEOUT":  &c.Payment.Timeout,
		"LOCK_TIMEOUT":     &c.Server.LockTimeout,
		"SHUTDOWN_TIMEOUT": &c.Server.ShutdownTimeout,
		"REDIS_LOCK_TTL":   &c.Redis.LockTTL,
	} {
		if err := setDuration(dst, name); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*int{
		"NOTIFY_BATCH_SIZE":   &c.Notification.BatchSize,
		"NOTIFY_MAX_ATTEMPTS": &c.Notification.MaxAttempts,
	} {
		if err := setInt(dst, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	if c.AppEnv == "" {
		c.AppEnv = "dev"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Server.LockTimeout == 0 {
		c.Server.LockTimeout = 5 * time.Second
	}
	if c.Database.URL == "" {
		c.Database.URL = defaultDatabaseURL
	}
	if c.JWT.Secret == "" {
		c.JWT.Secret = defaultJWTSecret
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 15 * time.Second
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "INR"
	}
	if c.Payment.CheckoutURL == "" {
		c.Payment.CheckoutURL = "https://checkout.razorpay.com/v1/checkout.js"
	}
	if c.Payment.Timeout == 0 {
		c.Payment.Timeout = defaultPaymentTimeout
	}
	if c.Notification.DispatchSpec == "" {
		c.Notification.DispatchSpec = defaultDispatchSpec
	}
	if c.Notification.BatchSize == 0 {
		c.Notification.BatchSize = 100
	}
	if c.Notification.MaxAttempts == 0 {
		c.Notification.MaxAttempts = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.RateLimit.Join == "" {
		c.RateLimit.Join = defaultRateJoin
	}
	if c.RateLimit.Webhook == "" {
		c.RateLimit.Webhook = defaultRateWebhook
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.NewRelic.AppName == "" {
		c.NewRelic.AppName = "agrirent-api"
	}
}

func (c *Config) Validate() error {
	if c.Payment.Timeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be > 0")
	}
	if c.Server.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be > 0")
	}
	if c.Notification.BatchSize <= 0 {
		return fmt.Errorf("NOTIFY_BATCH_SIZE must be > 0")
	}
	if c.Notification.MaxAttempts <= 0 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be > 0")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}

	if c.IsProdLike() {
		if isEmptyOrDefault(c.JWT.Secret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if c.Payment.KeyID == "" || c.Payment.KeySecret == "" {
			return fmt.Errorf("in prod/release RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be set")
		}
		if c.Payment.WebhookSecret == "" {
			return fmt.Errorf("in prod/release RAZORPAY_WEBHOOK_SECRET must be set")
		}
		if !strings.HasPrefix(c.Database.URL, "postgres") {
			return fmt.Errorf("in prod/release DATABASE_URL must point to PostgreSQL")
		}
	}
	return nil
}

func (c *Config) IsProdLike() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production" || c.AppEnv == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func setString(dst *string, names ...string) {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
			return
		}
	}
}

func setDuration(dst *time.Duration, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	*dst = n
	return nil
}
