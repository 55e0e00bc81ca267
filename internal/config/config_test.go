package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, defaultDatabaseURL, cfg.Database.URL)
	assert.Equal(t, 10*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, "@every 5s", cfg.Notification.DispatchSpec)
	assert.Equal(t, "20-M", cfg.RateLimit.Join)
}

func TestLoad_FileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
payment:
  currency: NGN
  timeout: 3s
notification:
  max_attempts: 7
log:
  format: text
`), 0o600))

	t.Setenv("PAYMENT_TIMEOUT", "2s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "NGN", cfg.Payment.Currency)
	assert.Equal(t, 2*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 7, cfg.Notification.MaxAttempts)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("PAYMENT_TIMEOUT", "soon")

	_, err := Load("")
	assert.ErrorContains(t, err, "PAYMENT_TIMEOUT")
}

func TestValidate_ProdRequiresSecrets(t *testing.T) {
	cfg := &Config{AppEnv: "production"}
	cfg.applyDefaults()

	err := cfg.Validate()
	assert.ErrorContains(t, err, "JWT_SECRET")

	cfg.JWT.Secret = "real-secret"
	cfg.Payment.KeyID = "rzp_live_x"
	cfg.Payment.KeySecret = "s3cret"
	cfg.Payment.WebhookSecret = "whsec"
	assert.ErrorContains(t, cfg.Validate(), "PostgreSQL")

	cfg.Database.URL = "postgres://db/agrirent"
	assert.NoError(t, cfg.Validate())
}
