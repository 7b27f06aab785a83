package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequired sets the env vars without which Load fails.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISPATCH_PROVIDER_EMAIL_URL", "https://provider.test/email")
	t.Setenv("DISPATCH_PROVIDER_SMS_URL", "https://provider.test/sms")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "dispatch.db", cfg.DBPath)
	assert.Equal(t, 2, cfg.Partitions)
	assert.Equal(t, "dispatchers", cfg.ConsumerGroup)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3, cfg.RetryMax)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, 25, cfg.IngestRPS)
	assert.Equal(t, 50, cfg.IngestBurst)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Empty(t, cfg.ProviderToken)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DISPATCH_LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("DISPATCH_DB_PATH", "/data/svc.db")
	t.Setenv("DISPATCH_PARTITIONS", "8")
	t.Setenv("DISPATCH_CONSUMER_GROUP", "workers")
	t.Setenv("DISPATCH_POLL_INTERVAL", "50ms")
	t.Setenv("DISPATCH_RETRY_MAX", "5")
	t.Setenv("DISPATCH_RETRY_DELAY", "500ms")
	t.Setenv("DISPATCH_PROVIDER_TOKEN", "tok")
	t.Setenv("DISPATCH_PROVIDER_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, "/data/svc.db", cfg.DBPath)
	assert.Equal(t, 8, cfg.Partitions)
	assert.Equal(t, "workers", cfg.ConsumerGroup)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5, cfg.RetryMax)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, "tok", cfg.ProviderToken)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
}

func TestLoad_MissingProviderURLs(t *testing.T) {
	t.Setenv("DISPATCH_PROVIDER_EMAIL_URL", "")
	t.Setenv("DISPATCH_PROVIDER_SMS_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPATCH_PROVIDER_EMAIL_URL")

	t.Setenv("DISPATCH_PROVIDER_EMAIL_URL", "https://provider.test/email")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPATCH_PROVIDER_SMS_URL")
}

func TestLoad_InvalidInteger(t *testing.T) {
	setRequired(t)
	t.Setenv("DISPATCH_PARTITIONS", "two")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("DISPATCH_RETRY_DELAY", "2 hours")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsOutOfRangeValues(t *testing.T) {
	setRequired(t)
	t.Setenv("DISPATCH_PARTITIONS", "0")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DISPATCH_PARTITIONS", "2")
	t.Setenv("DISPATCH_RETRY_MAX", "0")

	_, err = Load()
	assert.Error(t, err)
}
