package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RECONCILE_WRITE_MODE", "")
	t.Setenv("PARENT_ORDERS_TABLE", "")
	t.Setenv("ORDER_LOCK_TTL", "")

	cfg := Load()

	assert.Equal(t, WriteModeBestEffort, cfg.Reconcile.WriteMode)
	assert.False(t, cfg.Reconcile.Transactional())
	assert.Equal(t, "parent_orders", cfg.Reconcile.ParentOrdersTable)
	assert.Equal(t, "orders", cfg.Reconcile.ChildOrdersTable)
	assert.Equal(t, 10*time.Second, cfg.Reconcile.LockTTL)
}

func TestLoadTelemetry(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_SAMPLING_RATIO", "7")

	cfg := Load()

	assert.Equal(t, "debug", cfg.Telemetry.LogLevel)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, 0.1, cfg.Telemetry.SamplingRatio)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RECONCILE_WRITE_MODE", "Transactional")
	t.Setenv("ORDER_LOCK_TTL", "2s")
	t.Setenv("PAYMOB_HMAC_SECRET", "  secret  ")
	t.Setenv("DB_AUTO_MIGRATE", "yes")

	cfg := Load()

	assert.True(t, cfg.Reconcile.Transactional())
	assert.Equal(t, 2*time.Second, cfg.Reconcile.LockTTL)
	assert.Equal(t, "secret", cfg.Paymob.HMACSecret)
	assert.True(t, cfg.DBAutoMigrate)
}

func TestGetenvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("ORDER_LOCK_TTL", "soon")
	assert.Equal(t, time.Minute, getenvDuration("ORDER_LOCK_TTL", time.Minute))
}

func TestResponseConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "response.yml")
	content := []byte("response:\n  mode: redirect\n  web_app_url: https://shop.example.com/checkout/result\n  html_delay: 5s\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewResponseConfigHolderFromFile(path, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, ResponseModeRedirect, cfg.Mode)
	assert.Equal(t, "https://shop.example.com/checkout/result", cfg.WebAppURL)
	assert.Equal(t, 5*time.Second, cfg.HTMLDelay)
}

func TestResponseConfigRejectsInvalidMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "response.yml")
	content := []byte("response:\n  mode: popup\n  web_app_url: https://shop.example.com\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := NewResponseConfigHolderFromFile(path, zap.NewNop())
	assert.Error(t, err)
}

func TestValidateResponseConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ResponseConfig
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultResponseConfig()},
		{name: "relative url", cfg: ResponseConfig{Mode: ResponseModeHTML, WebAppURL: "/checkout"}, wantErr: true},
		{name: "negative delay", cfg: ResponseConfig{Mode: ResponseModeHTML, WebAppURL: "https://a.example", HTMLDelay: -time.Second}, wantErr: true},
		{name: "redirect", cfg: ResponseConfig{Mode: ResponseModeRedirect, WebAppURL: "https://a.example"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateResponseConfig(tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
