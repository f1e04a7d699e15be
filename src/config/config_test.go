package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-relay/src/models"
	"signal-relay/src/protocol"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalYAML = `
name: test-relay
security:
  secret_key: "hunter2"
`

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(writeTempConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "test-relay", cfg.Name)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 5200, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, protocol.DefaultMaxFrameBytes, cfg.Server.MaxFrameBytes)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 10, cfg.Retry.RetryDelaySeconds)
	assert.Equal(t, 3, cfg.Retry.SignalExpiryMinutes)
	assert.Equal(t, "sqlite", cfg.Storage.DBType)
	assert.Equal(t, "trading_signals.db", cfg.Storage.DBPath)
	assert.Equal(t, 10, cfg.Bridge.ReconnectSeconds)
	assert.Equal(t, 60, cfg.Bridge.MaxReconnectSeconds)
	assert.Equal(t, 30, cfg.Bridge.HeartbeatSeconds)
}

func TestNewConfigKeepsZeroAdmissionLimits(t *testing.T) {
	// Zero means unlimited and must survive loading untouched.
	cfg, err := NewConfig(writeTempConfig(t, minimalYAML+`
admission:
  max_signals_per_day: 0
  min_seconds_between_signals: 0
`))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Admission.MaxSignalsPerDay)
	assert.Equal(t, 0, cfg.Admission.MinSecondsBetweenSignals)
}

func TestNewConfigEnvOverrides(t *testing.T) {
	t.Setenv("SECRET_KEY", "from-env")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok-123")

	cfg, err := NewConfig(writeTempConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Security.SecretKey)
	assert.Equal(t, "tok-123", cfg.Telegram.BotToken)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNewConfigBadYAML(t *testing.T) {
	_, err := NewConfig(writeTempConfig(t, "name: [unclosed"))
	assert.Error(t, err)
}

func TestValidateRejectsUnknownDBType(t *testing.T) {
	_, err := NewConfig(writeTempConfig(t, minimalYAML+`
storage:
  db_type: mongodb
`))
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestValidateTradingHoursPairing(t *testing.T) {
	_, err := NewConfig(writeTempConfig(t, minimalYAML+`
admission:
  trading_hours_start: "07:00"
`))
	assert.ErrorContains(t, err, "must be set together")

	_, err = NewConfig(writeTempConfig(t, minimalYAML+`
admission:
  trading_hours_start: "7am"
  trading_hours_end: "21:00"
`))
	assert.ErrorContains(t, err, "expected HH:MM")
}

func TestValidateServer(t *testing.T) {
	cfg, err := NewConfig(writeTempConfig(t, minimalYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateServer())

	cfg.Security.SecretKey = ""
	assert.ErrorContains(t, cfg.ValidateServer(), "secret key")

	cfg.Security.SecretKey = "hunter2"
	cfg.Server.Port = 80
	assert.ErrorContains(t, cfg.ValidateServer(), "port")
}

func TestValidateBridge(t *testing.T) {
	cfg, err := NewConfig(writeTempConfig(t, minimalYAML+`
bridge:
  upstream_host: vps.example.com
  upstream_port: 5200
`))
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateBridge())

	cfg.Bridge.UpstreamHost = ""
	assert.ErrorContains(t, cfg.ValidateBridge(), "upstream host")

	cfg.Bridge.UpstreamHost = "vps.example.com"
	cfg.Bridge.MaxReconnectSeconds = 1
	assert.ErrorContains(t, cfg.ValidateBridge(), "max reconnect")
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := NewConfig(writeTempConfig(t, minimalYAML))
	require.NoError(t, err)
	cfg.Admission.MaxSignalsPerDay = 7

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(path))

	reloaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, reloaded.Admission.MaxSignalsPerDay)
	assert.Equal(t, cfg.Server.Port, reloaded.Server.Port)
}

func TestValidateDirect(t *testing.T) {
	cfg := &Config{MConfig: &models.MConfig{Name: "x"}}
	// No defaults applied: empty storage type must fail.
	assert.Error(t, cfg.Validate())
}
