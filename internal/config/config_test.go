package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "SERVER_ID", "TELEGRAM_API_URL",
	"SERVICES_TO_MONITOR", "DISK_THRESHOLD", "CPU_THRESHOLD", "MEM_THRESHOLD",
	"DISK_PATH", "MONITOR_INTERVAL", "POLL_IDLE_DELAY", "POLL_TIMEOUT",
	"SERVICE_TIMEOUT", "SERVICE_BACKEND", "ALLOW_RUN", "RUN_TIMEOUT",
	"RUN_MAX_OUTPUT", "RUN_AS_USER", "NOTIFY_RATE", "NOTIFY_BURST",
	"STATE_FILE", "LOG_FILE", "LOG_LEVEL", "CONFIG_FILE", "SECRET_FILE",
}

// isolate clears every key the loader reads and points the legacy files into
// a temp dir. Cleanup restores the previous environment.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("SECRET_FILE", filepath.Join(dir, "secret"))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewFromLegacyFiles(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config"),
		"TELEGRAM_CHAT_ID=-100123\nSERVER_ID=SRV1\nSERVICES_TO_MONITOR=nginx, sshd ,,postgresql\n")
	writeFile(t, filepath.Join(dir, "secret"), "TELEGRAM_BOT_TOKEN=123:abc\n")

	cfg, err := New(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.BotToken())
	assert.Equal(t, "-100123", cfg.RecipientID())
	assert.Equal(t, "SRV1", cfg.ServerID())
	assert.Equal(t, []string{"nginx", "sshd", "postgresql"}, cfg.Services())
	assert.Equal(t, "https://api.telegram.org", cfg.APIURL())
}

func TestNewDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("SERVER_ID", "SRV1")

	cfg, err := New(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)

	assert.InDelta(t, 10.0, cfg.DiskThreshold(), 0)
	assert.InDelta(t, 90.0, cfg.CPUThreshold(), 0)
	assert.InDelta(t, 92.0, cfg.MemThreshold(), 0)
	assert.Equal(t, 60*time.Second, cfg.MonitorInterval())
	assert.Equal(t, 5*time.Second, cfg.PollIdleDelay())
	assert.Equal(t, 30*time.Second, cfg.ServiceTimeout())
	assert.Equal(t, BackendNative, cfg.ServiceBackend())
	assert.False(t, cfg.AllowRun())
	assert.Equal(t, 16*1024, cfg.RunMaxOutput())
	assert.NotEmpty(t, cfg.Services())
	assert.NotEmpty(t, cfg.StateFile())
}

func TestEnvironmentOverridesLegacyFiles(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config"), "TELEGRAM_CHAT_ID=1\nSERVER_ID=FROM_FILE\n")
	writeFile(t, filepath.Join(dir, "secret"), "TELEGRAM_BOT_TOKEN=file-token\n")
	t.Setenv("SERVER_ID", "FROM_ENV")
	t.Setenv("CPU_THRESHOLD", "75.5")
	t.Setenv("MONITOR_INTERVAL", "90")
	t.Setenv("RUN_TIMEOUT", "1m30s")
	t.Setenv("ALLOW_RUN", "true")

	cfg, err := New(filepath.Join(dir, "none.env"))
	require.NoError(t, err)

	assert.Equal(t, "FROM_ENV", cfg.ServerID())
	assert.Equal(t, "file-token", cfg.BotToken())
	assert.InDelta(t, 75.5, cfg.CPUThreshold(), 0)
	assert.Equal(t, 90*time.Second, cfg.MonitorInterval())
	assert.Equal(t, 90*time.Second, cfg.RunTimeout())
	assert.True(t, cfg.AllowRun())
}

func TestEnvFileLoaded(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, "agent.env")
	writeFile(t, envFile, "TELEGRAM_BOT_TOKEN=env-file-token\nTELEGRAM_CHAT_ID=7\nSERVER_ID=SRV9\nLOG_LEVEL=debug\n")

	cfg, err := New(envFile)
	require.NoError(t, err)

	assert.Equal(t, "env-file-token", cfg.BotToken())
	assert.Equal(t, "SRV9", cfg.ServerID())
	assert.Equal(t, "debug", cfg.LogLevel())
}

func TestNewMissingCredentials(t *testing.T) {
	isolate(t)
	t.Setenv("SERVER_ID", "SRV1")

	_, err := New(filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")
}

func TestNewInvalidValues(t *testing.T) {
	isolate(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("SERVER_ID", "SRV1")
	t.Setenv("CPU_THRESHOLD", "lots")
	t.Setenv("MEM_THRESHOLD", "150")
	t.Setenv("SERVICE_BACKEND", "launchd")

	_, err := New(filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "CPU_THRESHOLD")
	assert.Contains(t, err.Error(), "MEM_THRESHOLD")
	assert.Contains(t, err.Error(), "SERVICE_BACKEND")
}

func TestParseServiceList(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, ParseServiceList("A,B"))
	assert.Equal(t, []string{"A", "B"}, ParseServiceList(" A , ,B, "))
	assert.Nil(t, ParseServiceList(""))
}

func TestServicesReturnsCopy(t *testing.T) {
	isolate(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("SERVER_ID", "SRV1")
	t.Setenv("SERVICES_TO_MONITOR", "A,B")

	cfg, err := New(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)

	services := cfg.Services()
	services[0] = "mutated"
	assert.Equal(t, []string{"A", "B"}, cfg.Services())
}
