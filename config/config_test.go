package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roboxon/student-app/internal/domain/schedule"
)

var envKeys = []string{
	EnvConfigFile,
	"APP_NAME", "APP_ENV", "APP_DEBUG", "APP_VERSION", "APP_SHUTDOWN_TIMEOUT",
	"STORAGE_DATA_DIR",
	"PORTAL_BASE_URL", "PORTAL_TOKEN", "PORTAL_OFFLINE", "PORTAL_REQUEST_TIMEOUT",
	"PORTAL_MAX_RETRIES", "PORTAL_RETRY_BASE_DELAY", "PORTAL_RETRY_MAX_DELAY",
	"PORTAL_CB_THRESHOLD", "PORTAL_CB_TIMEOUT",
	"STUDENT_ID", "STUDENT_JOIN_DATE", "STUDENT_EXIT_DATE", "STUDENT_RELEASE_ID", "STUDENT_SCHEDULE",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_KEY_PREFIX",
	"REDIS_POOL_SIZE", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"DATABASE_URL", "DB_AUTO_MIGRATE", "DB_QUERY_TIMEOUT",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
	"METRICS_ENABLED", "METRICS_PORT",
}

// clearEnv blanks every variable Load reads; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reportctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "reportctl", cfg.App.Name)
	assert.True(t, cfg.IsDevelopment())
	assert.NotEmpty(t, cfg.Storage.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Portal.RequestTimeout)
	assert.Equal(t, 3, cfg.Portal.MaxRetries)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
storage:
  data_dir: /tmp/reports
portal:
  base_url: https://portal.example.com
  request_timeout: 5s
  max_retries: 1
student:
  id: s-42
  join_date: "2024-01-08"
  release_id: 7
  schedule:
    - weekday: 1
      start: "09:00"
      end: "17:00"
redis:
  enabled: true
  port: 6380
`)
	t.Setenv("PORTAL_MAX_RETRIES", "4")
	t.Setenv("STUDENT_ID", "s-43")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/reports", cfg.Storage.DataDir)
	assert.Equal(t, "https://portal.example.com", cfg.Portal.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Portal.RequestTimeout)
	assert.Equal(t, 4, cfg.Portal.MaxRetries)
	assert.Equal(t, "s-43", cfg.Student.ID)
	assert.Equal(t, "2024-01-08", cfg.Student.JoinDate)
	assert.Equal(t, int64(7), cfg.Student.ReleaseID)
	assert.Equal(t, schedule.Schedule{{Weekday: 1, Start: "09:00", End: "17:00"}}, cfg.Student.Schedule)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "localhost", cfg.Redis.Host)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigFile, writeFile(t, "app:\n  name: custom\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.App.Name)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "portal: [not, a, map]\n"))
	assert.Error(t, err)
}

func TestLoad_EnvSchedule(t *testing.T) {
	clearEnv(t)
	t.Setenv("STUDENT_SCHEDULE", "1=09:00-12:00, 3=10:00-14:30")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, schedule.Schedule{
		{Weekday: 1, Start: "09:00", End: "12:00"},
		{Weekday: 3, Start: "10:00", End: "14:30"},
	}, cfg.Student.Schedule)
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, in := range []string{"1", "8=09:00-10:00", "x=09:00-10:00", "1=09:00"} {
		_, err := ParseSchedule(in)
		assert.ErrorIs(t, err, ErrInvalidSchedule, in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"relative base url", func(c *Config) { c.Portal.BaseURL = "portal" }, "PORTAL_BASE_URL"},
		{"offline ignores base url", func(c *Config) { c.Portal.Offline = true; c.Portal.BaseURL = "" }, ""},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = " " }, "STORAGE_DATA_DIR"},
		{"zero timeout", func(c *Config) { c.Portal.RequestTimeout = 0 }, "PORTAL_REQUEST_TIMEOUT"},
		{"negative retries", func(c *Config) { c.Portal.MaxRetries = -1 }, "PORTAL_MAX_RETRIES"},
		{"delays inverted", func(c *Config) { c.Portal.RetryMaxDelay = time.Millisecond }, "PORTAL_RETRY_MAX_DELAY"},
		{"bad weekday", func(c *Config) { c.Student.Schedule = schedule.Schedule{{Weekday: 0, Start: "09:00", End: "10:00"}} }, "weekday"},
		{"redis port", func(c *Config) { c.Redis.Enabled = true; c.Redis.Port = 0 }, "REDIS_PORT"},
		{"production needs database", func(c *Config) { c.App.Environment = EnvProduction }, "DATABASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
