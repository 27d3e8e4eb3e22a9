package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkers, cfg.Scan.Workers)
	assert.Equal(t, DefaultTimeoutMS, cfg.Scan.TimeoutMS)
	assert.Equal(t, DefaultRetryPings, cfg.Scan.RetryPings)
	assert.False(t, cfg.Scan.GatewayCheck)
	assert.Equal(t, DefaultOutputDir, cfg.Output.Dir)
	assert.Equal(t, DefaultIntervalSeconds, cfg.Loop.IntervalSeconds)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	content := `
scan:
  max_workers: 50
  timeout_ms: 500
  retry_pings: 2
  gateway_check: true
  rate_limit: 100
output:
  dir: ./out
  publish_dir: ./public
  write_csv: true
loop:
  enabled: true
  interval_seconds: 60
log_level: debug
`
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "fleetscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Scan.Workers)
	assert.Equal(t, 500, cfg.Scan.TimeoutMS)
	assert.Equal(t, 2, cfg.Scan.RetryPings)
	assert.True(t, cfg.Scan.GatewayCheck)
	assert.Equal(t, 100.0, cfg.Scan.RateLimit)
	assert.Equal(t, "./out", cfg.Output.Dir)
	assert.Equal(t, "./public", cfg.Output.PublishDir)
	assert.True(t, cfg.Output.WriteCSV)
	assert.True(t, cfg.Loop.Enabled)
	assert.Equal(t, 60, cfg.Loop.IntervalSeconds)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FLEETSCAN_SCAN_MAX_WORKERS", "17")
	t.Setenv("FLEETSCAN_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 17, cfg.Scan.Workers)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Scan.Workers = 0 },
			wantErr: "max_workers",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Scan.TimeoutMS = -1 },
			wantErr: "timeout_ms",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Scan.RetryPings = -1 },
			wantErr: "retry_pings",
		},
		{
			name:    "remove without zip",
			mutate:  func(c *Config) { c.Output.RemoveRunDir = true },
			wantErr: "requires output.zip_run",
		},
		{
			name: "remove with zip",
			mutate: func(c *Config) {
				c.Output.ZipRun = true
				c.Output.RemoveRunDir = true
			},
		},
		{
			name: "loop without interval",
			mutate: func(c *Config) {
				c.Loop.Enabled = true
				c.Loop.IntervalSeconds = 0
			},
			wantErr: "interval_seconds",
		},
		{
			name:    "empty output dir",
			mutate:  func(c *Config) { c.Output.Dir = "" },
			wantErr: "output.dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestScanConfig_Derived(t *testing.T) {
	sc := ScanConfig{TimeoutMS: 1500, RetryPings: 3}

	assert.Equal(t, 1500, int(sc.Timeout().Milliseconds()))
	assert.Equal(t, 4, sc.MaxAttempts())
}
