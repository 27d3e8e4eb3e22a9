package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultWorkers is the default scan worker pool size.
	DefaultWorkers = 200

	// DefaultTimeoutMS is the default per-probe-attempt timeout in milliseconds.
	DefaultTimeoutMS = 1000

	// DefaultRetryPings is the default number of retry attempts after a
	// failed initial probe.
	DefaultRetryPings = 3

	// DefaultOutputDir is the default directory for run artifacts.
	DefaultOutputDir = "./logs"

	// DefaultIntervalSeconds is the default sleep between loop cycles.
	DefaultIntervalSeconds = 300

	// DefaultProgressEvery is how many completed sites between progress logs.
	DefaultProgressEvery = 250

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "FLEETSCAN"
)

// Config is the root configuration for fleetscan.
type Config struct {
	Scan     ScanConfig   `yaml:"scan" mapstructure:"scan"`
	Output   OutputConfig `yaml:"output" mapstructure:"output"`
	Loop     LoopConfig   `yaml:"loop" mapstructure:"loop"`
	LogLevel string       `yaml:"log_level" mapstructure:"log_level"`
}

// ScanConfig contains probe and scheduler settings.
type ScanConfig struct {
	Workers       int     `yaml:"max_workers" mapstructure:"max_workers"`
	TimeoutMS     int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RetryPings    int     `yaml:"retry_pings" mapstructure:"retry_pings"`
	GatewayCheck  bool    `yaml:"gateway_check" mapstructure:"gateway_check"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	ProgressEvery int     `yaml:"progress_every" mapstructure:"progress_every"`
}

// OutputConfig contains run-artifact settings.
type OutputConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	PublishDir   string `yaml:"publish_dir" mapstructure:"publish_dir"`
	RunID        string `yaml:"run_id" mapstructure:"run_id"`
	WriteTXT     bool   `yaml:"write_txt" mapstructure:"write_txt"`
	WriteCSV     bool   `yaml:"write_csv" mapstructure:"write_csv"`
	ZipRun       bool   `yaml:"zip_run" mapstructure:"zip_run"`
	RemoveRunDir bool   `yaml:"remove_run_folder_after_zip" mapstructure:"remove_run_folder_after_zip"`
}

// LoopConfig contains continuous-scan settings.
type LoopConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	IntervalSeconds int    `yaml:"interval_seconds" mapstructure:"interval_seconds"`
	MetricsAddr     string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// Load reads configuration from an optional yaml file, applying
// FLEETSCAN_* environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetDefault("scan.max_workers", DefaultWorkers)
	v.SetDefault("scan.timeout_ms", DefaultTimeoutMS)
	v.SetDefault("scan.retry_pings", DefaultRetryPings)
	v.SetDefault("scan.progress_every", DefaultProgressEvery)
	v.SetDefault("output.dir", DefaultOutputDir)
	v.SetDefault("loop.interval_seconds", DefaultIntervalSeconds)
	v.SetDefault("log_level", DefaultLogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.max_workers must be positive, got %d", c.Scan.Workers)
	}

	if c.Scan.TimeoutMS <= 0 {
		return fmt.Errorf("scan.timeout_ms must be positive, got %d", c.Scan.TimeoutMS)
	}

	if c.Scan.RetryPings < 0 {
		return fmt.Errorf("scan.retry_pings must not be negative, got %d", c.Scan.RetryPings)
	}

	if c.Scan.RateLimit < 0 {
		return fmt.Errorf("scan.rate_limit must not be negative, got %v", c.Scan.RateLimit)
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}

	if parent := filepath.Dir(c.Output.Dir); parent != "." && parent != ".." {
		if _, err := os.Stat(parent); os.IsNotExist(err) {
			return fmt.Errorf("output directory parent %q does not exist", parent)
		}
	}

	if c.Output.RemoveRunDir && !c.Output.ZipRun {
		return fmt.Errorf("output.remove_run_folder_after_zip requires output.zip_run")
	}

	if c.Loop.Enabled && c.Loop.IntervalSeconds <= 0 {
		return fmt.Errorf("loop.interval_seconds must be positive, got %d", c.Loop.IntervalSeconds)
	}

	return nil
}

// Timeout returns the per-attempt probe timeout.
func (c *ScanConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// MaxAttempts returns the total attempts per probe: the initial ping
// plus the configured retries.
func (c *ScanConfig) MaxAttempts() int {
	return 1 + c.RetryPings
}

// Interval returns the sleep between loop cycles.
func (c *LoopConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
