// Package config loads onoma's configuration and resolves the on-disk
// locations of its state (index database and session logs).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete onoma configuration.
type Config struct {
	// StateDir is the root under which indexes and logs live. Empty means
	// the platform state directory (see DefaultStateDir).
	StateDir string `yaml:"state_dir"`

	// LogLevel is the minimum level written to the session log.
	LogLevel string `yaml:"log_level"`

	// LogFlushInterval is how often buffered log records are flushed to disk.
	LogFlushInterval time.Duration `yaml:"log_flush_interval"`

	// WatchWorkers and QueryWorkers bound the concurrency of the watch/index
	// and query/resolve runtimes. Zero means one per CPU.
	WatchWorkers int `yaml:"watch_workers"`
	QueryWorkers int `yaml:"query_workers"`

	// DebounceWindow coalesces bursts of file events before re-indexing.
	DebounceWindow time.Duration `yaml:"debounce_window"`

	// MaxResults caps how many symbols a single query streams.
	MaxResults int `yaml:"max_results"`

	// ChannelBuffer is the capacity of a query's result channel.
	ChannelBuffer int `yaml:"channel_buffer"`

	// Languages restricts indexing to these languages. Empty means all.
	Languages []string `yaml:"languages"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:         "trace",
		LogFlushInterval: time.Second,
		DebounceWindow:   200 * time.Millisecond,
		MaxResults:       200,
		ChannelBuffer:    64,
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads the config file from its default location and applies
// environment overrides.
func LoadDefault() (Config, error) {
	cfg, err := Load(ConfigPath())
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from ONOMA_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("ONOMA_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("ONOMA_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ONOMA_MAX_RESULTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: ONOMA_MAX_RESULTS %q: %w", v, err)
		}
		c.MaxResults = n
	}
	return nil
}

// Validate reports configuration values that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.WatchWorkers < 0 {
		errs = append(errs, fmt.Errorf("watch_workers must be >= 0, got %d", c.WatchWorkers))
	}
	if c.QueryWorkers < 0 {
		errs = append(errs, fmt.Errorf("query_workers must be >= 0, got %d", c.QueryWorkers))
	}
	if c.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("max_results must be > 0, got %d", c.MaxResults))
	}
	if c.ChannelBuffer < 0 {
		errs = append(errs, fmt.Errorf("channel_buffer must be >= 0, got %d", c.ChannelBuffer))
	}
	if c.LogFlushInterval < 0 {
		errs = append(errs, fmt.Errorf("log_flush_interval must be >= 0, got %s", c.LogFlushInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Root returns the onoma directory under the state root.
func (c Config) Root() string {
	if c.StateDir != "" {
		return absOrSelf(filepath.Join(c.StateDir, "onoma"))
	}
	return DefaultRoot()
}

// DatabaseDir is where the index database is stored.
func (c Config) DatabaseDir() string {
	return filepath.Join(c.Root(), "indexes")
}

// LogDir is where session log files are written.
func (c Config) LogDir() string {
	return filepath.Join(c.Root(), "logs")
}
