// Package config loads auctionsim settings from YAML and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all auctionsim settings.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	RateLimit  RateLimitConfig  `json:"rate_limit" yaml:"rate_limit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
	// AdminKey guards mutating market endpoints. Supports ${VAR} syntax.
	// Empty disables them.
	AdminKey string `json:"-" yaml:"admin_key"`
}

// StoreConfig selects the scenario store.
type StoreConfig struct {
	// Driver is "memory" (default) or "sqlite".
	Driver string `json:"driver" yaml:"driver"`
	// Path is the SQLite file, used when Driver is "sqlite".
	Path string `json:"path" yaml:"path"`
}

// SimulationConfig tunes simulation runs.
type SimulationConfig struct {
	// RoundDelay pauses between rounds; zero runs flat out.
	RoundDelay time.Duration `json:"round_delay" yaml:"round_delay"`
	// Seed fixes the valuation generator; zero picks a random seed.
	Seed uint64 `json:"seed" yaml:"seed"`
	// DefaultIncrement is used by ad-hoc runs that don't name one.
	DefaultIncrement float64 `json:"default_increment" yaml:"default_increment"`
	// TraceDir, when set, receives a rounds.jsonl trace of every run.
	TraceDir string `json:"trace_dir,omitempty" yaml:"trace_dir,omitempty"`
}

// LoggingConfig sets log verbosity: "info" (default), "debug" or "trace".
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// RateLimitConfig caps bid and run requests per client IP.
type RateLimitConfig struct {
	Requests int           `json:"requests" yaml:"requests"`
	Window   time.Duration `json:"window" yaml:"window"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Store:  StoreConfig{Driver: "memory", Path: "auctionsim.db"},
		Simulation: SimulationConfig{
			DefaultIncrement: 1.0,
		},
		Logging:   LoggingConfig{Level: "info"},
		RateLimit: RateLimitConfig{Requests: 60, Window: time.Minute},
	}
}

// Load builds the configuration. Order: defaults -> path (if it exists) -> environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			fileCfg, err := LoadFromFile(path)
			if err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
			cfg = fileCfg
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config file: %w", statErr)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Server.AdminKey = expandEnvVars(cfg.Server.AdminKey)
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be in 1-65535, got %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid store driver: %s (valid: memory, sqlite)", c.Store.Driver)
	}

	if c.Simulation.RoundDelay < 0 {
		return fmt.Errorf("round_delay must be non-negative, got %v", c.Simulation.RoundDelay)
	}
	if c.Simulation.DefaultIncrement <= 0 {
		return fmt.Errorf("default_increment must be positive, got %v", c.Simulation.DefaultIncrement)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate_limit.requests must be positive, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %v", c.RateLimit.Window)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUCTIONSIM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("AUCTIONSIM_ADMIN_KEY"); v != "" {
		cfg.Server.AdminKey = v
	}
	if v := os.Getenv("AUCTIONSIM_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("AUCTIONSIM_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("AUCTIONSIM_ROUND_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Simulation.RoundDelay = d
		}
	}
	if v := os.Getenv("AUCTIONSIM_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Simulation.Seed = n
		}
	}
	if v := os.Getenv("AUCTIONSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
