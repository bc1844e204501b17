package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	ServerPort string

	DatasetPath            string
	DatasetMaxOpenConns    int
	DatasetMaxIdleConns    int
	DatasetConnMaxLifetime time.Duration
	DatasetLogQueries      bool

	RequestTimeout time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout       time.Duration
	InFlightTimeout       time.Duration
	InFlightCheckInterval time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Dataset struct {
		Path            string `yaml:"path"`
		MaxOpenConns    *int   `yaml:"max_open_conns"`
		MaxIdleConns    *int   `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		LogQueries      bool   `yaml:"log_queries"`
	} `yaml:"dataset"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

const (
	defaultDatasetPath  = "Resources/hawaii.sqlite"
	defaultMaxOpenConns = 4
	defaultMaxIdleConns = 4
)

// Load reads .env (if present), then config/{ENV_NAME}.yaml (default dev),
// then applies env overrides and defaults. Call from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = envOr("SERVER_PORT", fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.DatasetPath = envOr("DATASET_PATH", strings.TrimSpace(fc.Dataset.Path))
	if cfg.DatasetPath == "" {
		cfg.DatasetPath = defaultDatasetPath
	}
	cfg.DatasetMaxOpenConns = defaultMaxOpenConns
	if fc.Dataset.MaxOpenConns != nil {
		cfg.DatasetMaxOpenConns = *fc.Dataset.MaxOpenConns
	}
	cfg.DatasetMaxIdleConns = defaultMaxIdleConns
	if fc.Dataset.MaxIdleConns != nil {
		cfg.DatasetMaxIdleConns = *fc.Dataset.MaxIdleConns
	}
	// Zero keeps connections forever; the file does not change under us.
	cfg.DatasetConnMaxLifetime = parseDurationOrZero(fc.Dataset.ConnMaxLifetime, 0)
	cfg.DatasetLogQueries = fc.Dataset.LogQueries
	if v := strings.TrimSpace(os.Getenv("DATASET_LOG_QUERIES")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DATASET_LOG_QUERIES must be a boolean, got %q", v)
		}
		cfg.DatasetLogQueries = b
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.InFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOr returns the trimmed value of key, or fallback when it is unset or blank.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.DatasetPath) == "" {
		return fmt.Errorf("dataset.path is required")
	}
	if cfg.DatasetMaxOpenConns < 0 {
		return fmt.Errorf("dataset.max_open_conns must be >= 0, got %d", cfg.DatasetMaxOpenConns)
	}
	if cfg.DatasetMaxIdleConns < 0 {
		return fmt.Errorf("dataset.max_idle_conns must be >= 0, got %d", cfg.DatasetMaxIdleConns)
	}
	if cfg.DatasetMaxOpenConns > 0 && cfg.DatasetMaxIdleConns > cfg.DatasetMaxOpenConns {
		return fmt.Errorf("dataset.max_idle_conns (%d) must not exceed dataset.max_open_conns (%d)",
			cfg.DatasetMaxIdleConns, cfg.DatasetMaxOpenConns)
	}
	if cfg.DatasetConnMaxLifetime < 0 {
		return fmt.Errorf("dataset.conn_max_lifetime must not be negative")
	}
	if cfg.InFlightTimeout > cfg.ShutdownTimeout {
		cfg.InFlightTimeout = cfg.ShutdownTimeout
	}
	return nil
}
