package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "8080"
dataset:
  path: "data/hawaii.sqlite"
request:
  timeout: "5s"
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

// clearEnv unsets the override variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "SERVER_PORT", "DATASET_PATH", "DATASET_LOG_QUERIES"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// chdir switches into dir and restores the working directory on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
}

func loadFrom(t *testing.T, yamlContent string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	writeEnvFile(t, dir, yamlContent)
	chdir(t, dir)
	return Load()
}

func TestLoad_Minimal(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, minimalEnvYAML)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatasetPath != "data/hawaii.sqlite" {
		t.Errorf("DatasetPath = %q, want data/hawaii.sqlite", cfg.DatasetPath)
	}
	if cfg.DatasetMaxOpenConns != 4 || cfg.DatasetMaxIdleConns != 4 {
		t.Errorf("pool = %d/%d, want 4/4", cfg.DatasetMaxOpenConns, cfg.DatasetMaxIdleConns)
	}
	if cfg.DatasetConnMaxLifetime != 0 {
		t.Errorf("DatasetConnMaxLifetime = %v, want 0", cfg.DatasetConnMaxLifetime)
	}
	if cfg.DatasetLogQueries {
		t.Error("DatasetLogQueries = true, want false")
	}
	if cfg.RateLimitRPS != 5 || cfg.RateLimitBurst != 10 {
		t.Errorf("rate limit = %d/%d, want 5/10", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.InFlightTimeout != 10*time.Second || cfg.InFlightCheckInterval != 100*time.Millisecond {
		t.Errorf("in-flight = %v/%v, want 10s/100ms", cfg.InFlightTimeout, cfg.InFlightCheckInterval)
	}
	if cfg.OverloadWindow != 60*time.Second || cfg.OverloadThresholdPct != 80 {
		t.Errorf("overload = %v/%d, want 60s/80", cfg.OverloadWindow, cfg.OverloadThresholdPct)
	}
	if cfg.DegradedWindow != 60*time.Second || cfg.DegradedErrorPct != 5 {
		t.Errorf("degraded = %v/%d, want 60s/5", cfg.DegradedWindow, cfg.DegradedErrorPct)
	}
}

func TestLoad_DefaultsWhenSectionsMissing(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, "server:\n  port: \"9090\"\n")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.DatasetPath != defaultDatasetPath {
		t.Errorf("DatasetPath = %q, want %q", cfg.DatasetPath, defaultDatasetPath)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if cfg.RateLimitRPS != 100 || cfg.RateLimitBurst != 250 {
		t.Errorf("rate limit = %d/%d, want 100/250", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, "not: valid: yaml: [[[")
	if err == nil {
		t.Fatal("Load() expected error for invalid config YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("Load() error = %v, want message about parse", err)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, minimalEnvYAML+`
lifecycle:
  overload_window: "soon"
  degraded_window: "-5s"
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OverloadWindow != 60*time.Second {
		t.Errorf("OverloadWindow = %v, want default 60s", cfg.OverloadWindow)
	}
	if cfg.DegradedWindow != 60*time.Second {
		t.Errorf("DegradedWindow = %v, want default 60s", cfg.DegradedWindow)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "5000")
	t.Setenv("DATASET_PATH", "/srv/hawaii.sqlite")
	t.Setenv("DATASET_LOG_QUERIES", "true")

	cfg, err := loadFrom(t, minimalEnvYAML)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "5000" {
		t.Errorf("ServerPort = %q, want 5000", cfg.ServerPort)
	}
	if cfg.DatasetPath != "/srv/hawaii.sqlite" {
		t.Errorf("DatasetPath = %q, want /srv/hawaii.sqlite", cfg.DatasetPath)
	}
	if !cfg.DatasetLogQueries {
		t.Error("DatasetLogQueries = false, want true from env")
	}
}

func TestLoad_InvalidLogQueriesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATASET_LOG_QUERIES", "sometimes")
	_, err := loadFrom(t, minimalEnvYAML)
	if err == nil || !strings.Contains(err.Error(), "DATASET_LOG_QUERIES") {
		t.Errorf("Load() error = %v, want DATASET_LOG_QUERIES error", err)
	}
}

// TestLoad_DotEnvFile verifies that .env is read before the YAML file and
// that variables already in the environment win over it.
func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "7000")

	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	dotenv := "DATASET_PATH=/from/dotenv.sqlite\nSERVER_PORT=1111\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatasetPath != "/from/dotenv.sqlite" {
		t.Errorf("DatasetPath = %q, want value from .env", cfg.DatasetPath)
	}
	if cfg.ServerPort != "7000" {
		t.Errorf("ServerPort = %q, want 7000 from environment", cfg.ServerPort)
	}
}

func TestLoad_PoolSettings(t *testing.T) {
	tests := []struct {
		name    string
		dataset string
		wantErr string
		open    int
		idle    int
		life    time.Duration
	}{
		{
			name:    "explicit",
			dataset: "  max_open_conns: 8\n  max_idle_conns: 2\n  conn_max_lifetime: \"30m\"\n",
			open:    8, idle: 2, life: 30 * time.Minute,
		},
		{
			name:    "unlimited open allows any idle",
			dataset: "  max_open_conns: 0\n  max_idle_conns: 16\n",
			open:    0, idle: 16,
		},
		{
			name:    "negative open",
			dataset: "  max_open_conns: -1\n",
			wantErr: "max_open_conns",
		},
		{
			name:    "negative idle",
			dataset: "  max_idle_conns: -1\n",
			wantErr: "max_idle_conns",
		},
		{
			name:    "idle exceeds open",
			dataset: "  max_open_conns: 2\n  max_idle_conns: 3\n",
			wantErr: "must not exceed",
		},
		{
			name:    "negative lifetime",
			dataset: "  conn_max_lifetime: \"-1m\"\n",
			wantErr: "conn_max_lifetime",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := loadFrom(t, "dataset:\n  path: \"x.sqlite\"\n"+tc.dataset)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("Load() error = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.DatasetMaxOpenConns != tc.open || cfg.DatasetMaxIdleConns != tc.idle || cfg.DatasetConnMaxLifetime != tc.life {
				t.Errorf("pool = %d/%d/%v, want %d/%d/%v",
					cfg.DatasetMaxOpenConns, cfg.DatasetMaxIdleConns, cfg.DatasetConnMaxLifetime, tc.open, tc.idle, tc.life)
			}
		})
	}
}

func TestLoad_InFlightTimeoutCappedByShutdown(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFrom(t, `
shutdown:
  timeout: "5s"
  in_flight_timeout: "20s"
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InFlightTimeout != 5*time.Second {
		t.Errorf("InFlightTimeout = %v, want 5s", cfg.InFlightTimeout)
	}
}

func TestLoad_SucceedsWithProjectConfig(t *testing.T) {
	clearEnv(t)
	chdir(t, findProjectRoot(t))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatasetPath == "" || cfg.ServerPort == "" {
		t.Errorf("Load() did not populate config from config/dev.yaml")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"bogus", time.Second},
		{"0s", time.Second},
		{"-2s", time.Second},
		{" 250ms ", 250 * time.Millisecond},
	}
	for _, tc := range tests {
		if got := parseDuration(tc.in, time.Second); got != tc.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
