package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pricetracker/internal/fetcher"
)

// clearEnv unsets every bound variable for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	t.Chdir(t.TempDir())
}

func TestLoad_WithDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"Interval", cfg.Interval, time.Hour},
		{"Workers", cfg.Workers, 4},
		{"MaxAttempts", cfg.MaxAttempts, 3},
		{"AttemptTimeout", cfg.AttemptTimeout, 20 * time.Second},
		{"RetryWait", cfg.RetryWait, 2 * time.Second},
		{"RetryMaxWait", cfg.RetryMaxWait, 30 * time.Second},
		{"SeedTimeout", cfg.SeedTimeout, 60 * time.Second},
		{"BrowserWait", cfg.BrowserWait, 10 * time.Second},
		{"RateLimitPerSec", cfg.RateLimitPerSec, 0.5},
		{"AutoMigrate", cfg.AutoMigrate, true},
		{"SMTPPort", cfg.SMTPPort, 587},
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"UserAgent", cfg.UserAgent, fetcher.DefaultUserAgent},
		{"DatabaseURL", cfg.DatabaseURL, ""},
		{"DynamicDomains", len(cfg.DynamicDomains), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if len(cfg.SupportedDomains) == 0 || cfg.SupportedDomains[0] != "amazon.in" {
		t.Errorf("SupportedDomains = %v, want amazon storefronts", cfg.SupportedDomains)
	}
	if cfg.SMTP().Configured() {
		t.Error("SMTP().Configured() = true with no SMTP settings")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)

	envVars := map[string]string{
		"CHECK_INTERVAL":        "15m",
		"WORKERS":               "8",
		"FETCH_MAX_ATTEMPTS":    "5",
		"FETCH_ATTEMPT_TIMEOUT": "5s",
		"SUPPORTED_DOMAINS":     "amazon.in, Flipkart.com",
		"DYNAMIC_DOMAINS":       "flipkart.com",
		"DATABASE_URL":          "postgres://localhost/tracker",
		"SMTP_SERVER":           "smtp.example.com",
		"SMTP_PORT":             "2525",
		"EMAIL_USER":            "alerts@example.com",
		"EMAIL_PASS":            "secret",
		"AUTO_MIGRATE":          "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.Interval != 15*time.Minute {
		t.Errorf("Interval = %v, want %v", cfg.Interval, 15*time.Minute)
	}
	if cfg.Workers != 8 || cfg.MaxAttempts != 5 {
		t.Errorf("Workers, MaxAttempts = %d, %d; want 8, 5", cfg.Workers, cfg.MaxAttempts)
	}
	if cfg.AttemptTimeout != 5*time.Second {
		t.Errorf("AttemptTimeout = %v, want 5s", cfg.AttemptTimeout)
	}
	if got := strings.Join(cfg.SupportedDomains, ","); got != "amazon.in,flipkart.com" {
		t.Errorf("SupportedDomains = %q, want %q", got, "amazon.in,flipkart.com")
	}
	if got := strings.Join(cfg.DynamicDomains, ","); got != "flipkart.com" {
		t.Errorf("DynamicDomains = %q, want %q", got, "flipkart.com")
	}
	if cfg.SMTPPort != 2525 {
		t.Errorf("SMTPPort = %d, want 2525", cfg.SMTPPort)
	}
	if cfg.EmailFrom != "alerts@example.com" {
		t.Errorf("EmailFrom = %q, want EMAIL_USER", cfg.EmailFrom)
	}
	if cfg.AutoMigrate {
		t.Error("AutoMigrate = true, want false")
	}
	smtp := cfg.SMTP()
	if !smtp.Configured() {
		t.Error("SMTP().Configured() = false, want true")
	}
	if smtp.Port != 2525 || smtp.From != "alerts@example.com" {
		t.Errorf("SMTP() = %+v, want port 2525 from alerts@example.com", smtp)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "tracker.yaml")
	content := "interval: 30m\nworkers: 2\nredis_url: redis://localhost:6379/0\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("WORKERS", "6")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.Interval != 30*time.Minute {
		t.Errorf("Interval = %v, want 30m", cfg.Interval)
	}
	if cfg.Workers != 6 {
		t.Errorf("Workers = %d, want 6 (environment wins)", cfg.Workers)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() with a missing explicit file should fail")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)

	t.Setenv("WORKERS", "0")
	t.Setenv("FETCH_MAX_ATTEMPTS", "0")
	t.Setenv("FETCH_RETRY_WAIT", "1m")
	t.Setenv("RATE_LIMIT_PER_SECOND", "0")

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() expected error, got nil")
	}

	for _, want := range []string{"workers", "max_attempts", "retry_wait", "rate_limit_per_second"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err.Error(), want)
		}
	}
}
