package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pricetracker/internal/fetcher"
	"pricetracker/internal/notifier"
)

// Config holds all configuration for the price tracker.
type Config struct {
	// Scheduling
	Interval time.Duration `mapstructure:"interval"`
	Workers  int           `mapstructure:"workers"`

	// Fetching
	MaxAttempts       int           `mapstructure:"max_attempts"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	RetryWait         time.Duration `mapstructure:"retry_wait"`
	RetryMaxWait      time.Duration `mapstructure:"retry_max_wait"`
	SeedTimeout       time.Duration `mapstructure:"seed_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	SupportedDomains  []string      `mapstructure:"supported_domains"`
	DynamicDomains    []string      `mapstructure:"dynamic_domains"`
	RateLimitPerSec   float64       `mapstructure:"rate_limit_per_second"`
	BrowserControlURL string        `mapstructure:"browser_control_url"`
	BrowserBin        string        `mapstructure:"browser_bin"`
	BrowserWait       time.Duration `mapstructure:"browser_wait_timeout"`

	// Storage and coordination
	DatabaseURL string `mapstructure:"database_url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	RedisURL    string `mapstructure:"redis_url"`

	// Mail
	SMTPServer     string `mapstructure:"smtp_server"`
	SMTPPort       int    `mapstructure:"smtp_port"`
	EmailUser      string `mapstructure:"email_user"`
	EmailPass      string `mapstructure:"email_pass"`
	EmailFrom      string `mapstructure:"email_from"`
	CurrencySymbol string `mapstructure:"currency_symbol"`

	// Service
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`
}

// envBindings maps config keys to their environment variables
var envBindings = map[string]string{
	"interval":              "CHECK_INTERVAL",
	"workers":               "WORKERS",
	"max_attempts":          "FETCH_MAX_ATTEMPTS",
	"attempt_timeout":       "FETCH_ATTEMPT_TIMEOUT",
	"retry_wait":            "FETCH_RETRY_WAIT",
	"retry_max_wait":        "FETCH_RETRY_MAX_WAIT",
	"seed_timeout":          "SEED_TIMEOUT",
	"user_agent":            "USER_AGENT",
	"supported_domains":     "SUPPORTED_DOMAINS",
	"dynamic_domains":       "DYNAMIC_DOMAINS",
	"rate_limit_per_second": "RATE_LIMIT_PER_SECOND",
	"browser_control_url":   "BROWSER_CONTROL_URL",
	"browser_bin":           "BROWSER_BIN",
	"browser_wait_timeout":  "BROWSER_WAIT_TIMEOUT",
	"database_url":          "DATABASE_URL",
	"auto_migrate":          "AUTO_MIGRATE",
	"redis_url":             "REDIS_URL",
	"smtp_server":           "SMTP_SERVER",
	"smtp_port":             "SMTP_PORT",
	"email_user":            "EMAIL_USER",
	"email_pass":            "EMAIL_PASS",
	"email_from":            "EMAIL_FROM",
	"currency_symbol":       "CURRENCY_SYMBOL",
	"http_addr":             "HTTP_ADDR",
	"log_level":             "LOG_LEVEL",
}

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over config file values. When configFile
// is empty, config.yaml is looked up in the working directory and
// $HOME/.pricetracker; a missing file is not an error, but an explicitly named
// one is.
//
// Every invalid value is reported in the returned error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("interval", time.Hour)
	v.SetDefault("workers", 4)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("attempt_timeout", 20*time.Second)
	v.SetDefault("retry_wait", 2*time.Second)
	v.SetDefault("retry_max_wait", 30*time.Second)
	v.SetDefault("seed_timeout", 60*time.Second)
	v.SetDefault("user_agent", fetcher.DefaultUserAgent)
	v.SetDefault("supported_domains", []string{
		"amazon.in", "amazon.com", "amazon.co.uk", "amazon.de", "amazon.ca", "amzn.in", "amzn.to",
	})
	v.SetDefault("dynamic_domains", []string{})
	v.SetDefault("rate_limit_per_second", 0.5)
	v.SetDefault("browser_wait_timeout", 10*time.Second)
	v.SetDefault("auto_migrate", true)
	v.SetDefault("smtp_port", 587)
	v.SetDefault("currency_symbol", "₹")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pricetracker")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	for key, env := range envBindings {
		v.BindEnv(key, env)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.SupportedDomains = cleanList(config.SupportedDomains)
	config.DynamicDomains = cleanList(config.DynamicDomains)
	if config.EmailFrom == "" {
		config.EmailFrom = config.EmailUser
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every out-of-range value
func (c *Config) Validate() error {
	var problems []string

	if c.Interval <= 0 {
		problems = append(problems, "interval must be positive")
	}
	if c.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	if c.MaxAttempts < 1 {
		problems = append(problems, "max_attempts must be at least 1")
	}
	if c.AttemptTimeout <= 0 {
		problems = append(problems, "attempt_timeout must be positive")
	}
	if c.SeedTimeout <= 0 {
		problems = append(problems, "seed_timeout must be positive")
	}
	if c.BrowserWait <= 0 {
		problems = append(problems, "browser_wait_timeout must be positive")
	}
	if c.RetryWait < 0 || c.RetryMaxWait < 0 {
		problems = append(problems, "retry waits must not be negative")
	} else if c.RetryWait > c.RetryMaxWait {
		problems = append(problems, "retry_wait must not exceed retry_max_wait")
	}
	if c.RateLimitPerSec <= 0 {
		problems = append(problems, "rate_limit_per_second must be positive")
	}
	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		problems = append(problems, "smtp_port must be a valid port")
	}
	if len(c.SupportedDomains) == 0 {
		problems = append(problems, "supported_domains must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SMTP returns the mail delivery settings.
func (c *Config) SMTP() notifier.SMTPConfig {
	return notifier.SMTPConfig{
		Server:   c.SMTPServer,
		Port:     c.SMTPPort,
		Username: c.EmailUser,
		Password: c.EmailPass,
		From:     c.EmailFrom,
	}
}

// cleanList trims entries and drops empty ones. Env values arrive as a single
// comma-separated string.
func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
