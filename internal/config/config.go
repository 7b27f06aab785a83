// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment
// variables.
type Config struct {
	ListenAddr    string
	DBPath        string
	Partitions    int
	ConsumerGroup string
	PollInterval  time.Duration
	RetryMax      int
	RetryDelay    time.Duration
	IngestRPS     int
	IngestBurst   int

	ProviderEmailURL string
	ProviderSMSURL   string
	ProviderToken    string
	ProviderTimeout  time.Duration
}

// Load reads configuration from environment variables and returns a
// validated Config. Provider endpoint URLs (DISPATCH_PROVIDER_EMAIL_URL,
// DISPATCH_PROVIDER_SMS_URL) are required; everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      "127.0.0.1:8080",
		DBPath:          "dispatch.db",
		Partitions:      2,
		ConsumerGroup:   "dispatchers",
		PollInterval:    200 * time.Millisecond,
		RetryMax:        3,
		RetryDelay:      2 * time.Second,
		IngestRPS:       25,
		IngestBurst:     50,
		ProviderTimeout: 10 * time.Second,
	}

	if v, ok := os.LookupEnv("DISPATCH_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("DISPATCH_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("DISPATCH_CONSUMER_GROUP"); ok && v != "" {
		cfg.ConsumerGroup = v
	}
	cfg.ProviderToken = os.Getenv("DISPATCH_PROVIDER_TOKEN")

	var err error
	if cfg.Partitions, err = intVar("DISPATCH_PARTITIONS", cfg.Partitions); err != nil {
		return nil, err
	}
	if cfg.RetryMax, err = intVar("DISPATCH_RETRY_MAX", cfg.RetryMax); err != nil {
		return nil, err
	}
	if cfg.IngestRPS, err = intVar("DISPATCH_INGEST_RPS", cfg.IngestRPS); err != nil {
		return nil, err
	}
	if cfg.IngestBurst, err = intVar("DISPATCH_INGEST_BURST", cfg.IngestBurst); err != nil {
		return nil, err
	}

	if cfg.PollInterval, err = durationVar("DISPATCH_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = durationVar("DISPATCH_RETRY_DELAY", cfg.RetryDelay); err != nil {
		return nil, err
	}
	if cfg.ProviderTimeout, err = durationVar("DISPATCH_PROVIDER_TIMEOUT", cfg.ProviderTimeout); err != nil {
		return nil, err
	}

	cfg.ProviderEmailURL = os.Getenv("DISPATCH_PROVIDER_EMAIL_URL")
	if cfg.ProviderEmailURL == "" {
		return nil, fmt.Errorf("DISPATCH_PROVIDER_EMAIL_URL is required")
	}
	cfg.ProviderSMSURL = os.Getenv("DISPATCH_PROVIDER_SMS_URL")
	if cfg.ProviderSMSURL == "" {
		return nil, fmt.Errorf("DISPATCH_PROVIDER_SMS_URL is required")
	}

	if cfg.Partitions < 1 {
		return nil, fmt.Errorf("DISPATCH_PARTITIONS must be at least 1, got %d", cfg.Partitions)
	}
	if cfg.RetryMax < 1 {
		return nil, fmt.Errorf("DISPATCH_RETRY_MAX must be at least 1, got %d", cfg.RetryMax)
	}

	return cfg, nil
}

func intVar(name string, fallback int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", name, v, err)
	}

	return parsed, nil
}

func durationVar(name string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", name, v, err)
	}

	return parsed, nil
}
