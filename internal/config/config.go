package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Default returns a configuration with all defaults applied and a single
// local inference endpoint.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.MaxTotalInputs == 0 {
		cfg.MaxTotalInputs = DefaultMaxTotalInputs
	}
	if cfg.MaxWaitTime == 0 {
		cfg.MaxWaitTime = DefaultMaxWaitTime
	}
	// RequestTimeout default is 0, which means derived; see GetRequestTimeoutDuration
	if cfg.UpstreamTimeout == 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if cfg.ShutdownGracePeriod == 0 {
		cfg.ShutdownGracePeriod = DefaultShutdownGracePeriod
	}

	if len(cfg.Upstreams) == 0 {
		cfg.Upstreams = []UpstreamConfig{{Name: "default", URL: DefaultUpstreamURL}}
	}
	for i := range cfg.Upstreams {
		if cfg.Upstreams[i].Weight == 0 {
			cfg.Upstreams[i].Weight = DefaultUpstreamWeight
		}
	}
}

// Validate checks the configuration for errors. Called by Load and again by
// main after CLI flag overrides are applied.
func Validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.MaxBatchSize < 1 {
		return fmt.Errorf("maxBatchSize must be >= 1")
	}
	if cfg.MaxTotalInputs < 1 {
		return fmt.Errorf("maxTotalInputs must be >= 1")
	}
	if cfg.MaxWaitTime < 0 {
		return fmt.Errorf("maxWaitTimeMs must be non-negative")
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstreamTimeout must be positive")
	}
	if cfg.HealthCheckInterval <= 0 {
		return fmt.Errorf("healthCheckInterval must be positive")
	}
	if cfg.ShutdownGracePeriod < 0 {
		return fmt.Errorf("shutdownGracePeriod must be non-negative")
	}

	if len(cfg.Upstreams) == 0 {
		return errors.New("at least one upstream is required")
	}

	names := make(map[string]bool)
	for i, u := range cfg.Upstreams {
		if u.Name == "" {
			return fmt.Errorf("upstream[%d]: name is required", i)
		}
		if names[u.Name] {
			return fmt.Errorf("upstream[%d]: duplicate upstream name '%s'", i, u.Name)
		}
		names[u.Name] = true

		if u.URL == "" {
			return fmt.Errorf("upstream '%s': url is required", u.Name)
		}
		if u.Weight <= 0 {
			return fmt.Errorf("upstream '%s': weight must be positive", u.Name)
		}
	}

	// Validate cache config if provided
	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache is enabled")
		}
		if cfg.Cache.Size <= 0 {
			return fmt.Errorf("cache.size must be positive when cache is enabled")
		}
	}

	return nil
}
