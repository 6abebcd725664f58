package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	LogLevel string `json:"logLevel"`

	MaxBodySize int64 `json:"maxBodySize"`

	MaxBatchSize   int `json:"maxBatchSize"`   // caller requests per upstream call
	MaxTotalInputs int `json:"maxTotalInputs"` // input strings per upstream call (upstream hard cap)
	MaxWaitTime    int `json:"maxWaitTimeMs"`  // ms a batch stays open after its first item

	RequestTimeout      int  `json:"requestTimeout"`      // ms per caller; 0 derives from maxWaitTimeMs + upstreamTimeout
	UpstreamTimeout     int  `json:"upstreamTimeout"`     // ms per inference call
	HealthCheckInterval int  `json:"healthCheckInterval"` // ms
	ShutdownGracePeriod int  `json:"shutdownGracePeriod"` // ms to wait for in-flight batches on shutdown
	IncludeBatchInfo    bool `json:"includeBatchInfo"`

	Cache     *CacheConfig     `json:"cache,omitempty"`
	Upstreams []UpstreamConfig `json:"upstreams"`
}

// CacheConfig represents the embedding cache configuration
type CacheConfig struct {
	Enabled bool `json:"enabled"`
	TTL     int  `json:"ttl"`  // seconds
	Size    int  `json:"size"` // number of entries
}

// UpstreamConfig represents a single inference endpoint
type UpstreamConfig struct {
	Name   string `json:"name"`
	URL    string `json:"url"` // base URL; /embed and /health are appended
	Weight int    `json:"weight"`
}

// Default values
const (
	DefaultHost        = "localhost"
	DefaultPort        = 3000
	DefaultLogLevel    = "info"
	DefaultMaxBodySize = int64(1 << 20)

	DefaultMaxBatchSize = 8
	// all-MiniLM-L6-v2 on text-embeddings-inference handles up to 32
	// inputs per call; other models may differ, so this is configurable.
	DefaultMaxTotalInputs = 32
	DefaultMaxWaitTime    = 3000 // ms

	DefaultUpstreamTimeout     = 30000 // ms
	DefaultHealthCheckInterval = 10000 // ms
	DefaultShutdownGracePeriod = 10000 // ms
	DefaultUpstreamWeight      = 1
	DefaultUpstreamURL         = "http://127.0.0.1:8080"
)

// GetMaxWaitDuration returns the batch deadline as time.Duration
func (c *Config) GetMaxWaitDuration() time.Duration {
	return time.Duration(c.MaxWaitTime) * time.Millisecond
}

// GetRequestTimeoutDuration returns the per-caller safety timeout. When not
// configured it is derived so that it always outlasts a full batch cycle:
// the batch deadline plus one inference call plus slack.
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	if c.RequestTimeout > 0 {
		return time.Duration(c.RequestTimeout) * time.Millisecond
	}
	return c.GetMaxWaitDuration() + c.GetUpstreamTimeoutDuration() + 5*time.Second
}

// GetUpstreamTimeoutDuration returns the inference call timeout as time.Duration
func (c *Config) GetUpstreamTimeoutDuration() time.Duration {
	return time.Duration(c.UpstreamTimeout) * time.Millisecond
}

// GetHealthCheckIntervalDuration returns the health check interval as time.Duration
func (c *Config) GetHealthCheckIntervalDuration() time.Duration {
	return time.Duration(c.HealthCheckInterval) * time.Millisecond
}

// GetShutdownGraceDuration returns the shutdown grace period as time.Duration
func (c *Config) GetShutdownGraceDuration() time.Duration {
	return time.Duration(c.ShutdownGracePeriod) * time.Millisecond
}

// IsCacheEnabled returns true if the embedding cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}
