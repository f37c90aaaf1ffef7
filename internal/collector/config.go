// Package collector implements the HTTP service that receives heartbeat,
// ack, and bulk requests from Lumen connectors.
package collector

import (
	"time"
)

// Config holds collector HTTP configuration.
type Config struct {
	// Addr is the address to listen on (e.g., ":8080")
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// APIKey is the shared secret connectors must present in X-API-Key.
	// Empty disables authentication (development mode).
	APIKey string `env:"COLLECTOR_API_KEY"`

	// DBPath is the SQLite database path for the event store
	DBPath string `env:"COLLECTOR_DB_PATH" envDefault:"lumen.db"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`

	// WriteTimeout is the maximum duration before timing out response writes
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// MaxBodyBytes is the maximum accepted request body size
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"10485760"` // 10MB

	// Dedup configuration
	Dedup DedupConfig `envPrefix:"DEDUP_"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
}

// DedupConfig holds payload deduplication configuration.
type DedupConfig struct {
	// Window is the sliding window during which a retried payload is
	// recognized as a duplicate
	Window time.Duration `env:"WINDOW" envDefault:"10m"`

	// Capacity is the expected number of payloads per window
	Capacity uint `env:"CAPACITY" envDefault:"100000"`

	// FPRate is the bloom filter false positive rate
	FPRate float64 `env:"FP_RATE" envDefault:"0.0001"`
}

// RateLimitConfig holds ingest rate limiting configuration.
type RateLimitConfig struct {
	// Enabled turns rate limiting on
	Enabled bool `env:"ENABLED" envDefault:"true"`

	// RPS is the sustained requests-per-second budget
	RPS float64 `env:"RPS" envDefault:"50"`

	// Burst is the instantaneous burst budget
	Burst int `env:"BURST" envDefault:"100"`
}
