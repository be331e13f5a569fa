package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the coach gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Base URL of the transcription/coaching/TTS backend. Relative audio URLs
	// and named-file lookups are resolved against this address.
	BackendURL string `envconfig:"BACKEND_URL" default:"http://localhost:8000"`

	// Coach reply reveal cadence (milliseconds between characters)
	CoachRevealIntervalMS int `envconfig:"COACH_REVEAL_INTERVAL_MS" default:"30"`

	// Audio capture configuration
	CaptureChunkMS         int     `envconfig:"CAPTURE_CHUNK_MS" default:"100"`           // Local microphone chunk duration
	SilenceAutoStop        bool    `envconfig:"SILENCE_AUTO_STOP" default:"false"`        // Stop recording automatically on sustained silence
	SilenceEnergyThreshold float64 `envconfig:"SILENCE_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold below which a chunk is silent
	SilenceChunks          int     `envconfig:"SILENCE_CHUNKS" default:"25"`              // Consecutive silent chunks before auto-stop

	// Backend HTTP configuration
	RequestTimeoutSeconds int `envconfig:"REQUEST_TIMEOUT_SECONDS" default:"30"` // Per-request timeout for backend calls
	RetryMaxAttempts      int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`       // Maximum attempts for transient transport faults
	RetryInitialBackoffMS int `envconfig:"RETRY_INITIAL_BACKOFF_MS" default:"100"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.BackendURL)
	}
	if c.CoachRevealIntervalMS <= 0 {
		return fmt.Errorf("COACH_REVEAL_INTERVAL_MS must be positive, got %d", c.CoachRevealIntervalMS)
	}
	return nil
}

// BackendBase returns the backend base URL without a trailing slash,
// ready for path concatenation.
func (c *Config) BackendBase() string {
	return strings.TrimRight(c.BackendURL, "/")
}

// RequestTimeout returns the backend request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// CoachRevealInterval returns the reveal cadence as a duration.
func (c *Config) CoachRevealInterval() time.Duration {
	return time.Duration(c.CoachRevealIntervalMS) * time.Millisecond
}

// RetryInitialBackoff returns the initial retry backoff as a duration.
func (c *Config) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoffMS) * time.Millisecond
}
