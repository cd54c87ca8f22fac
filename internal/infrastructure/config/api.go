package config

import "time"

// APIConfig holds the remote SpaceTraders API client configuration: the
// scheduler's rate/burst, the client's timeout, and its retry/circuit
// policy.
type APIConfig struct {
	// Base URL for the remote API.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// Rate limiting settings consumed by the RequestScheduler.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Request timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`

	// Retry configuration. Validated and defaulted, but not read by the
	// ApiClient, which retries on its own fixed backoff schedule.
	Retry RetryConfig `mapstructure:"retry"`

	// Circuit breaker configuration.
	Circuit CircuitConfig `mapstructure:"circuit"`
}

// RateLimitConfig holds the scheduler's token-bucket parameters.
type RateLimitConfig struct {
	// Requests per second sustained once the burst is spent.
	Requests float64 `mapstructure:"requests" validate:"min=0.1"`

	// Burst size for the token bucket.
	Burst int `mapstructure:"burst" validate:"min=1"`
}

// RetryConfig holds retry settings for failed requests. The ApiClient does
// not read them: its attempt count and backoff delays are fixed in
// adapters/api.
type RetryConfig struct {
	// Maximum number of retry attempts (not applied by the ApiClient).
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=0"`

	// Base backoff duration (not applied by the ApiClient).
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// CircuitConfig holds the ApiClient's circuit breaker thresholds.
type CircuitConfig struct {
	// Consecutive failures before the breaker trips.
	Threshold int `mapstructure:"threshold" validate:"min=1"`

	// Cool-down period while the breaker is open.
	Cooldown time.Duration `mapstructure:"cooldown"`
}
