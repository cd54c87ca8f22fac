package config

import "time"

// SetDefaults sets default values for all configuration fields.
func SetDefaults(cfg *Config) {
	if cfg.Agent.DataDir == "" {
		cfg.Agent.DataDir = "./data"
	}

	// Database defaults
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/fleet.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 25
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 5
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 5 * time.Minute
	}

	// API defaults
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://api.spacetraders.io/v2"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.API.RateLimit.Requests == 0 {
		cfg.API.RateLimit.Requests = 2
	}
	if cfg.API.RateLimit.Burst == 0 {
		cfg.API.RateLimit.Burst = 10
	}
	if cfg.API.Retry.MaxAttempts == 0 {
		cfg.API.Retry.MaxAttempts = 5
	}
	if cfg.API.Retry.BackoffBase == 0 {
		cfg.API.Retry.BackoffBase = 5 * time.Second
	}
	if cfg.API.Circuit.Threshold == 0 {
		cfg.API.Circuit.Threshold = 10
	}
	if cfg.API.Circuit.Cooldown == 0 {
		cfg.API.Circuit.Cooldown = 120 * time.Second
	}

	// Commander defaults
	if cfg.Commander.PIDFile == "" {
		cfg.Commander.PIDFile = "./data/fleetcmd.pid"
	}
	if cfg.Commander.EventTimeout == 0 {
		cfg.Commander.EventTimeout = 30 * time.Second
	}
	if cfg.Commander.SnapshotEveryNCycles == 0 {
		cfg.Commander.SnapshotEveryNCycles = 10
	}
	if cfg.Commander.CancelGrace == 0 {
		cfg.Commander.CancelGrace = 5 * time.Second
	}
	if cfg.Commander.RestartPolicy.MaxAttempts == 0 {
		cfg.Commander.RestartPolicy.MaxAttempts = 5
	}
	if len(cfg.Commander.RestartPolicy.Backoff) == 0 {
		cfg.Commander.RestartPolicy.Backoff = []time.Duration{
			10 * time.Second, 30 * time.Second, 60 * time.Second,
			120 * time.Second, 300 * time.Second,
		}
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.Rotation.MaxSize == 0 {
		cfg.Logging.Rotation.MaxSize = 100 // MB
	}
	if cfg.Logging.Rotation.MaxBackups == 0 {
		cfg.Logging.Rotation.MaxBackups = 3
	}
	if cfg.Logging.Rotation.MaxAge == 0 {
		cfg.Logging.Rotation.MaxAge = 28 // days
	}

	// Metrics defaults
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "localhost"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
