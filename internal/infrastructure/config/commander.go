package config

import "time"

// CommanderConfig holds the Commander process's operational parameters:
// its single-instance pidfile, main-loop timing, and restart policy.
type CommanderConfig struct {
	// PID file location; only one Commander may hold it per data dir.
	PIDFile string `mapstructure:"pid_file"`

	// How long the main loop waits for the next event before draining
	// non-blockingly and running its periodic checks anyway.
	EventTimeout time.Duration `mapstructure:"event_timeout" validate:"required"`

	// Agent credits/ship-count snapshots are recorded every N main-loop
	// iterations.
	SnapshotEveryNCycles int `mapstructure:"snapshot_every_n_cycles" validate:"min=1"`

	// Per-agent restart policy after a MISSION_CRASHED event.
	RestartPolicy RestartPolicyConfig `mapstructure:"restart_policy"`

	// Grace period given to a cancelled task before the Commander gives up
	// waiting on it (reassignment or shutdown).
	CancelGrace time.Duration `mapstructure:"cancel_grace"`
}

// RestartPolicyConfig holds the fixed restart-budget/backoff schedule a
// crashed ShipAgent is relaunched under.
type RestartPolicyConfig struct {
	// Maximum restart attempts before the ship is parked IDLE.
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=0"`

	// Backoff delay indexed by min(restart_count, len(Backoff)-1).
	Backoff []time.Duration `mapstructure:"backoff"`
}
