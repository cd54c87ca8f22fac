// Package cli implements the single Commander command: the one binary
// this module ships, wiring config, scheduler, API client, and Commander
// together per spec §2/§6.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/andrescamacho/fleetcmd/internal/adapters/api"
	"github.com/andrescamacho/fleetcmd/internal/adapters/metrics"
	"github.com/andrescamacho/fleetcmd/internal/adapters/persistence"
	"github.com/andrescamacho/fleetcmd/internal/fleet"
	"github.com/andrescamacho/fleetcmd/internal/fleet/commander"
	"github.com/andrescamacho/fleetcmd/internal/fleet/scheduler"
	"github.com/andrescamacho/fleetcmd/internal/fleet/state"
	"github.com/andrescamacho/fleetcmd/internal/infrastructure/config"
	"github.com/andrescamacho/fleetcmd/internal/infrastructure/database"
	"github.com/andrescamacho/fleetcmd/internal/infrastructure/pidfile"

	_ "github.com/andrescamacho/fleetcmd/internal/mission/contract"
	_ "github.com/andrescamacho/fleetcmd/internal/mission/gatebuild"
	_ "github.com/andrescamacho/fleetcmd/internal/mission/scan"
	_ "github.com/andrescamacho/fleetcmd/internal/mission/trade"
)

var (
	configPath string
	assigns    []string
	floor      int
	dataDir    string
	skipShips  []string
)

// NewRootCommand builds the single Commander command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fleetcmd",
		Short: "Autonomously operate a fleet of ships against a rate-limited trading API",
		Long: `fleetcmd is the Commander process: it discovers every ship on the
account, assigns each one a mission via FleetStrategy, and supervises the
missions until interrupted.

Examples:
  fleetcmd run
  fleetcmd run --assign SHIP-1:TRADE --assign SHIP-2:SCAN
  fleetcmd run --floor 500000 --data-dir ./data`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(newRunCommand())
	return rootCmd
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the Commander and supervise the fleet until interrupted",
		RunE:  runCommander,
	}
	cmd.Flags().StringArrayVar(&assigns, "assign", nil, "override a ship's mission, SHIP:MISSION (repeatable)")
	cmd.Flags().IntVar(&floor, "floor", 0, "override the gate-build capital floor")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override the data directory")
	cmd.Flags().StringArrayVar(&skipShips, "skip", nil, "ship symbol to leave permanently IDLE (repeatable)")
	return cmd
}

func runCommander(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.Agent.DataDir = dataDir
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = cfg.Agent.DataDir + "/fleet.db"
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	lock := pidfile.New(cfg.Commander.PIDFile)
	if err := lock.Acquire(); err != nil {
		return fmt.Errorf("acquire pidfile: %w", err)
	}
	defer func() { _ = lock.Release() }()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	marketStore := persistence.NewMarketStore(db)
	opsStore := persistence.NewOperationsStore(db)

	var schedMetrics scheduler.MetricsRecorder
	var apiMetrics api.Metrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		schedMetrics = metrics.NewSchedulerCollector()
		apiCollector := metrics.NewAPIMetricsCollector()
		if err := apiCollector.Register(); err != nil {
			return fmt.Errorf("register api metrics: %w", err)
		}
		apiMetrics = apiCollector
		go serveMetrics(cfg.Metrics, logger)
	}

	sched := scheduler.New(scheduler.Config{
		Rate:  cfg.API.RateLimit.Requests,
		Burst: cfg.API.RateLimit.Burst,
	}, schedMetrics)
	defer sched.Stop()

	client := api.New(api.Config{
		BaseURL:          cfg.API.BaseURL,
		Token:            cfg.Agent.Token,
		Timeout:          cfg.API.Timeout,
		CircuitThreshold: cfg.API.Circuit.Threshold,
		CircuitCooldown:  cfg.API.Circuit.Cooldown,
	}, sched, nil, apiMetrics)

	fleetState := state.New()

	overrides := parseOverrides(assigns)
	skip := make(map[string]bool, len(skipShips))
	for _, s := range skipShips {
		skip[strings.ToUpper(s)] = true
	}
	policy := fleet.DefaultCapitalPolicy()
	if floor > 0 {
		policy.GateFloor = floor
	}

	cmdr := commander.New(commander.Options{
		Config:    cfg.Commander,
		API:       client,
		State:     fleetState,
		Store:     marketStore,
		Ops:       opsStore,
		SkipShips: skip,
		Overrides: overrides,
		Policy:    policy,
		Logger:    logger,
	})

	return cmdr.Run(context.Background())
}

// parseOverrides parses repeated "SHIP:MISSION" flag values into a map.
func parseOverrides(raw []string) map[string]string {
	out := make(map[string]string, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out[strings.ToUpper(parts[0])] = strings.ToUpper(parts[1])
	}
	return out
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var out *os.File = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.IncludeCaller}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// serveMetrics runs the Prometheus HTTP endpoint until the process exits.
func serveMetrics(cfg config.MetricsConfig, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", "error", err)
	}
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
