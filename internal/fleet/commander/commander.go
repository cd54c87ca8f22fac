// Package commander implements Commander: the top-level supervisor that
// owns the scheduler, the API client, and one ShipAgent per ship, and
// drives startup, the event loop, crash recovery, and reassignment.
package commander

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/andrescamacho/fleetcmd/internal/adapters/api"
	"github.com/andrescamacho/fleetcmd/internal/adapters/persistence"
	"github.com/andrescamacho/fleetcmd/internal/fleet"
	"github.com/andrescamacho/fleetcmd/internal/fleet/agent"
	"github.com/andrescamacho/fleetcmd/internal/fleet/logging"
	"github.com/andrescamacho/fleetcmd/internal/fleet/mission"
	"github.com/andrescamacho/fleetcmd/internal/fleet/state"
	"github.com/andrescamacho/fleetcmd/internal/fleet/strategy"
	"github.com/andrescamacho/fleetcmd/internal/infrastructure/config"
)

// Commander owns every long-lived fleet resource: the API client, the
// shared FleetState, one Agent per known ship, and the operations store it
// periodically snapshots to.
type Commander struct {
	cfg  config.CommanderConfig
	deps mission.Deps
	log  *slog.Logger

	skipShips map[string]bool
	overrides map[string]string
	policy    fleet.CapitalPolicy

	mu     sync.Mutex
	agents map[string]*agent.Agent

	cycle int
}

// Options configures a Commander at construction.
type Options struct {
	Config    config.CommanderConfig
	API       *api.Client
	State     *state.FleetState
	Store     *persistence.MarketStore
	Ops       *persistence.OperationsStore
	SkipShips map[string]bool
	Overrides map[string]string
	Policy    fleet.CapitalPolicy
	Logger    *slog.Logger
}

// New constructs a Commander from deps. It does not touch the network or
// spawn anything; call Run to start.
func New(opts Options) *Commander {
	if opts.SkipShips == nil {
		opts.SkipShips = map[string]bool{}
	}
	if opts.Overrides == nil {
		opts.Overrides = map[string]string{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Commander{
		cfg: opts.Config,
		deps: mission.Deps{
			API:   opts.API,
			State: opts.State,
			Store: opts.Store,
			Ops:   opts.Ops,
		},
		log:       logger,
		skipShips: opts.SkipShips,
		overrides: opts.Overrides,
		policy:    opts.Policy,
		agents:    make(map[string]*agent.Agent),
	}
}

// Run executes the full startup sequence, then blocks in the main loop
// until shutdown is signalled (SIGINT/SIGTERM or ctx cancellation), and
// then until every spawned task has exited or used up its CancelGrace.
func (c *Commander) Run(ctx context.Context) error {
	ctx = logging.WithLogger(ctx, logging.NewSlogLogger(c.log))
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ships, err := c.deps.API.ListShips(sigCtx)
	if err != nil {
		return err
	}
	for _, ship := range ships {
		c.deps.State.EnsureSystemFromWaypoints(ship.Nav.SystemSymbol, nil)
	}

	plan, err := c.computePlan(sigCtx, ships)
	if err != nil {
		return err
	}

	c.mu.Lock()
	for _, ship := range ships {
		c.agents[ship.Symbol] = agent.New(ship.Symbol)
	}
	for shipSymbol, a := range plan.Assignments {
		if a.Mission == fleet.MissionIdle {
			continue
		}
		if ag, ok := c.agents[shipSymbol]; ok {
			ag.Launch(sigCtx, c.deps, a.Mission, a.Kwargs)
		}
	}
	c.mu.Unlock()

	c.mainLoop(sigCtx)

	c.shutdown()
	return nil
}

// mainLoop implements spec §4.7's event loop: bounded wait for the next
// event, non-blocking drain, per-event-type handling, periodic snapshot,
// and strategy re-evaluation when a strategic event was observed.
func (c *Commander) mainLoop(ctx context.Context) {
	restartBackoff := c.cfg.RestartPolicy.Backoff
	maxRestarts := c.cfg.RestartPolicy.MaxAttempts

	for {
		if c.deps.State.IsShuttingDown() || ctx.Err() != nil {
			return
		}

		var batch []fleet.Event
		select {
		case e, ok := <-c.deps.State.Events():
			if !ok {
				return
			}
			batch = append(batch, e)
		case <-time.After(c.cfg.EventTimeout):
		case <-c.deps.State.Shutdown():
			return
		case <-ctx.Done():
			return
		}
		batch = append(batch, c.drainNonBlocking()...)

		strategic := false
		for _, e := range batch {
			if e.Type.IsStrategic() {
				strategic = true
			}
			switch e.Type {
			case fleet.EventMissionCrashed:
				c.handleCrash(ctx, e, maxRestarts, restartBackoff)
			case fleet.EventMissionEnded:
				c.log.Info("mission ended", "ship", e.ShipSymbol)
			}
		}

		c.cycle++
		if c.cycle%c.cfg.SnapshotEveryNCycles == 0 {
			c.snapshot(ctx)
		}

		if strategic {
			c.reassign(ctx)
		}
	}
}

func (c *Commander) drainNonBlocking() []fleet.Event {
	var events []fleet.Event
	for {
		select {
		case e, ok := <-c.deps.State.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		default:
			return events
		}
	}
}

// handleCrash applies the restart-budget/backoff policy to a single
// MISSION_CRASHED event.
func (c *Commander) handleCrash(ctx context.Context, e fleet.Event, maxRestarts int, backoff []time.Duration) {
	c.mu.Lock()
	a, ok := c.agents[e.ShipSymbol]
	c.mu.Unlock()
	if !ok {
		return
	}
	_, restartCount := a.Snapshot()
	if restartCount >= maxRestarts {
		c.log.Warn("restart budget exhausted, parking idle", "ship", e.ShipSymbol, "restarts", restartCount)
		return
	}
	idx := restartCount
	if idx >= len(backoff) {
		idx = len(backoff) - 1
	}
	select {
	case <-time.After(backoff[idx]):
	case <-c.deps.State.Shutdown():
		return
	}
	if c.deps.State.IsShuttingDown() {
		return
	}
	a.Relaunch(ctx, c.deps)
}

// snapshot records an agent credits/ship-count snapshot to the operations
// store.
func (c *Commander) snapshot(ctx context.Context) {
	info, err := c.deps.API.GetAgent(ctx)
	if err != nil {
		return
	}
	c.mu.Lock()
	shipCount := len(c.agents)
	c.mu.Unlock()
	_ = c.deps.Ops.SnapshotAgent(ctx, info.Credits, shipCount)
}

// reassign refreshes the ship list, re-runs FleetStrategy, and cancels and
// relaunches every ship whose assignment changed.
func (c *Commander) reassign(ctx context.Context) {
	ships, err := c.deps.API.ListShips(ctx)
	if err != nil {
		c.log.Warn("reassign: list ships failed", "error", err)
		return
	}

	plan, err := c.computePlan(ctx, ships)
	if err != nil {
		c.log.Warn("reassign: compute plan failed", "error", err)
		return
	}

	c.mu.Lock()
	current := make(map[string]fleet.ShipAssignment, len(c.agents))
	for symbol, a := range c.agents {
		missionKind, _ := a.Snapshot()
		current[symbol] = fleet.ShipAssignment{Mission: missionKind}
	}
	for _, ship := range ships {
		if _, ok := c.agents[ship.Symbol]; !ok {
			c.agents[ship.Symbol] = agent.New(ship.Symbol)
		}
	}
	changed := plan.ChangesFrom(current)
	agentsBySymbol := make(map[string]*agent.Agent, len(changed))
	for symbol := range changed {
		agentsBySymbol[symbol] = c.agents[symbol]
	}
	c.mu.Unlock()

	for symbol, next := range changed {
		a := agentsBySymbol[symbol]
		if a == nil {
			continue
		}
		a.Cancel(c.cfg.CancelGrace)
		a.ResetRestartCount()
		if next.Mission != fleet.MissionIdle {
			a.Launch(ctx, c.deps, next.Mission, next.Kwargs)
		}
	}
}

// computePlan builds the WorldState FleetStrategy needs from live ship
// data and shared state, then evaluates it.
func (c *Commander) computePlan(ctx context.Context, ships []api.Ship) (fleet.FleetPlan, error) {
	info, err := c.deps.API.GetAgent(ctx)
	if err != nil {
		return fleet.FleetPlan{}, err
	}

	capabilities := make([]fleet.ShipCapability, 0, len(ships))
	systems := map[string]bool{}
	for _, ship := range ships {
		systems[ship.Nav.SystemSymbol] = true
		c.mu.Lock()
		missionKind := fleet.MissionIdle
		if a, ok := c.agents[ship.Symbol]; ok {
			missionKind, _ = a.Snapshot()
		}
		c.mu.Unlock()
		capabilities = append(capabilities, fleet.ShipCapability{
			Symbol:         ship.Symbol,
			CargoCapacity:  ship.Cargo.Capacity,
			FuelCapacity:   ship.Fuel.Capacity,
			Category:       classify(ship),
			CurrentMission: missionKind,
		})
	}

	hasActiveContract, contractProfitable := c.contractStatus(ctx, systems)
	gateNeedsSupplies := c.gateNeedsSupplies(ctx, systems)
	marketRoutesAvailable := c.marketRoutesAvailable(ctx, systems)

	world := fleet.WorldState{
		Credits:               info.Credits,
		Ships:                 capabilities,
		CurrentAssignments:    map[string]fleet.ShipAssignment{},
		HasActiveContract:     hasActiveContract,
		ContractProfitable:    contractProfitable,
		GateNeedsSupplies:     gateNeedsSupplies,
		MarketRoutesAvailable: marketRoutesAvailable,
		SkipShips:             c.skipShips,
		Overrides:             c.overrides,
		Policy:                c.policy,
	}
	return strategy.Evaluate(world), nil
}

// classify partitions a ship by its frame: PROBE-framed ships scan, every
// other ship carries cargo. The disabled and sentinel categories are never
// produced here; a ship is kept IDLE only through the skip-set or an
// explicit override.
func classify(ship api.Ship) fleet.ShipCategory {
	if strings.Contains(ship.Frame.Symbol, "PROBE") {
		return fleet.CategoryProbe
	}
	return fleet.CategoryShip
}

func (c *Commander) contractStatus(ctx context.Context, systems map[string]bool) (active bool, profitable bool) {
	contracts, err := c.deps.API.ListContracts(ctx)
	if err != nil {
		return false, false
	}
	for _, contract := range contracts {
		if contract.Accepted && !contract.Fulfilled {
			return true, true
		}
	}
	return false, false
}

func (c *Commander) gateNeedsSupplies(ctx context.Context, systems map[string]bool) bool {
	for system := range systems {
		waypoints, err := c.deps.API.ListWaypoints(ctx, system)
		if err != nil {
			continue
		}
		for _, wp := range waypoints {
			if wp.Type != "JUMP_GATE" && wp.Type != "FUEL_STATION" {
				continue
			}
			construction, err := c.deps.API.GetConstruction(ctx, system, wp.Symbol)
			if err != nil {
				continue
			}
			if !construction.IsComplete {
				return true
			}
		}
	}
	return false
}

func (c *Commander) marketRoutesAvailable(ctx context.Context, systems map[string]bool) bool {
	for system := range systems {
		ok, err := c.deps.Store.HasProfitableRoutes(ctx, system)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// shutdown cancels every running agent, giving each CancelGrace to exit.
func (c *Commander) shutdown() {
	c.deps.State.TriggerShutdown()
	c.mu.Lock()
	agents := make([]*agent.Agent, 0, len(c.agents))
	for _, a := range c.agents {
		agents = append(agents, a)
	}
	c.mu.Unlock()

	sort.Slice(agents, func(i, j int) bool { return agents[i].ShipSymbol < agents[j].ShipSymbol })

	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func(a *agent.Agent) {
			defer wg.Done()
			a.Cancel(c.cfg.CancelGrace)
		}(a)
	}
	wg.Wait()
}

// WaitForSignal blocks the caller until SIGINT/SIGTERM or ctx is done. It
// is independent of Run's own signal context; nothing in this module calls
// it.
func WaitForSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
}
