// Package state implements FleetState: the in-process shared store every
// mission touches through a handle rather than a raw map pointer.
package state

import (
	"sync"

	"github.com/andrescamacho/fleetcmd/internal/fleet"
)

// Waypoint is the coordinate/trait slice of a waypoint SystemState caches.
type Waypoint struct {
	Symbol string
	X, Y   float64
	Traits []string
}

// SystemState is the per-system cache: waypoints, coordinates, and which
// ship currently claims which route.
type SystemState struct {
	Symbol           string
	Waypoints        []Waypoint
	Coordinates      map[string][2]float64
	MarketWaypoints  []string
	ShipyardWaypoints []string

	mu            sync.RWMutex
	claimedRoutes map[string]fleet.RouteClaim // ship -> claim
}

func newSystemState(symbol string) *SystemState {
	return &SystemState{
		Symbol:        symbol,
		Coordinates:   make(map[string][2]float64),
		claimedRoutes: make(map[string]fleet.RouteClaim),
	}
}

// ClaimRoute records that ship owns (good, src, dst), overwriting any prior
// claim that ship held in this system.
func (s *SystemState) ClaimRoute(ship, good, src, dst string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimedRoutes[ship] = fleet.RouteClaim{Good: good, Source: src, Destination: dst}
}

// ReleaseRoute drops ship's claim, if any.
func (s *SystemState) ReleaseRoute(ship string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimedRoutes, ship)
}

// ExcludedRoutes returns every claim held by a ship other than excludeShip.
// A trade route matching one of these must be treated as unavailable by the
// planner: at most one route claim exists per ship per system.
func (s *SystemState) ExcludedRoutes(excludeShip string) []fleet.RouteClaim {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fleet.RouteClaim, 0, len(s.claimedRoutes))
	for ship, claim := range s.claimedRoutes {
		if ship != excludeShip {
			out = append(out, claim)
		}
	}
	return out
}

// ContractState is the single shared handle ships running the CONTRACT
// mission coordinate through: a negotiation mutex and running totals.
type ContractState struct {
	mu sync.Mutex

	ContractID string
	HasActive  bool

	Revenue            int
	Cost               int
	ContractsCompleted int
	StartCredits       int

	negotiateMu sync.Mutex
}

// Lock/Unlock expose the negotiation mutex directly: only one ship may
// negotiate at a time, and non-negotiating ships wait on it before
// re-checking the API.
func (c *ContractState) LockNegotiate()   { c.negotiateMu.Lock() }
func (c *ContractState) UnlockNegotiate() { c.negotiateMu.Unlock() }

// SetActive / Clear mutate the shared contract handle under its own mutex,
// since readers may race with the single writer updating it mid-delivery.
func (c *ContractState) SetActive(contractID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ContractID = contractID
	c.HasActive = true
}

func (c *ContractState) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ContractID = ""
	c.HasActive = false
}

func (c *ContractState) Snapshot() (contractID string, hasActive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ContractID, c.HasActive
}

func (c *ContractState) RecordCompletion(revenue, cost int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Revenue += revenue
	c.Cost += cost
	c.ContractsCompleted++
}

// FleetState is the process-wide shared store. All accessors are safe for
// concurrent use from mission tasks; the event queue is a buffered channel
// so emit() never blocks a mission on the Commander's consumption rate.
type FleetState struct {
	mu       sync.RWMutex
	systems  map[string]*SystemState
	events   chan fleet.Event
	Contract *ContractState

	shutdownMu sync.Mutex
	shutdownCh chan struct{}
}

// New creates an empty FleetState with a generously buffered event queue
// (spec requires only "bounded-capacity-not-required"; a large buffer keeps
// emit non-blocking in practice without requiring an unbounded channel).
func New() *FleetState {
	return &FleetState{
		systems:    make(map[string]*SystemState),
		events:     make(chan fleet.Event, 4096),
		Contract:   &ContractState{},
		shutdownCh: make(chan struct{}),
	}
}

// GetSystem returns the cached SystemState for symbol, creating it empty on
// first use, per the data model's lifecycle summary.
func (f *FleetState) GetSystem(symbol string) *SystemState {
	f.mu.RLock()
	sys, ok := f.systems[symbol]
	f.mu.RUnlock()
	if ok {
		return sys
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if sys, ok := f.systems[symbol]; ok {
		return sys
	}
	sys = newSystemState(symbol)
	f.systems[symbol] = sys
	return sys
}

// EnsureSystemFromWaypoints populates (or replaces) a system's cached
// waypoint/coordinate/market/shipyard data from a freshly fetched waypoint
// list.
func (f *FleetState) EnsureSystemFromWaypoints(symbol string, waypoints []Waypoint) *SystemState {
	sys := f.GetSystem(symbol)
	sys.Waypoints = waypoints
	sys.Coordinates = make(map[string][2]float64, len(waypoints))
	sys.MarketWaypoints = sys.MarketWaypoints[:0]
	sys.ShipyardWaypoints = sys.ShipyardWaypoints[:0]
	for _, wp := range waypoints {
		sys.Coordinates[wp.Symbol] = [2]float64{wp.X, wp.Y}
		for _, trait := range wp.Traits {
			switch trait {
			case "MARKETPLACE":
				sys.MarketWaypoints = append(sys.MarketWaypoints, wp.Symbol)
			case "SHIPYARD":
				sys.ShipyardWaypoints = append(sys.ShipyardWaypoints, wp.Symbol)
			}
		}
	}
	return sys
}

// ClaimRoute claims a route on behalf of ship within system.
func (f *FleetState) ClaimRoute(system, ship, good, src, dst string) {
	f.GetSystem(system).ClaimRoute(ship, good, src, dst)
}

// ReleaseRoute releases ship's claim within system.
func (f *FleetState) ReleaseRoute(system, ship string) {
	f.GetSystem(system).ReleaseRoute(ship)
}

// GetExcludedRoutes returns every route claimed by a ship other than
// excludeShip within system.
func (f *FleetState) GetExcludedRoutes(system, excludeShip string) []fleet.RouteClaim {
	return f.GetSystem(system).ExcludedRoutes(excludeShip)
}

// Emit enqueues an event for the Commander's consumption. Non-blocking per
// spec §4.3: a full queue drops the oldest event rather than stalling the
// emitting mission.
func (f *FleetState) Emit(e fleet.Event) {
	select {
	case f.events <- e:
	default:
		select {
		case <-f.events:
		default:
		}
		select {
		case f.events <- e:
		default:
		}
	}
}

// Events returns the receive side of the event queue for the Commander's
// main loop.
func (f *FleetState) Events() <-chan fleet.Event {
	return f.events
}

// Shutdown returns the broadcast shutdown signal channel; every task
// observes it directly or via a timeout-bounded select used as an
// interruptible sleep.
func (f *FleetState) Shutdown() <-chan struct{} {
	return f.shutdownCh
}

// TriggerShutdown closes the shutdown channel exactly once.
func (f *FleetState) TriggerShutdown() {
	f.shutdownMu.Lock()
	defer f.shutdownMu.Unlock()
	select {
	case <-f.shutdownCh:
	default:
		close(f.shutdownCh)
	}
}

// IsShuttingDown reports whether TriggerShutdown has fired.
func (f *FleetState) IsShuttingDown() bool {
	select {
	case <-f.shutdownCh:
		return true
	default:
		return false
	}
}
