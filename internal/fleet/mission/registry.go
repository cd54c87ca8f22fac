// Package mission implements MissionRegistry: the static map from mission
// kind to mission entry point that ShipAgent launches.
package mission

import (
	"context"

	"github.com/andrescamacho/fleetcmd/internal/adapters/api"
	"github.com/andrescamacho/fleetcmd/internal/adapters/persistence"
	"github.com/andrescamacho/fleetcmd/internal/fleet"
	"github.com/andrescamacho/fleetcmd/internal/fleet/state"
)

// Deps bundles the capabilities every mission entry point needs: the API
// client, the shared in-process state, and the two external stores.
type Deps struct {
	API   *api.Client
	State *state.FleetState
	Store *persistence.MarketStore
	Ops   *persistence.OperationsStore
}

// EntryPoint is the signature every registered mission implements. It must
// be cooperative and cancellation-safe: it should return promptly once ctx
// is done.
type EntryPoint func(ctx context.Context, deps Deps, shipSymbol string, kwargs map[string]interface{}) error

var registry = map[fleet.MissionKind]EntryPoint{}

// Register installs kind's entry point. Called once at init time by each
// internal/mission/* package's init().
func Register(kind fleet.MissionKind, entry EntryPoint) {
	registry[kind] = entry
}

// Lookup returns kind's entry point, or ok=false for IDLE or an
// unregistered kind. IDLE deliberately has no entry point: ShipAgent.Launch
// is a no-op for it.
func Lookup(kind fleet.MissionKind) (EntryPoint, bool) {
	if kind == fleet.MissionIdle {
		return nil, false
	}
	entry, ok := registry[kind]
	return entry, ok
}
