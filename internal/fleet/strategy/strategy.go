// Package strategy implements FleetStrategy.Evaluate: a pure function from
// world state to a FleetPlan. No I/O, no randomness, deterministic decision
// order per spec §4.6.
package strategy

import (
	"sort"

	"github.com/andrescamacho/fleetcmd/internal/fleet"
)

// Evaluate assigns every ship in world a mission, following the fixed
// decision order. FleetStrategy is the only component that assigns
// missions; mission code never self-reassigns.
func Evaluate(world fleet.WorldState) fleet.FleetPlan {
	assignments := make(map[string]fleet.ShipAssignment, len(world.Ships))

	var probes []fleet.ShipCapability
	var cargo []fleet.ShipCapability

	for _, ship := range world.Ships {
		if world.SkipShips[ship.Symbol] {
			assignments[ship.Symbol] = idle()
			continue
		}
		if raw, ok := world.Overrides[ship.Symbol]; ok {
			if mission, ok := fleet.ParseMissionKind(raw); ok {
				assignments[ship.Symbol] = fleet.ShipAssignment{Mission: mission, Kwargs: map[string]interface{}{}}
				continue
			}
		}
		if ship.Category == fleet.CategoryDisabled || ship.Category == fleet.CategorySentinel {
			assignments[ship.Symbol] = idle()
			continue
		}
		if ship.Category == fleet.CategoryProbe {
			probes = append(probes, ship)
			continue
		}
		cargo = append(cargo, ship)
	}

	for _, ship := range probes {
		assignments[ship.Symbol] = fleet.ShipAssignment{Mission: fleet.MissionScan, Kwargs: map[string]interface{}{}}
	}

	if world.Credits < world.Policy.IdleThreshold {
		for _, ship := range cargo {
			assignments[ship.Symbol] = idle()
		}
		return fleet.FleetPlan{Assignments: assignments}
	}

	sort.SliceStable(cargo, func(i, j int) bool {
		return cargo[i].CargoCapacity > cargo[j].CargoCapacity
	})

	remaining := cargo

	if world.GateNeedsSupplies && world.Credits >= world.Policy.GateFloor && len(remaining) > 0 {
		first := remaining[0]
		assignments[first.Symbol] = fleet.ShipAssignment{
			Mission: fleet.MissionGateBuild,
			Kwargs:  map[string]interface{}{"capital_floor": world.Policy.GateFloor},
		}
		remaining = remaining[1:]
	}

	if world.HasActiveContract && world.ContractProfitable {
		n := 2
		if n > len(remaining) {
			n = len(remaining)
		}
		for _, ship := range remaining[:n] {
			assignments[ship.Symbol] = fleet.ShipAssignment{Mission: fleet.MissionContract, Kwargs: map[string]interface{}{}}
		}
		remaining = remaining[n:]
	}

	if world.MarketRoutesAvailable && world.Credits >= world.Policy.TradeMin {
		for _, ship := range remaining {
			assignments[ship.Symbol] = fleet.ShipAssignment{Mission: fleet.MissionTrade, Kwargs: map[string]interface{}{}}
		}
	} else {
		for _, ship := range remaining {
			assignments[ship.Symbol] = idle()
		}
	}

	return fleet.FleetPlan{Assignments: assignments}
}

func idle() fleet.ShipAssignment {
	return fleet.ShipAssignment{Mission: fleet.MissionIdle, Kwargs: map[string]interface{}{}}
}

// HasProfitableRoutes implements the open question's hinted definition: a
// non-empty EXPORT/IMPORT overlap for the same good at different waypoints
// where some import's sell price exceeds some export's purchase price.
func HasProfitableRoutes(exportPrices, importPrices map[string][]GoodPrice) bool {
	for good, exports := range exportPrices {
		imports, ok := importPrices[good]
		if !ok {
			continue
		}
		for _, exp := range exports {
			for _, imp := range imports {
				if exp.Waypoint == imp.Waypoint {
					continue
				}
				if imp.Price > exp.Price {
					return true
				}
			}
		}
	}
	return false
}

// GoodPrice pairs a waypoint with the purchase/sell price of one good
// there, used only by HasProfitableRoutes.
type GoodPrice struct {
	Waypoint string
	Price    int
}
