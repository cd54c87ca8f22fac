// Package gatebuild implements the GATE_BUILD mission: haul whichever
// construction material is cheapest to the system's jump gate until
// construction completes, respecting a capital floor the mission will not
// spend the fleet's balance below.
package gatebuild

import (
	"context"
	"time"

	"github.com/andrescamacho/fleetcmd/internal/adapters/api"
	"github.com/andrescamacho/fleetcmd/internal/adapters/persistence"
	"github.com/andrescamacho/fleetcmd/internal/domain/shared"
	"github.com/andrescamacho/fleetcmd/internal/fleet"
	"github.com/andrescamacho/fleetcmd/internal/fleet/agent"
	"github.com/andrescamacho/fleetcmd/internal/fleet/mission"
	"github.com/andrescamacho/fleetcmd/internal/mission/navhelper"
	"github.com/andrescamacho/fleetcmd/internal/navigation"
)

func init() {
	mission.Register(fleet.MissionGateBuild, Run)
}

const defaultCapitalFloor = 300000
const capitalCheckInterval = 60 * time.Second
const noPriceRetry = 60 * time.Second

// Run drives ship through the restart-recovery/capital-gated/cheapest-material
// delivery loop until construction completes or ctx is cancelled.
func Run(ctx context.Context, deps mission.Deps, shipSymbol string, kwargs map[string]interface{}) error {
	gate, _ := kwargs["gate"].(string)
	capitalFloor := intArg(kwargs, "capital_floor", defaultCapitalFloor)

	ship, err := deps.API.GetShip(ctx, shipSymbol)
	if err != nil {
		return err
	}
	system := ship.Nav.SystemSymbol
	if gate == "" {
		waypoints, err := deps.API.ListWaypoints(ctx, system)
		if err != nil {
			return err
		}
		for _, wp := range waypoints {
			if wp.Type == "JUMP_GATE" {
				gate = wp.Symbol
				break
			}
		}
	}
	if gate == "" {
		gate = ship.Nav.WaypointSymbol
	}

	for ctx.Err() == nil {
		ship, err = deps.API.GetShip(ctx, shipSymbol)
		if err != nil {
			return err
		}
		ship, err = navhelper.WaitForArrival(ctx, deps.API, deps.State, shipSymbol)
		if err != nil {
			return err
		}

		// Restart recovery: deliver any cargo already aboard at the gate.
		if ship.Cargo.Units > 0 && ship.Nav.WaypointSymbol == gate {
			done, err := deliverCargo(ctx, deps, shipSymbol, system, gate, ship)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}

		ship, err = deps.API.GetShip(ctx, shipSymbol)
		if err != nil {
			return err
		}
		if ship.Nav.Status != "DOCKED" {
			if err := deps.API.Dock(ctx, shipSymbol); err != nil {
				return err
			}
		}
		ship, err = navhelper.TryRefuel(ctx, deps.API, shipSymbol, ship)
		if err != nil {
			return err
		}

		construction, err := deps.API.GetConstruction(ctx, system, gate)
		if err != nil {
			return err
		}
		if construction.IsComplete {
			deps.State.Emit(fleet.Event{Type: fleet.EventGateComplete, ShipSymbol: shipSymbol, MonotonicTimestamp: time.Now().UnixNano()})
			return nil
		}
		needs := remainingMaterials(construction)
		if len(needs) == 0 {
			deps.State.Emit(fleet.Event{Type: fleet.EventGateComplete, ShipSymbol: shipSymbol, MonotonicTimestamp: time.Now().UnixNano()})
			return nil
		}

		credits := creditsAfter(ctx, deps)
		for credits < capitalFloor && ctx.Err() == nil {
			deps.State.Emit(fleet.Event{
				Type: fleet.EventCapitalLow, ShipSymbol: shipSymbol, MonotonicTimestamp: time.Now().UnixNano(),
				Data: map[string]interface{}{"credits": credits},
			})
			agent.WaitInterruptible(deps.State, capitalCheckInterval)
			credits = creditsAfter(ctx, deps)
		}
		if ctx.Err() != nil {
			return nil
		}

		material, source, price, ok := cheapestSource(ctx, deps, needs, system)
		if !ok {
			agent.WaitInterruptible(deps.State, noPriceRetry)
			continue
		}

		freeCargo := ship.Cargo.Capacity - ship.Cargo.Units
		affordable := 0
		if price > 0 {
			affordable = (credits - capitalFloor) / price
		}
		load := min3(freeCargo, material.remaining, affordable)
		if load <= 0 {
			agent.WaitInterruptible(deps.State, capitalCheckInterval)
			continue
		}

		coords, fuelWaypoints, err := systemGeometry(ctx, deps, system)
		if err != nil {
			return err
		}
		ship, err = flyTo(ctx, deps, shipSymbol, ship, coords, fuelWaypoints, source)
		if err != nil {
			return err
		}
		if ship.Nav.Status != "DOCKED" {
			if err := deps.API.Dock(ctx, shipSymbol); err != nil {
				return err
			}
		}
		ship, err = navhelper.TryRefuel(ctx, deps.API, shipSymbol, ship)
		if err != nil {
			return err
		}
		batchSize, err := refreshMarket(ctx, deps, system, source, material.tradeSymbol)
		if err != nil {
			return err
		}

		bought := buyWithinFloor(ctx, deps, shipSymbol, material.tradeSymbol, load, batchSize, source, capitalFloor)
		if bought == 0 {
			continue
		}

		ship, err = deps.API.GetShip(ctx, shipSymbol)
		if err != nil {
			return err
		}
		ship, err = flyTo(ctx, deps, shipSymbol, ship, coords, fuelWaypoints, gate)
		if err != nil {
			return err
		}
		done, err := deliverCargo(ctx, deps, shipSymbol, system, gate, ship)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if _, err := navhelper.TryRefuel(ctx, deps.API, shipSymbol, ship); err != nil {
			return err
		}
	}
	return nil
}

type materialNeed struct {
	tradeSymbol string
	remaining   int
}

func remainingMaterials(c *api.Construction) []materialNeed {
	var out []materialNeed
	for _, m := range c.Materials {
		if r := m.Required - m.Fulfilled; r > 0 {
			out = append(out, materialNeed{tradeSymbol: m.TradeSymbol, remaining: r})
		}
	}
	return out
}

// cheapestSource picks the needed material with the lowest cached purchase
// price across every system market, skipping materials with no cached
// source.
func cheapestSource(ctx context.Context, deps mission.Deps, needs []materialNeed, system string) (materialNeed, string, int, bool) {
	var best materialNeed
	var bestSource string
	bestPrice := -1
	for _, n := range needs {
		price, err := deps.Store.FindBestBuy(ctx, n.tradeSymbol, system)
		if err != nil || price == nil {
			continue
		}
		if bestPrice == -1 || price.PurchasePrice < bestPrice {
			bestPrice = price.PurchasePrice
			best = n
			bestSource = price.Waypoint
		}
	}
	if bestPrice == -1 {
		return materialNeed{}, "", 0, false
	}
	return best, bestSource, bestPrice, true
}

// deliverCargo docks, supplies every matching-material cargo item the gate
// still needs, and reports completion.
func deliverCargo(ctx context.Context, deps mission.Deps, shipSymbol, system, gate string, ship *api.Ship) (bool, error) {
	if ship.Nav.Status != "DOCKED" {
		if err := deps.API.Dock(ctx, shipSymbol); err != nil {
			return false, err
		}
	}
	for _, item := range ship.Cargo.Inventory {
		if item.Units <= 0 {
			continue
		}
		construction, err := deps.API.SupplyConstruction(ctx, system, gate, shipSymbol, item.Symbol, item.Units)
		if err != nil {
			continue
		}
		remaining := 0
		for _, m := range construction.Materials {
			if m.TradeSymbol == item.Symbol {
				remaining = m.Required - m.Fulfilled
			}
		}
		deps.State.Emit(fleet.Event{
			Type: fleet.EventGateDelivery, ShipSymbol: shipSymbol, MonotonicTimestamp: time.Now().UnixNano(),
			Data: map[string]interface{}{"material": item.Symbol, "units": item.Units, "remaining": remaining},
		})
		if construction.IsComplete {
			deps.State.Emit(fleet.Event{Type: fleet.EventGateComplete, ShipSymbol: shipSymbol, MonotonicTimestamp: time.Now().UnixNano()})
			return true, nil
		}
	}
	return false, nil
}

// buyWithinFloor purchases up to target units in batchSize increments,
// re-checking the credit balance before every batch so a purchase never
// drops the balance below capitalFloor.
func buyWithinFloor(ctx context.Context, deps mission.Deps, shipSymbol, good string, target, batchSize int, waypoint string, capitalFloor int) int {
	price := 0
	if prices, err := deps.Store.GetPrices(ctx, waypoint); err == nil {
		for _, p := range prices {
			if p.Good == good {
				price = p.PurchasePrice
			}
		}
	}
	bought := 0
	for bought < target {
		credits := creditsAfter(ctx, deps)
		batch := batchSize
		if target-bought < batch {
			batch = target - bought
		}
		if credits-capitalFloor < 0 {
			break
		}
		if price > 0 && credits-batch*price < capitalFloor {
			batch = (credits - capitalFloor) / price
			if batch <= 0 {
				break
			}
		}
		if err := deps.API.PurchaseCargo(ctx, shipSymbol, good, batch); err != nil {
			break
		}
		bought += batch
		after := creditsAfter(ctx, deps)
		_ = deps.Ops.RecordTrade(ctx, shipSymbol, "BUY", good, batch, 0, 0, waypoint, after, "gate_build")
		if after < capitalFloor {
			break
		}
	}
	return bought
}

func creditsAfter(ctx context.Context, deps mission.Deps) int {
	info, err := deps.API.GetAgent(ctx)
	if err != nil {
		return 0
	}
	return info.Credits
}

// refreshMarket refetches source's live prices, caches them, and returns
// good's live trade volume (falling back to 20 when absent).
func refreshMarket(ctx context.Context, deps mission.Deps, system, source, good string) (int, error) {
	market, err := deps.API.GetMarket(ctx, system, source)
	if err != nil {
		return 20, nil
	}
	goods := market.AllGoods()
	rows := make([]persistence.GoodPrice, len(goods))
	batchSize := 20
	for i, g := range goods {
		rows[i] = persistence.GoodPrice{
			Good: g.Symbol, Type: g.Type, Supply: g.Supply, Activity: g.Activity,
			PurchasePrice: g.PurchasePrice, SellPrice: g.SellPrice, TradeVolume: g.TradeVolume,
		}
		if g.Symbol == good {
			batchSize = g.TradeVolume
		}
	}
	if err := deps.Store.UpsertMarket(ctx, system, source, rows, time.Now()); err != nil {
		return batchSize, err
	}
	return batchSize, nil
}

func flyTo(ctx context.Context, deps mission.Deps, shipSymbol string, ship *api.Ship, coords map[string][2]float64, fuelWaypoints map[string]bool, destination string) (*api.Ship, error) {
	if ship.Nav.WaypointSymbol == destination {
		return ship, nil
	}
	plan := navigation.PlanMultiHop(coords, fuelWaypoints, ship.Nav.WaypointSymbol, destination, ship.Fuel.Capacity, ship.Engine.Speed, shared.FlightModeCruise)
	if plan.Feasible && len(plan.Segments) > 1 {
		return navhelper.FlyMultiHop(ctx, deps.API, deps.State, shipSymbol, ship, plan, "CRUISE")
	}
	return navhelper.NavigateTo(ctx, deps.API, deps.State, shipSymbol, ship, destination, "CRUISE")
}

func systemGeometry(ctx context.Context, deps mission.Deps, system string) (map[string][2]float64, map[string]bool, error) {
	waypoints, err := deps.API.ListWaypoints(ctx, system)
	if err != nil {
		return nil, nil, err
	}
	coords := map[string][2]float64{}
	fuelWaypoints := map[string]bool{}
	for _, wp := range waypoints {
		coords[wp.Symbol] = [2]float64{float64(wp.X), float64(wp.Y)}
		for _, t := range wp.TraitSymbols() {
			if t == "MARKETPLACE" {
				fuelWaypoints[wp.Symbol] = true
			}
		}
	}
	return coords, fuelWaypoints, nil
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func intArg(kwargs map[string]interface{}, key string, def int) int {
	if kwargs == nil {
		return def
	}
	v, ok := kwargs[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}
