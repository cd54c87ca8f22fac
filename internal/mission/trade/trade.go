// Package trade implements the TRADE mission: find the most profitable
// cached buy/sell route, execute it, refresh prices along the way, repeat.
package trade

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/andrescamacho/fleetcmd/internal/adapters/api"
	"github.com/andrescamacho/fleetcmd/internal/adapters/persistence"
	"github.com/andrescamacho/fleetcmd/internal/domain/shared"
	"github.com/andrescamacho/fleetcmd/internal/fleet"
	"github.com/andrescamacho/fleetcmd/internal/fleet/mission"
	"github.com/andrescamacho/fleetcmd/internal/mission/navhelper"
	"github.com/andrescamacho/fleetcmd/internal/navigation"
)

func init() {
	mission.Register(fleet.MissionTrade, Run)
}

const (
	fuelPrice            = 72
	failedRouteTTL       = 30 * time.Minute
	tradeOverheadSeconds = 30
	loopsPerCycle        = 3
)

var backoffSchedule = []time.Duration{
	300 * time.Second, 600 * time.Second, 1200 * time.Second, 1800 * time.Second,
}

type routeKey struct{ good, source, dest string }

// Run is the TRADE mission entry point.
func Run(ctx context.Context, deps mission.Deps, shipSymbol string, kwargs map[string]interface{}) error {
	failedRoutes := map[routeKey]time.Time{}
	dryStreak := 0
	lastSystem := ""

	for ctx.Err() == nil {
		tripSucceeded := false

		for i := 0; i < loopsPerCycle && ctx.Err() == nil; i++ {
			pruneFailedRoutes(failedRoutes)

			ship, err := deps.API.GetShip(ctx, shipSymbol)
			if err != nil {
				waitOrStop(ctx, deps, 60*time.Second)
				continue
			}
			system := ship.Nav.SystemSymbol
			lastSystem = system

			ship, err = sellExistingCargo(ctx, deps, shipSymbol, ship, system)
			if err != nil {
				waitOrStop(ctx, deps, 60*time.Second)
				continue
			}

			routes, err := findBestRoutes(ctx, deps, system, ship, failedRoutes)
			if err != nil {
				waitOrStop(ctx, deps, 60*time.Second)
				continue
			}
			if len(routes) == 0 {
				deps.State.Emit(fleet.Event{Type: fleet.EventTradeDry, ShipSymbol: shipSymbol, MonotonicTimestamp: time.Now().UnixNano()})
				dryStreak++
				waitOrStop(ctx, deps, backoffDelay(dryStreak))
				continue
			}

			succeeded, err := executeBestRoute(ctx, deps, shipSymbol, system, routes, failedRoutes)
			if err != nil {
				deps.State.ReleaseRoute(system, shipSymbol)
				return err
			}
			if succeeded {
				tripSucceeded = true
			}
		}

		if tripSucceeded {
			dryStreak = 0
		} else {
			dryStreak++
			waitOrStop(ctx, deps, backoffDelay(dryStreak))
		}
	}

	deps.State.ReleaseRoute(lastSystem, shipSymbol)
	return nil
}

func waitOrStop(ctx context.Context, deps mission.Deps, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-deps.State.Shutdown():
	case <-ctx.Done():
	}
}

func backoffDelay(streak int) time.Duration {
	idx := streak - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return backoffSchedule[idx]
}

func pruneFailedRoutes(failed map[routeKey]time.Time) {
	now := time.Now()
	for k, ts := range failed {
		if now.Sub(ts) > failedRouteTTL {
			delete(failed, k)
		}
	}
}

// sellExistingCargo sells off any cargo a ship is already holding at the
// market with the best estimated total revenue, looping until the hold is
// empty or no cached sell destination exists (jettisoning as a last
// resort).
func sellExistingCargo(ctx context.Context, deps mission.Deps, shipSymbol string, ship *api.Ship, system string) (*api.Ship, error) {
	for {
		if ship.Cargo.Units == 0 {
			return ship, nil
		}

		scores := map[string]int{}
		for _, item := range ship.Cargo.Inventory {
			best, err := deps.Store.FindBestSell(ctx, item.Symbol, system)
			if err != nil || best == nil {
				continue
			}
			scores[best.Waypoint] += best.SellPrice * item.Units
		}
		if len(scores) == 0 {
			for _, item := range ship.Cargo.Inventory {
				_ = deps.API.Jettison(ctx, shipSymbol, item.Symbol, item.Units)
			}
			return deps.API.GetShip(ctx, shipSymbol)
		}

		bestWp := ""
		bestRevenue := -1
		for wp, revenue := range scores {
			if revenue > bestRevenue {
				bestRevenue = revenue
				bestWp = wp
			}
		}

		var err error
		ship, err = navhelper.NavigateTo(ctx, deps.API, deps.State, shipSymbol, ship, bestWp, "CRUISE")
		if err != nil {
			return ship, err
		}
		ship, err = navhelper.TryRefuel(ctx, deps.API, shipSymbol, ship)
		if err != nil {
			return ship, err
		}
		if err := refreshMarket(ctx, deps, bestWp); err != nil {
			return ship, err
		}

		prices, _ := deps.Store.GetPrices(ctx, bestWp)
		volByGood := map[string]int{}
		for _, p := range prices {
			volByGood[p.Good] = p.TradeVolume
		}
		for _, item := range ship.Cargo.Inventory {
			vol := volByGood[item.Symbol]
			if vol <= 0 {
				vol = 20
			}
			sellInBatches(ctx, deps, shipSymbol, item.Symbol, item.Units, vol, bestWp)
		}
		ship, err = deps.API.GetShip(ctx, shipSymbol)
		if err != nil {
			return ship, err
		}
	}
}

func sellInBatches(ctx context.Context, deps mission.Deps, shipSymbol, good string, units, batchSize int, waypoint string) int {
	sold := 0
	remaining := units
	for remaining > 0 {
		batch := batchSize
		if remaining < batch {
			batch = remaining
		}
		if err := deps.API.SellCargo(ctx, shipSymbol, good, batch); err != nil {
			break
		}
		sold += batch
		remaining -= batch
		credits := creditsAfter(ctx, deps)
		_ = deps.Ops.RecordTrade(ctx, shipSymbol, "SELL", good, batch, 0, 0, waypoint, credits, "trade")
	}
	return sold
}

func buyInBatches(ctx context.Context, deps mission.Deps, shipSymbol, good string, target, batchSize int, waypoint string) int {
	bought := 0
	for bought < target {
		batch := batchSize
		if target-bought < batch {
			batch = target - bought
		}
		if err := deps.API.PurchaseCargo(ctx, shipSymbol, good, batch); err != nil {
			break
		}
		bought += batch
		credits := creditsAfter(ctx, deps)
		_ = deps.Ops.RecordTrade(ctx, shipSymbol, "BUY", good, batch, 0, 0, waypoint, credits, "trade")
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

func refreshMarket(ctx context.Context, deps mission.Deps, waypoint string) error {
	system := systemOf(waypoint)
	market, err := deps.API.GetMarket(ctx, system, waypoint)
	if err != nil {
		return err
	}
	goods := market.AllGoods()
	if len(goods) == 0 {
		return nil
	}
	rows := make([]persistence.GoodPrice, len(goods))
	for i, g := range goods {
		rows[i] = persistence.GoodPrice{
			Good: g.Symbol, Type: g.Type, Supply: g.Supply, Activity: g.Activity,
			PurchasePrice: g.PurchasePrice, SellPrice: g.SellPrice, TradeVolume: g.TradeVolume,
		}
	}
	return deps.Store.UpsertMarket(ctx, system, waypoint, rows, time.Now())
}

type pricedGood struct {
	waypoint string
	good     string
	supply   string
	activity string
	buy      int
	sell     int
	vol      int
	kind     string
}

func findBestRoutes(ctx context.Context, deps mission.Deps, system string, ship *api.Ship, failed map[routeKey]time.Time) ([]fleet.TradeRoute, error) {
	coords, fuelWaypoints, err := systemGeometry(ctx, deps, system)
	if err != nil {
		return nil, err
	}

	markets, err := deps.Store.GetAllMarkets(ctx, system)
	if err != nil {
		return nil, err
	}
	var all []pricedGood
	for _, wp := range markets {
		prices, err := deps.Store.GetPrices(ctx, wp)
		if err != nil {
			continue
		}
		for _, p := range prices {
			all = append(all, pricedGood{wp, p.Good, p.Supply, p.Activity, p.PurchasePrice, p.SellPrice, p.TradeVolume, p.Type})
		}
	}

	exports := map[string][]pricedGood{}
	imports := map[string][]pricedGood{}
	for _, p := range all {
		switch p.kind {
		case "EXPORT":
			exports[p.good] = append(exports[p.good], p)
		case "IMPORT":
			imports[p.good] = append(imports[p.good], p)
		}
	}

	excluded := map[routeKey]bool{}
	for _, claim := range deps.State.GetExcludedRoutes(system, ship.Symbol) {
		excluded[routeKey{claim.Good, claim.Source, claim.Destination}] = true
	}

	credits := creditsAfter(ctx, deps)
	speed := ship.Engine.Speed

	var routes []fleet.TradeRoute
	for good, srcList := range exports {
		for _, src := range srcList {
			for _, dst := range imports[good] {
				if src.waypoint == dst.waypoint {
					continue
				}
				key := routeKey{good, src.waypoint, dst.waypoint}
				if excluded[key] {
					continue
				}
				if _, blacklisted := failed[key]; blacklisted {
					continue
				}
				if credits > 0 && src.buy*src.vol > credits {
					continue
				}
				profitPerUnit := dst.sell - src.buy
				if profitPerUnit <= 0 {
					continue
				}

				deadheadPlan := navigation.PlanMultiHop(coords, fuelWaypoints, ship.Nav.WaypointSymbol, src.waypoint, ship.Fuel.Capacity, speed, shared.FlightModeCruise)
				if !deadheadPlan.Feasible {
					continue
				}
				legPlan := navigation.PlanMultiHop(coords, fuelWaypoints, src.waypoint, dst.waypoint, ship.Fuel.Capacity, speed, shared.FlightModeCruise)
				if !legPlan.Feasible {
					continue
				}

				safeUnits := navigation.SafeSellVolume(dst.supply, dst.activity, dst.vol, ship.Cargo.Capacity)
				routeFuelCredits := legPlan.TotalFuel * 2 * fuelPrice
				deadheadCredits := deadheadPlan.TotalFuel * fuelPrice
				gross := profitPerUnit * safeUnits
				net := gross - routeFuelCredits - deadheadCredits
				if net <= 0 {
					continue
				}
				tripSeconds := deadheadPlan.TotalSeconds + legPlan.TotalSeconds + tradeOverheadSeconds
				ppm := 0.0
				if tripSeconds > 0 {
					ppm = (float64(net) / float64(tripSeconds)) * 60
				}

				routes = append(routes, fleet.TradeRoute{
					Good: good, Source: src.waypoint, Destination: dst.waypoint,
					BuyPrice: src.buy, SellPrice: dst.sell, TradeVolume: src.vol,
					ProfitPerUnit: profitPerUnit, DeadheadFuelCredits: deadheadCredits,
					LegFuelCredits: routeFuelCredits, DestSupply: dst.supply, DestTradeVolume: dst.vol,
					TripSeconds: tripSeconds, NetProfit: net, ProfitPerMinute: math.Round(ppm*100) / 100,
				})
			}
		}
	}

	fleet.SortTradeRoutes(routes)
	return routes, nil
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

func executeBestRoute(ctx context.Context, deps mission.Deps, shipSymbol, system string, routes []fleet.TradeRoute, failed map[routeKey]time.Time) (bool, error) {
	coords, fuelWaypoints, err := systemGeometry(ctx, deps, system)
	if err != nil {
		return false, err
	}

	for _, route := range routes {
		key := routeKey{route.Good, route.Source, route.Destination}
		deps.State.ClaimRoute(system, shipSymbol, route.Good, route.Source, route.Destination)

		ship, err := deps.API.GetShip(ctx, shipSymbol)
		if err != nil {
			return false, err
		}

		toSource := navigation.PlanMultiHop(coords, fuelWaypoints, ship.Nav.WaypointSymbol, route.Source, ship.Fuel.Capacity, ship.Engine.Speed, shared.FlightModeCruise)
		ship, err = navhelper.FlyMultiHop(ctx, deps.API, deps.State, shipSymbol, ship, toSource, "CRUISE")
		if err != nil {
			return false, err
		}
		ship, err = navhelper.NavigateTo(ctx, deps.API, deps.State, shipSymbol, ship, route.Source, "CRUISE")
		if err != nil {
			return false, err
		}
		ship, err = navhelper.TryRefuel(ctx, deps.API, shipSymbol, ship)
		if err != nil {
			return false, err
		}
		if err := refreshMarket(ctx, deps, route.Source); err != nil {
			return false, err
		}

		freeCargo := ship.Cargo.Capacity - ship.Cargo.Units
		safeUnits := navigation.SafeSellVolume(route.DestSupply, "", route.DestTradeVolume, ship.Cargo.Capacity)
		target := freeCargo
		if safeUnits < target {
			target = safeUnits
		}
		bought := buyInBatches(ctx, deps, shipSymbol, route.Good, target, route.TradeVolume, route.Source)
		if bought == 0 {
			failed[key] = time.Now()
			continue
		}

		toDest := navigation.PlanMultiHop(coords, fuelWaypoints, route.Source, route.Destination, ship.Fuel.Capacity, ship.Engine.Speed, shared.FlightModeCruise)
		ship, err = navhelper.FlyMultiHop(ctx, deps.API, deps.State, shipSymbol, ship, toDest, "CRUISE")
		if err != nil {
			return false, err
		}
		ship, err = navhelper.NavigateTo(ctx, deps.API, deps.State, shipSymbol, ship, route.Destination, "CRUISE")
		if err != nil {
			return false, err
		}
		ship, err = navhelper.TryRefuel(ctx, deps.API, shipSymbol, ship)
		if err != nil {
			return false, err
		}
		if err := refreshMarket(ctx, deps, route.Destination); err != nil {
			return false, err
		}

		sellInBatches(ctx, deps, shipSymbol, route.Good, bought, route.DestTradeVolume, route.Destination)
		if _, err := navhelper.TryRefuel(ctx, deps.API, shipSymbol, ship); err != nil {
			return false, err
		}

		credits := creditsAfter(ctx, deps)
		deps.State.Emit(fleet.Event{
			Type: fleet.EventTradeCompleted, ShipSymbol: shipSymbol, MonotonicTimestamp: time.Now().UnixNano(),
			Data: map[string]interface{}{"good": route.Good, "profit": route.NetProfit, "credits": credits},
		})
		return true, nil
	}
	return false, nil
}

func systemOf(waypoint string) string {
	parts := strings.Split(waypoint, "-")
	if len(parts) < 2 {
		return waypoint
	}
	return parts[0] + "-" + parts[1]
}
