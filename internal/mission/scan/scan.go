// Package scan implements the SCAN mission: a probe ship tours every
// MARKETPLACE waypoint in its system and write-throughs live prices to the
// shared market store, re-visiting only stale markets after the first pass.
package scan

import (
	"context"
	"math"
	"time"

	"github.com/andrescamacho/fleetcmd/internal/adapters/api"
	"github.com/andrescamacho/fleetcmd/internal/adapters/persistence"
	"github.com/andrescamacho/fleetcmd/internal/fleet"
	"github.com/andrescamacho/fleetcmd/internal/fleet/agent"
	"github.com/andrescamacho/fleetcmd/internal/fleet/mission"
	"github.com/andrescamacho/fleetcmd/internal/mission/navhelper"
)

func init() {
	mission.Register(fleet.MissionScan, Run)
}

// defaultMaxAgeMin is how old a waypoint's oldest cached price can be before
// it's considered stale and worth a re-visit.
const defaultMaxAgeMin = 90

// idleRecheck is how long to sleep when every market in the system is fresh.
const idleRecheck = 5 * time.Minute

// Run drives ship through a continuous scan loop until ctx is cancelled.
func Run(ctx context.Context, deps mission.Deps, shipSymbol string, kwargs map[string]interface{}) error {
	maxAgeMin := floatArg(kwargs, "max_age_min", defaultMaxAgeMin)

	firstPass := true
	for ctx.Err() == nil {
		ship, err := deps.API.GetShip(ctx, shipSymbol)
		if err != nil {
			return err
		}
		system := ship.Nav.SystemSymbol

		waypoints, err := deps.API.ListWaypoints(ctx, system)
		if err != nil {
			return err
		}
		markets := marketplaceWaypoints(waypoints)
		if len(markets) == 0 {
			agent.WaitInterruptible(deps.State, idleRecheck)
			continue
		}

		var targets []api.Waypoint
		if firstPass {
			targets = markets
		} else {
			targets, err = staleTargets(ctx, deps, system, markets, maxAgeMin)
			if err != nil {
				return err
			}
		}
		firstPass = false

		if len(targets) == 0 {
			agent.WaitInterruptible(deps.State, idleRecheck)
			continue
		}

		route := planRoute(ship, targets)
		for _, wp := range route {
			if ctx.Err() != nil {
				break
			}
			fresh, err := isFresh(ctx, deps, wp.Symbol, maxAgeMin)
			if err != nil {
				return err
			}
			if fresh {
				continue
			}
			ship, err = scanOne(ctx, deps, shipSymbol, ship, wp, system)
			if err != nil {
				return err
			}
		}
	}

	deps.State.Emit(fleet.Event{
		Type:               fleet.EventScanComplete,
		ShipSymbol:         shipSymbol,
		MonotonicTimestamp: time.Now().UnixNano(),
	})
	return nil
}

// scanOne flies to wp (DRIFT mode), docks, fetches its market, and
// write-throughs the result to the shared store.
func scanOne(ctx context.Context, deps mission.Deps, shipSymbol string, ship *api.Ship, wp api.Waypoint, system string) (*api.Ship, error) {
	ship, err := navhelper.NavigateTo(ctx, deps.API, deps.State, shipSymbol, ship, wp.Symbol, "DRIFT")
	if err != nil {
		return ship, err
	}
	if ship.Nav.WaypointSymbol != wp.Symbol {
		return ship, nil
	}
	if ship.Nav.Status != "DOCKED" {
		if err := deps.API.Dock(ctx, shipSymbol); err != nil {
			return ship, err
		}
	}

	market, err := deps.API.GetMarket(ctx, system, wp.Symbol)
	if err != nil {
		return ship, nil
	}
	goods := market.AllGoods()
	if len(goods) == 0 {
		return ship, nil
	}

	rows := make([]persistence.GoodPrice, len(goods))
	now := time.Now()
	for i, g := range goods {
		rows[i] = persistence.GoodPrice{
			Waypoint:      wp.Symbol,
			Good:          g.Symbol,
			Type:          g.Type,
			Supply:        g.Supply,
			Activity:      g.Activity,
			PurchasePrice: g.PurchasePrice,
			SellPrice:     g.SellPrice,
			TradeVolume:   g.TradeVolume,
			UpdatedAt:     now,
		}
	}
	if err := deps.Store.UpsertMarket(ctx, system, wp.Symbol, rows, now); err != nil {
		return ship, err
	}
	return ship, nil
}

// isFresh re-checks a single waypoint's staleness right before visiting it,
// so a probe skips a market another probe already refreshed this cycle.
func isFresh(ctx context.Context, deps mission.Deps, waypoint string, maxAgeMin float64) (bool, error) {
	prices, err := deps.Store.GetPrices(ctx, waypoint)
	if err != nil {
		return false, err
	}
	if len(prices) == 0 {
		return false, nil
	}
	oldest := prices[0].UpdatedAt
	for _, p := range prices[1:] {
		if p.UpdatedAt.Before(oldest) {
			oldest = p.UpdatedAt
		}
	}
	age := time.Since(oldest)
	return age < time.Duration(maxAgeMin*float64(time.Minute)), nil
}

// staleTargets returns the markets among candidates that are either never
// scanned or whose oldest cached price has aged past maxAgeMin.
func staleTargets(ctx context.Context, deps mission.Deps, system string, candidates []api.Waypoint, maxAgeMin float64) ([]api.Waypoint, error) {
	cached, err := deps.Store.GetAllMarkets(ctx, system)
	if err != nil {
		return nil, err
	}
	cachedSet := make(map[string]bool, len(cached))
	for _, w := range cached {
		cachedSet[w] = true
	}

	stale, err := deps.Store.GetStaleMarkets(ctx, system, maxAgeMin/60)
	if err != nil {
		return nil, err
	}
	staleSet := make(map[string]bool, len(stale))
	for _, w := range stale {
		staleSet[w] = true
	}

	var out []api.Waypoint
	for _, wp := range candidates {
		if !cachedSet[wp.Symbol] || staleSet[wp.Symbol] {
			out = append(out, wp)
		}
	}
	return out, nil
}

// marketplaceWaypoints filters waypoints down to those with a MARKETPLACE
// trait.
func marketplaceWaypoints(waypoints []api.Waypoint) []api.Waypoint {
	var out []api.Waypoint
	for _, wp := range waypoints {
		for _, t := range wp.TraitSymbols() {
			if t == "MARKETPLACE" {
				out = append(out, wp)
				break
			}
		}
	}
	return out
}

// planRoute orders targets by nearest-neighbor starting from ship's current
// position.
func planRoute(ship *api.Ship, targets []api.Waypoint) []api.Waypoint {
	remaining := append([]api.Waypoint(nil), targets...)
	route := make([]api.Waypoint, 0, len(remaining))
	curX, curY := 0, 0
	for _, wp := range targets {
		if wp.Symbol == ship.Nav.WaypointSymbol {
			curX, curY = wp.X, wp.Y
			break
		}
	}

	for len(remaining) > 0 {
		bestIdx := 0
		bestDist := math.Inf(1)
		for i, wp := range remaining {
			d := euclidean(curX, curY, wp.X, wp.Y)
			if d < bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		next := remaining[bestIdx]
		route = append(route, next)
		curX, curY = next.X, next.Y
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return route
}

func euclidean(x1, y1, x2, y2 int) float64 {
	dx := float64(x2 - x1)
	dy := float64(y2 - y1)
	return math.Sqrt(dx*dx + dy*dy)
}

func floatArg(kwargs map[string]interface{}, key string, def float64) float64 {
	if kwargs == nil {
		return def
	}
	v, ok := kwargs[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return def
}
