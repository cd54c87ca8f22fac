// Package contract implements the CONTRACT mission: negotiate, buy, deliver,
// fulfill, repeat. Every ship running this mission shares one
// state.ContractState — only one contract is ever active, and only one ship
// negotiates the next one.
package contract

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
	mission.Register(fleet.MissionContract, Run)
}

const noContractBackoff = 5 * time.Minute
const noSourceBackoff = 5 * time.Minute
const noBuyBackoff = 2 * time.Minute

// Run drives ship through the negotiate/buy/deliver/fulfill loop until ctx
// is cancelled.
func Run(ctx context.Context, deps mission.Deps, shipSymbol string, kwargs map[string]interface{}) error {
	hq, _ := kwargs["hq"].(string)

	for ctx.Err() == nil {
		contract, err := ensureContract(ctx, deps, shipSymbol, hq)
		if err != nil {
			return err
		}
		if contract == nil {
			deps.State.Emit(fleet.Event{
				Type:               fleet.EventTradeDry,
				ShipSymbol:         shipSymbol,
				MonotonicTimestamp: time.Now().UnixNano(),
				Data:               map[string]interface{}{"reason": "no_contract"},
			})
			agent.WaitInterruptible(deps.State, noContractBackoff)
			continue
		}

		contract, err = deps.API.GetContract(ctx, contract.ID)
		if err != nil {
			return err
		}
		line, ok := firstUnfulfilled(contract)
		if !ok {
			if err := fulfill(ctx, deps, shipSymbol, contract); err != nil {
				return err
			}
			continue
		}

		ship, err := deps.API.GetShip(ctx, shipSymbol)
		if err != nil {
			return err
		}
		ship, err = navhelper.WaitForArrival(ctx, deps.API, deps.State, shipSymbol)
		if err != nil {
			return err
		}
		system := ship.Nav.SystemSymbol
		coords, fuelWaypoints, err := systemGeometry(ctx, deps, system)
		if err != nil {
			return err
		}

		existing := unitsInCargo(ship, line.TradeSymbol)
		if existing > 0 {
			ship, err = flyTo(ctx, deps, shipSymbol, ship, coords, fuelWaypoints, line.DestinationSymbol)
			if err != nil {
				return err
			}
			if _, err := deliver(ctx, deps, shipSymbol, contract, line.TradeSymbol); err != nil {
				return err
			}
			if _, err := navhelper.TryRefuel(ctx, deps.API, shipSymbol, ship); err != nil {
				return err
			}
			continue
		}

		best, err := deps.Store.FindBestBuy(ctx, line.TradeSymbol, system)
		if err != nil {
			return err
		}
		if best == nil {
			agent.WaitInterruptible(deps.State, noSourceBackoff)
			continue
		}

		remaining := line.UnitsRequired - line.UnitsFulfilled
		ship, err = flyTo(ctx, deps, shipSymbol, ship, coords, fuelWaypoints, best.Waypoint)
		if err != nil {
			return err
		}
		toBuy := remaining
		if freeCargo := ship.Cargo.Capacity - ship.Cargo.Units; freeCargo < toBuy {
			toBuy = freeCargo
		}
		bought, err := buyGoods(ctx, deps, shipSymbol, line.TradeSymbol, toBuy, system)
		if err != nil {
			return err
		}
		if bought == 0 {
			agent.WaitInterruptible(deps.State, noBuyBackoff)
			continue
		}

		ship, err = deps.API.GetShip(ctx, shipSymbol)
		if err != nil {
			return err
		}
		if _, err := navhelper.TryRefuel(ctx, deps.API, shipSymbol, ship); err != nil {
			return err
		}

		ship, err = flyTo(ctx, deps, shipSymbol, ship, coords, fuelWaypoints, line.DestinationSymbol)
		if err != nil {
			return err
		}
		contract, err = deps.API.GetContract(ctx, contract.ID)
		if err != nil {
			return err
		}
		delivered, err := deliver(ctx, deps, shipSymbol, contract, line.TradeSymbol)
		if err != nil {
			return err
		}
		if delivered > 0 {
			deps.State.Emit(fleet.Event{
				Type:               fleet.EventContractDelivery,
				ShipSymbol:         shipSymbol,
				MonotonicTimestamp: time.Now().UnixNano(),
				Data:               map[string]interface{}{"contract_id": contract.ID, "trade_symbol": line.TradeSymbol, "units": delivered},
			})
		}
		if _, err := navhelper.TryRefuel(ctx, deps.API, shipSymbol, ship); err != nil {
			return err
		}
	}
	return nil
}

// ensureContract returns the ship's active contract, negotiating and
// accepting a new one if none exists. Only one ship negotiates at a time.
func ensureContract(ctx context.Context, deps mission.Deps, shipSymbol, hq string) (*api.Contract, error) {
	if id, hasActive := deps.State.Contract.Snapshot(); hasActive {
		c, err := deps.API.GetContract(ctx, id)
		if err == nil && !c.Fulfilled {
			return c, nil
		}
		deps.State.Contract.Clear()
	}

	if active, err := findActiveContract(ctx, deps); err != nil {
		return nil, err
	} else if active != nil {
		deps.State.Contract.SetActive(active.ID)
		return active, nil
	}

	deps.State.Contract.LockNegotiate()
	defer deps.State.Contract.UnlockNegotiate()

	if id, hasActive := deps.State.Contract.Snapshot(); hasActive {
		c, err := deps.API.GetContract(ctx, id)
		if err == nil && !c.Fulfilled {
			return c, nil
		}
	}
	if active, err := findActiveContract(ctx, deps); err != nil {
		return nil, err
	} else if active != nil {
		deps.State.Contract.SetActive(active.ID)
		return active, nil
	}

	ship, err := deps.API.GetShip(ctx, shipSymbol)
	if err != nil {
		return nil, err
	}
	ship, err = navhelper.WaitForArrival(ctx, deps.API, deps.State, shipSymbol)
	if err != nil {
		return nil, err
	}
	destination := hq
	if destination == "" {
		destination = ship.Nav.WaypointSymbol
	}
	if ship.Nav.WaypointSymbol != destination {
		coords, fuelWaypoints, err := systemGeometry(ctx, deps, ship.Nav.SystemSymbol)
		if err != nil {
			return nil, err
		}
		ship, err = flyTo(ctx, deps, shipSymbol, ship, coords, fuelWaypoints, destination)
		if err != nil {
			return nil, err
		}
	}
	if ship.Nav.Status != "DOCKED" {
		if err := deps.API.Dock(ctx, shipSymbol); err != nil {
			return nil, err
		}
	}

	offer, err := deps.API.NegotiateContract(ctx, shipSymbol)
	if err != nil {
		active, aerr := findActiveContract(ctx, deps)
		if aerr == nil && active != nil {
			deps.State.Contract.SetActive(active.ID)
			return active, nil
		}
		return nil, nil
	}

	if !profitable(ctx, deps, offer, ship.Nav.SystemSymbol) {
		return nil, nil
	}

	if err := deps.API.AcceptContract(ctx, offer.ID); err != nil {
		return nil, nil
	}
	deps.State.Contract.SetActive(offer.ID)
	deps.State.Contract.RecordCompletion(offer.Terms.Payment.OnAccepted, 0)
	return deps.API.GetContract(ctx, offer.ID)
}

func findActiveContract(ctx context.Context, deps mission.Deps) (*api.Contract, error) {
	contracts, err := deps.API.ListContracts(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range contracts {
		if c.Accepted && !c.Fulfilled {
			return &c, nil
		}
	}
	return nil, nil
}

// profitable resolves the accept/skip decision: on_accepted + on_fulfilled
// must exceed the cheapest cached purchase cost of every remaining line.
func profitable(ctx context.Context, deps mission.Deps, contract *api.Contract, system string) bool {
	totalCost := 0
	for _, d := range contract.Terms.Deliveries {
		remaining := d.UnitsRequired - d.UnitsFulfilled
		if remaining <= 0 {
			continue
		}
		best, err := deps.Store.FindBestBuy(ctx, d.TradeSymbol, system)
		if err != nil || best == nil {
			return false
		}
		totalCost += best.PurchasePrice * remaining
	}
	totalPayment := contract.Terms.Payment.OnAccepted + contract.Terms.Payment.OnFulfilled
	return totalPayment-totalCost > 0
}

func firstUnfulfilled(contract *api.Contract) (api.ContractDelivery, bool) {
	for _, d := range contract.Terms.Deliveries {
		if d.UnitsRequired-d.UnitsFulfilled > 0 {
			return d, true
		}
	}
	return api.ContractDelivery{}, false
}

func unitsInCargo(ship *api.Ship, good string) int {
	for _, item := range ship.Cargo.Inventory {
		if item.Symbol == good {
			return item.Units
		}
	}
	return 0
}

func deliver(ctx context.Context, deps mission.Deps, shipSymbol string, contract *api.Contract, good string) (int, error) {
	ship, err := deps.API.GetShip(ctx, shipSymbol)
	if err != nil {
		return 0, err
	}
	if ship.Nav.Status != "DOCKED" {
		if err := deps.API.Dock(ctx, shipSymbol); err != nil {
			return 0, err
		}
	}
	units := unitsInCargo(ship, good)
	if units == 0 {
		return 0, nil
	}
	for _, d := range contract.Terms.Deliveries {
		if d.TradeSymbol == good {
			remaining := d.UnitsRequired - d.UnitsFulfilled
			if remaining < units {
				units = remaining
			}
			break
		}
	}
	if units <= 0 {
		return 0, nil
	}
	if err := deps.API.DeliverContract(ctx, contract.ID, shipSymbol, good, units); err != nil {
		return 0, nil
	}
	return units, nil
}

func buyGoods(ctx context.Context, deps mission.Deps, shipSymbol, good string, target int, system string) (int, error) {
	ship, err := deps.API.GetShip(ctx, shipSymbol)
	if err != nil {
		return 0, err
	}
	if ship.Nav.Status != "DOCKED" {
		if err := deps.API.Dock(ctx, shipSymbol); err != nil {
			return 0, err
		}
	}

	batchSize := 60
	market, err := deps.API.GetMarket(ctx, system, ship.Nav.WaypointSymbol)
	if err == nil {
		goods := market.AllGoods()
		rows := make([]persistence.GoodPrice, len(goods))
		for i, g := range goods {
			rows[i] = persistence.GoodPrice{
				Good: g.Symbol, Type: g.Type, Supply: g.Supply, Activity: g.Activity,
				PurchasePrice: g.PurchasePrice, SellPrice: g.SellPrice, TradeVolume: g.TradeVolume,
			}
			if g.Symbol == good {
				batchSize = g.TradeVolume
			}
		}
		_ = deps.Store.UpsertMarket(ctx, system, ship.Nav.WaypointSymbol, rows, time.Now())
	}

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
		_ = deps.Ops.RecordTrade(ctx, shipSymbol, "BUY", good, batch, 0, 0, ship.Nav.WaypointSymbol, credits, "contract")
	}
	return bought, nil
}

func fulfill(ctx context.Context, deps mission.Deps, shipSymbol string, contract *api.Contract) error {
	if err := deps.API.FulfillContract(ctx, contract.ID); err != nil {
		return nil
	}
	credits := creditsAfter(ctx, deps)
	deps.State.Contract.RecordCompletion(contract.Terms.Payment.OnFulfilled, 0)
	deps.State.Contract.Clear()
	deps.State.Emit(fleet.Event{
		Type:               fleet.EventContractFulfilled,
		ShipSymbol:         shipSymbol,
		MonotonicTimestamp: time.Now().UnixNano(),
		Data:               map[string]interface{}{"contract_id": contract.ID, "payment": contract.Terms.Payment.OnFulfilled, "credits": credits},
	})
	return nil
}

func creditsAfter(ctx context.Context, deps mission.Deps) int {
	info, err := deps.API.GetAgent(ctx)
	if err != nil {
		return 0
	}
	return info.Credits
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
