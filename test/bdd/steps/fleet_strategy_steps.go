package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/andrescamacho/fleetcmd/internal/fleet"
	"github.com/andrescamacho/fleetcmd/internal/fleet/strategy"
)

type fleetStrategyContext struct {
	world   fleet.WorldState
	current map[string]fleet.ShipAssignment
	plan    fleet.FleetPlan
}

func (c *fleetStrategyContext) reset(*godog.Scenario) {
	c.world = fleet.WorldState{
		Ships:              nil,
		CurrentAssignments: map[string]fleet.ShipAssignment{},
		SkipShips:          map[string]bool{},
		Overrides:          map[string]string{},
		Policy:             fleet.DefaultCapitalPolicy(),
	}
	c.current = map[string]fleet.ShipAssignment{}
	c.plan = fleet.FleetPlan{}
}

func (c *fleetStrategyContext) anAgentWithCredits(credits int) error {
	c.world.Credits = credits
	return nil
}

func (c *fleetStrategyContext) aProbeShip(symbol string) error {
	c.world.Ships = append(c.world.Ships, fleet.ShipCapability{Symbol: symbol, Category: fleet.CategoryProbe})
	return nil
}

func (c *fleetStrategyContext) aCargoShipWithCapacity(symbol string, capacity int) error {
	c.world.Ships = append(c.world.Ships, fleet.ShipCapability{Symbol: symbol, Category: fleet.CategoryShip, CargoCapacity: capacity})
	return nil
}

func (c *fleetStrategyContext) aSentinelShip(symbol string) error {
	c.world.Ships = append(c.world.Ships, fleet.ShipCapability{Symbol: symbol, Category: fleet.CategorySentinel})
	return nil
}

func (c *fleetStrategyContext) aDisabledShip(symbol string) error {
	c.world.Ships = append(c.world.Ships, fleet.ShipCapability{Symbol: symbol, Category: fleet.CategoryDisabled})
	return nil
}

func (c *fleetStrategyContext) thereIsNoActiveContract() error {
	c.world.HasActiveContract = false
	return nil
}

func (c *fleetStrategyContext) thereIsAnActiveProfitableContract() error {
	c.world.HasActiveContract = true
	c.world.ContractProfitable = true
	return nil
}

func (c *fleetStrategyContext) theGateDoesNotNeedSupplies() error {
	c.world.GateNeedsSupplies = false
	return nil
}

func (c *fleetStrategyContext) theGateNeedsSupplies() error {
	c.world.GateNeedsSupplies = true
	return nil
}

func (c *fleetStrategyContext) marketRoutesAreAvailable() error {
	c.world.MarketRoutesAvailable = true
	return nil
}

func (c *fleetStrategyContext) shipCurrentlyHasMission(symbol, mission string) error {
	kind, ok := fleet.ParseMissionKind(mission)
	if !ok {
		return fmt.Errorf("unknown mission kind %q", mission)
	}
	c.current[symbol] = fleet.ShipAssignment{Mission: kind}
	c.world.CurrentAssignments = c.current
	return nil
}

func (c *fleetStrategyContext) shipIsInTheSkipSet(symbol string) error {
	c.world.SkipShips[symbol] = true
	return nil
}

func (c *fleetStrategyContext) theFleetStrategyEvaluatesTheWorld() error {
	c.plan = strategy.Evaluate(c.world)
	return nil
}

func (c *fleetStrategyContext) shipShouldBeAssigned(symbol, mission string) error {
	kind, ok := fleet.ParseMissionKind(mission)
	if !ok {
		return fmt.Errorf("unknown mission kind %q", mission)
	}
	got, ok := c.plan.Assignments[symbol]
	if !ok {
		return fmt.Errorf("ship %q has no assignment in the plan", symbol)
	}
	if got.Mission != kind {
		return fmt.Errorf("ship %q: expected mission %q, got %q", symbol, kind, got.Mission)
	}
	return nil
}

func (c *fleetStrategyContext) nShipsShouldBeAssigned(n int, mission string) error {
	kind, ok := fleet.ParseMissionKind(mission)
	if !ok {
		return fmt.Errorf("unknown mission kind %q", mission)
	}
	count := 0
	for _, a := range c.plan.Assignments {
		if a.Mission == kind {
			count++
		}
	}
	if count != n {
		return fmt.Errorf("expected %d ships assigned %q, got %d", n, kind, count)
	}
	return nil
}

func (c *fleetStrategyContext) thePlansChangesFromTheCurrentAssignmentsShouldBeEmpty() error {
	changed := c.plan.ChangesFrom(c.current)
	if len(changed) != 0 {
		return fmt.Errorf("expected no changes, got %v", changed)
	}
	return nil
}

// InitializeFleetStrategyScenario registers the fleet strategy step
// definitions with the godog scenario context.
func InitializeFleetStrategyScenario(sc *godog.ScenarioContext) {
	c := &fleetStrategyContext{}
	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		c.reset(s)
		return ctx, nil
	})

	sc.Step(`^an agent with (\d+) credits$`, c.anAgentWithCredits)
	sc.Step(`^a probe ship "([^"]*)"$`, c.aProbeShip)
	sc.Step(`^a cargo ship "([^"]*)" with capacity (\d+)$`, c.aCargoShipWithCapacity)
	sc.Step(`^a sentinel ship "([^"]*)"$`, c.aSentinelShip)
	sc.Step(`^a disabled ship "([^"]*)"$`, c.aDisabledShip)
	sc.Step(`^there is no active contract$`, c.thereIsNoActiveContract)
	sc.Step(`^there is an active profitable contract$`, c.thereIsAnActiveProfitableContract)
	sc.Step(`^the gate does not need supplies$`, c.theGateDoesNotNeedSupplies)
	sc.Step(`^the gate needs supplies$`, c.theGateNeedsSupplies)
	sc.Step(`^market routes are available$`, c.marketRoutesAreAvailable)
	sc.Step(`^ship "([^"]*)" currently has mission "([^"]*)"$`, c.shipCurrentlyHasMission)
	sc.Step(`^ship "([^"]*)" is in the skip set$`, c.shipIsInTheSkipSet)
	sc.Step(`^the fleet strategy evaluates the world$`, c.theFleetStrategyEvaluatesTheWorld)
	sc.Step(`^ship "([^"]*)" should be assigned "([^"]*)"$`, c.shipShouldBeAssigned)
	sc.Step(`^(\d+) ships should be assigned "([^"]*)"$`, c.nShipsShouldBeAssigned)
	sc.Step(`^the plan's changes from the current assignments should be empty$`, c.thePlansChangesFromTheCurrentAssignmentsShouldBeEmpty)
}
