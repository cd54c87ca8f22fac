package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"

	"github.com/andrescamacho/fleetcmd/internal/domain/shared"
	"github.com/andrescamacho/fleetcmd/internal/navigation"
)

type navigationContext struct {
	coords        map[string][2]float64
	fuelWaypoints map[string]bool
	fuelCapacity  int
	speed         int
	mode          shared.FlightMode
	plan          navigation.Plan
}

func (c *navigationContext) reset(*godog.Scenario) {
	c.coords = map[string][2]float64{}
	c.fuelWaypoints = map[string]bool{}
	c.fuelCapacity = 0
	c.speed = 0
	c.mode = shared.FlightModeCruise
	c.plan = navigation.Plan{}
}

func (c *navigationContext) waypointAt(symbol string, x, y int) error {
	c.coords[symbol] = [2]float64{float64(x), float64(y)}
	return nil
}

func (c *navigationContext) isAFuelWaypoint(symbol string) error {
	c.fuelWaypoints[symbol] = true
	return nil
}

func parseFlightModeName(name string) shared.FlightMode {
	switch strings.ToUpper(name) {
	case "DRIFT":
		return shared.FlightModeDrift
	case "BURN":
		return shared.FlightModeBurn
	case "STEALTH":
		return shared.FlightModeStealth
	default:
		return shared.FlightModeCruise
	}
}

func (c *navigationContext) fuelCapacitySpeedFlightMode(capacity, speed int, mode string) error {
	c.fuelCapacity = capacity
	c.speed = speed
	c.mode = parseFlightModeName(mode)
	return nil
}

func (c *navigationContext) planningARouteWithNoFuelWaypoints(origin, dest string) error {
	c.plan = navigation.PlanMultiHop(c.coords, map[string]bool{}, origin, dest, c.fuelCapacity, c.speed, c.mode)
	return nil
}

func (c *navigationContext) planningARouteViaTheFuelWaypoints(origin, dest string) error {
	c.plan = navigation.PlanMultiHop(c.coords, c.fuelWaypoints, origin, dest, c.fuelCapacity, c.speed, c.mode)
	return nil
}

func (c *navigationContext) theRouteShouldBeFeasibleWithSegments(n int) error {
	if !c.plan.Feasible {
		return fmt.Errorf("expected route to be feasible, got infeasible: %s", c.plan.Reason)
	}
	if len(c.plan.Segments) != n {
		return fmt.Errorf("expected %d segments, got %d", n, len(c.plan.Segments))
	}
	return nil
}

func (c *navigationContext) theRouteShouldBeInfeasible() error {
	if c.plan.Feasible {
		return fmt.Errorf("expected route to be infeasible, got feasible")
	}
	return nil
}

func (c *navigationContext) theTotalFuelShouldBe(expected int) error {
	if c.plan.TotalFuel != expected {
		return fmt.Errorf("expected total fuel %d, got %d", expected, c.plan.TotalFuel)
	}
	return nil
}

func (c *navigationContext) theTotalTravelTimeShouldBeSeconds(expected int) error {
	if c.plan.TotalSeconds != expected {
		return fmt.Errorf("expected total seconds %d, got %d", expected, c.plan.TotalSeconds)
	}
	return nil
}

func (c *navigationContext) theTotalTravelTimeShouldIncludeOneRefuelOverheadStop() error {
	sumOfLegs := 0
	for _, seg := range c.plan.Segments {
		sumOfLegs += seg.Seconds
	}
	if c.plan.TotalSeconds != sumOfLegs+30 {
		return fmt.Errorf("expected total seconds to equal leg sum (%d) plus one 30s overhead stop, got %d", sumOfLegs, c.plan.TotalSeconds)
	}
	return nil
}

// InitializeNavigationScenario registers the multi-hop planner step
// definitions with the godog scenario context.
func InitializeNavigationScenario(sc *godog.ScenarioContext) {
	c := &navigationContext{}
	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		c.reset(s)
		return ctx, nil
	})

	sc.Step(`^waypoint "([^"]*)" at \((-?\d+), (-?\d+)\)$`, c.waypointAt)
	sc.Step(`^"([^"]*)" is a fuel waypoint$`, c.isAFuelWaypoint)
	sc.Step(`^fuel capacity (\d+), speed (\d+), flight mode "([^"]*)"$`, c.fuelCapacitySpeedFlightMode)
	sc.Step(`^planning a multi-hop route from "([^"]*)" to "([^"]*)" with no fuel waypoints$`, c.planningARouteWithNoFuelWaypoints)
	sc.Step(`^planning a multi-hop route from "([^"]*)" to "([^"]*)" via the fuel waypoints$`, c.planningARouteViaTheFuelWaypoints)
	sc.Step(`^the route should be feasible with (\d+) segments$`, c.theRouteShouldBeFeasibleWithSegments)
	sc.Step(`^the route should be infeasible$`, c.theRouteShouldBeInfeasible)
	sc.Step(`^the total fuel should be (\d+)$`, c.theTotalFuelShouldBe)
	sc.Step(`^the total travel time should be (\d+) seconds$`, c.theTotalTravelTimeShouldBeSeconds)
	sc.Step(`^the total travel time should include one refuel overhead stop$`, c.theTotalTravelTimeShouldIncludeOneRefuelOverheadStop)
}
