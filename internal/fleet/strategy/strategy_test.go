package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andrescamacho/fleetcmd/internal/fleet"
)

func baseWorld(ships []fleet.ShipCapability) fleet.WorldState {
	return fleet.WorldState{
		Credits:            0,
		Ships:              ships,
		CurrentAssignments: map[string]fleet.ShipAssignment{},
		SkipShips:          map[string]bool{},
		Overrides:          map[string]string{},
		Policy:             fleet.DefaultCapitalPolicy(),
	}
}

func TestStrategyAssignsTrade(t *testing.T) {
	world := baseWorld([]fleet.ShipCapability{
		{Symbol: "S-1", CargoCapacity: 80, Category: fleet.CategoryShip},
		{Symbol: "S-2", CargoCapacity: 40, Category: fleet.CategoryShip},
		{Symbol: "P-1", Category: fleet.CategoryProbe},
	})
	world.Credits = 250000
	world.MarketRoutesAvailable = true

	plan := Evaluate(world)
	assert.Equal(t, fleet.MissionTrade, plan.Assignments["S-1"].Mission)
	assert.Equal(t, fleet.MissionTrade, plan.Assignments["S-2"].Mission)
	assert.Equal(t, fleet.MissionScan, plan.Assignments["P-1"].Mission)
}

func TestStrategyAssignsGateBuildToBiggest(t *testing.T) {
	world := baseWorld([]fleet.ShipCapability{
		{Symbol: "S-1", CargoCapacity: 40, Category: fleet.CategoryShip},
		{Symbol: "S-2", CargoCapacity: 80, Category: fleet.CategoryShip},
		{Symbol: "S-3", CargoCapacity: 80, Category: fleet.CategoryShip},
	})
	world.Credits = 500000
	world.GateNeedsSupplies = true
	world.HasActiveContract = true
	world.ContractProfitable = true
	world.MarketRoutesAvailable = true

	plan := Evaluate(world)
	assert.Equal(t, fleet.MissionGateBuild, plan.Assignments["S-2"].Mission)
	assert.Equal(t, fleet.MissionContract, plan.Assignments["S-3"].Mission)
	assert.Equal(t, fleet.MissionContract, plan.Assignments["S-1"].Mission)
}

func TestStrategyCreditsFloorParksFleet(t *testing.T) {
	world := baseWorld([]fleet.ShipCapability{
		{Symbol: "S-1", CargoCapacity: 40, Category: fleet.CategoryShip},
		{Symbol: "P-1", Category: fleet.CategoryProbe},
	})
	world.Credits = 10000

	plan := Evaluate(world)
	assert.Equal(t, fleet.MissionIdle, plan.Assignments["S-1"].Mission)
	assert.Equal(t, fleet.MissionScan, plan.Assignments["P-1"].Mission)
}

func TestChangesFromOnlyDiffers(t *testing.T) {
	plan := fleet.FleetPlan{Assignments: map[string]fleet.ShipAssignment{
		"S-1": {Mission: fleet.MissionTrade},
		"S-2": {Mission: fleet.MissionIdle},
	}}
	current := map[string]fleet.ShipAssignment{
		"S-1": {Mission: fleet.MissionTrade},
		"S-2": {Mission: fleet.MissionScan},
	}
	changed := plan.ChangesFrom(current)
	assert.Len(t, changed, 1)
	_, ok := changed["S-2"]
	assert.True(t, ok)
}

func TestHasProfitableRoutes(t *testing.T) {
	exports := map[string][]GoodPrice{"IRON_ORE": {{Waypoint: "A", Price: 10}}}
	imports := map[string][]GoodPrice{"IRON_ORE": {{Waypoint: "B", Price: 50}}}
	assert.True(t, HasProfitableRoutes(exports, imports))

	sameWaypoint := map[string][]GoodPrice{"IRON_ORE": {{Waypoint: "A", Price: 50}}}
	assert.False(t, HasProfitableRoutes(exports, sameWaypoint))
}
