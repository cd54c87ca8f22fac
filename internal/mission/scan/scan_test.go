package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andrescamacho/fleetcmd/internal/adapters/api"
)

func waypointWithTraits(symbol string, x, y int, traits ...string) api.Waypoint {
	wp := api.Waypoint{Symbol: symbol, X: x, Y: y}
	for _, t := range traits {
		wp.Traits = append(wp.Traits, struct {
			Symbol string `json:"symbol"`
		}{Symbol: t})
	}
	return wp
}

func TestMarketplaceWaypointsFiltersToMarketplaceTrait(t *testing.T) {
	waypoints := []api.Waypoint{
		waypointWithTraits("A", 0, 0, "MARKETPLACE"),
		waypointWithTraits("B", 1, 1, "SHIPYARD"),
		waypointWithTraits("C", 2, 2, "MARKETPLACE", "SHIPYARD"),
	}
	got := marketplaceWaypoints(waypoints)
	assert.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Symbol)
	assert.Equal(t, "C", got[1].Symbol)
}

func TestEuclidean(t *testing.T) {
	assert.Equal(t, 5.0, euclidean(0, 0, 3, 4))
	assert.Equal(t, 0.0, euclidean(5, 5, 5, 5))
}

func TestPlanRouteNearestNeighborFromShipPosition(t *testing.T) {
	ship := &api.Ship{}
	ship.Nav.WaypointSymbol = "ELSEWHERE"
	targets := []api.Waypoint{
		{Symbol: "FAR", X: 100, Y: 100},
		{Symbol: "NEAR", X: 10, Y: 0},
	}
	route := planRoute(ship, targets)
	assert.Len(t, route, 2)
	assert.Equal(t, "NEAR", route[0].Symbol)
	assert.Equal(t, "FAR", route[1].Symbol)
}

func TestFloatArgFallsBackToDefault(t *testing.T) {
	assert.Equal(t, 90.0, floatArg(nil, "max_age_min", 90))
	assert.Equal(t, 90.0, floatArg(map[string]interface{}{}, "max_age_min", 90))
	assert.Equal(t, 120.0, floatArg(map[string]interface{}{"max_age_min": 120.0}, "max_age_min", 90))
	assert.Equal(t, 45.0, floatArg(map[string]interface{}{"max_age_min": 45}, "max_age_min", 90))
}
