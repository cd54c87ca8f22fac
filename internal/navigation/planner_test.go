package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andrescamacho/fleetcmd/internal/domain/shared"
)

func TestPlanMultiHopTrivialRoute(t *testing.T) {
	coords := map[string][2]float64{"A": {0, 0}}
	p := PlanMultiHop(coords, map[string]bool{}, "A", "A", 50, 30, shared.FlightModeCruise)
	assert.True(t, p.Feasible)
	assert.Empty(t, p.Segments)
	assert.Equal(t, 0, p.TotalFuel)
	assert.Equal(t, 0, p.TotalSeconds)
}

func TestPlanMultiHopTwoSegments(t *testing.T) {
	coords := map[string][2]float64{
		"A": {0, 0}, "B": {40, 0}, "C": {80, 0},
	}
	fuelWaypoints := map[string]bool{"B": true}
	p := PlanMultiHop(coords, fuelWaypoints, "A", "C", 50, 30, shared.FlightModeCruise)

	require := assert.New(t)
	require.True(p.Feasible)
	require.Len(p.Segments, 2)
	require.Equal(40, p.Segments[0].Fuel)
	require.Equal(40, p.Segments[1].Fuel)
	require.Equal(80, p.TotalFuel)

	legSeconds := shared.FlightModeCruise.TravelTime(40, 30)
	require.Equal(legSeconds*2+30, p.TotalSeconds)
}

func TestPlanMultiHopInfeasibleWhenNoForwardProgress(t *testing.T) {
	coords := map[string][2]float64{
		"A": {0, 0}, "B": {200, 200}, "C": {80, 0},
	}
	fuelWaypoints := map[string]bool{"B": true}
	p := PlanMultiHop(coords, fuelWaypoints, "A", "C", 50, 30, shared.FlightModeCruise)
	assert.False(t, p.Feasible)
}

func TestSafeSellVolume(t *testing.T) {
	cases := []struct {
		supply, activity string
		tradeVolume      int
		cargo            int
		want             int
	}{
		{"LIMITED", "WEAK", 6, 40, 18},
		{"LIMITED", "STRONG", 6, 40, 24},
		{"ABUNDANT", "STRONG", 100, 25, 25},
	}
	for _, c := range cases {
		got := SafeSellVolume(c.supply, c.activity, c.tradeVolume, c.cargo)
		assert.Equal(t, c.want, got, "%+v", c)
	}
}
