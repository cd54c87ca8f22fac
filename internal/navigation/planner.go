// Package navigation implements the multi-hop refueling planner and the
// safe-sell-volume heuristic the Trade, Contract, and Gate-Build missions
// all share. Ported from the upstream router.py/trader.py reference
// implementation's formulas.
package navigation

import (
	"math"

	"github.com/andrescamacho/fleetcmd/internal/domain/shared"
)

// Segment is one leg of a multi-hop plan.
type Segment struct {
	From     string
	To       string
	Distance float64
	Fuel     int
	Seconds  int
}

// Plan is the outcome of PlanMultiHop.
type Plan struct {
	Feasible     bool
	Reason       string
	Segments     []Segment
	TotalFuel    int
	TotalSeconds int
}

const refuelOverheadSeconds = 30

// distance returns the Euclidean distance between two coordinates.
func distance(a, b [2]float64) float64 {
	dx := b[0] - a[0]
	dy := b[1] - a[1]
	return math.Sqrt(dx*dx + dy*dy)
}

// PlanMultiHop synthesizes a route from origin to dest via intermediate
// fuel waypoints when the direct leg exceeds fuelCapacity. Greedy
// forward-progress algorithm: at each stop, among unvisited fuel waypoints
// reachable on a single tank, pick the one whose remaining distance to dest
// is strictly smaller than the current remaining distance. No such
// waypoint makes the route infeasible. The loop is bounded at
// len(fuelWaypoints)+1 iterations.
func PlanMultiHop(
	coords map[string][2]float64,
	fuelWaypoints map[string]bool,
	origin, dest string,
	fuelCapacity, speed int,
	mode shared.FlightMode,
) Plan {
	if origin == dest {
		return Plan{Feasible: true}
	}

	originCoord, ok := coords[origin]
	if !ok {
		return Plan{Feasible: false, Reason: "origin not in coordinate map"}
	}
	destCoord, ok := coords[dest]
	if !ok {
		return Plan{Feasible: false, Reason: "destination not in coordinate map"}
	}

	current := origin
	currentCoord := originCoord
	visited := map[string]bool{origin: true}

	var segments []Segment
	totalFuel := 0
	totalSeconds := 0

	maxIterations := len(fuelWaypoints) + 1
	for iter := 0; iter <= maxIterations; iter++ {
		remaining := distance(currentCoord, destCoord)
		directFuel := mode.FuelCost(remaining)
		if directFuel <= fuelCapacity {
			segments = append(segments, Segment{
				From: current, To: dest, Distance: remaining,
				Fuel: directFuel, Seconds: mode.TravelTime(remaining, speed),
			})
			totalFuel += directFuel
			totalSeconds += mode.TravelTime(remaining, speed)
			return Plan{Feasible: true, Segments: segments, TotalFuel: totalFuel, TotalSeconds: totalSeconds}
		}

		if iter == maxIterations {
			break
		}

		var bestWp string
		bestRemaining := remaining
		found := false
		for wp := range fuelWaypoints {
			if visited[wp] {
				continue
			}
			wpCoord, ok := coords[wp]
			if !ok {
				continue
			}
			legDist := distance(currentCoord, wpCoord)
			if mode.FuelCost(legDist) > fuelCapacity {
				continue
			}
			candidateRemaining := distance(wpCoord, destCoord)
			if candidateRemaining < bestRemaining {
				bestRemaining = candidateRemaining
				bestWp = wp
				found = true
			}
		}

		if !found {
			return Plan{Feasible: false, Reason: "no reachable fuel waypoint makes forward progress"}
		}

		legDist := distance(currentCoord, coords[bestWp])
		legFuel := mode.FuelCost(legDist)
		legSeconds := mode.TravelTime(legDist, speed)
		segments = append(segments, Segment{From: current, To: bestWp, Distance: legDist, Fuel: legFuel, Seconds: legSeconds})
		totalFuel += legFuel
		totalSeconds += legSeconds + refuelOverheadSeconds

		visited[bestWp] = true
		current = bestWp
		currentCoord = coords[bestWp]
	}

	return Plan{Feasible: false, Reason: "exceeded maximum hop count"}
}

// sellMultipliers maps destination supply to the safe-sell-volume
// multiplier. Unknown supply defaults to 3.0 (LIMITED's multiplier).
var sellMultipliers = map[string]float64{
	"SCARCE":   2.0,
	"LIMITED":  3.0,
	"MODERATE": 4.0,
	"HIGH":     5.0,
	"ABUNDANT": 6.0,
}

// SafeSellVolume guards against market overflow: never sell more than the
// destination market can plausibly absorb, and never more than cargo holds.
func SafeSellVolume(supply, activity string, tradeVolume, cargoCapacity int) int {
	multiplier, ok := sellMultipliers[supply]
	if !ok {
		multiplier = 3.0
	}
	if activity == "STRONG" {
		multiplier += 1.0
	}
	safe := int(math.Floor(float64(tradeVolume) * multiplier))
	if safe > cargoCapacity {
		return cargoCapacity
	}
	return safe
}
