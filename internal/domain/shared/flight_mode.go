package shared

import "math"

// FlightMode represents flight mode with time/fuel characteristics
type FlightMode int

const (
	FlightModeCruise FlightMode = iota
	FlightModeDrift
	FlightModeBurn
	FlightModeStealth
)

type flightModeConfig struct {
	Name       string
	TimeFactor float64 // m in round(15 + distance*m/speed)
}

// Fuel cost and travel time follow the upstream service's published formulas:
// CRUISE charges ceil(distance), DRIFT is flat 1 fuel regardless of distance,
// BURN charges 2*ceil(distance). STEALTH has no published fuel/time formula;
// it is treated like CRUISE for cost purposes since it shares CRUISE's frame.
var flightModeConfigs = map[FlightMode]flightModeConfig{
	FlightModeCruise:  {"CRUISE", 25},
	FlightModeDrift:   {"DRIFT", 250},
	FlightModeBurn:    {"BURN", 12.5},
	FlightModeStealth: {"STEALTH", 25},
}

// Name returns the mode name
func (f FlightMode) Name() string {
	if config, ok := flightModeConfigs[f]; ok {
		return config.Name
	}
	return "UNKNOWN"
}

// FuelCost calculates fuel cost for given distance
func (f FlightMode) FuelCost(distance float64) int {
	switch f {
	case FlightModeDrift:
		return 1
	case FlightModeBurn:
		return 2 * int(math.Ceil(distance))
	default:
		return int(math.Ceil(distance))
	}
}

// TravelTime calculates travel time in seconds: round(15 + distance*m/speed).
func (f FlightMode) TravelTime(distance float64, engineSpeed int) int {
	config := flightModeConfigs[f]
	if engineSpeed < 1 {
		engineSpeed = 1
	}
	seconds := 15.0 + distance*config.TimeFactor/float64(engineSpeed)
	return int(math.Round(seconds))
}

// SelectOptimalFlightMode picks the fastest mode that still leaves at least
// safetyMargin fuel after paying for distance, preferring BURN over CRUISE
// over DRIFT.
func SelectOptimalFlightMode(currentFuel int, distance float64, safetyMargin int) FlightMode {
	if currentFuel >= FlightModeBurn.FuelCost(distance)+safetyMargin {
		return FlightModeBurn
	}
	if currentFuel >= FlightModeCruise.FuelCost(distance)+safetyMargin {
		return FlightModeCruise
	}
	return FlightModeDrift
}

func (f FlightMode) String() string {
	return f.Name()
}
