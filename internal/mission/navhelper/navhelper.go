// Package navhelper holds the navigation primitives every mission shares:
// waiting out a transit, flying a single leg, and walking a multi-hop plan.
// Grounded on the reference implementation's runner helpers.
package navhelper

import (
	"context"
	"time"

	"github.com/andrescamacho/fleetcmd/internal/adapters/api"
	"github.com/andrescamacho/fleetcmd/internal/fleet/logging"
	"github.com/andrescamacho/fleetcmd/internal/fleet/state"
	"github.com/andrescamacho/fleetcmd/internal/navigation"
)

// maxTransitWait caps a trusted remote arrival time: never block longer than
// this on one wait, even if the server reports a further ETA.
const maxTransitWait = time.Hour

// heartbeatInterval is how often a long ETA-based transit wait logs that it
// is still waiting, per spec §5.
const heartbeatInterval = 60 * time.Second

// transitPollInterval is how often we re-check ship status once the initial
// clamped wait elapses without the ship reporting arrival.
const transitPollInterval = 10 * time.Second

// transitPollAttempts bounds the re-check loop so a single stuck leg cannot
// wedge a mission task forever.
const transitPollAttempts = 12

// WaitForArrival blocks until ship is no longer IN_TRANSIT, until the
// shutdown signal fires, or until the bounded re-check loop runs out, and
// returns the refreshed ship (which may still be IN_TRANSIT in that last
// case).
func WaitForArrival(ctx context.Context, cl *api.Client, st *state.FleetState, shipSymbol string) (*api.Ship, error) {
	ship, err := cl.GetShip(ctx, shipSymbol)
	if err != nil {
		return nil, err
	}
	if ship.Nav.Status != "IN_TRANSIT" {
		return ship, nil
	}

	wait := maxTransitWait
	if ship.Nav.Route != nil {
		if arrival, err := time.Parse(time.RFC3339, ship.Nav.Route.Arrival); err == nil {
			if d := time.Until(arrival) + 2*time.Second; d > 0 && d < maxTransitWait {
				wait = d
			}
		}
	}
	if !waitWithHeartbeat(ctx, st, shipSymbol, wait) {
		return ship, ctx.Err()
	}

	ship, err = cl.GetShip(ctx, shipSymbol)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ship.Nav.Status == "IN_TRANSIT" && attempt < transitPollAttempts; attempt++ {
		if !interruptibleSleep(ctx, st, transitPollInterval) {
			return ship, ctx.Err()
		}
		ship, err = cl.GetShip(ctx, shipSymbol)
		if err != nil {
			return nil, err
		}
	}
	return ship, nil
}

// NavigateTo flies ship to destination (orbiting first if docked, setting
// flight mode if given) and waits for arrival.
func NavigateTo(ctx context.Context, cl *api.Client, st *state.FleetState, shipSymbol string, ship *api.Ship, destination, mode string) (*api.Ship, error) {
	if ship.Nav.WaypointSymbol == destination {
		return ship, nil
	}
	if ship.Nav.Status == "DOCKED" {
		if err := cl.Orbit(ctx, shipSymbol); err != nil {
			return nil, err
		}
	}
	if mode != "" && ship.Nav.FlightMode != mode {
		if err := cl.SetFlightMode(ctx, shipSymbol, mode); err != nil {
			return nil, err
		}
	}
	if _, err := cl.Navigate(ctx, shipSymbol, destination); err != nil {
		return nil, err
	}
	return WaitForArrival(ctx, cl, st, shipSymbol)
}

// TryRefuel docks if necessary and refuels ship, tolerating markets with no
// fuel for sale (a domain-expected ApiError, not retried further here).
func TryRefuel(ctx context.Context, cl *api.Client, shipSymbol string, ship *api.Ship) (*api.Ship, error) {
	if ship.Nav.Status != "DOCKED" {
		if err := cl.Dock(ctx, shipSymbol); err != nil {
			return ship, err
		}
	}
	_ = cl.Refuel(ctx, shipSymbol, false)
	return cl.GetShip(ctx, shipSymbol)
}

// FlyMultiHop walks plan's segments in order, refueling at every
// intermediate stop (not after the final leg, matching the planner's time
// accounting).
func FlyMultiHop(ctx context.Context, cl *api.Client, st *state.FleetState, shipSymbol string, ship *api.Ship, plan navigation.Plan, mode string) (*api.Ship, error) {
	if !plan.Feasible || len(plan.Segments) == 0 {
		return ship, nil
	}
	for i, seg := range plan.Segments {
		var err error
		ship, err = NavigateTo(ctx, cl, st, shipSymbol, ship, seg.To, mode)
		if err != nil {
			return ship, err
		}
		if i < len(plan.Segments)-1 {
			ship, err = TryRefuel(ctx, cl, shipSymbol, ship)
			if err != nil {
				return ship, err
			}
		}
	}
	return ship, nil
}

// waitWithHeartbeat blocks for d like interruptibleSleep, but logs every
// heartbeatInterval while it waits so a long transit does not go silent.
func waitWithHeartbeat(ctx context.Context, st *state.FleetState, shipSymbol string, d time.Duration) bool {
	logger := logging.FromContext(ctx)
	remaining := d
	for remaining > 0 {
		tick := remaining
		if tick > heartbeatInterval {
			tick = heartbeatInterval
		}
		if !interruptibleSleep(ctx, st, tick) {
			return false
		}
		remaining -= tick
		if remaining > 0 {
			logger.Log("info", "waiting for arrival", map[string]interface{}{"ship": shipSymbol, "remaining_seconds": int(remaining.Seconds())})
		}
	}
	return true
}

// interruptibleSleep blocks for d, or until ctx is done or st signals
// shutdown, whichever comes first. Returns false if interrupted by
// cancellation rather than timing out normally.
func interruptibleSleep(ctx context.Context, st *state.FleetState, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-st.Shutdown():
		return false
	case <-ctx.Done():
		return false
	}
}
