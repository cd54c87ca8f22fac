// Package agent implements ShipAgent: the per-ship record holding mission
// identity, restart count, and a handle to the running mission task.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andrescamacho/fleetcmd/internal/fleet"
	"github.com/andrescamacho/fleetcmd/internal/fleet/mission"
	"github.com/andrescamacho/fleetcmd/internal/fleet/state"
)

// Agent is one ship's mission handle. The Commander owns a map of these,
// one per known ship.
type Agent struct {
	ShipSymbol   string
	Mission      fleet.MissionKind
	Kwargs       map[string]interface{}
	RestartCount int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Agent for ship, initially IDLE.
func New(shipSymbol string) *Agent {
	return &Agent{ShipSymbol: shipSymbol, Mission: fleet.MissionIdle}
}

// Launch starts mission's entry point as a goroutine. A no-op for IDLE or an
// unregistered mission kind: it returns immediately without a running task.
// The completion callback emits MISSION_ENDED on a clean return, or
// MISSION_CRASHED on a non-nil error returned from a context that was not
// itself cancelled — a cancelled ctx means the Commander is reassigning or
// shutting the ship down, and no event is emitted for that case.
func (a *Agent) Launch(parent context.Context, deps mission.Deps, missionKind fleet.MissionKind, kwargs map[string]interface{}) {
	entry, ok := mission.Lookup(missionKind)
	if !ok {
		a.mu.Lock()
		a.Mission = missionKind
		a.Kwargs = kwargs
		a.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(parent)

	a.mu.Lock()
	a.Mission = missionKind
	a.Kwargs = kwargs
	a.cancel = cancel
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	go func() {
		defer close(done)
		err := entry(ctx, deps, a.ShipSymbol, kwargs)
		cancelled := ctx.Err() != nil
		if cancelled {
			return
		}
		if err != nil {
			deps.State.Emit(fleet.Event{
				Type:               fleet.EventMissionCrashed,
				ShipSymbol:         a.ShipSymbol,
				MonotonicTimestamp: time.Now().UnixNano(),
				Data:               map[string]interface{}{"error": err.Error(), "error_type": fmt.Sprintf("%T", err)},
			})
			return
		}
		deps.State.Emit(fleet.Event{
			Type:               fleet.EventMissionEnded,
			ShipSymbol:         a.ShipSymbol,
			MonotonicTimestamp: time.Now().UnixNano(),
		})
	}()
}

// Relaunch increments the restart counter and calls Launch again with the
// agent's last-known mission/kwargs.
func (a *Agent) Relaunch(parent context.Context, deps mission.Deps) {
	a.mu.Lock()
	a.RestartCount++
	missionKind := a.Mission
	kwargs := a.Kwargs
	a.mu.Unlock()
	a.Launch(parent, deps, missionKind, kwargs)
}

// Cancel requests the running task stop and waits up to timeout for it to
// exit, shielded against the caller's own context so a parent shutdown
// cancellation does not shorten this grace window.
func (a *Agent) Cancel(timeout time.Duration) {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// ResetRestartCount zeroes the restart counter, called whenever the
// Commander assigns a fresh mission via strategy re-evaluation.
func (a *Agent) ResetRestartCount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.RestartCount = 0
}

// Snapshot returns the agent's current mission/restart state for strategy
// input and status logging.
func (a *Agent) Snapshot() (missionKind fleet.MissionKind, restartCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mission, a.RestartCount
}

// WaitInterruptible blocks for d or until st signals shutdown, whichever is
// first — the "interruptible sleep" primitive every mission uses for
// backoffs and cooldowns.
func WaitInterruptible(st *state.FleetState, d time.Duration) {
	select {
	case <-st.Shutdown():
	case <-time.After(d):
	}
}
