package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andrescamacho/fleetcmd/internal/fleet"
)

func TestClaimReleaseRoundTrip(t *testing.T) {
	fs := New()
	fs.ClaimRoute("X1", "SHIP-1", "IRON_ORE", "X1-A", "X1-B")

	excluded := fs.GetExcludedRoutes("X1", "SHIP-2")
	assert.Len(t, excluded, 1)
	assert.Equal(t, fleet.RouteClaim{Good: "IRON_ORE", Source: "X1-A", Destination: "X1-B"}, excluded[0])

	fs.ReleaseRoute("X1", "SHIP-1")
	excluded = fs.GetExcludedRoutes("X1", "SHIP-2")
	assert.Empty(t, excluded)
}

func TestClaimExcludesOtherShipsOnly(t *testing.T) {
	fs := New()
	fs.ClaimRoute("X1", "SHIP-1", "IRON_ORE", "X1-A", "X1-B")

	assert.Empty(t, fs.GetExcludedRoutes("X1", "SHIP-1"))
	assert.Len(t, fs.GetExcludedRoutes("X1", "SHIP-2"), 1)
}

func TestEmitDrainIncludesEventExactlyOnce(t *testing.T) {
	fs := New()
	e := fleet.Event{Type: fleet.EventTradeCompleted, ShipSymbol: "SHIP-1"}
	fs.Emit(e)

	count := 0
	drain := true
	for drain {
		select {
		case got := <-fs.Events():
			if got == e {
				count++
			}
			drain = len(fs.Events()) > 0
		default:
			drain = false
		}
	}
	assert.Equal(t, 1, count)
}

func TestShutdownSignalBroadcast(t *testing.T) {
	fs := New()
	assert.False(t, fs.IsShuttingDown())
	fs.TriggerShutdown()
	assert.True(t, fs.IsShuttingDown())
	// idempotent
	fs.TriggerShutdown()
}
