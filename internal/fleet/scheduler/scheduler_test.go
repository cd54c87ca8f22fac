package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/fleetcmd/internal/fleet"
)

func TestAcquireFastPathWhenUncontended(t *testing.T) {
	s := New(Config{Rate: 10, Burst: 2}, nil)
	defer s.Stop()

	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx, fleet.PriorityNormal))
	require.NoError(t, s.Acquire(ctx, fleet.PriorityNormal))
}

func TestAcquireBlocksOnExhaustedBurst(t *testing.T) {
	s := New(Config{Rate: 10, Burst: 2}, nil)
	defer s.Stop()

	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx, fleet.PriorityNormal))
	require.NoError(t, s.Acquire(ctx, fleet.PriorityNormal))

	start := time.Now()
	require.NoError(t, s.Acquire(ctx, fleet.PriorityNormal))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPriorityOrdering(t *testing.T) {
	s := New(Config{Rate: 1, Burst: 1}, nil)
	defer s.Stop()

	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx, fleet.PriorityNormal)) // drains the single token

	order := make(chan fleet.Priority, 3)
	done := make(chan struct{})
	go func() {
		_ = s.Acquire(ctx, fleet.PriorityLow)
		order <- fleet.PriorityLow
		done <- struct{}{}
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		_ = s.Acquire(ctx, fleet.PriorityCritical)
		order <- fleet.PriorityCritical
		done <- struct{}{}
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		_ = s.Acquire(ctx, fleet.PriorityHigh)
		order <- fleet.PriorityHigh
		done <- struct{}{}
	}()

	<-done
	<-done
	<-done
	close(order)

	first := <-order
	assert.Equal(t, fleet.PriorityCritical, first)
}

func TestStopReleasesWaiters(t *testing.T) {
	s := New(Config{Rate: 1, Burst: 1}, nil)
	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx, fleet.PriorityNormal))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Acquire(ctx, fleet.PriorityNormal)
	}()
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released on Stop")
	}
}
