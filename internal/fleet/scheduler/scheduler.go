// Package scheduler implements the fleet-wide RequestScheduler: a
// priority-ordered token bucket gating every outbound API call.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/andrescamacho/fleetcmd/internal/fleet"
)

// Config tunes the token bucket. Defaults match spec §3: 2 tokens/sec,
// burst of 10.
type Config struct {
	Rate  float64
	Burst int
}

func DefaultConfig() Config {
	return Config{Rate: 2, Burst: 10}
}

// waiter is one blocked acquire() call, ordered first by priority then by
// enqueue time (FIFO within a class).
type waiter struct {
	priority fleet.Priority
	seq      uint64
	ready    chan struct{}
	index    int
}

// waiterHeap is a container/heap priority queue. No pack dependency
// supplies a priority queue implementation, so this leans on the standard
// library per DESIGN.md.
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *waiterHeap) Push(x interface{}) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// Scheduler is the single per-process RequestScheduler. It wraps
// golang.org/x/time/rate's token-bucket refill accounting in a priority
// waiter queue, since the library itself has no concept of priority.
type Scheduler struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	waiters waiterHeap
	nextSeq uint64

	stopCh   chan struct{}
	stopped  bool
	tickDone chan struct{}

	metrics MetricsRecorder
}

// MetricsRecorder is the optional Prometheus sink for scheduler gauges.
// Nil is a valid value: recording is skipped.
type MetricsRecorder interface {
	SetQueueDepth(n int)
	SetTokensAvailable(n float64)
}

// New creates a Scheduler and starts its ~10 Hz refill tick.
func New(cfg Config, metrics MetricsRecorder) *Scheduler {
	s := &Scheduler{
		limiter:  rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		stopCh:   make(chan struct{}),
		tickDone: make(chan struct{}),
		metrics:  metrics,
	}
	go s.tickLoop()
	return s
}

// tickLoop wakes the highest-priority waiter whenever tokens are available.
// A background goroutine is required because rate.Limiter has no
// notification hook of its own.
func (s *Scheduler) tickLoop() {
	defer close(s.tickDone)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			s.releaseAll()
			return
		case <-ticker.C:
			s.drain()
		}
	}
}

func (s *Scheduler) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetQueueDepth(s.waiters.Len())
		s.metrics.SetTokensAvailable(s.limiter.Tokens())
	}
	for s.waiters.Len() > 0 && s.limiter.AllowN(time.Now(), 1) {
		w := heap.Pop(&s.waiters).(*waiter)
		close(w.ready)
	}
}

func (s *Scheduler) releaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.waiters.Len() > 0 {
		w := heap.Pop(&s.waiters).(*waiter)
		close(w.ready)
	}
}

// Acquire blocks cooperatively until one token has been consumed, or until
// ctx is cancelled or the scheduler is stopped. Fast path: if a token is
// immediately available and no waiter is already enqueued, it is consumed
// without enqueueing.
func (s *Scheduler) Acquire(ctx context.Context, priority fleet.Priority) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return context.Canceled
	}
	if s.waiters.Len() == 0 && s.limiter.AllowN(time.Now(), 1) {
		s.mu.Unlock()
		return nil
	}

	w := &waiter{priority: priority, seq: s.nextSeq, ready: make(chan struct{})}
	s.nextSeq++
	heap.Push(&s.waiters, w)
	s.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		s.removeWaiter(w)
		return ctx.Err()
	case <-s.stopCh:
		return context.Canceled
	}
}

func (s *Scheduler) removeWaiter(w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.index >= 0 && w.index < s.waiters.Len() && s.waiters[w.index] == w {
		heap.Remove(&s.waiters, w.index)
	}
}

// Stop halts the refill tick and releases every pending waiter so callers
// observe the shutdown signal and exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stopCh)
	<-s.tickDone
}

// QueueDepth reports the number of waiters currently enqueued (test hook).
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}
