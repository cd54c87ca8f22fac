// Package metrics implements the Prometheus collectors the RequestScheduler
// and ApiClient record through: queue depth, token availability, request
// counts/latency, and retries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "fleetcmd"
	subsystem = "commander"
)

var (
	// Registry is the global Prometheus registry for all metrics.
	Registry *prometheus.Registry
)

// InitRegistry initializes the Prometheus registry. Called once at startup
// if metrics are enabled.
func InitRegistry() {
	Registry = prometheus.NewRegistry()
}

// GetRegistry returns the global Prometheus registry, or nil if metrics
// were never initialized.
func GetRegistry() *prometheus.Registry {
	return Registry
}

// IsEnabled reports whether metrics collection is active.
func IsEnabled() bool {
	return Registry != nil
}

// SchedulerCollector implements scheduler.MetricsRecorder.
type SchedulerCollector struct {
	queueDepth      prometheus.Gauge
	tokensAvailable prometheus.Gauge
}

// NewSchedulerCollector creates and registers the scheduler's gauges.
func NewSchedulerCollector() *SchedulerCollector {
	c := &SchedulerCollector{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scheduler_queue_depth",
			Help:      "Number of requests waiting for a scheduler token.",
		}),
		tokensAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scheduler_tokens_available",
			Help:      "Tokens currently available in the scheduler's bucket.",
		}),
	}
	if Registry != nil {
		Registry.MustRegister(c.queueDepth, c.tokensAvailable)
	}
	return c
}

// SetQueueDepth implements scheduler.MetricsRecorder.
func (c *SchedulerCollector) SetQueueDepth(n int) { c.queueDepth.Set(float64(n)) }

// SetTokensAvailable implements scheduler.MetricsRecorder.
func (c *SchedulerCollector) SetTokensAvailable(n float64) { c.tokensAvailable.Set(n) }
