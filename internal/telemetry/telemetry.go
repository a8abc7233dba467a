// Package telemetry exposes the CORE's operational metrics in Prometheus
// exposition format, grounded on the teacher's internal/monitoring
// counters and histograms but backed by prometheus/client_golang instead
// of the teacher's hand-rolled LiveMetrics struct, since the admin API's
// /v1/metrics endpoint (SPEC_FULL §6.5 expansion) needs a real scrape
// target rather than an internal dashboard struct.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the gateway, dispatcher, and HAL
// backends report against, registered on a private prometheus.Registry
// so tests can construct isolated instances without colliding with the
// default global registry.
type Registry struct {
	reg *prometheus.Registry

	SyscallsTotal      *prometheus.CounterVec
	SyscallDuration    *prometheus.HistogramVec
	CommitsAppended    prometheus.Counter
	CommitLogLength    prometheus.Gauge
	SysLogDropped      prometheus.Counter
	SpawnRejected      prometheus.Counter
	ProcessesAlive     prometheus.Gauge
	DispatcherBacklog  *prometheus.GaugeVec
	HalOperationErrors *prometheus.CounterVec
}

// New constructs a Registry and registers every collector against it.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		SyscallsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "orbital",
			Subsystem: "kernel",
			Name:      "syscalls_total",
			Help:      "Total syscalls processed by the gateway, labeled by syscall number and outcome.",
		}, []string{"syscall", "outcome"}),
		SyscallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orbital",
			Subsystem: "kernel",
			Name:      "syscall_duration_seconds",
			Help:      "Time spent inside gateway.Syscall, labeled by syscall number.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"syscall"}),
		CommitsAppended: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "orbital",
			Subsystem: "commitlog",
			Name:      "commits_appended_total",
			Help:      "Total commits appended to the CommitLog.",
		}),
		CommitLogLength: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "orbital",
			Subsystem: "commitlog",
			Name:      "length",
			Help:      "Current number of commits in the CommitLog.",
		}),
		SysLogDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "orbital",
			Subsystem: "syslog",
			Name:      "events_dropped_total",
			Help:      "SysEvents evicted from the ring buffer before an overflow sink could persist them.",
		}),
		SpawnRejected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "orbital",
			Subsystem: "attestation",
			Name:      "spawn_rejected_total",
			Help:      "spawn_process calls rejected by the attestor before reaching Step.",
		}),
		ProcessesAlive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "orbital",
			Subsystem: "kernel",
			Name:      "processes_alive",
			Help:      "Number of processes currently in the Running state.",
		}),
		DispatcherBacklog: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orbital",
			Subsystem: "dispatcher",
			Name:      "watched_pids",
			Help:      "Number of pids the dispatcher currently has a poll goroutine watching.",
		}, []string{"hal_backend"}),
		HalOperationErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "orbital",
			Subsystem: "hal",
			Name:      "operation_errors_total",
			Help:      "HAL boundary operations that returned an error, labeled by operation.",
		}, []string{"operation"}),
	}
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for the admin API's
// /v1/metrics handler to render via promhttp.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
