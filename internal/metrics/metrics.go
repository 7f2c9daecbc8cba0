// Package metrics registers the process-wide Prometheus collectors for the
// engine runtime. Naming follows the teacher platform's convention of
// `<service>_<component>_<thing>`.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TicksAdvancedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simnode_tick_advanced_total",
			Help: "Number of ticks advanced, by container.",
		},
		[]string{"container"},
	)

	TickDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simnode_tick_duration_seconds",
			Help:    "Wall-clock duration of a single tick, by container.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"container"},
	)

	SystemErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simnode_system_error_total",
			Help: "Number of system errors caught during a tick, by module/system.",
		},
		[]string{"container", "module", "system"},
	)

	LogicUnitErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simnode_logicunit_error_total",
			Help: "Number of logic unit onTick errors caught, by container/unit.",
		},
		[]string{"container", "unit"},
	)

	CommandsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simnode_command_enqueued_total",
			Help: "Number of commands accepted into the queue, by command name.",
		},
		[]string{"container", "command"},
	)

	CommandsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simnode_command_rejected_total",
			Help: "Number of commands rejected at enqueue, by reason.",
		},
		[]string{"container", "reason"},
	)

	CommandQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simnode_command_queue_depth",
			Help: "Current number of commands waiting to be drained.",
		},
		[]string{"container"},
	)

	ComponentStoreRowsInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simnode_component_store_rows_in_use",
			Help: "Number of live entity rows in use, by container.",
		},
		[]string{"container"},
	)

	ContainersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "simnode_containers_active",
			Help: "Number of containers not in the STOPPED state.",
		},
	)
)

// Register adds all collectors to reg. Safe to call once per process; a
// second registration attempt on the same registry panics, matching
// client_golang's own contract.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(
		TicksAdvancedTotal,
		TickDurationSeconds,
		SystemErrorsTotal,
		LogicUnitErrorsTotal,
		CommandsEnqueuedTotal,
		CommandsRejectedTotal,
		CommandQueueDepth,
		ComponentStoreRowsInUse,
		ContainersActive,
	)
}
