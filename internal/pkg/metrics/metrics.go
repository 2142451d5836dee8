package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every collector exported by the simulation engine. The cmd
// layer serves it on the /metrics endpoint.
var Registry = prometheus.NewRegistry()

var (
	// TicksTotal counts completed orchestrator update cycles.
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drivepilot_ticks_total",
			Help: "Total number of simulation ticks executed.",
		},
	)

	// EventsPublishedTotal counts bus publications by event type.
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivepilot_events_published_total",
			Help: "Total number of events published on the simulation bus.",
		},
		[]string{"type"},
	)

	// AlertsTotal counts alerts accumulated by the sink, by severity.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivepilot_alerts_total",
			Help: "Total number of alerts emitted by feature modules.",
		},
		[]string{"severity"},
	)

	// EmergencyStopsTotal counts obstacle-triggered emergency stops.
	EmergencyStopsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drivepilot_emergency_stops_total",
			Help: "Total number of emergency stops triggered by obstacle response.",
		},
	)

	// OTARollbacksTotal counts update attempts that ended in rollback.
	OTARollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drivepilot_ota_rollbacks_total",
			Help: "Total number of OTA updates rolled back.",
		},
	)

	// ObstaclesTracked reports the current size of the tracked obstacle set.
	ObstaclesTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drivepilot_obstacles_tracked",
			Help: "Number of obstacles currently in the tracked set.",
		},
	)
)

func init() {
	Registry.MustRegister(
		TicksTotal,
		EventsPublishedTotal,
		AlertsTotal,
		EmergencyStopsTotal,
		OTARollbacksTotal,
		ObstaclesTracked,
	)
}
