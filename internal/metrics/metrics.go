// Package metrics exposes Prometheus collectors for check cycles and incidents.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/user/pingwatch/internal/model"
)

const (
	// OutcomeReachable labels successful probes.
	OutcomeReachable = "reachable"
	// OutcomeUnreachable labels failed probes.
	OutcomeUnreachable = "unreachable"
)

var (
	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pingwatch",
			Name:      "checks_total",
			Help:      "Total number of host checks, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	incidentsOpenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pingwatch",
			Name:      "incidents_opened_total",
			Help:      "Total number of incidents recorded.",
		},
	)

	incidentsResolvedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pingwatch",
			Name:      "incidents_resolved_total",
			Help:      "Total number of incidents marked resolved by the monitor.",
		},
	)

	probeLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pingwatch",
			Name:      "probe_latency_milliseconds",
			Help:      "Round trip time of successful probes in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pingwatch",
			Name:      "cycle_seconds",
			Help:      "Duration of a full check cycle in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	unresolvedIncidents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pingwatch",
			Name:      "unresolved_incidents",
			Help:      "Number of unresolved incidents after the last cycle.",
		},
	)
)

// Register attaches pingwatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		checksTotal,
		incidentsOpenedTotal,
		incidentsResolvedTotal,
		probeLatencyMs,
		cycleDurationSeconds,
		unresolvedIncidents,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveProbe records the outcome of a single host check.
func ObserveProbe(res model.ProbeResult) {
	if !res.Success {
		checksTotal.WithLabelValues(OutcomeUnreachable).Inc()
		return
	}
	checksTotal.WithLabelValues(OutcomeReachable).Inc()
	if res.LatencyMs != nil {
		probeLatencyMs.Observe(*res.LatencyMs)
	}
}

// IncidentOpened counts a newly saved incident.
func IncidentOpened() {
	incidentsOpenedTotal.Inc()
}

// IncidentsResolved counts incidents closed after a host recovered.
func IncidentsResolved(n int) {
	if n > 0 {
		incidentsResolvedTotal.Add(float64(n))
	}
}

// ObserveCycle records cycle duration and the unresolved backlog.
func ObserveCycle(duration time.Duration, stats model.Statistics) {
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
	unresolvedIncidents.Set(float64(stats.UnresolvedIncidents))
}
