// Package metrics holds the Prometheus collectors for monitoring runs.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
)

var (
	SourceCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_source_calls_total",
			Help: "Evidence source lookups by source and result status",
		},
		[]string{"source", "status"},
	)

	SourceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "placement_source_duration_seconds",
			Help:    "Evidence source lookup duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"source"},
	)

	AlertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_alerts_created_total",
			Help: "Alerts created by source and confidence",
		},
		[]string{"source", "confidence"},
	)

	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_runs_total",
			Help: "Monitoring runs by outcome",
		},
		[]string{"outcome"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "placement_run_duration_seconds",
			Help:    "Monitoring run duration in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	PairsChecked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "placement_pairs_checked_total",
			Help: "Candidate/client pairs evaluated",
		},
	)

	BreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "placement_breaker_open",
			Help: "1 when the upstream's quota breaker is open",
		},
		[]string{"service"},
	)

	NotifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_notify_failures_total",
			Help: "Failed new-alert notifications by notifier",
		},
		[]string{"notifier"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SourceCalls, SourceDuration, AlertsCreated, Runs, RunDuration, PairsChecked, BreakerOpen, NotifyFailures,
	}
}

// Register adds every collector to reg. Collectors already registered with
// reg are left alone.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return eris.Wrap(err, "metrics: register")
		}
	}
	return nil
}

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
