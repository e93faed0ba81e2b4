package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pbisync_api_request_duration_seconds",
		Help:    "Duration of admin API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "outcome"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pbisync_circuit_breaker_open",
		Help: "1 when the named circuit breaker is open, 0.5 when half-open, 0 when closed",
	}, []string{"name"})

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pbisync_sweep_duration_seconds",
		Help:    "Duration of sync sweeps",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"trigger", "status"})

	sweepTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pbisync_sweeps_total",
		Help: "Sync sweeps grouped by trigger and outcome",
	}, []string{"trigger", "status"})

	// EntitiesUpserted counts reconciled workspace and dataset rows.
	EntitiesUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pbisync_entities_upserted_total",
		Help: "Entities upserted from admin API listings",
	}, []string{"kind"})

	// RefreshesAppended counts new refresh ledger entries.
	RefreshesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pbisync_refreshes_appended_total",
		Help: "Refresh history entries appended to the ledger",
	})

	// ElementsSkipped counts malformed or duplicate payload elements.
	ElementsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pbisync_elements_skipped_total",
		Help: "Admin API elements skipped during reconciliation",
	}, []string{"kind", "reason"})

	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pbisync_last_success_timestamp_seconds",
		Help: "Unix time of the last successful sweep",
	})
)

// ObserveAPIRequest records one admin API call.
func ObserveAPIRequest(method, outcome string, duration time.Duration) {
	apiRequestDuration.WithLabelValues(method, outcome).Observe(duration.Seconds())
}

// SetBreakerState exports a gobreaker state name as a gauge value.
func SetBreakerState(name, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 0.5
	}
	breakerState.WithLabelValues(name).Set(v)
}

// ObserveSweep records the duration and outcome of a sweep.
func ObserveSweep(trigger string, success bool, duration time.Duration) {
	status := "failed"
	if success {
		status = "success"
		lastSuccess.SetToCurrentTime()
	}
	sweepDuration.WithLabelValues(trigger, status).Observe(duration.Seconds())
	sweepTotal.WithLabelValues(trigger, status).Inc()
}
