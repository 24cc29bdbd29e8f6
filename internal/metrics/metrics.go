// Package metrics exposes Prometheus collectors for property resolution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	strategyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parcel",
		Subsystem: "strategy",
		Name:      "attempts_total",
		Help:      "Strategy attempts by outcome",
	}, []string{"strategy", "outcome"})

	strategyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parcel",
		Subsystem: "strategy",
		Name:      "duration_seconds",
		Help:      "Strategy call latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
	}, []string{"strategy"})

	resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parcel",
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Completed resolutions by data source tier",
	}, []string{"data_source"})

	breakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parcel",
		Subsystem: "strategy",
		Name:      "breaker_open",
		Help:      "1 while a strategy's circuit breaker is open",
	}, []string{"strategy"})
)

// ObserveAttempt records one strategy attempt.
func ObserveAttempt(strategy, outcome string, d time.Duration) {
	strategyAttempts.WithLabelValues(strategy, outcome).Inc()
	strategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveResolution records a finished cascade.
func ObserveResolution(dataSource string) {
	resolutions.WithLabelValues(dataSource).Inc()
}

// SetBreakerOpen reports a strategy breaker state.
func SetBreakerOpen(strategy string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	breakerOpen.WithLabelValues(strategy).Set(v)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
