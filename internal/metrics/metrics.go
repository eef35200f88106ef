// Package metrics holds the prometheus collectors for rebalancing cycles.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "capitol"

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rebalance_cycles_total", Help: "Rebalancing cycles by outcome"},
		[]string{"mode", "outcome"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: "rebalance_cycle_seconds", Help: "Duration of a rebalancing cycle", Buckets: prometheus.ExponentialBuckets(0.5, 2, 10)},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "orders_total", Help: "Order intents by side and status"},
		[]string{"side", "status"},
	)
	OrderRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "order_rejections_total", Help: "Brokerage rejections by kind"},
		[]string{"kind"},
	)
	StrategyRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "strategy_runs_total", Help: "Strategy executions by outcome"},
		[]string{"strategy", "outcome"},
	)
	UntradeableFlags = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "untradeable_flags_total", Help: "Symbols flagged untradeable by reason"},
		[]string{"reason"},
	)
	FilteredPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "merge_filtered_ratio", Help: "Fraction of merged positions dropped by the minimum value filter"},
	)
	GrossExposure = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "target_gross_exposure_dollars", Help: "Gross exposure of the last blended portfolio"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		CycleDuration,
		OrdersTotal,
		OrderRejections,
		StrategyRuns,
		UntradeableFlags,
		FilteredPositions,
		GrossExposure,
	)
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
