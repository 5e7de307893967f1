package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	anomalyUnknownAction   = "unknown_action"
	anomalyRemoveUntracked = "remove_untracked"
)

type metrics struct {
	cycles    *prometheus.CounterVec
	applied   *prometheus.CounterVec
	anomalies *prometheus.CounterVec
	rows      prometheus.Gauge
	duration  prometheus.Histogram
}

// reg 为 nil 时指标不注册，测试里可以直接读
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bwtop",
			Subsystem: "engine",
			Name:      "cycles_total",
			Help:      "Refresh cycles run, by whether the drain returned any updates.",
		}, []string{"result"}),
		applied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bwtop",
			Subsystem: "engine",
			Name:      "updates_applied_total",
			Help:      "Updates merged into the process table.",
		}, []string{"action"}),
		anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bwtop",
			Subsystem: "engine",
			Name:      "anomalies_total",
			Help:      "Updates that broke the probe event contract and were ignored.",
		}, []string{"kind"}),
		rows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "bwtop",
			Subsystem: "engine",
			Name:      "rows",
			Help:      "Processes currently tracked.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bwtop",
			Subsystem: "engine",
			Name:      "cycle_seconds",
			Help:      "Time spent merging one drained batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
}
