package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loopsExamined = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "looper",
		Subsystem: "arbitrage",
		Name:      "loops_examined_total",
		Help:      "Closed loops scored for profitability",
	})

	opportunitiesFound = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "looper",
		Subsystem: "arbitrage",
		Name:      "opportunities_total",
		Help:      "Loops whose simulated round trip was profitable",
	})

	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "looper",
		Subsystem: "arbitrage",
		Name:      "search_duration_seconds",
		Help:      "Wall time of one full search pass",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)
