package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "looper",
		Subsystem: "ledger",
		Name:      "mutation_queue_depth",
		Help:      "Pending mutations waiting for the owner goroutine",
	})

	mutationsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "looper",
		Subsystem: "ledger",
		Name:      "mutations_applied_total",
		Help:      "Mutations drained by the owner goroutine",
	})
)
