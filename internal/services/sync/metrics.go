package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "looper",
		Subsystem: "sync",
		Name:      "cycles_total",
		Help:      "Poll cycles started per exchange",
	}, []string{"exchange"})

	categorySyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "looper",
		Subsystem: "sync",
		Name:      "category_syncs_total",
		Help:      "Successful category refreshes per exchange",
	}, []string{"exchange", "category"})

	fetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "looper",
		Subsystem: "sync",
		Name:      "fetch_errors_total",
		Help:      "Adapter failures by classification",
	}, []string{"exchange", "class"})
)
