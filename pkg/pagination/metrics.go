package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PageLoads tracks finished page loads by load type and result
	PageLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netpager_page_loads_total",
			Help: "Total number of page loads by load type and result",
		},
		[]string{"load", "result"}, // load: "initial", "after"; result: "success", "transport", "server"
	)

	// PageLoadDuration tracks page fetch latency by load type
	PageLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netpager_page_load_duration_seconds",
			Help:    "Page fetch duration in seconds by load type",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"load"},
	)

	// Retries tracks replays of failed loads
	Retries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netpager_retries_total",
			Help: "Total number of failed loads replayed by RetryAllFailed",
		},
	)

	// Invalidations tracks invalidated fetchers
	Invalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netpager_invalidations_total",
			Help: "Total number of fetchers invalidated",
		},
	)
)
