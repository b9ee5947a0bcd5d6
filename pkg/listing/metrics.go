package listing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchersCreated tracks fetchers created by listing factories
	FetchersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netpager_fetchers_created_total",
			Help: "Total number of fetchers created",
		},
	)

	// StaleResults tracks load results dropped because their fetcher was replaced
	StaleResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netpager_stale_results_total",
			Help: "Total number of load results discarded from superseded fetchers",
		},
		[]string{"load"}, // "initial", "after"
	)

	// ItemsLoaded tracks the number of items committed to listings
	ItemsLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netpager_items_loaded_total",
			Help: "Total number of items committed to listings",
		},
	)
)
