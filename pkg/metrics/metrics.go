package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests to the control API.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of control API requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_attempts_total",
			Help: "Marketplace fetch attempts by host and outcome.",
		},
		[]string{"host", "outcome"}, // outcome: ok, timeout, http_error, proxy_error, connection_error, other
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Duration of single fetch attempts.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	RenderFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_fallbacks_total",
			Help: "Render fallback invocations by trigger and result.",
		},
		[]string{"reason", "result"}, // reason: fetch_failed, marker_missing
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "render_duration_seconds",
			Help:    "Duration of render sessions.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		},
	)

	WorkItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "work_items_total",
			Help: "Processed (keyword, platform) work items by status.",
		},
		[]string{"platform", "status"}, // status: ok, failed
	)

	ListingsFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_found_total",
			Help: "Listings extracted, split by novelty.",
		},
		[]string{"platform", "novelty"}, // novelty: new, seen
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_run_duration_seconds",
			Help:    "Duration of complete search runs.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		},
	)

	RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "search_runs_in_flight",
			Help: "1 while a search run is executing.",
		},
	)

	ProxiesBad = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxies_bad",
			Help: "Proxies flagged bad in this process.",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifier deliveries by kind and result.",
		},
		[]string{"kind", "result"}, // kind: listing, summary; result: sent, failed, dropped
	)
)
