package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	previewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fieldbill",
			Name:      "previews_total",
			Help:      "Count of invoice previews by outcome (ready, blocked, error).",
		},
		[]string{"outcome"},
	)

	lineItemsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fieldbill",
			Name:      "line_items_total",
			Help:      "Count of line items emitted by previews.",
		},
	)

	coverageGaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fieldbill",
			Name:      "coverage_gaps_total",
			Help:      "Count of missing rate-card rates reported, by rate type.",
		},
		[]string{"rate_type"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fieldbill",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route.",
		},
		[]string{"route"},
	)

	previewDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fieldbill",
			Name:      "preview_duration_seconds",
			Help:      "Time spent building a preview, dashboard fetches included.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(previewsTotal, lineItemsTotal, coverageGaps, httpRequests, previewDuration)
	})
}

func IncPreview(outcome string) {
	previewsTotal.WithLabelValues(outcome).Inc()
}

func AddLineItems(n int) {
	lineItemsTotal.Add(float64(n))
}

func IncCoverageGap(rateType string) {
	coverageGaps.WithLabelValues(rateType).Inc()
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

func ObservePreviewDuration(d time.Duration) {
	previewDuration.Observe(d.Seconds())
}
