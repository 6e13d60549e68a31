// Package metrics exposes Prometheus collectors for scrape runs and the
// dashboard API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

var (
	pagesWalkedTotal           prometheus.Counter
	rowsExtractedTotal         prometheus.Counter
	rowsSkippedTotal           *prometheus.CounterVec
	classificationsTotal       *prometheus.CounterVec
	listingsRetainedTotal      prometheus.Counter
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	dispatchTotal              *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesWalkedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tender_pages_walked_total",
			Help: "Total number of result pages scanned.",
		})
		rowsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tender_rows_extracted_total",
			Help: "Total number of rows turned into listings.",
		})
		rowsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tender_rows_skipped_total",
			Help: "Total number of rows skipped, labeled by reason.",
		}, []string{"reason"})
		classificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tender_classifications_total",
			Help: "Total number of classifier calls, labeled by outcome.",
		}, []string{"outcome"})
		listingsRetainedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tender_listings_retained_total",
			Help: "Total number of listings written to the artifact.",
		})
		runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tender_runs_total",
			Help: "Total number of scrape runs, labeled by status.",
		}, []string{"status"})
		runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tender_run_duration_seconds",
			Help:    "Histogram of scrape run durations.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		})
		dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tender_dispatch_total",
			Help: "Total number of remote run dispatches, labeled by status.",
		}, []string{"status"})
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"})
		httpRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"})
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveClassification counts one classifier call; outcome is a category
// label, "excluded" or "error".
func ObserveClassification(outcome string) {
	Init()
	classificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(status string, retained int, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
	if retained > 0 {
		listingsRetainedTotal.Add(float64(retained))
	}
}

// ObserveDispatch counts a remote dispatch attempt.
func ObserveDispatch(status string) {
	Init()
	dispatchTotal.WithLabelValues(status).Inc()
}

// WalkObserver feeds page walker progress into the collectors.
type WalkObserver struct{}

// NewWalkObserver initializes the collectors and returns an observer.
func NewWalkObserver() WalkObserver {
	Init()
	return WalkObserver{}
}

// PageScanned counts a scanned page.
func (WalkObserver) PageScanned(int) {
	pagesWalkedTotal.Inc()
}

// RowExtracted counts a row that became a listing.
func (WalkObserver) RowExtracted() {
	rowsExtractedTotal.Inc()
}

// RowSkipped counts a skipped row by reason.
func (WalkObserver) RowSkipped(reason tender.SkipReason) {
	rowsSkippedTotal.WithLabelValues(string(reason)).Inc()
}
