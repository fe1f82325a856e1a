// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	integrationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_errors_total",
			Help: "Vendor API calls that failed after retries",
		},
		[]string{"service"},
	)

	leadsScraped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leads_scraped_total",
			Help: "Qualified leads persisted by scrape runs",
		},
	)

	leadsEnriched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_enrichment_total",
			Help: "Enrichment attempts by result",
		},
		[]string{"result"},
	)

	callsPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_placed_total",
			Help: "Outbound call attempts by result",
		},
		[]string{"result"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vapi_webhook_events_total",
			Help: "VAPI webhook events processed by type",
		},
		[]string{"type"},
	)

	webhookDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vapi_webhook_duplicates_total",
			Help: "Redelivered VAPI webhook events skipped",
		},
	)

	campaignRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_runs_total",
			Help: "Scrape runs by final campaign status",
		},
		[]string{"status"},
	)
)

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordIntegrationError(service string, _ error) {
	integrationErrors.WithLabelValues(service).Inc()
}

func RecordLeadsScraped(n int) {
	if n > 0 {
		leadsScraped.Add(float64(n))
	}
}

func RecordEnrichment(ok bool) {
	leadsEnriched.WithLabelValues(result(ok)).Inc()
}

func RecordCall(ok bool) {
	callsPlaced.WithLabelValues(result(ok)).Inc()
}

func RecordWebhookEvent(eventType string) {
	webhookEvents.WithLabelValues(eventType).Inc()
}

func RecordWebhookDuplicate() {
	webhookDuplicates.Inc()
}

func RecordCampaignRun(status string) {
	campaignRuns.WithLabelValues(status).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
