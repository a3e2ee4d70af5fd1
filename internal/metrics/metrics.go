// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DiscoveryRuns counts finished discovery runs by terminal status
	DiscoveryRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcity_discovery_runs_total",
		Help: "Discovery runs that reached a terminal status",
	}, []string{"status"})

	// DiscoveredResources counts nodes upserted by discovery, by type
	DiscoveredResources = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcity_discovered_resources_total",
		Help: "Resource nodes upserted by discovery runs",
	}, []string{"type"})

	// ProviderCallDuration observes one provider page listing
	ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cloudcity_provider_call_duration_seconds",
		Help:    "Latency of provider list calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"type", "outcome"})

	// RunningDiscoveries is the number of runs currently enumerating
	RunningDiscoveries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cloudcity_discovery_running",
		Help: "Discovery runs currently in RUNNING",
	})

	// GateChecks counts pipeline gate evaluations by outcome and budget status
	GateChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcity_pipeline_checks_total",
		Help: "Pipeline gate checks",
	}, []string{"result", "budget_status"})

	// ExportTransitions counts Terraform export state changes by target status
	ExportTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcity_export_transitions_total",
		Help: "Terraform export transitions",
	}, []string{"status"})

	// HTTPRequests counts API requests by route pattern and status code
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcity_http_requests_total",
		Help: "HTTP requests served",
	}, []string{"method", "route", "code"})
)

// ObserveProviderCall records the duration of a provider call started at start
func ObserveProviderCall(resourceType string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProviderCallDuration.WithLabelValues(resourceType, outcome).Observe(time.Since(start).Seconds())
}

// PassLabel renders a gate outcome as a label value
func PassLabel(pass bool) string {
	if pass {
		return "pass"
	}
	return "fail"
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
