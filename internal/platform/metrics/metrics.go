package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	ChallengesIssued   prometheus.Counter
	ChallengeRejected  *prometheus.CounterVec
	CredentialsIssued  *prometheus.CounterVec
	IssuanceFailures   *prometheus.CounterVec
	ProviderDuration   *prometheus.HistogramVec
	ProviderFailures   *prometheus.CounterVec
	ContextLookupHits  prometheus.Counter
	EndpointLatency    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ChallengesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stampd_challenges_issued_total",
			Help: "Total number of challenge credentials issued",
		}),
		ChallengeRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stampd_challenges_rejected_total",
			Help: "Total number of rejected challenge responses, labeled by reason",
		}, []string{"reason"}),
		CredentialsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stampd_credentials_issued_total",
			Help: "Total number of stamp credentials issued, labeled by provider type",
		}, []string{"type"}),
		IssuanceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stampd_issuance_failures_total",
			Help: "Total number of failed issuance attempts, labeled by provider type",
		}, []string{"type"}),
		ProviderDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stampd_provider_verify_duration_seconds",
			Help:    "Duration of provider verifications in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		ProviderFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stampd_provider_failures_total",
			Help: "Total number of provider verification failures, labeled by type",
		}, []string{"type"}),
		ContextLookupHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stampd_context_lookup_hits_total",
			Help: "Number of provider lookups served from the per-request context",
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stampd_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}
