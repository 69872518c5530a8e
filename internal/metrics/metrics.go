package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lexdraft"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Number of HTTP requests by method and status code."},
		[]string{"method", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency.", Buckets: prometheus.DefBuckets},
		[]string{"method"},
	)
	VersionsAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "versions_appended_total", Help: "Number of document versions appended by change type."},
		[]string{"change_type"},
	)
	WriteConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "version_write_conflicts_total", Help: "Number of version number conflicts by result."},
		[]string{"result"},
	)
	ShareResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "share_resolutions_total", Help: "Number of anonymous share resolutions by outcome."},
		[]string{"outcome"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed attempts by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected attempts by limiter type."},
		[]string{"limiter"},
	)
	ExportsRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "exports_total", Help: "Number of version exports by format and source."},
		[]string{"format", "source"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequests)
	reg.MustRegister(HTTPDuration)
	reg.MustRegister(VersionsAppended)
	reg.MustRegister(WriteConflicts)
	reg.MustRegister(ShareResolutions)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ExportsRendered)
}
