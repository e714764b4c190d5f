package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Requests        *prometheus.CounterVec
	CacheEvents     *prometheus.CounterVec
	CacheEntries    prometheus.Gauge
	CacheBytes      prometheus.Gauge
	UpstreamLatency prometheus.Histogram
	ProviderErrors  *prometheus.CounterVec
	TokenRefreshes  *prometheus.CounterVec
	WarmupPhrases   *prometheus.CounterVec

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Synthesize requests by outcome.",
		}, []string{"outcome"}),
		CacheEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Audio cache lookups by result.",
		}, []string{"result"}),
		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of cached phrases.",
		}),
		CacheBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes",
			Help:      "Total PCM bytes held by the audio cache.",
		}),
		UpstreamLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_ms",
			Help:      "Latency of provider synthesis calls in milliseconds.",
			Buckets:   []float64{100, 200, 400, 700, 1000, 1500, 2500, 5000, 10000},
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		TokenRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "OAuth access token refreshes by result.",
		}, []string{"result"}),
		WarmupPhrases: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warmup_phrases_total",
			Help:      "Warmup pre-cache attempts by result.",
		}, []string{"result"}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) ObserveUpstreamLatency(d time.Duration) {
	m.UpstreamLatency.Observe(float64(d.Milliseconds()))
}

// ObserveStage records a pipeline stage duration in the rolling latency window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

// ObserveIndicator counts a named event in the rolling latency window.
func (m *Metrics) ObserveIndicator(name string) {
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	return m.stages.Snapshot()
}

func (m *Metrics) SetCacheSize(entries int, bytes int64) {
	m.CacheEntries.Set(float64(entries))
	m.CacheBytes.Set(float64(bytes))
}

// ObserveTokenRefresh counts an OAuth refresh attempt.
func (m *Metrics) ObserveTokenRefresh(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

// ObserveWarmup counts one warmup phrase as cached, skipped or failed.
func (m *Metrics) ObserveWarmup(result string) {
	m.WarmupPhrases.WithLabelValues(result).Inc()
}

// ObserveCache counts a cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheEvents.WithLabelValues(result).Inc()
}

// ObserveProviderError counts a failed provider call. code is an HTTP status or a short class
// such as "auth", "timeout" or "network".
func (m *Metrics) ObserveProviderError(provider, code string) {
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObserveRequest(outcome string) {
	m.Requests.WithLabelValues(outcome).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
