package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skynet_http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skynet_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	LLMRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skynet_llm_requests_total",
		Help: "Completion calls by provider, model and outcome",
	}, []string{"provider", "model", "outcome"})

	LLMDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skynet_llm_request_duration_seconds",
		Help:    "Completion latency per provider",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
	}, []string{"provider"})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skynet_cache_lookups_total",
		Help: "Completion cache lookups by result",
	}, []string{"result"})

	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skynet_ws_active_connections",
		Help: "Active websocket connections",
	})

	ChatsStored = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skynet_chats_stored",
		Help: "Chats currently held by the store",
	})
)

var initOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(HTTPRequests, HTTPDuration, LLMRequests, LLMDuration, CacheLookups, WSConnections, ChatsStored)
	})
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
