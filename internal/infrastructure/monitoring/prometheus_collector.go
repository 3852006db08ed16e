package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "screenshare"

// PrometheusCollector implements ports.Metrics on a private registry.
type PrometheusCollector struct {
	registry *prometheus.Registry

	sessionsStarted prometheus.Counter
	sessionsEnded   prometheus.Counter
	sessionsActive  prometheus.Gauge

	tokensIssued *prometheus.CounterVec

	streamQueryDuration *prometheus.HistogramVec

	conferenceJoins        *prometheus.CounterVec
	conferenceParticipants *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Stream sessions started",
		}),
		sessionsEnded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Stream sessions ended",
		}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions started minus sessions ended on this instance",
		}),

		tokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conference_tokens_total",
			Help:      "Conference token requests by outcome",
		}, []string{"outcome"}),

		streamQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "available_streams_query_duration_seconds",
			Help:      "Latency of available stream lookups",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}, []string{"outcome"}),

		conferenceJoins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conference_joins_total",
			Help:      "Conference joins reported by the SDK",
		}, []string{"role"}),
		conferenceParticipants: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conference_participants",
			Help:      "Currently joined conference participants driven by this instance",
		}, []string{"role"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (p *PrometheusCollector) SessionStarted() {
	p.sessionsStarted.Inc()
	p.sessionsActive.Inc()
}

func (p *PrometheusCollector) SessionEnded() {
	p.sessionsEnded.Inc()
	p.sessionsActive.Dec()
}

func (p *PrometheusCollector) TokenIssued(outcome string) {
	p.tokensIssued.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) ObserveStreamQuery(duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.streamQueryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (p *PrometheusCollector) ConferenceJoined(role string) {
	p.conferenceJoins.WithLabelValues(role).Inc()
	p.conferenceParticipants.WithLabelValues(role).Inc()
}

func (p *PrometheusCollector) ConferenceLeft(role string) {
	p.conferenceParticipants.WithLabelValues(role).Dec()
}

// HTTPMiddleware records request counts and latency by matched route.
func (p *PrometheusCollector) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		p.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		p.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}
