package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 Collector
// =============================================================================

// Collector owns every Prometheus series the bus exposes. All Record
// methods are safe on a nil *Collector, so components can take one as an
// optional dependency.
type Collector struct {
	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Bus
	busMessagesTotal    *prometheus.CounterVec
	busDeliveryDuration *prometheus.HistogramVec
	busQueueDepth       prometheus.Gauge
	busAgents           prometheus.Gauge
	busConversations    prometheus.Gauge
	agentAvailable      *prometheus.GaugeVec

	// Correlator
	correlationsTotal   *prometheus.CounterVec
	correlationDuration *prometheus.HistogramVec

	// Router / coordinator
	routeDecisionsTotal  *prometheus.CounterVec
	routeConfidence      prometheus.Histogram
	coordinationsTotal   *prometheus.CounterVec
	coordinationDuration prometheus.Histogram

	// Cache
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers all series under namespace on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.busMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "messages_total",
			Help:      "Routed messages by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	c.busDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering one message to one agent",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"agent"},
	)

	c.busQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "queue_depth",
		Help:      "Messages waiting to be routed or delivered",
	})

	c.busAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "registered_agents",
		Help:      "Registered agents",
	})

	c.busConversations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "active_conversations",
		Help:      "Conversations not yet swept",
	})

	c.agentAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "agent_available",
			Help:      "1 if the agent's last availability probe succeeded",
		},
		[]string{"agent"},
	)

	c.correlationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "requests_total",
			Help:      "Request/response exchanges by agent and status",
		},
		[]string{"agent", "status"},
	)

	c.correlationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "request_duration_seconds",
			Help:      "Time from send to response or timeout",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	c.routeDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "decisions_total",
			Help:      "Routing decisions by selected agent",
		},
		[]string{"agent", "fallback"},
	)

	c.routeConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "confidence",
		Help:      "Confidence of routing decisions",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	c.coordinationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "tasks_total",
			Help:      "Coordinated tasks by outcome",
		},
		[]string{"status"},
	)

	c.coordinationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "task_duration_seconds",
		Help:      "Wall time of a coordinated fan-out",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 📝 Recording
// =============================================================================

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if responseSize > 0 {
		c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// RecordBusEvent records one routing outcome.
func (c *Collector) RecordBusEvent(msgType, outcome, agent string, latency time.Duration) {
	if c == nil {
		return
	}
	c.busMessagesTotal.WithLabelValues(msgType, outcome).Inc()
	if latency > 0 {
		c.busDeliveryDuration.WithLabelValues(agent).Observe(latency.Seconds())
	}
}

// RecordBusStats updates the bus gauges.
func (c *Collector) RecordBusStats(queueDepth, agents, conversations int) {
	if c == nil {
		return
	}
	c.busQueueDepth.Set(float64(queueDepth))
	c.busAgents.Set(float64(agents))
	c.busConversations.Set(float64(conversations))
}

// RecordAgentAvailability records a probe result.
func (c *Collector) RecordAgentAvailability(agent string, available bool) {
	if c == nil {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	c.agentAvailable.WithLabelValues(agent).Set(v)
}

// RecordCorrelation records one request/response exchange.
func (c *Collector) RecordCorrelation(agent, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.correlationsTotal.WithLabelValues(agent, status).Inc()
	c.correlationDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordRouteDecision records a routing decision.
func (c *Collector) RecordRouteDecision(agent string, confidence float64, fallback bool) {
	if c == nil {
		return
	}
	c.routeDecisionsTotal.WithLabelValues(agent, strconv.FormatBool(fallback)).Inc()
	c.routeConfidence.Observe(confidence)
}

// RecordCoordination records a coordinated fan-out.
func (c *Collector) RecordCoordination(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.coordinationsTotal.WithLabelValues(status).Inc()
	c.coordinationDuration.Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// statusCode buckets an HTTP status into its class.
func statusCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
