package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proximity_http_requests_total",
			Help: "Total number of HTTP requests processed by the proximity service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proximity_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	presenceUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proximity_presence_updates_total",
			Help: "Presence store mutations by outcome (applied, stale).",
		},
		[]string{"outcome"},
	)
	broadcastSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proximity_broadcast_subscribers",
			Help: "Number of live broadcast subscriptions.",
		},
	)
	broadcastDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proximity_broadcast_delivered_total",
			Help: "Presence events delivered to subscribers, by event type.",
		},
		[]string{"type"},
	)
	broadcastEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proximity_broadcast_evictions_total",
			Help: "Subscribers evicted because their event queue overflowed.",
		},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proximity_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proximity_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	roomOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proximity_room_operations_total",
			Help: "Room orchestrator operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proximity_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		presenceUpdatesTotal,
		broadcastSubscribers,
		broadcastDeliveredTotal,
		broadcastEvictionsTotal,
		wsActiveConnections,
		wsEventsTotal,
		roomOperationsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncPresenceUpdate(outcome string) {
	presenceUpdatesTotal.WithLabelValues(outcome).Inc()
}

func SetSubscribers(n int) {
	broadcastSubscribers.Set(float64(n))
}

func IncBroadcastDelivered(eventType string) {
	broadcastDeliveredTotal.WithLabelValues(eventType).Inc()
}

func IncSubscriberEvicted() {
	broadcastEvictionsTotal.Inc()
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncRoomOperation(operation, outcome string) {
	roomOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
