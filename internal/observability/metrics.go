package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Metrics owns the service collectors. A nil *Metrics is valid and records
// nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	grpcServerHandledTotal *prometheus.CounterVec
	wsActiveConnections    *prometheus.GaugeVec
	wsEventsTotal          *prometheus.CounterVec
	amqpPublishErrorsTotal prometheus.Counter
	messagesPersistedTotal *prometheus.CounterVec
	fanoutDeliveriesTotal  *prometheus.CounterVec
	fanoutDuration         prometheus.Histogram
	liveGroups             prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_http_requests_total",
				Help: "Total number of HTTP requests processed by the chat service.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		grpcServerHandledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grpc_server_handled_total",
				Help: "Total number of gRPC requests handled by the server.",
			},
			[]string{"grpc_service", "grpc_method", "grpc_code"},
		),
		wsActiveConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chat_ws_active_connections",
				Help: "Number of active websocket connections.",
			},
			[]string{"kind"},
		),
		wsEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_ws_events_total",
				Help: "Total number of websocket events.",
			},
			[]string{"kind", "event"},
		),
		amqpPublishErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chat_amqp_publish_errors_total",
				Help: "Total number of AMQP publish errors.",
			},
		),
		messagesPersistedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_messages_persisted_total",
				Help: "Messages written to the store, by conversation kind.",
			},
			[]string{"kind"},
		),
		fanoutDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_fanout_deliveries_total",
				Help: "Per-recipient group deliveries, by result.",
			},
			[]string{"result"},
		),
		fanoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chat_fanout_duration_seconds",
				Help:    "Time to deliver one group message to every live member.",
				Buckets: prometheus.DefBuckets,
			},
		),
		liveGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chat_live_groups",
				Help: "Groups with at least one live connection.",
			},
		),
	}
	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.grpcServerHandledTotal,
		m.wsActiveConnections,
		m.wsEventsTotal,
		m.amqpPublishErrorsTotal,
		m.messagesPersistedTotal,
		m.fanoutDeliveriesTotal,
		m.fanoutDuration,
		m.liveGroups,
	)
	return m
}

func (m *Metrics) HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if m != nil {
			statusInfo := status.Convert(err)
			service, method := splitFullMethod(info.FullMethod)
			m.grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		}
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func (m *Metrics) IncWSActive(kind string) {
	if m != nil {
		m.wsActiveConnections.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) DecWSActive(kind string) {
	if m != nil {
		m.wsActiveConnections.WithLabelValues(kind).Dec()
	}
}

func (m *Metrics) IncWSEvent(kind, event string) {
	if m != nil {
		m.wsEventsTotal.WithLabelValues(kind, event).Inc()
	}
}

func (m *Metrics) IncAMQPPublishError() {
	if m != nil {
		m.amqpPublishErrorsTotal.Inc()
	}
}

func (m *Metrics) IncMessagePersisted(kind string) {
	if m != nil {
		m.messagesPersistedTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) AddFanoutResults(delivered, failed int) {
	if m == nil {
		return
	}
	m.fanoutDeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	m.fanoutDeliveriesTotal.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ObserveFanout(d time.Duration) {
	if m != nil {
		m.fanoutDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SetLiveGroups(n int) {
	if m != nil {
		m.liveGroups.Set(float64(n))
	}
}
