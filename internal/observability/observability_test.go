package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jishnu70/Chat-app-backend/internal/mocks"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := NewMetrics(prometheus.NewRegistry())
	r := gin.New()
	r.Use(metrics.HTTPMetricsMiddleware(), AccessLog(zap.NewNop()))
	r.GET("/groups/:group_id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/groups/3", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/groups/:group_id", "418")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.IncWSActive("group")
		metrics.AddFanoutResults(1, 1)
		metrics.SetLiveGroups(2)
	})
}

func TestEventsCountsPublishErrors(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "ws_events.groups", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	err := NewEvents(publisher, metrics).Publish(context.Background(), "ws_events.groups", EventEnvelope{EventType: "ws_events", EventName: "ws_error"}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.amqpPublishErrorsTotal))
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", IPFromRequest(req))
}

func TestHealthServerServes(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	srv, _ := NewHealthServer("chat-backend", metrics)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.Dial(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: "chat-backend"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.grpcServerHandledTotal.WithLabelValues("grpc.health.v1.Health", "Check", "OK")))
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("loud")
	assert.Error(t, err)

	logger, err := NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
