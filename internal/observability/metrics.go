package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the staff chat backend.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "staffchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "staffchat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffchat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staffchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	messagesPostedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffchat_messages_posted_total",
			Help: "Messages stored, by the surface they arrived on.",
		},
		[]string{"via"},
	)
	roomDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffchat_room_deliveries_total",
			Help: "Message frames queued to room members, by outcome.",
		},
		[]string{"outcome"},
	)
	clientReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffchat_client_channel_dials_total",
			Help: "Channel redial attempts by outcome.",
		},
		[]string{"outcome"},
	)
	clientRESTErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staffchat_client_rest_errors_total",
			Help: "Failed REST calls by operation.",
		},
		[]string{"op"},
	)
	clientSendFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staffchat_client_send_fallbacks_total",
			Help: "Sends that fell back from the channel to REST.",
		},
	)
	clientAckFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staffchat_client_ack_failures_total",
			Help: "Channel sends acknowledged with an error or not at all.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		messagesPostedTotal,
		roomDeliveriesTotal,
		clientReconnectsTotal,
		clientRESTErrorsTotal,
		clientSendFallbacksTotal,
		clientAckFailuresTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latency per route
// template. Unrouted paths share one label. Websocket upgrades are counted
// but not timed.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		if c.Writer.Status() == http.StatusSwitchingProtocols {
			return
		}
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
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

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncClientReconnect(outcome string) {
	clientReconnectsTotal.WithLabelValues(outcome).Inc()
}

func IncClientRESTError(op string) {
	clientRESTErrorsTotal.WithLabelValues(op).Inc()
}

func IncClientSendFallback() {
	clientSendFallbacksTotal.Inc()
}

func IncClientAckFailure() {
	clientAckFailuresTotal.Inc()
}

func IncMessagePosted(via string) {
	messagesPostedTotal.WithLabelValues(via).Inc()
}

// AddRoomDeliveries counts frames queued to room members and those dropped
// because the member's queue was closed or full.
func AddRoomDeliveries(sent, dropped int) {
	roomDeliveriesTotal.WithLabelValues("sent").Add(float64(sent))
	roomDeliveriesTotal.WithLabelValues("dropped").Add(float64(dropped))
}
