package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"staffchat/internal/config"
	"staffchat/internal/db"
	"staffchat/internal/fanout"
	"staffchat/internal/handlers"
	"staffchat/internal/logger"
	"staffchat/internal/messaging"
	"staffchat/internal/middleware"
	"staffchat/internal/observability"
	"staffchat/internal/rabbitmq"
	"staffchat/internal/repositories"
	"staffchat/internal/telemetry"
	"staffchat/internal/ws"
)

const serviceName = "staffchat"

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger.Setup(logger.Options{JSON: cfg.IsProduction()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.SetupTracing(ctx, cfg.OTelEndpoint, serviceName, cfg.Env)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		slog.Error("failed to connect to db", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	mode, reason := rabbitmq.Describe(publisher)
	slog.Info("event publisher ready", "mode", mode, "noop_reason", reason)
	observability.SetPublisher(publisher)
	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.staffchat", serviceName, cfg.Env)

	broker, err := newBroker(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	staffRepo := repositories.NewStaffRepo(database)
	threadRepo := repositories.NewThreadRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	go func() {
		if err := broker.Subscribe(ctx, hub.BroadcastMessage); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("fanout subscription ended", "error", err)
			stop()
		}
	}()

	svc := messaging.NewService(staffRepo, messageRepo, broker, auditEmitter)
	threadHandler := handlers.NewThreadHandler(threadRepo, messageRepo, svc)
	channelWS := ws.NewChannelHandler(hub, staffRepo, svc)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	threadHandler.Register(router, middleware.AuthMiddleware(staffRepo))
	router.GET("/ws", channelWS.Handle)
	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	grpcServer, _ := observability.NewHealthServer()
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("failed to listen for grpc", "port", cfg.GRPCPort, "error", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("grpc health server listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(grpcLis); err != nil {
			slog.Error("grpc server error", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		slog.Warn("tracing shutdown", "error", err)
	}
}

// newBroker picks Redis pub/sub when configured so replicas share rooms.
func newBroker(redisURL string) (fanout.Broker, error) {
	if redisURL == "" {
		slog.Info("fanout: in-process broker")
		return fanout.NewLocal(), nil
	}
	b, err := fanout.NewRedis(redisURL)
	if err != nil {
		return nil, err
	}
	slog.Info("fanout: redis broker")
	return b, nil
}
