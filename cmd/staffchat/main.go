package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"staffchat/internal/config"
	"staffchat/internal/logger"
	"staffchat/internal/models"
	"staffchat/internal/syncer"
	"staffchat/internal/telemetry"
	"staffchat/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "staffchat:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClient(os.Args[1:])
	if err != nil {
		return err
	}
	logger.Setup(logger.Options{Debug: cfg.Debug, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.SetupTracing(ctx, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "staffchat-client", "")
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer tracing.Shutdown(context.Background())

	client := transport.NewClient(transport.Options{
		APIURL:  cfg.APIURL,
		WSURL:   cfg.WSURL,
		Token:   cfg.Token,
		Channel: []transport.ChannelOption{transport.WithAckTimeout(cfg.AckTimeout)},
	})

	who, err := client.FetchIdentity(ctx)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("sign in: %w", err)
	}

	console := newConsole(os.Stdout)
	ctrl, err := syncer.New(
		syncer.StaticIdentity{Who: who, Bearer: cfg.Token},
		client,
		syncer.WithNotifier(console),
		syncer.WithDefaultCoordinator(models.ThreadID(cfg.DefaultCoordinator)),
	)
	if err != nil {
		_ = client.Close()
		return err
	}

	slog.Info("signed in", "staff_id", who.ID, "role", who.Role)

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	go console.render(ctx, ctrl.View())

	console.readCommands(ctx, os.Stdin, ctrl)
	stop()
	return <-done
}
