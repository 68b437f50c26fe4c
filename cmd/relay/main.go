package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/config"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/lifecycle"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/server"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tilerelay/internal/relay"
)

func main() {
	cfg := config.LoadOrDefault()

	// Parse flags
	host := flag.String("ip", cfg.Relay.Host, "Relay listen address")
	port := flag.String("port", cfg.Relay.Port, "Relay listen port")
	scaleAddr := flag.String("scale", cfg.Scale.Address, "Scale service address")
	artifactAddr := flag.String("artifacts", cfg.Artifacts.Addr, "Artifact HTTP listen address")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode")
	flag.Parse()

	cfg.Relay.Host, cfg.Relay.Port = *host, *port
	cfg.Scale.Address = *scaleAddr
	cfg.Artifacts.Addr = *artifactAddr
	cfg.Logging.Development = *dev

	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Relay stopped", zap.Error(err))
		log.Fatalf("relay: %v", err)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("relay", logger.Logger)

	handler := lifecycle.New("relay", lifecycle.Settings{
		DrainTimeout: cfg.Shutdown.DrainTimeout,
		OnStateChange: func(_ string, _, to lifecycle.State) {
			metrics.SetLifecycleState(int(to))
		},
	}, logger)
	stopWatching := handler.Watch(os.Interrupt, syscall.SIGTERM)
	defer stopWatching()
	handler.OnRelease(func() error {
		logger.Info("Final metrics", metrics.Snapshot().Fields()...)
		return nil
	})

	store, err := relay.NewStore(cfg.Artifacts.Dir, cfg.Artifacts.BaseURL)
	if err != nil {
		return err
	}

	httpCfg := server.Config{
		Addr:        cfg.Artifacts.Addr,
		Dir:         store.Dir(),
		Development: cfg.Logging.Development,
		CORS:        server.DefaultCORSConfig(),
		Accept:      relay.IsArtifactName,
	}
	if cfg.RateLimit.Enabled {
		httpCfg.RateLimit = &server.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.ConnectionsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}
	}
	artifacts := server.NewServer(httpCfg, metrics, logger)

	go func() {
		if err := artifacts.Run(); err != nil {
			logger.Error("Artifact server failed", zap.Error(err))
			_ = handler.Shutdown()
		}
	}()

	handler.OnRelease(func() error {
		tracer.Close()
		return nil
	})
	handler.OnRelease(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return artifacts.Shutdown(ctx)
	})

	relayCfg := relay.Config{
		ScaleAddr:    cfg.Scale.Address,
		DialTimeout:  cfg.Network.DialTimeout,
		IOTimeout:    cfg.Network.IOTimeout,
		MaxFrameSize: cfg.Network.MaxFrameSize,
	}
	if cfg.RateLimit.Enabled {
		relayCfg.ConnectionsPerSecond = float64(cfg.RateLimit.ConnectionsPerSecond)
		relayCfg.Burst = cfg.RateLimit.Burst
	}

	ln, err := net.Listen("tcp", cfg.RelayAddr())
	if err != nil {
		_ = handler.Shutdown()
		return err
	}

	srv := relay.NewServer(relayCfg, store, logger).
		WithMetrics(metrics).
		WithTracer(tracer).
		WithAdmitter(handler)

	serveErr := srv.Serve(handler.Context(), ln)
	shutdownErr := handler.Shutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}
