package main

import (
	"flag"
	"log"
	"net"
	"os"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/config"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/lifecycle"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tilerelay/internal/scale"
)

func main() {
	cfg := config.LoadOrDefault()

	host := flag.String("ip", cfg.Scale.Host, "Listen address")
	port := flag.String("port", cfg.Scale.Port, "Listen port")
	factor := flag.Float64("factor", cfg.Scale.Factor, "Scale factor")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode")
	flag.Parse()

	cfg.Scale.Host, cfg.Scale.Port = *host, *port
	cfg.Scale.Factor = *factor
	cfg.Logging.Development = *dev

	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)
	defer logger.Sync()

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("scale", logger.Logger)

	handler := lifecycle.New("scale", lifecycle.Settings{
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
	handler.OnRelease(func() error {
		tracer.Close()
		return nil
	})

	ln, err := net.Listen("tcp", cfg.ScaleAddr())
	if err != nil {
		log.Fatalf("scaler: %v", err)
	}

	srv := scale.NewServer(scale.Config{
		Factor:       cfg.Scale.Factor,
		IOTimeout:    cfg.Network.IOTimeout,
		MaxFrameSize: cfg.Network.MaxFrameSize,
	}, logger).WithMetrics(metrics).WithTracer(tracer).WithAdmitter(handler)

	serveErr := srv.Serve(handler.Context(), ln)
	if err := handler.Shutdown(); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
	}
	if serveErr != nil {
		logger.Error("Scale service stopped", zap.Error(serveErr))
		os.Exit(1)
	}
}
