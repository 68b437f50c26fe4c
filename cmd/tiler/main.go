package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/config"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/lifecycle"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tilerelay/internal/pipeline"
)

func main() {
	cfg := config.LoadOrDefault()
	defaults := config.DefaultJob()

	jobPath := flag.String("job", "", "Job file (.yaml, .yml or .toml)")
	source := flag.String("source", "", "Source image")
	output := flag.String("output", "", "Output image (default "+defaults.OutputPath+")")
	tiles := flag.Int("tiles", 0, "Number of tiles")
	filter := flag.String("filter", "", "Comma-separated tile indices to blur")
	transport := flag.String("transport", "", "Result transport: arena or channel")
	sigma := flag.Float64("sigma", 0, "Gaussian sigma")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode")
	flag.Parse()

	logger := logging.FromSettings(cfg.Logging.Level, *dev)
	defer logger.Sync()

	job := defaults
	if *jobPath != "" {
		loaded, err := config.LoadJob(*jobPath)
		if err != nil {
			log.Fatalf("tiler: %v", err)
		}
		job = loaded
	}

	if *source != "" {
		job.SourcePath = *source
	}
	if *output != "" {
		job.OutputPath = *output
	}
	if *tiles > 0 {
		job.TileCount = *tiles
	}
	if *filter != "" {
		indices, err := parseIndices(*filter)
		if err != nil {
			log.Fatalf("tiler: %v", err)
		}
		job.FilterIndices = indices
	}
	if *transport != "" {
		job.Transport = *transport
	}
	if *sigma > 0 {
		job.Sigma = *sigma
	}

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("tiler", logger.Logger)

	handler := lifecycle.New("tiler", lifecycle.Settings{
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

	result, err := pipeline.New(logger).
		WithMetrics(metrics).
		WithTracer(tracer).
		WithAdmitter(handler).
		Run(handler.Context(), job)

	if shutdownErr := handler.Shutdown(); shutdownErr != nil {
		logger.Warn("Shutdown incomplete", zap.Error(shutdownErr))
	}
	if err != nil {
		logger.Error("Job failed", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("%s: %dx%d, %d tiles, blurred %v in %s\n",
		result.Output, result.Width, result.Height, result.Tiles, result.Filtered, result.Duration.Round(time.Millisecond))
}

func parseIndices(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		i, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid tile index %q: %w", p, err)
		}
		out = append(out, i)
	}
	return out, nil
}
