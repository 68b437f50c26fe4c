package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/config"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tilerelay/internal/shared/id"
	"github.com/GriffinCanCode/tilerelay/internal/tiling"
	"github.com/GriffinCanCode/tilerelay/internal/workers"
)

// Result summarises one finished job
type Result struct {
	JobID    id.JobID
	Output   string
	Width    int
	Height   int
	Tiles    int
	Filtered []int
	Duration time.Duration
}

// Pipeline splits an image into tiles, blurs the selected ones in parallel
// and composes the result
type Pipeline struct {
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	admitter workers.Admitter
}

// New creates a pipeline
func New(logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{logger: logger.Component("pipeline")}
}

// WithMetrics attaches a metrics collector
func (p *Pipeline) WithMetrics(metrics *monitoring.Metrics) *Pipeline {
	p.metrics = metrics
	return p
}

// WithTracer attaches a tracer
func (p *Pipeline) WithTracer(tracer *tracing.Tracer) *Pipeline {
	p.tracer = tracer
	return p
}

// WithAdmitter gates worker admission, usually through a lifecycle handler
func (p *Pipeline) WithAdmitter(a workers.Admitter) *Pipeline {
	p.admitter = a
	return p
}

// Process runs the tile stage on an in-memory raster
func (p *Pipeline) Process(ctx context.Context, src *imaging.Raster, job config.Job) (*imaging.Raster, error) {
	tiles, err := tiling.Split(src, job.TileCount)
	if err != nil {
		return nil, err
	}

	transport, err := workers.NewTransport(job.Transport)
	if err != nil {
		return nil, err
	}

	sigma := job.Sigma
	blur := func(ctx context.Context, r *imaging.Raster) (*imaging.Raster, error) {
		return imaging.GaussianBlur(ctx, r, sigma)
	}

	coord := workers.NewCoordinator(transport, blur, p.logger).WithMetrics(p.metrics)
	if p.admitter != nil {
		coord.WithAdmitter(p.admitter)
	}

	processed, err := coord.Run(ctx, tiles, tiling.NewFilterSelection(job.FilterIndices...))
	if err != nil {
		return nil, err
	}
	return tiling.Compose(processed)
}

// Run loads the job's source, processes it and writes the output file
func (p *Pipeline) Run(ctx context.Context, job config.Job) (Result, error) {
	if err := job.Validate(); err != nil {
		return Result{}, err
	}

	jobID := id.NewJobID()
	start := time.Now()
	log := p.logger.With(zap.String("job", jobID.String()))

	var result Result
	err := p.trace(ctx, "pipeline.run", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("job", jobID.String())
		span.SetTag("transport", job.Transport)

		img, format, err := imaging.Load(job.SourcePath)
		if err != nil {
			return err
		}
		src := imaging.FromImage(img)
		log.Info("Source loaded",
			zap.String("path", job.SourcePath),
			zap.String("format", format),
			zap.Int("width", src.Width),
			zap.Int("height", src.Height),
		)

		out, err := p.Process(ctx, src, job)
		if err != nil {
			return err
		}

		final, err := out.ToImage()
		if err != nil {
			return err
		}
		if err := imaging.Save(job.OutputPath, final); err != nil {
			return err
		}

		result = Result{
			JobID:    jobID,
			Output:   job.OutputPath,
			Width:    out.Width,
			Height:   out.Height,
			Tiles:    job.TileCount,
			Filtered: tiling.NewFilterSelection(job.FilterIndices...).Effective(job.TileCount),
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("job %s failed: %w", jobID, err)
	}

	result.Duration = time.Since(start)
	log.Info("Job complete",
		zap.String("output", result.Output),
		zap.Ints("filtered", result.Filtered),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (p *Pipeline) trace(ctx context.Context, name string, fn func(context.Context, *tracing.Span) error) error {
	if p.tracer == nil {
		return fn(ctx, &tracing.Span{Tags: map[string]string{}})
	}
	return p.tracer.Trace(ctx, name, fn)
}
