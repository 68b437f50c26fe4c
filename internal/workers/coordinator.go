package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tilerelay/internal/tiling"
)

// Filter transforms one tile. It must return a raster with the same shape
// as its input and should return ctx.Err() promptly once ctx is cancelled.
type Filter func(ctx context.Context, tile *imaging.Raster) (*imaging.Raster, error)

// Admitter gates new work, typically a lifecycle.Handler
type Admitter interface {
	Admit() (func(), error)
}

// Coordinator runs one worker per tile and collects the results in tile
// order through a Transport.
type Coordinator struct {
	transport Transport
	filter    Filter
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	admitter  Admitter
}

// NewCoordinator creates a coordinator
func NewCoordinator(transport Transport, filter Filter, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		transport: transport,
		filter:    filter,
		logger:    logger.Component("workers"),
	}
}

// WithMetrics attaches a metrics collector
func (c *Coordinator) WithMetrics(metrics *monitoring.Metrics) *Coordinator {
	c.metrics = metrics
	return c
}

// WithAdmitter makes every worker admission go through a
func (c *Coordinator) WithAdmitter(a Admitter) *Coordinator {
	c.admitter = a
	return c
}

// handle tracks one dispatched worker. It is created at dispatch and joined
// once, through the session barrier, before its result is read.
type handle struct {
	tile     tiling.Tile
	filtered bool
	sink     Sink
	release  func()
}

// Run filters the selected tiles and returns every tile, in input order,
// with its final pixels. Tiles must be indexed 0..n-1 in order and share a
// height and channel count; this is checked before any worker starts.
func (c *Coordinator) Run(ctx context.Context, tiles []tiling.Tile, selection tiling.FilterSelection) ([]tiling.Tile, error) {
	if err := validate(tiles); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ignored := selection.Ignored(len(tiles)); len(ignored) > 0 {
		c.logger.Warn("Ignoring filter indices outside tile range",
			zap.Ints("indices", ignored),
			zap.Int("tiles", len(tiles)),
		)
	}

	session, err := c.transport.Open(tiles)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s transport: %w", c.transport.Name(), err)
	}
	defer session.Release()

	handles, err := c.admit(tiles, selection, session)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handles {
		h := h
		g.Go(func() error {
			defer h.release()
			defer h.sink.Close()
			return c.work(gctx, h)
		})
	}

	results, err := session.Gather(gctx, g.Wait)
	if err != nil {
		return nil, err
	}

	out := make([]tiling.Tile, len(tiles))
	for i, t := range tiles {
		out[i] = tiling.Tile{Index: t.Index, Bounds: t.Bounds, Raster: results[i]}
	}

	c.logger.Debug("Tiles collected",
		zap.String("transport", c.transport.Name()),
		zap.Int("tiles", len(out)),
		zap.Ints("filtered", selection.Effective(len(tiles))),
	)
	return out, nil
}

// admit creates every handle up front so either all workers start or none
func (c *Coordinator) admit(tiles []tiling.Tile, selection tiling.FilterSelection, session Session) ([]*handle, error) {
	handles := make([]*handle, len(tiles))
	for i, t := range tiles {
		release := func() {}
		if c.admitter != nil {
			r, err := c.admitter.Admit()
			if err != nil {
				for _, h := range handles[:i] {
					h.release()
				}
				return nil, fmt.Errorf("failed to admit worker %d: %w", i, err)
			}
			release = r
		}
		handles[i] = &handle{
			tile:     t,
			filtered: selection.Contains(i),
			sink:     session.Sink(i),
			release:  release,
		}
	}
	return handles, nil
}

// work produces one tile's final pixels and delivers them
func (c *Coordinator) work(ctx context.Context, h *handle) error {
	start := time.Now()

	result := h.tile.Raster
	if h.filtered {
		filtered, err := c.filter(ctx, h.tile.Raster)
		if err != nil {
			return fmt.Errorf("tile %d: %w", h.tile.Index, err)
		}
		if filtered == nil || !filtered.SameShape(h.tile.Raster) || filtered.Validate() != nil {
			return fmt.Errorf("%w: tile %d", ErrShapeChanged, h.tile.Index)
		}
		result = filtered
	}

	if err := h.sink.Deliver(result); err != nil {
		return err
	}

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordTile(c.transport.Name(), h.filtered, duration)
	}
	c.logger.Debug("Tile done",
		zap.Int("tile", h.tile.Index),
		zap.Bool("filtered", h.filtered),
		zap.Duration("duration", duration),
	)
	return nil
}

// validate rejects partitions the workers cannot process
func validate(tiles []tiling.Tile) error {
	if len(tiles) == 0 {
		return fmt.Errorf("%w: no tiles", tiling.ErrInvalidPartition)
	}

	first := tiles[0].Raster
	for i, t := range tiles {
		if t.Index != i {
			return fmt.Errorf("%w: tile at position %d has index %d", tiling.ErrInvalidPartition, i, t.Index)
		}
		if t.Raster == nil {
			return fmt.Errorf("%w: tile %d has no pixels", tiling.ErrInvalidPartition, i)
		}
		if err := t.Raster.Validate(); err != nil {
			return fmt.Errorf("%w: tile %d: %v", tiling.ErrDimensionMismatch, i, err)
		}
		if t.Raster.Height != first.Height || t.Raster.Channels != first.Channels {
			return fmt.Errorf("%w: tile %d is %dx%d, expected height %d and %d channels",
				tiling.ErrDimensionMismatch, i, t.Raster.Height, t.Raster.Channels, first.Height, first.Channels)
		}
	}
	return nil
}
