package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/tiling"
)

var (
	ErrSlotSize         = errors.New("result length does not match slot size")
	ErrShapeChanged     = errors.New("filter changed tile shape")
	ErrMissingResult    = errors.New("worker finished without delivering a result")
	ErrAlreadyDelivered = errors.New("result already delivered")
	ErrArenaReleased    = errors.New("arena released")
	ErrUnknownTransport = errors.New("unknown transport")
)

// Transport names
const (
	ArenaTransport   = "arena"
	ChannelTransport = "channel"
)

// Sink is the write side handed to exactly one worker. Deliver is called at
// most once; Close is always called when the worker returns.
type Sink interface {
	Deliver(result *imaging.Raster) error
	Close()
}

// Session holds the per-tile result endpoints of one run. It is opened
// before any worker starts and released after results are read.
type Session interface {
	// Sink returns the write handle for tile i
	Sink(i int) Sink
	// Gather returns results in tile order. join blocks until every worker
	// has terminated and returns the first worker error.
	Gather(ctx context.Context, join func() error) ([]*imaging.Raster, error)
	// Release frees buffers and closes any channel still open
	Release()
}

// Transport carries worker results back to the coordinator
type Transport interface {
	Name() string
	Open(tiles []tiling.Tile) (Session, error)
}

// NewTransport returns the transport registered under name
func NewTransport(name string) (Transport, error) {
	switch name {
	case ArenaTransport:
		return NewArenaTransport(), nil
	case ChannelTransport:
		return NewChannelTransport(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
}
