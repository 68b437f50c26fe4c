package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/tiling"
)

type shape struct {
	width    int
	height   int
	channels int
}

// Arena is one flat buffer sized to the sum of all tile lengths and
// partitioned into disjoint per-tile regions. Offsets come from each tile's
// own length, so tiles of different widths never overlap.
type Arena struct {
	mu       sync.RWMutex
	buf      []uint8
	offsets  []int
	shapes   []shape
	slots    []*Slot
	released bool
}

// NewArena sizes and partitions an arena for tiles
func NewArena(tiles []tiling.Tile) *Arena {
	a := &Arena{
		offsets: make([]int, len(tiles)+1),
		shapes:  make([]shape, len(tiles)),
		slots:   make([]*Slot, len(tiles)),
	}

	for i, t := range tiles {
		a.offsets[i+1] = a.offsets[i] + t.Len()
		a.shapes[i] = shape{width: t.Raster.Width, height: t.Raster.Height, channels: t.Raster.Channels}
	}
	a.buf = make([]uint8, a.offsets[len(tiles)])

	for i := range tiles {
		start, end := a.offsets[i], a.offsets[i+1]
		a.slots[i] = &Slot{index: i, region: a.buf[start:end:end]}
	}
	return a
}

// Size is the total arena length in bytes
func (a *Arena) Size() int {
	return a.offsets[len(a.offsets)-1]
}

// Range returns the byte range [start, end) owned by tile i
func (a *Arena) Range(i int) (int, int) {
	return a.offsets[i], a.offsets[i+1]
}

// Slot returns the write handle for tile i
func (a *Arena) Slot(i int) *Slot {
	return a.slots[i]
}

// Read copies region i out of the arena and reshapes it to its tile. The
// slot must have been written.
func (a *Arena) Read(i int) (*imaging.Raster, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.released {
		return nil, ErrArenaReleased
	}
	if !a.slots[i].Written() {
		return nil, fmt.Errorf("%w: tile %d", ErrMissingResult, i)
	}

	s := a.shapes[i]
	out := imaging.NewRaster(s.width, s.height, s.channels)
	start, end := a.Range(i)
	copy(out.Pix, a.buf[start:end])
	return out, nil
}

// Release drops the buffer
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.released = true
	a.buf = nil
	for _, s := range a.slots {
		s.region = nil
	}
}

// Slot is the only part of the arena a worker can reach: a fixed-length
// region it writes exactly once.
type Slot struct {
	index   int
	region  []uint8
	written atomic.Bool
}

// Index is the tile index the slot belongs to
func (s *Slot) Index() int {
	return s.index
}

// Len is the slot length in bytes
func (s *Slot) Len() int {
	return len(s.region)
}

// Write copies pix into the slot. pix must be exactly Len bytes.
func (s *Slot) Write(pix []uint8) error {
	if len(pix) != len(s.region) {
		return fmt.Errorf("%w: tile %d wrote %d bytes into %d", ErrSlotSize, s.index, len(pix), len(s.region))
	}
	if s.written.Load() {
		return fmt.Errorf("%w: tile %d", ErrAlreadyDelivered, s.index)
	}
	copy(s.region, pix)
	s.written.Store(true)
	return nil
}

// Written reports whether Write has succeeded
func (s *Slot) Written() bool {
	return s.written.Load()
}

// arenaTransport collects results through a shared arena
type arenaTransport struct{}

// NewArenaTransport returns the shared-arena transport
func NewArenaTransport() Transport {
	return arenaTransport{}
}

func (arenaTransport) Name() string { return ArenaTransport }

func (arenaTransport) Open(tiles []tiling.Tile) (Session, error) {
	return &arenaSession{arena: NewArena(tiles)}, nil
}

type arenaSession struct {
	arena *Arena
}

type slotSink struct {
	slot *Slot
}

func (s slotSink) Deliver(result *imaging.Raster) error {
	return s.slot.Write(result.Pix)
}

func (slotSink) Close() {}

func (s *arenaSession) Sink(i int) Sink {
	return slotSink{slot: s.arena.Slot(i)}
}

// Gather waits on the barrier, then reads every slot.
func (s *arenaSession) Gather(_ context.Context, join func() error) ([]*imaging.Raster, error) {
	if err := join(); err != nil {
		return nil, err
	}

	results := make([]*imaging.Raster, len(s.arena.slots))
	for i := range results {
		r, err := s.arena.Read(i)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}

func (s *arenaSession) Release() {
	s.arena.Release()
}
