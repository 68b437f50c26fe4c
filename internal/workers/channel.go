package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/tiling"
)

// channelTransport collects results through one single-use channel per worker
type channelTransport struct{}

// NewChannelTransport returns the per-worker channel transport
func NewChannelTransport() Transport {
	return channelTransport{}
}

func (channelTransport) Name() string { return ChannelTransport }

func (channelTransport) Open(tiles []tiling.Tile) (Session, error) {
	s := &channelSession{sinks: make([]*chanSink, len(tiles))}
	for i := range tiles {
		// Buffered so a worker never waits on the coordinator to send.
		s.sinks[i] = &chanSink{index: i, ch: make(chan *imaging.Raster, 1)}
	}
	return s, nil
}

type chanSink struct {
	index     int
	ch        chan *imaging.Raster
	mu        sync.Mutex
	delivered bool
	closed    bool
}

func (s *chanSink) Deliver(result *imaging.Raster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.delivered || s.closed {
		return fmt.Errorf("%w: tile %d", ErrAlreadyDelivered, s.index)
	}
	s.delivered = true
	s.ch <- result
	return nil
}

func (s *chanSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

type channelSession struct {
	sinks []*chanSink
}

func (s *channelSession) Sink(i int) Sink {
	return s.sinks[i]
}

// Gather receives from each channel in creation order, then joins every
// worker. A channel closed without a value means its worker failed; the
// worker error from join is returned in that case.
func (s *channelSession) Gather(ctx context.Context, join func() error) ([]*imaging.Raster, error) {
	results := make([]*imaging.Raster, len(s.sinks))

receive:
	for i, sink := range s.sinks {
		select {
		case r, ok := <-sink.ch:
			if !ok {
				break receive
			}
			results[i] = r
		case <-ctx.Done():
			break receive
		}
	}

	if err := join(); err != nil {
		return nil, err
	}

	// Every worker has returned and closed its channel, so these receives
	// never block.
	for i, sink := range s.sinks {
		if results[i] == nil {
			if r, ok := <-sink.ch; ok {
				results[i] = r
			}
		}
		if results[i] == nil {
			return nil, fmt.Errorf("%w: tile %d", ErrMissingResult, i)
		}
	}
	return results, nil
}

func (s *channelSession) Release() {
	for _, sink := range s.sinks {
		sink.Close()
	}
}
