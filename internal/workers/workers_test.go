package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tilerelay/internal/tiling"
)

func patterned(w, h int) *imaging.Raster {
	r := imaging.NewRaster(w, h, 3)
	for i := range r.Pix {
		r.Pix[i] = uint8((i*31 + i/7) % 256)
	}
	return r
}

func invert(_ context.Context, r *imaging.Raster) (*imaging.Raster, error) {
	out := imaging.NewRaster(r.Width, r.Height, r.Channels)
	for i, v := range r.Pix {
		out.Pix[i] = 255 - v
	}
	return out, nil
}

func blur(ctx context.Context, r *imaging.Raster) (*imaging.Raster, error) {
	return imaging.GaussianBlur(ctx, r, 5)
}

func transports() []Transport {
	return []Transport{NewArenaTransport(), NewChannelTransport()}
}

func TestScenarioFourTilesThreeFiltered(t *testing.T) {
	for _, tr := range transports() {
		t.Run(tr.Name(), func(t *testing.T) {
			src := patterned(400, 100)
			tiles, err := tiling.Split(src, 4)
			require.NoError(t, err)

			coord := NewCoordinator(tr, blur, nil).WithMetrics(monitoring.NewMetrics())
			out, err := coord.Run(context.Background(), tiles, tiling.NewFilterSelection(0, 1, 2))
			require.NoError(t, err)
			require.Len(t, out, 4)

			for i, tile := range out {
				assert.Equal(t, 100, tile.Raster.Width)
				assert.Equal(t, i, tile.Index)
				assert.Equal(t, tiles[i].Bounds, tile.Bounds)
			}
			assert.True(t, out[3].Raster.Equal(tiles[3].Raster), "unselected tile must pass through untouched")
			for i := 0; i < 3; i++ {
				assert.False(t, out[i].Raster.Equal(tiles[i].Raster), "tile %d should be filtered", i)
			}

			composed, err := tiling.Compose(out)
			require.NoError(t, err)
			assert.Equal(t, 400, composed.Width)
			assert.Equal(t, 100, composed.Height)
		})
	}
}

func TestEmptySelectionIsIdentity(t *testing.T) {
	for _, tr := range transports() {
		t.Run(tr.Name(), func(t *testing.T) {
			src := patterned(37, 9)
			tiles, err := tiling.Split(src, 5)
			require.NoError(t, err)

			out, err := NewCoordinator(tr, invert, nil).Run(context.Background(), tiles, tiling.NewFilterSelection())
			require.NoError(t, err)

			composed, err := tiling.Compose(out)
			require.NoError(t, err)
			assert.Equal(t, src.Pix, composed.Pix)
		})
	}
}

func TestOutOfRangeIndicesAreIgnored(t *testing.T) {
	for _, tr := range transports() {
		t.Run(tr.Name(), func(t *testing.T) {
			src := patterned(12, 3)
			tiles, err := tiling.Split(src, 3)
			require.NoError(t, err)

			out, err := NewCoordinator(tr, invert, nil).Run(context.Background(), tiles, tiling.NewFilterSelection(-1, 3, 99))
			require.NoError(t, err)
			for i := range out {
				assert.True(t, out[i].Raster.Equal(tiles[i].Raster))
			}
		})
	}
}

func TestNonUniformWidthsStayCorrect(t *testing.T) {
	for _, tr := range transports() {
		t.Run(tr.Name(), func(t *testing.T) {
			// 10 columns over 3 tiles: widths 3, 3, 4.
			src := patterned(10, 6)
			tiles, err := tiling.Split(src, 3)
			require.NoError(t, err)

			out, err := NewCoordinator(tr, invert, nil).Run(context.Background(), tiles, tiling.NewFilterSelection(0, 1, 2))
			require.NoError(t, err)

			for i := range out {
				want, _ := invert(context.Background(), tiles[i].Raster)
				assert.True(t, want.Equal(out[i].Raster), "tile %d", i)
			}
		})
	}
}

func TestArenaSliceLaw(t *testing.T) {
	widths := []int{1, 4, 7, 2}
	tiles := make([]tiling.Tile, len(widths))
	left := 0
	for i, w := range widths {
		r := imaging.NewRaster(w, 3, 3)
		for j := range r.Pix {
			r.Pix[j] = uint8(i + 1)
		}
		tiles[i] = tiling.Tile{Index: i, Bounds: tiling.Bounds{Left: left, Right: left + w}, Raster: r}
		left += w
	}

	arena := NewArena(tiles)
	assert.Equal(t, (1+4+7+2)*3*3, arena.Size())

	offset := 0
	for i, tile := range tiles {
		start, end := arena.Range(i)
		assert.Equal(t, offset, start)
		assert.Equal(t, offset+tile.Len(), end)
		assert.Equal(t, tile.Len(), arena.Slot(i).Len())
		offset = end
	}

	// Write in reverse to show order does not matter.
	for i := len(tiles) - 1; i >= 0; i-- {
		require.NoError(t, arena.Slot(i).Write(tiles[i].Raster.Pix))
	}

	for i := range tiles {
		read, err := arena.Read(i)
		require.NoError(t, err)
		for _, b := range read.Pix {
			require.Equal(t, uint8(i+1), b, "tile %d leaked outside its slot", i)
		}
		assert.True(t, read.Equal(tiles[i].Raster))
	}

	arena.Release()
	_, err := arena.Read(0)
	assert.ErrorIs(t, err, ErrArenaReleased)
}

func TestSlotRejectsWrongSizeAndSecondWrite(t *testing.T) {
	tiles := []tiling.Tile{{Index: 0, Raster: imaging.NewRaster(2, 2, 3)}}
	arena := NewArena(tiles)
	slot := arena.Slot(0)

	assert.ErrorIs(t, slot.Write(make([]uint8, 5)), ErrSlotSize)
	assert.False(t, slot.Written())

	_, err := arena.Read(0)
	assert.ErrorIs(t, err, ErrMissingResult)

	require.NoError(t, slot.Write(make([]uint8, 12)))
	assert.ErrorIs(t, slot.Write(make([]uint8, 12)), ErrAlreadyDelivered)
}

func TestChannelSinkIsOneShot(t *testing.T) {
	tiles := []tiling.Tile{{Index: 0, Raster: imaging.NewRaster(1, 1, 3)}}
	session, err := NewChannelTransport().Open(tiles)
	require.NoError(t, err)
	defer session.Release()

	sink := session.Sink(0)
	require.NoError(t, sink.Deliver(tiles[0].Raster))
	assert.ErrorIs(t, sink.Deliver(tiles[0].Raster), ErrAlreadyDelivered)
	sink.Close()
	sink.Close()
}

func TestResultsFollowTileOrderNotCompletionOrder(t *testing.T) {
	for _, tr := range transports() {
		t.Run(tr.Name(), func(t *testing.T) {
			src := patterned(8, 2)
			tiles, err := tiling.Split(src, 4)
			require.NoError(t, err)

			position := make(map[*imaging.Raster]int, len(tiles))
			for i, tile := range tiles {
				position[tile.Raster] = i
			}
			slowFirst := func(ctx context.Context, r *imaging.Raster) (*imaging.Raster, error) {
				time.Sleep(time.Duration(len(tiles)-position[r]) * 10 * time.Millisecond)
				return invert(ctx, r)
			}

			out, err := NewCoordinator(tr, slowFirst, nil).Run(context.Background(), tiles, tiling.NewFilterSelection(0, 1, 2, 3))
			require.NoError(t, err)
			for i := range out {
				want, _ := invert(context.Background(), tiles[i].Raster)
				assert.True(t, want.Equal(out[i].Raster), "tile %d out of order", i)
			}
		})
	}
}

func TestFilterErrorFailsWholeRun(t *testing.T) {
	boom := errors.New("filter exploded")

	for _, tr := range transports() {
		t.Run(tr.Name(), func(t *testing.T) {
			tiles, err := tiling.Split(patterned(9, 3), 3)
			require.NoError(t, err)

			failing := func(ctx context.Context, r *imaging.Raster) (*imaging.Raster, error) {
				if r == tiles[1].Raster {
					return nil, boom
				}
				<-ctx.Done()
				return nil, ctx.Err()
			}

			out, err := NewCoordinator(tr, failing, nil).Run(context.Background(), tiles, tiling.NewFilterSelection(0, 1, 2))
			assert.ErrorIs(t, err, boom)
			assert.Nil(t, out)
		})
	}
}

func TestShapeChangingFilterIsRejected(t *testing.T) {
	shrink := func(_ context.Context, r *imaging.Raster) (*imaging.Raster, error) {
		return imaging.NewRaster(r.Width+1, r.Height, r.Channels), nil
	}

	for _, tr := range transports() {
		t.Run(tr.Name(), func(t *testing.T) {
			tiles, err := tiling.Split(patterned(6, 2), 2)
			require.NoError(t, err)

			_, err = NewCoordinator(tr, shrink, nil).Run(context.Background(), tiles, tiling.NewFilterSelection(1))
			assert.ErrorIs(t, err, ErrShapeChanged)
		})
	}
}

func TestCancellationStopsWorkers(t *testing.T) {
	for _, tr := range transports() {
		t.Run(tr.Name(), func(t *testing.T) {
			tiles, err := tiling.Split(patterned(6, 2), 3)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			started := make(chan struct{}, 3)
			waiting := func(ctx context.Context, r *imaging.Raster) (*imaging.Raster, error) {
				started <- struct{}{}
				<-ctx.Done()
				return nil, ctx.Err()
			}

			done := make(chan error, 1)
			go func() {
				_, err := NewCoordinator(tr, waiting, nil).Run(ctx, tiles, tiling.NewFilterSelection(0, 1, 2))
				done <- err
			}()

			for i := 0; i < 3; i++ {
				<-started
			}
			cancel()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, context.Canceled)
			case <-time.After(2 * time.Second):
				t.Fatal("coordinator did not return after cancellation")
			}
		})
	}
}

func TestRunRejectsCancelledContext(t *testing.T) {
	tiles, err := tiling.Split(patterned(4, 2), 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewCoordinator(NewArenaTransport(), invert, nil).Run(ctx, tiles, tiling.NewFilterSelection())
	assert.ErrorIs(t, err, context.Canceled)
}

type refusingAdmitter struct {
	after    int
	admitted int
	released int
}

func (a *refusingAdmitter) Admit() (func(), error) {
	if a.admitted >= a.after {
		return nil, errors.New("draining")
	}
	a.admitted++
	return func() { a.released++ }, nil
}

func TestAdmissionIsAllOrNothing(t *testing.T) {
	tiles, err := tiling.Split(patterned(6, 2), 3)
	require.NoError(t, err)

	var calls atomic.Int32
	counting := func(ctx context.Context, r *imaging.Raster) (*imaging.Raster, error) {
		calls.Add(1)
		return invert(ctx, r)
	}

	admitter := &refusingAdmitter{after: 2}
	_, err = NewCoordinator(NewChannelTransport(), counting, nil).
		WithAdmitter(admitter).
		Run(context.Background(), tiles, tiling.NewFilterSelection(0, 1, 2))

	assert.Error(t, err)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 2, admitter.admitted)
	assert.Equal(t, 2, admitter.released)
}

func TestRunValidatesBeforeDispatch(t *testing.T) {
	good := imaging.NewRaster(2, 2, 3)
	tall := imaging.NewRaster(2, 3, 3)

	tests := []struct {
		name  string
		tiles []tiling.Tile
		want  error
	}{
		{"empty", nil, tiling.ErrInvalidPartition},
		{"wrong index", []tiling.Tile{{Index: 1, Raster: good}}, tiling.ErrInvalidPartition},
		{"missing raster", []tiling.Tile{{Index: 0}}, tiling.ErrInvalidPartition},
		{"height mismatch", []tiling.Tile{{Index: 0, Raster: good}, {Index: 1, Raster: tall}}, tiling.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCoordinator(NewArenaTransport(), invert, nil).Run(context.Background(), tt.tiles, tiling.NewFilterSelection())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewTransport(t *testing.T) {
	arena, err := NewTransport(ArenaTransport)
	require.NoError(t, err)
	assert.Equal(t, ArenaTransport, arena.Name())

	channel, err := NewTransport(ChannelTransport)
	require.NoError(t, err)
	assert.Equal(t, ChannelTransport, channel.Name())

	_, err = NewTransport("carrier-pigeon")
	assert.ErrorIs(t, err, ErrUnknownTransport)
}
