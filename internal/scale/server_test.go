package scale

import (
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tilerelay/internal/client"
	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tilerelay/internal/wire"
)

func encoded(t *testing.T, w, h int, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 9), B: 90, A: 255})
		}
	}
	data, err := imaging.EncodeBytes(img, format)
	require.NoError(t, err)
	return data
}

func start(t *testing.T, cfg Config) (*Server, string, *monitoring.Metrics) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	metrics := monitoring.NewMetrics()
	srv := NewServer(cfg, nil).WithMetrics(metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("scale server did not stop")
		}
	})
	return srv, ln.Addr().String(), metrics
}

func exchange(t *testing.T, addr string, payload []byte) ([]byte, error) {
	t.Helper()
	c := client.New(client.Config{DialTimeout: time.Second, IOTimeout: 5 * time.Second}, nil)
	return c.Exchange(context.Background(), addr, payload)
}

func TestScaleHalvesImage(t *testing.T) {
	tests := []struct {
		format string
	}{
		{imaging.FormatPNG},
		{imaging.FormatJPEG},
	}

	_, addr, metrics := start(t, Config{Factor: 0.5, IOTimeout: time.Second})

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			reply, err := exchange(t, addr, encoded(t, 40, 20, tt.format))
			require.NoError(t, err)

			img, format, err := imaging.Decode(reply)
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, 20, img.Bounds().Dx())
			assert.Equal(t, 10, img.Bounds().Dy())
		})
	}

	assert.Eventually(t, func() bool {
		return metrics.Snapshot().TotalRequests == 2
	}, time.Second, 10*time.Millisecond)
}

func TestScaleRejectsUndecodableBytes(t *testing.T) {
	_, addr, metrics := start(t, Config{IOTimeout: time.Second})

	_, err := exchange(t, addr, []byte("definitely not an image"))

	var remote *wire.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, wire.KindDecodeFailure, remote.Kind)
	assert.ErrorIs(t, err, imaging.ErrDecodeFailure)

	assert.Eventually(t, func() bool {
		return metrics.Snapshot().TotalFailures == 1
	}, time.Second, 10*time.Millisecond)
}

func TestScaleTimesOutOnShortFrame(t *testing.T) {
	_, addr, _ := start(t, Config{IOTimeout: 100 * time.Millisecond})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	var header [wire.HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], 1000)
	_, err = conn.Write(header[:])
	require.NoError(t, err)
	_, err = conn.Write(make([]byte, 10))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = wire.ReadFrame(conn, 0)
	assert.ErrorIs(t, err, wire.ErrTimeout)

	var remote *wire.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, wire.KindTimeout, remote.Kind)
}

func TestScaleReportsTruncatedFrame(t *testing.T) {
	_, addr, _ := start(t, Config{IOTimeout: 5 * time.Second})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	var header [wire.HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], 1000)
	_, err = conn.Write(append(header[:], make([]byte, 10)...))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = wire.ReadFrame(conn, 0)
	assert.ErrorIs(t, err, wire.ErrFrameTruncated)
}

type closedGate struct{}

func (closedGate) Admit() (func(), error) { return nil, errors.New("draining") }

func TestScaleRefusesWhenNotAdmitted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewServer(Config{}, nil).WithAdmitter(closedGate{}).Serve(ctx, ln) }()

	_, err = exchange(t, ln.Addr().String(), encoded(t, 4, 4, imaging.FormatPNG))
	assert.Error(t, err)
}

func TestScaleDirect(t *testing.T) {
	srv := NewServer(Config{Factor: 0.25}, nil)

	out, format, err := srv.Scale(encoded(t, 16, 8, imaging.FormatPNG))
	require.NoError(t, err)
	assert.Equal(t, imaging.FormatPNG, format)

	img, _, err := imaging.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())

	_, _, err = srv.Scale(nil)
	assert.ErrorIs(t, err, imaging.ErrDecodeFailure)
}
