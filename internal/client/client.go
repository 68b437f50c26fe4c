package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tilerelay/internal/wire"
)

// Config holds client timeouts and limits
type Config struct {
	DialTimeout  time.Duration
	IOTimeout    time.Duration
	MaxFrameSize uint32
}

// DefaultConfig returns the client defaults
func DefaultConfig() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		IOTimeout:    30 * time.Second,
		MaxFrameSize: wire.DefaultMaxFrameSize,
	}
}

// Client performs single request/response exchanges
type Client struct {
	cfg     Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	leg     string
}

// New creates a client
func New(cfg Config, logger *logging.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = defaults.IOTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.Component("client"),
		leg:    monitoring.LegClient,
	}
}

// WithMetrics records frames under the given leg label
func (c *Client) WithMetrics(metrics *monitoring.Metrics, leg string) *Client {
	c.metrics = metrics
	c.leg = leg
	return c
}

// Exchange sends payload to addr as one frame and returns the reply payload
func (c *Client) Exchange(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dial %s: %w", wire.ErrConnectionFailure, addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := conn.SetDeadline(time.Now().Add(c.cfg.IOTimeout)); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %w", wire.ErrConnectionFailure, err)
	}

	if err := wire.WriteFrame(conn, payload); err != nil {
		return nil, c.sendFailed(ctx, conn, err)
	}
	c.record(wire.KindOK, monitoring.DirectionOut, len(payload))

	reply, err := wire.ReadFrame(conn, c.cfg.MaxFrameSize)
	if err != nil {
		var remote *wire.RemoteError
		if errors.As(err, &remote) {
			c.record(remote.Kind, monitoring.DirectionIn, 0)
			return nil, err
		}
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: peer closed without reply", wire.ErrFrameTruncated)
		}
		return nil, c.failed(ctx, "receive", err)
	}
	c.record(wire.KindOK, monitoring.DirectionIn, len(reply))

	c.logger.Debug("Exchange complete",
		zap.String("addr", addr),
		zap.Int("sent", len(payload)),
		zap.Int("received", len(reply)),
	)
	return reply, nil
}

// SendFile reads path and sends its bytes in one exchange
func (c *Client) SendFile(ctx context.Context, addr, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c.Exchange(ctx, addr, data)
}

// sendFailed prefers an error frame the peer sent before dropping the
// upload over the write error itself
func (c *Client) sendFailed(ctx context.Context, r io.Reader, err error) error {
	if ctx.Err() == nil && !errors.Is(err, wire.ErrFrameTooLarge) && !errors.Is(err, os.ErrDeadlineExceeded) {
		var remote *wire.RemoteError
		if _, rerr := wire.ReadFrame(r, c.cfg.MaxFrameSize); errors.As(rerr, &remote) {
			c.record(remote.Kind, monitoring.DirectionIn, 0)
			return rerr
		}
	}
	return c.failed(ctx, "send", err)
}

func (c *Client) failed(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) record(kind wire.Kind, direction string, size int) {
	if c.metrics == nil {
		return
	}
	if kind != wire.KindOK {
		c.metrics.RecordErrorFrame(c.leg, string(kind))
		return
	}
	c.metrics.RecordFrame(c.leg, direction, size)
}
