package scale

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tilerelay/internal/shared/id"
	"github.com/GriffinCanCode/tilerelay/internal/wire"
)

const serviceName = "scale"

// Config holds scale service settings
type Config struct {
	Factor       float64
	IOTimeout    time.Duration
	MaxFrameSize uint32
}

// Admitter gates new connections during shutdown
type Admitter interface {
	Admit() (func(), error)
}

// Server is the scale service
type Server struct {
	cfg      Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	admitter Admitter
	conns    sync.WaitGroup
}

// NewServer creates a scale server
func NewServer(cfg Config, logger *logging.Logger) *Server {
	if cfg.Factor <= 0 {
		cfg.Factor = 0.5
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		cfg:    cfg,
		logger: logger.Component(serviceName),
	}
}

// WithMetrics attaches a metrics collector
func (s *Server) WithMetrics(metrics *monitoring.Metrics) *Server {
	s.metrics = metrics
	return s
}

// WithTracer attaches a tracer
func (s *Server) WithTracer(tracer *tracing.Tracer) *Server {
	s.tracer = tracer
	return s
}

// WithAdmitter routes each connection through a
func (s *Server) WithAdmitter(a Admitter) *Server {
	s.admitter = a
	return s
}

// Serve accepts connections until ctx is cancelled or the listener fails,
// then waits for in-flight connections.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.conns.Wait()

	s.logger.Info("Scale service listening",
		zap.String("addr", ln.Addr().String()),
		zap.Float64("factor", s.cfg.Factor),
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept: %w", err)
		}

		release := func() {}
		if s.admitter != nil {
			r, err := s.admitter.Admit()
			if err != nil {
				s.logger.Warn("Rejecting connection", zap.Error(err))
				_ = conn.Close()
				continue
			}
			release = r
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			defer release()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := id.NewConnID()
	log := s.logger.With(
		zap.String("conn", connID.String()),
		zap.String("remote", conn.RemoteAddr().String()),
	)

	if s.metrics != nil {
		s.metrics.ConnectionOpened(serviceName)
		defer s.metrics.ConnectionClosed(serviceName)
	}
	timer := monitoring.NewTimer(s.metrics, serviceName)

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	err := s.trace(ctx, "scale.request", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("conn", connID.String())
		return s.serveOne(conn, log)
	})

	kind := wire.Classify(err)
	duration := timer.Stop(string(kind))
	if err == nil {
		log.Debug("Request served", zap.Duration("duration", duration))
		return
	}
	if errors.Is(err, io.EOF) {
		log.Debug("Peer closed before sending a frame")
		return
	}

	log.Warn("Request failed", zap.String("kind", string(kind)), zap.Error(err))
	if s.replyError(conn, log, err) && ctx.Err() == nil {
		wire.Linger(conn, 0, time.Now().Add(s.cfg.IOTimeout))
	}
}

func (s *Server) serveOne(conn net.Conn, log *logging.Logger) error {
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IOTimeout)); err != nil {
		return err
	}
	payload, err := wire.ReadFrame(conn, s.cfg.MaxFrameSize)
	if err != nil {
		return err
	}
	s.recordFrame(monitoring.DirectionIn, len(payload))

	scaled, format, err := s.Scale(payload)
	if err != nil {
		return err
	}
	log.Debug("Image scaled",
		zap.String("format", format),
		zap.Int("in", len(payload)),
		zap.Int("out", len(scaled)),
	)

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.IOTimeout)); err != nil {
		return err
	}
	if err := wire.WriteFrame(conn, scaled); err != nil {
		return err
	}
	s.recordFrame(monitoring.DirectionOut, len(scaled))
	return nil
}

// Scale decodes payload, resizes it by the configured factor and re-encodes
// it in the same format
func (s *Server) Scale(payload []byte) ([]byte, string, error) {
	img, format, err := imaging.Decode(payload)
	if err != nil {
		return nil, "", err
	}
	resized, err := imaging.Resize(img, s.cfg.Factor)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resize: %w", err)
	}
	out, err := imaging.EncodeBytes(resized, format)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return out, format, nil
}

func (s *Server) replyError(conn net.Conn, log *logging.Logger, err error) bool {
	if werr := conn.SetWriteDeadline(time.Now().Add(s.cfg.IOTimeout)); werr != nil {
		log.Debug("Cannot reset write deadline", zap.Error(werr))
		return false
	}
	if werr := wire.WriteError(conn, err); werr != nil {
		log.Debug("Failed to send error frame", zap.Error(werr))
		return false
	}
	if s.metrics != nil {
		s.metrics.RecordErrorFrame(monitoring.LegScale, string(wire.Classify(err)))
	}
	return true
}

func (s *Server) recordFrame(direction string, size int) {
	if s.metrics != nil {
		s.metrics.RecordFrame(monitoring.LegScale, direction, size)
	}
}

func (s *Server) trace(ctx context.Context, name string, fn func(context.Context, *tracing.Span) error) error {
	if s.tracer == nil {
		return fn(ctx, &tracing.Span{Tags: map[string]string{}})
	}
	return s.tracer.Trace(ctx, name, fn)
}
