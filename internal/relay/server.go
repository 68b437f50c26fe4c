package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/tilerelay/internal/client"
	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tilerelay/internal/shared/id"
	"github.com/GriffinCanCode/tilerelay/internal/wire"
)

const serviceName = "relay"

// ReplyPrefix starts the success reply sent to clients
const ReplyPrefix = "Scaled image available at: "

// Config holds relay settings
type Config struct {
	ScaleAddr    string
	DialTimeout  time.Duration
	IOTimeout    time.Duration
	MaxFrameSize uint32

	// Accept rate limiting, disabled when ConnectionsPerSecond is zero
	ConnectionsPerSecond float64
	Burst                int
}

// Admitter gates new connections during shutdown
type Admitter interface {
	Admit() (func(), error)
}

// Server is the relay
type Server struct {
	cfg      Config
	store    *Store
	scale    *client.Client
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	admitter Admitter
	limiter  *rate.Limiter
	conns    sync.WaitGroup
}

// NewServer creates a relay persisting into store
func NewServer(cfg Config, store *Store, logger *logging.Logger) *Server {
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 30 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger.Component(serviceName),
		scale: client.New(client.Config{
			DialTimeout:  cfg.DialTimeout,
			IOTimeout:    cfg.IOTimeout,
			MaxFrameSize: cfg.MaxFrameSize,
		}, logger),
	}
	if cfg.ConnectionsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.ConnectionsPerSecond), burst)
	}
	return s
}

// WithMetrics attaches a metrics collector
func (s *Server) WithMetrics(metrics *monitoring.Metrics) *Server {
	s.metrics = metrics
	s.scale.WithMetrics(metrics, monitoring.LegScale)
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

// Serve accepts client connections until ctx is cancelled or the listener
// fails, then waits for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.conns.Wait()

	s.logger.Info("Relay listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("scale", s.cfg.ScaleAddr),
	)

	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

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
	traceID := id.NewTraceID()
	ctx = tracing.WithTraceID(ctx, traceID)
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

	var artifact Artifact
	var spanID id.SpanID
	err := s.trace(ctx, "relay.request", func(ctx context.Context, span *tracing.Span) error {
		spanID = span.SpanID
		span.SetTag("conn", connID.String())

		payload, err := s.receive(conn)
		if err != nil {
			return err
		}

		artifact, err = s.Process(ctx, payload)
		if err != nil {
			return err
		}
		span.SetTag("artifact", artifact.Name)

		return s.reply(conn, []byte(ReplyPrefix+artifact.URL))
	})

	kind := wire.Classify(err)
	duration := timer.Stop(string(kind))
	log = log.With(zap.String("trace", tracing.FormatTrace(traceID, spanID)))
	if err == nil {
		log.Info("Request served",
			zap.String("artifact", artifact.Name),
			zap.String("artifact_id", artifact.ID.String()),
			zap.Int("bytes", artifact.Size),
			zap.Duration("duration", duration),
		)
		return
	}
	if errors.Is(err, io.EOF) {
		log.Debug("Client closed before sending a frame")
		return
	}

	log.Warn("Request failed", zap.String("kind", string(kind)), zap.Error(err))
	if s.replyError(conn, log, err) && ctx.Err() == nil {
		wire.Linger(conn, 0, time.Now().Add(s.cfg.IOTimeout))
	}
}

// Process runs one image through grayscale, the scale service and the
// artifact store
func (s *Server) Process(ctx context.Context, payload []byte) (Artifact, error) {
	img, _, err := imaging.Decode(payload)
	if err != nil {
		return Artifact{}, err
	}

	gray, err := imaging.EncodeBytes(imaging.Grayscale(img), imaging.FormatJPEG)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to encode grayscale: %w", err)
	}

	var scaled []byte
	err = s.trace(ctx, "relay.scale", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("addr", s.cfg.ScaleAddr)
		var err error
		scaled, err = s.scale.Exchange(ctx, s.cfg.ScaleAddr, gray)
		return err
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("scale call failed: %w", err)
	}

	artifact, err := s.store.Save(scaled)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to persist artifact: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordArtifact(artifact.Size)
	}
	return artifact, nil
}

func (s *Server) receive(conn net.Conn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IOTimeout)); err != nil {
		return nil, err
	}
	payload, err := wire.ReadFrame(conn, s.cfg.MaxFrameSize)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordFrame(monitoring.LegClient, monitoring.DirectionIn, len(payload))
	}
	return payload, nil
}

func (s *Server) reply(conn net.Conn, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.IOTimeout)); err != nil {
		return err
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordFrame(monitoring.LegClient, monitoring.DirectionOut, len(payload))
	}
	return nil
}

// replyError reports whether the error frame was written
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
		s.metrics.RecordErrorFrame(monitoring.LegClient, string(wire.Classify(err)))
	}
	return true
}

func (s *Server) trace(ctx context.Context, name string, fn func(context.Context, *tracing.Span) error) error {
	if s.tracer == nil {
		return fn(ctx, &tracing.Span{
			TraceID: tracing.GetTraceID(ctx),
			SpanID:  id.NewSpanID(),
			Tags:    map[string]string{},
		})
	}
	return s.tracer.Trace(ctx, name, fn)
}
