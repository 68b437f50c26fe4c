package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tilerelay/internal/infrastructure/monitoring"
)

// Config holds artifact server configuration
type Config struct {
	Addr        string
	Dir         string
	Development bool
	CORS        CORSConfig
	RateLimit   *RateLimitConfig

	// Accept filters requested names; nil serves any plain file in Dir
	Accept func(name string) bool
}

// Server serves persisted artifacts, health and metrics over HTTP
type Server struct {
	router  *gin.Engine
	handler http.Handler
	http    *http.Server
	cfg     Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	started time.Time
}

// NewServer creates a new artifact server
func NewServer(cfg Config, metrics *monitoring.Metrics, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Component("artifacts")

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(CORS(cfg.CORS))
	if cfg.RateLimit != nil {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(RateLimit(*cfg.RateLimit))
	}

	s := &Server{
		router:  router,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		started: time.Now(),
	}

	router.GET("/health", s.health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	router.GET("/:name", s.artifact)
	router.HEAD("/:name", s.artifact)

	// Already-compressed image types pass through untouched
	s.handler = gzhttp.GzipHandler(router)
	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the full handler chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve serves on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Serving artifacts",
		zap.String("addr", ln.Addr().String()),
		zap.String("dir", s.cfg.Dir),
	)
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("artifact server failed: %w", err)
	}
	return nil
}

// Run listens on the configured address and serves
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down artifact server")
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) artifact(c *gin.Context) {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}
	if s.cfg.Accept != nil && !s.cfg.Accept(name) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}

	path := filepath.Join(s.cfg.Dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}
	c.File(path)
}
