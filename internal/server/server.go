// Package server exposes the summarizer over HTTP, server-sent events and
// WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/bimmerbailey/evident/internal/config"
	"github.com/bimmerbailey/evident/internal/engine"
	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/metrics"
	"github.com/bimmerbailey/evident/internal/profile"
	"github.com/bimmerbailey/evident/internal/rephrase"
)

// Profiles is the read side of the profile registry.
type Profiles interface {
	Lookup(id string) (*profile.Profile, error)
	List() []*profile.Profile
}

// Rephraser adds a narrative to a finished bundle.
type Rephraser interface {
	Apply(ctx context.Context, b *evidence.Bundle, hints rephrase.Hints) error
}

// Deps are the collaborators a Server needs. Profiles, Rephraser and
// Metrics are optional.
type Deps struct {
	Config    config.Config
	Engine    *engine.Engine
	Profiles  Profiles
	Rephraser Rephraser
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Server routes summarization requests to the engine.
type Server struct {
	cfg       config.Config
	engine    *engine.Engine
	profiles  Profiles
	rephraser Rephraser
	metrics   *metrics.Metrics
	logger    *slog.Logger

	validate  *validator.Validate
	limiter   *rate.Limiter
	upgrader  websocket.Upgrader
	delay     time.Duration
	bodyLimit int64
	router    *gin.Engine
}

// New builds a Server and its routes.
func New(d Deps) (*Server, error) {
	if d.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(prometheus.NewRegistry())
	}

	delay, err := config.DurationOr(d.Config.Stream.Delay, 0)
	if err != nil {
		return nil, fmt.Errorf("stream.delay: %w", err)
	}

	maxPayload := d.Engine.Guard().MaxBytes
	s := &Server{
		cfg:       d.Config,
		engine:    d.Engine,
		profiles:  d.Profiles,
		rephraser: d.Rephraser,
		metrics:   d.Metrics,
		logger:    d.Logger,
		validate:  newValidator(),
		limiter:   newLimiter(d.Config.Server.RateLimit, d.Config.Server.Burst),
		delay:     delay,
		// Document and baseline each get the full payload ceiling.
		bodyLimit: 2*maxPayload + 64*1024,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(s.logger))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/profiles", s.handleProfiles)

	limited := v1.Group("/summarize-json", rateLimit(s.limiter))
	limited.POST("", decompress(), s.handleSummarize)
	limited.GET("/ws", s.handleWebSocket)

	v1.POST("/chat", rateLimit(s.limiter), decompress(), s.handleChat)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	shutdownTimeout, err := config.DurationOr(s.cfg.Server.ShutdownTimeout, 10*time.Second)
	if err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
