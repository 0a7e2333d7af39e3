package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bimmerbailey/evident/internal/engine"
	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/metrics"
	"github.com/bimmerbailey/evident/internal/profile"
	"github.com/bimmerbailey/evident/internal/rejection"
	"github.com/bimmerbailey/evident/internal/rephrase"
	"github.com/bimmerbailey/evident/internal/stream"
)

const (
	transportHTTP = "http"
	transportSSE  = "sse"
	transportWS   = "ws"
	transportChat = "chat"

	firstMessageTimeout = 30 * time.Second
	writeTimeout        = 10 * time.Second
)

// ProfileSummary is one entry of GET /v1/profiles.
type ProfileSummary struct {
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Extractors  []string `json:"extractors"`
}

// ChatResponse is the body of a successful POST /v1/chat: the bundle plus
// its bullets as one reply text.
type ChatResponse struct {
	Reply string `json:"reply"`
	*evidence.Bundle
}

// job is a validated request ready for the engine.
type job struct {
	req      *SummarizeRequest
	engine   engine.Request
	hints    rephrase.Hints
	rephrase bool
}

func (s *Server) handleHealth(c *gin.Context) {
	n := 0
	if s.profiles != nil {
		n = len(s.profiles.List())
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "profiles": n})
}

func (s *Server) handleProfiles(c *gin.Context) {
	out := []ProfileSummary{}
	if s.profiles != nil {
		for _, p := range s.profiles.List() {
			extractors := p.Extractors
			if extractors == nil {
				extractors = []string{}
			}
			out = append(out, ProfileSummary{
				ID:          p.ID,
				Version:     p.Version,
				Title:       p.Title,
				Description: p.Description,
				Extractors:  extractors,
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"profiles": out})
}

func (s *Server) handleSummarize(c *gin.Context) {
	transport := transportHTTP
	body, err := s.readBody(c.Request.Body)
	if err != nil {
		s.fail(c, transport, err)
		return
	}
	j, err := s.prepare(body)
	if err != nil {
		s.fail(c, transport, err)
		return
	}
	if j.req.Stream {
		transport = transportSSE
	}

	ctx := c.Request.Context()
	start := time.Now()
	bundle, err := s.engine.Summarize(ctx, j.engine)
	if err != nil {
		s.fail(c, transport, err)
		return
	}
	s.metrics.ObserveBundle(transport, bundle, time.Since(start))

	if !j.req.Stream {
		s.applyRephrase(ctx, j, bundle)
		c.JSON(http.StatusOK, bundle)
		return
	}

	stream.SetSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	sink, err := stream.NewSSESink(c.Writer)
	if err != nil {
		s.logger.Error("sse unavailable", "error", err, "request_id", c.GetString(requestIDKey))
		return
	}
	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()
	if err := stream.NewEmitter(sink, stream.WithDelay(s.delay)).Emit(ctx, bundle); err != nil {
		s.logger.Info("stream ended early", "error", err, "request_id", c.GetString(requestIDKey))
	}
}

func (s *Server) handleChat(c *gin.Context) {
	body, err := s.readBody(c.Request.Body)
	if err != nil {
		s.fail(c, transportChat, err)
		return
	}
	req, err := parseChatRequest(s.validate, body)
	if err != nil {
		s.fail(c, transportChat, err)
		return
	}
	j, err := s.resolve(req)
	if err != nil {
		s.fail(c, transportChat, err)
		return
	}

	ctx := c.Request.Context()
	start := time.Now()
	bundle, err := s.engine.Summarize(ctx, j.engine)
	if err != nil {
		s.fail(c, transportChat, err)
		return
	}
	s.metrics.ObserveBundle(transportChat, bundle, time.Since(start))
	s.applyRephrase(ctx, j, bundle)
	c.JSON(http.StatusOK, ChatResponse{Reply: chatReply(bundle), Bundle: bundle})
}

func chatReply(b *evidence.Bundle) string {
	lines := make([]string, len(b.Bullets))
	for i, bullet := range b.Bullets {
		lines[i] = "- " + bullet.Text
	}
	return strings.Join(lines, "\n")
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	requestID := c.GetString(requestIDKey)
	emitter := stream.NewEmitter(&wsSink{conn: conn}, stream.WithDelay(s.delay))
	reject := func(rej *rejection.Error) {
		s.metrics.ObserveRejection(transportWS, rej)
		if err := emitter.Reject(rej); err != nil {
			s.logger.Warn("websocket write failed", "error", err, "request_id", requestID)
		}
	}

	conn.SetReadLimit(s.bodyLimit)
	_ = conn.SetReadDeadline(time.Now().Add(firstMessageTimeout))
	_, body, err := conn.ReadMessage()
	if err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			reject(rejection.PayloadTooLarge(s.engine.Guard().MaxBytes))
			return
		}
		s.logger.Info("websocket closed before request", "error", err, "request_id", requestID)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// A close or read error from the client cancels the in-flight work.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	j, err := s.prepare(body)
	if err == nil {
		var bundle *evidence.Bundle
		start := time.Now()
		bundle, err = s.engine.Summarize(ctx, j.engine)
		if err == nil {
			s.metrics.ObserveBundle(transportWS, bundle, time.Since(start))
			s.metrics.ActiveStreams.Inc()
			defer s.metrics.ActiveStreams.Dec()
			if err := emitter.Emit(ctx, bundle); err != nil {
				s.logger.Info("stream ended early", "error", err, "request_id", requestID)
				return
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "complete"),
				time.Now().Add(writeTimeout))
			return
		}
	}

	if rej, ok := rejection.As(err); ok {
		reject(rej)
		return
	}
	s.metrics.ObserveFailure(transportWS, outcomeOf(err))
	s.logger.Error("summarize failed", "error", err, "request_id", requestID)
}

// prepare parses the body and resolves it against the profile registry.
func (s *Server) prepare(body []byte) (*job, error) {
	req, err := parseRequest(s.validate, body)
	if err != nil {
		return nil, err
	}
	return s.resolve(req)
}

func (s *Server) resolve(req *SummarizeRequest) (*job, error) {
	var (
		p   *profile.Profile
		err error
	)
	switch {
	case s.profiles != nil:
		if p, err = s.profiles.Lookup(req.Profile); err != nil {
			return nil, err
		}
	case req.Profile != "":
		return nil, rejection.UnknownProfile(nil)
	}

	opts, err := profile.Resolve(s.cfg, p, req.params())
	if err != nil {
		return nil, err
	}

	hints := rephrase.Hints{Focus: opts.Focus}
	if p != nil {
		hints.Style = p.LLMHints.Style
		hints.Instructions = p.LLMHints.Instructions
	}
	return &job{
		req:      req,
		engine:   engine.Request{Document: req.JSON, Baseline: req.BaselineJSON, Options: opts},
		hints:    hints,
		rephrase: req.Rephrase,
	}, nil
}

// applyRephrase adds a narrative when asked. Failures only drop the
// narrative.
func (s *Server) applyRephrase(ctx context.Context, j *job, b *evidence.Bundle) {
	if !j.rephrase {
		return
	}
	if s.rephraser == nil {
		s.logger.Debug("rephrase requested but no provider is configured")
		return
	}
	err := s.rephraser.Apply(ctx, b, j.hints)
	s.metrics.ObserveRephrase(err)
	if err != nil {
		s.logger.Warn("rephrase failed, returning deterministic bullets", "error", err)
	}
}

// readBody drains r up to the body ceiling.
func (s *Server) readBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.bodyLimit+1))
	if err != nil {
		return nil, rejection.InvalidRequest("could not read request body", err)
	}
	if int64(len(data)) > s.bodyLimit {
		return nil, rejection.PayloadTooLarge(s.engine.Guard().MaxBytes)
	}
	return data, nil
}

// fail answers with the structured rejection or a generic server error.
func (s *Server) fail(c *gin.Context, transport string, err error) {
	if rej, ok := rejection.As(err); ok {
		s.metrics.ObserveRejection(transport, rej)
		abortWith(c, rej)
		return
	}

	outcome := outcomeOf(err)
	s.metrics.ObserveFailure(transport, outcome)
	if outcome == metrics.OutcomeCanceled {
		c.AbortWithStatus(http.StatusRequestTimeout)
		return
	}
	s.logger.Error("summarize failed", "error", err, "request_id", c.GetString(requestIDKey))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func outcomeOf(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return metrics.OutcomeCanceled
	}
	return metrics.OutcomeError
}

// wsSink writes each event as one WebSocket text message.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Send implements stream.Sink.
func (s *wsSink) Send(e stream.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(e)
}
