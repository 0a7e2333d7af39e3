package server

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bimmerbailey/evident/internal/rejection"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// requestID propagates the caller's X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger writes one line per request once the handler returns.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// rateLimit rejects requests once the shared token bucket is empty.
func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			abortWith(c, rejection.RateLimited())
			return
		}
		c.Next()
	}
}

// decompress unwraps brotli request bodies. Identity is passed through and
// any other coding is refused.
func decompress() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch enc := strings.ToLower(strings.TrimSpace(c.GetHeader("Content-Encoding"))); enc {
		case "", "identity":
		case "br":
			c.Request.Body = struct {
				io.Reader
				io.Closer
			}{brotli.NewReader(c.Request.Body), c.Request.Body}
			c.Request.Header.Del("Content-Encoding")
			c.Request.ContentLength = -1
		default:
			abortWith(c, rejection.InvalidRequest("unsupported Content-Encoding "+enc, nil))
			return
		}
		c.Next()
	}
}

func abortWith(c *gin.Context, rej *rejection.Error) {
	c.AbortWithStatusJSON(rej.Status(), rej)
}

// newLimiter returns an unlimited limiter when rps is not positive.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
