// Package rephrase asks a language model to turn an evidence bundle into a
// short narrative. It only ever reads the bundle. Any failure leaves the
// deterministic bullets untouched; callers simply omit the narrative.
package rephrase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bimmerbailey/evident/internal/config"
	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/llm"
	"github.com/bimmerbailey/evident/internal/prompt"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("rephrasing temporarily unavailable")

// Hints are the profile-supplied rephrasing directions.
type Hints struct {
	Style        string
	Instructions string
	Focus        []string
}

// Settings tune the rephraser.
type Settings struct {
	Model       string
	Temperature float32
	MaxTokens   int
	// Timeout bounds one provider call; 0 means no extra bound.
	Timeout time.Duration
	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// Rephraser wraps a provider with a circuit breaker.
type Rephraser struct {
	provider llm.Provider
	settings Settings
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// New creates a Rephraser.
func New(provider llm.Provider, settings Settings, logger *slog.Logger) *Rephraser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 3
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	r := &Rephraser{provider: provider, settings: settings, logger: logger}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rephrase",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return r
}

// FromConfig builds a Rephraser for the configured provider. It returns
// llm.ErrDisabled when rephrasing is switched off.
func FromConfig(cfg config.LLMConfig, logger *slog.Logger) (*Rephraser, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout, err := config.DurationOr(cfg.Timeout, 0)
	if err != nil {
		return nil, fmt.Errorf("llm.timeout: %w", err)
	}
	openTimeout, err := config.DurationOr(cfg.Breaker.OpenTimeout, 0)
	if err != nil {
		return nil, fmt.Errorf("llm.breaker.open_timeout: %w", err)
	}
	provider, err := llm.NewProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(provider, Settings{
		Model:       cfg.Ollama.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     timeout,
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: openTimeout,
	}, logger), nil
}

// State reports the breaker state, for health endpoints.
func (r *Rephraser) State() string {
	return r.breaker.State().String()
}

// Check verifies that the provider answers and has the configured model
// pulled. Rephrasing still works without a successful check; the result
// only feeds startup logs.
func (r *Rephraser) Check(ctx context.Context) error {
	if err := r.provider.Heartbeat(ctx); err != nil {
		return err
	}
	if r.settings.Model == "" {
		return nil
	}
	ok, err := r.provider.ModelAvailable(ctx, r.settings.Model)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("model %q is not pulled", r.settings.Model)
	}
	return nil
}

// Rephrase returns a narrative for b. The bundle is not modified.
func (r *Rephraser) Rephrase(ctx context.Context, b *evidence.Bundle, hints Hints) (string, error) {
	messages, err := prompt.Build(prompt.TypeFor(b), prompt.BuildOptions{
		Bundle:       b,
		Style:        hints.Style,
		Instructions: hints.Instructions,
		Focus:        hints.Focus,
	})
	if err != nil {
		return "", err
	}

	if r.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.settings.Timeout)
		defer cancel()
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		resp, err := r.provider.Chat(ctx, messages, &llm.ChatOptions{
			Model:       r.settings.Model,
			Temperature: r.settings.Temperature,
			MaxTokens:   r.settings.MaxTokens,
		})
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, fmt.Errorf("%w: %v", context.Canceled, err)
			}
			return nil, err
		}
		text := strings.TrimSpace(resp.Content)
		if text == "" {
			return nil, llm.ErrInvalidResponse
		}
		return text, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	case err != nil:
		r.logger.Warn("rephrase failed", "error", err)
		return "", fmt.Errorf("rephrase: %w", err)
	}
	return out.(string), nil
}

// Apply sets b.Narrative when rephrasing succeeds and reports the error
// otherwise. The bullets are never touched.
func (r *Rephraser) Apply(ctx context.Context, b *evidence.Bundle, hints Hints) error {
	text, err := r.Rephrase(ctx, b, hints)
	if err != nil {
		return err
	}
	b.Narrative = text
	return nil
}
