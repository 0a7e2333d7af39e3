// Package llm is the provider seam used by the rephrasing stage.
//
//	provider, err := llm.NewProvider(cfg.LLM, logger)
//	if errors.Is(err, llm.ErrDisabled) {
//	    // deterministic bullets only
//	}
//	resp, err := provider.Chat(ctx, messages, &llm.ChatOptions{Temperature: 0.2})
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bimmerbailey/evident/internal/config"
	"github.com/bimmerbailey/evident/internal/llm/ollama"
)

// Provider is a chat backend. Implementations must be safe for concurrent
// use.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error)
	Heartbeat(ctx context.Context) error
	ModelAvailable(ctx context.Context, model string) (bool, error)
}

// Message is one chat turn. Role is "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// ChatOptions overrides provider defaults for one call.
type ChatOptions struct {
	Model       string
	Temperature float32
	// MaxTokens caps the reply; 0 keeps the provider default.
	MaxTokens int
}

// Response is a finished completion.
type Response struct {
	Content      string
	Model        string
	TokensPrompt int
	TokensTotal  int
}

var (
	ErrProviderUnavailable = errors.New("llm provider is not reachable")
	ErrInvalidResponse     = errors.New("provider returned invalid response")
	ErrContextCanceled     = errors.New("operation was canceled")

	// ErrDisabled means no provider is configured.
	ErrDisabled = errors.New("llm provider disabled")
)

// NewProvider builds the configured provider. "none" and "" yield
// ErrDisabled.
func NewProvider(cfg config.LLMConfig, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	kind := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch kind {
	case "", "none":
		return nil, ErrDisabled
	case "ollama":
		return newOllama(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: ollama, none)", kind)
	}
}

func newOllama(cfg config.LLMConfig, logger *slog.Logger) (Provider, error) {
	keepAlive, err := config.DurationOr(cfg.Ollama.KeepAlive, 0)
	if err != nil {
		return nil, fmt.Errorf("llm.ollama.keep_alive: %w", err)
	}
	p, err := ollama.New(ollama.Config{
		Host:      cfg.Ollama.Host,
		Model:     cfg.Ollama.Model,
		KeepAlive: keepAlive,
		NumCtx:    cfg.Ollama.NumCtx,
		NumGPU:    cfg.Ollama.NumGPU,
		Seed:      cfg.Ollama.Seed,
	}, logger)
	if err != nil {
		return nil, translateError(err)
	}
	logger.Debug("llm provider ready", "provider", "ollama", "model", p.Model())
	return ollamaAdapter{p}, nil
}

type ollamaAdapter struct {
	p *ollama.Provider
}

func (a ollamaAdapter) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	in := make([]ollama.Message, len(messages))
	for i, m := range messages {
		in[i] = ollama.Message(m)
	}
	var o *ollama.ChatOptions
	if opts != nil {
		o = &ollama.ChatOptions{Model: opts.Model, Temperature: opts.Temperature, MaxTokens: opts.MaxTokens}
	}

	resp, err := a.p.Chat(ctx, in, o)
	if err != nil {
		return nil, translateError(err)
	}
	out := Response(*resp)
	return &out, nil
}

func (a ollamaAdapter) Heartbeat(ctx context.Context) error {
	return translateError(a.p.Heartbeat(ctx))
}

func (a ollamaAdapter) ModelAvailable(ctx context.Context, model string) (bool, error) {
	ok, err := a.p.ModelAvailable(ctx, model)
	return ok, translateError(err)
}

// translateError maps ollama sentinels onto this package's.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ollama.ErrContextCanceled):
		return fmt.Errorf("%w: %v", ErrContextCanceled, err)
	case errors.Is(err, ollama.ErrProviderUnavailable):
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	default:
		return err
	}
}
