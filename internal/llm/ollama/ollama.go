// Package ollama talks to a local Ollama server for the rephrasing stage.
//
// The package keeps its own message and response types so it does not
// import its parent; llm adapts them.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "llama3.2"

// Config holds connection and runner settings.
type Config struct {
	// Host overrides OLLAMA_HOST, e.g. "http://localhost:11434".
	Host  string
	Model string

	// KeepAlive is how long the model stays loaded after a call.
	KeepAlive time.Duration

	// Runner options; zero leaves the server default in place.
	NumCtx int
	NumGPU int
	Seed   int
}

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// ChatOptions overrides per-call settings. A nil value uses the defaults.
type ChatOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Response is a finished, non-streamed completion.
type Response struct {
	Content      string
	Model        string
	TokensPrompt int
	TokensTotal  int
}

var (
	ErrProviderUnavailable = errors.New("llm provider is not reachable")
	ErrContextCanceled     = errors.New("operation was canceled")
)

// Provider is an Ollama-backed chat client. It is safe for concurrent use.
type Provider struct {
	client *api.Client
	cfg    Config
	logger *slog.Logger
}

// New builds a Provider. Without cfg.Host the client honours OLLAMA_HOST
// and falls back to http://localhost:11434.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	client, err := newClient(cfg.Host)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	logger.Debug("ollama client ready", "host", cfg.Host, "model", cfg.Model)

	return &Provider{client: client, cfg: cfg, logger: logger}, nil
}

func newClient(host string) (*api.Client, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return client, nil
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host: %w", err)
	}
	return api.NewClient(u, http.DefaultClient), nil
}

// Model returns the default model name.
func (p *Provider) Model() string {
	return p.cfg.Model
}

// Chat sends messages and waits for the whole reply.
func (p *Provider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	if len(messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}

	req := p.request(messages, opts)
	start := time.Now()

	var last api.ChatResponse
	err := p.client.Chat(ctx, req, func(r api.ChatResponse) error {
		last = r
		return nil
	})
	if err != nil {
		p.logger.Warn("ollama chat failed", "model", req.Model, "error", err)
		return nil, classify(err)
	}

	p.logger.Debug("ollama chat done",
		"model", last.Model,
		"prompt_tokens", last.PromptEvalCount,
		"eval_tokens", last.EvalCount,
		"duration_ms", time.Since(start).Milliseconds())

	return &Response{
		Content:      last.Message.Content,
		Model:        last.Model,
		TokensPrompt: last.PromptEvalCount,
		TokensTotal:  last.PromptEvalCount + last.EvalCount,
	}, nil
}

func (p *Provider) request(messages []Message, opts *ChatOptions) *api.ChatRequest {
	req := &api.ChatRequest{
		Model:    p.cfg.Model,
		Messages: make([]api.Message, 0, len(messages)),
		Options:  map[string]any{"temperature": float32(0)},
		Stream:   new(bool),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, api.Message{Role: m.Role, Content: m.Content})
	}

	if opts != nil {
		if opts.Model != "" {
			req.Model = opts.Model
		}
		req.Options["temperature"] = opts.Temperature
		if opts.MaxTokens > 0 {
			req.Options["num_predict"] = opts.MaxTokens
		}
	}

	setPositive(req.Options, "num_ctx", p.cfg.NumCtx)
	setPositive(req.Options, "num_gpu", p.cfg.NumGPU)
	setPositive(req.Options, "seed", p.cfg.Seed)
	if p.cfg.KeepAlive > 0 {
		req.KeepAlive = &api.Duration{Duration: p.cfg.KeepAlive}
	}
	return req
}

func setPositive(opts map[string]any, key string, v int) {
	if v > 0 {
		opts[key] = v
	}
}

// Heartbeat reports whether the server answers.
func (p *Provider) Heartbeat(ctx context.Context) error {
	if err := p.client.Heartbeat(ctx); err != nil {
		p.logger.Debug("ollama heartbeat failed", "error", err)
		return classify(err)
	}
	return nil
}

// ModelAvailable reports whether model has been pulled. Both the tagged
// name and the bare model name match.
func (p *Provider) ModelAvailable(ctx context.Context, model string) (bool, error) {
	list, err := p.client.List(ctx)
	if err != nil {
		return false, classify(err)
	}
	for _, m := range list.Models {
		if m.Name == model || m.Model == model {
			return true, nil
		}
	}
	return false, nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrContextCanceled, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
