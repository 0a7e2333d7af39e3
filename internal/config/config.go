// Package config provides configuration types and helpers for evident.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Config holds the application-wide configuration. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	Format    string          `mapstructure:"format"`
	Verbose   bool            `mapstructure:"verbose"`
	LogLevel  string          `mapstructure:"log_level"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Redaction RedactionConfig `mapstructure:"redaction"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Time      TimeConfig      `mapstructure:"time"`
	Profiles  ProfilesConfig  `mapstructure:"profiles"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

// LimitsConfig bounds the input accepted by the payload guard.
type LimitsConfig struct {
	MaxPayloadBytes int64 `mapstructure:"max_payload_bytes"`
	MaxDepth        int   `mapstructure:"max_depth"`
}

// ExtractConfig holds the engine defaults for extractors and the generic
// bullet set.
type ExtractConfig struct {
	TopK               int     `mapstructure:"topk"`
	MaxCategories      int     `mapstructure:"max_categories"`
	DominanceThreshold float64 `mapstructure:"dominance_threshold"`
	NumericDominance   float64 `mapstructure:"numeric_dominance"`
	TopBuckets         int     `mapstructure:"top_buckets"`
	DiffExamples       int     `mapstructure:"diff_examples"`
	CitationExamples   int     `mapstructure:"citation_examples"`
	GenericTopK        int     `mapstructure:"generic_topk"`
	Length             string  `mapstructure:"length"`
	TimebucketDefault  string  `mapstructure:"timebucket_default"`
}

// RegexRule is a named detector supplied through configuration.
type RegexRule struct {
	Name    string `mapstructure:"name"`
	Pattern string `mapstructure:"pattern"`
}

// RedactionConfig holds the global redaction rule set.
type RedactionConfig struct {
	// Enabled controls whether redaction is active
	Enabled bool `mapstructure:"enabled"`

	// Patterns specifies which built-in detectors to use
	// Available: ipv4, ipv6, email, api_key, aws_key, jwt, private_key, mac_address, credit_card, uuid, phone
	Patterns []string `mapstructure:"patterns"`

	DenyPaths    []string    `mapstructure:"deny_paths"`
	ExtraRegexes []RegexRule `mapstructure:"extra_regexes"`
}

// StreamConfig controls event delivery.
type StreamConfig struct {
	// Delay between events, e.g. "100ms". Empty or "0" disables pacing.
	Delay string `mapstructure:"delay"`
}

// TimeConfig controls timestamp handling.
type TimeConfig struct {
	// Timezone is an IANA name; empty means UTC.
	Timezone string `mapstructure:"timezone"`
}

// ProfilesConfig locates profile definitions.
type ProfilesConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// RateLimit is requests per second across all clients; 0 disables it.
	RateLimit       float64 `mapstructure:"rate_limit"`
	Burst           int     `mapstructure:"burst"`
	ShutdownTimeout string  `mapstructure:"shutdown_timeout"`
}

// LLMConfig holds configuration for the rephrasing provider.
type LLMConfig struct {
	// Provider selects which LLM to use: "ollama" or "none"
	Provider string `mapstructure:"provider"`

	// Global settings applied to all providers
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     string  `mapstructure:"timeout"`

	Ollama  OllamaConfig  `mapstructure:"ollama"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// OllamaConfig holds Ollama-specific settings.
type OllamaConfig struct {
	Host      string `mapstructure:"host"`       // API endpoint
	Model     string `mapstructure:"model"`      // Default model name
	KeepAlive string `mapstructure:"keep_alive"` // e.g., "5m"
	NumCtx    int    `mapstructure:"num_ctx"`    // Context window size
	NumGPU    int    `mapstructure:"num_gpu"`    // GPU layers to offload
	Seed      int    `mapstructure:"seed"`       // Sampling seed, 0 leaves it random
}

// BreakerConfig tunes the circuit breaker around the provider.
type BreakerConfig struct {
	MaxFailures uint32 `mapstructure:"max_failures"`
	OpenTimeout string `mapstructure:"open_timeout"`
}

// Defaults returns the built-in configuration. Every key here is also
// registered with viper so environment variables can override it.
func Defaults() Config {
	return Config{
		Format:   "text",
		LogLevel: "info",
		Limits: LimitsConfig{
			MaxPayloadBytes: 20 * 1024 * 1024,
			MaxDepth:        64,
		},
		Extract: ExtractConfig{
			TopK:               10,
			MaxCategories:      100,
			DominanceThreshold: 0.5,
			NumericDominance:   0.8,
			TopBuckets:         5,
			DiffExamples:       10,
			CitationExamples:   3,
			GenericTopK:        3,
			Length:             "medium",
			TimebucketDefault:  "hour",
		},
		Redaction: RedactionConfig{
			Enabled:   true,
			Patterns:  []string{"ipv4", "ipv6", "email", "api_key", "aws_key", "jwt", "private_key"},
			DenyPaths: []string{"$.access_token", "$..password", "$..secret"},
		},
		Stream: StreamConfig{Delay: "100ms"},
		Time:   TimeConfig{Timezone: "UTC"},
		Profiles: ProfilesConfig{
			Dir:   "profiles",
			Watch: false,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimit:       20,
			Burst:           40,
			ShutdownTimeout: "10s",
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			Temperature: 0.2,
			MaxTokens:   1500,
			Timeout:     "60s",
			Ollama: OllamaConfig{
				Host:      "http://localhost:11434",
				Model:     "llama3.2",
				KeepAlive: "5m",
				NumCtx:    8192,
			},
			Breaker: BreakerConfig{
				MaxFailures: 3,
				OpenTimeout: "30s",
			},
		},
	}
}

// DefaultMap flattens Defaults into dotted keys for viper.SetDefault.
func DefaultMap() map[string]any {
	d := Defaults()
	return map[string]any{
		"format":                      d.Format,
		"verbose":                     d.Verbose,
		"log_level":                   d.LogLevel,
		"limits.max_payload_bytes":    d.Limits.MaxPayloadBytes,
		"limits.max_depth":            d.Limits.MaxDepth,
		"extract.topk":                d.Extract.TopK,
		"extract.max_categories":      d.Extract.MaxCategories,
		"extract.dominance_threshold": d.Extract.DominanceThreshold,
		"extract.numeric_dominance":   d.Extract.NumericDominance,
		"extract.top_buckets":         d.Extract.TopBuckets,
		"extract.diff_examples":       d.Extract.DiffExamples,
		"extract.citation_examples":   d.Extract.CitationExamples,
		"extract.generic_topk":        d.Extract.GenericTopK,
		"extract.length":              d.Extract.Length,
		"extract.timebucket_default":  d.Extract.TimebucketDefault,
		"redaction.enabled":           d.Redaction.Enabled,
		"redaction.patterns":          d.Redaction.Patterns,
		"redaction.deny_paths":        d.Redaction.DenyPaths,
		"stream.delay":                d.Stream.Delay,
		"time.timezone":               d.Time.Timezone,
		"profiles.dir":                d.Profiles.Dir,
		"profiles.watch":              d.Profiles.Watch,
		"server.addr":                 d.Server.Addr,
		"server.rate_limit":           d.Server.RateLimit,
		"server.burst":                d.Server.Burst,
		"server.shutdown_timeout":     d.Server.ShutdownTimeout,
		"llm.provider":                d.LLM.Provider,
		"llm.temperature":             d.LLM.Temperature,
		"llm.max_tokens":              d.LLM.MaxTokens,
		"llm.timeout":                 d.LLM.Timeout,
		"llm.ollama.host":             d.LLM.Ollama.Host,
		"llm.ollama.model":            d.LLM.Ollama.Model,
		"llm.ollama.keep_alive":       d.LLM.Ollama.KeepAlive,
		"llm.ollama.num_ctx":          d.LLM.Ollama.NumCtx,
		"llm.ollama.num_gpu":          d.LLM.Ollama.NumGPU,
		"llm.ollama.seed":             d.LLM.Ollama.Seed,
		"llm.breaker.max_failures":    d.LLM.Breaker.MaxFailures,
		"llm.breaker.open_timeout":    d.LLM.Breaker.OpenTimeout,
	}
}

// Validate reports every out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, ok := ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not a known level", c.LogLevel))
	}
	if c.Limits.MaxPayloadBytes < 1024 {
		errs = append(errs, fmt.Errorf("limits.max_payload_bytes must be at least 1024, got %d", c.Limits.MaxPayloadBytes))
	}
	if c.Limits.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("limits.max_depth must be positive, got %d", c.Limits.MaxDepth))
	}
	if c.Extract.DominanceThreshold <= 0 || c.Extract.DominanceThreshold > 1 {
		errs = append(errs, fmt.Errorf("extract.dominance_threshold must be in (0, 1], got %g", c.Extract.DominanceThreshold))
	}
	if c.Extract.NumericDominance <= 0 || c.Extract.NumericDominance > 1 {
		errs = append(errs, fmt.Errorf("extract.numeric_dominance must be in (0, 1], got %g", c.Extract.NumericDominance))
	}
	if c.Extract.TopK < 1 || c.Extract.MaxCategories < 1 || c.Extract.TopBuckets < 1 {
		errs = append(errs, errors.New("extract.topk, extract.max_categories and extract.top_buckets must be positive"))
	}
	switch c.Extract.Length {
	case "short", "medium", "long":
	default:
		errs = append(errs, fmt.Errorf("extract.length must be short, medium or long, got %q", c.Extract.Length))
	}
	switch strings.ToLower(c.Extract.TimebucketDefault) {
	case "minute", "hour", "day":
	default:
		errs = append(errs, fmt.Errorf("extract.timebucket_default must be minute, hour or day, got %q", c.Extract.TimebucketDefault))
	}
	if _, err := ParseDuration(orZero(c.Stream.Delay)); err != nil {
		errs = append(errs, fmt.Errorf("stream.delay: %w", err))
	}
	if _, err := LoadLocation(c.Time.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("time.timezone: %w", err))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit must not be negative, got %g", c.Server.RateLimit))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be in [0, 2], got %g", c.LLM.Temperature))
	}
	return errors.Join(errs...)
}

func orZero(s string) string {
	if strings.TrimSpace(s) == "" {
		return "0s"
	}
	return s
}

// ParseLevel converts a level name to a slog.Level. Matching is
// case-insensitive and accepts common abbreviations.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "dbg", "trace":
		return slog.LevelDebug, true
	case "info", "inf", "":
		return slog.LevelInfo, true
	case "warn", "warning", "wrn":
		return slog.LevelWarn, true
	case "error", "err":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// SlogLevel returns the effective logger level. Verbose forces debug.
func (c Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	lvl, _ := ParseLevel(c.LogLevel)
	return lvl
}
