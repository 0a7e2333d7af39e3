package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/bimmerbailey/evident/internal/engine"
	"github.com/bimmerbailey/evident/internal/guard"
	"github.com/bimmerbailey/evident/internal/llm"
	"github.com/bimmerbailey/evident/internal/metrics"
	"github.com/bimmerbailey/evident/internal/profile"
	"github.com/bimmerbailey/evident/internal/rephrase"
	"github.com/bimmerbailey/evident/internal/server"
)

const (
	profileReloadDebounce = 250 * time.Millisecond
	rephraseCheckTimeout  = 3 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the summarizer over HTTP",
	Long: `Serve exposes POST /v1/summarize-json (JSON or server-sent events),
GET /v1/summarize-json/ws, GET /v1/profiles, GET /healthz and GET /metrics.

Examples:
  evident serve
  evident serve --addr 127.0.0.1:9000 --watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().Bool("watch", false, "reload profiles when their files change")
	serveCmd.Flags().String("profiles-dir", "", "directory of profile YAML files (default from config)")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("profiles.watch", serveCmd.Flags().Lookup("watch"))
	_ = viper.BindPFlag("profiles.dir", serveCmd.Flags().Lookup("profiles-dir"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}

	registry := profile.NewRegistry(cfg.Profiles.Dir, logger)
	if err := registry.Load(); err != nil {
		return err
	}
	logger.Info("profiles loaded", "dir", registry.Dir(), "ids", registry.IDs())

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := server.Deps{
		Config:   cfg,
		Engine:   engine.New(guard.New(cfg.Limits.MaxPayloadBytes, cfg.Limits.MaxDepth), profile.GlobalRules(cfg), logger),
		Profiles: registry,
		Metrics:  metrics.New(promRegistry),
		Logger:   logger,
	}
	r, err := rephrase.FromConfig(cfg.LLM, logger)
	switch {
	case err == nil:
		deps.Rephraser = r
		checkCtx, cancel := context.WithTimeout(parent, rephraseCheckTimeout)
		if err := r.Check(checkCtx); err != nil {
			logger.Warn("rephrasing backend not ready", "error", err)
		}
		cancel()
	case errors.Is(err, llm.ErrDisabled):
		logger.Info("rephrasing disabled")
	default:
		logger.Warn("rephrasing unavailable", "error", err)
	}

	srv, err := server.New(deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Profiles.Watch {
		g.Go(func() error {
			return registry.Watch(ctx, profileReloadDebounce)
		})
	}
	g.Go(func() error {
		return srv.Run(ctx, cfg.Server.Addr)
	})
	return g.Wait()
}
