package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/evident/internal/config"
	"github.com/bimmerbailey/evident/internal/engine"
	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/guard"
	"github.com/bimmerbailey/evident/internal/profile"
	"github.com/bimmerbailey/evident/internal/redact"
	"github.com/bimmerbailey/evident/internal/rejection"
	"github.com/bimmerbailey/evident/internal/rephrase"
	"github.com/bimmerbailey/evident/internal/stream"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [flags] [file|-]",
	Short: "Summarize a JSON document into cited bullets",
	Long: `Summarize reads one JSON document (a file, a glob matching one file, or
stdin when the argument is "-" or omitted) and prints evidence bullets.

Without extractors a generic set of bullets is produced. Extractor
directives take the form kind:field[:option]:

  categorical:level        most frequent string values
  numeric:latency_ms       count, mean, min, max, sum
  timebucket:ts:minute     timestamp histogram (minute, hour, day)
  diff:baseline            added and removed paths against --baseline

Examples:
  evident summarize payload.json
  cat payload.json | evident summarize -e categorical:status
  evident summarize --baseline before.json --digest after.json
  evident summarize --profile logs --rephrase logs.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummarize,
}

func init() {
	addSummarizeFlags(summarizeCmd)
	rootCmd.AddCommand(summarizeCmd)
}

func addSummarizeFlags(cmd *cobra.Command) {
	cmd.Flags().String("baseline", "", "baseline document for diff evidence")
	cmd.Flags().String("profile", "", "profile id to apply")
	cmd.Flags().String("profiles-dir", "", "directory of profile YAML files (default from config)")
	cmd.Flags().StringArrayP("extractor", "e", nil, "extractor directive, repeatable (e.g. categorical:level)")
	cmd.Flags().StringSlice("focus", nil, "fields to prioritise in the generic set")
	cmd.Flags().String("length", "", "bullet budget: short, medium or long")
	cmd.Flags().String("timezone", "", "IANA timezone for time buckets")
	cmd.Flags().StringArray("deny-path", nil, "additional JSONPath to redact, repeatable")
	cmd.Flags().StringArray("allow-path", nil, "JSONPath exempt from redaction, repeatable")
	cmd.Flags().Bool("no-redact", false, "disable redaction")
	cmd.Flags().Bool("stream", false, "write NDJSON stream events instead of a bundle")
	cmd.Flags().String("delay", "0s", "pause between stream events")
	cmd.Flags().Bool("backfill", false, "append generic bullets after directive bullets")
	cmd.Flags().Bool("root-summary", false, "include a shape bullet for a root object")
	cmd.Flags().Bool("rephrase", false, "add an LLM narrative over the bullets")
	cmd.Flags().Bool("digest", false, "print the canonical SHA-256 digest of the bullets to stderr")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	writer, err := newWriter(cmd)
	if err != nil {
		return err
	}

	baselinePath, _ := cmd.Flags().GetString("baseline")
	profileID, _ := cmd.Flags().GetString("profile")
	profilesDir, _ := cmd.Flags().GetString("profiles-dir")
	streamMode, _ := cmd.Flags().GetBool("stream")
	delayStr, _ := cmd.Flags().GetString("delay")
	wantRephrase, _ := cmd.Flags().GetBool("rephrase")
	wantDigest, _ := cmd.Flags().GetBool("digest")

	delay, err := config.DurationOr(delayStr, 0)
	if err != nil {
		return fmt.Errorf("invalid --delay value: %w", err)
	}

	var emitter *stream.Emitter
	if streamMode {
		emitter = stream.NewEmitter(stream.NewNDJSONSink(cmd.OutOrStdout()), stream.WithDelay(delay))
	}
	reject := func(err error) error {
		rej, ok := rejection.As(err)
		if !ok {
			return err
		}
		if emitter != nil {
			_ = emitter.Reject(rej)
		} else {
			_ = writer.WriteRejection(rej)
		}
		return err
	}

	g := guard.New(cfg.Limits.MaxPayloadBytes, cfg.Limits.MaxDepth)
	source := "-"
	if len(args) == 1 {
		source = args[0]
	}
	doc, err := readDocument(cmd, g, source)
	if err != nil {
		return reject(err)
	}
	var baseline []byte
	if baselinePath != "" {
		if baseline, err = readDocument(cmd, g, baselinePath); err != nil {
			return reject(err)
		}
	}

	var p *profile.Profile
	if profileID != "" {
		if profilesDir == "" {
			profilesDir = cfg.Profiles.Dir
		}
		reg := profile.NewRegistry(profilesDir, logger)
		if err := reg.Load(); err != nil {
			return err
		}
		if p, err = reg.Lookup(profileID); err != nil {
			return reject(err)
		}
	}

	opts, err := profile.Resolve(cfg, p, summarizeParams(cmd))
	if err != nil {
		return reject(err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng := engine.New(g, profile.GlobalRules(cfg), logger)
	bundle, err := eng.Summarize(ctx, engine.Request{Document: doc, Baseline: baseline, Options: opts})
	if err != nil {
		return reject(err)
	}

	if wantRephrase && !streamMode {
		rephraseBundle(ctx, cfg, logger, p, opts, bundle)
	}

	if emitter != nil {
		if err := emitter.Emit(ctx, bundle); err != nil {
			return err
		}
	} else if err := writer.WriteBundle(bundle); err != nil {
		return err
	}

	if wantDigest {
		digest, err := evidence.Digest(bundle)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "digest: sha256:%s\n", digest)
	}
	return nil
}

// readDocument loads one document through the payload guard. "-" is stdin.
func readDocument(cmd *cobra.Command, g guard.Guard, source string) ([]byte, error) {
	if source == "-" {
		return g.Read(cmd.InOrStdin())
	}

	files, err := config.ExpandGlobs([]string{source})
	if err != nil {
		return nil, err
	}
	if len(files) != 1 {
		return nil, fmt.Errorf("%q matched %d files, want exactly one", source, len(files))
	}

	f, err := os.Open(files[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", files[0], err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		if err := g.CheckSize(info.Size()); err != nil {
			return nil, err
		}
	}
	return g.Read(f)
}

func summarizeParams(cmd *cobra.Command) profile.Params {
	extractors, _ := cmd.Flags().GetStringArray("extractor")
	focus, _ := cmd.Flags().GetStringSlice("focus")
	length, _ := cmd.Flags().GetString("length")
	timezone, _ := cmd.Flags().GetString("timezone")
	denyPaths, _ := cmd.Flags().GetStringArray("deny-path")
	allowPaths, _ := cmd.Flags().GetStringArray("allow-path")
	noRedact, _ := cmd.Flags().GetBool("no-redact")
	rootSummary, _ := cmd.Flags().GetBool("root-summary")

	params := profile.Params{
		Focus:            focus,
		Extractors:       extractors,
		Length:           length,
		Timezone:         timezone,
		Redaction:        redact.Rules{DenyPaths: denyPaths, AllowPaths: allowPaths},
		DisableRedaction: noRedact,
		RootSummary:      rootSummary,
	}
	if cmd.Flags().Changed("backfill") {
		backfill, _ := cmd.Flags().GetBool("backfill")
		params.Backfill = &backfill
	}
	return params
}

// rephraseBundle adds a narrative when a provider is configured. Any
// failure is logged and the bullets are printed as they are.
func rephraseBundle(ctx context.Context, cfg config.Config, logger *slog.Logger, p *profile.Profile, opts engine.Options, b *evidence.Bundle) {
	r, err := rephrase.FromConfig(cfg.LLM, logger)
	if err != nil {
		logger.Warn("rephrasing unavailable", "error", err)
		return
	}

	hints := rephrase.Hints{Focus: opts.Focus}
	if p != nil {
		hints.Style = p.LLMHints.Style
		hints.Instructions = p.LLMHints.Instructions
	}

	start := time.Now()
	if err := r.Apply(ctx, b, hints); err != nil {
		logger.Warn("rephrase failed, printing deterministic bullets", "error", err)
		return
	}
	logger.Debug("rephrased bundle", "elapsed", time.Since(start))
}
