// Package engine runs the deterministic pipeline for one request:
// guard, redact, extract, build. Stages run in that order and a rejection
// at any stage ends the request before a bullet is produced.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/extract"
	"github.com/bimmerbailey/evident/internal/guard"
	"github.com/bimmerbailey/evident/internal/jsontree"
	"github.com/bimmerbailey/evident/internal/redact"
	"github.com/bimmerbailey/evident/internal/rejection"
)

// Name is reported in Bundle.Engine when no profile is involved.
const Name = "deterministic"

// Options is the immutable per-request configuration produced by the
// profile resolver.
type Options struct {
	// Profile is the id of the profile the options came from, if any.
	Profile    string
	Directives []extract.Directive
	// Backfill appends the generic bullets after directive bullets.
	Backfill bool
	// RootSummary lets the generic set describe a root object.
	RootSummary bool
	Focus    []string
	Length   extract.Length
	Limits   extract.Limits
	Location *time.Location

	// Redaction holds the request-level rules merged over the global set.
	Redaction        redact.Rules
	Patterns         []string
	DisableRedaction bool
}

// Request is one summarization job.
type Request struct {
	Document []byte
	Baseline []byte
	Options  Options
}

// Engine holds the read-only process configuration.
type Engine struct {
	guard  guard.Guard
	global redact.Rules
	logger *slog.Logger
}

// New creates an Engine. global is the process-wide redaction rule set.
func New(g guard.Guard, global redact.Rules, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{guard: g, global: global, logger: logger}
}

// Guard returns the payload guard, for transports that read bodies
// themselves.
func (e *Engine) Guard() guard.Guard {
	return e.guard
}

// Summarize runs the pipeline. Errors are *rejection.Error for input
// problems and context errors on cancellation.
func (e *Engine) Summarize(ctx context.Context, req Request) (*evidence.Bundle, error) {
	started := time.Now()
	opts := req.Options

	doc, err := e.guard.Decode(req.Document)
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	var base *jsontree.Value
	if len(req.Baseline) > 0 {
		if base, err = e.guard.Decode(req.Baseline); err != nil {
			return nil, fmt.Errorf("baseline: %w", err)
		}
	}

	r, err := redact.New(redact.Merge(e.global, opts.Redaction),
		redact.WithEnabled(!opts.DisableRedaction),
		redact.WithPatterns(opts.Patterns),
	)
	if err != nil {
		return nil, rejection.InvalidRequest("invalid redaction rules", err)
	}
	cleanDoc, docReport := r.Apply(doc)
	cleanBase, baseReport := r.Apply(base)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := extract.Input{
		Document: cleanDoc,
		Baseline: cleanBase,
		Limits:   opts.Limits,
		Location: opts.Location,
	}
	bullets, err := e.extract(ctx, in, opts)
	if err != nil {
		return nil, err
	}

	redacted := docReport.Count() + baseReport.Count()
	if redacted > 0 {
		bullets = append(bullets, redactionNotice(docReport, baseReport))
	}

	size := int64(len(req.Document) + len(req.Baseline))
	bundle := evidence.NewBuilder(evidence.Sources{Document: cleanDoc, Baseline: cleanBase}, started, size).Build(bullets)
	bundle.Engine = Name
	if opts.Profile != "" {
		bundle.Engine = "profile:" + opts.Profile
	}
	bundle.RedactionsApplied = redacted > 0

	e.logger.Debug("summarized document",
		"engine", bundle.Engine,
		"bullets", len(bundle.Bullets),
		"redaction", r.IsEnabled(),
		"redacted", redacted,
		"bytes", size,
		"elapsed_ms", bundle.Stats.ElapsedMS,
	)
	return bundle, nil
}

func (e *Engine) extract(ctx context.Context, in extract.Input, opts Options) ([]evidence.Bullet, error) {
	if len(opts.Directives) == 0 {
		fb := extract.Fallback{Focus: opts.Focus, Length: opts.Length, Diff: in.Baseline != nil, RootSummary: opts.RootSummary}
		return fb.Bullets(in), nil
	}

	bullets, err := extract.Run(ctx, in, extract.Extractors(opts.Directives))
	if err != nil {
		return nil, fmt.Errorf("run extractors: %w", err)
	}
	if opts.Backfill {
		fb := extract.Fallback{
			Focus:       opts.Focus,
			Length:      opts.Length,
			Diff:        in.Baseline != nil && !hasDiff(opts.Directives),
			RootSummary: opts.RootSummary,
		}
		bullets = append(bullets, fb.Bullets(in)...)
	}
	return bullets, nil
}

func hasDiff(ds []extract.Directive) bool {
	for _, d := range ds {
		if d.Kind == extract.KindDiff {
			return true
		}
	}
	return false
}

// noticeCitations caps the masked paths cited by the redaction notice.
const noticeCitations = 3

func redactionNotice(doc, base redact.Report) evidence.Bullet {
	cites := make([]evidence.Citation, 0, noticeCitations)
	seen := make(map[string]bool)
	for _, p := range doc.Paths {
		if len(cites) == noticeCitations {
			break
		}
		if !seen[p] {
			seen[p] = true
			cites = append(cites, evidence.Cite(p))
		}
	}
	for _, p := range base.Paths {
		if len(cites) == noticeCitations {
			break
		}
		if !seen["baseline:"+p] {
			seen["baseline:"+p] = true
			cites = append(cites, evidence.CiteBaseline(p))
		}
	}
	return evidence.NewBullet(evidence.Redaction{Redacted: doc.Count() + base.Count()}, cites...)
}
