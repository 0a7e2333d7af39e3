package profile

import (
	"fmt"

	"github.com/bimmerbailey/evident/internal/config"
	"github.com/bimmerbailey/evident/internal/engine"
	"github.com/bimmerbailey/evident/internal/extract"
	"github.com/bimmerbailey/evident/internal/redact"
	"github.com/bimmerbailey/evident/internal/rejection"
)

// Params are the per-request knobs. Empty fields defer to the profile and
// then to configuration.
type Params struct {
	Focus            []string
	Extractors       []string
	Length           string
	Timezone         string
	Redaction        redact.Rules
	Backfill         *bool
	DisableRedaction bool
	RootSummary      bool
}

// Resolve merges request parameters, an optional profile and the process
// configuration into engine options. Request values win over the profile,
// which wins over configuration. It never mutates its inputs.
func Resolve(cfg config.Config, p *Profile, params Params) (engine.Options, error) {
	if p == nil {
		p = &Profile{}
	}

	length := extract.Length(firstNonEmpty(params.Length, p.Defaults.Length, cfg.Extract.Length))
	if !length.Valid() {
		return engine.Options{}, rejection.InvalidRequest(fmt.Sprintf("length must be short, medium or long, got %q", length), nil)
	}

	tz := firstNonEmpty(params.Timezone, p.Time.Timezone, cfg.Time.Timezone)
	loc, err := config.LoadLocation(tz)
	if err != nil {
		return engine.Options{}, rejection.InvalidRequest("invalid timezone", err)
	}

	bucket, err := extract.ParseBucket(firstNonEmpty(p.Time.TimebucketDefault, cfg.Extract.TimebucketDefault, string(extract.BucketHour)))
	if err != nil {
		return engine.Options{}, rejection.InvalidRequest("invalid timebucket default", err)
	}

	specs := params.Extractors
	if len(specs) == 0 {
		specs = p.Extractors
	}
	directives, err := extract.ParseDirectives(specs, bucket)
	if err != nil {
		return engine.Options{}, rejection.InvalidRequest("invalid extractor directive", err)
	}

	backfill := p.Backfill
	if params.Backfill != nil {
		backfill = *params.Backfill
	}

	focus := params.Focus
	if len(focus) == 0 {
		focus = p.Defaults.Focus
	}

	return engine.Options{
		Profile:          p.ID,
		Directives:       directives,
		Backfill:         backfill,
		RootSummary:      params.RootSummary,
		Focus:            append([]string(nil), focus...),
		Length:           length,
		Limits:           limits(cfg.Extract, p.Limits),
		Location:         loc,
		Redaction:        redact.Union(p.Redaction, params.Redaction),
		Patterns:         append([]string(nil), cfg.Redaction.Patterns...),
		DisableRedaction: params.DisableRedaction || !cfg.Redaction.Enabled,
	}, nil
}

// GlobalRules converts the configured redaction section into the
// process-wide rule set.
func GlobalRules(cfg config.Config) redact.Rules {
	rules := redact.Rules{DenyPaths: append([]string(nil), cfg.Redaction.DenyPaths...)}
	for _, r := range cfg.Redaction.ExtraRegexes {
		rules.ExtraRegexes = append(rules.ExtraRegexes, redact.NamedRegex{Name: r.Name, Pattern: r.Pattern})
	}
	return rules
}

func limits(c config.ExtractConfig, p Limits) extract.Limits {
	l := extract.Limits{
		TopK:               c.TopK,
		MaxCategories:      c.MaxCategories,
		DominanceThreshold: c.DominanceThreshold,
		NumericDominance:   c.NumericDominance,
		TopBuckets:         c.TopBuckets,
		DiffExamples:       c.DiffExamples,
		CitationExamples:   c.CitationExamples,
		GenericTopK:        c.GenericTopK,
	}
	if p.TopK > 0 {
		l.TopK = p.TopK
	}
	if p.MaxCategories > 0 {
		l.MaxCategories = p.MaxCategories
	}
	if p.DominanceThreshold > 0 {
		l.DominanceThreshold = p.DominanceThreshold
	}
	if p.NumericDominance > 0 {
		l.NumericDominance = p.NumericDominance
	}
	if p.DiffExamples > 0 {
		l.DiffExamples = p.DiffExamples
	}
	return l
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
