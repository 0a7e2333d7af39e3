// Package extract implements the aggregation strategies that turn a
// redacted document into cited evidence bullets.
//
// Every extractor is a pure function of its Input. A field that resolves
// to nothing, fails a type-dominance check, or holds only unparseable
// values yields no bullet; none of those are errors.
package extract

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/jsontree"
)

// Limits bound the size of every evidence record.
type Limits struct {
	TopK               int
	MaxCategories      int
	DominanceThreshold float64
	NumericDominance   float64
	TopBuckets         int
	DiffExamples       int
	CitationExamples   int
	GenericTopK        int
}

// DefaultLimits returns the engine defaults.
func DefaultLimits() Limits {
	return Limits{
		TopK:               10,
		MaxCategories:      100,
		DominanceThreshold: 0.5,
		NumericDominance:   0.8,
		TopBuckets:         5,
		DiffExamples:       10,
		CitationExamples:   3,
		GenericTopK:        3,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.TopK <= 0 {
		l.TopK = d.TopK
	}
	if l.MaxCategories <= 0 {
		l.MaxCategories = d.MaxCategories
	}
	if l.DominanceThreshold <= 0 {
		l.DominanceThreshold = d.DominanceThreshold
	}
	if l.NumericDominance <= 0 {
		l.NumericDominance = d.NumericDominance
	}
	if l.TopBuckets <= 0 {
		l.TopBuckets = d.TopBuckets
	}
	if l.DiffExamples <= 0 {
		l.DiffExamples = d.DiffExamples
	}
	if l.CitationExamples <= 0 {
		l.CitationExamples = d.CitationExamples
	}
	if l.GenericTopK <= 0 {
		l.GenericTopK = d.GenericTopK
	}
	return l
}

// Input is everything an extractor may observe. Document and Baseline are
// already redacted.
type Input struct {
	Document *jsontree.Value
	Baseline *jsontree.Value
	Limits   Limits
	Location *time.Location
}

func (in Input) normalized() Input {
	in.Limits = in.Limits.withDefaults()
	if in.Location == nil {
		in.Location = time.UTC
	}
	return in
}

// Extractor produces at most one bullet. The boolean is false when the
// extractor has nothing to report.
type Extractor interface {
	Name() string
	Evaluate(in Input) (evidence.Bullet, bool)
}

// Run evaluates extractors concurrently and returns the bullets in
// extractor order, skipping absent results.
func Run(ctx context.Context, in Input, extractors []Extractor) ([]evidence.Bullet, error) {
	in = in.normalized()
	results := make([]evidence.Bullet, len(extractors))
	present := make([]bool, len(extractors))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, ex := range extractors {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], present[i] = ex.Evaluate(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bullets := make([]evidence.Bullet, 0, len(extractors))
	for i, ok := range present {
		if ok {
			bullets = append(bullets, results[i])
		}
	}
	return bullets, nil
}
