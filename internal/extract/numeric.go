package extract

import (
	"math"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/jsontree"
)

// Numeric summarizes the numbers at a field. Booleans are never treated as
// numbers, and the field is skipped unless numbers make up at least
// Limits.NumericDominance of the non-null observations.
type Numeric struct {
	field field
}

// Name implements Extractor.
func (n Numeric) Name() string { return string(KindNumeric) + ":" + n.field.name }

// Evaluate implements Extractor.
func (n Numeric) Evaluate(in Input) (evidence.Bullet, bool) {
	in = in.normalized()
	var (
		nums    []observation
		nonNull int
	)
	for _, o := range n.field.collect(in.Document) {
		switch o.value.Kind() {
		case jsontree.KindNull:
			continue
		case jsontree.KindNumber:
			nums = append(nums, o)
		}
		nonNull++
	}
	if len(nums) == 0 {
		return evidence.Bullet{}, false
	}
	if float64(len(nums))/float64(nonNull) < in.Limits.NumericDominance {
		return evidence.Bullet{}, false
	}

	ev := evidence.Numeric{Field: n.field.name}
	for _, o := range nums {
		v := o.value.Float()
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		ev.Add(v)
	}
	if ev.Count == 0 {
		return evidence.Bullet{}, false
	}

	return evidence.NewBullet(ev, n.field.citations(nums, in.Limits.CitationExamples)...), true
}
