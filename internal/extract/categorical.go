package extract

import (
	"sort"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/jsontree"
)

// Categorical summarizes the frequency of string values at a field.
type Categorical struct {
	field field
}

// Name implements Extractor.
func (c Categorical) Name() string { return string(KindCategorical) + ":" + c.field.name }

// Evaluate implements Extractor.
func (c Categorical) Evaluate(in Input) (evidence.Bullet, bool) {
	in = in.normalized()
	var strs []observation
	for _, o := range c.field.collect(in.Document) {
		if o.value.Kind() == jsontree.KindString {
			strs = append(strs, o)
		}
	}
	if len(strs) == 0 {
		return evidence.Bullet{}, false
	}

	values := make([]string, len(strs))
	for i, o := range strs {
		values[i] = o.value.Str()
	}
	counts := countInOrder(values)
	if counts[0].Count < 2 {
		return evidence.Bullet{}, false
	}

	ev := evidence.Categorical{
		Field:        c.field.name,
		TotalCount:   len(values),
		UniqueValues: len(counts),
	}
	if len(counts) > in.Limits.MaxCategories {
		ev.HighCardinality = true
		ev.Top = counts[:1]
		share := float64(counts[0].Count) / float64(len(values))
		ev.NoDominantValue = share < in.Limits.DominanceThreshold
	} else {
		ev.Top = topN(counts, in.Limits.TopK)
	}

	return evidence.NewBullet(ev, c.field.citations(strs, in.Limits.CitationExamples)...), true
}

// countInOrder tallies values and sorts by descending count. Equal counts
// keep first-seen order.
func countInOrder(values []string) []evidence.ValueCount {
	index := make(map[string]int)
	var counts []evidence.ValueCount
	for _, v := range values {
		i, ok := index[v]
		if !ok {
			i = len(counts)
			index[v] = i
			counts = append(counts, evidence.ValueCount{Value: v})
		}
		counts[i].Count++
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}

func topN(counts []evidence.ValueCount, n int) []evidence.ValueCount {
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
