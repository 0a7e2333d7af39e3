package extract

import (
	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/jsontree"
)

// Diff is an existence diff of the document against the baseline. A path
// whose value changed is reported once as added; the old value is not
// reported as removed. A subtree present on one side only contributes its
// root and every path beneath it.
type Diff struct{}

// Name implements Extractor.
func (Diff) Name() string { return string(KindDiff) + ":baseline" }

type diffResult struct {
	added   []jsontree.Path
	removed []jsontree.Path
}

// Evaluate implements Extractor.
func (Diff) Evaluate(in Input) (evidence.Bullet, bool) {
	in = in.normalized()
	if in.Baseline == nil || in.Document == nil {
		return evidence.Bullet{}, false
	}

	var res diffResult
	res.walk(jsontree.Path{}, in.Document, in.Baseline)

	ev := evidence.Diff{
		Added:        len(res.added),
		Removed:      len(res.removed),
		AddedPaths:   pathStrings(res.added, in.Limits.DiffExamples),
		RemovedPaths: pathStrings(res.removed, in.Limits.DiffExamples),
	}

	cites := make([]evidence.Citation, 0, 2*in.Limits.CitationExamples)
	for _, p := range headPaths(ev.AddedPaths, in.Limits.CitationExamples) {
		cites = append(cites, evidence.Cite(p))
	}
	for _, p := range headPaths(ev.RemovedPaths, in.Limits.CitationExamples) {
		cites = append(cites, evidence.CiteBaseline(p))
	}
	return evidence.NewBullet(ev, cites...), true
}

func (r *diffResult) walk(p jsontree.Path, cur, base *jsontree.Value) {
	switch {
	case cur.Kind() == jsontree.KindObject && base.Kind() == jsontree.KindObject:
		for _, m := range cur.Members() {
			child := p.Child(jsontree.Key(m.Key))
			if old, ok := base.Get(m.Key); ok {
				r.walk(child, m.Value, old)
			} else {
				r.added = appendSubtree(r.added, child, m.Value)
			}
		}
		for _, m := range base.Members() {
			if _, ok := cur.Get(m.Key); !ok {
				r.removed = appendSubtree(r.removed, p.Child(jsontree.Key(m.Key)), m.Value)
			}
		}
	case cur.Kind() == jsontree.KindArray && base.Kind() == jsontree.KindArray:
		curItems, baseItems := cur.Items(), base.Items()
		shared := min(len(curItems), len(baseItems))
		for i := 0; i < shared; i++ {
			r.walk(p.Child(jsontree.Index(i)), curItems[i], baseItems[i])
		}
		for i := shared; i < len(curItems); i++ {
			r.added = appendSubtree(r.added, p.Child(jsontree.Index(i)), curItems[i])
		}
		for i := shared; i < len(baseItems); i++ {
			r.removed = appendSubtree(r.removed, p.Child(jsontree.Index(i)), baseItems[i])
		}
	case !cur.Equal(base):
		// The changed path itself is one added entry; paths that only exist
		// beneath one of the two values are added or removed individually.
		r.added = appendSubtree(r.added, p, cur)
		r.removed = appendBelow(r.removed, p, base)
	}
}

// appendSubtree appends root and every path below v, in document order.
func appendSubtree(dst []jsontree.Path, root jsontree.Path, v *jsontree.Value) []jsontree.Path {
	return appendBelow(append(dst, root), root, v)
}

// appendBelow appends every path strictly below v, in document order.
func appendBelow(dst []jsontree.Path, root jsontree.Path, v *jsontree.Value) []jsontree.Path {
	jsontree.Walk(v, func(rel jsontree.Path, _ *jsontree.Value) bool {
		if len(rel) > 0 {
			dst = append(dst, join(root, rel))
		}
		return true
	})
	return dst
}

func join(root, rel jsontree.Path) jsontree.Path {
	out := make(jsontree.Path, 0, len(root)+len(rel))
	return append(append(out, root...), rel...)
}

func pathStrings(paths []jsontree.Path, limit int) []string {
	out := make([]string, 0, min(len(paths), limit))
	for _, p := range paths {
		if len(out) == limit {
			break
		}
		out = append(out, p.String())
	}
	return out
}

func headPaths(paths []string, n int) []string {
	if len(paths) > n {
		return paths[:n]
	}
	return paths
}
