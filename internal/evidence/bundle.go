package evidence

import (
	"time"

	"github.com/bimmerbailey/evident/internal/jsontree"
)

// DefaultPreviewLimit is the number of example values attached to a citation.
const DefaultPreviewLimit = 3

// Typed previews keep up to typedPerKind examples of each JSON type among
// the first typedSampleCap matches.
const (
	typedPerKind   = 3
	typedSampleCap = 300
)

var typedOrder = []jsontree.Kind{
	jsontree.KindNumber,
	jsontree.KindString,
	jsontree.KindBool,
	jsontree.KindNull,
	jsontree.KindObject,
	jsontree.KindArray,
}

// Stats are computed once per request across all bullets.
type Stats struct {
	PathsCount    int   `json:"paths_count"`
	BytesExamined int64 `json:"bytes_examined"`
	ElapsedMS     int64 `json:"elapsed_ms"`
}

// Bundle is the complete deterministic output for one request.
type Bundle struct {
	Bullets           []Bullet `json:"bullets"`
	Stats             Stats    `json:"evidence_stats"`
	Engine            string   `json:"engine,omitempty"`
	RedactionsApplied bool     `json:"redactions_applied"`
	Narrative         string   `json:"narrative,omitempty"`
}

// Sources are the redacted trees citations resolve against.
type Sources struct {
	Document *jsontree.Value
	Baseline *jsontree.Value
}

func (s Sources) tree(src Source) *jsontree.Value {
	if src == SourceBaseline {
		return s.Baseline
	}
	return s.Document
}

// Builder assembles bullets into a Bundle.
type Builder struct {
	sources      Sources
	previewLimit int
	started      time.Time
	bytes        int64
}

// NewBuilder starts a build. started is when the request entered the
// pipeline; bytes is the total payload size examined.
func NewBuilder(sources Sources, started time.Time, bytes int64) *Builder {
	return &Builder{
		sources:      sources,
		previewLimit: DefaultPreviewLimit,
		started:      started,
		bytes:        bytes,
	}
}

// Build attaches value previews and computes statistics. Citations that do
// not resolve against their source tree are dropped.
func (b *Builder) Build(bullets []Bullet) *Bundle {
	out := make([]Bullet, 0, len(bullets))
	seen := make(map[string]bool)

	for _, bullet := range bullets {
		cites := make([]Citation, 0, len(bullet.Citations))
		for _, c := range bullet.Citations {
			tree := b.sources.tree(c.Source)
			if tree == nil {
				continue
			}
			matches, err := jsontree.Lookup(tree, c.Path)
			if err != nil || len(matches) == 0 {
				continue
			}
			c.ValuePreview = make([]*jsontree.Value, 0, b.previewLimit)
			for _, m := range matches {
				if len(c.ValuePreview) == b.previewLimit {
					break
				}
				c.ValuePreview = append(c.ValuePreview, m.Value)
			}
			c.ValuePreviewTyped = typedPreview(matches)
			cites = append(cites, c)
			seen[sourceKey(c)] = true
		}
		bullet.Citations = cites
		out = append(out, bullet)
	}

	return &Bundle{
		Bullets: out,
		Stats: Stats{
			PathsCount:    len(seen),
			BytesExamined: b.bytes,
			ElapsedMS:     time.Since(b.started).Milliseconds(),
		},
	}
}

func typedPreview(matches []jsontree.Match) []TypedPreview {
	if len(matches) > typedSampleCap {
		matches = matches[:typedSampleCap]
	}
	byKind := make(map[jsontree.Kind][]*jsontree.Value)
	for _, m := range matches {
		k := m.Value.Kind()
		if len(byKind[k]) < typedPerKind {
			byKind[k] = append(byKind[k], m.Value)
		}
	}

	out := make([]TypedPreview, 0, len(byKind))
	for _, k := range typedOrder {
		if examples := byKind[k]; len(examples) > 0 {
			out = append(out, TypedPreview{Type: k.String(), Examples: examples})
		}
	}
	return out
}

func sourceKey(c Citation) string {
	if c.Source == SourceBaseline {
		return "baseline:" + c.Path
	}
	return c.Path
}
