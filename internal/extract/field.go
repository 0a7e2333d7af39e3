package extract

import (
	"fmt"
	"strings"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/jsontree"
)

// field selects the nodes an extractor observes. A name starting with `$`
// is a JSONPath; anything else is a dotted member name matched at any
// depth, so `level` matches `$.logs[3].level`.
type field struct {
	name  string
	path  jsontree.Path
	parts []string
}

func parseField(name string) (field, error) {
	if name == "" {
		return field{}, fmt.Errorf("%w: empty field", ErrDirective)
	}
	if strings.HasPrefix(name, "$") {
		p, err := jsontree.ParsePath(name)
		if err != nil {
			return field{}, fmt.Errorf("%w: %w", ErrDirective, err)
		}
		return field{name: name, path: p}, nil
	}
	parts := strings.Split(name, ".")
	for _, part := range parts {
		if part == "" {
			return field{}, fmt.Errorf("%w: empty segment in field %q", ErrDirective, name)
		}
	}
	return field{name: name, parts: parts}, nil
}

// observation is one value seen at a concrete path.
type observation struct {
	path  jsontree.Path
	value *jsontree.Value
}

// collect returns the observations for f in document order. Matched arrays
// contribute their items rather than themselves.
func (f field) collect(root *jsontree.Value) []observation {
	if root == nil {
		return nil
	}
	var matches []jsontree.Match
	if f.parts == nil {
		matches = jsontree.Find(root, f.path)
	} else {
		jsontree.Walk(root, func(p jsontree.Path, v *jsontree.Value) bool {
			if f.tailMatches(p) {
				matches = append(matches, jsontree.Match{Path: p, Value: v})
			}
			return true
		})
	}

	obs := make([]observation, 0, len(matches))
	for _, m := range matches {
		if m.Value.Kind() != jsontree.KindArray {
			obs = append(obs, observation{path: m.Path, value: m.Value})
			continue
		}
		for i, item := range m.Value.Items() {
			obs = append(obs, observation{path: m.Path.Child(jsontree.Index(i)), value: item})
		}
	}
	return obs
}

func (f field) tailMatches(p jsontree.Path) bool {
	if len(p) < len(f.parts) {
		return false
	}
	tail := p[len(p)-len(f.parts):]
	for i, seg := range tail {
		if seg.IsIndex || seg.Wildcard || seg.Key != f.parts[i] {
			return false
		}
	}
	return true
}

// generalize replaces indices with `[*]`, keeping the segments written in
// an explicit JSONPath. Every node the result resolves to is itself an
// observation of the same field.
func (f field) generalize(p jsontree.Path) jsontree.Path {
	out := make(jsontree.Path, len(p))
	for i, seg := range p {
		switch {
		case i < len(f.path):
			seg = f.path[i]
		case seg.IsIndex:
			seg = jsontree.Wildcard()
		}
		out[i] = seg
	}
	return out
}

// citations returns up to limit distinct generalized paths, first seen
// first. When any of them holds a wildcard, up to limit concrete paths of
// the first observations follow so each bullet also points at real nodes.
func (f field) citations(obs []observation, limit int) []evidence.Citation {
	seen := make(map[string]bool)
	out := make([]evidence.Citation, 0, 2*limit)
	wildcard := false
	for _, o := range obs {
		if len(out) == limit {
			break
		}
		g := f.generalize(o.path)
		path := g.String()
		if seen[path] {
			continue
		}
		seen[path] = true
		wildcard = wildcard || g.HasWildcard()
		out = append(out, evidence.Cite(path))
	}
	if !wildcard {
		return out
	}

	concrete := 0
	for _, o := range obs {
		if concrete == limit {
			break
		}
		path := o.path.String()
		if seen[path] {
			continue
		}
		seen[path] = true
		concrete++
		out = append(out, evidence.Cite(path))
	}
	return out
}
