// Package redact masks sensitive values in a parsed document before any
// extractor can observe them.
//
// A leaf is masked when its path matches a deny pattern (directly or through
// an ancestor) or when its scalar text matches one of the active detectors,
// unless its path matches an allow pattern. Masked leaves become the string
// Sentinel; the input tree is never modified.
//
// Usage:
//
//	rules := redact.Merge(global, request)
//	r, err := redact.New(rules,
//	    redact.WithPatterns([]string{"email", "jwt"}),
//	)
//	if err != nil {
//	    return err
//	}
//	clean, report := r.Apply(doc)
package redact

import (
	"github.com/bimmerbailey/evident/internal/jsontree"
)

// Sentinel replaces every masked leaf.
const Sentinel = "[REDACTED]"

// Redactor applies one compiled rule set.
type Redactor struct {
	enabled  bool
	names    []string
	deny     []pathPattern
	allow    []pathPattern
	patterns []Pattern
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithEnabled turns masking on or off. A disabled Redactor still returns a
// copy of its input.
func WithEnabled(enabled bool) Option {
	return func(r *Redactor) {
		r.enabled = enabled
	}
}

// WithPatterns selects the built-in detectors by name. DefaultPatterns is
// used when none are given.
func WithPatterns(names []string) Option {
	return func(r *Redactor) {
		if len(names) > 0 {
			r.names = names
		}
	}
}

// Report describes what a single Apply call masked.
type Report struct {
	// Paths lists masked leaves in document order.
	Paths []string
}

// Count returns the number of masked leaves.
func (r Report) Count() int { return len(r.Paths) }

// New compiles rules into a Redactor.
func New(rules Rules, opts ...Option) (*Redactor, error) {
	r := &Redactor{
		enabled: true,
		names:   DefaultPatterns(),
	}
	for _, opt := range opts {
		opt(r)
	}

	builtIns, err := LookupPatterns(r.names)
	if err != nil {
		return nil, err
	}
	extra, err := CompileRegexes(rules.ExtraRegexes)
	if err != nil {
		return nil, err
	}
	r.patterns = append(builtIns, extra...)

	for _, raw := range rules.DenyPaths {
		p, err := compilePathPattern(raw)
		if err != nil {
			return nil, err
		}
		r.deny = append(r.deny, p)
	}
	for _, raw := range rules.AllowPaths {
		p, err := compilePathPattern(raw)
		if err != nil {
			return nil, err
		}
		r.allow = append(r.allow, p)
	}
	return r, nil
}

// IsEnabled reports whether masking is active.
func (r *Redactor) IsEnabled() bool {
	return r.enabled
}

// Apply returns a masked copy of root.
func (r *Redactor) Apply(root *jsontree.Value) (*jsontree.Value, Report) {
	if root == nil {
		return nil, Report{}
	}
	if !r.enabled {
		return root.Clone(), Report{}
	}
	var report Report
	out := r.visit(jsontree.Path{}, "$", root, false, &report)
	return out, report
}

func (r *Redactor) visit(p jsontree.Path, subject string, v *jsontree.Value, denied bool, report *Report) *jsontree.Value {
	denied = denied || matchAny(r.deny, subject)

	switch v.Kind() {
	case jsontree.KindArray:
		out := jsontree.Array()
		for i, item := range v.Items() {
			seg := jsontree.Index(i)
			out.Append(r.visit(p.Child(seg), subject+"/"+subjectSegment(seg), item, denied, report))
		}
		return out
	case jsontree.KindObject:
		out := jsontree.Object()
		for _, m := range v.Members() {
			seg := jsontree.Key(m.Key)
			out.Set(m.Key, r.visit(p.Child(seg), subject+"/"+subjectSegment(seg), m.Value, denied, report))
		}
		return out
	}

	if matchAny(r.allow, subject) {
		return v.Clone()
	}
	if denied || r.IsSensitive(v) {
		report.Paths = append(report.Paths, p.String())
		return jsontree.String(Sentinel)
	}
	return v.Clone()
}

// IsSensitive reports whether a scalar's text matches any active detector.
func (r *Redactor) IsSensitive(v *jsontree.Value) bool {
	text, ok := v.Literal()
	if !ok {
		return false
	}
	for _, pattern := range r.patterns {
		if pattern.Regex.MatchString(text) {
			return true
		}
	}
	return false
}

func matchAny(patterns []pathPattern, subject string) bool {
	for _, p := range patterns {
		if p.match(subject) {
			return true
		}
	}
	return false
}
