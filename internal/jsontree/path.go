package jsontree

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrPath is returned for strings that are not valid paths in the dialect.
var ErrPath = errors.New("invalid path")

// Segment is one step of a Path: a member key, an array index, or the
// array wildcard.
type Segment struct {
	Key      string
	Index    int
	IsIndex  bool
	Wildcard bool
}

// Key returns a member-access segment.
func Key(k string) Segment { return Segment{Key: k} }

// Index returns an array-index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

// Wildcard returns the array wildcard segment.
func Wildcard() Segment { return Segment{Wildcard: true} }

// Path is an address into a Value tree. The empty Path is the root `$`.
type Path []Segment

// Child returns a copy of p extended with seg. The receiver is never
// modified, so sibling paths never share a backing array.
func (p Path) Child(seg Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// String renders the path: `$`, `.key` for identifier-like keys,
// `['key']` for anything else, `[n]` and `[*]`.
func (p Path) String() string {
	var b strings.Builder
	b.WriteByte('$')
	for _, seg := range p {
		writeSegment(&b, seg)
	}
	return b.String()
}

// HasWildcard reports whether any segment is `[*]`.
func (p Path) HasWildcard() bool {
	for _, seg := range p {
		if seg.Wildcard {
			return true
		}
	}
	return false
}

func writeSegment(b *strings.Builder, seg Segment) {
	switch {
	case seg.Wildcard:
		b.WriteString("[*]")
	case seg.IsIndex:
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(seg.Index))
		b.WriteByte(']')
	case isIdentifier(seg.Key):
		b.WriteByte('.')
		b.WriteString(seg.Key)
	default:
		b.WriteString("['")
		b.WriteString(quoteKey(seg.Key))
		b.WriteString("']")
	}
}

// isIdentifier reports whether key can be written with dot notation.
func isIdentifier(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func quoteKey(key string) string {
	if !strings.ContainsAny(key, `'\`) {
		return key
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return r.Replace(key)
}

// ParsePath parses the dialect produced by Path.String.
func ParsePath(s string) (Path, error) {
	if !strings.HasPrefix(s, "$") {
		return nil, fmt.Errorf("%w: %q must start with $", ErrPath, s)
	}
	var p Path
	i := 1
	for i < len(s) {
		switch s[i] {
		case '.':
			j := i + 1
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("%w: empty member name at offset %d in %q", ErrPath, i, s)
			}
			p = append(p, Key(s[i+1:j]))
			i = j
		case '[':
			seg, next, err := parseBracket(s, i)
			if err != nil {
				return nil, err
			}
			p = append(p, seg)
			i = next
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d in %q", ErrPath, s[i], i, s)
		}
	}
	return p, nil
}

// parseBracket parses a `[...]` segment starting at s[i] == '['.
func parseBracket(s string, i int) (Segment, int, error) {
	if i+1 >= len(s) {
		return Segment{}, 0, fmt.Errorf("%w: unterminated bracket in %q", ErrPath, s)
	}
	if s[i+1] == '\'' {
		var key strings.Builder
		j := i + 2
		for j < len(s) {
			c := s[j]
			if c == '\\' && j+1 < len(s) {
				key.WriteByte(s[j+1])
				j += 2
				continue
			}
			if c == '\'' {
				break
			}
			key.WriteByte(c)
			j++
		}
		if j+1 >= len(s) || s[j] != '\'' || s[j+1] != ']' {
			return Segment{}, 0, fmt.Errorf("%w: unterminated quoted key in %q", ErrPath, s)
		}
		return Key(key.String()), j + 2, nil
	}
	end := strings.IndexByte(s[i:], ']')
	if end < 0 {
		return Segment{}, 0, fmt.Errorf("%w: unterminated bracket in %q", ErrPath, s)
	}
	body := s[i+1 : i+end]
	if body == "*" {
		return Wildcard(), i + end + 1, nil
	}
	n, err := strconv.Atoi(body)
	if err != nil || n < 0 {
		return Segment{}, 0, fmt.Errorf("%w: bad index %q in %q", ErrPath, body, s)
	}
	return Index(n), i + end + 1, nil
}

// Match is a node found by Find, with its concrete (wildcard-free) path.
type Match struct {
	Path  Path
	Value *Value
}

// Find resolves p against root, expanding `[*]` over array items, and
// returns every match in document order.
func Find(root *Value, p Path) []Match {
	matches := []Match{{Path: Path{}, Value: root}}
	for _, seg := range p {
		var next []Match
		for _, m := range matches {
			switch {
			case seg.Wildcard:
				for i, item := range m.Value.Items() {
					next = append(next, Match{Path: m.Path.Child(Index(i)), Value: item})
				}
			case seg.IsIndex:
				if item, ok := m.Value.Index(seg.Index); ok {
					next = append(next, Match{Path: m.Path.Child(seg), Value: item})
				}
			default:
				if child, ok := m.Value.Get(seg.Key); ok {
					next = append(next, Match{Path: m.Path.Child(seg), Value: child})
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		matches = next
	}
	return matches
}

// Lookup parses path and resolves it against root.
func Lookup(root *Value, path string) ([]Match, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return Find(root, p), nil
}

// Exists reports whether path resolves to at least one node of root.
func Exists(root *Value, path string) bool {
	if root == nil {
		return false
	}
	matches, err := Lookup(root, path)
	return err == nil && len(matches) > 0
}
