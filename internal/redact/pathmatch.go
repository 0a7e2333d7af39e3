package redact

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bimmerbailey/evident/internal/jsontree"
)

// ErrPattern is returned for path patterns outside the supported dialect.
var ErrPattern = errors.New("invalid path pattern")

// pathPattern is a JSONPath pattern compiled to a doublestar glob over
// slash-separated segments: `$..password` becomes `$/**/password` and
// `$.users[*].email` becomes `$/users/*/email`.
type pathPattern struct {
	raw  string
	glob string
}

func (p pathPattern) match(subject string) bool {
	ok, err := doublestar.Match(p.glob, subject)
	return err == nil && ok
}

// compilePathPattern accepts the citation dialect plus `..name` (any
// depth), `.*` (any member) and `*`/`?` wildcards inside unquoted names.
func compilePathPattern(raw string) (pathPattern, error) {
	if !strings.HasPrefix(raw, "$") {
		return pathPattern{}, fmt.Errorf("%w: %q must start with $", ErrPattern, raw)
	}
	parts := []string{"$"}
	s := raw[1:]
	for len(s) > 0 {
		switch {
		case strings.HasPrefix(s, ".."):
			parts = append(parts, "**")
			s = s[1:]
			if len(s) == 1 {
				return pathPattern{}, fmt.Errorf("%w: %q ends with ..", ErrPattern, raw)
			}
			if s[1] == '[' {
				s = s[1:]
			}
		case s[0] == '.':
			end := strings.IndexAny(s[1:], ".[")
			if end < 0 {
				end = len(s) - 1
			}
			name := s[1 : 1+end]
			if name == "" {
				return pathPattern{}, fmt.Errorf("%w: empty member in %q", ErrPattern, raw)
			}
			parts = append(parts, globName(name))
			s = s[1+end:]
		case s[0] == '[':
			seg, rest, err := bracketGlob(raw, s)
			if err != nil {
				return pathPattern{}, err
			}
			parts = append(parts, seg)
			s = rest
		default:
			return pathPattern{}, fmt.Errorf("%w: unexpected %q in %q", ErrPattern, s[0], raw)
		}
	}
	glob := strings.Join(parts, "/")
	if !doublestar.ValidatePattern(glob) {
		return pathPattern{}, fmt.Errorf("%w: %q", ErrPattern, raw)
	}
	return pathPattern{raw: raw, glob: glob}, nil
}

func bracketGlob(raw, s string) (string, string, error) {
	if strings.HasPrefix(s, "['") {
		var key strings.Builder
		i := 2
		for i < len(s) {
			if s[i] == '\\' && i+1 < len(s) {
				key.WriteByte(s[i+1])
				i += 2
				continue
			}
			if s[i] == '\'' {
				break
			}
			key.WriteByte(s[i])
			i++
		}
		if i+1 >= len(s) || s[i+1] != ']' {
			return "", "", fmt.Errorf("%w: unterminated quoted key in %q", ErrPattern, raw)
		}
		return literalSegment(key.String()), s[i+2:], nil
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return "", "", fmt.Errorf("%w: unterminated bracket in %q", ErrPattern, raw)
	}
	body := s[1:end]
	if body == "*" {
		return "*", s[end+1:], nil
	}
	if n, err := strconv.Atoi(body); err != nil || n < 0 {
		return "", "", fmt.Errorf("%w: bad index %q in %q", ErrPattern, body, raw)
	}
	return body, s[end+1:], nil
}

// subjectSegment encodes one concrete path segment for matching.
func subjectSegment(seg jsontree.Segment) string {
	if seg.IsIndex {
		return strconv.Itoa(seg.Index)
	}
	return encodeKey(seg.Key)
}

// literalSegment is a key that must match exactly.
func literalSegment(key string) string {
	return escapeGlob(encodeKey(key))
}

// globName keeps `*` and `?` as wildcards and escapes everything else.
func globName(name string) string {
	var b strings.Builder
	for _, r := range encodeKey(name) {
		switch r {
		case '*', '?':
			b.WriteRune(r)
		default:
			b.WriteString(escapeGlob(string(r)))
		}
	}
	return b.String()
}

var keyEncoder = strings.NewReplacer("%", "%25", "/", "%2F")

func encodeKey(key string) string {
	return keyEncoder.Replace(key)
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
