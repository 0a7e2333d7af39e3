package extract

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDirective is returned for malformed extractor directives.
var ErrDirective = errors.New("invalid extractor directive")

// Kind names an extractor family.
type Kind string

const (
	KindCategorical Kind = "categorical"
	KindNumeric     Kind = "numeric"
	KindTimeBucket  Kind = "timebucket"
	KindDiff        Kind = "diff"
)

// Bucket is a time-bucket granularity.
type Bucket string

const (
	BucketMinute Bucket = "minute"
	BucketHour   Bucket = "hour"
	BucketDay    Bucket = "day"
)

// ParseBucket validates a bucket name.
func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(strings.ToLower(s)); b {
	case BucketMinute, BucketHour, BucketDay:
		return b, nil
	}
	return "", fmt.Errorf("%w: unknown bucket %q (must be minute, hour or day)", ErrDirective, s)
}

// Directive is a parsed extractor directive.
type Directive struct {
	Kind   Kind
	Field  string
	Bucket Bucket

	field field
}

// ParseDirective parses `categorical:<field>`, `numeric:<field>`,
// `timebucket:<field>[:<bucket>]` and `diff:baseline`. defaultBucket is
// used when a timebucket directive names no bucket.
func ParseDirective(s string, defaultBucket Bucket) (Directive, error) {
	kind, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Directive{}, fmt.Errorf("%w: %q has no kind prefix", ErrDirective, s)
	}

	d := Directive{Kind: Kind(kind)}
	switch d.Kind {
	case KindDiff:
		if rest != "baseline" {
			return Directive{}, fmt.Errorf("%w: diff target must be baseline, got %q", ErrDirective, rest)
		}
		d.Field = rest
		return d, nil
	case KindTimeBucket:
		d.Bucket = defaultBucket
		if i := strings.LastIndex(rest, ":"); i >= 0 {
			b, err := ParseBucket(rest[i+1:])
			if err != nil {
				return Directive{}, err
			}
			d.Bucket, rest = b, rest[:i]
		}
		if d.Bucket == "" {
			d.Bucket = BucketHour
		}
	case KindCategorical, KindNumeric:
	default:
		return Directive{}, fmt.Errorf("%w: unknown kind %q", ErrDirective, kind)
	}

	f, err := parseField(rest)
	if err != nil {
		return Directive{}, err
	}
	d.Field, d.field = rest, f
	return d, nil
}

// ParseDirectives parses a directive list, reporting the first bad entry.
func ParseDirectives(specs []string, defaultBucket Bucket) ([]Directive, error) {
	out := make([]Directive, 0, len(specs))
	for _, s := range specs {
		d, err := ParseDirective(s, defaultBucket)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// String returns the canonical directive text.
func (d Directive) String() string {
	if d.Kind == KindTimeBucket {
		return fmt.Sprintf("%s:%s:%s", d.Kind, d.Field, d.Bucket)
	}
	return fmt.Sprintf("%s:%s", d.Kind, d.Field)
}

// Extractor returns the extractor the directive selects.
func (d Directive) Extractor() Extractor {
	switch d.Kind {
	case KindCategorical:
		return Categorical{field: d.field}
	case KindNumeric:
		return Numeric{field: d.field}
	case KindTimeBucket:
		return TimeBucket{field: d.field, Bucket: d.Bucket}
	default:
		return Diff{}
	}
}

// Extractors maps directives to extractors, keeping order.
func Extractors(ds []Directive) []Extractor {
	out := make([]Extractor, len(ds))
	for i, d := range ds {
		out[i] = d.Extractor()
	}
	return out
}
