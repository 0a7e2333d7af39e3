// Package evidence defines the cited, machine-checkable output of the
// pipeline: bullets, citations, per-extractor evidence records, and the
// cross-cutting statistics of one request.
package evidence

import (
	"encoding/json"

	"github.com/bimmerbailey/evident/internal/jsontree"
)

// Kind names an evidence variant on the wire.
type Kind string

const (
	KindCategorical Kind = "categorical"
	KindNumeric     Kind = "numeric"
	KindTimeBucket  Kind = "timebucket"
	KindDiff        Kind = "diff"
	KindRollup      Kind = "rollup"
	KindObjectShape Kind = "object"
	KindArrayShape  Kind = "array"
	KindScalar      Kind = "scalar"
	KindRedaction   Kind = "redaction"
)

// Evidence is a structured aggregate record. Render produces the bullet
// text from the record alone.
type Evidence interface {
	Kind() Kind
	Render() string
}

// Source selects the tree a citation path resolves against.
type Source uint8

const (
	SourceDocument Source = iota
	SourceBaseline
)

// Citation points at the nodes backing a claim.
type Citation struct {
	Path              string            `json:"path"`
	ValuePreview      []*jsontree.Value `json:"value_preview"`
	ValuePreviewTyped []TypedPreview    `json:"value_preview_typed"`
	Source            Source            `json:"-"`
}

// TypedPreview holds example values of one JSON type.
type TypedPreview struct {
	Type     string            `json:"type"`
	Examples []*jsontree.Value `json:"examples"`
}

// Cite returns a citation into the current document.
func Cite(path string) Citation {
	return Citation{Path: path}
}

// CiteBaseline returns a citation into the baseline document.
func CiteBaseline(path string) Citation {
	return Citation{Path: path, Source: SourceBaseline}
}

// Bullet is one cited summary statement.
type Bullet struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	Evidence  Evidence   `json:"evidence"`
}

// NewBullet renders ev into a bullet carrying citations.
func NewBullet(ev Evidence, citations ...Citation) Bullet {
	if citations == nil {
		citations = []Citation{}
	}
	return Bullet{Text: ev.Render(), Citations: citations, Evidence: ev}
}

// ValueCount is a (value, count) pair, written as a two-element array.
type ValueCount struct {
	Value string
	Count int
}

// MarshalJSON writes [value, count].
func (vc ValueCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{vc.Value, vc.Count})
}

// NumberStats are aggregates over a set of numbers.
type NumberStats struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Add folds one value into the aggregate.
func (s *NumberStats) Add(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	s.Sum += v
	s.Mean = s.Sum / float64(s.Count)
}

// Categorical summarizes string frequencies at one field.
type Categorical struct {
	Field           string       `json:"field"`
	TotalCount      int          `json:"total_count"`
	UniqueValues    int          `json:"unique_values"`
	Top             []ValueCount `json:"top"`
	HighCardinality bool         `json:"high_cardinality,omitempty"`
	NoDominantValue bool         `json:"no_dominant_value,omitempty"`
}

// Numeric summarizes the numbers at one field.
type Numeric struct {
	Field string `json:"field"`
	NumberStats
}

// TimeBucket is a histogram of timestamps at one field.
type TimeBucket struct {
	Field         string       `json:"field"`
	Bucket        string       `json:"bucket"`
	Timezone      string       `json:"timezone"`
	TotalEvents   int          `json:"total_events"`
	UniqueBuckets int          `json:"unique_buckets"`
	TopBuckets    []ValueCount `json:"top_buckets"`
}

// Diff is an existence diff against a baseline document.
type Diff struct {
	Added        int      `json:"added"`
	Removed      int      `json:"removed"`
	AddedPaths   []string `json:"added_paths"`
	RemovedPaths []string `json:"removed_paths"`
}

// BoolCounts tallies booleans.
type BoolCounts struct {
	True  int `json:"true"`
	False int `json:"false"`
}

// FieldRollup aggregates one member across an array of objects.
type FieldRollup struct {
	Name       string       `json:"name"`
	Mode       string       `json:"mode"`
	TypeCounts []ValueCount `json:"type_counts"`
	Number     *NumberStats `json:"number,omitempty"`
	Strings    []ValueCount `json:"strings,omitempty"`
	Booleans   *BoolCounts  `json:"booleans,omitempty"`
	Nulls      int          `json:"nulls,omitempty"`
	Objects    int          `json:"objects,omitempty"`
	Arrays     int          `json:"arrays,omitempty"`
}

// Rollup summarizes an array of objects.
type Rollup struct {
	Path    string        `json:"path"`
	Title   string        `json:"title"`
	Records int           `json:"records"`
	Fields  []FieldRollup `json:"fields"`
}

// ObjectShape describes a nested object.
type ObjectShape struct {
	Path       string   `json:"path"`
	Title      string   `json:"title"`
	KeyCount   int      `json:"key_count"`
	SampleKeys []string `json:"sample_keys"`
}

// ArrayShape describes an array that is not an array of objects.
type ArrayShape struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Items int    `json:"items"`
}

// Scalar reports a single value.
type Scalar struct {
	Path  string          `json:"path"`
	Title string          `json:"title"`
	Value *jsontree.Value `json:"value"`
}

// Redaction reports how many leaves were masked.
type Redaction struct {
	Redacted int `json:"redacted"`
}

func (Categorical) Kind() Kind { return KindCategorical }
func (Numeric) Kind() Kind     { return KindNumeric }
func (TimeBucket) Kind() Kind  { return KindTimeBucket }
func (Diff) Kind() Kind        { return KindDiff }
func (Rollup) Kind() Kind      { return KindRollup }
func (ObjectShape) Kind() Kind { return KindObjectShape }
func (ArrayShape) Kind() Kind  { return KindArrayShape }
func (Scalar) Kind() Kind      { return KindScalar }
func (Redaction) Kind() Kind   { return KindRedaction }

// withKind marshals v and prepends the "kind" member.
func withKind(kind Kind, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	head := []byte(`{"kind":"` + string(kind) + `"`)
	if len(body) <= 2 {
		return append(head, '}'), nil
	}
	head = append(head, ',')
	return append(head, body[1:]...), nil
}

func (e Categorical) MarshalJSON() ([]byte, error) {
	type plain Categorical
	return withKind(e.Kind(), plain(e))
}

func (e Numeric) MarshalJSON() ([]byte, error) {
	type plain Numeric
	return withKind(e.Kind(), plain(e))
}

func (e TimeBucket) MarshalJSON() ([]byte, error) {
	type plain TimeBucket
	return withKind(e.Kind(), plain(e))
}

func (e Diff) MarshalJSON() ([]byte, error) {
	type plain Diff
	return withKind(e.Kind(), plain(e))
}

func (e Rollup) MarshalJSON() ([]byte, error) {
	type plain Rollup
	return withKind(e.Kind(), plain(e))
}

func (e ObjectShape) MarshalJSON() ([]byte, error) {
	type plain ObjectShape
	return withKind(e.Kind(), plain(e))
}

func (e ArrayShape) MarshalJSON() ([]byte, error) {
	type plain ArrayShape
	return withKind(e.Kind(), plain(e))
}

func (e Scalar) MarshalJSON() ([]byte, error) {
	type plain Scalar
	return withKind(e.Kind(), plain(e))
}

func (e Redaction) MarshalJSON() ([]byte, error) {
	type plain Redaction
	return withKind(e.Kind(), plain(e))
}
