package evidence

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Plural returns "1 record" / "2 records".
func Plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// fixed2 formats with two decimals and no locale grouping.
func fixed2(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// compact formats integral values without decimals and others with one.
func compact(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func joinCounts(counts []ValueCount, quote bool) string {
	parts := make([]string, len(counts))
	for i, vc := range counts {
		v := vc.Value
		if quote {
			v = strconv.Quote(v)
		}
		parts[i] = fmt.Sprintf("%s (%d)", v, vc.Count)
	}
	return strings.Join(parts, ", ")
}

// Render implements Evidence.
func (e Categorical) Render() string {
	if e.HighCardinality {
		text := fmt.Sprintf("%s: high-cardinality (%d unique values)", e.Field, e.UniqueValues)
		if e.NoDominantValue || len(e.Top) == 0 {
			return text + ", no dominant value"
		}
		top := e.Top[0]
		return fmt.Sprintf("%s, dominant %s (%d of %d)", text, strconv.Quote(top.Value), top.Count, e.TotalCount)
	}
	return fmt.Sprintf("%s: %s | total: %d", e.Field, joinCounts(e.Top, true), e.TotalCount)
}

// Render implements Evidence.
func (e Numeric) Render() string {
	return fmt.Sprintf("%s: count=%d, mean=%s, min=%s, max=%s, sum=%s",
		e.Field, e.Count, fixed2(e.Mean), fixed2(e.Min), fixed2(e.Max), fixed2(e.Sum))
}

// Render implements Evidence.
func (e TimeBucket) Render() string {
	label := e.Bucket + " buckets"
	if e.Timezone != "" && e.Timezone != "UTC" {
		label += ", " + e.Timezone
	}
	return fmt.Sprintf("%s (%s): %s | total events: %d", e.Field, label, joinCounts(e.TopBuckets, false), e.TotalEvents)
}

// diffTextExamples caps the example paths written into diff text.
const diffTextExamples = 3

// Render implements Evidence.
func (e Diff) Render() string {
	if e.Added == 0 && e.Removed == 0 {
		return "No changes detected from baseline"
	}
	var parts []string
	if e.Added > 0 {
		parts = append(parts, fmt.Sprintf("added %s (e.g., %s)", Plural(e.Added, "path"), examples(e.AddedPaths)))
	}
	if e.Removed > 0 {
		parts = append(parts, fmt.Sprintf("removed %s (e.g., %s)", Plural(e.Removed, "path"), examples(e.RemovedPaths)))
	}
	return "Baseline diff: " + strings.Join(parts, "; ")
}

func examples(paths []string) string {
	if len(paths) > diffTextExamples {
		paths = paths[:diffTextExamples]
	}
	return strings.Join(paths, ", ")
}

// Render implements Evidence.
func (e Rollup) Render() string {
	inline := []string{fmt.Sprintf("%s: %s", e.Title, Plural(e.Records, "record"))}
	var details []string
	for _, f := range e.Fields {
		text, lines := f.render()
		inline = append(inline, text)
		details = append(details, lines...)
	}
	text := strings.Join(inline, "; ")
	if len(details) > 0 {
		text += "\n  " + strings.Join(details, "\n  ")
	}
	return text
}

func numberSummary(s *NumberStats) string {
	return fmt.Sprintf("sum %s, avg %s, min %s, max %s", compact(s.Sum), fixed2(s.Mean), compact(s.Min), compact(s.Max))
}

func (f FieldRollup) render() (string, []string) {
	switch f.Mode {
	case "number":
		return fmt.Sprintf("%s: %s", f.Name, numberSummary(f.Number)), nil
	case "string":
		return fmt.Sprintf("%s: %s", f.Name, joinCounts(f.Strings, true)), nil
	case "boolean":
		return fmt.Sprintf("%s: true (%d), false (%d)", f.Name, f.Booleans.True, f.Booleans.False), nil
	case "null":
		return fmt.Sprintf("%s: null (%d)", f.Name, f.Nulls), nil
	case "object":
		return fmt.Sprintf("%s: object (%d)", f.Name, f.Objects), nil
	case "array":
		return fmt.Sprintf("%s: array (%d)", f.Name, f.Arrays), nil
	}

	parts := make([]string, 0, len(f.TypeCounts))
	for _, tc := range f.TypeCounts {
		parts = append(parts, fmt.Sprintf("%s(%d)", tc.Value, tc.Count))
	}
	var lines []string
	if f.Number != nil {
		lines = append(lines, "- numbers: "+numberSummary(f.Number))
	}
	if len(f.Strings) > 0 {
		lines = append(lines, "- strings: "+joinCounts(f.Strings, true))
	}
	if f.Booleans != nil {
		lines = append(lines, fmt.Sprintf("- booleans: true (%d), false (%d)", f.Booleans.True, f.Booleans.False))
	}
	if f.Nulls > 0 {
		lines = append(lines, fmt.Sprintf("- null: %d", f.Nulls))
	}
	if f.Objects > 0 {
		lines = append(lines, fmt.Sprintf("- objects: %d", f.Objects))
	}
	if f.Arrays > 0 {
		lines = append(lines, fmt.Sprintf("- arrays: %d", f.Arrays))
	}
	return fmt.Sprintf("%s - mixed types detected: %s", f.Name, strings.Join(parts, ", ")), lines
}

// Render implements Evidence.
func (e ObjectShape) Render() string {
	text := fmt.Sprintf("%s: object with %s", e.Title, Plural(e.KeyCount, "key"))
	if len(e.SampleKeys) == 0 {
		return text
	}
	sample := strings.Join(e.SampleKeys, ", ")
	if e.KeyCount > len(e.SampleKeys) {
		sample += ", ..."
	}
	return fmt.Sprintf("%s (sample: %s)", text, sample)
}

// Render implements Evidence.
func (e ArrayShape) Render() string {
	return fmt.Sprintf("%s: array with %s", e.Title, Plural(e.Items, "item"))
}

// Render implements Evidence.
func (e Scalar) Render() string {
	b, err := e.Value.MarshalJSON()
	if err != nil {
		return e.Title
	}
	return fmt.Sprintf("%s: %s", e.Title, b)
}

// Render implements Evidence.
func (e Redaction) Render() string {
	return fmt.Sprintf("%s redacted prior to summarization.", Plural(e.Redacted, "sensitive value"))
}
