package extract

import (
	"sort"
	"time"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/jsontree"
)

// timestampLayouts are tried in order. Layouts without a zone are read as
// UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp with a trailing Z or an
// explicit offset.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimeBucket is a histogram of timestamps at a field.
type TimeBucket struct {
	field  field
	Bucket Bucket
}

// Name implements Extractor.
func (t TimeBucket) Name() string {
	return string(KindTimeBucket) + ":" + t.field.name + ":" + string(t.Bucket)
}

// start returns the beginning of the bucket holding ts, in ts's location.
func (t TimeBucket) start(ts time.Time) time.Time {
	y, m, d := ts.Date()
	switch t.Bucket {
	case BucketDay:
		return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
	case BucketMinute:
		return time.Date(y, m, d, ts.Hour(), ts.Minute(), 0, 0, ts.Location())
	default:
		return time.Date(y, m, d, ts.Hour(), 0, 0, 0, ts.Location())
	}
}

func (t TimeBucket) label(start time.Time) string {
	switch t.Bucket {
	case BucketDay:
		return start.Format("2006-01-02")
	case BucketMinute:
		return start.Format("2006-01-02 15:04")
	default:
		return start.Format("2006-01-02 15:00")
	}
}

type bucketCount struct {
	start time.Time
	count int
}

// Evaluate implements Extractor.
func (t TimeBucket) Evaluate(in Input) (evidence.Bullet, bool) {
	in = in.normalized()
	var (
		parsed  []observation
		buckets = make(map[string]*bucketCount)
	)
	for _, o := range t.field.collect(in.Document) {
		if o.value.Kind() != jsontree.KindString {
			continue
		}
		ts, ok := ParseTimestamp(o.value.Str())
		if !ok {
			continue
		}
		parsed = append(parsed, o)
		start := t.start(ts.In(in.Location))
		key := t.label(start)
		if b, ok := buckets[key]; ok {
			b.count++
		} else {
			buckets[key] = &bucketCount{start: start, count: 1}
		}
	}
	if len(parsed) == 0 {
		return evidence.Bullet{}, false
	}

	ordered := make([]*bucketCount, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].start.Before(ordered[j].start)
	})
	if len(ordered) > in.Limits.TopBuckets {
		ordered = ordered[:in.Limits.TopBuckets]
	}

	top := make([]evidence.ValueCount, len(ordered))
	for i, b := range ordered {
		top[i] = evidence.ValueCount{Value: t.label(b.start), Count: b.count}
	}

	ev := evidence.TimeBucket{
		Field:         t.field.name,
		Bucket:        string(t.Bucket),
		Timezone:      in.Location.String(),
		TotalEvents:   len(parsed),
		UniqueBuckets: len(buckets),
		TopBuckets:    top,
	}
	return evidence.NewBullet(ev, t.field.citations(parsed, in.Limits.CitationExamples)...), true
}
