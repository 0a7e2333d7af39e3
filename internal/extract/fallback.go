package extract

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/jsontree"
)

// Length caps the number of generic bullets.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// MaxBullets returns the cap for l. Unknown lengths use medium.
func (l Length) MaxBullets() int {
	switch l {
	case LengthShort:
		return 4
	case LengthLong:
		return 12
	default:
		return 8
	}
}

// Valid reports whether l is a known length.
func (l Length) Valid() bool {
	return l == LengthShort || l == LengthMedium || l == LengthLong
}

// Fallback is the generic bullet set used when no directives are given,
// or after them when backfill is requested. It walks the whole document
// and proposes record rollups for arrays of objects, shape bullets for
// nested containers, and value bullets for scalars outside arrays. The
// candidates are ranked by focus and brevity and capped by Length.
type Fallback struct {
	Focus  []string
	Length Length
	// Diff appends an existence diff when a baseline is present.
	Diff bool
	// RootSummary adds a shape bullet for a root object.
	RootSummary bool
}

type candidate struct {
	bullet evidence.Bullet
	score  int
}

// Bullets returns the ranked generic bullets for in.
func (f Fallback) Bullets(in Input) []evidence.Bullet {
	in = in.normalized()
	c := collector{limits: in.Limits, focus: focusTokens(f.Focus), root: f.RootSummary}
	if in.Document != nil {
		c.visit(jsontree.Path{}, in.Document, "")
	}

	sort.SliceStable(c.candidates, func(i, j int) bool {
		a, b := c.candidates[i], c.candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		return len(a.bullet.Text) < len(b.bullet.Text)
	})

	limit := min(len(c.candidates), f.Length.MaxBullets())
	bullets := make([]evidence.Bullet, 0, limit+1)
	for _, cand := range c.candidates[:limit] {
		bullets = append(bullets, cand.bullet)
	}
	if f.Diff {
		if b, ok := (Diff{}).Evaluate(in); ok {
			bullets = append(bullets, b)
		}
	}
	return bullets
}

type collector struct {
	limits     Limits
	focus      []string
	root       bool
	candidates []candidate
}

func (c *collector) add(ev evidence.Evidence, title string, cites ...evidence.Citation) {
	b := evidence.NewBullet(ev, cites...)
	c.candidates = append(c.candidates, candidate{bullet: b, score: focusScore(b.Text, title, c.focus)})
}

func (c *collector) visit(p jsontree.Path, v *jsontree.Value, title string) {
	path := p.String()
	switch v.Kind() {
	case jsontree.KindObject:
		if title == "" {
			title = "Root object"
		}
		if len(p) > 0 || c.root {
			keys := v.Keys()
			sample := keys
			if len(sample) > c.limits.GenericTopK {
				sample = sample[:c.limits.GenericTopK]
			}
			c.add(evidence.ObjectShape{Path: path, Title: title, KeyCount: len(keys), SampleKeys: sample},
				title, evidence.Cite(path))
		}
		for _, m := range v.Members() {
			c.visit(p.Child(jsontree.Key(m.Key)), m.Value, m.Key)
		}
	case jsontree.KindArray:
		if title == "" {
			title = "Root array"
		}
		c.visitArray(p, v, title)
	default:
		if title == "" {
			title = path
		}
		c.add(evidence.Scalar{Path: path, Title: title, Value: v}, title, evidence.Cite(path))
	}
}

func (c *collector) visitArray(p jsontree.Path, v *jsontree.Value, title string) {
	path := p.String()
	items := v.Items()
	if len(items) > 0 && allObjects(items) {
		rows := p.Child(jsontree.Wildcard()).String()
		c.add(c.rollup(path, title, items), title, evidence.Cite(rows))
		return
	}

	c.add(evidence.ArrayShape{Path: path, Title: title, Items: len(items)}, title, evidence.Cite(path))
	for i, item := range items {
		if item.IsScalar() {
			continue
		}
		c.visit(p.Child(jsontree.Index(i)), item, title+"["+strconv.Itoa(i)+"]")
	}
}

func allObjects(items []*jsontree.Value) bool {
	for _, item := range items {
		if item.Kind() != jsontree.KindObject {
			return false
		}
	}
	return true
}

// rollup aggregates each member across the records, fields sorted by
// name.
func (c *collector) rollup(path, title string, records []*jsontree.Value) evidence.Rollup {
	aggs := make(map[string]*fieldAggregate)
	for _, rec := range records {
		for _, m := range rec.Members() {
			agg, ok := aggs[m.Key]
			if !ok {
				agg = &fieldAggregate{}
				aggs[m.Key] = agg
			}
			agg.add(m.Value)
		}
	}

	names := make([]string, 0, len(aggs))
	for name := range aggs {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]evidence.FieldRollup, 0, len(names))
	for _, name := range names {
		fields = append(fields, aggs[name].summarize(name, c.limits.GenericTopK))
	}
	return evidence.Rollup{Path: path, Title: title, Records: len(records), Fields: fields}
}

// fieldAggregate accumulates one member's values across records.
type fieldAggregate struct {
	types   map[jsontree.Kind]int
	number  evidence.NumberStats
	strings []string
	bools   evidence.BoolCounts
}

func (a *fieldAggregate) add(v *jsontree.Value) {
	if a.types == nil {
		a.types = make(map[jsontree.Kind]int)
	}
	a.types[v.Kind()]++
	switch v.Kind() {
	case jsontree.KindNumber:
		if f := v.Float(); !math.IsInf(f, 0) && !math.IsNaN(f) {
			a.number.Add(f)
		}
	case jsontree.KindString:
		a.strings = append(a.strings, v.Str())
	case jsontree.KindBool:
		if v.Bool() {
			a.bools.True++
		} else {
			a.bools.False++
		}
	}
}

// rollupKinds is the order types are listed in a mixed-type breakdown.
var rollupKinds = []jsontree.Kind{
	jsontree.KindNumber,
	jsontree.KindString,
	jsontree.KindBool,
	jsontree.KindObject,
	jsontree.KindArray,
	jsontree.KindNull,
}

func (a *fieldAggregate) summarize(name string, topK int) evidence.FieldRollup {
	fr := evidence.FieldRollup{Name: name, Nulls: a.types[jsontree.KindNull]}

	var nonNull []jsontree.Kind
	for _, k := range rollupKinds {
		n := a.types[k]
		if n == 0 {
			continue
		}
		fr.TypeCounts = append(fr.TypeCounts, evidence.ValueCount{Value: k.String(), Count: n})
		if k != jsontree.KindNull {
			nonNull = append(nonNull, k)
		}
	}

	if len(nonNull) == 0 {
		fr.Mode = "null"
		return fr
	}
	if len(nonNull) == 1 {
		fr.Mode = nonNull[0].String()
	} else {
		fr.Mode = "mixed"
	}

	if a.number.Count > 0 {
		stats := a.number
		fr.Number = &stats
	}
	if len(a.strings) > 0 {
		fr.Strings = topN(countInOrder(a.strings), topK)
	}
	if a.types[jsontree.KindBool] > 0 {
		bools := a.bools
		fr.Booleans = &bools
	}
	fr.Objects = a.types[jsontree.KindObject]
	fr.Arrays = a.types[jsontree.KindArray]

	// Non-finite numbers keep the numeric mode but leave no stats to show.
	if fr.Mode == "number" && fr.Number == nil {
		fr.Number = &evidence.NumberStats{}
	}
	return fr
}

func focusTokens(focus []string) []string {
	var tokens []string
	for _, f := range focus {
		tokens = append(tokens, tokenize(f)...)
	}
	return tokens
}

func tokenize(s string) []string {
	return strings.Fields(strings.ReplaceAll(strings.ToLower(s), "_", " "))
}

// focusScore counts the focus tokens that appear among the words of the
// bullet text and title.
func focusScore(text, title string, focus []string) int {
	if len(focus) == 0 {
		return 0
	}
	words := make(map[string]bool)
	for _, w := range tokenize(text) {
		words[w] = true
	}
	for _, w := range tokenize(title) {
		words[w] = true
	}
	score := 0
	for _, f := range focus {
		if words[f] {
			score++
		}
	}
	return score
}
