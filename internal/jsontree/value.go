// Package jsontree holds the parsed JSON document model used by every stage
// of the pipeline: an order-preserving tagged union, a depth-guarded decoder,
// and the JSONPath dialect used for citations.
package jsontree

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON type name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is one node of a parsed JSON document.
//
// Numbers keep their literal text so that previews and digests re-emit
// exactly what the input contained. Objects keep member insertion order.
type Value struct {
	kind    Kind
	boolean bool
	text    string // string payload, or the literal text of a number
	number  float64
	items   []*Value
	members *orderedmap.OrderedMap[string, *Value]
}

// Member is a key/value pair of an object, in document order.
type Member struct {
	Key   string
	Value *Value
}

// Null returns a JSON null.
func Null() *Value { return &Value{kind: KindNull} }

// Bool returns a JSON boolean.
func Bool(b bool) *Value { return &Value{kind: KindBool, boolean: b} }

// String returns a JSON string.
func String(s string) *Value { return &Value{kind: KindString, text: s} }

// Number returns a JSON number from its literal text.
func Number(literal string) (*Value, error) {
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		// Out-of-range literals are still valid JSON; keep the text.
		if !errors.Is(err, strconv.ErrRange) {
			return nil, err
		}
	}
	return &Value{kind: KindNumber, text: literal, number: f}, nil
}

// Array returns a JSON array holding items.
func Array(items ...*Value) *Value {
	if items == nil {
		items = []*Value{}
	}
	return &Value{kind: KindArray, items: items}
}

// Object returns an empty JSON object.
func Object() *Value {
	return &Value{kind: KindObject, members: orderedmap.New[string, *Value]()}
}

// Kind reports the variant held by v.
func (v *Value) Kind() Kind { return v.kind }

// IsScalar reports whether v is neither an array nor an object.
func (v *Value) IsScalar() bool { return v.kind != KindArray && v.kind != KindObject }

// Bool returns the boolean payload. It is false for non-booleans.
func (v *Value) Bool() bool { return v.boolean }

// Float returns the numeric payload. It is zero for non-numbers.
func (v *Value) Float() float64 { return v.number }

// Str returns the string payload. It is empty for non-strings.
func (v *Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.text
}

// Literal returns the scalar in the textual form used for regex matching:
// strings as-is, numbers by their literal text, booleans as true/false.
// The second result is false for null, arrays and objects.
func (v *Value) Literal() (string, bool) {
	switch v.kind {
	case KindString, KindNumber:
		return v.text, true
	case KindBool:
		return strconv.FormatBool(v.boolean), true
	default:
		return "", false
	}
}

// Len returns the number of array items or object members.
func (v *Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return v.members.Len()
	default:
		return 0
	}
}

// Items returns the array items. It is nil for non-arrays.
func (v *Value) Items() []*Value { return v.items }

// Index returns the i-th array item.
func (v *Value) Index(i int) (*Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return nil, false
	}
	return v.items[i], true
}

// Get returns the member stored under key.
func (v *Value) Get(key string) (*Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.members.Get(key)
}

// Set stores a member, keeping the original position of an existing key.
func (v *Value) Set(key string, child *Value) {
	if v.kind != KindObject {
		return
	}
	v.members.Set(key, child)
}

// Append adds an item to an array.
func (v *Value) Append(child *Value) {
	if v.kind != KindArray {
		return
	}
	v.items = append(v.items, child)
}

// Members returns the object members in insertion order.
func (v *Value) Members() []Member {
	if v.kind != KindObject {
		return nil
	}
	out := make([]Member, 0, v.members.Len())
	for pair := v.members.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Member{Key: pair.Key, Value: pair.Value})
	}
	return out
}

// Keys returns the object keys in insertion order.
func (v *Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	out := make([]string, 0, v.members.Len())
	for pair := v.members.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Equal reports deep structural equality. Numbers compare by value.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolean == o.boolean
	case KindNumber:
		if v.text == o.text {
			return true
		}
		return v.number == o.number
	case KindString:
		return v.text == o.text
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if v.members.Len() != o.members.Len() {
			return false
		}
		for pair := v.members.Oldest(); pair != nil; pair = pair.Next() {
			other, ok := o.members.Get(pair.Key)
			if !ok || !pair.Value.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	switch v.kind {
	case KindArray:
		items := make([]*Value, len(v.items))
		for i, item := range v.items {
			items[i] = item.Clone()
		}
		return &Value{kind: KindArray, items: items}
	case KindObject:
		out := Object()
		for pair := v.members.Oldest(); pair != nil; pair = pair.Next() {
			out.members.Set(pair.Key, pair.Value.Clone())
		}
		return out
	default:
		cp := *v
		return &cp
	}
}

// MarshalJSON implements json.Marshaler. Object members keep their order and
// numbers are written with their original literal text.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.boolean))
	case KindNumber:
		buf.WriteString(v.text)
	case KindString:
		b, err := json.Marshal(v.text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		first := true
		for pair := v.members.Oldest(); pair != nil; pair = pair.Next() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			key, err := json.Marshal(pair.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := pair.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}
