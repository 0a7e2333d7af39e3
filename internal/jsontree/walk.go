package jsontree

// WalkFunc is called for every node in pre-order. Returning false skips the
// node's children.
type WalkFunc func(p Path, v *Value) bool

// Walk visits root and all of its descendants in document order.
func Walk(root *Value, fn WalkFunc) {
	walk(Path{}, root, fn)
}

func walk(p Path, v *Value, fn WalkFunc) {
	if !fn(p, v) {
		return
	}
	switch v.kind {
	case KindArray:
		for i, item := range v.items {
			walk(p.Child(Index(i)), item, fn)
		}
	case KindObject:
		for pair := v.members.Oldest(); pair != nil; pair = pair.Next() {
			walk(p.Child(Key(pair.Key)), pair.Value, fn)
		}
	}
}
