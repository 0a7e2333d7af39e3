package jsontree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrSyntax is returned for input that is not exactly one JSON value.
var ErrSyntax = errors.New("invalid json")

// DepthError reports a container opened deeper than the configured limit.
type DepthError struct {
	Limit int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("nesting depth exceeds limit of %d", e.Limit)
}

// frame is one open container on the decode stack.
type frame struct {
	value   *Value
	key     string
	needKey bool
}

// Decode parses data into a Value tree.
//
// Decoding is iterative over the token stream, so a deep document is
// rejected with a *DepthError as soon as the first container beyond
// maxDepth is opened, without materializing anything below it. The root
// container counts as depth 1; scalars do not add depth. A maxDepth of 0
// disables the check.
func Decode(data []byte, maxDepth int) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var (
		root  *Value
		stack []*frame
	)

	attach := func(v *Value) error {
		if len(stack) == 0 {
			if root != nil {
				return fmt.Errorf("%w: trailing data after top-level value", ErrSyntax)
			}
			root = v
			return nil
		}
		top := stack[len(stack)-1]
		if top.value.kind == KindArray {
			top.value.Append(v)
			return nil
		}
		top.value.Set(top.key, v)
		top.needKey = true
		return nil
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				if maxDepth > 0 && len(stack)+1 > maxDepth {
					return nil, &DepthError{Limit: maxDepth}
				}
				container := Array()
				if t == '{' {
					container = Object()
				}
				if err := attach(container); err != nil {
					return nil, err
				}
				stack = append(stack, &frame{value: container, needKey: t == '{'})
			case '}', ']':
				if len(stack) == 0 {
					return nil, fmt.Errorf("%w: unbalanced %q", ErrSyntax, rune(t))
				}
				stack = stack[:len(stack)-1]
			}
		case string:
			if n := len(stack); n > 0 && stack[n-1].value.kind == KindObject && stack[n-1].needKey {
				stack[n-1].key = t
				stack[n-1].needKey = false
				continue
			}
			if err := attach(String(t)); err != nil {
				return nil, err
			}
		case json.Number:
			num, err := Number(t.String())
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
			}
			if err := attach(num); err != nil {
				return nil, err
			}
		case bool:
			if err := attach(Bool(t)); err != nil {
				return nil, err
			}
		case nil:
			if err := attach(Null()); err != nil {
				return nil, err
			}
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unexpected end of input", ErrSyntax)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrSyntax)
	}
	return root, nil
}
