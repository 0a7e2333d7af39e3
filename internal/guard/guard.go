// Package guard rejects oversized and over-nested JSON before any other
// stage sees it.
package guard

import (
	"errors"
	"fmt"
	"io"

	"github.com/bimmerbailey/evident/internal/jsontree"
	"github.com/bimmerbailey/evident/internal/rejection"
)

// Default limits.
const (
	DefaultMaxBytes = 20 * 1024 * 1024
	DefaultMaxDepth = 64
)

// Guard enforces the payload size and nesting depth ceilings.
type Guard struct {
	MaxBytes int64
	MaxDepth int
}

// New returns a Guard, substituting defaults for non-positive limits.
func New(maxBytes int64, maxDepth int) Guard {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return Guard{MaxBytes: maxBytes, MaxDepth: maxDepth}
}

// Read drains r up to the byte ceiling. Input longer than MaxBytes is
// rejected without reading the remainder.
func (g Guard) Read(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, g.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if int64(len(data)) > g.MaxBytes {
		return nil, rejection.PayloadTooLarge(g.MaxBytes)
	}
	return data, nil
}

// Decode checks the size of data and parses it with the depth ceiling
// applied incrementally during the parse.
func (g Guard) Decode(data []byte) (*jsontree.Value, error) {
	if err := g.CheckSize(int64(len(data))); err != nil {
		return nil, err
	}
	v, err := jsontree.Decode(data, g.MaxDepth)
	if err != nil {
		var depthErr *jsontree.DepthError
		if errors.As(err, &depthErr) {
			return nil, rejection.DepthExceeded(depthErr.Limit)
		}
		return nil, rejection.InvalidJSON(err)
	}
	return v, nil
}

// CheckSize rejects a payload of n bytes if it exceeds the ceiling.
func (g Guard) CheckSize(n int64) error {
	if n > g.MaxBytes {
		return rejection.PayloadTooLarge(g.MaxBytes)
	}
	return nil
}
