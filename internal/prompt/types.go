package prompt

import (
	"errors"
	"fmt"

	"github.com/bimmerbailey/evident/internal/evidence"
)

// PromptType identifies the rephrasing task a prompt is designed to perform.
type PromptType string

const (
	// TypeNarrative turns the bullets into a short prose summary.
	TypeNarrative PromptType = "narrative"

	// TypeChangeReport describes what changed between the baseline and the
	// current document. Chosen when the bundle carries diff evidence.
	TypeChangeReport PromptType = "change_report"
)

// BuildOptions holds the context required to build a prompt.
type BuildOptions struct {
	// Bundle is the deterministic evidence. Required, with at least one bullet.
	Bundle *evidence.Bundle

	// Style is a short tone hint from the profile (e.g. "terse").
	// Optional.
	Style string

	// Instructions are extra profile-supplied directions.
	// Optional: appended after the evidence.
	Instructions string

	// Focus lists the fields the caller cares about most.
	// Optional: appended as a context note when non-empty.
	Focus []string
}

// ErrMissingField is returned by [Build] when a required field is absent
// from [BuildOptions].
var ErrMissingField = errors.New("prompt: missing required field")

func missingField(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
