package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/llm"
)

// Build constructs a []llm.Message slice ready to be sent to any llm.Provider.
//
// The returned slice always holds a system message chosen by pt followed by
// one user message carrying the bundle as JSON. Returns ErrMissingField if
// the bundle is nil or has no bullets.
func Build(pt PromptType, opts BuildOptions) ([]llm.Message, error) {
	if opts.Bundle == nil || len(opts.Bundle.Bullets) == 0 {
		return nil, missingField("Bundle")
	}

	user, err := buildUserMessage(pt, opts)
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: "system", Content: systemPrompt(pt)},
		{Role: "user", Content: user},
	}, nil
}

// TypeFor picks the prompt type that fits the bundle's evidence.
func TypeFor(b *evidence.Bundle) PromptType {
	if b != nil {
		for _, bullet := range b.Bullets {
			if bullet.Evidence != nil && bullet.Evidence.Kind() == evidence.KindDiff {
				return TypeChangeReport
			}
		}
	}
	return TypeNarrative
}

func buildUserMessage(pt PromptType, opts BuildOptions) (string, error) {
	var sb strings.Builder

	switch pt {
	case TypeChangeReport:
		sb.WriteString("Describe the changes shown by the following evidence:\n\n")
	default:
		sb.WriteString("Summarize the following evidence:\n\n")
	}

	payload := struct {
		Bullets []evidence.Bullet `json:"bullets"`
		Stats   evidence.Stats    `json:"evidence_stats"`
	}{opts.Bundle.Bullets, opts.Bundle.Stats}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode evidence: %w", err)
	}
	sb.Write(data)
	sb.WriteString("\n\n")

	appendNotes(&sb, opts)
	return sb.String(), nil
}

// appendNotes writes the optional profile hints after the evidence.
func appendNotes(sb *strings.Builder, opts BuildOptions) {
	var notes []string
	if len(opts.Focus) > 0 {
		notes = append(notes, fmt.Sprintf("Focus on: %s", strings.Join(opts.Focus, ", ")))
	}
	if opts.Style != "" {
		notes = append(notes, fmt.Sprintf("Style: %s", opts.Style))
	}
	if len(notes) > 0 {
		sb.WriteString("Note: ")
		sb.WriteString(strings.Join(notes, "; "))
		sb.WriteString(".\n")
	}
	if opts.Instructions != "" {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(opts.Instructions))
		sb.WriteString("\n")
	}
}
