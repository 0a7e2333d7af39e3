package output

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bimmerbailey/evident/internal/evidence"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// ColorMode determines when to use colored output.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // Auto-detect based on TTY
	ColorAlways                  // Always use colors
	ColorNever                   // Never use colors
)

// ParseColorMode converts "auto", "always" or "never".
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("unknown color mode %q (must be auto, always or never)", s)
	}
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// shouldColorize determines if output should be colorized based on mode and TTY detection.
func shouldColorize(mode ColorMode, w any) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	case ColorAuto:
		if f, ok := w.(*os.File); ok {
			return isTerminal(f)
		}
		return false
	}
	return false
}

// kindColor picks a color for a bullet by evidence kind.
func kindColor(b evidence.Bullet) string {
	if b.Evidence == nil {
		return ""
	}
	switch b.Evidence.Kind() {
	case evidence.KindDiff:
		return colorYellow
	case evidence.KindRedaction:
		return colorBold + colorRed
	case evidence.KindCategorical, evidence.KindNumeric, evidence.KindTimeBucket:
		return colorCyan
	default:
		return ""
	}
}

// paint wraps every line of text in color when colorizing is on.
func (wr *Writer) paint(color, text string) string {
	if !wr.colorize || color == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = color + l + colorReset
	}
	return strings.Join(lines, "\n")
}
