// Package output renders evidence bundles and rejections for the terminal.
// It supports text, JSON, and table formats.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/rejection"
)

// Format represents an output format type.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// ParseFormat converts a string to a Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "table":
		return FormatTable
	default:
		return FormatText
	}
}

// Writer handles writing formatted output.
type Writer struct {
	w        io.Writer
	format   Format
	colorize bool
}

// New creates a new output Writer. Colour is decided from mode and whether
// w is a terminal.
func New(w io.Writer, format Format, mode ColorMode) *Writer {
	return &Writer{w: w, format: format, colorize: shouldColorize(mode, w)}
}

// WriteBundle outputs a bundle in the configured format.
func (wr *Writer) WriteBundle(b *evidence.Bundle) error {
	switch wr.format {
	case FormatJSON:
		return wr.WriteJSON(b)
	case FormatTable:
		return wr.writeTable(b)
	default:
		return wr.writeText(b)
	}
}

// WriteRejection outputs a structured input rejection.
func (wr *Writer) WriteRejection(rej *rejection.Error) error {
	if wr.format == FormatJSON {
		return wr.WriteJSON(map[string]any{"error": rej})
	}
	_, err := fmt.Fprintln(wr.w, wr.paint(colorRed, "rejected: "+rej.Error()))
	return err
}

// WriteJSON outputs any value as indented JSON.
func (wr *Writer) WriteJSON(v any) error {
	enc := json.NewEncoder(wr.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (wr *Writer) writeText(b *evidence.Bundle) error {
	for _, bullet := range b.Bullets {
		fmt.Fprintln(wr.w, "- "+wr.paint(kindColor(bullet), bullet.Text))
		for _, c := range bullet.Citations {
			line := "    @ " + c.Path
			if len(c.ValuePreview) > 0 {
				line += " = " + strings.Join(previewStrings(c), ", ")
			}
			fmt.Fprintln(wr.w, wr.paint(colorGray, line))
		}
	}
	if b.Narrative != "" {
		fmt.Fprintln(wr.w)
		fmt.Fprintln(wr.w, b.Narrative)
	}
	fmt.Fprintln(wr.w)
	_, err := fmt.Fprintln(wr.w, wr.paint(colorGray, statsLine(b)))
	return err
}

func (wr *Writer) writeTable(b *evidence.Bundle) error {
	tw := tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tSUMMARY\tCITATIONS")
	fmt.Fprintln(tw, "-\t----\t-------\t---------")

	for i, bullet := range b.Bullets {
		kind := ""
		if bullet.Evidence != nil {
			kind = string(bullet.Evidence.Kind())
		}

		text, _, _ := strings.Cut(bullet.Text, "\n")
		if len(text) > 80 {
			text = text[:77] + "..."
		}

		paths := make([]string, 0, len(bullet.Citations))
		for _, c := range bullet.Citations {
			paths = append(paths, c.Path)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, kind, text, strings.Join(paths, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(wr.w, statsLine(b))
	return err
}

func statsLine(b *evidence.Bundle) string {
	line := fmt.Sprintf("%d paths, %d bytes, %d ms (%s)",
		b.Stats.PathsCount, b.Stats.BytesExamined, b.Stats.ElapsedMS, b.Engine)
	if b.RedactionsApplied {
		line += ", redactions applied"
	}
	return line
}

func previewStrings(c evidence.Citation) []string {
	out := make([]string, 0, len(c.ValuePreview))
	for _, v := range c.ValuePreview {
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out = append(out, string(data))
	}
	return out
}
