package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/extract"
	"github.com/bimmerbailey/evident/internal/guard"
	"github.com/bimmerbailey/evident/internal/jsontree"
	"github.com/bimmerbailey/evident/internal/redact"
	"github.com/bimmerbailey/evident/internal/rejection"
)

const logsDoc = `{
	"service": "checkout",
	"access_token": "tok-123",
	"logs": [
		{"level": "error", "ts": "2024-05-01T10:01:00Z", "latency_ms": 120, "user": {"email": "ann@example.com", "password": "hunter2"}},
		{"level": "info", "ts": "2024-05-01T10:20:00Z", "latency_ms": 30, "user": {"email": "bob@example.com", "password": "swordfish"}},
		{"level": "error", "ts": "2024-05-01T11:02:00Z", "latency_ms": 95, "user": {"email": "cy@example.com", "password": "letmein"}}
	]
}`

func newEngine() *Engine {
	return New(guard.New(1<<20, 16), redact.Rules{DenyPaths: redact.DefaultDenyPaths()}, nil)
}

func directives(t *testing.T, specs ...string) []extract.Directive {
	t.Helper()
	ds, err := extract.ParseDirectives(specs, extract.BucketHour)
	if err != nil {
		t.Fatalf("ParseDirectives() error = %v", err)
	}
	return ds
}

func TestSummarizeDirectives(t *testing.T) {
	req := Request{
		Document: []byte(logsDoc),
		Options: Options{
			Profile:    "logs",
			Directives: directives(t, "categorical:level", "numeric:latency_ms", "timebucket:ts:hour", "categorical:email"),
		},
	}

	bundle, err := newEngine().Summarize(context.Background(), req)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	want := []string{
		`level: "error" (2), "info" (1) | total: 3`,
		"latency_ms: count=3, mean=81.67, min=30.00, max=120.00, sum=245.00",
		"ts (hour buckets): 2024-05-01 10:00 (2), 2024-05-01 11:00 (1) | total events: 3",
		`email: "[REDACTED]" (3) | total: 3`,
		"7 sensitive values redacted prior to summarization.",
	}
	if len(bundle.Bullets) != len(want) {
		t.Fatalf("got %d bullets, want %d: %+v", len(bundle.Bullets), len(want), bundle.Bullets)
	}
	for i, b := range bundle.Bullets {
		if b.Text != want[i] {
			t.Errorf("bullet %d = %q, want %q", i, b.Text, want[i])
		}
	}
	if bundle.Engine != "profile:logs" {
		t.Errorf("Engine = %q, want profile:logs", bundle.Engine)
	}
	if !bundle.RedactionsApplied {
		t.Error("RedactionsApplied = false, want true")
	}
	if bundle.Stats.BytesExamined != int64(len(logsDoc)) {
		t.Errorf("BytesExamined = %d, want %d", bundle.Stats.BytesExamined, len(logsDoc))
	}
}

func TestSummarizeNeverLeaksDeniedValues(t *testing.T) {
	bundle, err := newEngine().Summarize(context.Background(), Request{Document: []byte(logsDoc)})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	out, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, secret := range []string{"tok-123", "hunter2", "swordfish", "letmein", "ann@example.com"} {
		if strings.Contains(string(out), secret) {
			t.Errorf("bundle contains %q", secret)
		}
	}
}

func TestSummarizeCitationsResolve(t *testing.T) {
	e := newEngine()
	req := Request{
		Document: []byte(logsDoc),
		Baseline: []byte(`{"service":"checkout","region":"eu"}`),
		Options: Options{
			Directives: directives(t, "categorical:level", "diff:baseline"),
			Backfill:   true,
			Length:     extract.LengthLong,
		},
	}
	bundle, err := e.Summarize(context.Background(), req)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	r, err := redact.New(redact.Rules{DenyPaths: redact.DefaultDenyPaths()})
	if err != nil {
		t.Fatalf("redact.New() error = %v", err)
	}
	doc, _ := jsontree.Decode([]byte(logsDoc), 0)
	base, _ := jsontree.Decode(req.Baseline, 0)
	cleanDoc, _ := r.Apply(doc)
	cleanBase, _ := r.Apply(base)

	diffs := 0
	for _, b := range bundle.Bullets {
		if b.Evidence.Kind() == evidence.KindDiff {
			diffs++
		}
		for _, c := range b.Citations {
			tree := cleanDoc
			if c.Source == evidence.SourceBaseline {
				tree = cleanBase
			}
			if !jsontree.Exists(tree, c.Path) {
				t.Errorf("citation %s of %q does not resolve", c.Path, b.Text)
			}
			if len(c.ValuePreview) == 0 || len(c.ValuePreview) > evidence.DefaultPreviewLimit {
				t.Errorf("citation %s has %d previews", c.Path, len(c.ValuePreview))
			}
		}
	}
	if diffs != 1 {
		t.Errorf("got %d diff bullets, want 1", diffs)
	}
}

func TestSummarizeDiffExample(t *testing.T) {
	req := Request{
		Document: []byte(`{"id":1,"role":"admin"}`),
		Baseline: []byte(`{"id":1}`),
		Options:  Options{Directives: directives(t, "diff:baseline")},
	}
	bundle, err := newEngine().Summarize(context.Background(), req)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(bundle.Bullets) != 1 {
		t.Fatalf("got %d bullets, want 1", len(bundle.Bullets))
	}
	ev := bundle.Bullets[0].Evidence.(evidence.Diff)
	if ev.Added != 1 || ev.Removed != 0 || len(ev.AddedPaths) != 1 || ev.AddedPaths[0] != "$.role" {
		t.Errorf("evidence = %+v", ev)
	}
	if got := bundle.Bullets[0].Citations[0].ValuePreview[0].Str(); got != "admin" {
		t.Errorf("preview = %q, want admin", got)
	}
}

func TestSummarizeIsIdempotent(t *testing.T) {
	e := newEngine()
	req := Request{Document: []byte(logsDoc), Options: Options{Focus: []string{"latency"}}}

	var digests []string
	var paths []int
	for i := 0; i < 2; i++ {
		bundle, err := e.Summarize(context.Background(), req)
		if err != nil {
			t.Fatalf("Summarize() error = %v", err)
		}
		d, err := evidence.Digest(bundle)
		if err != nil {
			t.Fatalf("Digest() error = %v", err)
		}
		digests = append(digests, d)
		paths = append(paths, bundle.Stats.PathsCount)
	}
	if digests[0] != digests[1] || paths[0] != paths[1] {
		t.Errorf("runs differ: digests %v, paths %v", digests, paths)
	}
}

func TestSummarizeRejections(t *testing.T) {
	deep := strings.Repeat("[", 17) + strings.Repeat("]", 17)
	atLimit := strings.Repeat("[", 16) + strings.Repeat("]", 16)

	tests := []struct {
		name string
		req  Request
		want rejection.Code
	}{
		{
			name: "oversized document",
			req:  Request{Document: []byte(`"` + strings.Repeat("x", 1<<20) + `"`)},
			want: rejection.CodePayloadTooLarge,
		},
		{
			name: "too deep",
			req:  Request{Document: []byte(deep)},
			want: rejection.CodeDepthExceeded,
		},
		{
			name: "baseline too deep",
			req:  Request{Document: []byte(atLimit), Baseline: []byte(deep)},
			want: rejection.CodeDepthExceeded,
		},
		{
			name: "malformed",
			req:  Request{Document: []byte(`{"a":`)},
			want: rejection.CodeInvalidJSON,
		},
		{
			name: "bad redaction pattern",
			req: Request{
				Document: []byte(`{}`),
				Options:  Options{Redaction: redact.Rules{ExtraRegexes: []redact.NamedRegex{{Name: "x", Pattern: "("}}}},
			},
			want: rejection.CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := newEngine().Summarize(context.Background(), tt.req)
			if bundle != nil {
				t.Errorf("Summarize() returned a bundle with %d bullets", len(bundle.Bullets))
			}
			if got := rejection.CodeOf(err); got != tt.want {
				t.Errorf("rejection code = %q (err %v), want %q", got, err, tt.want)
			}
		})
	}
}

func TestSummarizeAtDepthLimit(t *testing.T) {
	doc := strings.Repeat("[", 16) + strings.Repeat("]", 16)
	if _, err := newEngine().Summarize(context.Background(), Request{Document: []byte(doc)}); err != nil {
		t.Errorf("Summarize() at depth limit error = %v", err)
	}
}

func TestSummarizeDisabledRedaction(t *testing.T) {
	req := Request{
		Document: []byte(`{"password":"hunter2","n":[1,1]}`),
		Options:  Options{DisableRedaction: true},
	}
	bundle, err := newEngine().Summarize(context.Background(), req)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if bundle.RedactionsApplied {
		t.Error("RedactionsApplied = true with redaction disabled")
	}
	for _, b := range bundle.Bullets {
		if b.Evidence.Kind() == evidence.KindRedaction {
			t.Error("redaction notice emitted with redaction disabled")
		}
	}
}

func TestSummarizeLogsRedactionState(t *testing.T) {
	for _, disabled := range []bool{false, true} {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		e := New(guard.New(1<<20, 16), redact.Rules{}, logger)
		req := Request{Document: []byte(`{"n":1}`), Options: Options{DisableRedaction: disabled}}
		if _, err := e.Summarize(context.Background(), req); err != nil {
			t.Fatalf("Summarize() error = %v", err)
		}
		want := fmt.Sprintf("redaction=%t", !disabled)
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log = %q, want it to contain %q", buf.String(), want)
		}
	}
}
