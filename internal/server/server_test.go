package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimmerbailey/evident/internal/config"
	"github.com/bimmerbailey/evident/internal/engine"
	"github.com/bimmerbailey/evident/internal/evidence"
	"github.com/bimmerbailey/evident/internal/guard"
	"github.com/bimmerbailey/evident/internal/profile"
	"github.com/bimmerbailey/evident/internal/rejection"
	"github.com/bimmerbailey/evident/internal/rephrase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	levelsDoc  = `{"logs":[{"level":"error"},{"level":"info"},{"level":"error"}]}`
	levelsText = `level: "error" (2), "info" (1) | total: 3`

	logsProfile = `id: logs
version: 1.0.0
title: Application logs
extractors:
  - categorical:level
llm_hints:
  style: terse
`
)

type fakeRephraser struct {
	hints rephrase.Hints
	err   error
}

func (f *fakeRephraser) Apply(_ context.Context, b *evidence.Bundle, hints rephrase.Hints) error {
	f.hints = hints
	if f.err != nil {
		return f.err
	}
	b.Narrative = "Errors dominate."
	return nil
}

type testOption func(*Deps)

func newTestServer(t *testing.T, opts ...testOption) *Server {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logs.yaml"), []byte(logsProfile), 0o600))
	reg := profile.NewRegistry(dir, nil)
	require.NoError(t, reg.Load())

	cfg := config.Defaults()
	cfg.Stream.Delay = "0s"
	d := Deps{
		Config:   cfg,
		Engine:   engine.New(guard.New(4096, 8), profile.GlobalRules(cfg), nil),
		Profiles: reg,
	}
	for _, opt := range opts {
		opt(&d)
	}

	s, err := New(d)
	require.NoError(t, err)
	return s
}

func postJSON(t *testing.T, s *Server, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	return postTo(t, s, "/v1/summarize-json", body, headers...)
}

func postTo(t *testing.T, s *Server, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

type bundleResponse struct {
	Bullets []struct {
		Text      string `json:"text"`
		Citations []struct {
			Path         string            `json:"path"`
			ValuePreview []json.RawMessage `json:"value_preview"`
		} `json:"citations"`
	} `json:"bullets"`
	Stats struct {
		PathsCount    int   `json:"paths_count"`
		BytesExamined int64 `json:"bytes_examined"`
	} `json:"evidence_stats"`
	Engine    string `json:"engine"`
	Narrative string `json:"narrative"`
}

func decodeBundle(t *testing.T, w *httptest.ResponseRecorder) bundleResponse {
	t.Helper()
	var resp bundleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestNew(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	cfg := config.Defaults()
	cfg.Stream.Delay = "later"
	_, err = New(Deps{Config: cfg, Engine: engine.New(guard.New(0, 0), profile.GlobalRules(cfg), nil)})
	assert.ErrorContains(t, err, "stream.delay")
}

func TestSummarize(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s, `{"json":`+levelsDoc+`,"extractors":["categorical:level"]}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBundle(t, w)
	require.Len(t, resp.Bullets, 1)
	assert.Equal(t, levelsText, resp.Bullets[0].Text)
	assert.Equal(t, "$.logs[*].level", resp.Bullets[0].Citations[0].Path)
	assert.NotEmpty(t, resp.Bullets[0].Citations[0].ValuePreview)
	require.Len(t, resp.Bullets[0].Citations, 4)
	assert.Equal(t, "$.logs[2].level", resp.Bullets[0].Citations[3].Path)
	assert.Equal(t, 4, resp.Stats.PathsCount)
	assert.Equal(t, int64(len(levelsDoc)), resp.Stats.BytesExamined)
	assert.Equal(t, engine.Name, resp.Engine)
	assert.Empty(t, resp.Narrative)
	assert.Contains(t, w.Body.String(), `"value_preview_typed":[{"type":"string","examples":["error","info","error"]}]`)
}

func TestSummarizeRootSummary(t *testing.T) {
	s := newTestServer(t)
	const root = "Root object: object with 2 keys (sample: a, b)"
	texts := func(body string) []string {
		w := postJSON(t, s, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out []string
		for _, b := range decodeBundle(t, w).Bullets {
			out = append(out, b.Text)
		}
		return out
	}

	assert.NotContains(t, texts(`{"json":{"a":1,"b":2}}`), root)
	assert.Contains(t, texts(`{"json":{"a":1,"b":2},"include_root_summary":true}`), root)
}

func TestSummarizeWithProfile(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s, `{"json":`+levelsDoc+`,"profile":"logs"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBundle(t, w)
	require.Len(t, resp.Bullets, 1)
	assert.Equal(t, levelsText, resp.Bullets[0].Text)
	assert.Equal(t, "profile:logs", resp.Engine)
}

func TestSummarizeRejections(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name       string
		body       string
		headers    []string
		wantStatus int
		wantBody   string
		contains   string
	}{
		{
			name:       "body is not JSON",
			body:       `{"json": {`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid_json"}`,
		},
		{
			name:       "missing document",
			body:       `{"focus":["level"]}`,
			wantStatus: http.StatusBadRequest,
			contains:   "json failed required",
		},
		{
			name:       "null document",
			body:       `{"json":null}`,
			wantStatus: http.StatusBadRequest,
			contains:   "json failed required",
		},
		{
			name:       "bad length",
			body:       `{"json":{},"length":"huge"}`,
			wantStatus: http.StatusBadRequest,
			contains:   "length failed oneof=short medium long",
		},
		{
			name:       "wrong field type",
			body:       `{"json":{},"focus":3}`,
			wantStatus: http.StatusBadRequest,
			contains:   "malformed request body",
		},
		{
			name:       "bad directive",
			body:       `{"json":{},"extractors":["median:x"]}`,
			wantStatus: http.StatusBadRequest,
			contains:   "invalid extractor directive",
		},
		{
			name:       "bad timezone",
			body:       `{"json":{},"timezone":"Mars/Olympus"}`,
			wantStatus: http.StatusBadRequest,
			contains:   "invalid timezone",
		},
		{
			name:       "unknown profile",
			body:       `{"json":{},"profile":"nope"}`,
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"unknown_profile","available":["logs"]}`,
		},
		{
			name:       "too deep",
			body:       `{"json":[[[[[[[[[1]]]]]]]]]}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"depth_limit_exceeded","limit":8}`,
		},
		{
			name:       "document too large",
			body:       `{"json":"` + strings.Repeat("x", 5000) + `"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantBody:   `{"error":"payload_too_large","limit_bytes":4096}`,
		},
		{
			name:       "body too large",
			body:       `{"json":"` + strings.Repeat("x", 80000) + `"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantBody:   `{"error":"payload_too_large","limit_bytes":4096}`,
		},
		{
			name:       "unsupported encoding",
			body:       `{"json":{}}`,
			headers:    []string{"Content-Encoding", "gzip"},
			wantStatus: http.StatusBadRequest,
			contains:   "unsupported Content-Encoding gzip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, s, tt.body, tt.headers...)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
			if tt.contains != "" {
				var body struct {
					Error   string `json:"error"`
					Details string `json:"details"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "invalid_request", body.Error)
				assert.Contains(t, body.Details, tt.contains)
			}
			assert.NotContains(t, w.Body.String(), "bullets")
		})
	}
}

func TestSummarizeVeryDeepDocument(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.Engine = engine.New(guard.New(64<<10, 64), profile.GlobalRules(d.Config), nil)
	})
	deep := strings.Repeat("[", 10001) + strings.Repeat("]", 10001)

	tests := []struct {
		name string
		body string
	}{
		{name: "one past the limit", body: `{"json":` + strings.Repeat("[", 65) + strings.Repeat("]", 65) + `}`},
		{name: "document", body: `{"json":` + deep + `}`},
		{name: "baseline", body: `{"json":{},"baseline_json":` + deep + `,"extractors":["diff:baseline"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, s, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":"depth_limit_exceeded","limit":64}`, w.Body.String())
		})
	}
}

func TestSplitEnvelope(t *testing.T) {
	env, err := splitEnvelope([]byte(` {"profile":"logs","json":{"a":"x\"y"},"focus":["a"],"baseline_json":"s","stream":true} `))
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x\"y"}`, string(env.document))
	assert.Equal(t, `"s"`, string(env.baseline))
	assert.JSONEq(t, `{"profile":"logs","focus":["a"],"stream":true}`, string(env.rest))

	for _, body := range []string{``, `{"json":{}} trailing`, `{"json":`, `{json:1}`} {
		_, err := splitEnvelope([]byte(body))
		assert.Equal(t, "invalid_json", string(rejection.CodeOf(err)), "body %q", body)
	}
	_, err = splitEnvelope([]byte(`[{"json":{}}]`))
	assert.Equal(t, "invalid_request", string(rejection.CodeOf(err)))
}

func TestChat(t *testing.T) {
	s := newTestServer(t)
	body := `{"messages":[{"role":"user","content":"ignored"},{"role":"assistant","content":"ok"},{"role":"user","content":"level"}],` +
		`"json":` + levelsDoc + `,"extractors":["categorical:level"],"stream":true}`
	w := postTo(t, s, "/v1/chat", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	var resp struct {
		Reply string `json:"reply"`
		bundleResponse
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.Len(t, resp.Bullets, 1)
	assert.Equal(t, "- "+levelsText, resp.Reply)
	assert.Equal(t, engine.Name, resp.Engine)
	assert.Equal(t, int64(len(levelsDoc)), resp.Stats.BytesExamined)
}

func TestChatFocusFromLastUserMessage(t *testing.T) {
	s := newTestServer(t)
	body := `{"json":{"alpha":1,"beta":2},"messages":[{"role":"user","content":"alpha"},{"role":"user","content":"tell me about beta"}]}`
	w := postTo(t, s, "/v1/chat", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Reply string `json:"reply"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "- beta: 2\n- alpha: 1", resp.Reply)
}

func TestChatRejections(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{name: "no messages", body: `{"json":{}}`, contains: "messages failed required"},
		{name: "empty messages", body: `{"json":{},"messages":[]}`, contains: "messages failed min=1"},
		{name: "bad role", body: `{"json":{},"messages":[{"role":"robot","content":"x"}]}`, contains: "messages[0].role failed oneof"},
		{name: "no document", body: `{"messages":[{"role":"user","content":"x"}]}`, contains: "json failed required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postTo(t, s, "/v1/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var body struct {
				Error   string `json:"error"`
				Details string `json:"details"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "invalid_request", body.Error)
			assert.Contains(t, body.Details, tt.contains)
		})
	}
}

func TestParseChatRequestFocus(t *testing.T) {
	body := `{"json":{},"focus":["status","level"],"stream":true,"messages":[` +
		`{"role":"user","content":"older"},{"role":"user","content":" level  latency "},{"role":"assistant","content":"ok"}]}`
	req, err := parseChatRequest(newValidator(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "level", "latency"}, req.Focus)
	assert.False(t, req.Stream)
}

func TestSummarizeBrotli(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write([]byte(`{"json":` + levelsDoc + `,"extractors":["categorical:level"]}`))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	w := postJSON(t, s, buf.String(), "Content-Encoding", "br")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, levelsText, decodeBundle(t, w).Bullets[0].Text)
}

func TestSummarizeRateLimited(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.Config.Server.RateLimit = 0.001
		d.Config.Server.Burst = 1
	})

	first := postJSON(t, s, `{"json":{}}`)
	assert.Equal(t, http.StatusOK, first.Code)

	second := postJSON(t, s, `{"json":{}}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.JSONEq(t, `{"error":"rate_limited"}`, second.Body.String())
}

func TestSummarizeRephrase(t *testing.T) {
	t.Run("narrative added", func(t *testing.T) {
		fake := &fakeRephraser{}
		s := newTestServer(t, func(d *Deps) { d.Rephraser = fake })

		w := postJSON(t, s, `{"json":`+levelsDoc+`,"profile":"logs","rephrase":true,"focus":["level"]}`)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBundle(t, w)
		assert.Equal(t, "Errors dominate.", resp.Narrative)
		assert.Equal(t, levelsText, resp.Bullets[0].Text)
		assert.Equal(t, "terse", fake.hints.Style)
		assert.Equal(t, []string{"level"}, fake.hints.Focus)
	})

	t.Run("failure keeps bullets", func(t *testing.T) {
		s := newTestServer(t, func(d *Deps) { d.Rephraser = &fakeRephraser{err: errors.New("provider down")} })

		w := postJSON(t, s, `{"json":`+levelsDoc+`,"extractors":["categorical:level"],"rephrase":true}`)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBundle(t, w)
		assert.Empty(t, resp.Narrative)
		assert.Len(t, resp.Bullets, 1)
	})

	t.Run("not requested", func(t *testing.T) {
		fake := &fakeRephraser{}
		s := newTestServer(t, func(d *Deps) { d.Rephraser = fake })

		w := postJSON(t, s, `{"json":`+levelsDoc+`}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBundle(t, w).Narrative)
	})
}

func TestSummarizeSSE(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s, `{"json":`+levelsDoc+`,"extractors":["categorical:level"],"stream":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var phases []string
	var first map[string]json.RawMessage
	for _, line := range strings.Split(w.Body.String(), "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			phases = append(phases, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: ") && first == nil:
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &first))
		}
	}
	assert.Equal(t, []string{"summary", "complete"}, phases)
	assert.Contains(t, string(first["bullet"]), `"text":"level: \"error\" (2), \"info\" (1) | total: 3"`)
}

func TestSummarizeSSERejectedBeforeStream(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s, `{"json":[[[[[[[[[1]]]]]]]]],"stream":true}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"depth_limit_exceeded","limit":8}`, w.Body.String())
}

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/summarize-json/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvents(t *testing.T, conn *websocket.Conn) []map[string]json.RawMessage {
	t.Helper()
	var events []map[string]json.RawMessage
	for {
		var e map[string]json.RawMessage
		if err := conn.ReadJSON(&e); err != nil {
			return events
		}
		events = append(events, e)
	}
}

func TestWebSocket(t *testing.T) {
	s := newTestServer(t)
	conn := dialWS(t, s)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"json":`+levelsDoc+`,"extractors":["categorical:level"]}`)))

	events := readEvents(t, conn)
	require.Len(t, events, 2)
	assert.JSONEq(t, `"summary"`, string(events[0]["phase"]))
	assert.Contains(t, string(events[0]["bullet"]), "$.logs[*].level")
	assert.JSONEq(t, `"complete"`, string(events[1]["phase"]))

	var stats struct {
		PathsCount    int   `json:"paths_count"`
		BytesExamined int64 `json:"bytes_examined"`
	}
	require.NoError(t, json.Unmarshal(events[1]["evidence_stats"], &stats))
	assert.Equal(t, 4, stats.PathsCount)
	assert.Equal(t, int64(len(levelsDoc)), stats.BytesExamined)
}

func TestWebSocketRejection(t *testing.T) {
	s := newTestServer(t)
	conn := dialWS(t, s)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"json":{},"profile":"nope"}`)))

	events := readEvents(t, conn)
	require.Len(t, events, 1)
	assert.JSONEq(t, `"error"`, string(events[0]["phase"]))
	assert.JSONEq(t, `{"error":"unknown_profile","available":["logs"]}`, string(events[0]["error"]))
}

func TestProfiles(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/profiles", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"profiles":[{"id":"logs","version":"1.0.0","title":"Application logs","extractors":["categorical:level"]}]}`, w.Body.String())
}

func TestProfilesWithoutRegistry(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Profiles = nil })

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/profiles", nil))
	assert.JSONEq(t, `{"profiles":[]}`, w.Body.String())

	w = postJSON(t, s, `{"json":{},"profile":"logs"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"unknown_profile","available":[]}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","profiles":1}`, w.Body.String())
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	w := postJSON(t, s, `{"json":{}}`, requestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))

	w = postJSON(t, s, `{"json":{}}`)
	_, err := uuid.Parse(w.Header().Get(requestIDHeader))
	assert.NoError(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	postJSON(t, s, `{"json":`+levelsDoc+`,"extractors":["categorical:level"]}`)
	postJSON(t, s, `{"json":{},"profile":"nope"}`)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `evident_requests_total{outcome="ok",transport="http"} 1`)
	assert.Contains(t, body, `evident_rejections_total{code="unknown_profile"} 1`)
	assert.Contains(t, body, `evident_bullets_total{kind="categorical"} 1`)
}

func TestRunShutsDown(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	cancel()
	assert.NoError(t, <-done)
}
