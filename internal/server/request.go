package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/go-playground/validator/v10"

	"github.com/bimmerbailey/evident/internal/profile"
	"github.com/bimmerbailey/evident/internal/redact"
	"github.com/bimmerbailey/evident/internal/rejection"
)

// SummarizeRequest is the body of POST /v1/summarize-json and the first
// WebSocket message.
type SummarizeRequest struct {
	JSON             json.RawMessage `json:"json" validate:"required"`
	BaselineJSON     json.RawMessage `json:"baseline_json,omitempty"`
	Profile          string          `json:"profile,omitempty" validate:"omitempty,max=64"`
	Focus            []string        `json:"focus,omitempty" validate:"omitempty,max=32,dive,required,max=256"`
	Extractors       []string        `json:"extractors,omitempty" validate:"omitempty,max=64,dive,required,max=512"`
	Redaction        *redact.Rules   `json:"redaction,omitempty"`
	Length           string          `json:"length,omitempty" validate:"omitempty,oneof=short medium long"`
	Timezone         string          `json:"timezone,omitempty" validate:"omitempty,max=64"`
	Stream           bool            `json:"stream,omitempty"`
	Backfill         *bool           `json:"backfill,omitempty"`
	DisableRedaction bool            `json:"disable_redaction,omitempty"`
	Rephrase         bool            `json:"rephrase,omitempty"`
	RootSummary      bool            `json:"include_root_summary,omitempty"`
}

// params converts the request into resolver input.
func (r *SummarizeRequest) params() profile.Params {
	p := profile.Params{
		Focus:            r.Focus,
		Extractors:       r.Extractors,
		Length:           r.Length,
		Timezone:         r.Timezone,
		Backfill:         r.Backfill,
		DisableRedaction: r.DisableRedaction,
		RootSummary:      r.RootSummary,
	}
	if r.Redaction != nil {
		p.Redaction = *r.Redaction
	}
	return p
}

// parseRequest decodes and validates a request body. A body that is not
// JSON at all is invalid_json; a well-formed body with bad fields is
// invalid_request. The document fields are cut out of the envelope
// without a nesting limit so that the guard, not the envelope decoder,
// reports deep documents.
func parseRequest(v *validator.Validate, body []byte) (*SummarizeRequest, error) {
	req, _, err := decodeRequest(v, body)
	return req, err
}

func decodeRequest(v *validator.Validate, body []byte) (*SummarizeRequest, envelope, error) {
	env, err := splitEnvelope(body)
	if err != nil {
		return nil, env, err
	}
	var req SummarizeRequest
	if err := json.Unmarshal(env.rest, &req); err != nil {
		return nil, env, rejection.InvalidRequest("malformed request body", err)
	}
	req.JSON, req.BaselineJSON = env.document, env.baseline
	if isNull(req.JSON) {
		req.JSON = nil
	}
	if isNull(req.BaselineJSON) {
		req.BaselineJSON = nil
	}
	if err := v.Struct(&req); err != nil {
		return nil, env, rejection.InvalidRequest(validationDetails(err), err)
	}
	return &req, env, nil
}

// ChatMessage is one conversation turn sent to POST /v1/chat.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"max=65536"`
}

// ChatRequest carries the conversation; the remaining members of the body
// are a SummarizeRequest.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,max=64,dive"`
}

// lastUserFocus splits the newest user message into focus tokens.
func (r *ChatRequest) lastUserFocus() []string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return strings.Fields(r.Messages[i].Content)
		}
	}
	return nil
}

// parseChatRequest decodes a chat body. Focus tokens from the last user
// message follow the explicit focus list, duplicates dropped. Chat
// answers are never streamed.
func parseChatRequest(v *validator.Validate, body []byte) (*SummarizeRequest, error) {
	req, env, err := decodeRequest(v, body)
	if err != nil {
		return nil, err
	}
	var chat ChatRequest
	if err := json.Unmarshal(env.rest, &chat); err != nil {
		return nil, rejection.InvalidRequest("malformed request body", err)
	}
	if err := v.Struct(&chat); err != nil {
		return nil, rejection.InvalidRequest(validationDetails(err), err)
	}

	seen := make(map[string]bool, len(req.Focus))
	focus := make([]string, 0, len(req.Focus))
	for _, f := range append(append([]string(nil), req.Focus...), chat.lastUserFocus()...) {
		if !seen[f] {
			seen[f] = true
			focus = append(focus, f)
		}
	}
	req.Focus = focus
	req.Stream = false
	return req, nil
}

// envelope is a request body with the document fields held apart.
type envelope struct {
	document json.RawMessage
	baseline json.RawMessage
	rest     []byte
}

// splitEnvelope walks the top-level members of body. Nested values are
// skipped by bracket matching, never decoded.
func splitEnvelope(body []byte) (envelope, error) {
	value, kind, end, err := jsonparser.Get(body)
	if err != nil || len(bytes.TrimSpace(body[end:])) > 0 {
		return envelope{}, rejection.InvalidJSON(errors.New("request body is not valid JSON"))
	}
	if kind != jsonparser.Object {
		return envelope{}, rejection.InvalidRequest("malformed request body", fmt.Errorf("request body is a JSON %s, want object", kind))
	}

	var env envelope
	var rest bytes.Buffer
	rest.WriteByte('{')
	err = jsonparser.ObjectEach(value, func(key, raw []byte, kind jsonparser.ValueType, _ int) error {
		if kind == jsonparser.String {
			raw = append(append([]byte{'"'}, raw...), '"')
		}
		switch name := string(key); {
		case strings.EqualFold(name, "json"):
			env.document = raw
		case strings.EqualFold(name, "baseline_json"):
			env.baseline = raw
		default:
			if rest.Len() > 1 {
				rest.WriteByte(',')
			}
			k, _ := json.Marshal(name)
			rest.Write(k)
			rest.WriteByte(':')
			rest.Write(raw)
		}
		return nil
	})
	if err != nil {
		return envelope{}, rejection.InvalidJSON(fmt.Errorf("request body is not valid JSON: %w", err))
	}
	rest.WriteByte('}')
	env.rest = rest.Bytes()
	return env, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Namespace()
		if i := strings.IndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", name, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", name, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// newValidator reports field names by their JSON tags.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
