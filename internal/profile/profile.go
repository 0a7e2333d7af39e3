// Package profile loads named summarization presets and resolves them,
// together with request parameters and process configuration, into engine
// options.
package profile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/bimmerbailey/evident/internal/config"
	"github.com/bimmerbailey/evident/internal/extract"
	"github.com/bimmerbailey/evident/internal/redact"
)

//go:embed schema.json
var schemaJSON []byte

var profileSchema = mustCompileSchema(schemaJSON)

func mustCompileSchema(data []byte) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(data)
	if err != nil {
		panic(fmt.Sprintf("compile profile schema: %v", err))
	}
	return schema
}

// ErrInvalid marks a profile that failed schema or semantic validation.
var ErrInvalid = errors.New("invalid profile")

// Profile is a named preset of extractors, defaults and redaction rules.
type Profile struct {
	ID          string       `yaml:"id" json:"id"`
	Version     string       `yaml:"version" json:"version"`
	Title       string       `yaml:"title" json:"title,omitempty"`
	Description string       `yaml:"description" json:"description,omitempty"`
	Defaults    Defaults     `yaml:"defaults" json:"defaults"`
	Extractors  []string     `yaml:"extractors" json:"extractors,omitempty"`
	Backfill    bool         `yaml:"backfill" json:"backfill"`
	LLMHints    Hints        `yaml:"llm_hints" json:"llm_hints"`
	Redaction   redact.Rules `yaml:"redaction" json:"redaction"`
	Limits      Limits       `yaml:"limits" json:"limits"`
	Time        Time         `yaml:"time" json:"time"`

	// Source is the file the profile was read from.
	Source string `yaml:"-" json:"-"`
}

// Defaults apply when the request leaves a field empty.
type Defaults struct {
	Focus  []string `yaml:"focus" json:"focus,omitempty"`
	Length string   `yaml:"length" json:"length,omitempty"`
}

// Hints steer the optional rephrasing stage.
type Hints struct {
	Style        string `yaml:"style" json:"style,omitempty"`
	Instructions string `yaml:"instructions" json:"instructions,omitempty"`
}

// Limits override engine limits. Zero means unset.
type Limits struct {
	TopK               int     `yaml:"topk" json:"topk,omitempty"`
	MaxCategories      int     `yaml:"max_categories" json:"max_categories,omitempty"`
	DominanceThreshold float64 `yaml:"dominance_threshold" json:"dominance_threshold,omitempty"`
	NumericDominance   float64 `yaml:"numeric_dominance" json:"numeric_dominance,omitempty"`
	DiffExamples       int     `yaml:"diff_examples" json:"diff_examples,omitempty"`
}

// Time holds timestamp defaults.
type Time struct {
	Timezone          string `yaml:"timezone" json:"timezone,omitempty"`
	TimebucketDefault string `yaml:"timebucket_default" json:"timebucket_default,omitempty"`
}

// Parse decodes and validates one profile document. source is used in
// error messages only.
func Parse(data []byte, source string) (*Profile, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w %s: parse yaml: %v", ErrInvalid, source, err)
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalid, source, err)
	}
	if result := profileSchema.ValidateJSON(doc); !result.IsValid() {
		return nil, fmt.Errorf("%w %s: %s", ErrInvalid, source, schemaErrors(result.Errors))
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w %s: decode: %v", ErrInvalid, source, err)
	}
	p.Source = source
	if err := p.check(); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalid, source, err)
	}
	return &p, nil
}

// check performs the validation the schema cannot express.
func (p *Profile) check() error {
	bucket := extract.BucketHour
	if p.Time.TimebucketDefault != "" {
		b, err := extract.ParseBucket(p.Time.TimebucketDefault)
		if err != nil {
			return err
		}
		bucket = b
	}
	if _, err := extract.ParseDirectives(p.Extractors, bucket); err != nil {
		return err
	}
	if _, err := redact.New(p.Redaction); err != nil {
		return err
	}
	if p.Time.Timezone != "" {
		if _, err := config.LoadLocation(p.Time.Timezone); err != nil {
			return err
		}
	}
	return nil
}

func schemaErrors(errs map[string]*jsonschema.EvaluationError) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, errs[k]))
	}
	if len(parts) == 0 {
		return "schema validation failed"
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}
