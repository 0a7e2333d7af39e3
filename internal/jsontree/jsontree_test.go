package jsontree

import (
	"errors"
	"strings"
	"testing"
)

func nested(depth int) string {
	return strings.Repeat("[", depth) + strings.Repeat("]", depth)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "object keeps order", input: `{"b":1,"a":[true,null,"x"]}`, want: `{"b":1,"a":[true,null,"x"]}`},
		{name: "number literal kept", input: `{"n":1.50,"big":12345678901234567890}`, want: `{"n":1.50,"big":12345678901234567890}`},
		{name: "scalar root", input: ` "hi" `, want: `"hi"`},
		{name: "duplicate key keeps first position", input: `{"a":1,"b":2,"a":3}`, want: `{"a":3,"b":2}`},
		{name: "empty input", input: ``, wantErr: ErrSyntax},
		{name: "truncated", input: `{"a":[1,2`, wantErr: ErrSyntax},
		{name: "trailing data", input: `{} {}`, wantErr: ErrSyntax},
		{name: "garbage", input: `{"a":}`, wantErr: ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decode([]byte(tt.input), 64)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			got, err := v.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Decode() round trip = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeDepthLimit(t *testing.T) {
	const limit = 8

	if _, err := Decode([]byte(nested(limit)), limit); err != nil {
		t.Errorf("Decode() at exactly the limit error = %v", err)
	}

	_, err := Decode([]byte(nested(limit+1)), limit)
	var depthErr *DepthError
	if !errors.As(err, &depthErr) {
		t.Fatalf("Decode() at limit+1 error = %v, want *DepthError", err)
	}
	if depthErr.Limit != limit {
		t.Errorf("DepthError.Limit = %d, want %d", depthErr.Limit, limit)
	}

	// Objects and arrays count together; scalars do not add depth.
	mixed := `{"a":[{"b":[1]}]}`
	if _, err := Decode([]byte(mixed), 4); err != nil {
		t.Errorf("Decode(mixed, 4) error = %v", err)
	}
	if _, err := Decode([]byte(mixed), 3); !errors.As(err, &depthErr) {
		t.Errorf("Decode(mixed, 3) error = %v, want *DepthError", err)
	}
}

func TestDecodeDepthLimitIgnoresUnbalancedTail(t *testing.T) {
	// The tail is never read: rejection happens at the first container past the limit.
	input := nested(5)[:5] + "not json at all"
	var depthErr *DepthError
	if _, err := Decode([]byte(input), 4); !errors.As(err, &depthErr) {
		t.Errorf("Decode() error = %v, want *DepthError", err)
	}
}

func TestPathString(t *testing.T) {
	tests := []struct {
		name string
		path Path
		want string
	}{
		{name: "root", path: Path{}, want: "$"},
		{name: "dotted", path: Path{Key("users"), Index(2), Key("email")}, want: "$.users[2].email"},
		{name: "wildcard", path: Path{Key("logs"), Wildcard(), Key("level")}, want: "$.logs[*].level"},
		{name: "complex key", path: Path{Key("first name")}, want: "$['first name']"},
		{name: "leading digit", path: Path{Key("1abc")}, want: "$['1abc']"},
		{name: "empty key", path: Path{Key("")}, want: "$['']"},
		{name: "quote escaped", path: Path{Key("it's")}, want: `$['it\'s']`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.path.String()
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			parsed, err := ParsePath(got)
			if err != nil {
				t.Fatalf("ParsePath(%q) error = %v", got, err)
			}
			if parsed.String() != got {
				t.Errorf("ParsePath(%q).String() = %q", got, parsed.String())
			}
		})
	}
}

func TestParsePathErrors(t *testing.T) {
	for _, in := range []string{"", "users", "$.", "$[", "$[x]", "$['open", "$[-1]", "$..a"} {
		t.Run(in, func(t *testing.T) {
			if _, err := ParsePath(in); !errors.Is(err, ErrPath) {
				t.Errorf("ParsePath(%q) error = %v, want ErrPath", in, err)
			}
		})
	}
}

func TestFind(t *testing.T) {
	doc, err := Decode([]byte(`{"logs":[{"level":"info"},{"msg":"x"},{"level":"error"}],"it's":{"k":1}}`), 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	tests := []struct {
		path  string
		paths []string
	}{
		{path: "$", paths: []string{"$"}},
		{path: "$.logs[*].level", paths: []string{"$.logs[0].level", "$.logs[2].level"}},
		{path: "$.logs[1].msg", paths: []string{"$.logs[1].msg"}},
		{path: `$['it\'s'].k`, paths: []string{`$['it\'s'].k`}},
		{path: "$.logs[9]", paths: nil},
		{path: "$.missing", paths: nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			matches, err := Lookup(doc, tt.path)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if len(matches) != len(tt.paths) {
				t.Fatalf("Lookup() returned %d matches, want %d", len(matches), len(tt.paths))
			}
			for i, m := range matches {
				if m.Path.String() != tt.paths[i] {
					t.Errorf("match[%d] = %s, want %s", i, m.Path, tt.paths[i])
				}
			}
		})
	}
}

func TestWalkVisitsEveryNodeOnce(t *testing.T) {
	doc, err := Decode([]byte(`{"a":[1,{"b":null}],"c":"x"}`), 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	var got []string
	Walk(doc, func(p Path, v *Value) bool {
		got = append(got, p.String())
		return true
	})

	want := []string{"$", "$.a", "$.a[0]", "$.a[1]", "$.a[1].b", "$.c"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("Walk() order = %v, want %v", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	doc, err := Decode([]byte(`{"a":{"b":"x"}}`), 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	cp := doc.Clone()
	inner, _ := cp.Get("a")
	inner.Set("b", String("y"))

	orig, _ := doc.Get("a")
	b, _ := orig.Get("b")
	if b.Str() != "x" {
		t.Errorf("original mutated through clone: b = %q", b.Str())
	}
	if doc.Equal(cp) {
		t.Error("Equal() = true after modifying clone")
	}
}
