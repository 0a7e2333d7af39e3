package redact

// NamedRegex is a user-supplied detector.
type NamedRegex struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Pattern string `json:"pattern" yaml:"pattern" mapstructure:"pattern"`
}

// Rules is a set of path and value redaction rules.
type Rules struct {
	DenyPaths    []string     `json:"deny_paths,omitempty" yaml:"deny_paths" mapstructure:"deny_paths"`
	AllowPaths   []string     `json:"allow_paths,omitempty" yaml:"allow_paths" mapstructure:"allow_paths"`
	ExtraRegexes []NamedRegex `json:"extra_regexes,omitempty" yaml:"extra_regexes" mapstructure:"extra_regexes"`
}

// DefaultDenyPaths are always denied unless a request allows them.
func DefaultDenyPaths() []string {
	return []string{"$.access_token", "$..password", "$..secret"}
}

// Union combines two rule sets without removing anything.
func Union(a, b Rules) Rules {
	return Rules{
		DenyPaths:    dedupe(append(append([]string{}, a.DenyPaths...), b.DenyPaths...)),
		AllowPaths:   dedupe(append(append([]string{}, a.AllowPaths...), b.AllowPaths...)),
		ExtraRegexes: mergeRegexes(a.ExtraRegexes, b.ExtraRegexes),
	}
}

// Merge builds the effective rule set for one request:
//
//	deny  = (global.deny ∪ request.deny) − request.allow
//	allow = request.allow
//
// Regexes from both sets apply; a request regex replaces a global one with
// the same name.
func Merge(global, request Rules) Rules {
	allow := dedupe(request.AllowPaths)
	allowed := make(map[string]bool, len(allow))
	for _, p := range allow {
		allowed[p] = true
	}

	var deny []string
	for _, p := range dedupe(append(append([]string{}, global.DenyPaths...), request.DenyPaths...)) {
		if !allowed[p] {
			deny = append(deny, p)
		}
	}

	return Rules{
		DenyPaths:    deny,
		AllowPaths:   allow,
		ExtraRegexes: mergeRegexes(global.ExtraRegexes, request.ExtraRegexes),
	}
}

func mergeRegexes(global, request []NamedRegex) []NamedRegex {
	override := make(map[string]NamedRegex, len(request))
	for _, nr := range request {
		override[nr.Name] = nr
	}
	out := make([]NamedRegex, 0, len(global)+len(request))
	seen := make(map[string]bool)
	for _, nr := range global {
		if r, ok := override[nr.Name]; ok {
			nr = r
		}
		if !seen[nr.Name] {
			seen[nr.Name] = true
			out = append(out, nr)
		}
	}
	for _, nr := range request {
		if !seen[nr.Name] {
			seen[nr.Name] = true
			out = append(out, nr)
		}
	}
	return out
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
