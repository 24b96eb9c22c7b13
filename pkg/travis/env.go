package travis

import (
	"encoding/json"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable conventions recognized by lint and expansion.
const (
	// SelectorVar names the task profile a generic script invocation runs
	// (tox reads it to pick the environment). Lint requires exactly one
	// assignment of the configured selector per job.
	SelectorVar = "TOXENV"

	// PythonVersionVar selects the interpreter version on hosts whose
	// installer has no native version selector (macOS shell jobs).
	PythonVersionVar = "PYTHON_VERSION"
)

// EnvVar is a single KEY=value assignment parsed from an env entry.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// String returns the assignment in KEY=value form.
func (v EnvVar) String() string {
	return v.Name + "=" + v.Value
}

// EnvList holds the raw env entries of a job or axis. Each entry is a string
// of one or more whitespace-separated KEY=value assignments; a single scalar
// in the source decodes as a one-entry list.
type EnvList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *EnvList) UnmarshalYAML(value *yaml.Node) error {
	items, err := decodeScalarOrList(value)
	if err != nil {
		return err
	}
	*e = items
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (e EnvList) MarshalYAML() (interface{}, error) {
	return []string(e), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *EnvList) UnmarshalJSON(data []byte) error {
	items, err := decodeJSONScalarOrList(data)
	if err != nil {
		return err
	}
	*e = items
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e EnvList) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(e))
}

// Vars parses every entry into assignments, in document order. Tokens that
// are not assignments are skipped here; Malformed reports them.
func (e EnvList) Vars() []EnvVar {
	var vars []EnvVar
	for _, entry := range e {
		parsed, _ := ParseEnvEntry(entry)
		vars = append(vars, parsed...)
	}
	return vars
}

// Malformed returns tokens that are not KEY=value assignments, such as a
// bare word or an entry starting with "=".
func (e EnvList) Malformed() []string {
	var bad []string
	for _, entry := range e {
		_, m := ParseEnvEntry(entry)
		bad = append(bad, m...)
	}
	return bad
}

// Lookup returns the value of the last assignment of name, matching the
// shell semantics of later assignments overriding earlier ones.
func (e EnvList) Lookup(name string) (string, bool) {
	value := ""
	found := false
	for _, v := range e.Vars() {
		if v.Name == name {
			value = v.Value
			found = true
		}
	}
	return value, found
}

// Count returns how many assignments of name appear across all entries.
func (e EnvList) Count(name string) int {
	n := 0
	for _, v := range e.Vars() {
		if v.Name == name {
			n++
		}
	}
	return n
}

// ParseEnvEntry splits one env entry into assignments. Tokens are separated
// by unquoted whitespace; each token splits on its first "=". Values keep
// embedded spaces when quoted: `A="x y"` parses as one assignment.
func ParseEnvEntry(entry string) (vars []EnvVar, malformed []string) {
	for _, token := range splitEnvTokens(entry) {
		eq := strings.Index(token, "=")
		if eq <= 0 {
			malformed = append(malformed, token)
			continue
		}
		vars = append(vars, EnvVar{
			Name:  token[:eq],
			Value: unquote(token[eq+1:]),
		})
	}
	return vars, malformed
}

// CanonicalEnv returns the canonical text of an assignment list: sorted by
// name then value, joined with single spaces. Reordered but equal lists
// canonicalize identically, which is what duplicate-job detection compares.
func CanonicalEnv(vars []EnvVar) string {
	if len(vars) == 0 {
		return ""
	}
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// splitEnvTokens splits on whitespace outside single or double quotes.
func splitEnvTokens(entry string) []string {
	var tokens []string
	var b strings.Builder
	inSingle := false
	inDouble := false

	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}

	for _, r := range entry {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteRune(r)
		case r == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteRune(r)
		case (r == ' ' || r == '\t') && !inSingle && !inDouble:
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// unquote strips one layer of matching surrounding quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
