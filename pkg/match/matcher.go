package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPattern matches Travis configuration files anywhere in a tree.
const DefaultPattern = "**/.travis.yml"

// Matcher evaluates glob patterns against object keys.
//
// A Matcher is configured with include and exclude patterns:
//   - Include patterns: key must match at least one
//   - Exclude patterns: key must not match any
//
// The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes          []string
	excludes          []string
	prefixes          []string
	includeHiddenDirs bool
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns that keys must match (at least one).
	// Empty means DefaultPattern.
	Includes []string

	// Excludes are glob patterns that keys must not match (any).
	// Optional: if empty, no excludes are applied.
	Excludes []string

	// IncludeHiddenDirs controls whether keys under dot-directories
	// (.git, .cache) are matched. The final segment is always exempt
	// since the default target is itself a dotfile.
	// Default: false (dot-directories are skipped).
	IncludeHiddenDirs bool
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a Matcher from the given configuration.
//
// Patterns are normalized to handle Windows-style backslash separators
// while preserving escape sequences for literal glob metacharacters.
// An empty include list falls back to DefaultPattern.
func New(cfg Config) (*Matcher, error) {
	raw := cfg.Includes
	if len(raw) == 0 {
		raw = []string{DefaultPattern}
	}

	includes, err := compile(raw)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}

	return &Matcher{
		includes:          includes,
		excludes:          excludes,
		prefixes:          DerivePrefixes(includes),
		includeHiddenDirs: cfg.IncludeHiddenDirs,
	}, nil
}

// compile normalizes and validates a pattern list.
func compile(raw []string) ([]string, error) {
	patterns := make([]string, 0, len(raw))
	for _, r := range raw {
		normalized := NormalizePattern(r)
		if !doublestar.ValidatePattern(normalized) {
			return nil, &PatternError{Pattern: r, Err: ErrInvalidPattern}
		}
		patterns = append(patterns, normalized)
	}
	return patterns, nil
}

// Match returns true if the key matches the include/exclude patterns.
//
// A key matches if:
//  1. It matches at least one include pattern
//  2. It does not match any exclude pattern
//  3. It is not under a dot-directory (unless IncludeHiddenDirs is true)
//
// Keys are matched as-is (not normalized) since object keys are opaque
// strings where any character is valid.
func (m *Matcher) Match(key string) bool {
	if !m.includeHiddenDirs && InHiddenDir(key) {
		return false
	}

	matched := false
	for _, inc := range m.includes {
		if matchPattern(inc, key) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, exc := range m.excludes {
		if matchPattern(exc, key) {
			return false
		}
	}

	return true
}

// Prefixes returns the deduplicated listing prefixes for the include
// patterns. Sources can use these to filter list operations, reducing the
// number of keys that need to be retrieved and evaluated.
//
// An empty string in the result means at least one pattern requires a full
// listing (no prefix filter possible).
func (m *Matcher) Prefixes() []string {
	return m.prefixes
}

// IncludePatterns returns the normalized include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the normalized exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

// HasEmptyPrefix returns true if any prefix is empty (requires full listing).
func (m *Matcher) HasEmptyPrefix() bool {
	for _, p := range m.prefixes {
		if p == "" {
			return true
		}
	}
	return false
}

// matchPattern matches a key against a doublestar pattern.
func matchPattern(pattern, key string) bool {
	matched, err := doublestar.Match(pattern, key)
	if err != nil {
		// Patterns are validated at construction time.
		return false
	}
	return matched
}
