// Package match selects configuration keys with doublestar glob patterns
// and derives static prefixes so sources can narrow their listings.
package match

import (
	"strings"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

// NormalizePattern converts a user-provided glob pattern to canonical form.
//
// Normalization rules:
//   - Unescaped backslashes converted to forward slashes (Windows compat)
//   - Escaped backslashes and glob metacharacters preserved (\*, \?, \[, etc.)
//   - Leading slash, trailing slash, and // sequences preserved
//
// This allows Windows users to write patterns like "repos\**\.travis.yml"
// while preserving escape semantics for literal matching.
//
// Examples:
//
//	"repos/**/.travis.yml"  → "repos/**/.travis.yml"  (unchanged)
//	"repos\**\.travis.yml"  → "repos/**/.travis.yml"  (backslash → slash)
//	"repos/file\*.yml"      → "repos/file\*.yml"      (escape preserved)
func NormalizePattern(pattern string) string {
	if pattern == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\\' && i+1 < len(runes) {
			next := runes[i+1]
			// Escape sequence for a glob metacharacter: preserve it.
			if strings.ContainsRune(globEscapable, next) {
				result.WriteRune('\\')
				result.WriteRune(next)
				i++
				continue
			}
			// Unescaped backslash - convert to forward slash
			result.WriteRune('/')
			continue
		}

		if r == '\\' {
			// Trailing backslash - convert to forward slash
			result.WriteRune('/')
			continue
		}

		result.WriteRune(r)
	}

	return result.String()
}

// InHiddenDir reports whether any directory segment of the key starts with a
// dot. The final segment is exempt: the keys this package exists to match are
// themselves dotfiles (.travis.yml), but trees like .git or .cache should
// stay out of a scan unless asked for.
//
// Examples:
//
//	"repos/a/.travis.yml"      → false (only the final segment is dotted)
//	".git/hooks/.travis.yml"   → true
//	"repos/.cache/x/file.yml"  → true
//	"repos/a/config.yml"       → false
func InHiddenDir(key string) bool {
	if key == "" {
		return false
	}

	segments := strings.Split(key, "/")
	for _, seg := range segments[:len(segments)-1] {
		if seg != "" && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// HasTrailingSlash returns true if the key ends with a slash.
// This typically indicates a prefix rather than an object.
func HasTrailingSlash(key string) bool {
	return len(key) > 0 && key[len(key)-1] == '/'
}

// EnsureTrailingSlash adds a trailing slash if not present.
// Returns empty string unchanged.
func EnsureTrailingSlash(key string) string {
	if key == "" {
		return ""
	}
	if !HasTrailingSlash(key) {
		return key + "/"
	}
	return key
}
