package match

import (
	"sort"
	"strings"
)

// DerivePrefix extracts the longest static prefix from a glob pattern.
//
// The prefix is the portion of the pattern before any unescaped glob
// metacharacter, truncated to the last complete path segment. Escaped
// metacharacters (\*, \?, \[, \{) are treated as literals and included in
// the prefix with their escapes removed, since object keys are opaque
// strings without escape syntax.
//
// Examples:
//
//	"repos/2024/**/.travis.yml" → "repos/2024/"
//	"**/.travis.yml"            → ""
//	"repos/team-{a,b}/*.yml"    → "repos/"
//	"exact/path/.travis.yml"    → "exact/path/.travis.yml"
//	"repos/file\*.yml"          → "repos/file*.yml" (escaped * is literal)
func DerivePrefix(pattern string) string {
	if pattern == "" {
		return ""
	}

	pattern = NormalizePattern(pattern)

	metaIdx := findFirstUnescapedMeta(pattern)
	if metaIdx == -1 {
		// No unescaped metacharacters: the pattern is an exact key.
		return unescapePrefix(pattern)
	}
	if metaIdx == 0 {
		return ""
	}

	prefix := pattern[:metaIdx]

	// Truncate to last complete path segment so "repos/team-" does not
	// leak a partial segment to the glob evaluation (the prefix is still
	// sound for listing, but the segment boundary keeps dedup sane).
	lastSlash := strings.LastIndex(prefix, "/")
	if lastSlash >= 0 {
		return unescapePrefix(prefix[:lastSlash+1])
	}

	return ""
}

// findFirstUnescapedMeta returns the index of the first unescaped glob
// metacharacter (* ? [ {) in the pattern, or -1 if none found.
//
// A plain IndexAny cannot distinguish literal metacharacters (escaped with
// \) from glob metacharacters; patterns like "repos/file\*.yml" must not
// terminate the prefix at the escaped asterisk.
func findFirstUnescapedMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]

		if c == '\\' && i+1 < len(pattern) {
			next := pattern[i+1]
			if next == '*' || next == '?' || next == '[' || next == '{' || next == '\\' {
				i++ // Skip the escaped character
				continue
			}
			continue
		}

		if c == '*' || c == '?' || c == '[' || c == '{' {
			return i
		}
	}
	return -1
}

// unescapePrefix removes escape backslashes from glob metacharacters,
// converting the pattern prefix to the actual key prefix sent to a source.
func unescapePrefix(prefix string) string {
	if !strings.ContainsRune(prefix, '\\') {
		return prefix
	}

	var result strings.Builder
	result.Grow(len(prefix))

	for i := 0; i < len(prefix); i++ {
		c := prefix[i]

		if c == '\\' && i+1 < len(prefix) {
			next := prefix[i+1]
			if next == '*' || next == '?' || next == '[' || next == ']' ||
				next == '{' || next == '}' || next == '\\' {
				result.WriteByte(next)
				i++
				continue
			}
		}

		result.WriteByte(c)
	}

	return result.String()
}

// SplitPattern cuts a glob pattern into its static prefix and the glob
// remainder. The prefix is DerivePrefix's segment-aligned, unescaped value;
// the glob keeps its escapes since it feeds pattern evaluation. A pattern
// with no unescaped metacharacters splits into (whole key, "").
//
// Examples:
//
//	"repos/2024/**/.travis.yml" → ("repos/2024/", "**/.travis.yml")
//	"**/.travis.yml"            → ("", "**/.travis.yml")
//	"exact/path/.travis.yml"    → ("exact/path/.travis.yml", "")
//	"repos/file\*.yml"          → ("repos/file*.yml", "")
func SplitPattern(pattern string) (prefix, glob string) {
	if pattern == "" {
		return "", ""
	}

	pattern = NormalizePattern(pattern)

	metaIdx := findFirstUnescapedMeta(pattern)
	if metaIdx == -1 {
		return unescapePrefix(pattern), ""
	}
	if metaIdx == 0 {
		return "", pattern
	}

	lastSlash := strings.LastIndex(pattern[:metaIdx], "/")
	if lastSlash < 0 {
		return "", pattern
	}
	return unescapePrefix(pattern[:lastSlash+1]), pattern[lastSlash+1:]
}

// DerivePrefixes extracts prefixes from multiple patterns and deduplicates
// them. Parent prefixes subsume children, and the result is sorted for
// deterministic ordering.
//
// Examples:
//
//	["repos/a/**", "repos/b/**"] → ["repos/a/", "repos/b/"]
//	["repos/**", "repos/a/**"]   → ["repos/"]  (parent subsumes child)
//	["**/.travis.yml"]           → [""]        (empty = full listing)
func DerivePrefixes(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}

	prefixes := make([]string, 0, len(patterns))
	for _, p := range patterns {
		prefixes = append(prefixes, DerivePrefix(p))
	}

	return deduplicatePrefixes(prefixes)
}

// deduplicatePrefixes removes prefixes that are subsumed by shorter ones.
// An empty string subsumes everything (it means full listing).
func deduplicatePrefixes(prefixes []string) []string {
	if len(prefixes) == 0 {
		return nil
	}

	for _, p := range prefixes {
		if p == "" {
			return []string{""}
		}
	}

	// Sort by length (shortest first) for the subsumption check
	sorted := make([]string, len(prefixes))
	copy(sorted, prefixes)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i]) < len(sorted[j])
	})

	result := make([]string, 0, len(sorted))
	for _, candidate := range sorted {
		subsumed := false
		for _, existing := range result {
			if strings.HasPrefix(candidate, existing) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			result = append(result, candidate)
		}
	}

	sort.Strings(result)

	return result
}

// IsGlobPattern returns true if the pattern contains unescaped glob
// metacharacters. Escape-aware: "repos/file\*.yml" is a literal key, not a
// pattern.
func IsGlobPattern(pattern string) bool {
	return findFirstUnescapedMeta(pattern) != -1
}
