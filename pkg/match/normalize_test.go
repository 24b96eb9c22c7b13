package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Basic cases
		{"empty string", "", ""},
		{"simple path", "repos/a/.travis.yml", "repos/a/.travis.yml"},
		{"glob pattern", "repos/**/.travis.yml", "repos/**/.travis.yml"},

		// Backslash to forward slash conversion (Windows compat)
		{"backslashes converted", "repos\\a\\.travis.yml", "repos/a/.travis.yml"},
		{"mixed slashes", "repos\\a/.travis.yml", "repos/a/.travis.yml"},
		{"trailing backslash", "repos\\a\\", "repos/a/"},

		// Escape sequences preserved
		{"escaped asterisk", "repos/file\\*.yml", "repos/file\\*.yml"},
		{"escaped question", "repos/file\\?.yml", "repos/file\\?.yml"},
		{"escaped bracket", "repos/file\\[0-9\\].yml", "repos/file\\[0-9\\].yml"},
		{"escaped brace", "repos/file\\{a,b\\}.yml", "repos/file\\{a,b\\}.yml"},
		{"escaped backslash", "repos/file\\\\.yml", "repos/file\\\\.yml"},

		// Mixed escapes and path separators
		{"windows path with escape", "repos\\2024\\file\\*.yml", "repos/2024/file\\*.yml"},
		{"escape at end", "repos\\file\\*", "repos/file\\*"},

		// Leading slash and // preserved (pattern identity)
		{"leading slash preserved", "/repos/a/.travis.yml", "/repos/a/.travis.yml"},
		{"double slashes preserved", "repos//a//.travis.yml", "repos//a//.travis.yml"},

		// Edge cases
		{"single backslash", "\\", "/"},
		{"double backslash", "\\\\", "\\\\"}, // \\ is escaped backslash
		{"only slashes", "///", "///"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePattern(tt.input))
		})
	}
}

func TestInHiddenDir(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected bool
	}{
		{"empty string", "", false},
		{"regular file", "repos/a/config.yml", false},
		{"dotfile final segment exempt", "repos/a/.travis.yml", false},
		{"dotfile at root exempt", ".travis.yml", false},
		{"hidden first dir", ".git/config", true},
		{"hidden middle dir", "repos/.cache/x/.travis.yml", true},
		{"double dot segment", "repos/../x.yml", true},
		{"dot only segment", "repos/./x.yml", true},
		{"underscore is not hidden", "_temporary/file.yml", false},
		{"dot at segment end", "repos/a./x.yml", false},

		// Keys with backslashes are opaque - no separator handling
		{"backslash in key", "repos\\.cache\\x.yml", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InHiddenDir(tt.key))
		})
	}
}

func TestHasTrailingSlash(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected bool
	}{
		{"empty string", "", false},
		{"no trailing slash", "repos/a/config.yml", false},
		{"with trailing slash", "repos/a/", true},
		{"only slash", "/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasTrailingSlash(tt.key))
		})
	}
}

func TestEnsureTrailingSlash(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"empty string", "", ""},
		{"no trailing slash", "repos/a", "repos/a/"},
		{"with trailing slash", "repos/a/", "repos/a/"},
		{"single segment", "repos", "repos/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EnsureTrailingSlash(tt.key))
		})
	}
}

// Benchmark for NormalizePattern since it's called at matcher construction
func BenchmarkNormalizePattern(b *testing.B) {
	pattern := "repos\\2024\\**\\.travis.yml"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NormalizePattern(pattern)
	}
}

// Benchmark for InHiddenDir since it's called per listed key
func BenchmarkInHiddenDir(b *testing.B) {
	key := "repos/org/project/subdir/.travis.yml"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InHiddenDir(key)
	}
}
