package travis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseEnvEntry(t *testing.T) {
	tests := []struct {
		name          string
		entry         string
		want          []EnvVar
		wantMalformed []string
	}{
		{
			name:  "single assignment",
			entry: "TOXENV=py37",
			want:  []EnvVar{{Name: "TOXENV", Value: "py37"}},
		},
		{
			name:  "multiple assignments in one entry",
			entry: "TOXENV=py36 PYTHON_VERSION=3.6.8",
			want: []EnvVar{
				{Name: "TOXENV", Value: "py36"},
				{Name: "PYTHON_VERSION", Value: "3.6.8"},
			},
		},
		{
			name:  "double-quoted value keeps spaces",
			entry: `FLAGS="-v --tb short"`,
			want:  []EnvVar{{Name: "FLAGS", Value: "-v --tb short"}},
		},
		{
			name:  "single-quoted value keeps spaces",
			entry: `MSG='hello world' TOXENV=py37`,
			want: []EnvVar{
				{Name: "MSG", Value: "hello world"},
				{Name: "TOXENV", Value: "py37"},
			},
		},
		{
			name:  "empty value",
			entry: "DEBUG=",
			want:  []EnvVar{{Name: "DEBUG", Value: ""}},
		},
		{
			name:          "bare word is malformed",
			entry:         "TOXENV",
			wantMalformed: []string{"TOXENV"},
		},
		{
			name:          "leading equals is malformed",
			entry:         "=py37",
			wantMalformed: []string{"=py37"},
		},
		{
			name:          "mixed valid and malformed",
			entry:         "TOXENV=py37 oops",
			want:          []EnvVar{{Name: "TOXENV", Value: "py37"}},
			wantMalformed: []string{"oops"},
		},
		{
			name:  "tabs separate tokens",
			entry: "A=1\tB=2",
			want: []EnvVar{
				{Name: "A", Value: "1"},
				{Name: "B", Value: "2"},
			},
		},
		{
			name:  "empty entry",
			entry: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars, malformed := ParseEnvEntry(tt.entry)
			assert.Equal(t, tt.want, vars)
			assert.Equal(t, tt.wantMalformed, malformed)
		})
	}
}

func TestEnvList_UnmarshalYAML(t *testing.T) {
	t.Run("scalar becomes one entry", func(t *testing.T) {
		var doc struct {
			Env EnvList `yaml:"env"`
		}
		err := yaml.Unmarshal([]byte(`env: TOXENV=py37`), &doc)
		require.NoError(t, err)
		assert.Equal(t, EnvList{"TOXENV=py37"}, doc.Env)
	})

	t.Run("sequence keeps order", func(t *testing.T) {
		var doc struct {
			Env EnvList `yaml:"env"`
		}
		err := yaml.Unmarshal([]byte("env:\n  - TOXENV=py36\n  - TOXENV=py37\n"), &doc)
		require.NoError(t, err)
		assert.Equal(t, EnvList{"TOXENV=py36", "TOXENV=py37"}, doc.Env)
	})

	t.Run("null is empty", func(t *testing.T) {
		var doc struct {
			Env EnvList `yaml:"env"`
		}
		err := yaml.Unmarshal([]byte("env:\n"), &doc)
		require.NoError(t, err)
		assert.Empty(t, doc.Env)
	})

	t.Run("mapping is rejected", func(t *testing.T) {
		var doc struct {
			Env EnvList `yaml:"env"`
		}
		err := yaml.Unmarshal([]byte("env:\n  global: A=1\n"), &doc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mapping")
	})
}

func TestEnvList_Lookup(t *testing.T) {
	env := EnvList{"TOXENV=py36 PYTHON_VERSION=3.6.8", "TOXENV=py37"}

	t.Run("last assignment wins", func(t *testing.T) {
		v, ok := env.Lookup("TOXENV")
		require.True(t, ok)
		assert.Equal(t, "py37", v)
	})

	t.Run("earlier entry still visible", func(t *testing.T) {
		v, ok := env.Lookup("PYTHON_VERSION")
		require.True(t, ok)
		assert.Equal(t, "3.6.8", v)
	})

	t.Run("missing name", func(t *testing.T) {
		_, ok := env.Lookup("NOPE")
		assert.False(t, ok)
	})
}

func TestEnvList_Count(t *testing.T) {
	env := EnvList{"TOXENV=py36", "TOXENV=py37 DEBUG=1"}
	assert.Equal(t, 2, env.Count("TOXENV"))
	assert.Equal(t, 1, env.Count("DEBUG"))
	assert.Equal(t, 0, env.Count("TOX"))
}

func TestEnvList_Malformed(t *testing.T) {
	env := EnvList{"TOXENV=py37", "oops and=then", "=bad"}
	assert.Equal(t, []string{"oops", "=bad"}, env.Malformed())
}

func TestCanonicalEnv(t *testing.T) {
	t.Run("sorted by name", func(t *testing.T) {
		a := CanonicalEnv([]EnvVar{
			{Name: "PYTHON_VERSION", Value: "3.7.4"},
			{Name: "TOXENV", Value: "py37"},
		})
		b := CanonicalEnv([]EnvVar{
			{Name: "TOXENV", Value: "py37"},
			{Name: "PYTHON_VERSION", Value: "3.7.4"},
		})
		assert.Equal(t, a, b)
		assert.Equal(t, "PYTHON_VERSION=3.7.4 TOXENV=py37", a)
	})

	t.Run("empty list", func(t *testing.T) {
		assert.Equal(t, "", CanonicalEnv(nil))
	})
}
