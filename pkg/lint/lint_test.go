package lint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triggered tallies problems per rule name.
func triggered(res *Result) map[string]int {
	counts := make(map[string]int)
	for _, p := range res.Problems {
		counts[p.Rule]++
	}
	return counts
}

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		opts     Options
		validate func(*testing.T, *Result)
	}{
		{
			name: "clean axis config",
			content: `
language: python
python: ["3.8"]
env: TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				assert.True(t, res.Clean(), "problems: %v", res.Problems)
				assert.Equal(t, 1, res.JobCount)
			},
		},
		{
			name: "empty env",
			content: `
language: python
python: ["3.8"]
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				assert.Equal(t, 1, triggered(res)[RuleEnvSelector])
				assert.True(t, res.HasErrors())
				assert.Contains(t, res.Problems[0].Message, "env is empty")
			},
		},
		{
			name: "no recognized selector",
			content: `
env: FOO=bar
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				assert.Equal(t, 1, triggered(res)[RuleEnvSelector])
				assert.Contains(t, res.Problems[0].Message, "no recognized selector")
			},
		},
		{
			name: "selector assigned twice",
			content: `
env: TOXENV=py37 TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				assert.Equal(t, 1, triggered(res)[RuleEnvSelector])
				assert.Contains(t, res.Problems[0].Message, "2 times")
			},
		},
		{
			name: "malformed env entries",
			content: `
env: TOXENV py38
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				// Two malformed tokens plus the missing selector.
				assert.Equal(t, 3, triggered(res)[RuleEnvSelector])
			},
		},
		{
			name: "custom selector",
			content: `
env: NOXSESSION=tests
script: tox
`,
			opts: Options{Selectors: []string{"NOXSESSION"}},
			validate: func(t *testing.T, res *Result) {
				assert.True(t, res.Clean(), "problems: %v", res.Problems)
			},
		},
		{
			name: "duplicate include rows",
			content: `
matrix:
  include:
    - python: "3.7"
      env: TOXENV=py37
    - python: "3.7"
      env: TOXENV=py37
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RuleDuplicateJob])
				assert.Contains(t, res.Problems[0].Message, "jobs 1 and 2")
			},
		},
		{
			name: "duplicate with reordered env",
			content: `
matrix:
  include:
    - python: "3.7"
      env: TOXENV=py37 FOO=1
    - python: "3.7"
      env: FOO=1 TOXENV=py37
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				assert.Equal(t, 1, triggered(res)[RuleDuplicateJob])
			},
		},
		{
			name: "unknown os",
			content: `
matrix:
  include:
    - os: windows
      python: "3.7"
      env: TOXENV=py37
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RuleUnknownOS])
				assert.Contains(t, res.Problems[0].Message, `"windows"`)
				assert.Equal(t, "/matrix/include/0/os", res.Problems[0].Path)
			},
		},
		{
			name: "missing script phase",
			content: `
python: ["3.8"]
env: TOXENV=py38
`,
			validate: func(t *testing.T, res *Result) {
				assert.Equal(t, 1, triggered(res)[RuleEmptyScript])
			},
		},
		{
			name: "unknown service",
			content: `
services:
  - xvfb
  - postgresql
  - frobnicator
env: TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RuleUnknownService])
				assert.False(t, res.HasErrors())
				assert.Contains(t, res.Problems[0].Message, `"frobnicator"`)
				assert.Equal(t, "/services/2", res.Problems[0].Path)
			},
		},
		{
			name: "osx_image on a linux row",
			content: `
matrix:
  include:
    - python: "3.7"
      osx_image: xcode11
      env: TOXENV=py37
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RuleOSXImageOnLinux])
				assert.Contains(t, res.Problems[0].Message, "ignored on linux")
			},
		},
		{
			name: "osx_image without osx jobs",
			content: `
osx_image: xcode11
python: ["3.8"]
env: TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RuleOSXImageOnLinux])
				assert.Contains(t, res.Problems[0].Message, "no job runs on osx")
			},
		},
		{
			name: "python key on a shell row",
			content: `
matrix:
  include:
    - os: osx
      language: shell
      python: "3.7"
      env: TOXENV=py37 PYTHON_VERSION=3.7.4
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RulePythonOnShell])
				assert.Contains(t, res.Problems[0].Message, "no effect on shell jobs")
			},
		},
		{
			name: "osx shell job without PYTHON_VERSION",
			content: `
matrix:
  include:
    - os: osx
      language: shell
      env: TOXENV=py37
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RulePythonOnShell])
				assert.Contains(t, res.Problems[0].Message, "pins no interpreter")
			},
		},
		{
			name: "unrecognized top-level key",
			content: `
sudo: false
env: TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RuleUnknownKey])
				assert.Contains(t, res.Problems[0].Message, `"sudo"`)
				assert.Equal(t, "/sudo", res.Problems[0].Path)
			},
		},
		{
			name: "fast_finish on a single-job matrix",
			content: `
matrix:
  fast_finish: true
env: TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RuleFastFinishNoop])
				assert.Contains(t, res.Problems[0].Message, "1-job matrix")
			},
		},
		{
			name: "fast_finish with enough jobs",
			content: `
matrix:
  fast_finish: true
python: ["3.7", "3.8"]
env: TOXENV=tests
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				assert.Zero(t, triggered(res)[RuleFastFinishNoop])
			},
		},
		{
			name: "invalid branch pattern",
			content: `
branches:
  only:
    - master
    - "release/["
env: TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RuleBranchPattern])
				assert.Contains(t, res.Problems[0].Message, `"release/["`)
				assert.Equal(t, "/branches/only/1", res.Problems[0].Path)
			},
		},
		{
			name: "errors sort before warnings",
			content: `
sudo: false
python: ["3.8"]
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.Len(t, res.Problems, 2)
				assert.Equal(t, SeverityError, res.Problems[0].Severity)
				assert.Equal(t, SeverityWarning, res.Problems[1].Severity)
			},
		},
		{
			name:    "yaml syntax error",
			content: "language: [unclosed",
			validate: func(t *testing.T, res *Result) {
				require.Equal(t, 1, triggered(res)[RuleSyntax])
				assert.True(t, res.HasErrors())
				assert.Zero(t, res.JobCount)
			},
		},
		{
			name: "schema violation",
			content: `
matrix: 42
env: TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				require.GreaterOrEqual(t, triggered(res)[RuleSchema], 1)
				assert.True(t, res.HasErrors())
				assert.Zero(t, res.JobCount)
			},
		},
		{
			name: "jobs alias",
			content: `
jobs:
  fast_finish: true
env: TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, res *Result) {
				assert.Equal(t, 1, triggered(res)[RuleFastFinishNoop])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Run([]byte(tt.content), "config.travis.yml", tt.opts)
			require.NoError(t, err)
			tt.validate(t, res)
		})
	}
}

func TestRun_Positions(t *testing.T) {
	content := `matrix:
  include:
    - python: "3.7"
      env: FOO=bar
script: tox
`
	res, err := Run([]byte(content), "config.travis.yml", Options{})
	require.NoError(t, err)
	require.Equal(t, 1, triggered(res)[RuleEnvSelector])

	p := res.Problems[0]
	assert.Equal(t, "/matrix/include/0/env", p.Path)
	assert.Equal(t, 4, p.Line)
	assert.Positive(t, p.Col)
}

func TestRun_ScriptExists(t *testing.T) {
	content := `
matrix:
  include:
    - os: osx
      language: shell
      env: TOXENV=py37 PYTHON_VERSION=3.7.4
      before_install:
        - ./ci/osx-install-python.sh
    - os: osx
      language: shell
      env: TOXENV=py38 PYTHON_VERSION=3.8.0
      before_install:
        - ./ci/osx-install-python.sh
script: tox
`

	t.Run("missing script", func(t *testing.T) {
		root := t.TempDir()
		res, err := Run([]byte(content), "config.travis.yml", Options{RepoRoot: root})
		require.NoError(t, err)

		// Both jobs reference the same path; it is reported once.
		require.Equal(t, 1, triggered(res)[RuleScriptExists])
		assert.Contains(t, res.Problems[0].Message, "./ci/osx-install-python.sh")
	})

	t.Run("script present", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "ci"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "ci", "osx-install-python.sh"), []byte("#!/bin/sh\n"), 0o755))

		res, err := Run([]byte(content), "config.travis.yml", Options{RepoRoot: root})
		require.NoError(t, err)
		assert.Zero(t, triggered(res)[RuleScriptExists])
	})

	t.Run("skipped without a repo root", func(t *testing.T) {
		res, err := Run([]byte(content), "config.travis.yml", Options{})
		require.NoError(t, err)
		assert.Zero(t, triggered(res)[RuleScriptExists])
	})

	t.Run("flags and urls are not paths", func(t *testing.T) {
		root := t.TempDir()
		cfg := `
env: TOXENV=py38
install:
  - pip install --upgrade tox
  - curl -sSL https://example.com/get-thing.sh
script: tox
`
		res, err := Run([]byte(cfg), "config.travis.yml", Options{RepoRoot: root})
		require.NoError(t, err)
		assert.Zero(t, triggered(res)[RuleScriptExists])
	})
}

func TestRun_JobCount(t *testing.T) {
	content := `
python: ["3.7", "3.8"]
env: TOXENV=tests
script: tox
`

	t.Run("mismatch", func(t *testing.T) {
		res, err := Run([]byte(content), "config.travis.yml", Options{ExpectJobs: 3})
		require.NoError(t, err)
		require.Equal(t, 1, triggered(res)[RuleJobCount])
		assert.Contains(t, res.Problems[0].Message, "expands to 2 jobs; expected 3")
	})

	t.Run("match", func(t *testing.T) {
		res, err := Run([]byte(content), "config.travis.yml", Options{ExpectJobs: 2})
		require.NoError(t, err)
		assert.True(t, res.Clean(), "problems: %v", res.Problems)
	})

	t.Run("unset", func(t *testing.T) {
		res, err := Run([]byte(content), "config.travis.yml", Options{})
		require.NoError(t, err)
		assert.True(t, res.Clean(), "problems: %v", res.Problems)
	})
}

func TestRunFile_ReferenceMatrix(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ci"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ci", "osx-install-python.sh"), []byte("#!/bin/sh\n"), 0o755))

	res, err := RunFile(filepath.Join("..", "travis", "testdata", "mss.travis.yml"), Options{
		RepoRoot:   root,
		ExpectJobs: 11,
	})
	require.NoError(t, err)

	assert.True(t, res.Clean(), "problems: %v", res.Problems)
	assert.Equal(t, 11, res.JobCount)
	assert.NotEmpty(t, res.Path)
}

func TestRunFile_Missing(t *testing.T) {
	_, err := RunFile(filepath.Join(t.TempDir(), "absent.travis.yml"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestRules(t *testing.T) {
	infos := Rules()
	require.Len(t, infos, 12)

	seen := make(map[string]bool)
	for _, info := range infos {
		assert.NotEmpty(t, info.Name)
		assert.NotEmpty(t, info.Description)
		assert.Contains(t, []Severity{SeverityError, SeverityWarning}, info.Severity)
		assert.False(t, seen[info.Name], "duplicate rule %s", info.Name)
		seen[info.Name] = true
	}
}

func TestProblemString(t *testing.T) {
	p := Problem{
		Rule:     RuleEnvSelector,
		Severity: SeverityError,
		Message:  "job 1 (python 3.7 on linux): env is empty",
		Line:     12,
		Col:      7,
	}
	assert.Equal(t, "12:7: error: job 1 (python 3.7 on linux): env is empty (env-selector)", p.String())

	p.Line = 0
	assert.Equal(t, "error: job 1 (python 3.7 on linux): env is empty (env-selector)", p.String())
}

func TestResultCounts(t *testing.T) {
	res := &Result{Problems: []Problem{
		{Severity: SeverityError},
		{Severity: SeverityError},
		{Severity: SeverityWarning},
	}}
	assert.Equal(t, 2, res.Errors())
	assert.Equal(t, 1, res.Warnings())
	assert.True(t, res.HasErrors())
	assert.False(t, res.Clean())

	assert.True(t, (&Result{}).Clean())
}
