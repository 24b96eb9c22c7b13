package workflow

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/trellis/pkg/travis"
)

func loadReference(t *testing.T) *travis.Config {
	t.Helper()
	cfg, err := travis.Load(filepath.Join("..", "travis", "testdata", "mss.travis.yml"))
	require.NoError(t, err)
	return cfg
}

func findJob(t *testing.T, wf *Workflow, key string) *Job {
	t.Helper()
	for _, nj := range wf.Jobs {
		if nj.Key == key {
			return nj.Job
		}
	}
	t.Fatalf("no job %q in workflow (have %v)", key, jobKeys(wf))
	return nil
}

func jobKeys(wf *Workflow) []string {
	keys := make([]string, len(wf.Jobs))
	for i, nj := range wf.Jobs {
		keys[i] = nj.Key
	}
	return keys
}

func TestFromConfig_ReferenceMatrix(t *testing.T) {
	cfg := loadReference(t)
	wf := FromConfig(cfg, Options{})

	assert.Equal(t, "ci", wf.Name)
	require.Len(t, wf.Jobs, 11)

	// Keys are unique and ordered like the matrix.
	seen := make(map[string]bool)
	for _, nj := range wf.Jobs {
		assert.False(t, seen[nj.Key], "duplicate key %s", nj.Key)
		seen[nj.Key] = true
	}
	assert.Equal(t, "code-style-checks", wf.Jobs[0].Key)
	assert.Equal(t, "python-2-7-on-macos", wf.Jobs[8].Key)

	lint := findJob(t, wf, "code-style-checks")
	assert.Equal(t, "ubuntu-latest", lint.RunsOn, "xenial has no hosted image")
	assert.Equal(t, "lint", lint.Env["TOXENV"])
	assert.Equal(t, ":99", lint.Env["DISPLAY"], "xvfb service sets the display")
	assert.False(t, lint.ContinueOnError)

	require.NotEmpty(t, lint.Steps)
	assert.Equal(t, "actions/checkout@v4", lint.Steps[0].Uses)
	setup := lint.Steps[1]
	assert.Equal(t, "actions/setup-python@v5", setup.Uses)
	assert.Equal(t, "3.7", setup.With["python-version"])

	var aptStep, xvfbStep, scriptStep *Step
	for i := range lint.Steps {
		switch lint.Steps[i].Name {
		case "install apt packages":
			aptStep = &lint.Steps[i]
		case "start xvfb":
			xvfbStep = &lint.Steps[i]
		case "script":
			scriptStep = &lint.Steps[i]
		}
	}
	require.NotNil(t, aptStep)
	assert.Contains(t, aptStep.Run, "libxrandr-dev libxfixes-dev")
	require.NotNil(t, xvfbStep)
	assert.Contains(t, xvfbStep.Run, "Xvfb :99 &")
	require.NotNil(t, scriptStep)
	assert.Equal(t, "tox", scriptStep.Run)

	mac := findJob(t, wf, "python-3-7-on-macos")
	assert.Equal(t, "macos-latest", mac.RunsOn)
	assert.Equal(t, "3.7.4", mac.Env["PYTHON_VERSION"])
	assert.NotContains(t, mac.Env, "DISPLAY", "no xvfb on macOS")

	macSetup := mac.Steps[1]
	assert.Equal(t, "actions/setup-python@v5", macSetup.Uses)
	assert.Equal(t, "3.7.4", macSetup.With["python-version"], "shell jobs pin through PYTHON_VERSION")

	var before *Step
	for i := range mac.Steps {
		if mac.Steps[i].Name == "before_install" {
			before = &mac.Steps[i]
		}
		assert.NotEqual(t, "install apt packages", mac.Steps[i].Name)
		assert.NotEqual(t, "start xvfb", mac.Steps[i].Name)
	}
	require.NotNil(t, before)
	assert.Equal(t, "./ci/osx-install-python.sh", before.Run)
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		opts     Options
		validate func(*testing.T, *Workflow)
	}{
		{
			name: "custom workflow name",
			content: `
env: TOXENV=py38
script: tox
`,
			opts: Options{Name: "tests"},
			validate: func(t *testing.T, wf *Workflow) {
				assert.Equal(t, "tests", wf.Name)
			},
		},
		{
			name: "allow_failures becomes continue-on-error",
			content: `
python: ["3.7", "3.8"]
env: TOXENV=tests
script: tox
matrix:
  allow_failures:
    - python: "3.8"
`,
			validate: func(t *testing.T, wf *Workflow) {
				require.Len(t, wf.Jobs, 2)
				assert.False(t, wf.Jobs[0].Job.ContinueOnError)
				assert.True(t, wf.Jobs[1].Job.ContinueOnError)
			},
		},
		{
			name: "mapped dist and image labels",
			content: `
dist: focal
matrix:
  include:
    - python: "3.9"
      env: TOXENV=py39
    - os: osx
      osx_image: xcode15
      language: shell
      env: TOXENV=py39 PYTHON_VERSION=3.9.1
script: tox
`,
			validate: func(t *testing.T, wf *Workflow) {
				require.Len(t, wf.Jobs, 2)
				assert.Equal(t, "ubuntu-20.04", wf.Jobs[0].Job.RunsOn)
				assert.Equal(t, "macos-14", wf.Jobs[1].Job.RunsOn)
			},
		},
		{
			name: "branch filters land on push",
			content: `
branches:
  only:
    - master
    - "release/*"
  except:
    - wip
env: TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, wf *Workflow) {
				require.NotNil(t, wf.On.Push)
				assert.Equal(t, []string{"master", "release/*"}, wf.On.Push.Branches)
				assert.Equal(t, []string{"wip"}, wf.On.Push.BranchesIgnore)
				assert.NotNil(t, wf.On.PullRequest)
			},
		},
		{
			name: "duplicate names get numbered keys",
			content: `
matrix:
  include:
    - name: checks
      python: "3.7"
      env: TOXENV=a
    - name: checks
      python: "3.8"
      env: TOXENV=b
script: tox
`,
			validate: func(t *testing.T, wf *Workflow) {
				assert.Equal(t, []string{"checks", "checks-2"}, jobKeys(wf))
			},
		},
		{
			name: "non-xvfb services start via systemctl",
			content: `
services:
  - postgresql
env: TOXENV=py38
script: tox
`,
			validate: func(t *testing.T, wf *Workflow) {
				require.Len(t, wf.Jobs, 1)
				var found bool
				for _, step := range wf.Jobs[0].Job.Steps {
					if step.Name == "start postgresql" {
						found = true
						assert.Equal(t, "sudo systemctl start postgresql", step.Run)
					}
				}
				assert.True(t, found)
			},
		},
		{
			name: "multi-command phases join into one step",
			content: `
env: TOXENV=py38
install:
  - pip install --upgrade pip
  - pip install tox
script: tox
`,
			validate: func(t *testing.T, wf *Workflow) {
				require.Len(t, wf.Jobs, 1)
				var install *Step
				for i, step := range wf.Jobs[0].Job.Steps {
					if step.Name == "install" {
						install = &wf.Jobs[0].Job.Steps[i]
					}
				}
				require.NotNil(t, install)
				assert.Equal(t, "pip install --upgrade pip\npip install tox", install.Run)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := travis.LoadFromBytes([]byte(tt.content), "config.travis.yml")
			require.NoError(t, err)
			tt.validate(t, FromConfig(cfg, tt.opts))
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"code style checks", "code-style-checks"},
		{"python 3.7 on linux (TOXENV=py37)", "python-3-7-on-linux-toxenv-py37"},
		{"python 2.7 on macOS", "python-2-7-on-macos"},
		{"3.7", "job-3-7"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.in), "slugify(%q)", tt.in)
	}
}

func TestRender(t *testing.T) {
	cfg := loadReference(t)
	wf := FromConfig(cfg, Options{})

	data, err := wf.Render(".travis.yml")
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "# Converted from .travis.yml by trellis.\n")
	assert.Contains(t, out, "name: ci\n")
	assert.Contains(t, out, "runs-on: ubuntu-latest")
	assert.Contains(t, out, "code-style-checks:")

	// The document round-trips and keeps job order.
	var doc struct {
		Name string                 `yaml:"name"`
		Jobs map[string]interface{} `yaml:"jobs"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "ci", doc.Name)
	assert.Len(t, doc.Jobs, 11)
}

func TestRender_NoSource(t *testing.T) {
	wf := &Workflow{Name: "ci", Jobs: Jobs{{Key: "test", Job: &Job{RunsOn: "ubuntu-latest"}}}}
	data, err := wf.Render("")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "# Converted")
}
