// Package travis provides loading, validation, and expansion of Travis-style
// build-matrix configuration files.
//
// A configuration is a YAML (or JSON) document describing a build matrix:
// which operating systems, language runtimes, and environment variables each
// job runs with, plus the shell phases (before_install, install, script)
// the CI runner executes per job.
//
// Configurations are validated against a JSON Schema before being decoded
// into the typed model. Matrix expansion materializes the concrete job list
// from the axis product, matrix.include additions, and matrix.exclude
// removals. Nothing in this package executes a job.
//
// Example configuration (YAML):
//
//	language: python
//	dist: xenial
//	services:
//	  - xvfb
//	matrix:
//	  fast_finish: true
//	  include:
//	    - python: 3.7
//	      env: TOXENV=lint
//	    - python: 3.7
//	      env: TOXENV=py37
//	install:
//	  - pip install tox
//	script:
//	  - tox
package travis

// Config represents a parsed build-matrix configuration document.
//
// Scalar-or-sequence keys (os, python, env, services, and the phase lists)
// accept both YAML forms; they always decode to lists.
type Config struct {
	// Language is the primary runtime for jobs that do not override it.
	// Recognized values: "python", "shell".
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// Dist is the Linux distribution image jobs run on (e.g., "xenial").
	Dist string `json:"dist,omitempty" yaml:"dist,omitempty"`

	// OS is the operating-system axis. Values: "linux", "osx".
	OS StringList `json:"os,omitempty" yaml:"os,omitempty"`

	// OSXImage is the macOS image for osx jobs (e.g., "xcode11.3").
	OSXImage string `json:"osx_image,omitempty" yaml:"osx_image,omitempty"`

	// Python is the interpreter-version axis (e.g., "2.7", "3.7").
	// Version scalars keep their literal spelling; 3.70 stays "3.70".
	Python StringList `json:"python,omitempty" yaml:"python,omitempty"`

	// Env is the environment axis. Each entry is one or more KEY=value
	// assignments separated by spaces; each entry produces one axis value.
	Env EnvList `json:"env,omitempty" yaml:"env,omitempty"`

	// Matrix configures explicit job inclusion, exclusion, allowed
	// failures, and fast_finish reporting.
	Matrix Matrix `json:"matrix,omitempty" yaml:"matrix,omitempty"`

	// Jobs is the newer alias for Matrix. When both are present, Matrix
	// wins; ApplyDefaults folds Jobs into Matrix otherwise.
	Jobs *Matrix `json:"jobs,omitempty" yaml:"jobs,omitempty"`

	// Addons requests platform add-ons (system package installation).
	Addons *Addons `json:"addons,omitempty" yaml:"addons,omitempty"`

	// Services lists background services started for every job (e.g., "xvfb").
	Services StringList `json:"services,omitempty" yaml:"services,omitempty"`

	// BeforeInstall runs before the install phase on every job unless the
	// job overrides it.
	BeforeInstall StringList `json:"before_install,omitempty" yaml:"before_install,omitempty"`

	// Install is the dependency-installation phase applied to every job
	// unless overridden.
	Install StringList `json:"install,omitempty" yaml:"install,omitempty"`

	// Script is the main build/test phase applied to every job unless
	// overridden.
	Script StringList `json:"script,omitempty" yaml:"script,omitempty"`

	// Branches restricts which branches trigger the matrix.
	Branches *Branches `json:"branches,omitempty" yaml:"branches,omitempty"`

	// Cache names cache kinds to persist between runs (e.g., "pip").
	Cache StringList `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// Matrix configures explicit matrix rows and aggregate reporting.
type Matrix struct {
	// FastFinish reports the aggregate result as soon as a deterministic
	// pass/fail is known, without waiting for remaining jobs.
	FastFinish bool `json:"fast_finish,omitempty" yaml:"fast_finish,omitempty"`

	// Include appends explicit jobs to the axis product, in document order.
	Include []Job `json:"include,omitempty" yaml:"include,omitempty"`

	// Exclude removes matching axis-product jobs. An entry matches a job
	// when every key it sets equals the job's resolved value.
	Exclude []Job `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	// AllowFailures marks matching jobs as allowed to fail: their outcome
	// never changes the aggregate verdict.
	AllowFailures []Job `json:"allow_failures,omitempty" yaml:"allow_failures,omitempty"`
}

// Job is one row of the build matrix. Keys set on a job override the
// top-level equivalents; unset keys inherit.
type Job struct {
	// Name is the display label shown by the CI platform. Optional; a
	// label is derived from os/runtime/env when absent.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// OS is "linux" or "osx". Defaults to the top-level os when it names a
	// single value, otherwise "linux".
	OS string `json:"os,omitempty" yaml:"os,omitempty"`

	// Language overrides the top-level language for this job.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// Python is the interpreter version for this job.
	Python Version `json:"python,omitempty" yaml:"python,omitempty"`

	// OSXImage selects the macOS image for osx jobs.
	OSXImage string `json:"osx_image,omitempty" yaml:"osx_image,omitempty"`

	// Dist overrides the Linux distribution image.
	Dist string `json:"dist,omitempty" yaml:"dist,omitempty"`

	// Env holds the job's KEY=value assignments.
	Env EnvList `json:"env,omitempty" yaml:"env,omitempty"`

	// BeforeInstall overrides the global before_install phase.
	BeforeInstall StringList `json:"before_install,omitempty" yaml:"before_install,omitempty"`

	// Install overrides the global install phase.
	Install StringList `json:"install,omitempty" yaml:"install,omitempty"`

	// Script overrides the global script phase.
	Script StringList `json:"script,omitempty" yaml:"script,omitempty"`

	// Services overrides the global service list.
	Services StringList `json:"services,omitempty" yaml:"services,omitempty"`

	// Addons overrides the global addons block.
	Addons *Addons `json:"addons,omitempty" yaml:"addons,omitempty"`
}

// Addons requests platform-provided extras for a job.
type Addons struct {
	// APT configures system package installation on Linux images.
	APT *APTAddon `json:"apt,omitempty" yaml:"apt,omitempty"`
}

// APTAddon lists system packages installed before the job's phases run.
type APTAddon struct {
	Packages StringList `json:"packages,omitempty" yaml:"packages,omitempty"`
}

// Branches restricts which branches trigger builds.
type Branches struct {
	// Only allows listed branch names or patterns.
	Only StringList `json:"only,omitempty" yaml:"only,omitempty"`

	// Except blocks listed branch names or patterns.
	Except StringList `json:"except,omitempty" yaml:"except,omitempty"`
}

// Recognized enumeration values and defaults.
const (
	// OSLinux and OSOSX are the recognized operating systems.
	OSLinux = "linux"
	OSOSX   = "osx"

	// LanguagePython and LanguageShell are the recognized job languages.
	LanguagePython = "python"
	LanguageShell  = "shell"

	// DefaultOS is assumed when neither the job nor the top level sets one.
	DefaultOS = OSLinux

	// DefaultLanguage is assumed when the document sets no language.
	DefaultLanguage = LanguagePython

	// DefaultDist is the distribution image assumed for Linux jobs when
	// the document sets none.
	DefaultDist = "xenial"
)

// KnownServices are the background services the platform can provision.
// Used by lint to flag typos; the list is not exhaustive for every
// platform generation, only the commonly requested ones.
var KnownServices = []string{
	"cassandra",
	"docker",
	"elasticsearch",
	"memcached",
	"mongodb",
	"mysql",
	"postgresql",
	"rabbitmq",
	"redis",
	"xvfb",
}

// ApplyDefaults fills in defaults and normalizes alias keys.
//
// This should be called after loading and validating the configuration so
// callers never see an empty language or os axis. The jobs alias is folded
// into matrix here; matrix wins when both are set.
func (c *Config) ApplyDefaults() {
	if c.Jobs != nil {
		if c.Matrix.isZero() {
			c.Matrix = *c.Jobs
		}
		c.Jobs = nil
	}

	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.Dist == "" {
		c.Dist = DefaultDist
	}
	// The os axis is left untouched: expansion distinguishes "no axis
	// declared" from an explicit single-value axis.
}

// HasExplicitJobs reports whether the matrix declares include rows.
func (c *Config) HasExplicitJobs() bool {
	return len(c.Matrix.Include) > 0
}

func (m Matrix) isZero() bool {
	return !m.FastFinish &&
		len(m.Include) == 0 &&
		len(m.Exclude) == 0 &&
		len(m.AllowFailures) == 0
}
