package travis

import (
	"strings"
)

// ExpandedJob is one concrete job materialized from the matrix: axis values
// resolved, global phases inherited, and allow-failure marking applied. The
// slice returned by Expand is what the CI platform would schedule; trellis
// only describes it.
type ExpandedJob struct {
	// Index is the 1-based position in the expanded matrix, matching the
	// platform's job numbering.
	Index int `json:"index"`

	// Name is the explicit display label, or a derived one.
	Name string `json:"name"`

	OS             string `json:"os"`
	Language       string `json:"language"`
	RuntimeVersion string `json:"runtime_version,omitempty"`
	Dist           string `json:"dist,omitempty"`
	OSXImage       string `json:"osx_image,omitempty"`

	// Env holds the job's raw env entries in definition order.
	Env EnvList `json:"env,omitempty"`

	BeforeInstall []string `json:"before_install,omitempty"`
	Install       []string `json:"install,omitempty"`
	Script        []string `json:"script,omitempty"`
	Services      []string `json:"services,omitempty"`
	APTPackages   []string `json:"apt_packages,omitempty"`

	// AllowFailure marks jobs whose outcome never changes the aggregate
	// verdict.
	AllowFailure bool `json:"allow_failure,omitempty"`
}

// Identity is the (os, runtime_version, env) triple that makes a job
// distinct within a matrix. Env is canonicalized, so reordered but equal
// env lists produce the same identity.
type Identity struct {
	OS             string `json:"os"`
	RuntimeVersion string `json:"runtime_version"`
	Env            string `json:"env"`
}

// String returns the triple in os/version/env form.
func (id Identity) String() string {
	return id.OS + "/" + id.RuntimeVersion + "/" + id.Env
}

// Identity returns the job's distinguishing triple.
func (j *ExpandedJob) Identity() Identity {
	return Identity{
		OS:             j.OS,
		RuntimeVersion: j.RuntimeVersion,
		Env:            CanonicalEnv(j.Env.Vars()),
	}
}

// Selector returns the job's task-selector value (the TOXENV convention).
func (j *ExpandedJob) Selector() (string, bool) {
	return j.Env.Lookup(SelectorVar)
}

// Expand materializes the concrete job list.
//
// Axis jobs come first: the cartesian product of the top-level os, python,
// and env axes (os-major, then python, then env), minus matrix.exclude
// matches. matrix.include jobs follow in document order. When the document
// declares no axis and no include rows, a single default job is produced,
// mirroring the platform's behavior for axis-less configurations.
//
// Expansion is deterministic and performs no I/O.
func (c *Config) Expand() []ExpandedJob {
	var jobs []ExpandedJob

	axisDeclared := len(c.OS) > 0 || len(c.Python) > 0 || len(c.Env) > 0

	if axisDeclared {
		oses := axisValues(c.OS, DefaultOS)
		pythons := axisValues(c.Python, "")
		envs := axisValues([]string(c.Env), "")

		for _, osName := range oses {
			for _, py := range pythons {
				for _, env := range envs {
					row := Job{OS: osName, Python: Version(py)}
					if env != "" {
						row.Env = EnvList{env}
					}
					job := c.materialize(row)
					if matchesAny(&job, c.Matrix.Exclude) {
						continue
					}
					jobs = append(jobs, job)
				}
			}
		}
	}

	for _, row := range c.Matrix.Include {
		jobs = append(jobs, c.materialize(row))
	}

	if len(jobs) == 0 {
		jobs = append(jobs, c.materialize(Job{}))
	}

	for i := range jobs {
		jobs[i].Index = i + 1
		if matchesAny(&jobs[i], c.Matrix.AllowFailures) {
			jobs[i].AllowFailure = true
		}
		if jobs[i].Name == "" {
			jobs[i].Name = deriveName(&jobs[i])
		}
	}

	return jobs
}

// JobCount returns the number of jobs the matrix expands to.
func (c *Config) JobCount() int {
	return len(c.Expand())
}

// materialize resolves one matrix row against the top-level configuration.
// Keys the row sets win; unset keys inherit the top-level value when it is
// unambiguous (a scalar or single-element axis).
func (c *Config) materialize(row Job) ExpandedJob {
	job := ExpandedJob{
		Name:     row.Name,
		OS:       firstNonEmpty(row.OS, singleValue(c.OS), DefaultOS),
		Language: firstNonEmpty(row.Language, c.Language, DefaultLanguage),
		Env:      row.Env,

		BeforeInstall: coalesceList(row.BeforeInstall, c.BeforeInstall),
		Install:       coalesceList(row.Install, c.Install),
		Script:        coalesceList(row.Script, c.Script),
	}

	job.RuntimeVersion = firstNonEmpty(string(row.Python), singleValue(c.Python))
	if job.RuntimeVersion == "" {
		// macOS shell jobs carry the interpreter version in env instead.
		if v, ok := job.Env.Lookup(PythonVersionVar); ok {
			job.RuntimeVersion = v
		}
	}

	switch job.OS {
	case OSOSX:
		job.OSXImage = firstNonEmpty(row.OSXImage, c.OSXImage)
	default:
		job.Dist = firstNonEmpty(row.Dist, c.Dist, DefaultDist)
	}

	// Services and apt addons are Linux facilities; the platform ignores
	// them elsewhere, so they stay off non-linux jobs.
	if job.OS == OSLinux {
		job.Services = coalesceList(row.Services, c.Services)

		addons := row.Addons
		if addons == nil {
			addons = c.Addons
		}
		if addons != nil && addons.APT != nil {
			job.APTPackages = append([]string(nil), addons.APT.Packages...)
		}
	}

	return job
}

// matchesAny reports whether any selector row matches the job. A selector
// matches when every key it sets equals the job's resolved value; a selector
// that sets nothing matches nothing.
func matchesAny(job *ExpandedJob, selectors []Job) bool {
	for i := range selectors {
		if matchesSelector(job, &selectors[i]) {
			return true
		}
	}
	return false
}

func matchesSelector(job *ExpandedJob, sel *Job) bool {
	matched := false

	if sel.Name != "" {
		if sel.Name != job.Name {
			return false
		}
		matched = true
	}
	if sel.OS != "" {
		if sel.OS != job.OS {
			return false
		}
		matched = true
	}
	if sel.Language != "" {
		if sel.Language != job.Language {
			return false
		}
		matched = true
	}
	if sel.Python != "" {
		if string(sel.Python) != job.RuntimeVersion {
			return false
		}
		matched = true
	}
	if sel.Dist != "" {
		if sel.Dist != job.Dist {
			return false
		}
		matched = true
	}
	if sel.OSXImage != "" {
		if sel.OSXImage != job.OSXImage {
			return false
		}
		matched = true
	}
	if len(sel.Env) > 0 {
		if CanonicalEnv(sel.Env.Vars()) != CanonicalEnv(job.Env.Vars()) {
			return false
		}
		matched = true
	}

	return matched
}

// deriveName builds a display label for jobs without an explicit name,
// e.g. "python 3.7 on linux (TOXENV=py37)".
func deriveName(job *ExpandedJob) string {
	var b strings.Builder
	b.WriteString(job.Language)
	if job.RuntimeVersion != "" {
		b.WriteString(" ")
		b.WriteString(job.RuntimeVersion)
	}
	b.WriteString(" on ")
	b.WriteString(job.OS)
	if env := CanonicalEnv(job.Env.Vars()); env != "" {
		b.WriteString(" (")
		b.WriteString(env)
		b.WriteString(")")
	}
	return b.String()
}

func axisValues(values []string, fallback string) []string {
	if len(values) > 0 {
		return values
	}
	return []string{fallback}
}

func singleValue(values []string) string {
	if len(values) == 1 {
		return values[0]
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func coalesceList(row, global []string) []string {
	src := row
	if len(src) == 0 {
		src = global
	}
	if len(src) == 0 {
		return nil
	}
	return append([]string(nil), src...)
}
