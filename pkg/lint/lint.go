// Package lint checks build-matrix configurations for structural and
// semantic problems.
//
// Lint runs after schema validation and reports findings as Problem records
// carrying the rule name, a severity, and the source position when the
// document is YAML. It never refuses to report: syntax and schema failures
// surface as problems like any rule finding, so batch callers can process
// broken configs without special cases.
//
// The rule set covers the structural properties a matrix must satisfy
// (exactly one task-selector assignment per job, no duplicate jobs,
// referenced install scripts present, expected job count) plus semantic
// checks for common mistakes (unknown os values, misplaced keys, missing
// script phases, unknown services, suspicious fast_finish use).
package lint

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/trellis/pkg/travis"
)

// Severity classifies a problem.
type Severity string

const (
	// SeverityError marks violations of matrix invariants.
	SeverityError Severity = "error"

	// SeverityWarning marks findings that load and run but likely do not
	// mean what the author intended.
	SeverityWarning Severity = "warning"
)

// Rule names reported in Problem records.
const (
	RuleSyntax          = "syntax"
	RuleSchema          = "schema"
	RuleEnvSelector     = "env-selector"
	RuleDuplicateJob    = "duplicate-job"
	RuleScriptExists    = "script-exists"
	RuleJobCount        = "job-count"
	RuleUnknownOS       = "unknown-os"
	RuleOSXImageOnLinux = "osx-image-on-linux"
	RulePythonOnShell   = "python-on-shell"
	RuleEmptyScript     = "empty-script"
	RuleUnknownService  = "unknown-service"
	RuleUnknownKey      = "unknown-key"
	RuleFastFinishNoop  = "fast-finish-noop"
	RuleBranchPattern   = "branch-pattern"
)

// Problem is a single lint finding.
type Problem struct {
	// Rule names the check that produced the finding.
	Rule string `json:"rule"`

	// Severity is "error" or "warning".
	Severity Severity `json:"severity"`

	// Message describes the finding.
	Message string `json:"message"`

	// Path locates the finding as a JSON pointer into the document, when
	// one applies (e.g. "/matrix/include/3/env").
	Path string `json:"path,omitempty"`

	// Line and Col locate the finding in the YAML source, 1-based.
	// Zero when the source position is unknown (JSON input, whole-matrix
	// findings).
	Line int `json:"line,omitempty"`
	Col  int `json:"col,omitempty"`
}

// String renders the problem in file:line:col style.
func (p Problem) String() string {
	loc := ""
	if p.Line > 0 {
		loc = fmt.Sprintf("%d:%d: ", p.Line, p.Col)
	}
	return fmt.Sprintf("%s%s: %s (%s)", loc, p.Severity, p.Message, p.Rule)
}

// Options configures a lint run.
type Options struct {
	// RepoRoot is the directory referenced script paths are resolved
	// against. Empty disables the script-exists rule.
	RepoRoot string

	// ExpectJobs, when positive, asserts the expanded matrix has exactly
	// this many jobs.
	ExpectJobs int

	// Selectors are the environment variables recognized as task
	// selectors. Defaults to TOXENV.
	Selectors []string
}

func (o *Options) selectors() []string {
	if len(o.Selectors) > 0 {
		return o.Selectors
	}
	return []string{travis.SelectorVar}
}

// Result is the outcome of linting one configuration.
type Result struct {
	// Path is the source path the result describes, when known.
	Path string `json:"path,omitempty"`

	// Problems holds all findings, errors first, in document order within
	// each severity.
	Problems []Problem `json:"problems"`

	// JobCount is the expanded matrix size. Zero when the document could
	// not be loaded.
	JobCount int `json:"job_count"`
}

// Errors returns the number of error-severity problems.
func (r *Result) Errors() int {
	n := 0
	for _, p := range r.Problems {
		if p.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Warnings returns the number of warning-severity problems.
func (r *Result) Warnings() int {
	return len(r.Problems) - r.Errors()
}

// Clean reports whether the run produced no findings at all.
func (r *Result) Clean() bool {
	return len(r.Problems) == 0
}

// HasErrors reports whether any finding is an error.
func (r *Result) HasErrors() bool {
	return r.Errors() > 0
}

// RunFile lints the configuration at path.
func RunFile(path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	res, err := Run(data, path, opts)
	if err != nil {
		return nil, err
	}
	res.Path = path
	return res, nil
}

// Run lints raw configuration bytes. The path parameter drives format
// detection and error messages; it may be empty.
//
// Syntax and schema failures are reported as problems, not returned as
// errors; the returned error covers only internal failures such as a
// broken embedded schema.
func Run(src []byte, path string, opts Options) (*Result, error) {
	res := &Result{Path: path}

	cfg, err := travis.LoadFromBytes(src, path)
	if err != nil {
		var verrs travis.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			for _, ve := range verrs {
				res.Problems = append(res.Problems, Problem{
					Rule:     RuleSchema,
					Severity: SeverityError,
					Message:  ve.Message,
					Path:     ve.Path,
				})
			}
		case errors.Is(err, travis.ErrSchemaNotFound):
			return nil, err
		default:
			res.Problems = append(res.Problems, Problem{
				Rule:     RuleSyntax,
				Severity: SeverityError,
				Message:  err.Error(),
			})
		}
		return res, nil
	}

	jobs := cfg.Expand()
	res.JobCount = len(jobs)

	ctx := &ruleContext{
		cfg:  cfg,
		jobs: jobs,
		doc:  parseDocument(src),
		opts: opts,
		res:  res,
	}
	for _, r := range rules {
		r.run(ctx)
	}

	sortProblems(res.Problems)
	return res, nil
}

// parseDocument parses YAML source into a node tree for position lookups.
// Returns nil for non-YAML input; positions are then omitted.
func parseDocument(src []byte) *yaml.Node {
	var node yaml.Node
	if err := yaml.Unmarshal(src, &node); err != nil {
		return nil
	}
	return &node
}

// sortProblems orders errors before warnings, keeping document order
// within each severity.
func sortProblems(problems []Problem) {
	sort.SliceStable(problems, func(i, j int) bool {
		if problems[i].Severity != problems[j].Severity {
			return problems[i].Severity == SeverityError
		}
		return false
	})
}
