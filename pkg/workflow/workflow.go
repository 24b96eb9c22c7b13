// Package workflow renders build matrices as GitHub Actions workflow
// documents.
//
// The model covers the subset of the workflow syntax a converted matrix
// needs: triggers with branch filters, jobs with runner labels and env, and
// uses/run steps. It is an authoring model only; nothing here executes a
// workflow.
package workflow

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Workflow is one GitHub Actions workflow document.
type Workflow struct {
	Name string   `yaml:"name"`
	On   Triggers `yaml:"on"`
	Jobs Jobs     `yaml:"jobs"`
}

// Triggers holds the workflow's activation events.
type Triggers struct {
	Push        *BranchFilter `yaml:"push,omitempty"`
	PullRequest *BranchFilter `yaml:"pull_request,omitempty"`
}

// BranchFilter restricts a trigger to matching branches.
type BranchFilter struct {
	Branches       []string `yaml:"branches,omitempty"`
	BranchesIgnore []string `yaml:"branches-ignore,omitempty"`
}

// Jobs is an ordered job map. Plain Go maps marshal with sorted keys, which
// would scramble matrix order; this keeps jobs in conversion order.
type Jobs []NamedJob

// NamedJob pairs a workflow job with its document key.
type NamedJob struct {
	Key string
	Job *Job
}

// MarshalYAML renders the jobs as a mapping in slice order.
func (j Jobs) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, nj := range j {
		var value yaml.Node
		if err := value.Encode(nj.Job); err != nil {
			return nil, fmt.Errorf("failed to encode job %q: %w", nj.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: nj.Key},
			&value,
		)
	}
	return node, nil
}

// Job is one workflow job.
type Job struct {
	Name            string            `yaml:"name,omitempty"`
	RunsOn          string            `yaml:"runs-on"`
	ContinueOnError bool              `yaml:"continue-on-error,omitempty"`
	Env             map[string]string `yaml:"env,omitempty"`
	Steps           []Step            `yaml:"steps"`
}

// Step is one job step, either an action reference (uses) or a shell
// command (run).
type Step struct {
	Name string            `yaml:"name,omitempty"`
	Uses string            `yaml:"uses,omitempty"`
	With map[string]string `yaml:"with,omitempty"`
	Run  string            `yaml:"run,omitempty"`
	Env  map[string]string `yaml:"env,omitempty"`
}

// Render marshals the workflow to YAML with a provenance header.
func (w *Workflow) Render(source string) ([]byte, error) {
	var buf bytes.Buffer
	if source != "" {
		fmt.Fprintf(&buf, "# Converted from %s by trellis.\n", source)
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("failed to render workflow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render workflow: %w", err)
	}

	return buf.Bytes(), nil
}
