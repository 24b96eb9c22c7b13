package workflow

import (
	"fmt"
	"strings"

	"github.com/3leaps/trellis/pkg/travis"
)

// Runner label mappings. Dists and images without a hosted equivalent fall
// back to the -latest labels.
var distRunners = map[string]string{
	"focal": "ubuntu-20.04",
	"jammy": "ubuntu-22.04",
	"noble": "ubuntu-24.04",
}

var osxImageRunners = map[string]string{
	"xcode14.2": "macos-13",
	"xcode15":   "macos-14",
	"xcode16":   "macos-15",
}

const (
	defaultLinuxRunner = "ubuntu-latest"
	defaultMacRunner   = "macos-latest"

	// xvfbDisplay is the X display converted jobs start Xvfb on.
	xvfbDisplay = ":99"
)

// Options configures a conversion.
type Options struct {
	// Name is the workflow name. Defaults to "ci".
	Name string
}

// FromConfig converts a loaded configuration into a workflow with one job
// per expanded matrix job.
//
// allow_failures becomes continue-on-error. fast_finish is dropped: its
// nearest counterpart, fail-fast, cancels in-progress jobs, which changes
// execution semantics the source setting never had (it only moved the
// moment the aggregate result is reported).
func FromConfig(cfg *travis.Config, opts Options) *Workflow {
	name := opts.Name
	if name == "" {
		name = "ci"
	}

	wf := &Workflow{
		Name: name,
		On:   triggers(cfg.Branches),
	}

	jobs := cfg.Expand()
	keys := make(map[string]int, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		wf.Jobs = append(wf.Jobs, NamedJob{
			Key: uniqueKey(keys, jobKey(job)),
			Job: convertJob(job),
		})
	}
	return wf
}

// triggers maps branch restrictions onto push filters. Pull requests are
// always built, matching the platform's default.
func triggers(branches *travis.Branches) Triggers {
	push := &BranchFilter{}
	if branches != nil {
		push.Branches = append([]string(nil), branches.Only...)
		push.BranchesIgnore = append([]string(nil), branches.Except...)
	}
	return Triggers{Push: push, PullRequest: &BranchFilter{}}
}

func convertJob(src *travis.ExpandedJob) *Job {
	return &Job{
		Name:            src.Name,
		RunsOn:          runnerLabel(src),
		ContinueOnError: src.AllowFailure,
		Env:             envMap(src),
		Steps:           steps(src),
	}
}

func runnerLabel(src *travis.ExpandedJob) string {
	if src.OS == travis.OSOSX {
		if label, ok := osxImageRunners[src.OSXImage]; ok {
			return label
		}
		return defaultMacRunner
	}
	if label, ok := distRunners[src.Dist]; ok {
		return label
	}
	return defaultLinuxRunner
}

func envMap(src *travis.ExpandedJob) map[string]string {
	vars := src.Env.Vars()
	display := hasService(src, "xvfb")
	if len(vars) == 0 && !display {
		return nil
	}

	env := make(map[string]string, len(vars)+1)
	for _, v := range vars {
		env[v.Name] = v.Value
	}
	if display {
		env["DISPLAY"] = xvfbDisplay
	}
	return env
}

func hasService(src *travis.ExpandedJob, name string) bool {
	for _, svc := range src.Services {
		if svc == name {
			return true
		}
	}
	return false
}

func steps(src *travis.ExpandedJob) []Step {
	out := []Step{{Uses: "actions/checkout@v4"}}

	if src.RuntimeVersion != "" {
		out = append(out, Step{
			Name: "set up python " + src.RuntimeVersion,
			Uses: "actions/setup-python@v5",
			With: map[string]string{"python-version": src.RuntimeVersion},
		})
	}

	if len(src.APTPackages) > 0 {
		out = append(out, Step{
			Name: "install apt packages",
			Run:  "sudo apt-get update\nsudo apt-get install -y " + strings.Join(src.APTPackages, " "),
		})
	}

	for _, svc := range src.Services {
		out = append(out, serviceStep(svc))
	}

	phases := []struct {
		name string
		cmds []string
	}{
		{"before_install", src.BeforeInstall},
		{"install", src.Install},
		{"script", src.Script},
	}
	for _, phase := range phases {
		if len(phase.cmds) == 0 {
			continue
		}
		out = append(out, Step{Name: phase.name, Run: strings.Join(phase.cmds, "\n")})
	}

	return out
}

// serviceStep starts one requested service. Hosted runners ship the common
// ones stopped; xvfb needs an install and a display.
func serviceStep(name string) Step {
	if name == "xvfb" {
		return Step{
			Name: "start xvfb",
			Run:  "sudo apt-get install -y xvfb\nXvfb " + xvfbDisplay + " &",
		}
	}
	return Step{
		Name: "start " + name,
		Run:  "sudo systemctl start " + name,
	}
}

// jobKey derives a workflow job identifier from the display name.
func jobKey(src *travis.ExpandedJob) string {
	slug := slugify(src.Name)
	if slug == "" {
		slug = fmt.Sprintf("job-%d", src.Index)
	}
	return slug
}

// slugify lowercases the name and folds runs of non-alphanumerics into
// single dashes. Identifiers must not start with a digit.
func slugify(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('-')
		}
		pending = false
		b.WriteRune(r)
	}

	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "job-" + out
	}
	return out
}

func uniqueKey(seen map[string]int, key string) string {
	seen[key]++
	if n := seen[key]; n > 1 {
		return fmt.Sprintf("%s-%d", key, n)
	}
	return key
}
