package lint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/trellis/pkg/travis"
)

// RuleInfo describes one lint rule for listings (CLI and the rules
// endpoint).
type RuleInfo struct {
	Name        string   `json:"name"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Rules returns the registered rule set in execution order. Syntax and
// schema are reported under their own names but are not part of the
// configurable set.
func Rules() []RuleInfo {
	infos := make([]RuleInfo, len(rules))
	for i, r := range rules {
		infos[i] = r.info
	}
	return infos
}

type rule struct {
	info RuleInfo
	run  func(*ruleContext)
}

var rules = []rule{
	{
		info: RuleInfo{
			Name:        RuleEnvSelector,
			Severity:    SeverityError,
			Description: "every job's env is non-empty and assigns exactly one recognized task selector",
		},
		run: checkEnvSelector,
	},
	{
		info: RuleInfo{
			Name:        RuleDuplicateJob,
			Severity:    SeverityError,
			Description: "no two jobs share the same (os, runtime_version, env) identity",
		},
		run: checkDuplicateJob,
	},
	{
		info: RuleInfo{
			Name:        RuleScriptExists,
			Severity:    SeverityError,
			Description: "repository-relative script paths referenced by job phases exist under the repo root",
		},
		run: checkScriptExists,
	},
	{
		info: RuleInfo{
			Name:        RuleJobCount,
			Severity:    SeverityError,
			Description: "the expanded matrix has exactly the expected number of jobs",
		},
		run: checkJobCount,
	},
	{
		info: RuleInfo{
			Name:        RuleEmptyScript,
			Severity:    SeverityError,
			Description: "every job resolves a non-empty script phase",
		},
		run: checkEmptyScript,
	},
	{
		info: RuleInfo{
			Name:        RuleUnknownOS,
			Severity:    SeverityError,
			Description: "job os values are recognized (linux, osx)",
		},
		run: checkUnknownOS,
	},
	{
		info: RuleInfo{
			Name:        RulePythonOnShell,
			Severity:    SeverityWarning,
			Description: "shell-language jobs pin the interpreter through PYTHON_VERSION, not the python key",
		},
		run: checkPythonOnShell,
	},
	{
		info: RuleInfo{
			Name:        RuleOSXImageOnLinux,
			Severity:    SeverityWarning,
			Description: "osx_image is only set on osx jobs",
		},
		run: checkOSXImageOnLinux,
	},
	{
		info: RuleInfo{
			Name:        RuleUnknownService,
			Severity:    SeverityWarning,
			Description: "requested services are known platform services",
		},
		run: checkUnknownService,
	},
	{
		info: RuleInfo{
			Name:        RuleUnknownKey,
			Severity:    SeverityWarning,
			Description: "top-level keys are recognized configuration keys",
		},
		run: checkUnknownKey,
	},
	{
		info: RuleInfo{
			Name:        RuleFastFinishNoop,
			Severity:    SeverityWarning,
			Description: "fast_finish has an effect only with two or more jobs",
		},
		run: checkFastFinishNoop,
	},
	{
		info: RuleInfo{
			Name:        RuleBranchPattern,
			Severity:    SeverityWarning,
			Description: "branch restriction patterns are syntactically valid",
		},
		run: checkBranchPattern,
	},
}

// recognizedKeys are the top-level keys the schema models.
var recognizedKeys = map[string]bool{
	"language":       true,
	"dist":           true,
	"os":             true,
	"osx_image":      true,
	"python":         true,
	"env":            true,
	"matrix":         true,
	"jobs":           true,
	"addons":         true,
	"services":       true,
	"before_install": true,
	"install":        true,
	"script":         true,
	"branches":       true,
	"cache":          true,
}

type ruleContext struct {
	cfg  *travis.Config
	jobs []travis.ExpandedJob
	doc  *yaml.Node
	opts Options
	res  *Result
}

func (c *ruleContext) report(ruleName string, sev Severity, node *yaml.Node, path, format string, args ...any) {
	line, col := position(node)
	c.res.Problems = append(c.res.Problems, Problem{
		Rule:     ruleName,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
		Line:     line,
		Col:      col,
	})
}

// axisJobs returns how many expanded jobs precede the include rows.
func (c *ruleContext) axisJobs() int {
	return len(c.jobs) - len(c.cfg.Matrix.Include)
}

// includeIndex maps an expanded job to its matrix.include row, or -1 for
// axis-product and default jobs.
func (c *ruleContext) includeIndex(job *travis.ExpandedJob) int {
	idx := job.Index - 1 - c.axisJobs()
	if idx >= 0 && idx < len(c.cfg.Matrix.Include) {
		return idx
	}
	return -1
}

// expandedForInclude returns the expanded job backing include row i.
func (c *ruleContext) expandedForInclude(i int) *travis.ExpandedJob {
	pos := c.axisJobs() + i
	if pos < 0 || pos >= len(c.jobs) {
		return nil
	}
	return &c.jobs[pos]
}

func (c *ruleContext) rowNode(idx int) *yaml.Node {
	if idx < 0 {
		return nil
	}
	return includeNode(c.doc, idx)
}

func (c *ruleContext) fieldNode(idx int, field string) *yaml.Node {
	if idx < 0 {
		return nil
	}
	return jobFieldNode(c.doc, idx, field)
}

// includePointer builds the JSON pointer for an include row or one of its
// fields. Axis jobs have no pointer.
func includePointer(idx int, field string) string {
	if idx < 0 {
		return ""
	}
	p := fmt.Sprintf("/matrix/include/%d", idx)
	if field != "" {
		p += "/" + field
	}
	return p
}

func checkEnvSelector(c *ruleContext) {
	sels := c.opts.selectors()
	label := strings.Join(sels, ", ")

	for i := range c.jobs {
		job := &c.jobs[i]
		idx := c.includeIndex(job)
		node := c.fieldNode(idx, "env")
		path := includePointer(idx, "env")

		if len(job.Env) == 0 {
			c.report(RuleEnvSelector, SeverityError, node, path,
				"job %d (%s): env is empty; expected exactly one %s assignment", job.Index, job.Name, label)
			continue
		}

		for _, tok := range job.Env.Malformed() {
			c.report(RuleEnvSelector, SeverityError, node, path,
				"job %d (%s): env entry %q is not a KEY=value assignment", job.Index, job.Name, tok)
		}

		n := 0
		for _, sel := range sels {
			n += job.Env.Count(sel)
		}
		switch {
		case n == 0:
			c.report(RuleEnvSelector, SeverityError, node, path,
				"job %d (%s): env assigns no recognized selector (%s)", job.Index, job.Name, label)
		case n > 1:
			c.report(RuleEnvSelector, SeverityError, node, path,
				"job %d (%s): env assigns a selector %d times; expected exactly one", job.Index, job.Name, n)
		}
	}
}

func checkDuplicateJob(c *ruleContext) {
	seen := make(map[travis.Identity]int, len(c.jobs))
	for i := range c.jobs {
		job := &c.jobs[i]
		id := job.Identity()
		if first, dup := seen[id]; dup {
			idx := c.includeIndex(job)
			c.report(RuleDuplicateJob, SeverityError, c.rowNode(idx), includePointer(idx, ""),
				"jobs %d and %d are identical (%s)", first, job.Index, id)
			continue
		}
		seen[id] = job.Index
	}
}

func checkScriptExists(c *ruleContext) {
	if c.opts.RepoRoot == "" {
		return
	}

	reported := make(map[string]bool)
	for i := range c.jobs {
		job := &c.jobs[i]
		idx := c.includeIndex(job)

		phases := []struct {
			name string
			cmds []string
		}{
			{"before_install", job.BeforeInstall},
			{"install", job.Install},
			{"script", job.Script},
		}

		for _, phase := range phases {
			for _, cmd := range phase.cmds {
				for _, ref := range scriptRefs(cmd) {
					if reported[ref] {
						continue
					}
					local := filepath.Join(c.opts.RepoRoot, filepath.FromSlash(strings.TrimPrefix(ref, "./")))
					if _, err := os.Stat(local); err == nil {
						reported[ref] = true
						continue
					}
					reported[ref] = true
					c.report(RuleScriptExists, SeverityError, c.fieldNode(idx, phase.name), includePointer(idx, phase.name),
						"job %d (%s): %s references %s, which does not exist in the repository", job.Index, job.Name, phase.name, ref)
				}
			}
		}
	}
}

// scriptRefs extracts repository-relative script paths from a shell
// command. Flags, URLs, and absolute paths are skipped; a token counts when
// it starts with "./" or is a relative path ending in a shell-script
// extension.
func scriptRefs(cmd string) []string {
	var refs []string
	for _, tok := range strings.Fields(cmd) {
		tok = strings.Trim(tok, `"'`)
		if tok == "" || strings.HasPrefix(tok, "-") {
			continue
		}
		if strings.Contains(tok, "://") || filepath.IsAbs(tok) {
			continue
		}
		if strings.HasPrefix(tok, "./") {
			refs = append(refs, tok)
			continue
		}
		if strings.Contains(tok, "/") && (strings.HasSuffix(tok, ".sh") || strings.HasSuffix(tok, ".bash")) {
			refs = append(refs, tok)
		}
	}
	return refs
}

func checkJobCount(c *ruleContext) {
	if c.opts.ExpectJobs <= 0 {
		return
	}
	if len(c.jobs) != c.opts.ExpectJobs {
		node := mapKey(docRoot(c.doc), "matrix")
		c.report(RuleJobCount, SeverityError, node, "/matrix",
			"matrix expands to %d jobs; expected %d", len(c.jobs), c.opts.ExpectJobs)
	}
}

func checkEmptyScript(c *ruleContext) {
	for i := range c.jobs {
		job := &c.jobs[i]
		if len(job.Script) > 0 {
			continue
		}
		idx := c.includeIndex(job)
		c.report(RuleEmptyScript, SeverityError, c.rowNode(idx), includePointer(idx, ""),
			"job %d (%s): no script phase resolves for this job", job.Index, job.Name)
	}
}

func checkUnknownOS(c *ruleContext) {
	for i := range c.jobs {
		job := &c.jobs[i]
		if job.OS == travis.OSLinux || job.OS == travis.OSOSX {
			continue
		}
		idx := c.includeIndex(job)
		c.report(RuleUnknownOS, SeverityError, c.fieldNode(idx, "os"), includePointer(idx, "os"),
			"job %d (%s): unrecognized os %q", job.Index, job.Name, job.OS)
	}
}

func checkPythonOnShell(c *ruleContext) {
	for i := range c.cfg.Matrix.Include {
		row := &c.cfg.Matrix.Include[i]
		job := c.expandedForInclude(i)
		if job == nil {
			continue
		}

		if row.Python != "" && job.Language == travis.LanguageShell {
			c.report(RulePythonOnShell, SeverityWarning, c.fieldNode(i, "python"), includePointer(i, "python"),
				"job %d (%s): the python key has no effect on shell jobs; set %s in env", job.Index, job.Name, travis.PythonVersionVar)
		}
	}

	for i := range c.jobs {
		job := &c.jobs[i]
		if job.OS != travis.OSOSX || job.Language != travis.LanguageShell {
			continue
		}
		if _, ok := job.Env.Lookup(travis.PythonVersionVar); ok {
			continue
		}
		idx := c.includeIndex(job)
		c.report(RulePythonOnShell, SeverityWarning, c.fieldNode(idx, "env"), includePointer(idx, "env"),
			"job %d (%s): osx shell job pins no interpreter; set %s in env", job.Index, job.Name, travis.PythonVersionVar)
	}
}

func checkOSXImageOnLinux(c *ruleContext) {
	for i := range c.cfg.Matrix.Include {
		row := &c.cfg.Matrix.Include[i]
		if row.OSXImage == "" {
			continue
		}
		job := c.expandedForInclude(i)
		if job == nil || job.OS == travis.OSOSX {
			continue
		}
		c.report(RuleOSXImageOnLinux, SeverityWarning, c.fieldNode(i, "osx_image"), includePointer(i, "osx_image"),
			"job %d (%s): osx_image is ignored on %s jobs", job.Index, job.Name, job.OS)
	}

	if c.cfg.OSXImage != "" && !c.anyOSXJob() {
		node := mapKey(docRoot(c.doc), "osx_image")
		c.report(RuleOSXImageOnLinux, SeverityWarning, node, "/osx_image",
			"osx_image is set but no job runs on osx")
	}
}

func (c *ruleContext) anyOSXJob() bool {
	for i := range c.jobs {
		if c.jobs[i].OS == travis.OSOSX {
			return true
		}
	}
	return false
}

func checkUnknownService(c *ruleContext) {
	known := make(map[string]bool, len(travis.KnownServices))
	for _, s := range travis.KnownServices {
		known[s] = true
	}

	root := docRoot(c.doc)
	for i, svc := range c.cfg.Services {
		if known[svc] {
			continue
		}
		node := seqItem(mapValue(root, "services"), i)
		if node == nil {
			node = mapValue(root, "services")
		}
		c.report(RuleUnknownService, SeverityWarning, node, fmt.Sprintf("/services/%d", i),
			"unknown service %q", svc)
	}

	for i := range c.cfg.Matrix.Include {
		row := &c.cfg.Matrix.Include[i]
		for _, svc := range row.Services {
			if known[svc] {
				continue
			}
			c.report(RuleUnknownService, SeverityWarning, c.fieldNode(i, "services"), includePointer(i, "services"),
				"unknown service %q", svc)
		}
	}
}

func checkUnknownKey(c *ruleContext) {
	root := docRoot(c.doc)
	if root == nil || root.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if recognizedKeys[key.Value] {
			continue
		}
		c.report(RuleUnknownKey, SeverityWarning, key, "/"+key.Value,
			"unrecognized top-level key %q", key.Value)
	}
}

func checkFastFinishNoop(c *ruleContext) {
	if !c.cfg.Matrix.FastFinish || len(c.jobs) >= 2 {
		return
	}
	root := docRoot(c.doc)
	node := mapValue(mapValue(root, "matrix"), "fast_finish")
	c.report(RuleFastFinishNoop, SeverityWarning, node, "/matrix/fast_finish",
		"fast_finish has no effect on a %d-job matrix", len(c.jobs))
}

func checkBranchPattern(c *ruleContext) {
	if c.cfg.Branches == nil {
		return
	}
	root := docRoot(c.doc)
	branches := mapValue(root, "branches")

	lists := []struct {
		name     string
		patterns []string
	}{
		{"only", c.cfg.Branches.Only},
		{"except", c.cfg.Branches.Except},
	}
	for _, l := range lists {
		for i, pattern := range l.patterns {
			if doublestar.ValidatePattern(pattern) {
				continue
			}
			node := seqItem(mapValue(branches, l.name), i)
			c.report(RuleBranchPattern, SeverityWarning, node, fmt.Sprintf("/branches/%s/%d", l.name, i),
				"invalid branch pattern %q", pattern)
		}
	}
}
