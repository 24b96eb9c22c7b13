package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/trellis/internal/observability"
	"github.com/3leaps/trellis/pkg/lint"
	"github.com/3leaps/trellis/pkg/output"
)

var lintCmd = &cobra.Command{
	Use:   "lint [path]",
	Short: "Lint a Travis configuration",
	Long: `Check a Travis CI configuration against matrix invariants and common
authoring mistakes: selector variables missing from job environments,
duplicate expanded jobs, scripts that do not exist in the repository,
platform keys that contradict each other, and more.

Findings print one per line in file:line:col style. The command exits
non-zero when any error-severity finding is present; warnings alone
exit zero.

Example:
  trellis lint
  trellis lint ci/.travis.yml
  trellis lint --expect-jobs 11
  trellis lint --format json .travis.yml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLint,
}

var (
	lintRepoRoot   string
	lintExpectJobs int
	lintFormat     string
	lintSeverity   string
	lintSelectors  []string
)

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVar(&lintRepoRoot, "repo-root", "", "Directory referenced scripts resolve against (default: the config's directory)")
	lintCmd.Flags().IntVar(&lintExpectJobs, "expect-jobs", 0, "Assert the matrix expands to exactly N jobs")
	lintCmd.Flags().StringVar(&lintFormat, "format", "text", "Output format (text|json|jsonl)")
	lintCmd.Flags().StringVar(&lintSeverity, "severity", "warning", "Lowest severity to report (warning|error)")
	lintCmd.Flags().StringArrayVar(&lintSelectors, "selector", nil, "Environment variable treated as a task selector (repeatable, default TOXENV)")
}

func runLint(cmd *cobra.Command, args []string) error {
	path := ".travis.yml"
	if len(args) == 1 {
		path = args[0]
	}

	switch lintSeverity {
	case "warning", "error":
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --severity value", fmt.Errorf("unsupported severity: %s", lintSeverity))
	}

	repoRoot := lintRepoRoot
	if repoRoot == "" {
		repoRoot = filepath.Dir(path)
	}

	opts := lint.Options{
		RepoRoot:   repoRoot,
		ExpectJobs: lintExpectJobs,
		Selectors:  lintSelectors,
	}

	res, err := lint.RunFile(path, opts)
	if err != nil {
		observability.CLILogger.Error("Failed to lint config",
			zap.String("path", path),
			zap.Error(err))
		if errors.Is(err, fs.ErrNotExist) {
			return exitError(foundry.ExitFileNotFound, "Config not found", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to lint config", err)
	}

	problems := res.Problems
	if lintSeverity == "error" {
		problems = filterErrors(problems)
	}

	switch lintFormat {
	case "text":
		for _, p := range problems {
			fmt.Println(formatProblem(res.Path, p))
		}
		observability.CLILogger.Info(fmt.Sprintf("%s: %d jobs, %d errors, %d warnings",
			res.Path, res.JobCount, res.Errors(), res.Warnings()))

	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		shown := *res
		shown.Problems = problems
		if err := enc.Encode(&shown); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write result", err)
		}

	case "jsonl":
		if err := writeLintJSONL(cmd, res, problems); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write result", err)
		}

	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --format value", fmt.Errorf("unsupported format: %s", lintFormat))
	}

	// The verdict counts all findings, not just the displayed ones.
	if res.HasErrors() {
		return fmt.Errorf("%d error(s) in %s", res.Errors(), res.Path)
	}
	return nil
}

// formatProblem renders a finding with its file path prefix. Findings
// without a source position get a plain "path: severity" prefix instead
// of an empty line:col slot.
func formatProblem(path string, p lint.Problem) string {
	if p.Line > 0 {
		return fmt.Sprintf("%s:%s", path, p)
	}
	return fmt.Sprintf("%s: %s", path, p)
}

// filterErrors keeps only error-severity findings.
func filterErrors(problems []lint.Problem) []lint.Problem {
	out := make([]lint.Problem, 0, len(problems))
	for _, p := range problems {
		if p.Severity == lint.SeverityError {
			out = append(out, p)
		}
	}
	return out
}

// writeLintJSONL emits the result as problem records followed by a
// config record, the same stream an audit run produces.
func writeLintJSONL(cmd *cobra.Command, res *lint.Result, problems []lint.Problem) error {
	ctx := cmd.Context()
	w := output.NewJSONLWriter(os.Stdout, uuid.New().String(), res.Path)
	defer func() { _ = w.Close() }()

	for _, p := range problems {
		rec := &output.ProblemRecord{
			ConfigPath: res.Path,
			Rule:       p.Rule,
			Severity:   string(p.Severity),
			Message:    p.Message,
			Pointer:    p.Path,
			Line:       p.Line,
			Col:        p.Col,
		}
		if err := w.WriteProblem(ctx, rec); err != nil {
			return err
		}
	}

	return w.WriteConfig(ctx, &output.ConfigRecord{
		Path:     res.Path,
		JobCount: res.JobCount,
		Errors:   res.Errors(),
		Warnings: res.Warnings(),
		Clean:    res.Clean(),
	})
}
