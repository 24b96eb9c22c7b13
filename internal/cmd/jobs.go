package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/trellis/internal/observability"
	"github.com/3leaps/trellis/pkg/travis"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [path]",
	Short: "List the jobs a build matrix expands to",
	Long: `Expand a Travis configuration into the concrete job list the platform
would schedule: the cartesian product of the os, python, and env axes,
minus exclusions, plus explicit include rows.

Example:
  trellis jobs
  trellis jobs ci/.travis.yml
  trellis jobs --count
  trellis jobs --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var (
	jobsJSON  bool
	jobsCount bool
)

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "Output as JSON")
	jobsCmd.Flags().BoolVar(&jobsCount, "count", false, "Print only the number of jobs")
}

func runJobs(cmd *cobra.Command, args []string) error {
	path := ".travis.yml"
	if len(args) == 1 {
		path = args[0]
	}

	cfg, err := loadTravisConfig(path)
	if err != nil {
		return err
	}

	jobs := cfg.Expand()

	if jobsCount {
		fmt.Println(len(jobs))
		return nil
	}

	if jobsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "#\tNAME\tOS\tRUNTIME\tENV\tALLOW FAILURE")
	for _, j := range jobs {
		runtime := j.RuntimeVersion
		if runtime == "" {
			runtime = "-"
		}
		env := strings.Join(j.Env, " ")
		if env == "" {
			env = "-"
		}
		allowed := "-"
		if j.AllowFailure {
			allowed = "yes"
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			j.Index,
			j.Name,
			j.OS,
			runtime,
			env,
			allowed,
		)
	}

	return nil
}

// loadTravisConfig reads and validates the configuration at path, mapping
// failures to exit codes.
func loadTravisConfig(path string) (*travis.Config, error) {
	cfg, err := travis.Load(path)
	if err != nil {
		observability.CLILogger.Error("Failed to load config",
			zap.String("path", path),
			zap.Error(err))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, exitError(foundry.ExitFileNotFound, "Config not found", err)
		}
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid config", err)
	}
	return cfg, nil
}
