package cmd

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/trellis/internal/observability"
	"github.com/3leaps/trellis/pkg/workflow"
)

var convertCmd = &cobra.Command{
	Use:   "convert [path]",
	Short: "Convert a Travis configuration to a GitHub Actions workflow",
	Long: `Render a Travis build matrix as a GitHub Actions workflow with one
workflow job per expanded matrix job. Axis values map to runner labels
and setup steps, allow_failures becomes continue-on-error, and branch
restrictions become push filters.

fast_finish has no counterpart in the output: the nearest setting,
fail-fast, cancels in-progress jobs, which the source setting never did.
Use 'trellis report' for reporting-time fast-finish semantics.

Example:
  trellis convert
  trellis convert ci/.travis.yml -o .github/workflows/ci.yml
  trellis convert --name nightly`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

var (
	convertOutput string
	convertName   string
)

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "Workflow destination (default stdout)")
	convertCmd.Flags().StringVar(&convertName, "name", "", "Workflow name (default ci)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	path := ".travis.yml"
	if len(args) == 1 {
		path = args[0]
	}

	cfg, err := loadTravisConfig(path)
	if err != nil {
		return err
	}

	wf := workflow.FromConfig(cfg, workflow.Options{Name: convertName})

	data, err := wf.Render(path)
	if err != nil {
		return fmt.Errorf("failed to render workflow: %w", err)
	}

	if convertOutput == "" || convertOutput == "-" || convertOutput == "stdout" {
		_, err = os.Stdout.Write(data)
		return err
	}

	if err := os.WriteFile(convertOutput, data, 0o644); err != nil {
		observability.CLILogger.Error("Failed to write workflow",
			zap.String("path", convertOutput),
			zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to write workflow", err)
	}

	observability.CLILogger.Info(fmt.Sprintf("Wrote %s (%d jobs)", convertOutput, len(wf.Jobs)))
	return nil
}
