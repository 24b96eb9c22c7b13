package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/trellis/internal/observability"
	"github.com/3leaps/trellis/pkg/output"
	"github.com/3leaps/trellis/pkg/report"
	"github.com/3leaps/trellis/pkg/travis"
)

var reportCmd = &cobra.Command{
	Use:   "report [results.jsonl]",
	Short: "Aggregate recorded job results into a matrix verdict",
	Long: `Read a stream of job result records and compute the aggregate matrix
verdict. A failed or errored required job fails the matrix; allow-failure
jobs never change the verdict.

With --config, the expanded matrix seeds the expected job set and the
config's fast_finish setting applies: the verdict is reported as soon as
no future result can change it, instead of waiting for allow-failure
stragglers. Without an input file, records are read from stdin.

The command exits non-zero when the verdict is failed or canceled.

Example:
  trellis report results.jsonl
  trellis report results.jsonl --config .travis.yml
  trellis report results.jsonl --fast-finish on
  some-ci export | trellis report --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

var (
	reportConfig     string
	reportFastFinish string
	reportJSON       bool
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportConfig, "config", "", "Travis config that seeds the expected job set")
	reportCmd.Flags().StringVar(&reportFastFinish, "fast-finish", "", "Override fast finish (on|off)")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Output as JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	in := io.Reader(os.Stdin)
	streamName := "stdin"
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			observability.CLILogger.Error("Failed to open results",
				zap.String("path", args[0]),
				zap.Error(err))
			if errors.Is(err, fs.ErrNotExist) {
				return exitError(foundry.ExitFileNotFound, "Results not found", err)
			}
			return exitError(foundry.ExitFileReadError, "Failed to open results", err)
		}
		defer func() { _ = f.Close() }()
		in = f
		streamName = args[0]
	}

	fastFinish := false
	var seedJobs []travis.ExpandedJob
	if reportConfig != "" {
		cfg, err := loadTravisConfig(reportConfig)
		if err != nil {
			return err
		}
		fastFinish = cfg.Matrix.FastFinish
		seedJobs = cfg.Expand()
	}

	switch reportFastFinish {
	case "":
	case "on":
		fastFinish = true
	case "off":
		fastFinish = false
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --fast-finish value", fmt.Errorf("unsupported value: %s (use on or off)", reportFastFinish))
	}

	agg := report.New(fastFinish)
	if seedJobs != nil {
		agg.Seed(seedJobs)
	}

	resultCount, err := consumeResults(agg, in)
	if err != nil {
		return err
	}

	verdict := agg.Finalize()

	observability.CLILogger.Debug("Report computed",
		zap.String("stream", streamName),
		zap.Int("results", resultCount),
		zap.String("verdict", string(verdict)))

	if reportJSON {
		if err := printReportJSON(agg, verdict, fastFinish, resultCount); err != nil {
			return err
		}
	} else {
		printReportTable(agg, verdict, fastFinish, resultCount)
	}

	if verdict != report.VerdictPassed {
		return fmt.Errorf("matrix %s", verdict)
	}
	return nil
}

// consumeResults folds every job result record in the stream into the
// aggregator. Records of other types are skipped; results the aggregator
// rejects (duplicate terminals, out-of-range indices) are logged and
// skipped so one bad record does not discard a whole run.
func consumeResults(agg *report.Aggregator, in io.Reader) (int, error) {
	dec := output.NewDecoder(in)
	count := 0
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, exitError(foundry.ExitInvalidArgument, "Invalid results stream", err)
		}
		if rec.Type != output.TypeJobResult {
			continue
		}

		var r report.JobResult
		if err := rec.Decode(&r); err != nil {
			return count, exitError(foundry.ExitInvalidArgument, "Invalid job result record", err)
		}
		count++

		if err := agg.Add(r); err != nil {
			observability.CLILogger.Warn("Skipping result",
				zap.Int("index", r.Index),
				zap.Error(err))
		}
	}
}

func printReportJSON(agg *report.Aggregator, verdict report.Verdict, fastFinish bool, resultCount int) error {
	out := struct {
		Verdict    report.Verdict           `json:"verdict"`
		FastFinish bool                     `json:"fast_finish"`
		DecidedAt  int                      `json:"decided_at"`
		Results    int                      `json:"results"`
		Counts     map[report.JobStatus]int `json:"counts"`
		Jobs       []report.JobResult       `json:"jobs"`
	}{
		Verdict:    verdict,
		FastFinish: fastFinish,
		DecidedAt:  agg.DecidedAt(),
		Results:    resultCount,
		Counts:     agg.Counts(),
		Jobs:       agg.Results(),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(&out)
}

func printReportTable(agg *report.Aggregator, verdict report.Verdict, fastFinish bool, resultCount int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "#\tNAME\tSTATUS\tDURATION\tALLOW FAILURE")
	for _, job := range agg.Results() {
		name := job.Name
		if name == "" {
			name = "-"
		}
		duration := "-"
		if d := job.Duration(); d > 0 {
			duration = d.String()
		}
		allowed := "-"
		if job.AllowFailure {
			allowed = "yes"
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			job.Index,
			name,
			job.Status,
			duration,
			allowed,
		)
	}
	_ = w.Flush()

	fmt.Println()
	if fastFinish && agg.DecidedAt() > 0 && agg.DecidedAt() < resultCount {
		fmt.Printf("Verdict: %s (decided after %d of %d results)\n", verdict, agg.DecidedAt(), resultCount)
		return
	}
	fmt.Printf("Verdict: %s\n", verdict)
}
