package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/trellis/internal/observability"
	"github.com/3leaps/trellis/pkg/audit"
	"github.com/3leaps/trellis/pkg/lint"
	"github.com/3leaps/trellis/pkg/manifest"
	"github.com/3leaps/trellis/pkg/match"
	"github.com/3leaps/trellis/pkg/output"
	"github.com/3leaps/trellis/pkg/source"
	filesource "github.com/3leaps/trellis/pkg/source/file"
	s3source "github.com/3leaps/trellis/pkg/source/s3"
)

var auditCmd = &cobra.Command{
	Use:   "audit [target]",
	Short: "Lint every Travis config under a directory or S3 prefix",
	Long: `Scan a file tree or S3 bucket for Travis CI configurations, lint each
one, and stream findings as JSONL records.

The target is a source URI. A plain path or file: URI audits the local
filesystem; an s3:// URI audits a bucket. The path part may end in a glob
that selects which keys to lint; without one, every **/.travis.yml under
the target is audited.

Recurring runs can be captured in a YAML or JSON manifest and replayed
with --job. Flags and the target argument override manifest values.

Example:
  trellis audit ./repos
  trellis audit './repos/2024/**/.travis.yml'
  trellis audit s3://ci-configs/mirrors/ --output findings.jsonl
  trellis audit s3://ci-configs/ --endpoint http://localhost:9000 --anonymous
  trellis audit --job audit.yaml
  trellis audit ./repos --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

var (
	auditJobPath       string
	auditOutput        string
	auditQuiet         bool
	auditDryRun        bool
	auditPlan          bool
	auditExcludes      []string
	auditHidden        bool
	auditConcurrency   int
	auditRateLimit     float64
	auditProgressEvery int
	auditMaxConfigSize int64
	auditExpectJobs    int
	auditRegion        string
	auditEndpoint      string
	auditProfile       string
	auditAnonymous     bool
)

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVarP(&auditJobPath, "job", "j", "", "Path to audit manifest")
	auditCmd.Flags().StringVarP(&auditOutput, "output", "o", "", "Output destination (default stdout)")
	auditCmd.Flags().BoolVarP(&auditQuiet, "quiet", "q", false, "Suppress progress records")
	auditCmd.Flags().BoolVar(&auditDryRun, "dry-run", false, "Validate target and show plan without executing")
	auditCmd.Flags().BoolVar(&auditPlan, "plan", false, "Alias for --dry-run")
	auditCmd.Flags().StringArrayVar(&auditExcludes, "exclude", nil, "Glob pattern to skip (repeatable)")
	auditCmd.Flags().BoolVar(&auditHidden, "hidden", false, "Descend into dot-directories")
	auditCmd.Flags().IntVar(&auditConcurrency, "concurrency", 0, "Concurrent fetch workers (default 4)")
	auditCmd.Flags().Float64Var(&auditRateLimit, "rate-limit", 0, "Max fetches per second (0 = unlimited)")
	auditCmd.Flags().IntVar(&auditProgressEvery, "progress-every", 0, "Objects listed between progress records (default 100)")
	auditCmd.Flags().Int64Var(&auditMaxConfigSize, "max-config-size", 0, "Largest config fetched in bytes (default 1 MiB)")
	auditCmd.Flags().IntVar(&auditExpectJobs, "expect-jobs", 0, "Assert each matrix expands to exactly N jobs")
	auditCmd.Flags().StringVar(&auditRegion, "region", "", "AWS region for s3 targets")
	auditCmd.Flags().StringVar(&auditEndpoint, "endpoint", "", "Custom endpoint for S3-compatible stores")
	auditCmd.Flags().StringVar(&auditProfile, "profile", "", "AWS profile for s3 targets")
	auditCmd.Flags().BoolVar(&auditAnonymous, "anonymous", false, "Skip request signing (public buckets)")
}

// auditTarget is the resolved form of the target argument: where to list
// from and which keys to lint once listed.
type auditTarget struct {
	uri source.URI

	// baseDir roots file-scheme listings. Keys are relative to it.
	baseDir string

	// include is the glob evaluated against listed keys.
	include string
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	raw := ""
	if len(args) == 1 {
		raw = args[0]
	}

	if auditJobPath != "" {
		m, err := manifest.Load(auditJobPath)
		if err != nil {
			observability.CLILogger.Error("Failed to load manifest",
				zap.String("path", auditJobPath),
				zap.Error(err))
			return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
		}
		observability.CLILogger.Debug("Loaded manifest",
			zap.String("path", auditJobPath),
			zap.String("source", m.Target.Source))
		raw = applyAuditManifest(m, raw)
	}
	if raw == "" {
		return exitError(foundry.ExitInvalidArgument, "Missing target",
			errors.New("a target argument or --job manifest is required"))
	}

	target, err := parseAuditTarget(raw)
	if err != nil {
		observability.CLILogger.Error("Failed to parse target",
			zap.String("target", raw),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid target", err)
	}

	observability.CLILogger.Debug("Resolved target",
		zap.String("scheme", target.uri.Scheme.String()),
		zap.String("bucket", target.uri.Bucket),
		zap.String("base_dir", target.baseDir),
		zap.String("include", target.include))

	if auditPlan || auditDryRun {
		return showAuditPlan(target)
	}

	return executeAudit(ctx, target)
}

// applyAuditManifest folds manifest values into the flag state and returns
// the target to audit. Flags the user set keep their values; unset flags
// take the manifest's. The target argument, when given, wins over the
// manifest's source.
func applyAuditManifest(m *manifest.Manifest, raw string) string {
	if raw == "" {
		raw = m.Target.Source
	}
	if auditRegion == "" {
		auditRegion = m.Target.Region
	}
	if auditEndpoint == "" {
		auditEndpoint = m.Target.Endpoint
	}
	if auditProfile == "" {
		auditProfile = m.Target.Profile
	}
	auditAnonymous = auditAnonymous || m.Target.Anonymous

	if len(auditExcludes) == 0 {
		auditExcludes = m.Match.Excludes
	}
	auditHidden = auditHidden || m.Match.IncludeHidden

	if auditConcurrency == 0 {
		auditConcurrency = m.Audit.Concurrency
	}
	if auditRateLimit == 0 {
		auditRateLimit = m.Audit.RateLimit
	}
	if auditProgressEvery == 0 {
		auditProgressEvery = m.Audit.ProgressEvery
	}
	if auditMaxConfigSize == 0 {
		auditMaxConfigSize = m.Audit.MaxConfigSize
	}
	if auditExpectJobs == 0 {
		auditExpectJobs = m.Audit.ExpectJobs
	}

	if auditOutput == "" {
		auditOutput = m.Output.Destination
	}
	auditQuiet = auditQuiet || !m.Output.ProgressEnabled()

	return raw
}

// parseAuditTarget splits the target argument into a source location and
// an include glob.
//
// A file path with no glob metacharacters is a base directory and gets the
// default pattern. A path ending in a glob splits at the last static
// segment: the static part becomes the base directory (file) or list
// prefix (s3), the remainder becomes the include pattern.
func parseAuditTarget(raw string) (auditTarget, error) {
	uri, err := source.ParseURI(raw)
	if err != nil {
		return auditTarget{}, err
	}

	prefix, glob := match.SplitPattern(uri.Path)

	switch uri.Scheme {
	case source.SchemeFile:
		if glob == "" {
			base := strings.TrimSuffix(prefix, "/")
			if base == "" {
				base = "."
			}
			return auditTarget{uri: uri, baseDir: base, include: match.DefaultPattern}, nil
		}
		base := strings.TrimSuffix(prefix, "/")
		if base == "" {
			base = "."
		}
		return auditTarget{uri: uri, baseDir: base, include: glob}, nil

	case source.SchemeS3:
		if glob == "" {
			if prefix == "" {
				return auditTarget{uri: uri, include: match.DefaultPattern}, nil
			}
			// A bare prefix audits everything underneath it. The matcher
			// sees full keys, so the pattern keeps the prefix.
			return auditTarget{uri: uri, include: match.EnsureTrailingSlash(prefix) + match.DefaultPattern}, nil
		}
		return auditTarget{uri: uri, include: prefix + glob}, nil

	default:
		return auditTarget{}, fmt.Errorf("%w: %s", source.ErrUnsupportedScheme, uri.Scheme)
	}
}

// showAuditPlan displays what would be audited without executing.
func showAuditPlan(target auditTarget) error {
	fmt.Println("=== Audit Plan (dry-run) ===")
	fmt.Println()
	fmt.Printf("Source:      %s\n", target.uri.Scheme)
	switch target.uri.Scheme {
	case source.SchemeFile:
		fmt.Printf("Base Dir:    %s\n", target.baseDir)
	case source.SchemeS3:
		fmt.Printf("Bucket:      %s\n", target.uri.Bucket)
		if auditRegion != "" {
			fmt.Printf("Region:      %s\n", auditRegion)
		}
		if auditEndpoint != "" {
			fmt.Printf("Endpoint:    %s\n", auditEndpoint)
		}
	}
	fmt.Println()
	fmt.Println("Patterns:")
	fmt.Println("  Include:")
	fmt.Printf("    - %s\n", target.include)
	if len(auditExcludes) > 0 {
		fmt.Println("  Exclude:")
		for _, p := range auditExcludes {
			fmt.Printf("    - %s\n", p)
		}
	}
	fmt.Println()

	cfg := auditConfig()
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	if cfg.RateLimit > 0 {
		fmt.Printf("Rate Limit:  %.1f req/s\n", cfg.RateLimit)
	}
	if cfg.Lint.ExpectJobs > 0 {
		fmt.Printf("Expect Jobs: %d\n", cfg.Lint.ExpectJobs)
	}
	dest := auditOutput
	if dest == "" {
		dest = "stdout"
	}
	fmt.Printf("Output:      %s\n", dest)
	fmt.Printf("Progress:    %v\n", !auditQuiet)
	fmt.Println()
	fmt.Println("Target validated successfully. Remove --dry-run to execute.")
	return nil
}

// executeAudit runs the audit pipeline against the resolved target.
func executeAudit(ctx context.Context, target auditTarget) error {
	// Generate the run ID early so the writer can stamp every record
	runID := uuid.New().String()

	src, err := createAuditSource(ctx, target)
	if err != nil {
		observability.CLILogger.Error("Failed to open source", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open source", err)
	}
	defer func() { _ = src.Close() }()

	matcher, err := match.New(match.Config{
		Includes:          []string{target.include},
		Excludes:          auditExcludes,
		IncludeHiddenDirs: auditHidden,
	})
	if err != nil {
		observability.CLILogger.Error("Failed to create matcher", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid match patterns", err)
	}

	writer, cleanup, err := createAuditWriter(auditOutput, runID, target.uri.String())
	if err != nil {
		observability.CLILogger.Error("Failed to create writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()
	if auditQuiet {
		writer = quietWriter{writer}
	}

	a := audit.New(src, matcher, writer, runID, auditConfig())

	observability.CLILogger.Info("Starting audit",
		zap.String("run_id", runID),
		zap.String("target", target.uri.String()),
		zap.String("include", target.include))

	summary, err := a.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			fields := []zap.Field{zap.String("run_id", runID)}
			if summary != nil {
				fields = append(fields, zap.Int64("configs_scanned", summary.ConfigsScanned))
			}
			observability.CLILogger.Warn("Audit cancelled", fields...)
			return exitError(foundry.ExitSignalInt, "Audit cancelled", err)
		}
		observability.CLILogger.Error("Audit failed",
			zap.String("run_id", runID),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Audit failed", err)
	}

	observability.CLILogger.Info("Audit completed",
		zap.String("run_id", runID),
		zap.Int64("objects_listed", summary.ObjectsListed),
		zap.Int64("configs_scanned", summary.ConfigsScanned),
		zap.Int64("configs_clean", summary.ConfigsClean),
		zap.Int64("problems_found", summary.ProblemsFound),
		zap.Int64("errors", summary.Errors),
		zap.Duration("elapsed", summary.Elapsed))

	return nil
}

// auditConfig assembles the pipeline configuration from flags. Zero values
// fall through to the pipeline defaults.
func auditConfig() audit.Config {
	cfg := audit.DefaultConfig()
	if auditConcurrency > 0 {
		cfg.Concurrency = auditConcurrency
	}
	cfg.RateLimit = auditRateLimit
	if auditProgressEvery > 0 {
		cfg.ProgressEvery = auditProgressEvery
	}
	if auditMaxConfigSize != 0 {
		cfg.MaxConfigSize = auditMaxConfigSize
	}
	cfg.Lint = lint.Options{ExpectJobs: auditExpectJobs}
	return cfg
}

// createAuditSource opens the source named by the target.
func createAuditSource(ctx context.Context, target auditTarget) (source.Source, error) {
	switch target.uri.Scheme {
	case source.SchemeFile:
		return filesource.New(filesource.Config{BaseDir: target.baseDir})
	case source.SchemeS3:
		return s3source.New(ctx, s3source.Config{
			Bucket:    target.uri.Bucket,
			Region:    auditRegion,
			Endpoint:  auditEndpoint,
			Profile:   auditProfile,
			Anonymous: auditAnonymous,
			// S3-compatible services (moto, MinIO, etc.) require
			// path-style URLs.
			ForcePathStyle: auditEndpoint != "",
		})
	default:
		return nil, fmt.Errorf("%w: %s", source.ErrUnsupportedScheme, target.uri.Scheme)
	}
}

// createAuditWriter creates an output writer for the destination.
// Returns the writer, a cleanup function, and any error.
func createAuditWriter(dest, runID, sourceLabel string) (output.Writer, func(), error) {
	if dest == "" || dest == "stdout" {
		w := output.NewJSONLWriter(os.Stdout, runID, sourceLabel)
		return w, func() { _ = w.Close() }, nil
	}

	// Handle file: prefix
	path := dest
	if strings.HasPrefix(dest, "file:") {
		path = strings.TrimPrefix(dest, "file:")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, runID, sourceLabel)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}

// quietWriter drops progress records for runs where only findings matter.
type quietWriter struct {
	output.Writer
}

func (q quietWriter) WriteProgress(ctx context.Context, prog *output.ProgressRecord) error {
	return nil
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{
		code: code,
		err:  fmt.Errorf("%s: %w (exit code %d)", message, err, code),
	}
}
