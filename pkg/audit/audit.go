// Package audit implements a bounded streaming pipeline for linting
// build-matrix configurations held in a source.
//
// The auditor coordinates three stages:
//   - Listers: fetch key listings from the source (parallelized by prefix)
//   - Matcher: filters keys by glob patterns
//   - Workers: fetch each matched configuration, lint it, emit JSONL records
//
// Bounded channels between stages provide backpressure to prevent memory
// exhaustion on large buckets.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/3leaps/trellis/pkg/lint"
	"github.com/3leaps/trellis/pkg/match"
	"github.com/3leaps/trellis/pkg/output"
	"github.com/3leaps/trellis/pkg/source"
)

// Config configures auditor behavior.
type Config struct {
	// Concurrency is the number of parallel source operations. Each prefix
	// from Matcher.Prefixes() can be listed concurrently, and the same
	// number of workers fetch and lint matched configurations.
	// Default: 4
	Concurrency int

	// ChannelBuffer is the size of bounded channels between pipeline stages.
	// Larger buffers reduce blocking but increase memory usage.
	// Default: 1000
	ChannelBuffer int

	// RateLimit is the maximum requests per second to the source, applied
	// to listing calls and object fetches. Zero means unlimited (the
	// source handles its own throttling).
	// Default: 0
	RateLimit float64

	// ProgressEvery controls how often progress records are emitted.
	// A progress record is written every N linted configurations.
	// Default: 100
	ProgressEvery int

	// MaxConfigSize is the largest configuration the auditor will fetch,
	// in bytes. Oversized objects are skipped with an error record.
	// Zero applies the default; negative disables the cap.
	// Default: 1 MiB
	MaxConfigSize int64

	// Lint configures the per-configuration lint run. RepoRoot is normally
	// left empty for remote audits, which disables the script-exists rule.
	Lint lint.Options
}

// DefaultConfig returns the default auditor configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		ChannelBuffer: 1000,
		RateLimit:     0,
		ProgressEvery: 100,
		MaxConfigSize: 1 << 20,
	}
}

// Summary contains aggregate statistics from a completed audit.
type Summary struct {
	// ObjectsListed is the total number of keys seen from the source.
	ObjectsListed int64

	// ConfigsScanned is the number of configurations fetched and linted.
	ConfigsScanned int64

	// ConfigsClean is the number of configurations without findings.
	ConfigsClean int64

	// ProblemsFound is the total number of lint findings.
	ProblemsFound int64

	// Errors is the count of non-fatal errors encountered.
	Errors int64

	// Elapsed is the total time spent auditing.
	Elapsed time.Duration

	// Globs lists the patterns that selected configurations.
	Globs []string
}

// Auditor executes a lint run against every matching configuration in a
// source.
//
// Auditor is safe for single use only. Create a new Auditor for each run.
type Auditor struct {
	src     source.Source
	matcher *match.Matcher
	writer  output.Writer
	config  Config
	runID   string

	prefixes []string

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter

	// Atomic counters for stats
	objectsListed  atomic.Int64
	configsScanned atomic.Int64
	configsClean   atomic.Int64
	problemsFound  atomic.Int64
	errorCount     atomic.Int64
}

// New creates a new auditor.
//
// Parameters:
//   - src: Source for listing and fetching configurations
//   - m: Matcher for selecting keys by pattern
//   - w: Writer for JSONL output
//   - runID: Correlation ID for this audit run
//   - cfg: Auditor configuration (use DefaultConfig() as base)
func New(src source.Source, m *match.Matcher, w output.Writer, runID string, cfg Config) *Auditor {
	// Apply defaults for zero values
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = DefaultConfig().ChannelBuffer
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultConfig().ProgressEvery
	}
	if cfg.MaxConfigSize == 0 {
		cfg.MaxConfigSize = DefaultConfig().MaxConfigSize
	}

	a := &Auditor{
		src:     src,
		matcher: m,
		writer:  w,
		config:  cfg,
		runID:   runID,
	}

	// Set up rate limiter if configured
	if cfg.RateLimit > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return a
}

// WithPrefixes overrides the prefixes to list.
//
// When set, the auditor lists these prefixes instead of matcher-derived
// prefixes.
func (a *Auditor) WithPrefixes(prefixes []string) *Auditor {
	a.prefixes = prefixes
	return a
}

// Run executes the audit and returns summary statistics.
//
// Run blocks until the audit completes, is cancelled via context, or
// encounters a fatal error. Non-fatal errors (e.g., permission denied
// on a single object) are written as error records and counted in the
// summary.
//
// The audit can be cancelled by cancelling the context. Cancellation
// is graceful: in-flight operations complete, channels are drained,
// and a partial summary is returned.
func (a *Auditor) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()

	// Get prefixes to list
	prefixes := a.prefixes
	if prefixes == nil {
		prefixes = a.matcher.Prefixes()
	}
	if len(prefixes) == 0 {
		// No prefixes means match everything - use empty prefix
		prefixes = []string{""}
	}

	globs := a.matcher.IncludePatterns()

	// Write initial progress
	if err := a.writeProgress(ctx, output.PhaseStarting, ""); err != nil {
		return nil, err
	}

	// Run the pipeline
	if err := a.runPipeline(ctx, prefixes); err != nil {
		if isCancellation(err) {
			// Return partial summary on cancellation
			return a.buildSummary(globs, time.Since(startTime)), err
		}
		return nil, err
	}

	// Write final progress
	if err := a.writeProgress(ctx, output.PhaseComplete, ""); err != nil {
		return nil, err
	}

	summary := a.buildSummary(globs, time.Since(startTime))

	// Write final summary record
	if err := a.writeSummary(ctx, summary); err != nil {
		return summary, err
	}

	return summary, nil
}

// buildSummary creates a Summary from the atomic counters.
func (a *Auditor) buildSummary(globs []string, elapsed time.Duration) *Summary {
	return &Summary{
		ObjectsListed:  a.objectsListed.Load(),
		ConfigsScanned: a.configsScanned.Load(),
		ConfigsClean:   a.configsClean.Load(),
		ProblemsFound:  a.problemsFound.Load(),
		Errors:         a.errorCount.Load(),
		Elapsed:        elapsed,
		Globs:          globs,
	}
}

// writeProgress emits a progress record.
func (a *Auditor) writeProgress(ctx context.Context, phase, key string) error {
	prog := &output.ProgressRecord{
		Phase:          phase,
		ConfigsScanned: a.configsScanned.Load(),
		ProblemsFound:  a.problemsFound.Load(),
		Key:            key,
	}
	return a.writer.WriteProgress(ctx, prog)
}

// writeSummary emits a summary record.
func (a *Auditor) writeSummary(ctx context.Context, summary *Summary) error {
	sum := &output.SummaryRecord{
		ConfigsScanned: summary.ConfigsScanned,
		ConfigsClean:   summary.ConfigsClean,
		ProblemsFound:  summary.ProblemsFound,
		Errors:         summary.Errors,
		Duration:       summary.Elapsed,
		DurationHuman:  summary.Elapsed.Round(time.Millisecond).String(),
		Globs:          summary.Globs,
	}
	return a.writer.WriteSummary(ctx, sum)
}

// writeError emits an error record and increments the error counter.
func (a *Auditor) writeError(ctx context.Context, code, message, key string) {
	a.errorCount.Add(1)

	errRec := &output.ErrorRecord{
		Code:    code,
		Message: message,
		Key:     key,
	}

	// Best effort - don't fail the audit if we can't write the error
	_ = a.writer.WriteError(ctx, errRec)
}

// waitForRateLimit blocks until the rate limiter allows a request.
// Returns immediately if rate limiting is disabled.
func (a *Auditor) waitForRateLimit(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

// isCancellation reports whether err stems from context cancellation,
// either directly or classified by a source.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		source.IsCanceled(err)
}

// listItem represents a listed key flowing through the pipeline.
type listItem struct {
	info   source.ObjectInfo
	prefix string // The prefix this key was listed under
}

// runPipeline orchestrates the lister → matcher → worker pipeline.
func (a *Auditor) runPipeline(ctx context.Context, prefixes []string) error {
	// Create a cancellable context for the pipeline
	pipeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Channels between stages
	listCh := make(chan listItem, a.config.ChannelBuffer)
	matchCh := make(chan listItem, a.config.ChannelBuffer)

	// Error channel for fatal errors from any stage
	errCh := make(chan error, 1)

	var wg sync.WaitGroup

	// Start lister goroutines (one per prefix, limited by concurrency)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(listCh)
		if err := a.runListers(pipeCtx, prefixes, listCh); err != nil {
			select {
			case errCh <- err:
			default:
			}
			cancel()
		}
	}()

	// Start matcher goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(matchCh)
		a.runMatcher(pipeCtx, listCh, matchCh)
	}()

	// Start worker pool
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.runWorkers(pipeCtx, matchCh); err != nil {
			select {
			case errCh <- err:
			default:
			}
			cancel()
		}
	}()

	// Wait for all goroutines to complete
	wg.Wait()

	// Check for fatal errors
	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

// runListers runs listing operations for all prefixes with bounded concurrency.
func (a *Auditor) runListers(ctx context.Context, prefixes []string, out chan<- listItem) error {
	// Use a semaphore to limit concurrency
	sem := make(chan struct{}, a.config.Concurrency)

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for _, prefix := range prefixes {
		// Acquire semaphore or bail on cancellation.
		// We must only release the semaphore if we successfully acquired it,
		// so we use a select that either acquires or returns early.
		select {
		case <-ctx.Done():
			// Context cancelled before we could acquire - exit the loop
			// (break here only exits select, so we rely on the ctx.Err check below)
		case sem <- struct{}{}:
			// Successfully acquired semaphore - proceed to launch goroutine
		}

		// Check if we exited due to cancellation
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore we acquired above

			if err := a.listPrefix(ctx, p, out); err != nil {
				// Capture first error
				errOnce.Do(func() {
					firstErr = err
				})
			}
		}(prefix)
	}

	wg.Wait()
	return firstErr
}

// listPrefix lists all keys with the given prefix and sends them to the
// channel.
func (a *Auditor) listPrefix(ctx context.Context, prefix string, out chan<- listItem) error {
	// Wait for rate limiter
	if err := a.waitForRateLimit(ctx); err != nil {
		return err
	}

	err := a.src.List(ctx, prefix, func(info source.ObjectInfo) error {
		a.objectsListed.Add(1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- listItem{info: info, prefix: prefix}:
			return nil
		}
	})
	if err != nil {
		// Classify the error
		switch {
		case isCancellation(err):
			return err
		case source.IsAccessDenied(err):
			a.writeError(ctx, output.ErrCodeAccessDenied, err.Error(), prefix)
			return nil // Non-fatal: skip this prefix
		case source.IsNotFound(err):
			a.writeError(ctx, output.ErrCodeNotFound, err.Error(), prefix)
			return nil // Non-fatal: skip this prefix
		case source.IsThrottled(err):
			a.writeError(ctx, output.ErrCodeThrottled, err.Error(), prefix)
			return nil
		default:
			// Fatal error
			return err
		}
	}

	return nil
}

// runMatcher filters keys by glob patterns and forwards matches to the
// worker channel.
func (a *Auditor) runMatcher(ctx context.Context, in <-chan listItem, out chan<- listItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-in:
			if !ok {
				return // Input channel closed
			}

			if !a.matcher.Match(item.info.Key) {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- item:
			}
		}
	}
}

// runWorkers fetches and lints matched configurations with a pool of
// workers.
func (a *Auditor) runWorkers(ctx context.Context, in <-chan listItem) error {
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i := 0; i < a.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-in:
					if !ok {
						return // Input channel closed
					}
					if err := a.auditConfig(ctx, item.info); err != nil {
						// Capture first error
						errOnce.Do(func() {
							firstErr = err
						})
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	return firstErr
}

// auditConfig fetches one configuration, lints it, and writes the
// resulting records. Source failures on individual objects are recorded
// and skipped; only writer and internal lint failures are fatal.
func (a *Auditor) auditConfig(ctx context.Context, info source.ObjectInfo) error {
	if a.config.MaxConfigSize > 0 && info.Size > a.config.MaxConfigSize {
		a.writeError(ctx, output.ErrCodeTooLarge,
			fmt.Sprintf("config is %d bytes, cap is %d", info.Size, a.config.MaxConfigSize), info.Key)
		return nil
	}

	// Wait for rate limiter
	if err := a.waitForRateLimit(ctx); err != nil {
		return err
	}

	body, _, err := a.src.Get(ctx, info.Key)
	if err != nil {
		return a.recordFetchError(ctx, info.Key, err)
	}

	data, err := readCapped(body, a.config.MaxConfigSize)
	_ = body.Close()
	if err != nil {
		switch {
		case isCancellation(err):
			return err
		case errors.Is(err, errConfigTooLarge):
			a.writeError(ctx, output.ErrCodeTooLarge, err.Error(), info.Key)
		default:
			a.writeError(ctx, output.ErrCodeInternal, err.Error(), info.Key)
		}
		return nil
	}

	res, err := lint.Run(data, info.Key, a.config.Lint)
	if err != nil {
		// Internal lint failure (e.g. broken embedded schema) - fatal
		return err
	}

	for i := range res.Problems {
		p := &res.Problems[i]
		rec := &output.ProblemRecord{
			ConfigPath: info.Key,
			Rule:       p.Rule,
			Severity:   string(p.Severity),
			Message:    p.Message,
			Pointer:    p.Path,
			Line:       p.Line,
			Col:        p.Col,
		}
		if err := a.writer.WriteProblem(ctx, rec); err != nil {
			return err
		}
	}
	a.problemsFound.Add(int64(len(res.Problems)))

	cfgRec := &output.ConfigRecord{
		Path:     info.Key,
		JobCount: res.JobCount,
		Errors:   res.Errors(),
		Warnings: res.Warnings(),
		Clean:    res.Clean(),
	}
	if err := a.writer.WriteConfig(ctx, cfgRec); err != nil {
		return err
	}

	if res.Clean() {
		a.configsClean.Add(1)
	}

	// Emit progress periodically
	if n := a.configsScanned.Add(1); a.config.ProgressEvery > 0 && n%int64(a.config.ProgressEvery) == 0 {
		if err := a.writeProgress(ctx, output.PhaseScanning, info.Key); err != nil {
			return err
		}
	}

	return nil
}

// recordFetchError classifies a Get failure. Known source errors become
// error records and the object is skipped; cancellation is fatal.
func (a *Auditor) recordFetchError(ctx context.Context, key string, err error) error {
	switch {
	case isCancellation(err):
		return err
	case source.IsNotFound(err):
		// Object listed but gone by fetch time
		a.writeError(ctx, output.ErrCodeNotFound, err.Error(), key)
	case source.IsAccessDenied(err):
		a.writeError(ctx, output.ErrCodeAccessDenied, err.Error(), key)
	case source.IsThrottled(err):
		a.writeError(ctx, output.ErrCodeThrottled, err.Error(), key)
	default:
		a.writeError(ctx, output.ErrCodeInternal, err.Error(), key)
	}
	return nil
}

// errConfigTooLarge signals that a fetched body exceeded the size cap.
var errConfigTooLarge = errors.New("config exceeds size cap")

// readCapped reads r fully, failing with errConfigTooLarge when the body
// exceeds max bytes. A non-positive max disables the cap.
func readCapped(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errConfigTooLarge
	}
	return data, nil
}
