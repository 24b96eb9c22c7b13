// Package output provides JSONL output for lint and audit results.
//
// Output is structured as typed record envelopes containing problems,
// per-config outcomes, job results, errors, and progress updates. Each
// line is a self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: trellis.<type>.v<version>
const (
	// TypeProblem identifies lint finding records.
	TypeProblem = "trellis.problem.v1"

	// TypeConfig identifies per-configuration outcome records.
	TypeConfig = "trellis.config.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "trellis.progress.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "trellis.summary.v1"

	// TypeError identifies error records.
	TypeError = "trellis.error.v1"

	// TypeJobResult identifies job outcome records. The payload is a
	// report.JobResult.
	TypeJobResult = "trellis.job_result.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "trellis.problem.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for the run that produced the record.
	RunID string `json:"run_id"`

	// Source identifies where the configurations came from (a path or
	// source URI).
	Source string `json:"source,omitempty"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the type-specific payload into v.
func (r *Record) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// ProblemRecord is the data payload for a single lint finding.
type ProblemRecord struct {
	// ConfigPath is the configuration the finding belongs to.
	ConfigPath string `json:"config_path"`

	// Rule names the check that produced the finding.
	Rule string `json:"rule"`

	// Severity is "error" or "warning".
	Severity string `json:"severity"`

	// Message describes the finding.
	Message string `json:"message"`

	// Pointer locates the finding as a JSON pointer into the document,
	// when one applies.
	Pointer string `json:"pointer,omitempty"`

	// Line and Col locate the finding in the source, 1-based. Zero when
	// unknown.
	Line int `json:"line,omitempty"`
	Col  int `json:"col,omitempty"`
}

// ConfigRecord is the data payload for one linted configuration.
type ConfigRecord struct {
	// Path is the configuration's path or object key.
	Path string `json:"path"`

	// JobCount is the expanded matrix size. Zero when the document could
	// not be loaded.
	JobCount int `json:"job_count"`

	// Errors and Warnings count the findings by severity.
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`

	// Clean reports whether linting produced no findings at all.
	Clean bool `json:"clean"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire run,
// allowing partial results when some operations fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Key is the object key related to this error, if applicable.
	Key string `json:"key,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeAccessDenied indicates permission failure.
	ErrCodeAccessDenied = "ACCESS_DENIED"

	// ErrCodeNotFound indicates the object or bucket was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeTimeout indicates an operation timed out.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeThrottled indicates rate limiting.
	ErrCodeThrottled = "THROTTLED"

	// ErrCodeTooLarge indicates an object exceeded the configured size cap.
	ErrCodeTooLarge = "TOO_LARGE"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// ProgressRecord is the data payload for progress updates.
//
// Progress records are emitted periodically during audits to provide
// visibility into long-running runs.
type ProgressRecord struct {
	// Phase indicates the current audit phase.
	Phase string `json:"phase"`

	// ConfigsScanned is the number of configurations linted so far.
	ConfigsScanned int64 `json:"configs_scanned"`

	// ProblemsFound is the number of findings emitted so far.
	ProblemsFound int64 `json:"problems_found"`

	// Key is the object currently being processed, if applicable.
	Key string `json:"key,omitempty"`
}

// Progress phase constants.
const (
	// PhaseStarting indicates the audit is initializing.
	PhaseStarting = "starting"

	// PhaseScanning indicates configurations are being listed and linted.
	PhaseScanning = "scanning"

	// PhaseComplete indicates the audit has finished.
	PhaseComplete = "complete"
)

// SummaryRecord is the data payload for final summaries.
//
// A summary record is emitted at the end of an audit with aggregate
// statistics.
type SummaryRecord struct {
	// ConfigsScanned is the number of configurations linted.
	ConfigsScanned int64 `json:"configs_scanned"`

	// ConfigsClean is the number of configurations without findings.
	ConfigsClean int64 `json:"configs_clean"`

	// ProblemsFound is the total number of findings.
	ProblemsFound int64 `json:"problems_found"`

	// Errors is the count of operational errors encountered.
	Errors int64 `json:"errors"`

	// Duration is the total audit duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Globs lists the patterns that selected configurations.
	Globs []string `json:"globs,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
