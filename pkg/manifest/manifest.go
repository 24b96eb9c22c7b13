// Package manifest provides loading and validation of trellis audit manifests.
//
// An audit manifest is a YAML or JSON file that configures all aspects of a
// batch audit: the target to scan, pattern matching, audit behavior, and
// output. It captures a `trellis audit` invocation so recurring runs do not
// depend on a long flag list.
//
// Manifests are validated against a JSON Schema to ensure correctness before
// execution. The schema enforces strict typing and disallows unknown
// properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	target:
//	  source: s3://ci-configs/mirrors/
//	  region: us-east-1
//	match:
//	  excludes:
//	    - "**/archive/**"
//	audit:
//	  concurrency: 8
//	  expect_jobs: 11
//	output:
//	  destination: file:/tmp/findings.jsonl
package manifest

// Manifest represents a validated audit manifest.
//
// Required fields are Version and Target. Match, Audit, and Output are
// optional with sensible defaults.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	// Example: "https://schemas.3leaps.dev/trellis/v1.0.0/audit-manifest.schema.json"
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Target configures where configurations are scanned from.
	Target TargetConfig `json:"target" yaml:"target"`

	// Match configures key filtering beyond the target's include glob
	// (optional).
	Match MatchConfig `json:"match,omitempty" yaml:"match,omitempty"`

	// Audit configures scan behavior (optional).
	Audit AuditConfig `json:"audit,omitempty" yaml:"audit,omitempty"`

	// Output configures output destination and format (optional).
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// TargetConfig names the location to audit and how to reach it.
type TargetConfig struct {
	// Source is the target URI, in the same form the CLI accepts: a plain
	// directory, a path ending in a glob, a file: URI, or an s3:// URI.
	// The glob selects which keys to lint; without one, every
	// **/.travis.yml under the source is audited.
	Source string `json:"source" yaml:"source"`

	// Region is the AWS region for s3 sources (e.g., "us-east-1"). Optional.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint is a custom endpoint URL for S3-compatible storage. Optional.
	// Example: "http://localhost:9000"
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Profile is the AWS credential profile name. Optional.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`

	// Anonymous skips request signing, for public buckets. Default: false.
	Anonymous bool `json:"anonymous,omitempty" yaml:"anonymous,omitempty"`
}

// MatchConfig configures key filtering.
//
// The include pattern lives in the target source, so a manifest and the
// equivalent CLI invocation read the same way. Only exclusions and hidden
// handling are configured here.
type MatchConfig struct {
	// Excludes is a list of glob patterns for keys to skip. Optional.
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`

	// IncludeHidden descends into hidden directories (starting with .).
	// Default: false.
	IncludeHidden bool `json:"include_hidden,omitempty" yaml:"include_hidden,omitempty"`
}

// AuditConfig configures scan behavior.
//
// All fields are optional with sensible defaults applied during loading.
type AuditConfig struct {
	// Concurrency is the number of concurrent fetch workers.
	// Range: 1-32. Default: 4.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// RateLimit is the maximum source requests per second (0 = unlimited).
	// Default: 0.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// ProgressEvery controls progress record frequency.
	// A progress record is emitted every N listed objects.
	// Default: 100.
	ProgressEvery int `json:"progress_every,omitempty" yaml:"progress_every,omitempty"`

	// MaxConfigSize is the largest configuration fetched, in bytes. Larger
	// objects are reported as findings without being read.
	// Default: 1 MiB.
	MaxConfigSize int64 `json:"max_config_size,omitempty" yaml:"max_config_size,omitempty"`

	// ExpectJobs asserts that every matrix expands to exactly N jobs.
	// Omit to disable the assertion.
	ExpectJobs int `json:"expect_jobs,omitempty" yaml:"expect_jobs,omitempty"`
}

// OutputConfig configures output destination and format.
//
// All fields are optional with sensible defaults applied during loading.
type OutputConfig struct {
	// Destination is the output target.
	// Values: "stdout" or "file:/path/to/findings.jsonl"
	// Default: "stdout".
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// Progress enables progress record emission during the audit.
	// Default: true.
	Progress *bool `json:"progress,omitempty" yaml:"progress,omitempty"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	// DefaultConcurrency is the default number of concurrent fetch workers.
	DefaultConcurrency = 4

	// DefaultRateLimit is the default rate limit (0 = unlimited).
	DefaultRateLimit = 0.0

	// DefaultProgressEvery is the default progress emission frequency.
	DefaultProgressEvery = 100

	// DefaultMaxConfigSize is the default fetch ceiling in bytes.
	DefaultMaxConfigSize = 1 << 20

	// DefaultDestination is the default output destination.
	DefaultDestination = "stdout"

	// DefaultProgress is the default value for progress emission.
	DefaultProgress = true
)

// ApplyDefaults fills in default values for optional fields.
//
// This should be called after loading and validating the manifest to ensure
// all optional fields have sensible values.
func (m *Manifest) ApplyDefaults() {
	// Audit defaults
	if m.Audit.Concurrency == 0 {
		m.Audit.Concurrency = DefaultConcurrency
	}
	if m.Audit.ProgressEvery == 0 {
		m.Audit.ProgressEvery = DefaultProgressEvery
	}
	if m.Audit.MaxConfigSize == 0 {
		m.Audit.MaxConfigSize = DefaultMaxConfigSize
	}
	// RateLimit: 0 is a valid value (unlimited), so no default needed.
	// ExpectJobs: 0 means the assertion is off.

	// Output defaults
	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
	if m.Output.Progress == nil {
		defaultProgress := DefaultProgress
		m.Output.Progress = &defaultProgress
	}
}

// ProgressEnabled returns whether progress records should be emitted.
// Returns the configured value, or DefaultProgress if not set.
func (o *OutputConfig) ProgressEnabled() bool {
	if o.Progress == nil {
		return DefaultProgress
	}
	return *o.Progress
}
