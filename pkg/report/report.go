// Package report aggregates recorded job outcomes into a matrix verdict.
//
// Nothing here runs a job. The aggregator consumes results some CI system
// already produced and answers two questions: what is the overall verdict,
// and at which point in the result stream did it become final. The second
// answer is where fast finish shows up: with it, the verdict is final as
// soon as enough required jobs have reported; without it, the verdict waits
// for every job, allow-failure stragglers included.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/3leaps/trellis/pkg/travis"
)

// JobStatus is the lifecycle state of one job.
type JobStatus string

const (
	StatusCreated  JobStatus = "created"
	StatusQueued   JobStatus = "queued"
	StatusStarted  JobStatus = "started"
	StatusPassed   JobStatus = "passed"
	StatusFailed   JobStatus = "failed"
	StatusErrored  JobStatus = "errored"
	StatusCanceled JobStatus = "canceled"
)

// Terminal reports whether the status is a final outcome.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusCanceled:
		return true
	}
	return false
}

// Failed reports whether the status is a failing terminal outcome.
func (s JobStatus) Failed() bool {
	return s == StatusFailed || s == StatusErrored
}

// ParseStatus validates a status string from an untrusted record.
func ParseStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !validStatus(status) {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return status, nil
}

func validStatus(s JobStatus) bool {
	switch s {
	case StatusCreated, StatusQueued, StatusStarted,
		StatusPassed, StatusFailed, StatusErrored, StatusCanceled:
		return true
	}
	return false
}

// JobResult is one recorded job outcome or lifecycle transition.
type JobResult struct {
	Index        int             `json:"index"`
	Name         string          `json:"name,omitempty"`
	Identity     travis.Identity `json:"identity,omitempty"`
	Status       JobStatus       `json:"status"`
	AllowFailure bool            `json:"allow_failure,omitempty"`
	StartedAt    time.Time       `json:"started_at,omitempty"`
	FinishedAt   time.Time       `json:"finished_at,omitempty"`
}

// Duration returns the recorded run time, or zero when either timestamp is
// missing.
func (r *JobResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Verdict is the aggregate state of a matrix run.
type Verdict string

const (
	VerdictPending  Verdict = "pending"
	VerdictPassed   Verdict = "passed"
	VerdictFailed   Verdict = "failed"
	VerdictCanceled Verdict = "canceled"
)

// Aggregator folds job results into a matrix verdict. It is not safe for
// concurrent use.
type Aggregator struct {
	fastFinish bool
	expected   int
	jobs       map[int]*JobResult
	arrivals   int
	verdict    Verdict
	decidedAt  int
}

// New returns an empty aggregator. The job set is learned from the stream
// unless Seed fixes it first.
func New(fastFinish bool) *Aggregator {
	return &Aggregator{
		fastFinish: fastFinish,
		jobs:       make(map[int]*JobResult),
		verdict:    VerdictPending,
	}
}

// Seed registers the expanded matrix as created jobs, fixing the expected
// job set before results arrive. With the set known, fast finish can report
// a passing verdict while allow-failure jobs are still running.
func (a *Aggregator) Seed(jobs []travis.ExpandedJob) {
	a.expected = len(jobs)
	for i := range jobs {
		src := &jobs[i]
		if _, ok := a.jobs[src.Index]; ok {
			continue
		}
		a.jobs[src.Index] = &JobResult{
			Index:        src.Index,
			Name:         src.Name,
			Identity:     src.Identity(),
			Status:       StatusCreated,
			AllowFailure: src.AllowFailure,
		}
	}
}

// Add folds one result into the run. Results for a job arrive in lifecycle
// order (created, queued, started, then a terminal status); once a job is
// terminal its outcome is immutable and further results for it are
// rejected.
func (a *Aggregator) Add(r JobResult) error {
	if r.Index <= 0 {
		return fmt.Errorf("job index must be positive, got %d", r.Index)
	}
	if a.expected > 0 && r.Index > a.expected {
		return fmt.Errorf("job index %d out of range for a %d-job matrix", r.Index, a.expected)
	}
	if !validStatus(r.Status) {
		return fmt.Errorf("unknown job status %q", r.Status)
	}

	if prev, ok := a.jobs[r.Index]; ok {
		if prev.Status.Terminal() {
			return fmt.Errorf("job %d already finished as %s", r.Index, prev.Status)
		}
		prev.Status = r.Status
		if r.Name != "" {
			prev.Name = r.Name
		}
		if r.Identity != (travis.Identity{}) {
			prev.Identity = r.Identity
		}
		if r.AllowFailure {
			prev.AllowFailure = true
		}
		if !r.StartedAt.IsZero() {
			prev.StartedAt = r.StartedAt
		}
		if !r.FinishedAt.IsZero() {
			prev.FinishedAt = r.FinishedAt
		}
	} else {
		rc := r
		a.jobs[r.Index] = &rc
	}

	a.arrivals++
	a.decide()
	return nil
}

// Finalize marks the end of the result stream. Jobs still pending are
// recorded as canceled (the run ended without an outcome for them) and the
// verdict is computed from what is known.
func (a *Aggregator) Finalize() Verdict {
	if a.Decided() {
		return a.verdict
	}

	for _, job := range a.jobs {
		if !job.Status.Terminal() {
			job.Status = StatusCanceled
		}
	}
	if len(a.jobs) == 0 {
		a.verdict = VerdictCanceled
	} else {
		a.verdict = a.outcome()
	}
	a.decidedAt = a.arrivals
	return a.verdict
}

// Verdict returns the current aggregate state: pending until decided.
func (a *Aggregator) Verdict() Verdict {
	return a.verdict
}

// Decided reports whether the verdict is final.
func (a *Aggregator) Decided() bool {
	return a.verdict != VerdictPending
}

// DecidedAt returns the arrival count at which the verdict became final:
// zero while undecided, or when a stream was finalized without any
// results. For a finalized stream with no mid-stream decision it equals
// the stream length.
func (a *Aggregator) DecidedAt() int {
	return a.decidedAt
}

// Results returns the known jobs ordered by index.
func (a *Aggregator) Results() []JobResult {
	out := make([]JobResult, 0, len(a.jobs))
	for _, job := range a.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Counts tallies jobs per status.
func (a *Aggregator) Counts() map[JobStatus]int {
	counts := make(map[JobStatus]int)
	for _, job := range a.jobs {
		counts[job.Status]++
	}
	return counts
}

func (a *Aggregator) decide() {
	if a.Decided() {
		return
	}

	if !a.fastFinish {
		// Without fast finish the verdict waits for every job, terminal
		// allow-failure stragglers included.
		if !a.complete() {
			return
		}
		a.verdict = a.outcome()
		a.decidedAt = a.arrivals
		return
	}

	if v := a.earlyOutcome(); v != VerdictPending {
		a.verdict = v
		a.decidedAt = a.arrivals
	}
}

// complete reports whether the full expected job set has terminal
// statuses. Without a seeded expectation the set is never known to be
// complete mid-stream.
func (a *Aggregator) complete() bool {
	if a.expected == 0 || len(a.jobs) < a.expected {
		return false
	}
	for _, job := range a.jobs {
		if !job.Status.Terminal() {
			return false
		}
	}
	return true
}

// outcome computes the verdict from recorded states: a failed required job
// fails the matrix, a canceled required job cancels it, otherwise it
// passed. Allow-failure outcomes never participate.
func (a *Aggregator) outcome() Verdict {
	canceled := false
	for _, job := range a.jobs {
		if job.AllowFailure {
			continue
		}
		switch {
		case job.Status.Failed():
			return VerdictFailed
		case job.Status == StatusCanceled:
			canceled = true
		}
	}
	if canceled {
		return VerdictCanceled
	}
	return VerdictPassed
}

// earlyOutcome reports the verdict once no future result can change it.
// Required failures and cancellations decide immediately; a passing
// verdict additionally needs the expected job set fully known with every
// required job passed.
func (a *Aggregator) earlyOutcome() Verdict {
	for _, job := range a.jobs {
		if job.AllowFailure {
			continue
		}
		if job.Status.Failed() {
			return VerdictFailed
		}
		if job.Status == StatusCanceled {
			return VerdictCanceled
		}
	}

	if a.expected == 0 || len(a.jobs) < a.expected {
		return VerdictPending
	}
	for _, job := range a.jobs {
		if job.AllowFailure {
			continue
		}
		if job.Status != StatusPassed {
			return VerdictPending
		}
	}
	return VerdictPassed
}
