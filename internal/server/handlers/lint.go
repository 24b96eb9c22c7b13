package handlers

import (
	"net/http"
	"strconv"

	apperrors "github.com/3leaps/trellis/internal/errors"
	"github.com/3leaps/trellis/pkg/lint"
)

// LintResponse reports lint findings for a submitted configuration.
type LintResponse struct {
	Problems []lint.Problem `json:"problems"`
	JobCount int            `json:"job_count"`
	Errors   int            `json:"errors"`
	Warnings int            `json:"warnings"`
	Clean    bool           `json:"clean"`
}

// LintHandler lints the Travis configuration in the request body.
//
// The body is parsed as YAML unless the Content-Type is JSON. Syntax and
// schema failures come back as findings with a 200 status; the endpoint
// reserves error statuses for malformed requests and internal faults. The
// optional expect_jobs query parameter asserts the expanded matrix size.
func LintHandler(w http.ResponseWriter, r *http.Request) {
	data, path, err := readConfigBody(w, r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var opts lint.Options
	if expect := r.URL.Query().Get("expect_jobs"); expect != "" {
		n, convErr := strconv.Atoi(expect)
		if convErr != nil || n < 0 {
			respondWithError(w, r, apperrors.NewValidationError("expect_jobs must be a non-negative integer"))
			return
		}
		opts.ExpectJobs = n
	}

	result, err := lint.Run(data, path, opts)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "lint run failed"))
		return
	}

	problems := result.Problems
	if problems == nil {
		problems = []lint.Problem{}
	}
	writeJSON(w, http.StatusOK, LintResponse{
		Problems: problems,
		JobCount: result.JobCount,
		Errors:   result.Errors(),
		Warnings: result.Warnings(),
		Clean:    result.Clean(),
	})
}
