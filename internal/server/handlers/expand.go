package handlers

import (
	"net/http"

	apperrors "github.com/3leaps/trellis/internal/errors"
	"github.com/3leaps/trellis/pkg/travis"
)

// ExpandResponse lists the concrete jobs a configuration expands to.
type ExpandResponse struct {
	Jobs  []travis.ExpandedJob `json:"jobs"`
	Count int                  `json:"count"`
}

// ExpandHandler expands the Travis configuration in the request body into
// its job matrix. Unlike lint, a configuration that fails to load is a
// VALIDATION_ERROR here: there is no meaningful expansion to return.
func ExpandHandler(w http.ResponseWriter, r *http.Request) {
	data, path, err := readConfigBody(w, r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	cfg, err := travis.LoadFromBytes(data, path)
	if err != nil {
		respondWithError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	jobs := cfg.Expand()
	if jobs == nil {
		jobs = []travis.ExpandedJob{}
	}
	writeJSON(w, http.StatusOK, ExpandResponse{
		Jobs:  jobs,
		Count: len(jobs),
	})
}
