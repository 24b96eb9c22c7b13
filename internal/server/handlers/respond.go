package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	apperrors "github.com/3leaps/trellis/internal/errors"
)

// MaxConfigBytes caps the configuration payload accepted by the lint and
// expand endpoints.
const MaxConfigBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// readConfigBody reads the request payload and returns it with a synthetic
// path used for format detection. JSON content types select JSON parsing;
// everything else is treated as YAML, which Travis configs usually are.
func readConfigBody(w http.ResponseWriter, r *http.Request) (data []byte, path string, err error) {
	body := http.MaxBytesReader(w, r.Body, MaxConfigBytes)
	data, err = io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", apperrors.New(apperrors.CodePayloadTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", MaxConfigBytes))
		}
		return nil, "", apperrors.New(apperrors.CodeBadRequest, "failed to read request body")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, "", apperrors.NewValidationError("request body is empty")
	}

	path = "config.yml"
	if mediaType, _, parseErr := mime.ParseMediaType(r.Header.Get("Content-Type")); parseErr == nil {
		if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
			path = "config.json"
		}
	}
	return data, path, nil
}
