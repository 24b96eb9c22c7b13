package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse is the JSON error body every endpoint returns.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// HTTPErrorDetail carries the coded error plus optional request metadata.
type HTTPErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// RespondWithError writes err as a JSON error body, mapping its code to an
// HTTP status. Errors without a code become INTERNAL_ERROR with a generic
// message so internals never leak to clients. The request's correlation ID,
// when present, is echoed back as request_id.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	detail := HTTPErrorDetail{
		Code:    CodeInternal,
		Message: "internal server error",
	}
	if appErr, ok := AsError(err); ok {
		detail.Code = appErr.Code
		detail.Message = appErr.Message
		detail.Details = appErr.Details
	}
	detail.RequestID = CorrelationIDFromContext(r.Context())

	WriteJSONError(w, StatusForCode(detail.Code), detail)
}

// WriteJSONError writes detail as an HTTPErrorResponse with the given
// status code.
func WriteJSONError(w http.ResponseWriter, status int, detail HTTPErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: detail})
}

// StatusForCode maps an application error code to its HTTP status.
func StatusForCode(code string) int {
	switch code {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeExternalService:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
