package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/trellis/internal/errors"
)

func newAdminServer(t *testing.T, token string) *Server {
	t.Helper()
	t.Setenv("TRELLIS_ADMIN_TOKEN", token)
	t.Setenv("WORKHORSE_ADMIN_TOKEN", "")
	return New("127.0.0.1", 0)
}

func postSignal(srv *Server, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/admin/signal", strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAdminSignal_Accepted(t *testing.T) {
	srv := newAdminServer(t, "sekrit")

	var received string
	srv.OnSignal(func(signal string) { received = signal })

	rec := postSignal(srv, "Bearer sekrit", `{"signal":"shutdown"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "shutdown", received)

	var resp adminSignalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "shutdown", resp.Signal)
}

func TestAdminSignal_FallbackTokenVar(t *testing.T) {
	t.Setenv("TRELLIS_ADMIN_TOKEN", "")
	t.Setenv("WORKHORSE_ADMIN_TOKEN", "legacy-token")
	srv := New("127.0.0.1", 0)

	rec := postSignal(srv, "Bearer legacy-token", `{"signal":"reload"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAdminSignal_MissingToken(t *testing.T) {
	srv := newAdminServer(t, "sekrit")

	rec := postSignal(srv, "", `{"signal":"shutdown"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeUnauthorized, body.Error.Code)
}

func TestAdminSignal_WrongToken(t *testing.T) {
	srv := newAdminServer(t, "sekrit")

	rec := postSignal(srv, "Bearer wrong", `{"signal":"shutdown"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeForbidden, body.Error.Code)
}

func TestAdminSignal_UnknownSignal(t *testing.T) {
	srv := newAdminServer(t, "sekrit")

	rec := postSignal(srv, "Bearer sekrit", `{"signal":"dance"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeValidation, body.Error.Code)
}

func TestAdminSignal_MalformedBody(t *testing.T) {
	srv := newAdminServer(t, "sekrit")

	rec := postSignal(srv, "Bearer sekrit", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
