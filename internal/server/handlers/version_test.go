package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionHandler_Defaults(t *testing.T) {
	original := buildInfo
	defer func() { buildInfo = original }()

	buildInfo.Version = "dev"
	buildInfo.Commit = "none"
	buildInfo.BuildDate = "unknown"

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()

	VersionHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp VersionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dev", resp.Version)
	assert.Equal(t, "none", resp.Commit)
	assert.Equal(t, "unknown", resp.BuildDate)
	assert.Equal(t, runtime.Version(), resp.GoVersion)
}

func TestSetBuildInfo(t *testing.T) {
	original := buildInfo
	defer func() { buildInfo = original }()

	t.Run("stamps all fields", func(t *testing.T) {
		SetBuildInfo("1.4.0", "abc1234", "2026-08-01")
		assert.Equal(t, "1.4.0", buildInfo.Version)
		assert.Equal(t, "abc1234", buildInfo.Commit)
		assert.Equal(t, "2026-08-01", buildInfo.BuildDate)
	})

	t.Run("empty values keep previous", func(t *testing.T) {
		SetBuildInfo("2.0.0", "", "")
		assert.Equal(t, "2.0.0", buildInfo.Version)
		assert.Equal(t, "abc1234", buildInfo.Commit)
		assert.Equal(t, "2026-08-01", buildInfo.BuildDate)
	})
}
