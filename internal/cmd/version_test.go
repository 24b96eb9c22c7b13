package cmd

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVersion_Text(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-08-01")
	t.Cleanup(func() { SetVersionInfo("", "", "") })

	var err error
	got := captureStdout(t, func() {
		err = runVersion(versionCmd, nil)
	})

	require.NoError(t, err)
	assert.Contains(t, got, "1.2.3")
	assert.Contains(t, got, "commit: abc123")
	assert.Contains(t, got, "built:  2026-08-01")
	assert.Contains(t, got, runtime.Version())
}

func TestRunVersion_JSONWithFallbacks(t *testing.T) {
	versionJSON = true
	t.Cleanup(func() { versionJSON = false })
	SetVersionInfo("", "", "")

	var err error
	got := captureStdout(t, func() {
		err = runVersion(versionCmd, nil)
	})
	require.NoError(t, err)

	var out struct {
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		BuildDate string `json:"build_date"`
		GoVersion string `json:"go_version"`
	}
	require.NoError(t, json.Unmarshal([]byte(got), &out))
	assert.Equal(t, "dev", out.Version)
	assert.Equal(t, "none", out.Commit)
	assert.Equal(t, "unknown", out.BuildDate)
	assert.Equal(t, runtime.Version(), out.GoVersion)
}
