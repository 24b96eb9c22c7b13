package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/trellis/internal/observability"
)

// resetConvertFlags restores the convert flag variables after a test
// mutates them.
func resetConvertFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		convertOutput = ""
		convertName = ""
	})
}

func TestRunConvert_Stdout(t *testing.T) {
	resetConvertFlags(t)
	observability.InitCLILogger("test", false)
	path := writeConfig(t, threeJobConfig)

	var err error
	got := captureStdout(t, func() {
		err = runConvert(convertCmd, []string{path})
	})

	require.NoError(t, err)
	assert.Contains(t, got, "# Converted from")
	assert.Contains(t, got, "name: ci")
	assert.Contains(t, got, "actions/checkout@v4")
	assert.Contains(t, got, "actions/setup-python@v5")
	assert.Contains(t, got, "runs-on: ubuntu")
	assert.Contains(t, got, "TOXENV: py")
}

func TestRunConvert_WritesFile(t *testing.T) {
	resetConvertFlags(t)
	observability.InitCLILogger("test", false)
	path := writeConfig(t, threeJobConfig)
	out := filepath.Join(t.TempDir(), "ci.yml")
	convertOutput = out
	convertName = "nightly"

	require.NoError(t, runConvert(convertCmd, []string{path}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: nightly")
}

func TestRunConvert_DashMeansStdout(t *testing.T) {
	resetConvertFlags(t)
	observability.InitCLILogger("test", false)
	convertOutput = "-"
	path := writeConfig(t, threeJobConfig)

	var err error
	got := captureStdout(t, func() {
		err = runConvert(convertCmd, []string{path})
	})

	require.NoError(t, err)
	assert.Contains(t, got, "name: ci")
}

func TestRunConvert_WriteFailure(t *testing.T) {
	resetConvertFlags(t)
	observability.InitCLILogger("test", false)
	path := writeConfig(t, threeJobConfig)
	convertOutput = filepath.Join(t.TempDir(), "missing", "dir", "ci.yml")

	err := runConvert(convertCmd, []string{path})

	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileWriteError, ExitCode(err))
}
