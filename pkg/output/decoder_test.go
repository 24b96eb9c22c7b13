package output

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/trellis/pkg/report"
)

func TestDecoder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-1", "file:///repos")

	ctx := context.Background()
	require.NoError(t, w.WriteProblem(ctx, &ProblemRecord{
		ConfigPath: "mss/.travis.yml",
		Rule:       "env-selector",
		Severity:   "error",
		Message:    "job 2: env is empty",
	}))
	require.NoError(t, w.WriteConfig(ctx, &ConfigRecord{Path: "mss/.travis.yml", JobCount: 11}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{ConfigsScanned: 1, ProblemsFound: 1}))

	d := NewDecoder(&buf)

	rec, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, TypeProblem, rec.Type)
	assert.Equal(t, "run-1", rec.RunID)
	var problem ProblemRecord
	require.NoError(t, rec.Decode(&problem))
	assert.Equal(t, "env-selector", problem.Rule)

	rec, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, TypeConfig, rec.Type)
	var cfg ConfigRecord
	require.NoError(t, rec.Decode(&cfg))
	assert.Equal(t, 11, cfg.JobCount)

	rec, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, TypeSummary, rec.Type)

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoder_JobResultStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-1", "")

	ctx := context.Background()
	require.NoError(t, w.WriteJobResult(ctx, &report.JobResult{Index: 1, Status: report.StatusPassed}))
	require.NoError(t, w.WriteJobResult(ctx, &report.JobResult{Index: 2, Status: report.StatusFailed}))

	d := NewDecoder(&buf)
	agg := report.New(true)
	for {
		rec, err := d.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Equal(t, TypeJobResult, rec.Type)

		var result report.JobResult
		require.NoError(t, rec.Decode(&result))
		require.NoError(t, agg.Add(result))
	}

	assert.Equal(t, report.VerdictFailed, agg.Verdict())
	assert.Equal(t, 2, agg.DecidedAt())
}

func TestDecoder_SkipsBlankLines(t *testing.T) {
	input := `{"type":"trellis.config.v1","ts":"2024-01-15T10:30:00Z","run_id":"r","data":{"path":"a"}}

{"type":"trellis.config.v1","ts":"2024-01-15T10:30:01Z","run_id":"r","data":{"path":"b"}}
`
	d := NewDecoder(strings.NewReader(input))

	rec, err := d.Next()
	require.NoError(t, err)
	var first ConfigRecord
	require.NoError(t, rec.Decode(&first))
	assert.Equal(t, "a", first.Path)

	rec, err = d.Next()
	require.NoError(t, err)
	var second ConfigRecord
	require.NoError(t, rec.Decode(&second))
	assert.Equal(t, "b", second.Path)

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoder_MissingTrailingNewline(t *testing.T) {
	input := `{"type":"trellis.config.v1","ts":"2024-01-15T10:30:00Z","run_id":"r","data":{"path":"a"}}`
	d := NewDecoder(strings.NewReader(input))

	rec, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeConfig, rec.Type)

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoder_LineCap(t *testing.T) {
	long := `{"type":"trellis.config.v1","run_id":"` + strings.Repeat("x", 256) + `"}`
	d := NewDecoder(strings.NewReader(long + "\n"))
	d.SetMaxLineBytes(64)

	_, err := d.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max bytes")
}

func TestDecoder_InvalidJSON(t *testing.T) {
	d := NewDecoder(strings.NewReader("not json\n"))

	_, err := d.Next()
	require.Error(t, err)
}
