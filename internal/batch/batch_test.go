/*-------------------------------------------------------------------------
 *
 * exoquery - Batch Question Runner Tests
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exoquery/internal/archive"
	qerrors "exoquery/internal/errors"
	"exoquery/internal/querygen"
)

// stubGenerator answers from a map and tracks concurrency
type stubGenerator struct {
	answers map[string]string
	delay   time.Duration

	active    int32
	maxActive int32
}

func (s *stubGenerator) Generate(ctx context.Context, question string) (*querygen.Result, error) {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		m := atomic.LoadInt32(&s.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&s.maxActive, m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	sel, ok := s.answers[question]
	if !ok {
		return nil, qerrors.MalformedModelOutput("no JSON object in model output", nil)
	}
	return &querygen.Result{
		Question: question,
		Query:    archive.ArchiveQuery{Select: sel, Where: "default_flag = 1"},
	}, nil
}

func TestReadQuestions(t *testing.T) {
	input := "How many planets?\n\n  Largest planet  \nHow many planets?\r\nhot jupiters\n"
	questions, err := ReadQuestions(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"How many planets?", "Largest planet", "hot jupiters"}, questions)
}

func TestResultsPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"queries.txt", "queries_results.json"},
		{"data/queries.v2.txt", "data/queries.v2_results.json"},
		{"queries", "queries_results.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResultsPath(tt.in), tt.in)
	}
}

func TestRunner_OrderAndFailures(t *testing.T) {
	gen := &stubGenerator{
		answers: map[string]string{
			"q1": "pl_name, hostname",
			"q3": "pl_name, hostname, pl_rade, pl_radj",
			"q4": "pl_name, hostname, disc_year",
		},
		delay: 10 * time.Millisecond,
	}
	runner := NewRunner(gen, 2)
	var progress int32
	runner.Progress = func(done, total int) {
		atomic.AddInt32(&progress, 1)
		assert.Equal(t, 4, total)
	}

	report := runner.Run(context.Background(), []string{"q1", "q2", "q3", "q4"})

	require.Len(t, report.Outcomes, 4)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, int32(4), atomic.LoadInt32(&progress))
	assert.LessOrEqual(t, atomic.LoadInt32(&gen.maxActive), int32(2))

	for i, q := range []string{"q1", "q2", "q3", "q4"} {
		assert.Equal(t, q, report.Outcomes[i].Question)
	}
	assert.ErrorIs(t, report.Outcomes[1].Err, qerrors.ErrMalformedModelOutput)
	assert.Nil(t, report.Outcomes[1].Result)
	assert.Equal(t, "pl_name, hostname, disc_year", report.Outcomes[3].Result.Query.Select)
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := NewRunner(&stubGenerator{}, 1).Run(ctx, []string{"a", "b"})
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, 2, report.Failed)
}

func TestWriteResults(t *testing.T) {
	outcomes := []Outcome{
		{Question: "zeta question", Result: &querygen.Result{Query: archive.ArchiveQuery{Select: "pl_name", Where: "default_flag = 1"}}},
		{Question: "alpha question", Err: qerrors.MalformedModelOutput("no JSON object in model output", nil)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, outcomes))

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "pl_name", decoded["zeta question"]["select"])
	assert.Equal(t, "MALFORMED_MODEL_OUTPUT", decoded["alpha question"]["code"])

	// Input order is kept rather than sorted
	out := buf.String()
	assert.Less(t, strings.Index(out, "zeta question"), strings.Index(out, "alpha question"))

	buf.Reset()
	require.NoError(t, WriteResults(&buf, nil))
	assert.Equal(t, "{}\n", buf.String())
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queries.txt")
	require.NoError(t, os.WriteFile(path, []byte("q1\nq2\n"), 0600))

	gen := &stubGenerator{answers: map[string]string{"q1": "pl_name, hostname"}}
	outPath, report, err := RunFile(context.Background(), NewRunner(gen, 0), path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "queries_results.json"), outPath)
	assert.Equal(t, 1, report.Failed)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 2)
	assert.Equal(t, "default_flag = 1", decoded["q1"]["where"])

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0600))
	_, _, err = RunFile(context.Background(), NewRunner(gen, 1), empty)
	assert.ErrorIs(t, err, qerrors.ErrInvalidArgument)

	_, _, err = RunFile(context.Background(), NewRunner(gen, 1), filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
