/*-------------------------------------------------------------------------
 *
 * exoquery - Batch Question Runner
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package batch generates archive queries for a file of questions and
// writes them as one JSON document.
package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	qerrors "exoquery/internal/errors"
	"exoquery/internal/logging"
	"exoquery/internal/querygen"
)

// DefaultConcurrency is the number of questions generated in parallel
const DefaultConcurrency = 2

// ResultsSuffix replaces the extension of the questions file
const ResultsSuffix = "_results.json"

// Generator produces the query for one question. *querygen.Generator
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, question string) (*querygen.Result, error)
}

// Outcome is the result of one question. Exactly one of Result and Err
// is set.
type Outcome struct {
	Question string
	Result   *querygen.Result
	Err      error
}

// Report summarizes a batch run
type Report struct {
	Outcomes []Outcome
	Failed   int
	Duration time.Duration
}

// Runner generates queries for many questions with bounded concurrency
type Runner struct {
	gen         Generator
	concurrency int

	// Progress, when set, is called after each question completes
	Progress func(done, total int)
}

// NewRunner creates a Runner. A non-positive concurrency selects the
// default.
func NewRunner(gen Generator, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Runner{gen: gen, concurrency: concurrency}
}

// ReadQuestions reads one question per line. Lines are trimmed, blank
// lines are skipped and repeated questions are kept once.
func ReadQuestions(r io.Reader) ([]string, error) {
	var questions []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		q := strings.TrimSpace(scanner.Text())
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		questions = append(questions, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return questions, nil
}

// Run generates a query for every question. A failed question is
// recorded in its Outcome and does not stop the others. Outcomes are in
// input order.
func (r *Runner) Run(ctx context.Context, questions []string) *Report {
	start := time.Now()
	report := &Report{Outcomes: make([]Outcome, len(questions))}
	sem := semaphore.NewWeighted(int64(r.concurrency))

	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for i, q := range questions {
		report.Outcomes[i].Question = q
		if err := sem.Acquire(ctx, 1); err != nil {
			report.Outcomes[i].Err = fmt.Errorf("batch cancelled: %w", err)
			continue
		}

		wg.Add(1)
		go func(i int, q string) {
			defer sem.Release(1)
			defer wg.Done()

			res, err := r.gen.Generate(ctx, q)
			if err != nil {
				logging.Warn("batch_question_failed", "question", q, "error", err)
				report.Outcomes[i].Err = err
			} else {
				report.Outcomes[i].Result = res
			}

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if r.Progress != nil {
				r.Progress(n, len(questions))
			}
		}(i, q)
	}
	wg.Wait()

	for _, o := range report.Outcomes {
		if o.Err != nil {
			report.Failed++
		}
	}
	report.Duration = time.Since(start)

	logging.Info("batch_complete",
		"questions", len(questions),
		"failed", report.Failed,
		"duration_ms", report.Duration.Milliseconds())
	return report
}

// failure is the JSON form of a failed question
type failure struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteResults writes a JSON object mapping each question to its query,
// or to an error object when generation failed. Keys keep input order.
func WriteResults(w io.Writer, outcomes []Outcome) error {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, o := range outcomes {
		if i > 0 {
			buf.WriteString(",")
		}
		key, err := json.Marshal(o.Question)
		if err != nil {
			return fmt.Errorf("failed to encode question: %w", err)
		}

		var value []byte
		if o.Err != nil {
			value, err = json.Marshal(failure{Error: o.Err.Error(), Code: qerrors.GetCode(o.Err)})
		} else {
			value, err = json.Marshal(o.Result.Query)
		}
		if err != nil {
			return fmt.Errorf("failed to encode result for %q: %w", o.Question, err)
		}

		buf.WriteString("\n    ")
		buf.Write(key)
		buf.WriteString(": ")
		if err := json.Indent(&buf, value, "    ", "    "); err != nil {
			return fmt.Errorf("failed to format result for %q: %w", o.Question, err)
		}
	}
	if len(outcomes) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// ResultsPath derives the output path from the questions file path by
// replacing its extension with ResultsSuffix
func ResultsPath(questionsPath string) string {
	ext := filepath.Ext(questionsPath)
	return strings.TrimSuffix(questionsPath, ext) + ResultsSuffix
}

// RunFile reads questions from path, runs them and writes the results
// next to it. It returns the results path and the report.
func RunFile(ctx context.Context, r *Runner, path string) (string, *Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open questions file: %w", err)
	}
	questions, err := ReadQuestions(f)
	f.Close()
	if err != nil {
		return "", nil, err
	}
	if len(questions) == 0 {
		return "", nil, qerrors.InvalidArgument(fmt.Sprintf("no questions in %s", path))
	}

	logging.Info("batch_start", "file", path, "questions", len(questions))
	report := r.Run(ctx, questions)

	outPath := ResultsPath(path)
	out, err := os.Create(outPath)
	if err != nil {
		return "", report, fmt.Errorf("failed to create results file: %w", err)
	}
	if err := WriteResults(out, report.Outcomes); err != nil {
		out.Close()
		return "", report, err
	}
	if err := out.Close(); err != nil {
		return "", report, fmt.Errorf("failed to write results file: %w", err)
	}
	return outPath, report, nil
}
