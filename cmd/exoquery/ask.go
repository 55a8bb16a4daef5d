/*-------------------------------------------------------------------------
 *
 * exoquery - Query Commands
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"exoquery/internal/batch"
	qerrors "exoquery/internal/errors"
	"exoquery/internal/tsv"
)

var (
	topK             int
	includeSummary   bool
	outputJSON       bool
	outputTSV        bool
	noColor          bool
	batchConcurrency int
)

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Show the columns nearest to a piece of text",
	Long: `search embeds the text and prints the nearest catalog columns with their
squared distances. No language model is involved, which makes it useful for
checking an index.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Generate the archive query for one question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var batchCmd = &cobra.Command{
	Use:   "batch <questions-file>",
	Short: "Generate archive queries for a file of questions",
	Long: `batch reads one question per line and writes a JSON object mapping every
question to its archive query next to the input, replacing the file extension
with _results.json. Failed questions are recorded with their error and do not
stop the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	for _, cmd := range []*cobra.Command{searchCmd, askCmd, batchCmd, interactiveCmd} {
		cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Columns retrieved per sub-query")
	}
	for _, cmd := range []*cobra.Command{askCmd, batchCmd, interactiveCmd} {
		cmd.Flags().BoolVar(&includeSummary, "summary", false, "Ask the model to summarize the query")
	}
	for _, cmd := range []*cobra.Command{askCmd, interactiveCmd} {
		cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	}
	searchCmd.Flags().BoolVar(&outputTSV, "tsv", false, "Print tab separated values")
	askCmd.Flags().BoolVar(&outputJSON, "json", false, "Print the full result as JSON")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "Questions generated in parallel")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	index, err := openIndex(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	results, err := index.Search(cmd.Context(), strings.Join(args, " "), cfg.Generation.K)
	if err != nil {
		return err
	}

	if outputTSV {
		rows := make([][]interface{}, len(results))
		for i, r := range results {
			rows[i] = []interface{}{i + 1, r.Distance, r.Record.Name, r.Record.ShortDescription}
		}
		return tsv.Write(os.Stdout, []string{"rank", "distance", "column", "description"}, rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tDISTANCE\tCOLUMN\tDESCRIPTION")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", i+1, r.Distance, r.Record.Name, r.Record.ShortDescription)
	}
	return w.Flush()
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	p, err := newPipeline(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.gen.Generate(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := newPrinter(noColor)
	if outputJSON {
		return out.JSON(res)
	}
	return out.Result(res)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	p, err := newPipeline(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	runner := batch.NewRunner(p.gen, cfg.Batch.Concurrency)
	runner.Progress = func(done, total int) {
		fmt.Fprintf(os.Stderr, "\r%d/%d questions", done, total)
	}

	outPath, report, err := batch.RunFile(cmd.Context(), runner, args[0])
	if report != nil {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d results to %s in %s\n",
		len(report.Outcomes), outPath, report.Duration.Round(time.Millisecond))
	if report.Failed > 0 {
		fmt.Printf("%d of %d questions failed:\n", report.Failed, len(report.Outcomes))
		for _, o := range report.Outcomes {
			if o.Err != nil {
				fmt.Printf("  [%s] %s\n", qerrors.GetCode(o.Err), o.Question)
			}
		}
	}
	return nil
}
