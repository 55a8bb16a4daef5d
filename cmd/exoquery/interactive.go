/*-------------------------------------------------------------------------
 *
 * exoquery - Interactive Mode
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const historyFileName = ".exoquery_history"

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Ask questions in a prompt loop",
	Long: `interactive reads questions from a prompt and prints the column requests,
candidate columns and archive query for each one. Type 'help' for commands,
'quit' or 'exit' to leave. History is kept in ~/.exoquery_history.

Prompt template overrides and the instruments file are reloaded when they
change on disk.`,
	Args: cobra.NoArgs,
	RunE: runInteractive,
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFileName)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	stopWatching, err := watchSettings(cfg, p.gen, p.index)
	if err != nil {
		return err
	}
	defer stopWatching()

	out := newPrinter(noColor)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            out.colorize(colorGreen+colorBold, "Question: "),
		HistoryFile:       historyPath(),
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	out.Info(fmt.Sprintf("exoquery using %s/%s. Type 'help' for commands.",
		p.model.ProviderName(), p.model.ModelName()))

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		question := strings.TrimSpace(line)
		switch strings.ToLower(question) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "help":
			printInteractiveHelp(out)
			continue
		}

		if err := answer(ctx, p, out, question); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			out.Error(err)
		}
		out.Separator()
	}
}

// answer runs one question; errors are reported and the loop continues
func answer(ctx context.Context, p *pipeline, out *printer, question string) error {
	res, err := p.gen.Generate(ctx, question)
	if err != nil {
		return err
	}
	return out.Result(res)
}

func printInteractiveHelp(out *printer) {
	out.Info("Enter a question about exoplanets, for example:")
	fmt.Fprintln(out.out, "  What is the radius of planets discovered after 2020?")
	out.Info("Commands:")
	fmt.Fprintln(out.out, "  help         Show this message")
	fmt.Fprintln(out.out, "  quit, exit   Leave interactive mode")
}
