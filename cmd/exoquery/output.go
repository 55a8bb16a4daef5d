/*-------------------------------------------------------------------------
 *
 * exoquery - Terminal Output
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"exoquery/internal/querygen"
)

// Color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// maxRenderWidth caps markdown wrapping on wide terminals
const maxRenderWidth = 120

// printer writes results for people (markdown, color) or for scripts
// (plain JSON)
type printer struct {
	out     io.Writer
	noColor bool
	width   int
}

// newPrinter detects whether stdout is a terminal and how wide it is
func newPrinter(noColor bool) *printer {
	p := &printer{out: os.Stdout, noColor: noColor, width: 80}
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		p.noColor = true
		return p
	}
	if width, _, err := term.GetSize(fd); err == nil && width > 2 {
		p.width = width - 2
	}
	if p.width > maxRenderWidth {
		p.width = maxRenderWidth
	}
	return p
}

func (p *printer) colorize(color, text string) string {
	if p.noColor {
		return text
	}
	return color + text + colorReset
}

// markdown renders text with glamour, falling back to plain text
func (p *printer) markdown(text string) string {
	style := "dark"
	if p.noColor {
		style = "notty"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(p.width),
	)
	if err != nil {
		return text + "\n"
	}
	rendered, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return rendered
}

// JSON writes v as indented JSON
func (p *printer) JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.out, string(data))
	return err
}

// Section prints a heading followed by v as indented JSON
func (p *printer) Section(title string, v interface{}) error {
	fmt.Fprintln(p.out, p.colorize(colorCyan+colorBold, title+":"))
	return p.JSON(v)
}

// Result prints the intermediate steps and the final query. The summary,
// when present, is rendered as markdown.
func (p *printer) Result(res *querygen.Result) error {
	if err := p.Section("Column requests", res.ColumnRequests); err != nil {
		return err
	}
	if err := p.Section("Candidate columns", res.Candidates); err != nil {
		return err
	}
	if err := p.Section("Archive query", res.Query); err != nil {
		return err
	}
	if res.Cached {
		fmt.Fprintln(p.out, p.colorize(colorGray, "(cached result)"))
	}
	if res.Summary != "" {
		fmt.Fprintln(p.out, p.colorize(colorCyan+colorBold, "Summary:"))
		fmt.Fprint(p.out, p.markdown(res.Summary))
	}
	return nil
}

// Error prints a failure without ending the session
func (p *printer) Error(err error) {
	fmt.Fprintln(p.out, p.colorize(colorRed, "Error: ")+err.Error())
}

// Info prints a status line
func (p *printer) Info(text string) {
	fmt.Fprintln(p.out, p.colorize(colorYellow, text))
}

// Separator prints a horizontal rule
func (p *printer) Separator() {
	width := p.width
	if width > 80 {
		width = 80
	}
	fmt.Fprintln(p.out, p.colorize(colorGray, strings.Repeat("─", width)))
}
