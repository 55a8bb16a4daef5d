/*-------------------------------------------------------------------------
 *
 * exoquery - Prompt Templates
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package prompts renders the natural-language instructions sent to the
// language model. Templates use text/template syntax with upper-case
// placeholders such as {{.USER_QUERY}}.
package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/spaolacci/murmur3"

	qerrors "exoquery/internal/errors"
	"exoquery/internal/logging"
)

// Names of the built-in templates and their variables
const (
	GenerateColumnQuery = "generate_column_query"
	GenerateAstroquery  = "generate_astroquery"
	SummarizeQuery      = "summarize_query"

	VarUserQuery          = "USER_QUERY"
	VarRelevantColumns    = "RELEVANT_COLUMNS"
	VarCurrentDate        = "CURRENT_DATE"
	VarArchiveQuery       = "ARCHIVE_QUERY"
	VarColumnDescriptions = "COLUMN_DESCRIPTIONS"
)

// FileSuffix is the extension of template files
const FileSuffix = ".prompt.tmpl"

//go:embed templates/*.prompt.tmpl
var builtin embed.FS

var descriptions = map[string]string{
	GenerateColumnQuery: "Decompose a question into column-search phrases",
	GenerateAstroquery:  "Write an archive query from a question and candidate columns",
	SummarizeQuery:      "Explain a generated archive query in Markdown",
}

// Template is a parsed prompt template
type Template struct {
	Name        string
	Description string
	// Variables lists the placeholders the template references, sorted
	Variables []string
	// Source is the unparsed template text
	Source string

	tmpl *template.Template
}

// NewTemplate parses a template. Its variables are the fields it
// references.
func NewTemplate(name, description, text string) (*Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	vars := make(map[string]bool)
	if tmpl.Tree != nil {
		collectFields(tmpl.Tree.Root, vars)
	}
	names := make([]string, 0, len(vars))
	for v := range vars {
		names = append(names, v)
	}
	sort.Strings(names)

	return &Template{
		Name:        name,
		Description: description,
		Variables:   names,
		Source:      text,
		tmpl:        tmpl,
	}, nil
}

// collectFields records the first identifier of every field reference
func collectFields(node parse.Node, vars map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectFields(child, vars)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, vars)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			collectFields(cmd, vars)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			collectFields(arg, vars)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			vars[n.Ident[0]] = true
		}
	case *parse.IfNode:
		collectBranch(&n.BranchNode, vars)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, vars)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, vars)
	}
}

func collectBranch(n *parse.BranchNode, vars map[string]bool) {
	collectFields(n.Pipe, vars)
	collectFields(n.List, vars)
	if n.ElseList != nil {
		collectFields(n.ElseList, vars)
	}
}

var missingKeyPattern = regexp.MustCompile(`map has no entry for key "([^"]+)"`)

// Execute renders the template. Every variable must be present in vars.
func (t *Template) Execute(vars map[string]string) (string, error) {
	for _, v := range t.Variables {
		if _, ok := vars[v]; !ok {
			return "", qerrors.MissingVariable(t.Name, v)
		}
	}

	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, vars); err != nil {
		if m := missingKeyPattern.FindStringSubmatch(err.Error()); m != nil {
			return "", qerrors.MissingVariable(t.Name, m[1])
		}
		return "", qerrors.Internal(fmt.Sprintf("failed to render template %s", t.Name), err)
	}
	return sb.String(), nil
}

// Registry manages available prompt templates
type Registry struct {
	templates map[string]*Template
}

// NewRegistry creates a new prompt registry
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]*Template),
	}
}

// Register adds a template to the registry, replacing any template with
// the same name
func (r *Registry) Register(t *Template) {
	r.templates[t.Name] = t
}

// Get retrieves a template by name
func (r *Registry) Get(name string) (*Template, bool) {
	t, exists := r.templates[name]
	return t, exists
}

// Names returns the registered template names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render substitutes vars into the named template
func (r *Registry) Render(name string, vars map[string]string) (string, error) {
	t, exists := r.Get(name)
	if !exists {
		return "", qerrors.TemplateNotFound(name)
	}
	return t.Execute(vars)
}

// Fingerprint identifies the registered templates and their text. It
// changes whenever a template is added, removed or edited.
func (r *Registry) Fingerprint() string {
	h := murmur3.New128()
	for _, name := range r.Names() {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(r.templates[name].Source))
		h.Write([]byte{0})
	}
	h1, h2 := h.Sum128()
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// Default returns a registry holding the built-in templates
func Default() *Registry {
	r := NewRegistry()
	if err := r.loadFS(builtin, "templates"); err != nil {
		// Only reachable with an invalid embedded template
		panic(err)
	}
	return r
}

// LoadDir registers every *.prompt.tmpl file in dir, replacing templates
// with the same name.
func (r *Registry) LoadDir(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("prompt directory %s: %w", dir, err)
	}
	return r.loadFS(os.DirFS(dir), ".")
}

func (r *Registry) loadFS(fsys fs.FS, dir string) error {
	matches, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(dir, "*"+FileSuffix)))
	if err != nil {
		return err
	}
	for _, path := range matches {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), FileSuffix)
		t, err := NewTemplate(name, descriptions[name], string(data))
		if err != nil {
			return err
		}
		r.Register(t)
		logging.Debug("prompt_template_loaded", "name", name, "variables", strings.Join(t.Variables, ","))
	}
	return nil
}
