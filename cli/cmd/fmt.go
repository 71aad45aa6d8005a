package cmd

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/ardnew/ul4/lang"
	"github.com/ardnew/ul4/log"
)

// Fmt prints a compiled template in the chosen representation.
type Fmt struct {
	Source FmtSource `cmd:"" default:"withargs" help:"Print normalized template source (default)."`
	Tree   FmtTree   `cmd:""                    help:"Print the syntax tree."`
	JSON   FmtJSON   `cmd:""                    help:"Print the syntax tree as JSON."`
	YAML   FmtYAML   `cmd:""                    help:"Print the syntax tree as YAML."`
}

// FmtSource prints the template as normalized source: canonical spacing
// inside tags, folded constants, and explicit end tags.
type FmtSource struct {
	Template Template `embed:""`

	stdout io.Writer
}

// Run executes the fmt source command.
func (f *FmtSource) Run(ctx context.Context) error {
	return formatWith(ctx, &f.Template, f.stdout, "source", func(t *lang.Template, w io.Writer) error {
		return t.Format(ctx, w)
	})
}

// FmtTree prints an indented outline of the syntax tree.
type FmtTree struct {
	Template Template `embed:""`
	Indent   int      `default:"2" help:"Indent width." short:"n"`

	stdout io.Writer
}

// Run executes the fmt tree command.
func (f *FmtTree) Run(ctx context.Context) error {
	return formatWith(ctx, &f.Template, f.stdout, "tree", func(t *lang.Template, w io.Writer) error {
		return t.FormatTree(ctx, w, f.Indent)
	})
}

// FmtJSON prints the syntax tree as JSON.
type FmtJSON struct {
	Template Template `embed:""`
	Indent   int      `default:"2" help:"Indent width, 0 for compact output." short:"n"`

	stdout io.Writer
}

// Run executes the fmt json command.
func (f *FmtJSON) Run(ctx context.Context) error {
	return formatWith(ctx, &f.Template, f.stdout, "json", func(t *lang.Template, w io.Writer) error {
		return t.FormatJSON(ctx, w, f.Indent)
	})
}

// FmtYAML prints the syntax tree as YAML.
type FmtYAML struct {
	Template Template `embed:""`
	Indent   int      `default:"2" help:"Indent width." short:"n"`

	stdout io.Writer
}

// Run executes the fmt yaml command.
func (f *FmtYAML) Run(ctx context.Context) error {
	return formatWith(ctx, &f.Template, f.stdout, "yaml", func(t *lang.Template, w io.Writer) error {
		return t.FormatYAML(ctx, w, f.Indent)
	})
}

func formatWith(
	ctx context.Context,
	flags *Template,
	w io.Writer,
	format string,
	emit func(*lang.Template, io.Writer) error,
) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	src, err := OpenSources(flags.Source)
	if err != nil {
		return err
	}

	tmpl, err := flags.Load(ctx, src)
	if err != nil {
		return err
	}

	log.DebugContext(ctx, "format template",
		slog.String("template", tmpl.Name),
		slog.String("format", format))

	if w == nil {
		w = os.Stdout
	}

	bw := bufio.NewWriter(w)

	if err := emit(tmpl, bw); err != nil {
		return err
	}

	if err := bw.Flush(); err != nil {
		return ErrWriteOutput.Wrap(err)
	}

	return nil
}
