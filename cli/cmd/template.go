package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/klauspost/readahead"

	"github.com/ardnew/ul4/lang"
	"github.com/ardnew/ul4/log"
)

// Input formats accepted by [Template.Load].
const (
	InputTemplate = "template"
	InputUL4ON    = "ul4on"
	InputCBOR     = "cbor"
)

// Template holds the flags that select and compile a template.
type Template struct {
	Source []string `arg:"" help:"Template file(s), concatenated; '-' or none reads stdin." name:"file" optional:""`

	Input  string `default:"template" enum:"template,ul4on,cbor" help:"Input format (${enum})."                                 short:"i"`
	Name   string `                                               help:"Template name (default: file name)."`
	Start  string `default:"<?"                                   help:"Start delimiter of tags."                                          name:"start-delim"`
	End    string `default:"?>"                                   help:"End delimiter of tags."                                            name:"end-delim"`
	KeepWS bool   `default:"true"                                 help:"Keep indentation and line breaks around tag-only lines." name:"keepws"      negatable:""`
	Depth  int    `default:"0"                                    help:"Maximum nesting of template calls (0 for the default)."  name:"max-depth"`
}

// options returns the compile and runtime options selected by the flags.
func (t *Template) options(name string) []lang.Option {
	if t.Name != "" {
		name = t.Name
	}

	opts := []lang.Option{
		lang.WithName(name),
		lang.WithDelimiters(t.Start, t.End),
		lang.WithKeepWhitespace(t.KeepWS),
		lang.WithLogger(log.Default()),
	}

	if t.Depth > 0 {
		opts = append(opts, lang.WithMaxDepth(t.Depth))
	}

	return opts
}

// Load reads src and compiles or deserializes it according to the input
// format. Compiled templates come from the process-wide compile cache, so
// reloading unchanged sources is cheap.
func (t *Template) Load(ctx context.Context, src *Sources) (*lang.Template, error) {
	r, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	opts := t.options(src.Name())

	log.DebugContext(ctx, "load template",
		slog.String("input", t.Input),
		slog.Any("files", src.Paths()),
		slog.Bool("stdin", src.Stdin()))

	switch t.Input {
	case InputUL4ON, InputCBOR:
		data, err := readAll(r)
		if err != nil {
			return nil, err
		}

		return loadDump(t.Input, data, opts...)
	default:
		return lang.CompileCachedReader(ctx, r, opts...)
	}
}

func loadDump(format string, data []byte, opts ...lang.Option) (*lang.Template, error) {
	var (
		v   any
		err error
	)

	if format == InputCBOR {
		v, err = lang.LoadBinary(data)
	} else {
		v, err = lang.Load(bytes.NewReader(data))
	}

	if err != nil {
		return nil, err
	}

	tmpl, ok := v.(*lang.Template)
	if !ok {
		return nil, ErrNotTemplate.With(slog.String("type", lang.TypeName(v)))
	}

	return tmpl.Configure(opts...), nil
}

func readAll(r io.Reader) ([]byte, error) {
	ra := readahead.NewReader(r)
	defer ra.Close()

	data, err := io.ReadAll(ra)
	if err != nil {
		return nil, ErrReadSource.Wrap(err)
	}

	return data, nil
}
