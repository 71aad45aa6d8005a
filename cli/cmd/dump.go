package cmd

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/ardnew/ul4/lang"
)

// Dump compiles a template and writes its serialized form, which render
// and repl accept with --input.
type Dump struct {
	Template Template `embed:""`

	Format string `default:"ul4on" enum:"ul4on,cbor" help:"Output format (${enum})."       short:"f"`
	Output string `default:"-"                       help:"Output file, or '-' for stdout." short:"o"`

	stdout io.Writer
}

// Run executes the dump command.
func (d *Dump) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	src, err := OpenSources(d.Template.Source)
	if err != nil {
		return err
	}

	tmpl, err := d.Template.Load(ctx, src)
	if err != nil {
		return err
	}

	w := d.stdout
	if w == nil {
		w = os.Stdout
	}

	if d.Output != "" && d.Output != stdinSource && d.stdout == nil {
		f, err := os.Create(d.Output)
		if err != nil {
			return ErrWriteOutput.With(slogPath(d.Output)).Wrap(err)
		}
		defer f.Close()

		w = f
	}

	return dumpTo(w, d.Format, tmpl)
}

func dumpTo(w io.Writer, format string, tmpl *lang.Template) error {
	if format == InputCBOR {
		data, err := lang.DumpBinary(tmpl)
		if err != nil {
			return err
		}

		if _, err := w.Write(data); err != nil {
			return ErrWriteOutput.Wrap(err)
		}

		return nil
	}

	bw := bufio.NewWriter(w)

	if err := tmpl.Dump(bw); err != nil {
		return err
	}

	if err := bw.WriteByte('\n'); err != nil {
		return ErrWriteOutput.Wrap(err)
	}

	if err := bw.Flush(); err != nil {
		return ErrWriteOutput.Wrap(err)
	}

	return nil
}
