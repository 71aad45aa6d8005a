package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardnew/ul4/lang"
)

func TestDump_Run(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "d.ul4", "<?print x?>")

	tests := []struct {
		format string
		load   func([]byte) (any, error)
	}{
		{InputUL4ON, func(b []byte) (any, error) { return lang.Loads(string(b)) }},
		{InputCBOR, lang.LoadBinary},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var out bytes.Buffer

			d := Dump{Template: defaultTemplate(src), Format: tt.format, stdout: &out}
			if err := d.Run(t.Context()); err != nil {
				t.Fatal(err)
			}

			v, err := tt.load(out.Bytes())
			if err != nil {
				t.Fatal(err)
			}

			tmpl, ok := v.(*lang.Template)
			if !ok {
				t.Fatalf("loaded %T, want *lang.Template", v)
			}

			if got, err := tmpl.Renders(t.Context(), map[string]any{"x": 7}); err != nil || got != "7" {
				t.Errorf("Renders() = %q, %v", got, err)
			}
		})
	}
}

func TestDump_OutputFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "d.ul4", "x")
	outPath := filepath.Join(dir, "d.ul4on")

	d := Dump{Template: defaultTemplate(src), Format: InputUL4ON, Output: outPath}
	if err := d.Run(t.Context()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasSuffix(string(data), "\n") || len(data) < 2 {
		t.Errorf("dump = %q", data)
	}
}

func TestDump_Errors(t *testing.T) {
	dir := t.TempDir()

	d := Dump{Template: defaultTemplate(writeFile(t, dir, "ok.ul4", "x")), Format: InputUL4ON, Output: dir}
	if err := d.Run(t.Context()); !errors.Is(err, ErrWriteOutput) {
		t.Errorf("Run() error = %v, want ErrWriteOutput", err)
	}
}
