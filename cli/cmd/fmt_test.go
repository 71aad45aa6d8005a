package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"

	"github.com/ardnew/ul4/lang"
)

func TestFmtSource_Run(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		source string
		flags  func(*Template)
		want   string
	}{
		{"spacing", "<?print  (a+b)*c?>", nil, "<?print (a + b) * c?>"},
		{"end_tags", "<?if a?>1<?else?>2<?end?>", nil, "<?if a?>1<?else?>2<?end if?>"},
		{"folded", "<?print 1+2?>", nil, "<?print 3?>"},
		{
			name:   "delimiters",
			source: "{{for i in x}}{{print i}}{{end}}",
			flags:  func(t *Template) { t.Start, t.End = "{{", "}}" },
			want:   "{{for i in x}}{{print i}}{{end for}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := defaultTemplate(writeFile(t, dir, tt.name+".ul4", tt.source))
			if tt.flags != nil {
				tt.flags(&flags)
			}

			var out bytes.Buffer

			f := FmtSource{Template: flags, stdout: &out}
			if err := f.Run(t.Context()); err != nil {
				t.Fatal(err)
			}

			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestFmtTree_Run(t *testing.T) {
	path := writeFile(t, t.TempDir(), "page.ul4", "<?for i in x?><?print i?><?end for?>end")

	var out bytes.Buffer

	f := FmtTree{Template: defaultTemplate(path), Indent: 4, stdout: &out}
	if err := f.Run(t.Context()); err != nil {
		t.Fatal(err)
	}

	want := strings.Join([]string{
		"def 'page.ul4' {",
		"    for i in x {",
		"        print i",
		"    }",
		"    text 'end'",
		"}",
		"",
	}, "\n")

	if out.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", out.String(), want)
	}
}

func TestFmtJSON_Run(t *testing.T) {
	path := writeFile(t, t.TempDir(), "page.ul4", "<?print x?>")

	for _, indent := range []int{0, 2} {
		var out bytes.Buffer

		f := FmtJSON{Template: defaultTemplate(path), Indent: indent, stdout: &out}
		if err := f.Run(t.Context()); err != nil {
			t.Fatal(err)
		}

		var tree struct {
			Type    string           `json:"type"`
			Name    string           `json:"name"`
			Content []map[string]any `json:"content"`
		}

		if err := json.Unmarshal(out.Bytes(), &tree); err != nil {
			t.Fatalf("indent %d: output is not JSON: %v\n%s", indent, err, out.String())
		}

		if tree.Type != "template" || tree.Name != "page.ul4" || len(tree.Content) != 1 {
			t.Errorf("indent %d: tree = %+v", indent, tree)
		}

		if compact := !strings.Contains(out.String(), "\n  "); compact != (indent == 0) {
			t.Errorf("indent %d: unexpected layout:\n%s", indent, out.String())
		}
	}
}

func TestFmtYAML_Run(t *testing.T) {
	path := writeFile(t, t.TempDir(), "page.ul4", "<?print a + 1?>")

	var out bytes.Buffer

	f := FmtYAML{Template: defaultTemplate(path), Indent: 2, stdout: &out}
	if err := f.Run(t.Context()); err != nil {
		t.Fatal(err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(out.Bytes(), &tree); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out.String())
	}

	if tree["type"] != "template" || tree["name"] != "page.ul4" {
		t.Errorf("tree header = %v, %v", tree["type"], tree["name"])
	}
}

func TestFmt_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.ul4", "<?for x in y?>")

	var out bytes.Buffer

	if err := (&FmtSource{Template: defaultTemplate(bad), stdout: &out}).Run(t.Context()); !errors.Is(err, lang.ErrBlock) {
		t.Errorf("FmtSource error = %v, want ErrBlock", err)
	}

	missing := defaultTemplate(filepath.Join(dir, "missing.ul4"))
	if err := (&FmtTree{Template: missing, stdout: &out}).Run(t.Context()); !errors.Is(err, ErrReadSource) {
		t.Errorf("FmtTree error = %v, want ErrReadSource", err)
	}

	if out.Len() != 0 {
		t.Errorf("output written on error: %q", out.String())
	}
}
