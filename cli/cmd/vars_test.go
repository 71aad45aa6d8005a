package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/ul4/lang"
)

// plain converts dicts to nested maps for comparison.
func plain(v any) any {
	switch v := v.(type) {
	case *lang.Dict:
		m := make(map[any]any, v.Len())
		for k, e := range v.All() {
			m[k] = plain(e)
		}

		return m
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = plain(e)
		}

		return out
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = plain(e)
		}

		return m
	}

	return v
}

func TestVars_Load(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "a.yaml", "title: Report\ncount: 3\nitems:\n  - one\n  - 2\nuser:\n  name: ann\n  admin: true\n")
	jsonPath := writeFile(t, dir, "b.json", `{"count": 4, "ratio": 0.5, "none": null}`)

	v := Vars{
		Files: []string{yamlPath, jsonPath},
		Set:   []string{"title=Override", "list=[1, 2]", "empty=", "raw=[unclosed"},
	}

	got, err := v.Load(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"title": "Override",
		"count": 4,
		"items": []any{"one", 2},
		"user":  map[any]any{"name": "ann", "admin": true},
		"ratio": 0.5,
		"none":  nil,
		"list":  []any{1, 2},
		"empty": "",
		"raw":   "[unclosed",
	}

	if diff := cmp.Diff(want, plain(got)); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestVars_OrderedDict(t *testing.T) {
	path := writeFile(t, t.TempDir(), "v.yaml", "d:\n  zeta: 1\n  alpha: 2\n  mid: 3\n")

	got, err := (&Vars{Files: []string{path}}).Load(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	d, ok := got["d"].(*lang.Dict)
	if !ok {
		t.Fatalf("d = %T, want *lang.Dict", got["d"])
	}

	if diff := cmp.Diff([]any{"zeta", "alpha", "mid"}, d.Keys()); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}

	tmpl, err := lang.Compile(t.Context(), "<?for k in d?><?print k?> <?end for?>")
	if err != nil {
		t.Fatal(err)
	}

	if out, err := tmpl.Renders(t.Context(), got); err != nil || out != "zeta alpha mid " {
		t.Errorf("render = %q, %v", out, err)
	}
}

func TestVars_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		vars Vars
		want error
	}{
		{"missing_file", Vars{Files: []string{filepath.Join(dir, "none.yaml")}}, ErrReadVars},
		{"not_mapping", Vars{Files: []string{writeFile(t, dir, "list.yaml", "- 1\n- 2\n")}}, ErrReadVars},
		{"bad_yaml", Vars{Files: []string{writeFile(t, dir, "bad.yaml", "a: [1\n")}}, ErrReadVars},
		{"no_equals", Vars{Set: []string{"name"}}, ErrAssignment},
		{"empty_name", Vars{Set: []string{" =1"}}, ErrAssignment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.vars.Load(t.Context()); !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		in    string
		name  string
		value any
	}{
		{"n=3", "n", 3},
		{"f=1.5", "f", 1.5},
		{"b=true", "b", true},
		{"s=hello world", "s", "hello world"},
		{"q='3'", "q", "3"},
		{" spaced =x", "spaced", "x"},
		{"eq=a=b", "eq", "a=b"},
		{"m={k: v}", "m", map[any]any{"k": "v"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, value, err := parseAssignment(tt.in)
			if err != nil {
				t.Fatal(err)
			}

			if name != tt.name {
				t.Errorf("name = %q, want %q", name, tt.name)
			}

			if diff := cmp.Diff(tt.value, plain(value)); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
