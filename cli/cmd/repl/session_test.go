package repl

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/ul4/lang"
	"github.com/ardnew/ul4/log"
)

var testLogger log.Logger

func TestSession_Eval(t *testing.T) {
	s := NewSession(map[string]any{"name": "ann", "n": 4}, "", "", testLogger)

	steps := []struct {
		input string
		want  string
	}{
		{"1 + 2", "3"},
		{"name.upper()", "'ANN'"},
		{"[n, n * 2]", "[4, 8]"},
		{"x = n * 10", ""},
		{"x + 1", "41"},
		{"x += 1", ""},
		{"x", "41"},
		{"<?for i in range(3)?><?print i?><?end for?>", "012"},
		{"<?print name?>=<?print x?>", "ann=41"},
		{"  ", ""},
	}

	for _, step := range steps {
		got, err := s.Eval(t.Context(), step.input)
		if err != nil {
			t.Fatalf("Eval(%q) error: %v", step.input, err)
		}

		if got != step.want {
			t.Errorf("Eval(%q) = %q, want %q", step.input, got, step.want)
		}
	}
}

func TestSession_Del(t *testing.T) {
	s := NewSession(map[string]any{"a": 1, "b": 2}, "", "", testLogger)

	if _, err := s.Eval(t.Context(), "del a"); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"b"}, s.VarNames()); diff != "" {
		t.Errorf("VarNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_DefinesTemplates(t *testing.T) {
	s := NewSession(nil, "", "", testLogger)

	out, err := s.Eval(t.Context(), `<?def greet?>hi <?print who?><?end def?>`)
	if err != nil || out != "" {
		t.Fatalf("def = %q, %v", out, err)
	}

	if !s.Callable("greet") {
		t.Error("greet is not callable after its definition")
	}

	out, err = s.Eval(t.Context(), `<?render greet(who="bob")?>`)
	if err != nil {
		t.Fatal(err)
	}

	if out != "hi bob" {
		t.Errorf("render = %q, want %q", out, "hi bob")
	}
}

func TestSession_Errors(t *testing.T) {
	s := NewSession(map[string]any{"x": 1}, "", "", testLogger)

	tests := []struct {
		input string
		want  error
	}{
		{"1 +", lang.ErrSyntax},
		{"x = ", lang.ErrSyntax},
		{"1 / 0", lang.ErrZeroDivision},
		{"nosuchfn(1)", lang.ErrUnknownFunction},
		{"<?if x?>open", lang.ErrBlock},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := s.Eval(t.Context(), tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("Eval(%q) error = %v, want %v", tt.input, err, tt.want)
			}
		})
	}

	if v, _ := s.Var("x"); v != 1 {
		t.Errorf("failed input changed x to %v", v)
	}
}

func TestSession_Delimiters(t *testing.T) {
	s := NewSession(nil, "{{", "}}", testLogger, lang.WithDelimiters("{{", "}}"))

	if got, err := s.Eval(t.Context(), "{{print 6 * 7}}!"); err != nil || got != "42!" {
		t.Errorf("template = %q, %v", got, err)
	}

	if got, err := s.Eval(t.Context(), "6 * 7"); err != nil || got != "42" {
		t.Errorf("expression = %q, %v", got, err)
	}

	// The default delimiters are plain text now.
	if got, err := s.Eval(t.Context(), `"<?print 1?>"`); err != nil || got != `'<?print 1?>'` {
		t.Errorf("string = %q, %v", got, err)
	}
}

func TestSession_SetTemplate(t *testing.T) {
	s := NewSession(map[string]any{"keep": true}, "", "", testLogger)

	first, err := lang.Compile(t.Context(), `<?def a?>A<?end def?><?def b?>B<?end def?>`)
	if err != nil {
		t.Fatal(err)
	}

	second, err := lang.Compile(t.Context(), `<?def c?>C<?end def?>`)
	if err != nil {
		t.Fatal(err)
	}

	s.SetTemplate(first)

	if diff := cmp.Diff([]string{"a", "b", "keep"}, s.VarNames()); diff != "" {
		t.Errorf("after first (-want +got):\n%s", diff)
	}

	if out, err := s.Eval(t.Context(), "<?render b()?>"); err != nil || out != "B" {
		t.Errorf("render b() = %q, %v", out, err)
	}

	s.SetTemplate(second)

	if diff := cmp.Diff([]string{"c", "keep"}, s.VarNames()); diff != "" {
		t.Errorf("after second (-want +got):\n%s", diff)
	}

	if s.Template() != second {
		t.Error("Template() is not the last template set")
	}
}

func TestSession_Compile(t *testing.T) {
	s := NewSession(nil, "", "", testLogger, lang.WithKeepWhitespace(false))

	tmpl, err := lang.Compile(t.Context(), "x", lang.WithName("page"))
	if err != nil {
		t.Fatal(err)
	}

	s.SetTemplate(tmpl)

	got, err := s.Compile(t.Context(), "<?print 1?>")
	if err != nil {
		t.Fatal(err)
	}

	if got.Name != "page" || got.KeepWS {
		t.Errorf("compiled name=%q keepws=%v, want page without whitespace", got.Name, got.KeepWS)
	}

	if _, err := s.Compile(t.Context(), "<?for?>"); !errors.Is(err, lang.ErrSyntax) {
		t.Errorf("bad source error = %v, want a syntax error", err)
	}
}

func TestSession_Members(t *testing.T) {
	d := lang.NewDict("b", 1, "a", 2, 3, "int key", "not ident", 4)
	s := NewSession(map[string]any{"d": d, "s": "str"}, "", "", testLogger)

	keys, methods := s.Members(t.Context(), "d")
	if diff := cmp.Diff([]string{"b", "a"}, keys); diff != "" {
		t.Errorf("dict keys (-want +got):\n%s", diff)
	}

	if !slices.Contains(methods, "items") {
		t.Errorf("dict methods = %v, want items", methods)
	}

	keys, methods = s.Members(t.Context(), "s")
	if len(keys) != 0 || !slices.Contains(methods, "upper") {
		t.Errorf("str members = %v, %v", keys, methods)
	}

	if keys, methods := s.Members(t.Context(), "1 +"); keys != nil || methods != nil {
		t.Errorf("invalid path members = %v, %v", keys, methods)
	}
}

func TestSession_Names(t *testing.T) {
	s := NewSession(map[string]any{"zz": 1, "len": 2}, "", "", testLogger)

	names := s.Names()

	if !slices.IsSorted(names) {
		t.Error("Names() is not sorted")
	}

	for _, want := range []string{"zz", "len", "range"} {
		if !slices.Contains(names, want) {
			t.Errorf("Names() is missing %q", want)
		}
	}

	if n := len(names); n != len(slices.Compact(slices.Clone(names))) {
		t.Error("Names() has duplicates")
	}

	if s.Callable("len") || s.Callable("zz") || !s.Callable("range") {
		t.Error("variables shadow builtins in Callable")
	}
}

func TestIsIdentifier(t *testing.T) {
	for s, want := range map[string]bool{
		"a": true, "_x1": true, "Abc": true,
		"": false, "1a": false, "a-b": false, "a b": false, "é": false,
	} {
		if got := isIdentifier(s); got != want {
			t.Errorf("isIdentifier(%q) = %v, want %v", s, got, want)
		}
	}
}

func BenchmarkSession_Eval(b *testing.B) {
	s := NewSession(map[string]any{"items": []any{1, 2, 3}}, "", "", testLogger)

	for b.Loop() {
		if _, err := s.Eval(b.Context(), "sum(i * 2 for i in items)"); err != nil {
			b.Fatal(err)
		}
	}
}
