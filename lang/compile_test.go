package lang

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSegment(t *testing.T) {
	source := "a<?print x?>b<?note gone?><?bogus y?><?for i in z?>c"

	type seg struct {
		Type string
		Tag  string
		Code string
	}

	var got []seg
	for loc := range Segment(source, "", "") {
		got = append(got, seg{loc.Type, loc.Tag(), loc.Code()})
	}

	want := []seg{
		{"", "a", "a"},
		{"print", "<?print x?>", "x"},
		{"", "b", "b"},
		{"note", "<?note gone?>", "gone"},
		{"", "<?bogus y?>", "<?bogus y?>"},
		{"for", "<?for i in z?>", "i in z"},
		{"", "c", "c"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Segment() mismatch (-want +got):\n%s", diff)
	}
}

func TestSegment_Gapless(t *testing.T) {
	sources := []string{
		"",
		"plain",
		"<?print 1?>",
		"x<?if a?>y<?else?>z<?end if?>",
		"<?print\n  multi\n  line\n?>tail",
		"<?printx a?><?print b?>",
		"a<?note x?>b",
		"<?note <?print x?>?>",
	}

	for _, source := range sources {
		pos := 0

		for loc := range Segment(source, "", "") {
			if loc.TagStart != pos {
				t.Errorf("Segment(%q): gap at %d, next starts at %d", source, pos, loc.TagStart)
			}

			if loc.CodeStart < loc.TagStart || loc.CodeEnd > loc.TagEnd || loc.CodeStart > loc.CodeEnd {
				t.Errorf("Segment(%q): code span %d:%d outside tag %d:%d",
					source, loc.CodeStart, loc.CodeEnd, loc.TagStart, loc.TagEnd)
			}

			pos = loc.TagEnd
		}

		if pos != len(source) {
			t.Errorf("Segment(%q) ended at %d, want %d", source, pos, len(source))
		}
	}
}

func TestSegment_StopEarly(t *testing.T) {
	n := 0
	for range Segment("a<?print 1?>b<?print 2?>c", "", "") {
		n++
		if n == 2 {
			break
		}
	}

	if n != 2 {
		t.Errorf("visited %d segments, want 2", n)
	}
}

func TestLocation(t *testing.T) {
	source := "first\nsécond <?print x?>"

	locs := slices.Collect(Segment(source, "", ""))
	if len(locs) != 2 {
		t.Fatalf("got %d segments, want 2", len(locs))
	}

	pos := locs[1].Position()
	if pos.Line != 2 || pos.Column != 8 {
		t.Errorf("Position() = %v, want line 2, col 8", pos)
	}

	if s := locs[1].String(); !strings.Contains(s, "<?print x?> tag") || !strings.Contains(s, "line 2, col 8") {
		t.Errorf("String() = %q", s)
	}

	if s := locs[0].String(); !strings.HasPrefix(s, `text "first\nsécond "`) {
		t.Errorf("String() = %q", s)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		code  string
		texts []string
	}{
		{"a+b", []string{"a", "+", "b"}},
		{"x //= 2", []string{"x", "//=", "2"}},
		{"f(**kw)", []string{"f", "(", "**", "kw", ")"}},
		{"not in", []string{"not", "in"}},
		{"1.5e3 0x1f #abc", []string{"1.5e3", "0x1f", "#abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			loc := &Location{Source: tt.code, Type: "print", TagEnd: len(tt.code), CodeEnd: len(tt.code)}

			toks, err := tokenize(loc)
			if err != nil {
				t.Fatalf("tokenize(%q) failed: %v", tt.code, err)
			}

			var texts []string

			for _, tok := range toks {
				if tok.kind != tokenEnd {
					texts = append(texts, tok.text)
				}
			}

			if diff := cmp.Diff(tt.texts, texts); diff != "" {
				t.Errorf("tokenize(%q) mismatch (-want +got):\n%s", tt.code, diff)
			}
		})
	}
}

func TestTokenize_Literals(t *testing.T) {
	tests := []struct {
		code string
		want any
	}{
		{"42", 42},
		{"0x1f", 31},
		{"0o17", 15},
		{"0b101", 5},
		{"2.5", 2.5},
		{"1e3", 1000.0},
		{`"a\tb"`, "a\tb"},
		{`'é'`, "é"},
		{"True", true},
		{"False", false},
		{"None", nil},
		{"#1234", Color{0x11, 0x22, 0x33, 0x44}},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			loc := &Location{Source: tt.code, Type: "print", TagEnd: len(tt.code), CodeEnd: len(tt.code)}

			toks, err := tokenize(loc)
			if err != nil {
				t.Fatalf("tokenize(%q) failed: %v", tt.code, err)
			}

			if toks[0].kind != tokenConst {
				t.Fatalf("tokenize(%q) kind = %v, want const", tt.code, toks[0].kind)
			}

			if diff := cmp.Diff(tt.want, toks[0].value); diff != "" {
				t.Errorf("tokenize(%q) value mismatch (-want +got):\n%s", tt.code, diff)
			}
		})
	}
}

func TestCompile_Folding(t *testing.T) {
	tests := []struct {
		code string
		want any
	}{
		{"1 + 2", 3},
		{"-(3)", -3},
		{"not 0", true},
		{"2 * 3 + 4", 10},
		{"'ab'[1]", "b"},
		{"[1, 2, 3][1:]", nil},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			tmpl, err := Compile(t.Context(), "<?print "+tt.code+"?>")
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}

			p, ok := tmpl.Content[0].(*Print)
			if !ok {
				t.Fatalf("content[0] is %T, want *Print", tmpl.Content[0])
			}

			if tt.want == nil {
				if _, ok := p.Obj.(*Const); ok {
					t.Errorf("%q folded to a constant", tt.code)
				}

				return
			}

			c, ok := p.Obj.(*Const)
			if !ok {
				t.Fatalf("%q compiled to %s, want const", tt.code, p.Obj.Kind())
			}

			if c.Value != tt.want {
				t.Errorf("%q folded to %#v, want %#v", tt.code, c.Value, tt.want)
			}
		})
	}

	t.Run("variables are not folded", func(t *testing.T) {
		tmpl, err := Compile(t.Context(), "<?print x + 1?>")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		if k := tmpl.Content[0].(*Print).Obj.Kind(); k != KindAdd {
			t.Errorf("kind = %s, want add", k)
		}
	})

	t.Run("fold errors are compile errors", func(t *testing.T) {
		_, err := Compile(t.Context(), "ok<?print 1/0?>")
		if !errors.Is(err, ErrZeroDivision) {
			t.Fatalf("error = %v, want ErrZeroDivision", err)
		}

		var le *LocationError
		if !errors.As(err, &le) || le.Location.Type != "print" {
			t.Errorf("error %v is not attributed to the print tag", err)
		}
	})
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   error
	}{
		{"unclosed for", "<?for i in x?>", ErrBlock},
		{"unclosed if", "<?if x?>a", ErrBlock},
		{"stray end", "<?end for?>", ErrBlock},
		{"mismatched end", "<?if x?><?end for?>", ErrBlock},
		{"illegal end", "<?if x?><?end while?>", ErrBlock},
		{"elif after else", "<?if x?><?else?><?elif y?><?end if?>", ErrBlock},
		{"duplicate else", "<?if x?><?else?><?else?><?end if?>", ErrBlock},
		{"else without if", "<?else?>", ErrBlock},
		{"break outside loop", "<?break?>", ErrBlock},
		{"continue in def", "<?for i in x?><?def f?><?continue?><?end def?><?end for?>", ErrBlock},
		{"bad token", "<?print $?>", ErrLexical},
		{"unterminated string", "<?print 'abc?>", ErrLexical},
		{"trailing tokens", "<?print a b?>", ErrSyntax},
		{"missing operand", "<?print 1 +?>", ErrSyntax},
		{"empty print", "<?print?>", ErrSyntax},
		{"bad target", "<?for 1 in x?><?end for?>", ErrSyntax},
		{"keyword before positional", "<?print f(a=1, 2)?>", ErrSyntax},
		{"double star args", "<?print f(*a, *b)?>", ErrSyntax},
		{"positional after star", "<?print f(*a, 1)?>", ErrSyntax},
		{"keyword after double star", "<?print f(**kw, k=1)?>", ErrSyntax},
		{"def without name", "<?def?><?end def?>", ErrSyntax},
		{"def with blank name", "<?def   ?>x<?end def?>", ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(t.Context(), tt.source)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Compile(%q) error = %v, want %v", tt.source, err, tt.want)
			}

			var le *LocationError
			if !errors.As(err, &le) {
				t.Errorf("Compile(%q) error %v carries no location", tt.source, err)
			}
		})
	}
}

func TestCompile_BlockLocation(t *testing.T) {
	_, err := Compile(t.Context(), "a<?for i in x?>\n<?if i?>b<?end for?>")

	var le *LocationError
	if !errors.As(err, &le) {
		t.Fatalf("error %v carries no location", err)
	}

	if le.Location.Type != "end" {
		t.Errorf("location type = %q, want end", le.Location.Type)
	}

	if pos := le.Location.Position(); pos.Line != 2 {
		t.Errorf("position = %v, want line 2", pos)
	}
}

func TestCompileReader(t *testing.T) {
	tmpl, err := CompileReader(t.Context(), strings.NewReader("<?print 6 * 7?>"), WithName("reader"))
	if err != nil {
		t.Fatalf("CompileReader failed: %v", err)
	}

	if tmpl.Name != "reader" {
		t.Errorf("Name = %q, want reader", tmpl.Name)
	}

	out, err := tmpl.Renders(t.Context(), nil)
	if err != nil || out != "42" {
		t.Errorf("Renders() = %q, %v", out, err)
	}
}

func TestWalk(t *testing.T) {
	tmpl, err := Compile(t.Context(), "<?for i in x?><?print i + y?><?end for?>")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var names []string

	Walk(tmpl, func(n Node) bool {
		if v, ok := n.(*Var); ok {
			names = append(names, v.Name)
		}

		return true
	})

	if diff := cmp.Diff([]string{"i", "x", "i", "y"}, names); diff != "" {
		t.Errorf("Walk() mismatch (-want +got):\n%s", diff)
	}
}
