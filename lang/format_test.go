package lang

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
)

func formatSource(t *testing.T, source string, opts ...Option) string {
	t.Helper()

	tmpl, err := Compile(t.Context(), source, opts...)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", source, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Format(t.Context(), &buf); err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	return buf.String()
}

func TestFormat(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"<?print  x?>", "<?print x?>"},
		{"<?print (a+b)*c?>", "<?print (a + b) * c?>"},
		{"<?print a-(b-c)?>", "<?print a - (b - c)?>"},
		{"<?print (a-b)-c?>", "<?print a - b - c?>"},
		{"<?print not (a and b)?>", "<?print not (a and b)?>"},
		{"<?print (not a) and b?>", "<?print not a and b?>"},
		{"<?print a or b and c?>", "<?print a or b and c?>"},
		{"<?print (a or b) and c?>", "<?print (a or b) and c?>"},
		{"<?print x not in y?>", "<?print x not in y?>"},
		{"<?print (-x).y?>", "<?print (-x).y?>"},
		{"<?print -x.y?>", "<?print -x.y?>"},
		{"<?print x - -1?>", "<?print x - -1?>"},
		{"<?print 1+2?>", "<?print 3?>"},
		{"<?print \"a\"?>", "<?print 'a'?>"},
		{"<?print x[1:]?>", "<?print x[1:]?>"},
		{"<?print x[:-1][0]?>", "<?print x[:-1][0]?>"},
		{"<?print f(*a, k=1, **kw)?>", "<?print f(*a, k=1, **kw)?>"},
		{"<?print sum(x for x in y if x)?>", "<?print sum(x for x in y if x)?>"},
		{"<?print [x*2 for (x, y) in z]?>", "<?print [x * 2 for x, y in z]?>"},
		{"<?print {k: v for k, v in d.items()}?>", "<?print {k: v for k, v in d.items()}?>"},
		{"<?print {'a': 1, **d}?>", "<?print {'a': 1, **d}?>"},
		{"<?printx x?>", "<?printx x?>"},
		{"<?code x+=1?>", "<?code x += 1?>"},
		{"<?code a, (b, c) = v?>", "<?code a, (b, c) = v?>"},
		{"<?code del x?>", "<?code del x?>"},
		{"<?code l.append(1)?>", "<?code l.append(1)?>"},
		{"<?for (a,) in x?><?end for?>", "<?for (a,) in x?><?end for?>"},
		{"<?for i in x?><?break?><?continue?><?end?>", "<?for i in x?><?break?><?continue?><?end for?>"},
		{"<?if a?>1<?elif b?>2<?else?>3<?end?>", "<?if a?>1<?elif b?>2<?else?>3<?end if?>"},
		{"<?def f?>x<?return 1?><?end def?>", "<?def f?>x<?return 1?><?end def?>"},
		{"<?return?>", "<?return?>"},
		{"<?render f(a=1)?>", "<?render f(a=1)?>"},
		{"a<?note gone?>b", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := formatSource(t, tt.source); got != tt.want {
				t.Errorf("Format(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}
}

func TestFormat_Reparses(t *testing.T) {
	sources := []string{
		roundTripSource,
		"<?for i, x in enumerate(xs)?><?if i % 2 == 0 or not x?><?print -i // 2?><?end if?><?end for?>",
		"<?code d = {i: [j for j in range(i) if j != 1] for i in range(4)}?><?print d?>",
		"<?def t?><?return x * (y + 1)?><?end def?><?print t(x=2, y=3)?>",
	}

	for _, source := range sources {
		first := formatSource(t, source)
		second := formatSource(t, first)

		if first != second {
			t.Errorf("Format is not stable for %q:\nfirst:  %s\nsecond: %s", source, first, second)
		}

		vars := map[string]any{"xs": []any{0, 1, 2, 3}, "items": []any{"a", 1}, "extra": map[string]any{}}
		if want, got := render(t, source, vars), render(t, first, vars); want != got {
			t.Errorf("formatted source renders %q, original %q", got, want)
		}
	}
}

func TestFormat_Delimiters(t *testing.T) {
	got := formatSource(t, "{{for i in x}}{{print i}}{{end}}", WithDelimiters("{{", "}}"))
	if want := "{{for i in x}}{{print i}}{{end for}}"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatTree(t *testing.T) {
	tmpl, err := Compile(t.Context(), "<?for i in x?><?if i?><?print i?><?end if?><?end for?>end", WithName("t"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var buf bytes.Buffer
	if err := tmpl.FormatTree(t.Context(), &buf, 2); err != nil {
		t.Fatalf("FormatTree failed: %v", err)
	}

	want := strings.Join([]string{
		"def 't' {",
		"  for i in x {",
		"    if i {",
		"      print i",
		"    }",
		"  }",
		"  text 'end'",
		"}",
		"",
	}, "\n")

	if got := buf.String(); got != want {
		t.Errorf("FormatTree() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatJSON(t *testing.T) {
	tmpl, err := Compile(t.Context(), "a\n<?print x?>", WithName("t"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var buf bytes.Buffer
	if err := tmpl.FormatJSON(t.Context(), &buf, 2); err != nil {
		t.Fatalf("FormatJSON failed: %v", err)
	}

	var tree struct {
		Type    string `json:"type"`
		Name    string `json:"name"`
		Version string `json:"version"`
		Source  string `json:"source"`
		Content []struct {
			Type     string `json:"type"`
			Location struct {
				Line   int `json:"line"`
				Column int `json:"column"`
			} `json:"location"`
			Obj map[string]any `json:"obj"`
		} `json:"content"`
	}

	if err := json.Unmarshal(buf.Bytes(), &tree); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}

	if tree.Type != "template" || tree.Name != "t" || tree.Version != Version {
		t.Errorf("template header = %+v", tree)
	}

	if tree.Source != "" {
		t.Error("source should be omitted from the tree")
	}

	if len(tree.Content) != 2 {
		t.Fatalf("content has %d nodes, want 2", len(tree.Content))
	}

	p := tree.Content[1]
	if p.Type != "print" || p.Location.Line != 2 || p.Location.Column != 1 || p.Obj["name"] != "x" {
		t.Errorf("print node = %+v", p)
	}
}

func TestFormatYAML(t *testing.T) {
	tmpl, err := Compile(t.Context(), "<?print a + 1?>", WithName("t"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var buf bytes.Buffer
	if err := tmpl.FormatYAML(t.Context(), &buf, 2); err != nil {
		t.Fatalf("FormatYAML failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "type: template\n") {
		t.Errorf("YAML does not start with the node type:\n%s", out)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &tree); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}

	content, _ := tree["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("content = %#v", tree["content"])
	}

	print, _ := content[0].(map[string]any)
	obj, _ := print["obj"].(map[string]any)

	if obj["type"] != "add" {
		t.Errorf("print obj = %#v, want add node", obj)
	}
}
