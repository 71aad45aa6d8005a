package lang

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// render compiles and renders source, failing the test on any error.
func render(t *testing.T, source string, vars map[string]any, opts ...Option) string {
	t.Helper()

	tmpl, err := Compile(t.Context(), source, opts...)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", source, err)
	}

	out, err := tmpl.Renders(t.Context(), vars)
	if err != nil {
		t.Fatalf("Renders(%q) failed: %v", source, err)
	}

	return out
}

// renderErr compiles and renders source and returns the first error.
func renderErr(t *testing.T, source string, vars map[string]any) error {
	t.Helper()

	tmpl, err := Compile(t.Context(), source)
	if err != nil {
		return err
	}

	_, err = tmpl.Renders(t.Context(), vars)

	return err
}

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		source string
		vars   map[string]any
		want   string
	}{
		{"text", "hello", nil, "hello"},
		{"print", "<?print x?>", map[string]any{"x": 42}, "42"},
		{"printx", "<?printx s?>", map[string]any{"s": `<a href="x">&</a>`}, "&lt;a href=&quot;x&quot;&gt;&amp;&lt;/a&gt;"},
		{"loop", "<?for i in [1, 2]?><?print i*10?>-<?end for?>", nil, "10-20-"},
		{"break", "<?for i in range(5)?><?if i == 2?><?break?><?end if?><?print i?><?end for?>", nil, "01"},
		{"continue", "<?for i in range(5)?><?if i % 2?><?continue?><?end if?><?print i?><?end for?>", nil, "024"},
		{"elif", "<?for i in range(3)?><?if i == 0?>a<?elif i == 1?>b<?else?>c<?end if?><?end for?>", nil, "abc"},
		{"unpack", "<?for k, v in d.items()?><?print k?>=<?print v?>;<?end for?>", map[string]any{"d": NewDict("a", 1, "b", 2)}, "a=1;b=2;"},
		{"nested unpack", "<?code (a, (b, c)) = [1, [2, 3]]?><?print a + b + c?>", nil, "6"},
		{"augmented", "<?code x = 5?><?code x += 2?><?code x *= 3?><?print x?>", nil, "21"},
		{"floor division", "<?print 7 // 2?> <?print -7 // 2?> <?print 7 % -3?>", nil, "3 -4 -2"},
		{"true division", "<?print 7 / 2?>", nil, "3.5"},
		{"string repeat", "<?print 'ab' * 3?>", nil, "ababab"},
		{"list concat", "<?print [1] + [2, 3]?>", nil, "[1, 2, 3]"},
		{"slice", "<?print 'hello'[1:-1]?>", nil, "ell"},
		{"negative index", "<?print [1, 2, 3][-1]?>", nil, "3"},
		{"contains", "<?print 'b' in 'abc'?> <?print 4 not in [1, 2]?>", nil, "True True"},
		{"and or", "<?print 0 or 'x'?> <?print 1 and 0?>", nil, "x 0"},
		{"list comprehension", "<?print [i * i for i in range(4) if i]?>", nil, "[1, 4, 9]"},
		{"dict comprehension", "<?print {i: str(i) for i in range(2)}?>", nil, "{0: '0', 1: '1'}"},
		{"generator", "<?print sum(i for i in range(5))?>", nil, "10"},
		{"dict unpack", "<?print {**{'a': 1}, 'b': 2}?>", nil, "{'a': 1, 'b': 2}"},
		{"keyword after star", "<?code a = [[3, 1, 2]]?><?print sorted(*a, reverse=True)?>", nil, "[3, 2, 1]"},
		{"star keyword double star", "<?code a = ['b', 'a']?><?print sorted(*[a], key=None, **{'reverse': True})?>", nil, "['b', 'a']"},
		{"none", "<?print None?>|<?print repr(None)?>", nil, "|None"},
		{"bool", "<?print True?>", nil, "True"},
		{"print closure", "<?def f?>x<?end def?><?print f?>|<?print str(f)?>", nil, "<templateclosure 'f'>|<templateclosure 'f'>"},
		{"float", "<?print 1.0?> <?print 0.5 + 0.25?>", nil, "1.0 0.75"},
		{"del", "<?code x = 1?><?code del x?><?print isdefined(x)?>", nil, "False"},
		{"del missing", "<?code del nothing?>ok", nil, "ok"},
		{"method rebinds list", "<?code l = [1]?><?code l.append(2)?><?print l?>", nil, "[1, 2]"},
		{"list shared by alias", "<?code m = [1]?><?code n = m?><?code m.append(2)?><?print n?>", nil, "[1, 2]"},
		{"list shared by closure", "<?code l = [1]?><?def f?><?code l.append(2)?><?end def?><?render f()?><?print l?>", nil, "[1, 2]"},
		{"list shared in dict", "<?code l = []?><?code d = {'l': l}?><?code d.l.insert(0, 'x')?><?print l.pop()?><?print d?>", nil, "x{'l': []}"},
		{"host slice rebound", "<?code ys = xs?><?code xs.append(3)?><?print xs?><?print ys?>", map[string]any{"xs": []any{1}}, "[1, 3][1]"},
		{"note", "a<?note ignored?>b", nil, "ab"},
		{"color", "<?print #f00?> <?print repr(#ff000080)?>", nil, "#f00 #ff000080"},
		{"date", "<?print @2024-02-29T12:30:00?>", nil, "2024-02-29 12:30:00"},
		{"timedelta", "<?print timedelta(1, 3661)?>", nil, "1 day, 1:01:01"},
		{"monthdelta", "<?print monthdelta(3)?>", nil, "3 months"},
		{"host map", "<?print cfg.name?>", map[string]any{"cfg": map[string]any{"name": "svc"}}, "svc"},
		{"host slice", "<?print len(xs)?>", map[string]any{"xs": []string{"a", "b"}}, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.source, tt.vars); got != tt.want {
				t.Errorf("render(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}
}

func TestRender_Undefined(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"variable prints nothing", "[<?print x?>]", "[]"},
		{"attribute of undefined", "[<?print x.y?>]", "[]"},
		{"missing dict key", "[<?print {}['k']?>]", "[]"},
		{"falsy", "<?if x?>yes<?else?>no<?end if?>", "no"},
		{"isundefined", "<?print isundefined(x)?>", "True"},
		{"method of undefined", "[<?print x.upper()?>]", "[]"},
		{"soft builtin", "[<?print int(x)?>]", "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.source, nil); got != tt.want {
				t.Errorf("render(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}

	for _, source := range []string{
		"<?for i in x?><?end for?>",
		"<?print x[0]?>",
		"<?print x + 1?>",
		"<?print len(x)?>",
	} {
		err := renderErr(t, source, nil)
		if !errors.Is(err, ErrUndefined) {
			t.Errorf("render(%q) error = %v, want ErrUndefined", source, err)
		}
	}
}

func TestRender_Scopes(t *testing.T) {
	t.Run("loop variable is local", func(t *testing.T) {
		got := render(t, "<?for i in range(3)?><?end for?><?print isdefined(i)?>", nil)
		if got != "False" {
			t.Errorf("got %q, want %q", got, "False")
		}
	})

	t.Run("loop updates outer binding", func(t *testing.T) {
		got := render(t, "<?code n = 0?><?for i in range(4)?><?code n += i?><?end for?><?print n?>", nil)
		if got != "6" {
			t.Errorf("got %q, want %q", got, "6")
		}
	})

	t.Run("closure freezes variables", func(t *testing.T) {
		got := render(t, "<?code x = 1?><?def t?><?print x?><?end def?><?code x = 2?><?render t()?>", nil)
		if got != "1" {
			t.Errorf("got %q, want %q", got, "1")
		}
	})

	t.Run("keyword arguments override closure", func(t *testing.T) {
		got := render(t, "<?code x = 1?><?def t?><?print x?><?end def?><?render t(x=5)?>", nil)
		if got != "5" {
			t.Errorf("got %q, want %q", got, "5")
		}
	})

	t.Run("caller variables are not visible", func(t *testing.T) {
		vars := map[string]any{}

		tmpl, err := Compile(t.Context(), "<?def t?>[<?print y?>]<?end def?><?code y = 1?><?render t()?>")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		got, err := tmpl.Renders(t.Context(), vars)
		if err != nil {
			t.Fatalf("Renders failed: %v", err)
		}

		if got != "[]" {
			t.Errorf("got %q, want %q", got, "[]")
		}

		if len(vars) != 0 {
			t.Errorf("caller map was modified: %v", vars)
		}
	})
}

func TestCall_Return(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   any
	}{
		{"value", "<?return 1 + 1?>", 2},
		{"output discarded", "text<?return 'x'?>", "x"},
		{"no return", "text", nil},
		{"return in loop", "<?for i in range(10)?><?if i == 3?><?return i?><?end if?><?end for?>", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Compile(t.Context(), tt.source)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}

			got, err := tmpl.Call(t.Context(), nil)
			if err != nil {
				t.Fatalf("Call failed: %v", err)
			}

			if got != tt.want {
				t.Errorf("Call() = %#v, want %#v", got, tt.want)
			}
		})
	}

	t.Run("nested def", func(t *testing.T) {
		source := "<?def f?><?for i in range(10)?><?if i == 3?><?return i?><?end if?><?end for?>" +
			"never<?end def?><?print f()?>"

		if got := render(t, source, nil); got != "3" {
			t.Errorf("got %q, want %q", got, "3")
		}
	})

	t.Run("return stops rendering", func(t *testing.T) {
		if got := render(t, "a<?return?>b", nil); got != "a" {
			t.Errorf("got %q, want %q", got, "a")
		}
	})
}

func TestRender_Errors(t *testing.T) {
	t.Run("location of failing tag", func(t *testing.T) {
		err := renderErr(t, "line one\n  <?print 1 / x?>", map[string]any{"x": 0})
		if !errors.Is(err, ErrZeroDivision) {
			t.Fatalf("error = %v, want ErrZeroDivision", err)
		}

		var le *LocationError
		if !errors.As(err, &le) {
			t.Fatalf("error %v carries no location", err)
		}

		if le.Location.Type != "print" {
			t.Errorf("location type = %q, want %q", le.Location.Type, "print")
		}

		pos := le.Location.Position()
		if pos.Line != 2 || pos.Column != 3 {
			t.Errorf("position = %v, want line 2, col 3", pos)
		}
	})

	t.Run("one location per frame", func(t *testing.T) {
		err := renderErr(t, "<?def f?><?for i in [1]?><?print 1 // x?><?end for?><?end def?><?render f(x=0)?>", nil)
		if !errors.Is(err, ErrZeroDivision) {
			t.Fatalf("error = %v, want ErrZeroDivision", err)
		}

		var types []string

		for e := err; ; {
			var le *LocationError
			if !errors.As(e, &le) {
				break
			}

			types = append(types, le.Location.Type)
			e = le.Err
		}

		if strings.Join(types, ",") != "render,print" {
			t.Errorf("location chain = %v, want [render print]", types)
		}
	})

	t.Run("unknown function suggests a name", func(t *testing.T) {
		err := renderErr(t, "<?print lenn([])?>", nil)
		if !errors.Is(err, ErrUnknownFunction) {
			t.Fatalf("error = %v, want ErrUnknownFunction", err)
		}

		if !strings.Contains(err.Error(), "did you mean") {
			t.Errorf("error %q has no suggestion", err)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		err := renderErr(t, "<?print 'x'.uper()?>", nil)
		if !errors.Is(err, ErrUnknownMethod) {
			t.Fatalf("error = %v, want ErrUnknownMethod", err)
		}
	})

	t.Run("type error", func(t *testing.T) {
		err := renderErr(t, "<?print x + 'a'?>", map[string]any{"x": 1})
		if !errors.Is(err, ErrType) {
			t.Fatalf("error = %v, want ErrType", err)
		}
	})

	t.Run("unpack count", func(t *testing.T) {
		err := renderErr(t, "<?code a, b = [1, 2, 3]?>", nil)
		if !errors.Is(err, ErrValue) {
			t.Fatalf("error = %v, want ErrValue", err)
		}
	})

	t.Run("recursion limit", func(t *testing.T) {
		tmpl, err := Compile(t.Context(), "<?render self(self=self)?>", WithMaxDepth(10))
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}

		_, err = tmpl.Renders(t.Context(), map[string]any{"self": tmpl})
		if !errors.Is(err, ErrRecursion) {
			t.Fatalf("error = %v, want ErrRecursion", err)
		}
	})

	t.Run("templates take keywords only", func(t *testing.T) {
		err := renderErr(t, "<?def f?><?end def?><?print f(1)?>", nil)
		if !errors.Is(err, ErrArgument) {
			t.Fatalf("error = %v, want ErrArgument", err)
		}
	})
}

func TestRender_Streaming(t *testing.T) {
	tmpl, err := Compile(t.Context(), "<?for i in range(1000000)?><?print i?>,<?end for?>")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var chunks []string

	for chunk, err := range tmpl.Render(t.Context(), nil) {
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}

		chunks = append(chunks, chunk)
		if len(chunks) == 4 {
			break
		}
	}

	if got := strings.Join(chunks, ""); got != "0,1," {
		t.Errorf("first chunks = %q, want %q", got, "0,1,")
	}
}

func TestRender_Cancel(t *testing.T) {
	tmpl, err := Compile(t.Context(), "<?for i in range(10)?><?print i?><?end for?>")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = tmpl.Renders(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

type greeter struct{ greeting string }

func (g greeter) UL4Attr(name string) (any, bool) {
	if name == "greeting" {
		return g.greeting, true
	}

	return nil, false
}

func (g greeter) UL4Call(_ context.Context, args []any, _ map[string]any) (any, error) {
	return g.greeting + ", " + str(args[0]), nil
}

func TestRender_HostValues(t *testing.T) {
	vars := map[string]any{"g": greeter{greeting: "hi"}}

	got := render(t, "<?print g.greeting?>|<?print g('bob')?>|[<?print g.other?>]", vars)
	if want := "hi|hi, bob|[]"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender_KeepWhitespace(t *testing.T) {
	source := "<?if 1?>\n\t  a\n  \tb\n<?end if?>"

	if got, want := render(t, source, nil), "\n\t  a\n  \tb\n"; got != want {
		t.Errorf("keep: got %q, want %q", got, want)
	}

	if got, want := render(t, source, nil, WithKeepWhitespace(false)), "\na\nb\n"; got != want {
		t.Errorf("strip: got %q, want %q", got, want)
	}
}

func TestRender_Delimiters(t *testing.T) {
	got := render(t, "{{print x}} <?print x?>", map[string]any{"x": 1}, WithDelimiters("{{", "}}"))
	if want := "1 <?print x?>"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTemplates(t *testing.T) {
	tmpl, err := Compile(t.Context(), "<?def a?>A<?end def?><?def b?>B<?end def?>")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	defs := tmpl.Templates()
	if len(defs) != 2 || defs["a"] == nil || defs["b"] == nil {
		t.Fatalf("Templates() = %v, want a and b", defs)
	}

	out, err := defs["b"].Renders(t.Context(), nil)
	if err != nil || out != "B" {
		t.Errorf("b.Renders() = %q, %v", out, err)
	}
}
