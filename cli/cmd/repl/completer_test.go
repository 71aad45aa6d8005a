package repl

import (
	"slices"
	"strings"
	"testing"

	"github.com/sahilm/fuzzy"
)

func TestWordBounds(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		cursor    int
		wantWord  string
		wantStart int
		wantEnd   int
	}{
		{"simple", "foo", 3, "foo", 0, 3},
		{"dot_separated", "bar.baz", 7, "baz", 4, 7},
		{"after_plus", "a + fo", 6, "fo", 4, 6},
		{"after_paren", "len(fo", 6, "fo", 4, 6},
		{"after_comma", "max(a, fo", 9, "fo", 7, 9},
		{"after_minus", "a-fo", 4, "fo", 2, 4},
		{"after_comparison", "a > fo", 6, "fo", 4, 6},
		{"in_tag", "<?print fo", 10, "fo", 8, 10},
		{"empty_at_boundary", "a + ", 4, "", 4, 4},
		{"mid_word", "foobar", 3, "foobar", 0, 6},
		{"at_start", "foo", 0, "foo", 0, 3},
		{"underscore", "is_dict", 7, "is_dict", 0, 7},
		{"empty_after_dot", "user.", 5, "", 5, 5},
		{"cursor_past_end", "ab", 9, "ab", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			word, start, end := wordBounds(tt.input, tt.cursor)
			if word != tt.wantWord || start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("wordBounds(%q, %d) = (%q, %d, %d), want (%q, %d, %d)",
					tt.input, tt.cursor, word, start, end,
					tt.wantWord, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestParentPath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wordStart int
		want      string
	}{
		{"top_level", "fo", 0, ""},
		{"no_dot", "a + b", 4, ""},
		{"simple_chain", "user.address.", 13, "user.address"},
		{"partial_word", "user.na", 5, "user"},
		{"after_operator", "x + user.address.", 17, "user.address"},
		{"after_paren", "(user.", 6, "user"},
		{"after_minus", "a-user.", 7, "user"},
		{"number_literal", "1.", 2, ""},
		{"deep_chain", "a.b.c.", 6, "a.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parentPath(tt.input, tt.wordStart); got != tt.want {
				t.Errorf("parentPath(%q, %d) = %q, want %q",
					tt.input, tt.wordStart, got, tt.want)
			}
		})
	}
}

func newTestModel(t *testing.T, vars map[string]any) model {
	t.Helper()

	return newModel(t.Context(), NewSession(vars, "", "", testLogger), NewHistory(""), testLogger)
}

func typeInto(m model, s string) model {
	m.input.SetValue(s)
	m.input.SetCursor(len(s))
	refreshMatches(&m, false)

	return m
}

func matchStrings(ms fuzzy.Matches) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Str
	}

	return out
}

func TestComputeMatches(t *testing.T) {
	m := newTestModel(t, map[string]any{
		"username": "ann",
		"user":     map[string]any{"name": "ann", "age": 7, "bad key": 1},
	})

	t.Run("empty_top_level", func(t *testing.T) {
		if got := typeInto(m, "").matches; len(got) != 0 {
			t.Errorf("matches = %v, want none", matchStrings(got))
		}
	})

	t.Run("variables_and_builtins", func(t *testing.T) {
		got := matchStrings(typeInto(m, "use").matches)
		if !slices.Contains(got, "user") || !slices.Contains(got, "username") {
			t.Errorf("matches = %v, want user and username", got)
		}

		got = matchStrings(typeInto(m, "isdi").matches)
		if !slices.Contains(got, "isdict") {
			t.Errorf("matches = %v, want isdict", got)
		}
	})

	t.Run("builtins_are_functions", func(t *testing.T) {
		mm := typeInto(m, "le")
		if !mm.funcs["len"] || mm.funcs["username"] {
			t.Errorf("funcs = %v", mm.funcs)
		}
	})

	t.Run("members_after_dot", func(t *testing.T) {
		mm := typeInto(m, "user.")
		got := matchStrings(mm.matches)

		for _, want := range []string{"age", "name", "items", "get"} {
			if !slices.Contains(got, want) {
				t.Errorf("members = %v, missing %q", got, want)
			}
		}

		if slices.Contains(got, "bad key") {
			t.Errorf("members = %v, want identifiers only", got)
		}

		if !mm.funcs["items"] || mm.funcs["age"] {
			t.Errorf("funcs = %v", mm.funcs)
		}
	})

	t.Run("string_methods", func(t *testing.T) {
		got := matchStrings(typeInto(m, "username.upp").matches)
		if len(got) == 0 || got[0] != "upper" {
			t.Errorf("matches = %v, want upper first", got)
		}
	})

	t.Run("unknown_parent", func(t *testing.T) {
		if got := typeInto(m, "nothing.x").matches; len(got) != 0 {
			t.Errorf("matches = %v, want none", matchStrings(got))
		}
	})

	t.Run("ctrl_mode", func(t *testing.T) {
		mm := m.switchToMode(modeCtrl)
		if got := matchStrings(typeInto(mm, "qu").matches); !slices.Equal(got, []string{"quit"}) {
			t.Errorf("matches = %v, want [quit]", got)
		}
	})
}

func TestCycle(t *testing.T) {
	m := typeInto(newTestModel(t, map[string]any{"zzone": 1, "zztwo": 2}), "zz")

	if len(m.matches) != 2 {
		t.Fatalf("matches = %v, want two", matchStrings(m.matches))
	}

	first := m.cycle(1)
	if !first.tabActive || first.input.Value() != first.matches[0].Str {
		t.Fatalf("after Tab input = %q, want %q", first.input.Value(), first.matches[0].Str)
	}

	second := first.cycle(1)
	if second.input.Value() != second.matches[1].Str {
		t.Errorf("after second Tab input = %q, want %q", second.input.Value(), second.matches[1].Str)
	}

	if back := second.cycle(-1); back.input.Value() != first.input.Value() {
		t.Errorf("after Shift-Tab input = %q, want %q", back.input.Value(), first.input.Value())
	}

	if wrap := first.cycle(-1); wrap.input.Value() != second.input.Value() {
		t.Errorf("Shift-Tab from first = %q, want wrap to %q", wrap.input.Value(), second.input.Value())
	}
}

func TestCycle_SingleCandidate(t *testing.T) {
	m := typeInto(newTestModel(t, map[string]any{"qqzebra": 1}), "x + qqz")

	m = m.cycle(1)

	if got := m.input.Value(); got != "x + qqzebra" {
		t.Errorf("input = %q, want %q", got, "x + qqzebra")
	}

	if m.tabActive || m.matches != nil {
		t.Error("single candidate should be accepted without cycling")
	}
}

func TestRenderCandidateBar(t *testing.T) {
	matches := fuzzy.Matches{{Str: "alpha"}, {Str: "beta"}, {Str: "gamma"}, {Str: "delta"}}

	full := renderCandidateBar(matches, -1, false, 80, map[string]bool{"beta": true})
	if !strings.Contains(full, "beta()") || strings.Contains(full, "alpha()") {
		t.Errorf("bar = %q, want () only after functions", full)
	}

	if strings.Contains(full, "...") {
		t.Errorf("bar = %q, want no ellipsis at width 80", full)
	}

	short := renderCandidateBar(matches, -1, false, 16, nil)
	if !strings.Contains(short, "alpha") || !strings.HasSuffix(short, "...") || strings.Contains(short, "delta") {
		t.Errorf("bar = %q, want truncation with ellipsis", short)
	}

	if got := renderCandidateBar(nil, 0, false, 80, nil); got != "" {
		t.Errorf("empty bar = %q", got)
	}
}
