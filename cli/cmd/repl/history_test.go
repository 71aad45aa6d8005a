package repl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHistory_AddAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), baseHistory)

	h := NewHistory(path)
	if err := h.Load(); err != nil {
		t.Fatalf("Load() of a missing file: %v", err)
	}

	for _, e := range []HistoryEntry{
		{"1 + 2", modeEval},
		{"vars", modeCtrl},
		{"  x = 1  ", modeEval},
		{"x = 1", modeEval}, // repeat of the last entry
		{"", modeEval},
	} {
		if err := h.Add(e.Line, e.Mode); err != nil {
			t.Fatal(err)
		}
	}

	want := []HistoryEntry{
		{"1 + 2", modeEval},
		{"vars", modeCtrl},
		{"x = 1", modeEval},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if got := string(data); got != "E:1 + 2\nC:vars\nE:x = 1\n" {
		t.Errorf("file = %q", got)
	}

	loaded := NewHistory(path)
	if err := loaded.Load(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(want, entries(t, loaded)); diff != "" {
		t.Errorf("loaded entries mismatch (-want +got):\n%s", diff)
	}
}

func TestHistory_MovesDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), baseHistory)
	h := NewHistory(path)

	for _, e := range []HistoryEntry{
		{"a", modeEval},
		{"a", modeCtrl},
		{"b", modeEval},
		{"a", modeEval},
	} {
		if err := h.Add(e.Line, e.Mode); err != nil {
			t.Fatal(err)
		}
	}

	want := []HistoryEntry{{"a", modeCtrl}, {"b", modeEval}, {"a", modeEval}}

	if diff := cmp.Diff(want, entries(t, h)); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	reloaded := NewHistory(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(want, entries(t, reloaded)); diff != "" {
		t.Errorf("rewritten file mismatch (-want +got):\n%s", diff)
	}
}

func TestHistory_LegacyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), baseHistory)
	if err := os.WriteFile(path, []byte("plain\n\nC:help\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	h := NewHistory(path)
	if err := h.Load(); err != nil {
		t.Fatal(err)
	}

	want := []HistoryEntry{{"plain", modeEval}, {"help", modeCtrl}}
	if diff := cmp.Diff(want, entries(t, h)); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestHistory_InMemory(t *testing.T) {
	h := NewHistory("")

	if err := h.Add("x", modeEval); err != nil {
		t.Fatal(err)
	}

	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}

	if _, err := h.Entry(1); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Entry(1) error = %v, want ErrOutOfBounds", err)
	}
}

func TestHistoryStep(t *testing.T) {
	m := newTestModel(t, nil)

	for _, e := range []HistoryEntry{{"1", modeEval}, {"help", modeCtrl}, {"2", modeEval}} {
		if err := m.history.Add(e.Line, e.Mode); err != nil {
			t.Fatal(err)
		}
	}

	m.historyIdx = m.history.Len()

	m = m.historyStep(-1, false)
	if m.input.Value() != "2" || m.mode != modeEval {
		t.Fatalf("Up = %q mode %d", m.input.Value(), m.mode)
	}

	m = m.historyStep(-1, false)
	if m.input.Value() != "help" || m.mode != modeCtrl {
		t.Fatalf("Up again = %q mode %d, want help in command mode", m.input.Value(), m.mode)
	}

	m = m.historyStep(1, true)
	if m.input.Value() != "" || m.historyIdx != m.history.Len() {
		t.Errorf("Shift+Down past the last command = %q at %d", m.input.Value(), m.historyIdx)
	}

	m = m.switchToMode(modeEval).historyStep(-1, true)
	m = m.historyStep(-1, true)

	if m.input.Value() != "1" || m.mode != modeEval {
		t.Errorf("Shift+Up twice in eval mode = %q mode %d, want 1", m.input.Value(), m.mode)
	}
}

func entries(t *testing.T, h *History) []HistoryEntry {
	t.Helper()

	out := make([]HistoryEntry, h.Len())

	for i := range out {
		e, err := h.Entry(i)
		if err != nil {
			t.Fatal(err)
		}

		out[i] = e
	}

	return out
}
