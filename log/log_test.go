package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestMake_Defaults(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf)
	if l.Level() != DefaultLevel || l.Format() != DefaultFormat {
		t.Errorf("Make() level=%v format=%v", l.Level(), l.Format())
	}

	l.Debug("hidden")
	l.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("default level filtering failed: %q", out)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name   string
		log    func(Logger, string, ...slog.Attr)
		min    Level
		logged bool
	}{
		{"trace at trace", Logger.Trace, LevelTrace, true},
		{"trace at debug", Logger.Trace, LevelDebug, false},
		{"debug at info", Logger.Debug, LevelInfo, false},
		{"info at info", Logger.Info, LevelInfo, true},
		{"warn at error", Logger.Warn, LevelError, false},
		{"error at warn", Logger.Error, LevelWarn, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			tt.log(Make(&buf, WithLevel(tt.min)), "message")

			if got := buf.Len() > 0; got != tt.logged {
				t.Errorf("logged = %v, want %v (%q)", got, tt.logged, buf.String())
			}
		})
	}
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithFormat(FormatJSON), WithPretty(false), WithLevel(LevelTrace))
	l.TraceContext(t.Context(), "compiled", slog.String("template", "page"), slog.Int("nodes", 12))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not one JSON object: %v\n%s", err, buf.String())
	}

	if rec["level"] != "TRACE" || rec["msg"] != "compiled" || rec["template"] != "page" || rec["nodes"] != 12.0 {
		t.Errorf("record = %v", rec)
	}
}

func TestLogger_PrettyJSON(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithFormat(FormatJSON), WithTimeLayout("none"))
	l.Info("indented", slog.Group("loc", slog.Int("line", 2)))

	want := "{\n  \"level\": \"INFO\",\n  \"msg\": \"indented\",\n  \"loc\": {\n    \"line\": 2\n  }\n}\n"
	if got := buf.String(); got != want {
		t.Errorf("pretty JSON =\n%s\nwant\n%s", got, want)
	}
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithPretty(false), WithTimeLayout("none"))
	l.Warn("careful", slog.String("key", "value"))

	if got, want := buf.String(), "level=WARN msg=careful key=value\n"; got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
}

func TestLogger_TimeLayout(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithFormat(FormatJSON), WithPretty(false), WithTimeLayout("2006"))
	l.Info("x")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}

	if s, _ := rec["time"].(string); len(s) != 4 {
		t.Errorf("time = %v, want a four digit year", rec["time"])
	}
}

func TestLogger_Caller(t *testing.T) {
	var buf bytes.Buffer

	Make(&buf, WithCaller(true), WithTimeLayout("none")).Info("here")

	if out := buf.String(); !strings.Contains(out, "log/log_test.go:") {
		t.Errorf("caller is not this file: %q", out)
	}

	buf.Reset()
	Make(&buf, WithTimeLayout("none")).Info("here")

	if out := buf.String(); strings.Contains(out, "log_test.go") {
		t.Errorf("caller included although disabled: %q", out)
	}
}

func TestLogger_WrapAndWith(t *testing.T) {
	var buf bytes.Buffer

	base := Make(&buf, WithPretty(false), WithTimeLayout("none"))
	tagged := base.With(slog.String("cmd", "render"))
	quiet := tagged.Wrap(WithLevel(LevelError))

	tagged.Info("one")
	base.Info("two")
	quiet.Info("three")

	want := "level=INFO msg=one cmd=render\nlevel=INFO msg=two\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	if base.Level() != LevelInfo || quiet.Level() != LevelError {
		t.Errorf("levels = %v, %v", base.Level(), quiet.Level())
	}
}

func TestLogger_ZeroValue(t *testing.T) {
	var l Logger

	l.Trace("x")
	l.ErrorContext(t.Context(), "x")

	if l.Enabled(t.Context(), LevelError) {
		t.Error("zero Logger reports enabled")
	}

	if w := l.With(slog.Int("a", 1)); w.Logger != nil {
		t.Error("With on the zero Logger should stay a no-op")
	}

	var buf bytes.Buffer

	l.Wrap(WithOutput(&buf)).Info("wrapped")

	if !strings.Contains(buf.String(), "wrapped") {
		t.Error("Wrap on the zero Logger should produce a working logger")
	}
}

func TestLogger_Concurrent(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithFormat(FormatJSON))

	var wg sync.WaitGroup

	for i := range 50 {
		wg.Go(func() {
			l.Info("concurrent", slog.Int("id", i))
		})
	}

	wg.Wait()

	if n := strings.Count(buf.String(), `"msg": "concurrent"`); n != 50 {
		t.Errorf("got %d records, want 50", n)
	}
}

func BenchmarkLogger_Info(b *testing.B) {
	for _, format := range []Format{FormatText, FormatJSON} {
		for _, pretty := range []bool{false, true} {
			name := format.String()
			if pretty {
				name += "/pretty"
			}

			b.Run(name, func(b *testing.B) {
				var buf bytes.Buffer

				l := Make(&buf, WithFormat(format), WithPretty(pretty))

				for b.Loop() {
					buf.Reset()
					l.Info("message", slog.String("template", "t"), slog.Int("n", 1))
				}
			})
		}
	}
}

func BenchmarkLogger_Disabled(b *testing.B) {
	l := Make(nil, WithLevel(LevelError))

	for b.Loop() {
		l.Trace("message", slog.Int("n", 1))
	}
}

func TestLogger_PrettyText(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithTimeLayout("none")).With(slog.String("cmd", "fmt"))
	l.Warn("bad tag", slog.Group("error", slog.String("tag", "print"), slog.Int("line", 2)), slog.String("note", "a b"))

	want := `WARN  bad tag cmd=fmt error.tag=print error.line=2 note="a b"` + "\n"
	if got := buf.String(); got != want {
		t.Errorf("pretty text = %q, want %q", got, want)
	}

	if strings.Contains(buf.String(), "\x1b[") {
		t.Error("escape sequences written to a non-terminal")
	}
}
