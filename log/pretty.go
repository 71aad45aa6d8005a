package log

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// indentWriter re-indents each JSON record written by a slog.JSONHandler.
type indentWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (w indentWriter) Write(p []byte) (int, error) {
	var buf bytes.Buffer

	if err := json.Indent(&buf, p, "", "  "); err != nil {
		buf.Reset()
		buf.Write(p)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}

	return len(p), nil
}

func newPrettyJSONHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(indentWriter{mu: &sync.Mutex{}, w: w}, opts)
}

// textStyles colors the parts of a pretty text record. Styles come from a
// renderer bound to the output, so non-terminal writers get plain text.
type textStyles struct {
	key, str, num, time, source lipgloss.Style
	levels                      map[slog.Level]lipgloss.Style
}

func newTextStyles(w io.Writer) *textStyles {
	r := lipgloss.NewRenderer(w)
	fg := func(c string) lipgloss.Style { return r.NewStyle().Foreground(lipgloss.Color(c)) }

	return &textStyles{
		key:    fg("8"),
		str:    fg("6"),
		num:    fg("3"),
		time:   fg("4"),
		source: fg("8").Italic(true),
		levels: map[slog.Level]lipgloss.Style{
			slog.Level(LevelTrace): fg("5"),
			slog.LevelDebug:        fg("4"),
			slog.LevelInfo:         fg("2"),
			slog.LevelWarn:         fg("3").Bold(true),
			slog.LevelError:        fg("1").Bold(true),
		},
	}
}

func (s *textStyles) level(l slog.Level) lipgloss.Style {
	best, found := lipgloss.Style{}, false

	for _, lv := range []slog.Level{slog.Level(LevelTrace), slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if lv <= l {
			best, found = s.levels[lv], true
		}
	}

	if !found {
		return s.levels[slog.Level(LevelTrace)]
	}

	return best
}

// prettyTextHandler writes one line per record: time, level, source,
// message, then key=value pairs with nested groups flattened to dotted keys.
type prettyTextHandler struct {
	opts   slog.HandlerOptions
	style  *textStyles
	mu     *sync.Mutex
	w      io.Writer
	prefix string // dotted group path for attrs added later
	pre    []byte // attrs added with WithAttrs, already formatted
}

func newPrettyTextHandler(w io.Writer, opts *slog.HandlerOptions) *prettyTextHandler {
	return &prettyTextHandler{
		opts:  *opts,
		style: newTextStyles(w),
		mu:    &sync.Mutex{},
		w:     w,
	}
}

func (h *prettyTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}

	return level >= minLevel
}

func (h *prettyTextHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	if !r.Time.IsZero() {
		if a := h.replace(slog.Time(slog.TimeKey, r.Time)); a.Key != "" {
			buf.WriteString(h.style.time.Render(a.Value.String()))
			buf.WriteByte(' ')
		}
	}

	level := h.replace(slog.Any(slog.LevelKey, r.Level)).Value.String()
	buf.WriteString(h.style.level(r.Level).Render(padRight(level, 5)))

	if h.opts.AddSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			buf.WriteByte(' ')
			buf.WriteString(h.style.source.Render(shortFile(frame.File) + ":" + strconv.Itoa(frame.Line)))
		}
	}

	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	buf.Write(h.pre)

	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&buf, h.prefix, a)

		return true
	})

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.w.Write(buf.Bytes())

	return err
}

func (h *prettyTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf bytes.Buffer

	buf.Write(h.pre)

	for _, a := range attrs {
		h.appendAttr(&buf, h.prefix, a)
	}

	c := *h
	c.pre = buf.Bytes()

	return &c
}

func (h *prettyTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	c := *h
	c.prefix = h.prefix + name + "."

	return &c
}

func (h *prettyTextHandler) replace(a slog.Attr) slog.Attr {
	if h.opts.ReplaceAttr == nil {
		return a
	}

	return h.opts.ReplaceAttr(nil, a)
}

func (h *prettyTextHandler) appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()

	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}

		for _, g := range a.Value.Group() {
			h.appendAttr(buf, p, g)
		}

		return
	}

	buf.WriteByte(' ')
	buf.WriteString(h.style.key.Render(prefix + a.Key + "="))
	buf.WriteString(h.renderValue(a.Value))
}

func (h *prettyTextHandler) renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			s = strconv.Quote(s)
		}

		return h.style.str.Render(s)
	case slog.KindInt64, slog.KindUint64, slog.KindFloat64, slog.KindBool, slog.KindDuration:
		return h.style.num.Render(v.String())
	case slog.KindTime:
		return h.style.time.Render(v.Time().Format(time.RFC3339))
	}

	if err, ok := v.Any().(error); ok {
		return h.style.str.Render(strconv.Quote(err.Error()))
	}

	return h.style.str.Render(v.String())
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}

	return s + strings.Repeat(" ", n-len(s))
}

// shortFile keeps the last directory and file name of a source path.
func shortFile(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}

	if j := strings.LastIndexByte(path[:i], '/'); j >= 0 {
		return path[j+1:]
	}

	return path
}
