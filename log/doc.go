// Package log is a small front end for [log/slog] with a Trace level below
// Debug, immutable functional configuration, and a styled text handler.
//
// # Loggers
//
// [Make] creates a [Logger] bound to a writer:
//
//	logger := log.Make(os.Stderr,
//		log.WithLevel(log.LevelDebug),
//		log.WithFormat(log.FormatJSON),
//		log.WithCaller(true))
//
// Loggers are values. [Logger.Wrap] derives a reconfigured copy and
// [Logger.With] one that adds attributes to every record; neither affects the
// original. The zero Logger discards everything, which lets packages such as
// lang accept an optional logger without checking for nil.
//
// Every level has a context-aware variant (TraceContext, DebugContext, ...).
// The plain variants use [DefaultContextProvider].
//
// # Package-level logger
//
// Functions of the same names log through a process-wide logger that writes
// pretty text to stderr until [Config] or [SetDefault] replaces it. The ul4
// command reconfigures it from its --log-* flags while they are parsed, so
// messages about bad flags already honor them.
//
// # Output
//
// [FormatText] writes one line per record. With [WithPretty] enabled (the
// default) keys, values and levels are colored using lipgloss, and groups such
// as the structured values of lang errors are flattened to dotted keys:
//
//	2024-03-05T14:07:00Z ERROR render failed error.tag=print error.line=2
//
// Colors are only emitted when the output is a terminal. [FormatJSON] writes
// one object per record, indented when pretty.
//
// Timestamps follow [WithTimeLayout]: a named layout of package time
// (RFC3339, Kitchen, StampMilli, ...), a custom layout, or "none".
package log
