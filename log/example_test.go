package log_test

import (
	"log/slog"
	"os"

	"github.com/ardnew/ul4/log"
)

func Example() {
	logger := log.Make(os.Stdout, log.WithTimeLayout("none"), log.WithPretty(false))
	logger.Info("rendered", slog.String("template", "page"), slog.Int("bytes", 512))

	// Output:
	// level=INFO msg=rendered template=page bytes=512
}

func Example_levels() {
	logger := log.Make(os.Stdout,
		log.WithLevel(log.LevelWarn),
		log.WithTimeLayout("none"),
		log.WithPretty(false))

	logger.Debug("parsed tag")
	logger.Info("compiled template")
	logger.Warn("undefined variable", slog.String("name", "user"))

	// Output:
	// level=WARN msg="undefined variable" name=user
}

func Example_json() {
	logger := log.Make(os.Stdout,
		log.WithFormat(log.FormatJSON),
		log.WithTimeLayout("none"),
		log.WithPretty(false))

	logger.With(slog.String("cmd", "dump")).Error("bad input", slog.Int("offset", 7))

	// Output:
	// {"level":"ERROR","msg":"bad input","cmd":"dump","offset":7}
}

func Example_trace() {
	logger := log.Make(os.Stdout, log.WithTimeLayout("none"), log.WithPretty(false))
	logger.Trace("dropped")

	logger = logger.Wrap(log.WithLevel(log.ParseLevel("trace")))
	logger.Trace("token", slog.String("kind", "name"))

	// Output:
	// level=TRACE msg=token kind=name
}
