package cmd

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ardnew/ul4/log"
)

// Render compiles a template and writes its output.
type Render struct {
	Template Template `embed:""`
	Vars     Vars     `embed:""`

	Output   string        `default:"-"     help:"Output file, or '-' for stdout."                           short:"o"`
	Watch    bool          `                help:"Render again whenever a template or variable file changes." short:"w"`
	Debounce time.Duration `default:"100ms" help:"Quiet period after a change before rendering again."`

	stdout io.Writer
}

// Run executes the render command.
func (r *Render) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	src, err := OpenSources(r.Template.Source)
	if err != nil {
		return err
	}

	if !r.Watch {
		return r.render(ctx, src)
	}

	if src.Stdin() {
		return ErrWatchStdin
	}

	return r.watch(ctx, src)
}

func (r *Render) render(ctx context.Context, src *Sources) error {
	vars, err := r.Vars.Load(ctx)
	if err != nil {
		return err
	}

	tmpl, err := r.Template.Load(ctx, src)
	if err != nil {
		return err
	}

	w, closeOutput, err := r.output()
	if err != nil {
		return err
	}
	defer closeOutput()

	bw := bufio.NewWriter(w)

	if err := tmpl.RenderTo(ctx, bw, vars); err != nil {
		_ = bw.Flush()

		return err
	}

	if err := bw.Flush(); err != nil {
		return ErrWriteOutput.With(slogPath(r.Output)).Wrap(err)
	}

	return nil
}

func (r *Render) output() (io.Writer, func(), error) {
	switch {
	case r.stdout != nil:
		return r.stdout, func() {}, nil
	case r.Output == "" || r.Output == stdinSource:
		return os.Stdout, func() {}, nil
	}

	f, err := os.Create(r.Output)
	if err != nil {
		return nil, nil, ErrWriteOutput.With(slogPath(r.Output)).Wrap(err)
	}

	return f, func() { _ = f.Close() }, nil
}

// watch renders once, then again after each burst of changes to the
// template or variable files, until ctx is done. Render errors are logged
// and do not end the loop.
//
// Directories are watched rather than files, since many editors save by
// replacing the file.
func (r *Render) watch(ctx context.Context, src *Sources) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := make(map[string]bool)

	for _, path := range slices.Concat(src.Paths(), r.Vars.Files) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}

		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			path = resolved
		}

		watched[path] = true

		if err := watcher.Add(filepath.Dir(path)); err != nil {
			return ErrReadSource.With(slogPath(path)).Wrap(err)
		}
	}

	renderOnce := func() {
		if err := r.render(ctx, src); err != nil {
			log.ErrorContext(ctx, "render failed", slog.Any("error", err))
		}
	}

	renderOnce()

	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !watched[filepath.Clean(ev.Name)] ||
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			log.DebugContext(ctx, "source changed",
				slogPath(ev.Name),
				slog.String("op", ev.Op.String()))

			pending = time.After(r.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			log.WarnContext(ctx, "watch error", slog.Any("error", err))

		case <-pending:
			pending = nil

			renderOnce()
		}
	}
}
