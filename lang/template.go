package lang

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/ardnew/ul4/log"
)

// Version is the serialization format version written by [Template.Dumps]
// and required by the loaders.
const Version = "50"

// DefaultMaxDepth is the default limit on nested template calls.
// Users may modify this before compiling to change the default.
var DefaultMaxDepth = 200

// Template is a compiled template. It is also the node produced by a def
// block, so templates nest.
//
// A Template is immutable after compilation and safe for concurrent use.
type Template struct {
	nodeBase

	Name       string
	Source     string
	StartDelim string
	EndDelim   string
	KeepWS     bool
	End        *Location
	Content    []Node

	logger   log.Logger
	maxDepth int
}

// Kind implements [Node].
func (*Template) Kind() Kind { return KindTemplate }

// String returns the repr form of the template.
func (t *Template) String() string { return repr(t) }

// Option configures compilation.
type Option func(*Template)

// WithName sets the template name.
func WithName(name string) Option {
	return func(t *Template) { t.Name = name }
}

// WithDelimiters sets the tag delimiters. Empty values keep the defaults.
func WithDelimiters(start, end string) Option {
	return func(t *Template) {
		if start != "" {
			t.StartDelim = start
		}

		if end != "" {
			t.EndDelim = end
		}
	}
}

// WithKeepWhitespace controls whether leading indentation is kept.
func WithKeepWhitespace(keep bool) Option {
	return func(t *Template) { t.KeepWS = keep }
}

// WithLogger sets the structured logger for trace-level debugging.
// If not provided, the logger is zero-valued and all logging is a no-op.
func WithLogger(logger log.Logger) Option {
	return func(t *Template) { t.logger = logger }
}

// WithMaxDepth sets the maximum depth of nested template calls.
func WithMaxDepth(depth int) Option {
	return func(t *Template) { t.maxDepth = depth }
}

func newTemplate(source string, opts ...Option) *Template {
	t := &Template{
		Source:     source,
		StartDelim: DefaultStartDelim,
		EndDelim:   DefaultEndDelim,
		KeepWS:     true,
		maxDepth:   DefaultMaxDepth,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Configure applies runtime options (logger, depth limit) to a template
// obtained from a loader or the cache. Options affecting compilation have no
// effect on an already compiled template.
func (t *Template) Configure(opts ...Option) *Template {
	c := *t

	for _, opt := range opts {
		opt(&c)
	}

	c.Name, c.StartDelim, c.EndDelim, c.KeepWS = t.Name, t.StartDelim, t.EndDelim, t.KeepWS

	return &c
}

// Render evaluates the template with vars and yields output chunks as they
// are produced. Iteration stops at the first error, which is yielded with an
// empty chunk. Stopping the loop early abandons evaluation.
func (t *Template) Render(ctx context.Context, vars map[string]any) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		t.logger.TraceContext(ctx, "render start",
			slog.String("template", t.Name),
			slog.Int("vars", len(vars)))

		stopped := false
		f := &frame{
			ctx:    ctx,
			tmpl:   t,
			logger: t.logger,
			depth:  1,
			emit: func(s string) bool {
				if s == "" {
					return true
				}

				if !yield(s, nil) {
					stopped = true

					return false
				}

				return true
			},
		}

		_, err := f.run(t, NewScope(vars))
		if err != nil && !stopped {
			t.logger.DebugContext(ctx, "render failed",
				slog.String("template", t.Name),
				slog.Any("error", err))
			yield("", err)
		}
	}
}

// Renders evaluates the template and returns the complete output.
func (t *Template) Renders(ctx context.Context, vars map[string]any) (string, error) {
	var b strings.Builder

	for chunk, err := range t.Render(ctx, vars) {
		if err != nil {
			return "", err
		}

		b.WriteString(chunk)
	}

	return b.String(), nil
}

// RenderTo evaluates the template and writes the output to w.
func (t *Template) RenderTo(ctx context.Context, w io.Writer, vars map[string]any) error {
	for chunk, err := range t.Render(ctx, vars) {
		if err != nil {
			return err
		}

		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
	}

	return nil
}

// Call evaluates the template as a function: output is discarded and the
// value of the first executed return tag is the result. A template without
// a return yields nil.
func (t *Template) Call(ctx context.Context, vars map[string]any) (any, error) {
	f := &frame{
		ctx:    ctx,
		tmpl:   t,
		logger: t.logger,
		depth:  1,
		emit:   func(string) bool { return true },
	}

	return f.run(t, NewScope(vars))
}

// Templates returns the templates defined at the top level of t, keyed by
// name.
func (t *Template) Templates() map[string]*Template {
	out := make(map[string]*Template)

	for _, n := range t.Content {
		if def, ok := n.(*Template); ok {
			out[def.Name] = def
		}
	}

	return out
}
