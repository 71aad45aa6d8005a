package cmd

import (
	"context"
	"log/slog"
	"slices"

	"github.com/ardnew/ul4/cli/cmd/repl"
	"github.com/ardnew/ul4/log"
)

// Repl starts an interactive shell. The templates defined by an optional
// template file are available as variables, and the edit command reloads
// them.
type Repl struct {
	Template Template `embed:""`
	Vars     Vars     `embed:""`
}

// Run executes the repl command.
func (r *Repl) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	if slices.Contains(r.Template.Source, stdinSource) {
		return ErrReplStdin
	}

	vars, err := r.Vars.Load(ctx)
	if err != nil {
		return err
	}

	session := repl.NewSession(vars, r.Template.Start, r.Template.End, log.Default(),
		r.Template.options("repl")...)

	if len(r.Template.Source) > 0 {
		src, err := OpenSources(r.Template.Source)
		if err != nil {
			return err
		}

		tmpl, err := r.Template.Load(ctx, src)
		if err != nil {
			return err
		}

		session.SetTemplate(tmpl)
	}

	cacheDir := kongContextFrom(ctx).Model.Vars()[CacheIdentifier]

	log.DebugContext(ctx, "starting repl",
		slog.String("cache_dir", cacheDir),
		slog.Int("vars", len(vars)))

	return repl.Run(ctx, session, cacheDir, log.Default())
}
