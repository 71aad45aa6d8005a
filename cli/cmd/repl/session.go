package repl

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/ardnew/ul4/lang"
	"github.com/ardnew/ul4/log"
)

// Session holds the variables of a REPL and evaluates input lines against
// them. Assignments made by one line are visible to the next.
//
// A line containing the start delimiter is compiled as a template and its
// output returned. Any other line is first tried as an expression, whose
// value is returned in literal notation, then as a statement such as
// "x = 2" or "del x".
type Session struct {
	start, end string

	vars   map[string]any
	tmpl   *lang.Template
	opts   []lang.Option
	logger log.Logger
}

// NewSession returns a session over a copy of vars. The delimiters must
// match those selected by opts; empty strings select the defaults.
func NewSession(vars map[string]any, start, end string, logger log.Logger, opts ...lang.Option) *Session {
	if start == "" {
		start = "<?"
	}

	if end == "" {
		end = "?>"
	}

	s := &Session{
		start:  start,
		end:    end,
		vars:   make(map[string]any, len(vars)),
		opts:   opts,
		logger: logger,
	}

	maps.Copy(s.vars, vars)

	return s
}

// Template returns the template loaded with [Session.SetTemplate], if any.
func (s *Session) Template() *lang.Template { return s.tmpl }

// SetTemplate binds the templates defined at the top level of t as
// variables, replacing those of a previously set template.
func (s *Session) SetTemplate(t *lang.Template) {
	if s.tmpl != nil {
		for name, def := range s.tmpl.Templates() {
			if cur, ok := s.vars[name]; ok && cur == def {
				delete(s.vars, name)
			}
		}
	}

	s.tmpl = t

	if t == nil {
		return
	}

	for name, def := range t.Templates() {
		s.vars[name] = def
	}
}

// Var returns the value bound to name.
func (s *Session) Var(name string) (any, bool) {
	v, ok := s.vars[name]

	return v, ok
}

// VarNames returns the names of all bound variables, sorted.
func (s *Session) VarNames() []string {
	return slices.Sorted(maps.Keys(s.vars))
}

// Names returns the completion candidates for a top-level word: variable
// and builtin names.
func (s *Session) Names() []string {
	names := slices.Concat(s.VarNames(), lang.Builtins())
	slices.Sort(names)

	return slices.Compact(names)
}

// Eval evaluates one line of input and returns the text to show.
// Statements yield an empty string.
func (s *Session) Eval(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}

	if strings.Contains(input, s.start) {
		return s.render(ctx, input)
	}

	v, err := s.value(ctx, input)
	if err == nil {
		s.logger.TraceContext(ctx, "repl value", slog.String("type", lang.TypeName(v)))

		return lang.Repr(v), nil
	}

	if !errors.Is(err, lang.ErrSyntax) {
		return "", err
	}

	if stmtErr := s.exec(ctx, input); !errors.Is(stmtErr, lang.ErrSyntax) {
		return "", stmtErr
	}

	return "", err
}

// Value evaluates the expression src.
func (s *Session) Value(ctx context.Context, src string) (any, error) {
	return s.value(ctx, strings.TrimSpace(src))
}

func (s *Session) value(ctx context.Context, expr string) (any, error) {
	tmpl, err := s.compile(ctx, s.tag("return", expr))
	if err != nil {
		return nil, err
	}

	return tmpl.Call(ctx, s.vars)
}

// exec runs stmt and replaces the variables with the resulting scope.
func (s *Session) exec(ctx context.Context, stmt string) error {
	tmpl, err := s.compile(ctx, s.tag("code", stmt)+s.tag("return", "vars()"))
	if err != nil {
		return err
	}

	v, err := tmpl.Call(ctx, s.vars)
	if err != nil {
		return err
	}

	scope, ok := v.(*lang.Dict)
	if !ok {
		return lang.ErrType.With(slog.String("type", lang.TypeName(v)))
	}

	vars := make(map[string]any, scope.Len())

	for k, v := range scope.All() {
		if name, ok := k.(string); ok {
			vars[name] = v
		}
	}

	s.vars = vars

	s.logger.TraceContext(ctx, "repl statement", slog.Int("vars", len(vars)))

	return nil
}

// render renders src as a template. Templates it defines at the top level
// become variables.
func (s *Session) render(ctx context.Context, src string) (string, error) {
	tmpl, err := s.compile(ctx, src)
	if err != nil {
		return "", err
	}

	out, err := tmpl.Renders(ctx, s.vars)
	if err != nil {
		return out, err
	}

	for name, def := range tmpl.Templates() {
		s.vars[name] = def
	}

	return out, nil
}

// Compile compiles source with the session's options, named like the
// current template.
func (s *Session) Compile(ctx context.Context, source string) (*lang.Template, error) {
	opts := slices.Clone(s.opts)
	if s.tmpl != nil {
		opts = append(opts, lang.WithName(s.tmpl.Name))
	}

	return lang.Compile(ctx, source, opts...)
}

func (s *Session) compile(ctx context.Context, src string) (*lang.Template, error) {
	return lang.CompileCached(ctx, src, append(slices.Clone(s.opts), lang.WithName("repl"))...)
}

func (s *Session) tag(name, body string) string {
	return s.start + name + " " + body + s.end
}

// Members returns the completion candidates after "path.": the string keys
// of a dict or map, and the methods of the value path evaluates to.
func (s *Session) Members(ctx context.Context, path string) (keys, methods []string) {
	v, err := s.Value(ctx, path)
	if err != nil {
		return nil, nil
	}

	switch v := v.(type) {
	case *lang.Dict:
		for k := range v.All() {
			if key, ok := k.(string); ok && isIdentifier(key) {
				keys = append(keys, key)
			}
		}
	case map[string]any:
		for key := range v {
			if isIdentifier(key) {
				keys = append(keys, key)
			}
		}

		slices.Sort(keys)
	}

	_, methods = lang.MethodsOf(v)

	return keys, methods
}

// Signature returns the parameters of the function or method name, which
// may be a dotted path whose last element is a method. Optional parameters
// end in "=" and a variadic one starts with "*".
func (s *Session) Signature(ctx context.Context, name string) ([]string, bool) {
	recv, method, dotted := cutLast(name, ".")
	if !dotted {
		if _, shadowed := s.vars[name]; shadowed {
			return nil, false
		}

		return lang.Signature(name)
	}

	v, err := s.Value(ctx, recv)
	if err != nil {
		return nil, false
	}

	typ, _ := lang.MethodsOf(v)

	return lang.MethodSignature(typ, method)
}

// Callable reports whether name, a top-level word, refers to a builtin or
// a template.
func (s *Session) Callable(name string) bool {
	if v, ok := s.vars[name]; ok {
		switch v.(type) {
		case *lang.Template, *lang.TemplateClosure:
			return true
		}

		return false
	}

	_, ok := lang.Signature(name)

	return ok
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}

	return s[:i], s[i+len(sep):], true
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}

	return s != ""
}
