package lang

import (
	"context"
	"log/slog"
	"maps"

	"github.com/ardnew/ul4/log"
)

// signal is the control flow state a statement completes with.
type signal int

const (
	signalNone signal = iota
	signalBreak
	signalContinue
	signalReturn
)

// outcome is the result of executing statements. Break and Continue are
// consumed by the nearest enclosing loop, Return by the nearest template.
type outcome struct {
	signal signal
	value  any
}

// frame is the evaluation state of one template call.
type frame struct {
	ctx    context.Context //nolint:containedctx
	tmpl   *Template
	logger log.Logger
	depth  int

	// emit delivers an output chunk and reports whether the consumer wants
	// more.
	emit func(string) bool
}

// Caller is implemented by host values that templates may call.
type Caller interface {
	UL4Call(ctx context.Context, args []any, kwargs map[string]any) (any, error)
}

// run executes a template body and converts a return into the result.
func (f *frame) run(t *Template, scope *Scope) (any, error) {
	limit := f.tmpl.maxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}

	if f.depth > limit {
		return nil, ErrRecursion.Wrapf("%d nested calls of %q", f.depth, t.Name)
	}

	out, err := f.exec(t.Content, scope)
	if err != nil {
		return nil, err
	}

	if out.signal == signalReturn {
		return out.value, nil
	}

	return nil, nil
}

// child returns the frame of a nested template call emitting through emit.
func (f *frame) child(emit func(string) bool) *frame {
	return &frame{
		ctx:    f.ctx,
		tmpl:   f.tmpl,
		logger: f.logger,
		depth:  f.depth + 1,
		emit:   emit,
	}
}

func discard(string) bool { return true }

// exec executes statements in order until one of them signals.
func (f *frame) exec(nodes []Node, scope *Scope) (outcome, error) {
	for _, n := range nodes {
		if err := f.ctx.Err(); err != nil {
			return outcome{}, err
		}

		out, err := f.stmt(n, scope)
		if err != nil {
			return outcome{}, decorate(err, n.Loc(), f)
		}

		if out.signal != signalNone {
			return out, nil
		}
	}

	return outcome{}, nil
}

func (f *frame) output(s string) error {
	if !f.emit(s) {
		return errStopped
	}

	return nil
}

func (f *frame) stmt(n Node, scope *Scope) (outcome, error) {
	switch n := n.(type) {
	case *Text:
		return outcome{}, f.output(n.Text)

	case *Print:
		v, err := f.eval(n.Obj, scope)
		if err != nil {
			return outcome{}, err
		}

		s := str(v)
		if n.XML {
			s = xmlEscape(s)
		}

		return outcome{}, f.output(s)

	case *ChangeVar:
		return outcome{}, f.changeVar(n, scope)

	case *DelVar:
		scope.Delete(n.Name)

		return outcome{}, nil

	case *For:
		return f.loop(n, scope)

	case *Break:
		return outcome{signal: signalBreak}, nil

	case *Continue:
		return outcome{signal: signalContinue}, nil

	case *IfElIfElse:
		for _, b := range n.Branches {
			if b.Condition != nil {
				cond, err := f.eval(b.Condition, scope)
				if err != nil {
					return outcome{}, err
				}

				if !truth(cond) {
					continue
				}
			}

			return f.exec(b.Content, scope)
		}

		return outcome{}, nil

	case *Return:
		if n.Value == nil {
			return outcome{signal: signalReturn}, nil
		}

		v, err := f.eval(n.Value, scope)
		if err != nil {
			return outcome{}, err
		}

		return outcome{signal: signalReturn, value: v}, nil

	case *Template:
		scope.Assign(n.Name, &TemplateClosure{Template: n, Vars: scope.Snapshot()})

		return outcome{}, nil

	case *Render:
		obj, err := f.eval(n.Obj, scope)
		if err != nil {
			return outcome{}, err
		}

		pos, kw, err := f.args(n.Args, scope)
		if err != nil {
			return outcome{}, err
		}

		return outcome{}, f.render(obj, pos, kw)

	default:
		// Expression statements such as method calls run for their effect.
		_, err := f.eval(n, scope)

		return outcome{}, err
	}
}

func (f *frame) changeVar(n *ChangeVar, scope *Scope) error {
	value, err := f.eval(n.Value, scope)
	if err != nil {
		return err
	}

	if n.Op == KindStoreVar {
		return assign(n.Target, value, scope.Assign)
	}

	v, ok := n.Target.(*Var)
	if !ok {
		return ErrSyntax.Wrapf("%s requires a variable", n.Op)
	}

	cur, ok := scope.Lookup(v.Name)
	if !ok {
		cur = undefinedName(v.Name)
	}

	res, err := binaryOp(augmentedOps[n.Op], cur, value)
	if err != nil {
		return err
	}

	scope.Assign(v.Name, res)

	return nil
}

var augmentedOps = map[Kind]Kind{
	KindAddVar:      KindAdd,
	KindSubVar:      KindSub,
	KindMulVar:      KindMul,
	KindTrueDivVar:  KindTrueDiv,
	KindFloorDivVar: KindFloorDiv,
	KindModVar:      KindMod,
}

// assign binds value to a target, unpacking nested targets.
func assign(target Node, value any, bind func(string, any)) error {
	switch t := target.(type) {
	case *Var:
		bind(t.Name, value)

		return nil
	case *Unpack:
		items, err := collect(value)
		if err != nil {
			return err
		}

		if len(items) != len(t.Items) {
			return ErrValue.Wrapf("need %d values to unpack, got %d", len(t.Items), len(items))
		}

		for i, sub := range t.Items {
			if err := assign(sub, items[i], bind); err != nil {
				return err
			}
		}

		return nil
	default:
		return ErrSyntax.Wrapf("can't assign to %s", target.Kind())
	}
}

func (f *frame) loop(n *For, scope *Scope) (outcome, error) {
	container, err := f.eval(n.Container, scope)
	if err != nil {
		return outcome{}, err
	}

	seq, err := iterate(container)
	if err != nil {
		return outcome{}, err
	}

	for item, err := range seq {
		if err != nil {
			return outcome{}, err
		}

		body := scope.Child()

		if err := assign(n.Target, item, body.Assign); err != nil {
			return outcome{}, err
		}

		out, err := f.exec(n.Content, body)
		if err != nil {
			return outcome{}, err
		}

		switch out.signal {
		case signalBreak:
			return outcome{}, nil
		case signalReturn:
			return out, nil
		}
	}

	return outcome{}, nil
}

func (f *frame) eval(n Node, scope *Scope) (any, error) {
	switch n := n.(type) {
	case *Const:
		return n.Value, nil

	case *Var:
		if v, ok := scope.Lookup(n.Name); ok {
			return v, nil
		}

		return undefinedName(n.Name), nil

	case *ListExpr:
		out := make([]any, 0, len(n.Items))

		for _, item := range n.Items {
			v, err := f.eval(item, scope)
			if err != nil {
				return nil, err
			}

			out = append(out, v)
		}

		return listOf(out), nil

	case *DictExpr:
		return f.dict(n, scope)

	case *ListComp:
		out := []any{}
		err := f.comprehend(n.Target, n.Container, n.Condition, scope,
			func(inner *Scope) error {
				v, err := f.eval(n.Item, inner)
				out = append(out, v)

				return err
			})

		return listOf(out), err

	case *DictComp:
		d := NewDict()
		err := f.comprehend(n.Target, n.Container, n.Condition, scope,
			func(inner *Scope) error {
				k, err := f.eval(n.Key, inner)
				if err != nil {
					return err
				}

				v, err := f.eval(n.Value, inner)
				if err != nil {
					return err
				}

				return setItem(d, k, v)
			})

		return d, err

	case *GenExpr:
		return f.generator(n, scope)

	case *Unary:
		v, err := f.eval(n.Obj, scope)
		if err != nil {
			return nil, err
		}

		return unaryOp(n.Op, v)

	case *Binary:
		left, err := f.eval(n.Left, scope)
		if err != nil {
			return nil, err
		}

		switch {
		case n.Op == KindAnd && !truth(left), n.Op == KindOr && truth(left):
			return left, nil
		}

		right, err := f.eval(n.Right, scope)
		if err != nil {
			return nil, err
		}

		return binaryOp(n.Op, left, right)

	case *GetAttr:
		obj, err := f.eval(n.Obj, scope)
		if err != nil {
			return nil, err
		}

		return getAttr(obj, n.Name), nil

	case *GetSlice:
		obj, err := f.eval(n.Obj, scope)
		if err != nil {
			return nil, err
		}

		var bounds [2]any

		for i, b := range []Node{n.Start, n.Stop} {
			if b == nil {
				continue
			}

			if bounds[i], err = f.eval(b, scope); err != nil {
				return nil, err
			}
		}

		return getSlice(obj, bounds[0], bounds[1])

	case *CallFunc:
		return f.callFunc(n, scope)

	case *CallMeth:
		return f.callMeth(n, scope)

	case *Call:
		obj, err := f.eval(n.Obj, scope)
		if err != nil {
			return nil, err
		}

		pos, kw, err := f.args(n.Args, scope)
		if err != nil {
			return nil, err
		}

		return f.callValue(obj, pos, kw)

	default:
		return nil, ErrSyntax.Wrapf("%s is not an expression", n.Kind())
	}
}

func (f *frame) dict(n *DictExpr, scope *Scope) (*Dict, error) {
	d := NewDict()

	for _, item := range n.Items {
		v, err := f.eval(item.Value, scope)
		if err != nil {
			return nil, err
		}

		if item.Key == nil {
			src, ok := asDict(v)
			if !ok {
				return nil, typeError("**", v)
			}

			for k, v := range src.All() {
				d.Set(k, v)
			}

			continue
		}

		k, err := f.eval(item.Key, scope)
		if err != nil {
			return nil, err
		}

		if err := setItem(d, k, v); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// comprehend runs body for every item of container that passes the
// condition. Loop variables live in a scope of their own so they never leak.
func (f *frame) comprehend(
	target, container, condition Node,
	scope *Scope,
	body func(*Scope) error,
) error {
	c, err := f.eval(container, scope)
	if err != nil {
		return err
	}

	seq, err := iterate(c)
	if err != nil {
		return err
	}

	inner := scope.Child()

	for item, err := range seq {
		if err != nil {
			return err
		}

		if err := assign(target, item, inner.Define); err != nil {
			return err
		}

		if condition != nil {
			ok, err := f.eval(condition, inner)
			if err != nil {
				return err
			}

			if !truth(ok) {
				continue
			}
		}

		if err := body(inner); err != nil {
			return err
		}
	}

	return nil
}

// generator evaluates the container eagerly and the items lazily.
func (f *frame) generator(n *GenExpr, scope *Scope) (*Iterator, error) {
	c, err := f.eval(n.Container, scope)
	if err != nil {
		return nil, err
	}

	seq, err := iterate(c)
	if err != nil {
		return nil, err
	}

	inner := scope.Child()

	return newIterator(func(yield func(any, error) bool) {
		for item, err := range seq {
			if err != nil {
				yield(nil, err)

				return
			}

			if err := assign(n.Target, item, inner.Define); err != nil {
				yield(nil, err)

				return
			}

			if n.Condition != nil {
				ok, err := f.eval(n.Condition, inner)
				if err != nil {
					yield(nil, err)

					return
				}

				if !truth(ok) {
					continue
				}
			}

			v, err := f.eval(n.Item, inner)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}), nil
}

// args evaluates call arguments into positional and keyword values.
func (f *frame) args(args []Arg, scope *Scope) ([]any, map[string]any, error) {
	var (
		pos []any
		kw  map[string]any
	)

	setKW := func(name string, v any) error {
		if kw == nil {
			kw = make(map[string]any)
		}

		if _, dup := kw[name]; dup {
			return ErrArgument.Wrapf("duplicate keyword argument %q", name)
		}

		kw[name] = v

		return nil
	}

	for _, a := range args {
		v, err := f.eval(a.Value, scope)
		if err != nil {
			return nil, nil, err
		}

		switch a.Name {
		case "":
			pos = append(pos, v)
		case "*":
			items, err := collect(v)
			if err != nil {
				return nil, nil, err
			}

			pos = append(pos, items...)
		case "**":
			d, ok := asDict(v)
			if !ok {
				return nil, nil, typeError("**", v)
			}

			for k, item := range d.All() {
				name, ok := k.(string)
				if !ok {
					return nil, nil, ErrArgument.Wrapf("keywords must be strings, got %s", typeName(k))
				}

				if err := setKW(name, item); err != nil {
					return nil, nil, err
				}
			}
		default:
			if err := setKW(a.Name, v); err != nil {
				return nil, nil, err
			}
		}
	}

	return pos, kw, nil
}

func (f *frame) callFunc(n *CallFunc, scope *Scope) (any, error) {
	pos, kw, err := f.args(n.Args, scope)
	if err != nil {
		return nil, err
	}

	if v, ok := scope.Lookup(n.Name); ok && callable(v) {
		return f.callValue(v, pos, kw)
	}

	fn, ok := builtins[n.Name]
	if !ok {
		return nil, unknownName(ErrUnknownFunction, n.Name, builtinNames())
	}

	f.logger.TraceContext(f.ctx, "call function",
		slog.String("name", n.Name),
		slog.Int("args", len(pos)+len(kw)))

	return fn.call(&call{f: f, scope: scope, name: n.Name}, pos, kw)
}

func (f *frame) callMeth(n *CallMeth, scope *Scope) (any, error) {
	obj, err := f.eval(n.Obj, scope)
	if err != nil {
		return nil, err
	}

	if u, ok := obj.(*Undefined); ok {
		return u, nil
	}

	pos, kw, err := f.args(n.Args, scope)
	if err != nil {
		return nil, err
	}

	if m, ok := lookupMethod(obj, n.Name); ok {
		c := &call{f: f, scope: scope, name: n.Name, self: receiver(obj)}

		res, err := m.call(c, pos, kw)
		if err != nil {
			return nil, err
		}

		if _, shared := obj.(*List); !shared && c.rebind != nil {
			f.rebind(n.Obj, c.rebind, scope)
		}

		return res, nil
	}

	if attr := getAttr(obj, n.Name); callable(attr) {
		return f.callValue(attr, pos, kw)
	}

	return nil, unknownName(ErrUnknownMethod, typeName(obj)+"."+n.Name,
		methodNames(obj))
}

// rebind replaces a host slice, after a mutating method, by the *List that
// wraps it. This is visible when the receiver is a variable or a dict entry.
func (f *frame) rebind(target Node, value any, scope *Scope) {
	switch t := target.(type) {
	case *Var:
		scope.Assign(t.Name, value)
	case *GetAttr:
		if obj, err := f.eval(t.Obj, scope); err == nil {
			if d, ok := obj.(*Dict); ok {
				d.Set(t.Name, value)
			}
		}
	case *Binary:
		if t.Op != KindGetItem {
			return
		}

		obj, err := f.eval(t.Left, scope)
		if err != nil {
			return
		}

		key, err := f.eval(t.Right, scope)
		if err != nil {
			return
		}

		if d, ok := obj.(*Dict); ok && hashable(key) {
			d.Set(key, value)
		}
	}
}

func callable(v any) bool {
	switch v.(type) {
	case *Template, *TemplateClosure, Caller:
		return true
	}

	return false
}

// callValue calls a template, closure or host callable. Templates accept
// keyword arguments only; their output is discarded.
func (f *frame) callValue(v any, pos []any, kw map[string]any) (any, error) {
	switch v := v.(type) {
	case *Template, *TemplateClosure:
		t, scope, err := f.callScope(v, pos, kw)
		if err != nil {
			return nil, err
		}

		return f.child(discard).run(t, scope)
	case Caller:
		return v.UL4Call(f.ctx, pos, kw)
	case *Undefined:
		return nil, v.err("call")
	default:
		return nil, typeError("call", v)
	}
}

// render streams the output of a template or closure into the current
// output.
func (f *frame) render(v any, pos []any, kw map[string]any) error {
	switch u := v.(type) {
	case *Template, *TemplateClosure:
	case *Undefined:
		return u.err("render")
	default:
		return typeError("render", v)
	}

	t, scope, err := f.callScope(v, pos, kw)
	if err != nil {
		return err
	}

	f.logger.TraceContext(f.ctx, "render template",
		slog.String("name", t.Name),
		slog.Int("depth", f.depth+1))

	_, err = f.child(f.emit).run(t, scope)

	return err
}

// callScope builds the variables of a template call: a closure's frozen
// variables overlaid with the keyword arguments.
func (f *frame) callScope(v any, pos []any, kw map[string]any) (*Template, *Scope, error) {
	if len(pos) > 0 {
		return nil, nil, ErrArgument.Wrapf("templates accept keyword arguments only")
	}

	switch v := v.(type) {
	case *Template:
		return v, NewScope(kw), nil
	case *TemplateClosure:
		vars := maps.Clone(v.Vars)
		if vars == nil {
			vars = make(map[string]any, len(kw))
		}

		maps.Copy(vars, kw)

		return v.Template, NewScope(vars), nil
	default:
		return nil, nil, typeError("call", v)
	}
}
