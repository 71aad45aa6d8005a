package lang

// Object names used by the serializers for values that are not plain data.
const (
	objLocation        = "location"
	objTemplateClosure = "templateclosure"
	objColor           = "color"
	objTimeDelta       = "timedelta"
	objMonthDelta      = "monthdelta"
)

// object describes how a value is serialized as a named field list.
// Shared objects keep their identity across a dump and are written once;
// later occurrences become back references.
type object struct {
	name   string
	fields []any
	shared bool
}

// objectOf returns the serialized form of v, or false for plain data.
func objectOf(v any) (object, bool) {
	switch v := v.(type) {
	case Node:
		fs := Fields(v)
		vals := make([]any, len(fs))

		for i, f := range fs {
			vals[i] = f.Value
		}

		return object{v.Kind().String(), vals, true}, true
	case *Location:
		return object{objLocation, []any{
			v.Type, v.TagStart, v.TagEnd, v.CodeStart, v.CodeEnd,
		}, true}, true
	case *TemplateClosure:
		return object{objTemplateClosure, []any{v.Template, dictFromMap(v.Vars)}, true}, true
	case Color:
		return object{objColor, []any{int(v.R), int(v.G), int(v.B), int(v.A)}, false}, true
	case TimeDelta:
		return object{objTimeDelta, []any{v.Days, v.Seconds, v.Microseconds}, false}, true
	case MonthDelta:
		return object{objMonthDelta, []any{v.Months}, false}, true
	}

	return object{}, false
}

// isNull reports whether v serializes as None. Typed nil locations appear in
// field lists for nodes without a source position.
func isNull(v any) bool {
	switch v := v.(type) {
	case nil, *Undefined:
		return true
	case *Location:
		return v == nil
	}

	return false
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k := range kindCount {
		m[k.String()] = k
	}

	return m
}()

// builder reconstructs objects from the field lists written by the
// serializers. Locations are collected so that each loaded template can
// reattach its source text.
type builder struct {
	locations []*Location
}

// build returns the object called name holding fields.
func (b *builder) build(name string, fields []any) (any, error) {
	r := &fieldReader{name: name, vals: fields}

	var v any

	switch name {
	case objLocation:
		loc := &Location{
			Type:      r.str(),
			TagStart:  r.int(),
			TagEnd:    r.int(),
			CodeStart: r.int(),
			CodeEnd:   r.int(),
		}
		b.locations = append(b.locations, loc)
		v = loc
	case objTemplateClosure:
		t, _ := r.node().(*Template)
		vars := r.dict()

		if t == nil {
			r.fail("missing template")
		}

		m := make(map[string]any, vars.Len())
		for k, val := range vars.All() {
			if s, ok := k.(string); ok {
				m[s] = val
			}
		}

		v = &TemplateClosure{Template: t, Vars: m}
	case objColor:
		v = Color{uint8(r.int()), uint8(r.int()), uint8(r.int()), uint8(r.int())}
	case objTimeDelta:
		v = NewTimeDelta(r.int(), r.int(), r.int())
	case objMonthDelta:
		v = MonthDelta{Months: r.int()}
	default:
		k, ok := kindByName[name]
		if !ok {
			return nil, ErrSerialize.Wrapf("unknown object type %q", name)
		}

		n, err := b.node(k, r)
		if err != nil {
			return nil, err
		}

		v = n
	}

	if r.err == nil && r.i != len(r.vals) {
		r.fail("%d extra fields", len(r.vals)-r.i)
	}

	return v, r.err
}

func (b *builder) node(k Kind, r *fieldReader) (Node, error) {
	if k == KindTemplate {
		return b.template(r)
	}

	base := nodeBase{Location: r.loc()}

	var n Node

	switch k {
	case KindText:
		n = &Text{nodeBase: base, Text: r.str()}
	case KindConst:
		n = &Const{nodeBase: base, Value: r.value()}
	case KindList:
		n = &ListExpr{nodeBase: base, Items: r.nodes()}
	case KindListComp:
		n = &ListComp{nodeBase: base, Item: r.node(), Target: r.node(),
			Container: r.node(), Condition: r.node()}
	case KindDict:
		n = &DictExpr{nodeBase: base, Items: r.items()}
	case KindDictComp:
		n = &DictComp{nodeBase: base, Key: r.node(), Value: r.node(), Target: r.node(),
			Container: r.node(), Condition: r.node()}
	case KindGenExpr:
		n = &GenExpr{nodeBase: base, Item: r.node(), Target: r.node(),
			Container: r.node(), Condition: r.node()}
	case KindVar:
		n = &Var{nodeBase: base, Name: r.str()}
	case KindUnpack:
		n = &Unpack{nodeBase: base, Items: r.nodes()}
	case KindNot, KindNeg:
		n = &Unary{nodeBase: base, Op: k, Obj: r.node()}
	case KindGetAttr:
		n = &GetAttr{nodeBase: base, Obj: r.node(), Name: r.str()}
	case KindGetSlice:
		n = &GetSlice{nodeBase: base, Obj: r.node(), Start: r.node(), Stop: r.node()}
	case KindCallFunc:
		n = &CallFunc{nodeBase: base, Name: r.str(), Args: r.args()}
	case KindCallMeth:
		n = &CallMeth{nodeBase: base, Name: r.str(), Obj: r.node(), Args: r.args()}
	case KindCall:
		n = &Call{nodeBase: base, Obj: r.node(), Args: r.args()}
	case KindPrint, KindPrintX:
		n = &Print{nodeBase: base, Obj: r.node(), XML: k == KindPrintX}
	case KindStoreVar, KindAddVar, KindSubVar, KindMulVar,
		KindTrueDivVar, KindFloorDivVar, KindModVar:
		n = &ChangeVar{nodeBase: base, Op: k, Target: r.node(), Value: r.node()}
	case KindDelVar:
		n = &DelVar{nodeBase: base, Name: r.str()}
	case KindFor:
		n = &For{nodeBase: base, End: r.loc(), Target: r.node(),
			Container: r.node(), Content: r.nodes()}
	case KindBreak:
		n = &Break{nodeBase: base}
	case KindContinue:
		n = &Continue{nodeBase: base}
	case KindIfElIfElse:
		ieie := &IfElIfElse{nodeBase: base, End: r.loc()}
		for _, c := range r.nodes() {
			br, ok := c.(*Branch)
			if !ok {
				r.fail("%s is not a branch", c.Kind())

				break
			}

			ieie.Branches = append(ieie.Branches, br)
		}

		n = ieie
	case KindIf, KindElIf, KindElse:
		n = &Branch{nodeBase: base, Op: k, Condition: r.node(), Content: r.nodes()}
	case KindReturn:
		n = &Return{nodeBase: base, Value: r.node()}
	case KindRender:
		n = &Render{nodeBase: base, Obj: r.node(), Args: r.args()}
	default:
		if k >= KindAdd && k <= KindGetItem {
			n = &Binary{nodeBase: base, Op: k, Left: r.node(), Right: r.node()}
		}
	}

	if n == nil {
		return nil, ErrSerialize.Wrapf("cannot load %s node", k)
	}

	return n, r.err
}

func (b *builder) template(r *fieldReader) (Node, error) {
	if version := r.str(); r.err == nil && version != Version {
		return nil, ErrVersion.Wrapf("got %q, expected %q", version, Version)
	}

	t := &Template{
		Name:       r.str(),
		Source:     r.str(),
		StartDelim: r.str(),
		EndDelim:   r.str(),
		KeepWS:     r.bool(),
		maxDepth:   DefaultMaxDepth,
	}
	t.Location = r.loc()
	t.End = r.loc()
	t.Content = r.nodes()

	if r.err != nil {
		return nil, r.err
	}

	for _, loc := range b.locations {
		if loc.Source == "" {
			loc.Source = t.Source
		}
	}

	return t, nil
}

// fieldReader consumes a field list in order. The first mismatch is kept in
// err and every later read returns a zero value.
type fieldReader struct {
	name string
	vals []any
	i    int
	err  error
}

func (r *fieldReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = ErrSerialize.Wrapf("%s: "+format, append([]any{r.name}, args...)...)
	}
}

func (r *fieldReader) next() (any, bool) {
	if r.err != nil {
		return nil, false
	}

	if r.i >= len(r.vals) {
		r.fail("missing field %d", r.i)

		return nil, false
	}

	v := r.vals[r.i]
	r.i++

	return v, true
}

func (r *fieldReader) value() any {
	v, _ := r.next()

	return v
}

func (r *fieldReader) str() string {
	v, ok := r.next()
	if !ok {
		return ""
	}

	s, ok := v.(string)
	if !ok && v != nil {
		r.fail("field %d: expected string, got %s", r.i-1, typeName(v))
	}

	return s
}

func (r *fieldReader) int() int {
	v, ok := r.next()
	if !ok {
		return 0
	}

	n, ok := asInt(v)
	if !ok {
		r.fail("field %d: expected int, got %s", r.i-1, typeName(v))
	}

	return n
}

func (r *fieldReader) bool() bool {
	v, ok := r.next()
	if !ok {
		return false
	}

	b, ok := v.(bool)
	if !ok {
		r.fail("field %d: expected bool, got %s", r.i-1, typeName(v))
	}

	return b
}

func (r *fieldReader) loc() *Location {
	v, ok := r.next()
	if !ok || v == nil {
		return nil
	}

	loc, ok := v.(*Location)
	if !ok {
		r.fail("field %d: expected location, got %s", r.i-1, typeName(v))
	}

	return loc
}

func (r *fieldReader) node() Node {
	v, ok := r.next()
	if !ok || v == nil {
		return nil
	}

	n, ok := v.(Node)
	if !ok {
		r.fail("field %d: expected node, got %s", r.i-1, typeName(v))
	}

	return n
}

func (r *fieldReader) list() []any {
	v, ok := r.next()
	if !ok || v == nil {
		return nil
	}

	l, ok := v.([]any)
	if !ok {
		r.fail("field %d: expected list, got %s", r.i-1, typeName(v))
	}

	return l
}

func (r *fieldReader) dict() *Dict {
	v, ok := r.next()
	if !ok || v == nil {
		return NewDict()
	}

	d, ok := v.(*Dict)
	if !ok {
		r.fail("field %d: expected dict, got %s", r.i-1, typeName(v))

		return NewDict()
	}

	return d
}

func (r *fieldReader) nodes() []Node {
	l := r.list()
	out := make([]Node, 0, len(l))

	for _, v := range l {
		n, ok := v.(Node)
		if !ok {
			r.fail("expected node in list, got %s", typeName(v))

			return nil
		}

		out = append(out, n)
	}

	return out
}

// pairs reads a list of one or two element lists.
func (r *fieldReader) pairs() [][]any {
	l := r.list()
	out := make([][]any, 0, len(l))

	for _, v := range l {
		p, ok := v.([]any)
		if !ok || len(p) < 1 || len(p) > 2 {
			r.fail("malformed pair %s", repr(v))

			return nil
		}

		out = append(out, p)
	}

	return out
}

func (r *fieldReader) args() []Arg {
	var out []Arg

	for _, p := range r.pairs() {
		var a Arg

		if len(p) == 2 {
			a.Name, _ = p[0].(string)
		}

		a.Value, _ = p[len(p)-1].(Node)
		if a.Value == nil {
			r.fail("argument without value")

			return nil
		}

		out = append(out, a)
	}

	return out
}

func (r *fieldReader) items() []DictItem {
	var out []DictItem

	for _, p := range r.pairs() {
		var it DictItem

		if len(p) == 2 {
			it.Key, _ = p[0].(Node)
		}

		it.Value, _ = p[len(p)-1].(Node)
		if it.Value == nil {
			r.fail("dict item without value")

			return nil
		}

		out = append(out, it)
	}

	return out
}
