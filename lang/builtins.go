package lang

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// call carries the context of one builtin function or method invocation.
type call struct {
	f     *frame
	scope *Scope
	name  string
	self  any // method receiver

	// rebind is the list changed by a mutating method.
	rebind any
}

type absentArg struct{}

// absent marks an optional parameter the caller did not pass.
var absent any = absentArg{}

type param struct {
	name     string
	optional bool
	variadic bool
}

// function is a builtin function or method with a Python-like signature.
type function struct {
	params []param
	soft   bool
	fn     func(c *call, args []any) (any, error)

	// raw receives the arguments unbound.
	raw func(c *call, pos []any, kw map[string]any) (any, error)
}

// fn declares a builtin. The signature lists parameter names separated by
// commas; a trailing "=" marks an optional parameter and a leading "*"
// collects the remaining positional arguments.
func fn(signature string, body func(c *call, args []any) (any, error)) *function {
	f := &function{fn: body}

	for _, p := range strings.Split(signature, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		switch {
		case strings.HasPrefix(p, "*"):
			f.params = append(f.params, param{name: p[1:], variadic: true})
		case strings.HasSuffix(p, "="):
			f.params = append(f.params, param{name: p[:len(p)-1], optional: true})
		default:
			f.params = append(f.params, param{name: p})
		}
	}

	return f
}

// softFn declares a builtin that returns an undefined argument unchanged.
func softFn(signature string, body func(c *call, args []any) (any, error)) *function {
	f := fn(signature, body)
	f.soft = true

	return f
}

func (fn *function) call(c *call, pos []any, kw map[string]any) (any, error) {
	if fn.raw != nil {
		return fn.raw(c, pos, kw)
	}

	args, err := fn.bind(c.name, pos, kw)
	if err != nil {
		return nil, err
	}

	if fn.soft {
		for _, a := range args {
			if u, ok := a.(*Undefined); ok {
				return u, nil
			}
		}
	}

	return fn.fn(c, args)
}

// bind matches positional and keyword arguments to parameters. Missing
// optional parameters are [absent]; a variadic parameter receives a []any.
func (fn *function) bind(name string, pos []any, kw map[string]any) ([]any, error) {
	args := make([]any, len(fn.params))
	set := make([]bool, len(fn.params))

	i := 0

	for _, v := range pos {
		if i >= len(fn.params) {
			return nil, ErrArgument.Wrapf("%s() takes at most %d arguments, %d given",
				name, len(fn.params), len(pos))
		}

		if fn.params[i].variadic {
			rest, _ := args[i].([]any)
			args[i] = append(rest, v)
			set[i] = true

			continue
		}

		args[i], set[i] = v, true
		i++
	}

	for _, k := range slices.Sorted(maps.Keys(kw)) {
		j := slices.IndexFunc(fn.params, func(p param) bool { return p.name == k && !p.variadic })
		if j < 0 {
			return nil, ErrArgument.Wrapf("%s() got an unexpected keyword argument %q", name, k)
		}

		if set[j] {
			return nil, ErrArgument.Wrapf("%s() got multiple values for argument %q", name, k)
		}

		args[j], set[j] = kw[k], true
	}

	for j, p := range fn.params {
		switch {
		case set[j]:
		case p.variadic:
			args[j] = []any{}
		case p.optional:
			args[j] = absent
		default:
			return nil, ErrArgument.Wrapf("%s() missing required argument %q", name, p.name)
		}
	}

	return args, nil
}

// or returns v, or def when v is absent.
func or(v, def any) any {
	if v == absent {
		return def
	}

	return v
}

// unknownName builds an unknown function or method error, suggesting the
// closest known name.
func unknownName(sentinel *Error, name string, known []string) error {
	short := name[strings.LastIndexByte(name, '.')+1:]

	if s := suggest(short, known); s != "" {
		return sentinel.Wrapf("%s (did you mean %q?)", name, s)
	}

	return sentinel.Wrapf("%s", name)
}

func suggest(name string, known []string) string {
	if ranks := fuzzy.RankFindFold(name, known); len(ranks) > 0 {
		sort.Sort(ranks)

		return ranks[0].Target
	}

	best, dist := "", 3
	for _, k := range known {
		if d := fuzzy.LevenshteinDistance(name, k); d < dist {
			best, dist = k, d
		}
	}

	return best
}

var builtins map[string]*function

func builtinNames() []string { return slices.Sorted(maps.Keys(builtins)) }

// Builtins returns the names of all builtin functions.
func Builtins() []string { return builtinNames() }

// Signature returns the parameter list of the named builtin. Optional
// parameters end in "=" and a variadic parameter starts with "*". Builtins
// taking raw arguments report ok with a nil list.
func Signature(name string) (params []string, ok bool) {
	f, ok := builtins[name]
	if !ok {
		return nil, false
	}

	return f.signature(), true
}

// MethodSignature is [Signature] for a method of the named type.
func MethodSignature(typ, name string) (params []string, ok bool) {
	f, ok := methods[typ][name]
	if !ok {
		return nil, false
	}

	return f.signature(), true
}

func (f *function) signature() []string {
	var out []string

	for _, p := range f.params {
		switch {
		case p.variadic:
			out = append(out, "*"+p.name)
		case p.optional:
			out = append(out, p.name+"=")
		default:
			out = append(out, p.name)
		}
	}

	return out
}

// TypeName returns the name of v's type as reported by the type builtin.
func TypeName(v any) string { return typeName(v) }

func init() {
	builtins = map[string]*function{
		"now": fn("", func(*call, []any) (any, error) {
			return time.Now().Truncate(time.Microsecond), nil
		}),
		"utcnow": fn("", func(*call, []any) (any, error) {
			return time.Now().UTC().Truncate(time.Microsecond), nil
		}),
		"today": fn("", func(*call, []any) (any, error) {
			y, m, d := time.Now().Date()

			return time.Date(y, m, d, 0, 0, 0, 0, time.Local), nil
		}),
		"vars": fn("", func(c *call, _ []any) (any, error) {
			return dictFromMap(c.scope.Snapshot()), nil
		}),
		"get": fn("name, default=", func(c *call, a []any) (any, error) {
			name, ok := a[0].(string)
			if !ok {
				return nil, typeError("get", a[0])
			}

			if v, ok := c.scope.Lookup(name); ok {
				return v, nil
			}

			return or(a[1], nil), nil
		}),

		"random":     fn("", builtinRandom),
		"randrange":  fn("*args", builtinRandRange),
		"randchoice": fn("seq", builtinRandChoice),

		"xmlescape": fn("obj", func(_ *call, a []any) (any, error) {
			return xmlEscape(str(a[0])), nil
		}),
		"csv": fn("obj", func(_ *call, a []any) (any, error) {
			return csvField(a[0]), nil
		}),
		"asjson": fn("obj", func(_ *call, a []any) (any, error) {
			return asJSON(a[0])
		}),
		"fromjson": softFn("string", func(_ *call, a []any) (any, error) {
			s, ok := a[0].(string)
			if !ok {
				return nil, typeError("fromjson", a[0])
			}

			return fromJSON(s)
		}),
		"asul4on": fn("obj", func(_ *call, a []any) (any, error) {
			return Dumps(a[0])
		}),
		"fromul4on": softFn("string", func(_ *call, a []any) (any, error) {
			s, ok := a[0].(string)
			if !ok {
				return nil, typeError("fromul4on", a[0])
			}

			return Loads(s)
		}),

		"str": fn("obj=", func(_ *call, a []any) (any, error) {
			return str(or(a[0], "")), nil
		}),
		"repr": fn("obj", func(_ *call, a []any) (any, error) {
			return repr(a[0]), nil
		}),
		"int":   softFn("obj=, base=", builtinInt),
		"float": softFn("obj=", builtinFloat),
		"bool": fn("obj=", func(_ *call, a []any) (any, error) {
			return truth(or(a[0], false)), nil
		}),
		"type": fn("obj", func(_ *call, a []any) (any, error) {
			return typeName(a[0]), nil
		}),

		"isundefined":  isType(func(v any) bool { _, ok := v.(*Undefined); return ok }),
		"isdefined":    isType(func(v any) bool { _, ok := v.(*Undefined); return !ok }),
		"isnone":       isType(func(v any) bool { return v == nil }),
		"isbool":       isType(func(v any) bool { _, ok := v.(bool); return ok }),
		"isint":        isTypeName("int"),
		"isfloat":      isTypeName("float"),
		"isstr":        isTypeName("str"),
		"isdate":       isTypeName("date"),
		"istimedelta":  isTypeName("timedelta"),
		"ismonthdelta": isTypeName("monthdelta"),
		"islist":       isTypeName("list"),
		"isdict":       isTypeName("dict"),
		"iscolor":      isTypeName("color"),
		"istemplate": isType(func(v any) bool {
			switch v.(type) {
			case *Template, *TemplateClosure:
				return true
			}

			return false
		}),

		"len": fn("seq", func(_ *call, a []any) (any, error) {
			return length(a[0])
		}),
		"enumerate":   fn("iterable, start=", builtinEnumerate),
		"enumfl":      fn("iterable, start=", builtinEnumFL),
		"isfirstlast": fn("iterable", firstLast(true, true)),
		"isfirst":     fn("iterable", firstLast(true, false)),
		"islast":      fn("iterable", firstLast(false, true)),
		"sorted":      fn("iterable, key=, reverse=", builtinSorted),
		"reversed":    fn("sequence", builtinReversed),
		"range":       fn("*args", builtinRange),
		"zip":         fn("*iterables", builtinZip),
		"slice":       fn("iterable, *args", builtinSlice),
		"min":         fn("*args", minMax("min", -1)),
		"max":         fn("*args", minMax("max", 1)),
		"sum":         fn("iterable, start=", builtinSum),

		"chr": softFn("i", func(_ *call, a []any) (any, error) {
			n, ok := asInt(a[0])
			if !ok {
				return nil, typeError("chr", a[0])
			}

			if n < 0 || n > 0x10ffff {
				return nil, ErrValue.Wrapf("chr() arg not in range(0x110000)")
			}

			return string(rune(n)), nil
		}),
		"ord": softFn("c", func(_ *call, a []any) (any, error) {
			s, ok := a[0].(string)
			if !ok || len([]rune(s)) != 1 {
				return nil, ErrArgument.Wrapf("ord() expected a character, got %s", repr(a[0]))
			}

			return int([]rune(s)[0]), nil
		}),
		"hex": softFn("number", radix("hex", "0x", 16)),
		"oct": softFn("number", radix("oct", "0o", 8)),
		"bin": softFn("number", radix("bin", "0b", 2)),
		"abs": softFn("number", func(_ *call, a []any) (any, error) {
			switch v := a[0].(type) {
			case TimeDelta:
				if v.Days < 0 {
					return timeDeltaFromMicros(-v.Micros()), nil
				}

				return v, nil
			case MonthDelta:
				return MonthDelta{max(v.Months, -v.Months)}, nil
			}

			if isFloat(a[0]) {
				f, _ := asFloat(a[0])

				return math.Abs(f), nil
			}

			n, ok := asInt(a[0])
			if !ok {
				return nil, typeError("abs", a[0])
			}

			return max(n, -n), nil
		}),

		"rgb": softFn("r, g, b, a=", builtinRGB),
		"hls": softFn("h, l, s, a=", builtinHLS),
		"hsv": softFn("h, s, v, a=", builtinHSV),

		"date": softFn("year, month, day, hour=, minute=, second=, microsecond=", builtinDate),
		"timedelta": softFn("days=, seconds=, microseconds=", func(_ *call, a []any) (any, error) {
			var n [3]int

			for i := range n {
				v, ok := asInt(or(a[i], 0))
				if !ok {
					return nil, typeError("timedelta", a[i])
				}

				n[i] = v
			}

			return NewTimeDelta(n[0], n[1], n[2]), nil
		}),
		"monthdelta": softFn("months=", func(_ *call, a []any) (any, error) {
			n, ok := asInt(or(a[0], 0))
			if !ok {
				return nil, typeError("monthdelta", a[0])
			}

			return MonthDelta{n}, nil
		}),

		"format": softFn("obj, fmt=, lang=", builtinFormat),
	}
}

func isType(pred func(any) bool) *function {
	return fn("obj", func(_ *call, a []any) (any, error) { return pred(a[0]), nil })
}

func isTypeName(name string) *function {
	return isType(func(v any) bool { return typeName(v) == name })
}

func builtinRandom(*call, []any) (any, error) { return rand.Float64(), nil } //nolint:gosec

func builtinRandRange(_ *call, a []any) (any, error) {
	start, stop, step, err := rangeArgs("randrange", a[0].([]any)) //nolint:forcetypeassert
	if err != nil {
		return nil, err
	}

	n := rangeLen(start, stop, step)
	if n <= 0 {
		return nil, ErrValue.Wrapf("empty range for randrange()")
	}

	return start + step*rand.IntN(n), nil //nolint:gosec
}

func builtinRandChoice(_ *call, a []any) (any, error) {
	items, err := collect(a[0])
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, ErrValue.Wrapf("randchoice() of empty sequence")
	}

	return items[rand.IntN(len(items))], nil //nolint:gosec
}

func builtinInt(_ *call, a []any) (any, error) {
	v := or(a[0], 0)

	if a[1] != absent {
		base, ok := asInt(a[1])
		s, isStr := v.(string)

		if !ok || !isStr {
			return nil, typeError("int", v, a[1])
		}

		n, err := strconv.ParseInt(strings.TrimSpace(s), base, 64)
		if err != nil {
			return nil, ErrValue.Wrapf("invalid literal for int() with base %d: %s", base, repr(s))
		}

		return int(n), nil
	}

	switch v := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, ErrValue.Wrapf("invalid literal for int(): %s", repr(v))
		}

		return int(n), nil
	}

	if isFloat(v) {
		f, _ := asFloat(v)

		return int(f), nil
	}

	if n, ok := asInt(v); ok {
		return n, nil
	}

	return nil, typeError("int", v)
}

func builtinFloat(_ *call, a []any) (any, error) {
	v := or(a[0], 0.0)

	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, ErrValue.Wrapf("invalid literal for float(): %s", repr(s))
		}

		return f, nil
	}

	if f, ok := asFloat(v); ok {
		return f, nil
	}

	return nil, typeError("float", v)
}

func startArg(v any) (int, error) {
	n, ok := asInt(or(v, 0))
	if !ok {
		return 0, typeError("start", v)
	}

	return n, nil
}

func builtinEnumerate(_ *call, a []any) (any, error) {
	seq, err := iterate(a[0])
	if err != nil {
		return nil, err
	}

	start, err := startArg(a[1])
	if err != nil {
		return nil, err
	}

	return newIterator(func(yield func(any, error) bool) {
		i := start

		for item, err := range seq {
			if !yield([]any{i, item}, err) || err != nil {
				return
			}

			i++
		}
	}), nil
}

// flagged is an item marked as being first or last in its sequence.
type flagged struct {
	first, last bool
	item        any
}

// lookahead marks the first and the last item of seq.
func lookahead(seq iter.Seq2[any, error]) iter.Seq2[flagged, error] {
	return func(yield func(flagged, error) bool) {
		var (
			prev    any
			hasPrev bool
			first   = true
		)

		for item, err := range seq {
			if err != nil {
				yield(flagged{}, err)

				return
			}

			if hasPrev {
				if !yield(flagged{first: first, item: prev}, nil) {
					return
				}

				first = false
			}

			prev, hasPrev = item, true
		}

		if hasPrev {
			yield(flagged{first: first, last: true, item: prev}, nil)
		}
	}
}

func builtinEnumFL(_ *call, a []any) (any, error) {
	seq, err := iterate(a[0])
	if err != nil {
		return nil, err
	}

	start, err := startArg(a[1])
	if err != nil {
		return nil, err
	}

	return newIterator(func(yield func(any, error) bool) {
		i := start

		for fl, err := range lookahead(seq) {
			if err != nil {
				yield(nil, err)

				return
			}

			if !yield([]any{i, fl.first, fl.last, fl.item}, nil) {
				return
			}

			i++
		}
	}), nil
}

func firstLast(withFirst, withLast bool) func(*call, []any) (any, error) {
	return func(_ *call, a []any) (any, error) {
		seq, err := iterate(a[0])
		if err != nil {
			return nil, err
		}

		return newIterator(func(yield func(any, error) bool) {
			for fl, err := range lookahead(seq) {
				if err != nil {
					yield(nil, err)

					return
				}

				var out []any
				if withFirst {
					out = append(out, fl.first)
				}

				if withLast {
					out = append(out, fl.last)
				}

				if !yield(append(out, fl.item), nil) {
					return
				}
			}
		}), nil
	}
}

func builtinSorted(c *call, a []any) (any, error) {
	items, err := collect(a[0])
	if err != nil {
		return nil, err
	}

	items = slices.Clone(items)
	keys := items

	if key := or(a[1], nil); key != nil {
		keys = make([]any, len(items))

		for i, item := range items {
			if keys[i], err = sortKey(c, key, item); err != nil {
				return nil, err
			}
		}
	}

	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}

	var cmpErr error

	slices.SortStableFunc(idx, func(i, j int) int {
		r, err := compare("sorted", keys[i], keys[j])
		if err != nil && cmpErr == nil {
			cmpErr = err
		}

		return r
	})

	if cmpErr != nil {
		return nil, cmpErr
	}

	out := make([]any, len(items))
	for i, j := range idx {
		out[i] = items[j]
	}

	if truth(or(a[2], false)) {
		slices.Reverse(out)
	}

	return listOf(out), nil
}

// sortKey calls a key function. Templates receive the item as "item".
func sortKey(c *call, key, item any) (any, error) {
	switch k := key.(type) {
	case *Template, *TemplateClosure:
		return c.f.callValue(k, nil, map[string]any{"item": item})
	case Caller:
		return k.UL4Call(c.f.ctx, []any{item}, nil)
	default:
		return nil, typeError("key", key)
	}
}

func builtinReversed(_ *call, a []any) (any, error) {
	items, err := collect(a[0])
	if err != nil {
		return nil, err
	}

	return newIterator(func(yield func(any, error) bool) {
		for i := len(items) - 1; i >= 0; i-- {
			if !yield(items[i], nil) {
				return
			}
		}
	}), nil
}

func rangeArgs(name string, args []any) (start, stop, step int, err error) {
	n := make([]int, len(args))

	for i, v := range args {
		var ok bool
		if n[i], ok = asInt(v); !ok {
			return 0, 0, 0, typeError(name, v)
		}
	}

	switch len(n) {
	case 1:
		start, stop, step = 0, n[0], 1
	case 2:
		start, stop, step = n[0], n[1], 1
	case 3:
		start, stop, step = n[0], n[1], n[2]
	default:
		return 0, 0, 0, ErrArgument.Wrapf("%s() expects 1 to 3 arguments, %d given", name, len(n))
	}

	if step == 0 {
		return 0, 0, 0, ErrValue.Wrapf("%s() step must not be zero", name)
	}

	return start, stop, step, nil
}

func rangeLen(start, stop, step int) int {
	if step > 0 {
		return max(0, (stop-start+step-1)/step)
	}

	return max(0, (start-stop-step-1)/-step)
}

func builtinRange(_ *call, a []any) (any, error) {
	start, stop, step, err := rangeArgs("range", a[0].([]any)) //nolint:forcetypeassert
	if err != nil {
		return nil, err
	}

	return newIterator(func(yield func(any, error) bool) {
		for i := range rangeLen(start, stop, step) {
			if !yield(start+i*step, nil) {
				return
			}
		}
	}), nil
}

func builtinZip(_ *call, a []any) (any, error) {
	iterables := a[0].([]any) //nolint:forcetypeassert
	lists := make([][]any, len(iterables))

	for i, it := range iterables {
		var err error
		if lists[i], err = collect(it); err != nil {
			return nil, err
		}
	}

	return newIterator(func(yield func(any, error) bool) {
		if len(lists) == 0 {
			return
		}

		for i := 0; ; i++ {
			row := make([]any, len(lists))

			for j, l := range lists {
				if i >= len(l) {
					return
				}

				row[j] = l[i]
			}

			if !yield(row, nil) {
				return
			}
		}
	}), nil
}

// builtinSlice is a lazy islice where None bounds mean "unbounded".
func builtinSlice(_ *call, a []any) (any, error) {
	seq, err := iterate(a[0])
	if err != nil {
		return nil, err
	}

	args := a[1].([]any) //nolint:forcetypeassert
	bound := func(v any, def int) (int, error) {
		if v == nil {
			return def, nil
		}

		n, ok := asInt(v)
		if !ok || n < 0 {
			return 0, ErrArgument.Wrapf("slice() bounds must be None or non-negative integers")
		}

		return n, nil
	}

	start, stop, step := 0, -1, 1

	switch len(args) {
	case 1:
		stop, err = bound(args[0], -1)
	case 2, 3:
		if start, err = bound(args[0], 0); err == nil {
			stop, err = bound(args[1], -1)
		}

		if err == nil && len(args) == 3 {
			step, err = bound(args[2], 1)
		}
	default:
		err = ErrArgument.Wrapf("slice() expects 2 to 4 arguments")
	}

	if err != nil {
		return nil, err
	}

	if step == 0 {
		return nil, ErrValue.Wrapf("slice() step must be positive")
	}

	return newIterator(func(yield func(any, error) bool) {
		i := 0

		for item, err := range seq {
			if err != nil {
				yield(nil, err)

				return
			}

			if stop >= 0 && i >= stop {
				return
			}

			if i >= start && (i-start)%step == 0 && !yield(item, nil) {
				return
			}

			i++
		}
	}), nil
}

func minMax(name string, want int) func(*call, []any) (any, error) {
	return func(_ *call, a []any) (any, error) {
		args := a[0].([]any) //nolint:forcetypeassert

		items := args
		if len(args) == 1 {
			var err error
			if items, err = collect(args[0]); err != nil {
				return nil, err
			}
		}

		if len(items) == 0 {
			return nil, ErrValue.Wrapf("%s() arg is an empty sequence", name)
		}

		best := items[0]

		for _, item := range items[1:] {
			c, err := compare(name, item, best)
			if err != nil {
				return nil, err
			}

			if c == want {
				best = item
			}
		}

		return best, nil
	}
}

func builtinSum(_ *call, a []any) (any, error) {
	seq, err := iterate(a[0])
	if err != nil {
		return nil, err
	}

	total := or(a[1], 0)

	for item, err := range seq {
		if err != nil {
			return nil, err
		}

		if total, err = add(total, item); err != nil {
			return nil, err
		}
	}

	return total, nil
}

func radix(name, prefix string, base int) func(*call, []any) (any, error) {
	return func(_ *call, a []any) (any, error) {
		n, ok := asInt(a[0])
		if !ok {
			return nil, typeError(name, a[0])
		}

		if n < 0 {
			return "-" + prefix + strconv.FormatUint(uint64(-n), base), nil //nolint:gosec
		}

		return prefix + strconv.FormatInt(int64(n), base), nil
	}
}

func builtinDate(_ *call, a []any) (any, error) {
	var n [7]int

	for i := range n {
		v, ok := asInt(or(a[i], 0))
		if !ok {
			return nil, typeError("date", a[i])
		}

		n[i] = v
	}

	t := time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], n[6]*1000, time.UTC)
	if t.Year() != n[0] || int(t.Month()) != n[1] || t.Day() != n[2] {
		return nil, ErrValue.Wrapf("day is out of range for month")
	}

	return t, nil
}

// xmlEscape escapes text for XML content and attribute values.
func xmlEscape(s string) string {
	if !strings.ContainsAny(s, "&<>'\"\x00") {
		return s
	}

	var b strings.Builder

	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '\'':
			b.WriteString("&#39;")
		case '"':
			b.WriteString("&quot;")
		case 0:
			b.WriteString("&#0;")
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// csvField formats a value as one CSV field.
func csvField(v any) string {
	var s string

	switch v := v.(type) {
	case nil, *Undefined:
		return ""
	case string:
		s = v
	default:
		if isNumber(v) {
			return str(v)
		}

		s = repr(v)
	}

	if strings.ContainsAny(s, ",\"\n\r") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}

	return s
}

// asJSON encodes a value as JSON, keeping dict order.
func asJSON(v any) (string, error) {
	var b strings.Builder

	if err := writeJSON(&b, v); err != nil {
		return "", err
	}

	return b.String(), nil
}

func writeJSON(b *strings.Builder, v any) error {
	switch v := v.(type) {
	case nil, *Undefined:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(v))
	case string:
		data, err := json.Marshal(v)
		if err != nil {
			return ErrSerialize.Wrap(err)
		}

		b.Write(data)
	case time.Time:
		fmt.Fprintf(b, "new Date(%d, %d, %d, %d, %d, %d, %d)", v.Year(), int(v.Month())-1,
			v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond()/1e6)
	case TimeDelta, MonthDelta, Color:
		return writeJSON(b, str(v))
	case *List:
		return writeJSON(b, v.items)
	case []any:
		b.WriteByte('[')

		for i, item := range v {
			if i > 0 {
				b.WriteString(", ")
			}

			if err := writeJSON(b, item); err != nil {
				return err
			}
		}

		b.WriteByte(']')
	case *Dict:
		b.WriteByte('{')

		i := 0
		for k, item := range v.All() {
			if i > 0 {
				b.WriteString(", ")
			}

			if err := writeJSON(b, str(k)); err != nil {
				return err
			}

			b.WriteString(": ")

			if err := writeJSON(b, item); err != nil {
				return err
			}

			i++
		}

		b.WriteByte('}')
	case map[string]any:
		return writeJSON(b, dictFromMap(v))
	case *Template, *TemplateClosure:
		s, err := Dumps(v)
		if err != nil {
			return err
		}

		b.WriteString("ul4.Template.loads(")

		if err := writeJSON(b, s); err != nil {
			return err
		}

		b.WriteByte(')')
	case *Iterator:
		items, err := collect(v)
		if err != nil {
			return err
		}

		return writeJSON(b, items)
	default:
		if f, ok := asFloat(v); ok {
			if isFloat(v) {
				if math.IsInf(f, 0) || math.IsNaN(f) {
					return ErrSerialize.Wrapf("%s is not representable in JSON", formatFloat(f))
				}

				b.WriteString(formatFloat(f))
			} else {
				b.WriteString(str(v))
			}

			return nil
		}

		if l, ok := reflectList(v); ok {
			return writeJSON(b, l)
		}

		if d, ok := reflectDict(v); ok {
			return writeJSON(b, d)
		}

		return typeError("asjson", v)
	}

	return nil
}

// fromJSON decodes JSON into template values; objects become ordered dicts.
func fromJSON(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	v, err := decodeJSON(dec)
	if err != nil {
		return nil, ErrValue.Wrap(err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrValue.Wrapf("trailing data after JSON value")
	}

	return v, nil
}

func decodeJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch tok := tok.(type) {
	case json.Delim:
		switch tok {
		case '[':
			out := []any{}

			for dec.More() {
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}

				out = append(out, v)
			}

			_, err := dec.Token()

			return listOf(out), err
		case '{':
			d := NewDict()

			for dec.More() {
				k, err := dec.Token()
				if err != nil {
					return nil, err
				}

				v, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}

				d.Set(k, v)
			}

			_, err := dec.Token()

			return d, err
		default:
			return nil, fmt.Errorf("unexpected %v", tok)
		}
	case json.Number:
		if n, err := tok.Int64(); err == nil {
			return int(n), nil
		}

		return tok.Float64()
	default:
		return tok, nil
	}
}
