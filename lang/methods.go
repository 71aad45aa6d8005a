package lang

import (
	"maps"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// methods maps a type name (see typeName) to its methods.
var methods map[string]map[string]*function

// lookupMethod finds the named method of obj's type.
func lookupMethod(obj any, name string) (*function, bool) {
	m, ok := methods[methodType(obj)][name]

	return m, ok
}

func methodType(obj any) string {
	if _, ok := obj.(*TemplateClosure); ok {
		return "template"
	}

	return typeName(obj)
}

func methodNames(obj any) []string {
	return slices.Sorted(maps.Keys(methods[methodType(obj)]))
}

// Methods returns the names of the methods of the named type.
func Methods(typ string) []string {
	return slices.Sorted(maps.Keys(methods[typ]))
}

// MethodsOf returns the names of the methods callable on v, together with
// the type name they are registered under.
func MethodsOf(v any) (typ string, names []string) {
	return methodType(v), methodNames(v)
}

// rawFn declares a method that receives its arguments unbound.
func rawFn(body func(c *call, pos []any, kw map[string]any) (any, error)) *function {
	return &function{raw: body}
}

// receiver copies host slices into a *List so list methods can assume one
// without changing the host's backing array.
func receiver(obj any) any {
	switch o := obj.(type) {
	case *List:
		return o
	case []any:
		return listOf(slices.Clone(o))
	}

	if l, ok := reflectList(obj); ok {
		return listOf(l)
	}

	return obj
}

func self[T any](c *call) T { return c.self.(T) } //nolint:forcetypeassert

func init() {
	methods = map[string]map[string]*function{
		"str":        stringMethods(),
		"list":       listMethods(),
		"dict":       dictMethods(),
		"date":       dateMethods(),
		"timedelta":  timeDeltaMethods(),
		"monthdelta": {"months": fn("", func(c *call, _ []any) (any, error) { return self[MonthDelta](c).Months, nil })},
		"color":      colorMethods(),
		"template":   templateMethods(),
	}
}

func stringArg(name string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", typeError(name, v)
	}

	return s, nil
}

// stripFn builds strip, lstrip and rstrip.
func stripFn(trim func(string, string) string, space func(string) string) *function {
	return fn("chars=", func(c *call, a []any) (any, error) {
		s := self[string](c)

		if chars := or(a[0], nil); chars != nil {
			cs, err := stringArg(c.name, chars)
			if err != nil {
				return nil, err
			}

			return trim(s, cs), nil
		}

		return space(s), nil
	})
}

// splitFn builds split and rsplit. A count limits the number of splits.
func splitFn(fromRight bool) *function {
	return fn("sep=, count=", func(c *call, a []any) (any, error) {
		s := self[string](c)

		count := -1
		if v := or(a[1], nil); v != nil {
			n, ok := asInt(v)
			if !ok {
				return nil, typeError(c.name, v)
			}

			count = n
		}

		var parts []string

		sep := or(a[0], nil)
		if sep == nil {
			parts = splitSpace(s, count, fromRight)
		} else {
			sepStr, err := stringArg(c.name, sep)
			if err != nil {
				return nil, err
			}

			if sepStr == "" {
				return nil, ErrValue.Wrapf("empty separator")
			}

			switch {
			case count < 0:
				parts = strings.Split(s, sepStr)
			case fromRight:
				parts = rsplitN(s, sepStr, count)
			default:
				parts = strings.SplitN(s, sepStr, count+1)
			}
		}

		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}

		return listOf(out), nil
	})
}

// splitSpace splits at runs of whitespace, at most count times unless count
// is negative. The unsplit remainder keeps its inner and far-side spacing.
func splitSpace(s string, count int, fromRight bool) []string {
	if count < 0 {
		return strings.Fields(s)
	}

	var parts []string

	if fromRight {
		for range count {
			s = strings.TrimRightFunc(s, unicode.IsSpace)

			i := strings.LastIndexFunc(s, unicode.IsSpace)
			if i < 0 {
				break
			}

			_, n := utf8.DecodeRuneInString(s[i:])
			parts = append(parts, s[i+n:])
			s = s[:i]
		}

		if s = strings.TrimRightFunc(s, unicode.IsSpace); s != "" {
			parts = append(parts, s)
		}

		slices.Reverse(parts)

		return parts
	}

	for range count {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)

		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			break
		}

		parts = append(parts, s[:i])
		s = s[i:]
	}

	if s = strings.TrimLeftFunc(s, unicode.IsSpace); s != "" {
		parts = append(parts, s)
	}

	return parts
}

func rsplitN(s, sep string, count int) []string {
	var tail []string

	for range count {
		i := strings.LastIndex(s, sep)
		if i < 0 {
			break
		}

		tail = append(tail, s[i+len(sep):])
		s = s[:i]
	}

	slices.Reverse(tail)

	return append([]string{s}, tail...)
}

// runeBounds resolves optional start/end arguments over the runes of s.
func runeBounds(s string, start, end any) ([]rune, int, int, error) {
	r := []rune(s)

	lo, hi, err := sliceBounds(or(start, nil), or(end, nil), len(r))

	return r, lo, hi, err
}

// findFn builds find and rfind for strings.
func findFn(last bool) *function {
	return fn("sub, start=, end=", func(c *call, a []any) (any, error) {
		sub, err := stringArg(c.name, a[0])
		if err != nil {
			return nil, err
		}

		r, lo, hi, err := runeBounds(self[string](c), a[1], a[2])
		if err != nil {
			return nil, err
		}

		window := string(r[lo:hi])

		i := strings.Index(window, sub)
		if last {
			i = strings.LastIndex(window, sub)
		}

		if i < 0 {
			return -1, nil
		}

		return lo + utf8.RuneCountInString(window[:i]), nil
	})
}

func stringMethods() map[string]*function {
	return map[string]*function{
		"upper": fn("", func(c *call, _ []any) (any, error) { return strings.ToUpper(self[string](c)), nil }),
		"lower": fn("", func(c *call, _ []any) (any, error) { return strings.ToLower(self[string](c)), nil }),
		"capitalize": fn("", func(c *call, _ []any) (any, error) {
			s := self[string](c)
			r, n := utf8.DecodeRuneInString(s)

			if n == 0 {
				return s, nil
			}

			return string(unicode.ToUpper(r)) + strings.ToLower(s[n:]), nil
		}),
		"startswith": fn("prefix", func(c *call, a []any) (any, error) {
			return affix(c, a[0], strings.HasPrefix)
		}),
		"endswith": fn("suffix", func(c *call, a []any) (any, error) {
			return affix(c, a[0], strings.HasSuffix)
		}),
		"strip":  stripFn(strings.Trim, strings.TrimSpace),
		"lstrip": stripFn(strings.TrimLeft, func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }),
		"rstrip": stripFn(strings.TrimRight, func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }),
		"split":  splitFn(false),
		"rsplit": splitFn(true),
		"replace": fn("old, new, count=", func(c *call, a []any) (any, error) {
			old, err := stringArg(c.name, a[0])
			if err != nil {
				return nil, err
			}

			repl, err := stringArg(c.name, a[1])
			if err != nil {
				return nil, err
			}

			n, ok := asInt(or(a[2], -1))
			if !ok {
				return nil, typeError(c.name, a[2])
			}

			return strings.Replace(self[string](c), old, repl, n), nil
		}),
		"find":  findFn(false),
		"rfind": findFn(true),
		"count": fn("sub, start=, end=", func(c *call, a []any) (any, error) {
			sub, err := stringArg(c.name, a[0])
			if err != nil {
				return nil, err
			}

			r, lo, hi, err := runeBounds(self[string](c), a[1], a[2])
			if err != nil {
				return nil, err
			}

			return strings.Count(string(r[lo:hi]), sub), nil
		}),
		"join": fn("iterable", func(c *call, a []any) (any, error) {
			items, err := collect(a[0])
			if err != nil {
				return nil, err
			}

			parts := make([]string, len(items))
			for i, item := range items {
				if parts[i], err = stringArg(c.name, item); err != nil {
					return nil, err
				}
			}

			return strings.Join(parts, self[string](c)), nil
		}),
	}
}

// affix tests a prefix or suffix, which may also be a list of candidates.
func affix(c *call, arg any, test func(string, string) bool) (any, error) {
	s := self[string](c)

	if l, ok := plain(arg).([]any); ok {
		for _, item := range l {
			a, err := stringArg(c.name, item)
			if err != nil {
				return nil, err
			}

			if test(s, a) {
				return true, nil
			}
		}

		return false, nil
	}

	a, err := stringArg(c.name, arg)
	if err != nil {
		return nil, err
	}

	return test(s, a), nil
}

// Mutating methods change the *List in place and report it through
// c.rebind, so that a host slice receiver is replaced by the list.
func listMethods() map[string]*function {
	indexOf := func(last bool) *function {
		return fn("item", func(c *call, a []any) (any, error) {
			l := self[*List](c).items
			match := func(v any) bool { return equal(v, a[0]) }

			if last {
				for i := len(l) - 1; i >= 0; i-- {
					if match(l[i]) {
						return i, nil
					}
				}

				return -1, nil
			}

			return slices.IndexFunc(l, match), nil
		})
	}

	return map[string]*function{
		"append": fn("*items", func(c *call, a []any) (any, error) {
			l := self[*List](c)
			l.Append(a[0].([]any)...) //nolint:forcetypeassert
			c.rebind = l

			return nil, nil
		}),
		"insert": fn("pos, *items", func(c *call, a []any) (any, error) {
			pos, ok := asInt(a[0])
			if !ok {
				return nil, typeError(c.name, a[0])
			}

			l := self[*List](c)
			l.Insert(pos, a[1].([]any)...) //nolint:forcetypeassert
			c.rebind = l

			return nil, nil
		}),
		"pop": fn("pos=", func(c *call, a []any) (any, error) {
			pos, ok := asInt(or(a[0], -1))
			if !ok {
				return nil, typeError(c.name, a[0])
			}

			l := self[*List](c)

			item, ok := l.Pop(pos)
			if !ok {
				return nil, ErrValue.Wrapf("pop index out of range")
			}

			c.rebind = l

			return item, nil
		}),
		"find":  indexOf(false),
		"rfind": indexOf(true),
		"count": fn("item", func(c *call, a []any) (any, error) {
			n := 0

			for _, v := range self[*List](c).items {
				if equal(v, a[0]) {
					n++
				}
			}

			return n, nil
		}),
	}
}

func selfDict(c *call) *Dict {
	d, _ := asDict(c.self)

	return d
}

func dictMethods() map[string]*function {
	return map[string]*function{
		"get": fn("key, default=", func(c *call, a []any) (any, error) {
			if v, ok := selfDict(c).Get(a[0]); ok {
				return v, nil
			}

			return or(a[1], nil), nil
		}),
		"items": fn("", func(c *call, _ []any) (any, error) {
			var out []any
			for k, v := range selfDict(c).All() {
				out = append(out, NewList(k, v))
			}

			return newIterator(func(yield func(any, error) bool) {
				for _, item := range out {
					if !yield(item, nil) {
						return
					}
				}
			}), nil
		}),
		"keys": fn("", func(c *call, _ []any) (any, error) {
			return listOf(selfDict(c).Keys()), nil
		}),
		"values": fn("", func(c *call, _ []any) (any, error) {
			var out []any
			for _, v := range selfDict(c).All() {
				out = append(out, v)
			}

			return listOf(out), nil
		}),
		"update": rawFn(func(c *call, pos []any, kw map[string]any) (any, error) {
			d, ok := c.self.(*Dict)
			if !ok {
				return nil, typeError("update", c.self)
			}

			for _, other := range pos {
				src, ok := asDict(other)
				if !ok {
					return nil, typeError("update", other)
				}

				for k, v := range src.All() {
					d.Set(k, v)
				}
			}

			for _, k := range slices.Sorted(maps.Keys(kw)) {
				d.Set(k, kw[k])
			}

			return nil, nil
		}),
	}
}

func dateMethods() map[string]*function {
	part := func(get func(time.Time) int) *function {
		return fn("", func(c *call, _ []any) (any, error) { return get(self[time.Time](c)), nil })
	}

	return map[string]*function{
		"year":        part(time.Time.Year),
		"month":       part(func(t time.Time) int { return int(t.Month()) }),
		"day":         part(time.Time.Day),
		"hour":        part(time.Time.Hour),
		"minute":      part(time.Time.Minute),
		"second":      part(time.Time.Second),
		"microsecond": part(func(t time.Time) int { return t.Nanosecond() / 1000 }),
		"weekday":     part(func(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }),
		"yearday":     part(time.Time.YearDay),
		"isoformat": fn("", func(c *call, _ []any) (any, error) {
			t := self[time.Time](c)
			if t.Nanosecond()/1000 != 0 {
				return t.Format("2006-01-02T15:04:05.000000"), nil
			}

			return t.Format("2006-01-02T15:04:05"), nil
		}),
		"mimeformat": fn("", func(c *call, _ []any) (any, error) {
			return self[time.Time](c).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"), nil
		}),
		"format": fn("fmt, lang=", func(c *call, a []any) (any, error) {
			format, err := stringArg(c.name, a[0])
			if err != nil {
				return nil, err
			}

			loc, err := localeArg(a[1])
			if err != nil {
				return nil, err
			}

			return strftime(self[time.Time](c), format, loc), nil
		}),
	}
}

func timeDeltaMethods() map[string]*function {
	part := func(get func(TimeDelta) int) *function {
		return fn("", func(c *call, _ []any) (any, error) { return get(self[TimeDelta](c)), nil })
	}

	return map[string]*function{
		"days":         part(func(d TimeDelta) int { return d.Days }),
		"seconds":      part(func(d TimeDelta) int { return d.Seconds }),
		"microseconds": part(func(d TimeDelta) int { return d.Microseconds }),
	}
}

func colorMethods() map[string]*function {
	channel := func(get func(Color) uint8) *function {
		return fn("", func(c *call, _ []any) (any, error) { return int(get(self[Color](c))), nil })
	}

	alpha := func(c Color) float64 { return float64(c.A) / 255 }

	return map[string]*function{
		"r": channel(func(c Color) uint8 { return c.R }),
		"g": channel(func(c Color) uint8 { return c.G }),
		"b": channel(func(c Color) uint8 { return c.B }),
		"a": channel(func(c Color) uint8 { return c.A }),
		"lum": fn("", func(c *call, _ []any) (any, error) {
			return self[Color](c).Lum(), nil
		}),
		"hls": fn("", func(c *call, _ []any) (any, error) {
			h, l, s := self[Color](c).HLS()

			return NewList(h, l, s), nil
		}),
		"hlsa": fn("", func(c *call, _ []any) (any, error) {
			col := self[Color](c)
			h, l, s := col.HLS()

			return NewList(h, l, s, alpha(col)), nil
		}),
		"hsv": fn("", func(c *call, _ []any) (any, error) {
			h, s, v := self[Color](c).HSV()

			return NewList(h, s, v), nil
		}),
		"hsva": fn("", func(c *call, _ []any) (any, error) {
			col := self[Color](c)
			h, s, v := col.HSV()

			return NewList(h, s, v, alpha(col)), nil
		}),
		"withlum": fn("lum", func(c *call, a []any) (any, error) {
			lum, ok := asFloat(a[0])
			if !ok {
				return nil, typeError(c.name, a[0])
			}

			return self[Color](c).WithLum(lum), nil
		}),
		"witha": fn("a", func(c *call, a []any) (any, error) {
			n, ok := asInt(a[0])
			if !ok || n < 0 || n > 255 {
				return nil, ErrArgument.Wrapf("witha() expects an int in 0..255")
			}

			col := self[Color](c)
			col.A = uint8(n)

			return col, nil
		}),
	}
}

func templateMethods() map[string]*function {
	return map[string]*function{
		"render": rawFn(func(c *call, pos []any, kw map[string]any) (any, error) {
			return nil, c.f.render(c.self, pos, kw)
		}),
		"renders": rawFn(func(c *call, pos []any, kw map[string]any) (any, error) {
			var b strings.Builder

			t, scope, err := c.f.callScope(c.self, pos, kw)
			if err != nil {
				return nil, err
			}

			_, err = c.f.child(func(s string) bool {
				b.WriteString(s)

				return true
			}).run(t, scope)
			if err != nil {
				return nil, err
			}

			return b.String(), nil
		}),
	}
}
