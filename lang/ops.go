package lang

import (
	"cmp"
	"fmt"
	"iter"
	"maps"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// asInt reports v as an int if it is a boolean or any Go integer type.
func asInt(v any) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case bool:
		if v {
			return 1, true
		}

		return 0, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true //nolint:gosec
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true //nolint:gosec
	}

	return 0, false
}

// asFloat reports v as a float64 if it is any Go number type or boolean.
func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}

	if n, ok := asInt(v); ok {
		return float64(n), true
	}

	return 0, false
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}

	return false
}

func isNumber(v any) bool {
	_, ok := asFloat(v)

	return ok
}

// typeName returns the template-facing name of a value's type.
func typeName(v any) string {
	switch v := v.(type) {
	case nil:
		return "none"
	case *Undefined:
		return "undefined"
	case bool:
		return "bool"
	case string:
		return "str"
	case time.Time:
		return "date"
	case TimeDelta:
		return "timedelta"
	case MonthDelta:
		return "monthdelta"
	case Color:
		return "color"
	case []any, *List:
		return "list"
	case *Dict, map[string]any:
		return "dict"
	case *Template:
		return "template"
	case *TemplateClosure:
		return "templateclosure"
	case *Iterator:
		return "iterator"
	default:
		if isFloat(v) {
			return "float"
		}

		if _, ok := asInt(v); ok {
			return "int"
		}

		switch reflect.ValueOf(v).Kind() {
		case reflect.Slice, reflect.Array:
			return "list"
		case reflect.Map:
			return "dict"
		default:
			return reflect.TypeOf(v).String()
		}
	}
}

func typeError(op string, vals ...any) error {
	names := make([]string, len(vals))
	for i, v := range vals {
		if u, ok := v.(*Undefined); ok {
			return u.err(op)
		}

		names[i] = typeName(v)
	}

	return ErrType.Wrapf("%s(%s) not supported", op, strings.Join(names, ", "))
}

// truth returns the boolean value of v.
func truth(v any) bool {
	switch v := v.(type) {
	case nil, *Undefined:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case *List:
		return v.Len() > 0
	case *Dict:
		return v.Len() > 0
	case map[string]any:
		return len(v) > 0
	case TimeDelta:
		return v != TimeDelta{}
	case MonthDelta:
		return v.Months != 0
	case time.Time, Color, *Template, *TemplateClosure, *Iterator:
		return true
	}

	if f, ok := asFloat(v); ok {
		return f != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer:
		return !rv.IsNil()
	default:
		return true
	}
}

// formatFloat formats f the way the template language prints floats: always
// with a fractional part or exponent.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}

	var s string

	if a := math.Abs(f); a != 0 && (a < 1e-4 || a >= 1e16) {
		s = strconv.FormatFloat(f, 'e', -1, 64)
	} else {
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}

	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}

	return s
}

func formatDate(t time.Time) string {
	if t.Nanosecond()/1000 != 0 {
		return t.Format("2006-01-02 15:04:05.000000")
	}

	return t.Format("2006-01-02 15:04:05")
}

// str converts v to its output text.
func str(v any) string {
	switch v := v.(type) {
	case nil, *Undefined:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}

		return "False"
	case time.Time:
		return formatDate(v)
	case TimeDelta:
		return v.String()
	case MonthDelta:
		return v.String()
	case Color:
		return v.String()
	case fmt.Stringer:
		if _, ok := v.(*Template); !ok {
			return v.String()
		}
	}

	if isFloat(v) {
		f, _ := asFloat(v)

		return formatFloat(f)
	}

	if n, ok := asInt(v); ok {
		return strconv.Itoa(n)
	}

	return repr(v)
}

// Repr returns the literal notation of v, as the repr function does.
func Repr(v any) string { return repr(v) }

// repr converts v to its literal notation.
func repr(v any) string {
	var b strings.Builder

	writeRepr(&b, v)

	return b.String()
}

func writeRepr(b *strings.Builder, v any) {
	switch v := v.(type) {
	case nil:
		b.WriteString("None")
	case *Undefined:
		b.WriteString(v.String())
	case bool:
		b.WriteString(str(v))
	case string:
		b.WriteString(quote(v))
	case time.Time:
		b.WriteString(dateLiteral(v))
	case TimeDelta:
		fmt.Fprintf(b, "timedelta(%d, %d, %d)", v.Days, v.Seconds, v.Microseconds)
	case MonthDelta:
		fmt.Fprintf(b, "monthdelta(%d)", v.Months)
	case Color:
		b.WriteString(v.String())
	case *List:
		writeRepr(b, v.items)
	case []any:
		b.WriteByte('[')

		for i, item := range v {
			if i > 0 {
				b.WriteString(", ")
			}

			writeRepr(b, item)
		}

		b.WriteByte(']')
	case *Dict:
		b.WriteByte('{')

		i := 0
		for k, item := range v.All() {
			if i > 0 {
				b.WriteString(", ")
			}

			writeRepr(b, k)
			b.WriteString(": ")
			writeRepr(b, item)

			i++
		}

		b.WriteByte('}')
	case map[string]any:
		writeRepr(b, dictFromMap(v))
	case *Template:
		fmt.Fprintf(b, "<template %s>", quote(v.Name))
	case *TemplateClosure:
		fmt.Fprintf(b, "<templateclosure %s>", quote(v.Template.Name))
	case *Iterator:
		b.WriteString("<iterator>")
	default:
		if isFloat(v) {
			f, _ := asFloat(v)
			b.WriteString(formatFloat(f))

			return
		}

		if n, ok := asInt(v); ok {
			b.WriteString(strconv.Itoa(n))

			return
		}

		if list, ok := reflectList(v); ok {
			writeRepr(b, list)

			return
		}

		fmt.Fprintf(b, "<%s>", typeName(v))
	}
}

// quote returns a single-quoted literal unless the text contains single
// quotes and no double quotes.
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}

	var b strings.Builder

	b.WriteByte(q)

	for _, r := range s {
		switch {
		case r == rune(q) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r == utf8.RuneError:
			b.WriteString(`�`)
		default:
			b.WriteRune(r)
		}
	}

	b.WriteByte(q)

	return b.String()
}

func dateLiteral(t time.Time) string {
	switch {
	case t.Nanosecond()/1000 != 0:
		return t.Format("@2006-01-02T15:04:05.000000")
	case t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0:
		return t.Format("@2006-01-02T")
	default:
		return t.Format("@2006-01-02T15:04:05")
	}
}

func dictFromMap(m map[string]any) *Dict {
	d := NewDict()
	for _, k := range slices.Sorted(maps.Keys(m)) {
		d.Set(k, m[k])
	}

	return d
}

// plain unwraps a *List to its items so that list cases can match []any.
func plain(v any) any {
	if l, ok := v.(*List); ok {
		return l.items
	}

	return v
}

// reflectList converts host slices and arrays to []any.
func reflectList(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, true
}

// reflectDict converts host maps to a *Dict with sorted keys.
func reflectDict(v any) (*Dict, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}

	keys := rv.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})

	d := NewDict()
	for _, k := range keys {
		d.Set(k.Interface(), rv.MapIndex(k).Interface())
	}

	return d, true
}

// equal reports deep equality with numeric cross-type comparison.
func equal(a, b any) bool {
	a, b = plain(a), plain(b)

	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)

		return ok && fa == fb
	}

	switch a := a.(type) {
	case nil:
		return b == nil
	case string:
		s, ok := b.(string)

		return ok && a == s
	case time.Time:
		t, ok := b.(time.Time)

		return ok && a.Equal(t)
	case *Undefined:
		_, ok := b.(*Undefined)

		return ok
	case []any:
		l, ok := b.([]any)
		if !ok {
			l, ok = reflectList(b)
		}

		return ok && slices.EqualFunc(a, l, equal)
	case *Dict:
		return dictEqual(a, b)
	case map[string]any:
		return dictEqual(dictFromMap(a), b)
	}

	if l, ok := reflectList(a); ok {
		return equal(l, b)
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}

	return a == b
}

func dictEqual(a *Dict, b any) bool {
	var d *Dict

	switch b := b.(type) {
	case *Dict:
		d = b
	case map[string]any:
		d = dictFromMap(b)
	default:
		return false
	}

	if a.Len() != d.Len() {
		return false
	}

	for k, v := range a.All() {
		w, ok := d.Get(k)
		if !ok || !equal(v, w) {
			return false
		}
	}

	return true
}

// compare orders two values, failing for unordered type combinations.
func compare(op string, a, b any) (int, error) {
	a, b = plain(a), plain(b)

	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			if ia, ok := asInt(a); ok {
				if ib, ok := asInt(b); ok {
					return cmp.Compare(ia, ib), nil
				}
			}

			return cmp.Compare(fa, fb), nil
		}
	}

	switch a := a.(type) {
	case string:
		if s, ok := b.(string); ok {
			return strings.Compare(a, s), nil
		}
	case time.Time:
		if t, ok := b.(time.Time); ok {
			return a.Compare(t), nil
		}
	case TimeDelta:
		if d, ok := b.(TimeDelta); ok {
			return cmp.Compare(a.Micros(), d.Micros()), nil
		}
	case MonthDelta:
		if d, ok := b.(MonthDelta); ok {
			return cmp.Compare(a.Months, d.Months), nil
		}
	case []any:
		if l, ok := b.([]any); ok {
			for i := range min(len(a), len(l)) {
				if equal(a[i], l[i]) {
					continue
				}

				return compare(op, a[i], l[i])
			}

			return cmp.Compare(len(a), len(l)), nil
		}
	}

	return 0, typeError(op, a, b)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}

	return q
}

func floorMod(a, b int) int {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}

	return m
}

// unaryOp applies "not" or negation.
func unaryOp(op Kind, v any) (any, error) {
	switch op {
	case KindNot:
		return !truth(v), nil
	case KindNeg:
		switch v := v.(type) {
		case bool:
			if v {
				return -1, nil
			}

			return 0, nil
		case TimeDelta:
			return timeDeltaFromMicros(-v.Micros()), nil
		case MonthDelta:
			return MonthDelta{-v.Months}, nil
		}

		if isFloat(v) {
			f, _ := asFloat(v)

			return -f, nil
		}

		if n, ok := asInt(v); ok {
			return -n, nil
		}

		return nil, typeError("neg", v)
	default:
		return nil, ErrValue.Wrapf("not a unary operator: %s", op)
	}
}

// binaryOp applies an arithmetic, comparison, containment or boolean
// operator. "and" and "or" return one of their operands.
func binaryOp(op Kind, a, b any) (any, error) {
	switch op {
	case KindAnd:
		if !truth(a) {
			return a, nil
		}

		return b, nil
	case KindOr:
		if truth(a) {
			return a, nil
		}

		return b, nil
	case KindEQ:
		return equal(a, b), nil
	case KindNE:
		return !equal(a, b), nil
	case KindLT, KindLE, KindGT, KindGE:
		c, err := compare(op.String(), a, b)
		if err != nil {
			return nil, err
		}

		switch op {
		case KindLT:
			return c < 0, nil
		case KindLE:
			return c <= 0, nil
		case KindGT:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case KindContains:
		return contains(a, b)
	case KindNotContains:
		in, err := contains(a, b)
		if err != nil {
			return nil, err
		}

		return !in, nil
	case KindGetItem:
		return getItem(a, b)
	case KindAdd:
		return add(a, b)
	case KindSub:
		return sub(a, b)
	case KindMul:
		return mul(a, b)
	case KindTrueDiv:
		return trueDiv(a, b)
	case KindFloorDiv:
		return floorDivOp(a, b)
	case KindMod:
		return mod(a, b)
	default:
		return nil, ErrValue.Wrapf("not a binary operator: %s", op)
	}
}

// numeric applies an operator to two numbers, using integer arithmetic when
// both are integers.
func numeric(
	a, b any,
	ints func(x, y int) (any, error),
	floats func(x, y float64) (any, error),
) (any, bool, error) {
	fa, okA := asFloat(a)
	fb, okB := asFloat(b)

	if !okA || !okB {
		return nil, false, nil
	}

	if !isFloat(a) && !isFloat(b) {
		ia, _ := asInt(a)
		ib, _ := asInt(b)
		v, err := ints(ia, ib)

		return v, true, err
	}

	v, err := floats(fa, fb)

	return v, true, err
}

func add(a, b any) (any, error) {
	v, ok, err := numeric(a, b,
		func(x, y int) (any, error) { return x + y, nil },
		func(x, y float64) (any, error) { return x + y, nil })
	if ok {
		return v, err
	}

	a, b = plain(a), plain(b)

	switch a := a.(type) {
	case string:
		if s, ok := b.(string); ok {
			return a + s, nil
		}
	case []any:
		if l, ok := b.([]any); ok {
			return listOf(slices.Concat(a, l)), nil
		}
	case time.Time:
		switch d := b.(type) {
		case TimeDelta:
			return a.Add(time.Duration(d.Micros()) * time.Microsecond), nil
		case MonthDelta:
			return addMonths(a, d.Months), nil
		}
	case TimeDelta:
		switch d := b.(type) {
		case TimeDelta:
			return timeDeltaFromMicros(a.Micros() + d.Micros()), nil
		case time.Time:
			return add(d, a)
		}
	case MonthDelta:
		switch d := b.(type) {
		case MonthDelta:
			return MonthDelta{a.Months + d.Months}, nil
		case time.Time:
			return addMonths(d, a.Months), nil
		}
	}

	return nil, typeError("add", a, b)
}

// addMonths adds calendar months, clamping the day to the target month.
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	y += floorDiv(total, 12)
	m = time.Month(floorMod(total, 12) + 1)

	last := time.Date(y, m+1, 0, 0, 0, 0, 0, t.Location()).Day()

	return time.Date(y, m, min(d, last), t.Hour(), t.Minute(), t.Second(),
		t.Nanosecond(), t.Location())
}

func sub(a, b any) (any, error) {
	v, ok, err := numeric(a, b,
		func(x, y int) (any, error) { return x - y, nil },
		func(x, y float64) (any, error) { return x - y, nil })
	if ok {
		return v, err
	}

	switch a := a.(type) {
	case time.Time:
		switch d := b.(type) {
		case time.Time:
			return timeDeltaFromMicros(int(a.Sub(d) / time.Microsecond)), nil
		case TimeDelta:
			return a.Add(-time.Duration(d.Micros()) * time.Microsecond), nil
		case MonthDelta:
			return addMonths(a, -d.Months), nil
		}
	case TimeDelta:
		if d, ok := b.(TimeDelta); ok {
			return timeDeltaFromMicros(a.Micros() - d.Micros()), nil
		}
	case MonthDelta:
		if d, ok := b.(MonthDelta); ok {
			return MonthDelta{a.Months - d.Months}, nil
		}
	}

	return nil, typeError("sub", a, b)
}

func mul(a, b any) (any, error) {
	v, ok, err := numeric(a, b,
		func(x, y int) (any, error) { return x * y, nil },
		func(x, y float64) (any, error) { return x * y, nil })
	if ok {
		return v, err
	}

	a, b = plain(a), plain(b)

	// Normalize "n * seq" to "seq * n".
	if _, ok := asInt(a); ok {
		a, b = b, a
	}

	n, ok := asInt(b)
	if !ok {
		if f, ok := asFloat(b); ok {
			if d, ok := a.(TimeDelta); ok {
				return timeDeltaFromMicros(int(math.Round(float64(d.Micros()) * f))), nil
			}
		}

		return nil, typeError("mul", a, b)
	}

	switch a := a.(type) {
	case string:
		return strings.Repeat(a, max(n, 0)), nil
	case []any:
		out := make([]any, 0, len(a)*max(n, 0))
		for range max(n, 0) {
			out = append(out, a...)
		}

		return listOf(out), nil
	case TimeDelta:
		return timeDeltaFromMicros(a.Micros() * n), nil
	case MonthDelta:
		return MonthDelta{a.Months * n}, nil
	}

	return nil, typeError("mul", a, b)
}

func trueDiv(a, b any) (any, error) {
	if d, ok := a.(TimeDelta); ok {
		switch b := b.(type) {
		case TimeDelta:
			if b.Micros() == 0 {
				return nil, ErrZeroDivision.Wrapf("timedelta division")
			}

			return float64(d.Micros()) / float64(b.Micros()), nil
		default:
			f, ok := asFloat(b)
			if !ok {
				break
			}

			if f == 0 {
				return nil, ErrZeroDivision.Wrapf("timedelta division")
			}

			return timeDeltaFromMicros(int(math.Round(float64(d.Micros()) / f))), nil
		}
	}

	fa, okA := asFloat(a)
	fb, okB := asFloat(b)

	if !okA || !okB {
		return nil, typeError("truediv", a, b)
	}

	if fb == 0 {
		return nil, ErrZeroDivision.Wrapf("float division")
	}

	return fa / fb, nil
}

func floorDivOp(a, b any) (any, error) {
	v, ok, err := numeric(a, b,
		func(x, y int) (any, error) {
			if y == 0 {
				return nil, ErrZeroDivision.Wrapf("integer division")
			}

			return floorDiv(x, y), nil
		},
		func(x, y float64) (any, error) {
			if y == 0 {
				return nil, ErrZeroDivision.Wrapf("float floor division")
			}

			return math.Floor(x / y), nil
		})
	if ok {
		return v, err
	}

	if d, ok := a.(TimeDelta); ok {
		if n, ok := asInt(b); ok {
			if n == 0 {
				return nil, ErrZeroDivision.Wrapf("timedelta floor division")
			}

			return timeDeltaFromMicros(floorDiv(d.Micros(), n)), nil
		}
	}

	return nil, typeError("floordiv", a, b)
}

func mod(a, b any) (any, error) {
	v, ok, err := numeric(a, b,
		func(x, y int) (any, error) {
			if y == 0 {
				return nil, ErrZeroDivision.Wrapf("integer modulo")
			}

			return floorMod(x, y), nil
		},
		func(x, y float64) (any, error) {
			if y == 0 {
				return nil, ErrZeroDivision.Wrapf("float modulo")
			}

			m := math.Mod(x, y)
			if m != 0 && (m < 0) != (y < 0) {
				m += y
			}

			return m, nil
		})
	if ok {
		return v, err
	}

	return nil, typeError("mod", a, b)
}

// contains implements "item in container".
func contains(item, container any) (bool, error) {
	switch c := plain(container).(type) {
	case *Undefined:
		return false, c.err("containment test")
	case string:
		s, ok := item.(string)
		if !ok {
			return false, typeError("contains", item, container)
		}

		return strings.Contains(c, s), nil
	case []any:
		return slices.ContainsFunc(c, func(v any) bool { return equal(v, item) }), nil
	case *Dict:
		_, ok := c.Get(item)

		return ok, nil
	case map[string]any:
		s, ok := item.(string)
		if !ok {
			return false, nil
		}

		_, ok = c[s]

		return ok, nil
	case Color:
		n, ok := asInt(item)

		return ok && slices.Contains([]int{int(c.R), int(c.G), int(c.B), int(c.A)}, n), nil
	}

	if l, ok := reflectList(container); ok {
		return contains(item, l)
	}

	if d, ok := reflectDict(container); ok {
		return contains(item, d)
	}

	return false, typeError("contains", item, container)
}

// getAttr implements "obj.name". Misses yield an undefined value.
func getAttr(obj any, name string) any {
	switch o := obj.(type) {
	case *Undefined:
		return undefinedKey(name)
	case *Dict:
		if v, ok := o.Get(name); ok {
			return v
		}
	case map[string]any:
		if v, ok := o[name]; ok {
			return v
		}
	case Attributer:
		if v, ok := o.UL4Attr(name); ok {
			return v
		}
	case *Template:
		return templateAttr(o, name)
	case *TemplateClosure:
		return templateAttr(o.Template, name)
	default:
		if v, ok := reflectAttr(obj, name); ok {
			return v
		}
	}

	return undefinedKey(name)
}

func templateAttr(t *Template, name string) any {
	switch name {
	case "name":
		return t.Name
	case "source":
		return t.Source
	case "startdelim":
		return t.StartDelim
	case "enddelim":
		return t.EndDelim
	case "keepws":
		return t.KeepWS
	default:
		return undefinedKey(name)
	}
}

// reflectAttr reads an exported struct field or map entry of a host value.
func reflectAttr(obj any, name string) (any, bool) {
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}

		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		f := rv.FieldByNameFunc(func(field string) bool {
			return strings.EqualFold(field, name)
		})
		if f.IsValid() && f.CanInterface() {
			return f.Interface(), true
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if v.IsValid() {
				return v.Interface(), true
			}
		}
	}

	return nil, false
}

// getItem implements "obj[key]". Misses yield an undefined value.
func getItem(obj, key any) (any, error) {
	obj = plain(obj)

	switch o := obj.(type) {
	case *Undefined:
		return nil, o.err("indexing")
	case *Dict:
		if !hashable(key) {
			return nil, typeError("getitem", obj, key)
		}

		if v, ok := o.Get(key); ok {
			return v, nil
		}

		return undefinedKey(key), nil
	case map[string]any:
		if s, ok := key.(string); ok {
			if v, ok := o[s]; ok {
				return v, nil
			}
		}

		return undefinedKey(key), nil
	case string:
		idx, ok := asInt(key)
		if !ok {
			return nil, typeError("getitem", obj, key)
		}

		r := []rune(o)
		if i, ok := normalizeIndex(idx, len(r)); ok {
			return string(r[i]), nil
		}

		return undefinedIndex(idx), nil
	case []any:
		idx, ok := asInt(key)
		if !ok {
			return nil, typeError("getitem", obj, key)
		}

		if i, ok := normalizeIndex(idx, len(o)); ok {
			return o[i], nil
		}

		return undefinedIndex(idx), nil
	case Color:
		idx, ok := asInt(key)
		if !ok {
			return nil, typeError("getitem", obj, key)
		}

		comp := []any{int(o.R), int(o.G), int(o.B), int(o.A)}
		if i, ok := normalizeIndex(idx, 4); ok {
			return comp[i], nil
		}

		return undefinedIndex(idx), nil
	}

	if l, ok := reflectList(obj); ok {
		return getItem(l, key)
	}

	if s, ok := key.(string); ok {
		if v, ok := reflectAttr(obj, s); ok {
			return v, nil
		}

		return undefinedKey(key), nil
	}

	return nil, typeError("getitem", obj, key)
}

func normalizeIndex(i, n int) (int, bool) {
	if i < 0 {
		i += n
	}

	return i, i >= 0 && i < n
}

// sliceBounds clamps optional start/stop bounds like Python slicing.
func sliceBounds(start, stop any, n int) (int, int, error) {
	bound := func(v any, def int) (int, error) {
		if v == nil {
			return def, nil
		}

		if _, ok := v.(*Undefined); ok {
			return def, nil
		}

		i, ok := asInt(v)
		if !ok {
			return 0, typeError("slice", v)
		}

		if i < 0 {
			i += n
		}

		return min(max(i, 0), n), nil
	}

	lo, err := bound(start, 0)
	if err != nil {
		return 0, 0, err
	}

	hi, err := bound(stop, n)
	if err != nil {
		return 0, 0, err
	}

	return lo, max(lo, hi), nil
}

// getSlice implements "obj[start:stop]".
func getSlice(obj, start, stop any) (any, error) {
	obj = plain(obj)

	switch o := obj.(type) {
	case *Undefined:
		return nil, o.err("slicing")
	case string:
		r := []rune(o)

		lo, hi, err := sliceBounds(start, stop, len(r))
		if err != nil {
			return nil, err
		}

		return string(r[lo:hi]), nil
	case []any:
		lo, hi, err := sliceBounds(start, stop, len(o))
		if err != nil {
			return nil, err
		}

		return listOf(slices.Clone(o[lo:hi])), nil
	}

	if l, ok := reflectList(obj); ok {
		return getSlice(l, start, stop)
	}

	return nil, typeError("getslice", obj)
}

// length implements len().
func length(v any) (int, error) {
	switch v := plain(v).(type) {
	case *Undefined:
		return 0, v.err("len")
	case string:
		return utf8.RuneCountInString(v), nil
	case []any:
		return len(v), nil
	case *Dict:
		return v.Len(), nil
	case map[string]any:
		return len(v), nil
	case Color:
		return 4, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), nil
	}

	return 0, typeError("len", v)
}

// iterate returns the items of a container. Dicts iterate over their keys.
func iterate(v any) (iter.Seq2[any, error], error) {
	one := func(items iter.Seq[any]) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}

	switch v := v.(type) {
	case *Undefined:
		return nil, v.err("iteration")
	case *Iterator:
		return v.All(), nil
	case string:
		return one(func(yield func(any) bool) {
			for _, r := range v {
				if !yield(string(r)) {
					return
				}
			}
		}), nil
	case []any:
		return one(slices.Values(v)), nil
	case *List:
		return one(slices.Values(v.items)), nil
	case *Dict:
		return one(func(yield func(any) bool) {
			for k := range v.All() {
				if !yield(k) {
					return
				}
			}
		}), nil
	case map[string]any:
		return iterate(dictFromMap(v))
	}

	if l, ok := reflectList(v); ok {
		return one(slices.Values(l)), nil
	}

	if d, ok := reflectDict(v); ok {
		return iterate(d)
	}

	return nil, typeError("iter", v)
}

// collect drains an iterable into a list.
func collect(v any) ([]any, error) {
	if l, ok := plain(v).([]any); ok {
		return l, nil
	}

	seq, err := iterate(v)
	if err != nil {
		return nil, err
	}

	var out []any

	for item, err := range seq {
		if err != nil {
			return nil, err
		}

		out = append(out, item)
	}

	return out, nil
}

// asDict converts mapping values to *Dict.
func asDict(v any) (*Dict, bool) {
	switch v := v.(type) {
	case *Dict:
		return v, true
	case map[string]any:
		return dictFromMap(v), true
	}

	return reflectDict(v)
}

// setItem stores value under key, rejecting unhashable keys.
func setItem(d *Dict, key, value any) error {
	if !hashable(key) {
		return typeError("setitem", key)
	}

	d.Set(key, value)

	return nil
}
