package lang

import (
	"bufio"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// The text format writes one token per value, separated by single spaces:
//
//	n            None
//	bT bF        booleans
//	i42          integer
//	f1.5         float
//	S"text"      string, Go quoted
//	z<RFC 3339>  date
//	L ... ]      list
//	D k v ... }  dict
//	O"name" ...) shared object (templates, nodes, locations, closures)
//	o"name" ...) value object (colors, deltas)
//	^3           back reference to the fourth dict or shared object
//
// Every dict and shared object is numbered in order of appearance. A pointer
// that was already written is replaced by a back reference, so shared
// locations and cyclic dicts survive a round trip.

// Dumps serializes v to a string.
func Dumps(v any) (string, error) {
	var b strings.Builder

	if err := Dump(&b, v); err != nil {
		return "", err
	}

	return b.String(), nil
}

// Dump serializes v to w.
func Dump(w io.Writer, v any) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw, ids: make(map[any]int)}

	if err := e.encode(v); err != nil {
		return err
	}

	return bw.Flush()
}

// Dumps serializes the template.
func (t *Template) Dumps() (string, error) { return Dumps(t) }

// Dump serializes the template to w.
func (t *Template) Dump(w io.Writer) error { return Dump(w, t) }

// Loads deserializes a value written by [Dumps].
func Loads(s string) (any, error) {
	return Load(strings.NewReader(s))
}

// Load deserializes a value written by [Dump]. Templates whose version
// differs from [Version] are rejected with [ErrVersion].
func Load(r io.Reader) (any, error) {
	d := &decoder{r: bufio.NewReader(r)}

	v, err := d.decode()
	if err != nil {
		return nil, err
	}

	if c, err := d.skipSpace(); err == nil {
		return nil, d.errorf("trailing data %q", c)
	} else if !errors.Is(err, io.EOF) {
		return nil, ErrReadInput.Wrap(err)
	}

	return v, nil
}

// LoadTemplate deserializes a template written by [Template.Dumps].
func LoadTemplate(s string, opts ...Option) (*Template, error) {
	v, err := Loads(s)
	if err != nil {
		return nil, err
	}

	t, ok := v.(*Template)
	if !ok {
		return nil, ErrSerialize.Wrapf("expected template, got %s", typeName(v))
	}

	return t.Configure(opts...), nil
}

type encoder struct {
	w    *bufio.Writer
	ids  map[any]int
	next int
	sep  bool
}

func (e *encoder) token(s string) {
	if e.sep {
		e.w.WriteByte(' ')
	}

	e.w.WriteString(s)
	e.sep = true
}

// register numbers a dict or shared object; key is nil for values without
// a stable identity.
func (e *encoder) register(key any) {
	if key != nil {
		e.ids[key] = e.next
	}

	e.next++
}

func (e *encoder) backref(key any) bool {
	id, ok := e.ids[key]
	if ok {
		e.token("^" + strconv.Itoa(id))
	}

	return ok
}

func (e *encoder) encode(v any) error {
	if isNull(v) {
		e.token("n")

		return nil
	}

	switch v := v.(type) {
	case bool:
		if v {
			e.token("bT")
		} else {
			e.token("bF")
		}

		return nil
	case string:
		e.token("S" + strconv.Quote(v))

		return nil
	case time.Time:
		e.token("z" + v.Format(time.RFC3339Nano))

		return nil
	case float64:
		e.token("f" + strconv.FormatFloat(v, 'g', -1, 64))

		return nil
	case float32:
		e.token("f" + strconv.FormatFloat(float64(v), 'g', -1, 32))

		return nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, _ := asInt(v)
		e.token("i" + strconv.Itoa(n))

		return nil
	case []any:
		return e.list(v)
	case *List:
		return e.list(v.items)
	case *Dict:
		if e.backref(v) {
			return nil
		}

		e.register(v)

		return e.dict(v)
	case map[string]any:
		e.register(nil)

		return e.dict(dictFromMap(v))
	case *Iterator:
		return ErrSerialize.Wrapf("cannot serialize %s", typeName(v))
	}

	if obj, ok := objectOf(v); ok {
		return e.object(v, obj)
	}

	if l, ok := reflectList(v); ok {
		return e.list(l)
	}

	if d, ok := reflectDict(v); ok {
		e.register(nil)

		return e.dict(d)
	}

	return ErrSerialize.Wrapf("cannot serialize %s", typeName(v))
}

func (e *encoder) list(l []any) error {
	e.token("L")

	for _, item := range l {
		if err := e.encode(item); err != nil {
			return err
		}
	}

	e.token("]")

	return nil
}

func (e *encoder) dict(d *Dict) error {
	e.token("D")

	for k, v := range d.All() {
		if err := e.encode(k); err != nil {
			return err
		}

		if err := e.encode(v); err != nil {
			return err
		}
	}

	e.token("}")

	return nil
}

func (e *encoder) object(v any, obj object) error {
	if obj.shared {
		if e.backref(v) {
			return nil
		}

		e.register(v)
		e.token("O" + strconv.Quote(obj.name))
	} else {
		e.token("o" + strconv.Quote(obj.name))
	}

	for _, f := range obj.fields {
		if err := e.encode(f); err != nil {
			return err
		}
	}

	e.token(")")

	return nil
}

type decoder struct {
	r       *bufio.Reader
	offset  int
	last    int
	objects []any
	build   builder
}

func (d *decoder) errorf(format string, args ...any) error {
	return ErrSerialize.Wrapf("offset %d: "+format, append([]any{d.offset}, args...)...)
}

func (d *decoder) read() (rune, error) {
	c, n, err := d.r.ReadRune()
	d.offset += n
	d.last = n

	return c, err
}

func (d *decoder) unread() {
	if d.r.UnreadRune() == nil {
		d.offset -= d.last
	}
}

func (d *decoder) skipSpace() (rune, error) {
	for {
		c, err := d.read()
		if err != nil {
			return 0, err
		}

		if !unicode.IsSpace(c) {
			return c, nil
		}
	}
}

// word reads up to the next space or closing bracket.
func (d *decoder) word() (string, error) {
	var b strings.Builder

	for {
		c, err := d.read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return "", ErrReadInput.Wrap(err)
		}

		if unicode.IsSpace(c) || strings.ContainsRune("]})", c) {
			d.unread()

			break
		}

		b.WriteRune(c)
	}

	return b.String(), nil
}

// quoted reads a Go quoted string.
func (d *decoder) quoted() (string, error) {
	c, err := d.read()
	if err != nil || c != '"' {
		return "", d.errorf("expected quoted string")
	}

	var b strings.Builder

	b.WriteRune(c)

	for escaped := false; ; {
		c, err := d.read()
		if err != nil {
			return "", d.errorf("unterminated string")
		}

		b.WriteRune(c)

		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			s, err := strconv.Unquote(b.String())
			if err != nil {
				return "", d.errorf("malformed string: %v", err)
			}

			return s, nil
		}
	}
}

// next reports whether another item follows before the closing bracket end.
func (d *decoder) next(end rune) (bool, error) {
	c, err := d.skipSpace()
	if err != nil {
		return false, d.errorf("missing %q", end)
	}

	if c == end {
		return false, nil
	}

	d.unread()

	return true, nil
}

func (d *decoder) decode() (any, error) {
	c, err := d.skipSpace()
	if errors.Is(err, io.EOF) {
		return nil, d.errorf("unexpected end of input")
	} else if err != nil {
		return nil, ErrReadInput.Wrap(err)
	}

	switch c {
	case 'n':
		return nil, nil
	case 'b':
		c, _ := d.read()
		switch c {
		case 'T':
			return true, nil
		case 'F':
			return false, nil
		}

		return nil, d.errorf("invalid bool %q", c)
	case 'i':
		w, err := d.word()
		if err != nil {
			return nil, err
		}

		n, err := strconv.Atoi(w)
		if err != nil {
			return nil, d.errorf("invalid int %q", w)
		}

		return n, nil
	case 'f':
		w, err := d.word()
		if err != nil {
			return nil, err
		}

		f, err := strconv.ParseFloat(w, 64)
		if err != nil && !math.IsInf(f, 0) {
			return nil, d.errorf("invalid float %q", w)
		}

		return f, nil
	case 'S':
		return d.quoted()
	case 'z':
		w, err := d.word()
		if err != nil {
			return nil, err
		}

		t, err := time.Parse(time.RFC3339Nano, w)
		if err != nil {
			return nil, d.errorf("invalid date %q", w)
		}

		return t, nil
	case 'L':
		return d.list()
	case 'D':
		return d.dict()
	case 'O', 'o':
		return d.object(c == 'O')
	case '^':
		w, err := d.word()
		if err != nil {
			return nil, err
		}

		id, err := strconv.Atoi(w)
		if err != nil || id < 0 || id >= len(d.objects) {
			return nil, d.errorf("invalid back reference %q", w)
		}

		if d.objects[id] == nil {
			return nil, d.errorf("back reference %d to an incomplete object", id)
		}

		return d.objects[id], nil
	}

	return nil, d.errorf("unknown type code %q", c)
}

func (d *decoder) list() (any, error) {
	l := []any{}

	for {
		more, err := d.next(']')
		if err != nil || !more {
			return l, err
		}

		v, err := d.decode()
		if err != nil {
			return nil, err
		}

		l = append(l, v)
	}
}

func (d *decoder) dict() (any, error) {
	dict := NewDict()
	d.objects = append(d.objects, dict)

	for {
		more, err := d.next('}')
		if err != nil || !more {
			return dict, err
		}

		k, err := d.decode()
		if err != nil {
			return nil, err
		}

		if !hashable(k) {
			return nil, d.errorf("unhashable key of type %s", typeName(k))
		}

		v, err := d.decode()
		if err != nil {
			return nil, err
		}

		dict.Set(k, v)
	}
}

func (d *decoder) object(shared bool) (any, error) {
	name, err := d.quoted()
	if err != nil {
		return nil, err
	}

	id := len(d.objects)
	if shared {
		d.objects = append(d.objects, nil)
	}

	var fields []any

	for {
		more, err := d.next(')')
		if err != nil {
			return nil, err
		}

		if !more {
			break
		}

		v, err := d.decode()
		if err != nil {
			return nil, err
		}

		fields = append(fields, v)
	}

	v, err := d.build.build(name, fields)
	if err != nil {
		return nil, err
	}

	if shared {
		d.objects[id] = v
	}

	return v, nil
}

