package lang

import (
	"fmt"
	"iter"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// UndefinedKind identifies which lookup produced an [Undefined] value.
type UndefinedKind int

const (
	UndefinedName  UndefinedKind = iota // missing variable
	UndefinedKey                        // missing dict key or attribute
	UndefinedIndex                      // index out of range
)

// Undefined stands in for the result of a failed lookup. It is falsy, prints
// as empty text, and fails with [ErrUndefined] when iterated, indexed, or
// measured.
type Undefined struct {
	Kind  UndefinedKind
	Name  string // variable name for UndefinedName
	Key   any    // key or attribute name for UndefinedKey
	Index int    // index for UndefinedIndex
}

func undefinedName(name string) *Undefined {
	return &Undefined{Kind: UndefinedName, Name: name}
}

func undefinedKey(key any) *Undefined {
	return &Undefined{Kind: UndefinedKey, Key: key}
}

func undefinedIndex(index int) *Undefined {
	return &Undefined{Kind: UndefinedIndex, Index: index}
}

// String returns the repr form of the value.
func (u *Undefined) String() string {
	switch u.Kind {
	case UndefinedName:
		return "UndefinedVariable(" + repr(u.Name) + ")"
	case UndefinedKey:
		return "UndefinedKey(" + repr(u.Key) + ")"
	default:
		return "UndefinedIndex(" + strconv.Itoa(u.Index) + ")"
	}
}

// err reports an operation that Undefined values reject.
func (u *Undefined) err(op string) error {
	return ErrUndefined.Wrapf("%s of %s", op, u)
}

// Color is an RGBA color with 8 bits per channel.
type Color struct {
	R, G, B, A uint8
}

// String returns the shortest CSS hex notation of the color.
func (c Color) String() string {
	short := c.R%17 == 0 && c.G%17 == 0 && c.B%17 == 0 && c.A%17 == 0

	switch {
	case c.A == 0xff && short:
		return fmt.Sprintf("#%x%x%x", c.R/17, c.G/17, c.B/17)
	case c.A == 0xff:
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	case short:
		return fmt.Sprintf("#%x%x%x%x", c.R/17, c.G/17, c.B/17, c.A/17)
	default:
		return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	}
}

func parseColor(s string) (Color, bool) {
	hex := strings.TrimPrefix(s, "#")

	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, false
	}

	nib := func(shift uint) uint8 { return uint8((n>>shift)&0xf) * 17 }
	byt := func(shift uint) uint8 { return uint8(n >> shift) }

	switch len(hex) {
	case 3:
		return Color{nib(8), nib(4), nib(0), 0xff}, true
	case 4:
		return Color{nib(12), nib(8), nib(4), nib(0)}, true
	case 6:
		return Color{byt(16), byt(8), byt(0), 0xff}, true
	case 8:
		return Color{byt(24), byt(16), byt(8), byt(0)}, true
	default:
		return Color{}, false
	}
}

// TimeDelta is a duration normalized like a calendar time difference:
// 0 <= Seconds < 86400 and 0 <= Microseconds < 1000000; Days carries the sign.
type TimeDelta struct {
	Days, Seconds, Microseconds int
}

const (
	secondsPerDay = 86400
	microsPerSec  = 1000000
)

// NewTimeDelta returns a normalized TimeDelta.
func NewTimeDelta(days, seconds, microseconds int) TimeDelta {
	seconds += floorDiv(microseconds, microsPerSec)
	microseconds = floorMod(microseconds, microsPerSec)
	days += floorDiv(seconds, secondsPerDay)
	seconds = floorMod(seconds, secondsPerDay)

	return TimeDelta{Days: days, Seconds: seconds, Microseconds: microseconds}
}

func timeDeltaFromMicros(us int) TimeDelta { return NewTimeDelta(0, 0, us) }

// Micros returns the total length in microseconds.
func (d TimeDelta) Micros() int {
	return (d.Days*secondsPerDay+d.Seconds)*microsPerSec + d.Microseconds
}

// String formats the delta as "D days, H:MM:SS[.ffffff]".
func (d TimeDelta) String() string {
	var b strings.Builder

	switch d.Days {
	case 0:
	case 1, -1:
		fmt.Fprintf(&b, "%d day, ", d.Days)
	default:
		fmt.Fprintf(&b, "%d days, ", d.Days)
	}

	fmt.Fprintf(&b, "%d:%02d:%02d", d.Seconds/3600, d.Seconds/60%60, d.Seconds%60)

	if d.Microseconds != 0 {
		fmt.Fprintf(&b, ".%06d", d.Microseconds)
	}

	return b.String()
}

// MonthDelta is a difference in calendar months.
type MonthDelta struct {
	Months int
}

// String formats the delta as "N month(s)".
func (d MonthDelta) String() string {
	if d.Months == 1 || d.Months == -1 {
		return strconv.Itoa(d.Months) + " month"
	}

	return strconv.Itoa(d.Months) + " months"
}

// Dict is an insertion-ordered mapping. Keys must be comparable.
type Dict struct {
	keys []any
	m    map[any]any
}

// NewDict returns a dict holding the given alternating key/value pairs.
func NewDict(kv ...any) *Dict {
	d := &Dict{m: make(map[any]any, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i], kv[i+1])
	}

	return d
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

// Get returns the value for key.
func (d *Dict) Get(key any) (any, bool) {
	if !hashable(key) {
		return nil, false
	}

	v, ok := d.m[key]

	return v, ok
}

// Set adds or replaces the value for key.
func (d *Dict) Set(key, value any) {
	if _, ok := d.m[key]; !ok {
		d.keys = append(d.keys, key)
	}

	d.m[key] = value
}

// Delete removes key from the dict.
func (d *Dict) Delete(key any) {
	if _, ok := d.m[key]; !ok {
		return
	}

	delete(d.m, key)
	d.keys = slices.DeleteFunc(d.keys, func(k any) bool { return k == key })
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []any { return slices.Clone(d.keys) }

// All iterates over the entries in insertion order.
func (d *Dict) All() iter.Seq2[any, any] {
	return func(yield func(any, any) bool) {
		for _, k := range d.keys {
			if !yield(k, d.m[k]) {
				return
			}
		}
	}
}

// List is a mutable sequence. Every variable bound to a List sees the
// changes made through any of them.
type List struct {
	items []any
}

// NewList returns a list holding items.
func NewList(items ...any) *List { return &List{items: items} }

func listOf(items []any) *List { return &List{items: items} }

// Len returns the number of items.
func (l *List) Len() int { return len(l.items) }

// Items returns the items. The result aliases the list and must not be
// modified.
func (l *List) Items() []any { return l.items }

// Append adds items to the end.
func (l *List) Append(items ...any) { l.items = append(l.items, items...) }

// Insert adds items before index pos, clamped to the list bounds. A negative
// pos counts from the end.
func (l *List) Insert(pos int, items ...any) {
	if pos < 0 {
		pos += len(l.items)
	}

	pos = min(max(pos, 0), len(l.items))
	l.items = slices.Insert(l.items, pos, items...)
}

// Pop removes and returns the item at index pos. A negative pos counts from
// the end.
func (l *List) Pop(pos int) (any, bool) {
	i, ok := normalizeIndex(pos, len(l.items))
	if !ok {
		return nil, false
	}

	item := l.items[i]
	l.items = slices.Delete(l.items, i, i+1)

	return item, true
}

func hashable(v any) bool {
	if v == nil {
		return true
	}

	switch v.(type) {
	case []any, *List, *Undefined:
		return false
	}

	return reflect.TypeOf(v).Comparable()
}

// Iterator is a single-use lazy sequence, produced by generator expressions
// and by builtins such as range and enumerate.
type Iterator struct {
	seq  iter.Seq2[any, error]
	used bool
}

func newIterator(seq iter.Seq2[any, error]) *Iterator {
	return &Iterator{seq: seq}
}

// All returns the remaining items. An exhausted Iterator yields nothing.
func (it *Iterator) All() iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		if it.used {
			return
		}

		it.used = true
		it.seq(yield)
	}
}

// TemplateClosure binds a template to a frozen copy of the variables visible
// where it was defined.
type TemplateClosure struct {
	Template *Template
	Vars     map[string]any
}

// Attributer is implemented by host values that expose attributes to
// templates. A false result yields an undefined value.
type Attributer interface {
	UL4Attr(name string) (any, bool)
}
