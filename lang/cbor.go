package lang

import (
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CBOR tags used by the binary format. 27 carries a named object as
// [name, fields...]; 28 marks a value that may be referenced later and 29
// references the n-th marked value.
const (
	tagObject = 27
	tagShared = 28
	tagRef    = 29
)

// binaryMagic opens the envelope [magic, version, value].
const binaryMagic = "ul4on"

// objDict names runtime dicts. It must differ from every [Kind] name, since
// the dict literal node is also written as an object.
const objDict = "dictvalue"

// DumpBinary serializes v as CBOR. The object model and back references
// match [Dumps].
func DumpBinary(v any) ([]byte, error) {
	e := &cborEncoder{ids: make(map[any]uint64)}

	tree, err := e.encode(v)
	if err != nil {
		return nil, err
	}

	data, err := cbor.Marshal([]any{binaryMagic, Version, tree})
	if err != nil {
		return nil, ErrSerialize.Wrap(err)
	}

	return data, nil
}

// LoadBinary deserializes a value written by [DumpBinary].
func LoadBinary(data []byte) (any, error) {
	var envelope []any
	if err := cbor.Unmarshal(data, &envelope); err != nil {
		return nil, ErrSerialize.Wrap(err)
	}

	if len(envelope) != 3 || envelope[0] != binaryMagic {
		return nil, ErrSerialize.Wrapf("not a binary template dump")
	}

	if envelope[1] != Version {
		return nil, ErrVersion.Wrapf("got %v, expected %q", envelope[1], Version)
	}

	d := &cborDecoder{}

	return d.decode(envelope[2])
}

type cborEncoder struct {
	ids  map[any]uint64
	next uint64
}

func (e *cborEncoder) shared(key any, build func() (any, error)) (any, error) {
	if key != nil {
		if id, ok := e.ids[key]; ok {
			return cbor.Tag{Number: tagRef, Content: id}, nil
		}

		e.ids[key] = e.next
	}

	e.next++

	content, err := build()
	if err != nil {
		return nil, err
	}

	return cbor.Tag{Number: tagShared, Content: content}, nil
}

func (e *cborEncoder) encode(v any) (any, error) {
	if isNull(v) {
		return nil, nil
	}

	switch v := v.(type) {
	case bool, string, float64:
		return v, nil
	case float32:
		return float64(v), nil
	case time.Time:
		return cbor.Tag{Number: 0, Content: v.Format(time.RFC3339Nano)}, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, _ := asInt(v)

		return int64(n), nil
	case []any:
		return e.list(v)
	case *List:
		return e.list(v.items)
	case *Dict:
		return e.shared(v, func() (any, error) { return e.dict(v) })
	case map[string]any:
		return e.shared(nil, func() (any, error) { return e.dict(dictFromMap(v)) })
	case *Iterator:
		return nil, ErrSerialize.Wrapf("cannot serialize %s", typeName(v))
	}

	if obj, ok := objectOf(v); ok {
		if obj.shared {
			return e.shared(v, func() (any, error) { return e.object(obj) })
		}

		return e.object(obj)
	}

	if l, ok := reflectList(v); ok {
		return e.list(l)
	}

	if d, ok := reflectDict(v); ok {
		return e.shared(nil, func() (any, error) { return e.dict(d) })
	}

	return nil, ErrSerialize.Wrapf("cannot serialize %s", typeName(v))
}

func (e *cborEncoder) list(l []any) ([]any, error) {
	out := make([]any, len(l))

	for i, item := range l {
		v, err := e.encode(item)
		if err != nil {
			return nil, err
		}

		out[i] = v
	}

	return out, nil
}

func (e *cborEncoder) dict(d *Dict) (any, error) {
	content := make([]any, 0, 1+2*d.Len())
	content = append(content, objDict)

	for k, v := range d.All() {
		ek, err := e.encode(k)
		if err != nil {
			return nil, err
		}

		ev, err := e.encode(v)
		if err != nil {
			return nil, err
		}

		content = append(content, ek, ev)
	}

	return cbor.Tag{Number: tagObject, Content: content}, nil
}

func (e *cborEncoder) object(obj object) (any, error) {
	content := make([]any, 0, 1+len(obj.fields))
	content = append(content, obj.name)

	for _, f := range obj.fields {
		v, err := e.encode(f)
		if err != nil {
			return nil, err
		}

		content = append(content, v)
	}

	return cbor.Tag{Number: tagObject, Content: content}, nil
}

type cborDecoder struct {
	objects []any
	build   builder
}

func (d *cborDecoder) decode(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, string, float64, time.Time:
		return v, nil
	case uint64:
		return int(v), nil
	case int64:
		return int(v), nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			dv, err := d.decode(item)
			if err != nil {
				return nil, err
			}

			out[i] = dv
		}

		return out, nil
	case cbor.Tag:
		return d.tag(v)
	}

	return nil, ErrSerialize.Wrapf("unexpected CBOR item %T", v)
}

func (d *cborDecoder) tag(t cbor.Tag) (any, error) {
	switch t.Number {
	case 0:
		s, _ := t.Content.(string)

		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, ErrSerialize.Wrapf("invalid date %q", s)
		}

		return ts, nil
	case tagRef:
		id, ok := t.Content.(uint64)
		if !ok || id >= uint64(len(d.objects)) || d.objects[id] == nil {
			return nil, ErrSerialize.Wrapf("invalid reference %v", t.Content)
		}

		return d.objects[id], nil
	case tagShared:
		id := len(d.objects)
		d.objects = append(d.objects, nil)

		inner, ok := t.Content.(cbor.Tag)
		if !ok || inner.Number != tagObject {
			return nil, ErrSerialize.Wrapf("shared value is not an object")
		}

		return d.object(inner, id)
	case tagObject:
		return d.object(t, -1)
	}

	return nil, ErrSerialize.Wrapf("unknown CBOR tag %d", t.Number)
}

// object decodes a tagged object; id is its shared slot, or -1.
func (d *cborDecoder) object(t cbor.Tag, id int) (any, error) {
	content, _ := t.Content.([]any)
	if len(content) == 0 {
		return nil, ErrSerialize.Wrapf("empty object")
	}

	name, ok := content[0].(string)
	if !ok {
		return nil, ErrSerialize.Wrapf("object name is %T", content[0])
	}

	if name == objDict {
		return d.dict(content[1:], id)
	}

	fields := make([]any, len(content)-1)

	for i, f := range content[1:] {
		v, err := d.decode(f)
		if err != nil {
			return nil, err
		}

		fields[i] = v
	}

	v, err := d.build.build(name, fields)
	if err != nil {
		return nil, err
	}

	if id >= 0 {
		d.objects[id] = v
	}

	return v, nil
}

func (d *cborDecoder) dict(kv []any, id int) (any, error) {
	if len(kv)%2 != 0 {
		return nil, ErrSerialize.Wrapf("dict with odd item count")
	}

	dict := NewDict()
	if id >= 0 {
		d.objects[id] = dict
	}

	for i := 0; i < len(kv); i += 2 {
		k, err := d.decode(kv[i])
		if err != nil {
			return nil, err
		}

		if !hashable(k) {
			return nil, ErrSerialize.Wrapf("unhashable key of type %s", typeName(k))
		}

		v, err := d.decode(kv[i+1])
		if err != nil {
			return nil, err
		}

		dict.Set(k, v)
	}

	return dict, nil
}
