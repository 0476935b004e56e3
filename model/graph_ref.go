package model

import (
	"reflect"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/wire"
)

// Field numbers inside reference and dynamic-type envelopes.
const (
	refExisting = 1
	refNew      = 2
	dynTypeName = 1
	envPayload  = 10
)

// refTable tracks object identity for one call.
type refTable struct {
	ids  map[any]int
	objs []reflect.Value
}

func newRefTable() *refTable {
	return &refTable{ids: make(map[any]int)}
}

var payloadFraming = framing{field: envPayload, wt: wire.Bytes}

// refNode writes a pointer once and later occurrences as its id:
// {1: id} for a known object, {2: id, 10: payload} for a new one. The id is
// recorded before the payload so cycles resolve.
type refNode struct {
	entry *TypeEntry
}

func (n *refNode) encode(w *wire.Writer, f *framing, v reflect.Value, st *state) error {
	refs := st.references()
	tok, err := f.begin(w)
	if err != nil {
		return err
	}

	key := v.Interface()
	if id, ok := refs.ids[key]; ok {
		_ = w.WriteTag(refExisting, wire.Varint)
		w.WriteVarint(uint64(id))
		return f.end(w, tok)
	}

	id := len(refs.objs)
	refs.ids[key] = id
	refs.objs = append(refs.objs, v)
	_ = w.WriteTag(refNew, wire.Varint)
	w.WriteVarint(uint64(id))

	g, err := n.entry.Graph()
	if err != nil {
		return err
	}
	ptok, err := payloadFraming.begin(w)
	if err != nil {
		return err
	}
	if err := st.enter(n.entry.name); err != nil {
		return err
	}
	if err := g.encodeValue(w, v, st); err != nil {
		return err
	}
	st.leave()
	if err := payloadFraming.end(w, ptok); err != nil {
		return err
	}
	return f.end(w, tok)
}

func (n *refNode) decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	if wt != wire.Bytes {
		return errors.WireFormat(st.path, r.FieldNumber(), "reference must be length-delimited")
	}
	sub, err := r.ReadLengthDelimited()
	if err != nil {
		return err
	}
	refs := st.references()
	var obj reflect.Value

	for {
		field, fwt, err := sub.ReadFieldHeader()
		if err != nil {
			return err
		}
		if field == 0 {
			break
		}
		switch {
		case field == refExisting && fwt == wire.Varint:
			id, err := sub.ReadVarint()
			if err != nil {
				return err
			}
			if id >= uint64(len(refs.objs)) {
				return errors.WireFormat(st.path, field, "reference to an unknown object")
			}
			obj = refs.objs[id]

		case field == refNew && fwt == wire.Varint:
			id, err := sub.ReadVarint()
			if err != nil {
				return err
			}
			if id != uint64(len(refs.objs)) {
				return errors.WireFormat(st.path, field, "object ids must be sequential")
			}
			obj, err = n.entry.newInstance()
			if err != nil {
				return err
			}
			refs.objs = append(refs.objs, obj)

		case field == envPayload:
			if !obj.IsValid() {
				return errors.WireFormat(st.path, field, "reference payload before its id")
			}
			payload, err := sub.ReadMessage()
			if err != nil {
				return err
			}
			g, err := n.entry.Graph()
			if err != nil {
				return err
			}
			if err := st.enter(n.entry.name); err != nil {
				return err
			}
			if err := g.decodeValue(payload, obj.Elem(), st); err != nil {
				return err
			}
			st.leave()

		default:
			if err := sub.SkipField(); err != nil {
				return err
			}
		}
	}

	if !obj.IsValid() {
		return errors.WireFormat(st.path, r.FieldNumber(), "reference without an id")
	}
	if !obj.Type().AssignableTo(v.Type()) {
		return errors.TypeMismatch(errors.PhaseDecode, st.path, obj.Type().String(), v.Type().String())
	}
	v.Set(obj)
	return nil
}

// dynamicNode writes the runtime contract name next to the payload:
// {1: name, 10: payload}.
type dynamicNode struct {
	iface reflect.Type
}

func (n *dynamicNode) encode(w *wire.Writer, f *framing, v reflect.Value, st *state) error {
	obj, e, err := objectOf(st.reg, v)
	if err != nil {
		return err
	}
	g, err := e.Graph()
	if err != nil {
		return err
	}
	tok, err := f.begin(w)
	if err != nil {
		return err
	}
	_ = w.WriteTag(dynTypeName, wire.Bytes)
	w.WriteString(e.name)

	ptok, err := payloadFraming.begin(w)
	if err != nil {
		return err
	}
	if err := st.enter(e.name); err != nil {
		return err
	}
	if err := g.encodeValue(w, obj, st); err != nil {
		return err
	}
	st.leave()
	if err := payloadFraming.end(w, ptok); err != nil {
		return err
	}
	return f.end(w, tok)
}

func (n *dynamicNode) decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	if wt != wire.Bytes {
		return errors.WireFormat(st.path, r.FieldNumber(), "dynamic value must be length-delimited")
	}
	sub, err := r.ReadLengthDelimited()
	if err != nil {
		return err
	}
	var e *TypeEntry
	for {
		field, fwt, err := sub.ReadFieldHeader()
		if err != nil {
			return err
		}
		if field == 0 {
			return nil
		}
		switch {
		case field == dynTypeName && fwt == wire.Bytes:
			name, err := sub.ReadString()
			if err != nil {
				return err
			}
			var ok bool
			if e, ok = st.reg.names.Load(name); !ok {
				return errors.Unsupported(errors.PhaseDecode, name, "no registered type carries this contract name")
			}

		case field == envPayload:
			if e == nil {
				return errors.WireFormat(st.path, field, "dynamic payload before its type name")
			}
			payload, err := sub.ReadMessage()
			if err != nil {
				return err
			}
			g, err := e.Graph()
			if err != nil {
				return err
			}
			if err := st.enter(e.name); err != nil {
				return err
			}
			if err := g.decodeValue(payload, v, st); err != nil {
				return err
			}
			st.leave()

		default:
			if err := sub.SkipField(); err != nil {
				return err
			}
		}
	}
}
