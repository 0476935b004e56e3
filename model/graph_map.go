package model

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/wire"
)

// pairNode writes a key/value pair as the entry message {1: key, 2: value}.
// As a node it reads and writes pair structs through keyIndex/valueIndex.
type pairNode struct {
	key, value     node
	keyType        reflect.Type
	valueType      reflect.Type
	keyFr, valueFr framing
	keyIndex       []int
	valueIndex     []int
}

func (r *Registry) buildPair(kt, vt reflect.Type, kf, vf DataFormat, ref, dynamic bool) (*pairNode, error) {
	key, kwt, err := r.buildValue(kt, kf, false, false, false)
	if err != nil {
		return nil, err
	}
	value, vwt, err := r.buildValue(vt, vf, ref, dynamic, false)
	if err != nil {
		return nil, err
	}
	return &pairNode{
		key:       key,
		value:     value,
		keyType:   kt,
		valueType: vt,
		keyFr:     framing{field: 1, wt: kwt},
		valueFr:   framing{field: 2, wt: vwt},
	}, nil
}

func (n *pairNode) encodePair(w *wire.Writer, f *framing, k, v reflect.Value, st *state) error {
	tok, err := f.begin(w)
	if err != nil {
		return err
	}
	if err := n.key.encode(w, &n.keyFr, k, st); err != nil {
		return err
	}
	if err := n.value.encode(w, &n.valueFr, v, st); err != nil {
		return err
	}
	return f.end(w, tok)
}

func (n *pairNode) decodePair(r *wire.Reader, wt wire.Type, k, v reflect.Value, st *state) error {
	if wt != wire.Bytes && wt != wire.StartGroup {
		return errors.WireFormat(st.path, r.FieldNumber(), "map entry must be a nested message")
	}
	sub, err := r.ReadMessage()
	if err != nil {
		return err
	}
	for {
		field, fwt, err := sub.ReadFieldHeader()
		if err != nil {
			return err
		}
		switch field {
		case 0:
			return nil
		case 1:
			err = n.key.decode(sub, fwt, k, st)
		case 2:
			err = n.value.decode(sub, fwt, v, st)
		default:
			err = sub.SkipField()
		}
		if err != nil {
			return err
		}
	}
}

func (n *pairNode) encode(w *wire.Writer, f *framing, v reflect.Value, st *state) error {
	return n.encodePair(w, f, v.FieldByIndex(n.keyIndex), v.FieldByIndex(n.valueIndex), st)
}

func (n *pairNode) decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	return n.decodePair(r, wt, v.FieldByIndex(n.keyIndex), v.FieldByIndex(n.valueIndex), st)
}

// mapNode writes a map as repeated entries. Keys are sorted so the output
// is deterministic.
type mapNode struct {
	pair      *pairNode
	overwrite bool
}

func (r *Registry) buildMap(p *FieldPlan) (node, error) {
	pn, err := r.buildPair(p.shape.Key, p.shape.Value, p.KeyFormat, p.ValueFormat, p.AsReference, p.DynamicType)
	if err != nil {
		return nil, err
	}
	return &mapNode{pair: pn, overwrite: p.Overwrite}, nil
}

func (n *mapNode) encode(w *wire.Writer, f *framing, v reflect.Value, st *state) error {
	m, ok := collectionOf(v)
	if !ok || m.Len() == 0 {
		return nil
	}
	keys := m.MapKeys()
	slices.SortFunc(keys, compareKeys)
	for _, k := range keys {
		if err := n.pair.encodePair(w, f, k, m.MapIndex(k), st); err != nil {
			return err
		}
	}
	return nil
}

func (n *mapNode) decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	prog := st.repeatedFor(n)
	if v.IsNil() || (n.overwrite && !prog.seen) {
		v.Set(reflect.MakeMap(v.Type()))
	}
	prog.seen = true

	k := reflect.New(n.pair.keyType).Elem()
	val := reflect.New(n.pair.valueType).Elem()
	if err := n.pair.decodePair(r, wt, k, val, st); err != nil {
		return err
	}
	v.SetMapIndex(k, val)
	return nil
}

func compareKeys(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	case reflect.String:
		return cmp.Compare(a.String(), b.String())
	case reflect.Bool:
		switch {
		case a.Bool() == b.Bool():
			return 0
		case !a.Bool():
			return -1
		}
		return 1
	}
	return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
}
