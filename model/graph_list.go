package model

import (
	"reflect"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/model/internal/shape"
	"github.com/wippyai/protomodel/wire"
)

// listNode iterates a repeated member. Items are written with the field's
// framing, or in one packed block.
type listNode struct {
	reg      *Registry
	item     node
	pair     *pairNode // set when items are key/value pairs
	itemType reflect.Type
	// declared is the interface type of the member, if it is one.
	declared    reflect.Type
	defaultType reflect.Type
	shape       shape.Shape
	wt          wire.Type // item wire type
	packed      bool
	overwrite   bool
}

// buildList compiles a repeated member and returns the item wire type.
func (r *Registry) buildList(p *FieldPlan) (node, wire.Type, error) {
	n := &listNode{
		reg:         r,
		itemType:    p.ItemType,
		defaultType: p.DefaultType,
		shape:       p.shape,
		packed:      p.Packed,
		overwrite:   p.Overwrite,
	}
	if mt := derefType(p.MemberType); mt.Kind() == reflect.Interface {
		n.declared = mt
	}

	if p.shape.Pair {
		pn, err := r.buildPair(p.shape.Key, p.shape.Value, p.KeyFormat, p.ValueFormat, p.AsReference, p.DynamicType)
		if err != nil {
			return nil, 0, err
		}
		pn.keyIndex, pn.valueIndex = p.shape.PairKey, p.shape.PairValue
		n.pair = pn
		n.item = pn
		n.wt = wire.Bytes
		return n, n.wt, nil
	}

	item, wt, err := r.buildValue(p.ItemType, p.Format, p.AsReference, p.DynamicType, true)
	if err != nil {
		return nil, 0, err
	}
	n.item, n.wt = item, wt
	return n, wt, nil
}

// buildValue compiles a standalone value: a list item or a map value.
// Pointers are unwrapped unless tracked as references.
func (r *Registry) buildValue(t reflect.Type, format DataFormat, ref, dynamic, strict bool) (node, wire.Type, error) {
	core := t
	deref := false
	if t.Kind() == reflect.Pointer && !ref {
		core, deref = t.Elem(), true
	}
	n, wt, err := r.buildCore(core, format, ref, dynamic)
	if err != nil {
		return nil, 0, err
	}
	if deref || ref || t.Kind() == reflect.Interface {
		n = &presenceNode{next: n, deref: deref, strict: strict}
	}
	return n, wt, nil
}

func (n *listNode) encode(w *wire.Writer, f *framing, v reflect.Value, st *state) error {
	coll, ok := collectionOf(v)
	if !ok {
		return nil
	}

	if n.packed {
		var items []reflect.Value
		if err := n.each(coll, func(item, _ reflect.Value) error {
			items = append(items, item)
			return nil
		}); err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := w.WriteTag(f.field, wire.Bytes); err != nil {
			return err
		}
		tok := w.StartLengthDelimited()
		for _, item := range items {
			if err := n.item.encode(w, nil, item, st); err != nil {
				return err
			}
		}
		return w.EndLengthDelimited(tok)
	}

	return n.each(coll, func(a, b reflect.Value) error {
		if b.IsValid() {
			return n.pair.encodePair(w, f, a, b, st)
		}
		return n.item.encode(w, f, a, st)
	})
}

// collectionOf unwraps pointers and interfaces on the encode side.
func collectionOf(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if (v.Kind() == reflect.Slice || v.Kind() == reflect.Map) && v.IsNil() {
		return reflect.Value{}, false
	}
	return v, true
}

// each calls fn for every item. Items of two-value iterators arrive as
// (key, value); everything else as (item, invalid).
func (n *listNode) each(coll reflect.Value, fn func(a, b reflect.Value) error) error {
	switch n.shape.Kind {
	case shape.KindSlice, shape.KindArray:
		for i := 0; i < coll.Len(); i++ {
			if err := fn(coll.Index(i), reflect.Value{}); err != nil {
				return err
			}
		}
		return nil
	}

	recv := addressOf(coll)
	switch n.shape.Iter {
	case shape.IterIndex:
		size := int(recv.MethodByName(n.shape.LenName).Call(nil)[0].Int())
		at := recv.MethodByName(n.shape.IterName)
		for i := 0; i < size; i++ {
			if err := fn(at.Call([]reflect.Value{reflect.ValueOf(i)})[0], reflect.Value{}); err != nil {
				return err
			}
		}
		return nil

	case shape.IterSeq, shape.IterSeq2:
		seq := recv.MethodByName(n.shape.IterName).Call(nil)[0]
		if seq.IsNil() {
			return nil
		}
		yieldType := seq.Type().In(0)
		var failed error
		yield := reflect.MakeFunc(yieldType, func(args []reflect.Value) []reflect.Value {
			var b reflect.Value
			if len(args) == 2 {
				b = args[1]
			}
			if failed = fn(args[0], b); failed != nil {
				return []reflect.Value{reflect.ValueOf(false)}
			}
			return []reflect.Value{reflect.ValueOf(true)}
		})
		seq.Call([]reflect.Value{yield})
		return failed
	}
	return errors.Unsupported(errors.PhaseEncode, coll.Type().String(), "collection cannot be iterated")
}

func (n *listNode) decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	coll, err := n.open(v, st)
	if err != nil {
		return err
	}
	prog := st.repeatedFor(n)
	if n.overwrite && !prog.seen {
		coll.Set(reflect.Zero(coll.Type()))
	}
	prog.seen = true

	if wt == wire.Bytes && wire.IsPackable(n.wt) {
		block, err := r.ReadLengthDelimited()
		if err != nil {
			return err
		}
		for block.Remaining() > 0 {
			if err := n.add(block, n.wt, coll, prog, st); err != nil {
				return err
			}
		}
		return nil
	}
	return n.add(r, wt, coll, prog, st)
}

// open returns the settable collection behind v, creating it when needed.
func (n *listNode) open(v reflect.Value, st *state) (reflect.Value, error) {
	for {
		switch v.Kind() {
		case reflect.Pointer:
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()

		case reflect.Interface:
			if v.IsNil() {
				t, err := n.concrete(v.Type(), st)
				if err != nil {
					return reflect.Value{}, err
				}
				v.Set(reflect.New(t))
			}
			inner := v.Elem()
			if inner.Kind() != reflect.Pointer {
				return reflect.Value{}, errors.TypeMismatch(errors.PhaseDecode, st.path, inner.Type().String(), "a pointer to a collection")
			}
			v = inner.Elem()

		default:
			return v, nil
		}
	}
}

// concrete picks the type created for a nil interface collection.
func (n *listNode) concrete(iface reflect.Type, st *state) (reflect.Type, error) {
	t := n.defaultType
	if t == nil {
		var ok bool
		if t, ok = n.reg.defaultCollection(iface); !ok {
			return nil, errors.New(errors.PhaseDecode, errors.KindUnsupportedType).
				Path(st.path...).
				GoType(iface.String()).
				Detail("no concrete type to create; set a default type").
				Build()
		}
	}
	return derefType(t), nil
}

// add decodes one item and appends it.
func (n *listNode) add(r *wire.Reader, wt wire.Type, coll reflect.Value, prog *repeated, st *state) error {
	switch n.shape.Kind {
	case shape.KindArray:
		if prog.next >= coll.Len() {
			return errors.WireFormat(st.path, r.FieldNumber(), "more items than the array holds")
		}
		slot := coll.Index(prog.next)
		prog.next++
		return n.item.decode(r, wt, slot, st)

	case shape.KindSlice:
		item := reflect.New(n.itemType).Elem()
		if err := n.item.decode(r, wt, item, st); err != nil {
			return err
		}
		coll.Set(reflect.Append(coll, item))
		return nil
	}

	item := reflect.New(n.itemType).Elem()
	if err := n.item.decode(r, wt, item, st); err != nil {
		return err
	}
	out := coll.Addr().MethodByName(n.shape.AddName).Call([]reflect.Value{item})
	for _, o := range out {
		if o.Type() == errorType && !o.IsNil() {
			return errors.Wrap(errors.PhaseDecode, errors.KindInvalidOperation, o.Interface().(error), "adding item")
		}
	}
	return nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
