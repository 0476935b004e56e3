package model

import (
	"reflect"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/wire"
)

// tuple is a positional contract: member i is written under tag i+1 and
// decoded values are passed to the constructor in the same order.
type tuple struct {
	ctor  reflect.Value
	plans []*FieldPlan
}

// SetTupleConstructor makes the entry a tuple. fn takes one parameter per
// member, in order, each of exactly the member's type, and returns T or *T.
func (e *TypeEntry) SetTupleConstructor(fn any, members ...string) error {
	return e.mutate(func() error {
		return e.setTupleLocked(fn, members)
	})
}

func (e *TypeEntry) setTupleLocked(fn any, members []string) error {
	mismatch := func(detail string, args ...any) error {
		return errors.New(errors.PhaseConfigure, errors.KindTypeMismatch).
			GoType(e.typ.String()).
			Detail(detail, args...).
			Build()
	}

	if e.typ.Kind() != reflect.Struct {
		return errors.Unsupported(errors.PhaseConfigure, e.typ.String(), "only structs can be tuples")
	}
	if e.base != nil || len(e.subtypes) > 0 {
		return errors.New(errors.PhaseConfigure, errors.KindInvalidSubType).
			GoType(e.typ.String()).
			Detail("tuples cannot take part in inheritance").
			Build()
	}
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return mismatch("tuple constructor must be a function, not %T", fn)
	}
	ft := fv.Type()
	if ft.NumIn() != len(members) {
		return mismatch("constructor takes %d parameters for %d members", ft.NumIn(), len(members))
	}
	if ft.NumOut() != 1 || (ft.Out(0) != e.typ && ft.Out(0) != reflect.PointerTo(e.typ)) {
		return mismatch("constructor must return %s or *%s", e.typ, e.typ)
	}

	t := &tuple{ctor: fv}
	for i, name := range members {
		sf, ok := e.typ.FieldByName(name)
		if !ok || !sf.IsExported() {
			return errors.UnknownMember(e.typ.String(), name)
		}
		if sf.Type != ft.In(i) {
			return mismatch("parameter %d is %s but member %s is %s", i, ft.In(i), name, sf.Type)
		}
		p, err := newFieldPlan(e.typ, i+1, sf, nil)
		if err != nil {
			return err
		}
		t.plans = append(t.plans, p)
	}
	e.tuple = t
	return nil
}

func (g *Graph) encodeTuple(w *wire.Writer, v reflect.Value, st *state) error {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return errors.InvalidOperation(errors.PhaseEncode, "cannot serialize a nil value")
		}
		v = v.Elem()
	}
	part := addressOf(v).Elem()
	if err := g.entry.fire(SlotBeforeSerialize, part); err != nil {
		return err
	}
	for _, m := range g.fields {
		if err := m.encode(w, part, st); err != nil {
			return err
		}
	}
	return g.entry.fire(SlotAfterSerialize, part)
}

// decodeTuple collects member values and calls the constructor. Members
// missing from the input are passed as zero values.
func (g *Graph) decodeTuple(r *wire.Reader, slot reflect.Value, st *state) error {
	restore := st.pushFrame()
	defer restore()

	args := make([]reflect.Value, len(g.fields))
	for i, m := range g.fields {
		args[i] = reflect.New(m.plan.MemberType).Elem()
		if m.plan.DefaultValue.IsValid() {
			args[i].Set(m.plan.DefaultValue)
		}
	}

	for {
		field, wt, err := r.ReadFieldHeader()
		if err != nil {
			return err
		}
		if field == 0 {
			break
		}
		if field < 1 || field > len(args) {
			if err := r.SkipField(); err != nil {
				return err
			}
			continue
		}
		m := g.fields[field-1]
		st.path = append(st.path, m.plan.Name)
		err = m.root.decode(r, wt, args[field-1], st)
		st.path = st.path[:len(st.path)-1]
		if err != nil {
			return err
		}
	}

	out := g.entry.tuple.ctor.Call(args)[0]
	ptr := out
	if out.Kind() != reflect.Pointer {
		ptr = reflect.New(out.Type())
		ptr.Elem().Set(out)
	} else if out.IsNil() {
		return errors.InvalidOperation(errors.PhaseDecode, "tuple constructor for "+g.entry.typ.String()+" returned nil")
	}
	if err := g.entry.fire(SlotAfterDeserialize, ptr.Elem()); err != nil {
		return err
	}

	for slot.Kind() == reflect.Pointer {
		if slot.IsNil() {
			slot.Set(ptr)
			return nil
		}
		slot = slot.Elem()
	}
	if slot.Kind() == reflect.Struct {
		slot.Set(ptr.Elem())
		return nil
	}
	return assignInstance(slot, ptr, st)
}
