package model

import (
	"reflect"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/model/internal/shape"
	"github.com/wippyai/protomodel/wire"
)

// surrogate delegates the whole wire contract of an entry to another type.
type surrogate struct {
	entry *TypeEntry
	to    reflect.Value // func(T|*T) S|*S
	from  reflect.Value // func(S|*S) T|*T
}

// SetSurrogate makes s stand in for the entry on the wire. to converts a
// value into its surrogate and from converts back; either side may use
// the value or pointer form of its types.
func (e *TypeEntry) SetSurrogate(s reflect.Type, to, from any) error {
	return e.mutate(func() error {
		return e.setSurrogateLocked(s, to, from)
	})
}

func (e *TypeEntry) setSurrogateLocked(s reflect.Type, to, from any) error {
	if s == nil {
		return errors.InvalidOperation(errors.PhaseConfigure, "nil surrogate type")
	}
	s = normalizeType(s)
	if s == e.typ {
		return errors.InvalidOperation(errors.PhaseConfigure, "a type cannot be its own surrogate")
	}
	if shape.IsCollection(s) {
		if known, ok := e.reg.types.Load(s); !ok || known.isCollection() {
			return errors.New(errors.PhaseConfigure, errors.KindSurrogateCollection).
				GoType(e.typ.String()).
				Detail("surrogate %s is collection-shaped", s).
				Build()
		}
	}
	if s.Kind() != reflect.Struct {
		return errors.Unsupported(errors.PhaseConfigure, s.String(), "surrogates must be struct types")
	}

	tv, fv := reflect.ValueOf(to), reflect.ValueOf(from)
	if !isConverter(tv, e.typ, s) || !isConverter(fv, s, e.typ) {
		return errors.New(errors.PhaseConfigure, errors.KindTypeMismatch).
			GoType(e.typ.String()).
			Detail("converters must be func(%s) %s and func(%s) %s, in value or pointer form", e.typ, s, s, e.typ).
			Build()
	}

	se, err := e.reg.findOrAddLocked(s, true, true)
	if err != nil {
		return err
	}
	e.surrogate = &surrogate{entry: se, to: tv, from: fv}
	return nil
}

// isConverter reports whether fn is a one-in, one-out function from in to
// out, allowing a pointer on either side.
func isConverter(fn reflect.Value, in, out reflect.Type) bool {
	if fn.Kind() != reflect.Func {
		return false
	}
	ft := fn.Type()
	if ft.NumIn() != 1 || ft.NumOut() != 1 {
		return false
	}
	arg, res := ft.In(0), ft.Out(0)
	return (arg == in || arg == reflect.PointerTo(in)) && (res == out || res == reflect.PointerTo(out))
}

func (s *surrogate) encode(w *wire.Writer, v reflect.Value, st *state) error {
	for v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() == reflect.Pointer && v.IsNil() {
		return errors.InvalidOperation(errors.PhaseEncode, "cannot serialize a nil value")
	}
	out := s.to.Call([]reflect.Value{adapt(v, s.to.Type().In(0))})[0]
	if out.Kind() == reflect.Pointer && out.IsNil() {
		return errors.InvalidOperation(errors.PhaseEncode, "surrogate conversion returned nil")
	}
	g, err := s.entry.Graph()
	if err != nil {
		return err
	}
	return g.encodeValue(w, out, st)
}

func (s *surrogate) decode(r *wire.Reader, slot reflect.Value, st *state) error {
	g, err := s.entry.Graph()
	if err != nil {
		return err
	}
	tmp := reflect.New(s.entry.typ)
	if err := g.decodeValue(r, tmp.Elem(), st); err != nil {
		return err
	}
	out := s.from.Call([]reflect.Value{adapt(tmp, s.from.Type().In(0))})[0]
	if out.Kind() == reflect.Pointer && out.IsNil() {
		return errors.InvalidOperation(errors.PhaseDecode, "surrogate conversion returned nil")
	}
	for slot.Kind() == reflect.Pointer {
		if slot.IsNil() {
			slot.Set(reflect.New(slot.Type().Elem()))
		}
		slot = slot.Elem()
	}
	v := adapt(out, slot.Type())
	if !v.IsValid() {
		return errors.TypeMismatch(errors.PhaseDecode, st.path, out.Type().String(), slot.Type().String())
	}
	slot.Set(v)
	return nil
}

// adapt converts between the value and pointer forms of v so it can be
// passed as t. It returns an invalid value when neither form fits.
func adapt(v reflect.Value, t reflect.Type) reflect.Value {
	switch {
	case v.Type().AssignableTo(t):
		return v
	case v.Kind() == reflect.Pointer && v.Elem().Type().AssignableTo(t):
		return v.Elem()
	case reflect.PointerTo(v.Type()).AssignableTo(t):
		return addressOf(v)
	}
	return reflect.Value{}
}
