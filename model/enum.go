package model

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/model/internal/scalar"
)

// EnumValue maps one Go constant of an enum type to its wire number.
type EnumValue struct {
	Name      string
	Value     int64
	WireValue int64
}

// EnumValuer is implemented by named integer types that declare their own
// value table. Without a table, named integers pass through as their
// underlying integer.
type EnumValuer interface {
	ProtoEnumValues() []EnumValue
}

var enumValuerType = reflect.TypeOf((*EnumValuer)(nil)).Elem()

type enumTable struct {
	typ      reflect.Type
	toWire   map[int64]int64
	fromWire map[int64]int64
	values   []EnumValue
	sealed   atomic.Bool
}

func newEnumTable(t reflect.Type, values []EnumValue) (*enumTable, error) {
	tbl := &enumTable{
		typ:      t,
		values:   append([]EnumValue(nil), values...),
		toWire:   make(map[int64]int64, len(values)),
		fromWire: make(map[int64]int64, len(values)),
	}
	for _, v := range values {
		if _, dup := tbl.fromWire[v.WireValue]; dup {
			return nil, errors.New(errors.PhaseConfigure, errors.KindDuplicateTag).
				GoType(t.String()).
				Field(int(v.WireValue)).
				Detail("enum wire value %d is declared twice", v.WireValue).
				Build()
		}
		if _, dup := tbl.toWire[v.Value]; dup {
			return nil, errors.New(errors.PhaseConfigure, errors.KindDuplicateTag).
				GoType(t.String()).
				Detail("enum value %d is declared twice", v.Value).
				Build()
		}
		tbl.toWire[v.Value] = v.WireValue
		tbl.fromWire[v.WireValue] = v.Value
	}
	return tbl, nil
}

func (t *enumTable) wire(v int64) (int64, error) {
	w, ok := t.toWire[v]
	if !ok {
		return 0, errors.New(errors.PhaseEncode, errors.KindWireFormat).
			GoType(t.typ.String()).
			Value(v).
			Detail("value %d is not defined for the enum", v).
			Build()
	}
	return w, nil
}

func (t *enumTable) value(w int64) (int64, error) {
	v, ok := t.fromWire[w]
	if !ok {
		return 0, errors.New(errors.PhaseDecode, errors.KindWireFormat).
			GoType(t.typ.String()).
			Value(w).
			Detail("wire value %d is not defined for the enum", w).
			Build()
	}
	return v, nil
}

// AddEnum registers a value table for a named integer type. Tables are
// sealed once a graph uses them.
func (r *Registry) AddEnum(t reflect.Type, values ...EnumValue) error {
	if t == nil || !scalar.IsNamedInteger(t) {
		return errors.New(errors.PhaseConfigure, errors.KindUnsupportedType).
			GoType(fmt.Sprint(t)).
			Detail("enums must be named integer types").
			Build()
	}
	return r.withLock(func() error {
		if old, ok := r.enums.Load(t); ok && old.sealed.Load() {
			return errors.Frozen(t.String())
		}
		tbl, err := newEnumTable(t, values)
		if err != nil {
			return err
		}
		r.enums.Store(t, tbl)
		r.log.Debug("enum registered", zapType(t))
		return nil
	})
}

// enumForLocked returns the value table for t, discovering it from EnumValuer.
// A nil table means pass-through. Must be called with the lock held.
func (r *Registry) enumForLocked(t reflect.Type) (*enumTable, error) {
	if !scalar.IsNamedInteger(t) {
		return nil, nil
	}
	if tbl, ok := r.enums.Load(t); ok {
		tbl.sealed.Store(true)
		return tbl, nil
	}
	if !t.Implements(enumValuerType) {
		return nil, nil
	}
	values := reflect.Zero(t).Interface().(EnumValuer).ProtoEnumValues()
	tbl, err := newEnumTable(t, values)
	if err != nil {
		return nil, err
	}
	tbl.sealed.Store(true)
	r.enums.Store(t, tbl)
	return tbl, nil
}

// Enum returns the registered values of an enum type.
func (r *Registry) Enum(t reflect.Type) ([]EnumValue, bool) {
	tbl, ok := r.enums.Load(t)
	if !ok {
		return nil, false
	}
	return append([]EnumValue(nil), tbl.values...), true
}
