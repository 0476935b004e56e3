package model

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/protomodel/errors"
)

// AddSubType declares derived as a known subtype written under tag. derived
// must implement the entry's interface type, or embed its struct type as an
// anonymous field. format selects length-delimited (default) or group
// framing.
func (e *TypeEntry) AddSubType(tag int, derived reflect.Type, format DataFormat) error {
	return e.mutate(func() error {
		return e.addSubTypeLocked(tag, derived, format)
	})
}

func (e *TypeEntry) addSubTypeLocked(tag int, derived reflect.Type, format DataFormat) error {
	if derived == nil {
		return errors.InvalidOperation(errors.PhaseConfigure, "nil subtype")
	}
	derived = normalizeType(derived)
	invalid := func(detail string, args ...any) error {
		return errors.New(errors.PhaseConfigure, errors.KindInvalidSubType).
			GoType(e.typ.String()).
			Field(tag).
			Detail(detail, args...).
			Build()
	}

	if e.frozen.Load() {
		return errors.Frozen(e.typ.String())
	}
	if e.surrogate != nil {
		return invalid("a type with a surrogate cannot declare subtypes")
	}
	if e.isCollection() {
		return invalid("collection types cannot take part in inheritance")
	}
	if format != FormatDefault && format != FormatGroup {
		return invalid("subtypes are framed as length-delimited or group, not %s", format)
	}
	if derived == e.typ {
		return errors.New(errors.PhaseConfigure, errors.KindCyclicInheritance).
			GoType(e.typ.String()).
			Detail("a type cannot derive from itself").
			Build()
	}
	index, ok := derivation(e.typ, derived)
	if !ok {
		return invalid("%s does not derive from %s", derived, e.typ)
	}
	for _, s := range e.subtypes {
		if s.Derived.typ == derived {
			if s.Tag == tag {
				return nil
			}
			return errors.New(errors.PhaseConfigure, errors.KindDuplicateType).
				GoType(e.typ.String()).
				Detail("%s is already a subtype under tag %d", derived, s.Tag).
				Build()
		}
	}
	if err := e.checkTag(tag); err != nil {
		return err
	}

	d, err := e.reg.findOrAddLocked(derived, true, true)
	if err != nil {
		return err
	}
	if d.isCollection() {
		return invalid("collection types cannot take part in inheritance")
	}
	if d.frozen.Load() {
		return errors.Frozen(d.typ.String())
	}
	if d.base != nil && d.base != e {
		return errors.New(errors.PhaseConfigure, errors.KindInvalidSubType).
			GoType(d.typ.String()).
			Detail("already derives from %s; only one base is allowed", d.base.typ).
			Build()
	}
	if cyclic(e, d) {
		return errors.New(errors.PhaseConfigure, errors.KindCyclicInheritance).
			GoType(d.typ.String()).
			Detail("%s is reachable from %s", d.typ, e.typ).
			Build()
	}

	d.base = e
	d.baseIndex = index
	d.pruneInheritedCallbacks()
	e.subtypes = append(e.subtypes, &SubTypeEntry{Derived: d, Tag: tag, Format: format})
	e.reg.log.Debug("subtype added",
		zapType(e.typ),
		zap.Int("tag", tag),
		zap.Stringer("derived", derived))
	return nil
}

// derivation reports whether derived derives from base. For struct bases
// the returned index locates the anonymous embedded field.
func derivation(base, derived reflect.Type) ([]int, bool) {
	switch base.Kind() {
	case reflect.Interface:
		if derived.Kind() == reflect.Interface {
			return nil, derived.Implements(base)
		}
		return nil, implementsEither(derived, base)
	case reflect.Struct:
		if derived.Kind() != reflect.Struct {
			return nil, false
		}
		for i := 0; i < derived.NumField(); i++ {
			f := derived.Field(i)
			if f.Anonymous && derefType(f.Type) == base && (f.Type == base || f.Type.Elem() == base) {
				return []int{i}, true
			}
		}
	}
	return nil, false
}

// cyclic reports whether attaching d below e would close a loop. Base links
// are walked with a visited set.
func cyclic(e, d *TypeEntry) bool {
	seen := map[*TypeEntry]bool{}
	for x := e; x != nil; x = x.base {
		if x == d || seen[x] {
			return true
		}
		seen[x] = true
	}
	return false
}
