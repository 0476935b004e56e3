package model

import (
	"reflect"

	"github.com/wippyai/protomodel/errors"
)

// Callback is a lifecycle hook. It receives a pointer to the part of the
// value described by the entry that owns the callback.
type Callback func(v any) error

// CallbackSlot names one of the four lifecycle hooks.
type CallbackSlot uint8

const (
	SlotBeforeSerialize CallbackSlot = iota
	SlotAfterSerialize
	SlotBeforeDeserialize
	SlotAfterDeserialize

	callbackSlots = 4
)

func (s CallbackSlot) String() string {
	switch s {
	case SlotBeforeSerialize:
		return "before-serialize"
	case SlotAfterSerialize:
		return "after-serialize"
	case SlotBeforeDeserialize:
		return "before-deserialize"
	case SlotAfterDeserialize:
		return "after-deserialize"
	default:
		return "unknown"
	}
}

// Types implementing these interfaces get the matching slot wired during
// default configuration.
type (
	BeforeSerializer interface {
		BeforeProtoSerialize() error
	}
	AfterSerializer interface {
		AfterProtoSerialize() error
	}
	BeforeDeserializer interface {
		BeforeProtoDeserialize() error
	}
	AfterDeserializer interface {
		AfterProtoDeserialize() error
	}
)

var callbackInterfaces = [callbackSlots]reflect.Type{
	SlotBeforeSerialize:   reflect.TypeOf((*BeforeSerializer)(nil)).Elem(),
	SlotAfterSerialize:    reflect.TypeOf((*AfterSerializer)(nil)).Elem(),
	SlotBeforeDeserialize: reflect.TypeOf((*BeforeDeserializer)(nil)).Elem(),
	SlotAfterDeserialize:  reflect.TypeOf((*AfterDeserializer)(nil)).Elem(),
}

func interfaceCallback(slot CallbackSlot) Callback {
	switch slot {
	case SlotBeforeSerialize:
		return func(v any) error { return v.(BeforeSerializer).BeforeProtoSerialize() }
	case SlotAfterSerialize:
		return func(v any) error { return v.(AfterSerializer).AfterProtoSerialize() }
	case SlotBeforeDeserialize:
		return func(v any) error { return v.(BeforeDeserializer).BeforeProtoDeserialize() }
	default:
		return func(v any) error { return v.(AfterDeserializer).AfterProtoDeserialize() }
	}
}

// SetCallback installs cb in slot. Each slot takes at most one callback.
func (e *TypeEntry) SetCallback(slot CallbackSlot, cb Callback) error {
	return e.mutate(func() error {
		return e.setCallbackLocked(slot, cb)
	})
}

func (e *TypeEntry) SetBeforeSerialize(cb Callback) error {
	return e.SetCallback(SlotBeforeSerialize, cb)
}

func (e *TypeEntry) SetAfterSerialize(cb Callback) error {
	return e.SetCallback(SlotAfterSerialize, cb)
}

func (e *TypeEntry) SetBeforeDeserialize(cb Callback) error {
	return e.SetCallback(SlotBeforeDeserialize, cb)
}

func (e *TypeEntry) SetAfterDeserialize(cb Callback) error {
	return e.SetCallback(SlotAfterDeserialize, cb)
}

func (e *TypeEntry) setCallbackLocked(slot CallbackSlot, cb Callback) error {
	if slot >= callbackSlots || cb == nil {
		return errors.InvalidOperation(errors.PhaseConfigure, "invalid callback")
	}
	if e.callbacks[slot] != nil && !e.autoWired[slot] {
		return errors.DuplicateCallback(e.typ.String(), slot.String())
	}
	e.callbacks[slot] = cb
	e.autoWired[slot] = false
	return nil
}

// wireCallbackInterfaces fills empty slots from implemented interfaces.
// Methods promoted from an embedded base are left to the base entry so a
// hook does not fire twice.
func (e *TypeEntry) wireCallbackInterfaces() {
	if e.typ.Kind() != reflect.Struct {
		return
	}
	pt := reflect.PointerTo(e.typ)
	for slot, iface := range callbackInterfaces {
		if e.callbacks[slot] != nil || !pt.Implements(iface) {
			continue
		}
		if e.promotedFromBase(iface) {
			continue
		}
		e.callbacks[slot] = interfaceCallback(CallbackSlot(slot))
		e.autoWired[slot] = true
	}
}

// pruneInheritedCallbacks drops interface-wired slots that turn out to be
// promoted once the base is known.
func (e *TypeEntry) pruneInheritedCallbacks() {
	for slot, iface := range callbackInterfaces {
		if e.autoWired[slot] && e.promotedFromBase(iface) {
			e.callbacks[slot] = nil
			e.autoWired[slot] = false
		}
	}
}

func (e *TypeEntry) promotedFromBase(iface reflect.Type) bool {
	return e.base != nil && e.base.typ.Kind() == reflect.Struct && reflect.PointerTo(e.base.typ).Implements(iface)
}

// fire runs the callback in slot against part, an addressable value.
func (e *TypeEntry) fire(slot CallbackSlot, part reflect.Value) error {
	cb := e.callbacks[slot]
	if cb == nil {
		return nil
	}
	arg := part
	if part.Kind() != reflect.Pointer && part.CanAddr() {
		arg = part.Addr()
	}
	if err := cb(arg.Interface()); err != nil {
		phase := errors.PhaseEncode
		if slot >= SlotBeforeDeserialize {
			phase = errors.PhaseDecode
		}
		return errors.New(phase, errors.KindInvalidOperation).
			GoType(e.typ.String()).
			Detail("%s callback failed", slot).
			Cause(err).
			Build()
	}
	return nil
}

// fireBeforeDeserialize runs before-deserialize hooks from the most distant
// ancestor down to the concrete entry.
func fireBeforeDeserialize(concrete *TypeEntry, obj reflect.Value) error {
	for _, level := range concrete.chain() {
		if err := level.fire(SlotBeforeDeserialize, partOf(obj, concrete, level, true)); err != nil {
			return err
		}
	}
	return nil
}
