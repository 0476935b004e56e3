package model

import (
	"reflect"
)

// Definition configures an entry fluently. The first failing step is kept
// and every later step is skipped, so a chain needs a single error check at
// Build.
//
//	entry, err := reg.Define(reflect.TypeFor[Point]()).
//		Field(1, "X").
//		Field(2, "Y", model.ZigZag()).
//		Build()
type Definition struct {
	entry *TypeEntry
	err   error
}

// Define registers t without applying probe defaults and returns a builder
// for it. An already registered type is configured further as-is.
func (r *Registry) Define(t reflect.Type) *Definition {
	e, err := r.Add(t, false)
	return &Definition{entry: e, err: err}
}

func (d *Definition) step(fn func(e *TypeEntry) error) *Definition {
	if d.err == nil {
		d.err = fn(d.entry)
	}
	return d
}

// Name sets the contract name.
func (d *Definition) Name(name string) *Definition {
	return d.step(func(e *TypeEntry) error { return e.SetName(name) })
}

// Field adds a field.
func (d *Definition) Field(tag int, member string, opts ...FieldOption) *Definition {
	return d.step(func(e *TypeEntry) error {
		_, err := e.AddField(tag, member, opts...)
		return err
	})
}

// SubType declares derived as a subtype written under tag. format may be
// omitted; only FormatDefault and FormatGroup are accepted.
func (d *Definition) SubType(tag int, derived reflect.Type, format ...DataFormat) *Definition {
	f := FormatDefault
	if len(format) > 0 {
		f = format[0]
	}
	return d.step(func(e *TypeEntry) error { return e.AddSubType(tag, derived, f) })
}

// Surrogate sets a surrogate type with its two converters.
func (d *Definition) Surrogate(s reflect.Type, to, from any) *Definition {
	return d.step(func(e *TypeEntry) error { return e.SetSurrogate(s, to, from) })
}

// Factory sets the construction function.
func (d *Definition) Factory(fn any) *Definition {
	return d.step(func(e *TypeEntry) error { return e.SetFactory(fn) })
}

// Construction selects the construction strategy.
func (d *Definition) Construction(c Construction) *Definition {
	return d.step(func(e *TypeEntry) error { return e.SetConstruction(c) })
}

// Tuple makes the type a tuple built by fn from the named members.
func (d *Definition) Tuple(fn any, members ...string) *Definition {
	return d.step(func(e *TypeEntry) error { return e.SetTupleConstructor(fn, members...) })
}

func (d *Definition) BeforeSerialize(cb Callback) *Definition {
	return d.step(func(e *TypeEntry) error { return e.SetBeforeSerialize(cb) })
}

func (d *Definition) AfterSerialize(cb Callback) *Definition {
	return d.step(func(e *TypeEntry) error { return e.SetAfterSerialize(cb) })
}

func (d *Definition) BeforeDeserialize(cb Callback) *Definition {
	return d.step(func(e *TypeEntry) error { return e.SetBeforeDeserialize(cb) })
}

func (d *Definition) AfterDeserialize(cb Callback) *Definition {
	return d.step(func(e *TypeEntry) error { return e.SetAfterDeserialize(cb) })
}

// Err returns the first error recorded so far.
func (d *Definition) Err() error {
	return d.err
}

// Build returns the configured entry or the first error.
func (d *Definition) Build() (*TypeEntry, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.entry, nil
}
