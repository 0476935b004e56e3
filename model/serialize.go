package model

import (
	"bytes"
	"io"
	"reflect"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/wire"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// graphFor resolves the graph used for values of type t. A non-nil path
// selects the embedded part of the value the graph describes.
func (r *Registry) graphFor(t reflect.Type) (*Graph, []int, error) {
	e, path, err := r.entryFor(normalizeType(t))
	if err != nil {
		return nil, nil, err
	}
	g, err := e.Graph()
	if err != nil {
		return nil, nil, err
	}
	return g, path, nil
}

// Marshal encodes v as a top-level message.
func (r *Registry) Marshal(v any) ([]byte, error) {
	w := getWriter()
	defer putWriter(w)
	if err := r.encodeTop(w, v); err != nil {
		return nil, err
	}
	return bytes.Clone(w.Bytes()), nil
}

// Serialize encodes v and writes it to w.
func (r *Registry) Serialize(w io.Writer, v any) error {
	buf := getWriter()
	defer putWriter(buf)
	if err := r.encodeTop(buf, v); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidOperation, err, "write to sink")
	}
	return nil
}

// SerializeKey encodes v through the entry with the given key. The runtime
// type of v may be any known subtype of that entry.
func (r *Registry) SerializeKey(key int, v any, w *wire.Writer) error {
	e, ok := r.EntryByKey(key)
	if !ok {
		return errors.New(errors.PhaseEncode, errors.KindUnsupportedType).
			Detail("no type registered under key %d", key).
			Build()
	}
	if v == nil {
		return errors.InvalidOperation(errors.PhaseEncode, "cannot serialize a nil value")
	}
	g, err := e.Graph()
	if err != nil {
		return err
	}
	return g.encodeValue(w, reflect.ValueOf(v), newState(r, errors.PhaseEncode))
}

func (r *Registry) encodeTop(w *wire.Writer, v any) error {
	if v == nil {
		return errors.InvalidOperation(errors.PhaseEncode, "cannot serialize a nil value")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return errors.InvalidOperation(errors.PhaseEncode, "cannot serialize a nil value")
	}
	g, _, err := r.graphFor(rv.Type())
	if err != nil {
		return err
	}
	return g.encodeValue(w, rv, newState(r, errors.PhaseEncode))
}

// Unmarshal decodes data into dst, which must be a non-nil pointer. Fields
// absent from data keep their current values.
func (r *Registry) Unmarshal(data []byte, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.InvalidOperation(errors.PhaseDecode, "destination must be a non-nil pointer")
	}
	slot := rv.Elem()
	for slot.Kind() == reflect.Pointer {
		if slot.IsNil() {
			slot.Set(reflect.New(slot.Type().Elem()))
		}
		slot = slot.Elem()
	}

	t := slot.Type()
	if slot.Kind() == reflect.Interface && !slot.IsNil() && t.NumMethod() == 0 {
		t = slot.Elem().Type()
	}
	if t == anyType {
		return errors.InvalidOperation(errors.PhaseDecode, "cannot infer a type for an empty interface destination")
	}
	g, path, err := r.graphFor(t)
	if err != nil {
		return err
	}
	if path != nil && slot.Kind() == reflect.Struct {
		slot = fieldByIndex(slot, path, true)
		for slot.Kind() == reflect.Pointer {
			if slot.IsNil() {
				slot.Set(reflect.New(slot.Type().Elem()))
			}
			slot = slot.Elem()
		}
	}
	return g.decodeValue(wire.NewReader(data), slot, newState(r, errors.PhaseDecode))
}

// Deserialize reads r to the end and decodes it into dst.
func (r *Registry) Deserialize(src io.Reader, dst any) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidOperation, err, "read from source")
	}
	return r.Unmarshal(data, dst)
}

// DeserializeKey decodes one message from src through the entry with the
// given key. A compatible existing value is decoded into in place; otherwise
// a new instance is returned. Structs come back as pointers.
func (r *Registry) DeserializeKey(key int, value any, src *wire.Reader) (any, error) {
	e, ok := r.EntryByKey(key)
	if !ok {
		return nil, errors.New(errors.PhaseDecode, errors.KindUnsupportedType).
			Detail("no type registered under key %d", key).
			Build()
	}
	g, err := e.Graph()
	if err != nil {
		return nil, err
	}
	slot := reflect.New(anyType).Elem()
	if value != nil {
		slot.Set(reflect.ValueOf(value))
	}
	if err := g.decodeValue(src, slot, newState(r, errors.PhaseDecode)); err != nil {
		return nil, err
	}
	return slot.Interface(), nil
}

// DeserializeType decodes data as a new value of type t. Structs come back
// as pointers; for an interface t the concrete type is chosen from the
// subtype fields present in data.
func (r *Registry) DeserializeType(t reflect.Type, data []byte) (any, error) {
	if t == nil {
		return nil, errors.InvalidOperation(errors.PhaseDecode, "nil type")
	}
	g, _, err := r.graphFor(t)
	if err != nil {
		return nil, err
	}
	slot := reflect.New(anyType).Elem()
	if err := g.decodeValue(wire.NewReader(data), slot, newState(r, errors.PhaseDecode)); err != nil {
		return nil, err
	}
	return slot.Interface(), nil
}
