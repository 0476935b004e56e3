package model

import (
	"bytes"
	"net/url"
	"reflect"
	"time"

	"github.com/ericlagergren/decimal"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/model/internal/scalar"
	"github.com/wippyai/protomodel/wire"
)

// node is one step of a compiled graph. encode receives the framing of the
// enclosing field, which is nil for packed items. decode receives a
// settable slot and the wire type of the header just read.
type node interface {
	encode(w *wire.Writer, f *framing, v reflect.Value, st *state) error
	decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error
}

// framing is the field header a core transform writes around its value.
type framing struct {
	field int
	wt    wire.Type
}

// tag writes the header. A nil framing writes nothing.
func (f *framing) tag(w *wire.Writer) error {
	if f == nil {
		return nil
	}
	return w.WriteTag(f.field, f.wt)
}

// begin opens a nested message in either framing.
func (f *framing) begin(w *wire.Writer) (wire.Token, error) {
	if f == nil {
		return wire.Token{}, errors.InvalidOperation(errors.PhaseEncode, "nested message without a field header")
	}
	if f.wt == wire.StartGroup {
		return w.StartGroup(f.field)
	}
	if err := w.WriteTag(f.field, wire.Bytes); err != nil {
		return wire.Token{}, err
	}
	return w.StartLengthDelimited(), nil
}

func (f *framing) end(w *wire.Writer, tok wire.Token) error {
	if f.wt == wire.StartGroup {
		return w.EndGroup(tok)
	}
	return w.EndLengthDelimited(tok)
}

// tagNode is the outermost step: it owns the field header.
type tagNode struct {
	next node
	framing
}

func (n *tagNode) encode(w *wire.Writer, _ *framing, v reflect.Value, st *state) error {
	return n.next.encode(w, &n.framing, v, st)
}

func (n *tagNode) decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	return n.next.decode(r, wt, v, st)
}

// presenceNode skips nil pointers and interfaces on encode. With deref set
// it unwraps pointers, allocating on decode. strict turns a nil into an
// error, which is how repeated items treat it.
type presenceNode struct {
	next   node
	deref  bool
	strict bool
}

func (n *presenceNode) encode(w *wire.Writer, f *framing, v reflect.Value, st *state) error {
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		if n.strict {
			return errors.New(errors.PhaseEncode, errors.KindInvalidOperation).
				Path(st.path...).
				Detail("repeated fields cannot contain nil items").
				Build()
		}
		return nil
	}
	if n.deref && v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return n.next.encode(w, f, v, st)
}

func (n *presenceNode) decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	if n.deref && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return n.next.decode(r, wt, v, st)
}

// defaultNode leaves values equal to the field default off the wire.
type defaultNode struct {
	next node
	def  reflect.Value // invalid means the zero value
	kind scalar.Kind
}

func (n *defaultNode) encode(w *wire.Writer, f *framing, v reflect.Value, st *state) error {
	if n.isDefault(v) {
		return nil
	}
	return n.next.encode(w, f, v, st)
}

func (n *defaultNode) decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	return n.next.decode(r, wt, v, st)
}

func (n *defaultNode) isDefault(v reflect.Value) bool {
	if !n.def.IsValid() {
		switch n.kind {
		case scalar.KindBytes:
			return v.Len() == 0
		case scalar.KindDecimal:
			return addressOf(v).Interface().(*decimal.Big).Sign() == 0
		}
		return v.IsZero()
	}
	switch n.kind {
	case scalar.KindBytes:
		return bytes.Equal(v.Bytes(), n.def.Bytes())
	case scalar.KindDecimal:
		return addressOf(v).Interface().(*decimal.Big).Cmp(addressOf(n.def).Interface().(*decimal.Big)) == 0
	case scalar.KindTime:
		return v.Interface().(time.Time).Equal(n.def.Interface().(time.Time))
	case scalar.KindURL:
		return addressOf(v).Interface().(*url.URL).String() == addressOf(n.def).Interface().(*url.URL).String()
	}
	return v.Equal(n.def)
}

// messageNode is the core transform for registered types. The nested graph
// is fetched on use so building one graph never builds another.
type messageNode struct {
	entry *TypeEntry
}

func (n *messageNode) encode(w *wire.Writer, f *framing, v reflect.Value, st *state) error {
	g, err := n.entry.Graph()
	if err != nil {
		return err
	}
	tok, err := f.begin(w)
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
	return f.end(w, tok)
}

func (n *messageNode) decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	if wt != wire.Bytes && wt != wire.StartGroup {
		return errors.WireFormat(st.path, r.FieldNumber(), "expected a nested message, got "+wire.TypeName(wt))
	}
	g, err := n.entry.Graph()
	if err != nil {
		return err
	}
	sub, err := r.ReadMessage()
	if err != nil {
		return err
	}
	if err := st.enter(n.entry.name); err != nil {
		return err
	}
	if err := g.decodeValue(sub, v, st); err != nil {
		return err
	}
	st.leave()
	return nil
}
