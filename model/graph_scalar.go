package model

import (
	"math"
	"net/url"
	"reflect"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/ericlagergren/decimal"
	"github.com/google/uuid"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/model/internal/scalar"
	"github.com/wippyai/protomodel/wire"
)

// scalarNode is the core transform for every scalar kind.
type scalarNode struct {
	typ    reflect.Type
	enum   *enumTable
	kind   scalar.Kind
	format DataFormat
	wt     wire.Type
}

func newScalarNode(t reflect.Type, format DataFormat, enum *enumTable) (*scalarNode, error) {
	wt, err := resolveWireType(format, t, enum != nil, false)
	if err != nil {
		return nil, err
	}
	return &scalarNode{
		typ:    t,
		enum:   enum,
		kind:   scalar.Of(t),
		format: format,
		wt:     wt,
	}, nil
}

func (n *scalarNode) wireType() wire.Type { return n.wt }

func (n *scalarNode) encode(w *wire.Writer, f *framing, v reflect.Value, st *state) error {
	switch n.kind {
	case scalar.KindTime, scalar.KindDuration:
		return n.encodeTime(w, f, v)
	}
	if err := f.tag(w); err != nil {
		return err
	}

	switch {
	case n.kind == scalar.KindBool:
		var b uint64
		if v.Bool() {
			b = 1
		}
		if n.wt == wire.Fixed32 {
			w.WriteFixed32(uint32(b))
		} else {
			w.WriteVarint(b)
		}

	case n.kind.IsSigned():
		i := v.Int()
		if n.enum != nil {
			var err error
			if i, err = n.enum.wire(i); err != nil {
				return err
			}
		}
		n.writeSigned(w, i)

	case n.kind.IsUnsigned():
		u := v.Uint()
		if n.enum != nil {
			i, err := safecast.Convert[int64](u)
			if err != nil {
				return errors.Overflow(errors.PhaseEncode, st.path, u, "enum value")
			}
			if i, err = n.enum.wire(i); err != nil {
				return err
			}
			w.WriteVarint(uint64(i))
			return nil
		}
		switch n.wt {
		case wire.Fixed32:
			w.WriteFixed32(uint32(u))
		case wire.Fixed64:
			w.WriteFixed64(u)
		default:
			w.WriteVarint(u)
		}

	case n.kind == scalar.KindFloat32:
		w.WriteFixed32(math.Float32bits(float32(v.Float())))
	case n.kind == scalar.KindFloat64:
		w.WriteFixed64(math.Float64bits(v.Float()))
	case n.kind == scalar.KindString:
		w.WriteString(v.String())
	case n.kind == scalar.KindBytes:
		w.WriteBytes(v.Bytes())
	case n.kind == scalar.KindDecimal:
		d := addressOf(v).Interface().(*decimal.Big)
		w.WriteString(d.String())
	case n.kind == scalar.KindUUID:
		id := v.Interface().(uuid.UUID)
		w.WriteBytes(id[:])
	case n.kind == scalar.KindURL:
		u := addressOf(v).Interface().(*url.URL)
		w.WriteString(u.String())
	default:
		return errors.Unsupported(errors.PhaseEncode, n.typ.String(), "no scalar encoding")
	}
	return nil
}

func (n *scalarNode) writeSigned(w *wire.Writer, i int64) {
	switch {
	case n.format == FormatZigZag:
		w.WriteZigZag(i)
	case n.wt == wire.Fixed32:
		w.WriteFixed32(uint32(int32(i)))
	case n.wt == wire.Fixed64:
		w.WriteFixed64(uint64(i))
	default:
		// Negative values sign-extend to ten bytes.
		w.WriteVarint(uint64(i))
	}
}

// encodeTime writes a timestamp or duration. The default form is the
// well-known {seconds, nanos} message.
func (n *scalarNode) encodeTime(w *wire.Writer, f *framing, v reflect.Value) error {
	var secs, nanos int64
	if n.kind == scalar.KindTime {
		t := v.Interface().(time.Time)
		if n.wt == wire.Fixed64 {
			if err := f.tag(w); err != nil {
				return err
			}
			w.WriteFixed64(uint64(t.UnixNano()))
			return nil
		}
		secs, nanos = t.Unix(), int64(t.Nanosecond())
	} else {
		d := time.Duration(v.Int())
		if n.wt == wire.Fixed64 {
			if err := f.tag(w); err != nil {
				return err
			}
			w.WriteFixed64(uint64(d))
			return nil
		}
		secs, nanos = int64(d/time.Second), int64(d%time.Second)
	}

	tok, err := f.begin(w)
	if err != nil {
		return err
	}
	if secs != 0 {
		_ = w.WriteTag(1, wire.Varint)
		w.WriteVarint(uint64(secs))
	}
	if nanos != 0 {
		_ = w.WriteTag(2, wire.Varint)
		w.WriteVarint(uint64(nanos))
	}
	return f.end(w, tok)
}

func (n *scalarNode) decode(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	if n.kind == scalar.KindTime || n.kind == scalar.KindDuration {
		return n.decodeTime(r, wt, v, st)
	}
	if wt != n.wt {
		return n.mismatch(wt, st)
	}

	switch {
	case n.kind == scalar.KindBool:
		u, err := n.readUnsigned(r)
		if err != nil {
			return err
		}
		v.SetBool(u != 0)

	case n.kind.IsSigned():
		i, err := n.readSigned(r)
		if err != nil {
			return err
		}
		if n.enum != nil {
			if i, err = n.enum.value(i); err != nil {
				return err
			}
		}
		return setInt(v, n.kind, i, st)

	case n.kind.IsUnsigned():
		u, err := n.readUnsigned(r)
		if err != nil {
			return err
		}
		if n.enum != nil {
			i, err := n.enum.value(int64(u))
			if err != nil {
				return err
			}
			if i < 0 {
				return errors.Overflow(errors.PhaseDecode, st.path, i, n.typ.String())
			}
			u = uint64(i)
		}
		return setUint(v, n.kind, u, st)

	case n.kind == scalar.KindFloat32:
		u, err := r.ReadFixed32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(math.Float32frombits(u)))
	case n.kind == scalar.KindFloat64:
		u, err := r.ReadFixed64()
		if err != nil {
			return err
		}
		v.SetFloat(math.Float64frombits(u))

	case n.kind == scalar.KindString:
		s, err := r.ReadString()
		if err != nil {
			return err
		}
		v.SetString(s)

	case n.kind == scalar.KindBytes:
		b, err := r.ReadBytes()
		if err != nil {
			return err
		}
		v.SetBytes(append([]byte{}, b...))

	case n.kind == scalar.KindDecimal:
		s, err := r.ReadString()
		if err != nil {
			return err
		}
		d := v.Addr().Interface().(*decimal.Big)
		if _, ok := d.SetString(s); !ok {
			return errors.WireFormat(st.path, 0, "invalid decimal "+s)
		}

	case n.kind == scalar.KindUUID:
		b, err := r.ReadBytes()
		if err != nil {
			return err
		}
		id, err := uuid.FromBytes(b)
		if err != nil {
			return errors.Wrap(errors.PhaseDecode, errors.KindWireFormat, err, "invalid guid")
		}
		v.Set(reflect.ValueOf(id))

	case n.kind == scalar.KindURL:
		s, err := r.ReadString()
		if err != nil {
			return err
		}
		u, err := url.Parse(s)
		if err != nil {
			return errors.Wrap(errors.PhaseDecode, errors.KindWireFormat, err, "invalid uri")
		}
		v.Set(reflect.ValueOf(*u))

	default:
		return errors.Unsupported(errors.PhaseDecode, n.typ.String(), "no scalar decoding")
	}
	return nil
}

func (n *scalarNode) readSigned(r *wire.Reader) (int64, error) {
	switch n.wt {
	case wire.Fixed32:
		u, err := r.ReadFixed32()
		return int64(int32(u)), err
	case wire.Fixed64:
		u, err := r.ReadFixed64()
		return int64(u), err
	}
	if n.format == FormatZigZag {
		return r.ReadZigZag()
	}
	u, err := r.ReadVarint()
	return int64(u), err
}

func (n *scalarNode) readUnsigned(r *wire.Reader) (uint64, error) {
	switch n.wt {
	case wire.Fixed32:
		u, err := r.ReadFixed32()
		return uint64(u), err
	case wire.Fixed64:
		return r.ReadFixed64()
	}
	return r.ReadVarint()
}

func (n *scalarNode) decodeTime(r *wire.Reader, wt wire.Type, v reflect.Value, st *state) error {
	if n.wt == wire.Fixed64 {
		if wt != wire.Fixed64 {
			return n.mismatch(wt, st)
		}
		u, err := r.ReadFixed64()
		if err != nil {
			return err
		}
		if n.kind == scalar.KindTime {
			v.Set(reflect.ValueOf(time.Unix(0, int64(u)).UTC()))
		} else {
			v.SetInt(int64(u))
		}
		return nil
	}

	if wt != wire.Bytes && wt != wire.StartGroup {
		return n.mismatch(wt, st)
	}
	sub, err := r.ReadMessage()
	if err != nil {
		return err
	}
	var secs, nanos int64
	for {
		field, ft, err := sub.ReadFieldHeader()
		if err != nil {
			return err
		}
		if field == 0 {
			break
		}
		switch {
		case field == 1 && ft == wire.Varint:
			u, err := sub.ReadVarint()
			if err != nil {
				return err
			}
			secs = int64(u)
		case field == 2 && ft == wire.Varint:
			u, err := sub.ReadVarint()
			if err != nil {
				return err
			}
			nanos = int64(u)
		default:
			if err := sub.SkipField(); err != nil {
				return err
			}
		}
	}

	if n.kind == scalar.KindTime {
		v.Set(reflect.ValueOf(time.Unix(secs, nanos).UTC()))
		return nil
	}
	if secs > math.MaxInt64/int64(time.Second) || secs < math.MinInt64/int64(time.Second) {
		return errors.Overflow(errors.PhaseDecode, st.path, secs, "time.Duration")
	}
	v.SetInt(secs*int64(time.Second) + nanos)
	return nil
}

func (n *scalarNode) mismatch(got wire.Type, st *state) error {
	return errors.WireFormat(st.path, 0, "expected wire type "+wire.TypeName(n.wt)+", got "+wire.TypeName(got))
}

// setInt narrows i into v's width.
func setInt(v reflect.Value, k scalar.Kind, i int64, st *state) error {
	var err error
	switch k {
	case scalar.KindInt8:
		_, err = safecast.Convert[int8](i)
	case scalar.KindInt16:
		_, err = safecast.Convert[int16](i)
	case scalar.KindInt32:
		_, err = safecast.Convert[int32](i)
	}
	if err != nil || v.OverflowInt(i) {
		return errors.Overflow(errors.PhaseDecode, st.path, i, v.Type().String())
	}
	v.SetInt(i)
	return nil
}

// setUint narrows u into v's width.
func setUint(v reflect.Value, k scalar.Kind, u uint64, st *state) error {
	var err error
	switch k {
	case scalar.KindUint8:
		_, err = safecast.Convert[uint8](u)
	case scalar.KindUint16:
		_, err = safecast.Convert[uint16](u)
	case scalar.KindUint32:
		_, err = safecast.Convert[uint32](u)
	}
	if err != nil || v.OverflowUint(u) {
		return errors.Overflow(errors.PhaseDecode, st.path, u, v.Type().String())
	}
	v.SetUint(u)
	return nil
}

// addressOf returns a pointer to v, copying when v is not addressable.
func addressOf(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v.Addr()
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	return p
}
