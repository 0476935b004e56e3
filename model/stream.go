package model

import (
	"io"
	"iter"
	"reflect"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/wire"
)

// SerializeWithLengthPrefix writes v as one self-delimited record. A
// positive field writes a length-delimited field header before the length,
// which only PrefixBase128 supports.
func (r *Registry) SerializeWithLengthPrefix(w io.Writer, v any, style wire.PrefixStyle, field int) error {
	if field > 0 && style != wire.PrefixBase128 {
		return errors.New(errors.PhaseEncode, errors.KindInvalidFormat).
			Field(field).
			Detail("field headers require the %s prefix style", wire.PrefixBase128).
			Build()
	}
	body := getWriter()
	defer putWriter(body)
	if err := r.encodeTop(body, v); err != nil {
		return err
	}

	hdr, err := wire.AppendPrefix(make([]byte, 0, 16), style, field, body.Len())
	if err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidOperation, err, "write record header")
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidOperation, err, "write record body")
	}
	return nil
}

// DeserializeWithLengthPrefix reads one record from src into dst and returns
// the bytes consumed. Only the record is read; src is left positioned at
// the next one. io.EOF is returned untouched at a clean end of stream.
func (r *Registry) DeserializeWithLengthPrefix(src io.Reader, dst any, style wire.PrefixStyle, field int) (int, error) {
	body, n, err := wire.ReadRecord(src, style, field)
	if err != nil {
		return n, err
	}
	return n, r.Unmarshal(body, dst)
}

// DeserializeItems lazily decodes consecutive records of type t from src.
// Each step reads exactly one record, so the sequence cannot be restarted
// once src has advanced. Iteration stops at a clean end of stream or after
// yielding the first error.
func (r *Registry) DeserializeItems(src io.Reader, t reflect.Type, style wire.PrefixStyle, field int) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		if t == nil {
			yield(nil, errors.InvalidOperation(errors.PhaseDecode, "nil item type"))
			return
		}
		for {
			body, _, err := wire.ReadRecord(src, style, field)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			v, err := r.DeserializeType(t, body)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}
