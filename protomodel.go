package protomodel

import (
	"io"
	"iter"
	"reflect"

	"github.com/wippyai/protomodel/model"
	"github.com/wippyai/protomodel/wire"
)

// Marshal encodes v with the default registry.
func Marshal(v any) ([]byte, error) {
	return model.Default().Marshal(v)
}

// Serialize writes the encoding of v to w.
func Serialize(w io.Writer, v any) error {
	return model.Default().Serialize(w, v)
}

// Unmarshal decodes data into dst, which must be a non-nil pointer.
func Unmarshal(data []byte, dst any) error {
	return model.Default().Unmarshal(data, dst)
}

// Deserialize decodes data into a new T.
func Deserialize[T any](data []byte) (T, error) {
	var v T
	err := model.Default().Unmarshal(data, &v)
	return v, err
}

// Register adds T to the default registry, discovering its fields from
// struct tags and contracts when applyDefaults is set.
func Register[T any](applyDefaults bool) (*model.TypeEntry, error) {
	return model.Default().Add(reflect.TypeFor[T](), applyDefaults)
}

// Define starts a builder for T on the default registry.
func Define[T any]() *model.Definition {
	return model.Default().Define(reflect.TypeFor[T]())
}

// SerializeWithLengthPrefix writes v as one self-delimited record.
func SerializeWithLengthPrefix(w io.Writer, v any, style wire.PrefixStyle, field int) error {
	return model.Default().SerializeWithLengthPrefix(w, v, style, field)
}

// Items lazily decodes consecutive length-prefixed records of type T from src.
// Iteration ends at a clean end of stream or after the first error.
func Items[T any](src io.Reader, style wire.PrefixStyle, field int) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			var v T
			body, _, err := wire.ReadRecord(src, style, field)
			if err == io.EOF {
				return
			}
			if err == nil {
				err = model.Default().Unmarshal(body, &v)
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// Schema returns the proto2 schema of T and every type it reaches.
func Schema[T any]() (string, error) {
	return model.Default().Schema(reflect.TypeFor[T]())
}
