package model

import (
	"reflect"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/model/internal/scalar"
	"github.com/wippyai/protomodel/wire"
)

// resolveWireType is the one table mapping a declared type and data format
// to a wire type. Encoding and decoding both consult it. forceLD is set for
// reference-tracked and dynamically typed values, which are always
// length-delimited.
func resolveWireType(format DataFormat, t reflect.Type, enum, forceLD bool) (wire.Type, error) {
	invalid := func() (wire.Type, error) {
		return 0, errors.New(errors.PhaseConfigure, errors.KindInvalidFormat).
			GoType(t.String()).
			Detail("data format %s does not apply", format).
			Build()
	}

	if enum {
		if format != FormatDefault && format != FormatTwosComplement {
			return invalid()
		}
		return wire.Varint, nil
	}

	k := scalar.Of(t)
	switch {
	case k == scalar.KindBool:
		switch format {
		case FormatDefault, FormatTwosComplement:
			return wire.Varint, nil
		case FormatFixedSize:
			return wire.Fixed32, nil
		}
		return invalid()

	case k.IsSigned():
		switch format {
		case FormatDefault, FormatTwosComplement, FormatZigZag:
			return wire.Varint, nil
		case FormatFixedSize:
			if k.Is64() {
				return wire.Fixed64, nil
			}
			return wire.Fixed32, nil
		}
		return invalid()

	case k.IsUnsigned():
		switch format {
		case FormatDefault, FormatTwosComplement:
			return wire.Varint, nil
		case FormatFixedSize:
			if k.Is64() {
				return wire.Fixed64, nil
			}
			return wire.Fixed32, nil
		case FormatZigZag:
			return 0, errors.New(errors.PhaseConfigure, errors.KindInvalidFormat).
				GoType(t.String()).
				Detail("zig-zag encoding needs a signed integer").
				Build()
		}
		return invalid()

	case k == scalar.KindFloat32:
		if format == FormatZigZag || format == FormatGroup {
			return invalid()
		}
		return wire.Fixed32, nil

	case k == scalar.KindFloat64:
		if format == FormatZigZag || format == FormatGroup {
			return invalid()
		}
		return wire.Fixed64, nil

	case k == scalar.KindTime || k == scalar.KindDuration:
		switch format {
		case FormatDefault:
			return wire.Bytes, nil
		case FormatFixedSize:
			return wire.Fixed64, nil
		case FormatGroup:
			if forceLD {
				return wire.Bytes, nil
			}
			return wire.StartGroup, nil
		}
		return invalid()

	case k != scalar.KindNone:
		// string, bytes, decimal, uuid, url
		if format != FormatDefault {
			return invalid()
		}
		return wire.Bytes, nil
	}

	if t.Kind() != reflect.Struct && t.Kind() != reflect.Interface {
		return 0, errors.Unsupported(errors.PhaseConfigure, t.String(), "no wire mapping for this kind")
	}
	switch format {
	case FormatDefault:
		return wire.Bytes, nil
	case FormatGroup:
		if forceLD {
			return wire.Bytes, nil
		}
		return wire.StartGroup, nil
	}
	return invalid()
}
