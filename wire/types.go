package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Type is the on-the-wire framing category of a field.
type Type = protowire.Type

const (
	Varint     Type = protowire.VarintType
	Fixed32    Type = protowire.Fixed32Type
	Fixed64    Type = protowire.Fixed64Type
	Bytes      Type = protowire.BytesType
	StartGroup Type = protowire.StartGroupType
	EndGroup   Type = protowire.EndGroupType
)

// Field number limits.
const (
	MinField = int(protowire.MinValidNumber)
	MaxField = int(protowire.MaxValidNumber)
)

// TypeName returns the protobuf name of a wire type.
func TypeName(t Type) string {
	switch t {
	case Varint:
		return "varint"
	case Fixed32:
		return "fixed32"
	case Fixed64:
		return "fixed64"
	case Bytes:
		return "bytes"
	case StartGroup:
		return "start_group"
	case EndGroup:
		return "end_group"
	default:
		return "unknown"
	}
}

// IsPackable reports whether values of this wire type can share one packed
// length-delimited block.
func IsPackable(t Type) bool {
	return t == Varint || t == Fixed32 || t == Fixed64
}

// EncodeZigZag maps signed integers onto unsigned so small magnitudes stay small.
func EncodeZigZag(v int64) uint64 {
	return protowire.EncodeZigZag(v)
}

// DecodeZigZag reverses EncodeZigZag.
func DecodeZigZag(v uint64) int64 {
	return protowire.DecodeZigZag(v)
}

// SizeVarint returns the encoded size of v.
func SizeVarint(v uint64) int {
	return protowire.SizeVarint(v)
}
