package scalar

import (
	"net/url"
	"reflect"
	"time"

	"github.com/ericlagergren/decimal"
	"github.com/google/uuid"
)

type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindBytes
	KindTime
	KindDuration
	KindDecimal
	KindUUID
	KindURL
)

var kindNames = [...]string{
	KindNone:     "none",
	KindBool:     "bool",
	KindInt8:     "int8",
	KindInt16:    "int16",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindUint8:    "uint8",
	KindUint16:   "uint16",
	KindUint32:   "uint32",
	KindUint64:   "uint64",
	KindFloat32:  "float",
	KindFloat64:  "double",
	KindString:   "string",
	KindBytes:    "bytes",
	KindTime:     "timestamp",
	KindDuration: "duration",
	KindDecimal:  "decimal",
	KindUUID:     "guid",
	KindURL:      "uri",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func (k Kind) IsSigned() bool {
	return k >= KindInt8 && k <= KindInt64
}

func (k Kind) IsUnsigned() bool {
	return k >= KindUint8 && k <= KindUint64
}

func (k Kind) IsInteger() bool {
	return k.IsSigned() || k.IsUnsigned()
}

// Is64 reports whether the kind needs 64 bits on the wire.
func (k Kind) Is64() bool {
	return k == KindInt64 || k == KindUint64 || k == KindFloat64
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	decimalType  = reflect.TypeOf(decimal.Big{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
	urlType      = reflect.TypeOf(url.URL{})
	bytesType    = reflect.TypeOf([]byte(nil))
)

// Of classifies t. Named integer types classify as their underlying kind;
// the caller decides whether they are enums.
func Of(t reflect.Type) Kind {
	switch t {
	case timeType:
		return KindTime
	case durationType:
		return KindDuration
	case decimalType:
		return KindDecimal
	case uuidType:
		return KindUUID
	case urlType:
		return KindURL
	}

	switch t.Kind() {
	case reflect.Bool:
		return KindBool
	case reflect.Int8:
		return KindInt8
	case reflect.Int16:
		return KindInt16
	case reflect.Int32:
		return KindInt32
	case reflect.Int64, reflect.Int:
		return KindInt64
	case reflect.Uint8:
		return KindUint8
	case reflect.Uint16:
		return KindUint16
	case reflect.Uint32:
		return KindUint32
	case reflect.Uint64, reflect.Uint:
		return KindUint64
	case reflect.Float32:
		return KindFloat32
	case reflect.Float64:
		return KindFloat64
	case reflect.String:
		return KindString
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes
		}
	}
	return KindNone
}

// IsScalar reports whether t is handled by the core scalar transform.
func IsScalar(t reflect.Type) bool {
	return Of(t) != KindNone
}

// IsNamedInteger reports whether t is a defined integer type, the Go shape
// of an enum.
func IsNamedInteger(t reflect.Type) bool {
	if t.PkgPath() == "" || t == durationType {
		return false
	}
	k := Of(t)
	return k.IsInteger()
}

// BytesType is the canonical byte block type.
func BytesType() reflect.Type {
	return bytesType
}
