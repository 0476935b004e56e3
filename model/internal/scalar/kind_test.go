package scalar

import (
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/ericlagergren/decimal"
	"github.com/google/uuid"
)

type color int32

type payload []byte

func TestOf(t *testing.T) {
	tests := []struct {
		value any
		want  Kind
	}{
		{true, KindBool},
		{int8(0), KindInt8},
		{int16(0), KindInt16},
		{int32(0), KindInt32},
		{int64(0), KindInt64},
		{0, KindInt64},
		{uint8(0), KindUint8},
		{uint16(0), KindUint16},
		{uint32(0), KindUint32},
		{uint64(0), KindUint64},
		{uint(0), KindUint64},
		{float32(0), KindFloat32},
		{float64(0), KindFloat64},
		{"", KindString},
		{[]byte(nil), KindBytes},
		{payload(nil), KindBytes},
		{time.Time{}, KindTime},
		{time.Duration(0), KindDuration},
		{decimal.Big{}, KindDecimal},
		{uuid.UUID{}, KindUUID},
		{url.URL{}, KindURL},
		{color(0), KindInt32},
		{struct{}{}, KindNone},
		{[]int32(nil), KindNone},
		{map[string]int{}, KindNone},
	}

	for _, tt := range tests {
		typ := reflect.TypeOf(tt.value)
		t.Run(typ.String(), func(t *testing.T) {
			if got := Of(typ); got != tt.want {
				t.Errorf("Of(%v) = %v, want %v", typ, got, tt.want)
			}
		})
	}
}

func TestKindPredicates(t *testing.T) {
	if !KindInt16.IsSigned() || KindInt16.IsUnsigned() {
		t.Error("int16 should be signed only")
	}
	if !KindUint64.IsUnsigned() || !KindUint64.Is64() {
		t.Error("uint64 should be unsigned and 64-bit")
	}
	if KindFloat32.IsInteger() {
		t.Error("float should not be an integer kind")
	}
	if KindString.String() != "string" || Kind(200).String() != "unknown" {
		t.Error("unexpected kind names")
	}
}

func TestIsNamedInteger(t *testing.T) {
	if !IsNamedInteger(reflect.TypeOf(color(0))) {
		t.Error("color should be a named integer")
	}
	if IsNamedInteger(reflect.TypeOf(int32(0))) {
		t.Error("int32 is not named")
	}
	if IsNamedInteger(reflect.TypeOf(time.Duration(0))) {
		t.Error("duration is a well-known scalar, not an enum")
	}
}
