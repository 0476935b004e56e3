package main

import (
	"fmt"
	"math"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/wippyai/protomodel/wire"
)

// maxNest bounds how deep byte blocks are speculatively parsed as messages.
const maxNest = 32

// wireField is one decoded field of an untyped payload.
type wireField struct {
	Num    int
	Type   wire.Type
	Offset int
	// Raw is the payload of a byte block or the body of a group.
	Raw      []byte
	Value    string
	Children []wireField
}

// IsBlock reports whether the field carries a nested payload.
func (f *wireField) IsBlock() bool {
	return f.Type == wire.Bytes || f.Type == wire.StartGroup
}

// parseWire decodes every field of data without a schema. Byte blocks that
// parse completely as a message and are not printable text get Children.
func parseWire(data []byte) ([]wireField, error) {
	return parseFields(wire.NewReader(data), 0, 0)
}

func parseFields(r *wire.Reader, base, depth int) ([]wireField, error) {
	var out []wireField
	for {
		start := r.Pos()
		num, typ, err := r.ReadFieldHeader()
		if err != nil {
			return out, err
		}
		if num == 0 {
			return out, nil
		}

		f := wireField{Num: num, Type: typ, Offset: base + start}
		switch typ {
		case wire.Varint:
			v, err := r.ReadVarint()
			if err != nil {
				return out, err
			}
			f.Value = fmt.Sprintf("%d (sint %d)", v, wire.DecodeZigZag(v))

		case wire.Fixed32:
			v, err := r.ReadFixed32()
			if err != nil {
				return out, err
			}
			f.Value = fmt.Sprintf("%d (float %g)", v, math.Float32frombits(v))

		case wire.Fixed64:
			v, err := r.ReadFixed64()
			if err != nil {
				return out, err
			}
			f.Value = fmt.Sprintf("%d (double %g)", v, math.Float64frombits(v))

		case wire.Bytes:
			b, err := r.ReadBytes()
			if err != nil {
				return out, err
			}
			f.Raw = b
			f.Value = describeBytes(b)
			if depth < maxNest && len(b) > 0 && !isText(b) {
				if kids, err := parseFields(wire.NewReader(b), base+r.Pos()-len(b), depth+1); err == nil {
					f.Children = kids
				}
			}

		case wire.StartGroup:
			bodyStart := r.Pos()
			raw, err := r.ReadRawField()
			if err != nil {
				return out, err
			}
			f.Raw = raw[:len(raw)-wire.SizeVarint(uint64(num)<<3|uint64(wire.EndGroup))]
			f.Value = fmt.Sprintf("group, %d bytes", len(f.Raw))
			if depth >= maxNest {
				break
			}
			kids, err := parseFields(wire.NewReader(f.Raw), base+bodyStart, depth+1)
			if err != nil {
				return out, err
			}
			f.Children = kids

		default:
			return out, fmt.Errorf("offset %d: unexpected wire type %s", f.Offset, wire.TypeName(typ))
		}
		out = append(out, f)
	}
}

func isText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func describeBytes(b []byte) string {
	if len(b) == 0 {
		return `""`
	}
	if isText(b) {
		return strconv.Quote(string(b))
	}
	const limit = 24
	if len(b) > limit {
		return fmt.Sprintf("% x ... (%d bytes)", b[:limit], len(b))
	}
	return fmt.Sprintf("% x", b)
}
