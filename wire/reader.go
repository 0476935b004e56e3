package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/protomodel/errors"
)

// Reader consumes protobuf-framed data from a byte slice. Byte blocks and
// strings returned by the reader alias the input only where documented.
// A Reader is not safe for concurrent use.
type Reader struct {
	buf   []byte
	pos   int
	field int
	typ   Type

	// group is the field number of the enclosing group, or 0.
	group int
	ended bool
}

// NewReader creates a reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Pos returns the number of bytes consumed.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// FieldNumber returns the field number of the last header read.
func (r *Reader) FieldNumber() int {
	return r.field
}

// WireType returns the wire type of the last header read.
func (r *Reader) WireType() Type {
	return r.typ
}

// ReadFieldHeader reads the next field header. It returns field 0 at the end
// of the message: end of input, or the end-group marker of the group being read.
func (r *Reader) ReadFieldHeader() (int, Type, error) {
	if r.ended || r.pos >= len(r.buf) {
		if r.group != 0 && !r.ended {
			return 0, 0, errors.WireFormat(nil, r.group, "group is missing its end marker")
		}
		r.field, r.typ = 0, 0
		return 0, 0, nil
	}
	num, typ, n := protowire.ConsumeTag(r.buf[r.pos:])
	if n < 0 {
		return 0, 0, r.parseError(protowire.ParseError(n))
	}
	r.pos += n

	if typ == EndGroup {
		if int(num) != r.group {
			return 0, 0, errors.WireFormat(nil, int(num), "unexpected end-group marker")
		}
		r.ended = true
		r.field, r.typ = 0, 0
		return 0, 0, nil
	}

	r.field, r.typ = int(num), typ
	return r.field, typ, nil
}

func (r *Reader) ReadVarint() (uint64, error) {
	v, n := protowire.ConsumeVarint(r.buf[r.pos:])
	if n < 0 {
		return 0, r.parseError(protowire.ParseError(n))
	}
	r.pos += n
	return v, nil
}

func (r *Reader) ReadZigZag() (int64, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	return protowire.DecodeZigZag(v), nil
}

func (r *Reader) ReadFixed32() (uint32, error) {
	v, n := protowire.ConsumeFixed32(r.buf[r.pos:])
	if n < 0 {
		return 0, r.parseError(protowire.ParseError(n))
	}
	r.pos += n
	return v, nil
}

func (r *Reader) ReadFixed64() (uint64, error) {
	v, n := protowire.ConsumeFixed64(r.buf[r.pos:])
	if n < 0 {
		return 0, r.parseError(protowire.ParseError(n))
	}
	r.pos += n
	return v, nil
}

// ReadBytes reads a length-prefixed block. The result aliases the input.
func (r *Reader) ReadBytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(r.buf[r.pos:])
	if n < 0 {
		return nil, r.parseError(protowire.ParseError(n))
	}
	r.pos += n
	return v, nil
}

// ReadString reads a length-prefixed string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadLengthDelimited returns a reader over the next length-prefixed block.
func (r *Reader) ReadLengthDelimited() (*Reader, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &Reader{buf: b}, nil
}

// ReadGroup returns a reader over the body of the group whose start header
// was just read. The outer reader is positioned after the end marker.
func (r *Reader) ReadGroup() (*Reader, error) {
	if r.typ != StartGroup {
		return nil, errors.WireFormat(nil, r.field, "not positioned on a group")
	}
	n := protowire.ConsumeFieldValue(protowire.Number(r.field), StartGroup, r.buf[r.pos:])
	if n < 0 {
		return nil, r.parseError(protowire.ParseError(n))
	}
	sub := &Reader{buf: r.buf[r.pos : r.pos+n], group: r.field}
	r.pos += n
	return sub, nil
}

// ReadMessage returns a reader over the current field's nested message,
// whichever framing (length-delimited or group) it was written with.
func (r *Reader) ReadMessage() (*Reader, error) {
	switch r.typ {
	case Bytes:
		return r.ReadLengthDelimited()
	case StartGroup:
		return r.ReadGroup()
	default:
		return nil, errors.WireFormat(nil, r.field, "wire type "+TypeName(r.typ)+" cannot carry a message")
	}
}

// SkipField discards the value of the field whose header was just read.
func (r *Reader) SkipField() error {
	n := protowire.ConsumeFieldValue(protowire.Number(r.field), r.typ, r.buf[r.pos:])
	if n < 0 {
		return r.parseError(protowire.ParseError(n))
	}
	r.pos += n
	return nil
}

// ReadRawField returns the raw encoding of the current field value.
func (r *Reader) ReadRawField() ([]byte, error) {
	start := r.pos
	if err := r.SkipField(); err != nil {
		return nil, err
	}
	return r.buf[start:r.pos], nil
}

func (r *Reader) parseError(cause error) error {
	return errors.New(errors.PhaseDecode, errors.KindWireFormat).
		Field(r.field).
		Detail("malformed input at offset %d", r.pos).
		Cause(cause).
		Build()
}
