package wire

import (
	"encoding/binary"
	stderrors "errors"
	"io"

	"github.com/ccoveille/go-safecast"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/protomodel/errors"
)

// PrefixStyle selects how a self-delimited record announces its length.
type PrefixStyle uint8

const (
	// PrefixBase128 is a varint length, optionally preceded by a
	// length-delimited field header.
	PrefixBase128 PrefixStyle = iota + 1
	// PrefixFixed32 is a 4-byte little-endian length.
	PrefixFixed32
	// PrefixFixed32BigEndian is a 4-byte big-endian length.
	PrefixFixed32BigEndian
)

func (s PrefixStyle) String() string {
	switch s {
	case PrefixBase128:
		return "base128"
	case PrefixFixed32:
		return "fixed32"
	case PrefixFixed32BigEndian:
		return "fixed32be"
	default:
		return "unknown"
	}
}

// ParsePrefixStyle maps a style name back to its value.
func ParsePrefixStyle(s string) (PrefixStyle, bool) {
	switch s {
	case "base128", "varint":
		return PrefixBase128, true
	case "fixed32":
		return PrefixFixed32, true
	case "fixed32be":
		return PrefixFixed32BigEndian, true
	}
	return 0, false
}

// MaxRecordSize bounds a single prefixed record.
const MaxRecordSize = 1 << 30

// ErrOverflow is returned when a varint exceeds 64 bits.
var ErrOverflow = stderrors.New("varint: overflow")

// AppendPrefix appends the header for a record of the given length. A
// positive field writes a length-delimited field header first; that is only
// meaningful for PrefixBase128.
func AppendPrefix(b []byte, style PrefixStyle, field, length int) ([]byte, error) {
	n, err := safecast.Convert[uint32](length)
	if err != nil {
		return b, errors.Overflow(errors.PhaseEncode, nil, length, "record length")
	}
	switch style {
	case PrefixBase128:
		if field > 0 {
			if field > MaxField {
				return b, errors.New(errors.PhaseEncode, errors.KindInvalidFormat).
					Field(field).Detail("field number out of range").Build()
			}
			b = protowire.AppendTag(b, protowire.Number(field), Bytes)
		}
		return protowire.AppendVarint(b, uint64(n)), nil
	case PrefixFixed32:
		return binary.LittleEndian.AppendUint32(b, n), nil
	case PrefixFixed32BigEndian:
		return binary.BigEndian.AppendUint32(b, n), nil
	default:
		return b, errors.New(errors.PhaseEncode, errors.KindInvalidFormat).
			Detail("unknown prefix style %d", style).Build()
	}
}

// Prefix is a decoded record header.
type Prefix struct {
	Field  int // 0 when the style carries no field header
	Length int
	Size   int // header bytes consumed
}

// ReadPrefix reads one record header from r, consuming exactly the header
// bytes. A positive expectedField requires a length-delimited field header
// carrying that number. io.EOF is returned untouched when r is exhausted
// before the first header byte.
func ReadPrefix(r io.Reader, style PrefixStyle, expectedField int) (Prefix, error) {
	br := asByteReader(r)
	var p Prefix

	switch style {
	case PrefixBase128:
		if expectedField > 0 {
			tag, n, err := readUvarint(br)
			if err != nil {
				return p, wrapStreamErr(err)
			}
			p.Size += n
			num, typ := protowire.DecodeTag(tag)
			p.Field = int(num)
			if p.Field != expectedField {
				return p, errors.WireFormat(nil, p.Field, "record field number does not match the expected field")
			}
			if typ != Bytes {
				return p, errors.WireFormat(nil, p.Field, "record header is not length-delimited")
			}
		}
		length, n, err := readUvarint(br)
		if err != nil {
			if err == io.EOF && p.Size > 0 {
				err = io.ErrUnexpectedEOF
			}
			return p, wrapStreamErr(err)
		}
		p.Size += n
		l, err := safecast.Convert[int](length)
		if err != nil || l > MaxRecordSize {
			return p, errors.WireFormat(nil, p.Field, "record length exceeds limit")
		}
		p.Length = l
		return p, nil

	case PrefixFixed32, PrefixFixed32BigEndian:
		var hdr [4]byte
		n, err := io.ReadFull(r, hdr[:])
		p.Size = n
		if err != nil {
			if err == io.EOF {
				return p, io.EOF
			}
			return p, wrapStreamErr(err)
		}
		var length uint32
		if style == PrefixFixed32 {
			length = binary.LittleEndian.Uint32(hdr[:])
		} else {
			length = binary.BigEndian.Uint32(hdr[:])
		}
		if length > MaxRecordSize {
			return p, errors.WireFormat(nil, 0, "record length exceeds limit")
		}
		p.Length = int(length)
		return p, nil

	default:
		return p, errors.New(errors.PhaseDecode, errors.KindInvalidFormat).
			Detail("unknown prefix style %d", style).Build()
	}
}

// ReadRecord reads one prefixed record body from r.
func ReadRecord(r io.Reader, style PrefixStyle, expectedField int) ([]byte, int, error) {
	p, err := ReadPrefix(r, style, expectedField)
	if err != nil {
		return nil, p.Size, err
	}
	body := make([]byte, p.Length)
	n, err := io.ReadFull(r, body)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, p.Size + n, wrapStreamErr(err)
	}
	return body, p.Size + n, nil
}

func wrapStreamErr(err error) error {
	if err == io.EOF {
		return err
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	return errors.New(errors.PhaseDecode, errors.KindWireFormat).
		Detail("truncated record").
		Cause(err).
		Build()
}

type singleByteReader struct {
	r   io.Reader
	buf [1]byte
}

func (s *singleByteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
		return 0, err
	}
	return s.buf[0], nil
}

// asByteReader never buffers ahead so the stream stays positioned right
// after the header.
func asByteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return &singleByteReader{r: r}
}

// readUvarint reads an unsigned LEB128 value and reports bytes consumed.
func readUvarint(r io.ByteReader) (uint64, int, error) {
	var result uint64
	var shift uint
	for n := 1; ; n++ {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && n > 1 {
				err = io.ErrUnexpectedEOF
			}
			return 0, n - 1, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, n, nil
		}
		shift += 7
		if shift >= 70 {
			return 0, n, ErrOverflow
		}
	}
}
