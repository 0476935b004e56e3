package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/protomodel/errors"
)

// Token identifies an open length-delimited block or group.
type Token struct {
	pos   int
	field int
	depth int
	group bool
}

// Writer appends protobuf-framed data to a growing buffer.
// A Writer is not safe for concurrent use.
type Writer struct {
	buf   []byte
	depth int
}

// NewWriter creates a writer that appends to buf.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf[:0]}
}

// Bytes returns the encoded data. It is only complete when every started
// block has been ended.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Depth returns the number of open blocks.
func (w *Writer) Depth() int {
	return w.depth
}

// Reset discards all data, keeping the buffer.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.depth = 0
}

// WriteTag writes a field header.
func (w *Writer) WriteTag(field int, t Type) error {
	if field < MinField || field > MaxField {
		return errors.New(errors.PhaseEncode, errors.KindInvalidFormat).
			Field(field).
			Detail("field number out of range [%d, %d]", MinField, MaxField).
			Build()
	}
	w.buf = protowire.AppendTag(w.buf, protowire.Number(field), t)
	return nil
}

func (w *Writer) WriteVarint(v uint64) {
	w.buf = protowire.AppendVarint(w.buf, v)
}

func (w *Writer) WriteZigZag(v int64) {
	w.buf = protowire.AppendVarint(w.buf, protowire.EncodeZigZag(v))
}

func (w *Writer) WriteFixed32(v uint32) {
	w.buf = protowire.AppendFixed32(w.buf, v)
}

func (w *Writer) WriteFixed64(v uint64) {
	w.buf = protowire.AppendFixed64(w.buf, v)
}

// WriteBytes writes a length-prefixed byte block.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = protowire.AppendBytes(w.buf, b)
}

// WriteString writes a length-prefixed string.
func (w *Writer) WriteString(s string) {
	w.buf = protowire.AppendString(w.buf, s)
}

// WriteRaw appends pre-encoded bytes verbatim.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

// StartLengthDelimited opens a block whose length is back-filled by
// EndLengthDelimited. The field header must already be written.
func (w *Writer) StartLengthDelimited() Token {
	w.depth++
	return Token{pos: len(w.buf), depth: w.depth}
}

// EndLengthDelimited closes the block opened by tok, inserting its length.
func (w *Writer) EndLengthDelimited(tok Token) error {
	if tok.group || tok.depth != w.depth {
		return errors.InvalidOperation(errors.PhaseEncode, "unbalanced length-delimited block")
	}
	w.depth--

	size := len(w.buf) - tok.pos
	var hdr [10]byte
	prefix := protowire.AppendVarint(hdr[:0], uint64(size))
	n := len(prefix)

	w.buf = append(w.buf, prefix...) // grow by n
	copy(w.buf[tok.pos+n:], w.buf[tok.pos:tok.pos+size])
	copy(w.buf[tok.pos:], prefix)
	return nil
}

// StartGroup writes a start-group header for field.
func (w *Writer) StartGroup(field int) (Token, error) {
	if err := w.WriteTag(field, StartGroup); err != nil {
		return Token{}, err
	}
	w.depth++
	return Token{pos: len(w.buf), field: field, depth: w.depth, group: true}, nil
}

// EndGroup writes the matching end-group header.
func (w *Writer) EndGroup(tok Token) error {
	if !tok.group || tok.depth != w.depth {
		return errors.InvalidOperation(errors.PhaseEncode, "unbalanced group")
	}
	w.depth--
	return w.WriteTag(tok.field, EndGroup)
}
