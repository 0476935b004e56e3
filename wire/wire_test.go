package wire

import (
	"bytes"
	stderrors "errors"
	"io"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/protomodel/errors"
)

func TestWriter_Scalars(t *testing.T) {
	w := NewWriter(nil)
	if err := w.WriteTag(1, Varint); err != nil {
		t.Fatal(err)
	}
	w.WriteVarint(3)
	if err := w.WriteTag(2, Varint); err != nil {
		t.Fatal(err)
	}
	w.WriteZigZag(-4)

	want := []byte{0x08, 0x03, 0x10, 0x07}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("bytes = %x, want %x", w.Bytes(), want)
	}
}

func TestWriter_TagOutOfRange(t *testing.T) {
	w := NewWriter(nil)
	for _, field := range []int{0, -1, MaxField + 1} {
		if err := w.WriteTag(field, Varint); !stderrors.Is(err, errors.ErrConfiguration) {
			t.Errorf("WriteTag(%d) err = %v, want configuration error", field, err)
		}
	}
}

func TestWriter_LengthDelimited(t *testing.T) {
	sizes := []int{0, 1, 127, 128, 300, 20000}

	for _, size := range sizes {
		payload := bytes.Repeat([]byte{0xab}, size)

		w := NewWriter(nil)
		if err := w.WriteTag(5, Bytes); err != nil {
			t.Fatal(err)
		}
		tok := w.StartLengthDelimited()
		w.WriteRaw(payload)
		if err := w.EndLengthDelimited(tok); err != nil {
			t.Fatal(err)
		}

		want := protowire.AppendTag(nil, 5, protowire.BytesType)
		want = protowire.AppendBytes(want, payload)
		if !bytes.Equal(w.Bytes(), want) {
			t.Errorf("size %d: encoding differs from protowire", size)
		}
		if w.Depth() != 0 {
			t.Errorf("size %d: depth = %d, want 0", size, w.Depth())
		}
	}
}

func TestWriter_NestedBlocks(t *testing.T) {
	w := NewWriter(nil)
	_ = w.WriteTag(1, Bytes)
	outer := w.StartLengthDelimited()
	_ = w.WriteTag(2, Bytes)
	inner := w.StartLengthDelimited()
	w.WriteRaw(bytes.Repeat([]byte{1}, 200))
	if err := w.EndLengthDelimited(inner); err != nil {
		t.Fatal(err)
	}
	_ = w.WriteTag(3, Varint)
	w.WriteVarint(9)
	if err := w.EndLengthDelimited(outer); err != nil {
		t.Fatal(err)
	}

	r := NewReader(w.Bytes())
	field, typ, err := r.ReadFieldHeader()
	if err != nil || field != 1 || typ != Bytes {
		t.Fatalf("header = %d/%v/%v", field, typ, err)
	}
	sub, err := r.ReadLengthDelimited()
	if err != nil {
		t.Fatal(err)
	}
	field, _, _ = sub.ReadFieldHeader()
	if field != 2 {
		t.Fatalf("inner field = %d, want 2", field)
	}
	b, err := sub.ReadBytes()
	if err != nil || len(b) != 200 {
		t.Fatalf("inner bytes len = %d, err %v", len(b), err)
	}
	field, _, _ = sub.ReadFieldHeader()
	v, _ := sub.ReadVarint()
	if field != 3 || v != 9 {
		t.Errorf("field 3 = %d (%d)", v, field)
	}
	if field, _, _ = sub.ReadFieldHeader(); field != 0 {
		t.Errorf("expected end of message, got field %d", field)
	}
}

func TestWriter_Unbalanced(t *testing.T) {
	w := NewWriter(nil)
	outer := w.StartLengthDelimited()
	_ = w.StartLengthDelimited()
	if err := w.EndLengthDelimited(outer); err == nil {
		t.Error("closing the outer block first should fail")
	}

	g, _ := w.StartGroup(4)
	if err := w.EndLengthDelimited(g); err == nil {
		t.Error("closing a group as a block should fail")
	}
}

func TestReader_Group(t *testing.T) {
	w := NewWriter(nil)
	tok, err := w.StartGroup(7)
	if err != nil {
		t.Fatal(err)
	}
	_ = w.WriteTag(1, Fixed32)
	w.WriteFixed32(42)
	if err := w.EndGroup(tok); err != nil {
		t.Fatal(err)
	}
	_ = w.WriteTag(8, Varint)
	w.WriteVarint(1)

	r := NewReader(w.Bytes())
	field, typ, _ := r.ReadFieldHeader()
	if field != 7 || typ != StartGroup {
		t.Fatalf("header = %d/%v", field, typ)
	}
	g, err := r.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	field, _, _ = g.ReadFieldHeader()
	v, _ := g.ReadFixed32()
	if field != 1 || v != 42 {
		t.Errorf("group field = %d value %d", field, v)
	}
	if field, _, err = g.ReadFieldHeader(); field != 0 || err != nil {
		t.Errorf("group end = %d, %v", field, err)
	}

	field, _, _ = r.ReadFieldHeader()
	if field != 8 {
		t.Errorf("field after group = %d, want 8", field)
	}
}

func TestReader_SkipField(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 1<<40)
	b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	b = protowire.AppendTag(b, 3, protowire.StartGroupType)
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "x")
	b = protowire.AppendTag(b, 3, protowire.EndGroupType)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, "keep")

	r := NewReader(b)
	for {
		field, _, err := r.ReadFieldHeader()
		if err != nil {
			t.Fatal(err)
		}
		if field == 4 {
			s, _ := r.ReadString()
			if s != "keep" {
				t.Errorf("string = %q", s)
			}
			break
		}
		if err := r.SkipField(); err != nil {
			t.Fatalf("skip field %d: %v", field, err)
		}
	}
}

func TestReader_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated varint", []byte{0x08, 0x80}},
		{"truncated bytes", []byte{0x0a, 0x05, 'a'}},
		{"field zero", []byte{0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			var err error
			for err == nil {
				var field int
				field, _, err = r.ReadFieldHeader()
				if err != nil || field == 0 {
					break
				}
				err = r.SkipField()
			}
			if !stderrors.Is(err, errors.ErrWireFormat) {
				t.Errorf("err = %v, want wire format error", err)
			}
		})
	}
}

func TestReader_UnexpectedEndGroup(t *testing.T) {
	b := protowire.AppendTag(nil, 3, protowire.EndGroupType)
	_, _, err := NewReader(b).ReadFieldHeader()
	if !stderrors.Is(err, errors.ErrWireFormat) {
		t.Errorf("err = %v, want wire format error", err)
	}
}

func TestPrefix_RoundTrip(t *testing.T) {
	styles := []struct {
		style PrefixStyle
		field int
	}{
		{PrefixBase128, 0},
		{PrefixBase128, 1},
		{PrefixBase128, 300},
		{PrefixFixed32, 0},
		{PrefixFixed32BigEndian, 0},
	}

	for _, tt := range styles {
		t.Run(tt.style.String(), func(t *testing.T) {
			var stream []byte
			records := [][]byte{[]byte("one"), {}, bytes.Repeat([]byte{2}, 500)}
			for _, rec := range records {
				var err error
				stream, err = AppendPrefix(stream, tt.style, tt.field, len(rec))
				if err != nil {
					t.Fatal(err)
				}
				stream = append(stream, rec...)
			}

			src := bytes.NewReader(stream)
			total := 0
			for i, want := range records {
				got, n, err := ReadRecord(src, tt.style, tt.field)
				if err != nil {
					t.Fatalf("record %d: %v", i, err)
				}
				if !bytes.Equal(got, want) {
					t.Errorf("record %d differs", i)
				}
				total += n
			}
			if total != len(stream) {
				t.Errorf("consumed %d bytes, stream has %d", total, len(stream))
			}
			if _, _, err := ReadRecord(src, tt.style, tt.field); err != io.EOF {
				t.Errorf("after last record err = %v, want io.EOF", err)
			}
		})
	}
}

func TestPrefix_FieldMismatch(t *testing.T) {
	stream, _ := AppendPrefix(nil, PrefixBase128, 2, 1)
	stream = append(stream, 0x00)

	_, err := ReadPrefix(bytes.NewReader(stream), PrefixBase128, 1)
	if !stderrors.Is(err, errors.ErrWireFormat) {
		t.Errorf("err = %v, want wire format error", err)
	}
}

func TestPrefix_Truncated(t *testing.T) {
	stream, _ := AppendPrefix(nil, PrefixBase128, 0, 10)
	stream = append(stream, 1, 2, 3)

	_, _, err := ReadRecord(bytes.NewReader(stream), PrefixBase128, 0)
	if !stderrors.Is(err, errors.ErrWireFormat) {
		t.Errorf("err = %v, want wire format error", err)
	}
}

// onlyReader hides io.ByteReader so the single-byte path is exercised.
type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

func TestPrefix_NoReadAhead(t *testing.T) {
	stream, _ := AppendPrefix(nil, PrefixBase128, 0, 2)
	stream = append(stream, 'h', 'i', 0xff)

	src := bytes.NewReader(stream)
	body, n, err := ReadRecord(onlyReader{src}, PrefixBase128, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "hi" || n != 3 {
		t.Errorf("body = %q, n = %d", body, n)
	}
	if src.Len() != 1 {
		t.Errorf("remaining = %d, want 1", src.Len())
	}
}
