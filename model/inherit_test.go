package model

import (
	"bytes"
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/wire"
)

func animals(t *testing.T) (*Registry, int) {
	t.Helper()
	r := New()
	e, err := r.Define(reflect.TypeFor[animal]()).
		SubType(1, reflect.TypeFor[dog]()).
		SubType(2, reflect.TypeFor[cat]()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return r, e.Key()
}

func TestInheritance_InterfaceDispatch(t *testing.T) {
	r, key := animals(t)

	tests := []struct {
		name  string
		value animal
		want  []byte
	}{
		{"value receiver", dog{Name: "rex"}, []byte{0x0a, 0x05, 0x0a, 0x03, 'r', 'e', 'x'}},
		{"pointer receiver", &cat{Lives: 7}, []byte{0x12, 0x02, 0x08, 0x07}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := wire.NewWriter(nil)
			if err := r.SerializeKey(key, tt.value, w); err != nil {
				t.Fatalf("SerializeKey: %v", err)
			}
			if !bytes.Equal(w.Bytes(), tt.want) {
				t.Fatalf("bytes = % x, want % x", w.Bytes(), tt.want)
			}

			got, err := r.DeserializeKey(key, nil, wire.NewReader(w.Bytes()))
			if err != nil {
				t.Fatalf("DeserializeKey: %v", err)
			}
			if got.(animal).Sound() != tt.value.Sound() {
				t.Errorf("got %T, want %T", got, tt.value)
			}
		})
	}

	t.Run("decoded type", func(t *testing.T) {
		got, err := r.DeserializeKey(key, nil, wire.NewReader([]byte{0x0a, 0x05, 0x0a, 0x03, 'r', 'e', 'x'}))
		if err != nil {
			t.Fatalf("DeserializeKey: %v", err)
		}
		d, ok := got.(*dog)
		if !ok || d.Name != "rex" {
			t.Errorf("got %#v", got)
		}
	})

	t.Run("in place", func(t *testing.T) {
		existing := &cat{Lives: 1}
		got, err := r.DeserializeKey(key, existing, wire.NewReader([]byte{0x12, 0x02, 0x08, 0x09}))
		if err != nil {
			t.Fatalf("DeserializeKey: %v", err)
		}
		if got != any(existing) || existing.Lives != 9 {
			t.Errorf("got %#v, existing %+v", got, existing)
		}
	})
}

func TestInheritance_UnknownSubType(t *testing.T) {
	r, key := animals(t)

	_, err := r.DeserializeKey(key, nil, wire.NewReader([]byte{0x1a, 0x00}))
	if kindOf(err) != errors.KindUnsupportedType {
		t.Fatalf("err = %v, want unsupported type", err)
	}
	if !stderrors.Is(err, errors.ErrUnsupportedType) {
		t.Error("error does not match ErrUnsupportedType")
	}

	t.Run("abstract without payload", func(t *testing.T) {
		_, err := r.DeserializeKey(key, nil, wire.NewReader(nil))
		if kindOf(err) != errors.KindUnsupportedType {
			t.Errorf("err = %v, want unsupported type", err)
		}
	})

	t.Run("outside the hierarchy", func(t *testing.T) {
		w := wire.NewWriter(nil)
		err := r.SerializeKey(key, point{X: 1}, w)
		if kindOf(err) != errors.KindUnsupportedType {
			t.Errorf("err = %v, want unsupported type", err)
		}
	})
}

func TestInheritance_StructBase(t *testing.T) {
	r := New()
	if _, err := r.Add(reflect.TypeFor[Vehicle](), true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	car := Car{Vehicle: Vehicle{Wheels: 4}, Brand: "vw"}
	want := []byte{0x52, 0x04, 0x0a, 0x02, 'v', 'w', 0x08, 0x04}

	for _, v := range []any{car, &car} {
		data, err := r.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%T): %v", v, err)
		}
		if !bytes.Equal(data, want) {
			t.Fatalf("Marshal(%T) = % x, want % x", v, data, want)
		}
	}

	t.Run("through base", func(t *testing.T) {
		got, err := r.DeserializeType(reflect.TypeFor[Vehicle](), want)
		if err != nil {
			t.Fatalf("DeserializeType: %v", err)
		}
		c, ok := got.(*Car)
		if !ok || *c != car {
			t.Errorf("got %#v", got)
		}
	})

	t.Run("into derived", func(t *testing.T) {
		var c Car
		if err := r.Unmarshal(want, &c); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if c != car {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("base only", func(t *testing.T) {
		data, err := r.Marshal(Vehicle{Wheels: 2})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(data, []byte{0x08, 0x02}) {
			t.Errorf("bytes = % x", data)
		}
	})

	e, _ := r.Entry(reflect.TypeFor[Car]())
	if e.Base() == nil || e.Base().Type() != reflect.TypeFor[Vehicle]() {
		t.Errorf("Car base = %v", e.Base())
	}
}

func TestInheritance_UnknownFieldOnBase(t *testing.T) {
	r := New()
	if _, err := r.Add(reflect.TypeFor[Vehicle](), true); err != nil {
		t.Fatalf("Add: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want int32
		kind errors.Kind
	}{
		{"new field below subtype tags", []byte{0x12, 0x02, 'h', 'i', 0x08, 0x05}, 5, ""},
		{"new group below subtype tags", []byte{0x13, 0x14, 0x08, 0x05}, 5, ""},
		{"new field after known fields", []byte{0x08, 0x05, 0x5a, 0x00}, 5, ""},
		{"unknown subtype tag", []byte{0x5a, 0x00, 0x08, 0x05}, 0, errors.KindUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Vehicle
			err := r.Unmarshal(tt.data, &v)
			if kindOf(err) != tt.kind {
				t.Fatalf("Unmarshal: err = %v, want kind %q", err, tt.kind)
			}
			if err == nil && v.Wheels != tt.want {
				t.Errorf("Wheels = %d, want %d", v.Wheels, tt.want)
			}

			got, err := r.DeserializeType(reflect.TypeFor[Vehicle](), tt.data)
			if kindOf(err) != tt.kind {
				t.Fatalf("DeserializeType: err = %v, want kind %q", err, tt.kind)
			}
			if err == nil {
				if vp, ok := got.(*Vehicle); !ok || vp.Wheels != tt.want {
					t.Errorf("DeserializeType = %#v", got)
				}
			}
		})
	}
}

func TestInheritance_Cyclic(t *testing.T) {
	r := New()
	w, err := r.Add(reflect.TypeFor[walker](), false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.AddSubType(1, reflect.TypeFor[strider](), FormatDefault); err != nil {
		t.Fatalf("AddSubType: %v", err)
	}
	s, _ := r.Entry(reflect.TypeFor[strider]())
	err = s.AddSubType(1, reflect.TypeFor[walker](), FormatDefault)
	if kindOf(err) != errors.KindCyclicInheritance {
		t.Fatalf("err = %v, want cyclic inheritance", err)
	}

	if err := w.AddSubType(2, reflect.TypeFor[walker](), FormatDefault); kindOf(err) != errors.KindCyclicInheritance {
		t.Errorf("self subtype: err = %v", err)
	}
}

func TestInheritance_InvalidSubTypes(t *testing.T) {
	r := New()
	e, err := r.Add(reflect.TypeFor[animal](), false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	tests := []struct {
		name   string
		tag    int
		typ    reflect.Type
		format DataFormat
		kind   errors.Kind
	}{
		{"not derived", 1, reflect.TypeFor[point](), FormatDefault, errors.KindInvalidSubType},
		{"bad framing", 1, reflect.TypeFor[dog](), FormatZigZag, errors.KindInvalidSubType},
		{"tag out of range", 0, reflect.TypeFor[dog](), FormatDefault, errors.KindInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.AddSubType(tt.tag, tt.typ, tt.format); kindOf(err) != tt.kind {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}

	if err := e.AddSubType(1, reflect.TypeFor[dog](), FormatDefault); err != nil {
		t.Fatalf("AddSubType: %v", err)
	}
	if err := e.AddSubType(1, reflect.TypeFor[dog](), FormatDefault); err != nil {
		t.Errorf("repeating a subtype is a no-op: %v", err)
	}
	if err := e.AddSubType(2, reflect.TypeFor[dog](), FormatDefault); kindOf(err) != errors.KindDuplicateType {
		t.Errorf("dog under a second tag: err = %v", err)
	}
	if err := e.AddSubType(1, reflect.TypeFor[cat](), FormatDefault); kindOf(err) != errors.KindDuplicateTag {
		t.Errorf("tag reuse: err = %v", err)
	}
}

func TestInheritance_GroupFraming(t *testing.T) {
	r := New()
	e, err := r.Define(reflect.TypeFor[animal]()).
		SubType(1, reflect.TypeFor[dog](), FormatGroup).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	w := wire.NewWriter(nil)
	if err := r.SerializeKey(e.Key(), dog{Name: "a"}, w); err != nil {
		t.Fatalf("SerializeKey: %v", err)
	}
	want := []byte{0x0b, 0x0a, 0x01, 'a', 0x0c}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("bytes = % x, want % x", w.Bytes(), want)
	}
	got, err := r.DeserializeKey(e.Key(), nil, wire.NewReader(want))
	if err != nil {
		t.Fatalf("DeserializeKey: %v", err)
	}
	if d, ok := got.(*dog); !ok || d.Name != "a" {
		t.Errorf("got %#v", got)
	}
}

func TestCallbacks_Order(t *testing.T) {
	r := New()
	if _, err := r.Add(reflect.TypeFor[Vehicle](), true); err != nil {
		t.Fatalf("Add: %v", err)
	}
	vehicle, _ := r.Entry(reflect.TypeFor[Vehicle]())
	car, _ := r.Entry(reflect.TypeFor[Car]())

	var log []string
	record := func(label string) Callback {
		return func(v any) error {
			log = append(log, label)
			return nil
		}
	}
	for _, step := range []struct {
		e    *TypeEntry
		name string
	}{{vehicle, "vehicle"}, {car, "car"}} {
		for slot, prefix := range map[CallbackSlot]string{
			SlotBeforeSerialize:   "bs",
			SlotAfterSerialize:    "as",
			SlotBeforeDeserialize: "before",
			SlotAfterDeserialize:  "after",
		} {
			if err := step.e.SetCallback(slot, record(prefix+":"+step.name)); err != nil {
				t.Fatalf("SetCallback: %v", err)
			}
		}
	}

	data, err := r.Marshal(&Car{Vehicle: Vehicle{Wheels: 4}, Brand: "vw"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := []string{"bs:vehicle", "bs:car", "as:car", "as:vehicle"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("serialize order = %v, want %v", log, want)
	}

	log = nil
	if _, err := r.DeserializeType(reflect.TypeFor[Vehicle](), data); err != nil {
		t.Fatalf("DeserializeType: %v", err)
	}
	want = []string{"before:vehicle", "before:car", "after:car", "after:vehicle"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("deserialize order = %v, want %v", log, want)
	}
}

func TestCallbacks_Duplicate(t *testing.T) {
	r := New()
	e, err := r.Add(reflect.TypeFor[point](), true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	noop := func(any) error { return nil }
	if err := e.SetBeforeSerialize(noop); err != nil {
		t.Fatalf("SetBeforeSerialize: %v", err)
	}
	if err := e.SetBeforeSerialize(noop); kindOf(err) != errors.KindDuplicateCallback {
		t.Errorf("err = %v, want duplicate callback", err)
	}
}

func TestCallbacks_Interfaces(t *testing.T) {
	r := New()

	t.Run("implemented", func(t *testing.T) {
		var s stamped
		if err := r.Unmarshal([]byte{0x08, 0x05}, &s); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if s.N != 5 || !s.restored {
			t.Errorf("got %+v", s)
		}
	})

	t.Run("explicit replaces implemented", func(t *testing.T) {
		r := New()
		var called bool
		_, err := r.Define(reflect.TypeFor[stamped]()).
			Field(1, "N").
			AfterDeserialize(func(any) error { called = true; return nil }).
			Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		var s stamped
		if err := r.Unmarshal([]byte{0x08, 0x05}, &s); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if !called || s.restored {
			t.Errorf("called = %v, restored = %v", called, s.restored)
		}
	})

	t.Run("failure", func(t *testing.T) {
		r := New()
		boom := stderrors.New("boom")
		_, err := r.Define(reflect.TypeFor[point]()).
			Field(1, "X").
			BeforeSerialize(func(any) error { return boom }).
			Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		_, err = r.Marshal(point{X: 1})
		if !stderrors.Is(err, boom) {
			t.Errorf("err = %v, want the callback error", err)
		}
	})
}
