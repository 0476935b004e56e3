package model

import (
	"bytes"
	stderrors "errors"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/wire"
)

func TestGraph_Collections(t *testing.T) {
	r := New()
	in := inventory{
		Tags:   []string{"a", "b"},
		Counts: []int32{1, 2, 300},
		Scores: [3]float64{0.5, 0, 2},
		Points: []*point{{X: 1, Y: -1}, {X: 2}},
		Labels: map[string]int32{"z": 26, "a": 1},
	}
	in.Bag.Add(7)
	in.Bag.Add(8)

	data, err := r.Marshal(&in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out inventory
	if err := r.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip:\n got %+v\nwant %+v", out, in)
	}

	again, err := r.Marshal(&out)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("map output is not deterministic")
	}
}

func TestGraph_Packed(t *testing.T) {
	r := New()
	packed := []byte{0x0a, 0x04, 0x01, 0x02, 0xac, 0x02}
	plain := []byte{0x08, 0x01, 0x08, 0x02, 0x08, 0xac, 0x02}
	want := []int32{1, 2, 300}

	tests := []struct {
		name  string
		value any
		bytes []byte
	}{
		{"packed", packedInts{V: want}, packed},
		{"plain", plainInts{V: want}, plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := r.Marshal(tt.value)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !bytes.Equal(data, tt.bytes) {
				t.Errorf("bytes = % x, want % x", data, tt.bytes)
			}
		})
	}

	t.Run("either form decodes", func(t *testing.T) {
		for _, data := range [][]byte{packed, plain} {
			var p plainInts
			if err := r.Unmarshal(data, &p); err != nil {
				t.Fatalf("Unmarshal plain: %v", err)
			}
			var q packedInts
			if err := r.Unmarshal(data, &q); err != nil {
				t.Fatalf("Unmarshal packed: %v", err)
			}
			if !reflect.DeepEqual(p.V, want) || !reflect.DeepEqual(q.V, want) {
				t.Errorf("got %v and %v", p.V, q.V)
			}
		}
	})

	t.Run("empty writes nothing", func(t *testing.T) {
		data, err := r.Marshal(packedInts{V: []int32{}})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if len(data) != 0 {
			t.Errorf("bytes = % x", data)
		}
	})
}

func TestGraph_CollectionRoot(t *testing.T) {
	r := New()
	var bag intBag
	bag.Add(1)
	bag.Add(2)

	data, err := r.Marshal(&bag)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := []byte{0x08, 0x01, 0x08, 0x02}; !bytes.Equal(data, want) {
		t.Fatalf("bytes = % x, want % x", data, want)
	}
	var got intBag
	if err := r.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got.items, []int32{1, 2}) {
		t.Errorf("items = %v", got.items)
	}

	e, _ := r.Entry(reflect.TypeFor[intBag]())
	g, err := e.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if g.Kind() != GraphList {
		t.Errorf("kind = %s, want list", g.Kind())
	}
}

func TestGraph_Presence(t *testing.T) {
	r := New()
	zero := int32(0)

	tests := []struct {
		name  string
		value optional
		want  []byte
	}{
		{"nothing set", optional{}, nil},
		{"specified zero", optional{CountSpecified: true}, []byte{0x10, 0x00}},
		{"unspecified value", optional{Count: 5}, nil},
		{"pointer to zero", optional{Ptr: &zero}, []byte{0x18, 0x00}},
		{"name", optional{Name: "n"}, []byte{0x0a, 0x01, 'n'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := r.Marshal(tt.value)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !bytes.Equal(data, tt.want) {
				t.Errorf("bytes = % x, want % x", data, tt.want)
			}
		})
	}

	var got optional
	if err := r.Unmarshal([]byte{0x10, 0x00, 0x18, 0x00}, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.CountSpecified || got.Ptr == nil || *got.Ptr != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestGraph_Defaults(t *testing.T) {
	r := New()

	data, err := r.Marshal(withDefaults{Level: 5, Mode: "fast"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("values equal to defaults were written: % x", data)
	}

	data, err = r.Marshal(withDefaults{Level: 0, Mode: "fast"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := []byte{0x08, 0x00}; !bytes.Equal(data, want) {
		t.Errorf("bytes = % x, want % x", data, want)
	}

	var got withDefaults
	if err := r.Unmarshal(nil, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != (withDefaults{Level: 5, Mode: "fast"}) {
		t.Errorf("defaults not applied: %+v", got)
	}

	t.Run("skip construction", func(t *testing.T) {
		r := New()
		if _, err := r.Define(reflect.TypeFor[withDefaults]()).
			Field(1, "Level", DefaultValue(int32(5))).
			Construction(ConstructSkip).
			Build(); err != nil {
			t.Fatalf("Build: %v", err)
		}
		v, err := r.DeserializeType(reflect.TypeFor[withDefaults](), nil)
		if err != nil {
			t.Fatalf("DeserializeType: %v", err)
		}
		if got := v.(*withDefaults); got.Level != 0 {
			t.Errorf("Level = %d, want 0", got.Level)
		}
	})

	t.Run("factory", func(t *testing.T) {
		r := New()
		if _, err := r.Define(reflect.TypeFor[withDefaults]()).
			Field(2, "Mode").
			Factory(func() *withDefaults { return &withDefaults{Level: 42} }).
			Build(); err != nil {
			t.Fatalf("Build: %v", err)
		}
		v, err := r.DeserializeType(reflect.TypeFor[withDefaults](), []byte{0x12, 0x01, 'x'})
		if err != nil {
			t.Fatalf("DeserializeType: %v", err)
		}
		if got := v.(*withDefaults); *got != (withDefaults{Level: 42, Mode: "x"}) {
			t.Errorf("got %+v", *got)
		}
	})
}

func TestGraph_Enums(t *testing.T) {
	r := New()

	data, err := r.Marshal(paint{C: green})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := []byte{0x08, 0x14}; !bytes.Equal(data, want) {
		t.Fatalf("bytes = % x, want % x", data, want)
	}
	var got paint
	if err := r.Unmarshal([]byte{0x08, 0x1e}, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.C != blue {
		t.Errorf("C = %d, want blue", got.C)
	}

	if _, err := r.Marshal(paint{C: color(7)}); kindOf(err) != errors.KindWireFormat {
		t.Errorf("undefined value: err = %v", err)
	}
	if err := r.Unmarshal([]byte{0x08, 0x63}, &got); kindOf(err) != errors.KindWireFormat {
		t.Errorf("undefined wire value: err = %v", err)
	}

	values, ok := r.Enum(reflect.TypeFor[color]())
	if !ok || len(values) != 3 {
		t.Errorf("Enum = %v, %v", values, ok)
	}
	if err := r.AddEnum(reflect.TypeFor[color]()); kindOf(err) != errors.KindFrozen {
		t.Errorf("replacing a sealed table: err = %v", err)
	}
}

func TestGraph_SpecialScalars(t *testing.T) {
	r := New()
	link, err := url.Parse("https://example.com/a?b=1")
	if err != nil {
		t.Fatal(err)
	}
	in := record{
		At:    time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC),
		TTL:   90*time.Second + 5,
		ID:    uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Link:  *link,
		Stamp: time.Unix(0, 1700000000123456789).UTC(),
	}
	if _, ok := in.Price.SetString("12.50"); !ok {
		t.Fatal("SetString")
	}

	data, err := r.Marshal(&in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out record
	if err := r.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !out.At.Equal(in.At) {
		t.Errorf("At = %v, want %v", out.At, in.At)
	}
	if out.TTL != in.TTL {
		t.Errorf("TTL = %v, want %v", out.TTL, in.TTL)
	}
	if out.Price.Cmp(&in.Price) != 0 {
		t.Errorf("Price = %v, want %v", &out.Price, &in.Price)
	}
	if out.ID != in.ID {
		t.Errorf("ID = %v, want %v", out.ID, in.ID)
	}
	if out.Link.String() != in.Link.String() {
		t.Errorf("Link = %v, want %v", out.Link.String(), in.Link.String())
	}
	if !out.Stamp.Equal(in.Stamp) {
		t.Errorf("Stamp = %v, want %v", out.Stamp, in.Stamp)
	}

	t.Run("zero values are omitted", func(t *testing.T) {
		data, err := r.Marshal(&record{})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if len(data) != 0 {
			t.Errorf("bytes = % x", data)
		}
	})
}

func TestGraph_References(t *testing.T) {
	r := New()
	a := &link{Name: "a"}
	b := &link{Name: "b"}
	a.Next = b
	b.Next = b

	data, err := r.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got link
	if err := r.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Name != "a" || got.Next == nil || got.Next.Name != "b" {
		t.Fatalf("got %+v", got)
	}
	if got.Next.Next != got.Next {
		t.Error("shared object was not restored as the same pointer")
	}

	t.Run("unknown id", func(t *testing.T) {
		var l link
		err := r.Unmarshal([]byte{0x12, 0x02, 0x08, 0x05}, &l)
		if kindOf(err) != errors.KindWireFormat {
			t.Errorf("err = %v, want wire format", err)
		}
	})
}

func TestGraph_CycleWithoutReferences(t *testing.T) {
	r := New()
	l := &loop{}
	l.Next = l
	_, err := r.Marshal(l)
	if kindOf(err) != errors.KindInvalidOperation {
		t.Fatalf("err = %v, want invalid operation", err)
	}
}

func TestGraph_DynamicType(t *testing.T) {
	r := New()
	data, err := r.Marshal(canvas{S: square{Side: 2}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got canvas
	if err := r.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	sq, ok := got.S.(*square)
	if !ok || sq.Side != 2 {
		t.Fatalf("S = %#v", got.S)
	}

	t.Run("unknown name", func(t *testing.T) {
		var c canvas
		err := New().Unmarshal(data, &c)
		if kindOf(err) != errors.KindUnsupportedType {
			t.Errorf("err = %v, want unsupported type", err)
		}
	})
}

func TestGraph_Surrogate(t *testing.T) {
	r := New()
	_, err := r.Define(reflect.TypeFor[celsius]()).
		Surrogate(reflect.TypeFor[celsiusDTO](),
			func(c celsius) celsiusDTO { return celsiusDTO{Milli: int64(c.deg * 1000)} },
			func(d *celsiusDTO) celsius { return celsius{deg: float64(d.Milli) / 1000} },
		).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	data, err := r.Marshal(celsius{deg: 21.5})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := []byte{0x08, 0xfc, 0xa7, 0x01}; !bytes.Equal(data, want) {
		t.Fatalf("bytes = % x, want % x", data, want)
	}

	data, err = r.Marshal(weather{T: celsius{deg: -3}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var w weather
	if err := r.Unmarshal(data, &w); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if w.T.deg != -3 {
		t.Errorf("deg = %v, want -3", w.T.deg)
	}

	t.Run("collection surrogate", func(t *testing.T) {
		tests := []struct {
			name string
			typ  reflect.Type
			to   any
			from any
		}{
			{"custom collection", reflect.TypeFor[intBag](),
				func(c celsius) intBag { return intBag{} }, func(b intBag) celsius { return celsius{} }},
			{"slice", reflect.TypeFor[[]int32](),
				func(c celsius) []int32 { return nil }, func(v []int32) celsius { return celsius{} }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				r := New()
				_, err := r.Define(reflect.TypeFor[celsius]()).Surrogate(tt.typ, tt.to, tt.from).Build()
				if kindOf(err) != errors.KindSurrogateCollection {
					t.Errorf("err = %v, want surrogate collection", err)
				}
				if !stderrors.Is(err, errors.ErrConfiguration) {
					t.Errorf("err = %v does not match ErrConfiguration", err)
				}
				if _, ok := r.Entry(tt.typ); ok {
					t.Errorf("rejected surrogate %s was registered", tt.typ)
				}
			})
		}
	})

	t.Run("bad converters", func(t *testing.T) {
		r := New()
		_, err := r.Define(reflect.TypeFor[celsius]()).
			Surrogate(reflect.TypeFor[celsiusDTO](), func(int) celsiusDTO { return celsiusDTO{} }, nil).
			Build()
		if kindOf(err) != errors.KindTypeMismatch {
			t.Errorf("err = %v, want type mismatch", err)
		}
	})
}

func TestGraph_Tuple(t *testing.T) {
	r := New()
	_, err := r.Define(reflect.TypeFor[span]()).
		Tuple(func(start, end int32) span { return span{Start: start, End: end} }, "Start", "End").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	data, err := r.Marshal(span{Start: 3, End: 9})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := []byte{0x08, 0x03, 0x10, 0x09}; !bytes.Equal(data, want) {
		t.Fatalf("bytes = % x, want % x", data, want)
	}
	var got span
	if err := r.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != (span{Start: 3, End: 9}) {
		t.Errorf("got %+v", got)
	}

	t.Run("signature mismatch", func(t *testing.T) {
		r := New()
		_, err := r.Define(reflect.TypeFor[span]()).
			Tuple(func(start int64, end int32) span { return span{} }, "Start", "End").
			Build()
		if kindOf(err) != errors.KindTypeMismatch {
			t.Errorf("err = %v, want type mismatch", err)
		}
	})
}

func TestGraph_DecodeErrors(t *testing.T) {
	r := New()

	tests := []struct {
		name string
		dst  any
		data []byte
		kind errors.Kind
	}{
		{"overflow", &tiny{}, []byte{0x08, 0xac, 0x02}, errors.KindOverflow},
		{"wire type mismatch", &point{}, []byte{0x0d, 0x01, 0x02, 0x03, 0x04}, errors.KindWireFormat},
		{"truncated", &point{}, []byte{0x0a, 0x05, 'a'}, errors.KindWireFormat},
		{"nested collection", &nested{}, []byte{}, errors.KindNestedCollection},
		{"not a pointer", point{}, nil, errors.KindInvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Unmarshal(tt.data, tt.dst)
			if kindOf(err) != tt.kind {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestGraph_SkipsUnknownFields(t *testing.T) {
	r := New()
	var got point
	data := []byte{0x08, 0x03, 0x2a, 0x01, 0xff, 0x10, 0x07}
	if err := r.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != (point{X: 3, Y: -4}) {
		t.Errorf("got %+v", got)
	}
}

func TestGraph_MergesIntoExisting(t *testing.T) {
	r := New()
	got := point{X: 1, Y: 2}
	if err := r.Unmarshal([]byte{0x10, 0x07}, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != (point{X: 1, Y: -4}) {
		t.Errorf("got %+v", got)
	}
}

func TestGraph_InterfaceCollection(t *testing.T) {
	r := New()
	bag := &intBag{}
	bag.Add(1)
	bag.Add(2)

	data, err := r.Marshal(bagHolder{Bag: bag})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := []byte{0x08, 0x01, 0x08, 0x02}; !bytes.Equal(data, want) {
		t.Fatalf("bytes = % x, want % x", data, want)
	}

	var h bagHolder
	if err := r.Unmarshal(data, &h); kindOf(err) != errors.KindUnsupportedType {
		t.Fatalf("without a default type: err = %v, want unsupported type", err)
	}

	iface := reflect.TypeFor[int32Adder]()
	if err := r.SetDefaultCollectionType(iface, reflect.TypeFor[*intBag]()); err != nil {
		t.Fatalf("SetDefaultCollectionType: %v", err)
	}
	h = bagHolder{}
	if err := r.Unmarshal(data, &h); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got, ok := h.Bag.(*intBag)
	if !ok || !reflect.DeepEqual(got.items, []int32{1, 2}) {
		t.Errorf("Bag = %#v", h.Bag)
	}

	t.Run("invalid defaults", func(t *testing.T) {
		if err := r.SetDefaultCollectionType(reflect.TypeFor[intBag](), reflect.TypeFor[*intBag]()); kindOf(err) != errors.KindUnsupportedType {
			t.Errorf("non-interface key: err = %v", err)
		}
		if err := r.SetDefaultCollectionType(iface, reflect.TypeFor[point]()); kindOf(err) != errors.KindTypeMismatch {
			t.Errorf("non-implementing type: err = %v", err)
		}
	})
}

func TestRegistry_EntryByName(t *testing.T) {
	r := New()
	if _, err := r.Define(reflect.TypeFor[pair]()).Name("Coordinates").Field(1, "A").Field(2, "B").Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	e, ok := r.EntryByName("Coordinates")
	if !ok || e.Type() != reflect.TypeFor[pair]() {
		t.Fatalf("EntryByName = %v, %v", e, ok)
	}
	if _, ok := r.EntryByName("Missing"); ok {
		t.Error("unknown name resolved")
	}
}

func TestGraph_EnvelopeWireTypes(t *testing.T) {
	r := New()
	e, err := r.Define(reflect.TypeFor[envelope]()).
		Field(1, "S", DynamicType(), Group()).
		Field(2, "Next", AsReference(), Group()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	g, err := e.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	for _, m := range g.Members() {
		if m.WireType != wire.Bytes {
			t.Errorf("%s: wire type = %s, want bytes", m.Name, wire.TypeName(m.WireType))
		}
	}

	data, err := r.Marshal(envelope{S: square{Side: 1}, Next: &link{Name: "a"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got envelope
	if err := r.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if sq, ok := got.S.(*square); !ok || sq.Side != 1 || got.Next == nil || got.Next.Name != "a" {
		t.Errorf("got %#v", got)
	}

	tests := []struct {
		name   string
		member string
		opts   []FieldOption
	}{
		{"dynamic with zigzag", "S", []FieldOption{DynamicType(), ZigZag()}},
		{"reference with fixed", "Next", []FieldOption{AsReference(), Fixed()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Define(reflect.TypeFor[envelope]()).Field(1, tt.member, tt.opts...).Build()
			if kindOf(err) != errors.KindInvalidFormat {
				t.Errorf("err = %v, want invalid format", err)
			}
		})
	}
}
