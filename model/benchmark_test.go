package model

import (
	"reflect"
	"testing"

	"github.com/wippyai/protomodel/wire"
)

func BenchmarkMarshal_Point(b *testing.B) {
	r := New()
	v := point{X: 3, Y: -4}
	_, _ = r.Marshal(v)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Marshal(v)
	}
}

func BenchmarkUnmarshal_Point(b *testing.B) {
	r := New()
	data, _ := r.Marshal(point{X: 3, Y: -4})
	var p point

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Unmarshal(data, &p)
	}
}

func BenchmarkMarshal_Inventory(b *testing.B) {
	r := New()
	v := inventory{
		Tags:   []string{"a", "b", "c"},
		Counts: []int32{1, 2, 300, 4000},
		Points: []*point{{X: 1}, {X: 2, Y: 3}},
		Labels: map[string]int32{"x": 1, "y": 2},
	}
	_, _ = r.Marshal(v)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Marshal(v)
	}
}

func BenchmarkDeserializeType_Interface(b *testing.B) {
	r := New()
	if _, err := r.Define(reflect.TypeFor[animal]()).
		SubType(1, reflect.TypeFor[dog]()).
		SubType(2, reflect.TypeFor[cat]()).
		Build(); err != nil {
		b.Fatal(err)
	}
	data, _ := r.Marshal(dog{Name: "rex"})
	t := reflect.TypeFor[animal]()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.DeserializeType(t, data)
	}
}

func BenchmarkWriter_Varint(b *testing.B) {
	w := wire.NewWriter(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Reset()
		_ = w.WriteTag(1, wire.Varint)
		w.WriteVarint(uint64(i))
	}
}
