package shape

import (
	"errors"
	"reflect"
	"strings"

	"github.com/wippyai/protomodel/model/internal/scalar"
)

// ErrNested is returned when a collection's item is itself a collection.
var ErrNested = errors.New("nested collections are not supported")

// Kind is the structural family of a collection.
type Kind uint8

const (
	KindNone Kind = iota
	KindSlice
	KindArray
	KindMap
	KindCustom
)

// Iteration is how a custom collection exposes its items.
type Iteration uint8

const (
	IterNone Iteration = iota
	IterSeq
	IterSeq2
	IterIndex
)

// Shape describes a collection-shaped type.
type Shape struct {
	// Item is the repeated element type. For maps it is nil; use Key/Value.
	Item  reflect.Type
	Key   reflect.Type
	Value reflect.Type
	Kind  Kind
	Pair  bool

	// Custom collections only.
	Iter      Iteration
	IterName  string
	LenName   string
	AddName   string
	PairKey   []int // field index of Key inside a pair struct item
	PairValue []int
}

type candidate struct {
	typ   reflect.Type
	key   reflect.Type
	value reflect.Type
	pair  bool
	from  string // add method name, if any
}

func (c candidate) same(o candidate) bool {
	if c.pair && o.pair {
		return c.key == o.key && c.value == o.value
	}
	return !c.pair && !o.pair && c.typ == o.typ
}

var (
	intType  = reflect.TypeOf(0)
	boolType = reflect.TypeOf(false)
)

var addPrefixes = []string{"Add", "Push", "Enqueue", "Append"}

// Resolve decides whether t is collection-shaped. It returns ErrNested when
// t is a collection whose item type is a collection.
func Resolve(t reflect.Type) (Shape, bool, error) {
	if t == nil || scalar.IsScalar(t) {
		return Shape{}, false, nil
	}

	var s Shape
	switch t.Kind() {
	case reflect.Slice:
		s = Shape{Kind: KindSlice, Item: t.Elem()}
	case reflect.Array:
		s = Shape{Kind: KindArray, Item: t.Elem()}
	case reflect.Map:
		s = Shape{Kind: KindMap, Key: t.Key(), Value: t.Elem(), Pair: true}
	case reflect.Struct, reflect.Interface:
		var ok bool
		s, ok = resolveCustom(t)
		if !ok {
			return Shape{}, false, nil
		}
	default:
		return Shape{}, false, nil
	}

	inner := s.Item
	if s.Pair {
		inner = s.Value
	}
	if IsCollection(inner) {
		return Shape{}, false, ErrNested
	}
	return s, true, nil
}

// IsCollection reports whether t is collection-shaped, ignoring nesting.
func IsCollection(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if scalar.IsScalar(t) {
		return false
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	case reflect.Struct, reflect.Interface:
		_, ok := resolveCustom(t)
		return ok
	}
	return false
}

// PairFields returns the Key and Value field indexes of a pair-shaped struct.
func PairFields(t reflect.Type) (key, value []int, ok bool) {
	if t.Kind() != reflect.Struct || t.NumField() != 2 {
		return nil, nil, false
	}
	k, kok := t.FieldByName("Key")
	v, vok := t.FieldByName("Value")
	if !kok || !vok || !k.IsExported() || !v.IsExported() {
		return nil, nil, false
	}
	return k.Index, v.Index, true
}

func resolveCustom(t reflect.Type) (Shape, bool) {
	mt := t
	if t.Kind() != reflect.Interface {
		mt = reflect.PointerTo(t)
	}

	s := Shape{Kind: KindCustom}
	iterItem, hasIter := findIteration(mt, &s)
	if !hasIter {
		return Shape{}, false
	}

	queueLike := hasMethod(mt, "Pop") || hasMethod(mt, "Dequeue")

	var cands []candidate
	addCand := func(c candidate) {
		for _, e := range cands {
			if e.same(c) {
				return
			}
		}
		cands = append(cands, c)
	}

	adds := addMethods(mt)
	for _, m := range adds {
		addCand(m)
	}
	if !queueLike {
		if iterItem.typ != nil || iterItem.pair {
			addCand(iterItem)
		}
		if idx, ok := indexer(mt); ok {
			addCand(candidate{typ: idx})
		}
	}

	var item candidate
	switch len(cands) {
	case 1:
		item = cands[0]
	case 2:
		a, b := cands[0], cands[1]
		switch {
		case a.pair && !b.pair && a.value == b.typ:
			item = a
		case b.pair && !a.pair && b.value == a.typ:
			item = b
		default:
			return Shape{}, false
		}
	default:
		return Shape{}, false
	}

	addName := ""
	for _, m := range adds {
		if m.same(item) {
			addName = m.from
			if m.typ != nil {
				item = m // prefer the concrete pair struct accepted by Add
			}
			break
		}
	}
	if addName == "" {
		return Shape{}, false
	}

	s.AddName = addName
	s.Item = item.typ
	if item.pair {
		s.Pair = true
		s.Key, s.Value = item.key, item.value
		if item.typ != nil {
			s.PairKey, s.PairValue, _ = PairFields(item.typ)
		}
	}
	if s.Iter == IterSeq2 && (!s.Pair || s.Item == nil) {
		return Shape{}, false
	}
	return s, true
}

// findIteration looks for All() iter.Seq/iter.Seq2 or Len()+At(int).
func findIteration(mt reflect.Type, s *Shape) (candidate, bool) {
	for _, name := range []string{"All", "Items", "Range"} {
		m, ok := mt.MethodByName(name)
		if !ok {
			continue
		}
		ft := methodType(mt, m)
		if ft.NumIn() != 0 || ft.NumOut() != 1 {
			continue
		}
		seq := ft.Out(0)
		if seq.Kind() != reflect.Func || seq.NumIn() != 1 || seq.NumOut() != 0 {
			continue
		}
		yield := seq.In(0)
		if yield.Kind() != reflect.Func || yield.NumOut() != 1 || yield.Out(0) != boolType {
			continue
		}
		switch yield.NumIn() {
		case 1:
			s.Iter, s.IterName = IterSeq, name
			c := candidate{typ: yield.In(0)}
			if k, v, ok := PairFields(c.typ); ok {
				c.pair = true
				c.key = c.typ.FieldByIndex(k).Type
				c.value = c.typ.FieldByIndex(v).Type
			}
			return c, true
		case 2:
			s.Iter, s.IterName = IterSeq2, name
			return candidate{key: yield.In(0), value: yield.In(1), pair: true}, true
		}
	}

	if lm, ok := mt.MethodByName("Len"); ok {
		lt := methodType(mt, lm)
		if lt.NumIn() == 0 && lt.NumOut() == 1 && lt.Out(0) == intType {
			if _, ok := indexer(mt); ok {
				s.Iter, s.LenName = IterIndex, "Len"
				s.IterName = indexerName(mt)
				return candidate{}, true
			}
		}
	}
	return candidate{}, false
}

func addMethods(mt reflect.Type) []candidate {
	var out []candidate
	for i := 0; i < mt.NumMethod(); i++ {
		m := mt.Method(i)
		if !isAddName(m.Name) {
			continue
		}
		ft := methodType(mt, m)
		if ft.NumIn() != 1 || ft.IsVariadic() {
			continue
		}
		c := candidate{typ: ft.In(0), from: m.Name}
		if k, v, ok := PairFields(c.typ); ok {
			c.pair = true
			c.key = c.typ.FieldByIndex(k).Type
			c.value = c.typ.FieldByIndex(v).Type
		}
		out = append(out, c)
	}
	return out
}

func isAddName(name string) bool {
	for _, p := range addPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func indexer(mt reflect.Type) (reflect.Type, bool) {
	name := indexerName(mt)
	if name == "" {
		return nil, false
	}
	m, _ := mt.MethodByName(name)
	return methodType(mt, m).Out(0), true
}

func indexerName(mt reflect.Type) string {
	for _, name := range []string{"At", "Index", "Get"} {
		m, ok := mt.MethodByName(name)
		if !ok {
			continue
		}
		ft := methodType(mt, m)
		if ft.NumIn() == 1 && ft.In(0) == intType && ft.NumOut() == 1 {
			return name
		}
	}
	return ""
}

func hasMethod(mt reflect.Type, name string) bool {
	_, ok := mt.MethodByName(name)
	return ok
}

// methodType returns the method signature without the receiver.
func methodType(mt reflect.Type, m reflect.Method) reflect.Type {
	if mt.Kind() == reflect.Interface {
		return m.Type
	}
	ft := m.Type
	in := make([]reflect.Type, 0, ft.NumIn()-1)
	for i := 1; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	out := make([]reflect.Type, 0, ft.NumOut())
	for i := 0; i < ft.NumOut(); i++ {
		out = append(out, ft.Out(i))
	}
	return reflect.FuncOf(in, out, ft.IsVariadic())
}
