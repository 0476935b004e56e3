package model

import (
	stderrors "errors"
	"iter"
	"net/url"
	"reflect"
	"time"

	"github.com/ericlagergren/decimal"
	"github.com/google/uuid"

	"github.com/wippyai/protomodel/errors"
)

// Shared fixtures for the model tests.

type point struct {
	X int32 `proto:"1"`
	Y int32 `proto:"2,zigzag"`
}

type bare struct {
	X, Y int32
}

type pair struct {
	A, B int32
}

type animal interface {
	Sound() string
}

type dog struct {
	Name string `proto:"1"`
}

func (dog) Sound() string { return "woof" }

type cat struct {
	Lives int32 `proto:"1"`
}

func (*cat) Sound() string { return "meow" }

// Vehicle declares Car as a subtype through its contract.
type Vehicle struct {
	Wheels int32 `proto:"1"`
}

func (*Vehicle) ProtoContract() Contract {
	return Contract{Include: []Include{{Type: reflect.TypeFor[Car](), Tag: 10}}}
}

type Car struct {
	Vehicle
	Brand string `proto:"1"`
}

type walker interface{ Walk() }
type strider interface{ Walk() }

type intBag struct {
	items []int32
}

func (b *intBag) Add(v int32) { b.items = append(b.items, v) }

func (b *intBag) All() iter.Seq[int32] {
	return func(yield func(int32) bool) {
		for _, v := range b.items {
			if !yield(v) {
				return
			}
		}
	}
}

type inventory struct {
	Tags   []string         `proto:"1"`
	Counts []int32          `proto:"2,packed"`
	Scores [3]float64       `proto:"3"`
	Points []*point         `proto:"4"`
	Labels map[string]int32 `proto:"5"`
	Bag    intBag           `proto:"6"`
}

type packedInts struct {
	V []int32 `proto:"1,packed"`
}

type plainInts struct {
	V []int32 `proto:"1"`
}

type optional struct {
	Name           string `proto:"1"`
	Count          int32  `proto:"2"`
	CountSpecified bool
	Ptr            *int32 `proto:"3"`
}

type withDefaults struct {
	Level int32  `proto:"1,default=5"`
	Mode  string `proto:"2,default=fast"`
}

type color int32

const (
	red color = iota
	green
	blue
)

func (color) ProtoEnumValues() []EnumValue {
	return []EnumValue{
		{Name: "Red", Value: int64(red), WireValue: 10},
		{Name: "Green", Value: int64(green), WireValue: 20},
		{Name: "Blue", Value: int64(blue), WireValue: 30},
	}
}

type paint struct {
	C color `proto:"1"`
}

type record struct {
	At    time.Time     `proto:"1"`
	TTL   time.Duration `proto:"2"`
	Price decimal.Big   `proto:"3"`
	ID    uuid.UUID     `proto:"4"`
	Link  url.URL       `proto:"5"`
	Stamp time.Time     `proto:"6,fixed"`
}

type link struct {
	Name string `proto:"1"`
	Next *link  `proto:"2,ref"`
}

type loop struct {
	Next *loop `proto:"1"`
}

type figure interface {
	Area() float64
}

type square struct {
	Side float64 `proto:"1"`
}

func (s square) Area() float64 { return s.Side * s.Side }

type canvas struct {
	S figure `proto:"1,dynamic"`
}

type celsius struct {
	deg float64
}

type celsiusDTO struct {
	Milli int64 `proto:"1"`
}

type weather struct {
	T celsius `proto:"1"`
}

type span struct {
	Start, End int32
}

type tiny struct {
	V int8 `proto:"1"`
}

type nested struct {
	M [][]int32 `proto:"1"`
}

type stamped struct {
	N        int32 `proto:"1"`
	restored bool
}

func (s *stamped) AfterProtoDeserialize() error {
	s.restored = true
	return nil
}

type implicitly struct {
	First  string
	Second int32
	Fixed  int32 `proto:"1"`
	Hidden string `proto:"-"`
}

func (*implicitly) ProtoContract() Contract {
	return Contract{Implicit: true, ImplicitFirstTag: 1}
}

func kindOf(err error) errors.Kind {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

type int32Adder interface {
	Add(int32)
	All() iter.Seq[int32]
}

type bagHolder struct {
	Bag int32Adder `proto:"1"`
}

type envelope struct {
	S    figure
	Next *link
}
