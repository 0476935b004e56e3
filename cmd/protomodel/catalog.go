package main

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"time"

	"github.com/ericlagergren/decimal"
	"github.com/google/uuid"
	"github.com/stoewer/go-strcase"

	"github.com/wippyai/protomodel/model"
)

// Catalog types the CLI can encode, decode and describe.

type Status int32

const (
	StatusPending Status = iota
	StatusPaid
	StatusShipped
)

func (Status) ProtoEnumValues() []model.EnumValue {
	return []model.EnumValue{
		{Name: "Pending", Value: int64(StatusPending), WireValue: 0},
		{Name: "Paid", Value: int64(StatusPaid), WireValue: 1},
		{Name: "Shipped", Value: int64(StatusShipped), WireValue: 2},
	}
}

type Address struct {
	Street string `proto:"1"`
	City   string `proto:"2"`
	Zip    string `proto:"3"`
}

type LineItem struct {
	SKU   string      `proto:"1"`
	Qty   int32       `proto:"2"`
	Price decimal.Big `proto:"3"`
}

type Order struct {
	ID       uuid.UUID         `proto:"1"`
	Customer string            `proto:"2"`
	Status   Status            `proto:"3"`
	Placed   time.Time         `proto:"4"`
	Items    []LineItem        `proto:"5"`
	Ship     *Address          `proto:"6"`
	Notes    map[string]string `proto:"7"`
	Weights  []int32           `proto:"8,packed"`
}

type Shape interface {
	Area() float64
}

type Circle struct {
	R float64 `proto:"1"`
}

func (c Circle) Area() float64 { return math.Pi * c.R * c.R }

type Square struct {
	Side float64 `proto:"1"`
}

func (s Square) Area() float64 { return s.Side * s.Side }

type Drawing struct {
	Title  string  `proto:"1"`
	Shapes []Shape `proto:"2"`
}

type catalog struct {
	reg   *model.Registry
	types map[string]reflect.Type
}

var catalogTypes = []reflect.Type{
	reflect.TypeFor[Address](),
	reflect.TypeFor[LineItem](),
	reflect.TypeFor[Order](),
	reflect.TypeFor[Circle](),
	reflect.TypeFor[Square](),
	reflect.TypeFor[Drawing](),
}

// newCatalog registers the catalog types on a fresh registry.
func newCatalog(opts ...model.Option) (*catalog, error) {
	c := &catalog{
		reg:   model.New(opts...),
		types: make(map[string]reflect.Type),
	}

	shape := reflect.TypeFor[Shape]()
	if _, err := c.reg.Define(shape).
		SubType(1, reflect.TypeFor[Circle]()).
		SubType(2, reflect.TypeFor[Square]()).
		Build(); err != nil {
		return nil, err
	}
	c.types[strcase.KebabCase(shape.Name())] = shape

	for _, t := range catalogTypes {
		if _, err := c.reg.Add(t, true); err != nil {
			return nil, err
		}
		c.types[strcase.KebabCase(t.Name())] = t
	}
	return c, nil
}

// lookup finds a catalog type by its kebab-case name, e.g. "line-item".
func (c *catalog) lookup(name string) (reflect.Type, error) {
	t, ok := c.types[strcase.KebabCase(name)]
	if !ok {
		return nil, fmt.Errorf("unknown type %q (known: %v)", name, c.names())
	}
	return t, nil
}

func (c *catalog) names() []string {
	out := make([]string, 0, len(c.types))
	for name := range c.types {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func price(s string) decimal.Big {
	var d decimal.Big
	d.SetString(s)
	return d
}

// samples returns one populated value per catalog type, keyed by name.
func samples() map[string]any {
	ship := &Address{Street: "1 Main St", City: "Springfield", Zip: "49007"}
	return map[string]any{
		"address": *ship,
		"line-item": LineItem{
			SKU:   "BOLT-M8",
			Qty:   12,
			Price: price("0.35"),
		},
		"order": Order{
			ID:       uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2"),
			Customer: "ACME",
			Status:   StatusPaid,
			Placed:   time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
			Items: []LineItem{
				{SKU: "BOLT-M8", Qty: 12, Price: price("0.35")},
				{SKU: "NUT-M8", Qty: 12, Price: price("0.10")},
			},
			Ship:    ship,
			Notes:   map[string]string{"gate": "B", "dock": "4"},
			Weights: []int32{8, 3},
		},
		"circle": Circle{R: 1.5},
		"square": Square{Side: 2},
		"drawing": Drawing{
			Title:  "plan",
			Shapes: []Shape{Circle{R: 1}, Square{Side: 3}},
		},
	}
}
