package model

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/elliotchance/orderedmap/v2"
)

// Marker names produced by TagProbe.
const (
	MarkerContract = "contract"
	MarkerInclude  = "include"
	MarkerMember   = "member"
	MarkerIgnore   = "ignore"
)

// Marker is one declarative annotation found on a type or member. Data
// keeps the declaration order of its pairs.
type Marker struct {
	Data *orderedmap.OrderedMap[string, string]
	Type reflect.Type
	Name string
}

// Get returns the value stored under key.
func (m Marker) Get(key string) (string, bool) {
	if m.Data == nil {
		return "", false
	}
	return m.Data.Get(key)
}

// Has reports whether key is present, with or without a value.
func (m Marker) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// MetadataProbe enumerates the markers auto-discovery uses to configure
// new entries. The engine never looks at declaration syntax directly.
type MetadataProbe interface {
	TypeMarkers(t reflect.Type) []Marker
	MemberMarkers(owner reflect.Type, f reflect.StructField) []Marker
}

// Include declares a derived type of a contract.
type Include struct {
	Type   reflect.Type
	Tag    int
	Format DataFormat
}

// Contract is type-level metadata a type can publish through
// ContractProvider.
type Contract struct {
	Name string
	// Implicit numbers untagged exported fields in declaration order.
	Implicit bool
	// ImplicitFirstTag is the first number handed out when Implicit is set.
	ImplicitFirstTag int
	SkipConstructor  bool
	Include          []Include
}

// ContractProvider is implemented by types that declare contract metadata.
// ProtoContract is called on a zero value and must not depend on state.
type ContractProvider interface {
	ProtoContract() Contract
}

var contractProviderType = reflect.TypeOf((*ContractProvider)(nil)).Elem()

// TagProbe reads `proto` struct tags and the ContractProvider interface.
//
// Member tags have the form `proto:"<tag>[,option...]"`, where options are
// zigzag, fixed, twos, group, packed, required, overwrite, ref, dynamic,
// key=<format>, value=<format>, name=<schema name> and default=<value>.
// default must come last; everything after it is the value. The tag "-"
// excludes the member.
type TagProbe struct {
	// TagName overrides the struct tag key. Defaults to "proto".
	TagName string
}

func (p TagProbe) key() string {
	if p.TagName != "" {
		return p.TagName
	}
	return "proto"
}

// TypeMarkers implements MetadataProbe.
func (p TagProbe) TypeMarkers(t reflect.Type) []Marker {
	var out []Marker

	if c, ok := contractOf(t); ok {
		data := orderedmap.NewOrderedMap[string, string]()
		if c.Name != "" {
			data.Set("name", c.Name)
		}
		if c.Implicit {
			data.Set("implicit", strconv.Itoa(max(c.ImplicitFirstTag, 1)))
		}
		if c.SkipConstructor {
			data.Set("skip-constructor", "")
		}
		out = append(out, Marker{Name: MarkerContract, Data: data, Type: t})

		for _, inc := range c.Include {
			d := orderedmap.NewOrderedMap[string, string]()
			d.Set("tag", strconv.Itoa(inc.Tag))
			d.Set("format", inc.Format.String())
			out = append(out, Marker{Name: MarkerInclude, Data: d, Type: inc.Type})
		}
		return out
	}

	if t.Kind() == reflect.Struct && p.hasTaggedField(t) {
		out = append(out, Marker{
			Name: MarkerContract,
			Data: orderedmap.NewOrderedMap[string, string](),
			Type: t,
		})
	}
	return out
}

func (p TagProbe) hasTaggedField(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if tag, ok := t.Field(i).Tag.Lookup(p.key()); ok && tag != "-" {
			return true
		}
	}
	return false
}

// MemberMarkers implements MetadataProbe.
func (p TagProbe) MemberMarkers(_ reflect.Type, f reflect.StructField) []Marker {
	raw, ok := f.Tag.Lookup(p.key())
	if !ok {
		return nil
	}
	if raw == "-" {
		return []Marker{{Name: MarkerIgnore, Type: f.Type}}
	}

	data := orderedmap.NewOrderedMap[string, string]()
	rest := raw
	first := true
	for rest != "" {
		if strings.HasPrefix(rest, "default=") {
			data.Set("default", strings.TrimPrefix(rest, "default="))
			break
		}
		part, tail, _ := strings.Cut(rest, ",")
		rest = tail
		part = strings.TrimSpace(part)
		if first {
			first = false
			if part != "" {
				data.Set("tag", part)
			}
			continue
		}
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		data.Set(k, v)
	}
	return []Marker{{Name: MarkerMember, Data: data, Type: f.Type}}
}

func contractOf(t reflect.Type) (Contract, bool) {
	if t.Kind() == reflect.Interface {
		return Contract{}, false
	}
	if !reflect.PointerTo(t).Implements(contractProviderType) {
		return Contract{}, false
	}
	c := reflect.New(t).Interface().(ContractProvider).ProtoContract()
	if t.Kind() != reflect.Struct {
		return c, true
	}
	// A contract promoted unchanged from an embedded base belongs to the
	// base, not to t.
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		ft := derefType(f.Type)
		if !f.Anonymous || ft.Kind() != reflect.Struct || !reflect.PointerTo(ft).Implements(contractProviderType) {
			continue
		}
		if reflect.DeepEqual(c, reflect.New(ft).Interface().(ContractProvider).ProtoContract()) {
			return Contract{}, false
		}
	}
	return c, true
}

func findMarker(ms []Marker, name string) (Marker, bool) {
	for _, m := range ms {
		if m.Name == name {
			return m, true
		}
	}
	return Marker{}, false
}
