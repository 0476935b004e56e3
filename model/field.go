package model

import (
	"reflect"
	"strconv"
	"time"

	"github.com/ericlagergren/decimal"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/model/internal/scalar"
	"github.com/wippyai/protomodel/model/internal/shape"
	"github.com/wippyai/protomodel/wire"
)

// FieldPlan is the wire contract of one member. Plans are read-only once
// added to an entry.
type FieldPlan struct {
	// DefaultValue suppresses writing when the member equals it. Invalid
	// when the field has no explicit default.
	DefaultValue reflect.Value

	MemberType reflect.Type
	// ItemType is the repeated element type of collection members.
	ItemType reflect.Type
	// DefaultType is the concrete type created for interface collections.
	DefaultType reflect.Type

	Name       string
	SchemaName string
	Index      []int
	Tag        int

	Format      DataFormat
	KeyFormat   DataFormat
	ValueFormat DataFormat

	Packed      bool
	Required    bool
	Overwrite   bool
	AsReference bool
	DynamicType bool

	shape   shape.Shape
	isList  bool
	isMap   bool
	rawDef  any
	hasDef  bool
	itemSet bool

	// Is-set probe: a bool XSpecified field or a ShouldSerializeX method.
	specified       []int
	shouldSerialize string
}

// IsList reports whether the member is a repeated field.
func (p *FieldPlan) IsList() bool { return p.isList }

// IsMap reports whether the member is a map field.
func (p *FieldPlan) IsMap() bool { return p.isMap }

// HasPresenceProbe reports whether the owner tracks presence of the member.
func (p *FieldPlan) HasPresenceProbe() bool {
	return p.specified != nil || p.shouldSerialize != ""
}

// FieldOption adjusts a plan before it is validated.
type FieldOption func(*FieldPlan)

// WithFormat sets the data format.
func WithFormat(f DataFormat) FieldOption {
	return func(p *FieldPlan) { p.Format = f }
}

// ZigZag encodes signed integers with zig-zag varints.
func ZigZag() FieldOption { return WithFormat(FormatZigZag) }

// Fixed encodes numbers and times with fixed width.
func Fixed() FieldOption { return WithFormat(FormatFixedSize) }

// TwosComplement is the explicit form of the default integer encoding.
func TwosComplement() FieldOption { return WithFormat(FormatTwosComplement) }

// Group frames nested messages with start/end group markers.
func Group() FieldOption { return WithFormat(FormatGroup) }

// Packed writes repeated scalars in one length-delimited block.
func Packed() FieldOption {
	return func(p *FieldPlan) { p.Packed = true }
}

// Required writes the member even when it equals its default.
func Required() FieldOption {
	return func(p *FieldPlan) { p.Required = true }
}

// Overwrite replaces, rather than appends to, an existing collection.
func Overwrite() FieldOption {
	return func(p *FieldPlan) { p.Overwrite = true }
}

// AsReference tracks object identity so shared and cyclic pointers survive
// a round trip.
func AsReference() FieldOption {
	return func(p *FieldPlan) { p.AsReference = true }
}

// DynamicType embeds the runtime type name for interface members.
func DynamicType() FieldOption {
	return func(p *FieldPlan) { p.DynamicType = true }
}

// DefaultValue sets the value that is not written.
func DefaultValue(v any) FieldOption {
	return func(p *FieldPlan) {
		p.rawDef = v
		p.hasDef = true
	}
}

// ItemType overrides the element type used when decoding collection items.
func ItemType(t reflect.Type) FieldOption {
	return func(p *FieldPlan) {
		p.ItemType = t
		p.itemSet = true
	}
}

// DefaultType sets the concrete type created for an interface collection.
func DefaultType(t reflect.Type) FieldOption {
	return func(p *FieldPlan) { p.DefaultType = t }
}

// KeyFormat sets the data format of map keys.
func KeyFormat(f DataFormat) FieldOption {
	return func(p *FieldPlan) { p.KeyFormat = f }
}

// ValueFormat sets the data format of map values.
func ValueFormat(f DataFormat) FieldOption {
	return func(p *FieldPlan) { p.ValueFormat = f }
}

// SchemaName sets the field name used in emitted schemas.
func SchemaName(name string) FieldOption {
	return func(p *FieldPlan) { p.SchemaName = name }
}

func newFieldPlan(owner reflect.Type, tag int, sf reflect.StructField, opts []FieldOption) (*FieldPlan, error) {
	p := &FieldPlan{
		Tag:        tag,
		Name:       sf.Name,
		Index:      sf.Index,
		MemberType: sf.Type,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.resolveShape(owner); err != nil {
		return nil, err
	}
	if err := p.validate(owner); err != nil {
		return nil, err
	}
	p.findPresenceProbe(owner)
	return p, nil
}

func (p *FieldPlan) configError(kind errors.Kind, owner reflect.Type, detail string, args ...any) error {
	return errors.New(errors.PhaseConfigure, kind).
		GoType(owner.String()).
		Path(p.Name).
		Field(p.Tag).
		Detail(detail, args...).
		Build()
}

// resolveShape decides between scalar, message, list and map members.
func (p *FieldPlan) resolveShape(owner reflect.Type) error {
	t := p.MemberType
	if t.Kind() == reflect.Pointer && !p.AsReference {
		t = t.Elem()
	}
	if scalar.IsScalar(t) {
		return nil
	}

	sh, ok, err := shape.Resolve(t)
	if err != nil {
		return p.configError(errors.KindNestedCollection, owner, "%s: %v", t, err)
	}
	if !ok {
		return nil
	}
	p.shape = sh
	if sh.Kind == shape.KindMap {
		p.isMap = true
		return nil
	}
	p.isList = true
	if !p.itemSet {
		p.ItemType = sh.Item
	} else if p.ItemType != sh.Item && !(sh.Item.Kind() == reflect.Interface && implementsEither(p.ItemType, sh.Item)) {
		return p.configError(errors.KindTypeMismatch, owner, "item type %s is not assignable to %s", p.ItemType, sh.Item)
	}
	return nil
}

// target is the type the core transform handles.
func (p *FieldPlan) target() reflect.Type {
	switch {
	case p.isList:
		return p.ItemType
	case p.isMap:
		return p.shape.Value
	case p.MemberType.Kind() == reflect.Pointer && !p.AsReference:
		return p.MemberType.Elem()
	default:
		return p.MemberType
	}
}

func (p *FieldPlan) validate(owner reflect.Type) error {
	target := p.target()

	if p.AsReference {
		if target.Kind() != reflect.Pointer || target.Elem().Kind() != reflect.Struct {
			return p.configError(errors.KindInvalidFormat, owner, "reference tracking needs a pointer to a struct, not %s", target)
		}
	}
	if p.DynamicType && target.Kind() != reflect.Interface {
		return p.configError(errors.KindInvalidFormat, owner, "dynamic typing needs an interface member, not %s", target)
	}
	if p.AsReference && p.DynamicType {
		return p.configError(errors.KindInvalidFormat, owner, "reference tracking and dynamic typing cannot be combined")
	}

	if p.isMap {
		if !scalar.IsScalar(p.shape.Key) {
			return p.configError(errors.KindUnsupportedType, owner, "map keys must be scalars, not %s", p.shape.Key)
		}
		if _, err := resolveWireType(p.KeyFormat, p.shape.Key, false, false); err != nil {
			return err
		}
		if p.Packed {
			return p.configError(errors.KindInvalidFormat, owner, "maps cannot be packed")
		}
	}

	format := p.Format
	if p.isMap {
		format = p.ValueFormat
	}
	wt, err := resolveWireType(format, derefType(target), false, p.AsReference || p.DynamicType)
	if err != nil {
		return err
	}
	if p.Packed && (!p.isList || !wire.IsPackable(wt)) {
		return p.configError(errors.KindInvalidFormat, owner, "packed needs a repeated scalar with a varint or fixed wire type")
	}

	if p.DefaultType != nil {
		if p.MemberType.Kind() != reflect.Interface || !implementsEither(p.DefaultType, p.MemberType) {
			return p.configError(errors.KindTypeMismatch, owner, "default type %s does not implement %s", p.DefaultType, p.MemberType)
		}
	}

	if p.hasDef {
		if p.isList || p.isMap || p.MemberType.Kind() == reflect.Pointer {
			return p.configError(errors.KindInvalidFormat, owner, "default values apply to non-pointer scalar members only")
		}
		v, err := convertDefault(p.rawDef, p.MemberType)
		if err != nil {
			return p.configError(errors.KindTypeMismatch, owner, "default value: %v", err)
		}
		p.DefaultValue = v
	}
	return nil
}

func (p *FieldPlan) findPresenceProbe(owner reflect.Type) {
	if f, ok := owner.FieldByName(p.Name + "Specified"); ok && f.IsExported() && f.Type.Kind() == reflect.Bool {
		p.specified = f.Index
		return
	}
	name := "ShouldSerialize" + p.Name
	if m, ok := reflect.PointerTo(owner).MethodByName(name); ok {
		mt := m.Type
		if mt.NumIn() == 1 && mt.NumOut() == 1 && mt.Out(0).Kind() == reflect.Bool {
			p.shouldSerialize = name
		}
	}
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	decimalType  = reflect.TypeOf(decimal.Big{})
)

// convertDefault turns a Go value or a tag string into a value of type t.
func convertDefault(raw any, t reflect.Type) (reflect.Value, error) {
	if s, ok := raw.(string); ok && t.Kind() != reflect.String {
		return parseDefault(s, t)
	}
	v := reflect.ValueOf(raw)
	if t == decimalType {
		if d, ok := raw.(*decimal.Big); ok {
			v = reflect.ValueOf(*d)
		}
	}
	if !v.IsValid() || !v.Type().ConvertibleTo(t) {
		return reflect.Value{}, errors.New(errors.PhaseConfigure, errors.KindTypeMismatch).
			Detail("%T is not convertible to %s", raw, t).
			Build()
	}
	return v.Convert(t), nil
}

func parseDefault(s string, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	var err error
	switch {
	case t == durationType:
		var d time.Duration
		d, err = time.ParseDuration(s)
		out.SetInt(int64(d))
	case t == decimalType:
		d, ok := new(decimal.Big).SetString(s)
		if !ok {
			err = strconv.ErrSyntax
			break
		}
		out.Set(reflect.ValueOf(*d))
	default:
		switch t.Kind() {
		case reflect.Bool:
			var b bool
			b, err = strconv.ParseBool(s)
			out.SetBool(b)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			var i int64
			i, err = strconv.ParseInt(s, 0, t.Bits())
			out.SetInt(i)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			var u uint64
			u, err = strconv.ParseUint(s, 0, t.Bits())
			out.SetUint(u)
		case reflect.Float32, reflect.Float64:
			var f float64
			f, err = strconv.ParseFloat(s, t.Bits())
			out.SetFloat(f)
		default:
			return reflect.Value{}, errors.New(errors.PhaseConfigure, errors.KindUnsupportedType).
				GoType(t.String()).
				Detail("tag defaults are not supported for this type").
				Build()
		}
	}
	if err != nil {
		return reflect.Value{}, errors.Wrap(errors.PhaseConfigure, errors.KindTypeMismatch, err, "invalid default "+strconv.Quote(s))
	}
	return out, nil
}
