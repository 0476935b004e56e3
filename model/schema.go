package model

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/stoewer/go-strcase"

	"github.com/wippyai/protomodel/model/internal/scalar"
)

const (
	importTimestamp = "google/protobuf/timestamp.proto"
	importDuration  = "google/protobuf/duration.proto"
)

// Schema renders a proto2 description of t and every type it reaches. A nil
// t describes every registered type. Building the description compiles the
// graphs involved, which freezes their entries.
func (r *Registry) Schema(t reflect.Type) (string, error) {
	sw := &schemaWriter{
		reg:     r,
		seen:    make(map[*TypeEntry]bool),
		enums:   make(map[reflect.Type]bool),
		imports: make(map[string]bool),
	}

	if t == nil {
		roots := r.Types()
		slices.SortFunc(roots, func(a, b *TypeEntry) int { return strings.Compare(a.name, b.name) })
		for _, e := range roots {
			sw.enqueue(e)
		}
	} else {
		e, _, err := r.entryFor(normalizeType(t))
		if err != nil {
			return "", err
		}
		sw.enqueue(e)
	}

	for len(sw.queue) > 0 {
		e := sw.queue[0]
		sw.queue = sw.queue[1:]
		if err := sw.message(e); err != nil {
			return "", err
		}
	}
	return sw.String(), nil
}

type schemaWriter struct {
	reg     *Registry
	seen    map[*TypeEntry]bool
	queue   []*TypeEntry
	enums   map[reflect.Type]bool
	imports map[string]bool

	messages strings.Builder
	enumText strings.Builder
}

func (sw *schemaWriter) String() string {
	var b strings.Builder
	b.WriteString("syntax = \"proto2\";\n")
	imports := make([]string, 0, len(sw.imports))
	for imp := range sw.imports {
		imports = append(imports, imp)
	}
	slices.Sort(imports)
	if len(imports) > 0 {
		b.WriteByte('\n')
	}
	for _, imp := range imports {
		fmt.Fprintf(&b, "import %q;\n", imp)
	}
	b.WriteString(sw.messages.String())
	b.WriteString(sw.enumText.String())
	return b.String()
}

// enqueue schedules e, or the surrogate standing in for it.
func (sw *schemaWriter) enqueue(e *TypeEntry) *TypeEntry {
	if e.surrogate != nil {
		e = e.surrogate.entry
	}
	if !sw.seen[e] {
		sw.seen[e] = true
		sw.queue = append(sw.queue, e)
	}
	return e
}

func (sw *schemaWriter) message(e *TypeEntry) error {
	g, err := e.Graph()
	if err != nil {
		return err
	}
	b := &sw.messages
	fmt.Fprintf(b, "\nmessage %s {\n", messageName(e))

	for _, m := range g.fields {
		line, err := sw.field(m.plan)
		if err != nil {
			return err
		}
		b.WriteString("   " + line + "\n")
	}
	if len(g.subtypes) > 0 {
		b.WriteString("   oneof subtype {\n")
		for _, s := range g.subtypes {
			d := sw.enqueue(s.entry)
			name := messageName(d)
			fmt.Fprintf(b, "      %s %s = %d;\n", name, strcase.SnakeCase(name), s.field)
		}
		b.WriteString("   }\n")
	}
	b.WriteString("}\n")
	return nil
}

func (sw *schemaWriter) field(p *FieldPlan) (string, error) {
	name := p.SchemaName
	if name == "" {
		name = strcase.SnakeCase(p.Name)
	}

	switch {
	case p.isMap:
		k, _, err := sw.typeName(p.shape.Key, p.KeyFormat, false, false)
		if err != nil {
			return "", err
		}
		v, note, err := sw.typeName(p.shape.Value, p.ValueFormat, p.AsReference, p.DynamicType)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("map<%s, %s> %s = %d;%s", k, v, name, p.Tag, note), nil

	case p.isList:
		if p.shape.Pair {
			k, _, err := sw.typeName(p.shape.Key, p.KeyFormat, false, false)
			if err != nil {
				return "", err
			}
			v, note, err := sw.typeName(p.shape.Value, p.ValueFormat, p.AsReference, p.DynamicType)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("map<%s, %s> %s = %d;%s", k, v, name, p.Tag, note), nil
		}
		typ, note, err := sw.typeName(p.ItemType, p.Format, p.AsReference, p.DynamicType)
		if err != nil {
			return "", err
		}
		opts := ""
		if p.Packed {
			opts = " [packed = true]"
		}
		return fmt.Sprintf("repeated %s %s = %d%s;%s", typ, name, p.Tag, opts, note), nil
	}

	typ, note, err := sw.typeName(p.MemberType, p.Format, p.AsReference, p.DynamicType)
	if err != nil {
		return "", err
	}
	label := "optional"
	if p.Required {
		label = "required"
	}
	opts := ""
	if p.DefaultValue.IsValid() {
		opts = " [default = " + defaultLiteral(p.DefaultValue) + "]"
	}
	return fmt.Sprintf("%s %s %s = %d%s;%s", label, typ, name, p.Tag, opts, note), nil
}

// typeName returns the schema type of t and an optional trailing comment.
func (sw *schemaWriter) typeName(t reflect.Type, format DataFormat, ref, dynamic bool) (string, string, error) {
	switch {
	case ref:
		return "bytes", " // reference to " + messageNameOf(derefType(t)), nil
	case dynamic:
		return "bytes", " // dynamic " + t.String(), nil
	}
	t = derefType(t)

	if tbl, ok := sw.reg.enums.Load(t); ok {
		if !sw.enums[t] {
			sw.enums[t] = true
			sw.enum(tbl)
		}
		return messageNameOf(t), "", nil
	}
	if scalar.IsScalar(t) {
		return sw.scalarName(t, format), "", nil
	}

	e, _, err := sw.reg.entryFor(normalizeType(t))
	if err != nil {
		return "", "", err
	}
	name := messageName(sw.enqueue(e))
	if format == FormatGroup {
		return name, " // group", nil
	}
	return name, "", nil
}

func (sw *schemaWriter) scalarName(t reflect.Type, format DataFormat) string {
	k := scalar.Of(t)
	fixed := format == FormatFixedSize
	switch {
	case k == scalar.KindBool:
		if fixed {
			return "fixed32"
		}
		return "bool"
	case k.IsSigned():
		width := "32"
		if k.Is64() {
			width = "64"
		}
		switch format {
		case FormatZigZag:
			return "sint" + width
		case FormatFixedSize:
			return "sfixed" + width
		}
		return "int" + width
	case k.IsUnsigned():
		width := "32"
		if k.Is64() {
			width = "64"
		}
		if fixed {
			return "fixed" + width
		}
		return "uint" + width
	case k == scalar.KindFloat32:
		return "float"
	case k == scalar.KindFloat64:
		return "double"
	case k == scalar.KindBytes, k == scalar.KindUUID:
		return "bytes"
	case k == scalar.KindTime:
		if fixed {
			return "sfixed64"
		}
		sw.imports[importTimestamp] = true
		return "google.protobuf.Timestamp"
	case k == scalar.KindDuration:
		if fixed {
			return "sfixed64"
		}
		sw.imports[importDuration] = true
		return "google.protobuf.Duration"
	}
	return "string"
}

func (sw *schemaWriter) enum(tbl *enumTable) {
	b := &sw.enumText
	fmt.Fprintf(b, "\nenum %s {\n", messageNameOf(tbl.typ))
	values := slices.Clone(tbl.values)
	slices.SortFunc(values, func(a, b EnumValue) int { return cmp.Compare(a.WireValue, b.WireValue) })
	for _, v := range values {
		fmt.Fprintf(b, "   %s = %d;\n", strcase.UpperSnakeCase(v.Name), v.WireValue)
	}
	b.WriteString("}\n")
}

func messageName(e *TypeEntry) string {
	name := e.name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strcase.UpperCamelCase(name)
}

func messageNameOf(t reflect.Type) string {
	return strcase.UpperCamelCase(t.Name())
}

func defaultLiteral(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return fmt.Sprintf("%q", v.String())
	case reflect.Slice:
		return fmt.Sprintf("%q", v.Bytes())
	}
	if s, ok := addressOf(v).Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v.Interface())
}
