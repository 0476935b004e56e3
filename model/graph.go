package model

import (
	"reflect"
	"slices"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/model/internal/scalar"
	"github.com/wippyai/protomodel/wire"
)

// GraphKind is the strategy a graph was compiled with.
type GraphKind uint8

const (
	GraphMessage GraphKind = iota
	GraphList
	GraphTuple
	GraphSurrogate
)

func (k GraphKind) String() string {
	switch k {
	case GraphMessage:
		return "message"
	case GraphList:
		return "list"
	case GraphTuple:
		return "tuple"
	case GraphSurrogate:
		return "surrogate"
	default:
		return "unknown"
	}
}

// denseLimit is the largest tag served by the dense dispatch table.
const denseLimit = 256

// Graph is the compiled encoder and decoder of one entry. Graphs are
// immutable and safe for concurrent use.
type Graph struct {
	entry    *TypeEntry
	kind     GraphKind
	fields   []*member
	subtypes []*subMember

	dense  []target
	sparse map[int]target
}

type member struct {
	plan  *FieldPlan
	root  node
	index []int
	tag   int
}

type subMember struct {
	entry *TypeEntry
	framing
}

type target struct {
	field *member
	sub   *subMember
}

// GraphMember describes one dispatch target.
type GraphMember struct {
	Name     string
	Tag      int
	WireType wire.Type
	SubType  bool
}

// Entry returns the entry the graph was built for.
func (g *Graph) Entry() *TypeEntry { return g.entry }

// Kind returns the compile strategy.
func (g *Graph) Kind() GraphKind { return g.kind }

// Members lists the dispatch targets ordered by tag.
func (g *Graph) Members() []GraphMember {
	out := make([]GraphMember, 0, len(g.fields)+len(g.subtypes))
	for _, s := range g.subtypes {
		out = append(out, GraphMember{Name: s.entry.name, Tag: s.field, WireType: s.wt, SubType: true})
	}
	for _, m := range g.fields {
		out = append(out, GraphMember{Name: m.plan.Name, Tag: m.tag, WireType: m.root.(*tagNode).wt})
	}
	slices.SortFunc(out, func(a, b GraphMember) int { return a.Tag - b.Tag })
	return out
}

// buildGraph compiles e. It runs under the registry lock and never asks
// for another entry's graph.
func (r *Registry) buildGraph(e *TypeEntry) (*Graph, error) {
	g := &Graph{entry: e, kind: GraphMessage}

	switch {
	case e.surrogate != nil:
		g.kind = GraphSurrogate
		return g, nil

	case e.tuple != nil:
		g.kind = GraphTuple
		for _, p := range e.tuple.plans {
			m, err := r.buildMember(e, p)
			if err != nil {
				return nil, err
			}
			g.fields = append(g.fields, m)
		}

	case e.isCollection():
		g.kind = GraphList
		p, err := newFieldPlan(e.typ, 1, reflect.StructField{Name: "Items", Type: e.typ}, nil)
		if err != nil {
			return nil, err
		}
		m, err := r.buildMember(e, p)
		if err != nil {
			return nil, err
		}
		m.index = nil
		g.fields = append(g.fields, m)

	default:
		for _, p := range e.Fields() {
			m, err := r.buildMember(e, p)
			if err != nil {
				return nil, err
			}
			g.fields = append(g.fields, m)
		}
		for _, s := range e.SubTypes() {
			wt, err := resolveWireType(s.Format, s.Derived.typ, false, false)
			if err != nil {
				return nil, err
			}
			g.subtypes = append(g.subtypes, &subMember{
				entry:   s.Derived,
				framing: framing{field: s.Tag, wt: wt},
			})
		}
	}

	g.index()
	return g, nil
}

// index builds the tag dispatch: a dense table when tags are small,
// otherwise a map.
func (g *Graph) index() {
	maxTag := 0
	for _, m := range g.fields {
		maxTag = max(maxTag, m.tag)
	}
	for _, s := range g.subtypes {
		maxTag = max(maxTag, s.field)
	}

	if maxTag <= denseLimit {
		g.dense = make([]target, maxTag+1)
		for _, m := range g.fields {
			g.dense[m.tag] = target{field: m}
		}
		for _, s := range g.subtypes {
			g.dense[s.field] = target{sub: s}
		}
		return
	}
	g.sparse = make(map[int]target, len(g.fields)+len(g.subtypes))
	for _, m := range g.fields {
		g.sparse[m.tag] = target{field: m}
	}
	for _, s := range g.subtypes {
		g.sparse[s.field] = target{sub: s}
	}
}

func (g *Graph) lookup(tag int) (target, bool) {
	if g.dense != nil {
		if tag < len(g.dense) {
			t := g.dense[tag]
			return t, t.field != nil || t.sub != nil
		}
		return target{}, false
	}
	t, ok := g.sparse[tag]
	return t, ok
}

// subFor returns the subtype member leading to the direct child d.
func (g *Graph) subFor(d *TypeEntry) *subMember {
	for _, s := range g.subtypes {
		if s.entry == d {
			return s
		}
	}
	return nil
}

// buildMember composes the node chain of one field, outer to inner:
// tag, presence, collection, default, core.
func (r *Registry) buildMember(owner *TypeEntry, p *FieldPlan) (*member, error) {
	var (
		inner node
		wt    wire.Type
		err   error
	)

	switch {
	case p.isMap:
		inner, err = r.buildMap(p)
		wt = wire.Bytes

	case p.isList:
		inner, wt, err = r.buildList(p)

	default:
		t := p.target()
		inner, wt, err = r.buildCore(t, p.Format, p.AsReference, p.DynamicType)
		if err != nil {
			break
		}
		if d := r.defaultFor(p, t); d != nil {
			d.next = inner
			inner = d
		}
		switch {
		case p.AsReference, p.DynamicType, p.MemberType.Kind() == reflect.Interface:
			inner = &presenceNode{next: inner}
		case p.MemberType.Kind() == reflect.Pointer:
			inner = &presenceNode{next: inner, deref: true}
		}
	}
	if err != nil {
		return nil, withMemberPath(err, owner, p)
	}

	return &member{
		plan:  p,
		tag:   p.Tag,
		index: p.Index,
		root:  &tagNode{next: inner, framing: framing{field: p.Tag, wt: wt}},
	}, nil
}

func withMemberPath(err error, owner *TypeEntry, p *FieldPlan) error {
	if e, ok := err.(*errors.Error); ok && len(e.Path) == 0 {
		c := *e
		c.Path = []string{owner.typ.Name(), p.Name}
		if c.Field == 0 {
			c.Field = p.Tag
		}
		return &c
	}
	return err
}

// buildCore returns the innermost transform for t and its wire type.
func (r *Registry) buildCore(t reflect.Type, format DataFormat, ref, dynamic bool) (node, wire.Type, error) {
	switch {
	case ref:
		wt, err := resolveWireType(format, t.Elem(), false, true)
		if err != nil {
			return nil, 0, err
		}
		e, err := r.findOrAddLocked(t.Elem(), false, true)
		if err != nil {
			return nil, 0, err
		}
		return &refNode{entry: e}, wt, nil

	case dynamic:
		wt, err := resolveWireType(format, t, false, true)
		if err != nil {
			return nil, 0, err
		}
		return &dynamicNode{iface: t}, wt, nil

	case scalar.IsScalar(t):
		enum, err := r.enumForLocked(t)
		if err != nil {
			return nil, 0, err
		}
		n, err := newScalarNode(t, format, enum)
		if err != nil {
			return nil, 0, err
		}
		return n, n.wt, nil
	}

	e, err := r.findOrAddLocked(t, false, true)
	if err != nil {
		return nil, 0, err
	}
	wt, err := resolveWireType(format, t, false, false)
	if err != nil {
		return nil, 0, err
	}
	return &messageNode{entry: e}, wt, nil
}

// defaultFor returns a suppression step for plain scalar members, or nil.
func (r *Registry) defaultFor(p *FieldPlan, t reflect.Type) *defaultNode {
	if p.Required || p.HasPresenceProbe() || p.AsReference || p.DynamicType ||
		p.MemberType.Kind() == reflect.Pointer || !scalar.IsScalar(t) {
		return nil
	}
	if p.DefaultValue.IsValid() {
		return &defaultNode{def: p.DefaultValue, kind: scalar.Of(t)}
	}
	if r.opts.implicitZero {
		return &defaultNode{kind: scalar.Of(t)}
	}
	return nil
}

// encode writes the member of part, an addressable struct value.
func (m *member) encode(w *wire.Writer, part reflect.Value, st *state) error {
	if !m.present(part) {
		return nil
	}
	v := fieldByIndex(part, m.index, false)
	st.path = append(st.path, m.plan.Name)
	err := m.root.encode(w, nil, v, st)
	st.path = st.path[:len(st.path)-1]
	return err
}

func (m *member) decode(r *wire.Reader, wt wire.Type, part reflect.Value, st *state) error {
	st.path = append(st.path, m.plan.Name)
	err := m.root.decode(r, wt, fieldByIndex(part, m.index, true), st)
	st.path = st.path[:len(st.path)-1]
	if err != nil {
		return err
	}
	if m.plan.specified != nil {
		fieldByIndex(part, m.plan.specified, true).SetBool(true)
	}
	return nil
}

// present consults the is-set probe.
func (m *member) present(part reflect.Value) bool {
	switch {
	case m.plan.specified != nil:
		return fieldByIndex(part, m.plan.specified, false).Bool()
	case m.plan.shouldSerialize != "":
		return addressOf(part).MethodByName(m.plan.shouldSerialize).Call(nil)[0].Bool()
	}
	return true
}

// encodeValue writes the body of v, a value of the graph's type.
func (g *Graph) encodeValue(w *wire.Writer, v reflect.Value, st *state) error {
	switch g.kind {
	case GraphSurrogate:
		return g.entry.surrogate.encode(w, v, st)
	case GraphTuple:
		return g.encodeTuple(w, v, st)
	}
	return g.encodeObject(w, v, st)
}

// decodeValue reads a body into slot, a settable value of the graph's
// type or an interface it implements.
func (g *Graph) decodeValue(r *wire.Reader, slot reflect.Value, st *state) error {
	switch g.kind {
	case GraphSurrogate:
		return g.entry.surrogate.decode(r, slot, st)
	case GraphTuple:
		return g.decodeTuple(r, slot, st)
	}
	return g.decodeObject(r, slot, st)
}

// encodeObject writes v starting from the root of its inheritance chain.
func (g *Graph) encodeObject(w *wire.Writer, v reflect.Value, st *state) error {
	obj, concrete, err := objectOf(st.reg, v)
	if err != nil {
		return err
	}
	if !concrete.derivesFrom(g.entry) {
		return errors.New(errors.PhaseEncode, errors.KindUnsupportedType).
			Path(st.path...).
			GoType(concrete.typ.String()).
			Detail("not a known subtype of %s", g.entry.typ).
			Build()
	}
	rg, err := concrete.root().Graph()
	if err != nil {
		return err
	}
	return rg.encodeLevel(w, obj, concrete, st)
}

// encodeLevel writes one inheritance level: the subtype leading towards the
// concrete type first, then this level's fields.
func (g *Graph) encodeLevel(w *wire.Writer, obj reflect.Value, concrete *TypeEntry, st *state) error {
	e := g.entry
	part := partOf(obj, concrete, e, false)
	if err := e.fire(SlotBeforeSerialize, part); err != nil {
		return err
	}

	if concrete != e {
		child := concrete
		for child.base != e {
			child = child.base
		}
		sub := g.subFor(child)
		if sub == nil {
			return errors.Unsupported(errors.PhaseEncode, child.typ.String(), "not declared as a subtype of "+e.typ.String())
		}
		dg, err := child.Graph()
		if err != nil {
			return err
		}
		tok, err := sub.begin(w)
		if err != nil {
			return err
		}
		if err := st.enter(child.name); err != nil {
			return err
		}
		if err := dg.encodeLevel(w, obj, concrete, st); err != nil {
			return err
		}
		st.leave()
		if err := sub.end(w, tok); err != nil {
			return err
		}
	}

	for _, m := range g.fields {
		if err := m.encode(w, part, st); err != nil {
			return err
		}
	}
	return e.fire(SlotAfterSerialize, part)
}

// instance is the object being decoded. It is created lazily so subtype
// fields seen first decide the concrete type.
type instance struct {
	ptr   reflect.Value
	entry *TypeEntry
}

func (in *instance) created() bool { return in.ptr.IsValid() }

func (in *instance) create(e *TypeEntry) error {
	ptr, err := e.newInstance()
	if err != nil {
		return err
	}
	in.ptr, in.entry = ptr, e
	return fireBeforeDeserialize(e, ptr)
}

// decodeObject reads a message of the graph's type into slot. Struct slots
// are decoded in place; interface slots reuse a compatible value or receive
// a new instance.
func (g *Graph) decodeObject(r *wire.Reader, slot reflect.Value, st *state) error {
	rg, err := g.entry.root().Graph()
	if err != nil {
		return err
	}

	var in instance
	switch {
	case slot.Kind() == reflect.Struct:
		if slot.IsZero() {
			fresh, err := g.entry.newInstance()
			if err != nil {
				return err
			}
			slot.Set(fresh.Elem())
		}
		in = instance{ptr: slot.Addr(), entry: g.entry}
		if err := fireBeforeDeserialize(g.entry, in.ptr); err != nil {
			return err
		}

	case slot.Kind() == reflect.Interface && !slot.IsNil():
		if ptr, e, ok := reusable(st.reg, slot, g.entry); ok {
			in = instance{ptr: ptr, entry: e}
			if err := fireBeforeDeserialize(e, ptr); err != nil {
				return err
			}
		}
	}

	if err := rg.decodeLevel(r, &in, st); err != nil {
		return err
	}
	if !in.entry.derivesFrom(g.entry) {
		return errors.TypeMismatch(errors.PhaseDecode, st.path, in.entry.typ.String(), g.entry.typ.String())
	}
	if slot.Kind() == reflect.Struct {
		return nil
	}
	return assignInstance(slot, in.ptr, st)
}

// subtypeTag reports whether an unknown tag falls in the range a level
// reserves for subtypes: at or above its lowest subtype tag and above every
// field tag. Unknown tags outside that range are ordinary new fields.
func (g *Graph) subtypeTag(tag int) bool {
	if len(g.subtypes) == 0 {
		return false
	}
	low := g.subtypes[0].field
	for _, s := range g.subtypes[1:] {
		low = min(low, s.field)
	}
	if tag < low {
		return false
	}
	for _, m := range g.fields {
		if m.tag >= tag {
			return false
		}
	}
	return true
}

// decodeLevel reads the fields of one inheritance level.
func (g *Graph) decodeLevel(r *wire.Reader, in *instance, st *state) error {
	restore := st.pushFrame()
	defer restore()

	e := g.entry
	first := true
	for {
		field, wt, err := r.ReadFieldHeader()
		if err != nil {
			return err
		}
		if field == 0 {
			break
		}
		isFirst := first
		first = false

		t, ok := g.lookup(field)
		if !ok {
			if isFirst && g.subtypeTag(field) && (wt == wire.Bytes || wt == wire.StartGroup) {
				return errors.New(errors.PhaseDecode, errors.KindUnsupportedType).
					Path(st.path...).
					GoType(e.typ.String()).
					Field(field).
					Detail("unknown subtype").
					Build()
			}
			if err := r.SkipField(); err != nil {
				return err
			}
			continue
		}

		if sub := t.sub; sub != nil {
			if in.created() && !in.entry.derivesFrom(sub.entry) {
				return errors.TypeMismatch(errors.PhaseDecode, st.path, in.entry.typ.String(), sub.entry.typ.String())
			}
			if wt != wire.Bytes && wt != wire.StartGroup {
				return errors.WireFormat(st.path, field, "subtype must be a nested message")
			}
			subr, err := r.ReadMessage()
			if err != nil {
				return err
			}
			dg, err := sub.entry.Graph()
			if err != nil {
				return err
			}
			if err := st.enter(sub.entry.name); err != nil {
				return err
			}
			if err := dg.decodeLevel(subr, in, st); err != nil {
				return err
			}
			st.leave()
			continue
		}

		if !in.created() {
			if err := in.create(e); err != nil {
				return err
			}
		}
		part := partOf(in.ptr, in.entry, e, true)
		if err := t.field.decode(r, wt, part, st); err != nil {
			return err
		}
	}

	if !in.created() {
		if err := in.create(e); err != nil {
			return err
		}
	}
	return e.fire(SlotAfterDeserialize, partOf(in.ptr, in.entry, e, true))
}

// reusable returns the value held by an interface slot when it can be
// decoded into in place.
func reusable(r *Registry, slot reflect.Value, declared *TypeEntry) (reflect.Value, *TypeEntry, bool) {
	v := slot.Elem()
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, false
	}
	e, ok := r.types.Load(v.Type().Elem())
	if !ok || !e.derivesFrom(declared) {
		return reflect.Value{}, nil, false
	}
	return v, e, true
}

// assignInstance stores ptr, or the value it points to, in slot.
func assignInstance(slot, ptr reflect.Value, st *state) error {
	switch {
	case ptr.Type().AssignableTo(slot.Type()):
		slot.Set(ptr)
	case ptr.Elem().Type().AssignableTo(slot.Type()):
		slot.Set(ptr.Elem())
	default:
		return errors.TypeMismatch(errors.PhaseDecode, st.path, ptr.Type().String(), slot.Type().String())
	}
	return nil
}

// objectOf normalises v to a pointer to the struct an entry describes.
// Values that are not addressable are copied.
func objectOf(r *Registry, v reflect.Value) (reflect.Value, *TypeEntry, error) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Pointer {
		if v.IsNil() {
			break
		}
		v = v.Elem()
	}
	switch {
	case !v.IsValid(), (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil():
		return reflect.Value{}, nil, errors.InvalidOperation(errors.PhaseEncode, "cannot serialize a nil value")
	case v.Kind() != reflect.Pointer:
		v = addressOf(v)
	}

	e, path, err := r.entryFor(v.Type().Elem())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	if path != nil {
		part := fieldByIndex(v.Elem(), path, false)
		if part.Kind() == reflect.Pointer {
			if part.IsNil() {
				part = reflect.New(part.Type().Elem())
			}
			part = part.Elem()
		}
		v = addressOf(part)
	}
	return v, e, nil
}

// partOf returns the part of obj, a pointer to a concrete value, that the
// inheritance level target describes. Nil embedded bases are allocated when
// alloc is set and read as zero values otherwise.
func partOf(obj reflect.Value, concrete, target *TypeEntry, alloc bool) reflect.Value {
	v := obj.Elem()
	if target == concrete || target.typ.Kind() != reflect.Struct {
		return v
	}
	var path []int
	for x := concrete; x != nil && x != target; x = x.base {
		path = append(path, x.baseIndex...)
	}
	v = fieldByIndex(v, path, alloc)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			if !alloc || !v.CanSet() {
				return reflect.New(v.Type().Elem()).Elem()
			}
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v
}

// fieldByIndex is reflect.Value.FieldByIndex that allocates nil embedded
// pointers when alloc is set and otherwise yields a zero value.
func fieldByIndex(v reflect.Value, index []int, alloc bool) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !alloc || !v.CanSet() {
					return reflect.New(v.Type().Elem().FieldByIndex(index[i:]).Type).Elem()
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}
