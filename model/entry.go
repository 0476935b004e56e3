package model

import (
	"reflect"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/model/internal/shape"
	"github.com/wippyai/protomodel/wire"
)

// TypeEntry is the wire contract of one Go type. It is mutable until its
// graph is first requested; after that every mutation fails.
type TypeEntry struct {
	reg  *Registry
	typ  reflect.Type
	name string
	key  int

	fields   []*FieldPlan
	subtypes []*SubTypeEntry
	base     *TypeEntry
	// baseIndex locates the embedded base inside this struct. It is nil
	// when the base is an interface.
	baseIndex []int

	surrogate *surrogate
	tuple     *tuple
	callbacks [callbackSlots]Callback
	// autoWired marks slots filled from implemented interfaces.
	autoWired [callbackSlots]bool

	construct Construction
	factory   reflect.Value

	frozen atomic.Bool
	graph  atomic.Pointer[Graph]
	builds atomic.Int64
}

// SubTypeEntry maps a field number to a derived type.
type SubTypeEntry struct {
	Derived *TypeEntry
	Tag     int
	Format  DataFormat
}

func newTypeEntry(r *Registry, t reflect.Type) *TypeEntry {
	return &TypeEntry{
		reg:  r,
		typ:  t,
		name: t.String(),
		key:  -1,
	}
}

// Type returns the Go type the entry describes.
func (e *TypeEntry) Type() reflect.Type { return e.typ }

// Key returns the stable registry key.
func (e *TypeEntry) Key() int { return e.key }

// Name returns the contract name used for dynamic typing and schemas.
func (e *TypeEntry) Name() string { return e.name }

// Base returns the entry this one derives from, or nil.
func (e *TypeEntry) Base() *TypeEntry { return e.base }

// IsFrozen reports whether the entry can no longer change.
func (e *TypeEntry) IsFrozen() bool { return e.frozen.Load() }

// BuildCount returns how many times the graph has been built: 0 or 1.
func (e *TypeEntry) BuildCount() int64 { return e.builds.Load() }

// Construction returns the construction strategy.
func (e *TypeEntry) Construction() Construction { return e.construct }

// HasSurrogate reports whether the entry delegates to a surrogate type.
func (e *TypeEntry) HasSurrogate() bool { return e.surrogate != nil }

// Fields returns the field plans ordered by tag.
func (e *TypeEntry) Fields() []*FieldPlan {
	out := append([]*FieldPlan(nil), e.fields...)
	slices.SortFunc(out, func(a, b *FieldPlan) int { return a.Tag - b.Tag })
	return out
}

// Field returns the plan for a tag.
func (e *TypeEntry) Field(tag int) (*FieldPlan, bool) {
	for _, f := range e.fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return nil, false
}

// SubTypes returns the derived type mappings ordered by tag.
func (e *TypeEntry) SubTypes() []*SubTypeEntry {
	out := append([]*SubTypeEntry(nil), e.subtypes...)
	slices.SortFunc(out, func(a, b *SubTypeEntry) int { return a.Tag - b.Tag })
	return out
}

// root climbs base links to the top of the inheritance chain.
func (e *TypeEntry) root() *TypeEntry {
	for e.base != nil {
		e = e.base
	}
	return e
}

// derivesFrom reports whether target is e or one of its ancestors.
func (e *TypeEntry) derivesFrom(target *TypeEntry) bool {
	for x := e; x != nil; x = x.base {
		if x == target {
			return true
		}
	}
	return false
}

// chain returns the inheritance chain from the root down to e.
func (e *TypeEntry) chain() []*TypeEntry {
	var out []*TypeEntry
	for x := e; x != nil; x = x.base {
		out = append(out, x)
	}
	slices.Reverse(out)
	return out
}

// isCollection reports whether the entry compiles to a list graph.
func (e *TypeEntry) isCollection() bool {
	if e.typ.Kind() != reflect.Struct || len(e.fields) > 0 {
		return false
	}
	_, ok, err := shape.Resolve(e.typ)
	return ok && err == nil
}

// mutate runs fn under the registry lock if the entry is not frozen.
func (e *TypeEntry) mutate(fn func() error) error {
	return e.reg.withLock(func() error {
		if e.frozen.Load() {
			return errors.Frozen(e.typ.String())
		}
		return fn()
	})
}

// AddField adds a field for an exported struct member.
func (e *TypeEntry) AddField(tag int, member string, opts ...FieldOption) (*FieldPlan, error) {
	var plan *FieldPlan
	err := e.mutate(func() error {
		p, err := e.addFieldLocked(tag, member, opts)
		plan = p
		return err
	})
	return plan, err
}

// AddFieldPlan adds a field with the full set of positional settings.
// itemType and defaultType may be nil; defaultValue may be nil.
func (e *TypeEntry) AddFieldPlan(tag int, member string, itemType, defaultType reflect.Type, format DataFormat, defaultValue any) (*FieldPlan, error) {
	opts := []FieldOption{WithFormat(format)}
	if itemType != nil {
		opts = append(opts, ItemType(itemType))
	}
	if defaultType != nil {
		opts = append(opts, DefaultType(defaultType))
	}
	if defaultValue != nil {
		opts = append(opts, DefaultValue(defaultValue))
	}
	return e.AddField(tag, member, opts...)
}

func (e *TypeEntry) addFieldLocked(tag int, member string, opts []FieldOption) (*FieldPlan, error) {
	if e.frozen.Load() {
		return nil, errors.Frozen(e.typ.String())
	}
	if e.typ.Kind() != reflect.Struct {
		return nil, errors.UnknownMember(e.typ.String(), member)
	}
	sf, ok := e.typ.FieldByName(member)
	if !ok || !sf.IsExported() {
		return nil, errors.UnknownMember(e.typ.String(), member)
	}
	if err := e.checkTag(tag); err != nil {
		return nil, err
	}

	plan, err := newFieldPlan(e.typ, tag, sf, opts)
	if err != nil {
		return nil, err
	}
	e.fields = append(e.fields, plan)
	e.reg.log.Debug("field added",
		zapType(e.typ),
		zap.Int("tag", tag),
		zap.String("member", member))
	return plan, nil
}

// checkTag validates a new tag against fields and subtypes.
func (e *TypeEntry) checkTag(tag int) error {
	if tag < wire.MinField || tag > wire.MaxField {
		return errors.New(errors.PhaseConfigure, errors.KindInvalidFormat).
			GoType(e.typ.String()).
			Field(tag).
			Detail("tag must be in [%d, %d]", wire.MinField, wire.MaxField).
			Build()
	}
	for _, f := range e.fields {
		if f.Tag == tag {
			return errors.DuplicateTag(e.typ.String(), tag)
		}
	}
	for _, s := range e.subtypes {
		if s.Tag == tag {
			return errors.DuplicateTag(e.typ.String(), tag)
		}
	}
	return nil
}

// SetName sets the contract name.
func (e *TypeEntry) SetName(name string) error {
	return e.mutate(func() error {
		if name == "" || name == e.name {
			return nil
		}
		if cur, ok := e.reg.names.Load(e.name); ok && cur == e {
			e.reg.names.Delete(e.name)
		}
		e.name = name
		if e.key >= 0 {
			e.reg.names.LoadOrStore(name, e)
		}
		return nil
	})
}

// SetFactory sets a constructor used instead of allocating a zero value.
// fn must be a func() returning T or *T.
func (e *TypeEntry) SetFactory(fn any) error {
	return e.mutate(func() error {
		return e.setFactoryLocked(fn)
	})
}

func (e *TypeEntry) setFactoryLocked(fn any) error {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if fv.Kind() != reflect.Func || ft.NumIn() != 0 || ft.NumOut() != 1 ||
		(ft.Out(0) != e.typ && ft.Out(0) != reflect.PointerTo(e.typ)) {
		return errors.New(errors.PhaseConfigure, errors.KindTypeMismatch).
			GoType(e.typ.String()).
			Detail("factory must be func() %s or func() *%s", e.typ, e.typ).
			Build()
	}
	e.factory = fv
	e.construct = ConstructFactory
	return nil
}

// SetConstruction selects the construction strategy. ConstructFactory
// requires SetFactory.
func (e *TypeEntry) SetConstruction(c Construction) error {
	return e.mutate(func() error {
		if c == ConstructFactory && !e.factory.IsValid() {
			return errors.InvalidOperation(errors.PhaseConfigure, "factory construction needs a factory function")
		}
		e.construct = c
		return nil
	})
}

// newInstance creates a value for decoding and applies field defaults
// along the inheritance chain.
func (e *TypeEntry) newInstance() (reflect.Value, error) {
	if e.typ.Kind() != reflect.Struct {
		return reflect.Value{}, errors.Unsupported(errors.PhaseDecode, e.typ.String(), "cannot construct an abstract type; no known subtype in the payload")
	}

	var ptr reflect.Value
	switch e.construct {
	case ConstructFactory:
		out := e.factory.Call(nil)[0]
		if out.Kind() == reflect.Pointer {
			if out.IsNil() {
				return reflect.Value{}, errors.InvalidOperation(errors.PhaseDecode, "factory for "+e.typ.String()+" returned nil")
			}
			ptr = out
		} else {
			ptr = reflect.New(e.typ)
			ptr.Elem().Set(out)
		}
	default:
		ptr = reflect.New(e.typ)
	}

	if e.construct == ConstructDefault {
		for _, level := range e.chain() {
			part := partOf(ptr, e, level, true)
			for _, f := range level.fields {
				if f.DefaultValue.IsValid() && f.Index != nil {
					fieldByIndex(part, f.Index, true).Set(f.DefaultValue)
				}
			}
		}
	}
	return ptr, nil
}

// Graph returns the compiled graph, building it on first use. The entry is
// frozen before the build starts. Concurrent callers all receive the same
// graph and it is built exactly once.
func (e *TypeEntry) Graph() (*Graph, error) {
	if g := e.graph.Load(); g != nil {
		return g, nil
	}

	var out *Graph
	err := e.reg.withLock(func() error {
		if g := e.graph.Load(); g != nil {
			out = g
			return nil
		}
		e.frozen.Store(true)
		g, err := e.reg.buildGraph(e)
		if err != nil {
			return err
		}
		e.graph.Store(g)
		e.builds.Add(1)
		metricGraphBuilds.Inc()
		e.reg.log.Debug("graph built",
			zapType(e.typ),
			zap.Int("fields", len(g.fields)),
			zap.Int("subtypes", len(g.subtypes)))
		out = g
		return nil
	})
	return out, err
}
