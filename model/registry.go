package model

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/wippyai/protomodel/errors"
	"github.com/wippyai/protomodel/model/internal/scalar"
	"github.com/wippyai/protomodel/model/internal/shape"
)

// Registry maps Go types to their wire contracts. Lookups are lock-free;
// registration and graph construction take the metadata lock.
type Registry struct {
	opts options
	log  *zap.Logger
	lock *metaLock

	types    *xsync.MapOf[reflect.Type, *TypeEntry]
	names    *xsync.MapOf[string, *TypeEntry]
	enums    *xsync.MapOf[reflect.Type, *enumTable]
	defaults *xsync.MapOf[reflect.Type, reflect.Type]

	// arena is append-only and replaced wholesale; keys index into it.
	arena atomic.Pointer[[]*TypeEntry]

	// pending holds entries being configured. Guarded by lock.
	pending map[reflect.Type]*TypeEntry

	frozen    atomic.Bool
	isDefault bool
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// New creates an empty registry.
func New(opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	r := &Registry{
		opts:     o,
		log:      log,
		lock:     newMetaLock(o.timeout, o.onContention, log),
		types:    xsync.NewMapOf[reflect.Type, *TypeEntry](),
		names:    xsync.NewMapOf[string, *TypeEntry](),
		enums:    xsync.NewMapOf[reflect.Type, *enumTable](),
		defaults: xsync.NewMapOf[reflect.Type, reflect.Type](),
		pending:  make(map[reflect.Type]*TypeEntry),
	}
	empty := make([]*TypeEntry, 0)
	r.arena.Store(&empty)
	return r
}

// Default returns the process-wide registry. It is created on first use
// and always stays open: Freeze on it fails.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
		defaultRegistry.isDefault = true
	})
	return defaultRegistry
}

// IsDefault reports whether r is the process-wide registry.
func (r *Registry) IsDefault() bool {
	return r.isDefault
}

// Freeze forbids registering further types. It is idempotent and fails on
// the default registry.
func (r *Registry) Freeze() error {
	if r.isDefault {
		return errors.InvalidOperation(errors.PhaseConfigure, "the default registry cannot be frozen")
	}
	if r.frozen.CompareAndSwap(false, true) {
		r.log.Debug("registry frozen", zap.Int("types", len(*r.arena.Load())))
	}
	return nil
}

// IsFrozen reports whether Freeze has been called.
func (r *Registry) IsFrozen() bool {
	return r.frozen.Load()
}

// Resolve returns the stable key of t, discovering it if the registry
// allows. Scalars are never entries and fail with an unsupported-type error.
func (r *Registry) Resolve(t reflect.Type) (int, error) {
	if t == nil {
		return 0, errors.InvalidOperation(errors.PhaseResolve, "nil type")
	}
	t = normalizeType(t)
	if e, ok := r.types.Load(t); ok {
		return e.key, nil
	}

	var key int
	err := r.withLock(func() error {
		e, err := r.findOrAddLocked(t, false, true)
		if err != nil {
			return err
		}
		key = e.key
		return nil
	})
	return key, err
}

// Add registers t explicitly. It returns the existing entry when t is
// already known; defaults are only applied to new entries.
func (r *Registry) Add(t reflect.Type, applyDefaults bool) (*TypeEntry, error) {
	if t == nil {
		return nil, errors.InvalidOperation(errors.PhaseConfigure, "nil type")
	}
	t = normalizeType(t)
	if e, ok := r.types.Load(t); ok {
		return e, nil
	}

	var out *TypeEntry
	err := r.withLock(func() error {
		e, err := r.findOrAddLocked(t, true, applyDefaults)
		out = e
		return err
	})
	return out, err
}

// Entry returns the entry for t without discovering it.
func (r *Registry) Entry(t reflect.Type) (*TypeEntry, bool) {
	if t == nil {
		return nil, false
	}
	return r.types.Load(normalizeType(t))
}

// EntryByKey returns the entry with the given key.
func (r *Registry) EntryByKey(key int) (*TypeEntry, bool) {
	arena := *r.arena.Load()
	if key < 0 || key >= len(arena) {
		return nil, false
	}
	return arena[key], true
}

// EntryByName returns the entry registered under a contract name.
func (r *Registry) EntryByName(name string) (*TypeEntry, bool) {
	return r.names.Load(name)
}

// Types returns all entries in key order.
func (r *Registry) Types() []*TypeEntry {
	arena := *r.arena.Load()
	return append([]*TypeEntry(nil), arena...)
}

// SetDefaultCollectionType chooses the concrete type created when decoding
// into a nil collection field declared as the interface iface.
func (r *Registry) SetDefaultCollectionType(iface, concrete reflect.Type) error {
	if iface == nil || iface.Kind() != reflect.Interface {
		return errors.New(errors.PhaseConfigure, errors.KindUnsupportedType).
			GoType(typeName(iface)).
			Detail("default collection types are keyed by interface type").
			Build()
	}
	if concrete == nil || !implementsEither(concrete, iface) {
		return errors.New(errors.PhaseConfigure, errors.KindTypeMismatch).
			GoType(typeName(concrete)).
			Detail("does not implement %s", iface).
			Build()
	}
	if _, ok, err := shape.Resolve(derefType(concrete)); err != nil || !ok {
		return errors.New(errors.PhaseConfigure, errors.KindUnsupportedType).
			GoType(concrete.String()).
			Detail("not collection-shaped").
			Build()
	}
	return r.withLock(func() error {
		r.defaults.Store(iface, concrete)
		return nil
	})
}

func (r *Registry) defaultCollection(iface reflect.Type) (reflect.Type, bool) {
	return r.defaults.Load(iface)
}

// findOrAddLocked is the discovery algorithm. A type being configured is
// returned as-is to break self-reference cycles.
func (r *Registry) findOrAddLocked(t reflect.Type, explicit, applyDefaults bool) (*TypeEntry, error) {
	t = normalizeType(t)
	if e, ok := r.types.Load(t); ok {
		return e, nil
	}
	if e, ok := r.pending[t]; ok {
		return e, nil
	}
	if err := checkEntryType(t); err != nil {
		return nil, err
	}

	if !explicit {
		if !r.opts.autoAdd {
			return nil, errors.Unsupported(errors.PhaseResolve, t.String(), "type is not registered and auto-add is disabled")
		}
		if r.opts.contractsOnly && !r.hasContract(t) {
			return nil, errors.Unsupported(errors.PhaseResolve, t.String(), "type carries no contract metadata")
		}
	}
	if r.frozen.Load() {
		return nil, errors.New(errors.PhaseResolve, errors.KindFrozen).
			GoType(t.String()).
			Detail("registry is frozen; new types cannot be added").
			Build()
	}

	e := newTypeEntry(r, t)
	r.pending[t] = e
	if applyDefaults {
		if err := r.configureDefaults(e); err != nil {
			delete(r.pending, t)
			return nil, err
		}
	}
	delete(r.pending, t)
	r.publish(e)
	return e, nil
}

func (r *Registry) publish(e *TypeEntry) {
	old := *r.arena.Load()
	next := make([]*TypeEntry, len(old)+1)
	copy(next, old)
	e.key = len(old)
	next[e.key] = e
	r.arena.Store(&next)

	r.types.Store(e.typ, e)
	if _, loaded := r.names.LoadOrStore(e.name, e); loaded {
		r.log.Warn("contract name already in use", zap.String("name", e.name), zapType(e.typ))
	}
	metricTypesRegistered.Inc()
	r.log.Debug("type registered", zapType(e.typ), zap.Int("key", e.key))
}

// addAuto discovers t outside of any lock.
func (r *Registry) addAuto(t reflect.Type) (*TypeEntry, error) {
	var out *TypeEntry
	err := r.withLock(func() error {
		e, err := r.findOrAddLocked(t, false, true)
		out = e
		return err
	})
	return out, err
}

// entryFor finds the entry used for a runtime value of type t. A non-nil
// path selects the embedded part of the value the entry describes, which
// happens for proxies and for types climbing to a registered ancestor.
func (r *Registry) entryFor(t reflect.Type) (*TypeEntry, []int, error) {
	if e, ok := r.types.Load(t); ok {
		return e, nil, nil
	}
	if pt, ok := proxiedType(t); ok {
		if path, ok := embeddedPath(t, pt); ok {
			e, _, err := r.entryFor(pt)
			return e, path, err
		}
	}

	e, err := r.addAuto(t)
	if err == nil {
		return e, nil, nil
	}
	if path, anc, ok := r.registeredAncestor(t); ok {
		return anc, path, nil
	}
	return nil, nil, err
}

// registeredAncestor climbs anonymous struct embedding to the nearest
// registered type.
func (r *Registry) registeredAncestor(t reflect.Type) ([]int, *TypeEntry, bool) {
	if t.Kind() != reflect.Struct {
		return nil, nil, false
	}
	type step struct {
		t    reflect.Type
		path []int
	}
	queue := []step{{t: t}}
	seen := map[reflect.Type]bool{t: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for i := 0; i < cur.t.NumField(); i++ {
			f := cur.t.Field(i)
			if !f.Anonymous {
				continue
			}
			ft := derefType(f.Type)
			if ft.Kind() != reflect.Struct || seen[ft] {
				continue
			}
			seen[ft] = true
			path := append(append([]int(nil), cur.path...), i)
			if e, ok := r.types.Load(ft); ok {
				return path, e, true
			}
			queue = append(queue, step{t: ft, path: path})
		}
	}
	return nil, nil, false
}

func (r *Registry) hasContract(t reflect.Type) bool {
	_, ok := findMarker(r.opts.probe.TypeMarkers(t), MarkerContract)
	return ok
}

// checkEntryType rejects types that never become entries.
func checkEntryType(t reflect.Type) error {
	switch {
	case scalar.IsScalar(t):
		return errors.Unsupported(errors.PhaseResolve, t.String(), "scalar types are handled by the core transform, not registered")
	case t.Kind() == reflect.Struct:
		return nil
	case t.Kind() == reflect.Interface && t.NumMethod() > 0:
		return nil
	case t.Kind() == reflect.Slice, t.Kind() == reflect.Array, t.Kind() == reflect.Map:
		return errors.Unsupported(errors.PhaseResolve, t.String(), "built-in collections are fields, not registered types")
	default:
		return errors.Unsupported(errors.PhaseResolve, t.String(), "no wire mapping for this kind")
	}
}

// Proxy is implemented by wrapper types that stand in for another type.
// The wrapper must embed the proxied type as an anonymous field.
type Proxy interface {
	ProxiedType() reflect.Type
}

var proxyType = reflect.TypeOf((*Proxy)(nil)).Elem()

func proxiedType(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() == reflect.Interface || !t.Implements(proxyType) {
		return nil, false
	}
	pt := reflect.Zero(t).Interface().(Proxy).ProxiedType()
	if pt == nil || pt == t {
		return nil, false
	}
	return derefType(pt), true
}

// normalizeType strips pointers and resolves proxies.
func normalizeType(t reflect.Type) reflect.Type {
	for {
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
			continue
		}
		if pt, ok := proxiedType(t); ok {
			t = pt
			continue
		}
		return t
	}
}

func derefType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// embeddedPath finds target among the anonymous fields of t.
func embeddedPath(t, target reflect.Type) ([]int, bool) {
	return embeddedPathSeen(t, target, map[reflect.Type]bool{})
}

func embeddedPathSeen(t, target reflect.Type, seen map[reflect.Type]bool) ([]int, bool) {
	if t.Kind() != reflect.Struct || seen[t] {
		return nil, false
	}
	seen[t] = true
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := derefType(f.Type)
		if ft == target {
			return []int{i}, true
		}
		if sub, ok := embeddedPathSeen(ft, target, seen); ok {
			return append([]int{i}, sub...), true
		}
	}
	return nil, false
}

func implementsEither(t, iface reflect.Type) bool {
	return t.Implements(iface) || (t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(iface))
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func zapType(t reflect.Type) zap.Field {
	return zap.Stringer("type", t)
}
