package model

import (
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/protomodel/errors"
)

// configureDefaults applies probe markers to a new entry: the contract
// name and construction, tagged members, implicit numbering, declared
// subtypes and callback interfaces. Runs under the registry lock with e in
// the pending set.
func (r *Registry) configureDefaults(e *TypeEntry) error {
	probe := r.opts.probe
	markers := probe.TypeMarkers(e.typ)

	implicitFirst := 0
	if m, ok := findMarker(markers, MarkerContract); ok {
		if name, ok := m.Get("name"); ok && name != "" {
			e.name = name
		}
		if v, ok := m.Get("implicit"); ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				n = 1
			}
			implicitFirst = n
		}
		if m.Has("skip-constructor") {
			e.construct = ConstructSkip
		}
	}

	if e.typ.Kind() == reflect.Struct {
		if err := r.configureMembers(e, probe, implicitFirst); err != nil {
			return err
		}
	}

	for _, m := range markers {
		if m.Name != MarkerInclude {
			continue
		}
		tag, err := markerInt(m, "tag", e.typ)
		if err != nil {
			return err
		}
		format := FormatDefault
		if s, ok := m.Get("format"); ok {
			if format, ok = ParseDataFormat(s); !ok {
				return invalidMarker(e.typ, "unknown data format "+strconv.Quote(s))
			}
		}
		if err := e.addSubTypeLocked(tag, m.Type, format); err != nil {
			return err
		}
	}

	e.wireCallbackInterfaces()
	r.log.Debug("type configured",
		zapType(e.typ),
		zap.String("name", e.name),
		zap.Int("fields", len(e.fields)),
		zap.Int("subtypes", len(e.subtypes)))
	return nil
}

type untagged struct {
	name string
	opts []FieldOption
}

func (r *Registry) configureMembers(e *TypeEntry, probe MetadataProbe, implicitFirst int) error {
	t := e.typ
	var implicit []untagged

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous {
			ft := derefType(sf.Type)
			if ft.Kind() == reflect.Struct && sf.IsExported() && r.hasContract(ft) {
				base, err := r.findOrAddLocked(ft, true, true)
				if err != nil {
					return err
				}
				if e.base == base {
					continue
				}
			}
		}
		if !sf.IsExported() {
			continue
		}

		ms := probe.MemberMarkers(t, sf)
		if _, ok := findMarker(ms, MarkerIgnore); ok {
			continue
		}
		m, tagged := findMarker(ms, MarkerMember)
		var opts []FieldOption
		if tagged {
			var err error
			if opts, err = memberOptions(t, m); err != nil {
				return err
			}
		}

		if !tagged || !m.Has("tag") {
			if implicitFirst > 0 && !sf.Anonymous && !isPresenceField(t, sf) {
				implicit = append(implicit, untagged{name: sf.Name, opts: opts})
			}
			continue
		}
		tag, err := markerInt(m, "tag", t)
		if err != nil {
			return err
		}
		if _, err := e.addFieldLocked(tag, sf.Name, opts); err != nil {
			return err
		}
	}

	next := implicitFirst
	for _, u := range implicit {
		for e.tagInUse(next) {
			next++
		}
		if _, err := e.addFieldLocked(next, u.name, u.opts); err != nil {
			return err
		}
		next++
	}
	return nil
}

func (e *TypeEntry) tagInUse(tag int) bool {
	for _, f := range e.fields {
		if f.Tag == tag {
			return true
		}
	}
	for _, s := range e.subtypes {
		if s.Tag == tag {
			return true
		}
	}
	return false
}

// isPresenceField reports whether sf is the XSpecified companion of a
// sibling member.
func isPresenceField(owner reflect.Type, sf reflect.StructField) bool {
	name, ok := strings.CutSuffix(sf.Name, "Specified")
	if !ok || sf.Type.Kind() != reflect.Bool {
		return false
	}
	_, ok = owner.FieldByName(name)
	return ok
}

// memberOptions turns member marker data into field options.
func memberOptions(owner reflect.Type, m Marker) ([]FieldOption, error) {
	var opts []FieldOption
	if m.Data == nil {
		return nil, nil
	}
	for el := m.Data.Front(); el != nil; el = el.Next() {
		k, v := el.Key, el.Value
		switch k {
		case "tag":
		case "zigzag":
			opts = append(opts, ZigZag())
		case "fixed":
			opts = append(opts, Fixed())
		case "twos":
			opts = append(opts, TwosComplement())
		case "group":
			opts = append(opts, Group())
		case "packed":
			opts = append(opts, Packed())
		case "required":
			opts = append(opts, Required())
		case "overwrite":
			opts = append(opts, Overwrite())
		case "ref":
			opts = append(opts, AsReference())
		case "dynamic":
			opts = append(opts, DynamicType())
		case "key", "value":
			f, ok := ParseDataFormat(v)
			if !ok {
				return nil, invalidMarker(owner, "unknown data format "+strconv.Quote(v))
			}
			if k == "key" {
				opts = append(opts, KeyFormat(f))
			} else {
				opts = append(opts, ValueFormat(f))
			}
		case "name":
			opts = append(opts, SchemaName(v))
		case "default":
			opts = append(opts, DefaultValue(v))
		default:
			return nil, invalidMarker(owner, "unknown member option "+strconv.Quote(k))
		}
	}
	return opts, nil
}

func markerInt(m Marker, key string, owner reflect.Type) (int, error) {
	s, _ := m.Get(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, invalidMarker(owner, key+" must be a number, got "+strconv.Quote(s))
	}
	return n, nil
}

func invalidMarker(owner reflect.Type, detail string) error {
	return errors.New(errors.PhaseConfigure, errors.KindInvalidFormat).
		GoType(owner.String()).
		Detail("%s", detail).
		Build()
}
