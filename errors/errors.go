package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfigure Phase = "configure" // metadata mutation
	PhaseResolve   Phase = "resolve"   // type lookup and discovery
	PhaseBuild     Phase = "build"     // graph construction
	PhaseEncode    Phase = "encode"    // Go to wire
	PhaseDecode    Phase = "decode"    // wire to Go
	PhaseLock      Phase = "lock"      // registry lock acquisition
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicateTag        Kind = "duplicate_tag"
	KindDuplicateCallback   Kind = "duplicate_callback"
	KindFrozen              Kind = "frozen"
	KindInvalidSubType      Kind = "invalid_subtype"
	KindCyclicInheritance   Kind = "cyclic_inheritance"
	KindNestedCollection    Kind = "nested_collection"
	KindSurrogateCollection Kind = "surrogate_collection"
	KindUnknownMember       Kind = "unknown_member"
	KindInvalidFormat       Kind = "invalid_format"
	KindUnsupportedType     Kind = "unsupported_type"
	KindDuplicateType       Kind = "duplicate_type"
	KindMetadataTimeout     Kind = "metadata_timeout"
	KindWireFormat          Kind = "wire_format"
	KindInvalidOperation    Kind = "invalid_operation"
	KindTypeMismatch        Kind = "type_mismatch"
	KindOverflow            Kind = "overflow"
)

// Class groups kinds into the handling categories callers branch on.
type Class string

const (
	ClassConfiguration    Class = "configuration"
	ClassUnsupported      Class = "unsupported"
	ClassTimeout          Class = "timeout"
	ClassWireFormat       Class = "wire_format"
	ClassInvalidOperation Class = "invalid_operation"
)

// Class returns the category the kind belongs to.
func (k Kind) Class() Class {
	switch k {
	case KindDuplicateTag, KindDuplicateCallback, KindFrozen, KindInvalidSubType,
		KindCyclicInheritance, KindNestedCollection, KindSurrogateCollection,
		KindUnknownMember, KindInvalidFormat, KindDuplicateType:
		return ClassConfiguration
	case KindUnsupportedType:
		return ClassUnsupported
	case KindMetadataTimeout:
		return ClassTimeout
	case KindWireFormat, KindTypeMismatch, KindOverflow:
		return ClassWireFormat
	default:
		return ClassInvalidOperation
	}
}

// Sentinels for errors.Is checks by class.
var (
	ErrConfiguration    = &Error{class: ClassConfiguration}
	ErrUnsupportedType  = &Error{class: ClassUnsupported}
	ErrMetadataTimeout  = &Error{class: ClassTimeout}
	ErrWireFormat       = &Error{class: ClassWireFormat}
	ErrInvalidOperation = &Error{class: ClassInvalidOperation}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Detail string
	Path   []string
	Field  int

	class Class
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	if e.Field > 0 {
		b.WriteString(" (field ")
		b.WriteString(fmt.Sprint(e.Field))
		b.WriteByte(')')
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Class returns the handling category of the error.
func (e *Error) Class() Class {
	if e.class != "" {
		return e.class
	}
	return e.Kind.Class()
}

// Is reports whether target matches this error. A class sentinel matches
// every error of that class; otherwise phase and kind must both match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" && t.class != "" {
		return e.Class() == t.class
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Field sets the field number
func (b *Builder) Field(n int) *Builder {
	b.err.Field = n
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// DuplicateTag reports a field number already used by the type.
func DuplicateTag(goType string, tag int) *Error {
	return &Error{
		Phase:  PhaseConfigure,
		Kind:   KindDuplicateTag,
		GoType: goType,
		Field:  tag,
		Detail: fmt.Sprintf("tag %d is already in use", tag),
	}
}

// DuplicateCallback reports a second registration for a callback slot.
func DuplicateCallback(goType, slot string) *Error {
	return &Error{
		Phase:  PhaseConfigure,
		Kind:   KindDuplicateCallback,
		GoType: goType,
		Detail: fmt.Sprintf("%s callback is already set", slot),
	}
}

// Frozen reports a mutation attempted after the type was frozen.
func Frozen(goType string) *Error {
	return &Error{
		Phase:  PhaseConfigure,
		Kind:   KindFrozen,
		GoType: goType,
		Detail: "type is frozen; the serializer has already been built",
	}
}

// UnknownMember reports a member name that does not exist on the type.
func UnknownMember(goType, member string) *Error {
	return &Error{
		Phase:  PhaseConfigure,
		Kind:   KindUnknownMember,
		GoType: goType,
		Path:   []string{member},
		Detail: fmt.Sprintf("no exported field or accessor named %q", member),
	}
}

// Unsupported reports a type with no wire mapping.
func Unsupported(phase Phase, goType, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupportedType,
		GoType: goType,
		Detail: what,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, expected string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		GoType: goType,
		Detail: "expected " + expected,
	}
}

// WireFormat creates a malformed-input error
func WireFormat(path []string, field int, detail string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindWireFormat,
		Path:   path,
		Field:  field,
		Detail: detail,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, target),
		Value:  value,
	}
}

// InvalidOperation reports an operation the current state does not allow.
func InvalidOperation(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidOperation,
		Detail: detail,
	}
}

// MetadataTimeout reports that the registry lock could not be taken in time.
func MetadataTimeout(wait fmt.Stringer, contentions int64) *Error {
	return &Error{
		Phase:  PhaseLock,
		Kind:   KindMetadataTimeout,
		Detail: fmt.Sprintf("timeout after %s waiting for the metadata lock (%d contentions so far)", wait, contentions),
		Value:  contentions,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
