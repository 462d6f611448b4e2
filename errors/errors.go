package errors

import (
	"fmt"
	"strings"
)

// Phase names the stage of a call that failed.
type Phase string

const (
	PhaseCompile   Phase = "compile"   // descriptor derivation and plan compilation
	PhaseEncode    Phase = "encode"    // Go to wire bytes
	PhaseDecode    Phase = "decode"    // wire bytes to Go
	PhaseTransport Phase = "transport" // buffer allocation and access
	PhaseRuntime   Phase = "runtime"   // call execution
	PhaseLoad      Phase = "load"      // module loading
	PhaseParse     Phase = "parse"     // CQL type names, CLI input
)

// Kind classifies a failure independently of its phase.
type Kind string

const (
	KindMalformedValue Kind = "malformed_value"
	KindValueTooLarge  Kind = "value_too_large"
	KindAllocation     Kind = "allocation"
	KindTypeMismatch   Kind = "type_mismatch"
	KindInvalidData    Kind = "invalid_data"
	KindUnsupported    Kind = "unsupported"
	KindOverflow       Kind = "overflow"
	KindNilPointer     Kind = "nil_pointer"
	KindReleased       Kind = "released"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindRegistration   Kind = "registration"
	KindInstantiation  Kind = "instantiation"
	KindIncompatible   Kind = "incompatible"
	KindTrap           Kind = "trap"
)

// Sentinels for the three marshaling failures. They match any Error of the
// same Kind regardless of Phase.
var (
	ErrMalformedValue    = &Error{Kind: KindMalformedValue}
	ErrValueTooLarge     = &Error{Kind: KindValueTooLarge}
	ErrAllocationFailure = &Error{Kind: KindAllocation}
)

// Error carries where a failure happened (phase, element path) and what was
// involved (Go and CQL types, the offending value).
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	CQLType string
	Detail  string
	Path    []string
}

// Error renders "[phase] kind at path: Go type X, CQL type Y - detail".
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Phase, e.Kind)
	if len(e.Path) > 0 {
		b.WriteString(" at " + JoinPath(e.Path))
	}

	types := e.types()
	sep := ": "
	if types != "" {
		b.WriteString(sep + types)
		sep = " - "
	}
	if e.Detail != "" {
		b.WriteString(sep + e.Detail)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

func (e *Error) types() string {
	var parts []string
	if e.GoType != "" {
		parts = append(parts, "Go type "+e.GoType)
	}
	if e.CQLType != "" {
		parts = append(parts, "CQL type "+e.CQLType)
	}
	return strings.Join(parts, ", ")
}

// JoinPath renders a path; index segments ("[3]") attach without a dot.
func JoinPath(path []string) string {
	var b strings.Builder
	for i, p := range path {
		if i > 0 && !strings.HasPrefix(p, "[") {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target matches this error. A target without a Phase
// matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Phase == "" || e.Phase == t.Phase)
}

// Builder assembles an Error field by field.
type Builder struct {
	err Error
}

func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

func (b *Builder) CQLType(t string) *Builder {
	b.err.CQLType = t
	return b
}

func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the message. With no args msg is used as is.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	b.err.Detail = msg
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// Malformed reports wire bytes that do not decode as cqlType.
func Malformed(path []string, cqlType, detail string) *Error {
	return New(PhaseDecode, KindMalformedValue).Path(path...).CQLType(cqlType).Detail(detail).Build()
}

// Truncated reports input that ended before a value was complete.
func Truncated(path []string, cqlType string, need, have int) *Error {
	return New(PhaseDecode, KindMalformedValue).Path(path...).CQLType(cqlType).
		Detail("need %d bytes, have %d", need, have).Build()
}

// TooLarge reports a length that does not fit the 32-bit length field.
func TooLarge(phase Phase, path []string, size uint64) *Error {
	return New(phase, KindValueTooLarge).Path(path...).Value(size).
		Detail("length %d does not fit a 32-bit length field", size).Build()
}

func TypeMismatch(phase Phase, path []string, goType, cqlType string) *Error {
	return New(phase, KindTypeMismatch).Path(path...).GoType(goType).CQLType(cqlType).Build()
}

func AllocationFailed(phase Phase, size uint32) *Error {
	return New(phase, KindAllocation).Value(size).Detail("failed to allocate %d bytes", size).Build()
}

func Unsupported(phase Phase, what string) *Error {
	return New(phase, KindUnsupported).Detail(what).Build()
}

func NilPointer(phase Phase, path []string, goType string) *Error {
	return New(phase, KindNilPointer).Path(path...).GoType(goType).Detail("nil pointer").Build()
}

// Overflow reports a value outside the range of targetType.
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return New(phase, KindOverflow).Path(path...).CQLType(targetType).Value(value).
		Detail("value %v overflows %s", value, targetType).Build()
}

func InvalidData(phase Phase, path []string, detail string) *Error {
	return New(phase, KindInvalidData).Path(path...).Detail(detail).Build()
}

// Released reports use of a buffer handle that no longer owns its memory.
func Released(op string) *Error {
	return New(PhaseTransport, KindReleased).Detail(op + " on released buffer").Build()
}

func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return New(phase, kind).Cause(cause).Detail(detail).Build()
}

// WithPath returns err with prefix prepended to its path when err is an
// *Error; other errors are returned unchanged. err itself is not modified.
func WithPath(err error, prefix ...string) error {
	e, ok := err.(*Error)
	if !ok || len(prefix) == 0 {
		return err
	}
	cp := *e
	cp.Path = append(append(make([]string, 0, len(prefix)+len(e.Path)), prefix...), e.Path...)
	return &cp
}

func NotInitialized(phase Phase, component string) *Error {
	return New(phase, KindNotInitialized).Detail(component + " not initialized").Build()
}

func NotFound(phase Phase, what, name string) *Error {
	return New(phase, KindNotFound).Detail("%s %q not found", what, name).Build()
}

func InvalidInput(phase Phase, detail string) *Error {
	return New(phase, KindInvalidInput).Detail(detail).Build()
}

// Registration reports a function that could not be exported under name.
func Registration(name string, cause error) *Error {
	return New(PhaseCompile, KindRegistration).Cause(cause).Detail("register function %q", name).Build()
}

func Instantiation(cause error) *Error {
	return New(PhaseRuntime, KindInstantiation).Cause(cause).Detail("instantiate module").Build()
}

// Incompatible reports a module whose ABI cannot be used.
func Incompatible(detail string) *Error {
	return New(PhaseLoad, KindIncompatible).Detail(detail).Build()
}

func Load(detail string, cause error) *Error {
	return New(PhaseLoad, KindInvalidData).Cause(cause).Detail(detail).Build()
}

func ParseFailed(what string, cause error) *Error {
	return New(PhaseParse, KindInvalidData).Cause(cause).Detail("parse " + what).Build()
}
