package cql

import (
	"strconv"
	"strings"

	"github.com/wippyai/wasm-udf/errors"
)

// Type is a column type descriptor. Descriptors are immutable once built and
// safe to share between goroutines.
type Type struct {
	Elem     *Type // list, set
	Key      *Type // map
	Value    *Type // map
	Keyspace string
	Name     string  // udt
	Fields   []Field // tuple (unnamed), udt (declaration order)
	Kind     Kind
}

// Field is one tuple element or user-defined type field.
type Field struct {
	Type *Type
	Name string
}

var primitives = func() map[Kind]*Type {
	m := make(map[Kind]*Type)
	for k := range kindNames {
		if k.IsPrimitive() {
			m[k] = &Type{Kind: k}
		}
	}
	return m
}()

// Primitive returns the shared descriptor for a primitive kind. It panics
// for composite kinds.
func Primitive(k Kind) *Type {
	t, ok := primitives[k]
	if !ok {
		panic("cql: " + k.String() + " is not a primitive kind")
	}
	return t
}

func ListOf(elem *Type) *Type { return &Type{Kind: KindList, Elem: elem} }

func SetOf(elem *Type) *Type { return &Type{Kind: KindSet, Elem: elem} }

func MapOf(key, value *Type) *Type { return &Type{Kind: KindMap, Key: key, Value: value} }

func TupleOf(elems ...*Type) *Type {
	fields := make([]Field, len(elems))
	for i, e := range elems {
		fields[i] = Field{Type: e}
	}
	return &Type{Kind: KindTuple, Fields: fields}
}

func UDTOf(keyspace, name string, fields ...Field) *Type {
	return &Type{Kind: KindUDT, Keyspace: keyspace, Name: name, Fields: fields}
}

// String renders the type in CQL syntax.
func (t *Type) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Type) write(b *strings.Builder) {
	if t == nil {
		b.WriteString("<nil>")
		return
	}
	switch t.Kind {
	case KindList, KindSet:
		b.WriteString(t.Kind.String())
		b.WriteByte('<')
		t.Elem.write(b)
		b.WriteByte('>')
	case KindMap:
		b.WriteString("map<")
		t.Key.write(b)
		b.WriteString(", ")
		t.Value.write(b)
		b.WriteByte('>')
	case KindTuple:
		b.WriteString("tuple<")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			f.Type.write(b)
		}
		b.WriteByte('>')
	case KindUDT:
		if t.Keyspace != "" {
			b.WriteString(t.Keyspace)
			b.WriteByte('.')
		}
		b.WriteString(t.Name)
	default:
		b.WriteString(t.Kind.String())
	}
}

// Signature returns a structural key: two descriptors with equal signatures
// describe the same wire layout.
func (t *Type) Signature() string {
	var b strings.Builder
	t.sig(&b)
	return b.String()
}

func (t *Type) sig(b *strings.Builder) {
	if t == nil {
		b.WriteByte('?')
		return
	}
	switch t.Kind {
	case KindList, KindSet:
		b.WriteString(t.Kind.String())
		b.WriteByte('<')
		t.Elem.sig(b)
		b.WriteByte('>')
	case KindMap:
		b.WriteString("map<")
		t.Key.sig(b)
		b.WriteByte(',')
		t.Value.sig(b)
		b.WriteByte('>')
	case KindTuple:
		b.WriteString("tuple<")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			f.Type.sig(b)
		}
		b.WriteByte('>')
	case KindUDT:
		b.WriteString("udt:")
		b.WriteString(t.Keyspace)
		b.WriteByte('.')
		b.WriteString(t.Name)
		b.WriteByte('{')
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(f.Name)
			b.WriteByte(':')
			f.Type.sig(b)
		}
		b.WriteByte('}')
	default:
		b.WriteString(t.Kind.String())
	}
}

// Equal reports structural equality.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindList, KindSet:
		return t.Elem.Equal(o.Elem)
	case KindMap:
		return t.Key.Equal(o.Key) && t.Value.Equal(o.Value)
	case KindTuple, KindUDT:
		if t.Keyspace != o.Keyspace || t.Name != o.Name || len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	}
	return true
}

// Validate checks that the descriptor is a well-formed tree.
func (t *Type) Validate() error {
	return t.validate(nil)
}

func (t *Type) validate(path []string) error {
	if t == nil {
		return errors.NilPointer(errors.PhaseCompile, path, "*cql.Type")
	}
	invalid := func(format string, args ...any) error {
		return errors.New(errors.PhaseCompile, errors.KindInvalidData).
			Path(path...).
			CQLType(t.Kind.String()).
			Detail(format, args...).
			Build()
	}
	if !t.Kind.known() || t.Kind == KindCustom {
		return invalid("unsupported type kind 0x%02x", uint16(t.Kind))
	}
	if t.Kind.IsPrimitive() {
		if t.Elem != nil || t.Key != nil || t.Value != nil || len(t.Fields) > 0 {
			return invalid("primitive type has component types")
		}
		return nil
	}
	switch t.Kind {
	case KindList, KindSet:
		return t.Elem.validate(subPath(path, "[elem]"))
	case KindMap:
		if err := t.Key.validate(subPath(path, "[key]")); err != nil {
			return err
		}
		return t.Value.validate(subPath(path, "[value]"))
	case KindTuple:
		if len(t.Fields) == 0 {
			return invalid("tuple has no elements")
		}
		for i, f := range t.Fields {
			if err := f.Type.validate(subPath(path, indexSegment(i))); err != nil {
				return err
			}
		}
	case KindUDT:
		if t.Name == "" {
			return invalid("user-defined type has no name")
		}
		seen := make(map[string]bool, len(t.Fields))
		for _, f := range t.Fields {
			if f.Name == "" {
				return invalid("user-defined type %s has an unnamed field", t.Name)
			}
			if seen[f.Name] {
				return invalid("user-defined type %s has duplicate field %q", t.Name, f.Name)
			}
			seen[f.Name] = true
			if err := f.Type.validate(subPath(path, f.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func indexSegment(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

func subPath(path []string, seg string) []string {
	return append(append(make([]string, 0, len(path)+1), path...), seg)
}
