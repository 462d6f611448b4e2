package cql

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-udf/errors"
)

var primitiveNames = map[string]Kind{
	"ascii":     KindAscii,
	"bigint":    KindBigInt,
	"blob":      KindBlob,
	"boolean":   KindBoolean,
	"counter":   KindCounter,
	"decimal":   KindDecimal,
	"double":    KindDouble,
	"float":     KindFloat,
	"int":       KindInt,
	"timestamp": KindTimestamp,
	"uuid":      KindUuid,
	"text":      KindText,
	"varchar":   KindText,
	"varint":    KindVarint,
	"timeuuid":  KindTimeuuid,
	"inet":      KindInet,
	"date":      KindDate,
	"time":      KindTime,
	"smallint":  KindSmallInt,
	"tinyint":   KindTinyInt,
	"duration":  KindDuration,
}

// ParseType parses a CQL type name such as "map<text, frozen<list<int>>>".
// frozen<> is accepted and ignored. User-defined types cannot be resolved
// without a schema and are rejected.
func ParseType(s string) (*Type, error) {
	return parseType(s, nil)
}

// Schema resolves user-defined type names, as a keyspace would. Keys are
// lower case, either bare ("point") or qualified ("ks.point").
type Schema map[string]*Type

// Add registers a user-defined type under its bare and qualified names.
func (sc Schema) Add(t *Type) {
	sc[strings.ToLower(t.Name)] = t
	if t.Keyspace != "" {
		sc[strings.ToLower(t.Keyspace+"."+t.Name)] = t
	}
}

// ParseType is like the package-level ParseType but resolves user-defined
// type names through sc.
func (sc Schema) ParseType(s string) (*Type, error) {
	return parseType(s, sc)
}

func parseType(s string, schema Schema) (*Type, error) {
	p := &typeParser{src: s, schema: schema}
	t, err := p.parse()
	if err == nil {
		p.skipSpace()
		if p.pos != len(p.src) {
			err = p.errorf("unexpected %q", p.src[p.pos:])
		}
	}
	if err != nil {
		return nil, errors.ParseFailed("CQL type "+quote(s), err)
	}
	return t, nil
}

// MustParseType is like ParseType but panics on error.
func MustParseType(s string) *Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTypes parses a comma-separated list of type names, splitting only at
// top-level commas.
func ParseTypes(s string) ([]*Type, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var (
		out   []*Type
		depth int
		start int
	)
	for i := 0; i <= len(s); i++ {
		if i < len(s) {
			switch s[i] {
			case '<':
				depth++
				continue
			case '>':
				depth--
				continue
			case ',':
				if depth > 0 {
					continue
				}
			default:
				continue
			}
		}
		t, err := ParseType(s[start:i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		start = i + 1
	}
	return out, nil
}

func quote(s string) string { return fmt.Sprintf("%q", s) }

type typeParser struct {
	schema Schema
	src    string
	pos    int
}

func (p *typeParser) errorf(format string, args ...any) error {
	return fmt.Errorf("at offset %d: "+format, append([]any{p.pos}, args...)...)
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			p.pos++
			continue
		}
		break
	}
	return strings.ToLower(p.src[start:p.pos])
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *typeParser) params() ([]*Type, error) {
	if err := p.expect('<'); err != nil {
		return nil, err
	}
	var out []*Type
	for {
		t, err := p.parse()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == ',' {
			p.pos++
			continue
		}
		return out, p.expect('>')
	}
}

func (p *typeParser) parse() (*Type, error) {
	name := p.ident()
	if name == "" {
		return nil, p.errorf("expected type name")
	}
	if k, ok := primitiveNames[name]; ok {
		return Primitive(k), nil
	}

	arity := map[string]int{"list": 1, "set": 1, "frozen": 1, "map": 2, "tuple": -1}
	want, ok := arity[name]
	if !ok {
		if t, ok := p.schema[name]; ok {
			return t, nil
		}
		return nil, p.errorf("unknown type %q (user-defined types need a schema)", name)
	}
	params, err := p.params()
	if err != nil {
		return nil, err
	}
	if want > 0 && len(params) != want {
		return nil, p.errorf("%s takes %d type parameters, got %d", name, want, len(params))
	}
	switch name {
	case "list":
		return ListOf(params[0]), nil
	case "set":
		return SetOf(params[0]), nil
	case "map":
		return MapOf(params[0], params[1]), nil
	case "frozen":
		return params[0], nil
	default:
		return TupleOf(params...), nil
	}
}
