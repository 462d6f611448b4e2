package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/host"
)

// Manifest is a udfs.toml file declaring the functions a module exports,
// the way CREATE FUNCTION would.
type Manifest struct {
	Engine    EngineConfig   `toml:"engine"`
	Types     []TypeDecl     `toml:"type"`
	Functions []FunctionDecl `toml:"function"`

	schema cql.Schema
}

// TypeDecl declares a user-defined type as CREATE TYPE would. Each field
// is "name type", e.g. "x int". Types may use types declared before them.
type TypeDecl struct {
	Keyspace string   `toml:"keyspace"`
	Name     string   `toml:"name"`
	Fields   []string `toml:"fields"`
}

type EngineConfig struct {
	MemoryLimitPages uint32 `toml:"memory-limit-pages"`
	PoolSize         int    `toml:"pool-size"`
	AllowMissingABI  bool   `toml:"allow-missing-abi"`
}

// FunctionDecl declares one function.
type FunctionDecl struct {
	Name              string   `toml:"name"`
	Args              []string `toml:"args"`
	Returns           string   `toml:"returns"`
	CalledOnNullInput bool     `toml:"called-on-null-input"`
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := parseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return m, nil
}

func parseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	m.schema = cql.Schema{}
	for _, td := range m.Types {
		t, err := td.resolve(m.schema)
		if err != nil {
			return nil, err
		}
		m.schema.Add(t)
	}
	seen := make(map[string]bool, len(m.Functions))
	for i, f := range m.Functions {
		if f.Name == "" {
			return nil, fmt.Errorf("function %d: missing name", i)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("function %s: declared twice", f.Name)
		}
		seen[f.Name] = true
	}
	return &m, nil
}

func (c EngineConfig) apply(cfg *host.Config) {
	if c.MemoryLimitPages > 0 {
		cfg.MemoryLimitPages = c.MemoryLimitPages
	}
	if c.PoolSize > 0 {
		cfg.PoolSize = c.PoolSize
	}
	if c.AllowMissingABI {
		cfg.RequireABI = false
	}
}

func (td TypeDecl) resolve(schema cql.Schema) (*cql.Type, error) {
	if td.Name == "" {
		return nil, fmt.Errorf("type: missing name")
	}
	fields := make([]cql.Field, len(td.Fields))
	for i, f := range td.Fields {
		name, typ, ok := strings.Cut(strings.TrimSpace(f), " ")
		if !ok {
			return nil, fmt.Errorf("type %s: field %q needs a name and a type", td.Name, f)
		}
		t, err := schema.ParseType(typ)
		if err != nil {
			return nil, fmt.Errorf("type %s: field %s: %w", td.Name, name, err)
		}
		fields[i] = cql.Field{Name: name, Type: t}
	}
	t := cql.UDTOf(td.Keyspace, td.Name, fields...)
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("type %s: %w", td.Name, err)
	}
	return t, nil
}

// Decl parses the declared CQL types, resolving user-defined types through
// schema.
func (f FunctionDecl) Decl(schema cql.Schema) (host.Decl, error) {
	d := host.Decl{Name: f.Name, CalledOnNullInput: f.CalledOnNullInput}
	for i, a := range f.Args {
		t, err := schema.ParseType(a)
		if err != nil {
			return host.Decl{}, fmt.Errorf("%s: argument %d: %w", f.Name, i, err)
		}
		d.Params = append(d.Params, t)
	}
	if f.Returns == "" {
		return host.Decl{}, fmt.Errorf("%s: missing return type", f.Name)
	}
	t, err := schema.ParseType(f.Returns)
	if err != nil {
		return host.Decl{}, fmt.Errorf("%s: return type: %w", f.Name, err)
	}
	d.Result = t
	return d, nil
}

func (m *Manifest) lookup(name string) (FunctionDecl, bool) {
	for _, f := range m.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return FunctionDecl{}, false
}

// splitTypes splits a comma separated list of CQL types, ignoring commas
// nested inside angle brackets.
func splitTypes(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" || len(out) > 0 {
		out = append(out, rest)
	}
	return out
}
