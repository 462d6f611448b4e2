package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	wasmudf "github.com/wippyai/wasm-udf"
	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/host"
	"github.com/wippyai/wasm-udf/internal/wasmbin"
)

const testManifest = `
[engine]
pool-size = 2

[[function]]
name = "add"
args = ["int", "int"]
returns = "int"

[[function]]
name = "echo"
args = ["map<text, frozen<list<int>>>"]
returns = "map<text, frozen<list<int>>>"
`

func TestParseManifest(t *testing.T) {
	m, err := parseManifest([]byte(testManifest))
	if err != nil {
		t.Fatalf("parseManifest: %v", err)
	}
	if m.Engine.PoolSize != 2 || len(m.Functions) != 2 {
		t.Fatalf("manifest = %+v", m)
	}
	d, err := m.Functions[1].Decl(m.schema)
	if err != nil {
		t.Fatalf("Decl: %v", err)
	}
	if got := formatDecl(d); got != "echo(map<text, list<int>>) -> map<text, list<int>>" {
		t.Errorf("formatDecl = %q", got)
	}
}

func TestParseManifestTypes(t *testing.T) {
	src := `
[[type]]
name = "point"
fields = ["x int", "y int"]

[[type]]
keyspace = "geo"
name = "segment"
fields = ["from frozen<point>", "to frozen<point>"]

[[function]]
name = "length"
args = ["geo.segment"]
returns = "double"
`
	m, err := parseManifest([]byte(src))
	if err != nil {
		t.Fatalf("parseManifest: %v", err)
	}
	d, err := m.Functions[0].Decl(m.schema)
	if err != nil {
		t.Fatalf("Decl: %v", err)
	}
	seg := d.Params[0]
	if seg.Kind != cql.KindUDT || seg.Keyspace != "geo" || len(seg.Fields) != 2 {
		t.Fatalf("param = %s", seg)
	}
	if from := seg.Fields[0].Type; from.Name != "point" || from.Fields[1].Name != "y" {
		t.Errorf("from = %s", from)
	}

	bad := []string{
		"[[type]]\nfields = [\"x int\"]",
		"[[type]]\nname = \"p\"\nfields = [\"x\"]",
		"[[type]]\nname = \"p\"\nfields = [\"x nope\"]",
		"[[type]]\nname = \"p\"\nfields = [\"x int\", \"x text\"]",
	}
	for _, src := range bad {
		if _, err := parseManifest([]byte(src)); err == nil {
			t.Errorf("parseManifest(%q) should fail", src)
		}
	}
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown key", "[[function]]\nname = \"f\"\nreturn = \"int\"", "unknown keys"},
		{"missing name", "[[function]]\nreturns = \"int\"", "missing name"},
		{"duplicate", "[[function]]\nname = \"f\"\n[[function]]\nname = \"f\"", "declared twice"},
		{"syntax", "[[function]\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseManifest([]byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestFunctionDeclErrors(t *testing.T) {
	tests := []struct {
		name string
		decl FunctionDecl
	}{
		{"bad arg", FunctionDecl{Name: "f", Args: []string{"list<"}, Returns: "int"}},
		{"no return", FunctionDecl{Name: "f", Args: []string{"int"}}},
		{"bad return", FunctionDecl{Name: "f", Returns: "integer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.decl.Decl(nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSplitTypes(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"int", []string{"int"}},
		{"int, text", []string{"int", "text"}},
		{"map<text, int>,list<tuple<int, int>>", []string{"map<text, int>", "list<tuple<int, int>>"}},
	}
	for _, tt := range tests {
		got := splitTypes(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitTypes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeclarations(t *testing.T) {
	m, err := parseManifest([]byte(testManifest))
	if err != nil {
		t.Fatal(err)
	}
	decls, err := declarations(m, options{funcName: "add", returns: "bigint", onNull: true})
	if err != nil {
		t.Fatalf("declarations: %v", err)
	}
	if len(decls) != 2 {
		t.Fatalf("got %d declarations", len(decls))
	}
	add := decls[1]
	if add.Name != "add" || len(add.Params) != 2 || add.Result.Kind != cql.KindBigInt || !add.CalledOnNullInput {
		t.Errorf("override = %s", formatDecl(add))
	}

	if _, err := declarations(&Manifest{}, options{argTypes: "int"}); err == nil {
		t.Error("expected error for -args without -func")
	}
}

func TestParseValues(t *testing.T) {
	text := mustDecl(t, "f", "text", "text")
	pair := mustDecl(t, "g", "bigint", "bigint", "varint")

	args, err := parseValues(pair, `[9007199254740993, 1e3]`)
	if err != nil {
		t.Fatalf("parseValues: %v", err)
	}
	if s := args[0].(interface{ String() string }).String(); s != "9007199254740993" {
		t.Errorf("number lost precision: %s", s)
	}

	args, err = parseValues(text, "plain words")
	if err != nil || args[0] != "plain words" {
		t.Errorf("raw text = %v, %v", args, err)
	}
	if args, err = parseValues(text, `[null]`); err != nil || args[0] != nil {
		t.Errorf("null = %v, %v", args, err)
	}

	for _, raw := range []string{"", "[1]", "{"} {
		if _, err := parseValues(pair, raw); err == nil {
			t.Errorf("parseValues(%q) expected error", raw)
		}
	}
}

func TestParseField(t *testing.T) {
	tests := []struct {
		typ  string
		in   string
		want string
	}{
		{"text", " hello ", "hello"},
		{"text", "null", "<nil>"},
		{"int", "42", "42"},
		{"list<int>", "[1, 2]", "[1 2]"},
		{"inet", "10.0.0.1", "10.0.0.1"},
		{"uuid", "[1] trailing", "[1] trailing"},
	}
	for _, tt := range tests {
		got := parseField(cql.MustParseType(tt.typ), tt.in)
		if s := fmt.Sprint(got); s != tt.want {
			t.Errorf("parseField(%s, %q) = %s, want %s", tt.typ, tt.in, s, tt.want)
		}
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	wasm := filepath.Join(dir, "guest.wasm")
	if err := os.WriteFile(wasm, wasmbin.Guest(wasmbin.GuestOptions{ABIVersion: wasmudf.ABIVersion}), 0o644); err != nil {
		t.Fatal(err)
	}
	config := filepath.Join(dir, "udfs.toml")
	if err := os.WriteFile(config, []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	// declares a function the guest does not export
	partial := filepath.Join(dir, "partial.toml")
	absent := testManifest + "\n[[function]]\nname = \"absent\"\nargs = [\"int\"]\nreturns = \"int\"\n"
	if err := os.WriteFile(partial, []byte(absent), 0o644); err != nil {
		t.Fatal(err)
	}
	base := options{wasmFile: wasm, configFile: config, logger: zap.NewNop()}

	tests := []struct {
		name   string
		opts   func(o options) options
		want   string
		errMsg string
	}{
		{
			name: "add",
			opts: func(o options) options { o.funcName, o.values = "add", "[2, 40]"; return o },
			want: "42\n",
		},
		{
			name: "echo map",
			opts: func(o options) options {
				o.funcName, o.values = "echo", `[{"b": [2], "a": [1, null]}]`
				return o
			},
			want: "{'a': [1, null], 'b': [2]}\n",
		},
		{
			name: "flags declare",
			opts: func(o options) options {
				o.configFile, o.funcName, o.argTypes, o.returns = "", "echo", "text", "text"
				o.values = "it's"
				return o
			},
			want: "'it''s'\n",
		},
		{
			name: "list",
			opts: func(o options) options { o.list = true; return o },
			want: "ABI version: 2",
		},
		{
			name: "other declaration missing",
			opts: func(o options) options { o.configFile, o.funcName, o.values = partial, "add", "[1, 2]"; return o },
			want: "3\n",
		},
		{
			name:   "list binds every declaration",
			opts:   func(o options) options { o.configFile, o.list = partial, true; return o },
			errMsg: "bind absent",
		},
		{
			name:   "undeclared",
			opts:   func(o options) options { o.funcName = "size"; return o },
			errMsg: "not declared",
		},
		{
			name: "trap",
			opts: func(o options) options {
				o.configFile, o.funcName, o.argTypes, o.returns = "", "trap", "text", "text"
				o.values = `["x"]`
				return o
			},
			errMsg: "call trap",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tt.opts(base), &out)
			if tt.errMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
					t.Fatalf("run error = %v, want %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func mustDecl(t *testing.T, name, result string, params ...string) host.Decl {
	t.Helper()
	d, err := FunctionDecl{Name: name, Args: params, Returns: result}.Decl(nil)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
