package host

import (
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/errors"
)

// buildExampleGuest compiles examples/udfs as a wasip1 reactor.
func buildExampleGuest(t *testing.T) []byte {
	t.Helper()
	if testing.Short() {
		t.Skip("builds a wasm module")
	}
	gobin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not found")
	}

	out := filepath.Join(t.TempDir(), "udfs.wasm")
	cmd := exec.CommandContext(context.Background(), gobin,
		"build", "-buildmode=c-shared", "-o", out, "./examples/udfs")
	cmd.Dir = ".."
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build examples/udfs: %v\n%s", err, output)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestExampleGuest(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	mod, err := eng.Load(ctx, buildExampleGuest(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { mod.Close(ctx) })

	schema := cql.Schema{}
	schema.Add(cql.UDTOf("", "udt",
		cql.Field{Name: "a", Type: cql.Primitive(cql.KindInt)},
		cql.Field{Name: "b", Type: cql.Primitive(cql.KindInt)},
		cql.Field{Name: "c", Type: cql.Primitive(cql.KindText)},
		cql.Field{Name: "d", Type: cql.Primitive(cql.KindText)},
	))
	decl := func(name string, nullable bool, result string, params ...string) Decl {
		d := Decl{Name: name, CalledOnNullInput: nullable}
		var err error
		if d.Result, err = schema.ParseType(result); err != nil {
			t.Fatal(err)
		}
		for _, p := range params {
			pt, err := schema.ParseType(p)
			if err != nil {
				t.Fatal(err)
			}
			d.Params = append(d.Params, pt)
		}
		return d
	}
	topn := "tuple<int, set<text>>"

	tests := []struct {
		name string
		decl Decl
		args []any
		want string
	}{
		{"add", decl("add", false, "smallint", "smallint", "smallint"), []any{int16(40), int16(2)}, "42"},
		{"commas", decl("commas", true, "text", "list<text>"), []any{[]any{"a", "b"}}, "'a, b'"},
		{"commas null", decl("commas", true, "text", "list<text>"), []any{nil}, "null"},
		{"fib", decl("fib", false, "bigint", "int"), []any{int32(10)}, "55"},
		{"keys", decl("keys", false, "list<text>", "map<text, text>"),
			[]any{map[string]any{"y": "1", "x": "2"}}, "['x', 'y']"},
		{"udt", decl("udt", false, "udt", "udt"),
			[]any{map[string]any{"a": 1, "b": 2, "c": "x", "d": "y"}}, "{a: 2, b: 1, c: 'y', d: 'x'}"},
		{"wordcount", decl("wordcount", false, "int", "text"), []any{"one two three"}, "3"},
		{"topn_reduce", decl("topn_reduce", false, topn, topn, topn),
			[]any{[]any{int32(1), []any{"b"}}, []any{int32(1), []any{"aa"}}}, "(1, {'aa'})"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := mod.Func(tt.decl)
			if err != nil {
				t.Fatalf("Func: %v", err)
			}
			out, err := mod.Call(ctx, fn, tt.args...)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if got := cql.FormatLiteral(fn.Result, out); got != tt.want {
				t.Errorf("%s = %s, want %s", tt.name, got, tt.want)
			}
		})
	}

	t.Run("error traps", func(t *testing.T) {
		fn, err := mod.Func(decl("topn_reduce", false, topn, topn, topn))
		if err != nil {
			t.Fatal(err)
		}
		_, err = mod.Call(ctx, fn, []any{int32(1), []any{}}, []any{int32(2), []any{}})
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindTrap}) {
			t.Fatalf("err = %v, want trap", err)
		}
	})

	t.Run("unknown free traps", func(t *testing.T) {
		inst, err := mod.Instantiate(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer inst.Close(ctx)
		if _, err := inst.module.ExportedFunction("_scylla_free").Call(ctx, 8); err == nil {
			t.Fatal("free of an unallocated block returned normally")
		}
	})
}
