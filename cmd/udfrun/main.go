package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/host"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to UDF module wasm file")
		configFile  = flag.String("config", "", "Function declarations (udfs.toml)")
		funcName    = flag.String("func", "", "Function to call")
		argTypes    = flag.String("args", "", "Argument CQL types, comma separated (overrides -config)")
		returns     = flag.String("returns", "", "Return CQL type (overrides -config)")
		onNull      = flag.Bool("null", false, "Function is CALLED ON NULL INPUT")
		values      = flag.String("values", "", "Arguments as a JSON array")
		pages       = flag.Uint("pages", 0, "Memory limit in 64KiB pages")
		list        = flag.Bool("list", false, "List exported functions and exit")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: udfrun -wasm <file.wasm> -func name -args int,text -returns text [-values '[1, \"a\"]']")
		fmt.Fprintln(os.Stderr, "       udfrun -wasm <file.wasm> -config udfs.toml -func name [-values ...]")
		fmt.Fprintln(os.Stderr, "       udfrun -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       udfrun -wasm <file.wasm> -config udfs.toml -i  (interactive mode)")
		os.Exit(1)
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()

	opts := options{
		wasmFile:   *wasmFile,
		configFile: *configFile,
		funcName:   *funcName,
		argTypes:   *argTypes,
		returns:    *returns,
		onNull:     *onNull,
		values:     *values,
		pages:      uint32(*pages),
		list:       *list,
		logger:     logger,
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	logger     *zap.Logger
	wasmFile   string
	configFile string
	funcName   string
	argTypes   string
	returns    string
	values     string
	pages      uint32
	onNull     bool
	list       bool
}

// session is a loaded module plus the functions declared for it.
type session struct {
	engine *host.Engine
	module *host.Module
	funcs  []*host.Func
}

func (s *session) Close(ctx context.Context) {
	_ = s.module.Close(ctx)
	_ = s.engine.Close(ctx)
}

func (s *session) lookup(name string) *host.Func {
	for _, f := range s.funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// open loads the module and binds the declared functions. A non-empty only
// binds just that function, so the rest of the manifest may name exports the
// module lacks.
func open(ctx context.Context, opts options, only string) (*session, error) {
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	manifest := &Manifest{}
	if opts.configFile != "" {
		if manifest, err = loadManifest(opts.configFile); err != nil {
			return nil, err
		}
	}

	cfg := host.DefaultConfig()
	cfg.Logger = opts.logger
	cfg.Stdout = os.Stderr
	cfg.Stderr = os.Stderr
	manifest.Engine.apply(&cfg)
	if opts.pages > 0 {
		cfg.MemoryLimitPages = opts.pages
	}

	eng, err := host.New(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	mod, err := eng.Load(ctx, data)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, fmt.Errorf("load: %w", err)
	}
	s := &session{engine: eng, module: mod}

	decls, err := declarations(manifest, opts)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	for _, d := range decls {
		if only != "" && d.Name != only {
			continue
		}
		fn, err := mod.Func(d)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("bind %s: %w", d.Name, err)
		}
		s.funcs = append(s.funcs, fn)
	}
	return s, nil
}

// declarations merges the manifest with the command line. Flags declare or
// override the function named by -func.
func declarations(m *Manifest, opts options) ([]host.Decl, error) {
	fromFlags := opts.argTypes != "" || opts.returns != ""
	var decls []host.Decl
	for _, f := range m.Functions {
		if fromFlags && f.Name == opts.funcName {
			continue
		}
		d, err := f.Decl(m.schema)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	if fromFlags {
		if opts.funcName == "" {
			return nil, fmt.Errorf("-args and -returns need -func")
		}
		f, _ := m.lookup(opts.funcName)
		f.Name = opts.funcName
		if opts.argTypes != "" {
			f.Args = splitTypes(opts.argTypes)
		}
		if opts.returns != "" {
			f.Returns = opts.returns
		}
		f.CalledOnNullInput = f.CalledOnNullInput || opts.onNull
		d, err := f.Decl(m.schema)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	listing := opts.list || opts.funcName == ""
	only := opts.funcName
	if listing {
		only = ""
	}
	s, err := open(ctx, opts, only)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if listing {
		printExports(out, s)
		return nil
	}

	fn := s.lookup(opts.funcName)
	if fn == nil {
		return fmt.Errorf("function %s is not declared; use -config or -args/-returns", opts.funcName)
	}
	args, err := parseValues(fn.Decl, opts.values)
	if err != nil {
		return err
	}
	result, err := s.module.Call(ctx, fn, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", fn.Name, err)
	}
	fmt.Fprintln(out, cql.FormatLiteral(fn.Result, result))
	return nil
}

func printExports(out io.Writer, s *session) {
	fmt.Fprintf(out, "ABI version: %d\n", s.module.ABIVersion())
	fmt.Fprintf(out, "\nExported functions:\n")
	for _, e := range s.module.Exports() {
		fmt.Fprintf(out, "  %s\n", e)
	}
	if len(s.funcs) > 0 {
		fmt.Fprintf(out, "\nDeclared functions:\n")
		for _, f := range s.funcs {
			fmt.Fprintf(out, "  %s\n", formatDecl(f.Decl))
		}
	}
}

func formatDecl(d host.Decl) string {
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = p.String()
	}
	s := fmt.Sprintf("%s(%s) -> %s", d.Name, strings.Join(params, ", "), d.Result)
	if d.CalledOnNullInput {
		s += " called on null input"
	}
	return s
}

// parseValues decodes a JSON array of arguments. Numbers keep their literal
// text so that bigint and varint arguments are exact. A function taking a
// single text argument also accepts the raw string.
func parseValues(d host.Decl, raw string) ([]any, error) {
	if strings.TrimSpace(raw) == "" {
		if len(d.Params) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%s takes %d arguments; pass them with -values", d.Name, len(d.Params))
	}

	var args []any
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		if len(d.Params) == 1 && isText(d.Params[0]) {
			return []any{raw}, nil
		}
		return nil, fmt.Errorf("values must be a JSON array: %w", err)
	}
	if len(args) != len(d.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", d.Name, len(d.Params), len(args))
	}
	return args, nil
}

func isText(t *cql.Type) bool {
	return t.Kind == cql.KindText || t.Kind == cql.KindAscii
}
