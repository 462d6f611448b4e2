package host

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	wasmudf "github.com/wippyai/wasm-udf"
	"github.com/wippyai/wasm-udf/errors"
	"github.com/wippyai/wasm-udf/marshal"
)

const wasiModule = "wasi_snapshot_preview1"

// Engine owns a wazero runtime and the modules loaded into it.
type Engine struct {
	runtime    wazero.Runtime
	logger     *zap.Logger
	converters *marshal.Registry
	cfg        Config

	mu   sync.Mutex
	wasi bool // preview1 host module instantiated
}

// New creates an engine. A nil cfg means DefaultConfig().
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}

	log := c.Logger
	if log == nil {
		log = Logger()
	}

	return &Engine{
		runtime:    wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		logger:     log,
		converters: marshal.Default,
		cfg:        c,
	}, nil
}

// Close releases the runtime and every module loaded into it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// initWASI instantiates WASI preview1 once per engine.
func (e *Engine) initWASI(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wasi || e.runtime.Module(wasiModule) != nil {
		e.wasi = true
		return nil
	}
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
		return errors.Load("instantiate WASI", err)
	}
	e.wasi = true
	return nil
}

func importsWASI(compiled wazero.CompiledModule) bool {
	for _, imp := range compiled.ImportedFunctions() {
		if module, _, _ := imp.Import(); module == wasiModule {
			return true
		}
	}
	return false
}

// Load compiles a module, checks its allocator exports and ABI version, and
// instantiates it once. The instance used for the version check is kept for
// the first call.
func (e *Engine) Load(ctx context.Context, wasm []byte) (_ *Module, err error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	defer func() {
		if err != nil {
			compiled.Close(ctx)
		}
	}()

	m, err := newModule(e, compiled)
	if err != nil {
		return nil, err
	}
	if importsWASI(compiled) {
		if err = e.initWASI(ctx); err != nil {
			return nil, err
		}
	}

	inst, err := m.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	if m.abiVersion, err = inst.abiVersion(ctx); err == nil {
		err = m.checkABI()
	}
	if err != nil {
		inst.Close(ctx)
		return nil, err
	}
	m.put(ctx, inst)

	e.logger.Info("module loaded",
		zap.Int("exports", len(m.exports)),
		zap.Uint32("abi", m.abiVersion))
	return m, nil
}

func (m *Module) checkABI() error {
	switch {
	case m.abiVersion == wasmudf.ABIVersion:
		return nil
	case m.abiVersion == 0 && !m.engine.cfg.RequireABI:
		return nil
	case m.abiVersion == 0:
		return errors.Incompatible("module does not advertise an ABI version")
	}
	return errors.New(errors.PhaseLoad, errors.KindIncompatible).
		Detail("module ABI version %d, host supports %d", m.abiVersion, wasmudf.ABIVersion).
		Build()
}
