package host

import (
	"context"
	"encoding/binary"
	"reflect"
	"strconv"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmudf "github.com/wippyai/wasm-udf"
	"github.com/wippyai/wasm-udf/errors"
	"github.com/wippyai/wasm-udf/marshal"
	"github.com/wippyai/wasm-udf/transport"
)

// Instance is one instantiation of a module. Calls into an instance are
// serialized.
type Instance struct {
	module api.Module
	logger *zap.Logger
	funcs  map[string]api.Function
	heap   guestHeap
	mu     sync.Mutex
	broken error
}

// Broken reports whether an earlier call trapped.
func (i *Instance) Broken() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.broken != nil
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}

// abiVersion reads the advertised ABI version, 0 when none is advertised.
func (i *Instance) abiVersion(ctx context.Context) (uint32, error) {
	if g := i.module.ExportedGlobal(wasmudf.ExportABI); g != nil {
		if g.Type() != api.ValueTypeI32 {
			return 0, errors.Incompatible(wasmudf.ExportABI + " must be an i32 global")
		}
		addr := api.DecodeU32(g.Get())
		data, ok := i.module.Memory().Read(addr, 4)
		if !ok {
			return 0, errors.Incompatible(wasmudf.ExportABI + " points outside memory")
		}
		return binary.LittleEndian.Uint32(data), nil
	}

	fn := i.module.ExportedFunction(wasmudf.ExportABIFunction)
	if fn == nil {
		return 0, nil
	}
	def := fn.Definition()
	if len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 1 || def.ResultTypes()[0] != api.ValueTypeI32 {
		return 0, errors.Incompatible(wasmudf.ExportABIFunction + " must have signature () -> i32")
	}
	res, err := fn.Call(ctx)
	if err != nil {
		return 0, errors.Load("read ABI version", err)
	}
	return api.DecodeU32(res[0]), nil
}

func (i *Instance) function(name string) (api.Function, error) {
	if fn, ok := i.funcs[name]; ok {
		return fn, nil
	}
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	i.funcs[name] = fn
	return fn, nil
}

// Call lowers args into the instance, calls fn and lifts its result.
// Argument buffers allocated before a failing argument are freed; once the
// call starts the guest owns them. The result buffer is read and then freed
// through _scylla_free whether or not it decodes.
func (i *Instance) Call(ctx context.Context, fn *Func, args ...any) (any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.broken != nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindTrap).
			Cause(i.broken).
			Detail("instance is unusable after an earlier trap").
			Build()
	}
	if len(args) != len(fn.params) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("%s takes %d arguments, got %d", fn.Name, len(fn.params), len(args)).
			Build()
	}
	wfn, err := i.function(fn.Name)
	if err != nil {
		return nil, err
	}

	i.heap.ctx = ctx
	defer func() { i.heap.ctx = nil }()

	out, err := i.call(ctx, wfn, fn, args)
	if i.heap.trapped != nil && i.broken == nil {
		i.broken = i.heap.trapped
	}
	if err != nil {
		i.logger.Warn("call failed", zap.String("function", fn.Name), zap.Error(err))
	}
	return out, err
}

func (i *Instance) call(ctx context.Context, wfn api.Function, fn *Func, args []any) (any, error) {
	heap := &i.heap

	al := transport.NewAllocationList()
	defer al.Release()

	words := make([]uint64, len(args))
	for j := range args {
		conv := fn.params[j]
		word, err := conv.Lower(heap, reflect.ValueOf(&args[j]).Elem())
		if err != nil {
			if ferr := al.Free(heap); ferr != nil {
				i.logger.Warn("argument release failed", zap.Error(ferr))
			}
			return nil, errors.WithPath(err, "param["+strconv.Itoa(j)+"]")
		}
		if conv.Shape == marshal.ShapeBuffered {
			al.Add(transport.Ptr(word))
		}
		words[j] = word
	}

	results, err := wfn.Call(ctx, words...)
	// The guest owns the arguments from here on, trap or not.
	al.Forget()
	if err != nil {
		i.broken = err
		return nil, errors.New(errors.PhaseRuntime, errors.KindTrap).
			Cause(err).
			Detail("%s trapped", fn.Name).
			Build()
	}

	v, err := fn.result.Lift(heap, results[0])
	if err != nil {
		return nil, errors.WithPath(err, "result")
	}
	return v.Interface(), nil
}
