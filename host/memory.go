package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-udf/errors"
)

// guestHeap adapts an instance's memory and allocator exports to
// wasmudf.Heap for the duration of one call. A failed allocator call is
// recorded, since the instance is unusable after the guest traps.
type guestHeap struct {
	ctx     context.Context
	mem     api.Memory
	malloc  api.Function
	free    api.Function
	logger  *zap.Logger
	stack   [1]uint64
	trapped error
}

func (h *guestHeap) Read(offset, length uint32) ([]byte, error) {
	data, ok := h.mem.Read(offset, length)
	if !ok {
		return nil, errors.New(errors.PhaseTransport, errors.KindInvalidData).
			Detail("memory read out of bounds: offset=%d, length=%d", offset, length).
			Build()
	}
	return data, nil
}

func (h *guestHeap) Write(offset uint32, data []byte) error {
	if !h.mem.Write(offset, data) {
		return errors.New(errors.PhaseTransport, errors.KindInvalidData).
			Detail("memory write out of bounds: offset=%d, length=%d", offset, len(data)).
			Build()
	}
	return nil
}

// Alloc calls _scylla_malloc.
func (h *guestHeap) Alloc(size uint32) (uint32, error) {
	h.stack[0] = api.EncodeU32(size)
	if err := h.malloc.CallWithStack(h.ctx, h.stack[:]); err != nil {
		h.trapped = err
		return 0, errors.New(errors.PhaseRuntime, errors.KindTrap).
			Cause(err).
			Detail("allocation of %d bytes", size).
			Build()
	}
	return api.DecodeU32(h.stack[0]), nil
}

// Free calls _scylla_free.
func (h *guestHeap) Free(ptr uint32) error {
	h.stack[0] = api.EncodeU32(ptr)
	if err := h.free.CallWithStack(h.ctx, h.stack[:]); err != nil {
		h.trapped = err
		h.logger.Warn("guest free failed", zap.Uint32("ptr", ptr), zap.Error(err))
		return errors.New(errors.PhaseRuntime, errors.KindTrap).
			Cause(err).
			Detail("free of %#x", ptr).
			Build()
	}
	return nil
}
