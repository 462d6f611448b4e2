package host

import (
	"io"

	"go.uber.org/zap"
)

// Config holds configuration for engine creation
type Config struct {
	// Logger receives load, instance and call events. nil means Logger().
	Logger *zap.Logger

	// Stdout and Stderr receive guest WASI output. nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// PoolSize bounds the idle instances kept per module. 0 means 4.
	PoolSize int

	// RequireABI rejects modules that advertise no ABI version. Modules
	// advertising a different version are always rejected.
	RequireABI bool
}

// DefaultConfig returns the configuration used when New is given nil.
func DefaultConfig() Config {
	return Config{
		PoolSize:   4,
		RequireABI: true,
	}
}

func (c *Config) poolSize() int {
	if c.PoolSize <= 0 {
		return 4
	}
	return c.PoolSize
}
