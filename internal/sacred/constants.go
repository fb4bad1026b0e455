package sacred

import "time"

// Constants are the immutable operating limits of a protected core. They
// are handed out by value so callers cannot mutate the originals.
type Constants struct {
	MaxExecutionTime  time.Duration `json:"max_execution_time"`
	MaxMemoryBytes    int64         `json:"max_memory_bytes"`
	MaxRecursionDepth int           `json:"max_recursion_depth"`
}

var coreConstants = Constants{
	MaxExecutionTime:  5 * time.Minute,
	MaxMemoryBytes:    512 << 20,
	MaxRecursionDepth: 100,
}

// GetSacredConstants returns a copy of the operating limits. The copy is
// independent; mutating it has no effect on the core.
func GetSacredConstants() Constants {
	return coreConstants
}
