package metadata

import "github.com/google/uuid"

/** @brief Holds bit flags describing how a buffer will be used. */
type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

// MemoryLocation selects the memory heap a buffer is placed in.
type MemoryLocation int

const (
	// Device local, not visible from the host.
	MemoryLocationGpuOnly MemoryLocation = iota
	// Host visible and coherent, written by the CPU every frame.
	MemoryLocationCpuToGpu
	// Host visible, read back by the CPU.
	MemoryLocationGpuToCpu
)

/**
 * @brief Represents a buffer living on the GPU.
 */
type GpuBuffer struct {
	/** @brief Identity used to deduplicate imports and key caches. */
	ID       uuid.UUID
	Name     string
	Size     uint64
	Usage    BufferUsage
	Location MemoryLocation
	/** @brief Backend specific data (buffer, memory). */
	InternalData interface{}
}
