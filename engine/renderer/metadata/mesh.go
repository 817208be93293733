package metadata

import "github.com/google/uuid"

// Mesh is an indexed triangle list made of caller owned buffers.
type Mesh struct {
	ID           uuid.UUID
	Name         string
	VertexBuffer *GpuBuffer
	IndexBuffer  *GpuBuffer
	IndexCount   uint32
}
