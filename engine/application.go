package engine

import (
	"github.com/spaghettifunk/framegraph/engine/assets"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// ResourceFactory creates the objects a game owns and imports into its
// graphs: meshes, textures, shaders and CPU written buffers.
type ResourceFactory interface {
	assets.ShaderFactory
	assets.TextureFactory
	DestroyTexture(texture *metadata.Texture)
	CreateMesh(name string, vertices []byte, indices []uint32) (*metadata.Mesh, error)
	DestroyMesh(mesh *metadata.Mesh)
	CreateUploadBuffer(name string, size uint64, usage metadata.BufferUsage) (*metadata.GpuBuffer, error)
	UpdateBuffer(buffer *metadata.GpuBuffer, offset uint64, data []byte) error
	DestroyBuffer(buffer *metadata.GpuBuffer)
}

// Application is what the engine hands to the game at initialization.
type Application struct {
	Config    *core.EngineConfig
	Resources ResourceFactory
	Shaders   *assets.ShaderLibrary
	Events    *core.EventBus

	framebufferSize func() (uint32, uint32)
	frameIndex      func() int
}

// FramebufferSize is the size of the images presented to the window.
func (a *Application) FramebufferSize() (uint32, uint32) {
	return a.framebufferSize()
}

// FrameIndex is the frame in flight slot being recorded. Only meaningful
// from the render callback.
func (a *Application) FrameIndex() int {
	return a.frameIndex()
}
