package rendergraph

import "github.com/spaghettifunk/framegraph/engine/renderer/metadata"

// GraphicsDevice creates and destroys the physical objects backing the
// virtual resources of a graph. Destruction may be deferred by the backend
// until the GPU no longer uses the object.
type GraphicsDevice interface {
	CreateAttachmentImage(name string, width, height uint32, format metadata.TextureFormat, usage metadata.TextureUsage) (*metadata.Texture, error)
	DestroyTexture(texture *metadata.Texture)

	CreateBuffer(name string, size uint64, usage metadata.BufferUsage, location metadata.MemoryLocation) (*metadata.GpuBuffer, error)
	DestroyBuffer(buffer *metadata.GpuBuffer)

	CreateRenderPass(color []metadata.AttachmentDescription, depth *metadata.AttachmentDescription) (*metadata.RenderPass, error)
	DestroyRenderPass(renderPass *metadata.RenderPass)

	CreateFramebuffer(renderPass *metadata.RenderPass, width, height uint32, attachments []*metadata.Texture) (*metadata.Framebuffer, error)
	DestroyFramebuffer(framebuffer *metadata.Framebuffer)

	// CreateRasterPipeline builds a pipeline for renderPass, or for the
	// swapchain output pass when renderPass is nil.
	CreateRasterPipeline(info metadata.RasterPipelineInfo, layouts []*metadata.DescriptorLayout, renderPass *metadata.RenderPass) (*metadata.Pipeline, error)
	CreateComputePipeline(info metadata.ComputePipelineInfo, layouts []*metadata.DescriptorLayout) (*metadata.Pipeline, error)
	DestroyPipeline(pipeline *metadata.Pipeline)

	CreateDescriptorLayout(info metadata.DescriptorSetInfo, bindPoint metadata.PipelineBindPoint) (*metadata.DescriptorLayout, error)
	DestroyDescriptorLayout(layout *metadata.DescriptorLayout)

	CreateDescriptorPool(layout *metadata.DescriptorLayout, maxSets uint32) (*metadata.DescriptorPool, error)
	// AllocateDescriptorSet returns metadata.ErrDescriptorPoolExhausted when
	// the pool is full.
	AllocateDescriptorSet(pool *metadata.DescriptorPool) (*metadata.DescriptorSet, error)
	DestroyDescriptorPool(pool *metadata.DescriptorPool)
}

// GraphicsContext records GPU commands for the frame being built.
type GraphicsContext interface {
	BeginRenderPass(renderPass *metadata.RenderPass, framebuffer *metadata.Framebuffer, clears []metadata.ClearValue)
	// BeginOutputRenderPass begins the render pass targeting the image that
	// will be presented this frame.
	BeginOutputRenderPass(clears []metadata.ClearValue)
	EndRenderPass()

	BindRasterPipeline(pipeline *metadata.Pipeline)
	BindComputePipeline(pipeline *metadata.Pipeline)
	BindDescriptor(set *metadata.DescriptorSet, index uint32, pipeline *metadata.Pipeline)
	BindVertexBuffer(buffer *metadata.GpuBuffer)
	BindIndexBuffer(buffer *metadata.GpuBuffer)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)

	// PipelineBarrier records b. A barrier with neither texture nor buffer is
	// a global memory barrier.
	PipelineBarrier(b metadata.Barrier)
	// UpdateDescriptor writes the copy of set used by the current frame.
	UpdateDescriptor(set *metadata.DescriptorSet, writes []metadata.DescriptorWrite)
}
