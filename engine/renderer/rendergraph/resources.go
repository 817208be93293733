package rendergraph

import "github.com/spaghettifunk/framegraph/engine/renderer/metadata"

// ResourceID indexes the virtual resource arena of a graph.
type ResourceID uint32

// PassID identifies a pass within a graph.
type PassID uint32

// ImportID indexes the imported resource arena of a graph.
type ImportID uint32

// MaxColorAttachments is the largest number of color attachments a render
// pass can have.
const MaxColorAttachments = 8

type AttachmentDesc struct {
	Name    string
	Format  metadata.TextureFormat
	Width   uint32
	Height  uint32
	LoadOp  metadata.LoadOp
	StoreOp metadata.StoreOp
	Usage   metadata.TextureUsage
}

type BufferDesc struct {
	Name     string
	Size     uint64
	Usage    metadata.BufferUsage
	Location metadata.MemoryLocation
}

type RasterPipelineDesc struct {
	Name              string
	VertexShader      *metadata.Shader
	FragmentShader    *metadata.Shader
	DescriptorLayouts []metadata.DescriptorSetInfo
	RenderPass        RenderPassHandle
	DepthCompareOp    *metadata.CompareOp
	DepthWrite        bool
	FaceCull          metadata.FaceCullMode
	PushConstantBytes uint32
	VertexInput       metadata.VertexInputInfo
	PolygonMode       metadata.PolygonMode
}

type ComputePipelineDesc struct {
	Name              string
	ComputeShader     *metadata.Shader
	DescriptorLayouts []metadata.DescriptorSetInfo
}

type RenderPassDesc struct {
	Name  string
	Color []*AttachmentHandle
	Depth *AttachmentHandle
}

type DescriptorDesc struct {
	Name      string
	BindPoint metadata.PipelineBindPoint
	Layout    metadata.DescriptorSetInfo
	Bindings  []DescriptorBinding
}

// virtualResource is one entry of the arena. desc holds exactly one of the
// *...Resource types below.
type virtualResource struct {
	name    string
	desc    interface{}
	written bool
}

type attachmentResource struct {
	desc AttachmentDesc
	// usage derived from how passes touch the attachment
	usage metadata.TextureUsage
}

// physicalUsage is the usage of the backing image. Every attachment image is
// created renderable and sampleable, so whether this frame reads it must not
// split the cache key.
func (a *attachmentResource) physicalUsage() metadata.TextureUsage {
	return a.usage | metadata.TextureUsageAttachment | metadata.TextureUsageSampled
}

type bufferResource struct {
	desc BufferDesc
}

type rasterPipelineResource struct {
	desc       RasterPipelineDesc
	vs         ImportID
	ps         ImportID
	hasPS      bool
	renderPass ResourceID
}

type computePipelineResource struct {
	desc ComputePipelineDesc
	cs   ImportID
}

type renderPassResource struct {
	color    []ResourceID
	depth    ResourceID
	hasDepth bool
}

type outputRenderPassResource struct{}

type descriptorSetResource struct {
	bindPoint metadata.PipelineBindPoint
	layout    metadata.DescriptorSetInfo
	bindings  []resolvedBinding
}

type resolvedBinding struct {
	slot     uint32
	imported bool
	importID ImportID
	resource ResourceID
	sampler  bool
	// layout the image is in while the set is used
	layout metadata.ImageLayout
}

func kindName(desc interface{}) string {
	switch desc.(type) {
	case *attachmentResource:
		return "attachment"
	case *bufferResource:
		return "buffer"
	case *rasterPipelineResource:
		return "raster pipeline"
	case *computePipelineResource:
		return "compute pipeline"
	case *renderPassResource:
		return "render pass"
	case outputRenderPassResource:
		return "output render pass"
	case *descriptorSetResource:
		return "descriptor set"
	}
	return "unknown"
}
