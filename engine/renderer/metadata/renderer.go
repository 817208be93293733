package metadata

// MaxFramesInFlight is the number of frames the CPU may record ahead of the GPU.
const MaxFramesInFlight = 2

// LoadOp describes what happens to an attachment when a render pass begins.
type LoadOp int

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

// StoreOp describes what happens to an attachment when a render pass ends.
type StoreOp int

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

// ImageLayout is the memory arrangement of an image at a point in time.
type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachmentOptimal
	ImageLayoutDepthStencilAttachmentOptimal
	ImageLayoutShaderReadOnlyOptimal
	ImageLayoutTransferDstOptimal
	ImageLayoutPresentSrc
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutGeneral:
		return "General"
	case ImageLayoutColorAttachmentOptimal:
		return "ColorAttachmentOptimal"
	case ImageLayoutDepthStencilAttachmentOptimal:
		return "DepthStencilAttachmentOptimal"
	case ImageLayoutShaderReadOnlyOptimal:
		return "ShaderReadOnlyOptimal"
	case ImageLayoutTransferDstOptimal:
		return "TransferDstOptimal"
	case ImageLayoutPresentSrc:
		return "PresentSrc"
	}
	return "Undefined"
}

// PipelineStage is a bit set of pipeline stages.
type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageEarlyFragmentTests
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageBottomOfPipe
)

// Access is a bit set of memory access types.
type Access uint32

const (
	AccessShaderRead Access = 1 << iota
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessUniformRead
)

// PipelineBindPoint selects the graphics or compute side of the pipeline.
type PipelineBindPoint int

const (
	PipelineBindPointGraphics PipelineBindPoint = iota
	PipelineBindPointCompute
)

func (b PipelineBindPoint) String() string {
	if b == PipelineBindPointCompute {
		return "compute"
	}
	return "graphics"
}

// ClearValue is the value an attachment with LoadOpClear is reset to.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
	IsDepth bool
}

func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func ClearDepthStencil(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil, IsDepth: true}
}

// Barrier is a synchronisation point for either an image or a buffer.
type Barrier struct {
	Texture   *Texture
	Buffer    *GpuBuffer
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
	OldLayout ImageLayout
	NewLayout ImageLayout
}

/**
 * @brief Describes one attachment of a render pass object.
 */
type AttachmentDescription struct {
	Format      TextureFormat
	Usage       TextureUsage
	LoadOp      LoadOp
	StoreOp     StoreOp
	FinalLayout ImageLayout
}

/**
 * @brief A render pass object. Compatible framebuffers are created from it.
 */
type RenderPass struct {
	Color []AttachmentDescription
	Depth *AttachmentDescription
	/** @brief Backend specific data. */
	InternalData interface{}
}

/**
 * @brief A set of attachments bound to a render pass.
 */
type Framebuffer struct {
	Width        uint32
	Height       uint32
	Attachments  []*Texture
	InternalData interface{}
}

type FaceCullMode int

const (
	FaceCullNone FaceCullMode = iota
	FaceCullFront
	FaceCullBack
	FaceCullFrontAndBack
)

type PolygonMode int

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
	PolygonModePoint
)

type CompareOp int

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpEqual
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpNotEqual
	CompareOpGreaterOrEqual
	CompareOpAlways
)

// VertexAttributeFormat is the type of a single vertex attribute.
type VertexAttributeFormat int

const (
	VertexFormatFloat32 VertexAttributeFormat = iota
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
	VertexFormatUint32
)

type VertexAttribute struct {
	Location uint32
	Format   VertexAttributeFormat
	Offset   uint32
}

// VertexInputInfo describes the single interleaved vertex buffer binding a
// raster pipeline consumes. A zero Stride means no vertex input.
type VertexInputInfo struct {
	Stride     uint32
	Attributes []VertexAttribute
}

/**
 * @brief Everything a backend needs to build a raster pipeline.
 */
type RasterPipelineInfo struct {
	Name              string
	VertexShader      *Shader
	FragmentShader    *Shader
	DepthCompareOp    *CompareOp
	DepthWrite        bool
	FaceCull          FaceCullMode
	PolygonMode       PolygonMode
	PushConstantBytes uint32
	VertexInput       VertexInputInfo
}

type ComputePipelineInfo struct {
	Name          string
	ComputeShader *Shader
}

/**
 * @brief A compiled pipeline together with its layout.
 */
type Pipeline struct {
	Name      string
	BindPoint PipelineBindPoint
	Layouts   []*DescriptorLayout
	/** @brief Backend specific data (pipeline, pipeline layout). */
	InternalData interface{}
}
