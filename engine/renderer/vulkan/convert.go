package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// textureFormat maps a metadata format to Vulkan. Depth resolves to the
// format detected on the device.
func textureFormat(f metadata.TextureFormat, depthFormat vk.Format) vk.Format {
	switch f {
	case metadata.TextureFormatRGB8:
		// Three channel formats are rarely renderable, pixels are expanded on upload.
		return vk.FormatR8g8b8a8Unorm
	case metadata.TextureFormatRGBA8UNorm:
		return vk.FormatR8g8b8a8Unorm
	case metadata.TextureFormatRGBA8SRGB:
		return vk.FormatR8g8b8a8Srgb
	case metadata.TextureFormatBGRA8UNorm:
		return vk.FormatB8g8r8a8Unorm
	case metadata.TextureFormatRGBA16Float:
		return vk.FormatR16g16b16a16Sfloat
	case metadata.TextureFormatRGBA32Float:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.TextureFormatR32Float:
		return vk.FormatR32Sfloat
	case metadata.TextureFormatDepth:
		return depthFormat
	}
	return vk.FormatUndefined
}

func imageUsage(format metadata.TextureFormat, usage metadata.TextureUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlags
	if usage.Has(metadata.TextureUsageAttachment) {
		if format.IsDepth() {
			flags |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
		} else {
			flags |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
		}
	}
	if usage.Has(metadata.TextureUsageSampled) {
		flags |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if usage.Has(metadata.TextureUsageStorage) {
		flags |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if usage.Has(metadata.TextureUsageTransferDst) {
		flags |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	return flags
}

func imageAspect(format metadata.TextureFormat) vk.ImageAspectFlags {
	if format.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func bufferUsage(usage metadata.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlags
	if usage.Has(metadata.BufferUsageUniform) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if usage.Has(metadata.BufferUsageStorage) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if usage.Has(metadata.BufferUsageVertex) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if usage.Has(metadata.BufferUsageIndex) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if usage.Has(metadata.BufferUsageTransferSrc) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if usage.Has(metadata.BufferUsageTransferDst) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	return flags
}

func memoryProperties(location metadata.MemoryLocation) vk.MemoryPropertyFlags {
	switch location {
	case metadata.MemoryLocationCpuToGpu:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	case metadata.MemoryLocationGpuToCpu:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

func imageLayout(l metadata.ImageLayout) vk.ImageLayout {
	switch l {
	case metadata.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case metadata.ImageLayoutColorAttachmentOptimal:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.ImageLayoutDepthStencilAttachmentOptimal:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case metadata.ImageLayoutShaderReadOnlyOptimal:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.ImageLayoutTransferDstOptimal:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func loadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case metadata.LoadOpClear:
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpDontCare
}

func storeOp(op metadata.StoreOp) vk.AttachmentStoreOp {
	if op == metadata.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

var pipelineStageBits = []struct {
	from metadata.PipelineStage
	to   vk.PipelineStageFlagBits
}{
	{metadata.PipelineStageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{metadata.PipelineStageVertexShader, vk.PipelineStageVertexShaderBit},
	{metadata.PipelineStageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{metadata.PipelineStageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
	{metadata.PipelineStageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{metadata.PipelineStageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{metadata.PipelineStageComputeShader, vk.PipelineStageComputeShaderBit},
	{metadata.PipelineStageTransfer, vk.PipelineStageTransferBit},
	{metadata.PipelineStageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
}

// pipelineStages maps a stage set. An empty set maps to top of pipe, which
// Vulkan requires to be non zero.
func pipelineStages(stages metadata.PipelineStage) vk.PipelineStageFlags {
	var flags vk.PipelineStageFlags
	for _, b := range pipelineStageBits {
		if stages&b.from != 0 {
			flags |= vk.PipelineStageFlags(b.to)
		}
	}
	if flags == 0 {
		flags = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return flags
}

var accessBits = []struct {
	from metadata.Access
	to   vk.AccessFlagBits
}{
	{metadata.AccessShaderRead, vk.AccessShaderReadBit},
	{metadata.AccessShaderWrite, vk.AccessShaderWriteBit},
	{metadata.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
	{metadata.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{metadata.AccessDepthStencilAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
	{metadata.AccessDepthStencilAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{metadata.AccessTransferRead, vk.AccessTransferReadBit},
	{metadata.AccessTransferWrite, vk.AccessTransferWriteBit},
	{metadata.AccessUniformRead, vk.AccessUniformReadBit},
}

func accessFlags(access metadata.Access) vk.AccessFlags {
	var flags vk.AccessFlags
	for _, b := range accessBits {
		if access&b.from != 0 {
			flags |= vk.AccessFlags(b.to)
		}
	}
	return flags
}

// descriptorType maps shader binding types. Typed and structured buffers
// are all storage buffers on this backend.
func descriptorType(t metadata.DescriptorBindingType) vk.DescriptorType {
	switch t {
	case metadata.DescriptorCBuffer:
		return vk.DescriptorTypeUniformBuffer
	case metadata.DescriptorTexture2D:
		return vk.DescriptorTypeSampledImage
	case metadata.DescriptorRWTexture2D:
		return vk.DescriptorTypeStorageImage
	case metadata.DescriptorSamplerState:
		return vk.DescriptorTypeSampler
	}
	return vk.DescriptorTypeStorageBuffer
}

func bindPoint(b metadata.PipelineBindPoint) vk.PipelineBindPoint {
	if b == metadata.PipelineBindPointCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func shaderStages(b metadata.PipelineBindPoint) vk.ShaderStageFlags {
	if b == metadata.PipelineBindPointCompute {
		return vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	return vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
}

func shaderStage(s metadata.ShaderStage) vk.ShaderStageFlagBits {
	switch s {
	case metadata.ShaderStageFragment:
		return vk.ShaderStageFragmentBit
	case metadata.ShaderStageCompute:
		return vk.ShaderStageComputeBit
	}
	return vk.ShaderStageVertexBit
}

func compareOp(op metadata.CompareOp) vk.CompareOp {
	switch op {
	case metadata.CompareOpNever:
		return vk.CompareOpNever
	case metadata.CompareOpLess:
		return vk.CompareOpLess
	case metadata.CompareOpEqual:
		return vk.CompareOpEqual
	case metadata.CompareOpLessOrEqual:
		return vk.CompareOpLessOrEqual
	case metadata.CompareOpGreater:
		return vk.CompareOpGreater
	case metadata.CompareOpNotEqual:
		return vk.CompareOpNotEqual
	case metadata.CompareOpGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	}
	return vk.CompareOpAlways
}

func cullMode(mode metadata.FaceCullMode) vk.CullModeFlags {
	switch mode {
	case metadata.FaceCullNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.FaceCullFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func polygonMode(mode metadata.PolygonMode) vk.PolygonMode {
	switch mode {
	case metadata.PolygonModeLine:
		return vk.PolygonModeLine
	case metadata.PolygonModePoint:
		return vk.PolygonModePoint
	}
	return vk.PolygonModeFill
}

func vertexFormat(f metadata.VertexAttributeFormat) vk.Format {
	switch f {
	case metadata.VertexFormatFloat32:
		return vk.FormatR32Sfloat
	case metadata.VertexFormatFloat32x2:
		return vk.FormatR32g32Sfloat
	case metadata.VertexFormatFloat32x3:
		return vk.FormatR32g32b32Sfloat
	case metadata.VertexFormatFloat32x4:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.VertexFormatUint32:
		return vk.FormatR32Uint
	}
	return vk.FormatUndefined
}

func clearValues(clears []metadata.ClearValue) []vk.ClearValue {
	values := make([]vk.ClearValue, len(clears))
	for i, c := range clears {
		if c.IsDepth {
			values[i].SetDepthStencil(c.Depth, c.Stencil)
		} else {
			values[i].SetColor(c.Color[:])
		}
	}
	return values
}
