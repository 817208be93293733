package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// VulkanGraphicsContext records into the command buffer of the frame being
// built. It is only valid between BeginFrame and EndFrame.
type VulkanGraphicsContext struct {
	context *VulkanContext
	pass    *VulkanRenderpass
}

func NewVulkanGraphicsContext(context *VulkanContext) *VulkanGraphicsContext {
	return &VulkanGraphicsContext{context: context}
}

func (g *VulkanGraphicsContext) BeginRenderPass(renderPass *metadata.RenderPass, framebuffer *metadata.Framebuffer, clears []metadata.ClearValue) {
	rp := renderPass.InternalData.(*VulkanRenderpass)
	rp.Begin(g.context.CommandBuffer(), framebuffer.InternalData.(*VulkanFramebuffer), clearValues(clears))
	g.pass = rp
}

// BeginOutputRenderPass targets the acquired swapchain image. The depth
// attachment is cleared to 1 unless a depth clear is given.
func (g *VulkanGraphicsContext) BeginOutputRenderPass(clears []metadata.ClearValue) {
	values := make([]metadata.ClearValue, 0, 2)
	values = append(values, metadata.ClearColor(0, 0, 0, 1), metadata.ClearDepthStencil(1, 0))
	for _, c := range clears {
		if c.IsDepth {
			values[1] = c
		} else {
			values[0] = c
		}
	}

	rp := g.context.OutputRenderpass
	fb := g.context.Swapchain.Framebuffers[g.context.ImageIndex]
	rp.Begin(g.context.CommandBuffer(), fb, clearValues(values))
	g.pass = rp
}

func (g *VulkanGraphicsContext) EndRenderPass() {
	if g.pass == nil {
		core.LogWarn("EndRenderPass called outside of a render pass")
		return
	}
	g.pass.End(g.context.CommandBuffer())
	g.pass = nil
}

func (g *VulkanGraphicsContext) BindRasterPipeline(pipeline *metadata.Pipeline) {
	pipeline.InternalData.(*VulkanPipeline).Bind(g.context.CommandBuffer())
}

func (g *VulkanGraphicsContext) BindComputePipeline(pipeline *metadata.Pipeline) {
	pipeline.InternalData.(*VulkanPipeline).Bind(g.context.CommandBuffer())
}

func (g *VulkanGraphicsContext) BindDescriptor(set *metadata.DescriptorSet, index uint32, pipeline *metadata.Pipeline) {
	vs := set.InternalData.(*VulkanDescriptorSet)
	vp := pipeline.InternalData.(*VulkanPipeline)
	vk.CmdBindDescriptorSets(
		g.context.CommandBuffer().Handle,
		vp.BindPoint,
		vp.PipelineLayout,
		index,
		1,
		[]vk.DescriptorSet{vs.Sets[g.context.CurrentFrame]},
		0,
		nil)
}

func (g *VulkanGraphicsContext) BindVertexBuffer(buffer *metadata.GpuBuffer) {
	vb := buffer.InternalData.(*VulkanBuffer)
	vk.CmdBindVertexBuffers(g.context.CommandBuffer().Handle, 0, 1, []vk.Buffer{vb.Handle}, []vk.DeviceSize{0})
}

func (g *VulkanGraphicsContext) BindIndexBuffer(buffer *metadata.GpuBuffer) {
	vb := buffer.InternalData.(*VulkanBuffer)
	vk.CmdBindIndexBuffer(g.context.CommandBuffer().Handle, vb.Handle, 0, vk.IndexTypeUint32)
}

func (g *VulkanGraphicsContext) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(g.context.CommandBuffer().Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (g *VulkanGraphicsContext) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(g.context.CommandBuffer().Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (g *VulkanGraphicsContext) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(g.context.CommandBuffer().Handle, x, y, z)
}

func (g *VulkanGraphicsContext) PipelineBarrier(b metadata.Barrier) {
	cb := g.context.CommandBuffer().Handle
	src := pipelineStages(b.SrcStage)
	dst := pipelineStages(b.DstStage)

	switch {
	case b.Texture != nil:
		image := b.Texture.InternalData.(*VulkanImage)
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       accessFlags(b.SrcAccess),
			DstAccessMask:       accessFlags(b.DstAccess),
			OldLayout:           imageLayout(b.OldLayout),
			NewLayout:           imageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     image.Aspect,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		vk.CmdPipelineBarrier(cb, src, dst, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	case b.Buffer != nil:
		buffer := b.Buffer.InternalData.(*VulkanBuffer)
		barrier := vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       accessFlags(b.SrcAccess),
			DstAccessMask:       accessFlags(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buffer.Handle,
			Offset:              0,
			Size:                vk.DeviceSize(vk.WholeSize),
		}
		vk.CmdPipelineBarrier(cb, src, dst, 0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
	default:
		barrier := vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: accessFlags(b.SrcAccess),
			DstAccessMask: accessFlags(b.DstAccess),
		}
		vk.CmdPipelineBarrier(cb, src, dst, 0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
	}
}

// UpdateDescriptor writes the copy of set owned by the current frame.
func (g *VulkanGraphicsContext) UpdateDescriptor(set *metadata.DescriptorSet, writes []metadata.DescriptorWrite) {
	vs := set.InternalData.(*VulkanDescriptorSet)
	dst := vs.Sets[g.context.CurrentFrame]

	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          dst,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  descriptorType(w.Type),
		}
		switch {
		case w.Type == metadata.DescriptorSamplerState:
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler: g.context.DefaultSampler,
			}}
		case w.Type.IsImage():
			if w.Texture == nil {
				core.LogWarn("descriptor binding %d has no texture, skipping", w.Binding)
				continue
			}
			image := w.Texture.InternalData.(*VulkanImage)
			write.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   image.View,
				ImageLayout: imageLayout(w.Layout),
			}}
		default:
			if w.Buffer == nil {
				core.LogWarn("descriptor binding %d has no buffer, skipping", w.Binding)
				continue
			}
			buffer := w.Buffer.InternalData.(*VulkanBuffer)
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buffer.Handle,
				Offset: 0,
				Range:  vk.DeviceSize(vk.WholeSize),
			}}
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) == 0 {
		return
	}
	vk.UpdateDescriptorSets(g.context.Device.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
}
