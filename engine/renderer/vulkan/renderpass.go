package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
)

// VulkanAttachmentConfig describes one attachment of a render pass in
// Vulkan terms.
type VulkanAttachmentConfig struct {
	Format        vk.Format
	LoadOp        vk.AttachmentLoadOp
	StoreOp       vk.AttachmentStoreOp
	InitialLayout vk.ImageLayout
	FinalLayout   vk.ImageLayout
}

type VulkanRenderpass struct {
	Handle     vk.RenderPass
	ColorCount uint32
	HasDepth   bool
}

func RenderpassCreate(context *VulkanContext, colors []VulkanAttachmentConfig, depth *VulkanAttachmentConfig) (*VulkanRenderpass, error) {
	outRenderpass := &VulkanRenderpass{
		ColorCount: uint32(len(colors)),
		HasDepth:   depth != nil,
	}

	attachmentDescriptions := make([]vk.AttachmentDescription, 0, len(colors)+1)
	colorReferences := make([]vk.AttachmentReference, 0, len(colors))
	for i, color := range colors {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         color.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         color.LoadOp,
			StoreOp:        color.StoreOp,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  color.InitialLayout,
			FinalLayout:    color.FinalLayout,
		})
		colorReferences = append(colorReferences, vk.AttachmentReference{
			Attachment: uint32(i), // Attachment description array index
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorReferences)),
		PColorAttachments:    colorReferences,
	}

	// Depth attachment, if there is one
	if depth != nil {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         depth.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         depth.LoadOp,
			StoreOp:        depth.StoreOp,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  depth.InitialLayout,
			FinalLayout:    depth.FinalLayout,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(colors)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	// Barriers between passes are recorded explicitly, this only orders the
	// attachment writes against the previous use of the images, including
	// shader reads of the frame still in flight.
	dependency := vk.SubpassDependency{
		SrcSubpass: vk.SubpassExternal,
		DstSubpass: 0,
		SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit |
			vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit),
		SrcAccessMask: 0,
		DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pRenderPass vk.RenderPass
	if err := context.LockPool.SafeCall(ResourceManagement, func() error {
		if res := vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass); res != vk.Success {
			return fmt.Errorf("failed to create render pass: %s", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	outRenderpass.Handle = pRenderPass
	return outRenderpass, nil
}

func (vr *VulkanRenderpass) Destroy(context *VulkanContext) {
	if vr.Handle != nil {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = nil
	}
}

func (vr *VulkanRenderpass) Begin(commandBuffer *VulkanCommandBuffer, framebuffer *VulkanFramebuffer, clearValues []vk.ClearValue) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{
				Width:  framebuffer.Width,
				Height: framebuffer.Height,
			},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS

	// Viewport and scissor are dynamic and always cover the framebuffer.
	viewport := vk.Viewport{
		X:        0.0,
		Y:        0.0,
		Width:    float32(framebuffer.Width),
		Height:   float32(framebuffer.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: framebuffer.Width, Height: framebuffer.Height},
	}
	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (vr *VulkanRenderpass) End(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
