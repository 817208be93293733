package rendergraph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// OutputRenderPassIndex stands in for the physical render pass index of
// pipelines targeting the swapchain.
const OutputRenderPassIndex = -1

type AttachmentKey struct {
	Width  uint32
	Height uint32
	Format metadata.TextureFormat
	Usage  metadata.TextureUsage
}

type BufferKey struct {
	Size     uint64
	Usage    metadata.BufferUsage
	Location metadata.MemoryLocation
}

// RenderPassKey describes a render pass by its attachments. FinalLayout is
// always the attachment-optimal layout; readers are transitioned by the
// barriers derived before their pass.
type RenderPassKey struct {
	Color      [MaxColorAttachments]metadata.AttachmentDescription
	ColorCount int
	Depth      metadata.AttachmentDescription
	HasDepth   bool
}

func (k RenderPassKey) colorDescriptions() []metadata.AttachmentDescription {
	return append([]metadata.AttachmentDescription(nil), k.Color[:k.ColorCount]...)
}

func (k RenderPassKey) depthDescription() *metadata.AttachmentDescription {
	if !k.HasDepth {
		return nil
	}
	d := k.Depth
	return &d
}

type FramebufferKey struct {
	RenderPass int
	Width      uint32
	Height     uint32
	// physical attachment indices, comma separated
	Attachments string
}

type PipelineKey struct {
	BindPoint         metadata.PipelineBindPoint
	VertexShader      uuid.UUID
	FragmentShader    uuid.UUID
	ComputeShader     uuid.UUID
	Layouts           string
	RenderPass        int
	DepthCompareOp    int
	DepthWrite        bool
	FaceCull          metadata.FaceCullMode
	PolygonMode       metadata.PolygonMode
	PushConstantBytes uint32
	VertexInput       string
}

type DescriptorSetKey struct {
	BindPoint metadata.PipelineBindPoint
	Layout    string
	// per binding: imported identity or physical index of the owned resource
	Bindings string
}

func layoutsKey(infos []metadata.DescriptorSetInfo) string {
	parts := make([]string, len(infos))
	for i, info := range infos {
		parts[i] = "[" + info.Key() + "]"
	}
	return strings.Join(parts, "")
}

func vertexInputKey(v metadata.VertexInputInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", v.Stride)
	for _, a := range v.Attributes {
		fmt.Fprintf(&sb, ";%d:%d:%d", a.Location, a.Format, a.Offset)
	}
	return sb.String()
}

func joinIndices(indices []int) string {
	var sb strings.Builder
	for i, idx := range indices {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", idx)
	}
	return sb.String()
}
