package rendergraph

import (
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type replayer struct {
	graph    *RenderGraph
	phys     *physicalResources
	ctx      GraphicsContext
	readable map[ResourceID]bool
}

func newReplayer(g *RenderGraph, phys *physicalResources, ctx GraphicsContext) *replayer {
	return &replayer{
		graph:    g,
		phys:     phys,
		ctx:      ctx,
		readable: make(map[ResourceID]bool),
	}
}

func (r *replayer) texture(id ResourceID) *metadata.Texture {
	return r.graph.cache.attachments.get(lookup(r.phys.attachments, id, "attachment"))
}

func (r *replayer) buffer(id ResourceID) *metadata.GpuBuffer {
	return r.graph.cache.buffers.get(lookup(r.phys.buffers, id, "buffer"))
}

func (r *replayer) pipeline(id ResourceID) *metadata.Pipeline {
	return r.graph.cache.pipelines.get(lookup(r.phys.pipelines, id, "pipeline"))
}

// replay records the barriers and commands of p into the context.
func (r *replayer) replay(p *pass) {
	for _, b := range r.barriers(p) {
		r.ctx.PipelineBarrier(b)
	}

	for _, cmd := range p.commands {
		switch c := cmd.(type) {
		case beginRenderPassCmd:
			if _, output := r.graph.resources[c.renderPass].desc.(outputRenderPassResource); output {
				r.ctx.BeginOutputRenderPass(c.clears)
				continue
			}
			rp := r.graph.cache.renderPasses.get(lookup(r.phys.renderPasses, c.renderPass, "render pass"))
			fb := r.graph.cache.framebuffers.get(lookup(r.phys.framebuffers, c.renderPass, "framebuffer"))
			r.ctx.BeginRenderPass(rp, fb, c.clears)
		case endRenderPassCmd:
			r.ctx.EndRenderPass()
		case bindRasterPipelineCmd:
			r.ctx.BindRasterPipeline(r.pipeline(c.pipeline))
		case bindComputePipelineCmd:
			r.ctx.BindComputePipeline(r.pipeline(c.pipeline))
		case bindDescriptorCmd:
			set := r.graph.cache.descriptorSets.get(lookup(r.phys.descriptorSets, c.descriptor, "descriptor set"))
			r.ctx.BindDescriptor(set, c.set, r.pipeline(c.pipeline))
		case drawCmd:
			r.ctx.Draw(c.vertexCount, c.instanceCount, c.firstVertex, c.firstInstance)
		case drawIndexedCmd:
			r.ctx.DrawIndexed(c.indexCount, c.instanceCount, c.firstIndex, c.vertexOffset, c.firstInstance)
		case drawMeshCmd:
			mesh := r.graph.imported(c.mesh).mesh
			r.ctx.BindVertexBuffer(mesh.VertexBuffer)
			r.ctx.BindIndexBuffer(mesh.IndexBuffer)
			r.ctx.DrawIndexed(mesh.IndexCount, 1, 0, 0, 0)
		case dispatchCmd:
			r.ctx.Dispatch(c.x, c.y, c.z)
		case memoryBarrierCmd:
			r.ctx.PipelineBarrier(metadata.Barrier{
				SrcStage:  c.srcStage,
				DstStage:  c.dstStage,
				SrcAccess: c.srcAccess,
				DstAccess: c.dstAccess,
			})
		default:
			err := fmt.Errorf("unknown render graph command %T in pass %q", cmd, p.name)
			core.LogError(err.Error())
			panic(err)
		}
	}
}
