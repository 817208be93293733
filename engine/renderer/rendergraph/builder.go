package rendergraph

import "github.com/spaghettifunk/framegraph/engine/renderer/metadata"

// PassBuilder declares the resources and commands of a single pass.
type PassBuilder struct {
	graph    *RenderGraph
	pass     *pass
	finished bool
}

// Finish adds the pass to the graph. Calling it more than once has no effect.
func (pb *PassBuilder) Finish() {
	if pb.finished {
		return
	}
	pb.finished = true
	pb.graph.passes = append(pb.graph.passes, pb.pass)
	pb.graph.open--
}

func (pb *PassBuilder) ID() PassID {
	return pb.pass.id
}

func (pb *PassBuilder) checkOpen() {
	if pb.finished {
		fatal(ErrPassFinished, "pass %q used after Finish", pb.pass.name)
	}
}

// checkOwner makes sure the pass being built created id.
func (pb *PassBuilder) checkOwner(id ResourceID) {
	if owner := pb.graph.owners[id]; owner != pb.pass.id {
		fatal(ErrForeignWrite, "pass %q writes %q created by another pass", pb.pass.name, pb.graph.resources[id].name)
	}
}

func (pb *PassBuilder) AddAttachment(desc AttachmentDesc) *AttachmentHandle {
	pb.checkOpen()
	if desc.Width == 0 || desc.Height == 0 {
		fatal(ErrInvalidDescription, "attachment %q has zero extent", desc.Name)
	}
	if desc.Format == metadata.TextureFormatUndefined {
		fatal(ErrInvalidDescription, "attachment %q has no format", desc.Name)
	}
	id := pb.graph.addResource(pb.pass.id, desc.Name, &attachmentResource{desc: desc, usage: desc.Usage})
	return &AttachmentHandle{id: id, state: initialState}
}

func (pb *PassBuilder) AddBuffer(desc BufferDesc) *BufferHandle {
	pb.checkOpen()
	if desc.Size == 0 {
		fatal(ErrInvalidDescription, "buffer %q has zero size", desc.Name)
	}
	id := pb.graph.addResource(pb.pass.id, desc.Name, &bufferResource{desc: desc})
	return &BufferHandle{id: id, state: initialState}
}

// AddRenderPass declares a render pass writing the given attachments. The
// handles are updated to the attachment-optimal state the render pass leaves
// them in.
func (pb *PassBuilder) AddRenderPass(desc RenderPassDesc) RenderPassHandle {
	pb.checkOpen()
	g := pb.graph
	if len(desc.Color) == 0 && desc.Depth == nil {
		fatal(ErrInvalidDescription, "render pass %q has no attachments", desc.Name)
	}
	if len(desc.Color) > MaxColorAttachments {
		fatal(ErrInvalidDescription, "render pass %q has %d color attachments, max is %d", desc.Name, len(desc.Color), MaxColorAttachments)
	}

	rp := &renderPassResource{}
	var width, height uint32
	extent := func(h *AttachmentHandle) {
		a := g.attachment(h.id)
		if width == 0 {
			width, height = a.desc.Width, a.desc.Height
			return
		}
		if a.desc.Width != width || a.desc.Height != height {
			fatal(ErrInvalidDescription, "render pass %q mixes attachment extents %dx%d and %dx%d",
				desc.Name, width, height, a.desc.Width, a.desc.Height)
		}
	}

	for _, h := range desc.Color {
		extent(h)
		pb.checkOwner(h.id)
		if g.attachment(h.id).desc.Format.IsDepth() {
			fatal(ErrInvalidDescription, "render pass %q uses depth attachment %q as color", desc.Name, g.resources[h.id].name)
		}
		h.state = accessState{
			stage:  metadata.PipelineStageColorAttachmentOutput,
			access: metadata.AccessColorAttachmentWrite,
			layout: metadata.ImageLayoutColorAttachmentOptimal,
		}
		pb.markWritten(h.id, metadata.TextureUsageAttachment)
		rp.color = append(rp.color, h.id)
	}
	if h := desc.Depth; h != nil {
		extent(h)
		pb.checkOwner(h.id)
		if !g.attachment(h.id).desc.Format.IsDepth() {
			fatal(ErrInvalidDescription, "render pass %q uses color attachment %q as depth", desc.Name, g.resources[h.id].name)
		}
		h.state = accessState{
			stage:  metadata.PipelineStageEarlyFragmentTests | metadata.PipelineStageLateFragmentTests,
			access: metadata.AccessDepthStencilAttachmentWrite,
			layout: metadata.ImageLayoutDepthStencilAttachmentOptimal,
		}
		pb.markWritten(h.id, metadata.TextureUsageAttachment)
		rp.depth = h.id
		rp.hasDepth = true
	}

	id := g.addResource(pb.pass.id, desc.Name, rp)
	return RenderPassHandle{id: id, valid: true}
}

// AddOutputRenderPass declares the render pass presenting to the screen.
// Exactly one pass of the graph must call it.
func (pb *PassBuilder) AddOutputRenderPass() RenderPassHandle {
	pb.checkOpen()
	id := pb.graph.addResource(pb.pass.id, "output", outputRenderPassResource{})
	return RenderPassHandle{id: id, valid: true}
}

func (pb *PassBuilder) markWritten(id ResourceID, usage metadata.TextureUsage) {
	r := &pb.graph.resources[id]
	r.written = true
	if a, ok := r.desc.(*attachmentResource); ok {
		a.usage |= usage
	}
	for _, w := range pb.pass.writes {
		if w == id {
			return
		}
	}
	pb.pass.writes = append(pb.pass.writes, id)
}

func (pb *PassBuilder) AddRasterPipeline(desc RasterPipelineDesc) PipelineHandle {
	pb.checkOpen()
	g := pb.graph
	if desc.VertexShader == nil {
		fatal(ErrInvalidDescription, "raster pipeline %q has no vertex shader", desc.Name)
	}
	if !desc.RenderPass.valid {
		fatal(ErrInvalidDescription, "raster pipeline %q has no render pass", desc.Name)
	}
	switch g.resource(desc.RenderPass.id).desc.(type) {
	case *renderPassResource, outputRenderPassResource:
	default:
		fatal(ErrInvalidResource, "raster pipeline %q targets a non render pass resource", desc.Name)
	}

	res := &rasterPipelineResource{
		desc:       desc,
		vs:         g.importShader(desc.VertexShader),
		renderPass: desc.RenderPass.id,
	}
	if desc.FragmentShader != nil {
		res.ps = g.importShader(desc.FragmentShader)
		res.hasPS = true
	}
	pb.pass.addRef(desc.RenderPass.id)
	id := g.addResource(pb.pass.id, desc.Name, res)
	return PipelineHandle{id: id}
}

func (pb *PassBuilder) AddComputePipeline(desc ComputePipelineDesc) PipelineHandle {
	pb.checkOpen()
	if desc.ComputeShader == nil {
		fatal(ErrInvalidDescription, "compute pipeline %q has no compute shader", desc.Name)
	}
	res := &computePipelineResource{
		desc: desc,
		cs:   pb.graph.importShader(desc.ComputeShader),
	}
	id := pb.graph.addResource(pb.pass.id, desc.Name, res)
	return PipelineHandle{id: id}
}

func (pb *PassBuilder) AddGraphicsDescriptorSet(desc DescriptorDesc) DescriptorHandle {
	desc.BindPoint = metadata.PipelineBindPointGraphics
	return pb.AddDescriptorSet(desc)
}

func (pb *PassBuilder) AddComputeDescriptorSet(desc DescriptorDesc) DescriptorHandle {
	desc.BindPoint = metadata.PipelineBindPointCompute
	return pb.AddDescriptorSet(desc)
}

// AddDescriptorSet declares a descriptor set. Read bindings add their
// resource to the read set of the pass; mutable bindings make the pass the
// writer of their resource.
func (pb *PassBuilder) AddDescriptorSet(desc DescriptorDesc) DescriptorHandle {
	pb.checkOpen()
	g := pb.graph

	writeStage := metadata.PipelineStageFragmentShader
	if desc.BindPoint == metadata.PipelineBindPointCompute {
		writeStage = metadata.PipelineStageComputeShader
	}
	storage := accessState{
		stage:  writeStage,
		access: metadata.AccessShaderWrite,
		layout: metadata.ImageLayoutGeneral,
	}

	res := &descriptorSetResource{
		bindPoint: desc.BindPoint,
		layout:    desc.Layout,
	}
	seen := make(map[uint32]bool, len(desc.Bindings))
	for _, b := range desc.Bindings {
		typ, ok := desc.Layout.Bindings[b.slot]
		if !ok {
			fatal(ErrInvalidDescription, "descriptor set %q binds slot %d missing from its layout", desc.Name, b.slot)
		}
		if seen[b.slot] {
			fatal(ErrInvalidDescription, "descriptor set %q binds slot %d twice", desc.Name, b.slot)
		}
		seen[b.slot] = true

		rb := resolvedBinding{slot: b.slot, layout: metadata.ImageLayoutShaderReadOnlyOptimal}
		switch b.kind {
		case bindingImportedBuffer:
			rb.imported = true
			rb.importID = g.importBuffer(b.buffer)
		case bindingImportedTexture:
			rb.imported = true
			rb.importID = g.importTexture(b.texture)
		case bindingAttachment:
			g.attachment(b.attachment.id).usage |= metadata.TextureUsageSampled
			rb.resource = b.attachment.id
			pb.pass.addRead(readAccess{resource: b.attachment.id, src: b.attachment.src, dst: b.attachment.dst, image: true})
		case bindingMutableAttachment:
			h := b.mutableAttachment
			g.attachment(h.id)
			pb.checkOwner(h.id)
			h.state = storage
			pb.markWritten(h.id, metadata.TextureUsageStorage)
			pb.pass.storage = append(pb.pass.storage, storageWrite{resource: h.id, stage: storage})
			rb.resource = h.id
			rb.layout = metadata.ImageLayoutGeneral
		case bindingBuffer:
			g.buffer(b.readBuffer.id)
			rb.resource = b.readBuffer.id
			pb.pass.addRead(readAccess{resource: b.readBuffer.id, src: b.readBuffer.src, dst: b.readBuffer.dst})
		case bindingMutableBuffer:
			h := b.mutableBuffer
			g.buffer(h.id)
			pb.checkOwner(h.id)
			h.state = accessState{stage: writeStage, access: metadata.AccessShaderWrite}
			pb.markWritten(h.id, 0)
			rb.resource = h.id
		case bindingSampler:
			rb.sampler = true
		}
		switch {
		case rb.sampler || typ == metadata.DescriptorSamplerState:
			if !rb.sampler || typ != metadata.DescriptorSamplerState {
				fatal(ErrInvalidDescription, "descriptor set %q slot %d expects a %s, bind samplers with BindSampler", desc.Name, b.slot, typ)
			}
		case !rb.imported && typ.IsImage() != (b.kind == bindingAttachment || b.kind == bindingMutableAttachment):
			fatal(ErrInvalidDescription, "descriptor set %q slot %d expects a %s", desc.Name, b.slot, typ)
		}
		res.bindings = append(res.bindings, rb)
	}

	id := g.addResource(pb.pass.id, desc.Name, res)
	return DescriptorHandle{id: id}
}

func (pb *PassBuilder) record(c command) {
	pb.checkOpen()
	pb.pass.commands = append(pb.pass.commands, c)
}

func (pb *PassBuilder) CmdBeginRenderPass(rp RenderPassHandle, clears ...metadata.ClearValue) {
	if !rp.valid {
		fatal(ErrInvalidResource, "pass %q begins an unset render pass", pb.pass.name)
	}
	pb.pass.addRef(rp.id)
	pb.record(beginRenderPassCmd{renderPass: rp.id, clears: append([]metadata.ClearValue(nil), clears...)})
}

func (pb *PassBuilder) CmdEndRenderPass() {
	pb.record(endRenderPassCmd{})
}

func (pb *PassBuilder) CmdBindRasterPipeline(p PipelineHandle) {
	if _, ok := pb.graph.resource(p.id).desc.(*rasterPipelineResource); !ok {
		fatal(ErrInvalidResource, "pass %q binds %q as a raster pipeline", pb.pass.name, pb.graph.resources[p.id].name)
	}
	pb.pass.addRef(p.id)
	pb.record(bindRasterPipelineCmd{pipeline: p.id})
}

func (pb *PassBuilder) CmdBindComputePipeline(p PipelineHandle) {
	if _, ok := pb.graph.resource(p.id).desc.(*computePipelineResource); !ok {
		fatal(ErrInvalidResource, "pass %q binds %q as a compute pipeline", pb.pass.name, pb.graph.resources[p.id].name)
	}
	pb.pass.addRef(p.id)
	pb.record(bindComputePipelineCmd{pipeline: p.id})
}

func (pb *PassBuilder) CmdBindGraphicsDescriptor(d DescriptorHandle, set uint32, p PipelineHandle) {
	pb.bindDescriptor(d, set, p, metadata.PipelineBindPointGraphics)
}

func (pb *PassBuilder) CmdBindComputeDescriptor(d DescriptorHandle, set uint32, p PipelineHandle) {
	pb.bindDescriptor(d, set, p, metadata.PipelineBindPointCompute)
}

func (pb *PassBuilder) bindDescriptor(d DescriptorHandle, set uint32, p PipelineHandle, bindPoint metadata.PipelineBindPoint) {
	if ds := pb.graph.descriptorSet(d.id); ds.bindPoint != bindPoint {
		fatal(ErrInvalidResource, "pass %q binds %s descriptor set %q at the %s bind point",
			pb.pass.name, ds.bindPoint, pb.graph.resources[d.id].name, bindPoint)
	}
	if !pb.graph.isPipeline(p.id) {
		fatal(ErrInvalidResource, "pass %q binds descriptor set against non pipeline %q", pb.pass.name, pb.graph.resources[p.id].name)
	}
	pb.pass.addRef(d.id)
	pb.pass.addRef(p.id)
	pb.record(bindDescriptorCmd{descriptor: d.id, set: set, pipeline: p.id})
}

func (pb *PassBuilder) CmdDraw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	pb.record(drawCmd{
		vertexCount:   vertexCount,
		instanceCount: instanceCount,
		firstVertex:   firstVertex,
		firstInstance: firstInstance,
	})
}

func (pb *PassBuilder) CmdDrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	pb.record(drawIndexedCmd{
		indexCount:    indexCount,
		instanceCount: instanceCount,
		firstIndex:    firstIndex,
		vertexOffset:  vertexOffset,
		firstInstance: firstInstance,
	})
}

// CmdDrawMesh binds the buffers of mesh and draws all of its indices.
func (pb *PassBuilder) CmdDrawMesh(mesh *metadata.Mesh) {
	pb.record(drawMeshCmd{mesh: pb.graph.importMesh(mesh)})
}

func (pb *PassBuilder) CmdDispatch(x, y, z uint32) {
	pb.record(dispatchCmd{x: x, y: y, z: z})
}

func (pb *PassBuilder) CmdMemoryBarrier(srcStage, dstStage metadata.PipelineStage, srcAccess, dstAccess metadata.Access) {
	pb.record(memoryBarrierCmd{
		srcStage:  srcStage,
		dstStage:  dstStage,
		srcAccess: srcAccess,
		dstAccess: dstAccess,
	})
}
