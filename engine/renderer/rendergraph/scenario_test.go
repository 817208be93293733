package rendergraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type cullingAssets struct {
	geometryVS   *metadata.Shader
	cullCS       *metadata.Shader
	fullscreenVS *metadata.Shader
	fullscreenPS *metadata.Shader
	mesh         *metadata.Mesh
}

func newCullingAssets() cullingAssets {
	return cullingAssets{
		geometryVS:   newShader("geometry.vert", metadata.ShaderStageVertex),
		cullCS:       newShader("cull.comp", metadata.ShaderStageCompute),
		fullscreenVS: newShader("fullscreen.vert", metadata.ShaderStageVertex),
		fullscreenPS: newShader("fullscreen.frag", metadata.ShaderStageFragment),
		mesh:         newMesh(),
	}
}

// buildCulling records a depth prepass, a compute pass reducing the depth
// into a storage image and a fullscreen pass presenting it.
func buildCulling(g *RenderGraph, a cullingAssets) {
	var depth, maxDepth *AttachmentHandle

	g.Record("geometry", func(pb *PassBuilder) {
		depth = pb.AddAttachment(AttachmentDesc{
			Name:    "depth",
			Format:  metadata.TextureFormatDepth,
			Width:   800,
			Height:  600,
			LoadOp:  metadata.LoadOpClear,
			StoreOp: metadata.StoreOpStore,
			Usage:   metadata.TextureUsageAttachment,
		})
		rp := pb.AddRenderPass(RenderPassDesc{Name: "geometry", Depth: depth})
		less := metadata.CompareOpLess
		pipeline := pb.AddRasterPipeline(RasterPipelineDesc{
			Name:           "geometry",
			VertexShader:   a.geometryVS,
			RenderPass:     rp,
			DepthCompareOp: &less,
			DepthWrite:     true,
			FaceCull:       metadata.FaceCullBack,
			VertexInput: metadata.VertexInputInfo{
				Stride:     12,
				Attributes: []metadata.VertexAttribute{{Location: 0, Format: metadata.VertexFormatFloat32x3}},
			},
		})
		pb.CmdBeginRenderPass(rp, metadata.ClearDepthStencil(1, 0))
		pb.CmdBindRasterPipeline(pipeline)
		pb.CmdDrawMesh(a.mesh)
		pb.CmdEndRenderPass()
	})

	g.Record("cull", func(pb *PassBuilder) {
		maxDepth = pb.AddAttachment(AttachmentDesc{
			Name:   "max depth",
			Format: metadata.TextureFormatR32Float,
			Width:  100,
			Height: 75,
			Usage:  metadata.TextureUsageStorage,
		})
		layout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{
			0: metadata.DescriptorTexture2D,
			1: metadata.DescriptorRWTexture2D,
		}}
		desc := pb.AddComputeDescriptorSet(DescriptorDesc{
			Name:   "cull",
			Layout: layout,
			Bindings: []DescriptorBinding{
				BindAttachment(0, depth.Read()),
				BindMutableAttachment(1, maxDepth),
			},
		})
		pipeline := pb.AddComputePipeline(ComputePipelineDesc{
			Name:              "cull",
			ComputeShader:     a.cullCS,
			DescriptorLayouts: []metadata.DescriptorSetInfo{layout},
		})
		pb.CmdBindComputePipeline(pipeline)
		pb.CmdBindComputeDescriptor(desc, 0, pipeline)
		pb.CmdDispatch(13, 10, 1)
	})

	g.Record("fullscreen", func(pb *PassBuilder) {
		layout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{
			0: metadata.DescriptorTexture2D,
			1: metadata.DescriptorSamplerState,
		}}
		desc := pb.AddGraphicsDescriptorSet(DescriptorDesc{
			Name:   "fullscreen",
			Layout: layout,
			Bindings: []DescriptorBinding{
				BindAttachment(0, maxDepth.Read()),
				BindSampler(1),
			},
		})
		rp := pb.AddOutputRenderPass()
		pipeline := pb.AddRasterPipeline(RasterPipelineDesc{
			Name:              "fullscreen",
			VertexShader:      a.fullscreenVS,
			FragmentShader:    a.fullscreenPS,
			DescriptorLayouts: []metadata.DescriptorSetInfo{layout},
			RenderPass:        rp,
		})
		pb.CmdBeginRenderPass(rp, metadata.ClearColor(0, 0, 0, 1))
		pb.CmdBindRasterPipeline(pipeline)
		pb.CmdBindGraphicsDescriptor(desc, 0, pipeline)
		pb.CmdDraw(3, 1, 0, 0)
		pb.CmdEndRenderPass()
	})
}

func TestDepthCullingFrame(t *testing.T) {
	cache := NewRenderGraphCache(0)
	device := newFakeDevice()
	ctx := &fakeContext{}

	g := New(cache)
	buildCulling(g, newCullingAssets())
	require.NoError(t, g.Execute(ctx, device))

	assert.Equal(t, []string{
		"update_descriptor",
		"update_descriptor",
		// geometry
		"begin_render_pass",
		"bind_raster_pipeline",
		"bind_vertex_buffer",
		"bind_index_buffer",
		"draw_indexed",
		"end_render_pass",
		// cull
		"pipeline_barrier",
		"pipeline_barrier",
		"bind_compute_pipeline",
		"bind_descriptor",
		"dispatch",
		// fullscreen
		"pipeline_barrier",
		"begin_output_render_pass",
		"bind_raster_pipeline",
		"bind_descriptor",
		"draw",
		"end_render_pass",
	}, ctx.calls)

	require.Len(t, ctx.barriers, 3)

	depthBarrier := ctx.barriers[0]
	require.NotNil(t, depthBarrier.Texture)
	assert.Equal(t, metadata.TextureFormatDepth, depthBarrier.Texture.Format)
	assert.Equal(t, metadata.ImageLayoutDepthStencilAttachmentOptimal, depthBarrier.OldLayout)
	assert.Equal(t, metadata.ImageLayoutShaderReadOnlyOptimal, depthBarrier.NewLayout)
	assert.Equal(t, metadata.PipelineStageEarlyFragmentTests|metadata.PipelineStageLateFragmentTests, depthBarrier.SrcStage)
	assert.Equal(t, metadata.AccessDepthStencilAttachmentWrite, depthBarrier.SrcAccess)
	assert.Equal(t, shaderRead.stage, depthBarrier.DstStage)
	assert.Equal(t, metadata.AccessShaderRead, depthBarrier.DstAccess)

	storagePrep := ctx.barriers[1]
	assert.Equal(t, metadata.TextureFormatR32Float, storagePrep.Texture.Format)
	assert.Equal(t, metadata.ImageLayoutUndefined, storagePrep.OldLayout)
	assert.Equal(t, metadata.ImageLayoutGeneral, storagePrep.NewLayout)
	assert.Equal(t, metadata.PipelineStageComputeShader, storagePrep.DstStage)
	assert.Equal(t, shaderRead.stage, storagePrep.SrcStage)
	assert.Zero(t, storagePrep.SrcAccess)

	storageRead := ctx.barriers[2]
	assert.Same(t, storagePrep.Texture, storageRead.Texture)
	assert.Equal(t, metadata.ImageLayoutGeneral, storageRead.OldLayout)
	assert.Equal(t, metadata.ImageLayoutShaderReadOnlyOptimal, storageRead.NewLayout)
	assert.Equal(t, metadata.PipelineStageComputeShader, storageRead.SrcStage)
	assert.Equal(t, metadata.AccessShaderWrite, storageRead.SrcAccess)

	require.Len(t, ctx.clears, 2)
	assert.True(t, ctx.clears[0][0].IsDepth)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, ctx.clears[1][0].Color)

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Attachments)
	assert.Equal(t, 1, stats.RenderPasses)
	assert.Equal(t, 1, stats.Framebuffers)
	assert.Equal(t, 3, stats.Pipelines)
	assert.Equal(t, 2, stats.DescriptorSets)
	assert.Equal(t, 2, stats.DescriptorLayouts)
	assert.Equal(t, 2, stats.DescriptorPools)
	assert.Equal(t, 1, device.outputPipelines)
}

func TestDepthCullingDescriptorWrites(t *testing.T) {
	ctx := &fakeContext{}
	g := New(NewRenderGraphCache(0))
	buildCulling(g, newCullingAssets())
	require.NoError(t, g.Execute(ctx, newFakeDevice()))

	require.Len(t, ctx.updates, 2)

	cull := ctx.updates[0].writes
	require.Len(t, cull, 2)
	assert.Equal(t, metadata.DescriptorTexture2D, cull[0].Type)
	assert.Equal(t, metadata.TextureFormatDepth, cull[0].Texture.Format)
	assert.Equal(t, metadata.ImageLayoutShaderReadOnlyOptimal, cull[0].Layout)
	assert.Equal(t, metadata.DescriptorRWTexture2D, cull[1].Type)
	assert.Equal(t, metadata.ImageLayoutGeneral, cull[1].Layout)

	fullscreen := ctx.updates[1].writes
	require.Len(t, fullscreen, 2)
	assert.Same(t, cull[1].Texture, fullscreen[0].Texture)
	assert.Nil(t, fullscreen[1].Texture)
	assert.Equal(t, metadata.DescriptorSamplerState, fullscreen[1].Type)

	// usage is widened by how the frame touches each attachment
	assert.True(t, cull[0].Texture.Usage.Has(metadata.TextureUsageAttachment|metadata.TextureUsageSampled))
	assert.True(t, cull[1].Texture.Usage.Has(metadata.TextureUsageStorage|metadata.TextureUsageSampled))
}

func TestRepeatedFrameIsServedFromCache(t *testing.T) {
	cache := NewRenderGraphCache(0)
	device := newFakeDevice()
	assets := newCullingAssets()

	first := New(cache)
	buildCulling(first, assets)
	require.NoError(t, first.Execute(&fakeContext{}, device))

	createdAfterFirst := map[string]int{}
	for k, v := range device.created {
		createdAfterFirst[k] = v
	}
	statsAfterFirst := cache.Stats()

	for i := 0; i < 3; i++ {
		ctx := &fakeContext{}
		g := New(cache)
		buildCulling(g, assets)
		require.NoError(t, g.Execute(ctx, device))
		// descriptors are rewritten every frame, once per unique set
		assert.Len(t, ctx.updates, 2)
	}

	assert.Equal(t, createdAfterFirst, device.created)
	assert.Equal(t, statsAfterFirst, cache.Stats())
}

func TestReloadedShaderCreatesNewPipeline(t *testing.T) {
	cache := NewRenderGraphCache(0)
	device := newFakeDevice()
	assets := newCullingAssets()

	g := New(cache)
	buildCulling(g, assets)
	require.NoError(t, g.Execute(&fakeContext{}, device))
	require.Equal(t, 3, device.created["pipeline"])

	assets.cullCS = newShader("cull.comp", metadata.ShaderStageCompute)
	g = New(cache)
	buildCulling(g, assets)
	require.NoError(t, g.Execute(&fakeContext{}, device))

	assert.Equal(t, 4, device.created["pipeline"])
	assert.Equal(t, 2, device.created["descriptor_layout"])
}

// colorPass records a pass rendering into a fresh 512x512 attachment.
func colorPass(g *RenderGraph, name string, vs *metadata.Shader) *AttachmentHandle {
	var color *AttachmentHandle
	g.Record(name, func(pb *PassBuilder) {
		color = pb.AddAttachment(AttachmentDesc{
			Name:    name,
			Format:  metadata.TextureFormatRGBA8UNorm,
			Width:   512,
			Height:  512,
			LoadOp:  metadata.LoadOpClear,
			StoreOp: metadata.StoreOpStore,
			Usage:   metadata.TextureUsageAttachment,
		})
		rp := pb.AddRenderPass(RenderPassDesc{Name: name, Color: []*AttachmentHandle{color}})
		p := pb.AddRasterPipeline(RasterPipelineDesc{Name: name, VertexShader: vs, RenderPass: rp})
		pb.CmdBeginRenderPass(rp, metadata.ClearColor(0, 0, 0, 0))
		pb.CmdBindRasterPipeline(p)
		pb.CmdDraw(3, 1, 0, 0)
		pb.CmdEndRenderPass()
	})
	return color
}

// compositePass presents every input through one graphics descriptor set.
func compositePass(g *RenderGraph, vs, ps *metadata.Shader, inputs ...*AttachmentHandle) {
	g.Record("composite", func(pb *PassBuilder) {
		layout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{}}
		var bindings []DescriptorBinding
		for i, in := range inputs {
			layout.Bindings[uint32(i)] = metadata.DescriptorTexture2D
			bindings = append(bindings, BindAttachment(uint32(i), in.Read()))
		}
		desc := pb.AddGraphicsDescriptorSet(DescriptorDesc{Name: "composite", Layout: layout, Bindings: bindings})
		rp := pb.AddOutputRenderPass()
		p := pb.AddRasterPipeline(RasterPipelineDesc{
			Name:              "composite",
			VertexShader:      vs,
			FragmentShader:    ps,
			RenderPass:        rp,
			DescriptorLayouts: []metadata.DescriptorSetInfo{layout},
		})
		pb.CmdBeginRenderPass(rp)
		pb.CmdBindRasterPipeline(p)
		pb.CmdBindGraphicsDescriptor(desc, 0, p)
		pb.CmdDraw(3, 1, 0, 0)
		pb.CmdEndRenderPass()
	})
}

func TestIdenticalAttachmentsGetDistinctImages(t *testing.T) {
	cache := NewRenderGraphCache(0)
	device := newFakeDevice()
	vs := newShader("vs", metadata.ShaderStageVertex)
	ps := newShader("ps", metadata.ShaderStageFragment)

	g := New(cache)
	left := colorPass(g, "left", vs)
	right := colorPass(g, "right", vs)
	compositePass(g, vs, ps, left, right)
	ctx := &fakeContext{}
	require.NoError(t, g.Execute(ctx, device))

	assert.Equal(t, 2, device.created["texture"])
	assert.Equal(t, 2, cache.Stats().Attachments)
	require.Len(t, ctx.updates, 1)
	assert.NotSame(t, ctx.updates[0].writes[0].Texture, ctx.updates[0].writes[1].Texture)

	// A later frame needing a single attachment of the same shape reuses one.
	g = New(cache)
	only := colorPass(g, "left", vs)
	compositePass(g, vs, ps, only)
	require.NoError(t, g.Execute(&fakeContext{}, device))

	assert.Equal(t, 2, device.created["texture"])
	assert.Equal(t, 2, cache.Stats().Attachments)
}

func TestStorageWriteWaitsForPreviousFrameReads(t *testing.T) {
	cache := NewRenderGraphCache(0)
	device := newFakeDevice()
	assets := newCullingAssets()

	first := &fakeContext{}
	g := New(cache)
	buildCulling(g, assets)
	require.NoError(t, g.Execute(first, device))

	second := &fakeContext{}
	g = New(cache)
	buildCulling(g, assets)
	require.NoError(t, g.Execute(second, device))

	require.Len(t, first.barriers, 3)
	require.Len(t, second.barriers, 3)
	fullscreenRead := first.barriers[2]
	prep := second.barriers[1]

	// the next frame writes the image the previous fullscreen pass sampled
	assert.Same(t, fullscreenRead.Texture, prep.Texture)
	assert.Equal(t, metadata.ImageLayoutUndefined, prep.OldLayout)
	assert.NotEqual(t, metadata.PipelineStageTopOfPipe, prep.SrcStage)
	assert.Equal(t, fullscreenRead.DstStage, fullscreenRead.DstStage&prep.SrcStage)
	assert.Zero(t, prep.SrcAccess)
}

func TestReadingAnAttachmentDoesNotSplitItsImage(t *testing.T) {
	cache := NewRenderGraphCache(0)
	device := newFakeDevice()
	vs := newShader("vs", metadata.ShaderStageVertex)
	ps := newShader("ps", metadata.ShaderStageFragment)

	g := New(cache)
	scene := colorPass(g, "scene", vs)
	compositePass(g, vs, ps, scene)
	require.NoError(t, g.Execute(&fakeContext{}, device))
	require.Equal(t, 1, device.created["texture"])
	require.Equal(t, 1, device.created["render_pass"])

	// the same attachment rendered but never sampled this frame
	g = New(cache)
	g.Record("output", func(pb *PassBuilder) {
		scratch := pb.AddAttachment(AttachmentDesc{
			Name:    "scratch",
			Format:  metadata.TextureFormatRGBA8UNorm,
			Width:   512,
			Height:  512,
			LoadOp:  metadata.LoadOpClear,
			StoreOp: metadata.StoreOpStore,
			Usage:   metadata.TextureUsageAttachment,
		})
		rp := pb.AddRenderPass(RenderPassDesc{Name: "scratch", Color: []*AttachmentHandle{scratch}})
		p := pb.AddRasterPipeline(RasterPipelineDesc{Name: "scratch", VertexShader: vs, RenderPass: rp})
		pb.CmdBeginRenderPass(rp, metadata.ClearColor(0, 0, 0, 0))
		pb.CmdBindRasterPipeline(p)
		pb.CmdDraw(3, 1, 0, 0)
		pb.CmdEndRenderPass()

		out := pb.AddOutputRenderPass()
		present := pb.AddRasterPipeline(RasterPipelineDesc{Name: "present", VertexShader: vs, RenderPass: out})
		pb.CmdBeginRenderPass(out)
		pb.CmdBindRasterPipeline(present)
		pb.CmdDraw(3, 1, 0, 0)
		pb.CmdEndRenderPass()
	})
	require.NoError(t, g.Execute(&fakeContext{}, device))

	assert.Equal(t, 1, device.created["texture"])
	assert.Equal(t, 1, device.created["render_pass"])
	assert.Equal(t, 1, cache.Stats().Attachments)
}
