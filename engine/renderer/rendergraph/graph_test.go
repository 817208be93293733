package rendergraph

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

func TestUnreachablePassesAreDropped(t *testing.T) {
	device := newFakeDevice()
	ctx := &fakeContext{}
	vs := newShader("vs", metadata.ShaderStageVertex)

	g := New(NewRenderGraphCache(0))
	colorPass(g, "unused", vs)
	outputPass(g, vs, nil, 7)
	require.NoError(t, g.Execute(ctx, device))

	assert.Equal(t, []string{
		"begin_output_render_pass",
		"bind_raster_pipeline",
		"draw",
		"end_render_pass",
	}, ctx.calls)
	assert.Zero(t, device.created["texture"])
	assert.Zero(t, device.created["render_pass"])
	assert.Equal(t, 1, device.created["pipeline"])
}

func TestProducersRunBeforeConsumers(t *testing.T) {
	vs := newShader("vs", metadata.ShaderStageVertex)
	ps := newShader("ps", metadata.ShaderStageFragment)
	g := New(NewRenderGraphCache(0))

	// both builders are open at once and the consumer finishes first
	producer := g.AddPass("producer")
	consumer := g.AddPass("consumer")

	color := producer.AddAttachment(AttachmentDesc{
		Name: "color", Format: metadata.TextureFormatRGBA8UNorm, Width: 64, Height: 64,
	})
	rp := producer.AddRenderPass(RenderPassDesc{Name: "producer", Color: []*AttachmentHandle{color}})
	pp := producer.AddRasterPipeline(RasterPipelineDesc{Name: "producer", VertexShader: vs, RenderPass: rp})
	producer.CmdBeginRenderPass(rp)
	producer.CmdBindRasterPipeline(pp)
	producer.CmdDraw(1, 1, 0, 0)
	producer.CmdEndRenderPass()

	layout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorTexture2D}}
	desc := consumer.AddGraphicsDescriptorSet(DescriptorDesc{
		Name:     "consumer",
		Layout:   layout,
		Bindings: []DescriptorBinding{BindAttachment(0, color.Read())},
	})
	out := consumer.AddOutputRenderPass()
	cp := consumer.AddRasterPipeline(RasterPipelineDesc{
		Name: "consumer", VertexShader: vs, FragmentShader: ps, RenderPass: out,
		DescriptorLayouts: []metadata.DescriptorSetInfo{layout},
	})
	consumer.CmdBeginRenderPass(out)
	consumer.CmdBindRasterPipeline(cp)
	consumer.CmdBindGraphicsDescriptor(desc, 0, cp)
	consumer.CmdDraw(2, 1, 0, 0)
	consumer.CmdEndRenderPass()

	consumer.Finish()
	producer.Finish()

	ctx := &fakeContext{}
	require.NoError(t, g.Execute(ctx, newFakeDevice()))

	require.Len(t, ctx.draws, 2)
	assert.Equal(t, uint32(1), ctx.draws[0].count)
	assert.Equal(t, uint32(2), ctx.draws[1].count)
}

func TestExactlyOneOutputRenderPass(t *testing.T) {
	vs := newShader("vs", metadata.ShaderStageVertex)

	t.Run("none", func(t *testing.T) {
		g := New(NewRenderGraphCache(0))
		colorPass(g, "offscreen", vs)
		requirePanicsWith(t, ErrNoOutputRenderPass, func() {
			_ = g.Execute(&fakeContext{}, newFakeDevice())
		})
	})

	t.Run("two", func(t *testing.T) {
		g := New(NewRenderGraphCache(0))
		outputPass(g, vs, nil, 3)
		outputPass(g, vs, nil, 3)
		requirePanicsWith(t, ErrMultipleOutputRenderPasses, func() {
			_ = g.Execute(&fakeContext{}, newFakeDevice())
		})
	})

	t.Run("empty graph", func(t *testing.T) {
		g := New(NewRenderGraphCache(0))
		requirePanicsWith(t, ErrNoOutputRenderPass, func() {
			_ = g.Execute(&fakeContext{}, newFakeDevice())
		})
	})
}

func TestCyclesAreRejected(t *testing.T) {
	vs := newShader("vs", metadata.ShaderStageVertex)
	layout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorTexture2D}}
	g := New(NewRenderGraphCache(0))

	a := g.AddPass("a")
	b := g.AddPass("b")

	attachment := func(pb *PassBuilder, name string) *AttachmentHandle {
		h := pb.AddAttachment(AttachmentDesc{Name: name, Format: metadata.TextureFormatRGBA8UNorm, Width: 8, Height: 8})
		pb.AddRenderPass(RenderPassDesc{Name: name, Color: []*AttachmentHandle{h}})
		return h
	}
	fromA := attachment(a, "from a")
	fromB := attachment(b, "from b")

	a.AddGraphicsDescriptorSet(DescriptorDesc{Name: "a reads b", Layout: layout, Bindings: []DescriptorBinding{BindAttachment(0, fromB.Read())}})
	b.AddGraphicsDescriptorSet(DescriptorDesc{Name: "b reads a", Layout: layout, Bindings: []DescriptorBinding{BindAttachment(0, fromA.Read())}})
	out := b.AddOutputRenderPass()
	p := b.AddRasterPipeline(RasterPipelineDesc{Name: "present", VertexShader: vs, RenderPass: out})
	b.CmdBindRasterPipeline(p)

	a.Finish()
	b.Finish()

	requirePanicsWith(t, ErrCyclicGraph, func() {
		_ = g.Execute(&fakeContext{}, newFakeDevice())
	})
}

func TestDescriptorSetIsWrittenOncePerFrame(t *testing.T) {
	vs := newShader("vs", metadata.ShaderStageVertex)
	ps := newShader("ps", metadata.ShaderStageFragment)
	uniforms := &metadata.GpuBuffer{ID: uuid.New(), Size: 256, Usage: metadata.BufferUsageUniform}
	layout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorCBuffer}}

	cache := NewRenderGraphCache(0)
	g := New(cache)
	var shared DescriptorHandle
	var color *AttachmentHandle
	g.Record("first", func(pb *PassBuilder) {
		color = pb.AddAttachment(AttachmentDesc{Name: "color", Format: metadata.TextureFormatRGBA8UNorm, Width: 32, Height: 32})
		rp := pb.AddRenderPass(RenderPassDesc{Name: "first", Color: []*AttachmentHandle{color}})
		shared = pb.AddGraphicsDescriptorSet(DescriptorDesc{Name: "globals", Layout: layout, Bindings: []DescriptorBinding{BindImportedBuffer(0, uniforms)}})
		// an identical set declared separately shares the physical set
		twin := pb.AddGraphicsDescriptorSet(DescriptorDesc{Name: "globals twin", Layout: layout, Bindings: []DescriptorBinding{BindImportedBuffer(0, uniforms)}})
		p := pb.AddRasterPipeline(RasterPipelineDesc{Name: "first", VertexShader: vs, RenderPass: rp, DescriptorLayouts: []metadata.DescriptorSetInfo{layout}})
		pb.CmdBeginRenderPass(rp)
		pb.CmdBindRasterPipeline(p)
		pb.CmdBindGraphicsDescriptor(shared, 0, p)
		pb.CmdBindGraphicsDescriptor(twin, 0, p)
		pb.CmdDraw(3, 1, 0, 0)
		pb.CmdEndRenderPass()
	})
	g.Record("second", func(pb *PassBuilder) {
		sampled := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorTexture2D}}
		input := pb.AddGraphicsDescriptorSet(DescriptorDesc{Name: "input", Layout: sampled, Bindings: []DescriptorBinding{BindAttachment(0, color.Read())}})
		rp := pb.AddOutputRenderPass()
		p := pb.AddRasterPipeline(RasterPipelineDesc{
			Name: "second", VertexShader: vs, FragmentShader: ps, RenderPass: rp,
			DescriptorLayouts: []metadata.DescriptorSetInfo{layout, sampled},
		})
		pb.CmdBeginRenderPass(rp)
		pb.CmdBindRasterPipeline(p)
		pb.CmdBindGraphicsDescriptor(shared, 0, p)
		pb.CmdBindGraphicsDescriptor(input, 1, p)
		pb.CmdDraw(3, 1, 0, 0)
		pb.CmdEndRenderPass()
	})

	ctx := &fakeContext{}
	require.NoError(t, g.Execute(ctx, newFakeDevice()))

	require.Len(t, ctx.updates, 2)
	assert.Same(t, uniforms, ctx.updates[0].writes[0].Buffer)
	assert.Equal(t, metadata.DescriptorCBuffer, ctx.updates[0].writes[0].Type)
	assert.Equal(t, 2, cache.Stats().DescriptorSets)
}

func TestPassWithoutReadsEmitsNoBarriers(t *testing.T) {
	ctx := &fakeContext{}
	g := New(NewRenderGraphCache(0))
	outputPass(g, newShader("vs", metadata.ShaderStageVertex), nil, 3)
	require.NoError(t, g.Execute(ctx, newFakeDevice()))
	assert.Empty(t, ctx.barriers)
}

func TestSecondReaderSkipsTransition(t *testing.T) {
	vs := newShader("vs", metadata.ShaderStageVertex)
	ps := newShader("ps", metadata.ShaderStageFragment)
	layout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorTexture2D}}

	g := New(NewRenderGraphCache(0))
	color := colorPass(g, "scene", vs)

	var blurred *AttachmentHandle
	g.Record("blur", func(pb *PassBuilder) {
		blurred = pb.AddAttachment(AttachmentDesc{Name: "blurred", Format: metadata.TextureFormatRGBA8UNorm, Width: 512, Height: 512})
		rp := pb.AddRenderPass(RenderPassDesc{Name: "blur", Color: []*AttachmentHandle{blurred}})
		d := pb.AddGraphicsDescriptorSet(DescriptorDesc{Name: "blur", Layout: layout, Bindings: []DescriptorBinding{BindAttachment(0, color.Read())}})
		p := pb.AddRasterPipeline(RasterPipelineDesc{Name: "blur", VertexShader: vs, FragmentShader: ps, RenderPass: rp, DescriptorLayouts: []metadata.DescriptorSetInfo{layout}})
		pb.CmdBeginRenderPass(rp)
		pb.CmdBindRasterPipeline(p)
		pb.CmdBindGraphicsDescriptor(d, 0, p)
		pb.CmdDraw(3, 1, 0, 0)
		pb.CmdEndRenderPass()
	})
	compositePass(g, vs, ps, color, blurred)

	ctx := &fakeContext{}
	require.NoError(t, g.Execute(ctx, newFakeDevice()))

	// scene is transitioned once, before blur; composite only transitions blurred
	require.Len(t, ctx.barriers, 2)
	assert.Equal(t, "attachment 512x512 RGBA8UNorm", ctx.barriers[0].Texture.Name)
	assert.NotSame(t, ctx.barriers[0].Texture, ctx.barriers[1].Texture)
	for _, b := range ctx.barriers {
		assert.Equal(t, metadata.ImageLayoutColorAttachmentOptimal, b.OldLayout)
		assert.Equal(t, metadata.ImageLayoutShaderReadOnlyOptimal, b.NewLayout)
	}
}

func TestStorageBufferDependency(t *testing.T) {
	cs := newShader("cs", metadata.ShaderStageCompute)
	vs := newShader("vs", metadata.ShaderStageVertex)
	storageLayout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorRWStructuredBuffer}}
	readLayout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorStructuredBuffer}}

	g := New(NewRenderGraphCache(0))
	var instances *BufferHandle
	g.Record("simulate", func(pb *PassBuilder) {
		instances = pb.AddBuffer(BufferDesc{Name: "instances", Size: 4096, Usage: metadata.BufferUsageStorage})
		d := pb.AddComputeDescriptorSet(DescriptorDesc{Name: "simulate", Layout: storageLayout, Bindings: []DescriptorBinding{BindMutableBuffer(0, instances)}})
		p := pb.AddComputePipeline(ComputePipelineDesc{Name: "simulate", ComputeShader: cs, DescriptorLayouts: []metadata.DescriptorSetInfo{storageLayout}})
		pb.CmdBindComputePipeline(p)
		pb.CmdBindComputeDescriptor(d, 0, p)
		pb.CmdDispatch(64, 1, 1)
	})
	g.Record("draw", func(pb *PassBuilder) {
		d := pb.AddGraphicsDescriptorSet(DescriptorDesc{Name: "draw", Layout: readLayout, Bindings: []DescriptorBinding{BindBuffer(0, instances.Read())}})
		rp := pb.AddOutputRenderPass()
		p := pb.AddRasterPipeline(RasterPipelineDesc{Name: "draw", VertexShader: vs, RenderPass: rp, DescriptorLayouts: []metadata.DescriptorSetInfo{readLayout}})
		pb.CmdBeginRenderPass(rp)
		pb.CmdBindRasterPipeline(p)
		pb.CmdBindGraphicsDescriptor(d, 0, p)
		pb.CmdDraw(3, 64, 0, 0)
		pb.CmdEndRenderPass()
	})

	ctx := &fakeContext{}
	device := newFakeDevice()
	require.NoError(t, g.Execute(ctx, device))

	assert.Equal(t, 1, device.created["buffer"])
	require.Len(t, ctx.barriers, 1)
	b := ctx.barriers[0]
	require.NotNil(t, b.Buffer)
	assert.Nil(t, b.Texture)
	assert.Equal(t, metadata.PipelineStageComputeShader, b.SrcStage)
	assert.Equal(t, metadata.AccessShaderWrite, b.SrcAccess)
	assert.Equal(t, metadata.AccessShaderRead, b.DstAccess)
	assert.Equal(t, []string{"update_descriptor", "update_descriptor", "bind_compute_pipeline", "bind_descriptor", "dispatch"}, ctx.calls[:5])
}

func TestRecordFinishesPassOnPanic(t *testing.T) {
	g := New(NewRenderGraphCache(0))
	boom := errors.New("boom")

	func() {
		defer func() {
			assert.Equal(t, boom, recover())
		}()
		g.Record("exploding", func(pb *PassBuilder) {
			panic(boom)
		})
	}()

	assert.Len(t, g.passes, 1)
	assert.Zero(t, g.open)
}

func TestFinishIsIdempotent(t *testing.T) {
	g := New(NewRenderGraphCache(0))
	pb := g.AddPass("once")
	pb.Finish()
	pb.Finish()
	assert.Len(t, g.passes, 1)
	assert.Zero(t, g.open)

	requirePanicsWith(t, ErrPassFinished, func() {
		pb.CmdDraw(3, 1, 0, 0)
	})
}

func TestExecuteRejectsOpenBuilders(t *testing.T) {
	g := New(NewRenderGraphCache(0))
	outputPass(g, newShader("vs", metadata.ShaderStageVertex), nil, 3)
	g.AddPass("forgotten")
	requirePanicsWith(t, ErrUnfinishedPass, func() {
		_ = g.Execute(&fakeContext{}, newFakeDevice())
	})
}

func TestExecuteTwice(t *testing.T) {
	g := New(NewRenderGraphCache(0))
	outputPass(g, newShader("vs", metadata.ShaderStageVertex), nil, 3)
	require.NoError(t, g.Execute(&fakeContext{}, newFakeDevice()))
	requirePanicsWith(t, ErrGraphExecuted, func() {
		_ = g.Execute(&fakeContext{}, newFakeDevice())
	})
}

func TestWritingAnotherPassResourcePanics(t *testing.T) {
	g := New(NewRenderGraphCache(0))
	color := colorPass(g, "owner", newShader("vs", metadata.ShaderStageVertex))
	requirePanicsWith(t, ErrForeignWrite, func() {
		g.Record("thief", func(pb *PassBuilder) {
			pb.AddRenderPass(RenderPassDesc{Name: "thief", Color: []*AttachmentHandle{color}})
		})
	})
}

func TestReadingUnwrittenAttachmentPanics(t *testing.T) {
	vs := newShader("vs", metadata.ShaderStageVertex)
	layout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorTexture2D}}
	g := New(NewRenderGraphCache(0))

	var never *AttachmentHandle
	g.Record("declares", func(pb *PassBuilder) {
		never = pb.AddAttachment(AttachmentDesc{Name: "never", Format: metadata.TextureFormatRGBA8UNorm, Width: 4, Height: 4})
	})
	g.Record("output", func(pb *PassBuilder) {
		pb.AddGraphicsDescriptorSet(DescriptorDesc{Name: "read", Layout: layout, Bindings: []DescriptorBinding{BindAttachment(0, never.Read())}})
		rp := pb.AddOutputRenderPass()
		p := pb.AddRasterPipeline(RasterPipelineDesc{Name: "output", VertexShader: vs, RenderPass: rp})
		pb.CmdBindRasterPipeline(p)
	})

	requirePanicsWith(t, ErrUnwrittenResource, func() {
		_ = g.Execute(&fakeContext{}, newFakeDevice())
	})
}

func TestInvalidDescriptions(t *testing.T) {
	vs := newShader("vs", metadata.ShaderStageVertex)
	tests := []struct {
		name  string
		build func(pb *PassBuilder)
	}{
		{"zero extent", func(pb *PassBuilder) {
			pb.AddAttachment(AttachmentDesc{Name: "a", Format: metadata.TextureFormatRGBA8UNorm})
		}},
		{"empty render pass", func(pb *PassBuilder) {
			pb.AddRenderPass(RenderPassDesc{Name: "empty"})
		}},
		{"mixed extents", func(pb *PassBuilder) {
			a := pb.AddAttachment(AttachmentDesc{Name: "a", Format: metadata.TextureFormatRGBA8UNorm, Width: 4, Height: 4})
			b := pb.AddAttachment(AttachmentDesc{Name: "b", Format: metadata.TextureFormatRGBA8UNorm, Width: 8, Height: 8})
			pb.AddRenderPass(RenderPassDesc{Name: "mixed", Color: []*AttachmentHandle{a, b}})
		}},
		{"depth as color", func(pb *PassBuilder) {
			d := pb.AddAttachment(AttachmentDesc{Name: "d", Format: metadata.TextureFormatDepth, Width: 4, Height: 4})
			pb.AddRenderPass(RenderPassDesc{Name: "bad", Color: []*AttachmentHandle{d}})
		}},
		{"pipeline without render pass", func(pb *PassBuilder) {
			pb.AddRasterPipeline(RasterPipelineDesc{Name: "p", VertexShader: vs})
		}},
		{"texture in sampler slot", func(pb *PassBuilder) {
			tex := &metadata.Texture{ID: uuid.New(), Width: 1, Height: 1}
			pb.AddGraphicsDescriptorSet(DescriptorDesc{
				Name:     "d",
				Layout:   metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorSamplerState}},
				Bindings: []DescriptorBinding{BindImportedTexture(0, tex)},
			})
		}},
		{"sampler in texture slot", func(pb *PassBuilder) {
			pb.AddGraphicsDescriptorSet(DescriptorDesc{
				Name:     "d",
				Layout:   metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorTexture2D}},
				Bindings: []DescriptorBinding{BindSampler(0)},
			})
		}},
		{"slot missing from layout", func(pb *PassBuilder) {
			buf := &metadata.GpuBuffer{ID: uuid.New(), Size: 4}
			pb.AddGraphicsDescriptorSet(DescriptorDesc{
				Name:     "d",
				Layout:   metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{0: metadata.DescriptorCBuffer}},
				Bindings: []DescriptorBinding{BindImportedBuffer(3, buf)},
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(NewRenderGraphCache(0))
			requirePanicsWith(t, ErrInvalidDescription, func() {
				g.Record(tt.name, tt.build)
			})
		})
	}
}

func TestImportsAreDeduplicatedByIdentity(t *testing.T) {
	vs := newShader("vs", metadata.ShaderStageVertex)
	mesh := newMesh()
	g := New(NewRenderGraphCache(0))
	g.Record("output", func(pb *PassBuilder) {
		rp := pb.AddOutputRenderPass()
		a := pb.AddRasterPipeline(RasterPipelineDesc{Name: "a", VertexShader: vs, RenderPass: rp})
		b := pb.AddRasterPipeline(RasterPipelineDesc{Name: "b", VertexShader: vs, RenderPass: rp, FaceCull: metadata.FaceCullBack})
		pb.CmdBeginRenderPass(rp)
		pb.CmdBindRasterPipeline(a)
		pb.CmdDrawMesh(mesh)
		pb.CmdBindRasterPipeline(b)
		pb.CmdDrawMesh(mesh)
		pb.CmdEndRenderPass()
	})

	assert.Len(t, g.imports, 2)

	device := newFakeDevice()
	require.NoError(t, g.Execute(&fakeContext{}, device))
	assert.Equal(t, 2, device.created["pipeline"])
	assert.Equal(t, 2, device.outputPipelines)
}

func TestAllocationFailureRecordsNothing(t *testing.T) {
	device := newFakeDevice()
	device.failOn = "pipeline"
	ctx := &fakeContext{}

	g := New(NewRenderGraphCache(0))
	buildCulling(g, newCullingAssets())
	err := g.Execute(ctx, device)

	require.Error(t, err)
	assert.ErrorIs(t, err, errDeviceLost)
	assert.Empty(t, ctx.calls)
}

func TestSamplerBindingNeedsNoResource(t *testing.T) {
	vs := newShader("vs", metadata.ShaderStageVertex)
	ps := newShader("ps", metadata.ShaderStageFragment)
	layout := metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{
		0: metadata.DescriptorTexture2D,
		1: metadata.DescriptorSamplerState,
	}}

	g := New(NewRenderGraphCache(0))
	color := colorPass(g, "scene", vs)
	g.Record("present", func(pb *PassBuilder) {
		d := pb.AddGraphicsDescriptorSet(DescriptorDesc{
			Name:     "present",
			Layout:   layout,
			Bindings: []DescriptorBinding{BindAttachment(0, color.Read()), BindSampler(1)},
		})
		rp := pb.AddOutputRenderPass()
		p := pb.AddRasterPipeline(RasterPipelineDesc{
			Name: "present", VertexShader: vs, FragmentShader: ps, RenderPass: rp,
			DescriptorLayouts: []metadata.DescriptorSetInfo{layout},
		})
		pb.CmdBeginRenderPass(rp)
		pb.CmdBindRasterPipeline(p)
		pb.CmdBindGraphicsDescriptor(d, 0, p)
		pb.CmdDraw(3, 1, 0, 0)
		pb.CmdEndRenderPass()
	})

	ctx := &fakeContext{}
	require.NoError(t, g.Execute(ctx, newFakeDevice()))

	// only the sampled attachment is transitioned
	require.Len(t, ctx.barriers, 1)
	require.Len(t, ctx.updates, 1)
	writes := ctx.updates[0].writes
	require.Len(t, writes, 2)
	assert.NotNil(t, writes[0].Texture)
	assert.Equal(t, metadata.DescriptorSamplerState, writes[1].Type)
	assert.Nil(t, writes[1].Texture)
	assert.Nil(t, writes[1].Buffer)
}
