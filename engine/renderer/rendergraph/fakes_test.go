package rendergraph

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

var errDeviceLost = errors.New("device lost")

// fakeDevice hands out physical objects tagged with a sequence number and
// counts creations and destructions per category.
type fakeDevice struct {
	next            int
	created         map[string]int
	destroyed       map[string]int
	failOn          string
	outputPipelines int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		created:   make(map[string]int),
		destroyed: make(map[string]int),
	}
}

func (d *fakeDevice) create(category string) (int, error) {
	if d.failOn == category {
		return 0, errDeviceLost
	}
	d.next++
	d.created[category]++
	return d.next, nil
}

func (d *fakeDevice) CreateAttachmentImage(name string, width, height uint32, format metadata.TextureFormat, usage metadata.TextureUsage) (*metadata.Texture, error) {
	id, err := d.create("texture")
	if err != nil {
		return nil, err
	}
	return &metadata.Texture{ID: uuid.New(), Name: name, Width: width, Height: height, Format: format, Usage: usage, InternalData: id}, nil
}

func (d *fakeDevice) DestroyTexture(*metadata.Texture) { d.destroyed["texture"]++ }

func (d *fakeDevice) CreateBuffer(name string, size uint64, usage metadata.BufferUsage, location metadata.MemoryLocation) (*metadata.GpuBuffer, error) {
	id, err := d.create("buffer")
	if err != nil {
		return nil, err
	}
	return &metadata.GpuBuffer{ID: uuid.New(), Name: name, Size: size, Usage: usage, Location: location, InternalData: id}, nil
}

func (d *fakeDevice) DestroyBuffer(*metadata.GpuBuffer) { d.destroyed["buffer"]++ }

func (d *fakeDevice) CreateRenderPass(color []metadata.AttachmentDescription, depth *metadata.AttachmentDescription) (*metadata.RenderPass, error) {
	id, err := d.create("render_pass")
	if err != nil {
		return nil, err
	}
	return &metadata.RenderPass{Color: color, Depth: depth, InternalData: id}, nil
}

func (d *fakeDevice) DestroyRenderPass(*metadata.RenderPass) { d.destroyed["render_pass"]++ }

func (d *fakeDevice) CreateFramebuffer(rp *metadata.RenderPass, width, height uint32, attachments []*metadata.Texture) (*metadata.Framebuffer, error) {
	id, err := d.create("framebuffer")
	if err != nil {
		return nil, err
	}
	return &metadata.Framebuffer{Width: width, Height: height, Attachments: attachments, InternalData: id}, nil
}

func (d *fakeDevice) DestroyFramebuffer(*metadata.Framebuffer) { d.destroyed["framebuffer"]++ }

func (d *fakeDevice) CreateRasterPipeline(info metadata.RasterPipelineInfo, layouts []*metadata.DescriptorLayout, rp *metadata.RenderPass) (*metadata.Pipeline, error) {
	id, err := d.create("pipeline")
	if err != nil {
		return nil, err
	}
	if rp == nil {
		d.outputPipelines++
	}
	return &metadata.Pipeline{Name: info.Name, BindPoint: metadata.PipelineBindPointGraphics, Layouts: layouts, InternalData: id}, nil
}

func (d *fakeDevice) CreateComputePipeline(info metadata.ComputePipelineInfo, layouts []*metadata.DescriptorLayout) (*metadata.Pipeline, error) {
	id, err := d.create("pipeline")
	if err != nil {
		return nil, err
	}
	return &metadata.Pipeline{Name: info.Name, BindPoint: metadata.PipelineBindPointCompute, Layouts: layouts, InternalData: id}, nil
}

func (d *fakeDevice) DestroyPipeline(*metadata.Pipeline) { d.destroyed["pipeline"]++ }

func (d *fakeDevice) CreateDescriptorLayout(info metadata.DescriptorSetInfo, bindPoint metadata.PipelineBindPoint) (*metadata.DescriptorLayout, error) {
	id, err := d.create("descriptor_layout")
	if err != nil {
		return nil, err
	}
	return &metadata.DescriptorLayout{Info: info, BindPoint: bindPoint, InternalData: id}, nil
}

func (d *fakeDevice) DestroyDescriptorLayout(*metadata.DescriptorLayout) {
	d.destroyed["descriptor_layout"]++
}

func (d *fakeDevice) CreateDescriptorPool(layout *metadata.DescriptorLayout, maxSets uint32) (*metadata.DescriptorPool, error) {
	id, err := d.create("descriptor_pool")
	if err != nil {
		return nil, err
	}
	return &metadata.DescriptorPool{Layout: layout, MaxSets: maxSets, InternalData: id}, nil
}

func (d *fakeDevice) AllocateDescriptorSet(pool *metadata.DescriptorPool) (*metadata.DescriptorSet, error) {
	if pool.Allocated >= pool.MaxSets {
		return nil, metadata.ErrDescriptorPoolExhausted
	}
	id, err := d.create("descriptor_set")
	if err != nil {
		return nil, err
	}
	pool.Allocated++
	return &metadata.DescriptorSet{Layout: pool.Layout, Pool: pool, InternalData: id}, nil
}

func (d *fakeDevice) DestroyDescriptorPool(*metadata.DescriptorPool) {
	d.destroyed["descriptor_pool"]++
}

type fakeUpdate struct {
	set    *metadata.DescriptorSet
	writes []metadata.DescriptorWrite
}

type fakeDraw struct {
	count, instances, first uint32
}

// fakeContext records every call in order.
type fakeContext struct {
	calls    []string
	barriers []metadata.Barrier
	updates  []fakeUpdate
	draws    []fakeDraw
	clears   [][]metadata.ClearValue
}

func (c *fakeContext) BeginRenderPass(rp *metadata.RenderPass, fb *metadata.Framebuffer, clears []metadata.ClearValue) {
	c.calls = append(c.calls, "begin_render_pass")
	c.clears = append(c.clears, clears)
}

func (c *fakeContext) BeginOutputRenderPass(clears []metadata.ClearValue) {
	c.calls = append(c.calls, "begin_output_render_pass")
	c.clears = append(c.clears, clears)
}

func (c *fakeContext) EndRenderPass() { c.calls = append(c.calls, "end_render_pass") }

func (c *fakeContext) BindRasterPipeline(*metadata.Pipeline) {
	c.calls = append(c.calls, "bind_raster_pipeline")
}

func (c *fakeContext) BindComputePipeline(*metadata.Pipeline) {
	c.calls = append(c.calls, "bind_compute_pipeline")
}

func (c *fakeContext) BindDescriptor(*metadata.DescriptorSet, uint32, *metadata.Pipeline) {
	c.calls = append(c.calls, "bind_descriptor")
}

func (c *fakeContext) BindVertexBuffer(*metadata.GpuBuffer) {
	c.calls = append(c.calls, "bind_vertex_buffer")
}

func (c *fakeContext) BindIndexBuffer(*metadata.GpuBuffer) {
	c.calls = append(c.calls, "bind_index_buffer")
}

func (c *fakeContext) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.calls = append(c.calls, "draw")
	c.draws = append(c.draws, fakeDraw{count: vertexCount, instances: instanceCount, first: firstVertex})
}

func (c *fakeContext) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.calls = append(c.calls, "draw_indexed")
	c.draws = append(c.draws, fakeDraw{count: indexCount, instances: instanceCount, first: firstIndex})
}

func (c *fakeContext) Dispatch(x, y, z uint32) { c.calls = append(c.calls, "dispatch") }

func (c *fakeContext) PipelineBarrier(b metadata.Barrier) {
	c.calls = append(c.calls, "pipeline_barrier")
	c.barriers = append(c.barriers, b)
}

func (c *fakeContext) UpdateDescriptor(set *metadata.DescriptorSet, writes []metadata.DescriptorWrite) {
	c.calls = append(c.calls, "update_descriptor")
	c.updates = append(c.updates, fakeUpdate{set: set, writes: writes})
}

func newShader(name string, stage metadata.ShaderStage) *metadata.Shader {
	return &metadata.Shader{ID: uuid.New(), Name: name, Stage: stage}
}

func newMesh() *metadata.Mesh {
	return &metadata.Mesh{
		ID:           uuid.New(),
		VertexBuffer: &metadata.GpuBuffer{ID: uuid.New(), Size: 36, Usage: metadata.BufferUsageVertex},
		IndexBuffer:  &metadata.GpuBuffer{ID: uuid.New(), Size: 12, Usage: metadata.BufferUsageIndex},
		IndexCount:   3,
	}
}

// requirePanicsWith runs fn and checks it panics with an error wrapping sentinel.
func requirePanicsWith(t *testing.T, sentinel error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic wrapping %v", sentinel)
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		assert.ErrorIs(t, err, sentinel)
	}()
	fn()
}

// outputPass records a pass presenting a fullscreen triangle.
func outputPass(g *RenderGraph, vs, ps *metadata.Shader, draw uint32) {
	g.Record("output", func(pb *PassBuilder) {
		rp := pb.AddOutputRenderPass()
		p := pb.AddRasterPipeline(RasterPipelineDesc{Name: "output", VertexShader: vs, FragmentShader: ps, RenderPass: rp})
		pb.CmdBeginRenderPass(rp, metadata.ClearColor(0, 0, 0, 1))
		pb.CmdBindRasterPipeline(p)
		pb.CmdDraw(draw, 1, 0, 0)
		pb.CmdEndRenderPass()
	})
}
