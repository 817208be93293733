package rendergraph

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// physicalResources maps virtual resources to arena indices of the cache.
type physicalResources struct {
	attachments    map[ResourceID]int
	buffers        map[ResourceID]int
	renderPasses   map[ResourceID]int
	framebuffers   map[ResourceID]int
	pipelines      map[ResourceID]int
	descriptorSets map[ResourceID]int
}

func newPhysicalResources() *physicalResources {
	return &physicalResources{
		attachments:    make(map[ResourceID]int),
		buffers:        make(map[ResourceID]int),
		renderPasses:   make(map[ResourceID]int),
		framebuffers:   make(map[ResourceID]int),
		pipelines:      make(map[ResourceID]int),
		descriptorSets: make(map[ResourceID]int),
	}
}

func lookup(m map[ResourceID]int, id ResourceID, what string) int {
	idx, ok := m[id]
	if !ok {
		fatal(ErrInvalidResource, "%s %d has no physical object", what, id)
	}
	return idx
}

// assign groups ids by key, in discovery order, and binds the members of
// each group to the slots returned by ensure.
func assign[K comparable](ids []ResourceID, keyOf func(ResourceID) (K, bool), ensure func(key K, members []ResourceID) ([]int, error), out map[ResourceID]int) error {
	var keys []K
	groups := make(map[K][]ResourceID)
	for _, id := range ids {
		key, ok := keyOf(id)
		if !ok {
			continue
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], id)
	}
	for _, key := range keys {
		members := groups[key]
		slots, err := ensure(key, members)
		if err != nil {
			return err
		}
		for i, id := range members {
			out[id] = slots[i]
		}
	}
	return nil
}

// allocate binds every resource owned by the passes in order to a physical
// object, creating the missing ones. Categories are processed so that keys
// can embed the physical indices of the categories before them.
func (g *RenderGraph) allocate(ctx GraphicsContext, device GraphicsDevice, order []*pass) (*physicalResources, error) {
	owned := make(map[PassID][]ResourceID, len(order))
	for id, owner := range g.owners {
		owned[owner] = append(owned[owner], ResourceID(id))
	}
	var ids []ResourceID
	for _, p := range order {
		ids = append(ids, owned[p.id]...)
	}

	phys := newPhysicalResources()
	steps := []func([]ResourceID, *physicalResources, GraphicsDevice) error{
		g.allocateAttachments,
		g.allocateBuffers,
		g.allocateRenderPasses,
		g.allocateFramebuffers,
		g.allocatePipelines,
	}
	for _, step := range steps {
		if err := step(ids, phys, device); err != nil {
			return nil, err
		}
	}
	if err := g.allocateDescriptorSets(ids, phys, device, ctx); err != nil {
		return nil, err
	}
	return phys, nil
}

func logCreated(what string, key interface{}, created int) {
	if created > 0 {
		core.LogDebug("render graph cache: created %d %s(s) for %+v", created, what, key)
	}
}

func (g *RenderGraph) allocateAttachments(ids []ResourceID, phys *physicalResources, device GraphicsDevice) error {
	c := &g.cache.attachments
	return assign(ids,
		func(id ResourceID) (AttachmentKey, bool) {
			a, ok := g.resources[id].desc.(*attachmentResource)
			if !ok {
				return AttachmentKey{}, false
			}
			return AttachmentKey{Width: a.desc.Width, Height: a.desc.Height, Format: a.desc.Format, Usage: a.physicalUsage()}, true
		},
		func(key AttachmentKey, members []ResourceID) ([]int, error) {
			slots, created, err := c.ensure(key, len(members), func() (*metadata.Texture, error) {
				name := fmt.Sprintf("attachment %dx%d %s", key.Width, key.Height, key.Format)
				return device.CreateAttachmentImage(name, key.Width, key.Height, key.Format, key.Usage)
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create attachment image: %w", err)
			}
			logCreated("attachment", key, created)
			return slots, nil
		},
		phys.attachments)
}

func (g *RenderGraph) allocateBuffers(ids []ResourceID, phys *physicalResources, device GraphicsDevice) error {
	c := &g.cache.buffers
	return assign(ids,
		func(id ResourceID) (BufferKey, bool) {
			b, ok := g.resources[id].desc.(*bufferResource)
			if !ok {
				return BufferKey{}, false
			}
			return BufferKey{Size: b.desc.Size, Usage: b.desc.Usage, Location: b.desc.Location}, true
		},
		func(key BufferKey, members []ResourceID) ([]int, error) {
			slots, created, err := c.ensure(key, len(members), func() (*metadata.GpuBuffer, error) {
				return device.CreateBuffer(fmt.Sprintf("buffer %d bytes", key.Size), key.Size, key.Usage, key.Location)
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create buffer: %w", err)
			}
			logCreated("buffer", key, created)
			return slots, nil
		},
		phys.buffers)
}

func (g *RenderGraph) attachmentDescription(id ResourceID, finalLayout metadata.ImageLayout) metadata.AttachmentDescription {
	a := g.attachment(id)
	return metadata.AttachmentDescription{
		Format:      a.desc.Format,
		Usage:       a.physicalUsage(),
		LoadOp:      a.desc.LoadOp,
		StoreOp:     a.desc.StoreOp,
		FinalLayout: finalLayout,
	}
}

func (g *RenderGraph) renderPassKey(rp *renderPassResource) RenderPassKey {
	// The render pass leaves attachments in their attachment-optimal layout;
	// readers transition them with the barriers derived before their pass.
	key := RenderPassKey{ColorCount: len(rp.color)}
	for i, id := range rp.color {
		key.Color[i] = g.attachmentDescription(id, metadata.ImageLayoutColorAttachmentOptimal)
	}
	if rp.hasDepth {
		key.Depth = g.attachmentDescription(rp.depth, metadata.ImageLayoutDepthStencilAttachmentOptimal)
		key.HasDepth = true
	}
	return key
}

func (g *RenderGraph) allocateRenderPasses(ids []ResourceID, phys *physicalResources, device GraphicsDevice) error {
	c := &g.cache.renderPasses
	return assign(ids,
		func(id ResourceID) (RenderPassKey, bool) {
			rp, ok := g.resources[id].desc.(*renderPassResource)
			if !ok {
				return RenderPassKey{}, false
			}
			return g.renderPassKey(rp), true
		},
		func(key RenderPassKey, members []ResourceID) ([]int, error) {
			slots, created, err := c.ensure(key, len(members), func() (*metadata.RenderPass, error) {
				return device.CreateRenderPass(key.colorDescriptions(), key.depthDescription())
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create render pass: %w", err)
			}
			logCreated("render pass", key, created)
			return slots, nil
		},
		phys.renderPasses)
}

func (g *RenderGraph) framebufferAttachments(rp *renderPassResource) []ResourceID {
	ids := append([]ResourceID(nil), rp.color...)
	if rp.hasDepth {
		ids = append(ids, rp.depth)
	}
	return ids
}

func (g *RenderGraph) allocateFramebuffers(ids []ResourceID, phys *physicalResources, device GraphicsDevice) error {
	c := &g.cache.framebuffers
	return assign(ids,
		func(id ResourceID) (FramebufferKey, bool) {
			rp, ok := g.resources[id].desc.(*renderPassResource)
			if !ok {
				return FramebufferKey{}, false
			}
			attachments := g.framebufferAttachments(rp)
			indices := make([]int, len(attachments))
			for i, a := range attachments {
				indices[i] = lookup(phys.attachments, a, "attachment")
			}
			first := g.attachment(attachments[0])
			return FramebufferKey{
				RenderPass:  lookup(phys.renderPasses, id, "render pass"),
				Width:       first.desc.Width,
				Height:      first.desc.Height,
				Attachments: joinIndices(indices),
			}, true
		},
		func(key FramebufferKey, members []ResourceID) ([]int, error) {
			rp := g.resources[members[0]].desc.(*renderPassResource)
			textures := make([]*metadata.Texture, 0, len(rp.color)+1)
			for _, a := range g.framebufferAttachments(rp) {
				textures = append(textures, g.cache.attachments.get(phys.attachments[a]))
			}
			slots, created, err := c.ensure(key, len(members), func() (*metadata.Framebuffer, error) {
				return device.CreateFramebuffer(g.cache.renderPasses.get(key.RenderPass), key.Width, key.Height, textures)
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create framebuffer: %w", err)
			}
			logCreated("framebuffer", key, created)
			return slots, nil
		},
		phys.framebuffers)
}

func (g *RenderGraph) pipelineKey(id ResourceID, phys *physicalResources) (PipelineKey, bool) {
	switch p := g.resources[id].desc.(type) {
	case *rasterPipelineResource:
		key := PipelineKey{
			BindPoint:         metadata.PipelineBindPointGraphics,
			VertexShader:      g.imported(p.vs).shader.ID,
			Layouts:           layoutsKey(p.desc.DescriptorLayouts),
			RenderPass:        OutputRenderPassIndex,
			DepthCompareOp:    -1,
			DepthWrite:        p.desc.DepthWrite,
			FaceCull:          p.desc.FaceCull,
			PolygonMode:       p.desc.PolygonMode,
			PushConstantBytes: p.desc.PushConstantBytes,
			VertexInput:       vertexInputKey(p.desc.VertexInput),
		}
		if p.hasPS {
			key.FragmentShader = g.imported(p.ps).shader.ID
		}
		if _, output := g.resources[p.renderPass].desc.(outputRenderPassResource); !output {
			key.RenderPass = lookup(phys.renderPasses, p.renderPass, "render pass")
		}
		if p.desc.DepthCompareOp != nil {
			key.DepthCompareOp = int(*p.desc.DepthCompareOp)
		}
		return key, true
	case *computePipelineResource:
		return PipelineKey{
			BindPoint:      metadata.PipelineBindPointCompute,
			ComputeShader:  g.imported(p.cs).shader.ID,
			Layouts:        layoutsKey(p.desc.DescriptorLayouts),
			RenderPass:     OutputRenderPassIndex,
			DepthCompareOp: -1,
		}, true
	}
	return PipelineKey{}, false
}

func (g *RenderGraph) pipelineLayouts(device GraphicsDevice, infos []metadata.DescriptorSetInfo, bindPoint metadata.PipelineBindPoint) ([]*metadata.DescriptorLayout, error) {
	layouts := make([]*metadata.DescriptorLayout, len(infos))
	for i, info := range infos {
		l, err := g.cache.layoutFor(device, info, bindPoint)
		if err != nil {
			return nil, err
		}
		layouts[i] = l
	}
	return layouts, nil
}

func (g *RenderGraph) createPipeline(device GraphicsDevice, key PipelineKey, id ResourceID) (*metadata.Pipeline, error) {
	switch p := g.resources[id].desc.(type) {
	case *rasterPipelineResource:
		layouts, err := g.pipelineLayouts(device, p.desc.DescriptorLayouts, metadata.PipelineBindPointGraphics)
		if err != nil {
			return nil, err
		}
		info := metadata.RasterPipelineInfo{
			Name:              p.desc.Name,
			VertexShader:      g.imported(p.vs).shader,
			DepthCompareOp:    p.desc.DepthCompareOp,
			DepthWrite:        p.desc.DepthWrite,
			FaceCull:          p.desc.FaceCull,
			PolygonMode:       p.desc.PolygonMode,
			PushConstantBytes: p.desc.PushConstantBytes,
			VertexInput:       p.desc.VertexInput,
		}
		if p.hasPS {
			info.FragmentShader = g.imported(p.ps).shader
		}
		var rp *metadata.RenderPass
		if key.RenderPass != OutputRenderPassIndex {
			rp = g.cache.renderPasses.get(key.RenderPass)
		}
		return device.CreateRasterPipeline(info, layouts, rp)
	case *computePipelineResource:
		layouts, err := g.pipelineLayouts(device, p.desc.DescriptorLayouts, metadata.PipelineBindPointCompute)
		if err != nil {
			return nil, err
		}
		return device.CreateComputePipeline(metadata.ComputePipelineInfo{
			Name:          p.desc.Name,
			ComputeShader: g.imported(p.cs).shader,
		}, layouts)
	}
	fatal(ErrInvalidResource, "resource %d is not a pipeline", id)
	return nil, nil
}

func (g *RenderGraph) allocatePipelines(ids []ResourceID, phys *physicalResources, device GraphicsDevice) error {
	c := &g.cache.pipelines
	return assign(ids,
		func(id ResourceID) (PipelineKey, bool) {
			return g.pipelineKey(id, phys)
		},
		func(key PipelineKey, members []ResourceID) ([]int, error) {
			slots, created, err := c.ensure(key, len(members), func() (*metadata.Pipeline, error) {
				return g.createPipeline(device, key, members[0])
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create pipeline %q: %w", g.resources[members[0]].name, err)
			}
			logCreated("pipeline", g.resources[members[0]].name, created)
			return slots, nil
		},
		phys.pipelines)
}

func (g *RenderGraph) sortedBindings(d *descriptorSetResource) []resolvedBinding {
	bindings := append([]resolvedBinding(nil), d.bindings...)
	slices.SortFunc(bindings, func(a, b resolvedBinding) int {
		return int(a.slot) - int(b.slot)
	})
	return bindings
}

func (g *RenderGraph) descriptorSetKey(d *descriptorSetResource, phys *physicalResources) DescriptorSetKey {
	var sb strings.Builder
	for i, b := range g.sortedBindings(d) {
		if i > 0 {
			sb.WriteByte(',')
		}
		switch {
		case b.sampler:
			fmt.Fprintf(&sb, "%d=s", b.slot)
		case b.imported:
			fmt.Fprintf(&sb, "%d=i:%s", b.slot, g.imported(b.importID).identity())
		case g.isAttachment(b.resource):
			fmt.Fprintf(&sb, "%d=a:%d", b.slot, lookup(phys.attachments, b.resource, "attachment"))
		default:
			fmt.Fprintf(&sb, "%d=b:%d", b.slot, lookup(phys.buffers, b.resource, "buffer"))
		}
	}
	return DescriptorSetKey{
		BindPoint: d.bindPoint,
		Layout:    d.layout.Key(),
		Bindings:  sb.String(),
	}
}

func (g *RenderGraph) isAttachment(id ResourceID) bool {
	_, ok := g.resources[id].desc.(*attachmentResource)
	return ok
}

func (g *RenderGraph) descriptorWrites(d *descriptorSetResource, phys *physicalResources) []metadata.DescriptorWrite {
	writes := make([]metadata.DescriptorWrite, 0, len(d.bindings))
	for _, b := range g.sortedBindings(d) {
		w := metadata.DescriptorWrite{
			Binding: b.slot,
			Type:    d.layout.Bindings[b.slot],
			Layout:  b.layout,
		}
		switch {
		case b.sampler:
			// the backend supplies its default sampler
		case b.imported:
			imp := g.imported(b.importID)
			w.Texture = imp.texture
			w.Buffer = imp.buffer
		case g.isAttachment(b.resource):
			w.Texture = g.cache.attachments.get(phys.attachments[b.resource])
		default:
			w.Buffer = g.cache.buffers.get(phys.buffers[b.resource])
		}
		writes = append(writes, w)
	}
	return writes
}

// allocateDescriptorSets binds virtual descriptor sets with identical
// resolved bindings to one shared physical set, and writes each of those
// sets once.
func (g *RenderGraph) allocateDescriptorSets(ids []ResourceID, phys *physicalResources, device GraphicsDevice, ctx GraphicsContext) error {
	c := &g.cache.descriptorSets
	return assign(ids,
		func(id ResourceID) (DescriptorSetKey, bool) {
			d, ok := g.resources[id].desc.(*descriptorSetResource)
			if !ok {
				return DescriptorSetKey{}, false
			}
			return g.descriptorSetKey(d, phys), true
		},
		func(key DescriptorSetKey, members []ResourceID) ([]int, error) {
			d := g.resources[members[0]].desc.(*descriptorSetResource)
			slots, created, err := c.ensure(key, 1, func() (*metadata.DescriptorSet, error) {
				layout, err := g.cache.layoutFor(device, d.layout, d.bindPoint)
				if err != nil {
					return nil, err
				}
				return g.cache.allocateDescriptorSet(device, layout)
			})
			if err != nil {
				return nil, fmt.Errorf("failed to allocate descriptor set %q: %w", g.resources[members[0]].name, err)
			}
			logCreated("descriptor set", g.resources[members[0]].name, created)

			ctx.UpdateDescriptor(c.get(slots[0]), g.descriptorWrites(d, phys))

			shared := make([]int, len(members))
			for i := range shared {
				shared[i] = slots[0]
			}
			return shared, nil
		},
		phys.descriptorSets)
}
