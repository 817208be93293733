package rendergraph

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// DefaultDescriptorPoolSize is the number of sets a descriptor pool holds
// when the cache is created with a zero size.
const DefaultDescriptorPoolSize = 128

// RenderGraphCache owns the physical objects graphs are executed with. It
// only grows: objects are created on demand and released by Destroy.
type RenderGraphCache struct {
	attachments    pool[AttachmentKey, *metadata.Texture]
	buffers        pool[BufferKey, *metadata.GpuBuffer]
	renderPasses   pool[RenderPassKey, *metadata.RenderPass]
	framebuffers   pool[FramebufferKey, *metadata.Framebuffer]
	pipelines      pool[PipelineKey, *metadata.Pipeline]
	descriptorSets pool[DescriptorSetKey, *metadata.DescriptorSet]

	graphicsLayouts map[string]*metadata.DescriptorLayout
	computeLayouts  map[string]*metadata.DescriptorLayout
	descriptorPools map[*metadata.DescriptorLayout][]*metadata.DescriptorPool
	poolSize        uint32
}

// CacheStats is the number of physical objects owned by a cache.
type CacheStats struct {
	Attachments       int
	Buffers           int
	RenderPasses      int
	Framebuffers      int
	Pipelines         int
	DescriptorSets    int
	DescriptorLayouts int
	DescriptorPools   int
}

func NewRenderGraphCache(descriptorPoolSize uint32) *RenderGraphCache {
	if descriptorPoolSize == 0 {
		descriptorPoolSize = DefaultDescriptorPoolSize
	}
	return &RenderGraphCache{
		attachments:     newPool[AttachmentKey, *metadata.Texture](),
		buffers:         newPool[BufferKey, *metadata.GpuBuffer](),
		renderPasses:    newPool[RenderPassKey, *metadata.RenderPass](),
		framebuffers:    newPool[FramebufferKey, *metadata.Framebuffer](),
		pipelines:       newPool[PipelineKey, *metadata.Pipeline](),
		descriptorSets:  newPool[DescriptorSetKey, *metadata.DescriptorSet](),
		graphicsLayouts: make(map[string]*metadata.DescriptorLayout),
		computeLayouts:  make(map[string]*metadata.DescriptorLayout),
		descriptorPools: make(map[*metadata.DescriptorLayout][]*metadata.DescriptorPool),
		poolSize:        descriptorPoolSize,
	}
}

func (c *RenderGraphCache) Stats() CacheStats {
	pools := 0
	for _, p := range c.descriptorPools {
		pools += len(p)
	}
	return CacheStats{
		Attachments:       c.attachments.len(),
		Buffers:           c.buffers.len(),
		RenderPasses:      c.renderPasses.len(),
		Framebuffers:      c.framebuffers.len(),
		Pipelines:         c.pipelines.len(),
		DescriptorSets:    c.descriptorSets.len(),
		DescriptorLayouts: len(c.graphicsLayouts) + len(c.computeLayouts),
		DescriptorPools:   pools,
	}
}

// GetGraphicsLayout returns the interned graphics layout for info.
func (c *RenderGraphCache) GetGraphicsLayout(device GraphicsDevice, info metadata.DescriptorSetInfo) (*metadata.DescriptorLayout, error) {
	return c.layout(device, c.graphicsLayouts, info, metadata.PipelineBindPointGraphics)
}

// GetComputeLayout returns the interned compute layout for info.
func (c *RenderGraphCache) GetComputeLayout(device GraphicsDevice, info metadata.DescriptorSetInfo) (*metadata.DescriptorLayout, error) {
	return c.layout(device, c.computeLayouts, info, metadata.PipelineBindPointCompute)
}

func (c *RenderGraphCache) layout(device GraphicsDevice, layouts map[string]*metadata.DescriptorLayout, info metadata.DescriptorSetInfo, bindPoint metadata.PipelineBindPoint) (*metadata.DescriptorLayout, error) {
	key := info.Key()
	if l, ok := layouts[key]; ok {
		return l, nil
	}
	l, err := device.CreateDescriptorLayout(info, bindPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s descriptor layout {%s}: %w", bindPoint, key, err)
	}
	layouts[key] = l
	return l, nil
}

func (c *RenderGraphCache) layoutFor(device GraphicsDevice, info metadata.DescriptorSetInfo, bindPoint metadata.PipelineBindPoint) (*metadata.DescriptorLayout, error) {
	if bindPoint == metadata.PipelineBindPointCompute {
		return c.GetComputeLayout(device, info)
	}
	return c.GetGraphicsLayout(device, info)
}

// allocateDescriptorSet carves a set out of the newest pool of layout,
// creating a new pool when it is exhausted.
func (c *RenderGraphCache) allocateDescriptorSet(device GraphicsDevice, layout *metadata.DescriptorLayout) (*metadata.DescriptorSet, error) {
	pools := c.descriptorPools[layout]
	if len(pools) > 0 {
		set, err := device.AllocateDescriptorSet(pools[len(pools)-1])
		if err == nil {
			return set, nil
		}
		if !errors.Is(err, metadata.ErrDescriptorPoolExhausted) {
			return nil, err
		}
	}

	p, err := device.CreateDescriptorPool(layout, c.poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor pool: %w", err)
	}
	c.descriptorPools[layout] = append(pools, p)
	core.LogDebug("render graph cache: new descriptor pool for {%s} (%d total)", layout.Info.Key(), len(pools)+1)
	return device.AllocateDescriptorSet(p)
}

// Destroy releases every physical object of the cache. The cache is empty
// and usable again afterwards.
func (c *RenderGraphCache) Destroy(device GraphicsDevice) {
	// sets are freed together with their pools
	c.descriptorSets.drain(func(*metadata.DescriptorSet) {})
	for layout, pools := range c.descriptorPools {
		for _, p := range pools {
			device.DestroyDescriptorPool(p)
		}
		delete(c.descriptorPools, layout)
	}
	c.pipelines.drain(device.DestroyPipeline)
	for key, l := range c.graphicsLayouts {
		device.DestroyDescriptorLayout(l)
		delete(c.graphicsLayouts, key)
	}
	for key, l := range c.computeLayouts {
		device.DestroyDescriptorLayout(l)
		delete(c.computeLayouts, key)
	}
	c.framebuffers.drain(device.DestroyFramebuffer)
	c.renderPasses.drain(device.DestroyRenderPass)
	c.buffers.drain(device.DestroyBuffer)
	c.attachments.drain(device.DestroyTexture)
	core.LogDebug("render graph cache destroyed")
}
