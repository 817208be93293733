package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// VulkanShader is the backend data of a metadata.Shader.
type VulkanShader struct {
	Module vk.ShaderModule
	Stage  vk.ShaderStageFlagBits
}

// VulkanGraphicsDevice creates the physical objects of a render graph.
// Destruction is deferred through the frame pacer until no frame in flight
// can still reference the object.
type VulkanGraphicsDevice struct {
	context *VulkanContext
}

func NewVulkanGraphicsDevice(context *VulkanContext) *VulkanGraphicsDevice {
	return &VulkanGraphicsDevice{context: context}
}

func (d *VulkanGraphicsDevice) deferDestroy(destroy func()) {
	d.context.Pacer.Defer(destroy)
}

func (d *VulkanGraphicsDevice) CreateAttachmentImage(name string, width, height uint32, format metadata.TextureFormat, usage metadata.TextureUsage) (*metadata.Texture, error) {
	// Attachments are always sampleable so any later pass can read them.
	usage |= metadata.TextureUsageAttachment | metadata.TextureUsageSampled
	image, err := ImageCreate(
		d.context,
		vk.ImageType2d,
		width, height,
		textureFormat(format, d.context.Device.DepthFormat),
		vk.ImageTilingOptimal,
		imageUsage(format, usage),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		imageAspect(format))
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment %q: %w", name, err)
	}
	return &metadata.Texture{
		ID:           uuid.New(),
		Name:         name,
		Width:        width,
		Height:       height,
		Format:       format,
		Usage:        usage,
		InternalData: image,
	}, nil
}

// CreateTexture uploads pixels into a sampled image. RGB8 pixels are
// expanded to RGBA.
func (d *VulkanGraphicsDevice) CreateTexture(name string, width, height uint32, format metadata.TextureFormat, pixels []byte) (*metadata.Texture, error) {
	if format == metadata.TextureFormatRGB8 {
		pixels = expandRGB(pixels)
	}
	usage := metadata.TextureUsageSampled | metadata.TextureUsageTransferDst
	image, err := ImageCreate(
		d.context,
		vk.ImageType2d,
		width, height,
		textureFormat(format, d.context.Device.DepthFormat),
		vk.ImageTilingOptimal,
		imageUsage(format, usage),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		imageAspect(format))
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %q: %w", name, err)
	}

	staging, err := BufferCreate(d.context, uint64(len(pixels)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), memoryProperties(metadata.MemoryLocationCpuToGpu))
	if err != nil {
		image.Destroy(d.context)
		return nil, err
	}
	defer staging.Destroy(d.context)

	if err := staging.LoadData(d.context, 0, pixels); err != nil {
		image.Destroy(d.context)
		return nil, err
	}

	pool := d.context.Device.GraphicsCommandPool
	commandBuffer, err := AllocateAndBeginSingleUse(d.context, pool)
	if err != nil {
		image.Destroy(d.context)
		return nil, err
	}
	image.TransitionLayout(commandBuffer, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	image.CopyFromBuffer(commandBuffer, staging.Handle)
	image.TransitionLayout(commandBuffer, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	if err := commandBuffer.EndSingleUse(d.context, pool, d.context.Device.GraphicsQueue, uint32(d.context.Device.GraphicsQueueIndex)); err != nil {
		image.Destroy(d.context)
		return nil, err
	}

	core.LogDebug("texture %q uploaded (%dx%d %s)", name, width, height, format)
	return &metadata.Texture{
		ID:           uuid.New(),
		Name:         name,
		Width:        width,
		Height:       height,
		Format:       format,
		Usage:        usage,
		InternalData: image,
	}, nil
}

func expandRGB(pixels []byte) []byte {
	out := make([]byte, 0, len(pixels)/3*4)
	for i := 0; i+2 < len(pixels); i += 3 {
		out = append(out, pixels[i], pixels[i+1], pixels[i+2], 0xff)
	}
	return out
}

func (d *VulkanGraphicsDevice) DestroyTexture(texture *metadata.Texture) {
	image, ok := texture.InternalData.(*VulkanImage)
	if !ok {
		return
	}
	texture.InternalData = nil
	d.deferDestroy(func() { image.Destroy(d.context) })
}

func (d *VulkanGraphicsDevice) CreateBuffer(name string, size uint64, usage metadata.BufferUsage, location metadata.MemoryLocation) (*metadata.GpuBuffer, error) {
	buffer, err := BufferCreate(d.context, size, bufferUsage(usage), memoryProperties(location))
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %q: %w", name, err)
	}
	return &metadata.GpuBuffer{
		ID:           uuid.New(),
		Name:         name,
		Size:         size,
		Usage:        usage,
		Location:     location,
		InternalData: buffer,
	}, nil
}

// CreateUploadBuffer creates a host visible buffer meant to be rewritten
// with UpdateBuffer.
func (d *VulkanGraphicsDevice) CreateUploadBuffer(name string, size uint64, usage metadata.BufferUsage) (*metadata.GpuBuffer, error) {
	return d.CreateBuffer(name, size, usage, metadata.MemoryLocationCpuToGpu)
}

func (d *VulkanGraphicsDevice) UpdateBuffer(buffer *metadata.GpuBuffer, offset uint64, data []byte) error {
	vb, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok {
		return fmt.Errorf("buffer %q has no backend data", buffer.Name)
	}
	return vb.LoadData(d.context, offset, data)
}

// uploadBuffer creates a device local buffer filled with data through a
// staging copy.
func (d *VulkanGraphicsDevice) uploadBuffer(name string, usage metadata.BufferUsage, data []byte) (*metadata.GpuBuffer, error) {
	buffer, err := d.CreateBuffer(name, uint64(len(data)), usage|metadata.BufferUsageTransferDst, metadata.MemoryLocationGpuOnly)
	if err != nil {
		return nil, err
	}
	staging, err := BufferCreate(d.context, uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), memoryProperties(metadata.MemoryLocationCpuToGpu))
	if err != nil {
		buffer.InternalData.(*VulkanBuffer).Destroy(d.context)
		return nil, err
	}
	defer staging.Destroy(d.context)

	if err := staging.LoadData(d.context, 0, data); err != nil {
		buffer.InternalData.(*VulkanBuffer).Destroy(d.context)
		return nil, err
	}
	if err := staging.CopyTo(d.context, buffer.InternalData.(*VulkanBuffer), uint64(len(data))); err != nil {
		buffer.InternalData.(*VulkanBuffer).Destroy(d.context)
		return nil, err
	}
	return buffer, nil
}

// CreateMesh uploads an interleaved vertex buffer and 32 bit indices.
func (d *VulkanGraphicsDevice) CreateMesh(name string, vertices []byte, indices []uint32) (*metadata.Mesh, error) {
	vertexBuffer, err := d.uploadBuffer(name+".vertices", metadata.BufferUsageVertex|metadata.BufferUsageStorage, vertices)
	if err != nil {
		return nil, err
	}
	indexBytes := make([]byte, 4*len(indices))
	for i, index := range indices {
		binary.LittleEndian.PutUint32(indexBytes[4*i:], index)
	}
	indexBuffer, err := d.uploadBuffer(name+".indices", metadata.BufferUsageIndex|metadata.BufferUsageStorage, indexBytes)
	if err != nil {
		d.DestroyBuffer(vertexBuffer)
		return nil, err
	}
	return &metadata.Mesh{
		ID:           uuid.New(),
		Name:         name,
		VertexBuffer: vertexBuffer,
		IndexBuffer:  indexBuffer,
		IndexCount:   uint32(len(indices)),
	}, nil
}

func (d *VulkanGraphicsDevice) DestroyMesh(mesh *metadata.Mesh) {
	d.DestroyBuffer(mesh.VertexBuffer)
	d.DestroyBuffer(mesh.IndexBuffer)
}

func (d *VulkanGraphicsDevice) DestroyBuffer(buffer *metadata.GpuBuffer) {
	vb, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok {
		return
	}
	buffer.InternalData = nil
	d.deferDestroy(func() { vb.Destroy(d.context) })
}

// CreateShader wraps SPIR-V code in a shader module.
func (d *VulkanGraphicsDevice) CreateShader(name string, stage metadata.ShaderStage, code []byte) (*metadata.Shader, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		err := fmt.Errorf("shader %q: SPIR-V size %d is not a multiple of 4", name, len(code))
		core.LogError(err.Error())
		return nil, err
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[4*i:])
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.context.Device.LogicalDevice, &createInfo, d.context.Allocator, &module); res != vk.Success {
		err := fmt.Errorf("failed to create shader module %q: %s", name, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return &metadata.Shader{
		ID:    uuid.New(),
		Name:  name,
		Stage: stage,
		InternalData: &VulkanShader{
			Module: module,
			Stage:  shaderStage(stage),
		},
	}, nil
}

func (d *VulkanGraphicsDevice) DestroyShader(shader *metadata.Shader) {
	vs, ok := shader.InternalData.(*VulkanShader)
	if !ok {
		return
	}
	shader.InternalData = nil
	d.deferDestroy(func() {
		vk.DestroyShaderModule(d.context.Device.LogicalDevice, vs.Module, d.context.Allocator)
	})
}

func (d *VulkanGraphicsDevice) CreateRenderPass(color []metadata.AttachmentDescription, depth *metadata.AttachmentDescription) (*metadata.RenderPass, error) {
	attachment := func(a metadata.AttachmentDescription) VulkanAttachmentConfig {
		// Loaded attachments were left in their attachment layout by the
		// pass that wrote them.
		initial := vk.ImageLayoutUndefined
		if a.LoadOp == metadata.LoadOpLoad {
			initial = vk.ImageLayoutColorAttachmentOptimal
			if a.Format.IsDepth() {
				initial = vk.ImageLayoutDepthStencilAttachmentOptimal
			}
		}
		return VulkanAttachmentConfig{
			Format:        textureFormat(a.Format, d.context.Device.DepthFormat),
			LoadOp:        loadOp(a.LoadOp),
			StoreOp:       storeOp(a.StoreOp),
			InitialLayout: initial,
			FinalLayout:   imageLayout(a.FinalLayout),
		}
	}

	colors := make([]VulkanAttachmentConfig, len(color))
	for i, c := range color {
		colors[i] = attachment(c)
	}
	var depthConfig *VulkanAttachmentConfig
	if depth != nil {
		dc := attachment(*depth)
		depthConfig = &dc
	}

	rp, err := RenderpassCreate(d.context, colors, depthConfig)
	if err != nil {
		return nil, err
	}
	return &metadata.RenderPass{
		Color:        append([]metadata.AttachmentDescription(nil), color...),
		Depth:        depth,
		InternalData: rp,
	}, nil
}

func (d *VulkanGraphicsDevice) DestroyRenderPass(renderPass *metadata.RenderPass) {
	rp, ok := renderPass.InternalData.(*VulkanRenderpass)
	if !ok {
		return
	}
	renderPass.InternalData = nil
	d.deferDestroy(func() { rp.Destroy(d.context) })
}

func (d *VulkanGraphicsDevice) CreateFramebuffer(renderPass *metadata.RenderPass, width, height uint32, attachments []*metadata.Texture) (*metadata.Framebuffer, error) {
	views := make([]vk.ImageView, len(attachments))
	for i, a := range attachments {
		image, ok := a.InternalData.(*VulkanImage)
		if !ok {
			return nil, fmt.Errorf("attachment %q has no backend image", a.Name)
		}
		views[i] = image.View
	}
	fb, err := FramebufferCreate(d.context, renderPass.InternalData.(*VulkanRenderpass), width, height, views)
	if err != nil {
		return nil, err
	}
	return &metadata.Framebuffer{
		Width:        width,
		Height:       height,
		Attachments:  append([]*metadata.Texture(nil), attachments...),
		InternalData: fb,
	}, nil
}

func (d *VulkanGraphicsDevice) DestroyFramebuffer(framebuffer *metadata.Framebuffer) {
	fb, ok := framebuffer.InternalData.(*VulkanFramebuffer)
	if !ok {
		return
	}
	framebuffer.InternalData = nil
	d.deferDestroy(func() { fb.Destroy(d.context) })
}

func setLayouts(layouts []*metadata.DescriptorLayout) []vk.DescriptorSetLayout {
	handles := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		handles[i] = l.InternalData.(*VulkanDescriptorLayout).Handle
	}
	return handles
}

func shaderStageInfo(shader *metadata.Shader) (vk.PipelineShaderStageCreateInfo, error) {
	vs, ok := shader.InternalData.(*VulkanShader)
	if !ok {
		return vk.PipelineShaderStageCreateInfo{}, fmt.Errorf("shader %q has no backend module", shader.Name)
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vs.Stage,
		Module: vs.Module,
		PName:  VulkanSafeString("main"),
	}, nil
}

func (d *VulkanGraphicsDevice) CreateRasterPipeline(info metadata.RasterPipelineInfo, layouts []*metadata.DescriptorLayout, renderPass *metadata.RenderPass) (*metadata.Pipeline, error) {
	vertexStage, err := shaderStageInfo(info.VertexShader)
	if err != nil {
		return nil, err
	}
	fragmentStage, err := shaderStageInfo(info.FragmentShader)
	if err != nil {
		return nil, err
	}

	rp := d.context.OutputRenderpass
	if renderPass != nil {
		rp = renderPass.InternalData.(*VulkanRenderpass)
	}

	attributes := make([]vk.VertexInputAttributeDescription, len(info.VertexInput.Attributes))
	for i, a := range info.VertexInput.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   vertexFormat(a.Format),
			Offset:   a.Offset,
		}
	}

	config := &VulkanPipelineConfig{
		Renderpass:           rp,
		Stride:               info.VertexInput.Stride,
		Attributes:           attributes,
		DescriptorSetLayouts: setLayouts(layouts),
		Stages:               []vk.PipelineShaderStageCreateInfo{vertexStage, fragmentStage},
		CullMode:             cullMode(info.FaceCull),
		PolygonMode:          polygonMode(info.PolygonMode),
		DepthTest:            info.DepthCompareOp != nil,
		DepthWrite:           info.DepthWrite,
		PushConstantSize:     info.PushConstantBytes,
	}
	if info.DepthCompareOp != nil {
		config.DepthCompare = compareOp(*info.DepthCompareOp)
	}

	pipeline, err := NewGraphicsPipeline(d.context, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create raster pipeline %q: %w", info.Name, err)
	}
	return &metadata.Pipeline{
		Name:         info.Name,
		BindPoint:    metadata.PipelineBindPointGraphics,
		Layouts:      layouts,
		InternalData: pipeline,
	}, nil
}

func (d *VulkanGraphicsDevice) CreateComputePipeline(info metadata.ComputePipelineInfo, layouts []*metadata.DescriptorLayout) (*metadata.Pipeline, error) {
	stage, err := shaderStageInfo(info.ComputeShader)
	if err != nil {
		return nil, err
	}
	pipeline, err := NewComputePipeline(d.context, stage, setLayouts(layouts))
	if err != nil {
		return nil, fmt.Errorf("failed to create compute pipeline %q: %w", info.Name, err)
	}
	return &metadata.Pipeline{
		Name:         info.Name,
		BindPoint:    metadata.PipelineBindPointCompute,
		Layouts:      layouts,
		InternalData: pipeline,
	}, nil
}

func (d *VulkanGraphicsDevice) DestroyPipeline(pipeline *metadata.Pipeline) {
	p, ok := pipeline.InternalData.(*VulkanPipeline)
	if !ok {
		return
	}
	pipeline.InternalData = nil
	d.deferDestroy(func() { p.Destroy(d.context) })
}

func (d *VulkanGraphicsDevice) CreateDescriptorLayout(info metadata.DescriptorSetInfo, bindPoint metadata.PipelineBindPoint) (*metadata.DescriptorLayout, error) {
	layout, err := DescriptorLayoutCreate(d.context, info, shaderStages(bindPoint))
	if err != nil {
		return nil, err
	}
	return &metadata.DescriptorLayout{
		Info:         info,
		BindPoint:    bindPoint,
		InternalData: layout,
	}, nil
}

func (d *VulkanGraphicsDevice) DestroyDescriptorLayout(layout *metadata.DescriptorLayout) {
	l, ok := layout.InternalData.(*VulkanDescriptorLayout)
	if !ok {
		return
	}
	layout.InternalData = nil
	d.deferDestroy(func() { l.Destroy(d.context) })
}

func (d *VulkanGraphicsDevice) CreateDescriptorPool(layout *metadata.DescriptorLayout, maxSets uint32) (*metadata.DescriptorPool, error) {
	pool, err := DescriptorPoolCreate(d.context, layout.InternalData.(*VulkanDescriptorLayout), maxSets)
	if err != nil {
		return nil, err
	}
	return &metadata.DescriptorPool{
		Layout:       layout,
		MaxSets:      maxSets,
		InternalData: pool,
	}, nil
}

func (d *VulkanGraphicsDevice) AllocateDescriptorSet(pool *metadata.DescriptorPool) (*metadata.DescriptorSet, error) {
	if pool.Allocated >= pool.MaxSets {
		return nil, metadata.ErrDescriptorPoolExhausted
	}
	set, err := pool.InternalData.(*VulkanDescriptorPool).Allocate(d.context, pool.Layout.InternalData.(*VulkanDescriptorLayout))
	if err != nil {
		return nil, err
	}
	pool.Allocated++
	return &metadata.DescriptorSet{
		Layout:       pool.Layout,
		Pool:         pool,
		InternalData: set,
	}, nil
}

func (d *VulkanGraphicsDevice) DestroyDescriptorPool(pool *metadata.DescriptorPool) {
	p, ok := pool.InternalData.(*VulkanDescriptorPool)
	if !ok {
		return
	}
	pool.InternalData = nil
	d.deferDestroy(func() { p.Destroy(d.context) })
}

func createDefaultSampler(context *VulkanContext) (vk.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           16,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &sampler); res != vk.Success {
		err := fmt.Errorf("failed to create sampler: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return sampler, nil
}
