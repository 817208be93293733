package rendergraph

import "github.com/spaghettifunk/framegraph/engine/renderer/metadata"

// accessState is one half of a barrier.
type accessState struct {
	stage  metadata.PipelineStage
	access metadata.Access
	layout metadata.ImageLayout
}

// shaderRead is the state every read handle synchronises to.
var shaderRead = accessState{
	stage:  metadata.PipelineStageVertexShader | metadata.PipelineStageFragmentShader | metadata.PipelineStageComputeShader,
	access: metadata.AccessShaderRead,
	layout: metadata.ImageLayoutShaderReadOnlyOptimal,
}

var initialState = accessState{
	stage:  metadata.PipelineStageTopOfPipe,
	layout: metadata.ImageLayoutUndefined,
}

// AttachmentHandle is the writable handle of an attachment. It tracks the
// state left behind by its last writer.
type AttachmentHandle struct {
	id    ResourceID
	state accessState
}

func (h *AttachmentHandle) ID() ResourceID {
	return h.id
}

// Layout is the layout the attachment is left in by its last writer.
func (h *AttachmentHandle) Layout() metadata.ImageLayout {
	return h.state.layout
}

// Read returns a read-only handle that synchronises from the last writer to
// a shader read.
func (h *AttachmentHandle) Read() ReadAttachmentHandle {
	return ReadAttachmentHandle{id: h.id, src: h.state, dst: shaderRead}
}

type ReadAttachmentHandle struct {
	id  ResourceID
	src accessState
	dst accessState
}

func (h ReadAttachmentHandle) ID() ResourceID {
	return h.id
}

// BufferHandle is the writable handle of a buffer.
type BufferHandle struct {
	id    ResourceID
	state accessState
}

func (h *BufferHandle) ID() ResourceID {
	return h.id
}

func (h *BufferHandle) Read() ReadBufferHandle {
	dst := shaderRead
	dst.layout = metadata.ImageLayoutUndefined
	return ReadBufferHandle{id: h.id, src: h.state, dst: dst}
}

type ReadBufferHandle struct {
	id  ResourceID
	src accessState
	dst accessState
}

func (h ReadBufferHandle) ID() ResourceID {
	return h.id
}

type RenderPassHandle struct {
	id    ResourceID
	valid bool
}

func (h RenderPassHandle) ID() ResourceID {
	return h.id
}

type PipelineHandle struct {
	id ResourceID
}

func (h PipelineHandle) ID() ResourceID {
	return h.id
}

type DescriptorHandle struct {
	id ResourceID
}

func (h DescriptorHandle) ID() ResourceID {
	return h.id
}

type bindingKind int

const (
	bindingImportedBuffer bindingKind = iota
	bindingImportedTexture
	bindingAttachment
	bindingMutableAttachment
	bindingBuffer
	bindingMutableBuffer
	bindingSampler
)

// DescriptorBinding is the resource bound to one slot of a descriptor set.
// Build it with one of the Bind* constructors.
type DescriptorBinding struct {
	slot              uint32
	kind              bindingKind
	buffer            *metadata.GpuBuffer
	texture           *metadata.Texture
	attachment        ReadAttachmentHandle
	mutableAttachment *AttachmentHandle
	readBuffer        ReadBufferHandle
	mutableBuffer     *BufferHandle
}

func BindImportedBuffer(slot uint32, buffer *metadata.GpuBuffer) DescriptorBinding {
	return DescriptorBinding{slot: slot, kind: bindingImportedBuffer, buffer: buffer}
}

func BindImportedTexture(slot uint32, texture *metadata.Texture) DescriptorBinding {
	return DescriptorBinding{slot: slot, kind: bindingImportedTexture, texture: texture}
}

func BindAttachment(slot uint32, h ReadAttachmentHandle) DescriptorBinding {
	return DescriptorBinding{slot: slot, kind: bindingAttachment, attachment: h}
}

// BindMutableAttachment binds h as a storage image written by the shader.
func BindMutableAttachment(slot uint32, h *AttachmentHandle) DescriptorBinding {
	return DescriptorBinding{slot: slot, kind: bindingMutableAttachment, mutableAttachment: h}
}

func BindBuffer(slot uint32, h ReadBufferHandle) DescriptorBinding {
	return DescriptorBinding{slot: slot, kind: bindingBuffer, readBuffer: h}
}

func BindMutableBuffer(slot uint32, h *BufferHandle) DescriptorBinding {
	return DescriptorBinding{slot: slot, kind: bindingMutableBuffer, mutableBuffer: h}
}

// BindSampler fills a sampler slot with the backend's default sampler. It
// references no resource and adds nothing to the read set.
func BindSampler(slot uint32) DescriptorBinding {
	return DescriptorBinding{slot: slot, kind: bindingSampler}
}
