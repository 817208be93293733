package metadata

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// ErrDescriptorPoolExhausted is returned by a backend when a descriptor pool
// has no room left for another set.
var ErrDescriptorPoolExhausted = errors.New("descriptor pool exhausted")

// DescriptorBindingType is the shader-side type of a descriptor binding.
type DescriptorBindingType int

const (
	DescriptorCBuffer DescriptorBindingType = iota
	DescriptorTexture2D
	DescriptorRWTexture2D
	DescriptorBuffer
	DescriptorRWBuffer
	DescriptorSamplerState
	DescriptorStructuredBuffer
	DescriptorRWStructuredBuffer
)

func (t DescriptorBindingType) String() string {
	switch t {
	case DescriptorCBuffer:
		return "cbuffer"
	case DescriptorTexture2D:
		return "texture2d"
	case DescriptorRWTexture2D:
		return "rwtexture2d"
	case DescriptorBuffer:
		return "buffer"
	case DescriptorRWBuffer:
		return "rwbuffer"
	case DescriptorSamplerState:
		return "sampler"
	case DescriptorStructuredBuffer:
		return "structuredbuffer"
	case DescriptorRWStructuredBuffer:
		return "rwstructuredbuffer"
	}
	return "unknown"
}

// IsImage reports whether the binding expects an image view.
func (t DescriptorBindingType) IsImage() bool {
	switch t {
	case DescriptorTexture2D, DescriptorRWTexture2D, DescriptorSamplerState:
		return true
	}
	return false
}

// DescriptorSetInfo maps binding slots to their types and fully describes the
// shape of a descriptor set layout.
type DescriptorSetInfo struct {
	Bindings map[uint32]DescriptorBindingType
}

// Slots returns the binding slots in ascending order.
func (i DescriptorSetInfo) Slots() []uint32 {
	slots := make([]uint32, 0, len(i.Bindings))
	for slot := range i.Bindings {
		slots = append(slots, slot)
	}
	slices.Sort(slots)
	return slots
}

// Key returns a canonical encoding of the layout shape. Two infos with the
// same bindings have the same key regardless of map iteration order.
func (i DescriptorSetInfo) Key() string {
	var sb strings.Builder
	for n, slot := range i.Slots() {
		if n > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d:%s", slot, i.Bindings[slot])
	}
	return sb.String()
}

/**
 * @brief An interned descriptor set layout.
 */
type DescriptorLayout struct {
	Info         DescriptorSetInfo
	BindPoint    PipelineBindPoint
	InternalData interface{}
}

/**
 * @brief A pool descriptor sets of a single layout are allocated from.
 */
type DescriptorPool struct {
	Layout       *DescriptorLayout
	MaxSets      uint32
	Allocated    uint32
	InternalData interface{}
}

/**
 * @brief A descriptor set. Backends keep one copy per frame in flight and
 * write/bind the copy of the frame being recorded.
 */
type DescriptorSet struct {
	Layout       *DescriptorLayout
	Pool         *DescriptorPool
	InternalData interface{}
}

// DescriptorWrite is the resource bound to one slot of a descriptor set.
type DescriptorWrite struct {
	Binding uint32
	Type    DescriptorBindingType
	Texture *Texture
	Buffer  *GpuBuffer
	// Layout the image will be in when the set is used.
	Layout ImageLayout
}
