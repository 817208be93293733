package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Handle      vk.Buffer
	Memory      vk.DeviceMemory
	Size        uint64
	Usage       vk.BufferUsageFlags
	MemoryFlags vk.MemoryPropertyFlags
}

func BufferCreate(context *VulkanContext, size uint64, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	// Respect the non coherent atom size so mapped ranges can be flushed.
	size = metadata.GetAligned(size, uint64(context.Device.Properties.Limits.NonCoherentAtomSize))
	outBuffer := &VulkanBuffer{
		Size:        size,
		Usage:       usage,
		MemoryFlags: memoryFlags,
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create buffer: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	outBuffer.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, handle, &requirements)
	requirements.Deref()

	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(memoryFlags))
	if memoryIndex == -1 {
		outBuffer.Destroy(context)
		err := fmt.Errorf("unable to create vulkan buffer because the required memory type index was not found")
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if err := context.LockPool.SafeCall(MemoryManagement, func() error {
		if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); res != vk.Success {
			return fmt.Errorf("failed to allocate buffer memory: %s", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		outBuffer.Destroy(context)
		core.LogError(err.Error())
		return nil, err
	}
	outBuffer.Memory = memory

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		outBuffer.Destroy(context)
		err := fmt.Errorf("failed to bind buffer memory: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return outBuffer, nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	if vb.Memory != nil {
		vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = nil
	}
	if vb.Handle != nil {
		vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = nil
	}
	vb.Size = 0
}

// LoadData copies data into a host visible buffer at offset.
func (vb *VulkanBuffer) LoadData(context *VulkanContext, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > vb.Size {
		return fmt.Errorf("write of %d bytes at offset %d overflows buffer of %d bytes", len(data), offset, vb.Size)
	}
	if vb.MemoryFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) == 0 {
		return fmt.Errorf("buffer memory is not host visible")
	}
	if len(data) == 0 {
		return nil
	}
	var pData unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, vb.Memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &pData); res != vk.Success {
		err := fmt.Errorf("failed to map buffer memory: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	vk.Memcopy(pData, data)
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
	return nil
}

// CopyTo copies size bytes into dest with a single use command buffer and
// waits for the copy to complete.
func (vb *VulkanBuffer) CopyTo(context *VulkanContext, dest *VulkanBuffer, size uint64) error {
	commandBuffer, err := AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	region := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(commandBuffer.Handle, vb.Handle, dest.Handle, 1, []vk.BufferCopy{region})
	return commandBuffer.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue, uint32(context.Device.GraphicsQueueIndex))
}
