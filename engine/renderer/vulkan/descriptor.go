package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

type VulkanDescriptorLayout struct {
	Handle   vk.DescriptorSetLayout
	Bindings []vk.DescriptorSetLayoutBinding
}

type VulkanDescriptorPool struct {
	Handle vk.DescriptorPool
}

// VulkanDescriptorSet holds one copy of the set per frame in flight, so a
// frame can rewrite its copy while the previous one is still in use.
type VulkanDescriptorSet struct {
	Sets [metadata.MaxFramesInFlight]vk.DescriptorSet
}

func DescriptorLayoutCreate(context *VulkanContext, info metadata.DescriptorSetInfo, stages vk.ShaderStageFlags) (*VulkanDescriptorLayout, error) {
	outLayout := &VulkanDescriptorLayout{}
	for _, slot := range info.Slots() {
		outLayout.Bindings = append(outLayout.Bindings, vk.DescriptorSetLayoutBinding{
			Binding:         slot,
			DescriptorType:  descriptorType(info.Bindings[slot]),
			DescriptorCount: 1,
			StageFlags:      stages,
		})
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(outLayout.Bindings)),
		PBindings:    outLayout.Bindings,
	}
	var handle vk.DescriptorSetLayout
	if err := context.LockPool.SafeCall(DescriptorManagement, func() error {
		if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
			return fmt.Errorf("failed to create descriptor set layout: %s", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	outLayout.Handle = handle
	return outLayout, nil
}

func (l *VulkanDescriptorLayout) Destroy(context *VulkanContext) {
	if l.Handle != nil {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, l.Handle, context.Allocator)
		l.Handle = nil
	}
}

// DescriptorPoolCreate sizes a pool for maxSets sets of layout, each
// allocated once per frame in flight.
func DescriptorPoolCreate(context *VulkanContext, layout *VulkanDescriptorLayout, maxSets uint32) (*VulkanDescriptorPool, error) {
	totalSets := maxSets * metadata.MaxFramesInFlight

	counts := map[vk.DescriptorType]uint32{}
	for _, b := range layout.Bindings {
		counts[b.DescriptorType] += b.DescriptorCount
	}
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(counts))
	for t, n := range counts {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            t,
			DescriptorCount: n * totalSets,
		})
	}

	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       totalSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var handle vk.DescriptorPool
	if err := context.LockPool.SafeCall(DescriptorManagement, func() error {
		if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
			return fmt.Errorf("failed to create descriptor pool: %s", VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanDescriptorPool{Handle: handle}, nil
}

func (p *VulkanDescriptorPool) Destroy(context *VulkanContext) {
	if p.Handle != nil {
		// Sets allocated from the pool are freed with it.
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, p.Handle, context.Allocator)
		p.Handle = nil
	}
}

// Allocate returns metadata.ErrDescriptorPoolExhausted when the pool has no
// room for another set.
func (p *VulkanDescriptorPool) Allocate(context *VulkanContext, layout *VulkanDescriptorLayout) (*VulkanDescriptorSet, error) {
	layouts := make([]vk.DescriptorSetLayout, metadata.MaxFramesInFlight)
	for i := range layouts {
		layouts[i] = layout.Handle
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: uint32(len(layouts)),
		PSetLayouts:        layouts,
	}

	outSet := &VulkanDescriptorSet{}
	err := context.LockPool.SafeCall(DescriptorManagement, func() error {
		switch res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocateInfo, &outSet.Sets[0]); res {
		case vk.Success:
			return nil
		case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
			return metadata.ErrDescriptorPoolExhausted
		default:
			return fmt.Errorf("failed to allocate descriptor sets: %s", VulkanResultString(res, true))
		}
	})
	if err != nil {
		return nil, err
	}
	return outSet, nil
}
