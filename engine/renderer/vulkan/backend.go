package vulkan

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/platform"
	"github.com/spaghettifunk/framegraph/engine/renderer/frame"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

// VulkanRenderer owns the Vulkan instance, device and swapchain and paces
// frames. Graphs record through Context() and allocate through Device().
type VulkanRenderer struct {
	platform                *platform.Platform
	config                  core.RendererConfig
	context                 *VulkanContext
	device                  *VulkanGraphicsDevice
	graphicsContext         *VulkanGraphicsContext
	cachedFramebufferWidth  uint32
	cachedFramebufferHeight uint32
}

func New(p *platform.Platform, config core.RendererConfig) *VulkanRenderer {
	vr := &VulkanRenderer{
		platform: p,
		config:   config,
		context: &VulkanContext{
			Allocator: nil,
			Device:    &VulkanDevice{},
			LockPool:  NewVulkanLockPool(),
		},
	}
	vr.device = NewVulkanGraphicsDevice(vr.context)
	vr.graphicsContext = NewVulkanGraphicsContext(vr.context)
	return vr
}

// Device returns the object factory used by render graphs.
func (vr *VulkanRenderer) Device() *VulkanGraphicsDevice {
	return vr.device
}

// Context returns the command recorder of the current frame.
func (vr *VulkanRenderer) Context() *VulkanGraphicsContext {
	return vr.graphicsContext
}

// FrameIndex is the frame in flight slot being recorded, in
// [0, metadata.MaxFramesInFlight). Objects written by the CPU every frame
// need one copy per slot.
func (vr *VulkanRenderer) FrameIndex() int {
	return int(vr.context.CurrentFrame)
}

// FrameNumber is the number of frames submitted so far.
func (vr *VulkanRenderer) FrameNumber() uint64 {
	return vr.context.Pacer.FrameNumber()
}

func (vr *VulkanRenderer) Initialize(appName string, appWidth, appHeight uint32) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	vr.context.FramebufferWidth = appWidth
	vr.context.FramebufferHeight = appHeight

	if err := vr.createInstance(appName); err != nil {
		return err
	}

	if vr.config.Validation {
		if err := vr.createDebugger(); err != nil {
			return err
		}
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.platform.Window.CreateWindowSurface(vr.context.Instance, nil)
	if err != nil {
		err = fmt.Errorf("failed to create platform surface: %w", err)
		core.LogError(err.Error())
		return err
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vr.context); err != nil {
		return err
	}

	sampler, err := createDefaultSampler(vr.context)
	if err != nil {
		return err
	}
	vr.context.DefaultSampler = sampler

	sc, err := SwapchainCreate(vr.context, vr.context.FramebufferWidth, vr.context.FramebufferHeight, vr.config.VSync)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc

	rp, err := vr.createOutputRenderpass()
	if err != nil {
		return err
	}
	vr.context.OutputRenderpass = rp

	if err := vr.context.Swapchain.CreateFramebuffers(vr.context, rp); err != nil {
		return err
	}

	if err := vr.createFrameResources(); err != nil {
		return err
	}
	vr.context.ImagesInFlight = make([]*VulkanFence, vr.context.Swapchain.ImageCount)

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Framegraph"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := vr.platform.GetRequiredExtensionNames()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}
	if vr.config.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers should only be enabled on non-release builds.
	var requiredLayers []string
	if vr.config.Validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		requiredLayers = []string{"VK_LAYER_KHRONOS_validation"}

		var availableLayerCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
			err := fmt.Errorf("failed to enumerate instance layers: %s", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}
		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
			err := fmt.Errorf("failed to enumerate instance layers: %s", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}

		// Verify all required layers are available.
		for _, required := range requiredLayers {
			found := false
			for i := range availableLayers {
				availableLayers[i].Deref()
				if vk.ToString(availableLayers[i].LayerName[:]) == required {
					found = true
					break
				}
			}
			if !found {
				err := fmt.Errorf("required validation layer is missing: %s", required)
				core.LogError(err.Error())
				return err
			}
		}
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	vr.context.Instance = instance

	core.LogInfo("Vulkan Instance created.")
	return nil
}

func (vr *VulkanRenderer) createDebugger() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
		core.LogError("vk.CreateDebugReportCallback failed with %s", err)
		return err
	}
	vr.context.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

// createOutputRenderpass builds the pass that renders into the swapchain
// image and leaves it ready for presentation.
func (vr *VulkanRenderer) createOutputRenderpass() (*VulkanRenderpass, error) {
	color := VulkanAttachmentConfig{
		Format:        vr.context.Swapchain.ImageFormat.Format,
		LoadOp:        vk.AttachmentLoadOpClear,
		StoreOp:       vk.AttachmentStoreOpStore,
		InitialLayout: vk.ImageLayoutUndefined,  // Do not expect any particular layout before render pass starts.
		FinalLayout:   vk.ImageLayoutPresentSrc, // Transitioned to after the render pass
	}
	depth := VulkanAttachmentConfig{
		Format:        vr.context.Device.DepthFormat,
		LoadOp:        vk.AttachmentLoadOpClear,
		StoreOp:       vk.AttachmentStoreOpDontCare,
		InitialLayout: vk.ImageLayoutUndefined,
		FinalLayout:   vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	return RenderpassCreate(vr.context, []VulkanAttachmentConfig{color}, &depth)
}

// createFrameResources creates per frame in flight command buffers, sync
// objects and the pacer driving them.
func (vr *VulkanRenderer) createFrameResources() error {
	frames := metadata.MaxFramesInFlight
	vr.context.GraphicsCommandBuffers = make([]*VulkanCommandBuffer, frames)
	vr.context.ImageAvailableSemaphores = make([]vk.Semaphore, frames)
	vr.context.QueueCompleteSemaphores = make([]vk.Semaphore, frames)
	vr.context.InFlightFences = make([]*VulkanFence, frames)
	fences := make([]frame.Fence, frames)

	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	for i := 0; i < frames; i++ {
		cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		vr.context.GraphicsCommandBuffers[i] = cb

		var imageAvailable, queueComplete vk.Semaphore
		if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &imageAvailable); res != vk.Success {
			err := fmt.Errorf("failed to create semaphore on image available")
			core.LogError(err.Error())
			return err
		}
		if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &queueComplete); res != vk.Success {
			err := fmt.Errorf("failed to create semaphore on queue complete")
			core.LogError(err.Error())
			return err
		}
		vr.context.ImageAvailableSemaphores[i] = imageAvailable
		vr.context.QueueCompleteSemaphores[i] = queueComplete

		// Create the fence in a signaled state, indicating that the first frame has already been "rendered".
		f, err := NewFence(vr.context, true)
		if err != nil {
			return err
		}
		vr.context.InFlightFences[i] = f
		fences[i] = f
	}
	vr.context.Pacer = frame.NewPacer(fences)
	core.LogDebug("Vulkan frame resources created.")
	return nil
}

func (vr *VulkanRenderer) Shutdown() error {
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

	// Everything deferred can go now that the device is idle.
	if vr.context.Pacer != nil {
		vr.context.Pacer.Flush()
	}

	// Destroy in the opposite order of creation.
	for i := range vr.context.InFlightFences {
		vk.DestroySemaphore(vr.context.Device.LogicalDevice, vr.context.ImageAvailableSemaphores[i], vr.context.Allocator)
		vk.DestroySemaphore(vr.context.Device.LogicalDevice, vr.context.QueueCompleteSemaphores[i], vr.context.Allocator)
		vr.context.InFlightFences[i].Destroy()
		vr.context.GraphicsCommandBuffers[i].Free(vr.context, vr.context.Device.GraphicsCommandPool)
	}
	vr.context.ImageAvailableSemaphores = nil
	vr.context.QueueCompleteSemaphores = nil
	vr.context.InFlightFences = nil
	vr.context.ImagesInFlight = nil
	vr.context.GraphicsCommandBuffers = nil

	if vr.context.Swapchain != nil {
		vr.context.Swapchain.Destroy(vr.context)
	}
	if vr.context.OutputRenderpass != nil {
		vr.context.OutputRenderpass.Destroy(vr.context)
	}
	if vr.context.DefaultSampler != nil {
		vk.DestroySampler(vr.context.Device.LogicalDevice, vr.context.DefaultSampler, vr.context.Allocator)
		vr.context.DefaultSampler = nil
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(vr.context)

	core.LogDebug("Destroying Vulkan surface...")
	if vr.context.Surface != vk.NullSurface {
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}

	if vr.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
	return nil
}

// Resized records a new framebuffer size. The swapchain is recreated at the
// start of the next frame.
func (vr *VulkanRenderer) Resized(width, height uint32) {
	vr.cachedFramebufferWidth = width
	vr.cachedFramebufferHeight = height
	vr.context.FramebufferSizeGeneration++

	core.LogInfo("Vulkan renderer backend->resized: w/h/gen: %d/%d/%d", width, height, vr.context.FramebufferSizeGeneration)
}

// BeginFrame waits for a free frame slot, acquires the next swapchain image
// and starts recording. It returns core.ErrSwapchainOutOfDate when the
// swapchain was recreated and the frame must be skipped.
func (vr *VulkanRenderer) BeginFrame() error {
	// Check if the framebuffer has been resized. If so, a new swapchain must be created.
	if vr.context.FramebufferSizeGeneration != vr.context.FramebufferSizeLastGeneration {
		if err := vr.recreateSwapchain(); err != nil {
			return err
		}
		core.LogInfo("Resized, booting.")
		return core.ErrSwapchainOutOfDate
	}

	// Wait for the execution of the oldest frame to complete. Objects
	// deferred while it was recorded are destroyed here.
	slot, err := vr.context.Pacer.Acquire()
	if err != nil {
		core.LogWarn(err.Error())
		return err
	}
	vr.context.CurrentFrame = uint32(slot.Index)

	// Acquire the next image from the swap chain. Pass along the semaphore that should signaled when this completes.
	imageIndex, err := vr.context.Swapchain.AcquireNextImageIndex(vr.context, math.MaxUint64, vr.context.ImageAvailableSemaphores[slot.Index], vk.NullFence)
	if err != nil {
		_ = vr.context.Pacer.Abandon()
		if errors.Is(err, core.ErrSwapchainOutOfDate) {
			if rerr := vr.recreateSwapchain(); rerr != nil {
				return rerr
			}
		}
		return err
	}
	vr.context.ImageIndex = imageIndex

	// Begin recording commands.
	commandBuffer := vr.context.CommandBuffer()
	if err := commandBuffer.Reset(); err != nil {
		_ = vr.context.Pacer.Abandon()
		return err
	}
	if err := commandBuffer.Begin(true, false, false); err != nil {
		_ = vr.context.Pacer.Abandon()
		return err
	}
	return nil
}

// EndFrame submits the recorded commands and presents the image. A
// presentation that reports an out of date or suboptimal swapchain schedules
// its recreation and returns the matching core error.
func (vr *VulkanRenderer) EndFrame() error {
	commandBuffer := vr.context.CommandBuffer()
	if err := commandBuffer.End(); err != nil {
		_ = vr.context.Pacer.Abandon()
		return err
	}

	frameIndex := vr.context.CurrentFrame
	fence := vr.context.InFlightFences[frameIndex]

	// Make sure the previous frame is not using this image (i.e. its fence is being waited on)
	if inFlight := vr.context.ImagesInFlight[vr.context.ImageIndex]; inFlight != nil && inFlight != fence {
		if err := inFlight.Wait(math.MaxUint64); err != nil {
			_ = vr.context.Pacer.Abandon()
			return err
		}
	}
	// Mark the image fence as in-use by this frame.
	vr.context.ImagesInFlight[vr.context.ImageIndex] = fence

	if err := fence.Reset(); err != nil {
		_ = vr.context.Pacer.Abandon()
		return err
	}

	// Each semaphore waits on the corresponding pipeline stage to complete. 1:1 ratio.
	// VK_PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT prevents subsequent colour attachment
	// writes from executing until the semaphore signals (i.e. one frame is presented at a time)
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{vr.context.QueueCompleteSemaphores[frameIndex]},
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{vr.context.ImageAvailableSemaphores[frameIndex]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
	}

	if err := vr.context.LockPool.SafeQueueCall(uint32(vr.context.Device.GraphicsQueueIndex), func() error {
		if result := vk.QueueSubmit(vr.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); result != vk.Success {
			err := fmt.Errorf("vkQueueSubmit failed with result: %s", VulkanResultString(result, true))
			core.LogError(err.Error())
			return err
		}
		return nil
	}); err != nil {
		// the fence is already reset and nothing will signal it
		if discardErr := vr.context.Pacer.Discard(); discardErr != nil {
			return fmt.Errorf("%w (%s)", err, discardErr)
		}
		return err
	}
	commandBuffer.UpdateSubmitted()

	if err := vr.context.Pacer.Submit(); err != nil {
		return err
	}

	// Give the image back to the swapchain.
	err := vr.context.Swapchain.Present(vr.context, vr.context.Device.PresentQueue, vr.context.QueueCompleteSemaphores[frameIndex], vr.context.ImageIndex)
	if errors.Is(err, core.ErrSwapchainOutOfDate) || errors.Is(err, core.ErrSwapchainSuboptimal) {
		// Picked up by the next BeginFrame.
		vr.context.FramebufferSizeGeneration++
	}
	return err
}

func (vr *VulkanRenderer) recreateSwapchain() error {
	// If already being recreated, do not try again.
	if vr.context.RecreatingSwapchain {
		core.LogDebug("recreateSwapchain called when already recreating. Booting.")
		return nil
	}

	width, height := vr.context.FramebufferWidth, vr.context.FramebufferHeight
	if vr.cachedFramebufferWidth != 0 && vr.cachedFramebufferHeight != 0 {
		width, height = vr.cachedFramebufferWidth, vr.cachedFramebufferHeight
	}
	// Detect if the window is too small to be drawn to
	if width == 0 || height == 0 {
		core.LogDebug("recreateSwapchain called when window is < 1 in a dimension. Booting.")
		return core.ErrSwapchainOutOfDate
	}

	vr.context.RecreatingSwapchain = true
	defer func() { vr.context.RecreatingSwapchain = false }()

	if res := vk.DeviceWaitIdle(vr.context.Device.LogicalDevice); !VulkanResultIsSuccess(res) {
		err := fmt.Errorf("vkDeviceWaitIdle failed: '%s'", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}

	// Clear these out just in case.
	for i := range vr.context.ImagesInFlight {
		vr.context.ImagesInFlight[i] = nil
	}

	sc, err := vr.context.Swapchain.Recreate(vr.context, width, height, vr.config.VSync)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc
	if err := sc.CreateFramebuffers(vr.context, vr.context.OutputRenderpass); err != nil {
		return err
	}
	vr.context.ImagesInFlight = make([]*VulkanFence, sc.ImageCount)

	// Sync the framebuffer size with the cached sizes.
	vr.context.FramebufferWidth = sc.Extent.Width
	vr.context.FramebufferHeight = sc.Extent.Height
	vr.cachedFramebufferWidth = 0
	vr.cachedFramebufferHeight = 0
	vr.context.FramebufferSizeLastGeneration = vr.context.FramebufferSizeGeneration
	return nil
}

// FramebufferSize is the size of the images presented to the window.
func (vr *VulkanRenderer) FramebufferSize() (uint32, uint32) {
	return vr.context.FramebufferWidth, vr.context.FramebufferHeight
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
