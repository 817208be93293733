package core

import (
	"errors"
)

var (
	// ErrSwapchainOutOfDate is returned when the swapchain no longer matches
	// the surface. The swapchain has been recreated and the frame must be skipped.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date, recreated")
	// ErrSwapchainSuboptimal is returned when presentation succeeded but the
	// swapchain should be recreated before the next frame.
	ErrSwapchainSuboptimal = errors.New("swapchain suboptimal")
	// ErrVulkanUnsupported is returned when no Vulkan loader is available.
	ErrVulkanUnsupported = errors.New("vulkan is not supported on this system")
	ErrUnknown           = errors.New("unknown")
)
