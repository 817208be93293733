package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/framegraph/engine/assets"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/platform"
	"github.com/spaghettifunk/framegraph/engine/renderer/rendergraph"
	"github.com/spaghettifunk/framegraph/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.EngineConfig
	isRunning    atomic.Bool
	isSuspended  bool
	events       *core.EventBus
	platform     *platform.Platform
	renderer     *vulkan.VulkanRenderer
	cache        *rendergraph.RenderGraphCache
	shaders      *assets.ShaderLibrary
	width        uint32
	height       uint32
	clock        *core.Clock
	metrics      *core.Metrics
	lastTime     float64
}

func New(g *Game) (*Engine, error) {
	if g.Config == nil {
		g.Config = core.DefaultConfig()
	}
	if err := g.Config.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if err := core.SetLogLevel(g.Config.Log.Level); err != nil {
		core.LogWarn(err.Error())
	}

	events := core.NewEventBus()
	p := platform.New(events)
	r := vulkan.New(p, g.Config.Renderer)

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       g.Config,
		events:       events,
		platform:     p,
		renderer:     r,
		cache:        rendergraph.NewRenderGraphCache(g.Config.Renderer.DescriptorPoolSize),
		shaders:      assets.NewShaderLibrary(g.Config.Assets.ShaderDir, r.Device(), events),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        g.Config.Application.StartWidth,
		height:       g.Config.Application.StartHeight,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	app := e.config.Application

	// register some events
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return err
	}

	// The framebuffer can differ from the window size on high DPI displays.
	e.width, e.height = e.platform.FramebufferSize()
	if err := e.renderer.Initialize(app.Name, e.width, e.height); err != nil {
		return fmt.Errorf("failed to initialize the renderer: %w", err)
	}

	if e.config.Assets.HotReload {
		if err := e.shaders.Watch(); err != nil {
			// Not fatal, shaders simply won't reload.
			core.LogWarn("shader hot reload disabled: %s", err)
		}
	}

	if err := e.gameInstance.FnInitialize(&Application{
		Config:          e.config,
		Resources:       e.renderer.Device(),
		Shaders:         e.shaders,
		Events:          e.events,
		framebufferSize: e.renderer.FramebufferSize,
		frameIndex:      e.renderer.FrameIndex,
	}); err != nil {
		return err
	}

	if err := e.gameInstance.FnOnResize(e.renderer.FramebufferSize()); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Quit asks the main loop to stop after the current frame. Safe to call
// from any goroutine.
func (e *Engine) Quit() {
	e.isRunning.Store(false)
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}

		if e.isSuspended {
			e.platform.WaitMessages()
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := platform.GetAbsoluteTime()

		e.shaders.Poll()

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("Game update failed, shutting down.")
			return err
		}

		if err := e.drawFrame(delta); err != nil {
			return err
		}

		frameElapsedTime := platform.GetAbsoluteTime() - frameStartTime
		if e.metrics.Update(frameElapsedTime) {
			stats := e.cache.Stats()
			core.LogDebug("fps: %.0f frame: %.2fms frames submitted: %d cached pipelines: %d attachments: %d",
				e.metrics.FPS(), e.metrics.FrameTime(), e.renderer.FrameNumber(), stats.Pipelines, stats.Attachments)
		}

		// Update last time
		e.lastTime = currentTime
	}
	return nil
}

// drawFrame records the game's graph and submits it. Frames lost to a
// swapchain recreation are skipped silently.
func (e *Engine) drawFrame(delta float64) error {
	if err := e.renderer.BeginFrame(); err != nil {
		if errors.Is(err, core.ErrSwapchainOutOfDate) {
			return nil
		}
		core.LogError("BeginFrame failed: %s", err)
		return err
	}

	graph := rendergraph.New(e.cache)
	if err := e.gameInstance.FnRender(graph, delta); err != nil {
		core.LogError("Game render failed, shutting down.")
		return err
	}
	if err := graph.Execute(e.renderer.Context(), e.renderer.Device()); err != nil {
		core.LogError("render graph execution failed: %s", err)
		return err
	}

	if err := e.renderer.EndFrame(); err != nil {
		if errors.Is(err, core.ErrSwapchainOutOfDate) || errors.Is(err, core.ErrSwapchainSuboptimal) {
			return nil
		}
		core.LogError("EndFrame failed. Application shutting down...")
		return err
	}
	return nil
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError(err.Error())
		}
	}

	e.cache.Destroy(e.renderer.Device())
	if err := e.shaders.Close(); err != nil {
		core.LogError(err.Error())
	}
	if err := e.renderer.Shutdown(); err != nil {
		return err
	}
	if err := e.platform.Shutdown(); err != nil {
		return err
	}
	e.currentStage = EngineStageUninitialized
	return nil
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Quit()
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if data.U32[0] == platform.KeyEscape {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.U32[0], data.U32[1]

	// Check if different. If so, trigger a resize event.
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	e.renderer.Resized(width, height)
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	// Other listeners may care about the new size too.
	return false
}
