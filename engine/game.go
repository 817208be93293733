package engine

import (
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/rendergraph"
)

// Game is the set of callbacks the engine drives every frame.
type Game struct {
	Config       *core.EngineConfig
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func(app *Application) error
type Update func(deltaTime float64) error

// Render records the passes of the frame into graph. The engine executes
// the graph once Render returns.
type Render func(graph *rendergraph.RenderGraph, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
