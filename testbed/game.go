package testbed

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/framegraph/engine"
	"github.com/spaghettifunk/framegraph/engine/assets"
	"github.com/spaghettifunk/framegraph/engine/core"
	enginemath "github.com/spaghettifunk/framegraph/engine/math"
	"github.com/spaghettifunk/framegraph/engine/platform"
	"github.com/spaghettifunk/framegraph/engine/renderer/components"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/spaghettifunk/framegraph/engine/renderer/rendergraph"
)

// Tile size of the depth reduction, must match cull.comp.
const cullTileSize = 16

var (
	cameraLayout = metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{
		0: metadata.DescriptorCBuffer,
		1: metadata.DescriptorCBuffer,
	}}
	cullLayout = metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{
		0: metadata.DescriptorTexture2D,
		1: metadata.DescriptorSamplerState,
		2: metadata.DescriptorRWTexture2D,
	}}
	fullscreenLayout = metadata.DescriptorSetInfo{Bindings: map[uint32]metadata.DescriptorBindingType{
		0: metadata.DescriptorTexture2D,
		1: metadata.DescriptorSamplerState,
		2: metadata.DescriptorTexture2D,
	}}
	cubeVertexInput = metadata.VertexInputInfo{
		Stride:     12,
		Attributes: []metadata.VertexAttribute{{Location: 0, Format: metadata.VertexFormatFloat32x3}},
	}
)

// TestGame renders a spinning cube into a depth prepass, reduces the depth
// per screen tile with a compute pass and shows the result fullscreen.
type TestGame struct {
	*engine.Game
}

type gameState struct {
	app *engine.Application

	geometryVS   *metadata.Shader
	cullCS       *metadata.Shader
	fullscreenVS *metadata.Shader
	fullscreenPS *metadata.Shader

	camera  *components.Camera
	cube    *metadata.Mesh
	overlay *metadata.Texture
	// one copy per frame in flight, the GPU may still read the previous one
	cameraBuffers [metadata.MaxFramesInFlight]*metadata.GpuBuffer
	modelBuffers  [metadata.MaxFramesInFlight]*metadata.GpuBuffer

	width    uint32
	height   uint32
	rotation float32
}

func NewTestGame(config *core.EngineConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: config,
			State: &gameState{
				camera: components.NewCamera(enginemath.DegToRad(60), 0.1, 100),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(app *engine.Application) error {
	core.LogInfo("initializing testbed...")
	s := g.state()
	s.app = app

	var err error
	shaders := []struct {
		dst  **metadata.Shader
		name string
	}{
		{&s.geometryVS, "geometry.vert"},
		{&s.cullCS, "cull.comp"},
		{&s.fullscreenVS, "fullscreen.vert"},
		{&s.fullscreenPS, "fullscreen.frag"},
	}
	for _, sh := range shaders {
		if *sh.dst, err = app.Shaders.Load(sh.name); err != nil {
			return err
		}
	}

	vertices, indices := cubeGeometry(0.5)
	if s.cube, err = app.Resources.CreateMesh("cube", vertices, indices); err != nil {
		return err
	}

	if s.overlay, err = loadOverlay(app); err != nil {
		return err
	}

	for i := 0; i < metadata.MaxFramesInFlight; i++ {
		if s.cameraBuffers[i], err = app.Resources.CreateUploadBuffer("camera", 64, metadata.BufferUsageUniform); err != nil {
			return err
		}
		if s.modelBuffers[i], err = app.Resources.CreateUploadBuffer("model", 64, metadata.BufferUsageUniform); err != nil {
			return err
		}
	}

	app.Events.Register(core.EVENT_CODE_SHADER_RELOADED, g, g.onShaderReloaded)
	app.Events.Register(core.EVENT_CODE_KEY_PRESSED, g, g.onKey)
	return nil
}

// loadOverlay reads the first image of the texture directory, or falls back
// to a white pixel.
func loadOverlay(app *engine.Application) (*metadata.Texture, error) {
	for _, pattern := range []string{"*.png", "*.jpg", "*.bmp", "*.tiff", "*.webp"} {
		matches, _ := filepath.Glob(filepath.Join(app.Config.Assets.TextureDir, pattern))
		if len(matches) == 0 {
			continue
		}
		tex, err := assets.LoadTexture(app.Resources, matches[0], false)
		if err == nil {
			return tex, nil
		}
		core.LogWarn("failed to load overlay %s: %s", matches[0], err)
	}
	return app.Resources.CreateTexture("white", 1, 1, metadata.TextureFormatRGBA8UNorm, []byte{255, 255, 255, 255})
}

func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	s.rotation += float32(0.5 * deltaTime)
	if s.rotation > 2*enginemath.K_PI {
		s.rotation -= 2 * enginemath.K_PI
	}
	return nil
}

func (g *TestGame) Render(graph *rendergraph.RenderGraph, deltaTime float64) error {
	s := g.state()
	if s.width == 0 || s.height == 0 {
		return nil
	}

	frame := s.app.FrameIndex()
	camera, model := s.cameraBuffers[frame], s.modelBuffers[frame]
	if err := g.writeUniforms(camera, model); err != nil {
		return err
	}

	var depth, maxDepth *rendergraph.AttachmentHandle

	graph.Record("geometry", func(pb *rendergraph.PassBuilder) {
		depth = pb.AddAttachment(rendergraph.AttachmentDesc{
			Name:    "geometry depth",
			Format:  metadata.TextureFormatDepth,
			Width:   s.width,
			Height:  s.height,
			LoadOp:  metadata.LoadOpClear,
			StoreOp: metadata.StoreOpStore,
			Usage:   metadata.TextureUsageAttachment | metadata.TextureUsageSampled,
		})
		descriptor := pb.AddGraphicsDescriptorSet(rendergraph.DescriptorDesc{
			Name:   "geometry descriptor",
			Layout: cameraLayout,
			Bindings: []rendergraph.DescriptorBinding{
				rendergraph.BindImportedBuffer(0, camera),
				rendergraph.BindImportedBuffer(1, model),
			},
		})
		renderPass := pb.AddRenderPass(rendergraph.RenderPassDesc{
			Name:  "geometry render pass",
			Depth: depth,
		})
		less := metadata.CompareOpLess
		pipeline := pb.AddRasterPipeline(rendergraph.RasterPipelineDesc{
			Name:              "cube pipeline",
			VertexShader:      s.geometryVS,
			DescriptorLayouts: []metadata.DescriptorSetInfo{cameraLayout},
			RenderPass:        renderPass,
			DepthCompareOp:    &less,
			DepthWrite:        true,
			FaceCull:          metadata.FaceCullBack,
			VertexInput:       cubeVertexInput,
			PolygonMode:       metadata.PolygonModeFill,
		})

		pb.CmdBeginRenderPass(renderPass, metadata.ClearDepthStencil(1, 0))
		pb.CmdBindRasterPipeline(pipeline)
		pb.CmdBindGraphicsDescriptor(descriptor, 0, pipeline)
		pb.CmdDrawMesh(s.cube)
		pb.CmdEndRenderPass()
	})

	tilesX := (s.width + cullTileSize - 1) / cullTileSize
	tilesY := (s.height + cullTileSize - 1) / cullTileSize

	graph.Record("cull", func(pb *rendergraph.PassBuilder) {
		maxDepth = pb.AddAttachment(rendergraph.AttachmentDesc{
			Name:   "max depth",
			Format: metadata.TextureFormatR32Float,
			Width:  tilesX,
			Height: tilesY,
			Usage:  metadata.TextureUsageStorage | metadata.TextureUsageSampled,
		})
		descriptor := pb.AddComputeDescriptorSet(rendergraph.DescriptorDesc{
			Name:   "cull descriptor",
			Layout: cullLayout,
			Bindings: []rendergraph.DescriptorBinding{
				rendergraph.BindAttachment(0, depth.Read()),
				rendergraph.BindSampler(1),
				rendergraph.BindMutableAttachment(2, maxDepth),
			},
		})
		pipeline := pb.AddComputePipeline(rendergraph.ComputePipelineDesc{
			Name:              "cull pipeline",
			ComputeShader:     s.cullCS,
			DescriptorLayouts: []metadata.DescriptorSetInfo{cullLayout},
		})

		pb.CmdBindComputePipeline(pipeline)
		pb.CmdBindComputeDescriptor(descriptor, 0, pipeline)
		pb.CmdDispatch(tilesX, tilesY, 1)
	})

	graph.Record("fullscreen", func(pb *rendergraph.PassBuilder) {
		descriptor := pb.AddGraphicsDescriptorSet(rendergraph.DescriptorDesc{
			Name:   "fullscreen descriptor",
			Layout: fullscreenLayout,
			Bindings: []rendergraph.DescriptorBinding{
				rendergraph.BindAttachment(0, maxDepth.Read()),
				rendergraph.BindSampler(1),
				rendergraph.BindImportedTexture(2, s.overlay),
			},
		})
		renderPass := pb.AddOutputRenderPass()
		pipeline := pb.AddRasterPipeline(rendergraph.RasterPipelineDesc{
			Name:              "fullscreen pipeline",
			VertexShader:      s.fullscreenVS,
			FragmentShader:    s.fullscreenPS,
			DescriptorLayouts: []metadata.DescriptorSetInfo{fullscreenLayout},
			RenderPass:        renderPass,
			FaceCull:          metadata.FaceCullNone,
		})

		pb.CmdBeginRenderPass(renderPass, metadata.ClearColor(0, 0, 0, 1))
		pb.CmdBindRasterPipeline(pipeline)
		pb.CmdBindGraphicsDescriptor(descriptor, 0, pipeline)
		pb.CmdDraw(3, 1, 0, 0)
		pb.CmdEndRenderPass()
	})
	return nil
}

func (g *TestGame) writeUniforms(camera, model *metadata.GpuBuffer) error {
	s := g.state()
	if err := s.app.Resources.UpdateBuffer(camera, 0, s.camera.ViewProjection().Bytes()); err != nil {
		return err
	}
	return s.app.Resources.UpdateBuffer(model, 0, enginemath.NewMat4EulerY(s.rotation).Bytes())
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width = width
	s.height = height
	s.camera.SetAspect(width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	s := g.state()
	if s.app == nil {
		return nil
	}
	s.app.Events.Unregister(core.EVENT_CODE_SHADER_RELOADED, g)
	s.app.Events.Unregister(core.EVENT_CODE_KEY_PRESSED, g)
	if s.cube != nil {
		s.app.Resources.DestroyMesh(s.cube)
	}
	if s.overlay != nil {
		s.app.Resources.DestroyTexture(s.overlay)
	}
	for i := range s.cameraBuffers {
		if s.cameraBuffers[i] != nil {
			s.app.Resources.DestroyBuffer(s.cameraBuffers[i])
		}
		if s.modelBuffers[i] != nil {
			s.app.Resources.DestroyBuffer(s.modelBuffers[i])
		}
	}
	return nil
}

func (g *TestGame) onShaderReloaded(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogInfo("testbed: %s changed, pipelines using it are rebuilt on the next frame", data.Str)
	return false
}

// Arrows orbit the camera, W/S zoom and R resets it.
func (g *TestGame) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	const step = 0.05
	c := g.state().camera
	switch data.U32[0] {
	case platform.KeyLeft:
		c.Orbit(-step, 0)
	case platform.KeyRight:
		c.Orbit(step, 0)
	case platform.KeyUp:
		c.Orbit(0, step)
	case platform.KeyDown:
		c.Orbit(0, -step)
	case platform.KeyW:
		c.Zoom(-step * 4)
	case platform.KeyS:
		c.Zoom(step * 4)
	case platform.KeyR:
		c.Reset()
	default:
		return false
	}
	return true
}

// cubeGeometry returns the packed positions and the indices of an axis
// aligned cube of half extent h, counter clockwise when seen from outside.
func cubeGeometry(h float32) ([]byte, []uint32) {
	corners := [8][3]float32{
		{-h, -h, -h}, {h, -h, -h}, {h, h, -h}, {-h, h, -h},
		{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h},
	}
	vertices := make([]byte, 0, len(corners)*12)
	for _, c := range corners {
		for _, v := range c {
			vertices = binary.LittleEndian.AppendUint32(vertices, math.Float32bits(v))
		}
	}
	indices := []uint32{
		4, 5, 6, 6, 7, 4, // +z
		1, 0, 3, 3, 2, 1, // -z
		5, 1, 2, 2, 6, 5, // +x
		0, 4, 7, 7, 3, 0, // -x
		7, 6, 2, 2, 3, 7, // +y
		0, 1, 5, 5, 4, 0, // -y
	}
	return vertices, indices
}

// ErrMissingShaders is returned by CheckAssets when the compiled shaders
// are not found.
var ErrMissingShaders = errors.New("compiled shaders not found, run `mage build:shaders`")

// CheckAssets verifies the shaders needed by the testbed exist on disk.
func CheckAssets(config *core.EngineConfig) error {
	for _, name := range []string{"geometry.vert", "cull.comp", "fullscreen.vert", "fullscreen.frag"} {
		if _, err := os.Stat(filepath.Join(config.Assets.ShaderDir, name+".spv")); err != nil {
			return ErrMissingShaders
		}
	}
	return nil
}
