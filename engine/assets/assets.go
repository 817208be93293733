package assets

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/framegraph/engine/assets/loaders"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
)

var ErrShaderNotFound = errors.New("shader not loaded")

// ShaderFactory turns SPIR-V code into shader objects of a device.
type ShaderFactory interface {
	CreateShader(name string, stage metadata.ShaderStage, code []byte) (*metadata.Shader, error)
	DestroyShader(shader *metadata.Shader)
}

// TextureFactory uploads decoded pixels to the device.
type TextureFactory interface {
	CreateTexture(name string, width, height uint32, format metadata.TextureFormat, pixels []byte) (*metadata.Texture, error)
}

// ShaderLibrary loads the shaders of a directory and reloads them when their
// file changes on disk. Reloads are detected on a watcher goroutine but only
// applied by Poll, on the render thread.
type ShaderLibrary struct {
	dir     string
	factory ShaderFactory
	loader  Loader[*loaders.ShaderSource]
	events  *core.EventBus

	shaders map[string]*metadata.Shader

	mutex sync.Mutex
	dirty map[string]struct{}

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewShaderLibrary(dir string, factory ShaderFactory, events *core.EventBus) *ShaderLibrary {
	return &ShaderLibrary{
		dir:     dir,
		factory: factory,
		loader:  &loaders.ShaderLoader{},
		events:  events,
		shaders: make(map[string]*metadata.Shader),
		dirty:   make(map[string]struct{}),
	}
}

func (sl *ShaderLibrary) path(name string) string {
	return filepath.Join(sl.dir, name+".spv")
}

// Load compiles <dir>/<name>.spv, e.g. Load("gbuffer.vert"). Loading a name
// twice returns the same shader.
func (sl *ShaderLibrary) Load(name string) (*metadata.Shader, error) {
	if shader, ok := sl.shaders[name]; ok {
		return shader, nil
	}
	shader, err := sl.compile(name)
	if err != nil {
		return nil, err
	}
	sl.shaders[name] = shader
	core.LogDebug("shader %s loaded", name)
	return shader, nil
}

func (sl *ShaderLibrary) compile(name string) (*metadata.Shader, error) {
	src, err := sl.loader.Load(sl.path(name))
	if err != nil {
		err = fmt.Errorf("failed to load shader %s: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}
	return sl.factory.CreateShader(src.Name, src.Stage, src.Code)
}

func (sl *ShaderLibrary) Get(name string) (*metadata.Shader, error) {
	shader, ok := sl.shaders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrShaderNotFound, name)
	}
	return shader, nil
}

// Watch starts watching the shader directory for rewritten files.
func (sl *ShaderLibrary) Watch() error {
	if sl.fsnotify != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(sl.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", sl.dir, err)
	}
	sl.fsnotify = watcher
	sl.done = make(chan struct{})

	sl.wg.Add(1)
	go sl.start()
	core.LogInfo("watching %s for shader changes", sl.dir)
	return nil
}

func (sl *ShaderLibrary) start() {
	defer sl.wg.Done()
	for {
		select {
		case e, ok := <-sl.fsnotify.Events:
			if !ok {
				return
			}
			// Compilers often write to a temp file and rename it in place.
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(e.Name, ".spv") {
				continue
			}
			sl.markDirty(loaders.ShaderName(e.Name))

		case err, ok := <-sl.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-sl.done:
			return
		}
	}
}

func (sl *ShaderLibrary) markDirty(name string) {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	sl.dirty[name] = struct{}{}
}

// Poll recompiles the loaded shaders whose file changed since the last call
// and returns their names. A reloaded shader keeps its pointer but gets a new
// ID, so pipelines keyed on it are rebuilt. The previous module is handed
// back to the factory for destruction. A shader that fails to compile keeps
// its previous version.
func (sl *ShaderLibrary) Poll() []string {
	sl.mutex.Lock()
	names := make([]string, 0, len(sl.dirty))
	for name := range sl.dirty {
		names = append(names, name)
	}
	sl.dirty = make(map[string]struct{})
	sl.mutex.Unlock()

	sort.Strings(names)
	reloaded := names[:0]
	for _, name := range names {
		shader, ok := sl.shaders[name]
		if !ok {
			continue
		}
		fresh, err := sl.compile(name)
		if err != nil {
			core.LogWarn("keeping previous version of shader %s", name)
			continue
		}
		old := *shader
		*shader = *fresh
		sl.factory.DestroyShader(&old)

		core.LogInfo("shader %s reloaded", name)
		if sl.events != nil {
			sl.events.Fire(core.EVENT_CODE_SHADER_RELOADED, sl, core.EventContext{Str: name})
		}
		reloaded = append(reloaded, name)
	}
	return reloaded
}

// Close stops the watcher and destroys every loaded shader.
func (sl *ShaderLibrary) Close() error {
	var err error
	if sl.fsnotify != nil {
		close(sl.done)
		err = sl.fsnotify.Close()
		sl.wg.Wait()
		sl.fsnotify = nil
	}
	for name, shader := range sl.shaders {
		sl.factory.DestroyShader(shader)
		delete(sl.shaders, name)
	}
	return err
}

// LoadTexture decodes path and uploads it as an RGBA8 sRGB texture.
func LoadTexture(factory TextureFactory, path string, flipY bool) (*metadata.Texture, error) {
	var loader Loader[*loaders.ImageData] = &loaders.TextureLoader{FlipY: flipY}
	img, err := loader.Load(path)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return factory.CreateTexture(img.Name, img.Width, img.Height, metadata.TextureFormatRGBA8SRGB, img.Pixels)
}
