package core

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ApplicationConfig describes the window the engine opens.
type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"height"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	// Enables the Khronos validation layer and the debug messenger.
	Validation bool `toml:"validation"`
	VSync      bool `toml:"vsync"`
	// Number of descriptor sets carved out of a single descriptor pool.
	DescriptorPoolSize uint32 `toml:"descriptor_pool_size"`
}

type AssetsConfig struct {
	ShaderDir  string `toml:"shader_dir"`
	TextureDir string `toml:"texture_dir"`
	HotReload  bool   `toml:"hot_reload"`
}

type EngineConfig struct {
	Application ApplicationConfig `toml:"application"`
	Log         LogConfig         `toml:"log"`
	Renderer    RendererConfig    `toml:"renderer"`
	Assets      AssetsConfig      `toml:"assets"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Application: ApplicationConfig{
			Name:        "framegraph",
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
		},
		Log: LogConfig{
			Level: "info",
		},
		Renderer: RendererConfig{
			Validation:         false,
			VSync:              true,
			DescriptorPoolSize: 128,
		},
		Assets: AssetsConfig{
			ShaderDir:  "assets/shaders",
			TextureDir: "assets/textures",
			HotReload:  true,
		},
	}
}

// LoadConfig reads a TOML configuration file on top of DefaultConfig. A
// missing file is not an error: the defaults are returned.
func LoadConfig(path string) (*EngineConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogWarn("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data, cfg)
}

// ParseConfig decodes data into base and validates the result.
func ParseConfig(data []byte, base *EngineConfig) (*EngineConfig, error) {
	if err := toml.Unmarshal(data, base); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

func (c *EngineConfig) Validate() error {
	if c.Application.StartWidth == 0 || c.Application.StartHeight == 0 {
		return fmt.Errorf("invalid window size %dx%d", c.Application.StartWidth, c.Application.StartHeight)
	}
	if c.Renderer.DescriptorPoolSize == 0 {
		return errors.New("descriptor_pool_size must be greater than zero")
	}
	return nil
}
