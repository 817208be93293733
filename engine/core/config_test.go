package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigOverridesDefaults(t *testing.T) {
	data := []byte(`
[application]
name = "testbed"
width = 800
height = 600

[log]
level = "debug"

[renderer]
validation = true
descriptor_pool_size = 32
`)
	cfg, err := ParseConfig(data, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "testbed", cfg.Application.Name)
	assert.Equal(t, uint32(800), cfg.Application.StartWidth)
	assert.Equal(t, uint32(600), cfg.Application.StartHeight)
	assert.Equal(t, uint32(100), cfg.Application.StartPosX)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Renderer.Validation)
	assert.True(t, cfg.Renderer.VSync)
	assert.Equal(t, uint32(32), cfg.Renderer.DescriptorPoolSize)
	assert.Equal(t, "assets/shaders", cfg.Assets.ShaderDir)
}

func TestParseConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "zero width", data: "[application]\nwidth = 0\n"},
		{name: "zero pool", data: "[renderer]\ndescriptor_pool_size = 0\n"},
		{name: "malformed", data: "[application\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data), DefaultConfig())
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("reads file from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "framegraph.toml")
		require.NoError(t, os.WriteFile(path, []byte("[assets]\nhot_reload = false\n"), 0o644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.False(t, cfg.Assets.HotReload)
	})
}

func TestSetLogLevel(t *testing.T) {
	assert.NoError(t, SetLogLevel("warn"))
	assert.Error(t, SetLogLevel("loud"))
	assert.NoError(t, SetLogLevel("debug"))
}
