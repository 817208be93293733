package loaders

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageFromName(t *testing.T) {
	cases := map[string]metadata.ShaderStage{
		"gbuffer.vert": metadata.ShaderStageVertex,
		"gbuffer.frag": metadata.ShaderStageFragment,
		"blur.comp":    metadata.ShaderStageCompute,
	}
	for name, want := range cases {
		got, err := StageFromName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := StageFromName("gbuffer.glsl")
	assert.Error(t, err)

	assert.Equal(t, "blur.comp", ShaderName("/tmp/shaders/blur.comp.spv"))
}

func TestShaderLoaderChecksMagic(t *testing.T) {
	dir := t.TempDir()
	good := make([]byte, 16)
	binary.LittleEndian.PutUint32(good, SpirvMagic)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.vert.spv"), good, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.vert.spv"), make([]byte, 16), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.vert.spv"), good[:6], 0o644))

	loader := &ShaderLoader{}
	src, err := loader.Load(filepath.Join(dir, "ok.vert.spv"))
	require.NoError(t, err)
	assert.Equal(t, "ok.vert", src.Name)
	assert.Equal(t, metadata.ShaderStageVertex, src.Stage)
	assert.Len(t, src.Code, 16)

	_, err = loader.Load(filepath.Join(dir, "bad.vert.spv"))
	assert.ErrorIs(t, err, ErrInvalidSpirv)
	_, err = loader.Load(filepath.Join(dir, "short.vert.spv"))
	assert.ErrorIs(t, err, ErrInvalidSpirv)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{G: 255, A: 255})
	img.Set(0, 1, color.NRGBA{B: 255, A: 255})
	img.Set(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestTextureLoaderDecodesRGBA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checker.png")
	writePNG(t, path)

	data, err := (&TextureLoader{}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), data.Width)
	assert.Equal(t, uint32(2), data.Height)
	require.Len(t, data.Pixels, 16)
	assert.Equal(t, []byte{255, 0, 0, 255}, data.Pixels[0:4])
	assert.Equal(t, []byte{0, 0, 255, 255}, data.Pixels[8:12])

	flipped, err := (&TextureLoader{FlipY: true}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 255, 255}, flipped.Pixels[0:4])
	assert.Equal(t, []byte{255, 0, 0, 255}, flipped.Pixels[8:12])
}

func TestTextureLoaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err := (&TextureLoader{}).Load(path)
	assert.Error(t, err)
}
