package assets

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeShaderFactory struct {
	created   map[string]int
	destroyed []uuid.UUID
}

func newFakeShaderFactory() *fakeShaderFactory {
	return &fakeShaderFactory{created: make(map[string]int)}
}

func (f *fakeShaderFactory) CreateShader(name string, stage metadata.ShaderStage, code []byte) (*metadata.Shader, error) {
	f.created[name]++
	return &metadata.Shader{ID: uuid.New(), Name: name, Stage: stage, InternalData: len(code)}, nil
}

func (f *fakeShaderFactory) DestroyShader(shader *metadata.Shader) {
	f.destroyed = append(f.destroyed, shader.ID)
}

func writeSpirv(t *testing.T, dir, name string, words int) {
	t.Helper()
	code := make([]byte, 4*words)
	binary.LittleEndian.PutUint32(code, 0x07230203)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".spv"), code, 0o644))
}

func TestShaderLibraryLoadsOnce(t *testing.T) {
	dir := t.TempDir()
	writeSpirv(t, dir, "gbuffer.vert", 5)
	factory := newFakeShaderFactory()
	lib := NewShaderLibrary(dir, factory, nil)

	a, err := lib.Load("gbuffer.vert")
	require.NoError(t, err)
	b, err := lib.Load("gbuffer.vert")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, metadata.ShaderStageVertex, a.Stage)
	assert.Equal(t, 1, factory.created["gbuffer.vert"])

	got, err := lib.Get("gbuffer.vert")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = lib.Get("missing.frag")
	assert.ErrorIs(t, err, ErrShaderNotFound)
}

func TestShaderLibraryRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.frag.spv"), []byte{1, 2, 3, 4}, 0o644))
	writeSpirv(t, dir, "nostage", 2)
	lib := NewShaderLibrary(dir, newFakeShaderFactory(), nil)

	_, err := lib.Load("broken.frag")
	assert.Error(t, err)
	_, err = lib.Load("nostage")
	assert.Error(t, err)
	_, err = lib.Load("absent.comp")
	assert.Error(t, err)
}

func TestPollReloadsInPlace(t *testing.T) {
	dir := t.TempDir()
	writeSpirv(t, dir, "blur.comp", 4)
	factory := newFakeShaderFactory()
	bus := core.NewEventBus()
	var notified []string
	bus.Register(core.EVENT_CODE_SHADER_RELOADED, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		notified = append(notified, data.Str)
		return true
	})
	lib := NewShaderLibrary(dir, factory, bus)

	shader, err := lib.Load("blur.comp")
	require.NoError(t, err)
	oldID := shader.ID

	assert.Empty(t, lib.Poll())

	writeSpirv(t, dir, "blur.comp", 8)
	lib.markDirty("blur.comp")
	lib.markDirty("not-loaded.frag")

	assert.Equal(t, []string{"blur.comp"}, lib.Poll())
	assert.NotEqual(t, oldID, shader.ID)
	assert.Equal(t, 32, shader.InternalData)
	assert.Equal(t, []uuid.UUID{oldID}, factory.destroyed)
	assert.Equal(t, []string{"blur.comp"}, notified)
}

func TestPollKeepsShaderOnCompileFailure(t *testing.T) {
	dir := t.TempDir()
	writeSpirv(t, dir, "lit.frag", 4)
	factory := newFakeShaderFactory()
	lib := NewShaderLibrary(dir, factory, nil)

	shader, err := lib.Load("lit.frag")
	require.NoError(t, err)
	id := shader.ID

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lit.frag.spv"), []byte("garbage!"), 0o644))
	lib.markDirty("lit.frag")

	assert.Empty(t, lib.Poll())
	assert.Equal(t, id, shader.ID)
	assert.Empty(t, factory.destroyed)
}

func TestWatcherPicksUpRewrites(t *testing.T) {
	dir := t.TempDir()
	writeSpirv(t, dir, "mesh.vert", 4)
	factory := newFakeShaderFactory()
	lib := NewShaderLibrary(dir, factory, nil)

	shader, err := lib.Load("mesh.vert")
	require.NoError(t, err)
	oldID := shader.ID

	require.NoError(t, lib.Watch())
	writeSpirv(t, dir, "mesh.vert", 6)

	assert.Eventually(t, func() bool {
		lib.Poll()
		return shader.ID != oldID
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, lib.Close())
	// Close destroys the live version too
	assert.Contains(t, factory.destroyed, shader.ID)
}
