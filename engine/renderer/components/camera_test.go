package components

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/framegraph/engine/math"
)

func TestCameraPositionFollowsOrbit(t *testing.T) {
	c := NewCamera(math.DegToRad(60), 0.1, 100)
	c.Pitch = 0
	c.Distance = 2
	c.Orbit(0, 0)

	assert.True(t, c.Position().Compare(math.NewVec3(0, 0, 2), 1e-5), "got %+v", c.Position())

	c.Orbit(math.K_PI/2, 0)
	assert.True(t, c.Position().Compare(math.NewVec3(2, 0, 0), 1e-5), "got %+v", c.Position())
}

func TestCameraPitchIsClamped(t *testing.T) {
	c := NewCamera(math.DegToRad(60), 0.1, 100)
	c.Orbit(0, 10)
	assert.InDelta(t, pitchLimit, c.Pitch, 1e-6)
	c.Orbit(0, -20)
	assert.InDelta(t, -pitchLimit, c.Pitch, 1e-6)
}

func TestCameraTargetProjectsToCenter(t *testing.T) {
	c := NewCamera(math.DegToRad(60), 0.1, 100)
	c.SetAspect(1280, 720)
	c.Orbit(0.7, -0.2)

	clip := c.ViewProjection().TransformPoint(c.Target)
	assert.InDelta(t, 0, clip.X, 1e-5)
	assert.InDelta(t, 0, clip.Y, 1e-5)
	assert.True(t, clip.Z > 0 && clip.Z < 1, "depth %f outside [0,1]", clip.Z)
}

func TestCameraZoomStaysInsideClipRange(t *testing.T) {
	c := NewCamera(math.DegToRad(60), 0.1, 100)
	c.Zoom(-1000)
	assert.InDelta(t, 0.2, c.Distance, 1e-6)
	c.Zoom(1000)
	assert.InDelta(t, 50, c.Distance, 1e-6)
}

func TestCameraResetRestoresDefaults(t *testing.T) {
	c := NewCamera(math.DegToRad(60), 0.1, 100)
	before := c.View()
	c.Orbit(1, 0.3)
	assert.NotEqual(t, before, c.View())
	c.Reset()
	assert.Equal(t, before, c.View())
}
