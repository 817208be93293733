package components

import (
	"github.com/spaghettifunk/framegraph/engine/math"
)

// pitchLimit is 89 degrees, past that LookAt degenerates.
const pitchLimit = float32(1.55334306)

// Camera orbits a target point. View and projection are rebuilt lazily
// after any setter marks the camera dirty.
type Camera struct {
	Target   math.Vec3
	Distance float32
	// Yaw and Pitch in radians, Pitch is clamped to +-89 degrees.
	Yaw   float32
	Pitch float32

	FovRadians float32
	Near       float32
	Far        float32
	aspect     float32

	isDirty    bool
	view       math.Mat4
	projection math.Mat4
}

func NewCamera(fovRadians, near, far float32) *Camera {
	c := &Camera{
		FovRadians: fovRadians,
		Near:       near,
		Far:        far,
		aspect:     1,
	}
	c.Reset()
	return c
}

// Reset puts the camera back at its default orbit around the origin.
func (c *Camera) Reset() {
	c.Target = math.NewVec3(0, 0, 0)
	c.Distance = 3.4
	c.Yaw = 0
	c.Pitch = 0.46
	c.isDirty = true
}

func (c *Camera) SetAspect(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	c.aspect = float32(width) / float32(height)
	c.isDirty = true
}

func (c *Camera) Orbit(yaw, pitch float32) {
	c.Yaw += yaw
	c.Pitch = math.Clamp(c.Pitch+pitch, -pitchLimit, pitchLimit)
	c.isDirty = true
}

func (c *Camera) Zoom(amount float32) {
	c.Distance = math.Clamp(c.Distance+amount, c.Near*2, c.Far/2)
	c.isDirty = true
}

// Position is the eye position derived from the orbit parameters.
func (c *Camera) Position() math.Vec3 {
	offset := math.NewVec3(
		math.Sin(c.Yaw)*math.Cos(c.Pitch),
		math.Sin(c.Pitch),
		math.Cos(c.Yaw)*math.Cos(c.Pitch),
	)
	return c.Target.Add(offset.MulScalar(c.Distance))
}

func (c *Camera) View() math.Mat4 {
	c.rebuild()
	return c.view
}

func (c *Camera) Projection() math.Mat4 {
	c.rebuild()
	return c.projection
}

// ViewProjection is projection * view, ready for a uniform buffer.
func (c *Camera) ViewProjection() math.Mat4 {
	c.rebuild()
	return c.projection.Mul(c.view)
}

func (c *Camera) rebuild() {
	if !c.isDirty {
		return
	}
	c.view = math.NewMat4LookAt(c.Position(), c.Target, math.NewVec3Up())
	c.projection = math.NewMat4Perspective(c.FovRadians, c.aspect, c.Near, c.Far)
	c.isDirty = false
}
