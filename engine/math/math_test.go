package math

import (
	"encoding/binary"
	m "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-5

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(5, 0, 3))
	assert.Equal(t, uint32(2), Clamp(uint32(2), 1, 3))
	assert.Equal(t, float32(-1), Clamp(float32(-4), -1, 1))
}

func TestIdentityIsNeutral(t *testing.T) {
	tr := NewMat4Translation(NewVec3(1, 2, 3))
	assert.Equal(t, tr, NewMat4Identity().Mul(tr))
	assert.Equal(t, tr, tr.Mul(NewMat4Identity()))
}

func TestMulAppliesRightFirst(t *testing.T) {
	// rotate a quarter turn, then move along x
	mt := NewMat4Translation(NewVec3(10, 0, 0)).Mul(NewMat4EulerY(DegToRad(90)))
	got := mt.TransformPoint(NewVec3(1, 0, 0))
	assert.True(t, got.Compare(NewVec3(10, 0, -1), epsilon), "got %+v", got)
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	eye := NewVec3(0, 2, 5)
	view := NewMat4LookAt(eye, NewVec3(0, 0, 0), NewVec3Up())

	assert.True(t, view.TransformPoint(eye).Compare(NewVec3(0, 0, 0), epsilon))
	// the target sits in front of the camera, down the negative z axis
	target := view.TransformPoint(NewVec3(0, 0, 0))
	assert.InDelta(t, -eye.Length(), target.Z, epsilon)
}

func TestPerspectiveDepthRange(t *testing.T) {
	proj := NewMat4Perspective(DegToRad(60), 16.0/9.0, 0.1, 100)
	near := proj.TransformPoint(NewVec3(0, 0, -0.1))
	far := proj.TransformPoint(NewVec3(0, 0, -100))
	assert.InDelta(t, 0, near.Z, epsilon)
	assert.InDelta(t, 1, far.Z, 1e-4)
}

func TestBytesLayout(t *testing.T) {
	b := NewMat4Translation(NewVec3(4, 5, 6)).Bytes()
	require.Len(t, b, 64)
	assert.Equal(t, float32(1), m.Float32frombits(binary.LittleEndian.Uint32(b[0:])))
	assert.Equal(t, float32(4), m.Float32frombits(binary.LittleEndian.Uint32(b[48:])))
	assert.Equal(t, float32(6), m.Float32frombits(binary.LittleEndian.Uint32(b[56:])))
}

func TestNormalizedZero(t *testing.T) {
	assert.Equal(t, Vec3{}, Vec3{}.Normalized())
	assert.InDelta(t, 1, NewVec3(3, 4, 0).Normalized().Length(), epsilon)
}
