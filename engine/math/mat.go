package math

import (
	"encoding/binary"
	m "math"
)

/**
 * @brief Creates and returns an identity matrix:
 *
 * {
 *   {1, 0, 0, 0},
 *   {0, 1, 0, 0},
 *   {0, 0, 1, 0},
 *   {0, 0, 0, 1}
 * }
 */
func NewMat4Identity() Mat4 {
	out := Mat4{}
	out.Data[0] = 1.0
	out.Data[5] = 1.0
	out.Data[10] = 1.0
	out.Data[15] = 1.0
	return out
}

// Mul returns mt * other: other is applied first.
func (mt Mat4) Mul(other Mat4) Mat4 {
	out := Mat4{}
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for i := 0; i < 4; i++ {
				sum += mt.Data[i*4+row] * other.Data[col*4+i]
			}
			out.Data[col*4+row] = sum
		}
	}
	return out
}

/**
 * @brief Creates and returns a perspective matrix for a Vulkan clip space
 * (depth in [0, 1], y pointing down).
 *
 * @param fovRadians The vertical field of view in radians.
 * @param aspectRatio The aspect ratio.
 * @param nearClip The near clipping plane distance.
 * @param farClip The far clipping plane distance.
 */
func NewMat4Perspective(fovRadians, aspectRatio, nearClip, farClip float32) Mat4 {
	f := 1.0 / float32(m.Tan(float64(fovRadians)*0.5))
	out := Mat4{}
	out.Data[0] = f / aspectRatio
	out.Data[5] = -f
	out.Data[10] = farClip / (nearClip - farClip)
	out.Data[11] = -1.0
	out.Data[14] = (nearClip * farClip) / (nearClip - farClip)
	return out
}

/**
 * @brief Creates and returns a look-at matrix, or a matrix looking
 * at target from the perspective of position.
 */
func NewMat4LookAt(position, target, up Vec3) Mat4 {
	forward := target.Sub(position).Normalized()
	right := forward.Cross(up).Normalized()
	newUp := right.Cross(forward)

	out := NewMat4Identity()
	out.Data[0] = right.X
	out.Data[4] = right.Y
	out.Data[8] = right.Z
	out.Data[1] = newUp.X
	out.Data[5] = newUp.Y
	out.Data[9] = newUp.Z
	out.Data[2] = -forward.X
	out.Data[6] = -forward.Y
	out.Data[10] = -forward.Z
	out.Data[12] = -right.Dot(position)
	out.Data[13] = -newUp.Dot(position)
	out.Data[14] = forward.Dot(position)
	return out
}

func NewMat4Translation(position Vec3) Mat4 {
	out := NewMat4Identity()
	out.Data[12] = position.X
	out.Data[13] = position.Y
	out.Data[14] = position.Z
	return out
}

// NewMat4EulerY creates a rotation around the y axis.
func NewMat4EulerY(angleRadians float32) Mat4 {
	out := NewMat4Identity()
	c := float32(m.Cos(float64(angleRadians)))
	s := float32(m.Sin(float64(angleRadians)))

	out.Data[0] = c
	out.Data[2] = -s
	out.Data[8] = s
	out.Data[10] = c
	return out
}

// TransformPoint applies mt to the point p (w = 1).
func (mt Mat4) TransformPoint(p Vec3) Vec3 {
	d := mt.Data
	x := d[0]*p.X + d[4]*p.Y + d[8]*p.Z + d[12]
	y := d[1]*p.X + d[5]*p.Y + d[9]*p.Z + d[13]
	z := d[2]*p.X + d[6]*p.Y + d[10]*p.Z + d[14]
	w := d[3]*p.X + d[7]*p.Y + d[11]*p.Z + d[15]
	if w != 0 && w != 1 {
		return Vec3{X: x / w, Y: y / w, Z: z / w}
	}
	return Vec3{X: x, Y: y, Z: z}
}

// Bytes returns the matrix as 64 little-endian bytes, ready for a uniform
// buffer.
func (mt Mat4) Bytes() []byte {
	out := make([]byte, 0, 64)
	for _, f := range mt.Data {
		out = binary.LittleEndian.AppendUint32(out, m.Float32bits(f))
	}
	return out
}
