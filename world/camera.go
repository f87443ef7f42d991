package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// OrbitCamera is a local third-person camera circling its target. It is never
// registered for rollback; only the look it produces travels in input records.
type OrbitCamera struct {
	Yaw         float32
	Pitch       float32
	Radius      float32
	MinRadius   float32
	MaxRadius   float32
	Sensitivity float32
	Focus       mgl32.Vec3
}

func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Pitch:       -0.4,
		Radius:      2.5,
		MinRadius:   2,
		MaxRadius:   3,
		Sensitivity: 4,
		Focus:       mgl32.Vec3{0, 0.3, -0.1},
	}
}

// Orbit applies a pointer delta given as a fraction of the window size.
func (c *OrbitCamera) Orbit(dx, dy float32) {
	c.Yaw = wrapAngle(c.Yaw - dx*c.Sensitivity*math.Pi)
	pitch := c.Pitch - dy*c.Sensitivity*math.Pi
	// Stay short of straight up or down so the camera never flips.
	const limit = math.Pi/2 - 0.01
	c.Pitch = mgl32.Clamp(pitch, -limit, limit)
}

func (c *OrbitCamera) Zoom(delta float32) {
	c.Radius = mgl32.Clamp(c.Radius-delta, c.MinRadius, c.MaxRadius)
}

// Rotation is the camera orientation: yaw about +Y then pitch about +X.
func (c *OrbitCamera) Rotation() mgl32.Quat {
	return YawRotation(c.Yaw).Mul(mgl32.QuatRotate(c.Pitch, mgl32.Vec3{1, 0, 0}))
}

// Look is the yaw-only orientation sent with input.
func (c *OrbitCamera) Look() mgl32.Quat {
	return YawRotation(c.Yaw)
}

// Eye returns the camera position when following target.
func (c *OrbitCamera) Eye(target mgl32.Vec3) mgl32.Vec3 {
	back := c.Rotation().Rotate(mgl32.Vec3{0, 0, c.Radius})
	return target.Add(c.Focus).Add(back)
}
