package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	up      = mgl32.Vec3{0, 1, 0}
	forward = mgl32.Vec3{0, 0, -1}
)

// Simulation arithmetic goes through the helpers below. Every product is
// wrapped in an explicit float32 conversion, which forbids the compiler from
// fusing it with a neighbouring add into an FMA. Some architectures fuse and
// some do not, and peers on both must compute the same bits.

func mul(a, b float32) float32 {
	return float32(a * b)
}

func scale(v mgl32.Vec3, s float32) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0] * s), float32(v[1] * s), float32(v[2] * s)}
}

// addScaled is a + b*s.
func addScaled(a, b mgl32.Vec3, s float32) mgl32.Vec3 {
	return mgl32.Vec3{
		a[0] + float32(b[0]*s),
		a[1] + float32(b[1]*s),
		a[2] + float32(b[2]*s),
	}
}

func dot(a, b mgl32.Vec3) float32 {
	return float32(a[0]*b[0]) + float32(a[1]*b[1]) + float32(a[2]*b[2])
}

func cross(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(a[1]*b[2]) - float32(a[2]*b[1]),
		float32(a[2]*b[0]) - float32(a[0]*b[2]),
		float32(a[0]*b[1]) - float32(a[1]*b[0]),
	}
}

func length(v mgl32.Vec3) float32 {
	return float32(math.Sqrt(float64(dot(v, v))))
}

// rotate applies unit quaternion q to v as v + w*t + q.V×t with t = 2(q.V×v).
func rotate(q mgl32.Quat, v mgl32.Vec3) mgl32.Vec3 {
	t := scale(cross(q.V, v), 2)
	return addScaled(v, t, q.W).Add(cross(q.V, t))
}

// YawOf returns the rotation about +Y that q applies to the forward axis.
func YawOf(q mgl32.Quat) float32 {
	f := rotate(q, forward)
	if f[0] == 0 && f[2] == 0 {
		return 0
	}
	return float32(math.Atan2(float64(-f[0]), float64(-f[2])))
}

func YawRotation(yaw float32) mgl32.Quat {
	return mgl32.QuatRotate(yaw, up)
}

// FacingYaw is the yaw that points the forward axis along v.
func FacingYaw(v mgl32.Vec3) float32 {
	return float32(math.Atan2(float64(-v[0]), float64(-v[2])))
}

func horizontal(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{v[0], 0, v[2]}
}

func clampLength(v mgl32.Vec3, max float32) mgl32.Vec3 {
	l := length(v)
	if l <= max || l == 0 {
		return v
	}
	return scale(v, max/l)
}

func normalizeOrZero(v mgl32.Vec3) mgl32.Vec3 {
	l := length(v)
	if l == 0 {
		return mgl32.Vec3{}
	}
	return scale(v, 1/l)
}
