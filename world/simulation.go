package world

import (
	"math"

	"github.com/yohamta/donburi"
)

// Stepper advances one entity by one frame. Implementations must be
// deterministic: the same registered state and Desired give the same result
// on every peer.
type Stepper interface {
	Step(entry *donburi.Entry, desired Desired) PoseData
}

const playerRadius = 0.3

// KinematicStepper is a walk controller on a flat floor with tile walls.
type KinematicStepper struct {
	Tuning Tuning
	Map    *Map
}

func NewKinematicStepper(tuning Tuning, m *Map) *KinematicStepper {
	return &KinematicStepper{Tuning: tuning, Map: m}
}

func (s *KinematicStepper) Step(entry *donburi.Entry, desired Desired) PoseData {
	t := s.Tuning
	pose := *Pose.Get(entry)
	v := Velocity.Get(entry)
	c := Controller.Get(entry)
	c.Tick++

	// Accelerate toward the desired horizontal velocity.
	delta := horizontal(desired.Velocity).Sub(horizontal(v.Linear))
	delta = clampLength(delta, mul(t.Acceleration, t.Dt))
	v.Linear[0] += delta[0]
	v.Linear[2] += delta[2]

	if desired.Jump && !c.JumpHeld {
		c.JumpTick = c.Tick
	}
	c.JumpHeld = desired.Jump

	v.Linear[1] -= mul(t.Gravity, t.Dt)

	// x scan
	if v.Linear[0] != 0 {
		x := pose.Position[0] + mul(v.Linear[0], t.Dt)
		edge := x + mul(sign(v.Linear[0]), playerRadius)
		for _, dz := range []float32{-playerRadius, playerRadius} {
			if s.blocked(edge, pose.Position[2]+dz) {
				v.Linear[0] = 0
				break
			}
		}
	}

	// z scan
	if v.Linear[2] != 0 {
		z := pose.Position[2] + mul(v.Linear[2], t.Dt)
		edge := z + mul(sign(v.Linear[2]), playerRadius)
		for _, dx := range []float32{-playerRadius, playerRadius} {
			if s.blocked(pose.Position[0]+dx, edge) {
				v.Linear[2] = 0
				break
			}
		}
	}

	pose.Position = addScaled(pose.Position, v.Linear, t.Dt)

	if pose.Position[1] <= t.FloatHeight {
		pose.Position[1] = t.FloatHeight
		if v.Linear[1] < 0 {
			v.Linear[1] = 0
		}
		c.GroundedTick = c.Tick
		c.Jumping = false
	}

	wantJump := c.Tick-c.JumpTick < t.CoyoteTicks
	if wantJump && c.Tick-c.GroundedTick < t.CoyoteTicks && !c.Jumping {
		v.Linear[1] = t.JumpVelocity
		c.Jumping = true
	}

	// Releasing jump early cuts the ascent.
	if !c.JumpHeld && c.Jumping && v.Linear[1] > t.JumpVelocity/4 {
		v.Linear[1] = t.JumpVelocity / 4
	}

	if length(desired.Forward) > 0 {
		current := YawOf(pose.Rotation)
		turn := wrapAngle(FacingYaw(desired.Forward) - current)
		if turn > t.TurnRate {
			turn = t.TurnRate
		} else if turn < -t.TurnRate {
			turn = -t.TurnRate
		}
		pose.Rotation = YawRotation(current + turn)
	}
	return pose
}

func (s *KinematicStepper) blocked(x, z float32) bool {
	if s.Map == nil {
		return false
	}
	return s.Map.Blocked(x, z)
}

func sign(f float32) float32 {
	if f < 0 {
		return -1
	}
	return 1
}

func wrapAngle(a float32) float32 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// Grounded reports whether the controller touched the floor on its last step.
func Grounded(c ControllerData) bool {
	return c.GroundedTick == c.Tick
}
