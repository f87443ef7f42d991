package world

import "fmt"

type AnimationState int

const (
	Standing AnimationState = iota
	Running
	Jumping
	Falling
)

func (s AnimationState) String() string {
	switch s {
	case Standing:
		return "standing"
	case Running:
		return "running"
	case Jumping:
		return "jumping"
	case Falling:
		return "falling"
	}
	return fmt.Sprintf("AnimationState(%d)", int(s))
}

// Animation is the clip a player should show and its playback speed.
type Animation struct {
	State AnimationState
	Speed float32
}

const runningThreshold = 0.01

// AnimationFor derives the animation from registered state only. It never
// writes to the world.
func AnimationFor(p PlayerView) Animation {
	if p.Controller.Jumping && p.Velocity.Linear[1] > 0 {
		return Animation{State: Jumping, Speed: 2}
	}
	if !Grounded(p.Controller) {
		return Animation{State: Falling, Speed: 1}
	}
	speed := length(horizontal(p.Velocity.Linear))
	if speed > runningThreshold {
		return Animation{State: Running, Speed: 0.4 * speed}
	}
	return Animation{State: Standing, Speed: 1}
}
