package world

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"

	"netplay/input"
)

// PoseData is an entity's position and orientation.
type PoseData struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

type VelocityData struct {
	Linear mgl32.Vec3
}

// ControllerData is the walk controller's internal state. Ticks count the
// controller's own steps so nothing here depends on the session frame.
type ControllerData struct {
	Tick         int32
	GroundedTick int32
	JumpTick     int32
	JumpHeld     bool
	Jumping      bool
}

// BasisData is the reference yaw a player's directional input is resolved
// against.
type BasisData struct {
	Yaw float32
}

// PlayerData tags an entity driven by a session handle.
type PlayerData struct {
	Handle input.Handle
}

var (
	Pose       = donburi.NewComponentType[PoseData]()
	Velocity   = donburi.NewComponentType[VelocityData]()
	Controller = donburi.NewComponentType[ControllerData]()
	Basis      = donburi.NewComponentType[BasisData]()
	Player     = donburi.NewComponentType[PlayerData]()
)

func NewController() ControllerData {
	return ControllerData{
		GroundedTick: -coyoteNever,
		JumpTick:     -coyoteNever,
	}
}

const coyoteNever = 1 << 20
