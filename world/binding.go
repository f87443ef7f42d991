package world

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"

	"netplay/input"
)

// BasisMode selects the reference frame directional input is resolved in.
type BasisMode int

const (
	// BasisInput rotates input by the yaw carried in the record's look. The yaw
	// is stored in the entity's Basis component so a record without a look
	// reuses the last one.
	BasisInput BasisMode = iota
	// BasisWorld resolves input against the world axes.
	BasisWorld
)

func (m BasisMode) String() string {
	switch m {
	case BasisInput:
		return "input"
	case BasisWorld:
		return "world"
	}
	return fmt.Sprintf("BasisMode(%d)", int(m))
}

func ParseBasisMode(s string) (BasisMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "input", "camera":
		return BasisInput, nil
	case "world":
		return BasisWorld, nil
	}
	return BasisInput, fmt.Errorf("unknown basis mode %q", s)
}

// Tuning holds the movement constants shared by the binding and the stepper.
// Every peer must run with the same values.
type Tuning struct {
	Speed         float32
	RunMultiplier float32
	JumpVelocity  float32
	Gravity       float32
	FloatHeight   float32
	Acceleration  float32
	TurnRate      float32 // radians per tick
	CoyoteTicks   int32
	Dt            float32
}

func DefaultTuning() Tuning {
	return Tuning{
		Speed:         4,
		RunMultiplier: 2,
		JumpVelocity:  6,
		Gravity:       20,
		FloatHeight:   0.2,
		Acceleration:  60,
		TurnRate:      0.3,
		CoyoteTicks:   5,
		Dt:            1.0 / 60,
	}
}

// Desired is what a player asks of the stepper for one frame.
type Desired struct {
	Velocity mgl32.Vec3
	Forward  mgl32.Vec3
	Jump     bool
}

// Binding maps session handles to the entities they drive.
type Binding struct {
	world    donburi.World
	mode     BasisMode
	tuning   Tuning
	entities map[input.Handle]donburi.Entity
}

func NewBinding(w donburi.World, mode BasisMode, tuning Tuning) *Binding {
	return &Binding{
		world:    w,
		mode:     mode,
		tuning:   tuning,
		entities: make(map[input.Handle]donburi.Entity),
	}
}

func (b *Binding) Mode() BasisMode {
	return b.mode
}

func (b *Binding) Bind(handle input.Handle, entity donburi.Entity) {
	b.entities[handle] = entity
}

func (b *Binding) Unbind(handle input.Handle) {
	delete(b.entities, handle)
}

func (b *Binding) Entity(handle input.Handle) (donburi.Entity, bool) {
	e, ok := b.entities[handle]
	if !ok || !b.world.Valid(e) {
		return donburi.Null, false
	}
	return e, true
}

// Handles returns the bound handles in ascending order.
func (b *Binding) Handles() []input.Handle {
	handles := make([]input.Handle, 0, len(b.entities))
	for h := range b.entities {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// Resolve turns record into a world-space request for the entity bound to
// handle. In BasisInput mode it writes the record's look yaw into the entity's
// Basis component, so it must only be called from the simulation step.
func (b *Binding) Resolve(handle input.Handle, record input.Record) (Desired, bool) {
	entity, ok := b.Entity(handle)
	if !ok {
		return Desired{}, false
	}
	entry := b.world.Entry(entity)

	var direction mgl32.Vec3
	if record.Actions.Has(input.ActionUp) {
		direction[2] -= 1
	}
	if record.Actions.Has(input.ActionDown) {
		direction[2] += 1
	}
	if record.Actions.Has(input.ActionLeft) {
		direction[0] -= 1
	}
	if record.Actions.Has(input.ActionRight) {
		direction[0] += 1
	}
	direction = clampLength(direction, 1)

	yaw := b.basisYaw(entry, record)
	if yaw != 0 {
		direction = rotate(YawRotation(yaw), direction)
	}

	speed := b.tuning.Speed
	if record.Actions.Has(input.ActionRun) {
		speed = mul(speed, b.tuning.RunMultiplier)
	}

	desired := Desired{
		Velocity: scale(direction, speed),
		Forward:  normalizeOrZero(horizontal(direction)),
		Jump:     record.Actions.Has(input.ActionJump),
	}
	if turnsInPlace(record.Actions) {
		desired.Velocity = mgl32.Vec3{}
		desired.Forward = rotate(YawRotation(yaw), forward)
	}
	return desired, true
}

func (b *Binding) basisYaw(entry *donburi.Entry, record input.Record) float32 {
	if b.mode == BasisWorld || !entry.HasComponent(Basis) {
		return 0
	}
	basis := Basis.Get(entry)
	if record.HasLook() {
		basis.Yaw = YawOf(record.Look)
	}
	return basis.Yaw
}

// turnsInPlace is every direction held at once. The entity faces its basis
// without moving.
func turnsInPlace(a input.Action) bool {
	const all = input.ActionUp | input.ActionDown | input.ActionLeft | input.ActionRight
	return a&all == all
}
