package world

import (
	"github.com/yohamta/donburi"

	"netplay/input"
)

// World owns the ECS storage for the match and everything that mutates it
// during a frame.
type World struct {
	ECS      donburi.World
	Registry *Registry
	Binding  *Binding
	Stepper  Stepper
	Map      *Map
	tuning   Tuning
}

type Options struct {
	// Window is the number of frames of snapshots retained.
	Window int
	Basis  BasisMode
	Tuning Tuning
	Map    *Map
	// Stepper defaults to a KinematicStepper over Map.
	Stepper Stepper
}

func NewWorld(opts Options) *World {
	if opts.Tuning == (Tuning{}) {
		opts.Tuning = DefaultTuning()
	}
	ecs := donburi.NewWorld()
	registry := NewRegistry(ecs, opts.Window)
	RegisterComponent(registry, Pose)
	RegisterComponent(registry, Velocity)
	RegisterComponent(registry, Controller)
	RegisterComponent(registry, Basis)

	stepper := opts.Stepper
	if stepper == nil {
		stepper = NewKinematicStepper(opts.Tuning, opts.Map)
	}
	return &World{
		ECS:      ecs,
		Registry: registry,
		Binding:  NewBinding(ecs, opts.Basis, opts.Tuning),
		Stepper:  stepper,
		Map:      opts.Map,
		tuning:   opts.Tuning,
	}
}

func (w *World) Tuning() Tuning {
	return w.tuning
}

// Advance steps every bound entity with its record for frame and snapshots the
// result as the start of frame+1. Handles without a record get a blank one.
// Entities enrolled after frame are not stepped.
func (w *World) Advance(frame input.Frame, records []input.Record) {
	for _, handle := range w.Binding.Handles() {
		entity, ok := w.Binding.Entity(handle)
		if !ok || !w.Registry.Active(entity, frame) {
			continue
		}
		record := input.Blank(frame, handle)
		for _, r := range records {
			if r.Handle == handle {
				record = r
				break
			}
		}
		desired, ok := w.Binding.Resolve(handle, record)
		if !ok {
			continue
		}
		entry := w.ECS.Entry(entity)
		pose := w.Stepper.Step(entry, desired)
		Pose.Set(entry, &pose)
	}
	w.Registry.Snapshot(frame + 1)
}

// Checksum hashes the registered state at the start of frame.
func (w *World) Checksum(frame input.Frame) (uint64, error) {
	return w.Registry.Checksum(frame)
}
