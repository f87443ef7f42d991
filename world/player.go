package world

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"

	"netplay/input"
)

// SpawnPlayer creates the entity driven by handle at the map's spawn point for
// that handle, enrolls it for rollback and binds it.
func (w *World) SpawnPlayer(handle input.Handle) donburi.Entity {
	if e, ok := w.Binding.Entity(handle); ok {
		return e
	}

	entity := w.ECS.Create(Pose, Velocity, Controller, Basis, Player)
	entry := w.ECS.Entry(entity)

	var spawn mgl32.Vec3
	if w.Map != nil {
		spawn = w.Map.SpawnPoint(int(handle))
	}
	spawn[1] = w.tuning.FloatHeight
	Pose.Set(entry, &PoseData{
		Position: spawn,
		Rotation: mgl32.QuatIdent(),
	})
	controller := NewController()
	Controller.Set(entry, &controller)
	Player.Set(entry, &PlayerData{Handle: handle})

	w.Registry.Register(entity)
	w.Binding.Bind(handle, entity)
	return entity
}

// Despawn unbinds and unregisters entity and removes it from the world. The
// next snapshot no longer contains it.
func (w *World) Despawn(entity donburi.Entity) {
	if !w.ECS.Valid(entity) {
		return
	}
	entry := w.ECS.Entry(entity)
	if entry.HasComponent(Player) {
		handle := Player.Get(entry).Handle
		if e, ok := w.Binding.Entity(handle); ok && e == entity {
			w.Binding.Unbind(handle)
		}
	}
	w.Registry.Unregister(entity)
	w.ECS.Remove(entity)
}

// PlayerView is a read-only copy of a player's registered state.
type PlayerView struct {
	Entity     donburi.Entity
	Handle     input.Handle
	Pose       PoseData
	Velocity   VelocityData
	Controller ControllerData
}

// Players returns every bound player in handle order.
func (w *World) Players() []PlayerView {
	var views []PlayerView
	for _, handle := range w.Binding.Handles() {
		entity, ok := w.Binding.Entity(handle)
		if !ok {
			continue
		}
		entry := w.ECS.Entry(entity)
		views = append(views, PlayerView{
			Entity:     entity,
			Handle:     handle,
			Pose:       *Pose.Get(entry),
			Velocity:   *Velocity.Get(entry),
			Controller: *Controller.Get(entry),
		})
	}
	return views
}
