package world

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/yohamta/donburi"

	"netplay/input"
)

// RollbackID is an entity's stable identity from Register to Unregister.
type RollbackID uint32

// Rollback marks an entity as enrolled in a Registry.
var Rollback = donburi.NewComponentType[RollbackID]()

// ErrRollbackOverrun is returned when a restore needs a frame that has already
// left the retained window.
var ErrRollbackOverrun = errors.New("rollback overrun")

type rollbackComponent interface {
	name() string
	has(entry *donburi.Entry) bool
	save(entry *donburi.Entry) any
	load(entry *donburi.Entry, v any)
}

type typedComponent[T any] struct {
	ctype *donburi.ComponentType[T]
}

func (c typedComponent[T]) name() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

func (c typedComponent[T]) has(entry *donburi.Entry) bool {
	return entry.HasComponent(c.ctype)
}

func (c typedComponent[T]) save(entry *donburi.Entry) any {
	return *c.ctype.Get(entry)
}

func (c typedComponent[T]) load(entry *donburi.Entry, v any) {
	value := v.(T)
	c.ctype.Set(entry, &value)
}

// Registry snapshots and restores the registered components of enrolled
// entities.
//
// Only registered components take part. Any other state that influences the
// simulation breaks determinism under rollback and the Registry cannot detect
// it.
type Registry struct {
	world      donburi.World
	components []rollbackComponent
	entities   map[RollbackID]donburi.Entity
	ids        []RollbackID
	enrolledAt map[RollbackID]input.Frame
	nextID     RollbackID
	head       input.Frame
	states     *StateBuffer
}

// NewRegistry retains snapshots for the last window frames.
func NewRegistry(w donburi.World, window int) *Registry {
	return &Registry{
		world:      w,
		entities:   make(map[RollbackID]donburi.Entity),
		enrolledAt: make(map[RollbackID]input.Frame),
		nextID:     1,
		head:       input.NilFrame,
		states:     NewStateBuffer(window),
	}
}

// RegisterComponent enrolls a component type for snapshot and restore.
// Values are copied by value, so T must be fixed-size: no pointers, slices or
// maps that a copy would alias.
func RegisterComponent[T any](r *Registry, ctype *donburi.ComponentType[T]) {
	var zero T
	if binary.Size(zero) < 0 {
		panic(fmt.Sprintf("rollback component %T is not fixed-size", zero))
	}
	r.components = append(r.components, typedComponent[T]{ctype: ctype})
}

// Register enrolls entity and returns its rollback identity. Registering an
// enrolled entity returns the existing identity.
func (r *Registry) Register(entity donburi.Entity) RollbackID {
	entry := r.world.Entry(entity)
	if entry.HasComponent(Rollback) {
		id := *Rollback.Get(entry)
		if _, ok := r.entities[id]; ok {
			return id
		}
	}

	id := r.nextID
	r.nextID++
	if entry.HasComponent(Rollback) {
		Rollback.Set(entry, &id)
	} else {
		donburi.Add(entry, Rollback, &id)
	}
	r.entities[id] = entity
	i := sort.Search(len(r.ids), func(i int) bool { return r.ids[i] >= id })
	r.ids = append(r.ids, 0)
	copy(r.ids[i+1:], r.ids[i:])
	r.ids[i] = id

	// An entity created during frame head joins head's snapshot, so a
	// rollback to head finds it as it was created.
	r.enrolledAt[id] = r.head + 1
	if state, ok := r.states.Get(r.head); ok {
		state.insert(r.capture(id, entry))
		r.enrolledAt[id] = r.head
	}
	return id
}

func (r *Registry) capture(id RollbackID, entry *donburi.Entry) entityState {
	values := make([]any, len(r.components))
	for i, c := range r.components {
		if c.has(entry) {
			values[i] = c.save(entry)
		}
	}
	return entityState{ID: id, Values: values}
}

func (r *Registry) load(entry *donburi.Entry, saved entityState) {
	for i, c := range r.components {
		if saved.Values[i] == nil || !c.has(entry) {
			continue
		}
		c.load(entry, saved.Values[i])
	}
}

// Active reports whether entity takes part in frame. Entities enrolled after
// frame sit out until their enrollment frame comes round again. Entities the
// registry does not know are always active.
func (r *Registry) Active(entity donburi.Entity, frame input.Frame) bool {
	id, ok := r.idOf(entity)
	if !ok {
		return true
	}
	return r.enrolledAt[id] <= frame
}

// Unregister drops entity and its retained snapshots. Call it before the
// entity is removed from the world.
func (r *Registry) Unregister(entity donburi.Entity) {
	id, ok := r.idOf(entity)
	if !ok {
		return
	}
	delete(r.entities, id)
	delete(r.enrolledAt, id)
	for i, v := range r.ids {
		if v == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
	r.states.Drop(id)
}

func (r *Registry) idOf(entity donburi.Entity) (RollbackID, bool) {
	if r.world.Valid(entity) {
		entry := r.world.Entry(entity)
		if entry.HasComponent(Rollback) {
			id := *Rollback.Get(entry)
			if r.entities[id] == entity {
				return id, true
			}
		}
	}
	for id, e := range r.entities {
		if e == entity {
			return id, true
		}
	}
	return 0, false
}

// Contains reports whether id is currently enrolled.
func (r *Registry) Contains(id RollbackID) bool {
	_, ok := r.entities[id]
	return ok
}

// Len is the number of enrolled entities.
func (r *Registry) Len() int {
	return len(r.ids)
}

// Window is the number of frames retained.
func (r *Registry) Window() int {
	return r.states.Capacity()
}

// Snapshot copies the registered components of every enrolled entity into the
// slot for frame, replacing whatever the slot held.
func (r *Registry) Snapshot(frame input.Frame) {
	entities := make([]entityState, 0, len(r.ids))
	for _, id := range r.ids {
		entity := r.entities[id]
		if r.enrolledAt[id] > frame || !r.world.Valid(entity) {
			continue
		}
		entities = append(entities, r.capture(id, r.world.Entry(entity)))
	}
	r.states.Put(frame, entities)
	r.head = frame
}

// Restore overwrites the live components of enrolled entities with the values
// stored for frame. Entities enrolled after frame are put back to the state
// they were enrolled with and stay inactive until then. Entities no longer
// enrolled are not brought back.
func (r *Registry) Restore(frame input.Frame) error {
	state, ok := r.states.Get(frame)
	if !ok {
		return fmt.Errorf("%w: frame %d not retained (oldest %d, newest %d)",
			ErrRollbackOverrun, frame, r.states.Oldest(), r.states.Newest())
	}
	for _, id := range r.ids {
		entity := r.entities[id]
		if !r.world.Valid(entity) {
			continue
		}
		if enrolled := r.enrolledAt[id]; enrolled > frame {
			if later, ok := r.states.Get(enrolled); ok {
				if saved, ok := later.find(id); ok {
					r.load(r.world.Entry(entity), saved)
				}
			}
			continue
		}
		saved, ok := state.find(id)
		if !ok {
			return fmt.Errorf("%w: entity %d missing from frame %d", ErrRollbackOverrun, id, frame)
		}
		r.load(r.world.Entry(entity), saved)
	}
	r.head = frame
	return nil
}

// Retained reports whether frame is still held in the ring.
func (r *Registry) Retained(frame input.Frame) bool {
	_, ok := r.states.Get(frame)
	return ok
}

// Entities lists the identities stored for frame in ascending order.
func (r *Registry) Entities(frame input.Frame) []RollbackID {
	state, ok := r.states.Get(frame)
	if !ok {
		return nil
	}
	ids := make([]RollbackID, 0, len(state.Entities))
	for _, e := range state.Entities {
		ids = append(ids, e.ID)
	}
	return ids
}

// Checksum hashes the registered state stored for frame.
func (r *Registry) Checksum(frame input.Frame) (uint64, error) {
	state, ok := r.states.Get(frame)
	if !ok {
		return 0, fmt.Errorf("%w: frame %d not retained", ErrRollbackOverrun, frame)
	}
	h := xxhash.New()
	for _, e := range state.Entities {
		if err := binary.Write(h, binary.LittleEndian, uint32(e.ID)); err != nil {
			return 0, err
		}
		for i, v := range e.Values {
			if v == nil {
				h.Write([]byte{0})
				continue
			}
			h.Write([]byte{1})
			if err := binary.Write(h, binary.LittleEndian, v); err != nil {
				return 0, fmt.Errorf("checksum %s: %w", r.components[i].name(), err)
			}
		}
	}
	return h.Sum64(), nil
}

// Reset releases every snapshot and enrollment.
func (r *Registry) Reset() {
	r.states.Clear()
	r.entities = make(map[RollbackID]donburi.Entity)
	r.enrolledAt = make(map[RollbackID]input.Frame)
	r.ids = nil
	r.head = input.NilFrame
}
