package world

import (
	"sort"

	"netplay/input"
)

// entityState is one entity's registered component values at a frame. Values
// are indexed like Registry.components; nil means the entity lacked that
// component.
type entityState struct {
	ID     RollbackID
	Values []any
}

type frameState struct {
	Frame    input.Frame
	Entities []entityState // ascending ID
}

func (f *frameState) find(id RollbackID) (entityState, bool) {
	i := sort.Search(len(f.Entities), func(i int) bool { return f.Entities[i].ID >= id })
	if i < len(f.Entities) && f.Entities[i].ID == id {
		return f.Entities[i], true
	}
	return entityState{}, false
}

// insert adds e in ID order, replacing an existing entry for the same ID.
func (f *frameState) insert(e entityState) {
	i := sort.Search(len(f.Entities), func(i int) bool { return f.Entities[i].ID >= e.ID })
	if i < len(f.Entities) && f.Entities[i].ID == e.ID {
		f.Entities[i] = e
		return
	}
	entities := make([]entityState, 0, len(f.Entities)+1)
	entities = append(entities, f.Entities[:i]...)
	entities = append(entities, e)
	f.Entities = append(entities, f.Entities[i:]...)
}

// StateBuffer is a ring of frame states indexed by frame number. A slot is
// overwritten once the frame that maps onto it comes around again.
type StateBuffer struct {
	states []frameState
	newest input.Frame
}

func newRingBuffer(maxCapacity int) []frameState {
	states := make([]frameState, maxCapacity)
	for i := range states {
		states[i].Frame = input.NilFrame
	}
	return states
}

func NewStateBuffer(maxCapacity int) *StateBuffer {
	if maxCapacity < 1 {
		maxCapacity = 1
	}
	return &StateBuffer{
		states: newRingBuffer(maxCapacity),
		newest: input.NilFrame,
	}
}

func (s *StateBuffer) Capacity() int {
	return len(s.states)
}

func (s *StateBuffer) index(frame input.Frame) int {
	return int(frame) % len(s.states)
}

// Put stores the state of frame, evicting whatever frame shared its slot.
func (s *StateBuffer) Put(frame input.Frame, entities []entityState) {
	s.states[s.index(frame)] = frameState{
		Frame:    frame,
		Entities: entities,
	}
	s.newest = frame
}

// Get returns the state stored for frame, if it is still retained.
func (s *StateBuffer) Get(frame input.Frame) (*frameState, bool) {
	if frame < 0 {
		return nil, false
	}
	state := &s.states[s.index(frame)]
	if state.Frame != frame {
		return nil, false
	}
	return state, true
}

// Newest is the frame most recently stored.
func (s *StateBuffer) Newest() input.Frame {
	return s.newest
}

// Oldest is the oldest frame still retained, or NilFrame if empty.
func (s *StateBuffer) Oldest() input.Frame {
	oldest := input.NilFrame
	for _, state := range s.states {
		if state.Frame == input.NilFrame {
			continue
		}
		if oldest == input.NilFrame || state.Frame < oldest {
			oldest = state.Frame
		}
	}
	return oldest
}

// Drop removes id from every retained frame.
func (s *StateBuffer) Drop(id RollbackID) {
	for i := range s.states {
		entities := s.states[i].Entities
		for j := range entities {
			if entities[j].ID == id {
				s.states[i].Entities = append(entities[:j:j], entities[j+1:]...)
				break
			}
		}
	}
}

func (s *StateBuffer) Clear() {
	s.states = newRingBuffer(len(s.states))
	s.newest = input.NilFrame
}
