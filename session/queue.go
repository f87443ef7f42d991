package session

import "netplay/input"

// queueLength bounds how far apart the oldest and newest frames a queue
// tracks may be.
const queueLength = 128

type queueSlot struct {
	record    input.Record
	confirmed bool
	predicted bool
	guess     input.Record
}

// inputQueue holds one handle's records. Confirmed records are final.
// Predicted ones repeat the newest confirmed record and are remembered so a
// later confirmation can be checked against them.
type inputQueue struct {
	handle input.Handle
	slots  [queueLength]queueSlot
	frames [queueLength]input.Frame
	// last is the newest frame up to which every record is confirmed.
	last           input.Frame
	newest         input.Frame
	firstIncorrect input.Frame
}

func newInputQueue(handle input.Handle, delay int) *inputQueue {
	q := &inputQueue{
		handle:         handle,
		last:           input.NilFrame,
		newest:         input.NilFrame,
		firstIncorrect: input.NilFrame,
	}
	for i := range q.frames {
		q.frames[i] = input.NilFrame
	}
	for f := 0; f < delay; f++ {
		q.confirm(input.Blank(input.Frame(f), handle))
	}
	return q
}

func (q *inputQueue) slot(frame input.Frame) (*queueSlot, bool) {
	if frame < 0 {
		return nil, false
	}
	i := int(frame) % queueLength
	if q.frames[i] != frame {
		return nil, false
	}
	return &q.slots[i], true
}

func (q *inputQueue) claim(frame input.Frame) *queueSlot {
	i := int(frame) % queueLength
	if q.frames[i] != frame {
		q.frames[i] = frame
		q.slots[i] = queueSlot{}
	}
	return &q.slots[i]
}

// confirm stores the final record for its frame. It reports whether the record
// was new, and records the frame as incorrect if it contradicts a prediction
// already handed out.
func (q *inputQueue) confirm(r input.Record) bool {
	if r.Frame <= q.last || r.Frame > q.last+queueLength-1 {
		return false
	}
	s := q.claim(r.Frame)
	if s.confirmed {
		return false
	}
	s.record = r
	s.confirmed = true
	if s.predicted && !s.guess.SameInput(r) {
		if q.firstIncorrect == input.NilFrame || r.Frame < q.firstIncorrect {
			q.firstIncorrect = r.Frame
		}
	}
	if r.Frame > q.newest {
		q.newest = r.Frame
	}
	for {
		next, ok := q.slot(q.last + 1)
		if !ok || !next.confirmed {
			break
		}
		q.last++
	}
	return true
}

// confirmed returns the final record for frame, if it is known.
func (q *inputQueue) confirmed(frame input.Frame) (input.Record, bool) {
	s, ok := q.slot(frame)
	if !ok || !s.confirmed {
		return input.Record{}, false
	}
	return s.record, true
}

// get returns the record to simulate frame with: the confirmed one, or else a
// prediction that repeats the newest confirmed record.
func (q *inputQueue) get(frame input.Frame) (input.Record, bool) {
	if r, ok := q.confirmed(frame); ok {
		return r, true
	}
	guess := input.Blank(frame, q.handle)
	if last, ok := q.confirmed(q.newest); ok {
		guess = last.At(frame)
	}
	s := q.claim(frame)
	s.predicted = true
	s.guess = guess
	return guess, false
}

func (q *inputQueue) resetPrediction() {
	q.firstIncorrect = input.NilFrame
}
