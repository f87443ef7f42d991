package input

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Frame is a simulation frame index. Frames start at 0.
type Frame int32

// NilFrame marks "no frame yet".
const NilFrame Frame = -1

// Handle identifies a player within a session, independent of its network identity.
type Handle uint8

// Action is the bitmask of discrete controls carried by a Record.
type Action uint8

const (
	ActionUp Action = 1 << iota
	ActionDown
	ActionLeft
	ActionRight
	ActionJump
	ActionRun

	actionMask = ActionUp | ActionDown | ActionLeft | ActionRight | ActionJump | ActionRun
)

var actionNames = []string{"up", "down", "left", "right", "jump", "run"}

func (a Action) Has(b Action) bool {
	return a&b == b
}

func (a Action) String() string {
	if a == 0 {
		return "none"
	}
	var parts []string
	for i, name := range actionNames {
		if a&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if rest := a &^ actionMask; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// RecordSize is the encoded width of a Record:
// frame u32 (4) + handle u8 (1) + actions u8 (1) + reserved (3) + look 4*f32 (16).
const RecordSize = 25

const (
	offFrame    = 0
	offHandle   = 4
	offActions  = 5
	offReserved = 6
	offLook     = 9
)

// ErrMalformedRecord is returned for wire records with an invalid length or layout.
var ErrMalformedRecord = errors.New("malformed input record")

// Record is one player's input for one frame. A zero Look means the player
// sent no look orientation for the frame.
type Record struct {
	Frame   Frame
	Handle  Handle
	Actions Action
	Look    mgl32.Quat
}

var (
	_ encoding.BinaryMarshaler   = Record{}
	_ encoding.BinaryUnmarshaler = (*Record)(nil)
)

// Blank returns the record used before any input is known.
func Blank(frame Frame, handle Handle) Record {
	return Record{Frame: frame, Handle: handle}
}

// HasLook reports whether the record carries a look orientation.
func (r Record) HasLook() bool {
	return r.Look.W != 0 || r.Look.V != (mgl32.Vec3{})
}

// SameInput compares the input payload bit for bit, ignoring frame and handle.
func (r Record) SameInput(o Record) bool {
	if r.Actions != o.Actions {
		return false
	}
	a, b := r.lookBits(), o.lookBits()
	return a == b
}

func (r Record) lookBits() [4]uint32 {
	return [4]uint32{
		math.Float32bits(r.Look.V[0]),
		math.Float32bits(r.Look.V[1]),
		math.Float32bits(r.Look.V[2]),
		math.Float32bits(r.Look.W),
	}
}

// At returns a copy of r relabelled for another frame.
func (r Record) At(frame Frame) Record {
	r.Frame = frame
	return r
}

func (r Record) AppendBinary(b []byte) []byte {
	var buf [RecordSize]byte
	binary.LittleEndian.PutUint32(buf[offFrame:], uint32(r.Frame))
	buf[offHandle] = byte(r.Handle)
	buf[offActions] = byte(r.Actions)
	bits := r.lookBits()
	for i, v := range bits {
		binary.LittleEndian.PutUint32(buf[offLook+4*i:], v)
	}
	return append(b, buf[:]...)
}

func (r Record) MarshalBinary() ([]byte, error) {
	if r.Frame < 0 {
		return nil, fmt.Errorf("%w: negative frame %d", ErrMalformedRecord, r.Frame)
	}
	if r.Actions&^actionMask != 0 {
		return nil, fmt.Errorf("%w: undefined action bits %s", ErrMalformedRecord, r.Actions)
	}
	return r.AppendBinary(make([]byte, 0, RecordSize)), nil
}

func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedRecord, len(data), RecordSize)
	}
	frame := binary.LittleEndian.Uint32(data[offFrame:])
	if frame > math.MaxInt32 {
		return fmt.Errorf("%w: frame %d out of range", ErrMalformedRecord, frame)
	}
	for _, b := range data[offReserved:offLook] {
		if b != 0 {
			return fmt.Errorf("%w: reserved bytes set", ErrMalformedRecord)
		}
	}
	actions := Action(data[offActions])
	if actions&^actionMask != 0 {
		return fmt.Errorf("%w: undefined action bits %s", ErrMalformedRecord, actions)
	}
	var look [4]float32
	for i := range look {
		v := math.Float32frombits(binary.LittleEndian.Uint32(data[offLook+4*i:]))
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite look component", ErrMalformedRecord)
		}
		look[i] = v
	}
	*r = Record{
		Frame:   Frame(frame),
		Handle:  Handle(data[offHandle]),
		Actions: actions,
		Look:    mgl32.Quat{W: look[3], V: mgl32.Vec3{look[0], look[1], look[2]}},
	}
	return nil
}
