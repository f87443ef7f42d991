package session

import (
	"fmt"

	"netplay/input"
	"netplay/signaling"
)

type EventKind int

const (
	// EventSynchronized fires once every remote peer has been heard from.
	EventSynchronized EventKind = iota
	EventDisconnected
	// EventDesync fires when a peer's checksum for a confirmed frame differs
	// from ours.
	EventDesync
	EventRolledBack
)

type Event struct {
	Kind   EventKind
	Peer   signaling.PeerID
	Frame  input.Frame
	To     input.Frame
	Local  uint64
	Remote uint64
}

func (e Event) String() string {
	switch e.Kind {
	case EventSynchronized:
		return "synchronized"
	case EventDisconnected:
		return fmt.Sprintf("disconnected from %s", e.Peer)
	case EventDesync:
		return fmt.Sprintf("desync with %s at frame %d: %016x != %016x", e.Peer, e.Frame, e.Local, e.Remote)
	case EventRolledBack:
		return fmt.Sprintf("rolled back from %d to %d", e.Frame, e.To)
	}
	return fmt.Sprintf("Event(%d)", int(e.Kind))
}
