package session

import (
	"errors"

	"netplay/signaling"
)

var errPipeClosed = errors.New("pipe closed")

type pipeMessage struct {
	from      signaling.PeerID
	payload   []byte
	deliverAt int
}

// Pipe is an in-memory network for tests. Time only moves when Step is called,
// so latency and held links are exact.
type Pipe struct {
	clock   int
	latency int
	ends    map[signaling.PeerID]*PipeEnd
}

func NewPipe() *Pipe {
	return &Pipe{ends: make(map[signaling.PeerID]*PipeEnd)}
}

// End returns the endpoint for peer, creating it on first use.
func (p *Pipe) End(peer signaling.PeerID) *PipeEnd {
	if e, ok := p.ends[peer]; ok {
		return e
	}
	e := &PipeEnd{pipe: p, self: peer}
	p.ends[peer] = e
	return e
}

// SetLatency delays messages sent from now on by ticks Steps.
func (p *Pipe) SetLatency(ticks int) {
	p.latency = ticks
}

func (p *Pipe) Step() {
	p.clock++
}

// Hold stops delivery to peer until released. Messages keep queueing.
func (p *Pipe) Hold(peer signaling.PeerID, held bool) {
	p.End(peer).held = held
}

// Drop disconnects peer: its end fails and every other end sees it depart.
func (p *Pipe) Drop(peer signaling.PeerID) {
	e := p.End(peer)
	if e.closed {
		return
	}
	e.closed = true
	e.queue = nil
	for id, other := range p.ends {
		if id != peer {
			other.departed = append(other.departed, peer)
		}
	}
}

// PipeEnd is one peer's view of a Pipe.
type PipeEnd struct {
	pipe     *Pipe
	self     signaling.PeerID
	queue    []pipeMessage
	departed []signaling.PeerID
	held     bool
	closed   bool
	// Sent counts datagrams sent from this end.
	Sent int
}

func (e *PipeEnd) Send(to signaling.PeerID, payload []byte) error {
	if e.closed {
		return errPipeClosed
	}
	dst, ok := e.pipe.ends[to]
	if !ok || dst.closed {
		return nil
	}
	e.Sent++
	dst.queue = append(dst.queue, pipeMessage{
		from:      e.self,
		payload:   append([]byte(nil), payload...),
		deliverAt: e.pipe.clock + e.pipe.latency,
	})
	return nil
}

func (e *PipeEnd) Receive() (signaling.Datagram, bool) {
	if e.closed || e.held || len(e.queue) == 0 || e.queue[0].deliverAt > e.pipe.clock {
		return signaling.Datagram{}, false
	}
	m := e.queue[0]
	e.queue = e.queue[1:]
	return signaling.Datagram{From: m.from, Payload: m.payload}, true
}

func (e *PipeEnd) Departed() []signaling.PeerID {
	gone := e.departed
	e.departed = nil
	return gone
}

func (e *PipeEnd) Err() error {
	if e.closed {
		return errPipeClosed
	}
	return nil
}

// Close leaves the pipe. Peers see the departure on their next Poll.
func (e *PipeEnd) Close() error {
	e.pipe.Drop(e.self)
	return nil
}

// Pending is the number of messages waiting to be received.
func (e *PipeEnd) Pending() int {
	return len(e.queue)
}
