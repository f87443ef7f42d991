package session

import (
	"errors"
	"fmt"

	"netplay/input"
	"netplay/signaling"
	"netplay/utils"
)

// resendWindow caps how many unacknowledged frames are repeated per packet.
const resendWindow = 32

type remotePeer struct {
	id      signaling.PeerID
	handles []input.Handle
	// acked is the newest local frame the peer confirmed receiving.
	acked input.Frame
	heard bool
	gone  bool
	sums  map[input.Frame]uint64
}

// PeerSession is one match. It is not safe for concurrent use; the frame
// driver owns it.
type PeerSession struct {
	numPlayers       int
	inputDelay       int
	maxPrediction    int
	checksumInterval int
	logger           utils.Logger

	ch      Channel
	local   []input.Handle
	remotes []*remotePeer
	byPeer  map[signaling.PeerID]*remotePeer
	owner   map[input.Handle]*remotePeer
	queues  []*inputQueue

	confirmed    input.Frame
	localSums    map[input.Frame]uint64
	events       []Event
	synchronized bool
	closed       bool
}

func newPeerSession(b *Builder, ch Channel) *PeerSession {
	s := &PeerSession{
		numPlayers:       b.numPlayers,
		inputDelay:       b.inputDelay,
		maxPrediction:    b.maxPrediction,
		checksumInterval: b.checksumInterval,
		logger:           utils.LoggerOr(b.logger),
		ch:               ch,
		byPeer:           make(map[signaling.PeerID]*remotePeer),
		owner:            make(map[input.Handle]*remotePeer),
		localSums:        make(map[input.Frame]uint64),
		confirmed:        input.Frame(b.inputDelay) - 1,
	}
	for h := 0; h < b.numPlayers; h++ {
		handle := input.Handle(h)
		s.queues = append(s.queues, newInputQueue(handle, b.inputDelay))
		player := b.players[handle]
		if player.Type == Local {
			s.local = append(s.local, handle)
			continue
		}
		peer, ok := s.byPeer[player.Peer]
		if !ok {
			peer = &remotePeer{
				id:    player.Peer,
				acked: input.NilFrame,
				sums:  make(map[input.Frame]uint64),
			}
			s.byPeer[player.Peer] = peer
			s.remotes = append(s.remotes, peer)
		}
		peer.handles = append(peer.handles, handle)
		s.owner[handle] = peer
	}
	if len(s.remotes) == 0 {
		s.synchronized = true
		s.events = append(s.events, Event{Kind: EventSynchronized})
	}
	return s
}

func (s *PeerSession) NumPlayers() int { return s.numPlayers }

func (s *PeerSession) InputDelay() int { return s.inputDelay }

func (s *PeerSession) MaxPrediction() int { return s.maxPrediction }

// LocalHandles are the handles driven by this peer, in ascending order.
func (s *PeerSession) LocalHandles() []input.Handle {
	return append([]input.Handle(nil), s.local...)
}

// RemotePeers returns the peer ids of the other players in handle order.
func (s *PeerSession) RemotePeers() []signaling.PeerID {
	ids := make([]signaling.PeerID, 0, len(s.remotes))
	for _, p := range s.remotes {
		ids = append(ids, p.id)
	}
	return ids
}

// ConfirmedFrame is the newest frame for which every handle's record is final.
// It never decreases.
func (s *PeerSession) ConfirmedFrame() input.Frame {
	return s.confirmed
}

// Closed reports whether the session ended, locally or by a peer leaving.
func (s *PeerSession) Closed() bool {
	return s.closed
}

func (s *PeerSession) isLocal(h input.Handle) bool {
	_, remote := s.owner[h]
	return int(h) < s.numPlayers && !remote
}

// AddLocalInput queues a local record sampled at r.Frame. It takes effect
// InputDelay frames later. Adding a frame twice keeps the first record.
func (s *PeerSession) AddLocalInput(r input.Record) error {
	if s.closed {
		return errors.New("session closed")
	}
	if !s.isLocal(r.Handle) {
		return fmt.Errorf("handle %d is not local", r.Handle)
	}
	if r.Frame < 0 {
		return fmt.Errorf("negative frame %d", r.Frame)
	}
	r.Frame += input.Frame(s.inputDelay)
	s.queues[r.Handle].confirm(r)
	s.updateConfirmed()
	return nil
}

// Poll sends pending local input and applies everything received since the
// last call. It never blocks.
func (s *PeerSession) Poll() {
	if s.closed {
		return
	}
	for {
		d, ok := s.ch.Receive()
		if !ok {
			break
		}
		s.receive(d)
	}
	for _, id := range s.ch.Departed() {
		if peer, ok := s.byPeer[id]; ok {
			s.disconnect(peer)
		}
	}
	if err := s.ch.Err(); err != nil && !s.closed {
		s.logger.Printf("session: channel failed: %v", err)
		for _, peer := range s.remotes {
			s.disconnect(peer)
		}
	}
	if s.closed {
		return
	}
	s.updateConfirmed()
	s.sendInput()

	if !s.synchronized {
		heard := true
		for _, p := range s.remotes {
			heard = heard && p.heard
		}
		if heard {
			s.synchronized = true
			s.events = append(s.events, Event{Kind: EventSynchronized})
		}
	}
}

func (s *PeerSession) receive(d signaling.Datagram) {
	peer, ok := s.byPeer[d.From]
	if !ok || peer.gone {
		return
	}
	packet, bad, err := decodePacket(d.Payload)
	if err != nil {
		s.logger.Printf("session: from %s: %v", d.From, err)
		return
	}
	for _, err := range bad {
		s.logger.Printf("session: from %s: dropped record: %v", d.From, err)
	}
	peer.heard = true

	switch p := packet.(type) {
	case inputPacket:
		if p.Ack > peer.acked {
			peer.acked = p.Ack
		}
		for _, r := range p.Records {
			if s.owner[r.Handle] != peer {
				s.logger.Printf("session: %s sent a record for handle %d it does not own", d.From, r.Handle)
				continue
			}
			s.queues[r.Handle].confirm(r)
		}
	case checksumPacket:
		peer.sums[p.Frame] = p.Sum
		s.compareChecksum(peer, p.Frame)
	case quitPacket:
		s.disconnect(peer)
	}
}

func (s *PeerSession) disconnect(peer *remotePeer) {
	if peer.gone {
		return
	}
	peer.gone = true
	s.logger.Printf("session: %s disconnected", peer.id)
	s.events = append(s.events, Event{Kind: EventDisconnected, Peer: peer.id})
	s.closed = true
}

func (s *PeerSession) updateConfirmed() {
	confirmed := s.queues[0].last
	for _, q := range s.queues[1:] {
		if q.last < confirmed {
			confirmed = q.last
		}
	}
	if confirmed > s.confirmed {
		s.confirmed = confirmed
	}
}

// received is the newest frame up to which we hold all of peer's records.
func (s *PeerSession) received(peer *remotePeer) input.Frame {
	ack := s.queues[peer.handles[0]].last
	for _, h := range peer.handles[1:] {
		if q := s.queues[h].last; q < ack {
			ack = q
		}
	}
	return ack
}

func (s *PeerSession) sendInput() {
	for _, peer := range s.remotes {
		var records []input.Record
		for _, h := range s.local {
			q := s.queues[h]
			from := peer.acked + 1
			if q.last-resendWindow+1 > from {
				from = q.last - resendWindow + 1
			}
			for f := from; f <= q.last; f++ {
				if r, ok := q.confirmed(f); ok {
					records = append(records, r)
				}
			}
		}
		p := inputPacket{Ack: s.received(peer), Records: records}
		if err := s.ch.Send(peer.id, p.appendTo(nil)); err != nil {
			s.logger.Printf("session: send to %s: %v", peer.id, err)
		}
	}
}

// InputsFor returns every handle's record for frame in handle order, using
// predictions where remote input has not arrived.
func (s *PeerSession) InputsFor(frame input.Frame) []input.Record {
	records := make([]input.Record, len(s.queues))
	for i, q := range s.queues {
		records[i], _ = q.get(frame)
	}
	return records
}

// Confirmed reports whether frame's records are all final.
func (s *PeerSession) Confirmed(frame input.Frame) bool {
	return frame <= s.confirmed
}

// FirstIncorrectFrame is the earliest frame simulated with a prediction that
// turned out wrong, or NilFrame.
func (s *PeerSession) FirstIncorrectFrame() input.Frame {
	first := input.NilFrame
	for _, q := range s.queues {
		if q.firstIncorrect != input.NilFrame && (first == input.NilFrame || q.firstIncorrect < first) {
			first = q.firstIncorrect
		}
	}
	return first
}

// ResetPrediction clears the incorrect-frame marker once the driver has
// resimulated.
func (s *PeerSession) ResetPrediction() {
	for _, q := range s.queues {
		q.resetPrediction()
	}
}

// SendChecksum shares the checksum of the state at the start of a confirmed
// frame with every peer.
func (s *PeerSession) SendChecksum(frame input.Frame, sum uint64) {
	if s.closed {
		return
	}
	s.localSums[frame] = sum
	p := checksumPacket{Frame: frame, Sum: sum}
	for _, peer := range s.remotes {
		if err := s.ch.Send(peer.id, p.appendTo(nil)); err != nil {
			s.logger.Printf("session: checksum to %s: %v", peer.id, err)
		}
		s.compareChecksum(peer, frame)
	}
	s.pruneChecksums()
}

// ChecksumInterval is how often, in frames, checksums are exchanged. Zero
// means never.
func (s *PeerSession) ChecksumInterval() int {
	return s.checksumInterval
}

func (s *PeerSession) compareChecksum(peer *remotePeer, frame input.Frame) {
	local, ok := s.localSums[frame]
	if !ok {
		return
	}
	remote, ok := peer.sums[frame]
	if !ok {
		return
	}
	delete(peer.sums, frame)
	if local != remote {
		s.logger.Printf("session: desync with %s at frame %d", peer.id, frame)
		s.events = append(s.events, Event{Kind: EventDesync, Peer: peer.id, Frame: frame, Local: local, Remote: remote})
	}
}

// pruneChecksums forgets sums far older than the confirmed frame.
func (s *PeerSession) pruneChecksums() {
	horizon := s.confirmed - queueLength
	for f := range s.localSums {
		if f < horizon {
			delete(s.localSums, f)
		}
	}
	for _, peer := range s.remotes {
		for f := range peer.sums {
			if f < horizon {
				delete(peer.sums, f)
			}
		}
	}
}

// Events drains the events raised since the last call.
func (s *PeerSession) Events() []Event {
	events := s.events
	s.events = nil
	return events
}

// Close tells every peer we are leaving and releases the channel.
func (s *PeerSession) Close() error {
	if s.ch == nil {
		return nil
	}
	if !s.closed {
		for _, peer := range s.remotes {
			if !peer.gone {
				s.ch.Send(peer.id, quitPacket{}.appendTo(nil))
			}
		}
	}
	s.closed = true
	err := s.ch.Close()
	s.ch = nil
	return err
}

// Peers returns the handle table as peer ids; local handles map to self.
func (s *PeerSession) Peers(self signaling.PeerID) map[input.Handle]signaling.PeerID {
	peers := make(map[input.Handle]signaling.PeerID, s.numPlayers)
	for _, h := range s.local {
		peers[h] = self
	}
	for h, p := range s.owner {
		peers[h] = p.id
	}
	return peers
}

