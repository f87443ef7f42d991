// Package session keeps the input of every player of a peer-to-peer match in
// agreement: it sends local input, receives remote input and predicts what
// has not arrived yet.
package session

import (
	"errors"
	"fmt"

	"netplay/input"
	"netplay/signaling"
	"netplay/utils"
)

var (
	ErrPeerAddFailed      = errors.New("peer add failed")
	ErrSessionStartFailed = errors.New("session start failed")
)

// Channel carries packets between peers. Delivery and ordering are assumed.
type Channel interface {
	Send(to signaling.PeerID, payload []byte) error
	// Receive returns the next datagram without blocking.
	Receive() (signaling.Datagram, bool)
	// Departed returns the peers that left since the last call.
	Departed() []signaling.PeerID
	// Err is non-nil once the channel can no longer deliver.
	Err() error
	Close() error
}

type PlayerType int

const (
	Local PlayerType = iota
	Remote
)

type Player struct {
	Type PlayerType
	Peer signaling.PeerID
}

func LocalPlayer() Player {
	return Player{Type: Local}
}

func RemotePlayer(peer signaling.PeerID) Player {
	return Player{Type: Remote, Peer: peer}
}

const (
	defaultNumPlayers    = 2
	defaultInputDelay    = 2
	defaultMaxPrediction = 8
)

type Builder struct {
	numPlayers       int
	inputDelay       int
	maxPrediction    int
	checksumInterval int
	players          map[input.Handle]Player
	logger           utils.Logger
}

func NewBuilder() *Builder {
	return &Builder{
		numPlayers:    defaultNumPlayers,
		inputDelay:    defaultInputDelay,
		maxPrediction: defaultMaxPrediction,
		players:       make(map[input.Handle]Player),
	}
}

func (b *Builder) WithNumPlayers(n int) *Builder {
	b.numPlayers = n
	return b
}

// WithInputDelay sets how many frames after sampling local input takes effect.
func (b *Builder) WithInputDelay(frames int) *Builder {
	b.inputDelay = frames
	return b
}

// WithMaxPrediction sets how many frames the session may run ahead of the
// newest confirmed frame.
func (b *Builder) WithMaxPrediction(frames int) *Builder {
	b.maxPrediction = frames
	return b
}

// WithChecksumInterval makes peers exchange state checksums every n confirmed
// frames. Zero disables the exchange.
func (b *Builder) WithChecksumInterval(frames int) *Builder {
	b.checksumInterval = frames
	return b
}

func (b *Builder) WithLogger(l utils.Logger) *Builder {
	b.logger = l
	return b
}

// AddPlayer assigns handle to player.
func (b *Builder) AddPlayer(player Player, handle input.Handle) error {
	if int(handle) >= b.numPlayers {
		return fmt.Errorf("%w: handle %d out of range for %d players", ErrPeerAddFailed, handle, b.numPlayers)
	}
	if _, ok := b.players[handle]; ok {
		return fmt.Errorf("%w: handle %d already assigned", ErrPeerAddFailed, handle)
	}
	if player.Type == Remote {
		if player.Peer == "" {
			return fmt.Errorf("%w: remote player without a peer", ErrPeerAddFailed)
		}
		for h, p := range b.players {
			if p.Type == Remote && p.Peer == player.Peer {
				return fmt.Errorf("%w: peer %s already has handle %d", ErrPeerAddFailed, player.Peer, h)
			}
		}
	}
	b.players[handle] = player
	return nil
}

// AddPlayers assigns handles in join order, marking self as the local player.
func (b *Builder) AddPlayers(peers []signaling.Peer, self signaling.PeerID) error {
	for i, p := range peers {
		player := RemotePlayer(p.ID)
		if p.ID == self {
			player = LocalPlayer()
		}
		if err := b.AddPlayer(player, input.Handle(i)); err != nil {
			return err
		}
	}
	return nil
}

// StartP2P starts a session over ch.
func (b *Builder) StartP2P(ch Channel) (*PeerSession, error) {
	switch {
	case b.numPlayers < 1 || b.numPlayers > 255:
		return nil, fmt.Errorf("%w: %d players", ErrSessionStartFailed, b.numPlayers)
	case b.inputDelay < 0 || b.maxPrediction < 1:
		return nil, fmt.Errorf("%w: input delay %d, max prediction %d", ErrSessionStartFailed, b.inputDelay, b.maxPrediction)
	case b.inputDelay+b.maxPrediction >= queueLength/2:
		return nil, fmt.Errorf("%w: input delay plus max prediction must stay under %d", ErrSessionStartFailed, queueLength/2)
	case len(b.players) != b.numPlayers:
		return nil, fmt.Errorf("%w: %d of %d players added", ErrSessionStartFailed, len(b.players), b.numPlayers)
	case ch == nil:
		return nil, fmt.Errorf("%w: no channel", ErrSessionStartFailed)
	}
	for h := 0; h < b.numPlayers; h++ {
		if _, ok := b.players[input.Handle(h)]; !ok {
			return nil, fmt.Errorf("%w: handle %d unassigned", ErrSessionStartFailed, h)
		}
	}
	if err := ch.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionStartFailed, err)
	}

	s := newPeerSession(b, ch)
	if len(s.local) == 0 {
		return nil, fmt.Errorf("%w: no local player", ErrSessionStartFailed)
	}
	return s, nil
}
