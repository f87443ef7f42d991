// Package signaling finds the other peers of a match through a room on a
// websocket rendezvous server, then relays their traffic.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"netplay/pb"
	"netplay/utils"
)

// ErrSignalingUnavailable means the rendezvous server could not be reached.
// The client keeps retrying.
var ErrSignalingUnavailable = errors.New("signaling unavailable")

// ErrClosed is returned by Send after the connection is gone.
var ErrClosed = errors.New("signaling connection closed")

// PeerID is the identity the server assigned to a peer.
type PeerID string

// Peer is a member of the room. Seq orders peers by join time.
type Peer struct {
	ID  PeerID
	Seq uint64
}

type Options struct {
	// RedialTicks is how many Poll calls to wait after a failed dial.
	RedialTicks int
	DialTimeout time.Duration
	// Outbox is the number of relay frames that may be queued for sending.
	Outbox int
	Logger utils.Logger
}

func (o Options) withDefaults() Options {
	if o.RedialTicks <= 0 {
		o.RedialTicks = 60
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.Outbox <= 0 {
		o.Outbox = 256
	}
	o.Logger = utils.LoggerOr(o.Logger)
	return o
}

type eventKind int

const (
	eventDialFailed eventKind = iota
	eventConnected
	eventMessage
	eventClosed
)

type event struct {
	kind eventKind
	err  error
	msg  *pb.Envelope
}

// Client is driven by Poll from a single goroutine. Network I/O happens on
// background goroutines that hand decoded messages to Poll over a channel.
type Client struct {
	url  string
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	outbox chan []byte

	dialing   bool
	connected bool
	lost      bool
	backoff   int
	lastErr   error

	self   Peer
	room   string
	peers  map[PeerID]uint64
	inbox  []Datagram
	gone   []PeerID
	closed bool
}

// NewClient starts joining roomURL in the background and returns immediately.
func NewClient(roomURL string, opts Options) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	opts = opts.withDefaults()
	c := &Client{
		url:    roomURL,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan event, 256),
		outbox: make(chan []byte, opts.Outbox),
		peers:  make(map[PeerID]uint64),
	}
	c.dial()
	return c
}

func (c *Client) push(e event) {
	select {
	case c.events <- e:
	case <-c.ctx.Done():
	}
}

func (c *Client) dial() {
	c.dialing = true
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.DialTimeout)
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		cancel()
		if err != nil {
			c.push(event{kind: eventDialFailed, err: err})
			return
		}
		c.push(event{kind: eventConnected})
		c.serve(conn)
	}()
}

func (c *Client) serve(conn *websocket.Conn) {
	g, ctx := errgroup.WithContext(c.ctx)
	g.Go(func() error {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return err
			}
			var msg pb.Envelope
			if err := msg.Unmarshal(data); err != nil {
				c.opts.Logger.Printf("signaling: dropping message: %v", err)
				continue
			}
			c.push(event{kind: eventMessage, msg: &msg})
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case data := <-c.outbox:
				if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
					return err
				}
			}
		}
	})
	err := g.Wait()
	conn.Close(websocket.StatusNormalClosure, "")
	c.push(event{kind: eventClosed, err: err})
}

// Poll applies everything the network goroutines produced since the last call
// and redials when due. It never blocks.
func (c *Client) Poll() {
	if c.closed {
		return
	}
	for {
		select {
		case e := <-c.events:
			c.apply(e)
			continue
		default:
		}
		break
	}

	if c.dialing || c.connected || c.lost {
		return
	}
	if c.backoff > 0 {
		c.backoff--
		return
	}
	c.dial()
}

func (c *Client) apply(e event) {
	switch e.kind {
	case eventDialFailed:
		c.dialing = false
		c.backoff = c.opts.RedialTicks
		c.lastErr = fmt.Errorf("%w: %v", ErrSignalingUnavailable, e.err)
		c.opts.Logger.Printf("signaling: %v, retrying", c.lastErr)

	case eventConnected:
		c.dialing = false
		c.connected = true
		c.lastErr = nil

	case eventClosed:
		c.connected = false
		if c.self.ID != "" {
			// The room and its handles are gone with the connection.
			c.lost = true
			c.lastErr = fmt.Errorf("%w: %v", ErrClosed, e.err)
		} else {
			c.backoff = c.opts.RedialTicks
			c.lastErr = fmt.Errorf("%w: %v", ErrSignalingUnavailable, e.err)
		}
		c.opts.Logger.Printf("signaling: connection closed: %v", e.err)

	case eventMessage:
		c.onMessage(e.msg)
	}
}

func (c *Client) onMessage(msg *pb.Envelope) {
	switch {
	case msg.Welcome != nil:
		c.self = Peer{ID: PeerID(msg.Welcome.Peer), Seq: msg.Welcome.Seq}
		c.room = msg.Welcome.Room
		c.opts.Logger.Printf("signaling: joined room %q as %s (seq %d)", c.room, c.self.ID, c.self.Seq)
	case msg.PeerJoined != nil:
		c.peers[PeerID(msg.PeerJoined.Peer)] = msg.PeerJoined.Seq
	case msg.PeerLeft != nil:
		id := PeerID(msg.PeerLeft.Peer)
		if _, ok := c.peers[id]; ok {
			delete(c.peers, id)
			c.gone = append(c.gone, id)
		}
	case msg.Relay != nil:
		c.inbox = append(c.inbox, Datagram{From: PeerID(msg.Relay.Peer), Payload: msg.Relay.Payload})
	}
}

// LastError is the most recent connection error, or nil once connected.
func (c *Client) LastError() error {
	return c.lastErr
}

// ID is the local identity, empty until the server has welcomed us.
func (c *Client) ID() PeerID {
	return c.self.ID
}

// Players returns every member of the room, the local one included, in join
// order. It reports false until exactly n members are known.
func (c *Client) Players(n int) ([]Peer, bool) {
	if c.self.ID == "" || c.lost || len(c.peers)+1 != n {
		return nil, false
	}
	players := make([]Peer, 0, n)
	players = append(players, c.self)
	for id, seq := range c.peers {
		players = append(players, Peer{ID: id, Seq: seq})
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Seq != players[j].Seq {
			return players[i].Seq < players[j].Seq
		}
		return players[i].ID < players[j].ID
	})
	return players, true
}

// Send queues payload for delivery to peer through the server.
func (c *Client) Send(to PeerID, payload []byte) error {
	if c.closed || c.lost || !c.connected {
		return ErrClosed
	}
	msg := pb.Envelope{Relay: &pb.Relay{Peer: string(to), Payload: payload}}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	select {
	case c.outbox <- data:
		return nil
	default:
		return fmt.Errorf("signaling: outbox full sending to %s", to)
	}
}

// Close stops the network goroutines. Queued messages are discarded.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}
