package signaling

// Datagram is one relayed payload and the peer that sent it.
type Datagram struct {
	From    PeerID
	Payload []byte
}

// RelayChannel carries session traffic over the signaling connection.
type RelayChannel struct {
	c *Client
}

// Channel returns the client's relay. It is only useful once Players reports
// the room is full.
func (c *Client) Channel() *RelayChannel {
	return &RelayChannel{c: c}
}

func (r *RelayChannel) Send(to PeerID, payload []byte) error {
	return r.c.Send(to, payload)
}

// Receive returns the next relayed datagram without blocking.
func (r *RelayChannel) Receive() (Datagram, bool) {
	if len(r.c.inbox) == 0 {
		r.c.Poll()
	}
	if len(r.c.inbox) == 0 {
		return Datagram{}, false
	}
	d := r.c.inbox[0]
	r.c.inbox = r.c.inbox[1:]
	return d, true
}

// Departed returns the peers that left the room since the last call.
func (r *RelayChannel) Departed() []PeerID {
	r.c.Poll()
	gone := r.c.gone
	r.c.gone = nil
	return gone
}

// Err is non-nil once the channel can no longer deliver.
func (r *RelayChannel) Err() error {
	if r.c.closed {
		return ErrClosed
	}
	if r.c.lost {
		return r.c.lastErr
	}
	return nil
}

func (r *RelayChannel) Close() error {
	r.c.Close()
	return nil
}
