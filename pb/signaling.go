// Package pb encodes the signaling protocol in protobuf wire format. The
// schema is signaling.proto; the codec here is written against it with
// protowire, so messages stay plain structs.
//
// On a Relay sent by a client, peer is the destination. On a Relay delivered
// by the server, peer is the sender.
package pb

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrEmptyEnvelope = errors.New("envelope carries no event")

type Welcome struct {
	Peer     string
	Seq      uint64
	Room     string
	Capacity uint32
}

type PeerJoined struct {
	Peer string
	Seq  uint64
}

type PeerLeft struct {
	Peer string
}

type Relay struct {
	Peer    string
	Payload []byte
}

// Envelope holds exactly one event.
type Envelope struct {
	Welcome    *Welcome
	PeerJoined *PeerJoined
	PeerLeft   *PeerLeft
	Relay      *Relay
}

const (
	envelopeWelcome    protowire.Number = 1
	envelopePeerJoined protowire.Number = 2
	envelopePeerLeft   protowire.Number = 3
	envelopeRelay      protowire.Number = 4
)

func (e *Envelope) Marshal() ([]byte, error) {
	var b []byte
	switch {
	case e.Welcome != nil:
		b = appendMessage(b, envelopeWelcome, e.Welcome.appendTo(nil))
	case e.PeerJoined != nil:
		b = appendMessage(b, envelopePeerJoined, e.PeerJoined.appendTo(nil))
	case e.PeerLeft != nil:
		b = appendMessage(b, envelopePeerLeft, e.PeerLeft.appendTo(nil))
	case e.Relay != nil:
		b = appendMessage(b, envelopeRelay, e.Relay.appendTo(nil))
	default:
		return nil, ErrEmptyEnvelope
	}
	return b, nil
}

func (e *Envelope) Unmarshal(b []byte) error {
	*e = Envelope{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skip(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		var err error
		switch num {
		case envelopeWelcome:
			e.Welcome = &Welcome{}
			err = e.Welcome.unmarshal(v)
		case envelopePeerJoined:
			e.PeerJoined = &PeerJoined{}
			err = e.PeerJoined.unmarshal(v)
		case envelopePeerLeft:
			e.PeerLeft = &PeerLeft{}
			err = e.PeerLeft.unmarshal(v)
		case envelopeRelay:
			e.Relay = &Relay{}
			err = e.Relay.unmarshal(v)
		}
		return n, err
	})
	if err != nil {
		return err
	}
	if e.Welcome == nil && e.PeerJoined == nil && e.PeerLeft == nil && e.Relay == nil {
		return ErrEmptyEnvelope
	}
	return nil
}

func (m *Welcome) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.Peer)
	b = appendVarint(b, 2, m.Seq)
	b = appendString(b, 3, m.Room)
	b = appendVarint(b, 4, uint64(m.Capacity))
	return b
}

func (m *Welcome) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &m.Peer)
		case num == 2 && typ == protowire.VarintType:
			return consumeVarint(b, &m.Seq)
		case num == 3 && typ == protowire.BytesType:
			return consumeString(b, &m.Room)
		case num == 4 && typ == protowire.VarintType:
			var v uint64
			n, err := consumeVarint(b, &v)
			m.Capacity = uint32(v)
			return n, err
		}
		return skip(num, typ, b)
	})
}

func (m *PeerJoined) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.Peer)
	b = appendVarint(b, 2, m.Seq)
	return b
}

func (m *PeerJoined) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &m.Peer)
		case num == 2 && typ == protowire.VarintType:
			return consumeVarint(b, &m.Seq)
		}
		return skip(num, typ, b)
	})
}

func (m *PeerLeft) appendTo(b []byte) []byte {
	return appendString(b, 1, m.Peer)
}

func (m *PeerLeft) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			return consumeString(b, &m.Peer)
		}
		return skip(num, typ, b)
	})
}

func (m *Relay) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.Peer)
	if len(m.Payload) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Payload)
	}
	return b
}

func (m *Relay) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &m.Peer)
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				m.Payload = append([]byte(nil), v...)
			}
			return n, nil
		}
		return skip(num, typ, b)
	})
}

// walk calls field for each tag in b. field consumes the value that follows
// the tag and returns its length, or a negative protowire error code.
func walk(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("pb: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("pb: field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return protowire.ConsumeFieldValue(num, typ, b), nil
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func consumeString(b []byte, s *string) (int, error) {
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*s = v
	}
	return n, nil
}

func consumeVarint(b []byte, v *uint64) (int, error) {
	x, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*v = x
	}
	return n, nil
}
