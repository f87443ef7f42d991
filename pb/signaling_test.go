package pb

import (
	"bytes"
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []Envelope{
		{Welcome: &Welcome{Peer: "2Ab", Seq: 3, Room: "lobby", Capacity: 2}},
		{PeerJoined: &PeerJoined{Peer: "xyz", Seq: 1}},
		{PeerJoined: &PeerJoined{Peer: "first"}},
		{PeerLeft: &PeerLeft{Peer: "xyz"}},
		{Relay: &Relay{Peer: "to", Payload: []byte{0, 1, 2, 255}}},
	}
	for _, want := range tests {
		b, err := want.Marshal()
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var got Envelope
		if err := got.Unmarshal(b); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		switch {
		case want.Welcome != nil:
			if got.Welcome == nil || *got.Welcome != *want.Welcome {
				t.Fatalf("welcome = %+v, want %+v", got.Welcome, want.Welcome)
			}
		case want.PeerJoined != nil:
			if got.PeerJoined == nil || *got.PeerJoined != *want.PeerJoined {
				t.Fatalf("joined = %+v, want %+v", got.PeerJoined, want.PeerJoined)
			}
		case want.PeerLeft != nil:
			if got.PeerLeft == nil || *got.PeerLeft != *want.PeerLeft {
				t.Fatalf("left = %+v, want %+v", got.PeerLeft, want.PeerLeft)
			}
		case want.Relay != nil:
			if got.Relay == nil || got.Relay.Peer != want.Relay.Peer || !bytes.Equal(got.Relay.Payload, want.Relay.Payload) {
				t.Fatalf("relay = %+v, want %+v", got.Relay, want.Relay)
			}
		}
	}
}

func TestEnvelopeSkipsUnknownFields(t *testing.T) {
	inner := protowire.AppendTag(nil, 9, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 77)
	inner = appendString(inner, 1, "peer")
	b := protowire.AppendTag(nil, 15, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 1)
	b = appendMessage(b, envelopePeerLeft, inner)

	var e Envelope
	if err := e.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.PeerLeft == nil || e.PeerLeft.Peer != "peer" {
		t.Fatalf("left = %+v", e.PeerLeft)
	}
}

func TestEnvelopeRejects(t *testing.T) {
	if _, err := (&Envelope{}).Marshal(); !errors.Is(err, ErrEmptyEnvelope) {
		t.Fatalf("Marshal(empty) = %v", err)
	}
	var e Envelope
	if err := e.Unmarshal(nil); !errors.Is(err, ErrEmptyEnvelope) {
		t.Fatalf("Unmarshal(nil) = %v", err)
	}
	good, _ := (&Envelope{Relay: &Relay{Peer: "p", Payload: []byte("hello")}}).Marshal()
	if err := e.Unmarshal(good[:len(good)-2]); err == nil {
		t.Fatal("Unmarshal accepted a truncated envelope")
	}
}

// protoFields reads "<type> <name> = <n>;" lines per message from
// signaling.proto.
func protoFields(t *testing.T) map[string]map[string]protowire.Number {
	t.Helper()
	src, err := os.ReadFile("signaling.proto")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	message := regexp.MustCompile(`^message (\w+) \{`)
	field := regexp.MustCompile(`^\w+ (\w+) = (\d+);`)
	fields := make(map[string]map[string]protowire.Number)
	var current string
	for _, line := range strings.Split(string(src), "\n") {
		line = strings.TrimSpace(line)
		if m := message.FindStringSubmatch(line); m != nil {
			current = m[1]
			fields[current] = make(map[string]protowire.Number)
			continue
		}
		if m := field.FindStringSubmatch(line); m != nil && current != "" {
			n, _ := strconv.Atoi(m[2])
			fields[current][m[1]] = protowire.Number(n)
		}
	}
	return fields
}

func TestCodecMatchesSchema(t *testing.T) {
	want := map[string]map[string]protowire.Number{
		"Welcome":    {"peer": 1, "seq": 2, "room": 3, "capacity": 4},
		"PeerJoined": {"peer": 1, "seq": 2},
		"PeerLeft":   {"peer": 1},
		"Relay":      {"peer": 1, "payload": 2},
		"Envelope": {
			"welcome":     envelopeWelcome,
			"peer_joined": envelopePeerJoined,
			"peer_left":   envelopePeerLeft,
			"relay":       envelopeRelay,
		},
	}
	got := protoFields(t)
	for msg, fields := range want {
		for name, num := range fields {
			if got[msg][name] != num {
				t.Fatalf("%s.%s = %d in signaling.proto, codec uses %d", msg, name, got[msg][name], num)
			}
		}
		if len(got[msg]) != len(fields) {
			t.Fatalf("%s has %d fields in signaling.proto, codec knows %d", msg, len(got[msg]), len(fields))
		}
	}
}
