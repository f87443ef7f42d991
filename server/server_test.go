package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"netplay/pb"
	"netplay/signaling"
	"netplay/utils"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer(utils.Discard)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func pollUntil(t *testing.T, what string, cond func() bool, clients ...*signaling.Client) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		for _, c := range clients {
			c.Poll()
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newClient(t *testing.T, url string) *signaling.Client {
	c := signaling.NewClient(url, signaling.Options{RedialTicks: 1, Logger: utils.Discard})
	t.Cleanup(c.Close)
	return c
}

func TestRoomAdmitsInJoinOrder(t *testing.T) {
	_, base := newTestServer(t)
	a := newClient(t, base+"/match?next=2")
	pollUntil(t, "first welcome", func() bool { return a.ID() != "" }, a)
	b := newClient(t, base+"/match?next=2")

	var pa, pbPeers []signaling.Peer
	pollUntil(t, "both ready", func() bool {
		var okA, okB bool
		pa, okA = a.Players(2)
		pbPeers, okB = b.Players(2)
		return okA && okB
	}, a, b)

	for i := range pa {
		if pa[i] != pbPeers[i] {
			t.Fatalf("handle tables differ: %v vs %v", pa, pbPeers)
		}
	}
	if pa[0].ID != a.ID() || pa[1].ID != b.ID() {
		t.Fatalf("players = %v, want %s then %s", pa, a.ID(), b.ID())
	}
}

func TestRelayDeliversToPeer(t *testing.T) {
	_, base := newTestServer(t)
	a := newClient(t, base+"/relay?next=2")
	b := newClient(t, base+"/relay?next=2")
	pollUntil(t, "ready", func() bool {
		_, okA := a.Players(2)
		_, okB := b.Players(2)
		return okA && okB
	}, a, b)

	if err := a.Channel().Send(b.ID(), []byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got signaling.Datagram
	pollUntil(t, "relay", func() bool {
		d, ok := b.Channel().Receive()
		got = d
		return ok
	}, a, b)
	if got.From != a.ID() || string(got.Payload) != "ping" {
		t.Fatalf("received %+v", got)
	}

	a.Close()
	var gone []signaling.PeerID
	pollUntil(t, "departure", func() bool {
		gone = append(gone, b.Channel().Departed()...)
		return len(gone) > 0
	}, b)
	if gone[0] != a.ID() {
		t.Fatalf("departed = %v, want %s", gone, a.ID())
	}
}

func TestFullRoomRejectsExtraPeers(t *testing.T) {
	s, base := newTestServer(t)
	a := newClient(t, base+"/full?next=1")
	pollUntil(t, "solo ready", func() bool {
		_, ok := a.Players(1)
		return ok
	}, a)

	extra := newClient(t, base+"/full?next=1")
	pollUntil(t, "rejection", func() bool { return extra.LastError() != nil }, extra)
	for i := 0; i < 20; i++ {
		extra.Poll()
		time.Sleep(time.Millisecond)
	}
	if _, ok := extra.Players(1); ok {
		t.Fatal("extra peer was admitted to a full room")
	}
	if s.Rooms() != 1 {
		t.Fatalf("rooms = %d, want 1", s.Rooms())
	}
}

func TestSendMarksSlowSubscriberWithoutClosing(t *testing.T) {
	s := NewServer(utils.Discard)
	// No connection: send must not touch the socket while holding the lock.
	sub := newSubscriber("slow", 0, nil)
	msg := &pb.Envelope{PeerLeft: &pb.PeerLeft{Peer: "x"}}

	s.mu.Lock()
	for i := 0; i < cap(sub.Messages)+2; i++ {
		s.send(sub, msg)
	}
	s.mu.Unlock()

	select {
	case <-sub.slow:
	default:
		t.Fatal("overflowing subscriber was not marked slow")
	}
	if len(sub.Messages) != cap(sub.Messages) {
		t.Fatalf("queued %d messages, want %d", len(sub.Messages), cap(sub.Messages))
	}
}
