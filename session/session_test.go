package session

import (
	"errors"
	"testing"

	"netplay/input"
	"netplay/signaling"
	"netplay/utils"
)

func TestAddPlayerRejects(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(b *Builder)
		player Player
		handle input.Handle
	}{
		{"out of range", func(*Builder) {}, LocalPlayer(), 2},
		{"duplicate handle", func(b *Builder) { b.AddPlayer(LocalPlayer(), 0) }, RemotePlayer("b"), 0},
		{"duplicate peer", func(b *Builder) { b.AddPlayer(RemotePlayer("b"), 0) }, RemotePlayer("b"), 1},
		{"anonymous remote", func(*Builder) {}, RemotePlayer(""), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder().WithNumPlayers(2)
			tt.setup(b)
			if err := b.AddPlayer(tt.player, tt.handle); !errors.Is(err, ErrPeerAddFailed) {
				t.Fatalf("AddPlayer = %v, want ErrPeerAddFailed", err)
			}
		})
	}
}

func TestStartP2PRejects(t *testing.T) {
	pipe := NewPipe()
	tests := []struct {
		name  string
		build func() *Builder
		ch    Channel
	}{
		{"missing player", func() *Builder {
			b := NewBuilder().WithNumPlayers(2)
			b.AddPlayer(LocalPlayer(), 0)
			return b
		}, pipe.End("a")},
		{"no local player", func() *Builder {
			b := NewBuilder().WithNumPlayers(2)
			b.AddPlayer(RemotePlayer("x"), 0)
			b.AddPlayer(RemotePlayer("y"), 1)
			return b
		}, pipe.End("a")},
		{"nil channel", func() *Builder {
			b := NewBuilder().WithNumPlayers(1)
			b.AddPlayer(LocalPlayer(), 0)
			return b
		}, nil},
		{"prediction too deep", func() *Builder {
			b := NewBuilder().WithNumPlayers(1).WithMaxPrediction(queueLength)
			b.AddPlayer(LocalPlayer(), 0)
			return b
		}, pipe.End("a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.build().StartP2P(tt.ch); !errors.Is(err, ErrSessionStartFailed) {
				t.Fatalf("StartP2P = %v, want ErrSessionStartFailed", err)
			}
		})
	}
}

func TestAddPlayersInJoinOrder(t *testing.T) {
	b := NewBuilder().WithNumPlayers(3)
	peers := []signaling.Peer{{ID: "x", Seq: 0}, {ID: "me", Seq: 1}, {ID: "z", Seq: 2}}
	if err := b.AddPlayers(peers, "me"); err != nil {
		t.Fatal(err)
	}
	s, err := b.StartP2P(NewPipe().End("me"))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.LocalHandles(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("LocalHandles = %v, want [1]", got)
	}
	if got := s.RemotePeers(); len(got) != 2 || got[0] != "x" || got[1] != "z" {
		t.Fatalf("RemotePeers = %v", got)
	}
}

// startPair builds two sessions over a pipe: "a" owns handle 0, "b" handle 1.
func startPair(t *testing.T, delay int) (*Pipe, *PeerSession, *PeerSession) {
	t.Helper()
	pipe := NewPipe()
	start := func(self, other signaling.PeerID, handle input.Handle) *PeerSession {
		b := NewBuilder().WithNumPlayers(2).WithInputDelay(delay).WithLogger(utils.Discard).WithChecksumInterval(10)
		if err := b.AddPlayer(LocalPlayer(), handle); err != nil {
			t.Fatal(err)
		}
		if err := b.AddPlayer(RemotePlayer(other), 1-handle); err != nil {
			t.Fatal(err)
		}
		s, err := b.StartP2P(pipe.End(self))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	a := start("a", "b", 0)
	b := start("b", "a", 1)
	return pipe, a, b
}

func TestDelayedFramesStartConfirmed(t *testing.T) {
	_, a, _ := startPair(t, 2)
	if got := a.ConfirmedFrame(); got != 1 {
		t.Fatalf("ConfirmedFrame = %d, want 1", got)
	}
	for _, r := range a.InputsFor(1) {
		if r.Actions != 0 || r.Frame != 1 {
			t.Fatalf("frame 1 record = %+v, want blank", r)
		}
	}
}

func TestInputIsExchanged(t *testing.T) {
	pipe, a, b := startPair(t, 2)
	press := input.Record{Frame: 0, Handle: 0, Actions: input.ActionJump}
	if err := a.AddLocalInput(press); err != nil {
		t.Fatal(err)
	}
	if err := a.AddLocalInput(input.Record{Handle: 1}); err == nil {
		t.Fatal("AddLocalInput accepted a remote handle")
	}
	a.Poll()
	b.AddLocalInput(input.Record{Frame: 0, Handle: 1})
	b.Poll()
	a.Poll()
	pipe.Step()

	got := b.InputsFor(2)
	if got[0].Actions != input.ActionJump || got[0].Frame != 2 {
		t.Fatalf("b sees handle 0 at frame 2 as %+v", got[0])
	}
	if a.ConfirmedFrame() != 2 || b.ConfirmedFrame() != 2 {
		t.Fatalf("confirmed = %d, %d; want 2", a.ConfirmedFrame(), b.ConfirmedFrame())
	}

	events := a.Events()
	if len(events) != 1 || events[0].Kind != EventSynchronized {
		t.Fatalf("events = %v", events)
	}
}

func TestLatePredictionMismatchIsReported(t *testing.T) {
	pipe, a, b := startPair(t, 0)
	pipe.SetLatency(3)

	// a simulates frames 0..2 before b's input arrives.
	for f := input.Frame(0); f < 3; f++ {
		a.AddLocalInput(input.Record{Frame: f, Handle: 0})
		b.AddLocalInput(input.Record{Frame: f, Handle: 1, Actions: actionAt(f)})
		a.Poll()
		b.Poll()
		if r := a.InputsFor(f)[1]; r.Actions != 0 {
			t.Fatalf("frame %d predicted %v before anything arrived", f, r.Actions)
		}
		pipe.Step()
	}
	if a.FirstIncorrectFrame() != input.NilFrame {
		t.Fatalf("incorrect frame %d before confirmation", a.FirstIncorrectFrame())
	}
	for i := 0; i < 3; i++ {
		a.Poll()
		pipe.Step()
	}
	if got := a.FirstIncorrectFrame(); got != 1 {
		t.Fatalf("FirstIncorrectFrame = %d, want 1", got)
	}
	a.ResetPrediction()
	if got := a.FirstIncorrectFrame(); got != input.NilFrame {
		t.Fatalf("after reset = %d", got)
	}
	// The next prediction repeats the newest confirmed record.
	if r := a.InputsFor(3)[1]; r.Actions != input.ActionLeft {
		t.Fatalf("prediction for 3 = %v, want left", r.Actions)
	}
}

func actionAt(f input.Frame) input.Action {
	if f == 0 {
		return 0
	}
	return input.ActionLeft
}

func TestChecksumMismatchRaisesDesync(t *testing.T) {
	pipe, a, b := startPair(t, 2)
	a.Poll()
	b.Poll()
	a.Poll()
	a.Events()

	a.SendChecksum(10, 0xAAAA)
	b.SendChecksum(10, 0xBBBB)
	a.SendChecksum(20, 0xCCCC)
	b.SendChecksum(20, 0xCCCC)
	pipe.Step()
	a.Poll()

	events := a.Events()
	if len(events) != 1 {
		t.Fatalf("events = %v, want one desync", events)
	}
	if e := events[0]; e.Kind != EventDesync || e.Frame != 10 || e.Local != 0xAAAA || e.Remote != 0xBBBB {
		t.Fatalf("event = %v", e)
	}
}

func TestQuitDisconnects(t *testing.T) {
	_, a, b := startPair(t, 2)
	a.Poll()
	b.Poll()
	b.Events()

	a.Close()
	b.Poll()
	if !b.Closed() {
		t.Fatal("b still open after a quit")
	}
	var disconnected bool
	for _, e := range b.Events() {
		if e.Kind == EventDisconnected && e.Peer == "a" {
			disconnected = true
		}
	}
	if !disconnected {
		t.Fatal("no disconnect event")
	}
	if err := b.AddLocalInput(input.Record{Handle: 1}); err == nil {
		t.Fatal("AddLocalInput on a closed session")
	}
}

func TestInputQueueIgnoresStaleAndDuplicate(t *testing.T) {
	q := newInputQueue(0, 1)
	if q.confirm(input.Blank(0, 0)) {
		t.Fatal("re-confirmed a delay frame")
	}
	if !q.confirm(input.Record{Frame: 2, Actions: input.ActionUp}) {
		t.Fatal("rejected frame 2")
	}
	if q.last != 0 {
		t.Fatalf("last = %d with a gap at 1", q.last)
	}
	q.confirm(input.Record{Frame: 1})
	if q.last != 2 {
		t.Fatalf("last = %d, want 2 once the gap fills", q.last)
	}
	if q.confirm(input.Record{Frame: 2}) {
		t.Fatal("confirmed frame 2 twice")
	}
	if r, ok := q.get(2); !ok || r.Actions != input.ActionUp {
		t.Fatalf("get(2) = %+v, %v", r, ok)
	}
	if q.confirm(input.Record{Frame: 2 + queueLength}) {
		t.Fatal("accepted a frame beyond the window")
	}
}
