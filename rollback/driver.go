// Package rollback runs the simulation frame by frame, rewinding and
// resimulating whenever remote input contradicts what was predicted.
package rollback

import (
	"errors"
	"fmt"

	"netplay/input"
	"netplay/session"
	"netplay/utils"
	"netplay/world"
)

// ErrMismatchedChecksum means a resimulation did not reproduce the first run.
var ErrMismatchedChecksum = errors.New("mismatched checksum")

// Session is the part of session.PeerSession the driver uses.
type Session interface {
	LocalHandles() []input.Handle
	MaxPrediction() int
	ChecksumInterval() int
	AddLocalInput(r input.Record) error
	Poll()
	InputsFor(frame input.Frame) []input.Record
	ConfirmedFrame() input.Frame
	FirstIncorrectFrame() input.Frame
	ResetPrediction()
	SendChecksum(frame input.Frame, sum uint64)
	Events() []session.Event
	Close() error
}

// Window is the number of snapshots a world needs to roll back as far as
// maxPrediction allows.
func Window(maxPrediction int) int {
	return maxPrediction + 2
}

type Stats struct {
	Rollbacks        int
	RolledBackFrames int
	Stalls           int
	Desyncs          int
}

type Options struct {
	Logger utils.Logger
	// OnFrame runs after each newly simulated frame, never during
	// resimulation. Effects it triggers are not rolled back.
	OnFrame func(frame input.Frame, w *world.World)
}

// Driver owns the world, the session and the collector for one match. All of
// its methods must be called from the same goroutine.
type Driver struct {
	world     *world.World
	session   Session
	collector *input.Collector
	local     []input.Handle
	opts      Options
	logger    utils.Logger

	frame        input.Frame
	lastChecksum input.Frame
	stats        Stats
	events       []session.Event
	terminated   bool
	err          error
}

// NewDriver takes the state of w as frame 0. Spawn players before calling it.
func NewDriver(w *world.World, s Session, c *input.Collector, opts Options) *Driver {
	d := &Driver{
		world:     w,
		session:   s,
		collector: c,
		local:     s.LocalHandles(),
		opts:      opts,
		logger:    utils.LoggerOr(opts.Logger),
	}
	w.Registry.Snapshot(0)
	return d
}

// Frame is the next frame to simulate.
func (d *Driver) Frame() input.Frame { return d.frame }

func (d *Driver) ConfirmedFrame() input.Frame { return d.session.ConfirmedFrame() }

func (d *Driver) Stats() Stats { return d.stats }

func (d *Driver) World() *world.World { return d.world }

// Terminated reports whether the match is over. Err holds the fatal error, if
// that is what ended it.
func (d *Driver) Terminated() bool {
	return d.terminated
}

func (d *Driver) Err() error {
	return d.err
}

// Events drains session events and rollbacks raised since the last call.
func (d *Driver) Events() []session.Event {
	events := d.events
	d.events = nil
	return events
}

// Tick runs one frame: sample local input, exchange it, resimulate from the
// first mispredicted frame and advance. Only fatal errors are returned; once
// one is, the match is over.
func (d *Driver) Tick() error {
	if d.terminated {
		return d.err
	}

	stalled := int(d.frame-d.session.ConfirmedFrame()) >= d.session.MaxPrediction()
	if !stalled {
		for _, h := range d.local {
			if err := d.session.AddLocalInput(d.collector.Sample(d.frame, h)); err != nil {
				d.logger.Printf("rollback: local input: %v", err)
			}
		}
	}

	d.session.Poll()
	d.drainSession()
	if d.terminated {
		return nil
	}

	if first := d.session.FirstIncorrectFrame(); first != input.NilFrame && first < d.frame {
		if err := d.rollback(first); err != nil {
			return d.fail(err)
		}
	}
	d.session.ResetPrediction()

	if stalled {
		d.stats.Stalls++
		if d.stats.Stalls%60 == 1 {
			d.logger.Printf("rollback: waiting for input at frame %d (confirmed %d)", d.frame, d.session.ConfirmedFrame())
		}
		return nil
	}

	d.world.Advance(d.frame, d.session.InputsFor(d.frame))
	if d.opts.OnFrame != nil {
		d.opts.OnFrame(d.frame, d.world)
	}
	d.frame++
	d.exchangeChecksums()
	return nil
}

func (d *Driver) rollback(to input.Frame) error {
	if err := d.world.Registry.Restore(to); err != nil {
		return fmt.Errorf("rollback from %d to %d: %w", d.frame, to, err)
	}
	for f := to; f < d.frame; f++ {
		d.world.Advance(f, d.session.InputsFor(f))
	}
	d.stats.Rollbacks++
	d.stats.RolledBackFrames += int(d.frame - to)
	d.events = append(d.events, session.Event{Kind: session.EventRolledBack, Frame: d.frame, To: to})
	return nil
}

// exchangeChecksums shares the checksum of every interval frame whose inputs
// are all confirmed. Those snapshots can no longer change.
func (d *Driver) exchangeChecksums() {
	interval := input.Frame(d.session.ChecksumInterval())
	if interval <= 0 {
		return
	}
	for {
		next := d.lastChecksum + interval
		if next > d.frame || next-1 > d.session.ConfirmedFrame() {
			return
		}
		d.lastChecksum = next
		sum, err := d.world.Checksum(next)
		if err != nil {
			d.logger.Printf("rollback: checksum for %d: %v", next, err)
			continue
		}
		d.session.SendChecksum(next, sum)
	}
}

func (d *Driver) drainSession() {
	for _, e := range d.session.Events() {
		d.events = append(d.events, e)
		switch e.Kind {
		case session.EventDesync:
			d.stats.Desyncs++
			d.logger.Printf("rollback: %v", e)
		case session.EventDisconnected:
			d.logger.Printf("rollback: %v, ending match", e)
			d.terminate()
		}
	}
}

func (d *Driver) fail(err error) error {
	d.err = err
	d.logger.Printf("rollback: %v", err)
	d.terminate()
	return err
}

func (d *Driver) terminate() {
	if d.terminated {
		return
	}
	d.terminated = true
	if err := d.session.Close(); err != nil {
		d.logger.Printf("rollback: closing session: %v", err)
	}
	d.world.Registry.Reset()
}

// Close ends the match and releases the session and every snapshot.
func (d *Driver) Close() {
	d.terminate()
}
