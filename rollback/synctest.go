package rollback

import (
	"fmt"

	"netplay/input"
	"netplay/world"
)

// SyncTest checks a world for determinism without a network. Every tick it
// rolls back checkDistance frames, resimulates with the recorded input and
// compares checksums against the first run.
type SyncTest struct {
	world         *world.World
	collector     *input.Collector
	handles       []input.Handle
	checkDistance int

	frame   input.Frame
	records map[input.Frame][]input.Record
	sums    map[input.Frame]uint64
}

func NewSyncTest(w *world.World, c *input.Collector, handles []input.Handle, checkDistance int) (*SyncTest, error) {
	if checkDistance < 1 {
		return nil, fmt.Errorf("check distance %d, want at least 1", checkDistance)
	}
	if w.Registry.Window() <= checkDistance {
		return nil, fmt.Errorf("world keeps %d snapshots, sync test needs more than %d", w.Registry.Window(), checkDistance)
	}
	w.Registry.Snapshot(0)
	return &SyncTest{
		world:         w,
		collector:     c,
		handles:       handles,
		checkDistance: checkDistance,
		records:       make(map[input.Frame][]input.Record),
		sums:          make(map[input.Frame]uint64),
	}, nil
}

func (s *SyncTest) Frame() input.Frame {
	return s.frame
}

func (s *SyncTest) Tick() error {
	records := s.collector.SampleAll(s.frame, s.handles)
	s.records[s.frame] = records
	s.world.Advance(s.frame, records)
	s.frame++

	sum, err := s.world.Checksum(s.frame)
	if err != nil {
		return err
	}
	s.sums[s.frame] = sum

	start := s.frame - input.Frame(s.checkDistance)
	if start < 0 {
		return nil
	}
	if err := s.world.Registry.Restore(start); err != nil {
		return err
	}
	for f := start; f < s.frame; f++ {
		s.world.Advance(f, s.records[f])
		got, err := s.world.Checksum(f + 1)
		if err != nil {
			return err
		}
		if want := s.sums[f+1]; got != want {
			return fmt.Errorf("%w: frame %d resimulated to %016x, first run %016x", ErrMismatchedChecksum, f+1, got, want)
		}
	}
	delete(s.records, start)
	delete(s.sums, start)
	return nil
}
