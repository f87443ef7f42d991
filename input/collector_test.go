package input

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestCollectorDependsOnlyOnDeviceState(t *testing.T) {
	device := &StaticDevice{
		Actions:  ActionUp | ActionRun,
		Rotation: mgl32.QuatRotate(1.2, mgl32.Vec3{0, 1, 0}),
	}
	c := NewCollector(device)

	first := c.Sample(5, 0)
	device.Actions = ActionDown
	c.Sample(6, 0)
	device.Actions = ActionUp | ActionRun
	again := c.Sample(5, 0)

	if first != again {
		t.Fatalf("same device state sampled %+v then %+v", first, again)
	}
	if first.Actions != ActionUp|ActionRun {
		t.Fatalf("actions = %s", first.Actions)
	}
	if !first.HasLook() {
		t.Fatalf("expected look orientation to be sampled")
	}
}

func TestCollectorPerHandleDevices(t *testing.T) {
	shared := &StaticDevice{Actions: ActionLeft}
	second := &StaticDevice{Actions: ActionRight}
	c := NewCollector(shared).WithDevice(1, second)

	records := c.SampleAll(3, []Handle{0, 1})
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Actions != ActionLeft || records[0].Handle != 0 {
		t.Fatalf("handle 0 record = %+v", records[0])
	}
	if records[1].Actions != ActionRight || records[1].Handle != 1 {
		t.Fatalf("handle 1 record = %+v", records[1])
	}
	if records[1].Frame != 3 {
		t.Fatalf("frame = %d, want 3", records[1].Frame)
	}
}

func TestCollectorWithoutDeviceIsBlank(t *testing.T) {
	c := NewCollector(nil)
	if r := c.Sample(2, 4); r != Blank(2, 4) {
		t.Fatalf("Sample = %+v, want blank", r)
	}
}
