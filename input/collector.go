package input

import "github.com/go-gl/mathgl/mgl32"

// Device exposes the instantaneous state of a control device.
type Device interface {
	Pressed(a Action) bool
	// Look returns the player's current view orientation, or the zero
	// quaternion when the device has none.
	Look() mgl32.Quat
}

// Collector samples device state into Records once per tick.
//
// A Record depends only on the device state at the moment of sampling, never
// on simulation state, so the same device state always yields the same
// Record. Rollback replays the Record, not the device.
type Collector struct {
	fallback Device
	devices  map[Handle]Device
}

func NewCollector(device Device) *Collector {
	return &Collector{
		fallback: device,
		devices:  make(map[Handle]Device),
	}
}

// WithDevice binds a dedicated device to handle. Handles without one share the
// default device, like several local players on one keyboard.
func (c *Collector) WithDevice(handle Handle, device Device) *Collector {
	c.devices[handle] = device
	return c
}

func (c *Collector) device(handle Handle) Device {
	if d, ok := c.devices[handle]; ok {
		return d
	}
	return c.fallback
}

func (c *Collector) Sample(frame Frame, handle Handle) Record {
	r := Blank(frame, handle)
	d := c.device(handle)
	if d == nil {
		return r
	}
	for i := range actionNames {
		action := Action(1 << i)
		if d.Pressed(action) {
			r.Actions |= action
		}
	}
	look := d.Look()
	if look.Len() > 0 {
		look = look.Normalize()
	}
	r.Look = look
	return r
}

// SampleAll samples every handle in order.
func (c *Collector) SampleAll(frame Frame, handles []Handle) []Record {
	records := make([]Record, 0, len(handles))
	for _, h := range handles {
		records = append(records, c.Sample(frame, h))
	}
	return records
}

// StaticDevice reports fixed state. Tests and bots mutate it between ticks.
type StaticDevice struct {
	Actions  Action
	Rotation mgl32.Quat
}

func (d *StaticDevice) Pressed(a Action) bool {
	return d.Actions.Has(a)
}

func (d *StaticDevice) Look() mgl32.Quat {
	return d.Rotation
}
