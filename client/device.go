package client

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/hajimehoshi/ebiten/v2"

	"netplay/input"
	"netplay/world"
)

var keyBindings = map[input.Action][]ebiten.Key{
	input.ActionUp:    {ebiten.KeyW, ebiten.KeyArrowUp},
	input.ActionDown:  {ebiten.KeyS, ebiten.KeyArrowDown},
	input.ActionLeft:  {ebiten.KeyA, ebiten.KeyArrowLeft},
	input.ActionRight: {ebiten.KeyD, ebiten.KeyArrowRight},
	input.ActionJump:  {ebiten.KeySpace, ebiten.KeyEnter},
	input.ActionRun:   {ebiten.KeyShiftLeft},
}

// KeyboardDevice reads the keyboard and steers an orbit camera with the mouse.
// Update must run once per tick before the collector samples it.
type KeyboardDevice struct {
	Camera *world.OrbitCamera

	lastX, lastY int
	tracking     bool
}

func NewKeyboardDevice() *KeyboardDevice {
	return &KeyboardDevice{Camera: world.NewOrbitCamera()}
}

func (d *KeyboardDevice) Update() {
	x, y := ebiten.CursorPosition()
	if !ebiten.IsFocused() {
		d.tracking = false
		return
	}
	if d.tracking && ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight) {
		w, h := ebiten.WindowSize()
		if w > 0 && h > 0 {
			d.Camera.Orbit(float32(x-d.lastX)/float32(w), float32(y-d.lastY)/float32(h))
		}
	}
	d.lastX, d.lastY = x, y
	d.tracking = true

	if _, dy := ebiten.Wheel(); dy != 0 {
		d.Camera.Zoom(float32(dy) * 0.1)
	}
}

func (d *KeyboardDevice) Pressed(a input.Action) bool {
	for _, key := range keyBindings[a] {
		if ebiten.IsKeyPressed(key) {
			return true
		}
	}
	return false
}

func (d *KeyboardDevice) Look() mgl32.Quat {
	return d.Camera.Look()
}
