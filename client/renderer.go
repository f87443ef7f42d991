package client

import (
	"fmt"
	"image/color"
	"math"

	"github.com/ebiten/emoji"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"netplay/input"
	"netplay/utils"
	"netplay/world"
)

const (
	tilePixels   = 40
	playerPixels = 16
)

var (
	backgroundColor = color.RGBA{164, 178, 191, 255}
	wallColor       = color.RGBA{70, 78, 92, 255}
	localColor      = color.RGBA{218, 212, 94, 255}
	remoteColor     = color.RGBA{208, 70, 72, 255}
	facingColor     = color.RGBA{255, 255, 255, 255}
)

type RenderData struct {
	lastPlayerDrawCoords mgl32.Vec2
}

// Renderer draws a top-down debug view of the registered state. Draw positions
// chase the simulated ones so rollback corrections do not teleport players.
type Renderer struct {
	renderData  map[input.Handle]*RenderData
	floatHeight float32
	// Draw positions within snap pixels of the target jump to it.
	snap float64
}

func NewRenderer(floatHeight float32, snap float64) *Renderer {
	return &Renderer{
		renderData:  make(map[input.Handle]*RenderData),
		floatHeight: floatHeight,
		snap:        snap,
	}
}

func (r *Renderer) origin(screen *ebiten.Image, m *world.Map) mgl32.Vec2 {
	width, height := screen.Bounds().Dx(), screen.Bounds().Dy()
	if m == nil {
		return mgl32.Vec2{float32(width) / 2, float32(height) / 2}
	}
	return mgl32.Vec2{
		(float32(width) - float32(m.Width*tilePixels)) / 2,
		(float32(height) - float32(m.Height*tilePixels)) / 2,
	}
}

// project maps a world position onto the screen, X to the right and Z down.
func (r *Renderer) project(origin mgl32.Vec2, m *world.Map, p mgl32.Vec3) mgl32.Vec2 {
	var base mgl32.Vec3
	if m != nil {
		base = m.Origin()
	}
	return mgl32.Vec2{
		origin.X() + (p.X()-base.X())*tilePixels/world.TileSize,
		origin.Y() + (p.Z()-base.Z())*tilePixels/world.TileSize,
	}
}

func (r *Renderer) RenderMap(screen *ebiten.Image, m *world.Map) {
	screen.Fill(backgroundColor)
	if m == nil {
		return
	}
	origin := r.origin(screen, m)
	m.ForEach(func(x, z int64, tile world.Tile) {
		if !tile.Dense {
			return
		}
		vector.DrawFilledRect(screen,
			origin.X()+float32(x*tilePixels), origin.Y()+float32(z*tilePixels),
			tilePixels, tilePixels, wallColor, false)
	})
}

func (r *Renderer) RenderPlayer(screen *ebiten.Image, m *world.Map, p world.PlayerView, local bool) {
	origin := r.origin(screen, m)
	target := r.project(origin, m, p.Pose.Position)
	drawCoords := target
	if renderData, ok := r.renderData[p.Handle]; ok {
		correctionRate := float32(0.25)
		if p.Controller.Jumping {
			correctionRate = 0.5
		}
		drawCoords = mgl32.Vec2{
			r.chase(renderData.lastPlayerDrawCoords.X(), target.X(), correctionRate),
			r.chase(renderData.lastPlayerDrawCoords.Y(), target.Y(), correctionRate),
		}
	} else {
		r.renderData[p.Handle] = &RenderData{}
	}
	r.renderData[p.Handle].lastPlayerDrawCoords = drawCoords

	// Height above the floor lifts the square towards the top of the screen.
	lift := (p.Pose.Position.Y() - r.floatHeight) * tilePixels / 2
	clr := remoteColor
	if local {
		clr = localColor
	}
	x, y := drawCoords.X()-playerPixels/2, drawCoords.Y()-playerPixels/2-lift
	vector.DrawFilledRect(screen, x, y, playerPixels, playerPixels, clr, false)

	yaw := float64(world.YawOf(p.Pose.Rotation))
	cx, cy := drawCoords.X(), drawCoords.Y()-lift
	vector.StrokeLine(screen, cx, cy,
		cx-float32(math.Sin(yaw))*playerPixels, cy-float32(math.Cos(yaw))*playerPixels,
		2, facingColor, false)

	anim := world.AnimationFor(p)
	debugString := fmt.Sprintf("P%d %s\n(%0.1f,%0.1f)", p.Handle, anim.State, p.Pose.Position.X(), p.Pose.Position.Z())
	ebitenutil.DebugPrintAt(screen, debugString, int(x), int(y)+playerPixels)
}

// RenderStatus draws the status glyph in the top right corner.
func (r *Renderer) RenderStatus(screen *ebiten.Image, glyph string) {
	image := emoji.Image(glyph)
	if image == nil {
		return
	}
	opt := &ebiten.DrawImageOptions{}
	scale := 32 / float64(image.Bounds().Dx())
	opt.GeoM.Scale(scale, scale)
	opt.GeoM.Translate(float64(screen.Bounds().Dx())-40, 8)
	opt.Filter = ebiten.FilterLinear
	screen.DrawImage(image, opt)
}

func (r *Renderer) chase(from, to, t float32) float32 {
	v := Lerp(from, to, t)
	if utils.AlmostEqual(float64(v), float64(to), r.snap) {
		return to
	}
	return v
}

func Lerp(start, end, t float32) float32 {
	return start*(1.0-t) + end*t
}
