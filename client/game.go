package client

import (
	"fmt"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"netplay/input"
	"netplay/rollback"
	"netplay/session"
	"netplay/signaling"
	"netplay/utils"
	"netplay/world"
)

type status int

const (
	statusLobby status = iota
	statusPlaying
	statusDesynced
	statusOver
)

var statusGlyphs = map[status]string{
	statusLobby:    "⏳",
	statusPlaying:  "🎮",
	statusDesynced: "😵",
	statusOver:     "🔌",
}

// TuningFor builds the movement constants from the [Player] and [Sim]
// sections. Every peer must load the same values.
func TuningFor(cfg *utils.Config) world.Tuning {
	t := world.DefaultTuning()
	t.Speed = float32(cfg.Player.Speed)
	t.RunMultiplier = float32(cfg.Player.RunMultiplier)
	t.JumpVelocity = float32(cfg.Player.JumpVelocity)
	t.FloatHeight = float32(cfg.Player.FloatHeight)
	if cfg.Sim.TickRate > 0 {
		t.Dt = 1 / float32(cfg.Sim.TickRate)
	}
	return t
}

// Game waits in the signaling room until it is full, then runs the match one
// driver tick per ebiten tick.
type Game struct {
	*Assets
	cfg       *utils.Config
	level     *world.Map
	signaling *signaling.Client
	device    *KeyboardDevice
	renderer  *Renderer
	logger    utils.Logger

	driver *rollback.Driver
	local  map[input.Handle]bool
	status status
	notice string
}

func NewGame(cfg *utils.Config, assets *Assets, logger utils.Logger) (*Game, error) {
	level, err := assets.Map("arena")
	if err != nil {
		return nil, err
	}
	logger = utils.LoggerOr(logger)
	return &Game{
		Assets:    assets,
		cfg:       cfg,
		level:     level,
		signaling: signaling.NewClient(cfg.Network.RoomURL, signaling.Options{Logger: logger}),
		device:    NewKeyboardDevice(),
		renderer:  NewRenderer(float32(cfg.Player.FloatHeight), cfg.Math.Float64EqualityThreshold),
		logger:    logger,
		local:     make(map[input.Handle]bool),
	}, nil
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		g.Close()
		return ebiten.Termination
	}
	g.device.Update()

	if g.driver == nil {
		return g.pollLobby()
	}
	if !g.driver.Terminated() {
		if err := g.driver.Tick(); err != nil {
			return err
		}
	}
	for _, e := range g.driver.Events() {
		switch e.Kind {
		case session.EventDesync:
			g.status = statusDesynced
			g.notice = e.String()
		case session.EventDisconnected:
			g.status = statusOver
			g.notice = e.String()
		case session.EventSynchronized:
			g.logger.Printf("client: %v", e)
		}
	}
	return nil
}

func (g *Game) pollLobby() error {
	g.signaling.Poll()
	if err := g.signaling.LastError(); err != nil {
		g.notice = err.Error()
	}
	peers, ok := g.signaling.Players(g.cfg.Network.NumPlayers)
	if !ok {
		return nil
	}
	return g.start(peers)
}

// start builds the session from the room's join order and spawns one player
// per handle. Failing here ends the game.
func (g *Game) start(peers []signaling.Peer) error {
	net := g.cfg.Network
	builder := session.NewBuilder().
		WithNumPlayers(net.NumPlayers).
		WithInputDelay(net.InputDelay).
		WithMaxPrediction(net.MaxPrediction).
		WithChecksumInterval(net.ChecksumInterval).
		WithLogger(g.logger)
	if err := builder.AddPlayers(peers, g.signaling.ID()); err != nil {
		return err
	}
	s, err := builder.StartP2P(g.signaling.Channel())
	if err != nil {
		return err
	}

	basis, err := world.ParseBasisMode(g.cfg.Player.Basis)
	if err != nil {
		return err
	}
	w := world.NewWorld(world.Options{
		Window: rollback.Window(s.MaxPrediction()),
		Basis:  basis,
		Tuning: TuningFor(g.cfg),
		Map:    g.level,
	})
	for h := 0; h < s.NumPlayers(); h++ {
		w.SpawnPlayer(input.Handle(h))
	}
	for _, h := range s.LocalHandles() {
		g.local[h] = true
	}

	g.driver = rollback.NewDriver(w, s, input.NewCollector(g.device), rollback.Options{Logger: g.logger})
	g.status = statusPlaying
	g.notice = ""
	g.logger.Printf("client: match started with %d players, local %v", s.NumPlayers(), s.LocalHandles())
	return nil
}

func (g *Game) debugString() string {
	lines := []string{
		fmt.Sprintf("Version: %s, TPS: %0.02f, FPS: %0.02f", strings.TrimSpace(Version), ebiten.ActualTPS(), ebiten.ActualFPS()),
	}
	if g.driver == nil {
		lines = append(lines, fmt.Sprintf("waiting for %d players at %s", g.cfg.Network.NumPlayers, g.cfg.Network.RoomURL))
	} else {
		stats := g.driver.Stats()
		lines = append(lines,
			fmt.Sprintf("frame %d, confirmed %d", g.driver.Frame(), g.driver.ConfirmedFrame()),
			fmt.Sprintf("rollbacks %d (%d frames), stalls %d, desyncs %d", stats.Rollbacks, stats.RolledBackFrames, stats.Stalls, stats.Desyncs),
		)
	}
	if g.notice != "" {
		lines = append(lines, g.notice)
	}
	return strings.Join(lines, "\n")
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.renderer.RenderMap(screen, g.level)
	if g.driver != nil {
		for _, p := range g.driver.World().Players() {
			g.renderer.RenderPlayer(screen, g.level, p, g.local[p.Handle])
		}
	}
	g.renderer.RenderStatus(screen, statusGlyphs[g.status])
	ebitenutil.DebugPrint(screen, g.debugString())
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (screenWidth, screenHeight int) {
	return outsideWidth, outsideHeight
}

// Close ends the match and leaves the room.
func (g *Game) Close() {
	if g.driver != nil {
		g.driver.Close()
	}
	g.signaling.Close()
}
