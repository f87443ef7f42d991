package main

import (
	"log"
	"math/rand"
	"os"
	"strconv"

	"github.com/hajimehoshi/ebiten/v2"

	"netplay/client"
	"netplay/input"
	"netplay/rollback"
	"netplay/server"
	"netplay/utils"
	"netplay/world"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Llongfile)

	mode := ""
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	switch mode {
	case "server":
		if err := server.Run(os.Args[1:]); err != nil {
			log.Fatal(err)
		}
		return
	case "synctest":
		if err := syncTest(os.Args[2:]); err != nil {
			log.Fatal(err)
		}
		return
	case "host":
		// Host the room in-process and join it.
		go func() {
			if err := server.Run([]string{}); err != nil {
				log.Fatal(err)
			}
			log.Fatal("server shutdown")
		}()
	}

	assets, err := client.LoadAssets()
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := utils.Load("config.toml")
	if err != nil {
		log.Fatal(err)
	}
	resolutionConfig := cfg.UI.Resolution
	log.Printf("%+v", cfg.Network)

	ebiten.SetWindowSize(resolutionConfig.X, resolutionConfig.Y)
	ebiten.SetWindowTitle("netplay")
	ebiten.SetTPS(cfg.Sim.TickRate)

	game, err := client.NewGame(cfg, assets, log.Default())
	if err != nil {
		log.Fatal(err)
	}
	defer game.Close()

	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}

// syncTest runs the simulation headless with random input for every
// configured player, rolling back every frame to check determinism.
// Arguments: [frames] [checkDistance].
func syncTest(args []string) error {
	frames, distance := 600, 7
	var err error
	if len(args) > 0 {
		if frames, err = strconv.Atoi(args[0]); err != nil {
			return err
		}
	}
	if len(args) > 1 {
		if distance, err = strconv.Atoi(args[1]); err != nil {
			return err
		}
	}

	cfg, err := utils.Load("config.toml")
	if err != nil {
		return err
	}
	assets, err := client.LoadAssets()
	if err != nil {
		return err
	}
	level, err := assets.Map("arena")
	if err != nil {
		return err
	}
	basis, err := world.ParseBasisMode(cfg.Player.Basis)
	if err != nil {
		return err
	}

	w := world.NewWorld(world.Options{
		Window: distance + 2,
		Basis:  basis,
		Tuning: client.TuningFor(cfg),
		Map:    level,
	})
	handles := make([]input.Handle, cfg.Network.NumPlayers)
	devices := make([]*input.StaticDevice, len(handles))
	collector := input.NewCollector(nil)
	for i := range handles {
		handles[i] = input.Handle(i)
		devices[i] = &input.StaticDevice{}
		collector.WithDevice(handles[i], devices[i])
		w.SpawnPlayer(handles[i])
	}

	st, err := rollback.NewSyncTest(w, collector, handles, distance)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(1))
	for st.Frame() < input.Frame(frames) {
		for _, d := range devices {
			// Hold each choice for a while so jumps and runs play out.
			if rng.Intn(8) == 0 {
				d.Actions = input.Action(rng.Intn(64))
				d.Rotation = world.YawRotation(rng.Float32() * 6.283)
			}
		}
		if err := st.Tick(); err != nil {
			return err
		}
	}
	log.Printf("synctest: %d frames, %d players, check distance %d: ok", frames, len(handles), distance)
	return nil
}
