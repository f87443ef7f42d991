package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type NetworkConfig struct {
	RoomURL          string `env:"ROOM_URL"`
	ListenAddr       string `env:"LISTEN_ADDR"`
	NumPlayers       int    `env:"NUM_PLAYERS"`
	InputDelay       int    `env:"INPUT_DELAY"`
	MaxPrediction    int    `env:"MAX_PREDICTION"`
	ChecksumInterval int    `env:"CHECKSUM_INTERVAL"`
}

type SimConfig struct {
	TickRate int `env:"TICK_RATE"`
}

type PlayerConfig struct {
	Speed         float64 `env:"SPEED"`
	RunMultiplier float64 `env:"RUN_MULTIPLIER"`
	JumpVelocity  float64 `env:"JUMP_VELOCITY"`
	FloatHeight   float64 `env:"FLOAT_HEIGHT"`
	Basis         string  `env:"BASIS"`
}

type ResolutionConfig struct {
	X int `env:"X"`
	Y int `env:"Y"`
}

type UIConfig struct {
	Resolution ResolutionConfig `envPrefix:"RESOLUTION_"`
}

type MathConfig struct {
	Float64EqualityThreshold float64
}

type Config struct {
	Network NetworkConfig `envPrefix:"NETWORK_"`
	Sim     SimConfig     `envPrefix:"SIM_"`
	Player  PlayerConfig  `envPrefix:"PLAYER_"`
	UI      UIConfig      `envPrefix:"UI_"`
	Math    MathConfig
}

// EnvPrefix is prepended to every environment override, e.g.
// NETPLAY_NETWORK_ROOM_URL.
const EnvPrefix = "NETPLAY_"

func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			RoomURL:          "ws://localhost:3536/netplay?next=2",
			ListenAddr:       "localhost:3536",
			NumPlayers:       2,
			InputDelay:       2,
			MaxPrediction:    8,
			ChecksumInterval: 60,
		},
		Sim: SimConfig{TickRate: 60},
		Player: PlayerConfig{
			Speed:         4,
			RunMultiplier: 2,
			JumpVelocity:  6,
			FloatHeight:   0.2,
			Basis:         "input",
		},
		UI:   UIConfig{Resolution: ResolutionConfig{X: 960, Y: 720}},
		Math: MathConfig{Float64EqualityThreshold: 0.5},
	}
}

// ReadTOML reads fileName over the defaults. Keys missing from the file keep
// their default value.
func ReadTOML(fileName string) (*Config, error) {
	file, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return config, nil
}

// Load reads the TOML file at fileName if it exists, then a .env file if it
// exists, then applies NETPLAY_* environment overrides.
func Load(fileName string) (*Config, error) {
	config, err := ReadTOML(fileName)
	if errors.Is(err, fs.ErrNotExist) {
		config, err = DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	n := c.Network
	switch {
	case n.NumPlayers < 1 || n.NumPlayers > 255:
		return fmt.Errorf("NumPlayers = %d, want 1..255", n.NumPlayers)
	case n.InputDelay < 0:
		return fmt.Errorf("InputDelay = %d, want >= 0", n.InputDelay)
	case n.MaxPrediction < 1:
		return fmt.Errorf("MaxPrediction = %d, want >= 1", n.MaxPrediction)
	case c.Sim.TickRate < 1:
		return fmt.Errorf("TickRate = %d, want >= 1", c.Sim.TickRate)
	}
	return nil
}

func AlmostEqual(a, b, threshold float64) bool {
	return math.Abs(a-b) <= threshold
}
