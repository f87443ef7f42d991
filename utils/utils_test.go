package utils

import (
	"path/filepath"
	"regexp"
	"testing"
)

// TestReadTOML reads a known test config, checking each key it sets and that
// the rest keep their defaults.
func TestReadTOML(t *testing.T) {
	cfg, err := ReadTOML(filepath.Join("testdata", "config.toml"))
	if err != nil {
		t.Fatal(err)
	}

	wantRegex := regexp.MustCompile(`example\.test`)
	if !wantRegex.MatchString(cfg.Network.RoomURL) {
		t.Fatalf(`RoomURL = %q, want match for %#q`, cfg.Network.RoomURL, wantRegex)
	}
	if cfg.Network.NumPlayers != 3 {
		t.Fatalf(`Network.NumPlayers = %v, want 3`, cfg.Network.NumPlayers)
	}
	if cfg.Network.InputDelay != 1 {
		t.Fatalf(`Network.InputDelay = %v, want 1`, cfg.Network.InputDelay)
	}
	if cfg.Network.MaxPrediction != DefaultConfig().Network.MaxPrediction {
		t.Fatalf(`Network.MaxPrediction = %v, want the default`, cfg.Network.MaxPrediction)
	}

	wantFloat := 1.0
	if cfg.Player.Speed != wantFloat {
		t.Fatalf(`Player.Speed = %v, want %v`, cfg.Player.Speed, wantFloat)
	}
	if cfg.Player.Basis != "world" {
		t.Fatalf(`Player.Basis = %q, want "world"`, cfg.Player.Basis)
	}

	wantInt := 1
	if cfg.UI.Resolution.X != wantInt || cfg.UI.Resolution.Y != wantInt {
		t.Fatalf(`UI.Resolution = %+v, want 1x1`, cfg.UI.Resolution)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("NETPLAY_NETWORK_INPUT_DELAY", "4")
	t.Setenv("NETPLAY_PLAYER_BASIS", "input")
	t.Setenv("NETPLAY_UI_RESOLUTION_X", "640")

	cfg, err := Load(filepath.Join("testdata", "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Network.InputDelay != 4 {
		t.Fatalf("InputDelay = %d, want the override 4", cfg.Network.InputDelay)
	}
	if cfg.Player.Basis != "input" {
		t.Fatalf("Basis = %q, want the override", cfg.Player.Basis)
	}
	if cfg.UI.Resolution.X != 640 || cfg.UI.Resolution.Y != 1 {
		t.Fatalf("Resolution = %+v", cfg.UI.Resolution)
	}
	if cfg.Network.NumPlayers != 3 {
		t.Fatalf("NumPlayers = %d, want the file's 3", cfg.Network.NumPlayers)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Network.NumPlayers != 2 || cfg.Sim.TickRate != 60 {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("NETPLAY_NETWORK_NUM_PLAYERS", "0")
	if _, err := Load(filepath.Join("testdata", "missing.toml")); err == nil {
		t.Fatal("Load accepted zero players")
	}
}

func TestAlmostEqual(t *testing.T) {
	if !AlmostEqual(1, 1+1e-10, 1e-9) || AlmostEqual(1, 1.1, 1e-9) {
		t.Fatal("AlmostEqual thresholds are wrong")
	}
}
