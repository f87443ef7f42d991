package world

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestLoadMap(t *testing.T) {
	m, err := LoadMap(arena)
	if err != nil {
		t.Fatal(err)
	}
	if m.Width != 8 || m.Height != 6 {
		t.Fatalf("size = %dx%d, want 8x6", m.Width, m.Height)
	}
	if len(m.Spawns) != 2 {
		t.Fatalf("found %d spawns, want 2", len(m.Spawns))
	}
	if got, want := m.SpawnPoint(0), (mgl32.Vec3{-2.5, 0, -1.5}); got != want {
		t.Fatalf("spawn 0 = %v, want %v", got, want)
	}
	if m.SpawnPoint(2) != m.SpawnPoint(0) {
		t.Fatal("spawn points do not cycle")
	}

	tile, err := m.At(3, 3)
	if err != nil || !tile.Dense {
		t.Fatalf("At(3, 3) = %+v, %v; want a wall", tile, err)
	}
	if _, err := m.At(8, 0); err == nil {
		t.Fatal("At(8, 0) is out of bounds")
	}
	if !m.Blocked(100, 0) {
		t.Fatal("outside the map must be blocked")
	}
	if m.Blocked(-2.5, -1.5) {
		t.Fatal("spawn tile is blocked")
	}
}

func TestLoadMapRejectsBadInput(t *testing.T) {
	for _, contents := range []string{
		"",
		"x\n2\n..\n..\n",
		"2\n2\n..\n.\n",
	} {
		if _, err := LoadMap(contents); err == nil {
			t.Fatalf("LoadMap(%q) succeeded", contents)
		}
	}
}
