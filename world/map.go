package world

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

type tileIndex int

// TileSize is the edge length of a tile in world units.
const TileSize = 1

const (
	floorTile tileIndex = iota
	wallTile
	spawnTile
)

var tileIndices = []Tile{
	// floorTile
	{
		Dense: false,
		Image: "floor",
	},
	// wallTile
	{
		Dense: true,
		Image: "wall",
	},
	// spawnTile
	{
		Dense: false,
		Image: "spawn",
	},
}

type Tile struct {
	Dense bool
	Image string
}

// Map is a grid of tiles on the XZ plane, centered on the world origin. Rows
// run along +Z.
type Map struct {
	Tiles  []tileIndex
	Width  int64
	Height int64
	Spawns []mgl32.Vec3
}

var errOutOfBounds = errors.New("out of bounds")

func (m *Map) At(x, z int64) (*Tile, error) {
	if x < 0 || x >= m.Width || z < 0 || z >= m.Height {
		return nil, errOutOfBounds
	}
	return &tileIndices[m.Tiles[m.Width*z+x]], nil
}

func (m *Map) ForEach(callback func(x, z int64, tile Tile)) {
	for z := int64(0); z < m.Height; z++ {
		for x := int64(0); x < m.Width; x++ {
			callback(x, z, tileIndices[m.Tiles[m.Width*z+x]])
		}
	}
}

// Origin is the world position of the corner of tile (0, 0).
func (m *Map) Origin() mgl32.Vec3 {
	return mgl32.Vec3{-float32(m.Width) * TileSize / 2, 0, -float32(m.Height) * TileSize / 2}
}

// ToTileCoordinates returns the tile containing world position (x, z).
func (m *Map) ToTileCoordinates(x, z float32) (int64, int64) {
	o := m.Origin()
	tx := int64(math.Floor(float64((x - o[0]) / TileSize)))
	tz := int64(math.Floor(float64((z - o[2]) / TileSize)))
	return tx, tz
}

// TileCenter returns the world position of the middle of tile (x, z).
func (m *Map) TileCenter(x, z int64) mgl32.Vec3 {
	o := m.Origin()
	return mgl32.Vec3{
		o[0] + mul(float32(x)+0.5, TileSize),
		0,
		o[2] + mul(float32(z)+0.5, TileSize),
	}
}

// Blocked reports whether world position (x, z) is inside a wall or outside
// the map.
func (m *Map) Blocked(x, z float32) bool {
	tile, err := m.At(m.ToTileCoordinates(x, z))
	return err != nil || tile.Dense
}

// SpawnPoint returns the spawn tile for the i-th player, cycling through the
// map's spawn tiles in reading order.
func (m *Map) SpawnPoint(i int) mgl32.Vec3 {
	if len(m.Spawns) == 0 {
		return mgl32.Vec3{}
	}
	return m.Spawns[i%len(m.Spawns)]
}

// LoadMap parses a width line, a height line and then rows of '.' (floor),
// '#' (wall) and 'S' (spawn).
func LoadMap(contents string) (*Map, error) {
	scanner := bufio.NewScanner(strings.NewReader(contents))

	scanner.Scan()
	width, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, fmt.Errorf("map width: %w", err)
	}

	scanner.Scan()
	height, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, fmt.Errorf("map height: %w", err)
	}

	tiles := make([]tileIndex, 0, width*height)
	for scanner.Scan() {
		for _, item := range scanner.Text() {
			switch item {
			case '.':
				tiles = append(tiles, floorTile)
			case '#':
				tiles = append(tiles, wallTile)
			case 'S':
				tiles = append(tiles, spawnTile)
			}
		}
	}
	if len(tiles) != width*height {
		return nil, fmt.Errorf("map has %d tiles, want %dx%d", len(tiles), width, height)
	}

	m := &Map{
		Tiles:  tiles,
		Width:  int64(width),
		Height: int64(height),
	}
	for i, tile := range tiles {
		if tile == spawnTile {
			m.Spawns = append(m.Spawns, m.TileCenter(int64(i)%m.Width, int64(i)/m.Width))
		}
	}
	return m, nil
}
