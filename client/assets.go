package client

import (
	"embed"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"netplay/world"
)

const (
	dir = "assets"
)

//go:embed assets/*
var assets embed.FS

//go:embed assets/version.txt
var Version string

type Assets struct {
	maps map[string]*world.Map
}

// Map returns the embedded level called name.
func (a *Assets) Map(name string) (*world.Map, error) {
	m := a.maps[name]
	if m == nil {
		return nil, fmt.Errorf("invalid map name: %s", name)
	}
	return m, nil
}

func LoadAssets() (*Assets, error) {
	a := &Assets{
		maps: make(map[string]*world.Map),
	}

	files, err := assets.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}

		name := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		switch filepath.Ext(strings.ToLower(f.Name())) {
		case ".map":
			if _, ok := a.maps[name]; ok {
				return nil, fmt.Errorf("duplicate filename: %s", name)
			}
			// Can't use filepath.Join due to Windows using backlash and assets expecting a forward slash.
			file, err := assets.Open(strings.Join([]string{dir, f.Name()}, "/"))
			if err != nil {
				return nil, err
			}
			contents, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return nil, err
			}
			m, err := world.LoadMap(string(contents))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name(), err)
			}
			a.maps[name] = m
		}
	}
	return a, nil
}
