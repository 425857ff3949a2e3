package leveldata

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lafriks/go-tiled"
)

const (
	solidLayer  = "wg-tiles"
	spawnGroup  = "PlayerSpawn"
	sceneGroup  = "Scene"
	spawnIndexP = "spawnIndex"
	slopeP      = "slope"
)

// Load parses a TMX file. It takes an fs.FS so callers can pass embed.FS or
// os.DirFS.
func Load(fsys fs.FS, tmxPath string) (*Level, error) {
	m, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", tmxPath, err)
	}

	lvl := &Level{
		Name:   strings.TrimSuffix(filepath.Base(tmxPath), ".tmx"),
		Width:  m.Width * m.TileWidth,
		Height: m.Height * m.TileHeight,
	}
	lvl.Solids = solids(m)

	for _, og := range m.ObjectGroups {
		switch og.Name {
		case spawnGroup:
			for _, o := range og.Objects {
				lvl.Spawns = append(lvl.Spawns, SpawnPoint{
					X:     o.X,
					Y:     o.Y,
					Index: o.Properties.GetInt(spawnIndexP),
				})
			}
		case sceneGroup:
			for _, o := range og.Objects {
				props := make(map[string]string, len(o.Properties))
				for _, p := range o.Properties {
					props[p.Name] = p.Value
				}
				lvl.Scene = append(lvl.Scene, SceneObject{
					ID:         o.ID,
					Kind:       o.Name,
					X:          o.X,
					Y:          o.Y,
					W:          o.Width,
					H:          o.Height,
					Rotation:   o.Rotation,
					Properties: props,
				})
			}
		}
	}

	// Spawns left to right for round-robin assignment, scene objects in
	// editor order.
	sort.SliceStable(lvl.Spawns, func(i, j int) bool { return lvl.Spawns[i].X < lvl.Spawns[j].X })
	sort.SliceStable(lvl.Scene, func(i, j int) bool { return lvl.Scene[i].ID < lvl.Scene[j].ID })
	return lvl, nil
}

func solids(m *tiled.Map) []Solid {
	var out []Solid
	tileW, tileH := float64(m.TileWidth), float64(m.TileHeight)
	for _, layer := range m.Layers {
		if layer.Name != solidLayer {
			continue
		}
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				tile := layer.Tiles[y*m.Width+x]
				if tile.IsNil() {
					continue
				}
				var slope string
				if ts, err := tile.Tileset.GetTilesetTile(tile.ID); err == nil {
					slope = ts.Properties.GetString(slopeP)
				}
				out = append(out, Solid{
					X: float64(x) * tileW, Y: float64(y) * tileH,
					W: tileW, H: tileH,
					Slope: slope,
				})
			}
		}
		break
	}
	return out
}

// LoadAll loads every .tmx file in dir, keyed by file stem, and returns the
// sorted stems.
func LoadAll(fsys fs.FS, dir string) (map[string]*Level, []string, error) {
	pattern := path.Join(dir, "*.tmx")
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("no .tmx files found in %s", dir)
	}

	levels := make(map[string]*Level, len(matches))
	names := make([]string, 0, len(matches))
	for _, path := range matches {
		lvl, err := Load(fsys, path)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", path, err)
		}
		levels[lvl.Name] = lvl
		names = append(names, lvl.Name)
	}
	sort.Strings(names)
	return levels, names, nil
}
