// Package assets embeds the levels shipped with the binaries.
package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"github.com/automoto/rewind/shared/leveldata"
)

// LevelDir is the directory inside Levels holding the TMX files.
const LevelDir = "levels"

var (
	//go:embed all:levels
	assetFS embed.FS
)

// Levels returns the embedded level files.
func Levels() fs.FS { return assetFS }

// LoadLevel loads the embedded level called name.
func LoadLevel(name string) (*leveldata.Level, error) {
	lvl, err := leveldata.Load(assetFS, path.Join(LevelDir, name+".tmx"))
	if err != nil {
		return nil, fmt.Errorf("embedded level %q: %w", name, err)
	}
	return lvl, nil
}

// OpenLevel loads name from dir on fsys, or from the embedded levels when
// fsys is nil.
func OpenLevel(fsys fs.FS, dir, name string) (*leveldata.Level, error) {
	if fsys == nil {
		return LoadLevel(name)
	}
	levels, names, err := leveldata.LoadAll(fsys, dir)
	if err != nil {
		return nil, err
	}
	lvl, ok := levels[name]
	if !ok {
		return nil, fmt.Errorf("level %q not found, have %v", name, names)
	}
	return lvl, nil
}
