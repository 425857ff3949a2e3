package leveldata

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arenaTMX = `<?xml version="1.0" encoding="UTF-8"?>
<map version="1.10" orientation="orthogonal" renderorder="right-down" width="4" height="3" tilewidth="16" tileheight="16" infinite="0" nextlayerid="4" nextobjectid="6">
 <tileset firstgid="1" name="tiles" tilewidth="16" tileheight="16" tilecount="1" columns="1">
  <image source="tiles.png" width="16" height="16"/>
 </tileset>
 <layer id="1" name="wg-tiles" width="4" height="3">
  <data encoding="csv">
0,0,0,0,
0,0,0,0,
1,1,0,1
</data>
 </layer>
 <objectgroup id="2" name="PlayerSpawn">
  <object id="1" x="40" y="8">
   <properties><property name="spawnIndex" type="int" value="1"/></properties>
  </object>
  <object id="2" x="8" y="8">
   <properties><property name="spawnIndex" type="int" value="0"/></properties>
  </object>
 </objectgroup>
 <objectgroup id="3" name="Scene">
  <object id="5" name="crate" x="32" y="16" width="16" height="16"/>
  <object id="4" name="turret" x="48" y="0" width="16" height="16" rotation="90">
   <properties><property name="cooldown" value="1.5"/></properties>
  </object>
 </objectgroup>
</map>
`

func levelFS() fstest.MapFS {
	return fstest.MapFS{
		"levels/arena.tmx": {Data: []byte(arenaTMX)},
		"levels/tiles.png": {Data: []byte{}},
	}
}

func TestLoadParsesSolidsSpawnsAndScene(t *testing.T) {
	lvl, err := Load(levelFS(), "levels/arena.tmx")
	require.NoError(t, err)

	assert.Equal(t, "arena", lvl.Name)
	assert.Equal(t, 64, lvl.Width)
	assert.Equal(t, 48, lvl.Height)

	require.Len(t, lvl.Solids, 3)
	assert.Equal(t, Solid{X: 0, Y: 32, W: 16, H: 16}, lvl.Solids[0])
	assert.Equal(t, 48.0, lvl.Solids[2].X)

	require.Len(t, lvl.Spawns, 2)
	assert.Equal(t, SpawnPoint{X: 8, Y: 8, Index: 0}, lvl.Spawns[0])
	assert.Equal(t, 1, lvl.Spawns[1].Index)

	require.Len(t, lvl.Scene, 2)
	assert.Equal(t, "turret", lvl.Scene[0].Kind)
	assert.Equal(t, 90.0, lvl.Scene[0].Rotation)
	assert.Equal(t, "1.5", lvl.Scene[0].Properties["cooldown"])
	assert.Equal(t, "crate", lvl.Scene[1].Kind)
}

func TestLoadAllSortsNames(t *testing.T) {
	fsys := levelFS()
	fsys["levels/beta.tmx"] = &fstest.MapFile{Data: []byte(arenaTMX)}

	levels, names, err := LoadAll(fsys, "levels")
	require.NoError(t, err)
	assert.Equal(t, []string{"arena", "beta"}, names)
	assert.Len(t, levels, 2)
}

func TestLoadAllWithoutLevels(t *testing.T) {
	_, _, err := LoadAll(fstest.MapFS{}, "levels")
	assert.Error(t, err)
}
