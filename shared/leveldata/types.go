// Package leveldata parses TMX levels into plain data shared by the server
// and clients: solid tiles for the physics world, player spawn points and
// the objects preloaded with the scene.
package leveldata

// Level holds everything the simulation needs from a TMX file.
type Level struct {
	Name   string
	Width  int
	Height int
	Solids []Solid
	Spawns []SpawnPoint
	Scene  []SceneObject
}

const (
	SlopeUpRight = "45_up_right"
	SlopeUpLeft  = "45_up_left"
)

// Solid is one collision tile. Tiles with a Slope are ramps.
type Solid struct {
	X, Y, W, H float64
	Slope      string // "", SlopeUpRight, SlopeUpLeft
}

// SpawnPoint is a player spawn location.
type SpawnPoint struct {
	X, Y  float64
	Index int
}

// SceneObject is an object placed in the level editor. Every peer loads the
// same list in the same order, which is what lets them agree on the ids the
// objects get when registered.
type SceneObject struct {
	ID         uint32
	Kind       string
	X, Y       float64
	W, H       float64
	Rotation   float64
	Properties map[string]string
}
