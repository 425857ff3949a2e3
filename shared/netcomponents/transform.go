package netcomponents

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/yohamta/donburi"
)

// TransformData is the engine-side pose of an object. Predicted entities
// push their state into it after a rollback and pull from it after physics.
type TransformData struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

var Transform = donburi.NewComponentType[TransformData](TransformData{Rotation: mgl64.QuatIdent()})
