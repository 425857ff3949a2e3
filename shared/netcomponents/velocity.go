package netcomponents

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/yohamta/donburi"
)

type VelocityData struct {
	Linear mgl64.Vec3
}

var Velocity = donburi.NewComponentType[VelocityData]()
