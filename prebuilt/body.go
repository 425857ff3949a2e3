// Package prebuilt holds ready-made predicted behaviors for the platformer:
// a physics-driven player mover, a shooter that spawns projectiles through
// the hierarchy, the projectiles themselves and a server-side spawner that
// gives every connected player an avatar.
package prebuilt

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/yohamta/donburi"

	"github.com/automoto/rewind/physics"
	"github.com/automoto/rewind/prediction/interp"
	nc "github.com/automoto/rewind/shared/netcomponents"
)

// BodyState is the part of a physics body that rolls back. X and Y are the
// body's top-left corner.
type BodyState struct {
	X, Y     float64
	VX, VY   float64
	OnGround bool
	Blocked  bool
	Touched  bool
}

// Center returns the middle of a body of size w x h in state s.
func (s BodyState) Center(w, h float64) mgl64.Vec3 {
	return mgl64.Vec3{s.X + w/2, s.Y + h/2, 0}
}

func lerpBody(from, to BodyState, t float64) BodyState {
	out := to
	out.X = from.X + (to.X-from.X)*t
	out.Y = from.Y + (to.Y-from.Y)*t
	return out
}

// binding copies a BodyState between a physics body and the donburi entry
// mirroring it.
type binding struct {
	body  *physics.Body
	entry *donburi.Entry
}

func (b binding) pull(s *BodyState) {
	s.X, s.Y = b.body.Position()
	s.VX, s.VY = b.body.VX, b.body.VY
	s.OnGround = b.body.OnGround
	s.Blocked = b.body.HitSolid
	s.Touched = b.body.Touched
	b.mirror(*s)
}

func (b binding) push(s BodyState) {
	b.body.SetPosition(s.X, s.Y)
	b.body.VX, b.body.VY = s.VX, s.VY
	b.body.OnGround = s.OnGround
	b.body.HitSolid = s.Blocked
	b.body.Touched = s.Touched
	b.mirror(s)
}

func (b binding) mirror(s BodyState) {
	if b.entry == nil || !b.entry.Valid() {
		return
	}
	nc.Velocity.SetValue(b.entry, nc.VelocityData{Linear: mgl64.Vec3{s.VX, s.VY, 0}})
}

// render writes the pose a renderer should draw.
func (b binding) render(s BodyState, rot mgl64.Quat) {
	if b.entry == nil || !b.entry.Valid() {
		return
	}
	w, h := b.body.Size()
	nc.Transform.SetValue(b.entry, nc.TransformData{Position: s.Center(w, h), Rotation: rot})
}

// smoothed runs s through the smoother and writes the corrected corner back.
func (b binding) recorded(sm *interp.Smoother, s BodyState) {
	sm.Record(interp.Pose{Position: mgl64.Vec3{s.X, s.Y, 0}, Rotation: mgl64.QuatIdent()})
}

func (b binding) smoothed(sm *interp.Smoother, s *BodyState, delta float64, accumulate bool) {
	pose := interp.Pose{Position: mgl64.Vec3{s.X, s.Y, 0}, Rotation: mgl64.QuatIdent()}
	view := sm.Correct(pose, delta, accumulate)
	s.X, s.Y = view.Position.X(), view.Position.Y()
}

// subSteps is the number of 60 Hz physics sub-steps in delta.
func subSteps(delta float64) float64 {
	return math.Max(1, math.Round(delta*60))
}

// angleOf returns the rotation of q around the z axis.
func angleOf(q mgl64.Quat) float64 {
	return 2 * math.Atan2(q.V.Z(), q.W)
}

// cornerAt places a w x h body so its center sits at p.
func cornerAt(p mgl64.Vec3, w, h float64) (x, y float64) {
	return p.X() - w/2, p.Y() - h/2
}
