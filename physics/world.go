// Package physics is a deterministic platformer integrator over a resolv
// space. It steps bodies at a fixed 60 Hz sub-step whatever the tick rate,
// resolves them against the level's solid tiles and reports overlaps
// between bodies as contacts.
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/solarlune/resolv"

	"github.com/automoto/rewind/logging"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/shared/gamemath"
	"github.com/automoto/rewind/shared/leveldata"
)

const (
	TagSolid = "solid"
	TagRamp  = "ramp"
	TagBody  = "body"

	subStepRate = 60.0
	// slopeOffset sinks bodies slightly into ramps so the ground check
	// keeps finding them.
	slopeOffset = 0.1
)

// Config holds the integrator constants, in pixels per 60 Hz sub-step.
type Config struct {
	CellSize     int
	Gravity      float64
	MaxFallSpeed float64
	MaxVertSpeed float64
}

func DefaultConfig() Config {
	return Config{
		CellSize:     16,
		Gravity:      0.75,
		MaxFallSpeed: 10,
		MaxVertSpeed: 16,
	}
}

// ContactRecorder receives body overlaps found during Simulate.
type ContactRecorder interface {
	Record(c prediction.Contact)
}

// World implements prediction.PhysicsStep.
type World struct {
	cfg      Config
	space    *resolv.Space
	bodies   []*Body
	recorder ContactRecorder
	log      logging.Logger
}

// NewWorld builds the space for lvl and adds its solid tiles.
func NewWorld(lvl *leveldata.Level, cfg Config, log logging.Logger) *World {
	if cfg.CellSize <= 0 {
		cfg.CellSize = DefaultConfig().CellSize
	}
	w := &World{
		cfg:   cfg,
		space: resolv.NewSpace(lvl.Width, lvl.Height, cfg.CellSize, cfg.CellSize),
		log:   logging.OrNop(log),
	}
	for _, s := range lvl.Solids {
		tags := []string{TagSolid}
		if s.Slope == leveldata.SlopeUpRight || s.Slope == leveldata.SlopeUpLeft {
			tags = []string{TagRamp, s.Slope}
		}
		obj := resolv.NewObject(s.X, s.Y, s.W, s.H, tags...)
		obj.SetShape(resolv.NewRectangle(0, 0, s.W, s.H))
		w.space.Add(obj)
	}
	w.log.Info("physics world built", "level", lvl.Name, "solids", len(lvl.Solids), "width", lvl.Width, "height", lvl.Height)
	return w
}

// SetRecorder routes contacts to r, usually the manager's PhysicsEvents.
func (w *World) SetRecorder(r ContactRecorder) { w.recorder = r }

// Bodies returns the number of bodies in the world.
func (w *World) Bodies() int { return len(w.bodies) }

// AddBody creates a body of size wd x h at (x, y).
func (w *World) AddBody(object prediction.ObjectID, x, y, wd, h float64) *Body {
	obj := resolv.NewObject(x, y, wd, h, TagBody)
	obj.SetShape(resolv.NewRectangle(0, 0, wd, h))
	b := &Body{Object: object, obj: obj, Gravity: true, world: w}
	obj.Data = b
	w.space.Add(obj)
	w.bodies = append(w.bodies, b)
	return b
}

// RemoveBody takes b out of the world.
func (w *World) RemoveBody(b *Body) {
	for i, other := range w.bodies {
		if other == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			break
		}
	}
	if b.obj.Space != nil {
		w.space.Remove(b.obj)
	}
}

// Simulate advances every active body by delta seconds.
func (w *World) Simulate(delta float64) {
	steps := int(math.Round(delta * subStepRate))
	if delta > 0 && steps < 1 {
		steps = 1
	}
	for _, b := range w.bodies {
		b.HitSolid, b.Touched = false, false
	}
	for range steps {
		for _, b := range w.bodies {
			if b.Active {
				w.step(b)
			}
		}
	}
	w.contacts()
}

// SyncTransforms refreshes the broad phase after positions were written
// directly, for example by a rollback.
func (w *World) SyncTransforms() {
	for _, b := range w.bodies {
		b.obj.Update()
	}
}

func (w *World) step(b *Body) {
	if b.Gravity {
		b.VY = min(b.VY+w.cfg.Gravity, w.cfg.MaxFallSpeed)
	}
	w.stepX(b)
	w.stepY(b)
}

// stepX moves b horizontally. Falling bodies walk up and down ramps; the
// rest treat ramps as walls.
func (w *World) stepX(b *Body) {
	dx := b.VX
	if dx == 0 {
		return
	}
	if !b.Solid {
		b.obj.X += dx
		return
	}

	if b.Gravity {
		// Uphill in front, then downhill below.
		for _, offY := range []float64{0, 1} {
			if ramp := first(b.obj.Check(dx, offY, TagRamp), TagRamp); ramp != nil {
				b.obj.X += dx
				b.obj.Update()
				w.snapToRamp(b, ramp)
				return
			}
		}
	}

	blocking := []string{TagSolid}
	if !b.Gravity {
		blocking = append(blocking, TagRamp)
	}
	check := b.obj.Check(dx, 0, blocking...)
	if check != nil {
		if solids := check.ObjectsByTags(blocking...); len(solids) > 0 {
			dx = check.ContactWithObject(solids[0]).X()
			b.VX = 0
			b.HitSolid = true
		}
	}
	b.obj.X += dx
}

// stepY moves b vertically, landing it on ramp surfaces and solid tiles.
func (w *World) stepY(b *Body) {
	dy := math.Max(math.Min(b.VY, w.cfg.MaxVertSpeed), -w.cfg.MaxVertSpeed)
	if b.Solid {
		reach := dy
		if dy >= 0 {
			reach++
		}
		if check := b.obj.Check(0, reach, TagSolid, TagRamp); check != nil {
			if ramps := check.ObjectsByTags(TagRamp); dy >= 0 && len(ramps) > 0 {
				surface := rampSurfaceY(b, ramps[0])
				if b.obj.Y+b.obj.H+dy >= surface {
					w.snapToRamp(b, ramps[0])
					return
				}
			}
			if solids := check.ObjectsByTags(TagSolid); len(solids) > 0 {
				b.obj.Y += check.ContactWithObject(solids[0]).Y()
				b.OnGround = dy >= 0
				b.VY = 0
				b.HitSolid = true
				b.obj.Update()
				return
			}
		}
	}
	b.OnGround = false
	b.obj.Y += dy
	b.obj.Update()
}

func (w *World) snapToRamp(b *Body, ramp *resolv.Object) {
	b.obj.Y = gamemath.SnapToSlopeY(b.obj.H, rampSurfaceY(b, ramp), slopeOffset)
	b.obj.Update()
	b.OnGround = true
	b.VY = 0
}

func rampSurfaceY(b *Body, ramp *resolv.Object) float64 {
	rise := gamemath.RiseFlat
	switch {
	case ramp.HasTags(leveldata.SlopeUpRight):
		rise = gamemath.RiseRight
	case ramp.HasTags(leveldata.SlopeUpLeft):
		rise = gamemath.RiseLeft
	}
	return gamemath.SlopeSurfaceY(b.obj.X+b.obj.W/2, ramp.X, ramp.Y, ramp.W, ramp.H, rise)
}

// first returns the first object of check carrying tag.
func first(check *resolv.Collision, tag string) *resolv.Object {
	if check == nil {
		return nil
	}
	if objs := check.ObjectsByTags(tag); len(objs) > 0 {
		return objs[0]
	}
	return nil
}

// contacts flags every overlapping pair of active bodies and reports it
// once, lower index first.
func (w *World) contacts() {
	index := make(map[*Body]int, len(w.bodies))
	for i, b := range w.bodies {
		index[b] = i
	}
	for i, b := range w.bodies {
		if !b.Active {
			continue
		}
		check := b.obj.Check(0, 0, TagBody)
		if check == nil {
			continue
		}
		for _, o := range check.ObjectsByTags(TagBody) {
			other, ok := o.Data.(*Body)
			if !ok || !other.Active || index[other] <= i || !overlaps(b, other) {
				continue
			}
			b.Touched, other.Touched = true, true
			if w.recorder == nil {
				continue
			}
			normal := other.center().Sub(b.center())
			if normal.Len() > 0 {
				normal = normal.Normalize()
			}
			w.recorder.Record(prediction.Contact{A: b.Object, B: other.Object, Normal: normal})
		}
	}
}

func overlaps(a, b *Body) bool {
	return a.obj.X < b.obj.X+b.obj.W && b.obj.X < a.obj.X+a.obj.W &&
		a.obj.Y < b.obj.Y+b.obj.H && b.obj.Y < a.obj.Y+a.obj.H
}

var _ prediction.PhysicsStep = (*World)(nil)

// Body is a moving axis-aligned box.
type Body struct {
	Object prediction.ObjectID
	VX, VY float64

	// Gravity pulls the body down every sub-step.
	Gravity bool
	// Solid bodies stop at solid tiles; others pass through them.
	Solid bool
	// Active bodies are stepped and report contacts.
	Active bool

	OnGround bool
	// HitSolid reports whether the body touched a solid tile during the
	// last Simulate.
	HitSolid bool
	// Touched reports whether the body overlapped another active body at
	// the end of the last Simulate.
	Touched bool

	obj   *resolv.Object
	world *World
}

// Position returns the top-left corner of the body.
func (b *Body) Position() (x, y float64) { return b.obj.X, b.obj.Y }

// Size returns the body's width and height.
func (b *Body) Size() (w, h float64) { return b.obj.W, b.obj.H }

// SetPosition moves the body without collision. The broad phase catches up
// on the next step or SyncTransforms.
func (b *Body) SetPosition(x, y float64) {
	b.obj.X, b.obj.Y = x, y
}

func (b *Body) center() mgl64.Vec3 {
	return mgl64.Vec3{b.obj.X + b.obj.W/2, b.obj.Y + b.obj.H/2, 0}
}
