package prebuilt

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/yohamta/donburi"

	"github.com/automoto/rewind/physics"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
	"github.com/automoto/rewind/shared/gamemath"
)

type ProjectileConfig struct {
	// Speed is in pixels per 60 Hz sub-step.
	Speed         float64
	Size          float64
	LifetimeTicks uint16
}

func DefaultProjectileConfig() ProjectileConfig {
	return ProjectileConfig{Speed: 8, Size: 6, LifetimeTicks: 60}
}

type ProjectileState struct {
	BodyState
	Age uint16
}

// Hit is raised when a projectile overlaps another body.
type Hit struct {
	Projectile prediction.ObjectID
	Target     prediction.ObjectID
	Normal     mgl64.Vec3
}

// Projectile flies straight until it touches a solid tile or another body,
// or runs out of lifetime.
type Projectile struct {
	Config ProjectileConfig
	Hit    *prediction.Event[Hit]

	binding
	object  prediction.ObjectID
	events  *prediction.PhysicsEvents
	heading mgl64.Quat
	smooth  *interp.Smoother
}

func NewProjectile(cfg ProjectileConfig, body *physics.Body, entry *donburi.Entry) *Projectile {
	return &Projectile{
		Config:  cfg,
		binding: binding{body: body, entry: entry},
		heading: mgl64.QuatIdent(),
		smooth:  interp.NewSmoother(interp.DefaultPositionSettings(), interp.DefaultRotationSettings()),
	}
}

// Launch places the body centered on pose and sets it moving along the
// pose's rotation.
func (p *Projectile) Launch(pose interp.Pose) {
	x, y := cornerAt(pose.Position, p.Config.Size, p.Config.Size)
	angle := angleOf(pose.Rotation)
	p.heading = pose.Rotation
	p.body.SetPosition(x, y)
	hx, hy := gamemath.Heading(angle)
	p.body.VX, p.body.VY = hx*p.Config.Speed, hy*p.Config.Speed
	p.body.HitSolid, p.body.Touched = false, false
	p.body.Active = true
}

func (p *Projectile) Setup(ctx prediction.Context, id prediction.ComponentID) {
	p.object = id.Object
	p.events = ctx.Events()
	p.events.Subscribe(id.Object, p.onContact)
}

func (p *Projectile) Teardown() {
	if p.events != nil {
		p.events.Unsubscribe(p.object)
	}
}

func (p *Projectile) Simulate(ctx prediction.Context, s *ProjectileState, _ float64) {
	s.Age++
	if s.Age > p.Config.LifetimeTicks || s.Blocked || s.Touched {
		_ = ctx.Hierarchy().Delete(ctx, p.object)
	}
}

func (p *Projectile) onContact(ctx prediction.Context, c prediction.Contact) {
	if p.Hit != nil {
		p.Hit.Invoke(ctx, Hit{Projectile: c.A, Target: c.B, Normal: c.Normal})
	}
}

func (p *Projectile) PullState(s *ProjectileState) { p.pull(&s.BodyState) }
func (p *Projectile) PushState(s ProjectileState)  { p.push(s.BodyState) }

func (p *Projectile) Interpolate(from, to ProjectileState, t float64) ProjectileState {
	out := to
	out.BodyState = lerpBody(from.BodyState, to.BodyState, t)
	return out
}

func (p *Projectile) CorrectView(s *ProjectileState, delta float64, accumulate bool) {
	p.smoothed(p.smooth, &s.BodyState, delta, accumulate)
}

func (p *Projectile) RecordView(s ProjectileState) { p.recorded(p.smooth, s.BodyState) }

func (p *Projectile) ResetView() { p.smooth.Reset() }

func (p *Projectile) UpdateView(view ProjectileState, _ *ProjectileState) {
	p.render(view.BodyState, p.heading)
}
