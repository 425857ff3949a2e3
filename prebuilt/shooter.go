package prebuilt

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
	"github.com/automoto/rewind/shared/gamemath"
)

type ShooterConfig struct {
	Projectile    prediction.PrefabID
	CooldownTicks uint16
	// Muzzle is how far from the shooter's center projectiles appear.
	Muzzle float64
}

func DefaultShooterConfig(projectile prediction.PrefabID) ShooterConfig {
	return ShooterConfig{Projectile: projectile, CooldownTicks: 10, Muzzle: 20}
}

// ShooterInput carries an absolute aim angle in radians. A nil Aim fires
// along the mover's facing.
type ShooterInput struct {
	Fire bool
	Aim  *float64
}

type ShooterState struct {
	Cooldown uint16
	Shots    uint32
}

// Shot is raised once per projectile fired.
type Shot struct {
	Projectile prediction.ObjectID
	Angle      float64
}

// Shooter spawns projectiles from the center of the mover it is paired with.
type Shooter struct {
	Config  ShooterConfig
	Capture func(in *ShooterInput)
	Fired   *prediction.Event[Shot]

	mover    *Mover
	movement *prediction.Predicted[MoverInput, MoverState]
}

// NewShooter pairs a shooter with movement, which must be simulated before
// it within the tick.
func NewShooter(cfg ShooterConfig, mover *Mover, movement *prediction.Predicted[MoverInput, MoverState]) *Shooter {
	return &Shooter{Config: cfg, mover: mover, movement: movement}
}

func (sh *Shooter) Simulate(ctx prediction.Context, in ShooterInput, s *ShooterState, _ float64) {
	if s.Cooldown > 0 {
		s.Cooldown--
	}
	if !in.Fire || s.Cooldown > 0 {
		return
	}

	ms := sh.movement.State()
	angle := gamemath.AimAngle(ms.Facing, in.Aim)
	hx, hy := gamemath.Heading(angle)
	center := sh.mover.Center(ms)
	pose := interp.Pose{
		Position: center.Add(mgl64.Vec3{hx, hy, 0}.Mul(sh.Config.Muzzle)),
		Rotation: mgl64.QuatRotate(angle, mgl64.Vec3{0, 0, 1}),
	}

	obj, err := ctx.Hierarchy().Create(ctx, sh.Config.Projectile, pose, sh.movement.Owner())
	if err != nil {
		// Create has already reported the spawn mismatch; the shot is lost
		// and the cooldown does not start.
		return
	}
	s.Cooldown = sh.Config.CooldownTicks
	s.Shots++
	if sh.Fired != nil {
		sh.Fired.Invoke(ctx, Shot{Projectile: obj, Angle: angle})
	}
}

func (sh *Shooter) CaptureInput(in *ShooterInput) {
	if sh.Capture != nil {
		sh.Capture(in)
	}
}

func (sh *Shooter) SanitizeInput(in *ShooterInput) {
	if in.Aim != nil && (math.IsNaN(*in.Aim) || math.IsInf(*in.Aim, 0)) {
		in.Aim = nil
	}
	if in.Aim != nil {
		a := gamemath.NormalizeAngle(*in.Aim)
		in.Aim = &a
	}
}

// ModifyExtrapolatedInput keeps a repeated input from guessing where a
// remote player aims or whether they fire again.
func (sh *Shooter) ModifyExtrapolatedInput(in *ShooterInput) {
	in.Fire = false
	in.Aim = nil
}

func (sh *Shooter) Interpolate(_, to ShooterState, _ float64) ShooterState { return to }
