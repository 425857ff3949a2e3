package prebuilt

import (
	"github.com/automoto/rewind/directory"
	"github.com/automoto/rewind/physics"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
)

const (
	PlayerPrefab     prediction.PrefabID = 1
	ProjectilePrefab prediction.PrefabID = 2
)

// Kit builds the platformer prefabs on one physics world.
type Kit struct {
	World      *physics.World
	Mover      MoverConfig
	Shooter    ShooterConfig
	Projectile ProjectileConfig

	PlayerWidth, PlayerHeight float64

	// Smoothing tunes how reconciliation error is blended out of the view.
	PositionSmoothing, RotationSmoothing interp.Settings

	// Movement and Aim fill the local player's input. They are only called
	// for the avatar this peer controls.
	Movement func(in *MoverInput)
	Aim      func(in *ShooterInput)

	// OnShot and OnHit receive gameplay events once per tick per peer.
	OnShot func(ctx prediction.Context, s Shot)
	OnHit  func(ctx prediction.Context, h Hit)
	// OnPhase receives every switch between PhaseGround and PhaseAir.
	OnPhase func(ctx prediction.Context, t prediction.Transition)
}

func NewKit(world *physics.World) *Kit {
	return &Kit{
		World:        world,
		Mover:        DefaultMoverConfig(),
		Shooter:      DefaultShooterConfig(ProjectilePrefab),
		Projectile:   DefaultProjectileConfig(),
		PlayerWidth:  16,
		PlayerHeight: 16,

		PositionSmoothing: interp.DefaultPositionSettings(),
		RotationSmoothing: interp.DefaultRotationSettings(),
	}
}

// Register adds the player and projectile prefabs to d.
func (k *Kit) Register(d *directory.Directory) error {
	if err := d.Register(PlayerPrefab, k.PlayerPrefab()); err != nil {
		return err
	}
	return d.Register(ProjectilePrefab, k.ProjectilePrefab())
}

// Player is what a player prefab keeps in directory.Object.Data.
type Player struct {
	Body     *physics.Body
	Mover    *Mover
	Movement *prediction.Predicted[MoverInput, MoverState]
	Shooter  *prediction.Predicted[ShooterInput, ShooterState]
	Phases   *Phases
}

func (k *Kit) PlayerPrefab() directory.Prefab {
	return directory.Prefab{
		Name: "player",
		Build: func(obj *directory.Object) ([]prediction.Entity, error) {
			x, y := cornerAt(obj.Pose.Position, k.PlayerWidth, k.PlayerHeight)
			body := k.World.AddBody(obj.ID, x, y, k.PlayerWidth, k.PlayerHeight)
			body.Solid, body.Active = true, true

			mover := NewMover(k.Mover, body, obj.Entry)
			mover.smooth = k.smoother()
			mover.Capture = k.Movement
			movement := prediction.NewInputEntity[MoverInput, MoverState](mover)

			shooter := NewShooter(k.Shooter, mover, movement)
			shooter.Capture = k.Aim
			shooting := prediction.NewInputEntity[ShooterInput, ShooterState](shooter)
			shooter.Fired = prediction.NewEvent[Shot](shooting)
			if k.OnShot != nil {
				shooter.Fired.AddListener(k.OnShot)
			}

			phases := NewPhases(movement)
			if k.OnPhase != nil {
				phases.Machine.Changed.AddListener(k.OnPhase)
			}

			obj.Data = &Player{Body: body, Mover: mover, Movement: movement, Shooter: shooting, Phases: phases}
			return []prediction.Entity{movement, shooting, phases.Machine.Entity()}, nil
		},
		Place: func(obj *directory.Object) {
			p := obj.Data.(*Player)
			x, y := cornerAt(obj.Pose.Position, k.PlayerWidth, k.PlayerHeight)
			p.Body.Object = obj.ID
			p.Body.SetPosition(x, y)
			p.Body.VX, p.Body.VY = 0, 0
			p.Body.Active = true
		},
		Park: func(obj *directory.Object) {
			obj.Data.(*Player).Body.Active = false
		},
		Release: func(obj *directory.Object) {
			k.World.RemoveBody(obj.Data.(*Player).Body)
		},
	}
}

func (k *Kit) ProjectilePrefab() directory.Prefab {
	return directory.Prefab{
		Name: "projectile",
		Build: func(obj *directory.Object) ([]prediction.Entity, error) {
			size := k.Projectile.Size
			body := k.World.AddBody(obj.ID, 0, 0, size, size)
			body.Solid, body.Gravity = true, false

			proj := NewProjectile(k.Projectile, body, obj.Entry)
			proj.smooth = k.smoother()
			proj.Launch(obj.Pose)
			entity := prediction.NewEntity[ProjectileState](proj)
			proj.Hit = prediction.NewEvent[Hit](entity)
			if k.OnHit != nil {
				proj.Hit.AddListener(k.OnHit)
			}

			obj.Data = proj
			return []prediction.Entity{entity}, nil
		},
		Place: func(obj *directory.Object) {
			proj := obj.Data.(*Projectile)
			proj.body.Object = obj.ID
			proj.Launch(obj.Pose)
		},
		Park: func(obj *directory.Object) {
			obj.Data.(*Projectile).body.Active = false
		},
		Release: func(obj *directory.Object) {
			k.World.RemoveBody(obj.Data.(*Projectile).body)
		},
	}
}

func (k *Kit) smoother() *interp.Smoother {
	return interp.NewSmoother(k.PositionSmoothing, k.RotationSmoothing)
}
