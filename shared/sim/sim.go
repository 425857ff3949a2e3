// Package sim assembles one peer's simulation for a level: the physics
// world, the object directory with the prebuilt prefabs and the prediction
// manager driving them. Server and clients build it the same way so scene
// objects get the same ids everywhere.
package sim

import (
	"errors"
	"fmt"

	"github.com/yohamta/donburi"

	"github.com/automoto/rewind/directory"
	"github.com/automoto/rewind/logging"
	"github.com/automoto/rewind/physics"
	"github.com/automoto/rewind/prebuilt"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/shared/leveldata"
)

var ErrNoLevel = errors.New("sim: no level")

type Options struct {
	Prediction prediction.Config
	Physics    physics.Config
	// Kit builds the prefab kit; nil uses prebuilt.NewKit.
	Kit func(world *physics.World) *prebuilt.Kit

	Transport prediction.Transport
	Logger    logging.Logger
	Metrics   prediction.Metrics
}

type Sim struct {
	Level     *leveldata.Level
	Manager   *prediction.Manager
	World     *physics.World
	Directory *directory.Directory
	Kit       *prebuilt.Kit
	Scene     []prediction.ObjectID
}

func New(level *leveldata.Level, role prediction.Role, opts Options) (*Sim, error) {
	if level == nil {
		return nil, ErrNoLevel
	}
	log := logging.OrNop(opts.Logger)

	s := &Sim{Level: level}
	s.World = physics.NewWorld(level, opts.Physics, log)
	s.Directory = directory.New(donburi.NewWorld(), log)
	if opts.Kit != nil {
		s.Kit = opts.Kit(s.World)
	} else {
		s.Kit = prebuilt.NewKit(s.World)
	}
	if err := s.Kit.Register(s.Directory); err != nil {
		return nil, err
	}

	s.Manager = prediction.NewManager(opts.Prediction, role, prediction.Dependencies{
		Transport: opts.Transport,
		Physics:   s.World,
		Directory: s.Directory,
		Logger:    log,
		Metrics:   opts.Metrics,
	})
	s.World.SetRecorder(s.Manager.Events())

	scene, err := s.Directory.LoadScene(s.Manager.Hierarchy(), level.Scene, s.Kit.SceneKinds())
	if err != nil {
		s.Manager.Close()
		return nil, fmt.Errorf("load scene %q: %w", level.Name, err)
	}
	s.Scene = scene
	return s, nil
}

// Player returns the avatar owned by owner, if one exists.
func (s *Sim) Player(owner prediction.PlayerID) (*prebuilt.Player, bool) {
	var found *prebuilt.Player
	s.Directory.Each(func(obj *directory.Object) {
		if p, ok := obj.Data.(*prebuilt.Player); ok && obj.Owner == owner && found == nil {
			found = p
		}
	})
	return found, found != nil
}

func (s *Sim) Close() { s.Manager.Close() }
