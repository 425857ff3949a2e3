package prebuilt

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/automoto/rewind/logging"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
	"github.com/automoto/rewind/shared/leveldata"
)

// PlayerSpawner gives every player that joins an avatar at the next spawn
// point, round robin, and deletes it when they leave. It only acts on the
// server; clients receive the spawns through the hierarchy state.
type PlayerSpawner struct {
	prefab  prediction.PrefabID
	spawns  []leveldata.SpawnPoint
	next    int
	players map[prediction.PlayerID]prediction.ObjectID
	log     logging.Logger
}

func NewPlayerSpawner(m *prediction.Manager, prefab prediction.PrefabID, spawns []leveldata.SpawnPoint) *PlayerSpawner {
	s := &PlayerSpawner{
		prefab:  prefab,
		spawns:  spawns,
		players: make(map[prediction.PlayerID]prediction.ObjectID),
		log:     m.Logger(),
	}
	m.Players().OnPlayerAdded(s.added)
	m.Players().OnPlayerRemoved(s.removed)
	return s
}

// Object returns the avatar of player.
func (s *PlayerSpawner) Object(player prediction.PlayerID) (prediction.ObjectID, bool) {
	obj, ok := s.players[player]
	return obj, ok
}

func (s *PlayerSpawner) point() mgl64.Vec3 {
	if len(s.spawns) == 0 {
		return mgl64.Vec3{}
	}
	p := s.spawns[s.next%len(s.spawns)]
	s.next++
	return mgl64.Vec3{p.X, p.Y, 0}
}

func (s *PlayerSpawner) added(ctx prediction.Context, player prediction.PlayerID) {
	if !ctx.IsServer() {
		return
	}
	pose := interp.Pose{Position: s.point(), Rotation: mgl64.QuatIdent()}
	obj, err := ctx.Hierarchy().Create(ctx, s.prefab, pose, player)
	if err != nil {
		s.log.Error("spawn player", "player", player, "err", err)
		return
	}
	s.players[player] = obj
	s.log.Info("player spawned", "player", player, "object", obj, "x", pose.Position.X(), "y", pose.Position.Y())
}

func (s *PlayerSpawner) removed(ctx prediction.Context, player prediction.PlayerID) {
	if !ctx.IsServer() {
		return
	}
	obj, ok := s.players[player]
	if !ok {
		return
	}
	delete(s.players, player)
	if err := ctx.Hierarchy().Delete(ctx, obj); err != nil {
		s.log.Warn("despawn player", "player", player, "object", obj, "err", err)
	}
}
