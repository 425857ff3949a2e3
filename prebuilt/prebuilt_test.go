package prebuilt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yohamta/donburi"

	"github.com/automoto/rewind/directory"
	"github.com/automoto/rewind/physics"
	"github.com/automoto/rewind/prebuilt"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/loopback"
	"github.com/automoto/rewind/shared/leveldata"
)

const clientID prediction.PlayerID = 2

func arena() *leveldata.Level {
	return &leveldata.Level{
		Name:   "arena",
		Width:  640,
		Height: 160,
		Solids: []leveldata.Solid{
			{X: 0, Y: 128, W: 640, H: 16},
			{X: 400, Y: 0, W: 16, H: 128},
		},
		Spawns: []leveldata.SpawnPoint{
			{X: 100, Y: 100, Index: 0},
			{X: 200, Y: 100, Index: 1},
		},
	}
}

type platformPeer struct {
	m       *prediction.Manager
	world   *physics.World
	dir     *directory.Directory
	kit     *prebuilt.Kit
	spawner *prebuilt.PlayerSpawner

	shots  []prebuilt.Shot
	hits   []prebuilt.Hit
	phases []prediction.Transition
}

func newPlatformPeer(t *testing.T, role prediction.Role, input func(*prebuilt.MoverInput), aim func(*prebuilt.ShooterInput)) *platformPeer {
	t.Helper()
	lvl := arena()
	p := &platformPeer{world: physics.NewWorld(lvl, physics.DefaultConfig(), nil)}
	p.dir = directory.New(donburi.NewWorld(), nil)
	p.kit = prebuilt.NewKit(p.world)
	p.kit.Movement, p.kit.Aim = input, aim
	p.kit.OnShot = func(_ prediction.Context, s prebuilt.Shot) { p.shots = append(p.shots, s) }
	p.kit.OnHit = func(_ prediction.Context, h prebuilt.Hit) { p.hits = append(p.hits, h) }
	p.kit.OnPhase = func(_ prediction.Context, tr prediction.Transition) { p.phases = append(p.phases, tr) }
	require.NoError(t, p.kit.Register(p.dir))

	p.m = prediction.NewManager(prediction.DefaultConfig(), role, prediction.Dependencies{
		Physics:   p.world,
		Directory: p.dir,
	})
	p.world.SetRecorder(p.m.Events())
	p.spawner = prebuilt.NewPlayerSpawner(p.m, prebuilt.PlayerPrefab, lvl.Spawns)
	t.Cleanup(p.m.Close)
	return p
}

func (p *platformPeer) player(t *testing.T, owner prediction.PlayerID) *prebuilt.Player {
	t.Helper()
	var found *prebuilt.Player
	p.dir.Each(func(obj *directory.Object) {
		if obj.Prefab == prebuilt.PlayerPrefab && obj.Owner == owner {
			found = obj.Data.(*prebuilt.Player)
		}
	})
	require.NotNil(t, found, "no avatar for player %d", owner)
	return found
}

type platformSession struct {
	net    *loopback.Network
	server *platformPeer
	client *platformPeer

	move prebuilt.MoverInput
	aim  prebuilt.ShooterInput
}

func newPlatformSession(t *testing.T) *platformSession {
	t.Helper()
	s := &platformSession{net: loopback.New()}
	s.server = newPlatformPeer(t, prediction.RoleServer, nil, nil)
	s.server.m.SetTransport(s.net.ServerTransport(s.server.m))

	s.client = newPlatformPeer(t, prediction.RoleClient,
		func(in *prebuilt.MoverInput) { *in = s.move },
		func(in *prebuilt.ShooterInput) { *in = s.aim },
	)
	s.client.m.SetLocalPlayer(clientID)
	s.client.m.SetTransport(s.net.ClientTransport(clientID, s.client.m))

	s.server.m.AddObserver(clientID)
	return s
}

func (s *platformSession) run(n int) {
	for range n {
		s.server.m.Tick()
		s.client.m.Tick()
		s.net.Flush()
	}
}

func TestSpawnerGivesClientAnAvatar(t *testing.T) {
	s := newPlatformSession(t)
	s.run(10)

	obj, ok := s.server.spawner.Object(clientID)
	require.True(t, ok)
	assert.Equal(t, []prediction.ObjectID{obj}, s.client.m.Hierarchy().Live())

	p := s.client.player(t, clientID)
	assert.Equal(t, clientID, p.Movement.Owner())
	_, spawned := s.client.spawner.Object(clientID)
	assert.False(t, spawned, "clients never spawn avatars themselves")
}

func TestAvatarLandsAndSettlesIdenticallyOnBothPeers(t *testing.T) {
	s := newPlatformSession(t)
	s.run(20)

	s.move = prebuilt.MoverInput{Direction: 1}
	s.run(20)
	s.move = prebuilt.MoverInput{}
	s.run(60)

	server := s.server.player(t, clientID).Movement.State()
	client := s.client.player(t, clientID).Movement.State()
	assert.True(t, client.OnGround)
	assert.InDelta(t, 112.0, client.Y, 1e-9)
	assert.Greater(t, client.X, 92.0)
	assert.InDelta(t, server.X, client.X, 1e-9)
	assert.Equal(t, int8(1), client.Facing)
}

func TestJumpIsEdgeTriggered(t *testing.T) {
	s := newPlatformSession(t)
	s.run(30)

	s.move = prebuilt.MoverInput{Jump: true}
	s.run(1)
	airborne := s.client.player(t, clientID).Movement.State()
	assert.False(t, airborne.OnGround)
	assert.Less(t, airborne.Y, 112.0)

	// Holding jump through the landing does not jump again.
	s.run(60)
	landed := s.client.player(t, clientID).Movement.State()
	assert.True(t, landed.OnGround)
	assert.InDelta(t, 112.0, landed.Y, 1e-9)
}

func TestPhasesFollowJumpAndLanding(t *testing.T) {
	s := newPlatformSession(t)
	s.run(30)
	for _, peer := range []*platformPeer{s.server, s.client} {
		require.Equal(t, prebuilt.PhaseGround, peer.player(t, clientID).Phases.Phase())
	}
	serverBefore, clientBefore := len(s.server.phases), len(s.client.phases)

	s.move = prebuilt.MoverInput{Jump: true}
	s.run(1)
	assert.Equal(t, prebuilt.PhaseAir, s.client.player(t, clientID).Phases.Phase(), "the owner predicts take-off")

	s.move = prebuilt.MoverInput{}
	s.run(60)

	takeOffAndLanding := []prediction.Transition{
		{From: prebuilt.PhaseGround, To: prebuilt.PhaseAir},
		{From: prebuilt.PhaseAir, To: prebuilt.PhaseGround},
	}
	assert.Equal(t, takeOffAndLanding, s.client.phases[clientBefore:], "replays never repeat a switch")
	assert.Equal(t, takeOffAndLanding, s.server.phases[serverBefore:])
	for _, peer := range []*platformPeer{s.server, s.client} {
		p := peer.player(t, clientID)
		assert.Equal(t, prebuilt.PhaseGround, p.Phases.Phase())
		assert.True(t, p.Movement.State().OnGround)
	}
}

func TestProjectileIsDestroyedByWall(t *testing.T) {
	s := newPlatformSession(t)
	s.run(30)

	aim := 0.0
	s.aim = prebuilt.ShooterInput{Fire: true, Aim: &aim}
	s.run(1)
	s.aim = prebuilt.ShooterInput{}

	require.Len(t, s.client.m.Hierarchy().Live(), 2, "client predicts the projectile")
	require.Len(t, s.client.shots, 1)
	assert.Equal(t, 0.0, s.client.shots[0].Angle)

	s.run(40)
	assert.Len(t, s.server.m.Hierarchy().Live(), 1)
	assert.Len(t, s.client.m.Hierarchy().Live(), 1)
	assert.Len(t, s.client.shots, 1, "replays never re-announce the shot")
	assert.Equal(t, uint32(1), s.server.player(t, clientID).Shooter.State().Shots)
}

func TestCooldownLimitsFireRate(t *testing.T) {
	s := newPlatformSession(t)
	s.run(30)

	s.aim = prebuilt.ShooterInput{Fire: true}
	s.run(15)
	s.aim = prebuilt.ShooterInput{}
	s.run(5)

	assert.Equal(t, uint32(2), s.server.player(t, clientID).Shooter.State().Shots)
}

func TestProjectileHitsOtherPlayer(t *testing.T) {
	aim := 0.0
	var fire bool
	host := newPlatformPeer(t, prediction.RoleHost, nil, func(in *prebuilt.ShooterInput) {
		*in = prebuilt.ShooterInput{Fire: fire, Aim: &aim}
	})
	net := loopback.New()
	host.m.SetTransport(net.ServerTransport(host.m))
	host.m.SetLocalPlayer(1)
	host.m.AddObserver(3)

	for range 30 {
		host.m.Tick()
	}
	fire = true
	host.m.Tick()
	fire = false
	for range 20 {
		host.m.Tick()
	}

	target, ok := host.spawner.Object(3)
	require.True(t, ok)
	require.Len(t, host.hits, 1)
	assert.Equal(t, target, host.hits[0].Target)
	assert.Len(t, host.m.Hierarchy().Live(), 2, "projectile is gone")
}

func TestSanitizeClampsInput(t *testing.T) {
	mover := prebuilt.NewMover(prebuilt.DefaultMoverConfig(), nil, nil)
	in := prebuilt.MoverInput{Direction: 7}
	mover.SanitizeInput(&in)
	assert.Equal(t, int8(1), in.Direction)

	sh := prebuilt.NewShooter(prebuilt.DefaultShooterConfig(prebuilt.ProjectilePrefab), mover, nil)
	bad := 4.0
	aim := prebuilt.ShooterInput{Fire: true, Aim: &bad}
	sh.SanitizeInput(&aim)
	require.NotNil(t, aim.Aim)
	assert.Less(t, *aim.Aim, 3.15)

	sh.ModifyExtrapolatedInput(&aim)
	assert.False(t, aim.Fire)
	assert.Nil(t, aim.Aim)
}
