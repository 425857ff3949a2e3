package prediction_test

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
	"github.com/automoto/rewind/prediction/loopback"
)

const (
	moverPrefab prediction.PrefabID = 1
	clientID    prediction.PlayerID = 2
)

type moveInput struct {
	Dx  float64
	Aim *float64
}

type moveState struct {
	X, V float64
}

type mover struct {
	capture func() moveInput
	smooth  *interp.Smoother

	nudge     float64
	simulated []uint64
	used      []moveInput
	corrected int
}

func newMover(capture func() moveInput) *mover {
	return &mover{
		capture: capture,
		smooth:  interp.NewSmoother(interp.DefaultPositionSettings(), interp.DefaultRotationSettings()),
	}
}

func (b *mover) Simulate(ctx prediction.Context, in moveInput, s *moveState, delta float64) {
	b.simulated = append(b.simulated, ctx.CurrentTick())
	b.used = append(b.used, in)
	if b.nudge != 0 && ctx.IsServer() {
		s.X += b.nudge
		b.nudge = 0
	}
	s.V = s.V*0.5 + in.Dx
	if math.Abs(s.V) < 1e-3 {
		s.V = 0
	}
	s.X += s.V * delta
}

func (b *mover) CaptureInput(in *moveInput) {
	if b.capture != nil {
		*in = b.capture()
	}
}

func (b *mover) ModifyExtrapolatedInput(in *moveInput) {
	in.Aim = nil
}

func (b *mover) CorrectView(s *moveState, delta float64, accumulate bool) {
	b.corrected++
	pose := interp.Pose{Position: mgl64.Vec3{s.X, 0, 0}, Rotation: mgl64.QuatIdent()}
	s.X = b.smooth.Correct(pose, delta, accumulate).Position.X()
}

func (b *mover) RecordView(s moveState) {
	b.smooth.Record(interp.Pose{Position: mgl64.Vec3{s.X, 0, 0}, Rotation: mgl64.QuatIdent()})
}

func (b *mover) ResetView() { b.smooth.Reset() }

type fakeDirectory struct {
	build func(prefab prediction.PrefabID, obj prediction.ObjectID) ([]prediction.Entity, error)

	created, activated, deactivated, deleted int
}

func (d *fakeDirectory) Create(prefab prediction.PrefabID, obj prediction.ObjectID, _ interp.Pose, _ prediction.PlayerID) (*prediction.Instance, error) {
	components, err := d.build(prefab, obj)
	if err != nil {
		return nil, err
	}
	d.created++
	return &prediction.Instance{Object: obj, Prefab: prefab, Components: components}, nil
}

func (d *fakeDirectory) Activate(*prediction.Instance, prediction.ObjectID, interp.Pose, prediction.PlayerID) error {
	d.activated++
	return nil
}

func (d *fakeDirectory) Deactivate(*prediction.Instance) { d.deactivated++ }
func (d *fakeDirectory) Delete(*prediction.Instance)     { d.deleted++ }

type peer struct {
	m      *prediction.Manager
	dir    *fakeDirectory
	movers map[prediction.ObjectID]*mover
}

func newPeer(role prediction.Role, cfg prediction.Config, capture func() moveInput) *peer {
	p := &peer{movers: make(map[prediction.ObjectID]*mover)}
	p.dir = &fakeDirectory{build: func(prefab prediction.PrefabID, obj prediction.ObjectID) ([]prediction.Entity, error) {
		if prefab != moverPrefab {
			return nil, errors.New("unknown prefab")
		}
		b := newMover(capture)
		p.movers[obj] = b
		return []prediction.Entity{prediction.NewInputEntity[moveInput, moveState](b)}, nil
	}}
	p.m = prediction.NewManager(cfg, role, prediction.Dependencies{Directory: p.dir})
	return p
}

// state returns the live state of obj's mover.
func (p *peer) state(t *testing.T, obj prediction.ObjectID) moveState {
	t.Helper()
	components := p.m.Object(obj)
	if len(components) == 0 {
		t.Fatalf("object %d not registered", obj)
	}
	return components[0].(*prediction.Predicted[moveInput, moveState]).State()
}

type session struct {
	net    *loopback.Network
	server *peer
	client *peer
	input  func(tick uint64) moveInput
	diags  []prediction.Diagnostic
}

func newSession(t *testing.T, cfg prediction.Config) *session {
	t.Helper()
	s := &session{net: loopback.New()}

	s.server = newPeer(prediction.RoleServer, cfg, nil)
	s.server.m.SetTransport(s.net.ServerTransport(s.server.m))
	s.server.m.Players().OnPlayerAdded(func(ctx prediction.Context, id prediction.PlayerID) {
		if _, err := ctx.Hierarchy().Create(ctx, moverPrefab, interp.IdentityPose(), id); err != nil {
			t.Errorf("spawn for player %d: %v", id, err)
		}
	})

	s.client = newPeer(prediction.RoleClient, cfg, func() moveInput {
		if s.input == nil {
			return moveInput{}
		}
		return s.input(s.client.m.LocalTick())
	})
	s.client.m.SetLocalPlayer(clientID)
	s.client.m.SetTransport(s.net.ClientTransport(clientID, s.client.m))
	s.client.m.OnDiagnostic = func(d prediction.Diagnostic) { s.diags = append(s.diags, d) }

	s.server.m.AddObserver(clientID)
	return s
}

func (s *session) step() {
	s.server.m.Tick()
	s.client.m.Tick()
	s.net.Flush()
}

// clientObject returns the object the server spawned for the client.
func (s *session) clientObject(t *testing.T) prediction.ObjectID {
	t.Helper()
	live := s.client.m.Hierarchy().Live()
	if len(live) != 1 {
		t.Fatalf("client sees %d spawned objects, want 1", len(live))
	}
	return live[0]
}
