package prediction_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
)

func record(obj prediction.ObjectID, x float64) prediction.SpawnRecord {
	return prediction.SpawnRecord{
		Prefab:   moverPrefab,
		Object:   obj,
		Position: mgl64.Vec3{x, 0, 0},
		Rotation: mgl64.QuatIdent(),
		Owner:    clientID,
	}
}

func TestApplyingSameSpawnListTwiceIsIdempotent(t *testing.T) {
	p := newPeer(prediction.RoleClient, prediction.DefaultConfig(), nil)
	list := []prediction.SpawnRecord{record(1, 0), record(2, 1), record(3, 2)}

	h := p.m.Hierarchy()
	h.Apply(list)
	h.Apply(list)

	assert.Equal(t, []prediction.ObjectID{1, 2, 3}, h.Live())
	assert.Equal(t, 3, p.dir.created)
	assert.Zero(t, p.dir.deactivated)
	// Four built-in systems plus one entity per object.
	assert.Equal(t, 4+3, p.m.EntityCount())
}

func TestApplyRespawnsAfterCommonPrefixFromPool(t *testing.T) {
	p := newPeer(prediction.RoleClient, prediction.DefaultConfig(), nil)
	h := p.m.Hierarchy()

	h.Apply([]prediction.SpawnRecord{record(1, 0), record(2, 1), record(3, 2)})
	h.Apply([]prediction.SpawnRecord{record(1, 0)})
	assert.Equal(t, []prediction.ObjectID{1}, h.Live())
	assert.Equal(t, 2, h.Pooled())
	assert.Equal(t, 2, p.dir.deactivated)

	h.Apply([]prediction.SpawnRecord{record(1, 0), record(2, 1), record(3, 2)})
	assert.Equal(t, []prediction.ObjectID{1, 2, 3}, h.Live())
	assert.Equal(t, 3, p.dir.created, "pooled instances are reused")
	assert.Equal(t, 2, p.dir.activated)
	assert.Zero(t, h.Pooled())
}

func TestApplyReportsFailedSpawn(t *testing.T) {
	p := newPeer(prediction.RoleClient, prediction.DefaultConfig(), nil)
	var diags []prediction.Diagnostic
	p.m.OnDiagnostic = func(d prediction.Diagnostic) { diags = append(diags, d) }

	bad := record(2, 0)
	bad.Prefab = 42
	p.m.Hierarchy().Apply([]prediction.SpawnRecord{record(1, 0), bad})

	assert.Equal(t, []prediction.ObjectID{1}, p.m.Hierarchy().Live())
	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, prediction.DiagSpawnMismatch, d.Kind)
		assert.ErrorIs(t, d.Err, prediction.ErrSpawnMismatch)
	}
}

func TestPooledInstancesExpireAfterGrace(t *testing.T) {
	cfg := prediction.DefaultConfig()
	cfg.PoolGraceTicks = 5
	p := newPeer(prediction.RoleClient, cfg, nil)
	h := p.m.Hierarchy()

	h.Apply([]prediction.SpawnRecord{record(1, 0)})
	h.Apply(nil)
	require.Equal(t, 1, h.Pooled())

	for range 5 {
		p.m.Tick()
	}
	assert.Equal(t, 1, h.Pooled())
	p.m.Tick()
	assert.Zero(t, h.Pooled())
	assert.Equal(t, 1, p.dir.deleted)
}

func TestCreateAndDeleteDuringSimulation(t *testing.T) {
	p := newPeer(prediction.RoleServer, prediction.DefaultConfig(), nil)
	var created prediction.ObjectID
	var deleteErr error
	calls := 0
	e := prediction.NewStateless(statelessFunc(func(ctx prediction.Context, _ float64) {
		calls++
		switch calls {
		case 1:
			id, err := ctx.Hierarchy().Create(ctx, moverPrefab, interp.IdentityPose(), clientID)
			require.NoError(t, err)
			created = id
		case 2:
			deleteErr = ctx.Hierarchy().Delete(ctx, created)
		}
	}))
	require.NoError(t, p.m.RegisterObject(100, prediction.NoPlayer, e))

	p.m.Tick()
	require.Equal(t, prediction.ObjectID(1), created, "ids skip statically registered objects only")
	assert.Equal(t, []prediction.ObjectID{created}, p.m.Hierarchy().Live())
	require.Len(t, p.movers[created].simulated, 1, "spawned objects simulate in their spawn tick")

	p.m.Tick()
	require.NoError(t, deleteErr)
	assert.Equal(t, []prediction.ObjectID{created}, p.m.Hierarchy().Live(), "deletion waits for the next step")

	p.m.Tick()
	assert.Empty(t, p.m.Hierarchy().Live())
	assert.Equal(t, 1, p.dir.deleted, "verified deletions are not pooled")
	assert.ErrorIs(t, p.m.Hierarchy().Delete(p.m, created), prediction.ErrNotSimulating)
}

func TestSceneObjectsUseNegativePrefabs(t *testing.T) {
	p := newPeer(prediction.RoleServer, prediction.DefaultConfig(), nil)
	_, err := p.m.Hierarchy().RegisterSceneObject(moverPrefab, interp.IdentityPose())
	assert.Error(t, err)
}

func TestCloseReleasesEverything(t *testing.T) {
	p := newPeer(prediction.RoleClient, prediction.DefaultConfig(), nil)
	h := p.m.Hierarchy()
	h.Apply([]prediction.SpawnRecord{record(1, 0), record(2, 1)})
	h.Apply([]prediction.SpawnRecord{record(1, 0)})

	p.m.Close()
	assert.Equal(t, 2, p.dir.deleted)
	assert.Zero(t, p.m.EntityCount())
}

func TestCreateReportsSpawnMismatch(t *testing.T) {
	p := newPeer(prediction.RoleServer, prediction.DefaultConfig(), nil)
	var diags []prediction.Diagnostic
	p.m.OnDiagnostic = func(d prediction.Diagnostic) { diags = append(diags, d) }

	var createErr error
	e := prediction.NewStateless(statelessFunc(func(ctx prediction.Context, _ float64) {
		_, createErr = ctx.Hierarchy().Create(ctx, 99, interp.IdentityPose(), clientID)
	}))
	require.NoError(t, p.m.RegisterObject(100, prediction.NoPlayer, e))
	p.m.Tick()

	require.ErrorIs(t, createErr, prediction.ErrSpawnMismatch)
	require.Len(t, diags, 1)
	assert.Equal(t, prediction.DiagSpawnMismatch, diags[0].Kind)
	assert.Equal(t, clientID, diags[0].Player)
	assert.Empty(t, p.m.Hierarchy().Live())
}
