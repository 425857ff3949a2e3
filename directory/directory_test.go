package directory_test

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yohamta/donburi"

	"github.com/automoto/rewind/directory"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
	"github.com/automoto/rewind/shared/leveldata"
	nc "github.com/automoto/rewind/shared/netcomponents"
)

type idle struct{}

func (idle) Simulate(prediction.Context, float64) {}

type hooks struct {
	placed, parked, released int
}

func (h *hooks) prefab(name string) directory.Prefab {
	return directory.Prefab{
		Name: name,
		Build: func(*directory.Object) ([]prediction.Entity, error) {
			return []prediction.Entity{prediction.NewStateless(idle{})}, nil
		},
		Place:   func(*directory.Object) { h.placed++ },
		Park:    func(*directory.Object) { h.parked++ },
		Release: func(*directory.Object) { h.released++ },
	}
}

func poseAt(x float64) interp.Pose {
	return interp.Pose{Position: mgl64.Vec3{x, 0, 0}, Rotation: mgl64.QuatIdent()}
}

func TestCreateStampsComponents(t *testing.T) {
	d := directory.New(donburi.NewWorld(), nil)
	var h hooks
	require.NoError(t, d.Register(1, h.prefab("crate")))

	inst, err := d.Create(1, 9, poseAt(4), 3)
	require.NoError(t, err)
	require.Len(t, inst.Components, 1)

	obj := inst.Handle.(*directory.Object)
	assert.Equal(t, 4.0, nc.Transform.Get(obj.Entry).Position.X())
	assert.Equal(t, nc.InstanceData{Object: 9, Prefab: 1, Owner: 3, Active: true}, *nc.Instance.Get(obj.Entry))
	assert.Equal(t, 1, d.Count())
}

func TestUnknownAndDuplicatePrefabs(t *testing.T) {
	d := directory.New(donburi.NewWorld(), nil)
	var h hooks

	_, err := d.Create(5, 1, poseAt(0), prediction.NoPlayer)
	assert.ErrorIs(t, err, directory.ErrUnknownPrefab)

	require.NoError(t, d.Register(5, h.prefab("a")))
	assert.ErrorIs(t, d.Register(5, h.prefab("b")), directory.ErrDuplicatePrefab)
}

func TestFailedBuildLeavesNothingBehind(t *testing.T) {
	world := donburi.NewWorld()
	d := directory.New(world, nil)
	boom := errors.New("boom")
	require.NoError(t, d.Register(1, directory.Prefab{
		Name:  "broken",
		Build: func(*directory.Object) ([]prediction.Entity, error) { return nil, boom },
	}))

	_, err := d.Create(1, 1, poseAt(0), prediction.NoPlayer)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, d.Count())
	assert.Zero(t, world.Len())
}

func TestPoolLifecycle(t *testing.T) {
	world := donburi.NewWorld()
	d := directory.New(world, nil)
	var h hooks
	require.NoError(t, d.Register(1, h.prefab("shot")))

	inst, err := d.Create(1, 4, poseAt(1), 2)
	require.NoError(t, err)
	obj := inst.Handle.(*directory.Object)

	d.Deactivate(inst)
	assert.False(t, nc.Instance.Get(obj.Entry).Active)
	assert.Equal(t, 1, h.parked)

	var seen int
	d.Each(func(*directory.Object) { seen++ })
	assert.Zero(t, seen, "parked objects are not iterated")

	require.NoError(t, d.Activate(inst, 6, poseAt(8), 3))
	assert.Equal(t, 1, h.placed)
	assert.Equal(t, prediction.ObjectID(6), obj.ID)
	assert.Equal(t, 8.0, nc.Transform.Get(obj.Entry).Position.X())
	assert.True(t, nc.Instance.Get(obj.Entry).Active)

	d.Delete(inst)
	assert.Equal(t, 1, h.released)
	assert.Zero(t, d.Count())
	assert.Zero(t, world.Len())
}

func TestForeignInstanceIsRejected(t *testing.T) {
	d := directory.New(donburi.NewWorld(), nil)
	err := d.Activate(&prediction.Instance{Object: 1}, 1, poseAt(0), prediction.NoPlayer)
	assert.ErrorIs(t, err, directory.ErrForeignInstance)
}

func TestEachVisitsObjectsInIDOrder(t *testing.T) {
	d := directory.New(donburi.NewWorld(), nil)
	var h hooks
	require.NoError(t, d.Register(1, h.prefab("crate")))
	for _, id := range []prediction.ObjectID{7, 2, 5} {
		_, err := d.Create(1, id, poseAt(0), prediction.NoPlayer)
		require.NoError(t, err)
	}

	var ids []prediction.ObjectID
	d.Each(func(obj *directory.Object) { ids = append(ids, obj.ID) })
	assert.Equal(t, []prediction.ObjectID{2, 5, 7}, ids)
}

func TestLoadSceneAssignsMatchingIDs(t *testing.T) {
	scene := []leveldata.SceneObject{
		{ID: 1, Kind: "crate", X: 10, Y: 20},
		{ID: 2, Kind: "decoration"},
		{ID: 3, Kind: "crate", X: 30, Y: 20},
	}

	load := func() (*directory.Directory, []prediction.ObjectID) {
		d := directory.New(donburi.NewWorld(), nil)
		m := prediction.NewManager(prediction.DefaultConfig(), prediction.RoleServer, prediction.Dependencies{Directory: d})
		t.Cleanup(m.Close)

		var h hooks
		var scenes []*leveldata.SceneObject
		crate := h.prefab("crate")
		build := crate.Build
		crate.Build = func(obj *directory.Object) ([]prediction.Entity, error) {
			scenes = append(scenes, obj.Scene)
			return build(obj)
		}

		ids, err := d.LoadScene(m.Hierarchy(), scene, map[string]directory.Prefab{"crate": crate})
		require.NoError(t, err)
		require.Len(t, scenes, 2)
		assert.Equal(t, uint32(3), scenes[1].ID)
		return d, ids
	}

	_, a := load()
	_, b := load()
	assert.Equal(t, []prediction.ObjectID{1, 2}, a)
	assert.Equal(t, a, b)
}

func TestScenePrefabIDsAreNegative(t *testing.T) {
	assert.Equal(t, prediction.PrefabID(-1), directory.ScenePrefabID(0))
	assert.True(t, directory.ScenePrefabID(4).IsScene())
}
