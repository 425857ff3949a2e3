package prediction

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/automoto/rewind/prediction/interp"
)

// SpawnRecord is one entry of the authoritative spawn list.
type SpawnRecord struct {
	Prefab   PrefabID
	Object   ObjectID
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Owner    PlayerID
}

// HierarchyState is the predicted spawn list. Because it rolls back like any
// other state, replaying a tick reproduces the same object ids.
type HierarchyState struct {
	Spawned    []SpawnRecord
	ToDelete   []ObjectID
	NextObject ObjectID
}

func (s HierarchyState) Clone() HierarchyState {
	return HierarchyState{
		Spawned:    slices.Clone(s.Spawned),
		ToDelete:   slices.Clone(s.ToDelete),
		NextObject: s.NextObject,
	}
}

// Hierarchy creates and deletes objects during simulation. When its state is
// rolled back it diffs the objects actually alive against the restored list
// and despawns or respawns the difference.
type Hierarchy struct {
	m      *Manager
	entity *Predicted[NoInput, HierarchyState]

	live    map[ObjectID]*Instance
	spawned []SpawnRecord
	pool    tickPool
}

func newHierarchy(m *Manager) *Hierarchy {
	h := &Hierarchy{m: m, live: make(map[ObjectID]*Instance)}
	h.entity = NewEntity[HierarchyState](h)
	return h
}

func (h *Hierarchy) InitialState() HierarchyState {
	return HierarchyState{NextObject: SystemsObject + 1}
}

func (h *Hierarchy) Simulate(ctx Context, state *HierarchyState, _ float64) {
	if len(state.ToDelete) > 0 {
		for _, id := range state.ToDelete {
			h.deleteNow(state, id)
		}
		state.ToDelete = state.ToDelete[:0]
	}
	if !ctx.IsReplaying() {
		h.pool.expire(ctx.CurrentTick(), uint64(h.m.cfg.PoolGraceTicks), h.destroy)
	}
}

func (h *Hierarchy) PullState(*HierarchyState) {}

func (h *Hierarchy) PushState(state HierarchyState) {
	h.apply(state.Spawned)
}

func (h *Hierarchy) Interpolate(_, to HierarchyState, _ float64) HierarchyState {
	return to
}

// Create spawns prefab at pose for owner and returns the new object id.
func (h *Hierarchy) Create(ctx Context, prefab PrefabID, pose interp.Pose, owner PlayerID) (ObjectID, error) {
	if !ctx.IsSimulating() {
		return 0, ErrNotSimulating
	}
	id, err := h.create(prefab, pose, owner)
	if err != nil {
		h.m.diagnose(Diagnostic{Kind: DiagSpawnMismatch, Tick: ctx.CurrentTick(), Player: owner, Err: err})
		return 0, err
	}
	return id, nil
}

// RegisterSceneObject spawns an object preloaded with the level. prefab must
// be negative and every peer must register scene objects in the same order.
func (h *Hierarchy) RegisterSceneObject(prefab PrefabID, pose interp.Pose) (ObjectID, error) {
	if !prefab.IsScene() {
		return 0, fmt.Errorf("prefab %d is not a scene prefab", prefab)
	}
	id, err := h.create(prefab, pose, NoPlayer)
	if err != nil {
		return 0, err
	}
	h.entity.saveState(h.m.localTickInContext)
	return id, nil
}

func (h *Hierarchy) create(prefab PrefabID, pose interp.Pose, owner PlayerID) (ObjectID, error) {
	state := &h.entity.full.State
	id := state.NextObject
	for {
		if _, used := h.m.objects[id]; !used {
			break
		}
		id++
	}

	rec := SpawnRecord{
		Prefab:   prefab,
		Object:   id,
		Position: pose.Position,
		Rotation: pose.Rotation,
		Owner:    owner,
	}
	if err := h.spawn(rec); err != nil {
		return 0, err
	}
	state.NextObject = id + 1
	state.Spawned = append(state.Spawned, rec)
	return id, nil
}

// Delete removes obj at the start of the next hierarchy simulation step.
func (h *Hierarchy) Delete(ctx Context, obj ObjectID) error {
	if !ctx.IsSimulating() {
		return ErrNotSimulating
	}
	if _, ok := h.live[obj]; !ok {
		return fmt.Errorf("object %d: %w", obj, ErrUnknownEntity)
	}
	state := &h.entity.full.State
	if !slices.Contains(state.ToDelete, obj) {
		state.ToDelete = append(state.ToDelete, obj)
	}
	return nil
}

// Live returns the ids of every spawned object in spawn order.
func (h *Hierarchy) Live() []ObjectID {
	ids := make([]ObjectID, len(h.spawned))
	for i, rec := range h.spawned {
		ids[i] = rec.Object
	}
	return ids
}

// Instance returns the directory instance behind obj.
func (h *Hierarchy) Instance(obj ObjectID) (*Instance, bool) {
	inst, ok := h.live[obj]
	return inst, ok
}

// Pooled returns the number of despawned instances awaiting reuse.
func (h *Hierarchy) Pooled() int { return h.pool.len() }

func (h *Hierarchy) deleteNow(state *HierarchyState, obj ObjectID) {
	i := slices.IndexFunc(state.Spawned, func(r SpawnRecord) bool { return r.Object == obj })
	if i < 0 {
		return
	}
	state.Spawned = slices.Delete(state.Spawned, i, i+1)
	// Verified deletions are final; predicted ones may be undone by a
	// rollback and keep their instance around.
	h.despawn(obj, !h.m.verified)
}

func (h *Hierarchy) spawn(rec SpawnRecord) error {
	dir := h.m.directory
	if dir == nil {
		return ErrNoDirectory
	}

	pose := interp.Pose{Position: rec.Position, Rotation: rec.Rotation}
	inst, ok := h.pool.take(rec.Prefab, rec.Object, rec.Position)
	if ok {
		if err := dir.Activate(inst, rec.Object, pose, rec.Owner); err != nil {
			h.m.log.Warn("pooled instance rejected", "prefab", rec.Prefab, "object", rec.Object, "err", err)
			dir.Delete(inst)
			ok = false
		}
	}
	if !ok {
		var err error
		inst, err = dir.Create(rec.Prefab, rec.Object, pose, rec.Owner)
		if err != nil {
			return fmt.Errorf("prefab %d object %d: %w: %w", rec.Prefab, rec.Object, ErrSpawnMismatch, err)
		}
	}
	inst.Object = rec.Object
	inst.Prefab = rec.Prefab

	if err := h.m.registerObject(rec.Object, rec.Owner, inst.Components); err != nil {
		dir.Delete(inst)
		return fmt.Errorf("prefab %d object %d: %w: %w", rec.Prefab, rec.Object, ErrSpawnMismatch, err)
	}
	h.live[rec.Object] = inst
	h.spawned = append(h.spawned, rec)
	return nil
}

func (h *Hierarchy) despawn(obj ObjectID, pool bool) {
	inst, ok := h.live[obj]
	if !ok {
		return
	}
	delete(h.live, obj)
	i := slices.IndexFunc(h.spawned, func(r SpawnRecord) bool { return r.Object == obj })
	rec := h.spawned[i]
	h.spawned = slices.Delete(h.spawned, i, i+1)
	h.m.unregisterObject(obj)

	if pool {
		h.m.directory.Deactivate(inst)
		h.pool.put(inst, rec, h.m.localTickInContext)
		return
	}
	h.destroy(inst)
}

func (h *Hierarchy) destroy(inst *Instance) {
	h.m.directory.Delete(inst)
}

// apply makes the live objects match target: everything after the longest
// common prefix is despawned newest first and the rest of target spawned in
// order.
func (h *Hierarchy) apply(target []SpawnRecord) {
	prefix := 0
	for prefix < len(h.spawned) && prefix < len(target) &&
		h.spawned[prefix].Prefab == target[prefix].Prefab &&
		h.spawned[prefix].Object == target[prefix].Object {
		prefix++
	}

	for len(h.spawned) > prefix {
		h.despawn(h.spawned[len(h.spawned)-1].Object, true)
	}
	for _, rec := range target[prefix:] {
		if err := h.spawn(rec); err != nil {
			h.m.diagnose(Diagnostic{
				Kind:   DiagSpawnMismatch,
				Tick:   h.m.localTickInContext,
				Entity: ComponentID{Object: rec.Object},
				Err:    err,
			})
		}
	}
	if len(h.spawned) != len(target) {
		h.m.diagnose(Diagnostic{
			Kind: DiagSpawnMismatch,
			Tick: h.m.localTickInContext,
			Err:  fmt.Errorf("%d objects alive, %d expected: %w", len(h.spawned), len(target), ErrSpawnMismatch),
		})
	}
}

func (h *Hierarchy) close() {
	for len(h.spawned) > 0 {
		h.despawn(h.spawned[len(h.spawned)-1].Object, false)
	}
	if h.m.directory != nil {
		h.pool.clear(h.destroy)
	}
}
