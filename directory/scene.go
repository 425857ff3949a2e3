package directory

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
	"github.com/automoto/rewind/shared/leveldata"
)

// ScenePrefabID is the prefab id of the i-th object of a level's scene.
func ScenePrefabID(i int) prediction.PrefabID {
	return prediction.PrefabID(-(i + 1))
}

func (d *Directory) scenePrefab(id prediction.PrefabID) (*leveldata.SceneObject, bool) {
	if !id.IsScene() {
		return nil, false
	}
	p, ok := d.prefabs[id]
	if !ok || p.scene == nil {
		return nil, false
	}
	return p.scene, true
}

// LoadScene registers every object of scene whose Kind has an entry in
// kinds and spawns it through h. Peers calling LoadScene with the same level
// and kinds end up with the same object ids. Objects of unknown kinds are
// skipped.
func (d *Directory) LoadScene(h *prediction.Hierarchy, scene []leveldata.SceneObject, kinds map[string]Prefab) ([]prediction.ObjectID, error) {
	var ids []prediction.ObjectID
	for i := range scene {
		so := &scene[i]
		p, ok := kinds[so.Kind]
		if !ok {
			d.log.Debug("scene object skipped", "kind", so.Kind, "id", so.ID)
			continue
		}
		prefab := ScenePrefabID(i)
		p.scene = so
		if err := d.Register(prefab, p); err != nil {
			return ids, err
		}
		pose := interp.Pose{
			Position: mgl64.Vec3{so.X, so.Y, 0},
			Rotation: mgl64.QuatRotate(mgl64.DegToRad(so.Rotation), mgl64.Vec3{0, 0, 1}),
		}
		id, err := h.RegisterSceneObject(prefab, pose)
		if err != nil {
			return ids, fmt.Errorf("scene object %d (%s): %w", so.ID, so.Kind, err)
		}
		ids = append(ids, id)
	}
	d.log.Info("scene loaded", "objects", len(ids), "skipped", len(scene)-len(ids))
	return ids, nil
}
