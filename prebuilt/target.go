package prebuilt

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/yohamta/donburi"

	"github.com/automoto/rewind/directory"
	"github.com/automoto/rewind/physics"
	"github.com/automoto/rewind/prediction"
)

type TargetState struct {
	BodyState
	Hits uint16
	// WasTouched makes Hits count contacts rather than ticks in contact.
	WasTouched bool
}

// Target is a static scene object that counts how often something runs
// into it.
type Target struct {
	binding
}

func NewTarget(body *physics.Body, entry *donburi.Entry) *Target {
	return &Target{binding: binding{body: body, entry: entry}}
}

func (t *Target) Simulate(_ prediction.Context, s *TargetState, _ float64) {
	if s.Touched && !s.WasTouched {
		s.Hits++
	}
	s.WasTouched = s.Touched
}

func (t *Target) PullState(s *TargetState) { t.pull(&s.BodyState) }
func (t *Target) PushState(s TargetState)  { t.push(s.BodyState) }

func (t *Target) Interpolate(_, to TargetState, _ float64) TargetState { return to }

func (t *Target) UpdateView(view TargetState, _ *TargetState) {
	t.render(view.BodyState, mgl64.QuatIdent())
}

// TargetPrefab builds targets from scene objects, which give the body its
// placement and size. Targets spawned outside a scene are 16x16 and
// centered on their pose.
func (k *Kit) TargetPrefab() directory.Prefab {
	return directory.Prefab{
		Name: "target",
		Build: func(obj *directory.Object) ([]prediction.Entity, error) {
			w, h := 16.0, 16.0
			x, y := cornerAt(obj.Pose.Position, w, h)
			if sc := obj.Scene; sc != nil && sc.W > 0 && sc.H > 0 {
				x, y, w, h = sc.X, sc.Y, sc.W, sc.H
			}
			body := k.World.AddBody(obj.ID, x, y, w, h)
			body.Gravity, body.Active = false, true

			obj.Data = body
			return []prediction.Entity{prediction.NewEntity[TargetState](NewTarget(body, obj.Entry))}, nil
		},
		Release: func(obj *directory.Object) {
			k.World.RemoveBody(obj.Data.(*physics.Body))
		},
	}
}

// SceneKinds maps level object kinds to the prefabs that build them.
func (k *Kit) SceneKinds() map[string]directory.Prefab {
	return map[string]directory.Prefab{
		"target": k.TargetPrefab(),
	}
}
