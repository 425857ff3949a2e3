package prediction

import "fmt"

// PlayerID identifies a participant. NoPlayer marks unowned entities, which
// the server controls.
type PlayerID uint32

const NoPlayer PlayerID = 0

// ObjectID identifies a spawned object. Object 0 holds the built-in systems.
type ObjectID uint32

const SystemsObject ObjectID = 0

// PrefabID selects what the directory builds. Negative ids are reserved for
// objects preloaded with the scene.
type PrefabID int32

// IsScene reports whether the prefab id belongs to a scene object.
func (p PrefabID) IsScene() bool { return p < 0 }

// ComponentID is the stable identity of one predicted entity: the object it
// belongs to and its index within that object.
type ComponentID struct {
	Object    ObjectID
	Component uint32
}

func (id ComponentID) String() string {
	return fmt.Sprintf("%d:%d", id.Object, id.Component)
}

// Ownership is the prediction bookkeeping stored next to every state so that
// ownership changes roll back with it.
type Ownership struct {
	Owner PlayerID
}

// FullState couples an entity's domain state with its ownership.
type FullState[S any] struct {
	State      S
	Prediction Ownership
}

// NoInput is the input type of entities that are not input driven.
type NoInput struct{}

// NoState is the state type of entities that keep no state of their own.
type NoState struct{}
