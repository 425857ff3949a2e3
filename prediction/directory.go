package prediction

import "github.com/automoto/rewind/prediction/interp"

// Instance is an object built by an ObjectDirectory. Components are
// registered with the manager in order, so component i gets the id
// ComponentID{Object, i}.
type Instance struct {
	Object     ObjectID
	Prefab     PrefabID
	Components []Entity

	// Handle is private to the directory that built the instance.
	Handle any
}

// ObjectDirectory builds and destroys the objects behind spawn records.
// Object ids are chosen by the hierarchy so that every peer agrees on them.
type ObjectDirectory interface {
	// Create builds a new instance of prefab placed at pose.
	Create(prefab PrefabID, object ObjectID, pose interp.Pose, owner PlayerID) (*Instance, error)
	// Activate readies a parked instance for reuse under a new identity.
	Activate(inst *Instance, object ObjectID, pose interp.Pose, owner PlayerID) error
	// Deactivate parks an instance that may be reused later.
	Deactivate(inst *Instance)
	// Delete destroys an instance for good.
	Delete(inst *Instance)
}
