package netcomponents

import "github.com/yohamta/donburi"

// InstanceData ties a donburi entity to the predicted object it backs.
type InstanceData struct {
	Object uint32
	Prefab int32
	Owner  uint32
	// Active is false while the instance is parked for reuse.
	Active bool
}

var Instance = donburi.NewComponentType[InstanceData]()
