package prediction

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// preciseTolerance is the distance within which a pooled instance counts as
// the same spawn.
const preciseTolerance = 0.1

type pooled struct {
	inst     *Instance
	prefab   PrefabID
	object   ObjectID
	position mgl64.Vec3
	added    uint64
}

// tickPool keeps despawned instances for a grace window so that a spawn
// replayed after a rollback gets the very instance it had before.
type tickPool struct {
	entries []pooled
}

func (p *tickPool) put(inst *Instance, rec SpawnRecord, tick uint64) {
	p.entries = append(p.entries, pooled{
		inst:     inst,
		prefab:   rec.Prefab,
		object:   rec.Object,
		position: rec.Position,
		added:    tick,
	})
}

// take returns the instance despawned for the same object near position, or
// else the closest pooled instance of the same prefab.
func (p *tickPool) take(prefab PrefabID, object ObjectID, position mgl64.Vec3) (*Instance, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, e := range p.entries {
		if e.prefab != prefab {
			continue
		}
		dist := e.position.Sub(position).Len()
		if e.object == object && dist <= preciseTolerance {
			return p.remove(i), true
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return nil, false
	}
	return p.remove(best), true
}

func (p *tickPool) remove(i int) *Instance {
	inst := p.entries[i].inst
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	return inst
}

// expire hands every entry pooled more than grace ticks before tick to del.
func (p *tickPool) expire(tick, grace uint64, del func(*Instance)) {
	kept := p.entries[:0]
	for _, e := range p.entries {
		if tick > e.added && tick-e.added > grace {
			del(e.inst)
			continue
		}
		kept = append(kept, e)
	}
	clear(p.entries[len(kept):])
	p.entries = kept
}

func (p *tickPool) len() int { return len(p.entries) }

func (p *tickPool) clear(del func(*Instance)) {
	for _, e := range p.entries {
		del(e.inst)
	}
	p.entries = nil
}
