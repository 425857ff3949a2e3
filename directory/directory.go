// Package directory builds the objects behind spawn records on top of a
// donburi world. Every object gets an entity carrying a Transform, a
// Velocity and an Instance component; prefabs add whatever predicted
// entities they need on top.
package directory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yohamta/donburi"

	"github.com/automoto/rewind/logging"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
	"github.com/automoto/rewind/shared/leveldata"
	nc "github.com/automoto/rewind/shared/netcomponents"
)

var (
	ErrUnknownPrefab   = errors.New("directory: unknown prefab")
	ErrDuplicatePrefab = errors.New("directory: prefab already registered")
	ErrForeignInstance = errors.New("directory: instance not built here")
)

// Object is what prefab hooks work on.
type Object struct {
	Entry  *donburi.Entry
	ID     prediction.ObjectID
	Prefab prediction.PrefabID
	Owner  prediction.PlayerID
	Pose   interp.Pose

	// Scene is set for objects preloaded with the level.
	Scene *leveldata.SceneObject

	// Data is free for the prefab to keep its engine handles in.
	Data any
}

// Prefab describes how to build one kind of object.
type Prefab struct {
	Name string

	// Build creates the predicted entities of a new object. They are
	// registered in the returned order.
	Build func(obj *Object) ([]prediction.Entity, error)
	// Place moves a reused object to its new pose and owner.
	Place func(obj *Object)
	// Park takes a pooled object out of play.
	Park func(obj *Object)
	// Release frees the engine resources of an object being destroyed.
	Release func(obj *Object)

	scene *leveldata.SceneObject
}

// Directory implements prediction.ObjectDirectory.
type Directory struct {
	world   donburi.World
	prefabs map[prediction.PrefabID]Prefab
	objects map[donburi.Entity]*Object
	log     logging.Logger
}

func New(world donburi.World, log logging.Logger) *Directory {
	return &Directory{
		world:   world,
		prefabs: make(map[prediction.PrefabID]Prefab),
		objects: make(map[donburi.Entity]*Object),
		log:     logging.OrNop(log),
	}
}

// World returns the donburi world objects live in.
func (d *Directory) World() donburi.World { return d.world }

// Register adds a spawnable prefab under id.
func (d *Directory) Register(id prediction.PrefabID, p Prefab) error {
	if _, ok := d.prefabs[id]; ok {
		return fmt.Errorf("prefab %d (%s): %w", id, p.Name, ErrDuplicatePrefab)
	}
	if p.Build == nil {
		return fmt.Errorf("prefab %d (%s) has no Build func", id, p.Name)
	}
	d.prefabs[id] = p
	return nil
}

func (d *Directory) Create(prefab prediction.PrefabID, object prediction.ObjectID, pose interp.Pose, owner prediction.PlayerID) (*prediction.Instance, error) {
	p, ok := d.prefabs[prefab]
	if !ok {
		return nil, fmt.Errorf("prefab %d: %w", prefab, ErrUnknownPrefab)
	}

	entry := d.world.Entry(d.world.Create(nc.Transform, nc.Velocity, nc.Instance))
	obj := &Object{Entry: entry, ID: object, Prefab: prefab, Owner: owner, Pose: pose}
	if sp, ok := d.scenePrefab(prefab); ok {
		obj.Scene = sp
	}
	d.stamp(obj)

	components, err := p.Build(obj)
	if err != nil {
		d.world.Remove(entry.Entity())
		return nil, fmt.Errorf("build %s: %w", p.Name, err)
	}
	d.objects[entry.Entity()] = obj
	d.log.Debug("object created", "prefab", p.Name, "object", object, "owner", owner)
	return &prediction.Instance{Object: object, Prefab: prefab, Components: components, Handle: obj}, nil
}

func (d *Directory) Activate(inst *prediction.Instance, object prediction.ObjectID, pose interp.Pose, owner prediction.PlayerID) error {
	obj, err := d.object(inst)
	if err != nil {
		return err
	}
	obj.ID, obj.Pose, obj.Owner = object, pose, owner
	d.stamp(obj)
	if p := d.prefabs[obj.Prefab]; p.Place != nil {
		p.Place(obj)
	}
	return nil
}

func (d *Directory) Deactivate(inst *prediction.Instance) {
	obj, err := d.object(inst)
	if err != nil {
		d.log.Warn("deactivate", "err", err)
		return
	}
	inf := nc.Instance.Get(obj.Entry)
	inf.Active = false
	if p := d.prefabs[obj.Prefab]; p.Park != nil {
		p.Park(obj)
	}
}

func (d *Directory) Delete(inst *prediction.Instance) {
	obj, err := d.object(inst)
	if err != nil {
		d.log.Warn("delete", "err", err)
		return
	}
	if p := d.prefabs[obj.Prefab]; p.Release != nil {
		p.Release(obj)
	}
	delete(d.objects, obj.Entry.Entity())
	if obj.Entry.Valid() {
		d.world.Remove(obj.Entry.Entity())
	}
}

// Each calls fn for every active object in object id order.
func (d *Directory) Each(fn func(obj *Object)) {
	var active []*Object
	nc.Instance.Each(d.world, func(e *donburi.Entry) {
		if !nc.Instance.Get(e).Active {
			return
		}
		if obj, ok := d.objects[e.Entity()]; ok {
			active = append(active, obj)
		}
	})
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	for _, obj := range active {
		fn(obj)
	}
}

// Count returns the number of objects built and not yet deleted, parked
// ones included.
func (d *Directory) Count() int { return len(d.objects) }

func (d *Directory) object(inst *prediction.Instance) (*Object, error) {
	obj, ok := inst.Handle.(*Object)
	if !ok {
		return nil, fmt.Errorf("object %d: %w", inst.Object, ErrForeignInstance)
	}
	if d.objects[obj.Entry.Entity()] != obj {
		return nil, fmt.Errorf("object %d: %w", inst.Object, ErrForeignInstance)
	}
	return obj, nil
}

func (d *Directory) stamp(obj *Object) {
	nc.Transform.SetValue(obj.Entry, nc.TransformData{
		Position: obj.Pose.Position,
		Rotation: obj.Pose.Rotation,
	})
	nc.Velocity.SetValue(obj.Entry, nc.VelocityData{})
	nc.Instance.SetValue(obj.Entry, nc.InstanceData{
		Object: uint32(obj.ID),
		Prefab: int32(obj.Prefab),
		Owner:  uint32(obj.Owner),
		Active: true,
	})
}

var _ prediction.ObjectDirectory = (*Directory)(nil)
