package codec

import (
	"hash/fnv"
	"reflect"
	"sync"
)

// Key identifies one serialized value stream: a value type on one entity.
type Key uint32

var typeHashes sync.Map // reflect.Type -> uint32

// TypeHash returns a hash of T's fully qualified name that is stable across
// processes built from the same source.
func TypeHash[T any]() uint32 {
	t := reflect.TypeFor[T]()
	if h, ok := typeHashes.Load(t); ok {
		return h.(uint32)
	}
	f := fnv.New32a()
	_, _ = f.Write([]byte(t.PkgPath() + "." + t.String()))
	h := f.Sum32()
	typeHashes.Store(t, h)
	return h
}

// KeyFor derives the key of value type T on entity (objectID, componentID).
// The component id is spread before mixing so (1, 2) and (2, 1) differ.
func KeyFor[T any](objectID, componentID uint32) Key {
	return Key(TypeHash[T]() ^ componentID*0x9e3779b1 ^ objectID)
}
