// Package syncmap is a type-safe wrapper around [sync.Map].
package syncmap

import "sync"

type syncMap = sync.Map

// A Map is a [sync.Map] with typed keys and values.  The zero value is empty and ready for use.
type Map[K comparable, V any] struct {
	syncMap
}

// LoadOrStore returns the existing value for k if present.  Otherwise it stores and returns v.
// The loaded result is true if the value was loaded, false if stored.
func (m *Map[K, V]) LoadOrStore(k K, v V) (V, bool) {
	vAny, loaded := m.syncMap.LoadOrStore(k, v)
	return vAny.(V), loaded
}

// Load returns the value stored for k, or the zero V if there is none.
func (m *Map[K, V]) Load(k K) (V, bool) {
	vAny, ok := m.syncMap.Load(k)
	if !ok {
		return *new(V), false
	}
	return vAny.(V), true
}
