// Package pool provides sync.Pool-backed scratch allocations for the
// per-request hot paths: the redacted-params map built for every verb
// submission and the query-argument slice built for every keyword search.
package pool

import (
	"sync"
)

// MapPool pools map[string]any scratch maps.
var MapPool = sync.Pool{
	New: func() interface{} {
		return make(map[string]interface{}, 8)
	},
}

// SlicePool pools []any scratch slices, e.g. SQL argument lists.
var SlicePool = sync.Pool{
	New: func() interface{} {
		return make([]interface{}, 0, 32)
	},
}

// GetMap gets an empty map from the pool.
func GetMap() map[string]interface{} {
	m := MapPool.Get().(map[string]interface{})
	for k := range m {
		delete(m, k)
	}
	return m
}

// PutMap returns a map to the pool once the caller is done with it.
func PutMap(m map[string]interface{}) {
	MapPool.Put(m)
}

// GetSlice gets an empty slice from the pool.
func GetSlice() []interface{} {
	s := SlicePool.Get().([]interface{})
	return s[:0]
}

// PutSlice returns a slice to the pool once the caller is done with it.
func PutSlice(s []interface{}) {
	SlicePool.Put(s)
}
