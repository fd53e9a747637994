// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"
)

// Results is an append-only result map. Merges union new entries in and
// nothing is evicted except by Clear, so merging overlapping batches in any
// order converges to the same state.
type Results[K comparable, V any] struct {
	lock sync.RWMutex
	data map[K]V
}

func NewResults[K comparable, V any]() *Results[K, V] {
	return &Results[K, V]{
		data: make(map[K]V),
	}
}

// Merge adds every entry of values
func (r *Results[K, V]) Merge(values map[K]V) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for k, v := range values {
		r.data[k] = v
	}
}

func (r *Results[K, V]) Get(key K) (V, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.data[key]
	return v, ok
}

func (r *Results[K, V]) Has(key K) bool {
	_, ok := r.Get(key)
	return ok
}

func (r *Results[K, V]) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.data)
}

// Snapshot returns a copy of every entry
func (r *Results[K, V]) Snapshot() map[K]V {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make(map[K]V, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out
}

func (r *Results[K, V]) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.data = make(map[K]V)
}
