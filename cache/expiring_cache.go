// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type expiringItem[V any] struct {
	value     V
	expiresAt time.Time
}

// FetchFunc loads the value for key. found == false means the source holds no
// value; it is returned to the caller without being cached.
type FetchFunc[K comparable, V any] func(key K) (value V, expiresAt time.Time, found bool, err error)

// Expiring caches values until a deadline chosen per entry by the fetcher.
// Concurrent fetches for the same key are deduplicated.
type Expiring[K comparable, V any] struct {
	data    map[K]expiringItem[V]
	lock    sync.RWMutex
	sfGroup singleflight.Group
	now     func() time.Time
}

func NewExpiring[K comparable, V any](now func() time.Time) *Expiring[K, V] {
	if now == nil {
		now = time.Now
	}
	return &Expiring[K, V]{
		data: make(map[K]expiringItem[V]),
		now:  now,
	}
}

type fetchResult[V any] struct {
	value V
	found bool
}

// Get returns the cached value for key if it has not expired, otherwise it
// fetches it using fetchFunc. Entries whose deadline has already passed when
// fetched are not retained.
func (c *Expiring[K, V]) Get(key K, fetchFunc FetchFunc[K, V]) (V, bool, error) {
	c.lock.RLock()
	item, exists := c.data[key]
	c.lock.RUnlock()
	if exists {
		if c.now().Before(item.expiresAt) {
			return item.value, true, nil
		}
		c.Invalidate(key)
	}

	v, err, _ := c.sfGroup.Do(keyToString(key), func() (interface{}, error) {
		newValue, expiresAt, found, fetchErr := fetchFunc(key)
		if fetchErr != nil {
			return nil, fetchErr
		}
		if found && c.now().Before(expiresAt) {
			c.lock.Lock()
			c.data[key] = expiringItem[V]{
				value:     newValue,
				expiresAt: expiresAt,
			}
			c.lock.Unlock()
		}
		return fetchResult[V]{value: newValue, found: found}, nil
	})
	if err != nil {
		return *new(V), false, err
	}

	res := v.(fetchResult[V])
	return res.value, res.found, nil
}

// Put stores value until expiresAt without consulting the source
func (c *Expiring[K, V]) Put(key K, value V, expiresAt time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.data[key] = expiringItem[V]{value: value, expiresAt: expiresAt}
}

// Invalidate drops key so the next Get fetches it again
func (c *Expiring[K, V]) Invalidate(key K) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.data, key)
}

// Clear drops every entry
func (c *Expiring[K, V]) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.data = make(map[K]expiringItem[V])
}

// Len returns the number of entries, including ones not yet lazily expired
func (c *Expiring[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.data)
}

// keyToString is defined to allow for both fmt.Stringer and primitive string types.
func keyToString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
