// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"
)

// Call represents an in-flight operation covering one or more keys
type Call struct {
	done chan struct{}
	err  error
}

func newCall() *Call {
	return &Call{done: make(chan struct{})}
}

// Done is closed once the call has been released
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Err returns the outcome of the call. Only valid after Done is closed.
func (c *Call) Err() error {
	return c.err
}

// InFlight tracks keys whose operation has been dispatched but not resolved,
// so a second caller joins the pending call instead of dispatching again.
type InFlight[K comparable] struct {
	lk    sync.Mutex
	calls map[K]*Call
}

func NewInFlight[K comparable]() *InFlight[K] {
	return &InFlight[K]{
		calls: make(map[K]*Call),
	}
}

// Acquire registers one new call for every key of keys not already in flight.
// It returns that call and the keys it owns (nil and empty when every key was
// already taken), plus the distinct pending calls covering the remaining keys.
func (f *InFlight[K]) Acquire(keys []K) (call *Call, owned []K, joined []*Call) {
	f.lk.Lock()
	defer f.lk.Unlock()

	seen := make(map[*Call]struct{})
	for _, key := range keys {
		if existing, ok := f.calls[key]; ok {
			if existing == call {
				// duplicate key in this batch
				continue
			}
			if _, dup := seen[existing]; !dup {
				seen[existing] = struct{}{}
				joined = append(joined, existing)
			}
			continue
		}
		if call == nil {
			call = newCall()
		}
		f.calls[key] = call
		owned = append(owned, key)
	}
	return call, owned, joined
}

// Release removes the registrations of keys that still belong to call and
// resolves it with err. Keys re-registered by a newer call are left alone.
func (f *InFlight[K]) Release(call *Call, keys []K, err error) {
	f.lk.Lock()
	for _, key := range keys {
		if f.calls[key] == call {
			delete(f.calls, key)
		}
	}
	f.lk.Unlock()

	call.err = err
	close(call.done)
}

// Forget drops the registrations of keys that still belong to call without
// resolving it, for keys the call will not cover after all
func (f *InFlight[K]) Forget(call *Call, keys []K) {
	f.lk.Lock()
	defer f.lk.Unlock()
	for _, key := range keys {
		if f.calls[key] == call {
			delete(f.calls, key)
		}
	}
}

// Len returns the number of keys currently in flight
func (f *InFlight[K]) Len() int {
	f.lk.Lock()
	defer f.lk.Unlock()
	return len(f.calls)
}

// Clear forgets every registration. Outstanding calls still resolve.
func (f *InFlight[K]) Clear() {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.calls = make(map[K]*Call)
}
