// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store defines the key/value persistence contract used by the
// signature cache, and its adapters.
package store

import (
	"context"
)

// Store persists opaque string values by key. Implementations never return an
// error for an absent key; they report found == false instead.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
}

// Pinger is implemented by stores backed by a remote service
type Pinger interface {
	Ping(ctx context.Context) error
}

var _ Store = (*Prefixed)(nil)

// Prefixed namespaces every key of an underlying store
type Prefixed struct {
	prefix string
	store  Store
}

// NewPrefixed returns a Store that prepends prefix to every key
func NewPrefixed(prefix string, s Store) *Prefixed {
	return &Prefixed{prefix: prefix, store: s}
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key string, value string) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p *Prefixed) Remove(ctx context.Context, key string) error {
	return p.store.Remove(ctx, p.prefix+key)
}

// Ping forwards to the underlying store when it supports liveness checks
func (p *Prefixed) Ping(ctx context.Context) error {
	if pinger, ok := p.store.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}
