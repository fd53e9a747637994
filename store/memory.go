// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"errors"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryStoreSize bounds the in-process store when no size is configured
const DefaultMemoryStoreSize = 4096

var (
	_ Store = (*MemoryStore)(nil)

	errStoreSizeTooBig = errors.New("memory store size too big")
)

// MemoryStore is a bounded in-process store. Least recently used keys are
// evicted once the capacity is reached, which for a signature cache only
// costs a re-sign.
type MemoryStore struct {
	entries *lru.Cache[string, string]
}

func NewMemoryStore(size uint64) (*MemoryStore, error) {
	if size == 0 {
		size = DefaultMemoryStoreSize
	}
	if size > math.MaxInt {
		return nil, errStoreSizeTooBig
	}
	entries, err := lru.New[string, string](int(size))
	if err != nil {
		return nil, err
	}
	return &MemoryStore{entries: entries}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := m.entries.Get(key)
	return value, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value string) error {
	m.entries.Add(key, value)
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.entries.Remove(key)
	return nil
}

// Len returns the number of stored keys
func (m *MemoryStore) Len() int {
	return m.entries.Len()
}
