// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sigcache persists decryption signatures with one storage key per
// (contract, user, chain) so a single contract resolves in one lookup, even
// though a signature usually covers several contracts.
package sigcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"go.uber.org/zap"

	"github.com/luxfi/decrypt"
	"github.com/luxfi/decrypt/cache"
	"github.com/luxfi/decrypt/metrics"
	"github.com/luxfi/decrypt/store"
)

// KeyPrefix namespaces signature records inside a shared store
const KeyPrefix = "fhe-decrypt-sig"

// StorageKey returns the storage key of the signature authorizing user to
// decrypt handles of contract on chainID.
func StorageKey(contract common.Address, user common.Address, chainID uint64) string {
	return fmt.Sprintf(
		"%s:%d:%s:%s",
		KeyPrefix,
		chainID,
		strings.ToLower(user.Hex()),
		strings.ToLower(contract.Hex()),
	)
}

type Option func(*Cache)

// WithClock overrides the time source used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache loads and saves decryption signatures through a store. Store failures
// are never fatal: a failed read is a miss, a failed write only costs a
// future re-sign.
type Cache struct {
	log     *zap.Logger
	store   store.Store
	metrics *metrics.DecryptMetrics
	now     func() time.Time

	// parsed records, memoized until they expire
	parsed *cache.Expiring[string, *decrypt.DecryptionSignature]
}

func New(
	log *zap.Logger,
	st store.Store,
	m *metrics.DecryptMetrics,
	opts ...Option,
) *Cache {
	c := &Cache{
		log:     log,
		store:   st,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parsed = cache.NewExpiring[string, *decrypt.DecryptionSignature](c.now)
	return c
}

// Lookup returns, per requested contract, the valid signature stored for it.
// Contracts without a valid signature are absent from the result.
func (c *Cache) Lookup(
	ctx context.Context,
	contracts []common.Address,
	user common.Address,
	chainID uint64,
) map[common.Address]*decrypt.DecryptionSignature {
	found := make(map[common.Address]*decrypt.DecryptionSignature, len(contracts))
	for _, contract := range contracts {
		if _, ok := found[contract]; ok {
			continue
		}
		key := StorageKey(contract, user, chainID)
		sig, ok, _ := c.parsed.Get(key, func(key string) (*decrypt.DecryptionSignature, time.Time, bool, error) {
			return c.load(ctx, key, contract, user, chainID)
		})
		if !ok || !sig.IsValid(c.now()) {
			c.metrics.SignatureCacheMisses.Inc()
			continue
		}
		c.metrics.SignatureCacheHits.Inc()
		found[contract] = sig
	}
	return found
}

// Get returns the distinct valid signatures covering any of contracts, in the
// order their first contract appears.
func (c *Cache) Get(
	ctx context.Context,
	contracts []common.Address,
	user common.Address,
	chainID uint64,
) []*decrypt.DecryptionSignature {
	found := c.Lookup(ctx, contracts, user, chainID)
	return Distinct(contracts, found)
}

// Distinct deduplicates per-contract lookups by signature identity
func Distinct(
	contracts []common.Address,
	found map[common.Address]*decrypt.DecryptionSignature,
) []*decrypt.DecryptionSignature {
	var (
		sigs []*decrypt.DecryptionSignature
		seen = make(map[ids.ID]struct{}, len(found))
	)
	for _, contract := range contracts {
		sig, ok := found[contract]
		if !ok {
			continue
		}
		id := sig.ID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		sigs = append(sigs, sig)
	}
	return sigs
}

// Save writes sig under the key of every contract it covers. The signature is
// usable from this cache even when some writes fail; the joined write errors
// are returned for logging.
func (c *Cache) Save(ctx context.Context, sig *decrypt.DecryptionSignature) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	raw, err := sig.ToJSON()
	if err != nil {
		return fmt.Errorf("encoding decryption signature: %w", err)
	}

	var errs []error
	for _, contract := range sig.ContractAddresses {
		key := StorageKey(contract, sig.UserAddress, sig.ChainID)
		c.parsed.Put(key, sig, sig.ExpiresAt())
		if err := c.store.Set(ctx, key, string(raw)); err != nil {
			c.metrics.SignatureStoreFailures.Inc()
			c.log.Warn(
				"Failed to persist decryption signature",
				zap.String("key", key),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delete removes sig from every contract key it was saved under
func (c *Cache) Delete(ctx context.Context, sig *decrypt.DecryptionSignature) error {
	var errs []error
	for _, contract := range sig.ContractAddresses {
		key := StorageKey(contract, sig.UserAddress, sig.ChainID)
		c.parsed.Invalidate(key)
		if err := c.store.Remove(ctx, key); err != nil {
			c.metrics.SignatureStoreFailures.Inc()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush drops memoized records so the next lookup reads the store again
func (c *Cache) Flush() {
	c.parsed.Clear()
}

func (c *Cache) load(
	ctx context.Context,
	key string,
	contract common.Address,
	user common.Address,
	chainID uint64,
) (*decrypt.DecryptionSignature, time.Time, bool, error) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.SignatureStoreFailures.Inc()
		c.log.Warn(
			"Failed to read decryption signature, treating as miss",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, time.Time{}, false, nil
	}
	if !found {
		return nil, time.Time{}, false, nil
	}

	sig, err := decrypt.Validate([]byte(raw))
	if err == nil && (sig.UserAddress != user || sig.ChainID != chainID || !sig.Covers(contract)) {
		err = &decrypt.ValidationError{Reason: "record does not match its storage key"}
	}
	if err != nil {
		c.metrics.SignatureCacheInvalid.Inc()
		c.log.Debug(
			"Discarding malformed decryption signature",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, time.Time{}, false, nil
	}

	if !sig.IsValid(c.now()) {
		c.metrics.SignatureCacheInvalid.Inc()
		c.log.Debug(
			"Discarding expired decryption signature",
			zap.String("key", key),
			zap.Time("expiredAt", sig.ExpiresAt()),
		)
		if err := c.store.Remove(ctx, key); err != nil {
			c.metrics.SignatureStoreFailures.Inc()
		}
		return nil, time.Time{}, false, nil
	}
	return sig, sig.ExpiresAt(), true, nil
}
