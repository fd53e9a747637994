// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sigcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luxfi/decrypt/decrypttest"
	"github.com/luxfi/decrypt/metrics"
	"github.com/luxfi/decrypt/store"
)

const chainID = 9000

var (
	user      = decrypttest.Address(0x01)
	contractA = decrypttest.Address(0xa)
	contractB = decrypttest.Address(0xb)
	contractC = decrypttest.Address(0xc)

	errStoreDown = errors.New("store down")
)

// failingStore wraps a store and fails the selected operations
type failingStore struct {
	store.Store

	lock      sync.Mutex
	failGet   bool
	failSet   bool
	getCalls  int
	setCalls  int
	removedKs []string
}

func (f *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.lock.Lock()
	f.getCalls++
	fail := f.failGet
	f.lock.Unlock()
	if fail {
		return "", false, errStoreDown
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key string, value string) error {
	f.lock.Lock()
	f.setCalls++
	fail := f.failSet
	f.lock.Unlock()
	if fail {
		return errStoreDown
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) Remove(ctx context.Context, key string) error {
	f.lock.Lock()
	f.removedKs = append(f.removedKs, key)
	f.lock.Unlock()
	return f.Store.Remove(ctx, key)
}

type harness struct {
	store   *failingStore
	metrics *metrics.DecryptMetrics
	cache   *Cache
	now     time.Time
	clock   sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mem, err := store.NewMemoryStore(64)
	require.NoError(t, err)
	h := &harness{
		store:   &failingStore{Store: mem},
		metrics: metrics.NewDecryptMetrics(prometheus.NewRegistry()),
		now:     time.Unix(1000, 0),
	}
	h.cache = New(zap.NewNop(), h.store, h.metrics, WithClock(h.Now))
	return h
}

func (h *harness) Now() time.Time {
	h.clock.Lock()
	defer h.clock.Unlock()
	return h.now
}

func (h *harness) Advance(d time.Duration) {
	h.clock.Lock()
	defer h.clock.Unlock()
	h.now = h.now.Add(d)
}

func TestStorageKey(t *testing.T) {
	contract := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	owner := common.HexToAddress("0x00000000000000000000000000000000000000BB")
	require.Equal(
		t,
		"fhe-decrypt-sig:9000:0x00000000000000000000000000000000000000bb:0x00000000000000000000000000000000000000aa",
		StorageKey(contract, owner, chainID),
	)
	require.NotEqual(t, StorageKey(contract, owner, 1), StorageKey(contract, owner, 2))
}

func TestSaveFansOutPerContract(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	ctx := context.Background()

	sig := decrypttest.NewSignature(t, user, chainID, 1000, 1, contractA, contractB)
	require.NoError(h.cache.Save(ctx, sig))
	require.Equal(2, h.store.setCalls)

	for _, contract := range []common.Address{contractA, contractB} {
		raw, found, err := h.store.Get(ctx, StorageKey(contract, user, chainID))
		require.NoError(err)
		require.True(found)
		require.Contains(raw, sig.Signature)
	}
	_, found, err := h.store.Get(ctx, StorageKey(contractC, user, chainID))
	require.NoError(err)
	require.False(found)
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name       string
		contracts  []common.Address
		lookupUser common.Address
		lookupID   uint64
		expected   []common.Address
	}{
		{
			name:       "every contract covered",
			contracts:  []common.Address{contractA, contractB},
			lookupUser: user,
			lookupID:   chainID,
			expected:   []common.Address{contractA, contractB},
		},
		{
			name:       "partially covered",
			contracts:  []common.Address{contractA, contractC},
			lookupUser: user,
			lookupID:   chainID,
			expected:   []common.Address{contractA},
		},
		{
			name:       "other user",
			contracts:  []common.Address{contractA},
			lookupUser: decrypttest.Address(0x02),
			lookupID:   chainID,
		},
		{
			name:       "other chain",
			contracts:  []common.Address{contractA},
			lookupUser: user,
			lookupID:   chainID + 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			h := newHarness(t)
			ctx := context.Background()

			sig := decrypttest.NewSignature(t, user, chainID, 1000, 1, contractA, contractB)
			require.NoError(h.cache.Save(ctx, sig))
			h.cache.Flush()

			found := h.cache.Lookup(ctx, tt.contracts, tt.lookupUser, tt.lookupID)
			require.Len(found, len(tt.expected))
			for _, contract := range tt.expected {
				require.Equal(sig.ID(), found[contract].ID())
			}
		})
	}
}

func TestGetDeduplicatesSignatures(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	ctx := context.Background()

	sigAB := decrypttest.NewSignature(t, user, chainID, 1000, 1, contractA, contractB)
	sigC := decrypttest.NewSignature(t, user, chainID, 1000, 1, contractC)
	require.NoError(h.cache.Save(ctx, sigAB))
	require.NoError(h.cache.Save(ctx, sigC))

	sigs := h.cache.Get(ctx, []common.Address{contractC, contractA, contractB, contractA}, user, chainID)
	require.Len(sigs, 2)
	require.Equal(sigC.ID(), sigs[0].ID())
	require.Equal(sigAB.ID(), sigs[1].ID())
}

func TestExpiredSignatureIsRemoved(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	ctx := context.Background()

	sig := decrypttest.NewSignature(t, user, chainID, 1000, 2, contractA)
	require.NoError(h.cache.Save(ctx, sig))

	h.Advance(2*24*time.Hour - time.Second)
	require.Len(h.cache.Lookup(ctx, []common.Address{contractA}, user, chainID), 1)

	h.Advance(time.Second)
	require.Empty(h.cache.Lookup(ctx, []common.Address{contractA}, user, chainID))

	// memoized entry has expired, so the record is read and dropped
	key := StorageKey(contractA, user, chainID)
	require.Contains(h.store.removedKs, key)
	_, found, err := h.store.Get(ctx, key)
	require.NoError(err)
	require.False(found)
	require.Equal(1.0, testutil.ToFloat64(h.metrics.SignatureCacheInvalid))
}

func TestMalformedRecordIsMiss(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not json", value: "{"},
		{name: "missing fields", value: `{"publicKey":"0x01"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			h := newHarness(t)
			ctx := context.Background()

			require.NoError(h.store.Set(ctx, StorageKey(contractA, user, chainID), tt.value))
			require.Empty(h.cache.Lookup(ctx, []common.Address{contractA}, user, chainID))
			require.Equal(1.0, testutil.ToFloat64(h.metrics.SignatureCacheInvalid))
			require.Equal(1.0, testutil.ToFloat64(h.metrics.SignatureCacheMisses))
		})
	}
}

func TestRecordUnderWrongKeyIsMiss(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	ctx := context.Background()

	sig := decrypttest.NewSignature(t, user, chainID, 1000, 1, contractB)
	raw, err := sig.ToJSON()
	require.NoError(err)
	require.NoError(h.store.Set(ctx, StorageKey(contractA, user, chainID), string(raw)))

	require.Empty(h.cache.Lookup(ctx, []common.Address{contractA}, user, chainID))
	require.Equal(1.0, testutil.ToFloat64(h.metrics.SignatureCacheInvalid))
}

func TestStoreFailures(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	ctx := context.Background()

	h.store.failSet = true
	sig := decrypttest.NewSignature(t, user, chainID, 1000, 1, contractA, contractB)
	err := h.cache.Save(ctx, sig)
	require.ErrorIs(err, errStoreDown)
	require.Equal(2.0, testutil.ToFloat64(h.metrics.SignatureStoreFailures))

	// the signature is still served from memory
	require.Len(h.cache.Lookup(ctx, []common.Address{contractA, contractB}, user, chainID), 2)

	h.cache.Flush()
	h.store.failGet = true
	require.Empty(h.cache.Lookup(ctx, []common.Address{contractA}, user, chainID))
	require.Equal(3.0, testutil.ToFloat64(h.metrics.SignatureStoreFailures))
}

func TestSaveRejectsInvalidSignature(t *testing.T) {
	h := newHarness(t)
	sig := decrypttest.NewSignature(t, user, chainID, 1000, 1, contractA)
	sig.ContractAddresses = nil
	require.Error(t, h.cache.Save(context.Background(), sig))
	require.Zero(t, h.store.setCalls)
}

func TestDelete(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	ctx := context.Background()

	sig := decrypttest.NewSignature(t, user, chainID, 1000, 1, contractA, contractB)
	require.NoError(h.cache.Save(ctx, sig))
	require.NoError(h.cache.Delete(ctx, sig))
	require.Empty(h.cache.Lookup(ctx, []common.Address{contractA, contractB}, user, chainID))
}

func TestConcurrentLookups(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	ctx := context.Background()

	sig := decrypttest.NewSignature(t, user, chainID, 1000, 1, contractA)
	require.NoError(h.cache.Save(ctx, sig))
	h.cache.Flush()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found := h.cache.Lookup(ctx, []common.Address{contractA}, user, chainID)
			require.Len(found, 1)
		}()
	}
	wg.Wait()
	require.Equal(16.0, testutil.ToFloat64(h.metrics.SignatureCacheHits))
}

func TestGetAfterExpiryForcesResign(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	ctx := context.Background()

	sig := decrypttest.NewSignature(t, user, chainID, 1000, 1, contractA)
	require.NoError(h.cache.Save(ctx, sig))

	h.Advance(2 * 24 * time.Hour)
	require.Empty(h.cache.Get(ctx, []common.Address{contractA}, user, chainID))
}
