// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package orchestrator resolves handle/contract pairs to cleartexts: it
// reuses cached results, joins dispatches already in flight, covers the
// remaining contracts with as few signatures as it can, asks the coordinator
// to sign whatever is left and dispatches one user decryption per signature.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/luxfi/decrypt"
	"github.com/luxfi/decrypt/cache"
	"github.com/luxfi/decrypt/coordinator"
	"github.com/luxfi/decrypt/cover"
	"github.com/luxfi/decrypt/fhe"
	"github.com/luxfi/decrypt/metrics"
	"github.com/luxfi/decrypt/sigcache"
)

// maxSigningRounds bounds how many signing flows of its own one Decrypt call
// completes before giving up on a residue that stays uncovered. Waiting on
// another caller's flow does not count.
const maxSigningRounds = 4

var errResidueUnresolved = errors.New("contracts still not covered after signing")

// Orchestrator is safe for concurrent use
type Orchestrator struct {
	log         *zap.Logger
	metrics     *metrics.DecryptMetrics
	sigs        *sigcache.Cache
	coordinator *coordinator.Coordinator
	instance    fhe.Instance
	now         func() time.Time

	// lifetime of scheduled work
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	results  *cache.Results[decrypt.Handle, decrypt.Value]
	inflight *cache.InFlight[string]

	lock   sync.Mutex
	status map[decrypt.Handle]Status
	errs   map[decrypt.Handle]error
	// bumped whenever results are dropped; batches from an older epoch are
	// discarded on resolution
	epoch   uint64
	user    common.Address
	chainID uint64
	// signatures delivered by the coordinator for the current context
	signed []*decrypt.DecryptionSignature
}

type Option func(*Orchestrator)

// WithClock overrides the time source used to filter expired signatures
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(
	log *zap.Logger,
	m *metrics.DecryptMetrics,
	sigs *sigcache.Cache,
	coord *coordinator.Coordinator,
	instance fhe.Instance,
	opts ...Option,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		log:         log,
		metrics:     m,
		sigs:        sigs,
		coordinator: coord,
		instance:    instance,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		results:     cache.NewResults[decrypt.Handle, decrypt.Value](),
		inflight:    cache.NewInFlight[string](),
		status:      make(map[decrypt.Handle]Status),
		errs:        make(map[decrypt.Handle]error),
	}
	for _, opt := range opts {
		opt(o)
	}
	current := coord.Context()
	o.user, o.chainID = current.UserAddress, current.ChainID
	coord.OnSigned(o.onSigned)
	return o
}

// SetContext switches the active user, chain and FHE instance. Switching user
// or chain drops every result so one user's cleartexts are never served to
// another, and discards batches still in flight for the old context.
func (o *Orchestrator) SetContext(user common.Address, chainID uint64, instanceID string) {
	o.lock.Lock()
	defer o.lock.Unlock()

	o.coordinator.UpdateContext(coordinator.Context{
		UserAddress: user,
		ChainID:     chainID,
		InstanceID:  instanceID,
	})
	if user == o.user && chainID == o.chainID {
		return
	}
	o.log.Info("Decryption context changed, dropping results",
		zap.Stringer("user", user),
		zap.Uint64("chainID", chainID),
	)
	o.user, o.chainID = user, chainID
	o.signed = nil
	o.clearLocked()
	o.sigs.Flush()
}

// DecryptHandle schedules decryption of pairs and returns immediately.
// Progress is observable through GetStatus, GetResult and GetError.
func (o *Orchestrator) DecryptHandle(pairs []decrypt.HandleContractPair) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.Decrypt(o.ctx, pairs); err != nil {
			o.log.Warn("Decryption request failed", zap.Error(err))
		}
	}()
}

// Decrypt resolves pairs and returns once each one has been decrypted or
// marked as failed, by this call or by the in-flight dispatch it joined.
// Per-handle failures are recorded, not returned: the error only reports
// invalid input or ctx ending.
func (o *Orchestrator) Decrypt(ctx context.Context, pairs []decrypt.HandleContractPair) error {
	for _, p := range pairs {
		if p.ContractAddress == (common.Address{}) {
			return fmt.Errorf("%w: empty contract for handle %s", decrypt.ErrInvalidAddress, p.Handle)
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	o.metrics.DecryptRequests.Inc()

	o.lock.Lock()
	epoch, user, chainID := o.epoch, o.user, o.chainID
	o.lock.Unlock()

	var (
		waits []*cache.Call
		// pairs handed to a dispatch by this call are never dispatched again
		// by it, even if their batch already failed
		attempted = make(map[string]struct{}, len(pairs))
		// signatures returned by this call's own signing flows
		own    []*decrypt.DecryptionSignature
		rounds int
	)
	defer func() {
		// dispatches started here resolve on the orchestrator's lifetime,
		// not the caller's
		o.await(ctx, waits)
	}()

	for {
		if o.currentEpoch() != epoch {
			return nil
		}
		pending := o.unresolved(pairs, attempted)
		if len(pending) == 0 {
			return nil
		}
		contracts, groups := decrypt.GroupByContract(pending)

		candidates := o.sigs.Get(ctx, contracts, user, chainID)
		candidates = append(candidates, o.delivered(user, chainID)...)
		candidates = append(candidates, own...)
		cov, residue := cover.Partial(candidates, contracts)
		for _, assignment := range cov.Assignments {
			var batch []decrypt.HandleContractPair
			for _, contract := range assignment.Contracts {
				batch = append(batch, groups[contract]...)
			}
			for _, p := range batch {
				attempted[p.Key()] = struct{}{}
			}
			waits = append(waits, o.dispatch(epoch, assignment.Signature, batch)...)
		}
		if len(residue) == 0 {
			return nil
		}
		if rounds >= maxSigningRounds {
			o.fail(epoch, groups, residue, errResidueUnresolved)
			return nil
		}

		sigs, err := o.coordinator.Sign(ctx, residue)
		switch {
		case err == nil:
			rounds++
			own = append(own, sigs...)
		case coordinator.IsBusy(err):
			if err := o.coordinator.Wait(ctx); err != nil {
				return err
			}
		case errors.Is(err, decrypt.ErrStaleRequest):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			o.fail(epoch, groups, residue, err)
			return nil
		}
	}
}

// unresolved returns the pairs that have no result and were not attempted yet
func (o *Orchestrator) unresolved(
	pairs []decrypt.HandleContractPair,
	attempted map[string]struct{},
) []decrypt.HandleContractPair {
	var out []decrypt.HandleContractPair
	for _, p := range pairs {
		if o.results.Has(p.Handle) {
			continue
		}
		if _, ok := attempted[p.Key()]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

// onSigned collects signatures delivered by any signing flow, so callers
// waiting on that flow pick them up on their next cover
func (o *Orchestrator) onSigned(sigs []*decrypt.DecryptionSignature) {
	o.lock.Lock()
	defer o.lock.Unlock()
	for _, sig := range sigs {
		if sig.UserAddress != o.user || sig.ChainID != o.chainID {
			continue
		}
		o.signed = append(o.signed, sig)
	}
}

// delivered returns the collected signatures still usable for user on
// chainID, pruning expired ones
func (o *Orchestrator) delivered(user common.Address, chainID uint64) []*decrypt.DecryptionSignature {
	now := o.now()

	o.lock.Lock()
	defer o.lock.Unlock()
	kept := o.signed[:0]
	for _, sig := range o.signed {
		if sig.IsValid(now) {
			kept = append(kept, sig)
		}
	}
	o.signed = kept

	var out []*decrypt.DecryptionSignature
	for _, sig := range kept {
		if sig.UserAddress == user && sig.ChainID == chainID {
			out = append(out, sig)
		}
	}
	return out
}

// dispatch starts one user decryption for the pairs of batch not already in
// flight and returns the calls to wait on, the new one and any joined
func (o *Orchestrator) dispatch(
	epoch uint64,
	sig *decrypt.DecryptionSignature,
	batch []decrypt.HandleContractPair,
) []*cache.Call {
	byKey := make(map[string]decrypt.HandleContractPair, len(batch))
	keys := make([]string, 0, len(batch))
	for _, p := range batch {
		key := p.Key()
		byKey[key] = p
		keys = append(keys, key)
	}

	call, owned, joined := o.inflight.Acquire(keys)
	if len(joined) > 0 {
		o.metrics.InFlightJoins.Add(float64(len(joined)))
	}
	if call == nil {
		return joined
	}

	// a batch resolved between the caller's result check and Acquire
	var remaining, resolved []string
	for _, key := range owned {
		if o.results.Has(byKey[key].Handle) {
			resolved = append(resolved, key)
		} else {
			remaining = append(remaining, key)
		}
	}
	if len(remaining) == 0 {
		o.inflight.Release(call, owned, nil)
		return joined
	}
	if len(resolved) > 0 {
		o.inflight.Forget(call, resolved)
		owned = remaining
	}

	pairs := make([]decrypt.HandleContractPair, len(owned))
	handles := make([]decrypt.Handle, len(owned))
	for i, key := range owned {
		pairs[i] = byKey[key]
		handles[i] = pairs[i].Handle
	}

	o.lock.Lock()
	if o.epoch != epoch {
		o.lock.Unlock()
		o.inflight.Release(call, owned, decrypt.ErrStaleRequest)
		return joined
	}
	for _, h := range handles {
		o.status[h] = StatusDecrypting
		delete(o.errs, h)
	}
	o.lock.Unlock()

	o.metrics.DecryptDispatches.Inc()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.run(epoch, sig, pairs, handles)
		o.inflight.Release(call, owned, err)
	}()
	return append(joined, call)
}

func (o *Orchestrator) run(
	epoch uint64,
	sig *decrypt.DecryptionSignature,
	pairs []decrypt.HandleContractPair,
	handles []decrypt.Handle,
) error {
	contracts, _ := decrypt.GroupByContract(pairs)

	start := time.Now()
	values, err := o.instance.UserDecrypt(o.ctx, fhe.NewUserDecryptRequest(sig, pairs))
	o.metrics.DispatchLatency.Observe(time.Since(start).Seconds())

	o.lock.Lock()
	defer o.lock.Unlock()
	if o.epoch != epoch {
		o.log.Debug("Discarding decryption results of a previous context",
			zap.Int("handles", len(handles)),
		)
		return decrypt.ErrStaleRequest
	}

	if err != nil {
		o.metrics.DecryptFailures.Inc()
		o.log.Warn("User decryption failed",
			zap.Int("handles", len(handles)),
			zap.Int("contracts", len(contracts)),
			zap.Error(err),
		)
		derr := &decrypt.DecryptionError{
			Contracts: contracts,
			Handles:   handles,
			Cause:     err,
		}
		for _, h := range handles {
			o.markErrorLocked(h, derr)
		}
		return derr
	}

	decrypted := make(map[decrypt.Handle]decrypt.Value, len(handles))
	var missing []decrypt.Handle
	for _, h := range handles {
		v, ok := values[h]
		if !ok {
			missing = append(missing, h)
			continue
		}
		decrypted[h] = v
		o.status[h] = StatusDecrypted
		delete(o.errs, h)
	}
	o.results.Merge(decrypted)
	o.metrics.HandlesDecrypted.Add(float64(len(decrypted)))

	if len(missing) > 0 {
		derr := &decrypt.DecryptionError{
			Contracts: contracts,
			Handles:   missing,
			Cause:     errors.New("handle missing from decryption response"),
		}
		for _, h := range missing {
			o.markErrorLocked(h, derr)
		}
	}
	return nil
}

// fail marks the pairs of contracts as failed with err
func (o *Orchestrator) fail(
	epoch uint64,
	groups map[common.Address][]decrypt.HandleContractPair,
	contracts []common.Address,
	err error,
) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.epoch != epoch {
		return
	}
	o.log.Warn("Failed to authorize decryption",
		zap.Int("contracts", len(contracts)),
		zap.Error(err),
	)
	for _, contract := range contracts {
		for _, p := range groups[contract] {
			o.markErrorLocked(p.Handle, err)
		}
	}
}

func (o *Orchestrator) markErrorLocked(h decrypt.Handle, err error) {
	if o.status[h] == StatusDecrypted {
		return
	}
	o.status[h] = StatusError
	o.errs[h] = err
}

// await blocks until every call resolved or ctx is done
func (o *Orchestrator) await(ctx context.Context, calls []*cache.Call) {
	for _, call := range calls {
		select {
		case <-call.Done():
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) currentEpoch() uint64 {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.epoch
}

// GetResult returns the cleartext of h, if decrypted
func (o *Orchestrator) GetResult(h decrypt.Handle) (decrypt.Value, bool) {
	return o.results.Get(h)
}

func (o *Orchestrator) GetStatus(h decrypt.Handle) Status {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.status[h]
}

// GetError returns why h failed, while its status is StatusError
func (o *Orchestrator) GetError(h decrypt.Handle) error {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.errs[h]
}

// Results returns a copy of every decrypted value
func (o *Orchestrator) Results() map[decrypt.Handle]decrypt.Value {
	return o.results.Snapshot()
}

// Coordinator exposes the signing coordinator, for status reporting
func (o *Orchestrator) Coordinator() *coordinator.Coordinator {
	return o.coordinator
}

// Clear drops every result, status and error. Dispatches still in flight
// resolve without effect.
func (o *Orchestrator) Clear() {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.clearLocked()
}

func (o *Orchestrator) clearLocked() {
	o.epoch++
	o.results.Clear()
	o.inflight.Clear()
	o.status = make(map[decrypt.Handle]Status)
	o.errs = make(map[decrypt.Handle]error)
}

// Wait blocks until all scheduled work has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels scheduled work and waits for it to return
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}
