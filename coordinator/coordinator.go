// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package coordinator serializes wallet signing so that at most one
// authorization prompt is outstanding at a time, and drops signatures whose
// user or chain changed while the wallet was prompting.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"go.uber.org/zap"

	"github.com/luxfi/decrypt"
	"github.com/luxfi/decrypt/fhe"
	"github.com/luxfi/decrypt/metrics"
	"github.com/luxfi/decrypt/sigcache"
	"github.com/luxfi/decrypt/signer"
)

const DefaultDurationDays = 10

type State int

const (
	Idle State = iota
	Signing
	Signed
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Signing:
		return "signing"
	case Signed:
		return "signed"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Context identifies who signs, for which chain and through which FHE
// instance. A signature produced under one Context is never used under another.
type Context struct {
	UserAddress common.Address
	ChainID     uint64
	InstanceID  string
}

type Option func(*Coordinator)

// WithClock overrides the time source used for signature start timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithDurationDays sets the validity of new signatures
func WithDurationDays(days int64) Option {
	return func(c *Coordinator) {
		c.durationDays = days
	}
}

type Coordinator struct {
	log          *zap.Logger
	metrics      *metrics.DecryptMetrics
	cache        *sigcache.Cache
	instance     fhe.Instance
	signer       signer.Signer
	durationDays int64
	now          func() time.Time

	lock       sync.Mutex
	state      State
	err        error
	generation uint64
	current    Context
	// closed when the in-flight flow finishes, nil when none is in flight
	done      chan struct{}
	listeners []func([]*decrypt.DecryptionSignature)
}

func New(
	log *zap.Logger,
	m *metrics.DecryptMetrics,
	cache *sigcache.Cache,
	instance fhe.Instance,
	s signer.Signer,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		log:          log,
		metrics:      m,
		cache:        cache,
		instance:     instance,
		signer:       s,
		durationDays: DefaultDurationDays,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpdateContext records the current user, chain and instance. Any change
// invalidates the flow in flight, if any.
func (c *Coordinator) UpdateContext(ctx Context) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if ctx == c.current {
		return
	}
	c.log.Debug("Signing context changed",
		zap.Stringer("user", ctx.UserAddress),
		zap.Uint64("chainID", ctx.ChainID),
		zap.String("instanceID", ctx.InstanceID),
	)
	c.current = ctx
	c.generation++
	if c.state != Signing {
		c.state = Idle
		c.err = nil
	}
}

// Context returns the current context
func (c *Coordinator) Context() Context {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.current
}

// Sign returns signatures authorizing every contract. If the cache already
// holds one for each contract they are returned without prompting; otherwise
// a single new signature over all of contracts is requested from the wallet.
//
// Sign returns ErrSigningInProgress without side effects while another flow
// is in flight, ErrStaleRequest when the context changed or Reset was called
// during the prompt, and a *decrypt.SigningError when signing itself failed.
func (c *Coordinator) Sign(ctx context.Context, contracts []common.Address) ([]*decrypt.DecryptionSignature, error) {
	contracts = dedup(contracts)
	if len(contracts) == 0 {
		return nil, decrypt.ErrEmptyContracts
	}

	c.lock.Lock()
	switch {
	case c.state == Signing:
		c.lock.Unlock()
		return nil, decrypt.ErrSigningInProgress
	case c.signer == nil:
		c.lock.Unlock()
		return nil, decrypt.ErrNoSigner
	case c.instance == nil:
		c.lock.Unlock()
		return nil, decrypt.ErrNoInstance
	case c.current.UserAddress == (common.Address{}):
		c.lock.Unlock()
		return nil, fmt.Errorf("%w: no user in signing context", decrypt.ErrInvalidAddress)
	}
	snapshot, generation := c.current, c.generation
	done := make(chan struct{})
	c.state = Signing
	c.err = nil
	c.done = done
	c.lock.Unlock()

	found := c.cache.Lookup(ctx, contracts, snapshot.UserAddress, snapshot.ChainID)
	if len(found) == len(contracts) {
		sigs := sigcache.Distinct(contracts, found)
		if err := c.finish(snapshot, generation, done, nil); err != nil {
			return nil, err
		}
		return sigs, nil
	}

	c.metrics.SigningPrompts.Inc()
	sig, err := c.prompt(ctx, snapshot, contracts)
	if err != nil {
		err = &decrypt.SigningError{Contracts: contracts, Cause: err}
		if ferr := c.finish(snapshot, generation, done, err); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}

	if c.isStale(snapshot, generation) {
		c.finish(snapshot, generation, done, nil)
		return nil, decrypt.ErrStaleRequest
	}
	if err := c.cache.Save(ctx, sig); err != nil {
		// still usable through the cache's memo until it expires
		c.log.Warn("Failed to persist new signature", zap.Error(err))
	}
	sigs := []*decrypt.DecryptionSignature{sig}
	if err := c.finish(snapshot, generation, done, nil); err != nil {
		return nil, err
	}
	c.notify(sigs)
	return sigs, nil
}

func (c *Coordinator) prompt(
	ctx context.Context,
	snapshot Context,
	contracts []common.Address,
) (*decrypt.DecryptionSignature, error) {
	account, err := c.signer.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get signer account: %w", err)
	}
	if account != snapshot.UserAddress {
		return nil, fmt.Errorf("signer account %s is not the context user %s", account, snapshot.UserAddress)
	}

	kp, err := c.instance.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	start := c.now().Unix()
	typedData, err := c.instance.CreateEIP712(kp.PublicKey, contracts, start, c.durationDays)
	if err != nil {
		return nil, fmt.Errorf("failed to create typed data: %w", err)
	}

	c.log.Info("Requesting decryption signature",
		zap.Stringer("user", snapshot.UserAddress),
		zap.Int("contracts", len(contracts)),
	)
	raw, err := c.signer.SignTypedData(ctx, typedData)
	if err != nil {
		return nil, err
	}

	return &decrypt.DecryptionSignature{
		PublicKey:         kp.PublicKey,
		PrivateKey:        kp.PrivateKey,
		Signature:         hexutil.Encode(raw),
		StartTimestamp:    start,
		DurationDays:      c.durationDays,
		UserAddress:       snapshot.UserAddress,
		ContractAddresses: contracts,
		ChainID:           snapshot.ChainID,
		EIP712:            typedData,
	}, nil
}

func (c *Coordinator) isStale(snapshot Context, generation uint64) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.generation != generation || c.current != snapshot
}

// finish ends the flow owning done. It returns ErrStaleRequest, leaving the
// coordinator idle, when the flow's generation is no longer current.
func (c *Coordinator) finish(
	snapshot Context,
	generation uint64,
	done chan struct{},
	err error,
) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	defer close(done)
	if c.done == done {
		c.done = nil
	}

	if c.generation != generation || c.current != snapshot {
		c.metrics.SigningStale.Inc()
		c.log.Debug("Discarding stale signing result")
		c.state = Idle
		c.err = nil
		return decrypt.ErrStaleRequest
	}

	if err != nil {
		c.metrics.SigningFailures.Inc()
		c.log.Warn("Signing failed", zap.Error(err))
		c.state = Error
		c.err = err
		return nil
	}
	c.state = Signed
	return nil
}

func (c *Coordinator) notify(sigs []*decrypt.DecryptionSignature) {
	c.lock.Lock()
	listeners := slices.Clone(c.listeners)
	c.lock.Unlock()
	for _, fn := range listeners {
		fn(sigs)
	}
}

// OnSigned registers fn to be called with every newly signed signature
func (c *Coordinator) OnSigned(fn func([]*decrypt.DecryptionSignature)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Coordinator) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Err returns the error of the last failed flow while in the Error state
func (c *Coordinator) Err() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.err
}

// Wait blocks until no flow is in flight or ctx is done
func (c *Coordinator) Wait(ctx context.Context) error {
	c.lock.Lock()
	done := c.done
	c.lock.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset invalidates any flow in flight and returns to Idle. A flow in flight
// keeps the coordinator in Signing until it returns, then resolves as stale.
func (c *Coordinator) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.generation++
	if c.state != Signing {
		c.state = Idle
		c.err = nil
	}
}

func dedup(contracts []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(contracts))
	out := make([]common.Address, 0, len(contracts))
	for _, contract := range contracts {
		if _, ok := seen[contract]; ok {
			continue
		}
		seen[contract] = struct{}{}
		out = append(out, contract)
	}
	return out
}

// IsBusy reports whether err means another flow holds the coordinator
func IsBusy(err error) bool {
	return errors.Is(err, decrypt.ErrSigningInProgress)
}
