// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decrypt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/geth/common"
)

var (
	ErrInvalidHandle     = errors.New("invalid handle")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrEmptyContracts    = errors.New("empty contract set")
	ErrSigningInProgress = errors.New("signing already in progress")
	ErrStaleRequest      = errors.New("signing context changed before completion")
	ErrNoSigner          = errors.New("no signer configured")
	ErrNoInstance        = errors.New("no fhe instance configured")
)

// ValidationError reports a malformed or expired persisted signature. It is
// never surfaced to callers: a record that fails validation is a cache miss.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid decryption signature: " + e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// SigningError wraps a wallet rejection or signing failure
type SigningError struct {
	Contracts []common.Address
	Cause     error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing decryption request for %d contracts: %v", len(e.Contracts), e.Cause)
}

func (e *SigningError) Unwrap() error {
	return e.Cause
}

// DecryptionError is recorded against every handle of a failed dispatch batch
type DecryptionError struct {
	Contracts []common.Address
	Handles   []Handle
	Cause     error
}

func (e *DecryptionError) Error() string {
	contracts := make([]string, len(e.Contracts))
	for i, c := range e.Contracts {
		contracts[i] = c.Hex()
	}
	return fmt.Sprintf(
		"user decrypt of %d handles on [%s]: %v",
		len(e.Handles),
		strings.Join(contracts, ","),
		e.Cause,
	)
}

func (e *DecryptionError) Unwrap() error {
	return e.Cause
}
