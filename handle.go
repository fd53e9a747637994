// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decrypt

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
)

// HandleLen is the width of a ciphertext handle in bytes
const HandleLen = 32

// Handle is an opaque reference to an encrypted on-chain value
type Handle [HandleLen]byte

// Hex returns the canonical form of the handle: lowercase, 0x-prefixed,
// 64 hex digits. It is the only form used as a map or cache key.
func (h Handle) Hex() string {
	return hexutil.Encode(h[:])
}

func (h Handle) String() string {
	return h.Hex()
}

// MarshalText implements encoding.TextMarshaler
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle normalizes the accepted handle encodings (raw bytes, big
// integers, hashes and hex strings) into a Handle. Values wider than 32 bytes
// and negative integers are rejected.
func ParseHandle(v any) (Handle, error) {
	switch h := v.(type) {
	case Handle:
		return h, nil
	case *Handle:
		if h == nil {
			return Handle{}, fmt.Errorf("%w: nil handle", ErrInvalidHandle)
		}
		return *h, nil
	case [HandleLen]byte:
		return Handle(h), nil
	case common.Hash:
		return Handle(h), nil
	case []byte:
		return handleFromBytes(h)
	case *big.Int:
		if h == nil {
			return Handle{}, fmt.Errorf("%w: nil integer", ErrInvalidHandle)
		}
		if h.Sign() < 0 {
			return Handle{}, fmt.Errorf("%w: negative integer", ErrInvalidHandle)
		}
		if h.BitLen() > HandleLen*8 {
			return Handle{}, fmt.Errorf("%w: integer exceeds %d bits", ErrInvalidHandle, HandleLen*8)
		}
		var out Handle
		h.FillBytes(out[:])
		return out, nil
	case *uint256.Int:
		if h == nil {
			return Handle{}, fmt.Errorf("%w: nil integer", ErrInvalidHandle)
		}
		return Handle(h.Bytes32()), nil
	case uint64:
		return Handle(uint256.NewInt(h).Bytes32()), nil
	case string:
		return handleFromString(h)
	default:
		return Handle{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidHandle, v)
	}
}

// MustParseHandle is like ParseHandle but panics on error
func MustParseHandle(v any) Handle {
	h, err := ParseHandle(v)
	if err != nil {
		panic(err)
	}
	return h
}

func handleFromBytes(b []byte) (Handle, error) {
	if len(b) > HandleLen {
		return Handle{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidHandle, len(b), HandleLen)
	}
	var out Handle
	copy(out[HandleLen-len(b):], b)
	return out, nil
}

func handleFromString(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if s == "" {
		return Handle{}, fmt.Errorf("%w: empty string", ErrInvalidHandle)
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	}
	return handleFromBytes(b)
}

// HandleContractPair is the unit of decryption work
type HandleContractPair struct {
	Handle          Handle         `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
}

// NewHandleContractPair normalizes handle and validates contract
func NewHandleContractPair(handle any, contract string) (HandleContractPair, error) {
	h, err := ParseHandle(handle)
	if err != nil {
		return HandleContractPair{}, err
	}
	if !common.IsHexAddress(contract) {
		return HandleContractPair{}, fmt.Errorf("%w: %q", ErrInvalidAddress, contract)
	}
	return HandleContractPair{
		Handle:          h,
		ContractAddress: common.HexToAddress(contract),
	}, nil
}

// Key returns the in-flight registry key "{contract}:{handle}"
func (p HandleContractPair) Key() string {
	return PairKey(p.ContractAddress, p.Handle)
}

// PairKey builds the in-flight registry key for a contract and handle
func PairKey(contract common.Address, handle Handle) string {
	return strings.ToLower(contract.Hex()) + ":" + handle.Hex()
}

// GroupByContract groups pairs by contract, preserving first-seen contract
// order. Duplicate pairs are dropped.
func GroupByContract(pairs []HandleContractPair) ([]common.Address, map[common.Address][]HandleContractPair) {
	var (
		contracts []common.Address
		groups    = make(map[common.Address][]HandleContractPair)
		seen      = make(map[string]struct{}, len(pairs))
	)
	for _, p := range pairs {
		key := p.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := groups[p.ContractAddress]; !ok {
			contracts = append(contracts, p.ContractAddress)
		}
		groups[p.ContractAddress] = append(groups[p.ContractAddress], p)
	}
	return contracts, groups
}
