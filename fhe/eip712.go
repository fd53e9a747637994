// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/common/math"
	"github.com/luxfi/geth/signer/core/apitypes"

	"github.com/luxfi/decrypt"
)

const (
	DomainName    = "Decryption"
	DomainVersion = "1"
	PrimaryType   = "UserDecryptRequestVerification"
)

// EIP712Builder builds the user decryption authorization signed by the
// wallet. ChainID and VerifyingContract identify the decryption gateway.
type EIP712Builder struct {
	ChainID           uint64
	VerifyingContract common.Address
}

// Build returns the typed data authorizing the holder of publicKey to decrypt
// handles of contracts for durationDays starting at startTimestamp.
func (b EIP712Builder) Build(
	publicKey string,
	contracts []common.Address,
	startTimestamp int64,
	durationDays int64,
) (apitypes.TypedData, error) {
	if len(contracts) == 0 {
		return apitypes.TypedData{}, decrypt.ErrEmptyContracts
	}
	if durationDays <= 0 {
		return apitypes.TypedData{}, fmt.Errorf("durationDays must be positive, got %d", durationDays)
	}
	if !strings.HasPrefix(publicKey, "0x") {
		publicKey = "0x" + publicKey
	}
	if _, err := hexutil.Decode(publicKey); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("public key is not hex: %w", err)
	}

	addresses := make([]interface{}, len(contracts))
	for i, c := range contracts {
		addresses[i] = c.Hex()
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			PrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
				{Name: "extraData", Type: "bytes"},
			},
		},
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(b.ChainID)),
			VerifyingContract: b.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         publicKey,
			"contractAddresses": addresses,
			"startTimestamp":    strconv.FormatInt(startTimestamp, 10),
			"durationDays":      strconv.FormatInt(durationDays, 10),
			"extraData":         "0x00",
		},
	}, nil
}
