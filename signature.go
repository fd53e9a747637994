// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decrypt

import (
	"crypto/sha256"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/signer/core/apitypes"
	"github.com/luxfi/ids"
)

const (
	// SecondsPerDay converts a signature's duration into its validity window
	SecondsPerDay = 86400
	// MaxDurationDays bounds durationDays so the expiry fits an int64
	MaxDurationDays = 365 * 100
)

// DecryptionSignature is one EIP-712 signed authorization allowing the user to
// decrypt handles of every contract in ContractAddresses until it expires.
type DecryptionSignature struct {
	PublicKey         string             `json:"publicKey"`
	PrivateKey        string             `json:"privateKey"`
	Signature         string             `json:"signature"`
	StartTimestamp    int64              `json:"startTimestamp"`
	DurationDays      int64              `json:"durationDays"`
	UserAddress       common.Address     `json:"userAddress"`
	ContractAddresses []common.Address   `json:"contractAddresses"`
	ChainID           uint64             `json:"chainId"`
	EIP712            apitypes.TypedData `json:"eip712"`
}

// ExpiresAt returns the first instant at which the signature is no longer valid
func (s *DecryptionSignature) ExpiresAt() time.Time {
	return time.Unix(s.StartTimestamp+s.DurationDays*SecondsPerDay, 0)
}

// IsValid reports whether now falls inside the signature's validity window
func (s *DecryptionSignature) IsValid(now time.Time) bool {
	return now.Unix() < s.StartTimestamp+s.DurationDays*SecondsPerDay
}

// Covers reports whether the signature authorizes contract
func (s *DecryptionSignature) Covers(contract common.Address) bool {
	for _, c := range s.ContractAddresses {
		if c == contract {
			return true
		}
	}
	return false
}

// ID identifies the underlying signature independent of which contract key it
// was loaded through.
func (s *DecryptionSignature) ID() ids.ID {
	return ids.ID(sha256.Sum256([]byte(strings.ToLower(s.Signature))))
}

// SignatureBytes decodes the hex wallet signature
func (s *DecryptionSignature) SignatureBytes() ([]byte, error) {
	return hexutil.Decode(s.Signature)
}

// Validate checks the structural invariants of an in-memory signature
func (s *DecryptionSignature) Validate() error {
	switch {
	case s.PublicKey == "":
		return validationErrorf("missing publicKey")
	case s.PrivateKey == "":
		return validationErrorf("missing privateKey")
	case s.Signature == "":
		return validationErrorf("missing signature")
	case s.DurationDays <= 0:
		return validationErrorf("durationDays must be positive, got %d", s.DurationDays)
	case s.DurationDays > MaxDurationDays:
		return validationErrorf("durationDays %d exceeds %d", s.DurationDays, MaxDurationDays)
	case s.StartTimestamp < 0:
		return validationErrorf("negative startTimestamp %d", s.StartTimestamp)
	case s.StartTimestamp > math.MaxInt64-s.DurationDays*SecondsPerDay:
		return validationErrorf("startTimestamp %d overflows the expiry", s.StartTimestamp)
	case s.UserAddress == (common.Address{}):
		return validationErrorf("missing userAddress")
	case len(s.ContractAddresses) == 0:
		return validationErrorf("contractAddresses is empty")
	case s.EIP712.PrimaryType == "" || len(s.EIP712.Types) == 0 || s.EIP712.Message == nil:
		return validationErrorf("eip712 payload is incomplete")
	}
	return nil
}

// ToJSON serializes the signature in its persisted form
func (s *DecryptionSignature) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// FromJSON parses and validates a persisted signature
func FromJSON(raw []byte) (*DecryptionSignature, error) {
	return Validate(raw)
}

// CheckIs reports whether raw is a well formed persisted signature
func CheckIs(raw []byte) bool {
	_, err := Validate(raw)
	return err == nil
}

var (
	stringFields  = []string{"publicKey", "privateKey", "signature", "userAddress"}
	integerFields = []string{"startTimestamp", "durationDays", "chainId"}
	eip712Fields  = []string{"domain", "primaryType", "message", "types"}
)

// Validate checks the shape of a persisted record before trusting any of it.
// Every required field must be present with the expected JSON type and every
// address must be a 0x address. Expiry is not checked here.
func Validate(raw []byte) (*DecryptionSignature, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, validationErrorf("not a JSON object: %v", err)
	}

	for _, name := range stringFields {
		var v string
		if err := decodeField(fields, name, &v); err != nil {
			return nil, err
		}
		if v == "" {
			return nil, validationErrorf("%s is empty", name)
		}
	}
	for _, name := range integerFields {
		var v json.Number
		if err := decodeField(fields, name, &v); err != nil {
			return nil, err
		}
		if _, err := v.Int64(); err != nil {
			return nil, validationErrorf("%s is not an integer: %v", name, err)
		}
	}

	var user string
	_ = json.Unmarshal(fields["userAddress"], &user)
	if !common.IsHexAddress(user) {
		return nil, validationErrorf("userAddress %q is not an address", user)
	}

	var contracts []string
	if err := decodeField(fields, "contractAddresses", &contracts); err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, validationErrorf("contractAddresses is empty")
	}
	for _, c := range contracts {
		if !common.IsHexAddress(c) {
			return nil, validationErrorf("contract %q is not an address", c)
		}
	}

	var eip712 map[string]json.RawMessage
	if err := decodeField(fields, "eip712", &eip712); err != nil {
		return nil, err
	}
	for _, name := range eip712Fields {
		if v, ok := eip712[name]; !ok || len(v) == 0 || string(v) == "null" {
			return nil, validationErrorf("eip712.%s is missing", name)
		}
	}

	var sig DecryptionSignature
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, validationErrorf("decoding: %v", err)
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return &sig, nil
}

func decodeField(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return validationErrorf("missing %s", name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return validationErrorf("%s has the wrong type: %v", name, err)
	}
	return nil
}
