// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cover picks a small set of signatures whose contract lists together
// authorize every target contract.
package cover

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"

	"github.com/luxfi/decrypt"
)

// Assignment is one signature and the targets it was chosen to authorize
type Assignment struct {
	Signature *decrypt.DecryptionSignature
	Contracts []common.Address
}

// Cover assigns every target to exactly one signature
type Cover struct {
	Assignments []Assignment
	ByContract  map[common.Address]*decrypt.DecryptionSignature
}

// Len returns the number of signatures used
func (c *Cover) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Assignments)
}

// Partial greedily covers targets with candidates: at every step the candidate
// authorizing the most still uncovered targets wins, ties going to the
// earliest candidate. It stops once nothing left can be covered and returns
// the uncovered targets, in target order, as the residue. The result has no
// optimality guarantee beyond the greedy bound.
func Partial(
	candidates []*decrypt.DecryptionSignature,
	targets []common.Address,
) (*Cover, []common.Address) {
	ordered := make([]common.Address, 0, len(targets))
	uncovered := set.NewSet[common.Address](len(targets))
	for _, t := range targets {
		if uncovered.Contains(t) {
			continue
		}
		uncovered.Add(t)
		ordered = append(ordered, t)
	}

	c := &Cover{
		ByContract: make(map[common.Address]*decrypt.DecryptionSignature, len(ordered)),
	}
	used := make([]bool, len(candidates))
	for uncovered.Len() > 0 {
		best, bestCovered := -1, []common.Address(nil)
		for i, candidate := range candidates {
			if used[i] || candidate == nil {
				continue
			}
			covered := coveredBy(candidate, ordered, uncovered)
			if len(covered) > len(bestCovered) {
				best, bestCovered = i, covered
			}
		}
		if best < 0 {
			break
		}

		used[best] = true
		sig := candidates[best]
		for _, contract := range bestCovered {
			uncovered.Remove(contract)
			c.ByContract[contract] = sig
		}
		c.Assignments = append(c.Assignments, Assignment{
			Signature: sig,
			Contracts: bestCovered,
		})
	}

	var residue []common.Address
	for _, t := range ordered {
		if uncovered.Contains(t) {
			residue = append(residue, t)
		}
	}
	return c, residue
}

// Solve returns a cover of every target, or nil when some target is not
// authorized by any candidate
func Solve(
	candidates []*decrypt.DecryptionSignature,
	targets []common.Address,
) *Cover {
	c, residue := Partial(candidates, targets)
	if len(residue) > 0 {
		return nil
	}
	return c
}

// coveredBy returns the uncovered targets sig authorizes, in target order
func coveredBy(
	sig *decrypt.DecryptionSignature,
	ordered []common.Address,
	uncovered set.Set[common.Address],
) []common.Address {
	authorized := set.Of(sig.ContractAddresses...)
	var covered []common.Address
	for _, t := range ordered {
		if uncovered.Contains(t) && authorized.Contains(t) {
			covered = append(covered, t)
		}
	}
	return covered
}
