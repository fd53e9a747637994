// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cover

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/decrypt"
	"github.com/luxfi/decrypt/decrypttest"
)

var (
	user = decrypttest.Address(0xee)
	a    = decrypttest.Address(0xa)
	b    = decrypttest.Address(0xb)
	c    = decrypttest.Address(0xc)
	d    = decrypttest.Address(0xd)
	e    = decrypttest.Address(0xe)
)

func TestPartial(t *testing.T) {
	sigAB := decrypttest.NewSignature(t, user, 1, 1000, 1, a, b)
	sigCD := decrypttest.NewSignature(t, user, 1, 1000, 1, c, d)
	sigC := decrypttest.NewSignature(t, user, 1, 1000, 1, c)
	sigBC := decrypttest.NewSignature(t, user, 1, 1000, 1, b, c)
	sigABC := decrypttest.NewSignature(t, user, 1, 1000, 1, a, b, c)

	tests := []struct {
		name                string
		candidates          []*decrypt.DecryptionSignature
		targets             []common.Address
		expectedSignatures  []*decrypt.DecryptionSignature
		expectedAssignments [][]common.Address
		expectedResidue     []common.Address
	}{
		{
			name:                "two signatures cover three targets",
			candidates:          []*decrypt.DecryptionSignature{sigAB, sigCD},
			targets:             []common.Address{a, b, c},
			expectedSignatures:  []*decrypt.DecryptionSignature{sigAB, sigCD},
			expectedAssignments: [][]common.Address{{a, b}, {c}},
		},
		{
			name:                "uncoverable target left as residue",
			candidates:          []*decrypt.DecryptionSignature{sigAB, sigCD},
			targets:             []common.Address{a, b, c, e},
			expectedSignatures:  []*decrypt.DecryptionSignature{sigAB, sigCD},
			expectedAssignments: [][]common.Address{{a, b}, {c}},
			expectedResidue:     []common.Address{e},
		},
		{
			name:                "largest coverage picked first",
			candidates:          []*decrypt.DecryptionSignature{sigC, sigBC, sigABC},
			targets:             []common.Address{a, b, c},
			expectedSignatures:  []*decrypt.DecryptionSignature{sigABC},
			expectedAssignments: [][]common.Address{{a, b, c}},
		},
		{
			name:                "tie goes to earliest candidate",
			candidates:          []*decrypt.DecryptionSignature{sigCD, sigC},
			targets:             []common.Address{c},
			expectedSignatures:  []*decrypt.DecryptionSignature{sigCD},
			expectedAssignments: [][]common.Address{{c}},
		},
		{
			name:                "duplicate targets collapsed",
			candidates:          []*decrypt.DecryptionSignature{sigAB},
			targets:             []common.Address{a, a, b},
			expectedSignatures:  []*decrypt.DecryptionSignature{sigAB},
			expectedAssignments: [][]common.Address{{a, b}},
		},
		{
			name:            "no candidates",
			targets:         []common.Address{a, b},
			expectedResidue: []common.Address{a, b},
		},
		{
			name:       "no targets",
			candidates: []*decrypt.DecryptionSignature{sigAB},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			cov, residue := Partial(tt.candidates, tt.targets)
			require.NotNil(cov)
			require.Equal(tt.expectedResidue, residue)
			require.Len(cov.Assignments, len(tt.expectedSignatures))
			for i, assignment := range cov.Assignments {
				require.Same(tt.expectedSignatures[i], assignment.Signature)
				require.Equal(tt.expectedAssignments[i], assignment.Contracts)
			}

			// every covered target appears in exactly one assignment
			seen := make(map[common.Address]int)
			for _, assignment := range cov.Assignments {
				for _, contract := range assignment.Contracts {
					seen[contract]++
					require.Same(assignment.Signature, cov.ByContract[contract])
					require.True(assignment.Signature.Covers(contract))
				}
			}
			for contract, n := range seen {
				require.Equal(1, n, "contract %s", contract)
			}
			require.Len(cov.ByContract, len(seen))
		})
	}
}

func TestSolve(t *testing.T) {
	require := require.New(t)

	sigAB := decrypttest.NewSignature(t, user, 1, 1000, 1, a, b)
	sigCD := decrypttest.NewSignature(t, user, 1, 1000, 1, c, d)
	candidates := []*decrypt.DecryptionSignature{sigAB, sigCD}

	cov := Solve(candidates, []common.Address{a, b, c})
	require.NotNil(cov)
	require.Equal(2, cov.Len())

	require.Nil(Solve(candidates, []common.Address{a, b, c, e}))
	require.Zero((*Cover)(nil).Len())

	empty := Solve(candidates, nil)
	require.NotNil(empty)
	require.Zero(empty.Len())
}
