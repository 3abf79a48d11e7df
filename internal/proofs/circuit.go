// circuit.go - Groth16 circuits backing the proof oracle.
//
// Three claim types exist, one per confidential surface:
//   - CircuitOrder:      a dark-pool order lies within the book's public
//     bounds and is covered by the trader's balance
//   - CircuitCompliance: the trader's identity hash is a member of the KYC
//     registry tree
//   - CircuitBid:        an auction bid meets the minimum and is covered by
//     the bidder's balance
//
// Amounts, prices and balances stay private; only the declared public bounds
// appear in the witness. All circuits compile over BW6-761 so the in-circuit
// MiMC matches the native MiMC used elsewhere in the protocol.

package proofs

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// ComplianceTreeDepth is the depth of the KYC registry Merkle tree.
const ComplianceTreeDepth = 8

// CircuitOrder proves a dark-pool order respects the book's public bounds
// without revealing amount, price, or balance.
type CircuitOrder struct {
	// Public inputs
	MinOrderSize frontend.Variable `gnark:",public"`
	MaxOrderSize frontend.Variable `gnark:",public"`
	MinPrice     frontend.Variable `gnark:",public"`
	MaxPrice     frontend.Variable `gnark:",public"`

	// Private inputs
	OrderAmount frontend.Variable
	OrderPrice  frontend.Variable
	UserBalance frontend.Variable
}

func (c *CircuitOrder) Define(api frontend.API) error {
	// Order size within [MinOrderSize, MaxOrderSize]
	api.AssertIsLessOrEqual(c.MinOrderSize, c.OrderAmount)
	api.AssertIsLessOrEqual(c.OrderAmount, c.MaxOrderSize)

	// Price within [MinPrice, MaxPrice]
	api.AssertIsLessOrEqual(c.MinPrice, c.OrderPrice)
	api.AssertIsLessOrEqual(c.OrderPrice, c.MaxPrice)

	// Collateral sufficiency
	api.AssertIsLessOrEqual(c.OrderAmount, c.UserBalance)
	return nil
}

// CircuitCompliance proves membership of a user identity hash in the KYC
// registry tree rooted at the public KycRegistryRoot.
type CircuitCompliance struct {
	// Public inputs
	KycRegistryRoot frontend.Variable `gnark:",public"`

	// Private inputs
	UserIDHash    frontend.Variable
	MerklePath    [ComplianceTreeDepth]frontend.Variable
	MerkleIndices [ComplianceTreeDepth]frontend.Variable
}

func (c *CircuitCompliance) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	cur := c.UserIDHash
	for i := 0; i < ComplianceTreeDepth; i++ {
		api.AssertIsBoolean(c.MerkleIndices[i])
		// index bit 0: cur is the left child; 1: cur is the right child
		left := api.Select(c.MerkleIndices[i], c.MerklePath[i], cur)
		right := api.Select(c.MerkleIndices[i], cur, c.MerklePath[i])
		hasher.Reset()
		hasher.Write(left)
		hasher.Write(right)
		cur = hasher.Sum()
	}
	api.AssertIsEqual(c.KycRegistryRoot, cur)
	return nil
}

// CircuitBid proves a sealed auction bid meets the public minimum and is
// covered by the bidder's balance, without revealing either amount.
type CircuitBid struct {
	// Public inputs
	MinimumBid frontend.Variable `gnark:",public"`

	// Private inputs
	BidAmount     frontend.Variable
	BidderBalance frontend.Variable
}

func (c *CircuitBid) Define(api frontend.API) error {
	api.AssertIsLessOrEqual(c.MinimumBid, c.BidAmount)
	api.AssertIsLessOrEqual(c.BidAmount, c.BidderBalance)
	return nil
}
