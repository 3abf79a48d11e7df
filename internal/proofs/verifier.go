// verifier.go - Verifier capabilities backed by Groth16 keys.
//
// These adapters are what the engines hold in production. They satisfy the
// capability interfaces declared by their consumers (darkpool.Verifier and
// auction.BidVerifier) structurally, so neither package imports gnark.

package proofs

import (
	"math/big"

	"github.com/consensys/gnark/backend/groth16"
)

// OrderVerifier checks a dark-pool proof pair: order validity against the
// book's public bounds and KYC membership against the registry root.
type OrderVerifier struct {
	OrderVK      groth16.VerifyingKey
	ComplianceVK groth16.VerifyingKey
	Bounds       OrderBounds
	RegistryRoot *big.Int
}

// VerifyOrder checks both proofs; a commitment requires the pair to hold.
func (v *OrderVerifier) VerifyOrder(orderProof, complianceProof []byte) error {
	if err := VerifyOrderProof(v.OrderVK, v.Bounds, orderProof); err != nil {
		return err
	}
	return VerifyComplianceProof(v.ComplianceVK, v.RegistryRoot, complianceProof)
}

// BidVerifier checks sealed-bid validity proofs for liquidation auctions.
type BidVerifier struct {
	BidVK groth16.VerifyingKey
}

// VerifyBid checks a bid proof against the auction's public minimum bid.
func (v *BidVerifier) VerifyBid(minimumBid uint64, proof []byte) error {
	return VerifyBidProof(v.BidVK, minimumBid, proof)
}
