// oracle.go - Proving and verification entry points for the proof oracle.
//
// The prover side runs on the client and yields an opaque byte string; the
// verifier side is the precondition gate the commitment and auction engines
// call before touching the ledger. The engines only ever see the Verifier
// capability, never gnark types, so tests can substitute a deterministic fake.

package proofs

import (
	"bytes"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// OrderBounds are the public trading bounds a dark-pool order proof is
// verified against. All values are in base units.
type OrderBounds struct {
	MinOrderSize uint64 `json:"min_order_size"`
	MaxOrderSize uint64 `json:"max_order_size"`
	MinPrice     uint64 `json:"min_price"`
	MaxPrice     uint64 `json:"max_price"`
}

// CompileOrderCircuit compiles the dark-pool order circuit.
func CompileOrderCircuit() (constraint.ConstraintSystem, error) {
	var circuit CircuitOrder
	return frontend.Compile(ecc.BW6_761.ScalarField(), r1cs.NewBuilder, &circuit)
}

// CompileComplianceCircuit compiles the KYC membership circuit.
func CompileComplianceCircuit() (constraint.ConstraintSystem, error) {
	var circuit CircuitCompliance
	return frontend.Compile(ecc.BW6_761.ScalarField(), r1cs.NewBuilder, &circuit)
}

// CompileBidCircuit compiles the auction bid circuit.
func CompileBidCircuit() (constraint.ConstraintSystem, error) {
	var circuit CircuitBid
	return frontend.Compile(ecc.BW6_761.ScalarField(), r1cs.NewBuilder, &circuit)
}

// ProveOrder generates an order-validity proof for the given private values
// against the public bounds.
func ProveOrder(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, bounds OrderBounds, amount, price, balance uint64) ([]byte, error) {
	witness := &CircuitOrder{
		MinOrderSize: bounds.MinOrderSize,
		MaxOrderSize: bounds.MaxOrderSize,
		MinPrice:     bounds.MinPrice,
		MaxPrice:     bounds.MaxPrice,
		OrderAmount:  amount,
		OrderPrice:   price,
		UserBalance:  balance,
	}
	return prove(ccs, pk, witness)
}

// ProveCompliance generates a KYC membership proof for a user identity hash.
func ProveCompliance(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, root *big.Int, userIDHash *big.Int, path [ComplianceTreeDepth]*big.Int, indices [ComplianceTreeDepth]uint8) ([]byte, error) {
	witness := &CircuitCompliance{
		KycRegistryRoot: root,
		UserIDHash:      userIDHash,
	}
	for i := 0; i < ComplianceTreeDepth; i++ {
		witness.MerklePath[i] = path[i]
		witness.MerkleIndices[i] = indices[i]
	}
	return prove(ccs, pk, witness)
}

// ProveBid generates a bid-validity proof against an auction's minimum bid.
func ProveBid(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, minimumBid, bidAmount, bidderBalance uint64) ([]byte, error) {
	witness := &CircuitBid{
		MinimumBid:    minimumBid,
		BidAmount:     bidAmount,
		BidderBalance: bidderBalance,
	}
	return prove(ccs, pk, witness)
}

func prove(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, assignment frontend.Circuit) ([]byte, error) {
	w, err := frontend.NewWitness(assignment, ecc.BW6_761.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(ccs, pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}
	return buf.Bytes(), nil
}

func verify(vk groth16.VerifyingKey, publicAssignment frontend.Circuit, proofBytes []byte) error {
	w, err := frontend.NewWitness(publicAssignment, ecc.BW6_761.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}
	proof := groth16.NewProof(ecc.BW6_761)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("proof unmarshaling failed: %w", err)
	}
	if err := groth16.Verify(proof, vk, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}

// VerifyOrderProof checks an order-validity proof against the public bounds.
func VerifyOrderProof(vk groth16.VerifyingKey, bounds OrderBounds, proofBytes []byte) error {
	return verify(vk, &CircuitOrder{
		MinOrderSize: bounds.MinOrderSize,
		MaxOrderSize: bounds.MaxOrderSize,
		MinPrice:     bounds.MinPrice,
		MaxPrice:     bounds.MaxPrice,
	}, proofBytes)
}

// VerifyComplianceProof checks a KYC membership proof against a registry root.
func VerifyComplianceProof(vk groth16.VerifyingKey, root *big.Int, proofBytes []byte) error {
	return verify(vk, &CircuitCompliance{KycRegistryRoot: root}, proofBytes)
}

// VerifyBidProof checks a bid-validity proof against an auction minimum.
func VerifyBidProof(vk groth16.VerifyingKey, minimumBid uint64, proofBytes []byte) error {
	return verify(vk, &CircuitBid{MinimumBid: minimumBid}, proofBytes)
}

// ComputeComplianceRoot folds a leaf up the registry tree off-circuit,
// mirroring CircuitCompliance. Used by registry maintainers and tests.
func ComputeComplianceRoot(userIDHash *big.Int, path [ComplianceTreeDepth]*big.Int, indices [ComplianceTreeDepth]uint8) *big.Int {
	cur := new(big.Int).Set(userIDHash)
	h := mimcNative.NewMiMC()
	for i := 0; i < ComplianceTreeDepth; i++ {
		left, right := cur, path[i]
		if indices[i] == 1 {
			left, right = path[i], cur
		}
		h.Reset()
		h.Write(toFieldBytes(left))
		h.Write(toFieldBytes(right))
		cur = new(big.Int).SetBytes(h.Sum(nil))
	}
	return cur
}

// toFieldBytes pads a value to the BW6-761 scalar field element width so the
// native hash sees the same byte stream as the in-circuit one.
func toFieldBytes(v *big.Int) []byte {
	out := make([]byte, mimcNative.BlockSize)
	v.FillBytes(out)
	return out
}

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey loads a Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BW6_761)
	_, err = pk.ReadFrom(f)
	return pk, err
}

// LoadVerifyingKey loads a Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BW6_761)
	_, err = vk.ReadFrom(f)
	return vk, err
}

// SetupOrLoadKeys generates or loads Groth16 keys for a circuit.
// If keys exist on disk, loads them; otherwise, generates and saves new keys.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, err
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}
