// proofledger.go - Chunked proof storage for the dark pool.
//
// A zero-knowledge proof is too large for one ledger transaction, so clients
// upload it in chunks into a ProofAccount created ahead of the commitment.
// Each account holds two independent append-only buffers: the order proof and
// the compliance proof. The ledger does not reorder, deduplicate, or checksum
// chunks; a missing or duplicate chunk corrupts the proof and surfaces at
// verification time, not here. Storage is cheap, verification is expensive.

package darkpool

import (
	"fmt"
	"sync"

	"obsidian/internal/ledger"
)

const (
	// MaxChunkSize is the per-chunk upload limit in bytes.
	MaxChunkSize = 800

	// MaxProofLen is the capacity of each proof buffer, fixed by the
	// on-ledger account size.
	MaxProofLen = 2048

	// MaxCiphertextLen bounds the encrypted order payload.
	MaxCiphertextLen = 512
)

// ProofAccount is chunked storage for one proof bound to one commitment
// attempt. Sealing is implicit: the account closes when a successful
// commitment references it, not by an explicit transition.
type ProofAccount struct {
	Owner           ledger.Address `json:"owner"`
	OrderID         uint64         `json:"order_id"`
	OrderProof      []byte         `json:"order_proof"`
	ComplianceProof []byte         `json:"compliance_proof"`
	Closed          bool           `json:"closed"`
}

type proofKey struct {
	owner   ledger.Address
	orderID uint64
}

// ProofLedger owns all proof accounts, keyed by (owner, order id).
type ProofLedger struct {
	mu       sync.Mutex
	accounts map[proofKey]*ProofAccount
}

// NewProofLedger creates an empty proof ledger.
func NewProofLedger() *ProofLedger {
	return &ProofLedger{accounts: make(map[proofKey]*ProofAccount)}
}

// Create creates a proof account for (owner, orderID).
// Fails with ErrAlreadyExists if one exists.
func (pl *ProofLedger) Create(owner ledger.Address, orderID uint64) (*ProofAccount, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	key := proofKey{owner, orderID}
	if _, ok := pl.accounts[key]; ok {
		return nil, fmt.Errorf("%w: order %d", ErrAlreadyExists, orderID)
	}
	acct := &ProofAccount{Owner: owner, OrderID: orderID}
	pl.accounts[key] = acct
	return acct, nil
}

// Get returns the proof account for (owner, orderID), or ErrNotFound.
func (pl *ProofLedger) Get(owner ledger.Address, orderID uint64) (*ProofAccount, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	acct, ok := pl.accounts[proofKey{owner, orderID}]
	if !ok {
		return nil, fmt.Errorf("%w: proof account for order %d", ErrNotFound, orderID)
	}
	return acct, nil
}

// AppendChunk appends a chunk to the selected buffer of the proof account
// addressed by (owner, orderID). The caller must be the account owner.
// Chunks must arrive in client order; the ledger stores them as-is.
func (pl *ProofLedger) AppendChunk(caller, owner ledger.Address, orderID uint64, chunk []byte, isOrderProof bool) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	acct, ok := pl.accounts[proofKey{owner, orderID}]
	if !ok {
		return fmt.Errorf("%w: proof account for order %d", ErrNotFound, orderID)
	}
	if caller != acct.Owner {
		return fmt.Errorf("%w: proof account for order %d", ErrUnauthorized, orderID)
	}
	if acct.Closed {
		return fmt.Errorf("%w: order %d", ErrProofClosed, orderID)
	}
	if len(chunk) > MaxChunkSize {
		return fmt.Errorf("%w: chunk of %d bytes exceeds %d", ErrBufferOverflow, len(chunk), MaxChunkSize)
	}
	if isOrderProof {
		if len(acct.OrderProof)+len(chunk) > MaxProofLen {
			return fmt.Errorf("%w: order proof would exceed %d bytes", ErrBufferOverflow, MaxProofLen)
		}
		acct.OrderProof = append(acct.OrderProof, chunk...)
	} else {
		if len(acct.ComplianceProof)+len(chunk) > MaxProofLen {
			return fmt.Errorf("%w: compliance proof would exceed %d bytes", ErrBufferOverflow, MaxProofLen)
		}
		acct.ComplianceProof = append(acct.ComplianceProof, chunk...)
	}
	return nil
}

// seal closes the account once a commitment references it. Further appends
// fail with ErrProofClosed.
func (pl *ProofLedger) seal(owner ledger.Address, orderID uint64) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if acct, ok := pl.accounts[proofKey{owner, orderID}]; ok {
		acct.Closed = true
	}
}
