// commit.go - Commitment engine: proof-gated, atomic order commitment.
//
// SubmitOrder turns a (proof, ciphertext, collateral) triple into an
// irrevocable commitment. The collateral transfer into custody, the order
// record creation, the counter increment, and the proof account seal happen
// as one ledger transaction: either all of them apply or none do. The engine
// never inspects the ciphertext or the proof bytes; validity against the
// declared public bounds is the verifier capability's job, invoked as a gate
// before the atomic step. There is no cancel operation: a committed order is resolved
// only by batch settlement.

package darkpool

import (
	"fmt"

	"obsidian/internal/ledger"
)

// Verifier is the external proof oracle's verification predicate. It reports
// whether the stored order and compliance proofs hold for the book's declared
// public bounds.
type Verifier interface {
	VerifyOrder(orderProof, complianceProof []byte) error
}

// CommitmentEngine binds proof accounts, the order book, and the ledger into
// the submit-order operation.
type CommitmentEngine struct {
	Ledger   *ledger.Ledger
	Proofs   *ProofLedger
	Book     *OrderBook
	Verifier Verifier
	Clock    ledger.Clock
	Custody  ledger.Address

	// beforeCommit, when set, runs after the collateral transfer is staged
	// and before any record is created. Tests use it to inject faults and
	// observe the rollback.
	beforeCommit func() error
}

// SubmitOrder commits an encrypted order with locked collateral into the
// currently open batch.
func (e *CommitmentEngine) SubmitOrder(caller ledger.Address, orderID uint64, ciphertext []byte, collateral uint64) (*EncryptedOrder, error) {
	if len(ciphertext) == 0 || len(ciphertext) > MaxCiphertextLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidCiphertext, len(ciphertext))
	}
	if e.Book.hasOrder(caller, orderID) {
		return nil, fmt.Errorf("%w: order %d", ErrDuplicateOrder, orderID)
	}

	acct, err := e.Proofs.Get(caller, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: order %d has no proof account", ErrProofMissing, orderID)
	}
	if len(acct.OrderProof) == 0 || len(acct.ComplianceProof) == 0 {
		return nil, fmt.Errorf("%w: order %d proof buffers incomplete", ErrProofMissing, orderID)
	}
	if err := e.Verifier.VerifyOrder(acct.OrderProof, acct.ComplianceProof); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}

	var order *EncryptedOrder
	err = e.Ledger.Transact(func(txn *ledger.Txn) error {
		if err := txn.Transfer(caller, e.Custody, collateral); err != nil {
			return err
		}
		if e.beforeCommit != nil {
			if err := e.beforeCommit(); err != nil {
				return err
			}
		}
		e.Book.mu.Lock()
		defer e.Book.mu.Unlock()
		// Re-check under the book lock: a concurrent submission for the same
		// (owner, order id) may have committed since the fast-path check.
		if _, ok := e.Book.orders[proofKey{caller, orderID}]; ok {
			return fmt.Errorf("%w: order %d", ErrDuplicateOrder, orderID)
		}
		// Past this point nothing can fail: record creation, counter
		// increment, and the proof account seal commit together with the
		// staged transfer.
		batch := e.Book.ensureOpenBatch()
		order = &EncryptedOrder{
			Owner:      caller,
			OrderID:    orderID,
			Ciphertext: append([]byte(nil), ciphertext...),
			Collateral: collateral,
			Timestamp:  e.Clock.Now().Unix(),
			BatchID:    batch.ID,
		}
		e.Book.orders[proofKey{caller, orderID}] = order
		batch.Orders = append(batch.Orders, order)
		e.Book.TotalOrders++
		// The commitment now references the proof account; seal it before
		// anything becomes visible, so no append can land on a bound proof.
		e.Proofs.seal(caller, orderID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
