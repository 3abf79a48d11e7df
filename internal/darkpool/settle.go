// settle.go - Settlement engine: uniform-price batch clearing.
//
// All orders in a batch trade at the single reference price supplied by the
// authority. No order gains price precedence from intra-batch arrival
// position, which removes the value of front-running pending intent.
// Settlement is externally triggered (there is no internal scheduler) and
// only the most recently opened batch may be settled.

package darkpool

import (
	"fmt"

	"obsidian/internal/ledger"
)

// SettlementEngine clears batches and releases locked collateral. Only the
// protocol authority may invoke it; replacing the single authority with a
// committee changes only the authorization check, not the clearing algorithm.
type SettlementEngine struct {
	Ledger  *ledger.Ledger
	Book    *OrderBook
	Custody ledger.Address
}

// SettleBatch clears batch batchID at the given reference price: every member
// order is marked settled and its locked collateral released from custody.
// Concurrent attempts on the same batch race at the ledger; the loser sees
// ErrAlreadyCleared.
func (e *SettlementEngine) SettleBatch(caller ledger.Address, batchID uint64, referencePrice uint64) error {
	if caller != e.Book.Authority {
		return fmt.Errorf("%w: settlement requires the protocol authority", ErrUnauthorized)
	}

	return e.Ledger.Transact(func(txn *ledger.Txn) error {
		e.Book.mu.Lock()
		defer e.Book.mu.Unlock()

		if e.Book.NextBatchID == 0 {
			return fmt.Errorf("%w: no batch has been opened", ErrNoActiveBatch)
		}
		if batchID != e.Book.NextBatchID-1 {
			return fmt.Errorf("%w: batch %d is not the newest (next is %d)", ErrNoActiveBatch, batchID, e.Book.NextBatchID)
		}
		batch := e.Book.batches[batchID]
		if batch.Cleared {
			return fmt.Errorf("%w: batch %d", ErrAlreadyCleared, batchID)
		}

		for _, order := range batch.Orders {
			if err := txn.Transfer(e.Custody, order.Owner, order.Collateral); err != nil {
				return fmt.Errorf("collateral release for order %d: %w", order.OrderID, err)
			}
		}
		// Balance legs staged; now flip the records.
		for _, order := range batch.Orders {
			order.Settled = true
		}
		batch.ClearingPrice = referencePrice
		batch.Cleared = true
		return nil
	})
}
