// orderbook.go - Dark-pool order book aggregate.
//
// Exactly one OrderBook exists per deployment. It is never a package global;
// the handle is passed explicitly through every operation. Batches are
// defined implicitly by submission order: a submission that finds no open
// batch opens one and advances the counter, settlement never touches the
// counter itself.

package darkpool

import (
	"fmt"
	"sync"

	"obsidian/internal/ledger"
	"obsidian/internal/proofs"
)

// EncryptedOrder is one dark-pool commitment. Immutable after creation except
// for the settled flag, which the settlement engine flips exactly once. The
// batch id is fixed at commitment time and never reassigned.
type EncryptedOrder struct {
	Owner      ledger.Address `json:"owner"`
	OrderID    uint64         `json:"order_id"`
	Ciphertext []byte         `json:"ciphertext"`
	Collateral uint64         `json:"collateral"`
	Timestamp  int64          `json:"timestamp"`
	Settled    bool           `json:"settled"`
	BatchID    uint64         `json:"batch_id"`
}

// Batch is one settlement epoch: the orders cleared together at a single
// reference price. Once cleared it is immutable.
type Batch struct {
	ID            uint64            `json:"id"`
	Orders        []*EncryptedOrder `json:"orders"`
	ClearingPrice uint64            `json:"clearing_price"`
	Cleared       bool              `json:"cleared"`
}

// OrderBook is the aggregate root of the dark pool. NextBatchID and
// TotalOrders only ever increase.
type OrderBook struct {
	mu          sync.Mutex
	Authority   ledger.Address
	Bounds      proofs.OrderBounds
	NextBatchID uint64
	TotalOrders uint64
	batches     map[uint64]*Batch
	orders      map[proofKey]*EncryptedOrder
}

// InitializeOrderBook creates the singleton order book for a deployment,
// owned by the given authority, with the public trading bounds order proofs
// are verified against.
func InitializeOrderBook(authority ledger.Address, bounds proofs.OrderBounds) *OrderBook {
	return &OrderBook{
		Authority: authority,
		Bounds:    bounds,
		batches:   make(map[uint64]*Batch),
		orders:    make(map[proofKey]*EncryptedOrder),
	}
}

// Order returns the commitment for (owner, orderID), or ErrNotFound.
func (b *OrderBook) Order(owner ledger.Address, orderID uint64) (*EncryptedOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[proofKey{owner, orderID}]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	return o, nil
}

// Batch returns a batch by id, or ErrNotFound.
func (b *OrderBook) Batch(id uint64) (*Batch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch, ok := b.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: batch %d", ErrNotFound, id)
	}
	return batch, nil
}

// Stats is a point-in-time snapshot of the book's public counters.
type Stats struct {
	TotalOrders uint64 `json:"total_orders"`
	NextBatchID uint64 `json:"next_batch_id"`
}

// Stats returns a consistent snapshot of the counters. Readers must not
// touch the fields directly while submissions are running.
func (b *OrderBook) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{TotalOrders: b.TotalOrders, NextBatchID: b.NextBatchID}
}

// hasOrder reports whether (owner, orderID) already committed an order.
func (b *OrderBook) hasOrder(owner ledger.Address, orderID uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.orders[proofKey{owner, orderID}]
	return ok
}

// ensureOpenBatch returns the currently open batch, opening a new one (and
// advancing the counter) if none exists or the newest batch is cleared.
// Caller must hold b.mu.
func (b *OrderBook) ensureOpenBatch() *Batch {
	if b.NextBatchID > 0 {
		newest := b.batches[b.NextBatchID-1]
		if newest != nil && !newest.Cleared {
			return newest
		}
	}
	batch := &Batch{ID: b.NextBatchID}
	b.batches[batch.ID] = batch
	b.NextBatchID++
	return batch
}
