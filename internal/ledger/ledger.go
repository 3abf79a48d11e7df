// ledger.go - Account-based balance ledger for the obsidian protocol.
//
// The Ledger stands in for the external chain: every mutation runs inside a
// journaled transaction that either applies completely or not at all, and all
// transactions are serialized by a single writer lock. Balances are held in
// indivisible base units (1 token = 1e9 base units) and persisted as a single
// JSON file (ledger.json).

package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrInsufficientFunds is returned when a transfer or debit would take an
// account below zero.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Address identifies an account on the ledger. Client addresses are derived
// from public keys (see package sealed); protocol custody accounts use fixed
// well-known addresses.
type Address string

// Ledger holds all account balances. Mutations go through Transact; direct
// map access is package-internal only.
type Ledger struct {
	mu       sync.Mutex
	balances map[Address]uint64
}

// NewLedger creates a new, empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[Address]uint64)}
}

// Balance returns the current balance of an account. Unknown accounts hold
// zero; account records spring into existence on first credit.
func (l *Ledger) Balance(addr Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr]
}

// Txn stages balance mutations against a copy-on-write view of the ledger.
// Nothing a Txn does is visible to other callers until the enclosing
// Transact commits.
type Txn struct {
	ledger *Ledger
	view   map[Address]uint64
}

func (t *Txn) balanceOf(addr Address) uint64 {
	if v, ok := t.view[addr]; ok {
		return v
	}
	return t.ledger.balances[addr]
}

// Balance returns the staged balance of an account as seen by this Txn.
func (t *Txn) Balance(addr Address) uint64 {
	return t.balanceOf(addr)
}

// Transfer moves amount from one account to another within the transaction.
// Fails with ErrInsufficientFunds if the staged source balance is too low.
func (t *Txn) Transfer(from, to Address, amount uint64) error {
	bal := t.balanceOf(from)
	if bal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, bal, amount)
	}
	t.view[from] = bal - amount
	t.view[to] = t.balanceOf(to) + amount
	return nil
}

// Credit mints amount into an account. Used for funding demo and test
// identities; the chain's native faucet fills this role in production.
func (t *Txn) Credit(addr Address, amount uint64) {
	t.view[addr] = t.balanceOf(addr) + amount
}

// Transact runs fn against a staged view of the ledger under the writer lock.
// If fn returns an error the journal is discarded and no balance changes; on
// success all staged mutations apply atomically.
func (l *Ledger) Transact(fn func(*Txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	txn := &Txn{ledger: l, view: make(map[Address]uint64)}
	if err := fn(txn); err != nil {
		return err
	}
	for addr, bal := range txn.view {
		l.balances[addr] = bal
	}
	return nil
}

// ledgerFile is the JSON on-disk shape of the ledger.
type ledgerFile struct {
	Balances map[Address]uint64 `json:"balances"`
}

// SaveToFile saves the ledger to a JSON file (ledger.json).
// Overwrites the file if it exists.
func (l *Ledger) SaveToFile(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(ledgerFile{Balances: l.balances})
}

// LoadLedgerFromFile loads a ledger from a JSON file.
// Returns an error if the file is invalid or cannot be read.
func LoadLedgerFromFile(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lf ledgerFile
	if err := json.NewDecoder(f).Decode(&lf); err != nil {
		return nil, err
	}
	l := NewLedger()
	if lf.Balances != nil {
		l.balances = lf.Balances
	}
	return l, nil
}
