// pool.go - Private-lending vault.
//
// Deposits lock collateral in vault custody and retain the depositor's
// collateral proof masked at rest; borrows and liquidations are gated on
// caller-supplied proof material and pay out of custody. Loan amounts are
// visible on the ledger; what stays private is the proof content binding the
// position to the depositor's off-ledger claims. A liquidated position is
// handed to the auction engine as a liquidation lot.

package lending

import (
	"errors"
	"fmt"
	"sync"

	"obsidian/internal/ledger"
	"obsidian/internal/sealed"
)

var (
	// ErrInvalidAmount is returned for zero-amount deposits or borrows.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidProof is returned when required proof material is empty.
	ErrInvalidProof = errors.New("proof material missing")

	// ErrPositionLiquidated is returned when operating on a loan that has
	// already been liquidated.
	ErrPositionLiquidated = errors.New("position already liquidated")

	// ErrNoLoan is returned when the caller has no loan record.
	ErrNoLoan = errors.New("no loan for account")
)

// Loan is one account's position against the vault. Proof fields are stored
// masked; the vault never holds raw proof bytes at rest.
type Loan struct {
	Owner               ledger.Address `json:"owner"`
	CollateralAmount    uint64         `json:"collateral_amount"`
	CollateralEncrypted []byte         `json:"collateral_encrypted"`
	Borrowed            uint64         `json:"borrowed"`
	LTVProof            []byte         `json:"ltv_proof"`
	LiquidationProof    []byte         `json:"liquidation_proof"`
	Liquidated          bool           `json:"liquidated"`
	DepositTimestamp    int64          `json:"deposit_timestamp"`
}

// Vault is the lending pool aggregate. One per deployment; the handle is
// passed explicitly, never held in a global.
type Vault struct {
	mu            sync.Mutex
	Authority     ledger.Address
	Custody       ledger.Address
	Ledger        *ledger.Ledger
	Clock         ledger.Clock
	TotalDeposits uint64
	TotalBorrowed uint64
	loans         map[ledger.Address]*Loan
}

// InitializePool creates the vault singleton with its custody account.
func InitializePool(authority, custody ledger.Address, l *ledger.Ledger, clock ledger.Clock) *Vault {
	return &Vault{
		Authority: authority,
		Custody:   custody,
		Ledger:    l,
		Clock:     clock,
		loans:     make(map[ledger.Address]*Loan),
	}
}

// Loan returns the caller's loan record, or ErrNoLoan.
func (v *Vault) Loan(owner ledger.Address) (*Loan, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	loan, ok := v.loans[owner]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLoan, owner)
	}
	return loan, nil
}

// Deposit locks amount of the caller's funds as collateral and opens a fresh
// loan record holding the masked collateral proof. A new deposit replaces any
// prior record for the caller.
func (v *Vault) Deposit(caller ledger.Address, amount uint64, proofData []byte) (*Loan, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: deposit of 0", ErrInvalidAmount)
	}
	if len(proofData) == 0 {
		return nil, fmt.Errorf("%w: collateral proof", ErrInvalidProof)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	var loan *Loan
	err := v.Ledger.Transact(func(txn *ledger.Txn) error {
		if err := txn.Transfer(caller, v.Custody, amount); err != nil {
			return err
		}
		loan = &Loan{
			Owner:               caller,
			CollateralAmount:    amount,
			CollateralEncrypted: sealed.MaskBytes([]byte(caller), proofData),
			DepositTimestamp:    v.Clock.Now().Unix(),
		}
		v.loans[caller] = loan
		v.TotalDeposits += amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Borrow pays amount out of custody against the caller's collateral. The
// loan-to-value claim is established by the supplied proof, stored masked on
// the loan record.
func (v *Vault) Borrow(caller ledger.Address, amount uint64, ltvProof []byte) error {
	if amount == 0 {
		return fmt.Errorf("%w: borrow of 0", ErrInvalidAmount)
	}
	if len(ltvProof) == 0 {
		return fmt.Errorf("%w: ltv proof", ErrInvalidProof)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	loan, ok := v.loans[caller]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoLoan, caller)
	}
	if loan.Liquidated {
		return fmt.Errorf("%w: %s", ErrPositionLiquidated, caller)
	}

	return v.Ledger.Transact(func(txn *ledger.Txn) error {
		if err := txn.Transfer(v.Custody, caller, amount); err != nil {
			return err
		}
		loan.Borrowed += amount
		loan.LTVProof = sealed.MaskBytes([]byte(caller), ltvProof)
		v.TotalBorrowed += amount
		return nil
	})
}

// Liquidate marks the owner's position liquidated on the strength of the
// liquidator's proof and pays the collateral out of custody to the
// liquidator. A position can be liquidated at most once.
func (v *Vault) Liquidate(liquidator, owner ledger.Address, liquidationProof []byte) error {
	if len(liquidationProof) == 0 {
		return fmt.Errorf("%w: liquidation proof", ErrInvalidProof)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	loan, ok := v.loans[owner]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoLoan, owner)
	}
	if loan.Liquidated {
		return fmt.Errorf("%w: %s", ErrPositionLiquidated, owner)
	}

	return v.Ledger.Transact(func(txn *ledger.Txn) error {
		if err := txn.Transfer(v.Custody, liquidator, loan.CollateralAmount); err != nil {
			return err
		}
		loan.LiquidationProof = sealed.MaskBytes([]byte(liquidator), liquidationProof)
		loan.Liquidated = true
		return nil
	})
}
