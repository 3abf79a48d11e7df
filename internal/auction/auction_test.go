// auction_test.go - Tests for the sealed-bid liquidation auction engine.

package auction

import (
	"errors"
	"testing"
	"time"

	"obsidian/internal/ledger"
	"obsidian/internal/lending"
)

const (
	authority      = ledger.Address("authority")
	auctionCustody = ledger.Address("auction-custody")
	vaultCustody   = ledger.Address("vault-custody")
)

// okVerifier accepts every bid proof.
type okVerifier struct{}

func (okVerifier) VerifyBid(minimumBid uint64, proof []byte) error { return nil }

// rejectVerifier rejects every bid proof.
type rejectVerifier struct{}

func (rejectVerifier) VerifyBid(minimumBid uint64, proof []byte) error {
	return errors.New("pairing check failed")
}

// mapOpener resolves sealed bids from a fixed table; unknown bidders fail to
// open, standing in for ciphertexts the keyring cannot decrypt.
type mapOpener map[ledger.Address]uint64

func (m mapOpener) OpenBid(bidder ledger.Address, ciphertext []byte) (uint64, error) {
	amount, ok := m[bidder]
	if !ok {
		return 0, errors.New("unknown bidder key")
	}
	return amount, nil
}

func newEngine(t *testing.T, opener BidOpener) (*Engine, *ledger.FixedClock) {
	t.Helper()
	l := ledger.NewLedger()
	clock := &ledger.FixedClock{T: time.Unix(1_700_000_000, 0)}
	err := l.Transact(func(txn *ledger.Txn) error {
		txn.Credit(vaultCustody, 1000)
		return nil
	})
	if err != nil {
		t.Fatalf("fund vault custody: %v", err)
	}
	return NewEngine(l, clock, okVerifier{}, opener, authority, auctionCustody), clock
}

func testLoan(collateral uint64) *lending.Loan {
	return &lending.Loan{Owner: "alice", CollateralAmount: collateral}
}

func start(t *testing.T, e *Engine, id uint64, collateral, minimumBid uint64) *Auction {
	t.Helper()
	a, err := e.StartAuction(authority, id, testLoan(collateral), vaultCustody, minimumBid, 300*time.Second)
	if err != nil {
		t.Fatalf("start auction: %v", err)
	}
	return a
}

func TestStartAuction(t *testing.T) {
	t.Run("EscrowsCollateral", func(t *testing.T) {
		e, _ := newEngine(t, mapOpener{})
		a := start(t, e, 1, 80, 10)
		if e.Ledger.Balance(auctionCustody) != 80 || e.Ledger.Balance(vaultCustody) != 920 {
			t.Errorf("escrow balances: auction=%d vault=%d",
				e.Ledger.Balance(auctionCustody), e.Ledger.Balance(vaultCustody))
		}
		if a.PositionOwner != "alice" || a.MinimumBid != 10 {
			t.Errorf("auction fields: owner=%s min=%d", a.PositionOwner, a.MinimumBid)
		}
	})

	t.Run("RejectsNonAuthority", func(t *testing.T) {
		e, _ := newEngine(t, mapOpener{})
		_, err := e.StartAuction("mallory", 1, testLoan(80), vaultCustody, 10, time.Minute)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("RejectsLiquidatedPosition", func(t *testing.T) {
		e, _ := newEngine(t, mapOpener{})
		loan := testLoan(80)
		loan.Liquidated = true
		_, err := e.StartAuction(authority, 1, loan, vaultCustody, 10, time.Minute)
		if !errors.Is(err, lending.ErrPositionLiquidated) {
			t.Errorf("expected ErrPositionLiquidated, got %v", err)
		}
	})

	t.Run("RejectsDuplicateID", func(t *testing.T) {
		e, _ := newEngine(t, mapOpener{})
		start(t, e, 1, 80, 10)
		_, err := e.StartAuction(authority, 1, testLoan(80), vaultCustody, 10, time.Minute)
		if !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestSubmitBid(t *testing.T) {
	ciphertext := []byte("sealed")
	proof := []byte("proof")

	t.Run("AcceptsBeforeDeadline", func(t *testing.T) {
		e, _ := newEngine(t, mapOpener{})
		start(t, e, 1, 80, 10)
		bid, err := e.SubmitBid("bob", 1, ciphertext, proof)
		if err != nil {
			t.Fatalf("submit bid: %v", err)
		}
		if bid.Bidder != "bob" || bid.AuctionID != 1 {
			t.Errorf("bid fields: bidder=%s auction=%d", bid.Bidder, bid.AuctionID)
		}
	})

	t.Run("RejectsAtDeadline", func(t *testing.T) {
		e, clock := newEngine(t, mapOpener{})
		start(t, e, 1, 80, 10)
		clock.Advance(300 * time.Second)
		if _, err := e.SubmitBid("bob", 1, ciphertext, proof); !errors.Is(err, ErrAuctionClosed) {
			t.Errorf("expected ErrAuctionClosed, got %v", err)
		}
	})

	t.Run("RejectsEmptyBid", func(t *testing.T) {
		e, _ := newEngine(t, mapOpener{})
		start(t, e, 1, 80, 10)
		if _, err := e.SubmitBid("bob", 1, nil, proof); !errors.Is(err, ErrInvalidBid) {
			t.Errorf("empty ciphertext: expected ErrInvalidBid, got %v", err)
		}
		if _, err := e.SubmitBid("bob", 1, ciphertext, nil); !errors.Is(err, ErrInvalidBid) {
			t.Errorf("empty proof: expected ErrInvalidBid, got %v", err)
		}
	})

	t.Run("RejectsUnknownAuction", func(t *testing.T) {
		e, _ := newEngine(t, mapOpener{})
		if _, err := e.SubmitBid("bob", 9, ciphertext, proof); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RejectsFailedProof", func(t *testing.T) {
		e, _ := newEngine(t, mapOpener{})
		e.Verifier = rejectVerifier{}
		start(t, e, 1, 80, 10)
		if _, err := e.SubmitBid("bob", 1, ciphertext, proof); !errors.Is(err, ErrProofInvalid) {
			t.Errorf("expected ErrProofInvalid, got %v", err)
		}
	})

	t.Run("ResubmissionSupersedes", func(t *testing.T) {
		e, clock := newEngine(t, mapOpener{})
		a := start(t, e, 1, 80, 10)
		first, err := e.SubmitBid("bob", 1, []byte("first"), proof)
		if err != nil {
			t.Fatalf("first bid: %v", err)
		}
		clock.Advance(10 * time.Second)
		second, err := e.SubmitBid("bob", 1, []byte("second"), proof)
		if err != nil {
			t.Fatalf("second bid: %v", err)
		}
		if len(a.bids) != 1 {
			t.Errorf("bidder holds %d live bids, want 1", len(a.bids))
		}
		if a.bids["bob"] != second || second.Timestamp <= first.Timestamp {
			t.Errorf("second bid did not supersede the first")
		}
	})
}

func TestSettleAuction(t *testing.T) {
	proof := []byte("proof")

	t.Run("HighestBidWins", func(t *testing.T) {
		opener := mapOpener{"bob": 30, "carol": 45}
		e, clock := newEngine(t, opener)
		start(t, e, 1, 80, 10)
		if _, err := e.SubmitBid("bob", 1, []byte("b"), proof); err != nil {
			t.Fatalf("bob bid: %v", err)
		}
		if _, err := e.SubmitBid("carol", 1, []byte("c"), proof); err != nil {
			t.Fatalf("carol bid: %v", err)
		}
		clock.Advance(300 * time.Second)

		a, err := e.SettleAuction(authority, 1)
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if a.WinningBidder != "carol" || a.WinningBid != 45 {
			t.Errorf("winner = %s at %d, want carol at 45", a.WinningBidder, a.WinningBid)
		}
		if e.Ledger.Balance("carol") != 80 {
			t.Errorf("collateral not paid to winner: carol=%d", e.Ledger.Balance("carol"))
		}
	})

	t.Run("TieBrokenByEarliestBid", func(t *testing.T) {
		opener := mapOpener{"bob": 45, "carol": 45}
		e, clock := newEngine(t, opener)
		start(t, e, 1, 80, 10)
		if _, err := e.SubmitBid("carol", 1, []byte("c"), proof); err != nil {
			t.Fatalf("carol bid: %v", err)
		}
		clock.Advance(10 * time.Second)
		if _, err := e.SubmitBid("bob", 1, []byte("b"), proof); err != nil {
			t.Fatalf("bob bid: %v", err)
		}
		clock.Advance(290 * time.Second)

		a, err := e.SettleAuction(authority, 1)
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if a.WinningBidder != "carol" {
			t.Errorf("winner = %s, want carol (earlier bid at equal amount)", a.WinningBidder)
		}
	})

	t.Run("NoBidsRevertsCollateral", func(t *testing.T) {
		e, clock := newEngine(t, mapOpener{})
		start(t, e, 1, 80, 1)
		clock.Advance(300 * time.Second)

		a, err := e.SettleAuction(authority, 1)
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if a.WinningBidder != "" || a.WinningBid != 0 {
			t.Errorf("empty auction recorded a winner: %s at %d", a.WinningBidder, a.WinningBid)
		}
		if e.Ledger.Balance("alice") != 80 {
			t.Errorf("collateral not reverted to position owner: alice=%d", e.Ledger.Balance("alice"))
		}
		if e.Ledger.Balance(auctionCustody) != 0 {
			t.Errorf("custody retained %d after settlement", e.Ledger.Balance(auctionCustody))
		}
	})

	t.Run("SkipsBidsBelowMinimumOrUnopenable", func(t *testing.T) {
		// dave's ciphertext cannot be opened; bob opens below the minimum.
		opener := mapOpener{"bob": 5}
		e, clock := newEngine(t, opener)
		start(t, e, 1, 80, 10)
		if _, err := e.SubmitBid("bob", 1, []byte("b"), proof); err != nil {
			t.Fatalf("bob bid: %v", err)
		}
		if _, err := e.SubmitBid("dave", 1, []byte("d"), proof); err != nil {
			t.Fatalf("dave bid: %v", err)
		}
		clock.Advance(300 * time.Second)

		a, err := e.SettleAuction(authority, 1)
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if a.WinningBidder != "" {
			t.Errorf("winner = %s, want none", a.WinningBidder)
		}
	})

	t.Run("RejectsBeforeDeadline", func(t *testing.T) {
		e, _ := newEngine(t, mapOpener{})
		start(t, e, 1, 80, 10)
		if _, err := e.SettleAuction(authority, 1); !errors.Is(err, ErrAuctionNotExpired) {
			t.Errorf("expected ErrAuctionNotExpired, got %v", err)
		}
	})

	t.Run("RejectsDoubleSettle", func(t *testing.T) {
		e, clock := newEngine(t, mapOpener{})
		start(t, e, 1, 80, 10)
		clock.Advance(300 * time.Second)
		if _, err := e.SettleAuction(authority, 1); err != nil {
			t.Fatalf("first settle: %v", err)
		}
		if _, err := e.SettleAuction(authority, 1); !errors.Is(err, ErrAuctionAlreadySettled) {
			t.Errorf("expected ErrAuctionAlreadySettled, got %v", err)
		}
	})

	t.Run("RejectsNonAuthority", func(t *testing.T) {
		e, clock := newEngine(t, mapOpener{})
		start(t, e, 1, 80, 10)
		clock.Advance(300 * time.Second)
		if _, err := e.SettleAuction("mallory", 1); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})
}
