// auction.go - Sealed-bid liquidation auctions.
//
// A liquidation lot is auctioned off with sealed bids: bid amounts stay
// encrypted until settlement, and validity (bid at or above the minimum,
// within the bidder's balance) is established by a zero-knowledge proof at
// submission time. Deadlines are evaluated lazily against the injected clock
// at each call; there is no timer goroutine. States: open while the deadline
// has not passed, closed after it, settled once the authority clears the lot.

package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"obsidian/internal/ledger"
	"obsidian/internal/lending"
)

var (
	// ErrUnauthorized is returned when a non-authority caller starts or
	// settles an auction.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAuctionClosed is returned for bids at or after the deadline.
	ErrAuctionClosed = errors.New("auction closed to bids")

	// ErrAuctionAlreadySettled is returned when settling a settled auction.
	ErrAuctionAlreadySettled = errors.New("auction already settled")

	// ErrAuctionNotExpired is returned when settling before the deadline.
	ErrAuctionNotExpired = errors.New("auction deadline not reached")

	// ErrInvalidBid is returned when a bid ciphertext or proof is empty.
	ErrInvalidBid = errors.New("bid ciphertext or proof missing")

	// ErrProofInvalid is returned when the bid proof fails verification.
	ErrProofInvalid = errors.New("bid proof invalid")

	// ErrNotFound is returned for unknown auction ids.
	ErrNotFound = errors.New("auction not found")

	// ErrAlreadyExists is returned when an auction id is reused.
	ErrAlreadyExists = errors.New("auction already exists")
)

// BidVerifier is the proof oracle's verification predicate for sealed bids.
type BidVerifier interface {
	VerifyBid(minimumBid uint64, proof []byte) error
}

// BidOpener decrypts a sealed bid at settlement time. The production
// implementation is the authority's keyring; the key exchange behind it is
// external to the engine.
type BidOpener interface {
	OpenBid(bidder ledger.Address, ciphertext []byte) (uint64, error)
}

// Bid is one sealed bid against an auction. At most one live bid exists per
// bidder; resubmission supersedes, it never appends.
type Bid struct {
	Bidder     ledger.Address `json:"bidder"`
	AuctionID  uint64         `json:"auction_id"`
	Ciphertext []byte         `json:"ciphertext"`
	Proof      []byte         `json:"proof"`
	Timestamp  int64          `json:"timestamp"`

	seq uint64
}

// Auction is one liquidation lot. WinningBidder is empty until settlement and
// stays empty if no valid bid was received.
type Auction struct {
	PositionOwner    ledger.Address `json:"position_owner"`
	ID               uint64         `json:"id"`
	CollateralAmount uint64         `json:"collateral_amount"`
	MinimumBid       uint64         `json:"minimum_bid"`
	StartTime        int64          `json:"start_time"`
	Duration         time.Duration  `json:"duration"`
	Settled          bool           `json:"settled"`
	WinningBidder    ledger.Address `json:"winning_bidder"`
	WinningBid       uint64         `json:"winning_bid"`

	bids map[ledger.Address]*Bid
}

// deadline is the instant at which the auction stops accepting bids.
func (a *Auction) deadline() time.Time {
	return time.Unix(a.StartTime, 0).Add(a.Duration)
}

// Engine runs all liquidation auctions of a deployment.
type Engine struct {
	mu        sync.Mutex
	Ledger    *ledger.Ledger
	Clock     ledger.Clock
	Verifier  BidVerifier
	Opener    BidOpener
	Authority ledger.Address
	Custody   ledger.Address

	auctions map[uint64]*Auction
	nextSeq  uint64
}

// NewEngine creates an auction engine with its escrow custody account.
func NewEngine(l *ledger.Ledger, clock ledger.Clock, verifier BidVerifier, opener BidOpener, authority, custody ledger.Address) *Engine {
	return &Engine{
		Ledger:    l,
		Clock:     clock,
		Verifier:  verifier,
		Opener:    opener,
		Authority: authority,
		Custody:   custody,
		auctions:  make(map[uint64]*Auction),
	}
}

// Auction returns an auction by id, or ErrNotFound.
func (e *Engine) Auction(id uint64) (*Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.auctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return a, nil
}

// StartAuction opens a liquidation auction for a loan position that has not
// already been liquidated directly. The lot's collateral is escrowed from the
// vault custody account into auction custody so an empty auction can revert
// it to the position owner at settlement.
func (e *Engine) StartAuction(caller ledger.Address, auctionID uint64, loan *lending.Loan, escrowFrom ledger.Address, minimumBid uint64, duration time.Duration) (*Auction, error) {
	if caller != e.Authority {
		return nil, fmt.Errorf("%w: starting an auction requires the protocol authority", ErrUnauthorized)
	}
	if loan.Liquidated {
		return nil, fmt.Errorf("%w: %s", lending.ErrPositionLiquidated, loan.Owner)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.auctions[auctionID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyExists, auctionID)
	}

	var a *Auction
	err := e.Ledger.Transact(func(txn *ledger.Txn) error {
		if err := txn.Transfer(escrowFrom, e.Custody, loan.CollateralAmount); err != nil {
			return err
		}
		a = &Auction{
			PositionOwner:    loan.Owner,
			ID:               auctionID,
			CollateralAmount: loan.CollateralAmount,
			MinimumBid:       minimumBid,
			StartTime:        e.Clock.Now().Unix(),
			Duration:         duration,
			bids:             make(map[ledger.Address]*Bid),
		}
		e.auctions[auctionID] = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SubmitBid records a sealed bid. The proof must establish the bid against
// the auction's public minimum before anything is stored. A bidder's second
// submission supersedes the first, with a fresh timestamp for tie-breaking.
func (e *Engine) SubmitBid(bidder ledger.Address, auctionID uint64, ciphertext, proof []byte) (*Bid, error) {
	if len(ciphertext) == 0 || len(proof) == 0 {
		return nil, fmt.Errorf("%w: auction %d", ErrInvalidBid, auctionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, auctionID)
	}
	now := e.Clock.Now()
	if a.Settled || !now.Before(a.deadline()) {
		return nil, fmt.Errorf("%w: auction %d", ErrAuctionClosed, auctionID)
	}
	if err := e.Verifier.VerifyBid(a.MinimumBid, proof); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}

	e.nextSeq++
	bid := &Bid{
		Bidder:     bidder,
		AuctionID:  auctionID,
		Ciphertext: append([]byte(nil), ciphertext...),
		Proof:      append([]byte(nil), proof...),
		Timestamp:  now.Unix(),
		seq:        e.nextSeq,
	}
	a.bids[bidder] = bid
	return bid, nil
}

// SettleAuction opens all sealed bids after the deadline and records the
// highest one as winner; the escrowed collateral goes to the winner. Equal
// highest bids are broken by earliest submission. With no valid bids the
// settlement still succeeds, with no winner and the collateral reverted to
// the position owner. Bids whose ciphertext fails to open are skipped rather
// than failing the settlement.
func (e *Engine) SettleAuction(caller ledger.Address, auctionID uint64) (*Auction, error) {
	if caller != e.Authority {
		return nil, fmt.Errorf("%w: settlement requires the protocol authority", ErrUnauthorized)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, auctionID)
	}
	if a.Settled {
		return nil, fmt.Errorf("%w: auction %d", ErrAuctionAlreadySettled, auctionID)
	}
	if e.Clock.Now().Before(a.deadline()) {
		return nil, fmt.Errorf("%w: auction %d", ErrAuctionNotExpired, auctionID)
	}

	var winner *Bid
	var winnerAmount uint64
	for _, bid := range a.bids {
		amount, err := e.Opener.OpenBid(bid.Bidder, bid.Ciphertext)
		if err != nil {
			continue
		}
		if amount < a.MinimumBid {
			continue
		}
		if winner == nil || amount > winnerAmount ||
			(amount == winnerAmount && (bid.Timestamp < winner.Timestamp ||
				(bid.Timestamp == winner.Timestamp && bid.seq < winner.seq))) {
			winner = bid
			winnerAmount = amount
		}
	}

	err := e.Ledger.Transact(func(txn *ledger.Txn) error {
		recipient := a.PositionOwner
		if winner != nil {
			recipient = winner.Bidder
		}
		if err := txn.Transfer(e.Custody, recipient, a.CollateralAmount); err != nil {
			return err
		}
		if winner != nil {
			a.WinningBidder = winner.Bidder
			a.WinningBid = winnerAmount
		}
		a.Settled = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
