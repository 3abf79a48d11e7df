// protocol_test.go - End-to-end protocol scenarios across all engines.

package main

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"obsidian/internal/auction"
	"obsidian/internal/darkpool"
	"obsidian/internal/ledger"
	"obsidian/internal/lending"
	"obsidian/internal/proofs"
	"obsidian/internal/sealed"
)

// acceptAll stands in for the proof oracle where proof content is not the
// behavior under test.
type acceptAll struct{}

func (acceptAll) VerifyOrder(orderProof, complianceProof []byte) error { return nil }
func (acceptAll) VerifyBid(minimumBid uint64, proof []byte) error      { return nil }

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b, err := sealed.RandomBytes(n)
	if err != nil {
		t.Fatalf("random bytes: %v", err)
	}
	return b
}

func uploadProof(t *testing.T, pl *darkpool.ProofLedger, owner ledger.Address, orderID uint64, proof []byte, isOrderProof bool) {
	t.Helper()
	for off := 0; off < len(proof); off += darkpool.MaxChunkSize {
		end := off + darkpool.MaxChunkSize
		if end > len(proof) {
			end = len(proof)
		}
		if err := pl.AppendChunk(owner, owner, orderID, proof[off:end], isOrderProof); err != nil {
			t.Fatalf("chunk upload: %v", err)
		}
	}
}

// TestDarkPoolRoundTrip runs a sealed order from key exchange through batch
// settlement and verifies the authority can open exactly what was sealed.
func TestDarkPoolRoundTrip(t *testing.T) {
	authorityKP, err := sealed.GenerateKeyPair()
	if err != nil {
		t.Fatalf("authority keypair: %v", err)
	}
	aliceKP, err := sealed.GenerateKeyPair()
	if err != nil {
		t.Fatalf("alice keypair: %v", err)
	}
	authority := sealed.AddressOf(authorityKP.Pk)
	alice := sealed.AddressOf(aliceKP.Pk)

	bal := ledger.NewLedger()
	if err := bal.Transact(func(txn *ledger.Txn) error {
		txn.Credit(alice, 100)
		return nil
	}); err != nil {
		t.Fatalf("funding: %v", err)
	}

	book := darkpool.InitializeOrderBook(authority, proofs.OrderBounds{
		MinOrderSize: 1, MaxOrderSize: 1000, MinPrice: 1, MaxPrice: 1000,
	})
	clock := &ledger.FixedClock{T: time.Unix(1_700_000_000, 0)}
	commit := &darkpool.CommitmentEngine{
		Ledger:   bal,
		Proofs:   darkpool.NewProofLedger(),
		Book:     book,
		Verifier: acceptAll{},
		Clock:    clock,
		Custody:  darkpoolCustody,
	}
	settle := &darkpool.SettlementEngine{Ledger: bal, Book: book, Custody: darkpoolCustody}

	const orderID = 42
	if _, err := commit.Proofs.Create(alice, orderID); err != nil {
		t.Fatalf("proof account: %v", err)
	}
	uploadProof(t, commit.Proofs, alice, orderID, randomBytes(t, 1600), true)
	uploadProof(t, commit.Proofs, alice, orderID, randomBytes(t, 3), false)

	payload := sealed.OrderPayload{Amount: 10, Price: 25, Side: 1}
	ciphertext, err := sealed.SealOrder(sealed.SharedSecret(aliceKP.Sk, authorityKP.Pk), payload)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	order, err := commit.SubmitOrder(alice, orderID, ciphertext, 50)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if bal.Balance(alice) != 50 {
		t.Errorf("alice balance after commit = %d, want 50", bal.Balance(alice))
	}
	if order.Settled {
		t.Errorf("order settled before clearing")
	}
	if book.TotalOrders != 1 {
		t.Errorf("total orders = %d, want 1", book.TotalOrders)
	}

	if err := settle.SettleBatch(authority, order.BatchID, 24); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if bal.Balance(alice) != 100 {
		t.Errorf("collateral not released: alice = %d", bal.Balance(alice))
	}
	if !order.Settled {
		t.Errorf("order not settled after clearing")
	}

	opened, err := sealed.OpenOrder(sealed.SharedSecret(authorityKP.Sk, aliceKP.Pk), order.Ciphertext)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != payload {
		t.Errorf("opened payload = %+v, want %+v", opened, payload)
	}
}

// TestLiquidationFlow runs a lending position into a sealed-bid auction and
// checks the winner selection and collateral flow.
func TestLiquidationFlow(t *testing.T) {
	authorityKP, err := sealed.GenerateKeyPair()
	if err != nil {
		t.Fatalf("authority keypair: %v", err)
	}
	bobKP, err := sealed.GenerateKeyPair()
	if err != nil {
		t.Fatalf("bob keypair: %v", err)
	}
	carolKP, err := sealed.GenerateKeyPair()
	if err != nil {
		t.Fatalf("carol keypair: %v", err)
	}

	authority := sealed.AddressOf(authorityKP.Pk)
	keyring := sealed.NewKeyring(authorityKP)
	bob := keyring.Register(bobKP.Pk)
	carol := keyring.Register(carolKP.Pk)
	alice := ledger.Address("alice")

	bal := ledger.NewLedger()
	if err := bal.Transact(func(txn *ledger.Txn) error {
		txn.Credit(alice, 100)
		return nil
	}); err != nil {
		t.Fatalf("funding: %v", err)
	}

	clock := &ledger.FixedClock{T: time.Unix(1_700_000_000, 0)}
	vault := lending.InitializePool(authority, vaultCustody, bal, clock)
	if _, err := vault.Deposit(alice, 80, []byte("collateral-claim")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	auctions := auction.NewEngine(bal, clock, acceptAll{}, keyring, authority, auctionCustody)
	loan, err := vault.Loan(alice)
	if err != nil {
		t.Fatalf("loan: %v", err)
	}
	lot, err := auctions.StartAuction(authority, 7, loan, vaultCustody, 10, 300*time.Second)
	if err != nil {
		t.Fatalf("start auction: %v", err)
	}

	sealBid := func(kp *sealed.KeyPair, amount uint64) []byte {
		ct, err := sealed.SealBid(sealed.SharedSecret(kp.Sk, authorityKP.Pk), amount)
		if err != nil {
			t.Fatalf("seal bid: %v", err)
		}
		return ct
	}
	if _, err := auctions.SubmitBid(bob, lot.ID, sealBid(bobKP, 40), []byte("p")); err != nil {
		t.Fatalf("bob bid: %v", err)
	}
	if _, err := auctions.SubmitBid(carol, lot.ID, sealBid(carolKP, 55), []byte("p")); err != nil {
		t.Fatalf("carol bid: %v", err)
	}

	clock.Advance(300 * time.Second)
	settled, err := auctions.SettleAuction(authority, lot.ID)
	if err != nil {
		t.Fatalf("settle auction: %v", err)
	}
	if settled.WinningBidder != carol || settled.WinningBid != 55 {
		t.Errorf("winner = %s at %d, want carol at 55", settled.WinningBidder, settled.WinningBid)
	}
	if bal.Balance(carol) != 80 {
		t.Errorf("collateral not paid to winner: carol = %d", bal.Balance(carol))
	}
	if bal.Balance(auctionCustody) != 0 {
		t.Errorf("auction custody retained %d", bal.Balance(auctionCustody))
	}
}

// TestFullZeroKnowledgeFlow exercises the real Groth16 oracle end to end.
// Key generation takes a while, so it is skipped in short mode.
func TestFullZeroKnowledgeFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Groth16 setup in short mode")
	}

	dir := t.TempDir()

	ccsOrder, err := proofs.CompileOrderCircuit()
	if err != nil {
		t.Fatalf("compile order circuit: %v", err)
	}
	pkOrder, vkOrder, err := proofs.SetupOrLoadKeys(ccsOrder,
		filepath.Join(dir, "order_pk.bin"), filepath.Join(dir, "order_vk.bin"))
	if err != nil {
		t.Fatalf("order keys: %v", err)
	}
	ccsCompliance, err := proofs.CompileComplianceCircuit()
	if err != nil {
		t.Fatalf("compile compliance circuit: %v", err)
	}
	pkCompliance, vkCompliance, err := proofs.SetupOrLoadKeys(ccsCompliance,
		filepath.Join(dir, "compliance_pk.bin"), filepath.Join(dir, "compliance_vk.bin"))
	if err != nil {
		t.Fatalf("compliance keys: %v", err)
	}

	authorityKP, err := sealed.GenerateKeyPair()
	if err != nil {
		t.Fatalf("authority keypair: %v", err)
	}
	aliceKP, err := sealed.GenerateKeyPair()
	if err != nil {
		t.Fatalf("alice keypair: %v", err)
	}
	authority := sealed.AddressOf(authorityKP.Pk)
	alice := sealed.AddressOf(aliceKP.Pk)

	aliceID, path, indices := complianceLeaf()
	registryRoot := proofs.ComputeComplianceRoot(aliceID, path, indices)

	bounds := proofs.OrderBounds{MinOrderSize: 1, MaxOrderSize: 1000, MinPrice: 1, MaxPrice: 1000}

	bal := ledger.NewLedger()
	if err := bal.Transact(func(txn *ledger.Txn) error {
		txn.Credit(alice, 100)
		return nil
	}); err != nil {
		t.Fatalf("funding: %v", err)
	}

	book := darkpool.InitializeOrderBook(authority, bounds)
	commit := &darkpool.CommitmentEngine{
		Ledger: bal,
		Proofs: darkpool.NewProofLedger(),
		Book:   book,
		Verifier: &proofs.OrderVerifier{
			OrderVK:      vkOrder,
			ComplianceVK: vkCompliance,
			Bounds:       bounds,
			RegistryRoot: registryRoot,
		},
		Clock:   &ledger.FixedClock{T: time.Unix(1_700_000_000, 0)},
		Custody: darkpoolCustody,
	}

	orderProof, err := proofs.ProveOrder(ccsOrder, pkOrder, bounds, 10, 25, 100)
	if err != nil {
		t.Fatalf("prove order: %v", err)
	}
	complianceProof, err := proofs.ProveCompliance(ccsCompliance, pkCompliance, registryRoot, aliceID, path, indices)
	if err != nil {
		t.Fatalf("prove compliance: %v", err)
	}

	const orderID = 1
	if _, err := commit.Proofs.Create(alice, orderID); err != nil {
		t.Fatalf("proof account: %v", err)
	}
	uploadProof(t, commit.Proofs, alice, orderID, orderProof, true)
	uploadProof(t, commit.Proofs, alice, orderID, complianceProof, false)

	ciphertext, err := sealed.SealOrder(sealed.SharedSecret(aliceKP.Sk, authorityKP.Pk), sealed.OrderPayload{Amount: 10, Price: 25})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := commit.SubmitOrder(alice, orderID, ciphertext, 50); err != nil {
		t.Fatalf("submit with real proofs: %v", err)
	}

	// A tampered order proof must be rejected at the verifier gate.
	const badOrderID = 2
	if _, err := commit.Proofs.Create(alice, badOrderID); err != nil {
		t.Fatalf("proof account: %v", err)
	}
	tampered := append([]byte(nil), orderProof...)
	tampered[0] ^= 0xFF
	uploadProof(t, commit.Proofs, alice, badOrderID, tampered, true)
	uploadProof(t, commit.Proofs, alice, badOrderID, complianceProof, false)
	if _, err := commit.SubmitOrder(alice, badOrderID, ciphertext, 10); err == nil {
		t.Fatalf("tampered proof was accepted")
	}
}

func complianceLeaf() (userID *big.Int, path [proofs.ComplianceTreeDepth]*big.Int, indices [proofs.ComplianceTreeDepth]uint8) {
	userID = new(big.Int).SetBytes(sealed.MimcHash([]byte("alice-kyc-record")))
	for i := range path {
		path[i] = new(big.Int)
	}
	return userID, path, indices
}
