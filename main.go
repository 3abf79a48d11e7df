// main.go - End-to-end obsidian protocol scenario.
//
// This demonstrates one complete round of the confidential trading protocol:
//   - the proof oracle compiles the three circuits and loads or generates keys
//   - a trader proves order validity and KYC membership, uploads both proofs
//     in chunks, seals the order, and commits it with locked collateral
//   - the authority settles the batch at a uniform reference price and opens
//     the ciphertext with the DH shared secret
//   - a lending position is opened and sent to a sealed-bid liquidation
//     auction, where two bidders compete without revealing their amounts
//
// Usage:
//   go run main.go
//
// Architecture:
//   - Balances live in a single ledger.json file
//   - Groth16 keys are generated once and cached under keys/
//   - All engines run in-process; the HTTP surface lives in cmd/obsidiand

package main

import (
	"log"
	"math/big"
	"time"

	"github.com/fatih/color"

	"obsidian/internal/auction"
	"obsidian/internal/darkpool"
	"obsidian/internal/ledger"
	"obsidian/internal/lending"
	"obsidian/internal/proofs"
	"obsidian/internal/sealed"
)

const (
	darkpoolCustody = ledger.Address("obsidian:custody:darkpool")
	vaultCustody    = ledger.Address("obsidian:custody:vault")
	auctionCustody  = ledger.Address("obsidian:custody:auction")
)

func main() {
	color.Cyan("=== Obsidian Protocol: confidential trading scenario ===")

	// 1. Proof oracle setup: compile circuits, load or generate Groth16 keys.
	color.Yellow("[1/5] Compiling circuits and setting up keys...")
	ccsOrder, err := proofs.CompileOrderCircuit()
	if err != nil {
		log.Fatalf("order circuit compilation failed: %v", err)
	}
	pkOrder, vkOrder, err := proofs.SetupOrLoadKeys(ccsOrder, "keys/order_pk.bin", "keys/order_vk.bin")
	if err != nil {
		log.Fatalf("order circuit key setup failed: %v", err)
	}
	ccsCompliance, err := proofs.CompileComplianceCircuit()
	if err != nil {
		log.Fatalf("compliance circuit compilation failed: %v", err)
	}
	pkCompliance, vkCompliance, err := proofs.SetupOrLoadKeys(ccsCompliance, "keys/compliance_pk.bin", "keys/compliance_vk.bin")
	if err != nil {
		log.Fatalf("compliance circuit key setup failed: %v", err)
	}
	ccsBid, err := proofs.CompileBidCircuit()
	if err != nil {
		log.Fatalf("bid circuit compilation failed: %v", err)
	}
	pkBid, vkBid, err := proofs.SetupOrLoadKeys(ccsBid, "keys/bid_pk.bin", "keys/bid_vk.bin")
	if err != nil {
		log.Fatalf("bid circuit key setup failed: %v", err)
	}

	// 2. Identities and ledger.
	color.Yellow("[2/5] Creating identities and funding the ledger...")
	authorityKP, _ := sealed.GenerateKeyPair()
	aliceKP, _ := sealed.GenerateKeyPair()
	bobKP, _ := sealed.GenerateKeyPair()
	carolKP, _ := sealed.GenerateKeyPair()

	authority := sealed.AddressOf(authorityKP.Pk)
	keyring := sealed.NewKeyring(authorityKP)
	alice := keyring.Register(aliceKP.Pk)
	bob := keyring.Register(bobKP.Pk)
	carol := keyring.Register(carolKP.Pk)

	bal := ledger.NewLedger()
	err = bal.Transact(func(txn *ledger.Txn) error {
		txn.Credit(alice, 200)
		txn.Credit(bob, 150)
		txn.Credit(carol, 150)
		return nil
	})
	if err != nil {
		log.Fatalf("funding failed: %v", err)
	}

	// KYC registry with alice as its only member.
	aliceID := new(big.Int).SetBytes(sealed.MimcHash([]byte("alice-kyc-record")))
	var path [proofs.ComplianceTreeDepth]*big.Int
	var indices [proofs.ComplianceTreeDepth]uint8
	for i := range path {
		path[i] = big.NewInt(0)
	}
	registryRoot := proofs.ComputeComplianceRoot(aliceID, path, indices)

	bounds := proofs.OrderBounds{MinOrderSize: 1, MaxOrderSize: 1000, MinPrice: 1, MaxPrice: 1000}
	clock := ledger.SystemClock()

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
		Clock:   clock,
		Custody: darkpoolCustody,
	}
	settle := &darkpool.SettlementEngine{Ledger: bal, Book: book, Custody: darkpoolCustody}

	// 3. Dark-pool round: prove, upload, seal, commit, settle, open.
	color.Yellow("[3/5] Committing a sealed order...")
	orderProof, err := proofs.ProveOrder(ccsOrder, pkOrder, bounds, 10, 25, 200)
	if err != nil {
		log.Fatalf("order proof generation failed: %v", err)
	}
	complianceProof, err := proofs.ProveCompliance(ccsCompliance, pkCompliance, registryRoot, aliceID, path, indices)
	if err != nil {
		log.Fatalf("compliance proof generation failed: %v", err)
	}

	const orderID = 42
	if _, err := commit.Proofs.Create(alice, orderID); err != nil {
		log.Fatalf("proof account creation failed: %v", err)
	}
	uploadChunks := func(proof []byte, isOrderProof bool) {
		for off := 0; off < len(proof); off += darkpool.MaxChunkSize {
			end := off + darkpool.MaxChunkSize
			if end > len(proof) {
				end = len(proof)
			}
			if err := commit.Proofs.AppendChunk(alice, alice, orderID, proof[off:end], isOrderProof); err != nil {
				log.Fatalf("chunk upload failed: %v", err)
			}
		}
	}
	uploadChunks(orderProof, true)
	uploadChunks(complianceProof, false)

	sharedAlice := sealed.SharedSecret(aliceKP.Sk, authorityKP.Pk)
	ciphertext, err := sealed.SealOrder(sharedAlice, sealed.OrderPayload{Amount: 10, Price: 25, Side: 0})
	if err != nil {
		log.Fatalf("order sealing failed: %v", err)
	}
	order, err := commit.SubmitOrder(alice, orderID, ciphertext, 50)
	if err != nil {
		log.Fatalf("order submission failed: %v", err)
	}
	color.Green("    order %d committed to batch %d, collateral locked (alice: %d)", order.OrderID, order.BatchID, bal.Balance(alice))

	if err := settle.SettleBatch(authority, order.BatchID, 24); err != nil {
		log.Fatalf("batch settlement failed: %v", err)
	}
	opened, err := sealed.OpenOrder(sealed.SharedSecret(authorityKP.Sk, aliceKP.Pk), order.Ciphertext)
	if err != nil {
		log.Fatalf("order opening failed: %v", err)
	}
	color.Green("    batch %d cleared at 24; opened order: amount=%d price=%d side=%d", order.BatchID, opened.Amount, opened.Price, opened.Side)

	// 4. Lending: deposits fund the vault, alice borrows against collateral.
	color.Yellow("[4/5] Opening a lending position...")
	vault := lending.InitializePool(authority, vaultCustody, bal, clock)
	if _, err := vault.Deposit(alice, 80, []byte("collateral-claim")); err != nil {
		log.Fatalf("deposit failed: %v", err)
	}
	if _, err := vault.Deposit(bob, 100, []byte("collateral-claim")); err != nil {
		log.Fatalf("deposit failed: %v", err)
	}
	if err := vault.Borrow(alice, 30, []byte("ltv-claim")); err != nil {
		log.Fatalf("borrow failed: %v", err)
	}
	color.Green("    vault holds %d, alice borrowed 30", bal.Balance(vaultCustody))

	// 5. Liquidation auction with sealed bids.
	color.Yellow("[5/5] Running the liquidation auction...")
	auctions := auction.NewEngine(bal, clock, &proofs.BidVerifier{BidVK: vkBid}, keyring, authority, auctionCustody)
	aliceLoan, err := vault.Loan(alice)
	if err != nil {
		log.Fatalf("loan lookup failed: %v", err)
	}
	lot, err := auctions.StartAuction(authority, 1, aliceLoan, vaultCustody, 10, 2*time.Second)
	if err != nil {
		log.Fatalf("auction start failed: %v", err)
	}

	submitBid := func(bidder ledger.Address, kp *sealed.KeyPair, amount, balance uint64) {
		proof, err := proofs.ProveBid(ccsBid, pkBid, lot.MinimumBid, amount, balance)
		if err != nil {
			log.Fatalf("bid proof generation failed: %v", err)
		}
		sealedBid, err := sealed.SealBid(sealed.SharedSecret(kp.Sk, authorityKP.Pk), amount)
		if err != nil {
			log.Fatalf("bid sealing failed: %v", err)
		}
		if _, err := auctions.SubmitBid(bidder, lot.ID, sealedBid, proof); err != nil {
			log.Fatalf("bid submission failed: %v", err)
		}
	}
	submitBid(bob, bobKP, 40, bal.Balance(bob))
	submitBid(carol, carolKP, 55, bal.Balance(carol))
	color.Green("    two sealed bids submitted; amounts stay hidden until settlement")

	time.Sleep(2500 * time.Millisecond)
	settled, err := auctions.SettleAuction(authority, lot.ID)
	if err != nil {
		log.Fatalf("auction settlement failed: %v", err)
	}
	color.Green("    auction settled: winner=%s bid=%d collateral=%d", settled.WinningBidder, settled.WinningBid, settled.CollateralAmount)

	if err := bal.SaveToFile("ledger.json"); err != nil {
		log.Fatalf("ledger save failed: %v", err)
	}
	color.Cyan("=== Scenario complete; ledger saved to ledger.json ===")
}
