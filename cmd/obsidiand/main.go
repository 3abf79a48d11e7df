// main.go - Obsidian protocol daemon.
//
// Wires the ledger, the proof oracle, and the protocol engines behind the
// HTTP operation surface:
//   - compiles the three Groth16 circuits and generates or loads their keys
//   - loads (or creates) the persistent balance ledger and workflow log
//   - serves the envelope operations with per-client rate limiting, audit
//     logging, metrics, and health checks
//
// Usage:
//   obsidiand [-config config.json]

package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"obsidian/internal/auction"
	"obsidian/internal/darkpool"
	"obsidian/internal/ledger"
	"obsidian/internal/lending"
	"obsidian/internal/proofs"
	"obsidian/internal/sealed"
)

const version = "1.0.0"

// Well-known custody accounts. Collateral never sits on a client address
// while locked.
const (
	darkpoolCustody = ledger.Address("obsidian:custody:darkpool")
	vaultCustody    = ledger.Address("obsidian:custody:vault")
	auctionCustody  = ledger.Address("obsidian:custody:auction")
)

func main() {
	configPath := flag.String("config", "config.json", "path to configuration file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := NewLogger(cfg.LogLevel, cfg.LogFile, auditPath(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("obsidian daemon %s starting", version)

	// Proof oracle setup. Key generation is expensive on first run; keys are
	// persisted under the key directory and reused afterwards.
	if err := os.MkdirAll(cfg.KeyDir, 0755); err != nil {
		logger.Fatal("key dir: %v", err)
	}

	ccsOrder, err := proofs.CompileOrderCircuit()
	if err != nil {
		logger.Fatal("order circuit compilation failed: %v", err)
	}
	_, vkOrder, err := proofs.SetupOrLoadKeys(ccsOrder,
		filepath.Join(cfg.KeyDir, "order_pk.bin"), filepath.Join(cfg.KeyDir, "order_vk.bin"))
	if err != nil {
		logger.Fatal("order circuit key setup failed: %v", err)
	}

	ccsCompliance, err := proofs.CompileComplianceCircuit()
	if err != nil {
		logger.Fatal("compliance circuit compilation failed: %v", err)
	}
	_, vkCompliance, err := proofs.SetupOrLoadKeys(ccsCompliance,
		filepath.Join(cfg.KeyDir, "compliance_pk.bin"), filepath.Join(cfg.KeyDir, "compliance_vk.bin"))
	if err != nil {
		logger.Fatal("compliance circuit key setup failed: %v", err)
	}

	ccsBid, err := proofs.CompileBidCircuit()
	if err != nil {
		logger.Fatal("bid circuit compilation failed: %v", err)
	}
	_, vkBid, err := proofs.SetupOrLoadKeys(ccsBid,
		filepath.Join(cfg.KeyDir, "bid_pk.bin"), filepath.Join(cfg.KeyDir, "bid_vk.bin"))
	if err != nil {
		logger.Fatal("bid circuit key setup failed: %v", err)
	}

	bounds, err := loadBounds(cfg)
	if err != nil {
		logger.Fatal("trading bounds: %v", err)
	}
	registryRoot, ok := new(big.Int).SetString(cfg.KycRegistryRoot, 10)
	if !ok {
		logger.Fatal("kyc_registry_root is not a decimal integer")
	}

	// Ledger: load the persisted balances or start empty.
	var bal *ledger.Ledger
	if l, err := ledger.LoadLedgerFromFile(cfg.LedgerPath); err == nil {
		bal = l
		logger.Info("loaded ledger from %s", cfg.LedgerPath)
	} else {
		bal = ledger.NewLedger()
		logger.Info("starting with an empty ledger")
	}

	clock := ledger.SystemClock()

	workflows, err := darkpool.NewWorkflowLog(cfg.WorkflowPath, clock)
	if err != nil {
		logger.Fatal("workflow log: %v", err)
	}

	// The settlement authority's sealing keypair. Participant public keys are
	// registered on the keyring as they come online.
	authorityKP, err := sealed.GenerateKeyPair()
	if err != nil {
		logger.Fatal("authority keypair: %v", err)
	}
	authority := sealed.AddressOf(authorityKP.Pk)
	keyring := sealed.NewKeyring(authorityKP)

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
	vault := lending.InitializePool(authority, vaultCustody, bal, clock)
	auctions := auction.NewEngine(bal, clock, &proofs.BidVerifier{BidVK: vkBid}, keyring, authority, auctionCustody)

	metrics := NewMetricsCollector()
	health := NewHealthChecker(version)
	health.RegisterComponent("ledger", func() error {
		return bal.SaveToFile(cfg.LedgerPath)
	})
	health.RegisterComponent("workflow_log", func() error {
		_, err := os.Stat(cfg.WorkflowPath)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	})

	server := &Server{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Health:    health,
		Limiter:   NewClientRateLimiter(cfg.RateLimitTokens, cfg.RateLimitRefill, rateLimitPeriod),
		Ledger:    bal,
		Commit:    commit,
		Settle:    settle,
		Vault:     vault,
		Auctions:  auctions,
		Workflows: workflows,
	}

	ready := make(chan struct{})
	if err := server.Start(ready); err != nil {
		logger.Fatal("server start: %v", err)
	}
	<-ready
	logger.Info("authority address: %s", authority)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	server.Shutdown()
	if err := bal.SaveToFile(cfg.LedgerPath); err != nil {
		logger.Error("final ledger save failed: %v", err)
	}
}

// loadBounds converts the configured human-unit bounds to base units.
func loadBounds(cfg *Config) (proofs.OrderBounds, error) {
	var b proofs.OrderBounds
	var err error
	if b.MinOrderSize, err = parseAmount(cfg.MinOrderSize); err != nil {
		return b, err
	}
	if b.MaxOrderSize, err = parseAmount(cfg.MaxOrderSize); err != nil {
		return b, err
	}
	if b.MinPrice, err = parseAmount(cfg.MinPrice); err != nil {
		return b, err
	}
	if b.MaxPrice, err = parseAmount(cfg.MaxPrice); err != nil {
		return b, err
	}
	return b, nil
}

// auditPath returns the audit log path, or empty when auditing is disabled.
func auditPath(cfg *Config) string {
	if !cfg.EnableAudit {
		return ""
	}
	return cfg.AuditLogPath
}
