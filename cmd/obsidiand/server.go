// server.go - HTTP operation surface of the obsidian daemon.
//
// Every ledger operation arrives as a POST to /message carrying a generic
// envelope; the payload is decoded based on the envelope type. The sender
// identity in the envelope is the caller's ledger address. Read-only
// endpoints (/health, /metrics, /status) are plain GETs.

package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"obsidian/internal/auction"
	"obsidian/internal/darkpool"
	"obsidian/internal/ledger"
	"obsidian/internal/lending"
)

// Message is the generic envelope for any operation sent to the daemon.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID ledger.Address  `json:"senderId"`
}

// Response is the uniform reply shape for envelope operations.
type Response struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	RequestID string      `json:"request_id"`
	Data      interface{} `json:"data,omitempty"`
}

// Payload shapes, one per operation type.

type createProofAccountPayload struct {
	OrderID uint64 `json:"order_id"`
}

type storeProofChunkPayload struct {
	OrderID      uint64 `json:"order_id"`
	Chunk        []byte `json:"chunk"`
	IsOrderProof bool   `json:"is_order_proof"`
}

type submitOrderPayload struct {
	OrderID    uint64 `json:"order_id"`
	Ciphertext []byte `json:"ciphertext"`
	Collateral string `json:"collateral"`
}

type settleBatchPayload struct {
	BatchID        uint64 `json:"batch_id"`
	ReferencePrice string `json:"reference_price"`
}

type submitBidPayload struct {
	AuctionID  uint64 `json:"auction_id"`
	Ciphertext []byte `json:"ciphertext"`
	Proof      []byte `json:"proof"`
}

type settleAuctionPayload struct {
	AuctionID uint64 `json:"auction_id"`
}

type depositPayload struct {
	Amount string `json:"amount"`
	Proof  []byte `json:"proof"`
}

type borrowPayload struct {
	Amount   string `json:"amount"`
	LTVProof []byte `json:"ltv_proof"`
}

type liquidatePayload struct {
	Owner            ledger.Address `json:"owner"`
	LiquidationProof []byte         `json:"liquidation_proof"`
}

type startAuctionPayload struct {
	AuctionID       uint64         `json:"auction_id"`
	Owner           ledger.Address `json:"owner"`
	MinimumBid      string         `json:"minimum_bid"`
	DurationSeconds int            `json:"duration_seconds"`
}

// Server ties the protocol engines to the HTTP surface.
type Server struct {
	Config    *Config
	Logger    *Logger
	Metrics   *MetricsCollector
	Health    *HealthChecker
	Limiter   *ClientRateLimiter
	Ledger    *ledger.Ledger
	Commit    *darkpool.CommitmentEngine
	Settle    *darkpool.SettlementEngine
	Vault     *lending.Vault
	Auctions  *auction.Engine
	Workflows *darkpool.WorkflowLog

	httpServer *http.Server
	waitGroup  sync.WaitGroup
}

// Start starts the HTTP server. It signals on ready once listening.
func (s *Server) Start(ready chan<- struct{}) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/message", s.messageHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.HandleFunc("/status", s.statusHandler)

	s.httpServer = &http.Server{
		Addr:    s.Config.ListenAddress,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", s.Config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Config.ListenAddress, err)
	}

	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		s.Logger.Info("server listening on %s", s.Config.ListenAddress)
		ready <- struct{}{}
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			s.Logger.Error("server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the server and waits for in-flight requests.
func (s *Server) Shutdown() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	s.waitGroup.Wait()
}

// messageHandler decodes the envelope and dispatches on its type.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.writeError(w, requestID, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if msg.SenderID == "" {
		s.writeError(w, requestID, http.StatusBadRequest, fmt.Errorf("missing sender identity"))
		return
	}
	if !s.Limiter.Allow(msg.SenderID) {
		s.Metrics.RecordError("rate_limited")
		s.writeError(w, requestID, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
		return
	}

	s.Logger.Debug("request %s: type=%s sender=%s", requestID, msg.Type, msg.SenderID)

	var (
		data interface{}
		err  error
	)
	switch msg.Type {
	case "create_proof_account":
		data, err = s.handleCreateProofAccount(msg)
	case "store_proof_chunk":
		data, err = s.handleStoreProofChunk(msg)
	case "submit_encrypted_order":
		data, err = s.handleSubmitOrder(msg)
	case "settle_batch":
		data, err = s.handleSettleBatch(msg)
	case "submit_bid":
		data, err = s.handleSubmitBid(msg)
	case "settle_auction":
		data, err = s.handleSettleAuction(msg)
	case "deposit":
		data, err = s.handleDeposit(msg)
	case "borrow":
		data, err = s.handleBorrow(msg)
	case "liquidate":
		data, err = s.handleLiquidate(msg)
	case "start_liquidation_auction":
		data, err = s.handleStartAuction(msg)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		s.Metrics.RecordError(msg.Type)
		s.Logger.Warn("request %s failed: %v", requestID, err)
		s.writeError(w, requestID, http.StatusBadRequest, err)
		return
	}

	s.Logger.Audit(msg.Type, map[string]interface{}{
		"request_id": requestID,
		"sender":     string(msg.SenderID),
	})
	s.writeJSON(w, http.StatusOK, Response{Status: "ok", RequestID: requestID, Data: data})
}

func (s *Server) handleCreateProofAccount(msg Message) (interface{}, error) {
	var p createProofAccountPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, err
	}
	acct, err := s.Commit.Proofs.Create(msg.SenderID, p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.Workflows.Record(msg.SenderID, p.OrderID, darkpool.StageProofAccountCreated); err != nil {
		s.Logger.Warn("workflow record failed: %v", err)
	}
	return acct, nil
}

func (s *Server) handleStoreProofChunk(msg Message) (interface{}, error) {
	var p storeProofChunkPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, err
	}
	if err := s.Commit.Proofs.AppendChunk(msg.SenderID, msg.SenderID, p.OrderID, p.Chunk, p.IsOrderProof); err != nil {
		return nil, err
	}
	s.Metrics.RecordProofChunk(len(p.Chunk))
	if err := s.Workflows.Record(msg.SenderID, p.OrderID, darkpool.StageChunksStored); err != nil {
		s.Logger.Warn("workflow record failed: %v", err)
	}
	return nil, nil
}

func (s *Server) handleSubmitOrder(msg Message) (interface{}, error) {
	var p submitOrderPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, err
	}
	collateral, err := parseAmount(p.Collateral)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	order, err := s.Commit.SubmitOrder(msg.SenderID, p.OrderID, p.Ciphertext, collateral)
	if err != nil {
		return nil, err
	}
	s.Metrics.RecordProofVerification(time.Since(start))
	s.Metrics.RecordOrder(order.BatchID)
	if err := s.Workflows.Record(msg.SenderID, p.OrderID, darkpool.StageCommitted); err != nil {
		s.Logger.Warn("workflow record failed: %v", err)
	}
	if err := s.Ledger.SaveToFile(s.Config.LedgerPath); err != nil {
		s.Logger.Error("ledger save failed: %v", err)
	}
	return order, nil
}

func (s *Server) handleSettleBatch(msg Message) (interface{}, error) {
	var p settleBatchPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, err
	}
	price, err := parseAmount(p.ReferencePrice)
	if err != nil {
		return nil, err
	}
	if err := s.Settle.SettleBatch(msg.SenderID, p.BatchID, price); err != nil {
		return nil, err
	}
	batch, err := s.Settle.Book.Batch(p.BatchID)
	if err != nil {
		return nil, err
	}
	s.Metrics.RecordBatchSettled(p.BatchID, len(batch.Orders))
	if err := s.Ledger.SaveToFile(s.Config.LedgerPath); err != nil {
		s.Logger.Error("ledger save failed: %v", err)
	}
	return batch, nil
}

func (s *Server) handleSubmitBid(msg Message) (interface{}, error) {
	var p submitBidPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, err
	}
	bid, err := s.Auctions.SubmitBid(msg.SenderID, p.AuctionID, p.Ciphertext, p.Proof)
	if err != nil {
		return nil, err
	}
	s.Metrics.RecordBid(p.AuctionID)
	return bid, nil
}

func (s *Server) handleSettleAuction(msg Message) (interface{}, error) {
	var p settleAuctionPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, err
	}
	a, err := s.Auctions.SettleAuction(msg.SenderID, p.AuctionID)
	if err != nil {
		return nil, err
	}
	if err := s.Ledger.SaveToFile(s.Config.LedgerPath); err != nil {
		s.Logger.Error("ledger save failed: %v", err)
	}
	return a, nil
}

func (s *Server) handleDeposit(msg Message) (interface{}, error) {
	var p depositPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	loan, err := s.Vault.Deposit(msg.SenderID, amount, p.Proof)
	if err != nil {
		return nil, err
	}
	s.Metrics.IncrementCounter(MetricLoanCount, nil)
	if err := s.Ledger.SaveToFile(s.Config.LedgerPath); err != nil {
		s.Logger.Error("ledger save failed: %v", err)
	}
	return loan, nil
}

func (s *Server) handleBorrow(msg Message) (interface{}, error) {
	var p borrowPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.Vault.Borrow(msg.SenderID, amount, p.LTVProof); err != nil {
		return nil, err
	}
	if err := s.Ledger.SaveToFile(s.Config.LedgerPath); err != nil {
		s.Logger.Error("ledger save failed: %v", err)
	}
	return nil, nil
}

func (s *Server) handleLiquidate(msg Message) (interface{}, error) {
	var p liquidatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, err
	}
	if err := s.Vault.Liquidate(msg.SenderID, p.Owner, p.LiquidationProof); err != nil {
		return nil, err
	}
	if err := s.Ledger.SaveToFile(s.Config.LedgerPath); err != nil {
		s.Logger.Error("ledger save failed: %v", err)
	}
	return nil, nil
}

func (s *Server) handleStartAuction(msg Message) (interface{}, error) {
	var p startAuctionPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, err
	}
	minimumBid, err := parseAmount(p.MinimumBid)
	if err != nil {
		return nil, err
	}
	duration := time.Duration(p.DurationSeconds) * time.Second
	if p.DurationSeconds <= 0 {
		duration = s.Config.AuctionDuration()
	}
	loan, err := s.Vault.Loan(p.Owner)
	if err != nil {
		return nil, err
	}
	a, err := s.Auctions.StartAuction(msg.SenderID, p.AuctionID, loan, s.Vault.Custody, minimumBid, duration)
	if err != nil {
		return nil, err
	}
	s.Metrics.IncrementCounter(MetricAuctionCount, nil)
	if err := s.Ledger.SaveToFile(s.Config.LedgerPath); err != nil {
		s.Logger.Error("ledger save failed: %v", err)
	}
	return a, nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.Health.CheckHealth()
	code := http.StatusOK
	if health.OverallStatus == Unhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, health)
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Metrics.GetMetricsSummary())
}

// statusHandler reports the order book counters and declared trading bounds.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	book := s.Commit.Book
	stats := book.Stats()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_orders":   stats.TotalOrders,
		"next_batch_id":  stats.NextBatchID,
		"min_order_size": formatAmount(book.Bounds.MinOrderSize),
		"max_order_size": formatAmount(book.Bounds.MaxOrderSize),
		"min_price":      formatAmount(book.Bounds.MinPrice),
		"max_price":      formatAmount(book.Bounds.MaxPrice),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("response encode failed: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, requestID string, code int, err error) {
	s.writeJSON(w, code, Response{Status: "error", Message: err.Error(), RequestID: requestID})
}
