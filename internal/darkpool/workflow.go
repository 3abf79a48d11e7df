// workflow.go - Resumable client workflow records.
//
// The create-account, upload-chunks, commit flow is not atomic across ledger
// operations; a client that crashes mid-flow must detect where it stopped and
// resume or abandon, never duplicate. Each (owner, order id) pair gets one workflow
// record persisted as JSON, in the same spirit as a wallet file.

package darkpool

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"obsidian/internal/ledger"
)

// WorkflowStage is how far a commitment flow has progressed.
type WorkflowStage string

const (
	StageProofAccountCreated WorkflowStage = "proof_account_created"
	StageChunksStored        WorkflowStage = "chunks_stored"
	StageCommitted           WorkflowStage = "committed"
)

// OrderWorkflow is the progress record for one commitment attempt.
type OrderWorkflow struct {
	Owner     ledger.Address `json:"owner"`
	OrderID   uint64         `json:"order_id"`
	Stage     WorkflowStage  `json:"stage"`
	UpdatedAt int64          `json:"updated_at"`
}

// WorkflowLog tracks commitment flows and persists them to a JSON file so a
// restarted client can pick up where it stopped.
type WorkflowLog struct {
	mu      sync.Mutex
	path    string
	clock   ledger.Clock
	records map[proofKey]*OrderWorkflow
}

// NewWorkflowLog creates a workflow log backed by the given file. If the file
// exists its records are loaded; a missing file starts an empty log.
func NewWorkflowLog(path string, clock ledger.Clock) (*WorkflowLog, error) {
	w := &WorkflowLog{
		path:    path,
		clock:   clock,
		records: make(map[proofKey]*OrderWorkflow),
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return nil, err
	}
	defer f.Close()
	var recs []*OrderWorkflow
	if err := json.NewDecoder(f).Decode(&recs); err != nil {
		return nil, fmt.Errorf("workflow log decode failed: %w", err)
	}
	for _, r := range recs {
		w.records[proofKey{r.Owner, r.OrderID}] = r
	}
	return w, nil
}

// Record advances the workflow record for (owner, orderID) to stage and
// persists the log.
func (w *WorkflowLog) Record(owner ledger.Address, orderID uint64, stage WorkflowStage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := proofKey{owner, orderID}
	rec, ok := w.records[key]
	if !ok {
		rec = &OrderWorkflow{Owner: owner, OrderID: orderID}
		w.records[key] = rec
	}
	rec.Stage = stage
	rec.UpdatedAt = w.clock.Now().Unix()
	return w.save()
}

// Lookup returns the workflow record for (owner, orderID), or ErrNotFound.
func (w *WorkflowLog) Lookup(owner ledger.Address, orderID uint64) (*OrderWorkflow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.records[proofKey{owner, orderID}]
	if !ok {
		return nil, fmt.Errorf("%w: workflow for order %d", ErrNotFound, orderID)
	}
	return rec, nil
}

// save persists all records. Caller must hold w.mu.
func (w *WorkflowLog) save() error {
	recs := make([]*OrderWorkflow, 0, len(w.records))
	for _, r := range w.records {
		recs = append(recs, r)
	}
	f, err := os.Create(w.path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}
