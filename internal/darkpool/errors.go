// errors.go - Error taxonomy for the dark-pool core.
//
// Every violation is rejected synchronously at the operation boundary; the
// core never retries or silently swallows. Callers match with errors.Is.

package darkpool

import "errors"

var (
	// ErrUnauthorized is returned when the caller is not the owner of the
	// mutated account, or not the protocol authority.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists is returned when a proof account for (owner, order id)
	// already exists.
	ErrAlreadyExists = errors.New("proof account already exists")

	// ErrProofClosed is returned when appending to a proof account that is
	// already bound to a finalized commitment.
	ErrProofClosed = errors.New("proof account closed")

	// ErrBufferOverflow is returned when a chunk exceeds the per-chunk
	// maximum or would grow a proof buffer past the account size.
	ErrBufferOverflow = errors.New("proof buffer overflow")

	// ErrDuplicateOrder is returned when (owner, order id) already has a
	// committed order.
	ErrDuplicateOrder = errors.New("order already committed")

	// ErrProofMissing is returned when the proof precondition of a
	// commitment is not met (no account, or an empty buffer).
	ErrProofMissing = errors.New("proof missing")

	// ErrProofInvalid is returned when the external verifier rejects the
	// stored proof against the declared public bounds.
	ErrProofInvalid = errors.New("proof invalid")

	// ErrInvalidCiphertext is returned when an order ciphertext is empty or
	// exceeds the fixed maximum.
	ErrInvalidCiphertext = errors.New("ciphertext empty or too large")

	// ErrNoActiveBatch is returned when there is nothing to settle, or the
	// target is not the most recently opened batch.
	ErrNoActiveBatch = errors.New("no active batch")

	// ErrAlreadyCleared is returned when settling a batch that has already
	// been cleared.
	ErrAlreadyCleared = errors.New("batch already cleared")

	// ErrNotFound is returned by read operations for unknown records. Reads
	// never fabricate data on failure.
	ErrNotFound = errors.New("not found")
)
