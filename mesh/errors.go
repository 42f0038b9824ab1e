package mesh

import "errors"

var (
	// ErrNoPathAvailable is returned by SendFile when no live relay
	// exists; the transfer never starts
	ErrNoPathAvailable = errors.New("no path available")

	// ErrTooManyConcurrentTransfers is returned when a new transfer is
	// rejected at admission because the in-flight cap is reached
	ErrTooManyConcurrentTransfers = errors.New("too many concurrent transfers")

	// ErrCoordinatorClosed is returned by operations on a stopped coordinator
	ErrCoordinatorClosed = errors.New("coordinator closed")
)

// FailureReason classifies why a transfer was declared failed.
// Surfaced on the transfer-failed callback; terminal for that transfer
// only, never for the coordinator.
type FailureReason string

const (
	ReasonChecksumMismatch  FailureReason = "checksum_mismatch"
	ReasonReassemblyTimeout FailureReason = "reassembly_timeout"
	ReasonTooManyTransfers  FailureReason = "too_many_concurrent_transfers"
	ReasonCancelled         FailureReason = "cancelled"
)
