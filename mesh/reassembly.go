package mesh

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/user/meshrelay/logger"
	"github.com/user/meshrelay/wire"
)

// How many finished/cancelled transfer ids we remember so their late or
// duplicate chunks are dropped silently instead of opening a fresh
// transfer
const tombstoneCacheSize = 1024

// CompletedTransfer is handed to the completion callback once a
// transfer reassembles and verifies
type CompletedTransfer struct {
	TransferID string
	FileName   string
	MimeType   string
	Data       []byte
}

// inboundTransfer accumulates one in-flight multi-chunk payload
type inboundTransfer struct {
	totalChunks int
	chunks      map[int][]byte
	checksum    [wire.ChecksumSize]byte
	fileName    string
	mimeType    string
	createdAt   time.Time
}

// ReassemblyBuffer owns every inbound Transfer for its lifetime:
// created on the first chunk of an unseen transfer id, destroyed on
// completion, checksum failure, timeout or cancellation. Chunks arrive
// in arbitrary order and may be duplicated; deduplication is by
// sequence number with idempotent overwrite. Callbacks always fire
// outside the buffer's lock.
type ReassemblyBuffer struct {
	mu        sync.Mutex
	transfers map[string]*inboundTransfer
	tombstone *lru.Cache[string, struct{}]

	timeout      time.Duration
	maxTransfers int
	clk          clock.Clock
	logPrefix    string

	onCompleted func(CompletedTransfer)
	onFailed    func(transferID string, reason FailureReason)
}

// NewReassemblyBuffer creates a buffer with the given per-transfer
// lifetime (measured from the first chunk, not from last activity) and
// concurrent-transfer cap
func NewReassemblyBuffer(localPeerID string, timeout time.Duration, maxTransfers int, clk clock.Clock) *ReassemblyBuffer {
	if clk == nil {
		clk = clock.New()
	}
	tombstone, _ := lru.New[string, struct{}](tombstoneCacheSize)
	return &ReassemblyBuffer{
		transfers:    make(map[string]*inboundTransfer),
		tombstone:    tombstone,
		timeout:      timeout,
		maxTransfers: maxTransfers,
		clk:          clk,
		logPrefix:    fmt.Sprintf("%s REASM", shortID(localPeerID)),
	}
}

// OnCompleted registers the completion callback
func (rb *ReassemblyBuffer) OnCompleted(fn func(CompletedTransfer)) {
	rb.onCompleted = fn
}

// OnFailed registers the failure callback
func (rb *ReassemblyBuffer) OnFailed(fn func(transferID string, reason FailureReason)) {
	rb.onFailed = fn
}

// ReceiveChunk folds one chunk into its transfer, creating the transfer
// on first sight of the id. Late chunks for finished or cancelled
// transfers are dropped silently. Returns ErrTooManyConcurrentTransfers
// when a new transfer id is rejected at admission; the rejection is
// terminal, so later chunks of that id are dropped silently too.
func (rb *ReassemblyBuffer) ReceiveChunk(c wire.Chunk) error {
	rb.mu.Lock()

	if _, dead := rb.tombstone.Get(c.TransferID); dead {
		rb.mu.Unlock()
		logger.Trace(rb.logPrefix, "Late chunk %d for finished transfer %s dropped",
			c.Sequence, shortID(c.TransferID))
		return nil
	}

	tr, exists := rb.transfers[c.TransferID]
	if !exists {
		if len(rb.transfers) >= rb.maxTransfers {
			// Rejection is terminal for this transfer id: tombstone it so
			// its remaining chunks drop silently instead of re-entering
			// admission (or being admitted into a transfer that can never
			// complete once capacity frees)
			rb.tombstone.Add(c.TransferID, struct{}{})
			rb.mu.Unlock()
			logger.Warn(rb.logPrefix, "⚠️  Rejecting transfer %s: %d transfers already in flight",
				shortID(c.TransferID), rb.maxTransfers)
			return fmt.Errorf("transfer %s: %w", c.TransferID, ErrTooManyConcurrentTransfers)
		}
		tr = &inboundTransfer{
			totalChunks: c.TotalChunks,
			chunks:      make(map[int][]byte),
			checksum:    c.Checksum,
			fileName:    c.FileName,
			mimeType:    c.MimeType,
			createdAt:   rb.clk.Now(),
		}
		rb.transfers[c.TransferID] = tr
		logger.Debug(rb.logPrefix, "📥 Started transfer %s (%s, %d chunks)",
			shortID(c.TransferID), c.FileName, c.TotalChunks)
	}

	if c.TotalChunks != tr.totalChunks || c.Sequence < 0 || c.Sequence >= tr.totalChunks {
		rb.mu.Unlock()
		logger.Warn(rb.logPrefix, "⚠️  Inconsistent chunk %d/%d for transfer %s dropped",
			c.Sequence, c.TotalChunks, shortID(c.TransferID))
		return nil
	}

	// Idempotent overwrite: dedup by sequence number, not content
	tr.chunks[c.Sequence] = append([]byte(nil), c.Data...)

	if len(tr.chunks) < tr.totalChunks {
		rb.mu.Unlock()
		return nil
	}

	// All chunks arrived: assemble in sequence order and verify
	assembled := make([]byte, 0)
	for seq := 0; seq < tr.totalChunks; seq++ {
		assembled = append(assembled, tr.chunks[seq]...)
	}
	delete(rb.transfers, c.TransferID)
	rb.tombstone.Add(c.TransferID, struct{}{})

	digest := sha256.Sum256(assembled)
	verified := bytes.Equal(digest[:], tr.checksum[:])
	fileName, mimeType := tr.fileName, tr.mimeType
	rb.mu.Unlock()

	if !verified {
		logger.Warn(rb.logPrefix, "❌ Transfer %s failed checksum verification", shortID(c.TransferID))
		if rb.onFailed != nil {
			rb.onFailed(c.TransferID, ReasonChecksumMismatch)
		}
		return nil
	}

	logger.Info(rb.logPrefix, "✅ Transfer %s complete (%s, %d bytes)",
		shortID(c.TransferID), fileName, len(assembled))
	if rb.onCompleted != nil {
		rb.onCompleted(CompletedTransfer{
			TransferID: c.TransferID,
			FileName:   fileName,
			MimeType:   mimeType,
			Data:       assembled,
		})
	}
	return nil
}

// SweepExpired evicts every incomplete transfer older than the timeout,
// emitting a failure per transfer. Returns the expired ids.
func (rb *ReassemblyBuffer) SweepExpired() []string {
	rb.mu.Lock()
	now := rb.clk.Now()
	var expired []string
	for transferID, tr := range rb.transfers {
		if now.Sub(tr.createdAt) >= rb.timeout {
			logger.Warn(rb.logPrefix, "🧹 Transfer %s timed out (%d/%d chunks after %v)",
				shortID(transferID), len(tr.chunks), tr.totalChunks, now.Sub(tr.createdAt))
			delete(rb.transfers, transferID)
			rb.tombstone.Add(transferID, struct{}{})
			expired = append(expired, transferID)
		}
	}
	rb.mu.Unlock()

	if rb.onFailed != nil {
		for _, transferID := range expired {
			rb.onFailed(transferID, ReasonReassemblyTimeout)
		}
	}
	return expired
}

// Cancel removes an in-flight transfer and suppresses any further
// processing of its late-arriving chunks. Returns whether a transfer
// was actually removed.
func (rb *ReassemblyBuffer) Cancel(transferID string) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	_, exists := rb.transfers[transferID]
	if exists {
		delete(rb.transfers, transferID)
		logger.Debug(rb.logPrefix, "✂️  Cancelled transfer %s", shortID(transferID))
	}
	// Tombstone regardless so chunks already on the air stay dead
	rb.tombstone.Add(transferID, struct{}{})
	return exists
}

// ActiveCount returns the number of in-flight transfers
func (rb *ReassemblyBuffer) ActiveCount() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.transfers)
}
