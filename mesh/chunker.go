package mesh

import (
	"github.com/google/uuid"

	"github.com/user/meshrelay/wire"
)

// NewTransferID generates a unique id for an outbound transfer
func NewTransferID() string {
	return uuid.New().String()
}

// ChunkPayload splits a payload into bounded, sequenced chunks carrying
// the full-payload checksum and file metadata redundantly in every
// header. Pure function: no state, no I/O, deterministic for identical
// input. An empty payload still produces one empty chunk so the
// receiver has something to complete and verify.
func ChunkPayload(transferID string, payload []byte, chunkSize int, checksum [wire.ChecksumSize]byte, fileName, mimeType string) []wire.Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	totalChunks := (len(payload) + chunkSize - 1) / chunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}

	chunks := make([]wire.Chunk, 0, totalChunks)
	for seq := 0; seq < totalChunks; seq++ {
		start := seq * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, wire.Chunk{
			TransferID:  transferID,
			Sequence:    seq,
			TotalChunks: totalChunks,
			Checksum:    checksum,
			FileName:    fileName,
			MimeType:    mimeType,
			Data:        payload[start:end],
		})
	}
	return chunks
}
