package mesh

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

// TestChunker_SplitSizes tests the 250k/100k scenario: exactly 3 chunks
// of 100k, 100k and 50k
func TestChunker_SplitSizes(t *testing.T) {
	payload := make([]byte, 250_000)
	checksum := sha256.Sum256(payload)

	chunks := ChunkPayload("transfer-1", payload, 100_000, checksum, "big.bin", "application/octet-stream")
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}

	expectedSizes := []int{100_000, 100_000, 50_000}
	for i, c := range chunks {
		if len(c.Data) != expectedSizes[i] {
			t.Errorf("Chunk %d: got %d bytes, expected %d", i, len(c.Data), expectedSizes[i])
		}
		if c.Sequence != i {
			t.Errorf("Chunk %d: sequence %d", i, c.Sequence)
		}
		if c.TotalChunks != 3 {
			t.Errorf("Chunk %d: total %d, expected 3", i, c.TotalChunks)
		}
		if c.Checksum != checksum {
			t.Errorf("Chunk %d: checksum not carried", i)
		}
	}
}

// TestChunker_BoundarySizes tests 0 bytes, exactly chunkSize, and chunkSize+1
func TestChunker_BoundarySizes(t *testing.T) {
	const chunkSize = 1000
	cases := []struct {
		name           string
		payloadLen     int
		expectedChunks int
	}{
		{"empty payload", 0, 1},
		{"exactly one chunk", chunkSize, 1},
		{"one byte over", chunkSize + 1, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := make([]byte, tc.payloadLen)
			checksum := sha256.Sum256(payload)

			chunks := ChunkPayload("transfer-1", payload, chunkSize, checksum, "f", "m")
			if len(chunks) != tc.expectedChunks {
				t.Fatalf("Expected %d chunks, got %d", tc.expectedChunks, len(chunks))
			}

			var total int
			for _, c := range chunks {
				total += len(c.Data)
			}
			if total != tc.payloadLen {
				t.Errorf("Chunks carry %d bytes, expected %d", total, tc.payloadLen)
			}
		})
	}
}

// TestChunker_Deterministic tests the pure-function contract
func TestChunker_Deterministic(t *testing.T) {
	payload := []byte("the same payload every time")
	checksum := sha256.Sum256(payload)

	a := ChunkPayload("transfer-1", payload, 10, checksum, "f", "m")
	b := ChunkPayload("transfer-1", payload, 10, checksum, "f", "m")
	if len(a) != len(b) {
		t.Fatalf("Chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !bytes.Equal(a[i].Data, b[i].Data) || a[i].Sequence != b[i].Sequence {
			t.Fatalf("Chunk %d differs between identical invocations", i)
		}
	}
}
