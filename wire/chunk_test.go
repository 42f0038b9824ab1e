package wire

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"
)

func validChunk() Chunk {
	data := []byte("chunk payload bytes")
	return Chunk{
		TransferID:  "22222222-2222-2222-2222-222222222222",
		Sequence:    1,
		TotalChunks: 3,
		PathID:      "33333333-3333-3333-3333-333333333333",
		Checksum:    sha256.Sum256([]byte("full payload")),
		FileName:    "photo.jpg",
		MimeType:    "image/jpeg",
		Data:        data,
	}
}

// TestChunk_RoundTrip tests that every field survives encode/decode
func TestChunk_RoundTrip(t *testing.T) {
	c := validChunk()

	decoded, err := DecodeChunk(c.Encode())
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}

	if decoded.TransferID != c.TransferID {
		t.Errorf("TransferID: got %q, expected %q", decoded.TransferID, c.TransferID)
	}
	if decoded.Sequence != c.Sequence {
		t.Errorf("Sequence: got %d, expected %d", decoded.Sequence, c.Sequence)
	}
	if decoded.TotalChunks != c.TotalChunks {
		t.Errorf("TotalChunks: got %d, expected %d", decoded.TotalChunks, c.TotalChunks)
	}
	if decoded.PathID != c.PathID {
		t.Errorf("PathID: got %q, expected %q", decoded.PathID, c.PathID)
	}
	if decoded.Checksum != c.Checksum {
		t.Errorf("Checksum mismatch after round trip")
	}
	if decoded.FileName != c.FileName {
		t.Errorf("FileName: got %q, expected %q", decoded.FileName, c.FileName)
	}
	if decoded.MimeType != c.MimeType {
		t.Errorf("MimeType: got %q, expected %q", decoded.MimeType, c.MimeType)
	}
	if !bytes.Equal(decoded.Data, c.Data) {
		t.Errorf("Data mismatch after round trip")
	}
}

// TestChunk_EmptyData tests that a zero-byte chunk is valid
func TestChunk_EmptyData(t *testing.T) {
	c := validChunk()
	c.Sequence = 0
	c.TotalChunks = 1
	c.Data = nil

	decoded, err := DecodeChunk(c.Encode())
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}
	if len(decoded.Data) != 0 {
		t.Errorf("Expected empty data, got %d bytes", len(decoded.Data))
	}
}

// TestChunk_Malformed tests that invalid chunk records are rejected
func TestChunk_Malformed(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Chunk)
	}{
		{"missing transfer id", func(c *Chunk) { c.TransferID = "" }},
		{"zero chunk total", func(c *Chunk) { c.TotalChunks = 0; c.Sequence = 0 }},
		{"sequence past total", func(c *Chunk) { c.Sequence = 3 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validChunk()
			tc.mutate(&c)

			_, err := DecodeChunk(c.Encode())
			if !errors.Is(err, ErrMalformedChunk) {
				t.Errorf("Expected ErrMalformedChunk, got %v", err)
			}
		})
	}
}

// TestEnvelope_RoundTrip tests kind and payload survive the envelope
func TestEnvelope_RoundTrip(t *testing.T) {
	payload := validChunk().Encode()

	kind, decoded, err := DecodeEnvelope(EncodeEnvelope(KindChunk, payload))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if kind != KindChunk {
		t.Errorf("Kind: got %v, expected %v", kind, KindChunk)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("Payload mismatch after round trip")
	}
}

// TestEnvelope_UnknownKind tests that an unrecognized kind decodes
// without error; the receiver decides to drop it
func TestEnvelope_UnknownKind(t *testing.T) {
	kind, _, err := DecodeEnvelope(EncodeEnvelope(Kind(42), []byte("whatever")))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if kind != Kind(42) {
		t.Errorf("Kind: got %v, expected 42", kind)
	}
}

// TestEnvelope_Truncated tests that unparseable envelopes error cleanly
func TestEnvelope_Truncated(t *testing.T) {
	if _, _, err := DecodeEnvelope([]byte{0xFF}); !errors.Is(err, ErrTruncatedEnvelope) {
		t.Errorf("Expected ErrTruncatedEnvelope, got %v", err)
	}
	if _, _, err := DecodeEnvelope(nil); !errors.Is(err, ErrTruncatedEnvelope) {
		t.Errorf("Expected ErrTruncatedEnvelope for empty input, got %v", err)
	}
}
