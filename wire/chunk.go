package wire

import (
	"crypto/sha256"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ChecksumSize is the length of the SHA-256 digest carried by every chunk
const ChecksumSize = sha256.Size

// Chunk is one bounded slice of a multi-chunk transfer. The checksum of
// the full payload plus the file metadata are carried redundantly in
// every chunk so reassembly can verify completion no matter which chunk
// arrives last.
type Chunk struct {
	TransferID  string
	Sequence    int // 0-based
	TotalChunks int
	PathID      string // which forwarding path this chunk was dispatched over
	Checksum    [ChecksumSize]byte
	FileName    string
	MimeType    string
	Data        []byte
}

// Chunk field numbers
const (
	chFieldTransferID = 1
	chFieldSequence   = 2
	chFieldTotal      = 3
	chFieldPathID     = 4
	chFieldChecksum   = 5
	chFieldFileName   = 6
	chFieldMimeType   = 7
	chFieldData       = 8
)

// Encode serializes the chunk record
func (c Chunk) Encode() []byte {
	buf := protowire.AppendTag(nil, chFieldTransferID, protowire.BytesType)
	buf = protowire.AppendString(buf, c.TransferID)
	buf = protowire.AppendTag(buf, chFieldSequence, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.Sequence))
	buf = protowire.AppendTag(buf, chFieldTotal, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.TotalChunks))
	buf = protowire.AppendTag(buf, chFieldPathID, protowire.BytesType)
	buf = protowire.AppendString(buf, c.PathID)
	buf = protowire.AppendTag(buf, chFieldChecksum, protowire.BytesType)
	buf = protowire.AppendBytes(buf, c.Checksum[:])
	buf = protowire.AppendTag(buf, chFieldFileName, protowire.BytesType)
	buf = protowire.AppendString(buf, c.FileName)
	buf = protowire.AppendTag(buf, chFieldMimeType, protowire.BytesType)
	buf = protowire.AppendString(buf, c.MimeType)
	buf = protowire.AppendTag(buf, chFieldData, protowire.BytesType)
	buf = protowire.AppendBytes(buf, c.Data)
	return buf
}

// DecodeChunk parses and validates a chunk record.
// Returns ErrMalformedChunk on bad input; callers drop and log.
func DecodeChunk(data []byte) (Chunk, error) {
	var c Chunk
	var sawChecksum bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Chunk{}, fmt.Errorf("%w: bad field tag", ErrMalformedChunk)
		}
		data = data[n:]

		switch num {
		case chFieldTransferID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Chunk{}, fmt.Errorf("%w: bad transfer id", ErrMalformedChunk)
			}
			c.TransferID = v
			data = data[n:]
		case chFieldSequence:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Chunk{}, fmt.Errorf("%w: bad sequence number", ErrMalformedChunk)
			}
			c.Sequence = int(v)
			data = data[n:]
		case chFieldTotal:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Chunk{}, fmt.Errorf("%w: bad chunk total", ErrMalformedChunk)
			}
			c.TotalChunks = int(v)
			data = data[n:]
		case chFieldPathID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Chunk{}, fmt.Errorf("%w: bad path id", ErrMalformedChunk)
			}
			c.PathID = v
			data = data[n:]
		case chFieldChecksum:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Chunk{}, fmt.Errorf("%w: bad checksum", ErrMalformedChunk)
			}
			if len(v) != ChecksumSize {
				return Chunk{}, fmt.Errorf("%w: checksum length %d", ErrMalformedChunk, len(v))
			}
			copy(c.Checksum[:], v)
			sawChecksum = true
			data = data[n:]
		case chFieldFileName:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Chunk{}, fmt.Errorf("%w: bad file name", ErrMalformedChunk)
			}
			c.FileName = v
			data = data[n:]
		case chFieldMimeType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Chunk{}, fmt.Errorf("%w: bad mime type", ErrMalformedChunk)
			}
			c.MimeType = v
			data = data[n:]
		case chFieldData:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Chunk{}, fmt.Errorf("%w: bad chunk data", ErrMalformedChunk)
			}
			c.Data = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Chunk{}, fmt.Errorf("%w: bad field %d", ErrMalformedChunk, num)
			}
			data = data[n:]
		}
	}

	if c.TransferID == "" {
		return Chunk{}, fmt.Errorf("%w: missing transfer id", ErrMalformedChunk)
	}
	if c.TotalChunks < 1 {
		return Chunk{}, fmt.Errorf("%w: chunk total %d", ErrMalformedChunk, c.TotalChunks)
	}
	if c.Sequence < 0 || c.Sequence >= c.TotalChunks {
		return Chunk{}, fmt.Errorf("%w: sequence %d outside 0..%d", ErrMalformedChunk, c.Sequence, c.TotalChunks-1)
	}
	if !sawChecksum {
		return Chunk{}, fmt.Errorf("%w: missing checksum", ErrMalformedChunk)
	}
	return c, nil
}
