// Package wire implements the radio wire format: a compact tagged
// envelope carrying either a heartbeat or a payload chunk. Records are
// encoded as protobuf wire data (varint / length-delimited fields)
// directly via protowire, so they stay small enough for short-range
// radio packet limits.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Kind is the envelope type discriminator
type Kind uint8

const (
	KindUnknown   Kind = 0
	KindHeartbeat Kind = 1
	KindChunk     Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindChunk:
		return "chunk"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

var (
	// ErrMalformedHeartbeat is returned when a heartbeat record is missing
	// required fields or carries out-of-range values. Dropped and logged by
	// the receiver, never fatal.
	ErrMalformedHeartbeat = errors.New("malformed heartbeat")

	// ErrMalformedChunk is returned when a chunk record cannot be decoded
	// or fails validation. Dropped and logged, never fatal.
	ErrMalformedChunk = errors.New("malformed chunk")

	// ErrTruncatedEnvelope is returned when envelope bytes cannot be parsed
	ErrTruncatedEnvelope = errors.New("truncated envelope")

	// ErrUnknownEnvelopeType is reported when an envelope carries a kind
	// the receiver does not recognize
	ErrUnknownEnvelopeType = errors.New("unknown envelope type")
)

// Envelope field numbers
const (
	envFieldKind    = 1
	envFieldPayload = 2
)

// EncodeEnvelope wraps a kind-specific record in the wire envelope
func EncodeEnvelope(kind Kind, payload []byte) []byte {
	buf := protowire.AppendTag(nil, envFieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(kind))
	buf = protowire.AppendTag(buf, envFieldPayload, protowire.BytesType)
	buf = protowire.AppendBytes(buf, payload)
	return buf
}

// DecodeEnvelope splits envelope bytes into the kind discriminator and
// the kind-specific payload. An unrecognized kind is not an error here;
// the receiver decides what to do with it (drop and log).
func DecodeEnvelope(data []byte) (Kind, []byte, error) {
	var kind Kind
	var payload []byte

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return KindUnknown, nil, fmt.Errorf("%w: bad field tag", ErrTruncatedEnvelope)
		}
		data = data[n:]

		switch num {
		case envFieldKind:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return KindUnknown, nil, fmt.Errorf("%w: bad kind", ErrTruncatedEnvelope)
			}
			kind = Kind(v)
			data = data[n:]
		case envFieldPayload:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return KindUnknown, nil, fmt.Errorf("%w: bad payload", ErrTruncatedEnvelope)
			}
			payload = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return KindUnknown, nil, fmt.Errorf("%w: bad field %d", ErrTruncatedEnvelope, num)
			}
			data = data[n:]
		}
	}

	if kind == KindUnknown {
		return KindUnknown, nil, fmt.Errorf("%w: missing kind field", ErrTruncatedEnvelope)
	}
	return kind, payload, nil
}
