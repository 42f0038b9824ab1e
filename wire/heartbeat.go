package wire

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxHopCount bounds how many relay forwards a heartbeat may report.
// Anything past this is either a routing loop or a hostile sender.
const MaxHopCount = 64

// Heartbeat is the periodic presence announcement every node broadcasts
type Heartbeat struct {
	PeerID         string
	ChannelID      string
	DisplayName    string
	HopCount       int
	BatteryLevel   int // 0-100
	SignalStrength int // dBm, higher = stronger
	Timestamp      time.Time
}

// Heartbeat field numbers
const (
	hbFieldPeerID    = 1
	hbFieldChannelID = 2
	hbFieldName      = 3
	hbFieldHop       = 4
	hbFieldBattery   = 5
	hbFieldRSSI      = 6
	hbFieldTimestamp = 7
)

// Encode serializes the heartbeat record
func (h Heartbeat) Encode() []byte {
	buf := protowire.AppendTag(nil, hbFieldPeerID, protowire.BytesType)
	buf = protowire.AppendString(buf, h.PeerID)
	buf = protowire.AppendTag(buf, hbFieldChannelID, protowire.BytesType)
	buf = protowire.AppendString(buf, h.ChannelID)
	buf = protowire.AppendTag(buf, hbFieldName, protowire.BytesType)
	buf = protowire.AppendString(buf, h.DisplayName)
	buf = protowire.AppendTag(buf, hbFieldHop, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(h.HopCount))
	buf = protowire.AppendTag(buf, hbFieldBattery, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(h.BatteryLevel))
	buf = protowire.AppendTag(buf, hbFieldRSSI, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(h.SignalStrength)))
	buf = protowire.AppendTag(buf, hbFieldTimestamp, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(h.Timestamp.UnixMilli()))
	return buf
}

// DecodeHeartbeat parses and validates a heartbeat record.
// Returns ErrMalformedHeartbeat when required fields are absent or out of
// range; callers drop and log, they never crash on remote input.
func DecodeHeartbeat(data []byte) (Heartbeat, error) {
	var hb Heartbeat
	var sawTimestamp bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Heartbeat{}, fmt.Errorf("%w: bad field tag", ErrMalformedHeartbeat)
		}
		data = data[n:]

		switch num {
		case hbFieldPeerID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Heartbeat{}, fmt.Errorf("%w: bad peer id", ErrMalformedHeartbeat)
			}
			hb.PeerID = v
			data = data[n:]
		case hbFieldChannelID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Heartbeat{}, fmt.Errorf("%w: bad channel id", ErrMalformedHeartbeat)
			}
			hb.ChannelID = v
			data = data[n:]
		case hbFieldName:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Heartbeat{}, fmt.Errorf("%w: bad display name", ErrMalformedHeartbeat)
			}
			hb.DisplayName = v
			data = data[n:]
		case hbFieldHop:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Heartbeat{}, fmt.Errorf("%w: bad hop count", ErrMalformedHeartbeat)
			}
			hb.HopCount = int(v)
			data = data[n:]
		case hbFieldBattery:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Heartbeat{}, fmt.Errorf("%w: bad battery level", ErrMalformedHeartbeat)
			}
			hb.BatteryLevel = int(v)
			data = data[n:]
		case hbFieldRSSI:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Heartbeat{}, fmt.Errorf("%w: bad signal strength", ErrMalformedHeartbeat)
			}
			hb.SignalStrength = int(protowire.DecodeZigZag(v))
			data = data[n:]
		case hbFieldTimestamp:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Heartbeat{}, fmt.Errorf("%w: bad timestamp", ErrMalformedHeartbeat)
			}
			hb.Timestamp = time.UnixMilli(int64(v))
			sawTimestamp = true
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Heartbeat{}, fmt.Errorf("%w: bad field %d", ErrMalformedHeartbeat, num)
			}
			data = data[n:]
		}
	}

	if err := hb.validate(sawTimestamp); err != nil {
		return Heartbeat{}, err
	}
	return hb, nil
}

func (h Heartbeat) validate(sawTimestamp bool) error {
	if h.PeerID == "" {
		return fmt.Errorf("%w: missing peer id", ErrMalformedHeartbeat)
	}
	if h.ChannelID == "" {
		return fmt.Errorf("%w: missing channel id", ErrMalformedHeartbeat)
	}
	if h.BatteryLevel < 0 || h.BatteryLevel > 100 {
		return fmt.Errorf("%w: battery level %d out of range", ErrMalformedHeartbeat, h.BatteryLevel)
	}
	if h.HopCount < 0 || h.HopCount > MaxHopCount {
		return fmt.Errorf("%w: hop count %d out of range", ErrMalformedHeartbeat, h.HopCount)
	}
	if !sawTimestamp {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedHeartbeat)
	}
	return nil
}
