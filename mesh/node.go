package mesh

import "time"

// Node is what the routing table knows about a single peer in the mesh.
// Created on first heartbeat receipt, refreshed on every later heartbeat
// from the same peer, destroyed by the eviction sweep once stale.
type Node struct {
	PeerID            string    `json:"peer_id"`
	ChannelID         string    `json:"channel_id"`
	DisplayName       string    `json:"display_name"`
	HopCount          int       `json:"hop_count"`
	BatteryLevel      int       `json:"battery_level"`      // 0-100
	SignalStrength    int       `json:"signal_strength"`    // dBm, higher = stronger
	BandwidthEstimate float64   `json:"bandwidth_estimate"` // bytes/sec, smoothed
	LastSeenAt        time.Time `json:"last_seen_at"`       // local receive time
}
