package mesh

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/user/meshrelay/logger"
	"github.com/user/meshrelay/wire"
)

// Link rate bounds used to derive a bandwidth estimate from signal
// strength. The estimate is opaque and only used for relative ranking.
const (
	minLinkRate = 4_000.0   // bytes/sec at the weakest usable signal
	maxLinkRate = 125_000.0 // bytes/sec at the strongest signal

	// EWMA weight for new bandwidth observations
	bandwidthAlpha = 0.3
)

// Relative score weights (signal / battery / bandwidth)
const (
	signalWeight    = 0.5
	batteryWeight   = 0.3
	bandwidthWeight = 0.2
)

// tableEntry pairs the public Node view with the newest heartbeat
// timestamp we have applied, so late-arriving older heartbeats never
// roll the node's fields backward.
type tableEntry struct {
	node          Node
	lastHeartbeat time.Time
}

// RoutingTable tracks every live peer on the local channel, keyed by
// peer id. Writers go through Upsert and EvictStale; readers get
// copy-on-read snapshots so a concurrent eviction sweep never
// invalidates a path computation mid-flight.
type RoutingTable struct {
	mu        sync.RWMutex
	channelID string
	entries   map[string]*tableEntry

	clk       clock.Clock
	logPrefix string
}

// NewRoutingTable creates a routing table bound to the local channel
func NewRoutingTable(localPeerID, channelID string, clk clock.Clock) *RoutingTable {
	if clk == nil {
		clk = clock.New()
	}
	return &RoutingTable{
		channelID: channelID,
		entries:   make(map[string]*tableEntry),
		clk:       clk,
		logPrefix: fmt.Sprintf("%s TABLE", shortID(localPeerID)),
	}
}

// Upsert inserts or refreshes a node from a received heartbeat.
// Heartbeats for other channels are silently ignored; nodes outside the
// channel are invisible. A heartbeat older than the one already applied
// for the same peer is also ignored, so arrival order cannot roll hop,
// battery or signal fields backward. Returns true when the table changed.
func (rt *RoutingTable) Upsert(hb wire.Heartbeat) bool {
	if hb.ChannelID != rt.channelID {
		return false
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := rt.clk.Now()
	nominal := nominalBandwidth(hb.SignalStrength)

	entry, exists := rt.entries[hb.PeerID]
	if !exists {
		rt.entries[hb.PeerID] = &tableEntry{
			node: Node{
				PeerID:            hb.PeerID,
				ChannelID:         hb.ChannelID,
				DisplayName:       hb.DisplayName,
				HopCount:          hb.HopCount,
				BatteryLevel:      hb.BatteryLevel,
				SignalStrength:    hb.SignalStrength,
				BandwidthEstimate: nominal,
				LastSeenAt:        now,
			},
			lastHeartbeat: hb.Timestamp,
		}
		logger.Debug(rt.logPrefix, "📡 New node in mesh: %s (%s, hop %d, rssi %d)",
			shortID(hb.PeerID), hb.DisplayName, hb.HopCount, hb.SignalStrength)
		return true
	}

	if hb.Timestamp.Before(entry.lastHeartbeat) {
		logger.Trace(rt.logPrefix, "Stale heartbeat from %s ignored (ts %v < %v)",
			shortID(hb.PeerID), hb.Timestamp.UnixMilli(), entry.lastHeartbeat.UnixMilli())
		return false
	}

	entry.node.DisplayName = hb.DisplayName
	entry.node.HopCount = hb.HopCount
	entry.node.BatteryLevel = hb.BatteryLevel
	entry.node.SignalStrength = hb.SignalStrength
	entry.node.BandwidthEstimate = (1-bandwidthAlpha)*entry.node.BandwidthEstimate + bandwidthAlpha*nominal
	entry.node.LastSeenAt = now
	entry.lastHeartbeat = hb.Timestamp
	return true
}

// EvictStale removes every node not heard from within timeout.
// Returns the evicted peer ids.
func (rt *RoutingTable) EvictStale(timeout time.Duration) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := rt.clk.Now()
	var evicted []string
	for peerID, entry := range rt.entries {
		if now.Sub(entry.node.LastSeenAt) >= timeout {
			delete(rt.entries, peerID)
			evicted = append(evicted, peerID)
		}
	}

	if len(evicted) > 0 {
		logger.Debug(rt.logPrefix, "🧹 Evicted %d stale node(s): %v", len(evicted), evicted)
	}
	return evicted
}

// Snapshot returns a read-only copy of all live nodes, ordered by peer
// id for deterministic consumers
func (rt *RoutingTable) Snapshot() []Node {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	nodes := make([]Node, 0, len(rt.entries))
	for _, entry := range rt.entries {
		nodes = append(nodes, entry.node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].PeerID < nodes[j].PeerID })
	return nodes
}

// LiveCount returns the number of live nodes
func (rt *RoutingTable) LiveCount() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.entries)
}

// Score computes the relay score of one live node against the current
// population. Relative, not absolute: recomputed every time it is asked.
func (rt *RoutingTable) Score(peerID string) (float64, bool) {
	scores := scoreNodes(rt.Snapshot())
	s, ok := scores[peerID]
	return s, ok
}

// scoreNodes computes min-max normalized relay scores for a snapshot.
// Each term is normalized to [0,1] against the population; when the
// population has no spread in a term (including a single node) that
// term is defined as 1.0.
func scoreNodes(nodes []Node) map[string]float64 {
	scores := make(map[string]float64, len(nodes))
	if len(nodes) == 0 {
		return scores
	}

	minSig, maxSig := float64(nodes[0].SignalStrength), float64(nodes[0].SignalStrength)
	minBat, maxBat := float64(nodes[0].BatteryLevel), float64(nodes[0].BatteryLevel)
	minBW, maxBW := nodes[0].BandwidthEstimate, nodes[0].BandwidthEstimate
	for _, n := range nodes[1:] {
		minSig = min(minSig, float64(n.SignalStrength))
		maxSig = max(maxSig, float64(n.SignalStrength))
		minBat = min(minBat, float64(n.BatteryLevel))
		maxBat = max(maxBat, float64(n.BatteryLevel))
		minBW = min(minBW, n.BandwidthEstimate)
		maxBW = max(maxBW, n.BandwidthEstimate)
	}

	normalize := func(v, lo, hi float64) float64 {
		if hi == lo {
			return 1.0
		}
		return (v - lo) / (hi - lo)
	}

	for _, n := range nodes {
		scores[n.PeerID] = signalWeight*normalize(float64(n.SignalStrength), minSig, maxSig) +
			batteryWeight*normalize(float64(n.BatteryLevel), minBat, maxBat) +
			bandwidthWeight*normalize(n.BandwidthEstimate, minBW, maxBW)
	}
	return scores
}

// nominalBandwidth maps signal strength to a nominal link rate.
// Clamped to the usable BLE-ish range of -100..-20 dBm.
func nominalBandwidth(rssi int) float64 {
	r := float64(rssi)
	if r < -100 {
		r = -100
	} else if r > -20 {
		r = -20
	}
	frac := (r + 100) / 80
	return minLinkRate + frac*(maxLinkRate-minLinkRate)
}
