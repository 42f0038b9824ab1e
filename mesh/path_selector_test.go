package mesh

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/user/meshrelay/wire"
)

// populateTable fills a routing table with heartbeats whose signal,
// battery and hop values produce a known score ordering
func populateTable(t *testing.T, rt *RoutingTable, heartbeats ...wire.Heartbeat) {
	t.Helper()
	for _, hb := range heartbeats {
		if !rt.Upsert(hb) {
			t.Fatalf("Upsert of %s did not apply", hb.PeerID)
		}
	}
}

func gradedHeartbeat(peerID string, rssi, battery, hop int) wire.Heartbeat {
	return wire.Heartbeat{
		PeerID:         peerID,
		ChannelID:      testChannel,
		DisplayName:    peerID,
		HopCount:       hop,
		BatteryLevel:   battery,
		SignalStrength: rssi,
		Timestamp:      time.UnixMilli(1700000000000),
	}
}

// TestPathSelector_EmptyTable tests that an empty table yields an empty
// slice, never an error
func TestPathSelector_EmptyTable(t *testing.T) {
	rt := NewRoutingTable("local-peer", testChannel, clock.NewMock())
	ps := NewPathSelector(rt)

	if paths := ps.SelectTopPaths(5); len(paths) != 0 {
		t.Errorf("Expected no paths from empty table, got %d", len(paths))
	}
}

// TestPathSelector_FewerNodesThanRequested tests k = min(requested, live)
func TestPathSelector_FewerNodesThanRequested(t *testing.T) {
	rt := NewRoutingTable("local-peer", testChannel, clock.NewMock())
	populateTable(t, rt,
		gradedHeartbeat("peer-a", -50, 90, 0),
		gradedHeartbeat("peer-b", -70, 60, 1),
	)

	paths := NewPathSelector(rt).SelectTopPaths(10)
	if len(paths) != 2 {
		t.Errorf("Expected 2 paths for 2 live nodes, got %d", len(paths))
	}
}

// TestPathSelector_RankedByScore tests that the best-scored nodes come
// back first: three nodes graded high/mid/low, top 2 selected in order
func TestPathSelector_RankedByScore(t *testing.T) {
	rt := NewRoutingTable("local-peer", testChannel, clock.NewMock())
	populateTable(t, rt,
		gradedHeartbeat("peer-low", -90, 20, 2),
		gradedHeartbeat("peer-high", -40, 95, 0),
		gradedHeartbeat("peer-mid", -65, 60, 1),
	)

	paths := NewPathSelector(rt).SelectTopPaths(2)
	if len(paths) != 2 {
		t.Fatalf("Expected 2 paths, got %d", len(paths))
	}
	if paths[0].ID != "peer-high" || paths[1].ID != "peer-mid" {
		t.Errorf("Expected ranking [peer-high, peer-mid], got [%s, %s]", paths[0].ID, paths[1].ID)
	}
	if paths[0].Score <= paths[1].Score {
		t.Errorf("Scores not descending: %f then %f", paths[0].Score, paths[1].Score)
	}
}

// TestPathSelector_NearNodesPreferred tests that a close relay outranks
// a better-scored but distant one
func TestPathSelector_NearNodesPreferred(t *testing.T) {
	rt := NewRoutingTable("local-peer", testChannel, clock.NewMock())
	populateTable(t, rt,
		gradedHeartbeat("peer-far", -40, 95, 4), // great score, 4 hops away
		gradedHeartbeat("peer-near", -80, 40, 1),
	)

	paths := NewPathSelector(rt).SelectTopPaths(2)
	if paths[0].ID != "peer-near" {
		t.Errorf("Expected near node first despite lower score, got %s", paths[0].ID)
	}
	if paths[1].ID != "peer-far" {
		t.Errorf("Expected far node second, got %s", paths[1].ID)
	}
}

// TestPathSelector_DeterministicTieBreak tests equal-score ordering by
// hop count, then peer id
func TestPathSelector_DeterministicTieBreak(t *testing.T) {
	rt := NewRoutingTable("local-peer", testChannel, clock.NewMock())
	// Identical signal/battery: every term normalizes to 1.0 for all
	populateTable(t, rt,
		gradedHeartbeat("peer-c", -60, 80, 1),
		gradedHeartbeat("peer-a", -60, 80, 1),
		gradedHeartbeat("peer-b", -60, 80, 0),
	)

	paths := NewPathSelector(rt).SelectTopPaths(3)
	got := []string{paths[0].ID, paths[1].ID, paths[2].ID}
	expected := []string{"peer-b", "peer-a", "peer-c"}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("Tie break order: got %v, expected %v", got, expected)
		}
	}
}

// TestPathSelector_SingleHopPathShape tests the Path view fields
func TestPathSelector_SingleHopPathShape(t *testing.T) {
	rt := NewRoutingTable("local-peer", testChannel, clock.NewMock())
	populateTable(t, rt, gradedHeartbeat("peer-a", -50, 90, 2))

	paths := NewPathSelector(rt).SelectTopPaths(1)
	if len(paths) != 1 {
		t.Fatalf("Expected 1 path, got %d", len(paths))
	}
	p := paths[0]
	if len(p.Nodes) != 1 || p.Nodes[0].PeerID != "peer-a" {
		t.Errorf("Expected single-hop path through peer-a, got %v", p.Nodes)
	}
	if p.BandwidthEstimate != p.Nodes[0].BandwidthEstimate {
		t.Errorf("Bottleneck bandwidth of a single-hop path must equal its node's estimate")
	}
	if p.EstimatedLatency != 3*perHopLatency {
		t.Errorf("EstimatedLatency: got %v, expected %v", p.EstimatedLatency, 3*perHopLatency)
	}
}
