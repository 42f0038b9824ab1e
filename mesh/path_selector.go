package mesh

import (
	"sort"
	"time"
)

// Relays closer than this many hops are preferred regardless of score
const preferredHopLimit = 3

// Nominal per-hop forwarding latency, used only for the informational
// latency estimate on a Path
const perHopLatency = 40 * time.Millisecond

// Path is a candidate forwarding route derived from a routing table
// snapshot. Paths are views, recomputed on demand, never persisted.
// Current scope is single-hop: the radio layer performs its own
// multi-hop delivery beneath this layer, so each relay is an
// independent forwarding path.
type Path struct {
	ID                string // relay peer id for single-hop paths
	Nodes             []Node
	Score             float64
	BandwidthEstimate float64 // bottleneck: minimum across member nodes
	EstimatedLatency  time.Duration
}

// PathSelector derives ranked forwarding paths from the routing table
type PathSelector struct {
	table *RoutingTable
}

// NewPathSelector creates a selector over the given routing table
func NewPathSelector(table *RoutingTable) *PathSelector {
	return &PathSelector{table: table}
}

// SelectTopPaths returns up to k forwarding paths, best first.
// Nodes within the preferred hop range rank ahead of farther nodes;
// within each group ranking is by descending score, ties broken by
// lowest hop count then peer id so results are reproducible. An empty
// table yields an empty slice, never an error: callers treat empty as
// "no path available".
func (ps *PathSelector) SelectTopPaths(k int) []Path {
	nodes := ps.table.Snapshot()
	if len(nodes) == 0 || k <= 0 {
		return nil
	}
	if k > len(nodes) {
		k = len(nodes)
	}

	scores := scoreNodes(nodes)

	var preferred, fallback []Node
	for _, n := range nodes {
		if n.HopCount < preferredHopLimit {
			preferred = append(preferred, n)
		} else {
			fallback = append(fallback, n)
		}
	}

	rank := func(group []Node) {
		sort.Slice(group, func(i, j int) bool {
			si, sj := scores[group[i].PeerID], scores[group[j].PeerID]
			if si != sj {
				return si > sj
			}
			if group[i].HopCount != group[j].HopCount {
				return group[i].HopCount < group[j].HopCount
			}
			return group[i].PeerID < group[j].PeerID
		})
	}
	rank(preferred)
	rank(fallback)

	ranked := append(preferred, fallback...)
	paths := make([]Path, 0, k)
	for _, n := range ranked[:k] {
		paths = append(paths, Path{
			ID:                n.PeerID,
			Nodes:             []Node{n},
			Score:             scores[n.PeerID],
			BandwidthEstimate: n.BandwidthEstimate,
			EstimatedLatency:  time.Duration(n.HopCount+1) * perHopLatency,
		})
	}
	return paths
}
