package mesh

// Stats is a read-only view of coordinator state for UI consumption
// (distance/speed/relay-hop indicators)
type Stats struct {
	// LiveNodes is the number of peers currently in the routing table
	LiveNodes int `json:"live_nodes"`

	// ActivePaths is how many forwarding paths a transfer started now
	// would be spread across: min(MaxPaths, LiveNodes)
	ActivePaths int `json:"active_paths"`

	// InboundTransfers is the number of in-flight reassemblies
	InboundTransfers int `json:"inbound_transfers"`

	// OutboundTransfers is the number of sends dispatched since start
	OutboundTransfers int `json:"outbound_transfers"`

	// OutboundInFlight is the number of sends still tracked in the
	// outbound ledger: dispatched within the last reassembly timeout
	// and not cancelled
	OutboundInFlight int `json:"outbound_in_flight"`

	// CoverageMultiplier estimates reach relative to a lone device:
	// every live relay extends coverage
	CoverageMultiplier float64 `json:"coverage_multiplier"`

	// SpeedMultiplier estimates throughput relative to a single path:
	// chunks are spread round-robin across ActivePaths
	SpeedMultiplier float64 `json:"speed_multiplier"`
}
