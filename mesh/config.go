package mesh

import "time"

// Defaults for every tuning knob. Stated effects:
// discovery latency vs radio overhead (heartbeat), topology staleness
// tolerance (node timeout), per-chunk overhead vs radio packet limits
// (chunk size), parallelism vs radio contention (max paths), memory
// retention of incomplete transfers (reassembly timeout and cap).
const (
	DefaultHeartbeatInterval      = 2 * time.Second
	DefaultNodeTimeout            = 5 * time.Second
	DefaultEvictionInterval       = 5 * time.Second
	DefaultChunkSize              = 100_000
	DefaultMaxPaths               = 10
	DefaultReassemblyTimeout      = 30 * time.Second
	DefaultMaxConcurrentTransfers = 32

	// Defaults for the fields announced in our own heartbeat
	DefaultBatteryLevel   = 100
	DefaultSignalStrength = -50 // dBm, close range
)

// Config controls one relay coordinator
type Config struct {
	// ChannelID scopes the mesh: heartbeats from other channels are invisible
	ChannelID string

	// DisplayName is announced in our heartbeat
	DisplayName string

	// HeartbeatInterval is the broadcast cadence. Default 2s.
	HeartbeatInterval time.Duration

	// NodeTimeout evicts a node absent from heartbeats this long. Default 5s.
	NodeTimeout time.Duration

	// EvictionInterval is the cadence of the stale-node sweep,
	// independent of the heartbeat timer. Default 5s.
	EvictionInterval time.Duration

	// ChunkSize bounds each outbound chunk in bytes. Default 100000.
	ChunkSize int

	// MaxPaths caps how many forwarding paths a transfer is spread
	// across. Default 10.
	MaxPaths int

	// ReassemblyTimeout evicts an incomplete inbound transfer after this
	// much inactivity-free lifetime. The sweep runs every
	// ReassemblyTimeout/2. Default 30s.
	ReassemblyTimeout time.Duration

	// MaxConcurrentTransfers caps in-flight inbound transfers; new
	// transfer ids past the cap are rejected at admission. Default 32.
	MaxConcurrentTransfers int
}

// DefaultConfig returns a config with every knob at its default
func DefaultConfig(channelID, displayName string) Config {
	return Config{
		ChannelID:              channelID,
		DisplayName:            displayName,
		HeartbeatInterval:      DefaultHeartbeatInterval,
		NodeTimeout:            DefaultNodeTimeout,
		EvictionInterval:       DefaultEvictionInterval,
		ChunkSize:              DefaultChunkSize,
		MaxPaths:               DefaultMaxPaths,
		ReassemblyTimeout:      DefaultReassemblyTimeout,
		MaxConcurrentTransfers: DefaultMaxConcurrentTransfers,
	}
}

// withDefaults fills zero-valued knobs so a partially filled Config
// behaves sanely
func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = DefaultNodeTimeout
	}
	if c.EvictionInterval <= 0 {
		c.EvictionInterval = DefaultEvictionInterval
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxPaths <= 0 {
		c.MaxPaths = DefaultMaxPaths
	}
	if c.ReassemblyTimeout <= 0 {
		c.ReassemblyTimeout = DefaultReassemblyTimeout
	}
	if c.MaxConcurrentTransfers <= 0 {
		c.MaxConcurrentTransfers = DefaultMaxConcurrentTransfers
	}
	return c
}
