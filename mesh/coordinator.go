package mesh

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/user/meshrelay/logger"
	"github.com/user/meshrelay/wire"
)

// outboundTransfer is the coordinator's ledger entry for one dispatched send
type outboundTransfer struct {
	fileName    string
	totalChunks int
	pathIDs     []string
	startedAt   time.Time
}

// OutboundStatus is a read-only view of one in-flight outbound send
type OutboundStatus struct {
	TransferID  string    `json:"transfer_id"`
	FileName    string    `json:"file_name"`
	TotalChunks int       `json:"total_chunks"`
	PathIDs     []string  `json:"path_ids"`
	StartedAt   time.Time `json:"started_at"`
}

// Coordinator orchestrates the relay core: it owns the heartbeat
// broadcast, the stale-node eviction sweep and the reassembly timeout
// sweep, dispatches outgoing chunks across selected paths, and routes
// inbound envelopes to the routing table or the reassembly buffer.
// Nothing here is fatal to the process; the worst outcome is a failed
// individual transfer.
type Coordinator struct {
	cfg    Config
	peerID string

	transport Transport
	clk       clock.Clock

	table      *RoutingTable
	selector   *PathSelector
	reassembly *ReassemblyBuffer
	metrics    *Metrics

	mu            sync.Mutex
	localBattery  int
	localSignal   int
	outbound      map[string]*outboundTransfer
	outboundCount int
	started       bool
	closed        bool

	onFileReceived   func(data []byte, fileName, mimeType string)
	onTransferFailed func(transferID string, reason FailureReason)

	stopCh chan struct{}
	wg     sync.WaitGroup

	logPrefix string
}

// NewCoordinator creates a coordinator over the given transport
func NewCoordinator(cfg Config, transport Transport) *Coordinator {
	return NewCoordinatorWithClock(cfg, transport, clock.New())
}

// NewCoordinatorWithClock creates a coordinator with an injected clock,
// so eviction and timeout behavior is testable without real sleeps
func NewCoordinatorWithClock(cfg Config, transport Transport, clk clock.Clock) *Coordinator {
	cfg = cfg.withDefaults()
	peerID := uuid.New().String()

	c := &Coordinator{
		cfg:          cfg,
		peerID:       peerID,
		transport:    transport,
		clk:          clk,
		table:        NewRoutingTable(peerID, cfg.ChannelID, clk),
		localBattery: DefaultBatteryLevel,
		localSignal:  DefaultSignalStrength,
		outbound:     make(map[string]*outboundTransfer),
		stopCh:       make(chan struct{}),
		logPrefix:    fmt.Sprintf("%s RELAY", shortID(peerID)),
	}
	c.selector = NewPathSelector(c.table)
	c.reassembly = NewReassemblyBuffer(peerID, cfg.ReassemblyTimeout, cfg.MaxConcurrentTransfers, clk)
	c.reassembly.OnCompleted(c.handleCompleted)
	c.reassembly.OnFailed(c.handleFailed)
	return c
}

// PeerID returns the local peer id announced in heartbeats
func (c *Coordinator) PeerID() string {
	return c.peerID
}

// OnFileReceived registers the callback invoked with every completed,
// verified inbound payload. Register before Start.
func (c *Coordinator) OnFileReceived(fn func(data []byte, fileName, mimeType string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFileReceived = fn
}

// OnTransferFailed registers the callback invoked when a transfer is
// declared failed. Register before Start.
func (c *Coordinator) OnTransferFailed(fn func(transferID string, reason FailureReason)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransferFailed = fn
}

// RegisterMetrics attaches Prometheus metrics. Call before Start.
func (c *Coordinator) RegisterMetrics(m *Metrics) {
	c.metrics = m
}

// SetBatteryLevel updates the battery level announced in our heartbeat
func (c *Coordinator) SetBatteryLevel(level int) {
	if level < 0 {
		level = 0
	} else if level > 100 {
		level = 100
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localBattery = level
}

// SetSignalStrength updates the signal strength announced in our heartbeat
func (c *Coordinator) SetSignalStrength(rssi int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localSignal = rssi
}

// Start wires the transport receive path and launches the periodic
// loops: heartbeat broadcast, stale-node eviction and reassembly sweep
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.transport.SetReceiveHandler(c.HandleInbound)

	c.wg.Add(3)
	go c.heartbeatLoop()
	go c.evictionLoop()
	go c.sweepLoop()

	logger.Info(c.logPrefix, "🚀 Relay coordinator started (channel %s, name %q)",
		c.cfg.ChannelID, c.cfg.DisplayName)
}

// Close stops the periodic loops and closes the transport when it
// supports closing. Safe to call more than once.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	if started {
		close(c.stopCh)
		c.wg.Wait()
	}

	var err error
	if closer, ok := c.transport.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	logger.Info(c.logPrefix, "Relay coordinator stopped")
	return err
}

// SendFile chunks a payload and dispatches it round-robin across the
// best available forwarding paths. Returns the transfer id, or
// ErrNoPathAvailable when no relay is live, or
// ErrTooManyConcurrentTransfers when the outbound ledger is at capacity.
// In both failure cases the transfer never starts.
func (c *Coordinator) SendFile(data []byte, fileName, mimeType string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrCoordinatorClosed
	}
	if len(c.outbound) >= c.cfg.MaxConcurrentTransfers {
		c.mu.Unlock()
		logger.Warn(c.logPrefix, "⚠️  Cannot send %s: %d outbound transfers already in flight",
			fileName, c.cfg.MaxConcurrentTransfers)
		return "", fmt.Errorf("outbound %s: %w", fileName, ErrTooManyConcurrentTransfers)
	}
	c.mu.Unlock()

	k := c.cfg.MaxPaths
	if live := c.table.LiveCount(); live < k {
		k = live
	}
	paths := c.selector.SelectTopPaths(k)
	if len(paths) == 0 {
		logger.Warn(c.logPrefix, "⚠️  Cannot send %s: no live relay paths", fileName)
		return "", ErrNoPathAvailable
	}

	checksum := sha256.Sum256(data)
	transferID := NewTransferID()
	chunks := ChunkPayload(transferID, data, c.cfg.ChunkSize, checksum, fileName, mimeType)

	pathIDs := make([]string, len(paths))
	for i, p := range paths {
		pathIDs[i] = p.ID
	}

	// Chunk i goes over path i mod k, so load spreads evenly regardless
	// of chunk count
	sent := 0
	for i := range chunks {
		chunks[i].PathID = paths[i%len(paths)].ID
		env := wire.EncodeEnvelope(wire.KindChunk, chunks[i].Encode())
		if err := c.transport.Broadcast(env); err != nil {
			logger.Warn(c.logPrefix, "⚠️  Failed to dispatch chunk %d/%d of %s: %v",
				i+1, len(chunks), shortID(transferID), err)
			continue
		}
		sent++
		if c.metrics != nil {
			c.metrics.ChunksSent.Inc()
		}
	}

	c.mu.Lock()
	c.outbound[transferID] = &outboundTransfer{
		fileName:    fileName,
		totalChunks: len(chunks),
		pathIDs:     pathIDs,
		startedAt:   c.clk.Now(),
	}
	c.outboundCount++
	c.mu.Unlock()

	logger.Info(c.logPrefix, "📤 Sent %s as transfer %s: %d chunk(s) over %d path(s), %d dispatched",
		fileName, shortID(transferID), len(chunks), len(paths), sent)
	return transferID, nil
}

// CancelTransfer aborts a transfer in either direction, surfacing one
// terminal ReasonCancelled event when a transfer was actually removed.
// Late-arriving chunks for a cancelled inbound transfer are dropped
// silently.
func (c *Coordinator) CancelTransfer(transferID string) {
	cancelled := c.reassembly.Cancel(transferID)

	c.mu.Lock()
	_, hadOutbound := c.outbound[transferID]
	delete(c.outbound, transferID)
	c.mu.Unlock()

	if cancelled || hadOutbound {
		logger.Debug(c.logPrefix, "✂️  Transfer %s cancelled", shortID(transferID))
		c.handleFailed(transferID, ReasonCancelled)
	}
}

// ConnectionEstablished tells the coordinator the radio just linked a
// new peer; we announce ourselves immediately instead of waiting for
// the next heartbeat tick
func (c *Coordinator) ConnectionEstablished(peerID string) {
	logger.Debug(c.logPrefix, "🔗 Connection established with %s, sending immediate heartbeat", shortID(peerID))
	c.broadcastHeartbeat()
}

// Stats returns a read-only snapshot for UI consumption
func (c *Coordinator) Stats() Stats {
	live := c.table.LiveCount()
	active := c.cfg.MaxPaths
	if live < active {
		active = live
	}

	speed := float64(active)
	if speed < 1 {
		speed = 1
	}

	c.mu.Lock()
	outbound := c.outboundCount
	inFlight := len(c.outbound)
	c.mu.Unlock()

	return Stats{
		LiveNodes:          live,
		ActivePaths:        active,
		InboundTransfers:   c.reassembly.ActiveCount(),
		OutboundTransfers:  outbound,
		OutboundInFlight:   inFlight,
		CoverageMultiplier: float64(live + 1),
		SpeedMultiplier:    speed,
	}
}

// RoutingSnapshot exposes the current routing table view
func (c *Coordinator) RoutingSnapshot() []Node {
	return c.table.Snapshot()
}

// OutboundSnapshot returns a read-only copy of the in-flight outbound
// ledger, ordered by transfer id
func (c *Coordinator) OutboundSnapshot() []OutboundStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]OutboundStatus, 0, len(c.outbound))
	for transferID, tr := range c.outbound {
		out = append(out, OutboundStatus{
			TransferID:  transferID,
			FileName:    tr.fileName,
			TotalChunks: tr.totalChunks,
			PathIDs:     append([]string(nil), tr.pathIDs...),
			StartedAt:   tr.startedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransferID < out[j].TransferID })
	return out
}

// HandleInbound demultiplexes one inbound envelope. Malformed or
// unrecognized input is dropped and logged, never fatal.
func (c *Coordinator) HandleInbound(envelope []byte, fromPeerID string) {
	kind, payload, err := wire.DecodeEnvelope(envelope)
	if err != nil {
		logger.Warn(c.logPrefix, "⚠️  Dropping envelope from %s: %v", shortID(fromPeerID), err)
		c.countDropped()
		return
	}

	switch kind {
	case wire.KindHeartbeat:
		c.handleHeartbeat(payload, fromPeerID)
	case wire.KindChunk:
		c.handleChunk(payload, fromPeerID)
	default:
		logger.Warn(c.logPrefix, "⚠️  Dropping envelope from %s: %v (%s)",
			shortID(fromPeerID), wire.ErrUnknownEnvelopeType, kind)
		c.countDropped()
	}
}

func (c *Coordinator) handleHeartbeat(payload []byte, fromPeerID string) {
	hb, err := wire.DecodeHeartbeat(payload)
	if err != nil {
		logger.Warn(c.logPrefix, "⚠️  Dropping heartbeat from %s: %v", shortID(fromPeerID), err)
		c.countDropped()
		return
	}
	if hb.PeerID == c.peerID {
		return // our own heartbeat echoed back by a relay
	}

	c.table.Upsert(hb)
	if c.metrics != nil {
		c.metrics.LiveNodes.Set(float64(c.table.LiveCount()))
	}
}

func (c *Coordinator) handleChunk(payload []byte, fromPeerID string) {
	ch, err := wire.DecodeChunk(payload)
	if err != nil {
		logger.Warn(c.logPrefix, "⚠️  Dropping chunk from %s: %v", shortID(fromPeerID), err)
		c.countDropped()
		return
	}

	if c.metrics != nil {
		c.metrics.ChunksReceived.Inc()
	}

	if err := c.reassembly.ReceiveChunk(ch); err != nil {
		if errors.Is(err, ErrTooManyConcurrentTransfers) {
			c.handleFailed(ch.TransferID, ReasonTooManyTransfers)
			return
		}
		logger.Warn(c.logPrefix, "⚠️  Chunk %d of %s not accepted: %v",
			ch.Sequence, shortID(ch.TransferID), err)
	}
	if c.metrics != nil {
		c.metrics.InboundTransfers.Set(float64(c.reassembly.ActiveCount()))
	}
}

// handleCompleted runs outside the reassembly lock
func (c *Coordinator) handleCompleted(ct CompletedTransfer) {
	if c.metrics != nil {
		c.metrics.TransfersCompleted.Inc()
		c.metrics.InboundTransfers.Set(float64(c.reassembly.ActiveCount()))
	}

	c.mu.Lock()
	fn := c.onFileReceived
	c.mu.Unlock()
	if fn != nil {
		fn(ct.Data, ct.FileName, ct.MimeType)
	}
}

// handleFailed runs outside the reassembly lock
func (c *Coordinator) handleFailed(transferID string, reason FailureReason) {
	if c.metrics != nil {
		c.metrics.TransfersFailed.WithLabelValues(string(reason)).Inc()
		c.metrics.InboundTransfers.Set(float64(c.reassembly.ActiveCount()))
	}

	c.mu.Lock()
	fn := c.onTransferFailed
	c.mu.Unlock()
	if fn != nil {
		fn(transferID, reason)
	}
}

func (c *Coordinator) countDropped() {
	if c.metrics != nil {
		c.metrics.EnvelopesDropped.Inc()
	}
}

func (c *Coordinator) broadcastHeartbeat() {
	c.mu.Lock()
	battery := c.localBattery
	signal := c.localSignal
	c.mu.Unlock()

	hb := wire.Heartbeat{
		PeerID:         c.peerID,
		ChannelID:      c.cfg.ChannelID,
		DisplayName:    c.cfg.DisplayName,
		HopCount:       0,
		BatteryLevel:   battery,
		SignalStrength: signal,
		Timestamp:      c.clk.Now(),
	}
	env := wire.EncodeEnvelope(wire.KindHeartbeat, hb.Encode())
	if err := c.transport.Broadcast(env); err != nil {
		logger.Warn(c.logPrefix, "⚠️  Failed to broadcast heartbeat: %v", err)
		return
	}
	if c.metrics != nil {
		c.metrics.HeartbeatsSent.Inc()
	}
	logger.Trace(c.logPrefix, "Heartbeat broadcast (battery %d, rssi %d)", battery, signal)
}

func (c *Coordinator) heartbeatLoop() {
	defer c.wg.Done()
	ticker := c.clk.Ticker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.broadcastHeartbeat()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) evictionLoop() {
	defer c.wg.Done()
	ticker := c.clk.Ticker(c.cfg.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			evicted := c.table.EvictStale(c.cfg.NodeTimeout)
			if len(evicted) > 0 && c.metrics != nil {
				c.metrics.LiveNodes.Set(float64(c.table.LiveCount()))
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) sweepLoop() {
	defer c.wg.Done()
	ticker := c.clk.Ticker(c.cfg.ReassemblyTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.reassembly.SweepExpired()
			c.expireOutbound()
		case <-c.stopCh:
			return
		}
	}
}

// expireOutbound destroys ledger entries for sends dispatched longer
// ago than the reassembly timeout; every receiver has either completed
// or failed them by then. There are no delivery acks at this layer, so
// expiry is the outbound entry's only terminal transition besides
// cancellation.
func (c *Coordinator) expireOutbound() {
	now := c.clk.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for transferID, tr := range c.outbound {
		if now.Sub(tr.startedAt) >= c.cfg.ReassemblyTimeout {
			delete(c.outbound, transferID)
			logger.Debug(c.logPrefix, "🧹 Outbound transfer %s retired from the ledger", shortID(transferID))
		}
	}
}
