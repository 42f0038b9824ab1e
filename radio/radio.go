// Package radio provides an in-memory broadcast transport for tests and
// demos. Every attached port hears every other port's broadcasts,
// subject to configurable packet loss and delivery delay, which is
// enough radio realism to exercise the relay core end to end.
package radio

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Config controls the realism of the simulated radio
type Config struct {
	// PacketLossRate is the probability any single delivery is dropped.
	// Default: 0.015 (1.5% loss).
	PacketLossRate float64

	// MinDeliveryDelay/MaxDeliveryDelay bound the per-delivery latency.
	// Zero delay delivers synchronously on the broadcaster's goroutine.
	MinDeliveryDelay time.Duration
	MaxDeliveryDelay time.Duration

	// Deterministic seeds the random source for reproducible scenarios
	Deterministic bool
	Seed          int64
}

// DefaultConfig returns realistic short-range radio parameters
func DefaultConfig() *Config {
	return &Config{
		PacketLossRate:   0.015,
		MinDeliveryDelay: 5 * time.Millisecond,
		MaxDeliveryDelay: 50 * time.Millisecond,
	}
}

// PerfectConfig returns a 100% reliable, zero-delay config for testing
func PerfectConfig() *Config {
	return &Config{Deterministic: true}
}

var errPortClosed = errors.New("radio port closed")

// Hub is the shared medium connecting every attached port
type Hub struct {
	cfg *Config

	mu     sync.Mutex
	rng    *rand.Rand
	ports  map[string]*Port
	closed bool
}

// NewHub creates a radio hub
func NewHub(cfg *Config) *Hub {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	seed := cfg.Seed
	if !cfg.Deterministic {
		seed = time.Now().UnixNano()
	}
	return &Hub{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		ports: make(map[string]*Port),
	}
}

// Attach joins a peer to the medium and returns its port
func (h *Hub) Attach(peerID string) *Port {
	p := &Port{hub: h, peerID: peerID}
	h.mu.Lock()
	h.ports[peerID] = p
	h.mu.Unlock()
	return p
}

// Close detaches every port
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	ports := make([]*Port, 0, len(h.ports))
	for _, p := range h.ports {
		ports = append(ports, p)
	}
	h.mu.Unlock()

	var err error
	for _, p := range ports {
		err = multierr.Append(err, p.Close())
	}
	return err
}

// deliver fans one envelope out to every port except the sender
func (h *Hub) deliver(from string, envelope []byte) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	type drop struct {
		port  *Port
		delay time.Duration
	}
	var deliveries []drop
	for peerID, p := range h.ports {
		if peerID == from {
			continue
		}
		if h.cfg.PacketLossRate > 0 && h.rng.Float64() < h.cfg.PacketLossRate {
			continue
		}
		deliveries = append(deliveries, drop{port: p, delay: h.randomDelay()})
	}
	h.mu.Unlock()

	// Each receiver gets its own copy: envelopes are immutable on the air
	for _, d := range deliveries {
		data := append([]byte(nil), envelope...)
		if d.delay <= 0 {
			d.port.receive(data, from)
			continue
		}
		port := d.port
		time.AfterFunc(d.delay, func() { port.receive(data, from) })
	}
}

// randomDelay must be called with the hub lock held
func (h *Hub) randomDelay() time.Duration {
	if h.cfg.MaxDeliveryDelay <= h.cfg.MinDeliveryDelay {
		return h.cfg.MinDeliveryDelay
	}
	spread := h.cfg.MaxDeliveryDelay - h.cfg.MinDeliveryDelay
	return h.cfg.MinDeliveryDelay + time.Duration(h.rng.Int63n(int64(spread)))
}

// Port is one peer's attachment to the medium. Implements the relay
// core's transport contract.
type Port struct {
	hub    *Hub
	peerID string

	mu      sync.Mutex
	handler func(envelope []byte, fromPeerID string)
	closed  bool
}

// Broadcast sends one envelope to every other attached port
func (p *Port) Broadcast(envelope []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errPortClosed
	}
	p.hub.deliver(p.peerID, envelope)
	return nil
}

// SetReceiveHandler registers the inbound callback
func (p *Port) SetReceiveHandler(handler func(envelope []byte, fromPeerID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Close detaches the port from the medium
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.hub.mu.Lock()
	delete(p.hub.ports, p.peerID)
	p.hub.mu.Unlock()
	return nil
}

func (p *Port) receive(envelope []byte, from string) {
	p.mu.Lock()
	handler := p.handler
	closed := p.closed
	p.mu.Unlock()
	if closed || handler == nil {
		return
	}
	handler(envelope, from)
}
