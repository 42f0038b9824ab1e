package mesh

// Transport is the black-box radio beneath the relay core. The real
// stack (advertise/scan/connect/write) lives outside this module; all
// the core needs is a broadcast primitive and an inbound callback.
type Transport interface {
	// Broadcast sends one wire envelope to every reachable peer
	Broadcast(envelope []byte) error

	// SetReceiveHandler registers the callback invoked for every inbound
	// envelope. The handler must not block: it runs on the transport's
	// receive path.
	SetReceiveHandler(handler func(envelope []byte, fromPeerID string))
}
