package radio

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu       sync.Mutex
	received [][]byte
	from     []string
}

func (r *recorder) handler(envelope []byte, fromPeerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, envelope)
	r.from = append(r.from, fromPeerID)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

// TestHub_BroadcastReachesOthersNotSelf tests the fan-out contract
func TestHub_BroadcastReachesOthersNotSelf(t *testing.T) {
	hub := NewHub(PerfectConfig())
	defer hub.Close()

	a := hub.Attach("peer-a")
	b := hub.Attach("peer-b")
	c := hub.Attach("peer-c")

	var recA, recB, recC recorder
	a.SetReceiveHandler(recA.handler)
	b.SetReceiveHandler(recB.handler)
	c.SetReceiveHandler(recC.handler)

	if err := a.Broadcast([]byte("hello mesh")); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	if recA.count() != 0 {
		t.Error("Sender must not hear its own broadcast")
	}
	if recB.count() != 1 || recC.count() != 1 {
		t.Fatalf("Expected both other ports to receive once, got b=%d c=%d", recB.count(), recC.count())
	}
	if !bytes.Equal(recB.received[0], []byte("hello mesh")) {
		t.Error("Delivered envelope does not match broadcast bytes")
	}
	if recB.from[0] != "peer-a" {
		t.Errorf("Sender attribution: got %q", recB.from[0])
	}
}

// TestHub_ReceiverGetsOwnCopy tests that one receiver mutating its
// envelope cannot corrupt another's
func TestHub_ReceiverGetsOwnCopy(t *testing.T) {
	hub := NewHub(PerfectConfig())
	defer hub.Close()

	a := hub.Attach("peer-a")
	b := hub.Attach("peer-b")
	c := hub.Attach("peer-c")

	var recC recorder
	b.SetReceiveHandler(func(envelope []byte, from string) {
		for i := range envelope {
			envelope[i] = 0
		}
	})
	c.SetReceiveHandler(recC.handler)

	original := []byte{1, 2, 3, 4}
	a.Broadcast(original)

	if recC.count() != 1 || !bytes.Equal(recC.received[0], []byte{1, 2, 3, 4}) {
		t.Error("One receiver's mutation leaked into another receiver's copy")
	}
	if !bytes.Equal(original, []byte{1, 2, 3, 4}) {
		t.Error("Receiver mutation leaked back into the sender's buffer")
	}
}

// TestHub_TotalLossDeliversNothing tests the loss gate at rate 1.0
func TestHub_TotalLossDeliversNothing(t *testing.T) {
	hub := NewHub(&Config{PacketLossRate: 1.0, Deterministic: true})
	defer hub.Close()

	a := hub.Attach("peer-a")
	b := hub.Attach("peer-b")

	var recB recorder
	b.SetReceiveHandler(recB.handler)

	for i := 0; i < 20; i++ {
		if err := a.Broadcast([]byte("doomed")); err != nil {
			t.Fatalf("Broadcast failed: %v", err)
		}
	}
	if recB.count() != 0 {
		t.Errorf("Expected total loss, %d envelopes got through", recB.count())
	}
}

// TestHub_DelayedDeliveryArrives tests that positive-delay configs still
// deliver, just later
func TestHub_DelayedDeliveryArrives(t *testing.T) {
	hub := NewHub(&Config{
		MinDeliveryDelay: time.Millisecond,
		MaxDeliveryDelay: 5 * time.Millisecond,
		Deterministic:    true,
	})
	defer hub.Close()

	a := hub.Attach("peer-a")
	b := hub.Attach("peer-b")

	var recB recorder
	b.SetReceiveHandler(recB.handler)

	a.Broadcast([]byte("eventually"))
	if recB.count() != 0 {
		t.Fatal("Delayed delivery arrived synchronously")
	}

	deadline := time.Now().Add(time.Second)
	for recB.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Delayed envelope never arrived")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestPort_ClosedPortStopsBothDirections tests detach semantics
func TestPort_ClosedPortStopsBothDirections(t *testing.T) {
	hub := NewHub(PerfectConfig())
	defer hub.Close()

	a := hub.Attach("peer-a")
	b := hub.Attach("peer-b")

	var recB recorder
	b.SetReceiveHandler(recB.handler)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	a.Broadcast([]byte("to nobody"))
	if recB.count() != 0 {
		t.Error("Closed port still receiving")
	}

	if err := b.Broadcast([]byte("from the grave")); err == nil {
		t.Error("Broadcast on a closed port should fail")
	}
}
