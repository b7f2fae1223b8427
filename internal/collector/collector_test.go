package collector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/btcore/tracker/internal/btutil"
	"github.com/btcore/tracker/internal/swarm"
)

func peerID(b byte) swarm.PeerID {
	id := make([]byte, 20)
	for i := range id {
		id[i] = b
	}
	return swarm.NewPeerID(id)
}

// P6: after collect_unfresh, every remaining peer satisfies the freshness
// invariant.
func TestSweep_RemovesOnlyStalePeers(t *testing.T) {
	clock := btutil.NewFrozenClock(time.Unix(1_700_000_000, 0))
	registry := swarm.NewRegistry(clock)

	hash := swarm.NewInfoHash([]byte("aaaaaaaaaaaaaaaaaaaa"))
	s := registry.Register(swarm.Descriptor{InfoHash: hash})
	s.SetAnnounceInterval(5 * time.Second)

	s.Update(swarm.EventStarted, peerID(0x11), net.ParseIP("10.0.0.1"), 6881, 0, 0, 1)
	clock.Advance(11 * time.Second)
	s.Update(swarm.EventStarted, peerID(0x22), net.ParseIP("10.0.0.2"), 6881, 0, 0, 1)

	c := New(registry, time.Second, nil)
	c.sweep()

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	for _, p := range s.Peers() {
		if !p.LastAnnounceAt().Equal(clock.Now()) {
			// The only remaining peer is the freshly announced one.
			t.Errorf("unexpected surviving peer with stale announce time %v", p.LastAnnounceAt())
		}
	}
}

func TestSweep_ToleratesEmptyRegistry(t *testing.T) {
	clock := btutil.NewFrozenClock(time.Unix(1_700_000_000, 0))
	registry := swarm.NewRegistry(clock)
	c := New(registry, time.Second, nil)
	c.sweep() // must not panic
}

func TestRun_StopsOnContextCancellation(t *testing.T) {
	clock := btutil.NewFrozenClock(time.Unix(1_700_000_000, 0))
	registry := swarm.NewRegistry(clock)
	c := New(registry, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
