package swarm

import (
	"net"
	"testing"
	"time"

	"github.com/btcore/tracker/internal/btutil"
	"github.com/btcore/tracker/internal/trackererr"
)

func newTestSwarm() (*Swarm, *btutil.FrozenClock) {
	clock := btutil.NewFrozenClock(time.Unix(1_700_000_000, 0))
	d := Descriptor{InfoHash: NewInfoHash([]byte("aaaaaaaaaaaaaaaaaaaa"))}
	return New(d, clock), clock
}

func peerID(b byte) PeerID {
	id := make([]byte, 20)
	for i := range id {
		id[i] = b
	}
	return NewPeerID(id)
}

// Scenario 1: new peer started.
func TestUpdate_NewPeerStarted(t *testing.T) {
	s, _ := newTestSwarm()

	peer, err := s.Update(EventStarted, peerID(0xAA), net.ParseIP("10.0.0.1"), 6881, 0, 0, 1048576)
	if err != nil {
		t.Fatalf("Update error = %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	if peer.State() != StateStarted {
		t.Errorf("State = %v, want STARTED", peer.State())
	}
	seeders, leechers := s.Counts()
	if seeders != 0 || leechers != 1 {
		t.Errorf("seeders=%d leechers=%d, want 0,1", seeders, leechers)
	}
}

// Scenario 2: completion transitions seeder count.
func TestUpdate_CompletionTransitionsSeederCount(t *testing.T) {
	s, _ := newTestSwarm()
	id := peerID(0xAA)
	s.Update(EventStarted, id, net.ParseIP("10.0.0.1"), 6881, 0, 0, 1048576)

	peer, err := s.Update(EventCompleted, id, net.ParseIP("10.0.0.1"), 6881, 1048576, 1048576, 0)
	if err != nil {
		t.Fatalf("Update error = %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	seeders, leechers := s.Counts()
	if seeders != 1 || leechers != 0 {
		t.Errorf("seeders=%d leechers=%d, want 1,0", seeders, leechers)
	}
	if peer.State() != StateCompleted {
		t.Errorf("State = %v, want COMPLETED", peer.State())
	}
	if s.Downloaded() != 1 {
		t.Errorf("Downloaded() = %d, want 1", s.Downloaded())
	}
}

// Scenario 3: stop removes.
func TestUpdate_StopRemoves(t *testing.T) {
	s, _ := newTestSwarm()
	id := peerID(0xAA)
	s.Update(EventStarted, id, net.ParseIP("10.0.0.1"), 6881, 0, 0, 1048576)
	s.Update(EventCompleted, id, net.ParseIP("10.0.0.1"), 6881, 1048576, 1048576, 0)

	_, err := s.Update(EventStopped, id, net.ParseIP("10.0.0.1"), 6881, 1048576, 1048576, 0)
	if err != nil {
		t.Fatalf("Update error = %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
	seeders, _ := s.Counts()
	if seeders != 0 {
		t.Errorf("seeders = %d, want 0", seeders)
	}
}

func TestUpdate_StopOnUnknownPeerIsSyntheticAndNotInserted(t *testing.T) {
	s, _ := newTestSwarm()
	id := peerID(0xBB)

	peer, err := s.Update(EventStopped, id, net.ParseIP("10.0.0.1"), 6881, 1, 2, 3)
	if err != nil {
		t.Fatalf("Update error = %v", err)
	}
	if peer.State() != StateStopped {
		t.Errorf("State = %v, want STOPPED", peer.State())
	}
	if peer.Uploaded() != 1 || peer.Downloaded() != 2 || peer.Left() != 3 {
		t.Errorf("synthetic reply counters = %d,%d,%d, want 1,2,3", peer.Uploaded(), peer.Downloaded(), peer.Left())
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (not inserted)", s.Len())
	}
}

func TestUpdate_CompletedOnUnknownPeerFails(t *testing.T) {
	s, _ := newTestSwarm()
	_, err := s.Update(EventCompleted, peerID(0xCC), net.ParseIP("10.0.0.1"), 6881, 0, 0, 0)
	if err != trackererr.ErrPeerUnknown {
		t.Errorf("err = %v, want ErrPeerUnknown", err)
	}
}

func TestUpdate_NoneOnUnknownPeerFails(t *testing.T) {
	s, _ := newTestSwarm()
	_, err := s.Update(EventNone, peerID(0xCC), net.ParseIP("10.0.0.1"), 6881, 0, 0, 0)
	if err != trackererr.ErrPeerUnknown {
		t.Errorf("err = %v, want ErrPeerUnknown", err)
	}
}

func TestUpdate_InvalidEventFails(t *testing.T) {
	s, _ := newTestSwarm()
	_, err := s.Update(Event(99), peerID(0xAA), net.ParseIP("10.0.0.1"), 6881, 0, 0, 0)
	if err != trackererr.ErrInvalidEvent {
		t.Errorf("err = %v, want ErrInvalidEvent", err)
	}
}

// Scenario 4: self-exclusion.
func TestSamplePeers_SelfExclusion(t *testing.T) {
	s, _ := newTestSwarm()
	a, _ := s.Update(EventStarted, peerID(0xAA), net.ParseIP("10.0.0.1"), 6881, 0, 0, 1)
	s.Update(EventStarted, peerID(0xBB), net.ParseIP("10.0.0.2"), 6881, 0, 0, 1)

	result := s.SamplePeers(a, 30)
	if len(result) != 1 {
		t.Fatalf("len(result) = %d, want 1", len(result))
	}
	if result[0].PeerID() != peerID(0xBB) {
		t.Errorf("result = %v, want peer B only", result[0].PeerID())
	}
}

// Scenario 5: zombie eviction on sample.
func TestSamplePeers_ZombieEviction(t *testing.T) {
	s, _ := newTestSwarm()
	a1, _ := s.Update(EventStarted, peerID(0xAA), net.ParseIP("10.0.0.1"), 6881, 0, 0, 1)
	s.Update(EventStarted, peerID(0xCC), net.ParseIP("10.0.0.1"), 6881, 0, 0, 1)

	result := s.SamplePeers(a1, 30)
	if len(result) != 0 {
		t.Fatalf("len(result) = %d, want 0 (zombie evicted, a1 excludes itself)", len(result))
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (zombie removed, a1 remains)", s.Len())
	}
}

func TestSamplePeers_CapAtAnswerPeers(t *testing.T) {
	s, _ := newTestSwarm()
	requesterID := peerID(0xFF)
	requester, _ := s.Update(EventStarted, requesterID, net.ParseIP("10.0.0.99"), 6881, 0, 0, 1)
	for i := byte(1); i <= 5; i++ {
		s.Update(EventStarted, peerID(i), net.ParseIP("10.0.0.1"), uint16(7000+int(i)), 0, 0, 1)
	}

	result := s.SamplePeers(requester, 2)
	if len(result) > 2 {
		t.Errorf("len(result) = %d, want <= 2", len(result))
	}
	for _, p := range result {
		if p.PeerID() == requesterID {
			t.Errorf("result contains requester")
		}
	}
}

func TestSamplePeers_EvictsStalePeers(t *testing.T) {
	s, clock := newTestSwarm()
	s.SetAnnounceInterval(5 * time.Second)
	stale := peerID(0x11)
	s.Update(EventStarted, stale, net.ParseIP("10.0.0.1"), 6881, 0, 0, 1)

	clock.Advance(11 * time.Second) // > 2 x 5s interval

	requester, _ := s.Update(EventStarted, peerID(0x22), net.ParseIP("10.0.0.2"), 6881, 0, 0, 1)
	result := s.SamplePeers(requester, 30)
	if len(result) != 0 {
		t.Errorf("len(result) = %d, want 0", len(result))
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (stale peer evicted, requester remains)", s.Len())
	}
}

func TestSetAnnounceInterval_RejectsNonPositive(t *testing.T) {
	s, _ := newTestSwarm()
	if err := s.SetAnnounceInterval(0); err != trackererr.ErrInvalidInterval {
		t.Errorf("err = %v, want ErrInvalidInterval", err)
	}
	if err := s.SetAnnounceInterval(5 * time.Second); err != nil {
		t.Errorf("SetAnnounceInterval(5s) error = %v", err)
	}
}

func TestCollectUnfresh_RemovesOnlyStale(t *testing.T) {
	s, clock := newTestSwarm()
	s.SetAnnounceInterval(5 * time.Second)
	s.Update(EventStarted, peerID(0x11), net.ParseIP("10.0.0.1"), 6881, 0, 0, 1)

	clock.Advance(11 * time.Second)
	s.Update(EventStarted, peerID(0x22), net.ParseIP("10.0.0.2"), 6881, 0, 0, 1)

	removed := s.CollectUnfresh()
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestRegistry_UnknownTorrentLookupFails(t *testing.T) {
	r := NewRegistry(btutil.RealClock{})
	_, err := r.Lookup(NewInfoHash([]byte("aaaaaaaaaaaaaaaaaaaa")))
	if err != trackererr.ErrUnknownTorrent {
		t.Errorf("err = %v, want ErrUnknownTorrent", err)
	}
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	r := NewRegistry(btutil.RealClock{})
	hash := NewInfoHash([]byte("aaaaaaaaaaaaaaaaaaaa"))
	r.Register(Descriptor{InfoHash: hash})

	if _, err := r.Lookup(hash); err != nil {
		t.Fatalf("Lookup error = %v", err)
	}

	r.Unregister(hash)
	if _, err := r.Lookup(hash); err != trackererr.ErrUnknownTorrent {
		t.Errorf("err = %v, want ErrUnknownTorrent after unregister", err)
	}
}
