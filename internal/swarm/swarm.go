package swarm

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/btcore/tracker/internal/btutil"
	"github.com/btcore/tracker/internal/trackererr"
)

// MinAnnounceIntervalSeconds is invariant I4's floor on announceIntervalS.
const MinAnnounceIntervalSeconds = 5

const (
	defaultAnswerPeers      = 30
	defaultAnnounceInterval = 10 * time.Second
)

// Event is an announce's reported event, the left column of the update
// transition table.
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventCompleted
	EventStopped
)

// Descriptor is the immutable torrent metadata the core receives from the
// external .torrent parser: identity, piece layout and total size. The
// core never computes or validates info-hashes itself.
type Descriptor struct {
	InfoHash     InfoHash
	PieceLength  int64
	PieceHashes  [][20]byte
	TotalLength  int64
}

// Swarm is the set of peers announcing on a single torrent.
type Swarm struct {
	torrent Descriptor
	clock   btutil.Clock

	mu               sync.RWMutex
	peers            map[string]*TrackedPeer
	answerPeers      int
	announceInterval time.Duration

	// downloaded is a monotonic count of COMPLETED announces received on
	// this swarm (a peer that reports COMPLETED twice is counted twice),
	// independent of whether those peers are still present — BEP-15/48
	// scrape's "downloaded" field (SPEC_FULL §3).
	downloaded int64
}

// New creates a Swarm for torrent with the default answer-peer cap and
// announce interval. It is never created implicitly by an announce —
// callers register it explicitly via Registry.Register.
func New(torrent Descriptor, clock btutil.Clock) *Swarm {
	return &Swarm{
		torrent:          torrent,
		clock:            clock,
		peers:            make(map[string]*TrackedPeer),
		answerPeers:      defaultAnswerPeers,
		announceInterval: defaultAnnounceInterval,
	}
}

// Torrent returns the swarm's descriptor.
func (s *Swarm) Torrent() Descriptor { return s.torrent }

// AnnounceInterval returns the interval advertised back to peers.
func (s *Swarm) AnnounceInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.announceInterval
}

// SetAnnounceInterval validates and sets the announce interval (invariant
// I4). Rejecting a non-positive or sub-minimum interval is a configuration
// error, raised loudly rather than silently clamped.
func (s *Swarm) SetAnnounceInterval(interval time.Duration) error {
	if interval < MinAnnounceIntervalSeconds*time.Second {
		return trackererr.ErrInvalidInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announceInterval = interval
	return nil
}

// SetAnswerPeers sets the maximum number of peers returned per announce.
func (s *Swarm) SetAnswerPeers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerPeers = n
}

// AnswerPeers returns the maximum number of peers returned per announce.
func (s *Swarm) AnswerPeers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answerPeers
}

// Len returns the number of peers currently tracked.
func (s *Swarm) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Counts returns (seeders, leechers) satisfying invariant I5:
// seeders + leechers == |peers|.
func (s *Swarm) Counts() (seeders, leechers int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.peers {
		if p.isSeeder() {
			seeders++
		} else {
			leechers++
		}
	}
	return seeders, leechers
}

// Downloaded returns the swarm's monotonic completed-ever counter.
func (s *Swarm) Downloaded() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.downloaded
}

// Update applies an announce event to the swarm and returns a lock-free
// snapshot of the resulting peer, per the transition table in the
// specification:
//
//	STARTED   any     -> create, insert, STARTED
//	STOPPED   present -> remove, return removed record
//	STOPPED   absent  -> synthetic reply, not inserted
//	COMPLETED present -> mutate counters, COMPLETED
//	COMPLETED absent  -> PeerUnknown
//	NONE      present -> refresh, STARTED
//	NONE      absent  -> PeerUnknown
func (s *Swarm) Update(event Event, peerID PeerID, ip net.IP, port uint16, uploaded, downloaded, left int64) (PeerSnapshot, error) {
	now := s.clock.Now()
	hexID := peerID.Hex()

	switch event {
	case EventStarted:
		peer := newTrackedPeer(peerID, ip, port, now)
		peer.refresh(StateStarted, uploaded, downloaded, left, now)
		s.mu.Lock()
		s.peers[hexID] = peer
		s.mu.Unlock()
		return peer.snapshot(), nil

	case EventStopped:
		s.mu.Lock()
		peer, ok := s.peers[hexID]
		if ok {
			delete(s.peers, hexID)
		}
		s.mu.Unlock()
		if !ok {
			// Synthetic reply: not inserted, counters echo the request.
			return PeerSnapshot{
				peerID:         peerID,
				hexPeerID:      hexID,
				ip:             ip,
				port:           port,
				uploaded:       uploaded,
				downloaded:     downloaded,
				left:           left,
				state:          StateStopped,
				lastAnnounceAt: now,
			}, nil
		}
		peer.refresh(StateStopped, uploaded, downloaded, left, now)
		return peer.snapshot(), nil

	case EventCompleted:
		s.mu.RLock()
		peer, ok := s.peers[hexID]
		s.mu.RUnlock()
		if !ok {
			return PeerSnapshot{}, trackererr.ErrPeerUnknown
		}
		peer.refresh(StateCompleted, uploaded, downloaded, left, now)
		s.mu.Lock()
		s.downloaded++
		s.mu.Unlock()
		return peer.snapshot(), nil

	case EventNone:
		s.mu.RLock()
		peer, ok := s.peers[hexID]
		s.mu.RUnlock()
		if !ok {
			return PeerSnapshot{}, trackererr.ErrPeerUnknown
		}
		peer.refresh(StateStarted, uploaded, downloaded, left, now)
		return peer.snapshot(), nil

	default:
		return PeerSnapshot{}, trackererr.ErrInvalidEvent
	}
}

// SamplePeers returns at most maxPeers distinct peers for an announce
// response, excluding requester, per spec §4.4:
//
//  1. snapshot + uniformly shuffle the peer list so the response isn't
//     biased by map iteration order;
//  2. walk the shuffled list, evicting stale peers and zombie clones
//     (same endpoint, different identity) as they're encountered;
//  3. stop once maxPeers have been collected.
//
// maxPeers is per-call (a client's numwant, already clamped by the
// caller) and is further capped at the swarm's AnswerPeers setting: that
// setting is a stable upper bound peers are free to undercut, not
// something one announce should be able to overwrite for every other
// in-flight announce on the same swarm.
//
// The source's duplicated freshness check (the spec's documented bug) is
// preserved as a single guarded branch rather than reimplemented as two.
func (s *Swarm) SamplePeers(requester PeerSnapshot, maxPeers int) []PeerSnapshot {
	s.mu.RLock()
	candidates := make([]*TrackedPeer, 0, len(s.peers))
	for _, p := range s.peers {
		candidates = append(candidates, p)
	}
	interval := s.announceInterval
	if maxPeers > s.answerPeers {
		maxPeers = s.answerPeers
	}
	s.mu.RUnlock()

	now := s.clock.Now()
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	result := make([]PeerSnapshot, 0, min(maxPeers, len(candidates)))
	for _, candidate := range candidates {
		if !candidate.isFresh(now, interval) {
			s.evict(candidate)
			continue
		}
		if sameEndpoint(candidate, requester.ip, requester.port) && !sameIdentity(candidate, requester.peerID) {
			// Zombie clone: same address, different id. Evict it.
			s.evict(candidate)
			continue
		}
		if sameEndpoint(candidate, requester.ip, requester.port) {
			// Don't include the requester itself in its own answer.
			continue
		}
		if len(result) >= maxPeers {
			break
		}
		result = append(result, candidate.snapshot())
	}
	return result
}

func (s *Swarm) evict(p *TrackedPeer) {
	s.mu.Lock()
	if existing, ok := s.peers[p.hexPeerID]; ok && existing == p {
		delete(s.peers, p.hexPeerID)
	}
	s.mu.Unlock()
}

// CollectUnfresh removes every peer whose last announce is no longer
// fresh. It is the only source of bulk eviction; SamplePeers' eviction is
// a best-effort supplement (spec §4.5).
func (s *Swarm) CollectUnfresh() int {
	now := s.clock.Now()

	s.mu.RLock()
	stale := make([]string, 0)
	for hexID, p := range s.peers {
		if !p.isFresh(now, s.announceInterval) {
			stale = append(stale, hexID)
		}
	}
	s.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, hexID := range stale {
		if _, ok := s.peers[hexID]; ok {
			delete(s.peers, hexID)
			removed++
		}
	}
	return removed
}

// Peers returns a snapshot of every tracked peer, for scrape/inspection.
func (s *Swarm) Peers() []PeerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PeerSnapshot, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p.snapshot())
	}
	return out
}
