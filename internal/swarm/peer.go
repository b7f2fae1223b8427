package swarm

import (
	"net"
	"sync"
	"time"
)

// PeerState is the lifecycle state of a TrackedPeer, set by the announce
// event that most recently touched it.
type PeerState int

const (
	StateUnknown PeerState = iota
	StateStarted
	StateCompleted
	StateStopped
)

func (s PeerState) String() string {
	switch s {
	case StateStarted:
		return "STARTED"
	case StateCompleted:
		return "COMPLETED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// TrackedPeer is a single peer's state within one Swarm. Its counters and
// state are guarded by mu so two racing announces from the same peer-id
// observe one consistent winner rather than a torn record.
type TrackedPeer struct {
	mu sync.Mutex

	peerID    PeerID
	hexPeerID string
	ip        net.IP
	port      uint16

	uploaded   int64
	downloaded int64
	left       int64
	state      PeerState

	lastAnnounceAt time.Time
}

// newTrackedPeer constructs a peer record for a STARTED event. hexPeerID
// is recomputed from peerID by the caller (ids.go's Hex), never stored
// independently, per the hex_peer_id invariant.
func newTrackedPeer(peerID PeerID, ip net.IP, port uint16, now time.Time) *TrackedPeer {
	return &TrackedPeer{
		peerID:         peerID,
		hexPeerID:      peerID.Hex(),
		ip:             ip,
		port:           port,
		state:          StateStarted,
		lastAnnounceAt: now,
	}
}

// refresh atomically updates counters, state and freshness. Called with
// the owning Swarm's per-peer lock semantics already satisfied by mu.
func (p *TrackedPeer) refresh(state PeerState, uploaded, downloaded, left int64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.uploaded = uploaded
	p.downloaded = downloaded
	p.left = left
	p.lastAnnounceAt = now
}

// PeerSnapshot is a lock-free, point-in-time copy of a TrackedPeer's
// fields. Unlike TrackedPeer it carries no mutex, so it's safe to copy,
// return by value, and range over — this is what every API outside the
// swarm package sees; nothing beyond this package ever touches a
// TrackedPeer directly.
type PeerSnapshot struct {
	peerID    PeerID
	hexPeerID string
	ip        net.IP
	port      uint16

	uploaded   int64
	downloaded int64
	left       int64
	state      PeerState

	lastAnnounceAt time.Time
}

func (p *TrackedPeer) snapshot() PeerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerSnapshot{
		peerID:         p.peerID,
		hexPeerID:      p.hexPeerID,
		ip:             p.ip,
		port:           p.port,
		uploaded:       p.uploaded,
		downloaded:     p.downloaded,
		left:           p.left,
		state:          p.state,
		lastAnnounceAt: p.lastAnnounceAt,
	}
}

// isFresh reports invariant I3: the peer announced within the last
// 2 x announceInterval.
func (p *TrackedPeer) isFresh(now time.Time, announceInterval time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastAnnounceAt) < 2*announceInterval
}

// isSeeder reports whether the peer's state is COMPLETED (spec's Seeder).
func (p *TrackedPeer) isSeeder() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateCompleted
}

// sameEndpoint reports whether a tracked peer and an (ip, port) pair
// match — same_endpoint in the spec, used to detect zombie clones left
// behind by a client that reconnected from the same address under a new
// peer-id. ip/port are set once at creation and never touched by
// refresh, so reading them off a *TrackedPeer without mu is safe.
func sameEndpoint(a *TrackedPeer, ip net.IP, port uint16) bool {
	return a.ip.Equal(ip) && a.port == port
}

// sameIdentity additionally requires matching peer-id — full identity
// equality, as opposed to sameEndpoint's looks_like relation.
func sameIdentity(a *TrackedPeer, id PeerID) bool {
	return a.peerID == id
}

// PeerID returns the peer's identifier.
func (p PeerSnapshot) PeerID() PeerID { return p.peerID }

// HexPeerID returns the canonical hex rendering used as the swarm map key.
func (p PeerSnapshot) HexPeerID() string { return p.hexPeerID }

// IP returns the peer's reachable address.
func (p PeerSnapshot) IP() net.IP { return p.ip }

// Port returns the peer's reachable port.
func (p PeerSnapshot) Port() uint16 { return p.port }

// Uploaded returns the peer's last-reported uploaded byte count.
func (p PeerSnapshot) Uploaded() int64 { return p.uploaded }

// Downloaded returns the peer's last-reported downloaded byte count.
func (p PeerSnapshot) Downloaded() int64 { return p.downloaded }

// Left returns the peer's last-reported bytes remaining.
func (p PeerSnapshot) Left() int64 { return p.left }

// State returns the peer's lifecycle state.
func (p PeerSnapshot) State() PeerState { return p.state }

// LastAnnounceAt returns the timestamp of the peer's most recent update.
func (p PeerSnapshot) LastAnnounceAt() time.Time { return p.lastAnnounceAt }

// IsSeeder reports whether the peer's state is COMPLETED (spec's Seeder).
func (p PeerSnapshot) IsSeeder() bool { return p.state == StateCompleted }
