// Package swarm owns the tracker's per-torrent peer registry: the mapping
// from info-hash to Swarm, and from hex peer-id to TrackedPeer within each
// swarm. It is the single boundary through which swarm invariants are
// enforced — callers never reach into a Swarm's peer map directly.
package swarm

import "encoding/hex"

// idLen is the fixed size of both info-hashes and peer-ids: a SHA-1
// digest, or in the peer-id's case, a self-chosen 20-byte client
// identifier.
const idLen = 20

// InfoHash is a torrent's SHA-1 info-hash, its unique key in the registry.
type InfoHash [idLen]byte

// PeerID is an announcing client's self-chosen 20-byte identifier.
type PeerID [idLen]byte

// NewInfoHash copies the first 20 bytes of b into an InfoHash. Callers
// validate length before this is reached.
func NewInfoHash(b []byte) InfoHash {
	var h InfoHash
	copy(h[:], b)
	return h
}

// NewPeerID copies the first 20 bytes of b into a PeerID.
func NewPeerID(b []byte) PeerID {
	var p PeerID
	copy(p[:], b)
	return p
}

// Hex renders the canonical lowercase hex peer-id used as the swarm's map
// key (spec's hex_peer_id — a pure function of PeerID).
func (p PeerID) Hex() string { return hex.EncodeToString(p[:]) }

func (h InfoHash) String() string { return hex.EncodeToString(h[:]) }
func (p PeerID) String() string   { return hex.EncodeToString(p[:]) }
