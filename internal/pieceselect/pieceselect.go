// Package pieceselect implements the pluggable piece-selection policies a
// leecher uses to decide which piece to request next from a given peer.
package pieceselect

import (
	"math/rand"
	"sync"

	bitmap "github.com/boljen/go-bitmap"
)

// RarestPieceJitter bounds how many of the globally rarest pieces the
// rarest-first strategy will randomize across. Part of the contract, not a
// tuning knob.
const RarestPieceJitter = 42

// Interesting is a bit-set indexed by piece index: true iff the remote peer
// has the piece and the local client lacks it. It wraps go-bitmap, the same
// library the rest of the piece-selection corpus uses for client/peer
// bitfields.
type Interesting struct {
	bm bitmap.Bitmap
}

// NewInteresting allocates an Interesting set over numPieces pieces, every
// bit initially clear.
func NewInteresting(numPieces int) *Interesting {
	return &Interesting{bm: bitmap.New(numPieces)}
}

// Set marks pieceIndex as interesting or not.
func (in *Interesting) Set(pieceIndex int, v bool) {
	in.bm.Set(pieceIndex, v)
}

// Has reports whether pieceIndex is set.
func (in *Interesting) Has(pieceIndex int) bool {
	if pieceIndex < 0 || pieceIndex >= in.bm.Len() {
		return false
	}
	return in.bm.Get(pieceIndex)
}

// Len returns the number of pieces the set covers.
func (in *Interesting) Len() int {
	return in.bm.Len()
}

// Strategy chooses the next piece to request given the rarity-ordered piece
// list, the interesting bit-set, and the full piece array. It returns
// (pieceIndex, true), or (0, false) when nothing is worth requesting.
type Strategy interface {
	ChoosePiece(rarestOrdered []int, interesting *Interesting, allPieces []int) (int, bool)
}

// Sequential scans allPieces in index order and returns the first piece
// the interesting set marks. Deterministic: always the smallest interesting
// index (P9).
type Sequential struct{}

// ChoosePiece implements Strategy.
func (Sequential) ChoosePiece(_ []int, interesting *Interesting, allPieces []int) (int, bool) {
	for _, pieceIndex := range allPieces {
		if interesting.Has(pieceIndex) {
			return pieceIndex, true
		}
	}
	return 0, false
}

// RarestFirstJitter collects the top RarestPieceJitter rarest interesting
// pieces and picks one uniformly at random, to avoid every client racing
// for the single globally rarest piece at once.
type RarestFirstJitter struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewRarestFirstJitter constructs a strategy with its own random source,
// auto-seeded (not wall-clock-seeded, to avoid correlated jitter across
// strategies constructed in the same process tick).
func NewRarestFirstJitter() *RarestFirstJitter {
	return &RarestFirstJitter{rand: rand.New(rand.NewSource(int64(rand.Uint64())))}
}

// ChoosePiece implements Strategy. rarestOrdered is read under rf's own
// mutex for the duration of the collection step. That mutex is private
// to the strategy: it serializes concurrent ChoosePiece calls but does
// not exclude other code that writes to rarestOrdered at the same time.
func (rf *RarestFirstJitter) ChoosePiece(rarestOrdered []int, interesting *Interesting, _ []int) (int, bool) {
	rf.mu.Lock()
	candidates := make([]int, 0, RarestPieceJitter)
	for _, pieceIndex := range rarestOrdered {
		if !interesting.Has(pieceIndex) {
			continue
		}
		candidates = append(candidates, pieceIndex)
		if len(candidates) == RarestPieceJitter {
			break
		}
	}
	rf.mu.Unlock()

	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rf.pick(len(candidates))], true
}

func (rf *RarestFirstJitter) pick(n int) int {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.rand.Intn(n)
}
