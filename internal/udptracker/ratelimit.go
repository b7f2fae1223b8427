package udptracker

import (
	"encoding/binary"
	"net"
	"sync"
	"time"
)

const (
	rateLimitWindow = 2 * time.Minute // fixed window duration for connect requests
	rateLimitBurst  = 10              // max connect requests per window, per source

	// rateLimitCleanupThreshold is how stale an entry must be before the
	// collector may reclaim it: two windows are definitely stale.
	rateLimitCleanupThreshold = rateLimitWindow * 2
)

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// rateLimiter enforces a per-source-address fixed-window cap on connect
// requests, the anti-amplification guard BEP-15 recommends: a window opens
// at a source's first request and its count resets once the window has
// fully elapsed.
type rateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{entries: make(map[string]*rateLimitEntry)}
}

// Allow reports whether addr may issue another connect request now, and
// if not, how long until it may retry.
func (rl *rateLimiter) Allow(addr *net.UDPAddr) (allowed bool, retryAfter time.Duration) {
	key := rateLimitKey(addr)
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[key]
	if !ok {
		rl.entries[key] = &rateLimitEntry{count: 1, windowStart: now}
		return true, 0
	}

	elapsed := now.Sub(e.windowStart)
	if elapsed >= rateLimitWindow {
		e.count = 1
		e.windowStart = now
		return true, 0
	}

	if e.count < rateLimitBurst {
		e.count++
		return true, 0
	}

	return false, rateLimitWindow - elapsed
}

// Cleanup evicts entries whose window started before deadline.
func (rl *rateLimiter) Cleanup(deadline time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, e := range rl.entries {
		if !e.windowStart.After(deadline) {
			delete(rl.entries, key)
		}
	}
}

// rateLimitKey builds an allocation-light key from a UDP address: 16
// bytes of IP (v4-mapped to v6) followed by the big-endian port.
func rateLimitKey(addr *net.UDPAddr) string {
	ip := addr.IP.To16()
	if ip == nil {
		ip = net.IPv6zero
	}
	var key [18]byte
	copy(key[:16], ip)
	//nolint:gosec // port is 0-65535
	binary.BigEndian.PutUint16(key[16:18], uint16(addr.Port))
	return string(key[:])
}
