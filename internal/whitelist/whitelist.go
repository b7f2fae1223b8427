// Package whitelist implements the tracker's optional private-mode
// torrent allowlist: a flat file of hex info-hashes, hot-reloaded on
// modification.
package whitelist

import (
	"bufio"
	"context"
	"encoding/hex"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/btcore/tracker/internal/swarm"
)

const refreshInterval = 5 * time.Minute

// Whitelist is a hot-reloadable set of allowed info-hashes. The zero
// value behaves as public mode: every torrent is allowed.
type Whitelist struct {
	hashes atomic.Pointer[map[swarm.InfoHash]struct{}]
}

// Allowed reports whether hash may be announced/scraped against. If the
// whitelist was never configured (public mode), every hash is allowed.
// If it was configured but is currently empty (e.g. a missing file), it
// fails closed and blocks everything.
func (w *Whitelist) Allowed(hash swarm.InfoHash) bool {
	m := w.hashes.Load()
	if m == nil {
		return true
	}
	_, ok := (*m)[hash]
	return ok
}

// Load reads path and installs its contents, replacing any previous set.
func (w *Whitelist) Load(path string, log *zap.Logger) {
	data := loadFile(path, log)
	w.hashes.Store(&data)
	log.Info("loaded whitelist", zap.Int("count", len(data)))
}

// Watch starts a goroutine that reloads path whenever its modification
// time changes, checking every refreshInterval, until ctx is cancelled.
func (w *Whitelist) Watch(ctx context.Context, path string, log *zap.Logger) {
	w.Load(path, log)

	go func() {
		var lastMod time.Time
		if fi, err := os.Stat(path); err == nil {
			lastMod = fi.ModTime()
		}

		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fi, err := os.Stat(path)
				if err != nil {
					log.Warn("failed to stat whitelist file", zap.Error(err))
					continue
				}
				if fi.ModTime() != lastMod {
					w.Load(path, log)
					lastMod = fi.ModTime()
				}
			}
		}
	}()
}

// loadFile parses a whitelist file: one hex-encoded 40-character
// info-hash per line; blank lines and lines starting with "#" are
// ignored. A file that fails to open yields an empty set — fail closed,
// not fail open.
func loadFile(path string, log *zap.Logger) map[swarm.InfoHash]struct{} {
	hashes := make(map[swarm.InfoHash]struct{})

	//nolint:gosec // path is an operator-supplied configuration value
	f, err := os.Open(path)
	if err != nil {
		log.Warn("failed to open whitelist file", zap.String("path", path), zap.Error(err))
		return hashes
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) != 40 {
			log.Warn("whitelist line has invalid hash length", zap.Int("line", lineNum))
			continue
		}
		decoded, err := hex.DecodeString(line)
		if err != nil {
			log.Warn("whitelist line has invalid hex", zap.Int("line", lineNum))
			continue
		}
		hashes[swarm.NewInfoHash(decoded)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("error reading whitelist file", zap.Error(err))
	}
	return hashes
}
