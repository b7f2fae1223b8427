// Package collector runs the periodic sweep that evicts stale peers from
// every swarm in a registry, the tracker's only source of bulk eviction
// (spec §4.5).
package collector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/btcore/tracker/internal/swarm"
)

// Collector periodically sweeps a swarm.Registry, removing peers that are
// no longer fresh.
type Collector struct {
	registry *swarm.Registry
	interval time.Duration
	log      *zap.Logger
}

// New creates a Collector that sweeps registry every interval.
func New(registry *swarm.Registry, interval time.Duration, log *zap.Logger) *Collector {
	return &Collector{registry: registry, interval: interval, log: log}
}

// Run blocks, sweeping at the configured cadence until ctx is cancelled.
// Cancellation is honored only between sweeps, never mid-sweep: a sweep
// already underway always runs to completion.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes stale peers from every registered swarm. Registration and
// unregistration racing with the sweep is tolerated: the snapshot from
// Registry.Swarms may omit a swarm registered mid-sweep, picked up on the
// next tick.
func (c *Collector) sweep() {
	swarms := c.registry.Swarms()
	removed := 0
	for _, s := range swarms {
		removed += s.CollectUnfresh()
	}
	if removed > 0 && c.log != nil {
		c.log.Debug("collector swept stale peers",
			zap.Int("torrents", len(swarms)),
			zap.Int("removed", removed))
	}
}
