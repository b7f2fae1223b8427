// Package udptracker implements the BEP-15 UDP tracker endpoint: Connect,
// Announce, and Scrape, backed by a shared swarm.Registry.
package udptracker

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/btcore/tracker/internal/btutil"
	"github.com/btcore/tracker/internal/swarm"
	"github.com/btcore/tracker/internal/trackerproto/udpmsg"
	"github.com/btcore/tracker/internal/whitelist"
)

// Config holds the UDP tracker's runtime parameters.
type Config struct {
	Port   int
	Secret string
}

// Server is the BEP-15 UDP tracker: a syn-cookie connection-ID signer, a
// per-source rate limiter, and a dispatcher onto a shared swarm registry.
type Server struct {
	cfg       Config
	registry  *swarm.Registry
	whitelist *whitelist.Whitelist
	log       *zap.Logger

	signer  *connectionSigner
	limiter *rateLimiter

	wg sync.WaitGroup
}

// New creates a UDP tracker server over registry, authorizing against wl
// (pass &whitelist.Whitelist{} for public mode).
func New(cfg Config, registry *swarm.Registry, wl *whitelist.Whitelist, clock btutil.Clock, log *zap.Logger) *Server {
	var secret [32]byte
	h := sha256.New()
	h.Write([]byte(cfg.Secret))
	copy(secret[:], h.Sum(nil))

	return &Server{
		cfg:       cfg,
		registry:  registry,
		whitelist: wl,
		log:       log,
		signer:    newConnectionSigner(secret, clock),
		limiter:   newRateLimiter(),
	}
}

// Run binds IPv4 (and, if available, IPv6) UDP listeners and serves until
// ctx is cancelled, then waits up to 30 seconds for in-flight handlers to
// drain before returning.
func (s *Server) Run(ctx context.Context) error {
	conn4, err := listenUDP("udp4", s.cfg.Port)
	if err != nil {
		return fmt.Errorf("udptracker: listen ipv4: %w", err)
	}
	s.log.Info("UDP tracker listening", zap.String("network", "udp4"), zap.Int("port", s.cfg.Port))

	conn6, err := listenUDP("udp6", s.cfg.Port)
	if err != nil {
		s.log.Warn("IPv6 not available", zap.Error(err))
		conn6 = nil
	} else {
		s.log.Info("UDP tracker listening", zap.String("network", "udp6"), zap.Int("port", s.cfg.Port))
	}

	go s.listen(ctx, conn4)
	if conn6 != nil {
		go s.listen(ctx, conn6)
	}
	go s.rateLimiterCleanupLoop(ctx)

	<-ctx.Done()
	s.log.Info("udp tracker shutting down")

	if err := conn4.Close(); err != nil {
		s.log.Debug("failed to close ipv4 listener", zap.Error(err))
	}
	if conn6 != nil {
		if err := conn6.Close(); err != nil {
			s.log.Debug("failed to close ipv6 listener", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("udptracker: shutdown timed out with handlers still in flight")
	}
}

// listen reads datagrams off conn and dispatches each to handlePacket on
// its own goroutine, recovering from any panic so one malformed request
// can't bring down the listener.
func (s *Server) listen(ctx context.Context, conn *net.UDPConn) {
	for {
		buf := getBuffer()
		n, addr, err := conn.ReadFromUDP(*buf)
		if err != nil {
			putBuffer(buf)
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("udp read failed", zap.Error(err))
			continue
		}
		*buf = (*buf)[:n]

		s.wg.Add(1)
		go func(addr *net.UDPAddr, buf *[]byte) {
			defer s.wg.Done()
			defer putBuffer(buf)
			packet := *buf
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("recovered from panic handling udp packet", zap.Any("panic", r))
					if len(packet) >= udpmsg.HeaderSize {
						s.sendError(conn, addr, udpmsg.ParseHeader(packet).TransactionID, "internal error")
					}
				}
			}()
			s.handlePacket(conn, addr, packet)
		}(addr, buf)
	}
}

// rateLimiterCleanupLoop periodically evicts stale rate-limit entries, a
// lighter-weight companion to the swarm collector that the udp tracker
// owns itself since rate limiting is local to this package.
func (s *Server) rateLimiterCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(rateLimitCleanupThreshold)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Cleanup(time.Now().Add(-rateLimitCleanupThreshold))
		}
	}
}

func listenUDP(network string, port int) (*net.UDPConn, error) {
	var ip net.IP
	switch network {
	case "udp4":
		ip = net.IPv4zero
	case "udp6":
		ip = net.IPv6unspecified
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
	return net.ListenUDP(network, &net.UDPAddr{IP: ip, Port: port})
}
