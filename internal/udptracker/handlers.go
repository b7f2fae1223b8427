package udptracker

import (
	"net"

	"go.uber.org/zap"

	"github.com/btcore/tracker/internal/swarm"
	"github.com/btcore/tracker/internal/trackererr"
	"github.com/btcore/tracker/internal/trackerproto/udpmsg"
)

const (
	maxPeersPerPacketV4 = 200 // 200 * 6 = 1200 bytes, under the 1500-byte MTU
	defaultNumWant      = 50
)

// handlePacket routes one inbound datagram to the right BEP-15 handler
// based on its action field.
func (s *Server) handlePacket(conn net.PacketConn, addr *net.UDPAddr, packet []byte) {
	if len(packet) < udpmsg.ConnectRequestSize {
		s.log.Debug("packet too short", zap.Stringer("addr", addr), zap.Int("len", len(packet)))
		return
	}

	header := udpmsg.ParseHeader(packet)

	switch header.Action {
	case udpmsg.ActionConnect:
		if header.ConnectionID != udpmsg.ProtocolID {
			s.sendError(conn, addr, header.TransactionID, "invalid protocol ID")
			return
		}
		s.handleConnect(conn, addr, header.TransactionID)

	case udpmsg.ActionAnnounce, udpmsg.ActionScrape:
		if !s.signer.Validate(header.ConnectionID, addr) {
			s.sendError(conn, addr, header.TransactionID, "invalid connection ID")
			return
		}
		if header.Action == udpmsg.ActionAnnounce {
			s.handleAnnounce(conn, addr, packet, header.TransactionID)
		} else {
			s.handleScrape(conn, addr, packet, header.TransactionID)
		}

	default:
		s.sendError(conn, addr, header.TransactionID, "unknown action")
	}
}

// handleConnect issues a syn-cookie connection ID after a rate-limit
// check, the first step of every BEP-15 session.
func (s *Server) handleConnect(conn net.PacketConn, addr *net.UDPAddr, transactionID uint32) {
	if allowed, retryAfter := s.limiter.Allow(addr); !allowed {
		s.log.Debug("rate limited connect", zap.Stringer("addr", addr), zap.Duration("retry_after", retryAfter))
		s.sendError(conn, addr, transactionID, "rate limit exceeded, try again later")
		return
	}

	connectionID := s.signer.Generate(addr)
	if _, err := conn.WriteTo(udpmsg.EncodeConnectResponse(transactionID, connectionID), addr); err != nil {
		s.log.Warn("failed to send connect response", zap.Error(err))
	}
}

// handleAnnounce applies an announce event to the addressed swarm and
// replies with an answer-peer list.
func (s *Server) handleAnnounce(conn net.PacketConn, addr *net.UDPAddr, packet []byte, transactionID uint32) {
	req, ok := udpmsg.ParseAnnounceRequest(packet)
	if !ok {
		s.sendError(conn, addr, transactionID, "invalid packet size")
		return
	}

	infoHash := swarm.NewInfoHash(req.InfoHash[:])
	if !s.whitelist.Allowed(infoHash) {
		s.sendError(conn, addr, transactionID, "torrent not authorized")
		return
	}
	if req.Port == 0 {
		s.sendError(conn, addr, transactionID, "port cannot be 0")
		return
	}

	sw, err := s.registry.Lookup(infoHash)
	if err != nil {
		s.sendError(conn, addr, transactionID, trackererr.FailureReason(err))
		return
	}

	clientIP := addr.IP
	if req.IP != 0 {
		if addr.IP.To4() == nil {
			s.sendError(conn, addr, transactionID, "IP address must be 0 for IPv6")
			return
		}
		clientIP = net.IPv4(byte(req.IP>>24), byte(req.IP>>16), byte(req.IP>>8), byte(req.IP))
	}

	peerID := swarm.NewPeerID(req.PeerID[:])
	requester, err := sw.Update(udpEventToSwarmEvent(req.Event), peerID, clientIP, req.Port,
		req.Uploaded, req.Downloaded, req.Left)
	if err != nil {
		s.sendError(conn, addr, transactionID, trackererr.FailureReason(err))
		return
	}

	numWant := calculateNumWant(req.NumWant, maxPeersPerPacketV4)
	sampled := sw.SamplePeers(requester, numWant)

	addrs := getPeerSlice()
	for _, p := range sampled {
		if p.IP().To4() == nil {
			continue // UDP wire format is IPv4-only; see udpmsg.PackPeersV4
		}
		*addrs = append(*addrs, net.UDPAddr{IP: p.IP(), Port: int(p.Port())})
	}
	peersBlob := udpmsg.PackPeersV4(*addrs)
	putPeerSlice(addrs)

	seeders, leechers := sw.Counts()
	resp := udpmsg.AnnounceResponse{
		TransactionID: transactionID,
		//nolint:gosec // bounded by configuration, never negative
		IntervalS: uint32(sw.AnnounceInterval().Seconds()),
		//nolint:gosec // bounded peer counts
		Leechers: uint32(leechers),
		//nolint:gosec // bounded peer counts
		Seeders: uint32(seeders),
		Peers:   peersBlob,
	}
	if _, err := conn.WriteTo(resp.Encode(), addr); err != nil {
		s.log.Warn("failed to send announce response", zap.Error(err))
	}
}

// handleScrape answers a scrape request with per-info-hash statistics,
// without requiring a prior announce.
func (s *Server) handleScrape(conn net.PacketConn, addr *net.UDPAddr, packet []byte, transactionID uint32) {
	req, ok := udpmsg.ParseScrapeRequest(packet)
	if !ok || len(req.InfoHashes) == 0 {
		s.sendError(conn, addr, transactionID, "no info hashes provided")
		return
	}

	entries := make([]udpmsg.ScrapeEntry, len(req.InfoHashes))
	for i, rawHash := range req.InfoHashes {
		hash := swarm.NewInfoHash(rawHash[:])
		if !s.whitelist.Allowed(hash) {
			continue
		}
		sw, err := s.registry.Lookup(hash)
		if err != nil {
			continue
		}
		seeders, leechers := sw.Counts()
		entries[i] = udpmsg.ScrapeEntry{
			//nolint:gosec
			Seeders: uint32(seeders),
			//nolint:gosec
			Downloaded: uint32(sw.Downloaded()),
			//nolint:gosec
			Leechers: uint32(leechers),
		}
	}

	if _, err := conn.WriteTo(udpmsg.EncodeScrapeResponse(transactionID, entries), addr); err != nil {
		s.log.Warn("failed to send scrape response", zap.Error(err))
	}
}

func (s *Server) sendError(conn net.PacketConn, addr *net.UDPAddr, transactionID uint32, message string) {
	if _, err := conn.WriteTo(udpmsg.EncodeError(transactionID, message), addr); err != nil {
		s.log.Warn("failed to send error response", zap.Error(err))
	}
}

// calculateNumWant resolves the client's requested peer count against the
// wire format's per-packet cap. 0 and 0xFFFFFFFF (sent as -1) mean
// "default".
func calculateNumWant(numWant uint32, maxWant int) int {
	if numWant == 0 || numWant == 0xFFFFFFFF {
		return defaultNumWant
	}
	if numWant > uint32(maxWant) {
		return maxWant
	}
	return int(numWant)
}

// udpEventToSwarmEvent translates BEP-15's wire event encoding (which
// does not share swarm.Event's ordering) into the registry's event type.
func udpEventToSwarmEvent(e udpmsg.Event) swarm.Event {
	switch e {
	case udpmsg.EventStarted:
		return swarm.EventStarted
	case udpmsg.EventCompleted:
		return swarm.EventCompleted
	case udpmsg.EventStopped:
		return swarm.EventStopped
	default:
		return swarm.EventNone
	}
}
