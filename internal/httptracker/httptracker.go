// Package httptracker implements the HTTP tracker endpoint: GET /announce
// and GET /scrape, backed by a shared swarm.Registry.
package httptracker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/btcore/tracker/internal/swarm"
	"github.com/btcore/tracker/internal/trackererr"
	"github.com/btcore/tracker/internal/trackerproto/httpmsg"
	"github.com/btcore/tracker/internal/whitelist"
)

const (
	defaultNumWant = 50
	maxNumWant     = 200
)

// Config holds the HTTP tracker's runtime parameters.
type Config struct {
	Addr string
}

// Server is the HTTP tracker: a net/http.Server dispatching onto a shared
// swarm registry. Unlike the UDP tracker it requires no connection-ID
// handshake; TCP plus a well-formed request is all BEP-3 asks for.
type Server struct {
	cfg       Config
	registry  *swarm.Registry
	whitelist *whitelist.Whitelist
	log       *zap.Logger
	srv       *http.Server
}

// New creates an HTTP tracker server over registry, authorizing against wl
// (pass &whitelist.Whitelist{} for public mode).
func New(cfg Config, registry *swarm.Registry, wl *whitelist.Whitelist, log *zap.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		whitelist: wl,
		log:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /announce", s.handleAnnounce)
	mux.HandleFunc("GET /scrape", s.handleScrape)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.recoverMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// recoverMiddleware catches any panic from the wrapped handler, logs it via
// zap, and answers with the bencoded generic TrackerError a well-behaved
// BEP-3 client expects instead of net/http's bare connection drop.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("recovered from panic handling http request", zap.Any("panic", rec))
				s.writeFailure(w, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Run starts serving HTTP and blocks until ctx is cancelled, then shuts
// down gracefully with a 30-second drain timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("httptracker: listen: %w", err)
	}
	s.log.Info("HTTP tracker listening", zap.String("addr", s.cfg.Addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("httptracker: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.log.Info("http tracker shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httptracker: shutdown: %w", err)
		}
		return nil
	}
}

// handleAnnounce serves GET /announce: apply the event, reply with a peer
// list. Per BEP-3 the HTTP status is always 200; failures are reported in
// the bencoded body's "failure reason" key.
func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	req, err := httpmsg.ParseAnnounceRequest(r.URL.Query())
	if err != nil {
		s.writeFailure(w, err.Error())
		return
	}

	infoHash := swarm.NewInfoHash(req.InfoHash[:])
	if !s.whitelist.Allowed(infoHash) {
		s.writeFailure(w, "torrent not authorized")
		return
	}
	if req.Port == 0 {
		s.writeFailure(w, "port cannot be 0")
		return
	}

	sw, err := s.registry.Lookup(infoHash)
	if err != nil {
		s.writeFailure(w, trackererr.FailureReason(err))
		return
	}

	clientIP := req.IP
	if clientIP == nil {
		clientIP = clientIPFromRequest(r)
	}

	peerID := swarm.NewPeerID(req.PeerID[:])
	requester, err := sw.Update(httpEventToSwarmEvent(req.Event), peerID, clientIP, req.Port,
		req.Uploaded, req.Downloaded, req.Left)
	if err != nil {
		s.writeFailure(w, trackererr.FailureReason(err))
		return
	}

	numWant := calculateNumWant(req.NumWant)
	sampled := sw.SamplePeers(requester, numWant)

	peers := make([]httpmsg.AnnouncePeer, 0, len(sampled))
	for _, p := range sampled {
		id := p.PeerID()
		peers = append(peers, httpmsg.AnnouncePeer{
			PeerID: string(id[:]),
			IP:     p.IP(),
			Port:   p.Port(),
		})
	}

	seeders, leechers := sw.Counts()
	body, err := httpmsg.EncodeAnnounceSuccess(
		int(sw.AnnounceInterval().Seconds()), seeders, leechers, peers, req.Compact)
	if err != nil {
		s.log.Error("failed to encode announce response", zap.Error(err))
		s.writeFailure(w, "internal error")
		return
	}
	if _, err := w.Write(body); err != nil {
		s.log.Warn("failed to write announce response", zap.Error(err))
	}
}

// handleScrape serves GET /scrape: per-info-hash stats without requiring a
// prior announce. An empty info_hash query means "scrape every torrent".
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	req, err := httpmsg.ParseScrapeRequest(r.URL.Query())
	if err != nil {
		s.writeFailure(w, err.Error())
		return
	}

	hashes := req.InfoHashes
	if len(hashes) == 0 {
		for _, sw := range s.registry.Swarms() {
			hashes = append(hashes, [20]byte(sw.Torrent().InfoHash))
		}
	}

	files := make(map[[20]byte]httpmsg.ScrapeFile, len(hashes))
	for _, rawHash := range hashes {
		hash := swarm.NewInfoHash(rawHash[:])
		if !s.whitelist.Allowed(hash) {
			continue
		}
		sw, err := s.registry.Lookup(hash)
		if err != nil {
			continue
		}
		seeders, leechers := sw.Counts()
		files[rawHash] = httpmsg.ScrapeFile{
			Complete:   int64(seeders),
			Downloaded: sw.Downloaded(),
			Incomplete: int64(leechers),
		}
	}

	body, err := httpmsg.EncodeScrapeResponse(files)
	if err != nil {
		s.log.Error("failed to encode scrape response", zap.Error(err))
		s.writeFailure(w, "internal error")
		return
	}
	if _, err := w.Write(body); err != nil {
		s.log.Warn("failed to write scrape response", zap.Error(err))
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, reason string) {
	body, err := httpmsg.EncodeAnnounceFailure(reason)
	if err != nil {
		s.log.Error("failed to encode failure response", zap.Error(err))
		return
	}
	if _, err := w.Write(body); err != nil {
		s.log.Warn("failed to write failure response", zap.Error(err))
	}
}

// clientIPFromRequest derives the announcing peer's address from the TCP
// connection, ignoring proxy headers: trackers sit directly on the edge.
func clientIPFromRequest(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(r.RemoteAddr)
	}
	return net.ParseIP(host)
}

func calculateNumWant(numWant int) int {
	if numWant <= 0 {
		return defaultNumWant
	}
	if numWant > maxNumWant {
		return maxNumWant
	}
	return numWant
}

// httpEventToSwarmEvent translates the bencode wire event string into the
// registry's event type.
func httpEventToSwarmEvent(e httpmsg.Event) swarm.Event {
	switch e {
	case httpmsg.EventStarted:
		return swarm.EventStarted
	case httpmsg.EventCompleted:
		return swarm.EventCompleted
	case httpmsg.EventStopped:
		return swarm.EventStopped
	default:
		return swarm.EventNone
	}
}
