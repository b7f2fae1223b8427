// Package httpmsg models the HTTP tracker's announce and scrape wire
// messages: request parameters decoded from a query string, and bencoded
// responses encoded via the bencode package's struct tags.
package httpmsg

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/btcore/tracker/internal/bencode"
)

// Event is the HTTP announce event string, one of the four values the
// query parameter may carry.
type Event string

const (
	EventNone      Event = ""
	EventStarted   Event = "started"
	EventStopped   Event = "stopped"
	EventCompleted Event = "completed"
)

// AnnounceRequest holds the parsed query parameters of GET /announce.
type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
	NumWant    int
	Compact    bool
	IP         net.IP // optional client-supplied override
}

// ParseAnnounceRequest decodes an announce request's query parameters.
// info_hash and peer_id are raw 20-byte percent-encoded strings, per
// BEP-3, not bencoded — url.Values already undoes the percent-encoding.
func ParseAnnounceRequest(q url.Values) (AnnounceRequest, error) {
	var req AnnounceRequest

	infoHash := q.Get("info_hash")
	if len(infoHash) != 20 {
		return AnnounceRequest{}, fmt.Errorf("info_hash must be 20 bytes, got %d", len(infoHash))
	}
	copy(req.InfoHash[:], infoHash)

	peerID := q.Get("peer_id")
	if len(peerID) != 20 {
		return AnnounceRequest{}, fmt.Errorf("peer_id must be 20 bytes, got %d", len(peerID))
	}
	copy(req.PeerID[:], peerID)

	port, err := strconv.ParseUint(q.Get("port"), 10, 16)
	if err != nil {
		return AnnounceRequest{}, fmt.Errorf("invalid port: %w", err)
	}
	req.Port = uint16(port)

	req.Uploaded, _ = strconv.ParseInt(q.Get("uploaded"), 10, 64)
	req.Downloaded, _ = strconv.ParseInt(q.Get("downloaded"), 10, 64)
	req.Left, _ = strconv.ParseInt(q.Get("left"), 10, 64)

	switch Event(q.Get("event")) {
	case EventNone, EventStarted, EventStopped, EventCompleted:
		req.Event = Event(q.Get("event"))
	default:
		return AnnounceRequest{}, fmt.Errorf("invalid event: %q", q.Get("event"))
	}

	if nw := q.Get("numwant"); nw != "" {
		n, err := strconv.Atoi(nw)
		if err != nil {
			return AnnounceRequest{}, fmt.Errorf("invalid numwant: %w", err)
		}
		req.NumWant = n
	}

	req.Compact = q.Get("compact") == "1"

	if ip := q.Get("ip"); ip != "" {
		req.IP = net.ParseIP(ip)
	}

	return req, nil
}

// peerDict is the non-compact per-peer dictionary form.
type peerDict struct {
	PeerID string `bencode:"peer id"`
	IP     string `bencode:"ip"`
	Port   int64  `bencode:"port"`
}

// announceSuccess is the bencoded success response's wire struct for
// compact mode, where peers is a single packed byte string.
type announceSuccess struct {
	IntervalS  int64  `bencode:"interval"`
	Complete   int64  `bencode:"complete"`
	Incomplete int64  `bencode:"incomplete"`
	PeersBlob  []byte `bencode:"peers"`
}

// announceFailure is the bencoded failure response's wire struct.
type announceFailure struct {
	FailureReason string `bencode:"failure reason"`
}

// AnnouncePeer is one peer entry to render into an announce response,
// in either compact or dictionary form depending on the request.
type AnnouncePeer struct {
	PeerID string
	IP     net.IP
	Port   uint16
}

// EncodeAnnounceSuccess renders a successful announce response. In
// compact mode, peers are packed as repeated 6-byte (IPv4) wire tuples
// bencoded as a single byte string; otherwise as a bencoded list of
// {peer id, ip, port} dictionaries, which naturally also carries IPv6
// literals (the HTTP transport's IPv6 path; see udpmsg for the UDP-only
// IPv4 restriction).
func EncodeAnnounceSuccess(intervalS int, complete, incomplete int, peers []AnnouncePeer, compact bool) ([]byte, error) {
	if compact {
		blob := make([]byte, 0, len(peers)*6)
		for _, p := range peers {
			v4 := p.IP.To4()
			if v4 == nil {
				continue
			}
			blob = append(blob, v4...)
			blob = append(blob, byte(p.Port>>8), byte(p.Port))
		}
		return bencode.Marshal(announceSuccess{
			IntervalS:  int64(intervalS),
			Complete:   int64(complete),
			Incomplete: int64(incomplete),
			PeersBlob:  blob,
		})
	}

	list := make([]any, 0, len(peers))
	for _, p := range peers {
		list = append(list, map[string]any{
			"peer id": []byte(p.PeerID),
			"ip":      []byte(p.IP.String()),
			"port":    int64(p.Port),
		})
	}
	m := map[string]any{
		"interval":   int64(intervalS),
		"complete":   int64(complete),
		"incomplete": int64(incomplete),
		"peers":      list,
	}
	return bencode.Encode(m)
}

// EncodeAnnounceFailure renders a tracker-level error response. The HTTP
// status is always 200; the failure is carried in the body (spec §6).
func EncodeAnnounceFailure(reason string) ([]byte, error) {
	return bencode.Marshal(announceFailure{FailureReason: reason})
}

// ScrapeRequest holds the repeated info_hash query parameters of
// GET /scrape.
type ScrapeRequest struct {
	InfoHashes [][20]byte
}

// ParseScrapeRequest decodes the repeated info_hash query parameters.
// No info_hash parameters means "scrape every known torrent", per BEP-48.
func ParseScrapeRequest(q url.Values) (ScrapeRequest, error) {
	raw := q["info_hash"]
	req := ScrapeRequest{InfoHashes: make([][20]byte, 0, len(raw))}
	for _, h := range raw {
		if len(h) != 20 {
			return ScrapeRequest{}, fmt.Errorf("info_hash must be 20 bytes, got %d", len(h))
		}
		var ih [20]byte
		copy(ih[:], h)
		req.InfoHashes = append(req.InfoHashes, ih)
	}
	return req, nil
}

// ScrapeFile is one torrent's stats in a scrape response.
type ScrapeFile struct {
	Complete   int64
	Downloaded int64
	Incomplete int64
}

// EncodeScrapeResponse renders a bencoded scrape response: a "files" dict
// keyed by raw 20-byte info-hash, per BEP-48.
func EncodeScrapeResponse(files map[[20]byte]ScrapeFile) ([]byte, error) {
	filesDict := make(map[string]any, len(files))
	for hash, stats := range files {
		filesDict[string(hash[:])] = map[string]any{
			"complete":   stats.Complete,
			"downloaded": stats.Downloaded,
			"incomplete": stats.Incomplete,
		}
	}
	return bencode.Encode(map[string]any{"files": filesDict})
}
