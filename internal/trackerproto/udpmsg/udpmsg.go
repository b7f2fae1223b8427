// Package udpmsg packs and unpacks BEP-15 UDP tracker protocol messages:
// Connect, Announce, Scrape, and Error, for both request and response
// directions.
package udpmsg

import (
	"encoding/binary"
	"net"

	"github.com/btcore/tracker/internal/btutil"
)

// ProtocolID is BEP-15's fixed "magic constant" a connect request must
// carry as its connection ID.
const ProtocolID = 0x41727101980

// Action identifies the kind of UDP tracker message.
type Action uint32

const (
	ActionConnect  Action = 0
	ActionAnnounce Action = 1
	ActionScrape   Action = 2
	ActionError    Action = 3
)

// Event is the UDP wire encoding of an announce event. Values match
// BEP-15 exactly and do NOT line up with swarm.Event's ordering.
type Event uint32

const (
	EventNone      Event = 0
	EventCompleted Event = 1
	EventStarted   Event = 2
	EventStopped   Event = 3
)

const (
	// HeaderSize is the common header length shared by every non-connect
	// UDP tracker message: connection_id:8 + action:4 + transaction_id:4.
	HeaderSize = 16
	headerSize = HeaderSize

	// ConnectRequestSize is the fixed size of a connect request packet.
	ConnectRequestSize = headerSize

	// ConnectResponseSize is the fixed size of a connect response packet:
	// action:4 + transaction_id:4 + connection_id:8.
	ConnectResponseSize = 4 + 4 + 8

	// AnnounceRequestSize is the fixed size of an announce request packet:
	// connection_id:8 + action:4 + transaction_id:4 + info_hash:20 +
	// peer_id:20 + downloaded:8 + left:8 + uploaded:8 + event:4 + ip:4 +
	// key:4 + num_want:4 + port:2.
	AnnounceRequestSize = 98

	announceResponseHeaderSize = 20 // action:4 + transaction_id:4 + interval:4 + leechers:4 + seeders:4

	// ScrapeRequestHeaderSize is the fixed portion of a scrape request,
	// before the repeated info_hash entries.
	ScrapeRequestHeaderSize = headerSize

	scrapeResponseHeaderSize = 8  // action:4 + transaction_id:4
	scrapeEntrySize          = 12 // seeders:4 + completed:4 + leechers:4

	// PeerV4Size is the wire size of one IPv4 peer tuple: ip:4 + port:2.
	PeerV4Size = btutil.PeerV4Size
)

// Header is the common prefix of every non-connect UDP tracker message.
type Header struct {
	ConnectionID  uint64
	Action        Action
	TransactionID uint32
}

// ParseHeader reads the 16-byte header common to every UDP tracker
// message. Callers must check len(packet) >= headerSize first.
func ParseHeader(packet []byte) Header {
	return Header{
		ConnectionID:  binary.BigEndian.Uint64(packet[0:8]),
		Action:        Action(binary.BigEndian.Uint32(packet[8:12])),
		TransactionID: binary.BigEndian.Uint32(packet[12:16]),
	}
}

// AnnounceRequest holds the parsed fields of an announce request packet.
type AnnounceRequest struct {
	Header
	InfoHash   [20]byte
	PeerID     [20]byte
	Downloaded int64
	Left       int64
	Uploaded   int64
	Event      Event
	IP         uint32
	Key        uint32
	NumWant    uint32
	Port       uint16
}

// ParseAnnounceRequest extracts every field from an announce request
// packet. Returns ok=false if the packet is too short.
func ParseAnnounceRequest(packet []byte) (AnnounceRequest, bool) {
	if len(packet) < AnnounceRequestSize {
		return AnnounceRequest{}, false
	}
	var req AnnounceRequest
	req.Header = ParseHeader(packet)
	copy(req.InfoHash[:], packet[16:36])
	copy(req.PeerID[:], packet[36:56])
	//nolint:gosec // wire field is a signed 64-bit counter by BEP-15 convention
	req.Downloaded = int64(binary.BigEndian.Uint64(packet[56:64]))
	//nolint:gosec
	req.Left = int64(binary.BigEndian.Uint64(packet[64:72]))
	//nolint:gosec
	req.Uploaded = int64(binary.BigEndian.Uint64(packet[72:80]))
	req.Event = Event(binary.BigEndian.Uint32(packet[80:84]))
	req.IP = binary.BigEndian.Uint32(packet[84:88])
	req.Key = binary.BigEndian.Uint32(packet[88:92])
	req.NumWant = binary.BigEndian.Uint32(packet[92:96])
	req.Port = binary.BigEndian.Uint16(packet[96:98])
	return req, true
}

// AnnounceResponse is the wire form of a successful announce reply.
// Peers is the pre-packed, fixed-size peer-tuple payload (IPv4-only, per
// the resolved Open Question on UDP's fixed 6-byte wire format).
type AnnounceResponse struct {
	TransactionID uint32
	IntervalS     uint32
	Leechers      uint32
	Seeders       uint32
	Peers         []byte
}

// Encode packs an AnnounceResponse into its wire form. Field order is
// action, transaction_id, interval, leechers, seeders, peers —
// incomplete (leechers) strictly before complete (seeders), the BEP-15
// quirk carried over from the original Java reference implementation.
func (r AnnounceResponse) Encode() []byte {
	buf := make([]byte, announceResponseHeaderSize+len(r.Peers))
	binary.BigEndian.PutUint32(buf[0:4], uint32(ActionAnnounce))
	binary.BigEndian.PutUint32(buf[4:8], r.TransactionID)
	binary.BigEndian.PutUint32(buf[8:12], r.IntervalS)
	binary.BigEndian.PutUint32(buf[12:16], r.Leechers)
	binary.BigEndian.PutUint32(buf[16:20], r.Seeders)
	copy(buf[20:], r.Peers)
	return buf
}

// ScrapeRequest holds the parsed info-hashes of a scrape request.
type ScrapeRequest struct {
	Header
	InfoHashes [][20]byte
}

// ParseScrapeRequest extracts the header and the repeated 20-byte
// info-hash entries following it.
func ParseScrapeRequest(packet []byte) (ScrapeRequest, bool) {
	if len(packet) < ScrapeRequestHeaderSize {
		return ScrapeRequest{}, false
	}
	req := ScrapeRequest{Header: ParseHeader(packet)}
	n := (len(packet) - ScrapeRequestHeaderSize) / 20
	req.InfoHashes = make([][20]byte, n)
	for i := 0; i < n; i++ {
		off := ScrapeRequestHeaderSize + i*20
		copy(req.InfoHashes[i][:], packet[off:off+20])
	}
	return req, true
}

// ScrapeEntry is one torrent's stats in a scrape response.
type ScrapeEntry struct {
	Seeders    uint32
	Downloaded uint32
	Leechers   uint32
}

// EncodeScrapeResponse packs a scrape response: header + one ScrapeEntry
// per requested info-hash, in request order.
func EncodeScrapeResponse(transactionID uint32, entries []ScrapeEntry) []byte {
	buf := make([]byte, scrapeResponseHeaderSize+len(entries)*scrapeEntrySize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(ActionScrape))
	binary.BigEndian.PutUint32(buf[4:8], transactionID)
	off := scrapeResponseHeaderSize
	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[off:off+4], e.Seeders)
		binary.BigEndian.PutUint32(buf[off+4:off+8], e.Downloaded)
		binary.BigEndian.PutUint32(buf[off+8:off+12], e.Leechers)
		off += scrapeEntrySize
	}
	return buf
}

// EncodeConnectResponse packs a connect response: action, transaction_id,
// connection_id.
func EncodeConnectResponse(transactionID uint32, connectionID uint64) []byte {
	buf := make([]byte, ConnectResponseSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(ActionConnect))
	binary.BigEndian.PutUint32(buf[4:8], transactionID)
	binary.BigEndian.PutUint64(buf[8:16], connectionID)
	return buf
}

// EncodeError packs an error response: action, transaction_id, followed
// by the raw message bytes (no length prefix, per BEP-15).
func EncodeError(transactionID uint32, message string) []byte {
	buf := make([]byte, 8+len(message))
	binary.BigEndian.PutUint32(buf[0:4], uint32(ActionError))
	binary.BigEndian.PutUint32(buf[4:8], transactionID)
	copy(buf[8:], message)
	return buf
}

// PackPeersV4 packs ip:port tuples into the UDP wire's fixed 6-byte peer
// format, dropping any peer whose address isn't IPv4 (the resolved Open
// Question: UDP responses are IPv4-only; see httpmsg for the IPv6 path).
func PackPeersV4(addrs []net.UDPAddr) []byte {
	out := make([]byte, 0, len(addrs)*PeerV4Size)
	for _, a := range addrs {
		if a.IP.To4() == nil {
			continue
		}
		//nolint:gosec // port is bounded to uint16 range by the listener
		out = btutil.PackPeerV4(out, a.IP, uint16(a.Port))
	}
	return out
}
