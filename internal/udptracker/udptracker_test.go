package udptracker

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/btcore/tracker/internal/btutil"
	"github.com/btcore/tracker/internal/swarm"
	"github.com/btcore/tracker/internal/trackerproto/udpmsg"
	"github.com/btcore/tracker/internal/whitelist"
)

// mockPacketConn implements net.PacketConn without a real UDP socket.
type mockPacketConn struct {
	writtenData []byte
}

func (m *mockPacketConn) ReadFrom([]byte) (int, net.Addr, error) { return 0, nil, nil }
func (m *mockPacketConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	m.writtenData = append([]byte{}, p...)
	return len(p), nil
}
func (m *mockPacketConn) Close() error                       { return nil }
func (m *mockPacketConn) LocalAddr() net.Addr                { return nil }
func (m *mockPacketConn) SetDeadline(time.Time) error        { return nil }
func (m *mockPacketConn) SetReadDeadline(time.Time) error    { return nil }
func (m *mockPacketConn) SetWriteDeadline(time.Time) error   { return nil }

func setupServer(t *testing.T) *Server {
	t.Helper()
	clock := btutil.NewFrozenClock(time.Unix(1_700_000_000, 0))
	registry := swarm.NewRegistry(clock)
	return New(Config{Port: 6969, Secret: "test-secret"}, registry, &whitelist.Whitelist{}, clock, zap.NewNop())
}

func TestHandleConnect_ResponseFormat(t *testing.T) {
	s := setupServer(t)
	mock := &mockPacketConn{}
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 6881}

	s.handleConnect(mock, addr, 12345)

	if len(mock.writtenData) != udpmsg.ConnectResponseSize {
		t.Fatalf("response length = %d, want %d", len(mock.writtenData), udpmsg.ConnectResponseSize)
	}
	if Action := binary.BigEndian.Uint32(mock.writtenData[0:4]); Action != uint32(udpmsg.ActionConnect) {
		t.Errorf("action = %d, want ActionConnect", Action)
	}
	if txID := binary.BigEndian.Uint32(mock.writtenData[4:8]); txID != 12345 {
		t.Errorf("transaction_id = %d, want 12345", txID)
	}
	if binary.BigEndian.Uint64(mock.writtenData[8:16]) == 0 {
		t.Error("connection_id should not be zero")
	}
}

func TestHandleConnect_RateLimitExceeded(t *testing.T) {
	s := setupServer(t)
	mock := &mockPacketConn{}
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 6881}

	for i := 0; i < rateLimitBurst; i++ {
		s.handleConnect(mock, addr, uint32(i))
	}
	s.handleConnect(mock, addr, uint32(rateLimitBurst))

	if Action := binary.BigEndian.Uint32(mock.writtenData[0:4]); Action != uint32(udpmsg.ActionError) {
		t.Fatalf("action = %d, want ActionError", Action)
	}
	if !bytes.Contains(mock.writtenData[8:], []byte("rate limit exceeded")) {
		t.Errorf("error message = %q, want to contain 'rate limit exceeded'", mock.writtenData[8:])
	}
}

func buildAnnouncePacket(connID uint64, transactionID uint32, infoHash, peerID string, event udpmsg.Event, port uint16) []byte {
	packet := make([]byte, udpmsg.AnnounceRequestSize)
	binary.BigEndian.PutUint64(packet[0:8], connID)
	binary.BigEndian.PutUint32(packet[8:12], uint32(udpmsg.ActionAnnounce))
	binary.BigEndian.PutUint32(packet[12:16], transactionID)
	copy(packet[16:36], infoHash)
	copy(packet[36:56], peerID)
	binary.BigEndian.PutUint32(packet[80:84], uint32(event))
	binary.BigEndian.PutUint16(packet[96:98], port)
	return packet
}

func TestHandleAnnounce_PacketTooShort(t *testing.T) {
	s := setupServer(t)
	mock := &mockPacketConn{}
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 6881}

	s.handleAnnounce(mock, addr, make([]byte, 50), 999)

	if Action := binary.BigEndian.Uint32(mock.writtenData[0:4]); Action != uint32(udpmsg.ActionError) {
		t.Fatalf("action = %d, want ActionError", Action)
	}
	if !bytes.Contains(mock.writtenData[8:], []byte("invalid packet size")) {
		t.Errorf("error message = %q", mock.writtenData[8:])
	}
}

func TestHandleAnnounce_PortZeroRejected(t *testing.T) {
	s := setupServer(t)
	mock := &mockPacketConn{}
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 6881}
	connID := s.signer.Generate(addr)

	packet := buildAnnouncePacket(connID, 1, "12345678901234567890", "peer1_______________", udpmsg.EventStarted, 0)
	s.handleAnnounce(mock, addr, packet, 1)

	if !bytes.Contains(mock.writtenData[8:], []byte("port cannot be 0")) {
		t.Errorf("error message = %q, want to contain 'port cannot be 0'", mock.writtenData[8:])
	}
}

func TestHandleAnnounce_UnknownTorrentRejected(t *testing.T) {
	s := setupServer(t)
	mock := &mockPacketConn{}
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 6881}
	connID := s.signer.Generate(addr)

	packet := buildAnnouncePacket(connID, 1, "12345678901234567890", "peer1_______________", udpmsg.EventStarted, 6881)
	s.handleAnnounce(mock, addr, packet, 1)

	if Action := binary.BigEndian.Uint32(mock.writtenData[0:4]); Action != uint32(udpmsg.ActionError) {
		t.Fatalf("action = %d, want ActionError for an unregistered torrent", Action)
	}
}

func TestHandleAnnounce_SuccessfulStartReturnsAnnounceResponse(t *testing.T) {
	s := setupServer(t)
	infoHash := swarm.NewInfoHash([]byte("12345678901234567890"))
	s.registry.Register(swarm.Descriptor{InfoHash: infoHash})

	mock := &mockPacketConn{}
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 6881}
	connID := s.signer.Generate(addr)

	packet := buildAnnouncePacket(connID, 1, "12345678901234567890", "peer1_______________", udpmsg.EventStarted, 6881)
	s.handleAnnounce(mock, addr, packet, 1)

	if Action := binary.BigEndian.Uint32(mock.writtenData[0:4]); Action != uint32(udpmsg.ActionAnnounce) {
		t.Fatalf("action = %d, want ActionAnnounce, response: %q", Action, mock.writtenData[8:])
	}
	if len(mock.writtenData) < 20 {
		t.Fatalf("len(response) = %d, want >= 20", len(mock.writtenData))
	}
}

func TestHandleAnnounce_RejectsUnwhitelistedTorrent(t *testing.T) {
	s := setupServer(t)
	infoHash := swarm.NewInfoHash([]byte("12345678901234567890"))
	s.registry.Register(swarm.Descriptor{InfoHash: infoHash})
	s.whitelist.Load(emptyWhitelistFile(t), zap.NewNop())

	mock := &mockPacketConn{}
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 6881}
	connID := s.signer.Generate(addr)

	packet := buildAnnouncePacket(connID, 1, "12345678901234567890", "peer1_______________", udpmsg.EventStarted, 6881)
	s.handleAnnounce(mock, addr, packet, 1)

	if !bytes.Contains(mock.writtenData[8:], []byte("not authorized")) {
		t.Errorf("error message = %q, want to contain 'not authorized'", mock.writtenData[8:])
	}
}

func emptyWhitelistFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whitelist.txt")
	if err := os.WriteFile(path, []byte{}, 0o600); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
	return path
}

func TestHandleScrape_UnregisteredTorrentYieldsZeroedEntry(t *testing.T) {
	s := setupServer(t)
	mock := &mockPacketConn{}
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 6881}

	packet := make([]byte, udpmsg.ScrapeRequestHeaderSize+20)
	binary.BigEndian.PutUint32(packet[8:12], uint32(udpmsg.ActionScrape))
	copy(packet[udpmsg.ScrapeRequestHeaderSize:], "12345678901234567890")

	s.handleScrape(mock, addr, packet, 1)

	if Action := binary.BigEndian.Uint32(mock.writtenData[0:4]); Action != uint32(udpmsg.ActionScrape) {
		t.Fatalf("action = %d, want ActionScrape", Action)
	}
	if len(mock.writtenData) != 20 || !bytes.Equal(mock.writtenData[8:20], make([]byte, 12)) {
		t.Errorf("scrape entries = %v, want one all-zero 12-byte entry", mock.writtenData[8:])
	}
}

func TestConnectionSigner_RejectsWrongAddress(t *testing.T) {
	clock := btutil.NewFrozenClock(time.Unix(1_700_000_000, 0))
	var secret [32]byte
	signer := newConnectionSigner(secret, clock)

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1}
	other := &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 1}

	id := signer.Generate(addr)
	if !signer.Validate(id, addr) {
		t.Error("Validate() = false for the issuing address")
	}
	if signer.Validate(id, other) {
		t.Error("Validate() = true for a different address")
	}
}

func TestConnectionSigner_RejectsExpired(t *testing.T) {
	clock := btutil.NewFrozenClock(time.Unix(1_700_000_000, 0))
	var secret [32]byte
	signer := newConnectionSigner(secret, clock)
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1}

	id := signer.Generate(addr)
	clock.Advance(3 * time.Minute)
	if signer.Validate(id, addr) {
		t.Error("Validate() = true for an expired connection ID")
	}
}
