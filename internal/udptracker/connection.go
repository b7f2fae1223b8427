package udptracker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"net"
	"time"

	"github.com/btcore/tracker/internal/btutil"
)

// connectionIDLifetime is BEP-15's 2-minute validity window for a
// connection ID.
const connectionIDLifetime = 2 * time.Minute

// connectionSigner issues and validates stateless syn-cookie connection
// IDs: [32-bit timestamp][32-bit HMAC-SHA256 signature over client IP and
// timestamp]. No server-side session table is kept, so a flood of connect
// requests from spoofed sources costs the tracker nothing beyond computing
// a MAC.
type connectionSigner struct {
	secret [32]byte
	clock  btutil.Clock
}

func newConnectionSigner(secret [32]byte, clock btutil.Clock) *connectionSigner {
	return &connectionSigner{secret: secret, clock: clock}
}

func (s *connectionSigner) sign(ip net.IP, timestamp uint32) uint32 {
	mac := hmac.New(sha256.New, s.secret[:])
	mac.Write(ip.To16())
	var tsBytes [4]byte
	binary.BigEndian.PutUint32(tsBytes[:], timestamp)
	mac.Write(tsBytes[:])
	return binary.BigEndian.Uint32(mac.Sum(nil)[:4])
}

// Generate mints a connection ID for addr valid for connectionIDLifetime.
func (s *connectionSigner) Generate(addr *net.UDPAddr) uint64 {
	//nolint:gosec // wraps in year 2106, outside this tracker's operational horizon
	timestamp := uint32(s.clock.Now().Unix())
	sig := s.sign(addr.IP, timestamp)
	return uint64(timestamp)<<32 | uint64(sig)
}

// Validate reports whether id was issued by Generate for addr and has not
// expired.
func (s *connectionSigner) Validate(id uint64, addr *net.UDPAddr) bool {
	timestamp := uint32(id >> 32)
	if s.clock.Now().Sub(time.Unix(int64(timestamp), 0)) > connectionIDLifetime {
		return false
	}
	return uint32(id) == s.sign(addr.IP, timestamp)
}
