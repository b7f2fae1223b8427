// Package btutil holds small, dependency-free helpers shared across the
// tracker: wall-clock abstraction and wire-level peer packing that doesn't
// belong to any single protocol package.
package btutil

import (
	"encoding/binary"
	"net"
)

// PeerV4Size is the wire size of a single compact IPv4 peer tuple: 4 bytes
// of address followed by a big-endian uint16 port.
const PeerV4Size = 6

// PackPeerV4 appends ip (must be an IPv4 address) and port to dst in the
// compact 6-byte form used by both the HTTP "compact=1" peer string and
// every BEP-15 UDP peer tuple.
func PackPeerV4(dst []byte, ip net.IP, port uint16) []byte {
	v4 := ip.To4()
	dst = append(dst, v4...)
	return binary.BigEndian.AppendUint16(dst, port)
}

// UnpackPeersV4 splits a compact peer byte string into (ip, port) pairs.
// Trailing bytes that don't form a complete 6-byte tuple are ignored.
func UnpackPeersV4(data []byte) []net.UDPAddr {
	n := len(data) / PeerV4Size
	peers := make([]net.UDPAddr, 0, n)
	for i := 0; i < n; i++ {
		off := i * PeerV4Size
		ip := net.IPv4(data[off], data[off+1], data[off+2], data[off+3])
		port := binary.BigEndian.Uint16(data[off+4 : off+6])
		peers = append(peers, net.UDPAddr{IP: ip, Port: int(port)})
	}
	return peers
}
