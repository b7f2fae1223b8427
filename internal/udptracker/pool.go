package udptracker

import (
	"net"
	"sync"
)

// bufferPool recycles read buffers across UDP packet reads, avoiding a
// fresh allocation on every inbound datagram. maxPacketSize is a typical
// unfragmented Ethernet MTU; larger packets are simply truncated by the
// kernel on read, which is the correct BEP-15 behavior (oversized packets
// are malformed).
const maxPacketSize = 1500

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, maxPacketSize)
		return &buf
	},
}

func getBuffer() *[]byte {
	buf := bufferPool.Get().(*[]byte)
	*buf = (*buf)[:maxPacketSize]
	return buf
}

func putBuffer(buf *[]byte) {
	bufferPool.Put(buf)
}

// peerSlicePool recycles the []net.UDPAddr scratch slice used to stage a
// swarm's sampled peers before packing them into the wire response, one
// per in-flight announce handler.
var peerSlicePool = sync.Pool{
	New: func() any {
		s := make([]net.UDPAddr, 0, defaultNumWant)
		return &s
	},
}

func getPeerSlice() *[]net.UDPAddr {
	s := peerSlicePool.Get().(*[]net.UDPAddr)
	*s = (*s)[:0]
	return s
}

func putPeerSlice(s *[]net.UDPAddr) {
	peerSlicePool.Put(s)
}
