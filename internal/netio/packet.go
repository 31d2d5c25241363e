// Package netio provides the non-blocking datagram and stream socket
// primitives the I/O reactor multiplexes, plus the Packet/Endpoint
// types that flow through the SPSC queues between it and the
// processor loop.
//
// Per Design Notes §9, the source's Socket/Connection/Packet class
// hierarchy collapses here into a transport-kind tag on a single
// Packet struct and two concrete connection types — no polymorphic
// dispatch is needed.
package netio

import (
	"fmt"
	"net/netip"
)

// Kind tags which transport a Packet belongs to, so an outbound
// packet routes back through the correct side of the reactor.
type Kind int

const (
	UDP Kind = iota
	HTTP
)

func (k Kind) String() string {
	switch k {
	case UDP:
		return "UDP"
	case HTTP:
		return "HTTP"
	default:
		return "unknown"
	}
}

// Endpoint is an IPv4 address and port.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Addr, e.Port)
}

// Packet is the unit of work exchanged between the I/O reactor and the
// processor. ConnFD identifies the accepted stream connection an HTTP
// packet must be answered on; it is unused for UDP packets, which are
// instead routed back to Peer.
type Packet struct {
	Peer   Endpoint
	Data   []byte
	Kind   Kind
	ConnFD int
}

// BuffSize is the fixed per-call read size the reactor uses for both
// datagram and stream recv operations. Requests or datagrams larger
// than this are, by design, read in a single truncated call — see
// Design Notes open question (a).
const BuffSize = 1024

// MaxHTTPSize bounds the size of a single HTTP request buffer the HTTP
// handler accepts; a larger buffer is answered with 400 without being
// parsed. The I/O worker does not accumulate stream reads: each packet
// it queues holds the bytes of one read, at most BuffSize.
const MaxHTTPSize = 8192
