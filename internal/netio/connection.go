package netio

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// UDPConn is the server-side datagram endpoint: one fd used both to
// receive inbound attach requests and to send responses, so outgoing
// datagrams appear to originate from the listening port (Design Notes
// open question (c) — retained intentionally).
type UDPConn struct {
	FD int
}

// Recv performs a single recvfrom call of up to BuffSize bytes. An
// empty datagram is a legal outcome and is reported with a zero-length
// Data slice and ok=true.
func (c *UDPConn) Recv() (data []byte, peer Endpoint, ok bool, err error) {
	buf := make([]byte, BuffSize)
	n, from, err := unix.Recvfrom(c.FD, buf, 0)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, Endpoint{}, false, nil
		}
		return nil, Endpoint{}, false, err
	}
	sa4, good := from.(*unix.SockaddrInet4)
	if !good {
		return nil, Endpoint{}, false, fmt.Errorf("unexpected sockaddr type %T", from)
	}
	peer = Endpoint{Addr: netip.AddrFrom4(sa4.Addr), Port: uint16(sa4.Port)}
	return buf[:n], peer, true, nil
}

// Send performs a single sendto call and returns its error, if any.
// No short-send check is made: unix.Sendto reports no byte count.
func (c *UDPConn) Send(data []byte, peer Endpoint) error {
	sa := sockaddr(peer.Addr, peer.Port)
	// unix.Sendto has no short-write outcome for datagrams on Linux:
	// a successful call always transmits the whole buffer as one
	// packet, so an error is the only failure outcome here.
	if err := unix.Sendto(c.FD, data, 0, sa); err != nil {
		return fmt.Errorf("sendto %s: %w", peer, err)
	}
	return nil
}

// StreamConn is an accepted TCP connection's fd.
type StreamConn struct {
	FD   int
	Peer Endpoint
}

// Recv performs a single read of up to BuffSize bytes. An empty read
// (connection drained, nothing pending) is legal.
func (c *StreamConn) Recv() (data []byte, ok bool, err error) {
	buf := make([]byte, BuffSize)
	n, err := unix.Read(c.FD, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, false, nil
		}
		return nil, false, err
	}
	return buf[:n], true, nil
}

// Send writes data to the connection in one call, failing on a short
// write.
func (c *StreamConn) Send(data []byte) error {
	n, err := unix.Write(c.FD, data)
	if err != nil {
		return fmt.Errorf("write to %s: %w", c.Peer, err)
	}
	if n < len(data) {
		return fmt.Errorf("short write to %s: %d of %d bytes", c.Peer, n, len(data))
	}
	return nil
}

// Close deregisters nothing by itself — the caller (the reactor) owns
// epoll deregistration — it only closes the underlying fd.
func (c *StreamConn) Close() error {
	return unix.Close(c.FD)
}
