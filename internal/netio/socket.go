package netio

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// ParseIPv4 validates a dotted-quad string the way the original's
// Socket::make_ip_address did (inet_pton semantics), returning a
// netip.Addr on success.
func ParseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("invalid IPv4 address %q", s)
	}
	return addr, nil
}

func sockaddr(addr netip.Addr, port uint16) *unix.SockaddrInet4 {
	sa := &unix.SockaddrInet4{Port: int(port)}
	sa.Addr = addr.As4()
	return sa
}

// ListenUDP creates, binds, and returns a non-blocking datagram
// socket fd. Mirrors UDP_Socket::listen_or_bind.
func ListenUDP(addr netip.Addr, port uint16) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, fmt.Errorf("create udp socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sockaddr(addr, port)); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind udp socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}
	return fd, nil
}

// ListenTCP creates, binds, and listens on a non-blocking stream
// socket fd. Mirrors TCP_Socket::listen_or_bind (backlog 5).
func ListenTCP(addr netip.Addr, port uint16) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("create tcp socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sockaddr(addr, port)); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind tcp socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}
	if err := unix.Listen(fd, 5); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// Accept accepts one pending connection off a listening stream fd,
// returning the new non-blocking client fd and its peer endpoint.
func Accept(listenFD int) (int, Endpoint, error) {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, Endpoint{}, err
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		unix.Close(nfd)
		return -1, Endpoint{}, fmt.Errorf("unexpected sockaddr type %T", sa)
	}
	ep := Endpoint{Addr: netip.AddrFrom4(sa4.Addr), Port: uint16(sa4.Port)}
	return nfd, ep, nil
}
