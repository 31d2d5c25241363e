package ioreactor

import (
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"pgw-gateway/internal/netio"
	"pgw-gateway/internal/ring"
)

func newTestQueues() Queues {
	return Queues{
		HTTPIn:  ring.New[netio.Packet](8),
		UDPIn:   ring.New[netio.Packet](8),
		HTTPOut: ring.New[netio.Packet](8),
		UDPOut:  ring.New[netio.Packet](8),
	}
}

func popWithin(t *testing.T, q *ring.Queue[netio.Packet], timeout time.Duration) netio.Packet {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pkt, ok := q.Pop(); ok {
			return pkt
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for a queued packet")
	return netio.Packet{}
}

func TestWorkerUDPReadAndWrite(t *testing.T) {
	w, err := NewWorker("127.0.0.1", 0, "127.0.0.1", 0, testLogger())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	q := newTestQueues()
	stop := &atomic.Bool{}
	done := make(chan struct{})
	go func() { w.Run(stop, q); close(done) }()
	defer func() {
		stop.Store(true)
		<-done
		w.Close()
	}()

	udpPort := socketPort(t, w.udpFD)
	loopback := netip.MustParseAddr("127.0.0.1")

	peerFD, err := netio.ListenUDP(loopback, 0)
	if err != nil {
		t.Fatalf("ListenUDP peer: %v", err)
	}
	defer unix.Close(peerFD)
	peerPort := socketPort(t, peerFD)

	if err := unix.Sendto(peerFD, []byte("attach"), 0, &unix.SockaddrInet4{Port: int(udpPort), Addr: loopback.As4()}); err != nil {
		t.Fatalf("Sendto: %v", err)
	}

	pkt := popWithin(t, q.UDPIn, time.Second)
	if string(pkt.Data) != "attach" {
		t.Fatalf("unexpected payload: %q", pkt.Data)
	}
	if pkt.Peer.Port != peerPort {
		t.Fatalf("unexpected peer port: %d want %d", pkt.Peer.Port, peerPort)
	}

	q.UDPOut.Push(netio.Packet{Peer: pkt.Peer, Data: []byte("created"), Kind: netio.UDP})

	buf := make([]byte, 64)
	if err := unix.SetNonblock(peerFD, true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	var n int
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got, _, err := unix.Recvfrom(peerFD, buf, 0)
		if err == nil {
			n = got
			break
		}
		if err != unix.EAGAIN {
			t.Fatalf("Recvfrom: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if string(buf[:n]) != "created" {
		t.Fatalf("unexpected response payload: %q", buf[:n])
	}
}

func TestWorkerHTTPReadWriteAndHUP(t *testing.T) {
	w, err := NewWorker("127.0.0.1", 0, "127.0.0.1", 0, testLogger())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	q := newTestQueues()
	stop := &atomic.Bool{}
	done := make(chan struct{})
	go func() { w.Run(stop, q); close(done) }()
	defer func() {
		stop.Store(true)
		<-done
		w.Close()
	}()

	httpPort := socketPort(t, w.httpFD)
	loopback := netip.MustParseAddr("127.0.0.1")

	clientFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("client socket: %v", err)
	}
	if err := unix.Connect(clientFD, &unix.SockaddrInet4{Port: int(httpPort), Addr: loopback.As4()}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	request := "GET /check_subscriber HTTP/1.1\r\nHost: x\r\n\r\n"
	if _, err := unix.Write(clientFD, []byte(request)); err != nil {
		t.Fatalf("write: %v", err)
	}

	pkt := popWithin(t, q.HTTPIn, time.Second)
	if string(pkt.Data) != request {
		t.Fatalf("unexpected request payload: %q", pkt.Data)
	}

	q.HTTPOut.Push(netio.Packet{Data: []byte("HTTP/1.1 200 OK\r\n\r\n"), Kind: netio.HTTP, ConnFD: pkt.ConnFD})

	if err := unix.SetNonblock(clientFD, true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	buf := make([]byte, 64)
	var n int
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got, err := unix.Read(clientFD, buf)
		if err == nil {
			n = got
			break
		}
		if err != unix.EAGAIN {
			t.Fatalf("Read: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if string(buf[:n]) != "HTTP/1.1 200 OK\r\n\r\n" {
		t.Fatalf("unexpected response payload: %q", buf[:n])
	}

	// Closing the client fd should surface as a HUP the reactor
	// deregisters without crashing.
	unix.Close(clientFD)
	time.Sleep(50 * time.Millisecond)
}

func socketPort(t *testing.T, fd int) uint16 {
	t.Helper()
	sa, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	return uint16(sa.(*unix.SockaddrInet4).Port)
}
