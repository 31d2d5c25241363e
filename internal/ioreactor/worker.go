package ioreactor

import (
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"pgw-gateway/internal/netio"
	"pgw-gateway/internal/ring"
)

// drainIterations is how many extra reactor ticks run after stop is
// observed, to flush in-flight outbound packets before returning.
const drainIterations = 10

// Worker is the single-threaded reactor: it owns the registrar, both
// listeners, the server-side UDP connection, and the map of accepted
// HTTP connections. It is never touched by more than one goroutine.
type Worker struct {
	logger *log.Logger

	registrar *Registrar

	udpFD   int
	udpConn *netio.UDPConn

	httpFD int

	conns map[int]*netio.StreamConn

	// pendingHTTP holds at most one outbound HTTP packet when its
	// destination connection isn't writable yet (Design Notes open
	// question (b)): the packet is retried on each WRITE-ready tick
	// until it either matches a connection or that connection HUPs.
	pendingHTTP *netio.Packet
}

// NewWorker constructs the registrar and both listeners. Any failure
// here is fatal to the caller, per §4.5.
func NewWorker(udpAddr string, udpPort uint16, httpAddr string, httpPort uint16, logger *log.Logger) (*Worker, error) {
	registrar, err := NewRegistrar()
	if err != nil {
		return nil, fmt.Errorf("create registrar: %w", err)
	}

	uip, err := netio.ParseIPv4(udpAddr)
	if err != nil {
		registrar.Close()
		return nil, fmt.Errorf("udp ip: %w", err)
	}
	hip, err := netio.ParseIPv4(httpAddr)
	if err != nil {
		registrar.Close()
		return nil, fmt.Errorf("http ip: %w", err)
	}

	udpFD, err := netio.ListenUDP(uip, udpPort)
	if err != nil {
		registrar.Close()
		return nil, fmt.Errorf("bind udp listener: %w", err)
	}

	httpFD, err := netio.ListenTCP(hip, httpPort)
	if err != nil {
		unix.Close(udpFD)
		registrar.Close()
		return nil, fmt.Errorf("bind http listener: %w", err)
	}

	if err := registrar.Register(httpFD, EventRead); err != nil {
		unix.Close(udpFD)
		unix.Close(httpFD)
		registrar.Close()
		return nil, fmt.Errorf("register http listener: %w", err)
	}
	if err := registrar.Register(udpFD, EventRead|EventWrite); err != nil {
		unix.Close(udpFD)
		unix.Close(httpFD)
		registrar.Close()
		return nil, fmt.Errorf("register udp listener: %w", err)
	}

	return &Worker{
		logger:    logger,
		registrar: registrar,
		udpFD:     udpFD,
		udpConn:   &netio.UDPConn{FD: udpFD},
		httpFD:    httpFD,
		conns:     make(map[int]*netio.StreamConn),
	}, nil
}

// Queues bundles the four SPSC queues Run shuttles packets through.
type Queues struct {
	HTTPIn  *ring.Queue[netio.Packet]
	UDPIn   *ring.Queue[netio.Packet]
	HTTPOut *ring.Queue[netio.Packet]
	UDPOut  *ring.Queue[netio.Packet]
}

// Run drives the reactor loop until stop is observed, then continues
// for drainIterations more ticks before returning.
func (w *Worker) Run(stop *atomic.Bool, q Queues) {
	ctr := 0
	for ctr < drainIterations {
		if stop.Load() {
			ctr++
		}

		events, err := w.registrar.Wait()
		if err != nil {
			w.logger.Warnf("epoll_wait error: %v", err)
			continue
		}

		for _, ev := range events {
			fd := int(ev.Fd)

			switch {
			case fd == w.httpFD:
				w.handleHTTPListener(ev)
			case fd == w.udpFD:
				w.handleUDP(ev, q)
			default:
				w.handleHTTPConn(fd, ev, q)
			}
		}
	}

	for fd := range w.conns {
		if err := w.registrar.Deregister(fd); err != nil {
			w.logger.Infof("can't deregister socket fd=%d: %v", fd, err)
		}
		delete(w.conns, fd)
	}
}

func (w *Worker) handleHTTPListener(ev unix.EpollEvent) {
	if ev.Events&EventRead == 0 {
		return
	}

	clientFD, peer, err := netio.Accept(w.httpFD)
	if err != nil {
		w.logger.Warnf("client accept failed: %v", err)
		return
	}

	if err := w.registrar.Register(clientFD, EventRead|EventWrite); err != nil {
		w.logger.Warnf("client register failed fd=%d: %v", clientFD, err)
		unix.Close(clientFD)
		return
	}

	w.conns[clientFD] = &netio.StreamConn{FD: clientFD, Peer: peer}
}

func (w *Worker) handleUDP(ev unix.EpollEvent, q Queues) {
	if ev.Events&EventRead != 0 {
		data, peer, ok, err := w.udpConn.Recv()
		if err != nil {
			w.logger.Warnf("udp recv error: %v", err)
		} else if ok && len(data) > 0 {
			pkt := netio.Packet{Peer: peer, Data: data, Kind: netio.UDP}
			if !q.UDPIn.Push(pkt) {
				w.logger.Warnf("udp in_queue is FULL, drop packet from %s", peer)
			}
		}
	}

	if ev.Events&EventWrite != 0 {
		if pkt, ok := q.UDPOut.Pop(); ok {
			if err := w.udpConn.Send(pkt.Data, pkt.Peer); err != nil {
				w.logger.Warnf("udp send error: %v", err)
			}
		}
	}
}

func (w *Worker) handleHTTPConn(fd int, ev unix.EpollEvent, q Queues) {
	conn, known := w.conns[fd]
	if !known {
		if ev.Events&(EventHUP|EventRDHUP) == 0 {
			w.logger.Infof("event on unregistered fd=%d", fd)
		}
		return
	}

	if ev.Events&EventRead != 0 {
		data, ok, err := conn.Recv()
		if err != nil {
			w.logger.Warnf("http recv error from %s: %v", conn.Peer, err)
		} else if ok && len(data) > 0 {
			pkt := netio.Packet{Peer: conn.Peer, Data: data, Kind: netio.HTTP, ConnFD: fd}
			if !q.HTTPIn.Push(pkt) {
				w.logger.Warnf("http in_queue is FULL, drop packet from %s", conn.Peer)
			}
		}
	}

	if ev.Events&EventWrite != 0 {
		if w.pendingHTTP == nil {
			if pkt, ok := q.HTTPOut.Pop(); ok {
				w.pendingHTTP = &pkt
			}
		}

		if w.pendingHTTP != nil && w.pendingHTTP.ConnFD == fd {
			w.logger.Debugf("sending http response to %s", conn.Peer)
			if err := conn.Send(w.pendingHTTP.Data); err != nil {
				w.logger.Warnf("http send error to %s: %v", conn.Peer, err)
			}
			w.pendingHTTP = nil
		}
	}

	if ev.Events&(EventHUP|EventRDHUP) != 0 {
		w.logger.Debugf("deregister socket %s fd=%d", conn.Peer, fd)
		if err := w.registrar.Deregister(fd); err != nil {
			w.logger.Infof("can't deregister socket %s fd=%d: %v", conn.Peer, fd, err)
			return
		}
		if w.pendingHTTP != nil && w.pendingHTTP.ConnFD == fd {
			w.pendingHTTP = nil
		}
		delete(w.conns, fd)
	}
}

// Close deregisters both listeners. Called once Run has returned.
func (w *Worker) Close() {
	if err := w.registrar.Deregister(w.udpFD); err != nil {
		w.logger.Infof("can't deregister udp listener fd=%d: %v", w.udpFD, err)
	}
	if err := w.registrar.Deregister(w.httpFD); err != nil {
		w.logger.Infof("can't deregister http listener fd=%d: %v", w.httpFD, err)
	}
	w.registrar.Close()
}
