// Package processor implements the single worker loop that drains the
// inbound queues, dispatches each packet to the matching application
// handler, and re-queues the response for the I/O reactor to send.
package processor

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/handler"
	"pgw-gateway/internal/ioreactor"
	"pgw-gateway/internal/netio"
)

// idleSleep is the yield between empty poll rounds, so the loop
// doesn't spin a core at 100% while both queues are drained.
const idleSleep = time.Millisecond

// Processor drains udp_in/http_in and feeds udp_out/http_out.
type Processor struct {
	queues ioreactor.Queues
	udp    *handler.UDPHandler
	http   *handler.HTTPHandler
	logger *log.Logger
}

// New constructs a processor bound to the given queues and handlers.
func New(queues ioreactor.Queues, udp *handler.UDPHandler, httpH *handler.HTTPHandler, logger *log.Logger) *Processor {
	return &Processor{queues: queues, udp: udp, http: httpH, logger: logger}
}

// Run drains both inbound queues until stop is set and they are empty.
func (p *Processor) Run(stop *atomic.Bool) {
	p.logger.Debug("processor thread started")
	for {
		busy := p.step()
		if stop.Load() && !busy {
			p.logger.Debug("processor thread stopped")
			return
		}
		if !busy {
			time.Sleep(idleSleep)
		}
	}
}

// step drains one packet off each inbound queue, if present, and
// reports whether either queue had work.
func (p *Processor) step() bool {
	busy := false

	if pkt, ok := p.queues.UDPIn.Pop(); ok {
		busy = true
		resp := p.udp.HandlePacket(pkt.Data)
		out := netio.Packet{Peer: pkt.Peer, Data: resp, Kind: netio.UDP}
		if !p.queues.UDPOut.Push(out) {
			p.logger.Warnf("udp out_queue is FULL, drop response to %s", pkt.Peer)
		}
	}

	if pkt, ok := p.queues.HTTPIn.Pop(); ok {
		busy = true
		resp := p.http.HandlePacket(pkt.Data)
		out := netio.Packet{Peer: pkt.Peer, Data: resp, Kind: netio.HTTP, ConnFD: pkt.ConnFD}
		if !p.queues.HTTPOut.Push(out) {
			p.logger.Warnf("http out_queue is FULL, drop response to %s", pkt.Peer)
		}
	}

	return busy
}
