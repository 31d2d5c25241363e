package processor

import (
	"net/netip"
	"os"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/cdr"
	"pgw-gateway/internal/handler"
	"pgw-gateway/internal/ie"
	"pgw-gateway/internal/ioreactor"
	"pgw-gateway/internal/netio"
	"pgw-gateway/internal/ring"
	"pgw-gateway/internal/session"
)

func newTestProcessor(t *testing.T) (*Processor, ioreactor.Queues) {
	t.Helper()
	dir := t.TempDir()
	journal, err := cdr.New(dir+"/cdr.csv", 100000, log.StandardLogger())
	if err != nil {
		t.Fatalf("cdr.New: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	timeout := &atomic.Uint64{}
	timeout.Store(3600)
	rate := &atomic.Uint64{}
	rate.Store(10)
	store := session.New(timeout, rate, journal, map[ie.IMSI]struct{}{}, log.StandardLogger())
	t.Cleanup(func() { os.RemoveAll(dir) })

	stop := &atomic.Bool{}
	queues := ioreactor.Queues{
		HTTPIn:  ring.New[netio.Packet](10),
		UDPIn:   ring.New[netio.Packet](10),
		HTTPOut: ring.New[netio.Packet](10),
		UDPOut:  ring.New[netio.Packet](10),
	}

	udpH := handler.NewUDPHandler(store, log.StandardLogger())
	httpH := handler.NewHTTPHandler(store, stop, log.StandardLogger())
	return New(queues, udpH, httpH, log.StandardLogger()), queues
}

func TestProcessorHandlesUDPPacket(t *testing.T) {
	p, q := newTestProcessor(t)
	peer := netio.Endpoint{Addr: netip.MustParseAddr("127.0.0.1"), Port: 9999}
	q.UDPIn.Push(netio.Packet{Peer: peer, Data: ie.ToIE("123456789"), Kind: netio.UDP})

	if !p.step() {
		t.Fatalf("expected step to report busy")
	}

	resp, ok := q.UDPOut.Pop()
	if !ok {
		t.Fatalf("expected a response packet on udp_out")
	}
	if string(resp.Data) != "created" {
		t.Fatalf("unexpected response: %q", resp.Data)
	}
}

func TestProcessorIdlesWhenEmpty(t *testing.T) {
	p, _ := newTestProcessor(t)
	if p.step() {
		t.Fatalf("expected step to report idle on empty queues")
	}
}

func TestProcessorRunStopsOnceDrained(t *testing.T) {
	p, _ := newTestProcessor(t)
	stop := &atomic.Bool{}
	stop.Store(true)

	done := make(chan struct{})
	go func() {
		p.Run(stop)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not exit after stop was set on empty queues")
	}
}
