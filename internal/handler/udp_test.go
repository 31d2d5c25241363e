package handler

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/cdr"
	"pgw-gateway/internal/ie"
	"pgw-gateway/internal/session"
)

func newTestUDPHandler(t *testing.T) (*UDPHandler, *session.Store) {
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

	store := session.New(timeout, rate, journal, map[ie.IMSI]struct{}{"0123456789": {}}, log.StandardLogger())
	t.Cleanup(func() { os.RemoveAll(dir) })

	return NewUDPHandler(store, log.StandardLogger()), store
}

func TestUDPHandlerCreateThenUpdateThenDebounce(t *testing.T) {
	h, _ := newTestUDPHandler(t)
	payload := ie.ToIE("123456789")

	resp := h.HandlePacket(payload)
	if string(resp) != "created" {
		t.Fatalf("expected created, got %q", resp)
	}

	time.Sleep(600 * time.Millisecond)
	resp = h.HandlePacket(payload)
	if string(resp) != "updated" {
		t.Fatalf("expected updated, got %q", resp)
	}

	resp = h.HandlePacket(payload)
	if string(resp) != "rejected, the last update was too recent" {
		t.Fatalf("expected debounce rejection, got %q", resp)
	}
}

func TestUDPHandlerRejectsBlacklisted(t *testing.T) {
	h, _ := newTestUDPHandler(t)
	payload := ie.ToIE("0123456789")

	resp := h.HandlePacket(payload)
	if string(resp) != "rejected, IMSI blacklisted or error creating session" {
		t.Fatalf("expected blacklist rejection, got %q", resp)
	}
}

func TestUDPHandlerRejectsMalformedIE(t *testing.T) {
	h, _ := newTestUDPHandler(t)
	resp := h.HandlePacket([]byte{0x02, 0x00, 0x00, 0x00})
	if string(resp) != "rejected, not IMSI IE" {
		t.Fatalf("expected IE rejection, got %q", resp)
	}
}
