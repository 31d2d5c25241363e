// Package handler implements the UDP and HTTP application logic that
// the processor loop dispatches packets to: decoding requests,
// driving the session store, and building response payloads.
package handler

import (
	"time"

	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/ie"
	"pgw-gateway/internal/session"
)

// UDPHandler turns raw UDP datagrams into session store operations.
type UDPHandler struct {
	store  *session.Store
	logger *log.Logger
}

// NewUDPHandler constructs a handler bound to store.
func NewUDPHandler(store *session.Store, logger *log.Logger) *UDPHandler {
	return &UDPHandler{store: store, logger: logger}
}

// HandlePacket decodes the IMSI IE out of data and returns the
// response payload the I/O worker should send back to the peer.
//
// An unrecognized IE is rejected outright. A recognized IMSI with no
// existing session is created, unless blacklisted. A recognized IMSI
// with an existing session is treated as a keepalive and updated,
// subject to the debounce window.
func (h *UDPHandler) HandlePacket(data []byte) []byte {
	id, err := ie.FromIE(data)
	if err != nil {
		h.logger.Debugf("UDP packet rejected: %v", err)
		return []byte("rejected, not IMSI IE")
	}

	if _, exists := h.store.Read(id); exists {
		if h.store.Update(id, session.Session{}) {
			return []byte("updated")
		}
		return []byte("rejected, the last update was too recent")
	}

	if h.store.Create(id, session.Session{IMSI: id, LastActivity: time.Now()}) {
		return []byte("created")
	}
	return []byte("rejected, IMSI blacklisted or error creating session")
}
