package handler

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/ie"
	"pgw-gateway/internal/netio"
	"pgw-gateway/internal/session"
)

// HTTPHandler implements the control plane: /check_subscriber queries
// whether a session is active, /stop requests graceful shutdown.
//
// The router is built once and used only for path matching via
// Router.Match — no http.Server ever runs. Each request arrives as a
// single already-buffered byte slice read off a stream connection by
// the I/O worker, per the single-read parsing model.
type HTTPHandler struct {
	store  *session.Store
	stop   *atomic.Bool
	router *mux.Router
	logger *log.Logger
}

// NewHTTPHandler constructs a handler bound to store, signaling shutdown
// through stop when /stop is invoked. The router matches on path only —
// the original process_request never inspects the method either.
func NewHTTPHandler(store *session.Store, stop *atomic.Bool, logger *log.Logger) *HTTPHandler {
	h := &HTTPHandler{store: store, stop: stop, logger: logger}
	h.router = mux.NewRouter()
	h.router.Path("/check_subscriber")
	h.router.Path("/stop")
	return h
}

// HandlePacket parses the buffered HTTP request in data and returns
// the full wire response (status line, headers, body) to write back
// on the same connection. Requests over MaxHTTPSize are rejected
// without being parsed, per the original's handle_packet guard.
func (h *HTTPHandler) HandlePacket(data []byte) []byte {
	if len(data) > netio.MaxHTTPSize {
		h.logger.Debugf("HTTP request too large: %d bytes", len(data))
		return renderResponse(http.StatusBadRequest, "")
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		h.logger.Debugf("malformed HTTP request: %v", err)
		return renderResponse(http.StatusBadRequest, "")
	}

	var match mux.RouteMatch
	if !h.router.Match(req, &match) {
		h.logger.Debugf("unrecognized HTTP path %s", req.URL.Path)
	}

	switch req.URL.Path {
	case "/check_subscriber":
		return h.checkSubscriber(req)
	case "/stop":
		return h.handleStop()
	default:
		return renderResponse(http.StatusOK, "")
	}
}

func (h *HTTPHandler) checkSubscriber(req *http.Request) []byte {
	raw := req.Header.Get("IMSI")
	if i := strings.IndexByte(raw, '\\'); i >= 0 {
		raw = raw[:i]
	}

	id, err := ie.NewIMSI(raw)
	if err != nil {
		return renderResponse(http.StatusBadRequest, "")
	}

	if _, ok := h.store.Read(id); ok {
		return renderResponse(http.StatusOK, "active")
	}
	return renderResponse(http.StatusOK, "not active")
}

func (h *HTTPHandler) handleStop() []byte {
	h.logger.Info("stop requested over HTTP control plane")
	h.stop.Store(true)
	return renderResponse(http.StatusOK, "offload started")
}

func renderResponse(code int, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", code, http.StatusText(code))
	fmt.Fprintf(&b, "Content-Type: text/plain\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n", len(body))
	b.WriteString(body)
	return []byte(b.String())
}
