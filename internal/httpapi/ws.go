package httpapi

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/facemood/internal/protocol"
	"github.com/ent0n29/facemood/internal/session"
)

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runner == nil || s.deps.Sessions == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "session runner not configured")
		return
	}

	identity, err := s.identity(r)
	if err != nil {
		s.sessionEvent("rejected_auth")
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	sess, err := s.deps.Sessions.OnConnect(identity, r.RemoteAddr)
	if err != nil {
		if errors.Is(err, session.ErrCapacity) {
			s.sessionEvent("rejected_capacity")
			respondError(w, http.StatusServiceUnavailable, "capacity", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "session_error", err.Error())
		return
	}
	defer s.deps.Sessions.OnDisconnect(sess.ID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		return
	}
	defer conn.Close()

	if err := sess.Open(); err != nil {
		log.Printf("session %s: open failed: %v", sess.ID, err)
		return
	}
	log.Printf("session %s: open remote=%s identity=%q", sess.ID, r.RemoteAddr, identity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	inbound := make(chan []byte)
	outbound := make(chan any, 16)
	var writeFailed atomic.Bool

	// The writer drains outbound until the runner closes it, so predictions
	// for frames read before a peer close are still delivered.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			if writeFailed.Load() || s.shuttingDown() {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("session %s: write failed: %v", sess.ID, err)
				writeFailed.Store(true)
				cancel()
				continue
			}
			s.wsMessage("outbound", protocol.Kind(msg))
		}
	}()

	conn.SetReadLimit(s.readLimit())
	// The close reply is sent after outbound drains, not by gorilla's default
	// handler, which would fail every later write.
	conn.SetCloseHandler(func(int, string) error { return nil })

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(inbound)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
					!errors.Is(err, net.ErrClosed) {
					log.Printf("session %s: read ended: %v", sess.ID, err)
				}
				return
			}
			if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
				continue
			}
			s.wsMessage("inbound", "frame")
			select {
			case inbound <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	runErr := s.deps.Runner.Run(ctx, sess, inbound, outbound)
	close(outbound)
	<-writerDone
	cancel()

	switch {
	case writeFailed.Load():
		// Peer is gone; no further writes.
	case runErr == nil:
		closeConn(conn, websocket.CloseNormalClosure, "")
	default:
		closeConn(conn, websocket.CloseGoingAway, "server shutting down")
	}
	_ = conn.Close()
	<-readerDone

	if runErr != nil && !errors.Is(runErr, session.ErrTransport) {
		log.Printf("session %s: ended with error: %v", sess.ID, runErr)
	}
	log.Printf("session %s: closed", sess.ID)
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// readLimit bounds a single websocket message. It leaves room for base64 and
// JSON framing around a SESSION_MAX_FRAME_BYTES image so that oversized images
// reach the decoder and are skipped as malformed. Anything past this limit
// fails the connection with close code 1009.
func (s *Server) readLimit() int64 {
	maxFrame := int64(s.cfg.SessionMaxFrameBytes)
	if maxFrame <= 0 {
		maxFrame = 2 << 20
	}
	return maxFrame*4/3 + 64<<10
}

func (s *Server) shuttingDown() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Server) writeTimeout() time.Duration {
	if s.cfg.SessionWriteTimeout <= 0 {
		return 10 * time.Second
	}
	return s.cfg.SessionWriteTimeout
}

func (s *Server) wsMessage(direction, kind string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.WSMessages.WithLabelValues(direction, kind).Inc()
	}
}

func (s *Server) sessionEvent(event string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}
