package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadLimit    = 50 << 20
	wsIdleTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleSynthesizeWS serves the webhook protocol over a persistent socket. Each text frame is a
// webhook body; audio is answered with a binary frame, everything else with a JSON text frame
// carrying the HTTP body plus its status code. Frames are handled in order.
func (s *Server) handleSynthesizeWS(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get(secretHeader)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		return nil
	})
	s.logger.Debugw("websocket connected", "remote", r.RemoteAddr, "secret_present", secret != "")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		started := time.Now()
		requestID := uuid.NewString()
		rep := s.process(ctx, requestID, secret, data, started)
		s.finish(rep, started)

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if rep.audio != nil {
			err = conn.WriteMessage(websocket.BinaryMessage, rep.audio)
		} else {
			frame := make(map[string]any, len(rep.body)+2)
			for k, v := range rep.body {
				frame[k] = v
			}
			frame["code"] = rep.status
			frame["requestId"] = requestID
			err = conn.WriteJSON(frame)
		}
		if err != nil {
			s.logger.Warnw("websocket write failed", "request_id", requestID, "error", err)
			break
		}
	}
	s.logger.Debugw("websocket disconnected", "remote", r.RemoteAddr)
}
