package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/dayroom/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
)

func (s *Server) handleLinkWS(w http.ResponseWriter, r *http.Request) {
	if s.link == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice link not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := s.link.Subscribe()
	defer unsubscribe()

	// Replies to bad client input share the writer so writes stay single-threaded.
	replies := make(chan protocol.ErrorEvent, 16)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			var msgType protocol.MessageType
			select {
			case <-ctx.Done():
				return
			case st := <-updates:
				msg, msgType = stateResponse(st), protocol.TypeLinkState
			case ev := <-replies:
				msg, msgType = ev, ev.Type
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("link ws: write failed", "error", err)
				cancel()
				return
			}
			s.metrics.ObserveWSMessage("outbound", string(msgType))
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	sessionID := s.link.State().ID
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			select {
			case replies <- protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}:
			default:
				// Drop when the writer is saturated.
			}
			continue
		}

		control, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		s.metrics.ObserveWSMessage("inbound", string(control.Type))
		switch control.Action {
		case protocol.ActionStart:
			s.link.StartRecording()
		case protocol.ActionStop:
			s.link.StopRecording()
		}
	}

	cancel()
	<-writerDone
}
