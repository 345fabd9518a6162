package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/example/ride-pooling/internal/chat"
	"github.com/example/ride-pooling/internal/observability"
)

var upgrader = websocket.Upgrader{}

// Inbound frame for the chat channel. Two events exist: joinChat and
// sendMessage; the sender is always the authenticated identity, never a
// field the client controls.
type wsInbound struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

type wsAck struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId"`
}

type wsError struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId,omitempty"`
	Error  string `json:"error"`
}

// handleChatWS runs one connection's state machine: Disconnected ->
// Joined(rooms) -> Disconnected. Leave is implicit on disconnect.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sess := chat.NewWSSession(conn)
	observability.ChatSessionsActive.Inc()
	defer func() {
		s.Relay.Drop(sess)
		observability.ChatSessionsActive.Dec()
		_ = sess.Close()
	}()

	joined := make(map[string]bool) // read loop only, no lock needed
	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		switch in.Event {
		case "joinChat":
			if err := s.Relay.Join(r.Context(), in.RoomID, identity, sess); err != nil {
				_ = sess.WriteControl(wsError{Event: "error", RoomID: in.RoomID, Error: err.Error()})
				continue
			}
			joined[in.RoomID] = true
			_ = sess.WriteControl(wsAck{Event: "joined", RoomID: in.RoomID})
		case "sendMessage":
			if !joined[in.RoomID] {
				_ = sess.WriteControl(wsError{Event: "error", RoomID: in.RoomID, Error: "join the room before sending"})
				continue
			}
			if _, err := s.Relay.Send(r.Context(), in.RoomID, identity, in.Text); err != nil {
				_ = sess.WriteControl(wsError{Event: "error", RoomID: in.RoomID, Error: err.Error()})
			}
		default:
			_ = sess.WriteControl(wsError{Event: "error", Error: "unknown event " + in.Event})
		}
	}
}
