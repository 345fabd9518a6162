package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-pooling/internal/models"
)

// messageReceived is the server->client broadcast frame.
type messageReceived struct {
	Event     string    `json:"event"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// WSSession wraps one websocket connection. The mutex guards writes:
// gorilla connections allow one concurrent writer only.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewWSSession(conn *websocket.Conn) *WSSession {
	return &WSSession{conn: conn}
}

func (s *WSSession) Deliver(roomID string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(messageReceived{
		Event:     "messageReceived",
		RoomID:    roomID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	})
}

// WriteControl sends an arbitrary frame (acks, errors) under the same
// write lock as broadcasts.
func (s *WSSession) WriteControl(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *WSSession) Close() error {
	return s.conn.Close()
}
