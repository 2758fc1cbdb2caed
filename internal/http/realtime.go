package httpapi

import (
	"net/http"
	"sync"
	"time"

	"linova-go/internal/services"

	"github.com/gorilla/websocket"
)

const realtimeWriteTimeout = 10 * time.Second

// RealtimeMessage is the frame format of the realtime socket, in both
// directions.
type RealtimeMessage struct {
	Type      string       `json:"type"`
	Topic     string       `json:"topic,omitempty"`
	Table     string       `json:"table,omitempty"`
	Filter    string       `json:"filter,omitempty"`
	Event     string       `json:"event,omitempty"`
	Record    services.Row `json:"record,omitempty"`
	OldRecord services.Row `json:"old_record,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// RealtimeSocket streams table changes to subscribed topics. The token query
// parameter is optional; without it only public tables can be followed.
func (s *Server) RealtimeSocket(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := s.Tokens.ParseAccess(token)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "Authentication failed")
			return
		}
		userID = claims.UserID
	}
	if s.Changes == nil {
		WriteError(w, http.StatusServiceUnavailable, "Realtime unavailable")
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := services.NewChangeClient(userID, s.Log.With("user_id", userID))
	s.Changes.Add(client)

	var writeMu sync.Mutex
	write := func(msg RealtimeMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(realtimeWriteTimeout))
		return conn.WriteJSON(msg)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case env := <-client.Messages():
				msg := RealtimeMessage{
					Type:      "change",
					Topic:     env.Topic,
					Table:     env.Change.Table,
					Event:     env.Change.Type,
					Record:    env.Change.Record,
					OldRecord: env.Change.OldRecord,
				}
				if err := write(msg); err != nil {
					_ = conn.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()
	defer func() {
		close(done)
		s.Changes.Remove(client)
		_ = conn.Close()
	}()

	for {
		var msg RealtimeMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if err := client.Subscribe(msg.Topic, msg.Table, msg.Filter); err != nil {
				_ = write(RealtimeMessage{Type: "error", Topic: msg.Topic, Message: err.Error()})
				continue
			}
			_ = write(RealtimeMessage{Type: "subscribed", Topic: msg.Topic, Table: msg.Table})
		case "unsubscribe":
			client.Unsubscribe(msg.Topic)
		default:
			_ = write(RealtimeMessage{Type: "error", Topic: msg.Topic, Message: "Unknown message type"})
		}
	}
}
