package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradeguard/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame wraps a bus payload with its topic for the UI stream.
type wsFrame struct {
	Topic   events.Event `json:"topic"`
	Payload any          `json:"payload"`
}

// websocket streams risk transitions and trade activity to the UI. All
// topics are fanned into a single connection.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	topics := []events.Event{
		events.EventRiskLocked,
		events.EventRiskUnlocked,
		events.EventRiskReset,
		events.EventTradeOpened,
		events.EventTradeClosed,
	}

	merged := make(chan wsFrame, 100)
	done := make(chan struct{})
	defer close(done)

	for _, topic := range topics {
		stream, unsub := s.Bus.Subscribe(topic, 100)
		defer unsub()

		go func(topic events.Event, stream <-chan any) {
			for msg := range stream {
				select {
				case merged <- wsFrame{Topic: topic, Payload: msg}:
				case <-done:
					return
				}
			}
		}(topic, stream)
	}

	// Reader loop detects client disconnects; inbound frames are ignored.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame := <-merged:
			if err := conn.WriteJSON(frame); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-clientGone:
			return
		}
	}
}
