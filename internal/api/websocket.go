package api

import (
	"log"
	"net/http"

	"autotrader/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket streams price ticks and order updates to dashboard clients.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[api] ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	ticks, unsubTicks := s.Bus.Subscribe(events.EventPriceTick, 100)
	defer unsubTicks()
	updates, unsubUpdates := s.Bus.Subscribe(events.EventOrderUpdate, 100)
	defer unsubUpdates()

	for {
		var msg any
		var ok bool
		select {
		case msg, ok = <-ticks:
		case msg, ok = <-updates:
		}
		if !ok {
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("[api] ws write error: %v", err)
			return
		}
	}
}
