package server

import (
	"net/http"

	"signal-relay/src/interfaces"
	"signal-relay/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// runHub is the main Hub loop. It owns the client set and the replay ring;
// every mutation happens on this goroutine, so none of it needs locking.
func (s *FastAPIServer) runHub() {
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			// A dashboard that just connected gets the recent history, so
			// its view is not empty until the next trade happens.
			for _, ev := range s.history.GetLatest(s.history.Capacity()) {
				select {
				case client.send <- ev:
				default:
				}
			}

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}

		case ev := <-s.broadcast:
			s.history.Append(ev)

			// Broadcast to all clients
			for client := range s.clients {
				select {
				case client.send <- ev:
					// Event sent successfully
				default:
					// Client too slow, disconnect to prevent Hub blocking.
					// Pruning dead/slow consumers keeps the feed moving 24/7.
					delete(s.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Event Publisher Implementation
// -----------------------------------------------------------------------------

var _ interfaces.IEventPublisher = (*FastAPIServer)(nil)

// Publish hands one event to the Hub. Never blocks: when the buffer is full
// the event is dropped, the signal itself is already safe in the database.
func (s *FastAPIServer) Publish(event *models.MSignalEvent) {
	select {
	case s.broadcast <- event:
	default:
		s.Logger.Warning("Event feed backlog full, dropping %s event for %s", event.Type, event.Symbol)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan *models.MSignalEvent, 256),
	}

	s.register <- client

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}
