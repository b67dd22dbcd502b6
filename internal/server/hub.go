package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// hub fans events out to WebSocket clients, following the usual
// register/unregister channel pattern so client churn never races the
// broadcast loop.
type hub struct {
	clients    map[*websocket.Conn]bool
	events     chan any
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

func newHub(log *slog.Logger) *hub {
	return &hub{
		clients:    make(map[*websocket.Conn]bool),
		events:     make(chan any, 32),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.Close()
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				c.Close()
			}
		case ev := <-h.events:
			for c := range h.clients {
				if err := c.WriteJSON(ev); err != nil {
					h.log.Debug("websocket write failed", "error", err)
					delete(h.clients, c)
					c.Close()
				}
			}
		}
	}
}

func (h *hub) broadcast(ev any) {
	select {
	case h.events <- ev:
	default:
	}
}

func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.register <- conn

	// Drain client messages to observe the close.
	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
