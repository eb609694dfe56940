package wsstream

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades /api/v1/executions/ws requests and hands the connection
// off to the Hub.
type Handler struct {
	hub *Hub
}

// NewHandler builds a Handler serving the given Hub.
func NewHandler(hub *Hub) *Handler { return &Handler{hub: hub} }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("wsstream: upgrade failed")
		return
	}

	clientID := uuid.NewString()
	client := NewClient(clientID, h.hub, conn)
	log.Info().Str("client_id", clientID).Str("remote_addr", r.RemoteAddr).Msg("wsstream: client connected")

	h.hub.register <- client
	go client.writePump()
	go client.readPump()
}
