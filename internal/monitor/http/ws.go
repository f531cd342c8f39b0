package http

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/hub"
	"github.com/aussiebroadwan/vrcwatch/pkg/slogx"
)

// StreamHandler upgrades dashboard connections and hands them to the hub.
type StreamHandler struct {
	Hub *hub.Hub
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from the same host; other origins get the
	// read-only stream too, it carries nothing sensitive.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleUpgrade handles GET /ws. Blocks for the connection's lifetime.
func (h *StreamHandler) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	h.Hub.Register(ws)
}
