package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aussiebroadwan/vrcwatch/pkg/idx"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// Conn is one live dashboard connection. All writes go through a single
// writer goroutine fed by a buffered channel, so frames from concurrent
// publishers never interleave and a slow client never blocks the hub.
type Conn struct {
	ID string

	hub    *Hub
	ws     *websocket.Conn
	logger *slog.Logger

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newConn(h *Hub, ws *websocket.Conn) *Conn {
	id := idx.New().String()
	return &Conn{
		ID:     id,
		hub:    h,
		ws:     ws,
		logger: h.Logger.With("conn_id", id),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue hands a frame to the writer. When the buffer is full the frame is
// dropped; dashboard delivery is best effort and clients resync on refresh.
func (c *Conn) enqueue(frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.logger.Debug("send buffer full, dropping frame")
	}
}

func (c *Conn) writeLoop() {
	defer c.ws.Close()

	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(writeWait)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", "err", err)
				c.hub.unregister(c)
				return
			}
		}
	}
}

// readLoop blocks until the client disconnects or errors. Runs on the HTTP
// handler's goroutine.
func (c *Conn) readLoop() {
	defer c.hub.unregister(c)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.hub.handleClientMessage(c, data)
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}
