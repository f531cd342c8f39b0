// Package hub fans server-side state changes out to connected dashboard
// clients over websockets.
package hub

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/service"
)

// shutdownGrace is how long a remote shutdown waits between notifying
// clients and asking the process to terminate.
const shutdownGrace = time.Second

// Hub tracks live connections and broadcasts session, account and log
// events. It implements the service.Broadcaster and vrchat.LogSink
// interfaces.
type Hub struct {
	Accounts []domain.WatchedAccount
	Store    *service.StateStore
	Status   func() service.SessionStatus
	Logger   *slog.Logger

	// OnShutdown is invoked after a remote shutdown command has been
	// broadcast and the grace delay has elapsed.
	OnShutdown func()

	startedAt    time.Time
	shutdownOnce sync.Once

	mu    sync.RWMutex
	conns map[string]*Conn
}

// New returns a hub over the given roster.
func New(accounts []domain.WatchedAccount, store *service.StateStore, status func() service.SessionStatus, logger *slog.Logger) *Hub {
	return &Hub{
		Accounts:  accounts,
		Store:     store,
		Status:    status,
		Logger:    logger,
		startedAt: time.Now(),
		conns:     make(map[string]*Conn),
	}
}

// Register adopts an upgraded websocket connection, immediately sends the
// session status and a full roster snapshot, and then services the
// connection until it closes. Blocks for the connection's lifetime.
func (h *Hub) Register(ws *websocket.Conn) {
	c := newConn(h, ws)

	h.mu.Lock()
	h.conns[c.ID] = c
	total := len(h.conns)
	h.mu.Unlock()

	h.Logger.Info("dashboard client connected", "conn_id", c.ID, "clients", total)

	go c.writeLoop()
	h.sendWelcome(c)
	c.readLoop()
}

func (h *Hub) sendWelcome(c *Conn) {
	c.enqueue(h.marshal(typeSessionStatus, h.Status()))
	c.enqueue(h.marshal(typeInitialSnapshot, h.snapshotPayload()))
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	_, present := h.conns[c.ID]
	delete(h.conns, c.ID)
	total := len(h.conns)
	h.mu.Unlock()

	c.close()
	if present {
		h.Logger.Info("dashboard client disconnected", "conn_id", c.ID, "clients", total)
	}
}

// PublishSessionStatus broadcasts the session summary to every client.
func (h *Hub) PublishSessionStatus(status service.SessionStatus) {
	h.broadcast(h.marshal(typeSessionStatus, status))
}

// PublishAccountUpdate broadcasts a single account's new observation.
func (h *Hub) PublishAccountUpdate(accountID string, snap domain.Snapshot) {
	account, ok := h.account(accountID)
	if !ok {
		h.Logger.Warn("update for unknown account", "account_id", accountID)
		return
	}
	h.broadcast(h.marshal(typeAccountUpdate, h.entryFor(account, snap)))
}

// PublishSystemNotice broadcasts an operator-facing message.
func (h *Hub) PublishSystemNotice(message string) {
	h.broadcast(h.marshal(typeSystemNotice, noticePayload{Message: message}))
}

// APILog streams a sanitized request/response summary to clients. Must not
// block: enqueueing is non-blocking by construction.
func (h *Hub) APILog(kind, content string, at time.Time) {
	h.broadcast(h.marshal(typeLogEntry, logPayload{Kind: kind, Content: content, At: at}))
}

// Shutdown notifies clients and closes every connection. Used on process
// shutdown; remote shutdown goes through handleClientMessage instead.
func (h *Hub) Shutdown(message string) {
	h.PublishSystemNotice(message)
	h.closeAll()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*Conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) handleClientMessage(c *Conn, data []byte) {
	if strings.TrimSpace(string(data)) == "refresh" {
		h.Logger.Debug("snapshot refresh requested", "conn_id", c.ID)
		h.sendWelcome(c)
		return
	}

	var cmd clientCommand
	if err := json.Unmarshal(data, &cmd); err == nil && cmd.Type == "command" {
		if cmd.Command == "shutdown" {
			h.remoteShutdown(c)
			return
		}
	}

	h.Logger.Debug("unrecognized client message", "conn_id", c.ID)
}

// remoteShutdown is the intentional administrative kill switch: notify every
// client, close the connections, then ask the process to terminate.
func (h *Hub) remoteShutdown(c *Conn) {
	h.shutdownOnce.Do(func() {
		h.Logger.Warn("remote shutdown requested", "conn_id", c.ID)
		h.PublishSystemNotice("server is shutting down")

		go func() {
			time.Sleep(shutdownGrace)
			h.closeAll()
			if h.OnShutdown != nil {
				h.OnShutdown()
			}
		}()
	})
}

func (h *Hub) broadcast(frame []byte) {
	if frame == nil {
		return
	}
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(frame)
	}
}

// snapshotPayload renders the whole roster in configuration order. Accounts
// with no observations yet get an offline placeholder so clients always see
// a complete roster.
func (h *Hub) snapshotPayload() snapshotPayload {
	entries := make([]accountEntry, 0, len(h.Accounts))
	for _, account := range h.Accounts {
		snap, ok := h.Store.Latest(account.AccountID)
		if !ok {
			entries = append(entries, accountEntry{
				AccountID:  account.AccountID,
				Label:      account.DisplayLabel,
				StatusKind: domain.StatusOffline,
				VolumeHint: account.VolumeHint,
			})
			continue
		}
		entry := h.entryFor(account, snap)
		entry.History = h.Store.History(account.AccountID)
		entries = append(entries, entry)
	}
	return snapshotPayload{ServerStartTime: h.startedAt, Accounts: entries}
}

func (h *Hub) entryFor(account domain.WatchedAccount, snap domain.Snapshot) accountEntry {
	at := snap.ObservedAt
	return accountEntry{
		AccountID:    account.AccountID,
		Label:        account.DisplayLabel,
		Profile:      snap.Profile,
		StatusKind:   snap.StatusKind,
		ErrorMessage: snap.ErrorMessage,
		ObservedAt:   &at,
		VolumeHint:   account.VolumeHint,
	}
}

func (h *Hub) account(accountID string) (domain.WatchedAccount, bool) {
	for _, account := range h.Accounts {
		if account.AccountID == accountID {
			return account, true
		}
	}
	return domain.WatchedAccount{}, false
}

func (h *Hub) marshal(msgType string, payload any) []byte {
	frame, err := json.Marshal(envelope{Type: msgType, Payload: payload})
	if err != nil {
		h.Logger.Error("marshal broadcast frame", "type", msgType, "err", err)
		return nil
	}
	return frame
}
