// Package changelogfeed pushes changelog entries to subscribers instead
// of requiring admin-UI clients to poll ListSince: the catalog's
// append-on-write path also broadcasts each new entry to subscribed
// websocket clients.
package changelogfeed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/catalog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is a single watchChangelog or watchFolderChanges subscriber.
// folderFilter is empty for watchChangelog (all folders).
type client struct {
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	folderFilter string
}

// Hub fans out newly-appended changelog entries to every subscribed
// client. Subscription is restricted to admin actors by the server
// routes that mount it.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
}

func New() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// Publish is called by the catalog write path after a changelog entry
// commits. It never blocks on a slow client — when a client's send
// buffer is full, this entry is skipped for that client (the client
// stays subscribed) rather than stalling the publisher.
func (h *Hub) Publish(entry catalog.ChangelogEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		logrus.WithError(err).Error("failed to marshal changelog entry for broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.folderFilter != "" && c.folderFilter != entry.FolderPath {
			continue
		}
		select {
		case c.send <- payload:
		default:
			logrus.WithField("folder", entry.FolderPath).Warn("changelog subscriber too slow, dropping entry")
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// WatchChangelog upgrades r to a websocket and streams every changelog
// entry as it's published.
func (h *Hub) WatchChangelog(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

// WatchFolderChanges upgrades r to a websocket and streams only entries
// scoped to folderPath.
func (h *Hub) WatchFolderChanges(w http.ResponseWriter, r *http.Request, folderPath string) {
	h.serve(w, r, folderPath)
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, folderFilter string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Error("failed to upgrade changelog websocket connection")
		return
	}
	defer conn.Close()

	c := &client{
		conn:         conn,
		send:         make(chan []byte, 256),
		done:         make(chan struct{}),
		folderFilter: folderFilter,
	}

	h.register(c)
	defer h.unregister(c)

	go c.readPump()
	c.writePump()
}

// readPump discards incoming frames but must keep reading so ping/pong
// and close frames are processed.
func (c *client) readPump() {
	defer close(c.done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
