package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"storefront/internal/events"
	"storefront/internal/metrics"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

const liveWriteTimeout = 5 * time.Second

// LiveMessage is what live clients receive.
type LiveMessage struct {
	Type   string                   `json:"type"`
	Change *events.CollectionChange `json:"change,omitempty"`
	At     time.Time                `json:"at"`
}

const (
	LiveHello  = "hello"
	LiveChange = "change"
)

// LiveHub fans store change notices out to WebSocket clients.
type LiveHub struct {
	origins   []string
	logger    *zerolog.Logger
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	broadcast chan events.CollectionChange

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLiveHub(origins []string, logger *zerolog.Logger) *LiveHub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &LiveHub{
		origins:   origins,
		logger:    logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan events.CollectionChange, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
	h.wg.Add(1)
	go h.broadcastLoop()
	return h
}

// Publish queues a change for broadcast. It never blocks; when the buffer is
// full the change is dropped.
func (h *LiveHub) Publish(change events.CollectionChange) {
	select {
	case h.broadcast <- change:
	case <-h.ctx.Done():
	default:
		h.logger.Warn().Str("collection", change.Collection).Msg("Live broadcast buffer full, dropping change")
	}
}

func (h *LiveHub) Len() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops the broadcast loop.
func (h *LiveHub) Close() {
	h.cancel()
	h.wg.Wait()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()
	metrics.SetLiveClients(0)
}

func (h *LiveHub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case change := <-h.broadcast:
			data, err := json.Marshal(LiveMessage{Type: LiveChange, Change: &change, At: time.Now()})
			if err != nil {
				h.logger.Error().Err(err).Msg("Failed to encode live message")
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(h.ctx, liveWriteTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					h.logger.Debug().Err(err).Msg("Live client write failed")
					h.removeClient(conn)
				}
			}
		}
	}
}

func (h *LiveHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()
	metrics.SetLiveClients(count)
	h.logger.Debug().Int("clients", count).Msg("Live client connected")

	hello, _ := json.Marshal(LiveMessage{Type: LiveHello, At: time.Now()})
	ctx, cancel := context.WithTimeout(h.ctx, liveWriteTimeout)
	_ = conn.Write(ctx, websocket.MessageText, hello)
	cancel()

	go h.readLoop(conn)
}

// readLoop only detects disconnects; client messages are ignored.
func (h *LiveHub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *LiveHub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	metrics.SetLiveClients(count)
	h.logger.Debug().Int("clients", count).Msg("Live client disconnected")
}
