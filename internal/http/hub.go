package http

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lecture-interpreter/internal/models"
	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/observability/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	clientBuffer   = 256
	broadcastQueue = 1024
)

// client is one WebSocket connection. send is drained by the client's
// write pump; a client that falls behind is disconnected.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session events out to WebSocket clients. It implements
// sink.Sink; sink calls never block on slow clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		metrics:    metrics.DefaultMetrics,
		log:        logging.WithComponent("hub"),
	}
}

// Run owns the client set until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.metrics.WebsocketClients.Inc()
			h.log.Info().Int("clients", len(h.clients)).Msg("Client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Info().Int("clients", len(h.clients)).Msg("Client disconnected")
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn().Msg("Client too slow, disconnecting")
					h.drop(c)
				}
			}
		}
	}
}

// add registers c. It reports false when ctx ends or the hub has stopped.
func (h *Hub) add(ctx context.Context, c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.metrics.WebsocketClients.Dec()
}

func (h *Hub) RenderPartial(ev models.TranscriptPartial) { h.publish(ev) }
func (h *Hub) RenderFinal(ev models.TranscriptFinal)     { h.publish(ev) }
func (h *Hub) RenderTranslation(ev models.Translation)   { h.publish(ev) }
func (h *Hub) Status(ev models.SessionStatus)            { h.publish(ev) }
func (h *Hub) Warning(ev models.InactivityWarning)       { h.publish(ev) }
func (h *Hub) Note(ev models.Note)                       { h.publish(ev) }
func (h *Hub) Command(cmd models.CaptureCommand)         { h.publish(cmd) }

func (h *Hub) publish(ev any) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn().Msg("Broadcast queue full, dropping event")
	}
}

// writePump sends queued messages and keepalive pings until the hub
// closes the client's queue or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
