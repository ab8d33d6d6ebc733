package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"lecture-interpreter/internal/service/recognition"
)

const maxFrameBytes = 1 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// captureMessage is a recognition event sent by a browser capture client.
type captureMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Code string `json:"code"`
}

// handleWS upgrades a presentation client. With role=capture the client
// also feeds the remote recognition engine: text frames carry recognition
// events and binary frames carry raw audio.
func (rt *router) handleWS(w http.ResponseWriter, req *http.Request) {
	capture := req.URL.Query().Get("role") == "capture"
	if capture && rt.deps.Capture == nil {
		writeError(w, http.StatusServiceUnavailable, "capture not supported by this engine")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		rt.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if !rt.deps.Hub.add(req.Context(), c) {
		_ = conn.Close()
		return
	}
	go c.writePump()

	var detach func()
	if capture {
		detach = rt.deps.Capture.Attach()
		rt.log.Info().Str("subject", subjectFrom(req.Context())).Msg("Capture client attached")
	}

	// Requests are done once the handler returns, so the read loop runs on
	// a fresh context.
	go rt.readPump(context.Background(), c, capture, detach)
}

func (rt *router) readPump(ctx context.Context, c *client, capture bool, detach func()) {
	defer func() {
		if detach != nil {
			detach()
		}
		rt.deps.Hub.remove(c)
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				rt.log.Warn().Err(err).Msg("WebSocket closed unexpectedly")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if !capture {
			continue
		}

		switch kind {
		case websocket.BinaryMessage:
			if err := rt.deps.Session.SendAudio(ctx, data); err != nil {
				rt.log.Debug().Err(err).Msg("Dropped audio frame")
			}
		case websocket.TextMessage:
			rt.pushCapture(data)
		}
	}
}

func (rt *router) pushCapture(data []byte) {
	var msg captureMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		rt.log.Warn().Err(err).Msg("Invalid capture message")
		return
	}
	ev, err := recognition.ParseEvent(msg.Type, msg.Text, msg.Code)
	if err != nil {
		rt.log.Warn().Err(err).Msg("Invalid capture event")
		return
	}
	if !rt.deps.Capture.Push(ev) {
		rt.log.Debug().Str("event", ev.String()).Msg("Capture event dropped, engine not running")
	}
}
