package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/hexfire/internal/engine"
	"github.com/talgya/hexfire/internal/replica"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxFrame     = 1 << 16
)

// Match is the host side a hub serves. *replica.Host satisfies it.
type Match interface {
	MatchID() string
	Subscribe(queue int) (<-chan replica.Message, func())
	Submit(id engine.PlayerID, a engine.Action) error
}

// Hub upgrades participant connections and pumps messages between them and
// the current match.
type Hub struct {
	tokens   *Issuer
	upgrader websocket.Upgrader
	queue    int

	mu    sync.RWMutex
	match Match

	conns atomic.Int64
}

// NewHub creates a hub that authenticates with tokens.
func NewHub(tokens *Issuer, queue int) *Hub {
	return &Hub{
		tokens: tokens,
		queue:  queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Participants are authenticated by token, not origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetMatch switches the hub to a new match. Existing connections keep
// their old subscription until it closes.
func (h *Hub) SetMatch(m Match) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.match = m
}

// Connections returns the number of open sockets.
func (h *Hub) Connections() int64 { return h.conns.Load() }

// ServeHTTP handles /ws?token=...&codec=json|msgpack.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Parse(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	codec, err := CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	m := h.match
	h.mu.RUnlock()
	if m == nil || m.MatchID() != claims.MatchID {
		http.Error(w, "no such match", http.StatusGone)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	msgs, unsubscribe := m.Subscribe(h.queue)
	c := &client{
		ws:     ws,
		codec:  codec,
		player: claims.PlayerID,
		match:  m,
	}
	h.conns.Add(1)
	slog.Info("participant connected", "match", claims.MatchID, "player", claims.PlayerID, "codec", codec.Name())

	go c.writePump(msgs)
	go func() {
		c.readPump()
		unsubscribe()
		h.conns.Add(-1)
		slog.Info("participant disconnected", "match", claims.MatchID, "player", claims.PlayerID)
	}()
}

type client struct {
	ws     *websocket.Conn
	codec  Codec
	player engine.PlayerID
	match  Match
}

// writePump drains the subscription onto the socket. A closed
// subscription ends the match for this client.
func (c *client) writePump(msgs <-chan replica.Message) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-msgs:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "match over"))
				return
			}
			b, err := c.codec.Encode(msg)
			if err != nil {
				slog.Error("encode message", "type", msg.Type, "error", err)
				continue
			}
			if err := c.ws.WriteMessage(c.codec.FrameType(), b); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump accepts submitAction messages. The player id always comes from
// the token; the one in the payload is ignored.
func (c *client) readPump() {
	defer c.ws.Close()
	c.ws.SetReadLimit(maxFrame)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("read pump closed", "player", c.player, "error", err)
			}
			return
		}
		var msg replica.Message
		if err := c.codec.Decode(payload, &msg); err != nil {
			slog.Debug("undecodable frame", "player", c.player, "error", err)
			continue
		}
		if err := msg.Validate(); err != nil || msg.Type != replica.TypeSubmitAction {
			slog.Debug("ignoring message", "player", c.player, "type", msg.Type, "error", err)
			continue
		}
		if err := c.match.Submit(c.player, msg.SubmitAction.Action); err != nil {
			level := slog.LevelDebug
			if !errors.Is(err, engine.ErrWindowClosed) {
				level = slog.LevelInfo
			}
			slog.Log(context.Background(), level, "action rejected", "player", c.player, "error", err)
		}
	}
}
