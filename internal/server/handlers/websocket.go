// internal/server/handlers/websocket.go

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"wimbli/internal/domain/localstore"
	"wimbli/internal/observability"
	chatService "wimbli/internal/service/chat"
	feedService "wimbli/internal/service/feed"
	"wimbli/internal/service/livesync"
)

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// stateMessage is a published view state sent to the client
type stateMessage[T any] struct {
	Type    string `json:"type"`
	Items   []T    `json:"items"`
	Error   string `json:"error,omitempty"`
	Version uint64 `json:"version"`
	Ready   bool   `json:"ready"`
}

// clientMessage is a command from the client
type clientMessage struct {
	Type string `json:"type"`

	// criteria
	feedService.Criteria

	// draft, reply, like
	Text      string `json:"text,omitempty"`
	MessageID string `json:"messageId,omitempty"`

	// save
	PostID string `json:"postId,omitempty"`
}

// streamClient is one connected view stream
type streamClient struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	config WebSocketConfig
	logger *slog.Logger
}

func newStreamClient(conn *websocket.Conn, logger *slog.Logger) *streamClient {
	return &streamClient{
		conn:   conn,
		send:   make(chan []byte, 16),
		done:   make(chan struct{}),
		config: DefaultWebSocketConfig(),
		logger: logger,
	}
}

// StreamHandler serves live views over WebSocket
type StreamHandler struct {
	feeds   *feedService.Service
	chats   *chatService.Service
	local   localstore.Factory
	limiter *LimiterStore
	logger  *slog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(feeds *feedService.Service, chats *chatService.Service, local localstore.Factory, limiter *LimiterStore, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		feeds:   feeds,
		chats:   chats,
		local:   local,
		limiter: limiter,
		logger:  logger.With("component", "websocket"),
	}
}

// Feed streams the user's event feed and saved post ids. Clients send
// {"type":"criteria",...} to re-filter, {"type":"refresh"} after editing
// their interests and {"type":"save","postId":...} to toggle a saved post.
func (h *StreamHandler) Feed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	user, _ := UserFrom(ctx)
	sess, err := h.feeds.Open(ctx, user.ID, feedService.DefaultCriteria())
	if err != nil {
		respondWithServiceError(w, "Failed to open feed", err)
		return
	}
	defer sess.Close()

	saved, err := h.feeds.Saved(ctx, user.ID)
	if err != nil {
		respondWithServiceError(w, "Failed to load saved posts", err)
		return
	}
	defer saved.Close()

	c, ok := h.upgrade(w, r, "feed", user.ID)
	if !ok {
		return
	}
	defer observability.WebSocketConnections.WithLabelValues("feed").Dec()

	go watch(c, "state", sess.Changes(), sess.State)
	go watchValue(c, saved.Changes(), func() interface{} {
		return map[string]interface{}{"type": "saved", "ids": saved.IDs()}
	})

	c.readPump(func(msg clientMessage) {
		switch msg.Type {
		case "criteria":
			sess.SetCriteria(msg.Criteria)
		case "refresh":
			if err := sess.Refresh(ctx); err != nil {
				c.sendError(err.Error())
			}
		case "save":
			if _, err := saved.Toggle(ctx, msg.PostID); err != nil {
				c.sendError(err.Error())
			}
		default:
			c.sendError("unknown message type " + msg.Type)
		}
	})
}

// Groups streams the user's chat list with unread flags. Clients send
// {"type":"focus"} when the list is shown again.
func (h *StreamHandler) Groups(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	user, _ := UserFrom(ctx)
	reads := livesync.NewReadTracker(h.local.ForDevice(DeviceFrom(ctx)), nil)
	list, err := h.chats.OpenGroupList(ctx, user.ID, reads)
	if err != nil {
		respondWithServiceError(w, "Failed to open chats", err)
		return
	}
	defer list.Close()

	c, ok := h.upgrade(w, r, "groups", user.ID)
	if !ok {
		return
	}
	defer observability.WebSocketConnections.WithLabelValues("groups").Dec()

	go watch(c, "state", list.Changes(), list.State)

	c.readPump(func(msg clientMessage) {
		if msg.Type != "focus" {
			c.sendError("unknown message type " + msg.Type)
			return
		}
		list.Refocus()
	})
}

// Conversation streams one chat's messages and the composer state. Clients
// send draft, reply, send and like commands.
func (h *StreamHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	user, _ := UserFrom(ctx)
	groupID := chi.URLParam(r, "id")
	reads := livesync.NewReadTracker(h.local.ForDevice(DeviceFrom(ctx)), nil)
	conv, err := h.chats.OpenConversation(ctx, groupID, user.ID, reads)
	if err != nil {
		respondWithServiceError(w, "Failed to open chat", err)
		return
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		conv.Close(closeCtx)
	}()

	c, ok := h.upgrade(w, r, "conversation", user.ID)
	if !ok {
		return
	}
	defer observability.WebSocketConnections.WithLabelValues("conversation").Dec()

	go watch(c, "state", conv.MessageChanges(), conv.Messages)
	go watchValue(c, conv.ComposerChanges(), func() interface{} {
		return map[string]interface{}{"type": "composer", "composer": conv.Composer()}
	})

	c.readPump(func(msg clientMessage) {
		switch msg.Type {
		case "draft":
			conv.SetDraft(msg.Text)
		case "reply":
			if msg.MessageID == "" {
				conv.CancelReply()
				return
			}
			if err := conv.ReplyTo(msg.MessageID); err != nil {
				c.sendError(err.Error())
			}
		case "send":
			if !h.limiter.Allow("user:" + user.ID) {
				c.sendError("rate limit exceeded")
				return
			}
			if _, err := conv.Send(ctx); err != nil {
				c.sendError(err.Error())
			}
		case "like":
			if err := conv.ToggleLike(ctx, msg.MessageID); err != nil {
				c.sendError(err.Error())
			}
		default:
			c.sendError("unknown message type " + msg.Type)
		}
	})
}

func (h *StreamHandler) upgrade(w http.ResponseWriter, r *http.Request, view, uid string) (*streamClient, bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade to WebSocket", "view", view, "error", err)
		return nil, false
	}

	observability.WebSocketConnections.WithLabelValues(view).Inc()
	c := newStreamClient(conn, h.logger.With("view", view, "user", uid))
	go c.writePump()
	c.logger.Debug("view stream opened")
	return c, true
}

// watch sends the view's state on open and after every change until the
// view closes or the client goes away
func watch[T any](c *streamClient, kind string, changes <-chan struct{}, state func() livesync.State[T]) {
	publish := func() bool {
		st := state()
		msg := stateMessage[T]{Type: kind, Items: st.Items, Version: st.Version, Ready: st.Ready}
		if msg.Items == nil {
			msg.Items = []T{}
		}
		if st.Err != nil {
			msg.Error = st.Err.Error()
		}
		return c.sendJSON(msg)
	}

	if !publish() {
		return
	}
	for {
		select {
		case <-c.done:
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if !publish() {
				return
			}
		}
	}
}

// watchValue sends snapshot on open and after every change
func watchValue(c *streamClient, changes <-chan struct{}, snapshot func() interface{}) {
	if !c.sendJSON(snapshot()) {
		return
	}
	for {
		select {
		case <-c.done:
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if !c.sendJSON(snapshot()) {
				return
			}
		}
	}
}

func (c *streamClient) sendJSON(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal WebSocket message", "error", err)
		return true
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

func (c *streamClient) sendError(message string) {
	c.sendJSON(map[string]string{"type": "error", "error": message})
}

// readPump reads client commands until the connection fails
func (c *streamClient) readPump(handle func(clientMessage)) {
	defer c.closeConnection()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket error", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}
		handle(msg)
	}
}

// writePump writes queued messages and keeps the connection alive with pings
func (c *streamClient) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeConnection closes the WebSocket connection. Safe to call from both pumps.
func (c *streamClient) closeConnection() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
		c.logger.Debug("view stream closed")
	})
}
