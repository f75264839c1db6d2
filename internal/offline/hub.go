package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxClientMessageSize = 4 * 1024
	clientReadTimeout    = 60 * time.Second
	clientWriteTimeout   = 10 * time.Second
	clientPingInterval   = 30 * time.Second
	clientSendBuffer     = 16
)

// Hub はWebSocketで接続しているページを管理し、Workerとの間でメッセージを中継する。
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu         sync.RWMutex
	clients    map[string]*client
	controller string
}

// NewHub はHubを生成する。allowedOriginが空でなければOriginヘッダーを照合する。
func NewHub(allowedOrigin string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:  logger,
		clients: make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedOrigin == "" || origin == allowedOrigin
		},
	}
	return h
}

// IdentifyFunc はリクエストから接続するユーザーのIDを求める。
type IdentifyFunc func(ctx context.Context) (string, error)

// Broadcast は全ページへメッセージを送る。送信バッファが溢れたページはスキップする。
func (h *Hub) Broadcast(ctx context.Context, msg ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode client message: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(data)
	}
	return nil
}

// Notify はuserIDのユーザーが開いているページにのみメッセージを送る。
func (h *Hub) Notify(ctx context.Context, userID string, msg ClientMessage) error {
	if userID == "" {
		return ErrNoRecipient
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode client message: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.userID == userID {
			c.enqueue(data)
		}
	}
	return nil
}

// Claim は接続中の全ページを指定バージョンの制御下に置き、その旨を通知する。
func (h *Hub) Claim(version string) {
	h.mu.Lock()
	h.controller = version
	h.mu.Unlock()

	_ = h.Broadcast(context.Background(), ClientMessage{Type: EventControllerChange, Message: version})
}

// Controller は現在ページを制御しているWorkerのバージョンを返す。
func (h *Hub) Controller() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.controller
}

// Count は接続中のページ数を返す。
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler はWebSocket接続を受け付け、受信したメッセージをworkerへ渡すハンドラーを返す。
// identifyでユーザーを特定できないリクエストはアップグレードせず401を返す。
func (h *Hub) Handler(worker *Worker, identify IdentifyFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := identify(r.Context())
		if err != nil || userID == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		c := &client{
			id:     uuid.NewString(),
			userID: userID,
			conn:   conn,
			send:   make(chan []byte, clientSendBuffer),
			hub:    h,
		}
		h.register(c)
		defer h.unregister(c)

		go c.writePump()
		c.readPump(r.Context(), worker)
	})
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

// Close は全接続を閉じる。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

// client は1つのWebSocket接続。
type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// enqueue はメッセージを送信キューに積む。呼び出し側でhub.muを保持していること。
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("client send buffer full, dropping message", slog.String("client", c.id))
	}
}

// PostMessage はこの接続へ返信を送る。
func (c *client) PostMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return errors.New("client disconnected")
	}
	c.enqueue(data)
	return nil
}

func (c *client) readPump(ctx context.Context, worker *Worker) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxClientMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(clientReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(clientReadTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error",
					slog.String("client", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(clientReadTimeout))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.logger.Debug("ignored malformed worker message", slog.String("client", c.id))
			continue
		}
		if err := worker.HandleMessage(ctx, msg, c); err != nil {
			c.hub.logger.Error("worker message failed",
				slog.String("type", msg.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(clientPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// compile-time interface check
var _ Clients = (*Hub)(nil)
