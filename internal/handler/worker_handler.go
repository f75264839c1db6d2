package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/hitoshi/gastos/internal/middleware"
	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/offline"
)

// WorkerServiceInterface はオフラインキャッシュワーカーのうちHTTPから操作する部分。
type WorkerServiceInterface interface {
	Version() string
	State() offline.Lifecycle
	HandleMessage(ctx context.Context, msg offline.Message, port offline.ReplyPort) error
	Sync(ctx context.Context, tag string) error
	Push(ctx context.Context, userID, body string) error
	NotificationClick(ctx context.Context, userID, action string) (bool, error)
}

// WorkerHandler はページからワーカーへのメッセージとイベントを受け付けるHTTPハンドラー。
type WorkerHandler struct {
	worker WorkerServiceInterface
}

// NewWorkerHandler はWorkerHandlerを生成する。
func NewWorkerHandler(worker WorkerServiceInterface) *WorkerHandler {
	return &WorkerHandler{worker: worker}
}

// replyCapture はHTTPリクエスト1回分の返信チャネル。最初の返信のみ保持する。
type replyCapture struct {
	mu    sync.Mutex
	reply any
}

func (c *replyCapture) PostMessage(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reply == nil {
		c.reply = v
	}
	return nil
}

func (c *replyCapture) value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reply
}

type syncRequest struct {
	Tag string `json:"tag"`
}

type pushRequest struct {
	Body string `json:"body"`
}

type notificationClickRequest struct {
	Action string `json:"action"`
}

type workerStatusResponse struct {
	Version string `json:"version"`
	State   string `json:"state"`
}

// Status はワーカーのバージョンとライフサイクル状態を返す。
// GET /api/worker
func (h *WorkerHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workerStatusResponse{
		Version: h.worker.Version(),
		State:   string(h.worker.State()),
	})
}

// Message はページからのメッセージを処理する。返信があれば200で返し、無ければ202を返す。
// GET_VERSION以外はPINでロック解除済みのセッションが必要。
// POST /api/worker/messages
func (h *WorkerHandler) Message(w http.ResponseWriter, r *http.Request) {
	var msg offline.Message
	if !decodeJSON(w, r, &msg) {
		return
	}
	if msg.Type != offline.MessageGetVersion {
		session, ok := requireSession(w, r)
		if !ok {
			return
		}
		if !session.Unlocked {
			middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewSessionLockedError())
			return
		}
	}
	port := &replyCapture{}
	if err := h.worker.HandleMessage(r.Context(), msg, port); err != nil {
		handleServiceError(w, err)
		return
	}
	if reply := port.value(); reply != nil {
		writeJSON(w, http.StatusOK, reply)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Sync はバックグラウンド同期を発火する。
// POST /api/worker/sync
func (h *WorkerHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.worker.Sync(r.Context(), req.Tag); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Push はプッシュ通知を呼び出したユーザー自身のページへ配信する。
// POST /api/worker/push
func (h *WorkerHandler) Push(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req pushRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.worker.Push(r.Context(), userID, req.Body); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// NotificationClick は通知のクリックを処理する。
// POST /api/worker/notificationclick
func (h *WorkerHandler) NotificationClick(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req notificationClickRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opened, err := h.worker.NotificationClick(r.Context(), userID, req.Action)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"opened": opened})
}
