package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/pin"
)

// PinServiceInterface はPINハンドラーが必要とするサービスインターフェース。
type PinServiceInterface interface {
	Status(ctx context.Context, sess *model.Session) (pin.Snapshot, error)
	Digit(ctx context.Context, sess *model.Session, group pin.Group, index int, value string) (pin.Event, error)
	Submit(ctx context.Context, sess *model.Session, group pin.Group, code string) (pin.Event, error)
}

// PinHandler はPINによるセッションのロック解除のHTTPハンドラー。
// 不一致や照合失敗はエラーではなく結果として200で返す。
type PinHandler struct {
	service PinServiceInterface
}

// NewPinHandler はPinHandlerを生成する。
func NewPinHandler(service PinServiceInterface) *PinHandler {
	return &PinHandler{service: service}
}

type pinDigitRequest struct {
	Group string `json:"group"`
	Index int    `json:"index"`
	Value string `json:"value"`
}

type pinSubmitRequest struct {
	Group string `json:"group"`
	Code  string `json:"code"`
}

// Status はPINの状態を返す。
// GET /api/pin
func (h *PinHandler) Status(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Status(r.Context(), session)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Digit は1桁分の入力を処理する。
// POST /api/pin/digits
func (h *PinHandler) Digit(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req pinDigitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := pin.ParseGroup(req.Group)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	ev, err := h.service.Digit(r.Context(), session, group, req.Index, req.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// Submit は4桁のコードをまとめて送信する。
// POST /api/pin/submit
func (h *PinHandler) Submit(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req pinSubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := pin.ParseGroup(req.Group)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	ev, err := h.service.Submit(r.Context(), session, group, req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
