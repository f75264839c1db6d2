package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/user"
)

// PreferencesServiceInterface は表示設定のインターフェース。
type PreferencesServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.Preferences, error)
	Update(ctx context.Context, userID string, in user.PreferencesInput) (*model.Preferences, error)
}

// PreferencesHandler はツアー・インストールバナー・テーマ設定のHTTPハンドラー。
type PreferencesHandler struct {
	service PreferencesServiceInterface
}

// NewPreferencesHandler はPreferencesHandlerを生成する。
func NewPreferencesHandler(service PreferencesServiceInterface) *PreferencesHandler {
	return &PreferencesHandler{service: service}
}

type preferencesRequest struct {
	TourDone         *bool   `json:"tourDone"`
	InstallDismissed *bool   `json:"installDismissed"`
	Theme            *string `json:"theme"`
}

type preferencesResponse struct {
	TourDone         bool   `json:"tourDone"`
	InstallDismissed bool   `json:"installDismissed"`
	Theme            string `json:"theme"`
}

func toPreferencesResponse(p *model.Preferences) preferencesResponse {
	return preferencesResponse{
		TourDone:         p.TourDone,
		InstallDismissed: p.InstallDismissed,
		Theme:            string(p.Theme),
	}
}

// Get は設定を返す。
// GET /api/preferences
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	prefs, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreferencesResponse(prefs))
}

// Update は指定された項目のみ設定を更新する。
// PUT /api/preferences
func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req preferencesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	prefs, err := h.service.Update(r.Context(), userID, user.PreferencesInput{
		TourDone:         req.TourDone,
		InstallDismissed: req.InstallDismissed,
		Theme:            req.Theme,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreferencesResponse(prefs))
}
