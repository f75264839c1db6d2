package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/gastos/internal/auth"
	"github.com/hitoshi/gastos/internal/middleware"
	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/user"
)

// AccountServiceInterface はアカウントハンドラーが必要とする認証サービスのインターフェース。
type AccountServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// ProfileServiceInterface はプロフィール更新と退会のインターフェース。
type ProfileServiceInterface interface {
	UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error)
	Withdraw(ctx context.Context, userID, sessionID string) error
}

// CookieConfig はセッションCookieの設定。
type CookieConfig struct {
	Domain        string
	Secure        bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AccountHandler はアカウント登録・ログイン・プロフィールのHTTPハンドラー。
type AccountHandler struct {
	auth    AccountServiceInterface
	profile ProfileServiceInterface
	cookie  CookieConfig
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(authService AccountServiceInterface, profile ProfileServiceInterface, cookie CookieConfig) *AccountHandler {
	return &AccountHandler{
		auth:    authService,
		profile: profile,
		cookie:  cookie,
	}
}

type registerRequest struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Name        *string `json:"name"`
	Phone       *string `json:"phone"`
	AvatarImage *string `json:"avatarImage"`
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email"`
	AvatarImage string    `json:"avatarImage"`
	CreatedAt   time.Time `json:"createdAt"`
}

// sessionResponse はログイン状態のAPIレスポンス。
type sessionResponse struct {
	LoggedIn bool          `json:"loggedIn"`
	Unlocked bool          `json:"unlocked"`
	User     *userResponse `json:"user,omitempty"`
}

func toUserResponse(u *model.User) *userResponse {
	return &userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Phone:       u.Phone,
		Email:       u.Email,
		AvatarImage: u.AvatarImage,
		CreatedAt:   u.CreatedAt,
	}
}

// Register はアカウントを作成する。登録後は自動ログインしない。
// POST /api/account/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Name:            req.Name,
		Phone:           req.Phone,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Login はメールアドレスとパスワードで認証し、PIN未解除のセッションCookieを発行する。
// POST /api/account/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID, h.cookie.SessionMaxAge)
	writeJSON(w, http.StatusOK, sessionResponse{LoggedIn: session.LoggedIn, Unlocked: session.Unlocked})
}

// Logout はセッションを破棄しCookieをクリアする。
// POST /api/account/logout
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			// 失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}
	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログイン状態とユーザー情報を返す。
// GET /api/account/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	u, err := h.auth.GetCurrentUser(r.Context(), session.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		LoggedIn: session.LoggedIn,
		Unlocked: session.Unlocked,
		User:     toUserResponse(u),
	})
}

// UpdateProfile は名前・電話番号・アバター画像を更新する。
// PUT /api/account/profile
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.profile.UpdateProfile(r.Context(), userID, user.ProfileInput{
		Name:        req.Name,
		Phone:       req.Phone,
		AvatarImage: req.AvatarImage,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Withdraw はアカウントと全データを削除し、セッションCookieをクリアする。
// DELETE /api/account
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	if err := h.profile.Withdraw(r.Context(), session.UserID, session.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
