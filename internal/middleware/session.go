// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/gastos/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "gastos_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey = contextKey("session")
	holderContextKey  = contextKey("session_holder")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// 期限切れまたは存在しない場合はnilを返す。
type SessionFinder interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// ログイン済みセッションをリクエストコンテキストに注入する。
// 未ログインのリクエストには401を返す。PINのロック状態はここでは検証しない。
func NewSessionMiddleware(finder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := finder.GetSession(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session", slog.String("error", err.Error()))
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil || !session.LoggedIn {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if holder, ok := r.Context().Value(holderContextKey).(*sessionHolder); ok {
				holder.userID = session.UserID
				holder.unlocked = session.Unlocked
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// NewOptionalSessionMiddleware はログイン済みセッションがあればコンテキストに注入し、
// 無ければそのまま次へ渡す。GET_VERSIONのように匿名でも受け付けるルートで使う。
func NewOptionalSessionMiddleware(finder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := finder.GetSession(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			if session == nil || !session.LoggedIn {
				next.ServeHTTP(w, r)
				return
			}

			if holder, ok := r.Context().Value(holderContextKey).(*sessionHolder); ok {
				holder.userID = session.UserID
				holder.unlocked = session.Unlocked
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// RequireUnlocked はPINでロック解除済みのセッションのみを通すミドルウェア。
// NewSessionMiddlewareの後に配置する。
func RequireUnlocked(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		if !session.Unlocked {
			WriteErrorResponse(w, http.StatusForbidden, model.NewSessionLockedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	return session, ok && session != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return session.UserID, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// ContextWithUserID はユーザーIDのみを持つロック解除済みセッションをコンテキストに注入する。
// テストで使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithSession(ctx, &model.Session{ID: "session-" + userID, UserID: userID, LoggedIn: true, Unlocked: true})
}

func contextWithHolder(ctx context.Context, holder *sessionHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, holder)
}
