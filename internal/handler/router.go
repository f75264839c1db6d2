package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/gastos/internal/middleware"
	"github.com/hitoshi/gastos/internal/model"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用
	Logger         *slog.Logger
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// アカウント
	AccountService     AccountServiceInterface
	ProfileService     ProfileServiceInterface
	PreferencesService PreferencesServiceInterface
	CookieConfig       CookieConfig

	// PIN
	PinService PinServiceInterface

	// 家計
	FinanceService FinanceServiceInterface

	// オフラインキャッシュワーカー
	WorkerService WorkerServiceInterface
	WorkerSocket  http.Handler // GET /api/worker/ws（ログイン必須）
	ShellHandler  http.Handler // API以外のGET
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Logging → CORS
//	/api:        CSRF → RateLimit
//	ログイン必須: Session
//	家計・設定:   Session → RequireUnlocked
//
// API以外のGETはオフラインキャッシュワーカー経由でアプリシェルを返す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.logger()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	accountHandler := NewAccountHandler(deps.AccountService, deps.ProfileService, deps.CookieConfig)
	prefsHandler := NewPreferencesHandler(deps.PreferencesService)
	pinHandler := NewPinHandler(deps.PinService)
	financeHandler := NewFinanceHandler(deps.FinanceService)
	workerHandler := NewWorkerHandler(deps.WorkerService)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.Middleware())

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
				Code:     "NOT_FOUND",
				Message:  "APIが見つかりません。",
				Category: "system",
				Action:   "URLを確認してください。",
			})
		})

		r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		// --- ログイン不要のルート ---
		r.Post("/account/register", accountHandler.Register)
		r.Post("/account/login", accountHandler.Login)
		r.Post("/account/logout", accountHandler.Logout)

		r.Get("/worker", workerHandler.Status)
		r.With(middleware.NewOptionalSessionMiddleware(deps.SessionFinder)).
			Post("/worker/messages", workerHandler.Message)

		// --- ログインが必要なルート（PIN未解除でも可） ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))

			if deps.WorkerSocket != nil {
				r.Method(http.MethodGet, "/worker/ws", deps.WorkerSocket)
			}

			r.Get("/account/me", accountHandler.Me)
			r.Put("/account/profile", accountHandler.UpdateProfile)
			r.Delete("/account", accountHandler.Withdraw)

			r.Route("/pin", func(r chi.Router) {
				r.Get("/", pinHandler.Status)
				r.Post("/digits", pinHandler.Digit)
				r.Post("/submit", pinHandler.Submit)
			})

			r.Post("/worker/sync", workerHandler.Sync)
			r.Post("/worker/push", workerHandler.Push)
			r.Post("/worker/notificationclick", workerHandler.NotificationClick)

			// --- PINでロック解除済みのセッションのみ ---
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireUnlocked)

				r.Route("/expenses", func(r chi.Router) {
					r.Get("/", financeHandler.ListExpenses)
					r.Post("/", financeHandler.CreateExpense)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", financeHandler.GetExpense)
						r.Put("/", financeHandler.UpdateExpense)
						r.Delete("/", financeHandler.DeleteExpense)
						r.Put("/status", financeHandler.UpdateExpenseStatus)
					})
				})

				r.Route("/incomes", func(r chi.Router) {
					r.Get("/", financeHandler.ListIncomes)
					r.Post("/", financeHandler.CreateIncome)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", financeHandler.GetIncome)
						r.Put("/", financeHandler.UpdateIncome)
						r.Delete("/", financeHandler.DeleteIncome)
					})
				})

				r.Route("/cards", func(r chi.Router) {
					r.Get("/", financeHandler.ListCards)
					r.Post("/", financeHandler.CreateCard)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", financeHandler.GetCard)
						r.Put("/", financeHandler.UpdateCard)
						r.Delete("/", financeHandler.DeleteCard)
						r.Get("/transactions", financeHandler.ListCardTransactions)
						r.Post("/transactions", financeHandler.AddCardTransaction)
					})
				})

				r.Route("/reminders", func(r chi.Router) {
					r.Get("/", financeHandler.ListReminders)
					r.Post("/", financeHandler.CreateReminder)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", financeHandler.GetReminder)
						r.Put("/", financeHandler.UpdateReminder)
						r.Delete("/", financeHandler.DeleteReminder)
					})
				})

				r.Get("/dashboard", financeHandler.Dashboard)
				r.Get("/preferences", prefsHandler.Get)
				r.Put("/preferences", prefsHandler.Update)
			})
		})
	})

	if deps.ShellHandler != nil {
		r.Method(http.MethodGet, "/*", deps.ShellHandler)
	}

	return r
}

func (d *RouterDeps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
