package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/gastos/internal/auth"
	"github.com/hitoshi/gastos/internal/config"
	"github.com/hitoshi/gastos/internal/database"
	"github.com/hitoshi/gastos/internal/finance"
	"github.com/hitoshi/gastos/internal/handler"
	"github.com/hitoshi/gastos/internal/logger"
	"github.com/hitoshi/gastos/internal/metrics"
	"github.com/hitoshi/gastos/internal/middleware"
	"github.com/hitoshi/gastos/internal/offline"
	"github.com/hitoshi/gastos/internal/pin"
	"github.com/hitoshi/gastos/internal/repository"
	"github.com/hitoshi/gastos/internal/security"
	"github.com/hitoshi/gastos/internal/user"
	"github.com/hitoshi/gastos/internal/worker/cleanup"
	"github.com/hitoshi/gastos/internal/worker/reminder"
	"github.com/hitoshi/gastos/internal/worker/scheduler"
)

// jobTimeout は定期ジョブ1回あたりの実行時間の上限。
const jobTimeout = 5 * time.Minute

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってログレベルを反映する
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// loadManifest はCACHE_MANIFEST_FILEがあればそれを、無ければ既定のマニフェストを返す。
func loadManifest(cfg *config.Config) (offline.Manifest, error) {
	if cfg.CacheManifestFile != "" {
		return offline.LoadManifest(cfg.CacheManifestFile, cfg.CacheVersion)
	}
	m := offline.DefaultManifest()
	m.Version = cfg.CacheVersion
	return m, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、オフラインキャッシュワーカーを
// インストール・有効化してからHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	pinRepo := repository.NewPostgresPinCredentialRepo(db)
	prefsRepo := repository.NewPostgresPreferencesRepo(db)
	recordRepo := repository.NewPostgresRecordRepo(db)

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 5. ドメインサービスの初期化
	pinService, err := pin.NewService(pinRepo, sessionRepo, cfg.PinGuardCapacity,
		pin.WithMetrics(collector),
		pin.WithLogger(slog.Default()),
	)
	if err != nil {
		return fmt.Errorf("failed to create pin service: %w", err)
	}
	authService := auth.NewService(userRepo, sessionRepo, pinService,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	userService := user.NewService(userRepo, sessionRepo, recordRepo, sanitizer, pinService)
	prefsService := user.NewPreferencesService(prefsRepo)
	financeService := finance.NewService(recordRepo, sanitizer)

	// 6. オフラインキャッシュワーカー
	manifest, err := loadManifest(cfg)
	if err != nil {
		return err
	}
	network, err := offline.NewHTTPNetwork(cfg.ShellUpstreamURL, cfg.NetworkTimeout, cfg.NetworkMaxSize, ssrfGuard,
		offline.WithNetworkMetrics(collector),
	)
	if err != nil {
		return fmt.Errorf("failed to create shell network: %w", err)
	}
	hub := offline.NewHub(cfg.CORSAllowedOrigin, slog.Default())
	defer hub.Close()

	cacheWorker := offline.NewWorker(manifest, offline.NewPostgresStorage(db), network,
		offline.WithClients(hub),
		offline.WithWorkerMetrics(collector),
		offline.WithWorkerLogger(slog.Default()),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := cacheWorker.Install(startCtx); err != nil {
		// 投入に失敗してもネットワーク経由で配信できるため起動は続行する
		slog.Warn("offline cache install incomplete", slog.String("error", err.Error()))
	}
	if err := cacheWorker.Activate(startCtx); err != nil {
		cancelStart()
		return fmt.Errorf("failed to activate offline cache worker: %w", err)
	}
	cancelStart()

	// 7. 定期ジョブ
	jobs := scheduler.New(slog.Default(), jobTimeout)
	if err := jobs.Add(cfg.SessionCleanupSchedule, cleanup.NewCleanupJob(sessionRepo, pinService, slog.Default())); err != nil {
		return err
	}
	if err := jobs.Add(cfg.ReminderSchedule, reminder.NewJob(financeService, cacheWorker, slog.Default(), reminder.DefaultWindow)); err != nil {
		return err
	}
	jobs.Start()

	// 8. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionFinder:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		Logger:         slog.Default(),
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		AccountService:     authService,
		ProfileService:     userService,
		PreferencesService: prefsService,
		CookieConfig: handler.CookieConfig{
			Domain:        cfg.CookieDomain,
			Secure:        cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		PinService:     pinService,
		FinanceService: financeService,

		WorkerService: cacheWorker,
		WorkerSocket:  hub.Handler(cacheWorker, middleware.UserIDFromContext),
		ShellHandler:  offline.Handler(cacheWorker),
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("cache", cacheWorker.Version()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		jobs.Stop(context.Background())
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobs.Stop(ctx)
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// APIサーバーと分けてデプロイする場合に、期限切れセッションの削除を定期実行する。
// PIN入力状態はAPIサーバーのプロセス内にあるため、ここでは破棄しない。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	sessionRepo := repository.NewPostgresSessionRepo(db)

	jobs := scheduler.New(slog.Default(), jobTimeout)
	if err := jobs.Add(cfg.SessionCleanupSchedule, cleanup.NewCleanupJob(sessionRepo, nil, slog.Default())); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("worker starting",
		slog.String("cleanup_schedule", cfg.SessionCleanupSchedule),
	)
	jobs.Start()

	<-stop
	slog.Info("shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	jobs.Stop(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
