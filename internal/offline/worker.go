package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hitoshi/gastos/internal/metrics"
)

// Lifecycle はWorkerのライフサイクル状態。
type Lifecycle string

const (
	LifecycleParsed     Lifecycle = "parsed"
	LifecycleInstalling Lifecycle = "installing"
	LifecycleInstalled  Lifecycle = "installed"
	LifecycleActive     Lifecycle = "active"
	LifecycleRedundant  Lifecycle = "redundant"
)

// ページからWorkerへのメッセージ種別。
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageGetVersion  = "GET_VERSION"
	MessageCacheUpdate = "CACHE_UPDATE"
)

// WorkerからページへのEvent種別。
const (
	EventBackgroundSync   = "BACKGROUND_SYNC"
	EventNotification     = "NOTIFICATION"
	EventFocus            = "FOCUS"
	EventControllerChange = "CONTROLLER_CHANGE"
)

// BackgroundSyncTag は同期処理を起動するsyncタグ。
const BackgroundSyncTag = "background-sync"

// 通知の固定文言。
const (
	NotificationTitle       = "Gastos Mensuales"
	DefaultNotificationBody = "Tienes una nueva notificación"
	syncCompletedMessage    = "Data synced successfully"
)

var (
	// ErrNotInstalled はインストール前に有効化しようとしたことを示す。
	ErrNotInstalled = errors.New("worker is not installed")
	// ErrNoRecipient は宛先ユーザーのない通知を示す。
	ErrNoRecipient = errors.New("notification has no recipient")
)

// Message はページからWorkerへのメッセージ。
type Message struct {
	Type string `json:"type"`
}

// VersionReply はGET_VERSIONへの返信。
type VersionReply struct {
	Version string `json:"version"`
}

// ClientMessage はWorkerから開いているページへ送るメッセージ。
type ClientMessage struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Title   string   `json:"title,omitempty"`
	Body    string   `json:"body,omitempty"`
	Actions []string `json:"actions,omitempty"`
	URL     string   `json:"url,omitempty"`
}

// ReplyPort はメッセージの送信元へ返信するためのチャネル。
type ReplyPort interface {
	PostMessage(v any) error
}

// Clients はWorkerが制御する開いているページの集合。
type Clients interface {
	// Broadcast は全ページへメッセージを送る。バージョン単位のイベントにのみ使う。
	Broadcast(ctx context.Context, msg ClientMessage) error
	// Notify は指定ユーザーのページにのみメッセージを送る。
	Notify(ctx context.Context, userID string, msg ClientMessage) error
	// Claim は既に開いているページを指定バージョンのWorkerの制御下に置く。
	Claim(version string)
}

// Worker はバージョン付きキャッシュを管理し、リクエストを解決する。
type Worker struct {
	manifest Manifest
	storage  CacheStorage
	network  Network
	clients  Clients
	metrics  metrics.MetricsCollector
	logger   *slog.Logger

	mu          sync.RWMutex
	state       Lifecycle
	skipWaiting bool
	cache       Cache
}

// WorkerOption はWorkerの生成オプション。
type WorkerOption func(*Worker)

// WithClients はブロードキャスト先のページ集合を設定する。
func WithClients(c Clients) WorkerOption {
	return func(w *Worker) { w.clients = c }
}

// WithWorkerMetrics はキャッシュヒット等を記録するコレクターを設定する。
func WithWorkerMetrics(m metrics.MetricsCollector) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithWorkerLogger はロガーを設定する。
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// NewWorker はWorkerを生成する。
func NewWorker(manifest Manifest, storage CacheStorage, network Network, opts ...WorkerOption) *Worker {
	w := &Worker{
		manifest: manifest,
		storage:  storage,
		network:  network,
		clients:  noClients{},
		metrics:  metrics.Nop{},
		logger:   slog.Default(),
		state:    LifecycleParsed,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Version はカレントのキャッシュコレクション名を返す。
func (w *Worker) Version() string {
	return w.manifest.Version
}

// State は現在のライフサイクル状態を返す。
func (w *Worker) State() Lifecycle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// SkipWaitingRequested は待機をスキップする要求が出ているかを返す。
func (w *Worker) SkipWaitingRequested() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.skipWaiting
}

// Install はカレントのコレクションを開き、マニフェストのリソースを投入する。
// 投入は全件成功か何もしないかのどちらかで、失敗してもインストール自体は中断しない。
// 失敗した場合も状態はInstalledになり、投入エラーを返す。
// 最後に待機のスキップを要求する。
func (w *Worker) Install(ctx context.Context) error {
	w.mu.Lock()
	w.state = LifecycleInstalling
	w.mu.Unlock()

	cache, err := w.storage.Open(ctx, w.manifest.Version)
	if err == nil {
		err = w.populate(ctx, cache)
	}

	w.metrics.RecordInstall(err == nil)
	if err != nil {
		w.logger.Error("cache population failed",
			slog.String("cache", w.manifest.Version),
			slog.String("error", err.Error()),
		)
	} else {
		w.logger.Info("cache populated",
			slog.String("cache", w.manifest.Version),
			slog.Int("resources", len(w.manifest.Resources)),
		)
	}

	w.mu.Lock()
	w.state = LifecycleInstalled
	w.cache = cache
	w.skipWaiting = true
	w.mu.Unlock()

	return err
}

// populate はマニフェストの全リソースを取得し、まとめてキャッシュに保存する。
// 1件でも取得に失敗するか2xx以外のステータスなら何も保存しない。
func (w *Worker) populate(ctx context.Context, cache Cache) error {
	entries, err := w.fetchManifest(ctx)
	if err != nil {
		return err
	}
	if err := cache.AddAll(ctx, entries); err != nil {
		return fmt.Errorf("failed to store cache entries: %w", err)
	}
	return nil
}

// fetchManifest はマニフェストの全リソースをネットワークから取得する。
func (w *Worker) fetchManifest(ctx context.Context) ([]Entry, error) {
	entries := make([]Entry, 0, len(w.manifest.Resources))
	for _, key := range w.manifest.Resources {
		resp, err := w.network.Fetch(ctx, &Request{Key: key, Method: http.MethodGet})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
		}
		if !resp.OK() {
			return nil, fmt.Errorf("failed to fetch %s: unexpected status %d", key, resp.Status)
		}
		entries = append(entries, Entry{Key: key, Response: resp})
	}
	return entries, nil
}

// Activate はカレント以外の全コレクションを削除し、開いているページを制御下に置く。
func (w *Worker) Activate(ctx context.Context) error {
	w.mu.Lock()
	if w.state != LifecycleInstalled {
		state := w.state
		w.mu.Unlock()
		if state == LifecycleActive {
			return nil
		}
		return fmt.Errorf("%w: state is %s", ErrNotInstalled, state)
	}
	w.mu.Unlock()

	names, err := w.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cache collections: %w", err)
	}
	for _, name := range names {
		if name == w.manifest.Version {
			continue
		}
		if _, err := w.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("failed to delete cache %s: %w", name, err)
		}
		w.logger.Info("deleted stale cache", slog.String("cache", name))
	}

	w.mu.Lock()
	w.state = LifecycleActive
	w.mu.Unlock()

	w.clients.Claim(w.manifest.Version)
	return nil
}

// Retire はWorkerを終了状態にする。以降のリクエストはネットワークへ直接転送される。
func (w *Worker) Retire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = LifecycleRedundant
}

// Fetch はリクエストを解決する。有効化前と終了後はキャッシュを使わずネットワークへ転送する。
func (w *Worker) Fetch(ctx context.Context, req *Request) (*Response, error) {
	w.mu.RLock()
	state, cache := w.state, w.cache
	w.mu.RUnlock()

	if state != LifecycleActive {
		return w.network.Fetch(ctx, req)
	}

	resp, source, err := Resolve(ctx, req, cache, w.network)
	switch source {
	case SourceCache:
		w.metrics.RecordCacheHit()
		w.logger.Debug("serving from cache", slog.String("url", req.Key))
	case SourceNetwork:
		w.metrics.RecordCacheMiss()
		if err != nil {
			w.metrics.RecordNetworkFailure(string(req.Destination))
			w.logger.Warn("network request failed",
				slog.String("url", req.Key),
				slog.String("destination", string(req.Destination)),
				slog.String("error", err.Error()),
			)
		}
	case SourceOffline:
		w.metrics.RecordCacheMiss()
		w.metrics.RecordNetworkFailure(string(req.Destination))
		w.metrics.RecordOfflineFallback()
		w.logger.Info("serving offline page", slog.String("url", req.Key))
	}
	return resp, err
}

// HandleMessage はページからのメッセージを処理する。未知の種別は無視する。
func (w *Worker) HandleMessage(ctx context.Context, msg Message, port ReplyPort) error {
	switch msg.Type {
	case MessageSkipWaiting:
		w.mu.Lock()
		w.skipWaiting = true
		installed := w.state == LifecycleInstalled
		w.mu.Unlock()
		if installed {
			return w.Activate(ctx)
		}
		return nil

	case MessageGetVersion:
		if port == nil {
			return nil
		}
		return port.PostMessage(VersionReply{Version: w.manifest.Version})

	case MessageCacheUpdate:
		return w.refresh(ctx)

	default:
		w.logger.Debug("ignored worker message", slog.String("type", msg.Type))
		return nil
	}
}

// refresh はカレントのコレクションを削除して作り直し、マニフェストを再投入する。
// 全リソースの取得に成功するまで既存のコレクションには触れない。
func (w *Worker) refresh(ctx context.Context) error {
	entries, err := w.fetchManifest(ctx)
	if err != nil {
		w.logger.Error("cache update failed",
			slog.String("cache", w.manifest.Version),
			slog.String("error", err.Error()),
		)
		return err
	}

	if _, err := w.storage.Delete(ctx, w.manifest.Version); err != nil {
		return fmt.Errorf("failed to delete cache %s: %w", w.manifest.Version, err)
	}
	cache, err := w.storage.Open(ctx, w.manifest.Version)
	if err != nil {
		return fmt.Errorf("failed to open cache %s: %w", w.manifest.Version, err)
	}

	w.mu.Lock()
	w.cache = cache
	w.mu.Unlock()

	if err := cache.AddAll(ctx, entries); err != nil {
		w.logger.Error("cache update failed",
			slog.String("cache", w.manifest.Version),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to store cache entries: %w", err)
	}
	w.logger.Info("cache updated", slog.String("cache", w.manifest.Version))
	return nil
}

// Sync はバックグラウンド同期のトリガーを処理する。
// background-syncタグの場合のみ、開いているページへ完了通知を送る。
func (w *Worker) Sync(ctx context.Context, tag string) error {
	if tag != BackgroundSyncTag {
		return nil
	}
	err := w.clients.Broadcast(ctx, ClientMessage{Type: EventBackgroundSync, Message: syncCompletedMessage})
	if err != nil {
		w.logger.Error("background sync failed", slog.String("error", err.Error()))
	}
	return err
}

// Push はプッシュ通知をuserIDのユーザーが開いているページへ表示依頼として送る。
// bodyが空の場合は既定の文言を使う。
func (w *Worker) Push(ctx context.Context, userID, body string) error {
	if userID == "" {
		return ErrNoRecipient
	}
	if body == "" {
		body = DefaultNotificationBody
	}
	return w.clients.Notify(ctx, userID, ClientMessage{
		Type:    EventNotification,
		Title:   NotificationTitle,
		Body:    body,
		Actions: []string{"open", "close"},
	})
}

// NotificationClick は通知のクリックを処理する。
// "open"または空のアクションの場合のみ、userIDのページへアプリの表示を要求してtrueを返す。
func (w *Worker) NotificationClick(ctx context.Context, userID, action string) (bool, error) {
	if action != "open" && action != "" {
		return false, nil
	}
	if userID == "" {
		return false, ErrNoRecipient
	}
	return true, w.clients.Notify(ctx, userID, ClientMessage{Type: EventFocus, URL: "/"})
}

type noClients struct{}

func (noClients) Broadcast(context.Context, ClientMessage) error {
	return nil
}

func (noClients) Notify(context.Context, string, ClientMessage) error {
	return nil
}

func (noClients) Claim(string) {}
