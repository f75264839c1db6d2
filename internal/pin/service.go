package pin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/gastos/internal/metrics"
	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/repository"
)

// Service はログインセッションごとにGuardを保持し、HTTP層からのPIN入力を処理する。
// ロック解除時にはセッションをunlockedとして保存する。
type Service struct {
	creds    repository.PinCredentialRepository
	sessions repository.SessionRepository
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	cost     int

	mu     sync.Mutex
	guards *lru.Cache[string, *guardEntry]
}

// guardEntry は保持中のGuardとセッションの有効期限の組。
type guardEntry struct {
	guard     *Guard
	expiresAt time.Time
}

// ServiceOption はServiceの生成オプション。
type ServiceOption func(*Service)

// WithHashCost はPINハッシュのbcryptコストを設定する。
func WithHashCost(cost int) ServiceOption {
	return func(s *Service) { s.cost = cost }
}

// WithMetrics はPIN結果を記録するメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService はServiceを生成する。capacityは同時に保持するGuardの上限数。
func NewService(
	creds repository.PinCredentialRepository,
	sessions repository.SessionRepository,
	capacity int,
	opts ...ServiceOption,
) (*Service, error) {
	guards, err := lru.New[string, *guardEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create guard cache: %w", err)
	}
	s := &Service{
		creds:    creds,
		sessions: sessions,
		metrics:  metrics.Nop{},
		logger:   slog.Default(),
		cost:     bcrypt.DefaultCost,
		guards:   guards,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Status はセッションのPIN状態を返す。
func (s *Service) Status(ctx context.Context, sess *model.Session) (Snapshot, error) {
	if sess.Unlocked {
		return Snapshot{State: StateUnlocked, Filled: map[Group]int{}}, nil
	}
	g, err := s.guardFor(ctx, sess)
	if err != nil {
		return Snapshot{}, err
	}
	return g.Snapshot(), nil
}

// Digit は1桁の入力をセッションのGuardへ渡す。
func (s *Service) Digit(ctx context.Context, sess *model.Session, group Group, index int, value string) (Event, error) {
	if sess.Unlocked {
		return s.rejected(), nil
	}
	g, err := s.guardFor(ctx, sess)
	if err != nil {
		return Event{}, err
	}
	ev, err := g.Digit(ctx, group, index, value)
	return s.finish(sess, ev, err)
}

// Submit は4桁のコードをセッションのGuardへ直接送信する。
func (s *Service) Submit(ctx context.Context, sess *model.Session, group Group, code string) (Event, error) {
	if sess.Unlocked {
		return s.rejected(), nil
	}
	g, err := s.guardFor(ctx, sess)
	if err != nil {
		return Event{}, err
	}
	ev, err := g.Submit(ctx, group, code)
	return s.finish(sess, ev, err)
}

// Forget はセッションのGuardを破棄する。ログアウト時に呼び出す。
func (s *Service) Forget(sessionID string) {
	s.guards.Remove(sessionID)
}

// Purge はセッションが期限切れになったGuardを破棄する。
func (s *Service) Purge() {
	now := time.Now()
	for _, id := range s.guards.Keys() {
		if e, ok := s.guards.Peek(id); ok && !e.expiresAt.IsZero() && e.expiresAt.Before(now) {
			s.guards.Remove(id)
		}
	}
}

// Pending は保持中のGuardの数を返す。
func (s *Service) Pending() int {
	return s.guards.Len()
}

func (s *Service) rejected() Event {
	s.metrics.RecordPinOutcome(string(OutcomeRejected))
	return Event{Outcome: OutcomeRejected, State: StateUnlocked, Effects: []Effect{}}
}

func (s *Service) finish(sess *model.Session, ev Event, err error) (Event, error) {
	if ev.Outcome != "" {
		s.metrics.RecordPinOutcome(string(ev.Outcome))
	}
	if err != nil {
		// 解除処理に失敗したGuardは終端状態のまま使えないため、次回は作り直す
		if ev.Outcome.Unlocks() {
			s.Forget(sess.ID)
		}
		return Event{}, err
	}
	if ev.Outcome.Unlocks() {
		sess.Unlocked = true
		s.Forget(sess.ID)
		s.logger.Info("session unlocked",
			slog.String("user_id", sess.UserID),
			slog.String("outcome", string(ev.Outcome)),
		)
	}
	if ev.Outcome == OutcomeIncorrect {
		s.logger.Warn("incorrect pin submitted", slog.String("user_id", sess.UserID))
	}
	return ev, nil
}

// guardFor はセッションのGuardを返す。未作成ならクレデンシャルを読み込んで生成する。
func (s *Service) guardFor(ctx context.Context, sess *model.Session) (*Guard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.guards.Get(sess.ID); ok {
		return e.guard, nil
	}

	sessionID := sess.ID
	g, err := NewGuard(ctx, UserCredentials(s.creds, sess.UserID),
		WithCost(s.cost),
		WithUnlockHandler(func(ctx context.Context) error {
			return s.sessions.MarkUnlocked(ctx, sessionID)
		}),
	)
	if err != nil {
		return nil, err
	}
	s.guards.Add(sess.ID, &guardEntry{guard: g, expiresAt: sess.ExpiresAt})
	return g, nil
}
