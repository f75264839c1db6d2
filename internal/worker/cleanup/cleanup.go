// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// PIN未解除のまま放置されたセッションも期限切れとともに削除される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れセッションの削除インターフェース。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// GuardForgetter はセッションに紐づくPIN入力状態を破棄する。
type GuardForgetter interface {
	Purge()
}

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 冪等な削除処理を保証し、cronから定期実行される。
type CleanupJob struct {
	sessions SessionPurger
	guards   GuardForgetter
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。guardsはnilでもよい。
func NewCleanupJob(sessions SessionPurger, guards GuardForgetter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		guards:   guards,
		logger:   logger,
	}
}

// Name はジョブ名を返す。
func (j *CleanupJob) Name() string {
	return "session-cleanup"
}

// Run は期限切れセッションを削除する。
// 削除が発生した場合は、保持中のPIN入力状態のうち失効したものも破棄する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}
	if deletedCount > 0 && j.guards != nil {
		j.guards.Purge()
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
