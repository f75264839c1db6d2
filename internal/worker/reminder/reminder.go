// Package reminder は期日が近いリマインダーをプッシュ通知として配信するジョブを提供する。
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gastos/internal/finance"
)

// DefaultWindow は通知対象とする期日までの時間幅。
const DefaultWindow = 24 * time.Hour

// ReminderSource は通知対象のリマインダーの取得と通知済みの記録を行う。
type ReminderSource interface {
	DueReminders(ctx context.Context, now time.Time, window time.Duration) ([]finance.DueReminder, error)
	MarkReminderNotified(ctx context.Context, userID, id string) error
}

// Notifier はプッシュ通知を宛先ユーザーが開いているページへ配信する。
type Notifier interface {
	Push(ctx context.Context, userID, body string) error
}

// Job はリマインダー通知ジョブ。
// 期日がwindow以内のリマインダーを1件ずつ通知し、通知済みとして記録する。
type Job struct {
	source   ReminderSource
	notifier Notifier
	logger   *slog.Logger
	window   time.Duration
	now      func() time.Time
}

// NewJob はJobを生成する。windowが0以下の場合はDefaultWindowを使う。
func NewJob(source ReminderSource, notifier Notifier, logger *slog.Logger, window time.Duration) *Job {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Job{
		source:   source,
		notifier: notifier,
		logger:   logger,
		window:   window,
		now:      time.Now,
	}
}

// Name はジョブ名を返す。
func (j *Job) Name() string {
	return "reminder-notifications"
}

// Run は通知対象のリマインダーを配信する。
// 1件の通知に失敗しても残りの配信は続け、失敗件数をエラーとして返す。
// 通知に失敗したリマインダーは通知済みにしないため、次回の実行で再送される。
func (j *Job) Run(ctx context.Context) error {
	due, err := j.source.DueReminders(ctx, j.now(), j.window)
	if err != nil {
		return fmt.Errorf("通知対象リマインダーの取得に失敗: %w", err)
	}
	if len(due) == 0 {
		j.logger.Debug("通知対象のリマインダーはありません")
		return nil
	}

	failed := 0
	for _, d := range due {
		if err := j.notify(ctx, d); err != nil {
			failed++
			j.logger.Error("リマインダー通知に失敗しました",
				slog.String("user_id", d.UserID),
				slog.String("reminder_id", d.Reminder.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	j.logger.Info("リマインダー通知ジョブが完了しました",
		slog.Int("due_count", len(due)),
		slog.Int("failed_count", failed),
	)
	if failed > 0 {
		return fmt.Errorf("%d件のリマインダー通知に失敗しました", failed)
	}
	return nil
}

func (j *Job) notify(ctx context.Context, d finance.DueReminder) error {
	body := fmt.Sprintf("%s - %s", d.Reminder.Title, d.Reminder.Date.Format("02/01/2006"))
	if err := j.notifier.Push(ctx, d.UserID, body); err != nil {
		return err
	}
	return j.source.MarkReminderNotified(ctx, d.UserID, d.Reminder.ID)
}
