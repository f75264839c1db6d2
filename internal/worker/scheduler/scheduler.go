// Package scheduler はバックグラウンドジョブをcron式で定期実行する。
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job は定期実行されるジョブ。
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler はcronでジョブを定期実行する。
// ジョブ内のpanicはcron.Recoverで回復し、ログに記録する。
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration
	jobs    []Job
	startup sync.WaitGroup
}

// New はSchedulerを生成する。timeoutは1回のジョブ実行の上限時間。
func New(logger *slog.Logger, timeout time.Duration) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger))),
		logger:  logger,
		timeout: timeout,
	}
}

// Add はジョブをcron式specで登録する。"@hourly"や"@every 30m"などの記述子も使える。
func (s *Scheduler) Add(spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, func() { s.run(job) }); err != nil {
		return fmt.Errorf("failed to schedule %s (%q): %w", job.Name(), spec, err)
	}
	s.jobs = append(s.jobs, job)
	s.logger.Info("ジョブを登録しました",
		slog.String("job", job.Name()),
		slog.String("schedule", spec),
	)
	return nil
}

// Start はスケジューラを起動する。登録済みの全ジョブを起動直後に1回実行する。
func (s *Scheduler) Start() {
	for _, job := range s.jobs {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.run(job)
		}()
	}
	s.cron.Start()
}

// Stop はスケジューラを停止し、起動直後の実行を含む実行中のジョブの完了か
// ctxのキャンセルまで待つ。
func (s *Scheduler) Stop(ctx context.Context) {
	cronDone := s.cron.Stop()
	finished := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.startup.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.Info("スケジューラを停止しました")
	case <-ctx.Done():
		s.logger.Warn("スケジューラの停止待ちを打ち切りました")
	}
}

// RunNow は全ジョブを順に1回ずつ実行する。最初のエラーで中断せず、失敗したジョブ数を返す。
func (s *Scheduler) RunNow(ctx context.Context) int {
	failed := 0
	for _, job := range s.jobs {
		if err := s.runWithContext(ctx, job); err != nil {
			failed++
		}
	}
	return failed
}

func (s *Scheduler) run(job Job) {
	_ = s.runWithContext(context.Background(), job)
}

func (s *Scheduler) runWithContext(parent context.Context, job Job) error {
	ctx := parent
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		s.logger.Error("ジョブの実行に失敗しました",
			slog.String("job", job.Name()),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		return err
	}
	s.logger.Debug("ジョブが完了しました",
		slog.String("job", job.Name()),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
