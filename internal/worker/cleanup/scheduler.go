package cleanup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler はクリーンアップジョブをcron式に従って実行する。
type Scheduler struct {
	cron   *cron.Cron
	jobs   []Job
	logger *slog.Logger
	ctx    context.Context
}

// NewScheduler はSchedulerを生成する。
// 実行中のジョブが終わる前に次の時刻が来た場合はスキップする。
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add はジョブをspecのスケジュールで登録する。specは"@daily"や"0 3 * * *"の形式。
func (s *Scheduler) Add(spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, func() { s.runJob(s.ctx, job) }); err != nil {
		return fmt.Errorf("ジョブ %s のスケジュール登録に失敗: %w", job.Name(), err)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Run は登録済みのジョブを一度ずつ実行した後にcronを開始し、ctxがキャンセルされるまでブロックする。
// 停止時は実行中のジョブの完了を待つ。
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.RunOnce(ctx)

	s.cron.Start()
	s.logger.Info("クリーンアップスケジューラを開始しました", slog.Int("jobs", len(s.jobs)))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("クリーンアップスケジューラを停止しました")
}

// RunOnce は登録済みのジョブを順に一度ずつ実行する。
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	if err := job.Run(ctx); err != nil {
		s.logger.Error("クリーンアップジョブが失敗しました",
			slog.String("job", job.Name()),
			slog.String("error", err.Error()),
		)
	}
}
