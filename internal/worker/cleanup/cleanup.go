// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// 期限切れセッションの削除と、保持期間を過ぎたアセット履歴の削除をcronで実行する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/shortsmith/internal/metrics"
	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/storage"
)

// Job は定期実行されるクリーンアップ処理。
// Runは冪等で、削除対象がない場合もエラーにならない。
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// SessionPurger は期限切れセッションの削除を行う。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AssetPurger は作成日時がcutoffより前のアセット履歴を削除し、削除した行を返す。
type AssetPurger interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]*model.AssetHistory, error)
}

// ObjectRemover はアセットに紐付く保存済みオブジェクトの削除に使う。
type ObjectRemover interface {
	KeyFromURL(rawURL string) (string, bool)
	Delete(ctx context.Context, key string) error
}

// SessionJob は期限切れセッションを削除するジョブ。
type SessionJob struct {
	repo    SessionPurger
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionJob はSessionJobを生成する。
func NewSessionJob(repo SessionPurger, m metrics.MetricsCollector, logger *slog.Logger) *SessionJob {
	return &SessionJob{repo: repo, metrics: m, logger: logger, now: time.Now}
}

func (j *SessionJob) Name() string { return "sessions" }

// Run は現在時刻で期限切れのセッションを削除する。
func (j *SessionJob) Run(ctx context.Context) error {
	start := time.Now()

	n, err := j.repo.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("job", j.Name()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	j.metrics.RecordCleanupDeleted(j.Name(), n)

	j.logger.Info("期限切れセッションの削除が完了しました",
		slog.String("job", j.Name()),
		slog.Int64("deleted_count", n),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// AssetRetentionJob は保持期間を超過したアセット履歴を削除するジョブ。
// 自バケット内のユーザー領域にあるオブジェクトも合わせて削除する。
type AssetRetentionJob struct {
	repo          AssetPurger
	objects       ObjectRemover
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	RetentionDays int
	now           func() time.Time
}

// NewAssetRetentionJob はAssetRetentionJobを生成する。
func NewAssetRetentionJob(repo AssetPurger, objects ObjectRemover, retentionDays int, m metrics.MetricsCollector, logger *slog.Logger) *AssetRetentionJob {
	return &AssetRetentionJob{
		repo:          repo,
		objects:       objects,
		metrics:       m,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

func (j *AssetRetentionJob) Name() string { return "asset_history" }

// Run はcreated_atがRetentionDays日より前のアセット履歴を削除する。
// オブジェクトの削除失敗は記録のみ行い、ジョブは成功として扱う。
func (j *AssetRetentionJob) Run(ctx context.Context) error {
	if j.RetentionDays <= 0 {
		return nil
	}
	start := time.Now()
	cutoff := j.now().AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.repo.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("アセット履歴クリーンアップジョブの実行に失敗しました",
			slog.String("job", j.Name()),
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("アセット履歴クリーンアップの実行に失敗: %w", err)
	}

	removed := 0
	for _, a := range deleted {
		if j.removeObject(ctx, a) {
			removed++
		}
	}
	j.metrics.RecordCleanupDeleted(j.Name(), int64(len(deleted)))

	j.logger.Info("アセット履歴クリーンアップジョブが完了しました",
		slog.String("job", j.Name()),
		slog.Int("deleted_count", len(deleted)),
		slog.Int("objects_deleted", removed),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *AssetRetentionJob) removeObject(ctx context.Context, a *model.AssetHistory) bool {
	if j.objects == nil {
		return false
	}
	key, ok := j.objects.KeyFromURL(a.StorageURL)
	if !ok || !storage.OwnedBy(key, a.UserID) {
		return false
	}
	err := j.objects.Delete(ctx, key)
	if err == nil {
		return true
	}
	if !errors.Is(err, storage.ErrNotFound) {
		j.logger.Warn("保存済みオブジェクトの削除に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return false
}
