// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ExpiredSessionDeleter は期限切れセッションの一括削除インターフェース。
// repository.SessionRepositoryが満たす。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Recorder は削除件数を記録する。
type Recorder interface {
	RecordSessionsCleaned(count int64)
}

// CleanupJob はexpires_atを過ぎたセッション行を削除するジョブ。
// 削除対象がない場合もエラーにならない。
type CleanupJob struct {
	sessions ExpiredSessionDeleter
	recorder Recorder
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(sessions ExpiredSessionDeleter, recorder Recorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		recorder: recorder,
		logger:   logger,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSessionsCleaned(deleted)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、その後intervalごとに実行する。
// ctxがキャンセルされるまでブロックする。個々の実行の失敗では停止しない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
