// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// セッションの有効性は常に認証ガードが有効期限で判定するため、
// このジョブは不要な行を片付けるハウスキーピングに過ぎない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れセッションの一括削除インターフェース。
// repository.ExpiredSessionPurgerと同じ形。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PurgeRecorder は削除件数をメトリクスに記録する。
type PurgeRecorder interface {
	RecordSessionsPurged(count int64)
}

// SessionPurgeJob は期限切れセッションの削除ジョブ。
// 冪等であり、何度実行しても結果は変わらない。
type SessionPurgeJob struct {
	purger  SessionPurger
	logger  *slog.Logger
	metrics PurgeRecorder
	now     func() time.Time
}

// NewSessionPurgeJob は新しいSessionPurgeJobを生成する。metricsはnilでもよい。
func NewSessionPurgeJob(purger SessionPurger, logger *slog.Logger, metrics PurgeRecorder) *SessionPurgeJob {
	return &SessionPurgeJob{
		purger:  purger,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run はexpires_atが現在時刻より前のセッションを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *SessionPurgeJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.purger.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsPurged(deletedCount)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、その後interval間隔でRunを実行する。
// コンテキストがキャンセルされるまでブロックする。
// 個々の実行の失敗はログに記録して継続する。
func (j *SessionPurgeJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッションクリーンアップを開始しました",
		slog.Duration("interval", interval),
	)

	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
