// Package cleanup は古い会話ログの発話テキストとアプリへの意見を削除する保持期間ジョブを提供する。
// 会話ログの行そのものは練習時間などの集計に使うため残し、transcriptだけを空にする。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は保持日数の既定値。
const DefaultRetentionDays = 180

const (
	scrubTranscriptsQuery = `UPDATE conversation_logs SET transcript = '' WHERE created_at < now() - $1::interval AND transcript <> ''`
	purgeAppFeedbackQuery = `DELETE FROM app_feedback WHERE created_at < now() - $1::interval`
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CleanupJob は保持期間を過ぎたデータの削除ジョブ。何度実行しても結果は変わらない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // 0以下なら何もしない
}

// NewCleanupJob はCleanupJobを生成する。retentionDaysが負の場合はDefaultRetentionDaysを使う。
func NewCleanupJob(db Executor, retentionDays int, logger *slog.Logger) *CleanupJob {
	if retentionDays < 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Run は保持期間を過ぎた発話テキストを空にし、アプリへの意見を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	if j.RetentionDays <= 0 {
		return nil
	}
	start := time.Now()
	interval := fmt.Sprintf("%d days", j.RetentionDays)

	scrubbed, err := j.exec(ctx, scrubTranscriptsQuery, interval)
	if err != nil {
		return fmt.Errorf("会話ログの発話テキスト削除に失敗: %w", err)
	}
	purged, err := j.exec(ctx, purgeAppFeedbackQuery, interval)
	if err != nil {
		return fmt.Errorf("アプリへの意見の削除に失敗: %w", err)
	}

	j.logger.Info("保持期間ジョブが完了しました",
		slog.Int64("scrubbed_transcripts", scrubbed),
		slog.Int64("deleted_app_feedback", purged),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *CleanupJob) exec(ctx context.Context, query, interval string) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("保持期間ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("更新件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, err
	}
	return n, nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。ctxがキャンセルされるまで戻らない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("保持期間ジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
