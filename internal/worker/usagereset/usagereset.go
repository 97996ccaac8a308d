// Package usagereset は月替わりにWhisperの今期使用量を0に戻すジョブを提供する。
// 前月以前に使用のあったアカウントのみが対象で、何度実行しても結果は変わらない。
package usagereset

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Resetter は今期使用量のリセットを行う。subscription.Serviceが実装する。
type Resetter interface {
	ResetPeriod(ctx context.Context) (int64, error)
}

// Job は今期使用量のリセットジョブ。
type Job struct {
	resetter Resetter
	logger   *slog.Logger
}

// NewJob はJobを生成する。
func NewJob(resetter Resetter, logger *slog.Logger) *Job {
	return &Job{resetter: resetter, logger: logger}
}

// Run はリセットを1回実行する。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	n, err := j.resetter.ResetPeriod(ctx)
	if err != nil {
		j.logger.Error("今期使用量のリセットに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("今期使用量のリセットに失敗: %w", err)
	}

	j.logger.Info("今期使用量のリセットが完了しました",
		slog.Int64("reset_count", n),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまで戻らない。月初の切り替わりはinterval以内に反映される。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("使用量リセットジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 失敗はRun内でログに残し、次の周期で再試行する
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("使用量リセットジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
