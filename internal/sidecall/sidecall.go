// Package sidecall は失敗しても呼び出し元の処理を止めない副作用の実行を提供する。
package sidecall

import (
	"context"
	"log/slog"
)

// FailureRecorder は副作用の失敗を記録する。metrics.MetricsCollectorの部分集合。
type FailureRecorder interface {
	RecordSideEffectFailure(op string)
}

// Runner は副作用を実行し、失敗をログとメトリクスにのみ残す。
type Runner struct {
	logger   *slog.Logger
	recorder FailureRecorder
}

// NewRunner はRunnerを生成する。loggerがnilの場合はslog.Defaultを使う。
func NewRunner(logger *slog.Logger, recorder FailureRecorder) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, recorder: recorder}
}

// Run はfnを実行し、成功した場合にtrueを返す。
// エラーやパニックは呼び出し元へ伝播しない。
func (r *Runner) Run(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...slog.Attr) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(ctx, op, slog.Any("panic", rec), attrs)
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		r.fail(ctx, op, slog.String("error", err.Error()), attrs)
		return false
	}
	return true
}

func (r *Runner) fail(ctx context.Context, op string, cause slog.Attr, attrs []slog.Attr) {
	all := make([]slog.Attr, 0, len(attrs)+2)
	all = append(all, slog.String("op", op), cause)
	all = append(all, attrs...)
	r.logger.LogAttrs(ctx, slog.LevelWarn, "副作用の実行に失敗しました（処理は続行）", all...)
	if r.recorder != nil {
		r.recorder.RecordSideEffectFailure(op)
	}
}
