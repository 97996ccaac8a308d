// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/newstalk/internal/model"
)

// AccountRepository はプランと使用量の永続化インターフェース。
type AccountRepository interface {
	// FindByEmail は指定メールアドレスのアカウントを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// Create はアカウントを作成する。既に存在する場合はエラーを返す。
	Create(ctx context.Context, account *model.Account) error

	// UpdateUsage は今期・累計の使用分数と最終使用日時を上書きする。
	UpdateUsage(ctx context.Context, email string, periodMinutes, totalMinutes float64, lastUsageAt time.Time) error

	// UpdatePlan はプランと状態を更新する。
	UpdatePlan(ctx context.Context, email string, plan model.Plan, status model.SubscriptionStatus) error

	// ResetPeriod はperiodStartより前に開始した今期使用量を0に戻し、更新件数を返す。
	ResetPeriod(ctx context.Context, periodStart time.Time) (int64, error)
}

// ConversationLogRepository は会話ログの永続化インターフェース。
type ConversationLogRepository interface {
	// Create は会話ログを作成する。
	Create(ctx context.Context, log *model.ConversationLog) error

	// StatsByUser はユーザーの練習回数・合計時間・最終練習日時を集計する。
	StatsByUser(ctx context.Context, email string) (*model.UserStats, error)
}

// FeedbackRepository は発話フィードバックの永続化インターフェース。
type FeedbackRepository interface {
	// CreateBatch は複数のフィードバックを1回の文で作成する。
	CreateBatch(ctx context.Context, email, sessionID string, items []model.FeedbackItem) error

	// ListRecentByUser は新しい順にフィードバックを返す。
	ListRecentByUser(ctx context.Context, email string, limit int) ([]model.StoredFeedback, error)

	// CountByCategory はカテゴリ別件数を多い順に返す。
	CountByCategory(ctx context.Context, email string, limit int) ([]model.CategoryCount, error)
}

// LessonRepository はレッスンドキュメントの永続化インターフェース。
type LessonRepository interface {
	// Save はレッスンを保存してIDを返す。
	// 同じ所有者・同じタイトルのレッスンが24時間以内に保存済みの場合は既存IDを返す。
	Save(ctx context.Context, owner string, lesson *model.Lesson) (string, error)

	// ListByOwner は新しい順にレッスンを返す。
	ListByOwner(ctx context.Context, owner string, limit int) ([]model.StoredLesson, error)
}

// AppFeedbackRepository はアプリへの意見の永続化インターフェース。
type AppFeedbackRepository interface {
	Create(ctx context.Context, feedback *model.AppFeedback) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
