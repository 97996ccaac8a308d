package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/newstalk/internal/model"
)

// Store は会話ログ・フィードバック・レッスンの永続化をまとめた窓口。
// セッション処理から見たドキュメントストアとして振る舞う。
type Store struct {
	logs     ConversationLogRepository
	feedback FeedbackRepository
	lessons  LessonRepository
}

// NewStore はPostgreSQLを使用するStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return NewStoreWithRepos(
		NewPostgresConversationLogRepo(db),
		NewPostgresFeedbackRepo(db),
		NewPostgresLessonRepo(db),
	)
}

// NewStoreWithRepos は任意のリポジトリ実装からStoreを組み立てる。
func NewStoreWithRepos(logs ConversationLogRepository, feedback FeedbackRepository, lessons LessonRepository) *Store {
	return &Store{logs: logs, feedback: feedback, lessons: lessons}
}

// CreateConversationLog は会話ログを保存する。
func (s *Store) CreateConversationLog(ctx context.Context, log *model.ConversationLog) error {
	return s.logs.Create(ctx, log)
}

// CreateFeedbackItems はセッションのフィードバックをまとめて保存する。
func (s *Store) CreateFeedbackItems(ctx context.Context, email, sessionID string, items []model.FeedbackItem) error {
	return s.feedback.CreateBatch(ctx, email, sessionID, items)
}

// SaveLesson はレッスンを保存する。24時間以内の同名レッスンは既存IDを返す。
func (s *Store) SaveLesson(ctx context.Context, owner string, lesson *model.Lesson) (string, error) {
	return s.lessons.Save(ctx, owner, lesson)
}

// GetUserLessons はユーザーのレッスン履歴を返す。
func (s *Store) GetUserLessons(ctx context.Context, owner string, limit int) ([]model.StoredLesson, error) {
	return s.lessons.ListByOwner(ctx, owner, limit)
}

// GetUserStats はユーザーの練習統計を返す。
func (s *Store) GetUserStats(ctx context.Context, email string) (*model.UserStats, error) {
	return s.logs.StatsByUser(ctx, email)
}

// GetFrequentCategories はよく指摘されるカテゴリを返す。
func (s *Store) GetFrequentCategories(ctx context.Context, email string, limit int) ([]model.CategoryCount, error) {
	return s.feedback.CountByCategory(ctx, email, limit)
}

// GetRecentFeedback は最近のフィードバックを返す。
func (s *Store) GetRecentFeedback(ctx context.Context, email string, limit int) ([]model.StoredFeedback, error) {
	return s.feedback.ListRecentByUser(ctx, email, limit)
}
