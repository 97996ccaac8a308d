package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newstalk/internal/model"
)

// PostgresAppFeedbackRepo はPostgreSQLを使用したアプリ意見リポジトリ。
type PostgresAppFeedbackRepo struct {
	db *sql.DB
}

// NewPostgresAppFeedbackRepo はPostgresAppFeedbackRepoを生成する。
func NewPostgresAppFeedbackRepo(db *sql.DB) *PostgresAppFeedbackRepo {
	return &PostgresAppFeedbackRepo{db: db}
}

// Create は意見を保存する。
func (r *PostgresAppFeedbackRepo) Create(ctx context.Context, f *model.AppFeedback) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO app_feedback (id, content, email, name, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.Content, f.Email, f.Name, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("意見の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AppFeedbackRepository = (*PostgresAppFeedbackRepo)(nil)
