package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/newstalk/internal/model"
)

// PostgresFeedbackRepo はPostgreSQLを使用したフィードバックリポジトリ。
type PostgresFeedbackRepo struct {
	db *sql.DB
}

// NewPostgresFeedbackRepo はPostgresFeedbackRepoを生成する。
func NewPostgresFeedbackRepo(db *sql.DB) *PostgresFeedbackRepo {
	return &PostgresFeedbackRepo{db: db}
}

// CreateBatch は複数のフィードバックを配列パラメータで一括作成する。
func (r *PostgresFeedbackRepo) CreateBatch(ctx context.Context, email, sessionID string, items []model.FeedbackItem) error {
	if len(items) == 0 {
		return nil
	}

	cols := newFeedbackColumns(items)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feedback_items
		   (id, session_id, user_email, original_sentence, corrected_sentence, category, reason, status)
		 SELECT t.id, $2, $3, t.original, t.corrected, t.category, t.reason, t.status
		 FROM unnest($1::uuid[], $4::text[], $5::text[], $6::text[], $7::text[], $8::text[])
		   AS t(id, original, corrected, category, reason, status)`,
		pq.Array(cols.ids), sessionID, email,
		pq.Array(cols.originals), pq.Array(cols.corrected), pq.Array(cols.categories),
		pq.Array(cols.reasons), pq.Array(cols.statuses),
	)
	if err != nil {
		return fmt.Errorf("フィードバックの一括作成に失敗しました: %w", err)
	}
	return nil
}

// ListRecentByUser は新しい順にフィードバックを返す。
func (r *PostgresFeedbackRepo) ListRecentByUser(ctx context.Context, email string, limit int) ([]model.StoredFeedback, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, original_sentence, corrected_sentence, category, reason, status, created_at
		 FROM feedback_items
		 WHERE user_email = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		email, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("フィードバック一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []model.StoredFeedback
	for rows.Next() {
		f := model.StoredFeedback{UserEmail: email}
		if err := rows.Scan(&f.ID, &f.SessionID, &f.OriginalSentence, &f.CorrectedSentence,
			&f.Category, &f.Reason, &f.Status, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("フィードバックのスキャンに失敗しました: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィードバック一覧の走査に失敗しました: %w", err)
	}
	return result, nil
}

// CountByCategory はカテゴリ別件数を多い順に返す。
func (r *PostgresFeedbackRepo) CountByCategory(ctx context.Context, email string, limit int) ([]model.CategoryCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, count(*) AS n
		 FROM feedback_items
		 WHERE user_email = $1
		 GROUP BY category
		 ORDER BY n DESC, category
		 LIMIT $2`,
		email, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ別集計に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []model.CategoryCount
	for rows.Next() {
		var c model.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("カテゴリ別集計のスキャンに失敗しました: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ別集計の走査に失敗しました: %w", err)
	}
	return result, nil
}

// feedbackColumns は一括INSERT用に列ごとへ展開したフィードバック。
type feedbackColumns struct {
	ids        []string
	originals  []string
	corrected  []string
	categories []string
	reasons    []string
	statuses   []string
}

// newFeedbackColumns はフィードバックを列配列に展開する。
// 状態が未設定の項目はNewとして扱う。
func newFeedbackColumns(items []model.FeedbackItem) feedbackColumns {
	c := feedbackColumns{
		ids:        make([]string, 0, len(items)),
		originals:  make([]string, 0, len(items)),
		corrected:  make([]string, 0, len(items)),
		categories: make([]string, 0, len(items)),
		reasons:    make([]string, 0, len(items)),
		statuses:   make([]string, 0, len(items)),
	}
	for _, it := range items {
		status := it.Status
		if status == "" {
			status = model.FeedbackStatusNew
		}
		c.ids = append(c.ids, uuid.New().String())
		c.originals = append(c.originals, it.OriginalSentence)
		c.corrected = append(c.corrected, it.CorrectedSentence)
		c.categories = append(c.categories, string(it.Category))
		c.reasons = append(c.reasons, it.Reason)
		c.statuses = append(c.statuses, string(status))
	}
	return c
}

// compile-time interface check
var _ FeedbackRepository = (*PostgresFeedbackRepo)(nil)
