package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/hitoshi/newstalk/internal/model"
)

// PostgresConversationLogRepo はPostgreSQLを使用した会話ログリポジトリ。
type PostgresConversationLogRepo struct {
	db *sql.DB
}

// NewPostgresConversationLogRepo はPostgresConversationLogRepoを生成する。
func NewPostgresConversationLogRepo(db *sql.DB) *PostgresConversationLogRepo {
	return &PostgresConversationLogRepo{db: db}
}

// Create は会話ログを作成する。レッスン情報はJSONBとして保存する。
func (r *PostgresConversationLogRepo) Create(ctx context.Context, log *model.ConversationLog) error {
	var meta []byte
	if log.Lesson != nil {
		b, err := json.Marshal(log.Lesson)
		if err != nil {
			return fmt.Errorf("レッスン情報のエンコードに失敗しました: %w", err)
		}
		meta = b
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_logs
		   (id, session_id, user_email, topic, article_url, transcript, duration_seconds, lesson_meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		log.ID, log.SessionID, log.UserEmail, log.Topic, log.ArticleURL, log.Transcript,
		log.DurationSeconds, nullableJSON(meta), log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("会話ログの作成に失敗しました: %w", err)
	}
	return nil
}

// StatsByUser はユーザーの練習回数・合計時間・最終練習日時を集計する。
// 合計時間は分単位で小数第1位に丸める。
func (r *PostgresConversationLogRepo) StatsByUser(ctx context.Context, email string) (*model.UserStats, error) {
	var (
		count      int
		seconds    float64
		lastActive sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(sum(duration_seconds), 0), max(created_at)
		 FROM conversation_logs WHERE user_email = $1`,
		email,
	).Scan(&count, &seconds, &lastActive)
	if err != nil {
		return nil, fmt.Errorf("練習統計の集計に失敗しました: %w", err)
	}

	stats := &model.UserStats{
		TotalSessions:        count,
		TotalDurationMinutes: math.Round(seconds/60*10) / 10,
	}
	if lastActive.Valid {
		t := lastActive.Time
		stats.LastActive = &t
	}
	return stats, nil
}

// nullableJSON は空のJSONをSQLのNULLとして渡す。
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// compile-time interface check
var _ ConversationLogRepository = (*PostgresConversationLogRepo)(nil)
