package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newstalk/internal/model"
)

// lessonDedupWindow は同一タイトルのレッスンを重複とみなす期間。
const lessonDedupWindow = 24 * time.Hour

// PostgresLessonRepo はPostgreSQLを使用したレッスンリポジトリ。
// レッスン本体はJSONBドキュメントとして保存する。
type PostgresLessonRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresLessonRepo はPostgresLessonRepoを生成する。
func NewPostgresLessonRepo(db *sql.DB) *PostgresLessonRepo {
	return &PostgresLessonRepo{db: db, now: time.Now}
}

// Save はレッスンを保存してIDを返す。
// 同じ所有者・同じタイトルのレッスンが24時間以内に保存済みの場合は既存IDを返す。
// 同時保存による重複を避けるため、所有者とタイトルに対するアドバイザリロックを取る。
func (r *PostgresLessonRepo) Save(ctx context.Context, owner string, lesson *model.Lesson) (string, error) {
	doc, err := encodeLessonDocument(lesson)
	if err != nil {
		return "", err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1 || '|' || $2))`,
		owner, lesson.Title,
	); err != nil {
		return "", fmt.Errorf("レッスン保存ロックの取得に失敗しました: %w", err)
	}

	now := r.now()
	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM lessons
		 WHERE owner = $1 AND title = $2 AND created_at > $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		owner, lesson.Title, now.Add(-lessonDedupWindow),
	).Scan(&existingID)
	switch {
	case err == nil:
		return existingID, nil
	case err != sql.ErrNoRows:
		return "", fmt.Errorf("既存レッスンの検索に失敗しました: %w", err)
	}

	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lessons (id, owner, title, level, document, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, owner, lesson.Title, lesson.Level, doc, now,
	); err != nil {
		return "", fmt.Errorf("レッスンの作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// ListByOwner は新しい順にレッスンを返す。
// 解析できないドキュメントは読み飛ばす。
func (r *PostgresLessonRepo) ListByOwner(ctx context.Context, owner string, limit int) ([]model.StoredLesson, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner, document, created_at
		 FROM lessons
		 WHERE owner = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("レッスン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []model.StoredLesson
	for rows.Next() {
		var (
			s   model.StoredLesson
			doc []byte
		)
		if err := rows.Scan(&s.ID, &s.Owner, &doc, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("レッスンのスキャンに失敗しました: %w", err)
		}
		lesson, err := decodeLessonDocument(doc)
		if err != nil {
			continue
		}
		s.Lesson = lesson
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レッスン一覧の走査に失敗しました: %w", err)
	}
	return result, nil
}

// encodeLessonDocument はレッスンを保存用JSONに変換する。
// nilスライスは空配列として保存する。
func encodeLessonDocument(lesson *model.Lesson) ([]byte, error) {
	doc := *lesson
	if doc.Vocabulary == nil {
		doc.Vocabulary = []model.VocabularyItem{}
	}
	if doc.DiscussionA == nil {
		doc.DiscussionA = []string{}
	}
	if doc.DiscussionB == nil {
		doc.DiscussionB = []string{}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("レッスンのエンコードに失敗しました: %w", err)
	}
	return b, nil
}

// decodeLessonDocument は保存用JSONからレッスンを復元する。
func decodeLessonDocument(b []byte) (model.Lesson, error) {
	var lesson model.Lesson
	if err := json.Unmarshal(b, &lesson); err != nil {
		return model.Lesson{}, fmt.Errorf("レッスンのデコードに失敗しました: %w", err)
	}
	return lesson, nil
}

// compile-time interface check
var _ LessonRepository = (*PostgresLessonRepo)(nil)
