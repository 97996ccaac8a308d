package model

import "time"

// GeneratedArticleURL は生成済みコンテンツから開始したセッションの記事URLとして記録される値。
const GeneratedArticleURL = "generated"

// Session は1回のスピーキング練習セッションを表す。
// レジストリに登録された後は変更しない。
type Session struct {
	ID             string
	Owner          string // 開始したユーザーのメールアドレス
	ArticleURL     string
	ArticleTitle   string
	ArticleContent string
	Question       string
	Topic          string
	Lesson         *LessonMeta // 生成済みレッスンから開始した場合のみ設定
	CreatedAt      time.Time
}

// LessonMeta はセッションに紐づくレッスンのメタデータ。
type LessonMeta struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Level    string `json:"level"`
	Date     string `json:"date"`
}

// ConversationLog はセッションで提出された発話の記録。
type ConversationLog struct {
	ID              string
	SessionID       string
	Topic           string
	ArticleURL      string
	Transcript      string
	DurationSeconds float64
	UserEmail       string
	Lesson          *LessonMeta
	CreatedAt       time.Time
}

// UserStats はダッシュボード向けの練習統計。
type UserStats struct {
	TotalSessions        int        `json:"total_sessions"`
	TotalDurationMinutes float64    `json:"total_duration_minutes"`
	LastActive           *time.Time `json:"last_active"`
}

// CategoryCount はフィードバックカテゴリごとの件数。
type CategoryCount struct {
	Category FeedbackCategory `json:"category"`
	Count    int              `json:"count"`
}
