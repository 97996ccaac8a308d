package model

import "time"

// Lesson はニュース記事から生成された英語教材。
// JSONキーはクライアントおよび保存ドキュメントと共通。
type Lesson struct {
	Title         string           `json:"title"`
	Date          string           `json:"date"`
	Category      string           `json:"category"`
	Vocabulary    []VocabularyItem `json:"vocabulary"`
	Content       string           `json:"content"`
	DiscussionA   []string         `json:"discussion_a"`
	DiscussionB   []string         `json:"discussion_b"`
	Question      string           `json:"question"`
	Level         string           `json:"level"`
	JapaneseTitle string           `json:"japanese_title"`
}

// VocabularyItem はレッスンの語彙項目。
type VocabularyItem struct {
	Word          string `json:"word"`
	Pronunciation string `json:"pronunciation"`
	Type          string `json:"type"`
	Definition    string `json:"definition"`
	Example       string `json:"example"`
}

// StoredLesson はユーザーごとに保存されたレッスン。
// JSONではレッスンの項目をid・created_atと同じ階層に展開する。
type StoredLesson struct {
	ID        string    `json:"id"`
	Owner     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	Lesson
}
