package model

import (
	"strings"
	"time"
)

// FeedbackCategory はフィードバックの分類。
type FeedbackCategory string

const (
	CategoryGrammar       FeedbackCategory = "Grammar"
	CategoryVocabulary    FeedbackCategory = "Vocabulary"
	CategoryExpression    FeedbackCategory = "Expression"
	CategoryPronunciation FeedbackCategory = "Pronunciation"
)

// ParseFeedbackCategory は大文字小文字を区別せずにカテゴリを解釈する。
// 4種類以外の値はfalseを返す。
func ParseFeedbackCategory(s string) (FeedbackCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grammar":
		return CategoryGrammar, true
	case "vocabulary":
		return CategoryVocabulary, true
	case "expression":
		return CategoryExpression, true
	case "pronunciation":
		return CategoryPronunciation, true
	default:
		return "", false
	}
}

// FeedbackStatus はフィードバックの復習状態。
type FeedbackStatus string

const (
	FeedbackStatusNew      FeedbackStatus = "New"
	FeedbackStatusReviewed FeedbackStatus = "Reviewed"
)

// FeedbackItem は1文に対する修正提案。
type FeedbackItem struct {
	OriginalSentence  string           `json:"original_sentence"`
	CorrectedSentence string           `json:"corrected_sentence"`
	Category          FeedbackCategory `json:"category"`
	Reason            string           `json:"reason"`
	Status            FeedbackStatus   `json:"status"`
	SessionID         string           `json:"session_id,omitempty"`
}

// StoredFeedback は永続化されたフィードバック。
type StoredFeedback struct {
	ID string `json:"id"`
	FeedbackItem
	UserEmail string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
