package model

import "time"

// Article は取得済みのニュース記事。
type Article struct {
	Title   string
	Content string
	URL     string
}

// AppFeedback はアプリに対する利用者の意見。
type AppFeedback struct {
	ID        string
	Content   string
	Email     string
	Name      string
	CreatedAt time.Time
}

// ChatTurn は会話チューターとのやり取りの1ターン。
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
