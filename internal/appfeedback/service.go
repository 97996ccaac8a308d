// Package appfeedback はアプリに対する利用者の意見の受け付けを提供する。
package appfeedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/newstalk/internal/model"
	"github.com/hitoshi/newstalk/internal/repository"
)

const (
	// MaxContentLength は意見本文の最大文字数。
	MaxContentLength = 4000
	maxNameLength    = 100

	// ThanksMessage は受け付け後に返すメッセージ。
	ThanksMessage = "フィードバックを送信しました。ありがとうございます！"
)

// Sanitizer は入力からマークアップを取り除く。
type Sanitizer interface {
	SanitizeText(raw string) string
}

// Service は意見を検証・無害化して保存する。
type Service struct {
	repo      repository.AppFeedbackRepository
	sanitizer Sanitizer
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.AppFeedbackRepository, sanitizer Sanitizer, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Submit は意見を保存する。emailとnameは任意。
func (s *Service) Submit(ctx context.Context, content, email, name string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.NewInvalidRequestError("フィードバックの内容が空です")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return model.NewInvalidRequestError(fmt.Sprintf("フィードバックは%d文字以内にしてください", MaxContentLength))
	}

	clean := s.sanitizer.SanitizeText(content)
	if clean == "" {
		return model.NewInvalidRequestError("フィードバックの内容が空です")
	}

	f := &model.AppFeedback{
		ID:        s.newID(),
		Content:   clean,
		Email:     strings.TrimSpace(email),
		Name:      truncate(s.sanitizer.SanitizeText(strings.TrimSpace(name)), maxNameLength),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return fmt.Errorf("意見の保存に失敗しました: %w", err)
	}

	s.logger.InfoContext(ctx, "アプリへの意見を受け付けました",
		slog.String("feedback_id", f.ID),
		slog.Int("length", utf8.RuneCountInString(f.Content)),
		slog.Bool("has_email", f.Email != ""),
	)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
