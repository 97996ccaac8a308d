package session

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/newstalk/internal/model"
)

const (
	dashboardListLimit = 5

	DefaultHistoryLimit  = 50
	MaxHistoryLimit      = 100
	DefaultFeedbackLimit = 10
	MaxFeedbackLimit     = 50
)

// Dashboard はダッシュボード表示用の集計。
type Dashboard struct {
	Summary        model.UserStats              `json:"summary"`
	MistakeTrends  []model.CategoryCount        `json:"mistake_trends"`
	RecentFeedback []model.StoredFeedback       `json:"recent_feedback"`
	Subscription   model.SubscriptionStatusView `json:"subscription"`
}

// Dashboard は練習統計・頻出カテゴリ・最近のフィードバック・プラン状態を返す。
// 3つの集計は並行に取得し、個々の取得に失敗しても空の値で埋めて返す。
func (s *Service) Dashboard(ctx context.Context, email string) *Dashboard {
	d := &Dashboard{
		MistakeTrends:  []model.CategoryCount{},
		RecentFeedback: []model.StoredFeedback{},
	}

	var g errgroup.Group
	g.Go(func() error {
		s.SideCalls.Run(ctx, "dashboard_stats", func(ctx context.Context) error {
			stats, err := s.Store.GetUserStats(ctx, email)
			if err != nil {
				return err
			}
			if stats != nil {
				d.Summary = *stats
			}
			return nil
		})
		return nil
	})
	g.Go(func() error {
		s.SideCalls.Run(ctx, "dashboard_categories", func(ctx context.Context) error {
			trends, err := s.Store.GetFrequentCategories(ctx, email, dashboardListLimit)
			if err != nil {
				return err
			}
			if trends != nil {
				d.MistakeTrends = trends
			}
			return nil
		})
		return nil
	})
	g.Go(func() error {
		s.SideCalls.Run(ctx, "dashboard_feedback", func(ctx context.Context) error {
			recent, err := s.Store.GetRecentFeedback(ctx, email, dashboardListLimit)
			if err != nil {
				return err
			}
			if recent != nil {
				d.RecentFeedback = recent
			}
			return nil
		})
		return nil
	})

	_ = g.Wait()

	d.Subscription = s.Ledger.GetSubscriptionStatus(ctx, email)
	return d
}

// LessonHistory は保存済みのレッスンを新しい順に返す。
func (s *Service) LessonHistory(ctx context.Context, email string, limit int) ([]model.StoredLesson, error) {
	limit = clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)
	lessons, err := s.Store.GetUserLessons(ctx, email, limit)
	if err != nil {
		return nil, fmt.Errorf("レッスン履歴の取得に失敗しました: %w", err)
	}
	if lessons == nil {
		lessons = []model.StoredLesson{}
	}
	s.Logger.DebugContext(ctx, "レッスン履歴を取得しました", slog.Int("count", len(lessons)))
	return lessons, nil
}

// RecentFeedback は最近のフィードバックを新しい順に返す。
func (s *Service) RecentFeedback(ctx context.Context, email string, limit int) ([]model.StoredFeedback, error) {
	limit = clampLimit(limit, DefaultFeedbackLimit, MaxFeedbackLimit)
	items, err := s.Store.GetRecentFeedback(ctx, email, limit)
	if err != nil {
		return nil, fmt.Errorf("フィードバックの取得に失敗しました: %w", err)
	}
	if items == nil {
		items = []model.StoredFeedback{}
	}
	return items, nil
}

// SubscriptionSummary は/api/subscriptionで返すプラン状態と使用量。
type SubscriptionSummary struct {
	model.SubscriptionStatusView
	UsageMinutesThisPeriod float64  `json:"usage_minutes_this_period"`
	RemainingMinutes       *float64 `json:"remaining_minutes"`
}

// Subscription はプラン状態と今期の使用量を返す。
func (s *Service) Subscription(ctx context.Context, email string) *SubscriptionSummary {
	return &SubscriptionSummary{
		SubscriptionStatusView: s.Ledger.GetSubscriptionStatus(ctx, email),
		UsageMinutesThisPeriod: s.Ledger.GetMeteredUsageThisPeriod(ctx, email),
		RemainingMinutes:       s.Ledger.RemainingMinutes(ctx, email),
	}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
