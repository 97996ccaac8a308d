// Package subscription はプラン状態とWhisper使用量（分）の台帳を提供する。
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/newstalk/internal/model"
	"github.com/hitoshi/newstalk/internal/repository"
)

// DefaultTrialQuotaMinutes は無料体験中に今期使えるWhisperの分数。
const DefaultTrialQuotaMinutes = 20.0

// transitions は許可する状態遷移。同じ状態への遷移（イベントの再送）は常に許可する。
var transitions = map[model.SubscriptionStatus][]model.SubscriptionStatus{
	model.StatusTrial:     {model.StatusActive, model.StatusExpired},
	model.StatusActive:    {model.StatusCancelled},
	model.StatusExpired:   {model.StatusActive},
	model.StatusCancelled: {model.StatusActive},
}

// Service はアカウントのプラン・体験期間・使用量を扱う台帳。
// 使用可否の判定（CanConsume）と使用量の記録（RecordUsage）は別の呼び出しで、
// 同一ユーザーの同時要求では上限をわずかに超えることがある。
type Service struct {
	repo       repository.AccountRepository
	trialQuota float64
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceを生成する。trialQuotaMinutesが0以下の場合は既定値を使う。
func NewService(repo repository.AccountRepository, trialQuotaMinutes float64, logger *slog.Logger) *Service {
	if trialQuotaMinutes <= 0 {
		trialQuotaMinutes = DefaultTrialQuotaMinutes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		trialQuota: trialQuotaMinutes,
		logger:     logger,
		now:        time.Now,
	}
}

// TrialQuotaMinutes は無料体験の今期上限（分）を返す。
func (s *Service) TrialQuotaMinutes() float64 {
	return s.trialQuota
}

func defaultStatus() model.SubscriptionStatusView {
	return model.SubscriptionStatusView{
		Plan:    model.PlanFree,
		Status:  model.StatusTrial,
		IsTrial: true,
	}
}

// effectiveStatus は保存された状態に体験期間の期限切れを反映した状態を返す。
func effectiveStatus(a *model.Account, now time.Time) model.SubscriptionStatusView {
	view := model.SubscriptionStatusView{
		Plan:        a.Plan,
		Status:      a.Status,
		TrialEndsAt: a.TrialEndsAt,
		IsTrial:     a.Status == model.StatusTrial || (a.Plan == model.PlanFree && a.Status != model.StatusExpired),
	}
	if view.IsTrial && a.TrialEndsAt != nil && now.After(*a.TrialEndsAt) {
		view.IsTrial = false
		view.Status = model.StatusExpired
	}
	return view
}

// GetSubscriptionStatus はユーザーの現在のプラン状態を返す。
// アカウントがない場合や取得に失敗した場合は無料体験中として扱う。
func (s *Service) GetSubscriptionStatus(ctx context.Context, email string) model.SubscriptionStatusView {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		s.logger.ErrorContext(ctx, "サブスクリプション状態の取得に失敗しました（無料体験として扱います）",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return defaultStatus()
	}
	if account == nil {
		return defaultStatus()
	}
	return effectiveStatus(account, s.now())
}

// GetMeteredUsageThisPeriod は今期のWhisper使用分数を返す。アカウントがない場合は0。
func (s *Service) GetMeteredUsageThisPeriod(ctx context.Context, email string) float64 {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		s.logger.ErrorContext(ctx, "Whisper使用量の取得に失敗しました",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if account == nil {
		return 0
	}
	return account.PeriodMinutes
}

// RecordUsage は今期と累計の使用分数にminutesを加算し、最終使用日時を記録する。
// アカウントがない場合はACCOUNT_NOT_FOUNDエラーを返す。
func (s *Service) RecordUsage(ctx context.Context, email string, minutes float64) error {
	if minutes < 0 {
		return model.NewInvalidRequestError("使用分数が負の値です")
	}

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return model.NewAccountNotFoundError(email)
	}

	period := account.PeriodMinutes + minutes
	total := account.TotalMinutes + minutes
	if err := s.repo.UpdateUsage(ctx, email, period, total, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewAccountNotFoundError(email)
		}
		return fmt.Errorf("Whisper使用量の更新に失敗しました: %w", err)
	}

	s.logger.InfoContext(ctx, "Whisper使用量を更新しました",
		slog.String("email", email),
		slog.Float64("added_minutes", minutes),
		slog.Float64("period_minutes", period),
	)
	return nil
}

// CanConsume はminutes分のWhisper利用を許可するかを判定する。
// 無料体験は今期上限まで、有効な有料プランは無制限（RemainingMinutesがnil）。
// 期限切れ・解約済みの有料プランは許可しない。
func (s *Service) CanConsume(ctx context.Context, email string, minutes float64) model.ConsumeDecision {
	status := s.GetSubscriptionStatus(ctx, email)

	if status.IsTrial {
		remaining := s.trialQuota - s.GetMeteredUsageThisPeriod(ctx, email)
		if remaining <= 0 {
			zero := 0.0
			return model.ConsumeDecision{
				Allowed:             false,
				Reason:              fmt.Sprintf("無料体験のWhisper使用上限（%g分）に達しました", s.trialQuota),
				RemainingMinutes:    &zero,
				ShouldFallbackToSTT: true,
			}
		}
		if minutes > remaining {
			return model.ConsumeDecision{
				Allowed:             false,
				Reason:              fmt.Sprintf("Whisper残り%.1f分です。端末STTをご利用ください", remaining),
				RemainingMinutes:    &remaining,
				ShouldFallbackToSTT: true,
			}
		}
		left := remaining - minutes
		return model.ConsumeDecision{Allowed: true, RemainingMinutes: &left}
	}

	if status.Status == model.StatusActive {
		return model.ConsumeDecision{Allowed: true}
	}

	zero := 0.0
	return model.ConsumeDecision{
		Allowed:             false,
		Reason:              "有効なプランがありません。端末STTをご利用ください",
		RemainingMinutes:    &zero,
		ShouldFallbackToSTT: true,
	}
}

// RemainingMinutes は無料体験中の今期残り分数を返す。無料体験でなければnil。
func (s *Service) RemainingMinutes(ctx context.Context, email string) *float64 {
	if !s.GetSubscriptionStatus(ctx, email).IsTrial {
		return nil
	}
	remaining := s.trialQuota - s.GetMeteredUsageThisPeriod(ctx, email)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// ApplyPlanChange は決済イベントによるプランと状態の変更を反映する。
// 遷移元には期限切れを反映した現在の状態を使う。
func (s *Service) ApplyPlanChange(ctx context.Context, email string, plan model.Plan, status model.SubscriptionStatus) (*model.SubscriptionStatusView, error) {
	if !plan.Valid() {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("未知のプランです: %s", plan))
	}
	if !status.Valid() {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("未知の状態です: %s", status))
	}

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError(email)
	}

	current := effectiveStatus(account, s.now()).Status
	if !canTransition(current, status) {
		return nil, model.NewInvalidTransitionError(current, status)
	}

	if err := s.repo.UpdatePlan(ctx, email, plan, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewAccountNotFoundError(email)
		}
		return nil, fmt.Errorf("プランの更新に失敗しました: %w", err)
	}

	s.logger.InfoContext(ctx, "プランを変更しました",
		slog.String("email", email),
		slog.String("plan", string(plan)),
		slog.String("from", string(current)),
		slog.String("to", string(status)),
	)

	account.Plan = plan
	account.Status = status
	view := effectiveStatus(account, s.now())
	return &view, nil
}

func canTransition(from, to model.SubscriptionStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OpenAccount は無料体験のアカウントを作成する。既存のアカウントはそのまま返す。
// 2番目の戻り値は新規作成したかどうか。
func (s *Service) OpenAccount(ctx context.Context, email string, trialDays int) (*model.Account, bool, error) {
	if email == "" {
		return nil, false, model.NewInvalidRequestError("メールアドレスが空です")
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.now()
	trialEnds := now.AddDate(0, 0, trialDays)
	account := &model.Account{
		Email:       email,
		Plan:        model.PlanFree,
		Status:      model.StatusTrial,
		TrialEndsAt: &trialEnds,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, false, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	s.logger.InfoContext(ctx, "無料体験アカウントを作成しました",
		slog.String("email", email),
		slog.Time("trial_ends_at", trialEnds),
	)
	return account, true, nil
}

// PeriodStart はtを含む月の開始時刻（UTC）を返す。
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ResetPeriod は今月より前に始まった今期使用量を0に戻し、リセットした件数を返す。
func (s *Service) ResetPeriod(ctx context.Context) (int64, error) {
	n, err := s.repo.ResetPeriod(ctx, PeriodStart(s.now()))
	if err != nil {
		return 0, fmt.Errorf("今期使用量のリセットに失敗しました: %w", err)
	}
	return n, nil
}
