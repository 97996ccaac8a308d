package model

import "time"

// Plan はサブスクリプションプラン。
type Plan string

const (
	PlanFree    Plan = "free"
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
)

// Valid は定義済みのプランかどうかを返す。
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanBasic, PlanPremium:
		return true
	}
	return false
}

// SubscriptionStatus はサブスクリプションの状態。
type SubscriptionStatus string

const (
	StatusTrial     SubscriptionStatus = "trial"
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Valid は定義済みの状態かどうかを返す。
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Account はユーザーごとのプランとWhisper使用量の記録。
type Account struct {
	Email         string
	Plan          Plan
	Status        SubscriptionStatus
	TrialEndsAt   *time.Time
	PeriodMinutes float64 // 今期（今月）の使用分数
	TotalMinutes  float64 // 累計使用分数
	LastUsageAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SubscriptionStatusView はクライアントに返すサブスクリプション状態。
type SubscriptionStatusView struct {
	Plan        Plan               `json:"plan"`
	Status      SubscriptionStatus `json:"status"`
	TrialEndsAt *time.Time         `json:"trial_ends_at"`
	IsTrial     bool               `json:"is_trial"`
}

// ConsumeDecision は使用可否の判定結果。
// RemainingMinutesがnilの場合は無制限を表す。
type ConsumeDecision struct {
	Allowed             bool     `json:"allowed"`
	Reason              string   `json:"reason"`
	RemainingMinutes    *float64 `json:"remaining_minutes"`
	ShouldFallbackToSTT bool     `json:"should_fallback_to_stt"`
}
