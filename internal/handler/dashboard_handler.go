package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/newstalk/internal/model"
	"github.com/hitoshi/newstalk/internal/session"
)

// DashboardServiceInterface はダッシュボード系ハンドラーが必要とするサービスインターフェース。
type DashboardServiceInterface interface {
	Dashboard(ctx context.Context, email string) *session.Dashboard
	RecentFeedback(ctx context.Context, email string, limit int) ([]model.StoredFeedback, error)
	Subscription(ctx context.Context, email string) *session.SubscriptionSummary
}

// DashboardHandler は学習状況とプラン状態のHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface) *DashboardHandler {
	return &DashboardHandler{service: service}
}

type recentFeedbackResponse struct {
	Feedback []model.StoredFeedback `json:"feedback"`
}

// Stats はダッシュボードの集計を返す。
// GET /api/dashboard/stats
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.service.Dashboard(r.Context(), email))
}

// RecentFeedback は最近のフィードバックを返す。
// GET /api/feedback/recent?limit=
func (h *DashboardHandler) RecentFeedback(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}

	items, err := h.service.RecentFeedback(r.Context(), email, queryLimit(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recentFeedbackResponse{Feedback: items})
}

// Subscription はプラン状態と今期の使用量を返す。
// GET /api/subscription
func (h *DashboardHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.service.Subscription(r.Context(), email))
}
