package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/newstalk/internal/appfeedback"
)

// AppFeedbackServiceInterface はアプリへのご意見フォームのサービスインターフェース。
type AppFeedbackServiceInterface interface {
	Submit(ctx context.Context, content, email, name string) error
}

// AppFeedbackHandler はアプリへのご意見を受け付けるHTTPハンドラー。認証不要。
type AppFeedbackHandler struct {
	service AppFeedbackServiceInterface
}

// NewAppFeedbackHandler はAppFeedbackHandlerを生成する。
func NewAppFeedbackHandler(service AppFeedbackServiceInterface) *AppFeedbackHandler {
	return &AppFeedbackHandler{service: service}
}

type appFeedbackRequest struct {
	Content string `json:"content"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// Submit はご意見を保存する。
// POST /api/app-feedback
func (h *AppFeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req appFeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.Submit(r.Context(), req.Content, req.Email, req.Name); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": appfeedback.ThanksMessage})
}
