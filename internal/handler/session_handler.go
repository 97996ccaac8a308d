package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/newstalk/internal/model"
	"github.com/hitoshi/newstalk/internal/session"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	StartSession(ctx context.Context, in session.StartInput) (*session.StartResult, error)
	SubmitTranscript(ctx context.Context, email, sessionID, transcript string, durationSeconds float64) (*session.SubmitResult, error)
}

// SessionHandler はスピーキング練習セッションのHTTPハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

type startSessionRequest struct {
	ArticleURL       string            `json:"article_url"`
	CustomContent    string            `json:"custom_content"`
	CustomTitle      string            `json:"custom_title"`
	CustomQuestion   string            `json:"custom_question"`
	Topic            string            `json:"topic"`
	CustomLessonData *model.LessonMeta `json:"custom_lesson_data"`
}

type submitTranscriptRequest struct {
	SessionID       string  `json:"session_id"`
	Transcript      string  `json:"transcript"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Start はセッションを開始する。
// POST /api/session/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req startSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.StartSession(r.Context(), session.StartInput{
		Owner:    email,
		URL:      req.ArticleURL,
		Content:  req.CustomContent,
		Title:    req.CustomTitle,
		Question: req.CustomQuestion,
		Topic:    req.Topic,
		Lesson:   req.CustomLessonData,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Submit は発話の文字起こしを提出してフィードバックを受け取る。
// POST /api/session/submit
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req submitTranscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		handleServiceError(w, r, model.NewInvalidRequestError("session_idが必要です"))
		return
	}

	result, err := h.service.SubmitTranscript(r.Context(), email, req.SessionID, req.Transcript, req.DurationSeconds)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
