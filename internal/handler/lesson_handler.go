package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/newstalk/internal/lesson"
	"github.com/hitoshi/newstalk/internal/model"
)

// LessonServiceInterface はレッスンハンドラーが必要とするサービスインターフェース。
type LessonServiceInterface interface {
	// GenerateLessons はsourceURLが空なら記事を自動で選んで教材を生成する。
	GenerateLessons(ctx context.Context, email, sourceURL string, level lesson.Level) ([]model.Lesson, error)
	LessonHistory(ctx context.Context, email string, limit int) ([]model.StoredLesson, error)
}

// LessonHandler は教材生成とレッスン履歴のHTTPハンドラー。
type LessonHandler struct {
	service LessonServiceInterface
}

// NewLessonHandler はLessonHandlerを生成する。
func NewLessonHandler(service LessonServiceInterface) *LessonHandler {
	return &LessonHandler{service: service}
}

type generateLessonRequest struct {
	NewsURL string     `json:"news_url"`
	Level   levelParam `json:"level"`
}

// levelParam は数値（2）と文字列（"2"）のどちらのlevelも受け付ける。
type levelParam string

func (p *levelParam) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = levelParam(s)
	default:
		*p = levelParam(data)
	}
	return nil
}

type lessonsResponse struct {
	Lessons []model.Lesson `json:"lessons"`
}

// Generate は指定されたニュース記事から教材を生成する。
// POST /api/lesson/generate
func (h *LessonHandler) Generate(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req generateLessonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NewsURL == "" {
		handleServiceError(w, r, model.NewInvalidRequestError("news_urlが必要です"))
		return
	}

	h.generate(w, r, email, req.NewsURL, string(req.Level))
}

// GenerateAuto は自動で選んだニュース記事から教材を生成する。
// GET /api/lesson/generate/auto?level=
func (h *LessonHandler) GenerateAuto(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.generate(w, r, email, "", r.URL.Query().Get("level"))
}

func (h *LessonHandler) generate(w http.ResponseWriter, r *http.Request, email, sourceURL, rawLevel string) {
	level, err := lesson.ParseLevel(rawLevel)
	if err != nil {
		handleServiceError(w, r, model.NewInvalidRequestError("levelは1〜3で指定してください"))
		return
	}

	lessons, err := h.service.GenerateLessons(r.Context(), email, sourceURL, level)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lessonsResponse{Lessons: lessons})
}

// History は保存済みのレッスンを新しい順に返す。
// GET /api/lesson/history?limit=
func (h *LessonHandler) History(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}

	lessons, err := h.service.LessonHistory(r.Context(), email, queryLimit(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lessons)
}
