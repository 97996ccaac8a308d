package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/newstalk/internal/lesson"
	"github.com/hitoshi/newstalk/internal/middleware"
	"github.com/hitoshi/newstalk/internal/model"
	"github.com/hitoshi/newstalk/internal/session"
)

// mockService はsession.Serviceのハンドラー向けメソッドをまとめたモック。
type mockService struct {
	startSessionFn     func(ctx context.Context, in session.StartInput) (*session.StartResult, error)
	submitTranscriptFn func(ctx context.Context, email, sessionID, transcript string, durationSeconds float64) (*session.SubmitResult, error)
	generateLessonsFn  func(ctx context.Context, email, sourceURL string, level lesson.Level) ([]model.Lesson, error)
	lessonHistoryFn    func(ctx context.Context, email string, limit int) ([]model.StoredLesson, error)
	dashboardFn        func(ctx context.Context, email string) *session.Dashboard
	recentFeedbackFn   func(ctx context.Context, email string, limit int) ([]model.StoredFeedback, error)
	subscriptionFn     func(ctx context.Context, email string) *session.SubscriptionSummary
	transcribeAudioFn  func(ctx context.Context, email, audioBase64 string, durationSeconds float64) (*session.TranscribeResult, error)
	speakFn            func(ctx context.Context, email, text, voice string) ([]byte, error)
}

func (m *mockService) StartSession(ctx context.Context, in session.StartInput) (*session.StartResult, error) {
	return m.startSessionFn(ctx, in)
}

func (m *mockService) SubmitTranscript(ctx context.Context, email, sessionID, transcript string, durationSeconds float64) (*session.SubmitResult, error) {
	return m.submitTranscriptFn(ctx, email, sessionID, transcript, durationSeconds)
}

func (m *mockService) GenerateLessons(ctx context.Context, email, sourceURL string, level lesson.Level) ([]model.Lesson, error) {
	return m.generateLessonsFn(ctx, email, sourceURL, level)
}

func (m *mockService) LessonHistory(ctx context.Context, email string, limit int) ([]model.StoredLesson, error) {
	return m.lessonHistoryFn(ctx, email, limit)
}

func (m *mockService) Dashboard(ctx context.Context, email string) *session.Dashboard {
	return m.dashboardFn(ctx, email)
}

func (m *mockService) RecentFeedback(ctx context.Context, email string, limit int) ([]model.StoredFeedback, error) {
	return m.recentFeedbackFn(ctx, email, limit)
}

func (m *mockService) Subscription(ctx context.Context, email string) *session.SubscriptionSummary {
	return m.subscriptionFn(ctx, email)
}

func (m *mockService) TranscribeAudio(ctx context.Context, email, audioBase64 string, durationSeconds float64) (*session.TranscribeResult, error) {
	return m.transcribeAudioFn(ctx, email, audioBase64, durationSeconds)
}

func (m *mockService) Speak(ctx context.Context, email, text, voice string) ([]byte, error) {
	return m.speakFn(ctx, email, text, voice)
}

type mockTutor struct {
	replyFn func(ctx context.Context, message string, history []model.ChatTurn) (string, error)
}

func (m *mockTutor) Reply(ctx context.Context, message string, history []model.ChatTurn) (string, error) {
	return m.replyFn(ctx, message, history)
}

type mockAppFeedback struct {
	submitFn func(ctx context.Context, content, email, name string) error
}

func (m *mockAppFeedback) Submit(ctx context.Context, content, email, name string) error {
	return m.submitFn(ctx, content, email, name)
}

type mockVerifier struct{}

func (mockVerifier) Verify(token string) (string, error) {
	if token == "valid-token" {
		return testEmail, nil
	}
	return "", errors.New("invalid token")
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

const testEmail = "learner@example.com"

type testRouterOptions struct {
	service     *mockService
	tutor       *mockTutor
	appFeedback *mockAppFeedback
	health      HealthChecker
}

// newTestRouter はモックを差し込んだルーターを返す。
func newTestRouter(t *testing.T, opts testRouterOptions) http.Handler {
	t.Helper()
	if opts.service == nil {
		opts.service = &mockService{}
	}
	if opts.tutor == nil {
		opts.tutor = &mockTutor{}
	}
	if opts.appFeedback == nil {
		opts.appFeedback = &mockAppFeedback{}
	}

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		MeteredRate:     100,
		MeteredBurst:    100,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		TokenVerifier:      mockVerifier{},
		CORSAllowedOrigin:  "http://localhost:3000",
		RateLimiter:        rl,
		HealthChecker:      opts.health,
		SessionService:     opts.service,
		LessonService:      opts.service,
		DashboardService:   opts.service,
		SpeechService:      opts.service,
		Tutor:              opts.tutor,
		AppFeedbackService: opts.appFeedback,
	})
}

// authedRequest はBearerトークン付きのリクエストを作る。
func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer valid-token")
	return req
}

func bytesBody(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}
