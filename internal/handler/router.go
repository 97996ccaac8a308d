package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/newstalk/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメイン
	SessionService     SessionServiceInterface
	LessonService      LessonServiceInterface
	DashboardService   DashboardServiceInterface
	SpeechService      SpeechServiceInterface
	Tutor              TutorInterface
	AppFeedbackService AppFeedbackServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Metrics → Logging → SecurityHeaders → CORS
//	  → Auth → CSRF → RateLimit(General) [→ RateLimit(Metered)]
//
// /health、/metrics、/api/csrf-token、/api/app-feedback は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	sessionHandler := NewSessionHandler(deps.SessionService)
	lessonHandler := NewLessonHandler(deps.LessonService)
	dashboardHandler := NewDashboardHandler(deps.DashboardService)
	speechHandler := NewSpeechHandler(deps.SpeechService)
	chatHandler := NewChatHandler(deps.Tutor)
	appFeedbackHandler := NewAppFeedbackHandler(deps.AppFeedbackService)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
	r.With(deps.RateLimiter.MeteredMiddleware()).Post("/api/app-feedback", appFeedbackHandler.Submit)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		metered := deps.RateLimiter.MeteredMiddleware()

		r.Route("/api/session", func(r chi.Router) {
			r.Post("/start", sessionHandler.Start)
			r.Post("/submit", sessionHandler.Submit)
		})

		r.Route("/api/lesson", func(r chi.Router) {
			r.With(metered).Post("/generate", lessonHandler.Generate)
			r.With(metered).Get("/generate/auto", lessonHandler.GenerateAuto)
			r.Get("/history", lessonHandler.History)
		})

		r.Get("/api/feedback/recent", dashboardHandler.RecentFeedback)
		r.Get("/api/dashboard/stats", dashboardHandler.Stats)
		r.Get("/api/subscription", dashboardHandler.Subscription)

		r.With(metered).Post("/api/whisper/transcribe", speechHandler.Transcribe)
		r.With(metered).Post("/api/tts/speak", speechHandler.Speak)
		r.With(metered).Post("/api/chat", chatHandler.Chat)
	})

	return r
}
