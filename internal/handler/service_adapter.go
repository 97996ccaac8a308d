package handler

import (
	"github.com/hitoshi/newstalk/internal/appfeedback"
	"github.com/hitoshi/newstalk/internal/session"
	"github.com/hitoshi/newstalk/internal/tutor"
)

// --- compile-time interface checks ---
// ドメインのサービスはアダプタなしでハンドラーのインターフェースを満たす。

var _ SessionServiceInterface = (*session.Service)(nil)
var _ LessonServiceInterface = (*session.Service)(nil)
var _ DashboardServiceInterface = (*session.Service)(nil)
var _ SpeechServiceInterface = (*session.Service)(nil)
var _ TutorInterface = (*tutor.Tutor)(nil)
var _ AppFeedbackServiceInterface = (*appfeedback.Service)(nil)
