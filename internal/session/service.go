package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newstalk/internal/lesson"
	"github.com/hitoshi/newstalk/internal/model"
	"github.com/hitoshi/newstalk/internal/sidecall"
)

const (
	defaultGeneratedTitle    = "Generated Lesson"
	defaultGeneratedQuestion = "What do you think about this news?"
	generatedSummary         = "（生成済み英語記事のため要約スキップ）"

	summaryLength = 200

	messageNoIssues = "素晴らしい！改善点は見つかりませんでした"
)

// ArticleSource はニュース記事の取得元。
// 記事が見つからない場合は(nil, nil)を返す。
type ArticleSource interface {
	FetchByURL(ctx context.Context, rawURL string) (*model.Article, error)
	FetchAutomatic(ctx context.Context) (*model.Article, error)
}

// Summarizer は記事本文を要約する。失敗時も先頭部分の切り詰めなどで必ず文字列を返す。
type Summarizer interface {
	Summarize(ctx context.Context, content string, maxLength int) string
}

// QuestionGenerator は記事について学習者に尋ねる質問を生成する。失敗時は定型の質問を返す。
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, content, title string) string
}

// FeedbackAnalyzer は発話の文字起こしを解析する。
type FeedbackAnalyzer interface {
	Analyze(ctx context.Context, transcript string) []model.FeedbackItem
}

// LessonGenerator は記事から英語教材を生成する。
type LessonGenerator interface {
	Generate(ctx context.Context, sourceText, sourceTitle string, level lesson.Level) ([]model.Lesson, error)
}

// Store はセッション結果の永続化先。
type Store interface {
	CreateConversationLog(ctx context.Context, log *model.ConversationLog) error
	CreateFeedbackItems(ctx context.Context, email, sessionID string, items []model.FeedbackItem) error
	SaveLesson(ctx context.Context, owner string, lesson *model.Lesson) (string, error)
	GetUserLessons(ctx context.Context, owner string, limit int) ([]model.StoredLesson, error)
	GetUserStats(ctx context.Context, email string) (*model.UserStats, error)
	GetFrequentCategories(ctx context.Context, email string, limit int) ([]model.CategoryCount, error)
	GetRecentFeedback(ctx context.Context, email string, limit int) ([]model.StoredFeedback, error)
}

// Ledger はプラン状態とWhisper使用量の台帳。
type Ledger interface {
	GetSubscriptionStatus(ctx context.Context, email string) model.SubscriptionStatusView
	CanConsume(ctx context.Context, email string, minutes float64) model.ConsumeDecision
	RecordUsage(ctx context.Context, email string, minutes float64) error
	OpenAccount(ctx context.Context, email string, trialDays int) (*model.Account, bool, error)
	RemainingMinutes(ctx context.Context, email string) *float64
	GetMeteredUsageThisPeriod(ctx context.Context, email string) float64
}

// Recorder はセッション関連のメトリクスを記録する。metrics.MetricsCollectorの部分集合。
type Recorder interface {
	RecordSessionStarted(mode string)
	RecordQuotaDenied()
	RecordTranscribedMinutes(minutes float64)
}

// Deps はServiceの依存コンポーネント。
type Deps struct {
	Registry  *Registry
	Articles  ArticleSource
	Summarize Summarizer
	Questions QuestionGenerator
	Feedback  FeedbackAnalyzer
	Lessons   LessonGenerator
	Store     Store
	Ledger    Ledger
	Speech    SpeechClient
	SideCalls *sidecall.Runner
	Recorder  Recorder
	Logger    *slog.Logger

	// TrialDays は初回の従量利用時に作成する無料体験アカウントの期間（日数）。
	TrialDays int
}

// Service はセッションの開始、発話の提出、教材生成、音声処理を取りまとめる。
type Service struct {
	Deps
	newID func() string
	now   func() time.Time
}

// NewService はServiceを生成する。
func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.SideCalls == nil {
		deps.SideCalls = sidecall.NewRunner(deps.Logger, nil)
	}
	return &Service{
		Deps:  deps,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// StartInput はセッション開始の入力。ContentがあればURLより優先する。
// Ownerはセッションを開始したユーザーで、発話を提出できるのはこのユーザーだけ。
type StartInput struct {
	Owner    string
	URL      string
	Content  string
	Title    string
	Question string
	Topic    string
	Lesson   *model.LessonMeta
}

// StartResult はセッション開始の結果。
type StartResult struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Summary   string `json:"article_summary"`
}

// StartSession はセッションを開始してレジストリに登録する。
func (s *Service) StartSession(ctx context.Context, in StartInput) (*StartResult, error) {
	var (
		sess    model.Session
		summary string
		mode    string
	)

	switch {
	case strings.TrimSpace(in.Content) != "":
		mode = "generated"
		sess = model.Session{
			ArticleURL:     model.GeneratedArticleURL,
			ArticleTitle:   orDefault(in.Title, defaultGeneratedTitle),
			ArticleContent: in.Content,
			Question:       orDefault(in.Question, defaultGeneratedQuestion),
			Lesson:         in.Lesson,
		}
		if in.URL != "" {
			sess.ArticleURL = in.URL
		}
		summary = generatedSummary

	case strings.TrimSpace(in.URL) != "":
		mode = "url"
		article, err := s.Articles.FetchByURL(ctx, strings.TrimSpace(in.URL))
		if err != nil {
			s.Logger.WarnContext(ctx, "記事の取得に失敗しました",
				slog.String("url", in.URL),
				slog.String("error", err.Error()),
			)
			return nil, model.NewArticleUnavailableError(in.URL)
		}
		if article == nil || strings.TrimSpace(article.Content) == "" {
			return nil, model.NewArticleUnavailableError(in.URL)
		}
		sess = model.Session{
			ArticleURL:     in.URL,
			ArticleTitle:   article.Title,
			ArticleContent: article.Content,
			Question:       s.Questions.GenerateQuestion(ctx, article.Content, article.Title),
		}
		summary = s.Summarize.Summarize(ctx, article.Content, summaryLength)

	default:
		return nil, model.NewInvalidRequestError("記事URLまたはコンテンツが必要です")
	}

	sess.ID = s.newID()
	sess.Owner = in.Owner
	sess.Topic = orDefault(in.Topic, sess.ArticleTitle)
	sess.CreatedAt = s.now()

	if err := s.Registry.Insert(sess); err != nil {
		return nil, fmt.Errorf("セッションの登録に失敗しました: %w", err)
	}
	if s.Recorder != nil {
		s.Recorder.RecordSessionStarted(mode)
	}

	s.Logger.InfoContext(ctx, "セッションを開始しました",
		slog.String("session_id", sess.ID),
		slog.String("mode", mode),
	)
	return &StartResult{SessionID: sess.ID, Question: sess.Question, Summary: summary}, nil
}

// SubmitResult は発話提出の結果。
type SubmitResult struct {
	SessionID     string               `json:"session_id"`
	FeedbackCount int                  `json:"feedback_count"`
	FeedbackItems []model.FeedbackItem `json:"feedback_items"`
	Message       string               `json:"message"`
}

// SubmitTranscript は発話を解析してフィードバックを返す。
// 他のユーザーが開始したセッションは存在しないものとして扱う。
// 会話ログとフィードバックの保存は失敗しても結果に影響しない。
func (s *Service) SubmitTranscript(ctx context.Context, email, sessionID, transcript string, durationSeconds float64) (*SubmitResult, error) {
	sess, ok := s.Registry.Get(sessionID)
	if !ok {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	if sess.Owner != email {
		s.Logger.WarnContext(ctx, "他のユーザーのセッションへの提出を拒否しました",
			slog.String("session_id", sessionID),
			slog.String("email", email),
		)
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	if durationSeconds < 0 {
		return nil, model.NewInvalidRequestError("発話時間が負の値です")
	}

	items := s.Feedback.Analyze(ctx, transcript)
	for i := range items {
		items[i].SessionID = sessionID
	}
	if len(items) == 0 {
		s.Logger.InfoContext(ctx, "フィードバックは0件でした",
			slog.String("session_id", sessionID),
		)
	}

	topic := sess.Topic
	if sess.Lesson != nil && sess.Lesson.Title != "" {
		topic = sess.Lesson.Title
	}
	convLog := &model.ConversationLog{
		ID:              s.newID(),
		SessionID:       sessionID,
		Topic:           topic,
		ArticleURL:      sess.ArticleURL,
		Transcript:      transcript,
		DurationSeconds: durationSeconds,
		UserEmail:       email,
		Lesson:          sess.Lesson,
		CreatedAt:       s.now(),
	}
	s.SideCalls.Run(ctx, "conversation_log", func(ctx context.Context) error {
		return s.Store.CreateConversationLog(ctx, convLog)
	}, slog.String("session_id", sessionID))

	if len(items) > 0 {
		s.SideCalls.Run(ctx, "feedback_items", func(ctx context.Context) error {
			return s.Store.CreateFeedbackItems(ctx, email, sessionID, items)
		}, slog.String("session_id", sessionID), slog.Int("count", len(items)))
	}

	message := messageNoIssues
	if len(items) > 0 {
		message = fmt.Sprintf("%d件のフィードバックを記録しました", len(items))
	}
	return &SubmitResult{
		SessionID:     sessionID,
		FeedbackCount: len(items),
		FeedbackItems: items,
		Message:       message,
	}, nil
}

// GenerateLessons は記事を取得して教材を生成し、ユーザーのレッスンとして保存する。
// sourceURLが空の場合は記事を自動で選ぶ。保存の失敗は結果に影響しない。
func (s *Service) GenerateLessons(ctx context.Context, email, sourceURL string, level lesson.Level) ([]model.Lesson, error) {
	if !level.Valid() {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("レベルは1〜3で指定してください: %d", int(level)))
	}

	source := strings.TrimSpace(sourceURL)
	var (
		article *model.Article
		err     error
	)
	if source == "" {
		source = "auto"
		article, err = s.Articles.FetchAutomatic(ctx)
	} else {
		article, err = s.Articles.FetchByURL(ctx, source)
	}
	if err != nil {
		s.Logger.WarnContext(ctx, "教材用の記事取得に失敗しました",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return nil, model.NewArticleUnavailableError(source)
	}
	if article == nil || strings.TrimSpace(article.Content) == "" {
		return nil, model.NewArticleUnavailableError(source)
	}

	lessons, err := s.Lessons.Generate(ctx, article.Content, article.Title, level)
	if err != nil {
		return nil, fmt.Errorf("教材の生成に失敗しました: %w", err)
	}
	if len(lessons) == 0 {
		return nil, model.NewGenerationFailedError()
	}

	for i := range lessons {
		l := &lessons[i]
		s.SideCalls.Run(ctx, "save_lesson", func(ctx context.Context) error {
			id, err := s.Store.SaveLesson(ctx, email, l)
			if err != nil {
				return err
			}
			s.Logger.InfoContext(ctx, "レッスンを保存しました",
				slog.String("lesson_id", id),
				slog.String("title", l.Title),
			)
			return nil
		}, slog.String("title", l.Title))
	}

	return lessons, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// isTimeout は外部呼び出しのタイムアウトかどうかを返す。
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
