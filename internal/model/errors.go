// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string         // エラーコード
	Message  string         // エラーメッセージ
	Category string         // カテゴリ: auth, validation, session, account, quota, upstream, system
	Action   string         // ユーザー向け対処方法
	Details  map[string]any // 追加情報（クォータ残量など）。不要な場合はnil
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeArticleUnavailable  = "ARTICLE_UNAVAILABLE"
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeGenerationFailed    = "GENERATION_FAILED"
	ErrCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	ErrCodeQuotaExceeded       = "QUOTA_EXCEEDED"
	ErrCodeTrialExpired        = "TRIAL_EXPIRED"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeCSRFInvalid         = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited         = "RATE_LIMITED"
)

// NewInvalidRequestError は入力不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewArticleUnavailableError は記事取得失敗エラーを生成する。
func NewArticleUnavailableError(source string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleUnavailable,
		Message:  fmt.Sprintf("記事の取得に失敗しました: %s", source),
		Category: "upstream",
		Action:   "URLが正しいか、アクセス可能か確認してください。しばらく時間をおいて再度お試しください。",
	}
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("セッションが見つかりません: %s", sessionID),
		Category: "session",
		Action:   "セッションを開始し直してください。",
	}
}

// NewGenerationFailedError はレッスン生成失敗エラーを生成する。
func NewGenerationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationFailed,
		Message:  "レッスンの生成に失敗しました。",
		Category: "upstream",
		Action:   "しばらく時間をおいて再度お試しください。",
	}
}

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
func NewAccountNotFoundError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("アカウントが見つかりません: %s", email),
		Category: "account",
		Action:   "アカウント登録が完了しているか確認してください。",
	}
}

// NewQuotaExceededError はWhisper使用上限エラーを生成する。
// remainingは残り分数。クライアントは端末STTへのフォールバックを推奨される。
func NewQuotaExceededError(reason string, remaining float64) *APIError {
	return &APIError{
		Code:     ErrCodeQuotaExceeded,
		Message:  fmt.Sprintf("%s (残り: %.1f分)", reason, remaining),
		Category: "quota",
		Action:   "端末の音声認識をご利用いただくか、有料プランへのご登録をご検討ください。",
		Details: map[string]any{
			"remaining_minutes":      remaining,
			"should_fallback_to_stt": true,
		},
	}
}

// NewTrialExpiredError は体験期間終了エラーを生成する。
func NewTrialExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTrialExpired,
		Message:  "体験期間が終了しました。有料プランへのご登録をお願いいたします。自動課金は一切発生しません。",
		Category: "quota",
		Action:   "プランページから有料プランを選択してください。",
	}
}

// NewInvalidTransitionError はプラン状態遷移が許可されていない場合のエラーを生成する。
func NewInvalidTransitionError(from, to SubscriptionStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("サブスクリプション状態を %s から %s に変更できません。", from, to),
		Category: "account",
		Action:   "現在の契約状態を確認してください。",
	}
}

// NewUpstreamUnavailableError は外部サービスの一時的な障害を表すエラーを生成する。
func NewUpstreamUnavailableError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("外部サービスが一時的に利用できません: %s", service),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "サーバー内部でエラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError(retryAfterSeconds int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   fmt.Sprintf("%d秒ほど待ってから再度お試しください。", retryAfterSeconds),
		Details:  map[string]any{"retry_after_seconds": retryAfterSeconds},
	}
}
