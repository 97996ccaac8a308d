// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/newstalk/internal/model"
)

// AccessTokenCookieName はアクセストークンを保持するCookieの名前。
const AccessTokenCookieName = "access_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userContextKey       = contextKey("user_email")
	cookieAuthContextKey = contextKey("cookie_auth")
	userHolderContextKey = contextKey("user_holder")
)

// userHolder は外側のミドルウェアへ認証済みの利用者を伝える入れ物。
type userHolder struct {
	email string
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, userHolderContextKey, h)
}

// TokenVerifier はアクセストークンを検証し、利用者のメールアドレスを返す。
// auth.Verifierが実装する。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークン、なければaccess_token Cookieを検証し、
// 利用者のメールアドレスをリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない・不正な場合は401を返す。
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, viaCookie := tokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			email, err := verifier.Verify(token)
			if err != nil {
				slog.Warn("access token verification failed",
					slog.String("error", err.Error()),
					slog.String("path", r.URL.Path),
					slog.Bool("cookie", viaCookie),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if h, ok := r.Context().Value(userHolderContextKey).(*userHolder); ok {
				h.email = email
			}

			ctx := context.WithValue(r.Context(), userContextKey, email)
			ctx = context.WithValue(ctx, cookieAuthContextKey, viaCookie)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tokenFromRequest はBearerトークンを優先し、なければCookieのトークンを返す。
// 2つ目の戻り値はCookieから取得したかどうか。
func tokenFromRequest(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token, false
			}
		}
	}
	if c, err := r.Cookie(AccessTokenCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

// UserFromContext はリクエストコンテキストから利用者のメールアドレスを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (string, error) {
	email, ok := ctx.Value(userContextKey).(string)
	if !ok || email == "" {
		return "", fmt.Errorf("user not found in context")
	}
	return email, nil
}

// ContextWithUser はコンテキストに利用者のメールアドレスを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userContextKey, email)
}

// AuthenticatedByCookie はCookieのトークンで認証されたリクエストかを返す。
func AuthenticatedByCookie(ctx context.Context) bool {
	v, _ := ctx.Value(cookieAuthContextKey).(bool)
	return v
}
