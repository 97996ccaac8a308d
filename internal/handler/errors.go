// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/newstalk/internal/middleware"
	"github.com/hitoshi/newstalk/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限。音声のbase64を含むため大きめにとる。
const maxBodyBytes = 25 << 20

// upstreamRetryAfterSeconds は外部サービス障害時にクライアントへ伝える再試行までの秒数。
const upstreamRetryAfterSeconds = 30

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvに読み込む。失敗時は400を書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return false
	}
	return true
}

// requireUser は認証済みの利用者のメールアドレスを返す。なければ401を書き込む。
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return email, true
}

// queryLimit はクエリパラメータlimitを読む。未指定や不正な値は0を返し、既定値に任せる。
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", strconv.Itoa(upstreamRetryAfterSeconds))
		}
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeArticleUnavailable, model.ErrCodeGenerationFailed:
		return http.StatusBadGateway
	case model.ErrCodeSessionNotFound, model.ErrCodeAccountNotFound:
		return http.StatusNotFound
	case model.ErrCodeQuotaExceeded, model.ErrCodeTrialExpired, model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeInvalidTransition:
		return http.StatusConflict
	case model.ErrCodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
