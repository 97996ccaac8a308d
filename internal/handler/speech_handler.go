package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/newstalk/internal/model"
	"github.com/hitoshi/newstalk/internal/session"
)

// SpeechServiceInterface は音声ハンドラーが必要とするサービスインターフェース。
type SpeechServiceInterface interface {
	TranscribeAudio(ctx context.Context, email, audioBase64 string, durationSeconds float64) (*session.TranscribeResult, error)
	Speak(ctx context.Context, email, text, voice string) ([]byte, error)
}

// SpeechHandler は文字起こしと読み上げのHTTPハンドラー。
type SpeechHandler struct {
	service SpeechServiceInterface
}

// NewSpeechHandler はSpeechHandlerを生成する。
func NewSpeechHandler(service SpeechServiceInterface) *SpeechHandler {
	return &SpeechHandler{service: service}
}

type transcribeRequest struct {
	AudioData       string  `json:"audio_data"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type speakRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Transcribe は使用上限の範囲で音声を文字起こしする。
// POST /api/whisper/transcribe
func (h *SpeechHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req transcribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AudioData == "" {
		handleServiceError(w, r, model.NewInvalidRequestError("audio_dataが必要です"))
		return
	}

	result, err := h.service.TranscribeAudio(r.Context(), email, req.AudioData, req.DurationSeconds)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Speak はテキストを読み上げた音声(MP3)を返す。
// POST /api/tts/speak
func (h *SpeechHandler) Speak(w http.ResponseWriter, r *http.Request) {
	email, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req speakRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	audio, err := h.service.Speak(r.Context(), email, req.Text, req.Voice)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		slog.WarnContext(r.Context(), "音声レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}
