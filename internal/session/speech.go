package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/newstalk/internal/model"
	"github.com/hitoshi/newstalk/internal/speech"
)

// MaxSpeakLength は読み上げできるテキストの最大文字数。
const MaxSpeakLength = 1500

// SpeechClient は音声の文字起こしと読み上げを行う。
type SpeechClient interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Speak(ctx context.Context, text, voice string) ([]byte, error)
}

// TranscribeResult は文字起こしの結果。
// RemainingMinutesは無料体験中のみ設定され、有料プランではnil。
type TranscribeResult struct {
	Transcript       string   `json:"transcript"`
	DurationSeconds  float64  `json:"duration_seconds"`
	UsageMinutes     float64  `json:"usage_minutes"`
	RemainingMinutes *float64 `json:"remaining_minutes"`
}

// TranscribeAudio は使用上限を確認してから音声を文字起こしし、使用量を記録する。
// アカウントがないユーザーには先に無料体験アカウントを作成する。
// audioBase64はdata URL形式（data:audio/webm;base64,...）でもよい。
func (s *Service) TranscribeAudio(ctx context.Context, email, audioBase64 string, durationSeconds float64) (*TranscribeResult, error) {
	if durationSeconds <= 0 {
		return nil, model.NewInvalidRequestError("音声の長さは正の値で指定してください")
	}
	audio, err := decodeAudio(audioBase64)
	if err != nil {
		return nil, model.NewInvalidRequestError("音声データをデコードできません")
	}

	// 初回の従量利用では無料体験アカウントを作成する
	if _, created, err := s.Ledger.OpenAccount(ctx, email, s.TrialDays); err != nil {
		return nil, err
	} else if created {
		s.Logger.InfoContext(ctx, "初回の文字起こしで無料体験を開始しました",
			slog.String("email", email),
		)
	}

	minutes := durationSeconds / 60
	decision := s.Ledger.CanConsume(ctx, email, minutes)
	if !decision.Allowed {
		if s.Recorder != nil {
			s.Recorder.RecordQuotaDenied()
		}
		remaining := 0.0
		if decision.RemainingMinutes != nil {
			remaining = *decision.RemainingMinutes
		}
		s.Logger.InfoContext(ctx, "Whisperの使用上限により文字起こしを拒否しました",
			slog.String("email", email),
			slog.Float64("requested_minutes", minutes),
			slog.Float64("remaining_minutes", remaining),
		)
		return nil, model.NewQuotaExceededError(decision.Reason, remaining)
	}

	isTrial := s.Ledger.GetSubscriptionStatus(ctx, email).IsTrial

	transcript, err := s.Speech.Transcribe(ctx, audio)
	if err != nil {
		return nil, s.speechError(ctx, "whisper", err)
	}

	if err := s.Ledger.RecordUsage(ctx, email, minutes); err != nil {
		return nil, err
	}
	if s.Recorder != nil {
		s.Recorder.RecordTranscribedMinutes(minutes)
	}

	result := &TranscribeResult{
		Transcript:      transcript,
		DurationSeconds: durationSeconds,
		UsageMinutes:    minutes,
	}
	if isTrial {
		result.RemainingMinutes = s.Ledger.RemainingMinutes(ctx, email)
	}
	return result, nil
}

// Speak はテキストを読み上げたMP3を返す。
// 体験期間が終了した無料プランのユーザーは利用できない。
func (s *Service) Speak(ctx context.Context, email, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.NewInvalidRequestError("読み上げるテキストが空です")
	}
	if utf8.RuneCountInString(text) > MaxSpeakLength {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("テキストは%d文字以内にしてください", MaxSpeakLength))
	}

	status := s.Ledger.GetSubscriptionStatus(ctx, email)
	if status.Plan == model.PlanFree && status.Status == model.StatusExpired {
		return nil, model.NewTrialExpiredError()
	}

	audio, err := s.Speech.Speak(ctx, text, voice)
	if err != nil {
		return nil, s.speechError(ctx, "tts", err)
	}
	return audio, nil
}

// speechError は音声APIのエラーをクライアント向けのエラーに変換する。
func (s *Service) speechError(ctx context.Context, service string, err error) error {
	s.Logger.ErrorContext(ctx, "音声APIの呼び出しに失敗しました",
		slog.String("service", service),
		slog.String("error", err.Error()),
	)
	switch {
	case errors.Is(err, speech.ErrInvalidInput):
		return model.NewInvalidRequestError("音声APIが入力を受け付けませんでした")
	case isTimeout(err), errors.Is(err, speech.ErrUnavailable):
		return model.NewUpstreamUnavailableError(service)
	default:
		return fmt.Errorf("%s: %w", service, err)
	}
}

// decodeAudio はbase64文字列（data URLを含む）を音声バイト列に戻す。
func decodeAudio(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	if s == "" {
		return nil, errors.New("empty audio")
	}
	audio, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("empty audio")
	}
	return audio, nil
}
