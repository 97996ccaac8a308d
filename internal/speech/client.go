// Package speech はOpenAIの音声API（Whisperによる文字起こしとTTS）を呼び出す。
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

var (
	// ErrInvalidInput は音声APIが入力を受け付けなかったことを表す（4xx）。
	ErrInvalidInput = errors.New("speech: invalid input")
	// ErrUnavailable は音声APIが一時的に利用できないことを表す（429・5xx）。
	ErrUnavailable = errors.New("speech: service unavailable")
)

// DefaultVoice は声の指定がない場合や未知の声が指定された場合に使う声。
const DefaultVoice = openai.VoiceAlloy

var allowedVoices = map[string]openai.SpeechVoice{
	string(openai.VoiceAlloy):   openai.VoiceAlloy,
	string(openai.VoiceEcho):    openai.VoiceEcho,
	string(openai.VoiceFable):   openai.VoiceFable,
	string(openai.VoiceOnyx):    openai.VoiceOnyx,
	string(openai.VoiceNova):    openai.VoiceNova,
	string(openai.VoiceShimmer): openai.VoiceShimmer,
}

// NormalizeVoice は声の名前を小文字に揃え、未知の声はDefaultVoiceにする。
func NormalizeVoice(voice string) openai.SpeechVoice {
	if v, ok := allowedVoices[strings.ToLower(strings.TrimSpace(voice))]; ok {
		return v
	}
	return DefaultVoice
}

// audioAPI はgo-openaiクライアントのうち利用するメソッド。テストで差し替える。
type audioAPI interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// Config は音声APIの設定。
type Config struct {
	TranscribeModel   string
	TTSModel          string
	TranscribeTimeout time.Duration
	TTSTimeout        time.Duration
}

// Client はWhisperとTTSのクライアント。
type Client struct {
	api    audioAPI
	config Config
}

// NewClient はClientを生成する。
func NewClient(api *openai.Client, config Config) *Client {
	return newClient(api, config)
}

func newClient(api audioAPI, config Config) *Client {
	if config.TranscribeModel == "" {
		config.TranscribeModel = openai.Whisper1
	}
	if config.TTSModel == "" {
		config.TTSModel = string(openai.TTSModel1HD)
	}
	return &Client{api: api, config: config}
}

// Transcribe は英語の音声を文字起こしする。
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio", ErrInvalidInput)
	}
	ctx, cancel := withTimeout(ctx, c.config.TranscribeTimeout)
	defer cancel()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.TranscribeModel,
		FilePath: "recording.webm",
		Reader:   bytes.NewReader(audio),
		Language: "en",
	})
	if err != nil {
		return "", classify(ctx, "transcription", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Speak はテキストを読み上げたMP3を返す。
func (c *Client) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	ctx, cancel := withTimeout(ctx, c.config.TTSTimeout)
	defer cancel()

	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.config.TTSModel),
		Input:          text,
		Voice:          NormalizeVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, classify(ctx, "speech", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, classify(ctx, "speech", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio response", ErrUnavailable)
	}
	return audio, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// classify はAPIエラーをステータスコードに応じてErrInvalidInputかErrUnavailableに分類する。
// タイムアウトはcontext.DeadlineExceededのまま返す。
func classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	case status >= 400:
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidInput, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
