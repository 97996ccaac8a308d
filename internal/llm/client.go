// Package llm は言語モデル（OpenAI Chat Completions）の呼び出しを提供する。
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse はモデルが本文を返さなかったことを表す。
var ErrEmptyResponse = errors.New("llm: empty response")

// Role はメッセージの話者。
type Role string

const (
	RoleSystem    Role = openai.ChatMessageRoleSystem
	RoleUser      Role = openai.ChatMessageRoleUser
	RoleAssistant Role = openai.ChatMessageRoleAssistant
)

// Message は会話中の1メッセージ。
type Message struct {
	Role    Role
	Content string
}

// Request は1回の補完要求。
type Request struct {
	Op          string // メトリクス・ログ用の操作名（feedback, lesson など）
	Messages    []Message
	JSON        bool // trueの場合JSONオブジェクト形式での応答を要求する
	Temperature float32
	MaxTokens   int
}

// Prompt はsystemとuserの2メッセージからなるRequestを作る。
func Prompt(op, system, user string) Request {
	return Request{
		Op: op,
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
	}
}

// Completer は言語モデルの補完インターフェース。
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CallRecorder は呼び出し結果を記録する。metrics.MetricsCollectorの部分集合。
type CallRecorder interface {
	RecordLLMCall(op string, err error, duration time.Duration)
}

// chatAPI はgo-openaiクライアントのうち利用するメソッド。テストで差し替える。
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config はClientの設定。
type Config struct {
	Model   string
	Timeout time.Duration
}

// Client はOpenAI Chat Completionsを使うCompleter実装。
type Client struct {
	api      chatAPI
	config   Config
	recorder CallRecorder
}

// NewOpenAIClient はAPIキーとベースURL（空なら既定）からgo-openaiクライアントを生成する。
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// NewClient はClientを生成する。recorderはnilでもよい。
func NewClient(api *openai.Client, config Config, recorder CallRecorder) *Client {
	return newClient(api, config, recorder)
}

func newClient(api chatAPI, config Config, recorder CallRecorder) *Client {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	return &Client{api: api, config: config, recorder: recorder}
}

// Complete はモデルに補完を要求し、最初の選択肢の本文を前後空白を除いて返す。
// 設定されたタイムアウトを超えた場合はcontext.DeadlineExceededをラップしたエラーを返す。
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.complete(ctx, req)
	if c.recorder != nil {
		c.recorder.RecordLLMCall(req.Op, err, time.Since(start))
	}
	return text, err
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.buildRequest(req))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("llm %s: %w", req.Op, ctxErr)
		}
		return "", fmt.Errorf("llm %s: %w", req.Op, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm %s: %w", req.Op, ErrEmptyResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("llm %s: %w", req.Op, ErrEmptyResponse)
	}
	return text, nil
}

func (c *Client) buildRequest(req Request) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	out := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

var _ Completer = (*Client)(nil)
